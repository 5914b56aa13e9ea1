package agent

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ollagram/ollagram/internal/logger"
)

func newTestParser(t *testing.T, tools ...string) (*PrefixParser, *logger.TestLogger) {
	t.Helper()
	r := NewRegistry()
	for _, name := range tools {
		require.NoError(t, r.Register(echoTool(name)))
	}
	log := logger.NewTestLogger()
	return NewPrefixParser("TOOL:", r, log), log
}

func TestPrefixParser_NoPrefix(t *testing.T) {
	p, _ := newTestParser(t, "echo")
	assert.Empty(t, p.Extract("The weather in Minsk is fine."))
	assert.Empty(t, p.Extract(""))
}

func TestPrefixParser_SingleCall(t *testing.T) {
	p, _ := newTestParser(t, "get_weather")
	text := "Let me check.\nTOOL: get_weather\n```json\n{\"latitude\": 53.9, \"longitude\": 27.56}\n```"

	calls := p.Extract(text)
	require.Len(t, calls, 1)
	assert.Equal(t, "get_weather", calls[0].Name)
	assert.Equal(t, Arguments{"latitude": 53.9, "longitude": 27.56}, calls[0].Arguments)
}

func TestPrefixParser_Formats(t *testing.T) {
	p, _ := newTestParser(t, "echo")
	tests := []struct {
		name string
		text string
		want Arguments
	}{
		{"bare json", "TOOL: echo\n{\"text\": \"hi\"}", Arguments{"text": "hi"}},
		{"name on next line", "TOOL:\necho\n{\"text\": \"hi\"}", Arguments{"text": "hi"}},
		{"fence without info string", "TOOL: echo\n```\n{\"text\": \"hi\"}\n```", Arguments{"text": "hi"}},
		{"inline fence", "TOOL: echo\n```json {\"text\": \"hi\"}```", Arguments{"text": "hi"}},
		{"inline args", "TOOL: echo {\"text\": \"hi\"}", Arguments{"text": "hi"}},
		{"trailing chatter", "TOOL: echo\n```json\n{\"text\": \"hi\"}\n```\nI will wait for the result.", Arguments{"text": "hi"}},
		{"no arguments", "TOOL: echo", Arguments{}},
		{"unterminated fence", "TOOL: echo\n```json\n{\"text\": \"hi\"}", Arguments{"text": "hi"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls := p.Extract(tt.text)
			require.Len(t, calls, 1)
			assert.Equal(t, "echo", calls[0].Name)
			assert.Equal(t, tt.want, calls[0].Arguments)
		})
	}
}

func TestPrefixParser_MalformedSegmentDoesNotAbort(t *testing.T) {
	p, log := newTestParser(t, "echo", "other")
	text := "TOOL: echo\n```json\n{\"text\": \"broken\"\n```\n" +
		"TOOL: other\n```json\n{\"text\": \"ok\"}\n```"

	calls := p.Extract(text)
	require.Len(t, calls, 1)
	assert.Equal(t, "other", calls[0].Name)
	assert.True(t, log.HasEntry("debug", "Dropping malformed tool call"))
}

func TestPrefixParser_NonObjectArgumentsDropped(t *testing.T) {
	p, _ := newTestParser(t, "echo")
	assert.Empty(t, p.Extract("TOOL: echo\n[1, 2, 3]"))
}

func TestPrefixParser_UnknownToolDropped(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(echoTool("echo")))
	p := NewPrefixParser("TOOL:", r, nil)

	calls := p.Extract("TOOL: launch_rockets\n{}\nTOOL: echo\n{\"text\": \"x\"}")
	require.Len(t, calls, 1)
	assert.Equal(t, "echo", calls[0].Name)
	assert.Equal(t, 1, r.Len())
}

func TestPrefixParser_PreservesOrder(t *testing.T) {
	p, _ := newTestParser(t, "a", "b", "c")
	calls := p.Extract("preamble TOOL: c\n{}\nTOOL: a\n{}\nTOOL: b\n{}\nTOOL: a\n{}")

	var names []string
	for _, c := range calls {
		names = append(names, c.Name)
	}
	assert.Equal(t, []string{"c", "a", "b", "a"}, names)
}

func TestPrefixParser_CustomPrefix(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(echoTool("echo")))
	p := NewPrefixParser("<<call>>", r, nil)

	assert.Empty(t, p.Extract("TOOL: echo\n{}"))
	assert.Len(t, p.Extract("<<call>> echo\n{\"text\": \"x\"}"), 1)
}
