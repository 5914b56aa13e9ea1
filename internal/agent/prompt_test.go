package agent

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBuildSystemPrompt(t *testing.T) {
	t.Run("no tools", func(t *testing.T) {
		assert.Equal(t, "base", BuildSystemPrompt("base", "TOOL:", nil))
	})

	t.Run("catalogue", func(t *testing.T) {
		r := NewRegistry()
		r.MustRegister(echoTool("echo"), failingTool("fail"))

		got := BuildSystemPrompt("You are helpful.", "TOOL:", r.DescribeAll())
		assert.Contains(t, got, "You are helpful.\n\nAVAILABLE TOOLS:")
		assert.Contains(t, got, "TOOL: tool_name\n```json")
		assert.Contains(t, got, "- echo: echoes its text argument")
		assert.Contains(t, got, `"required": [`)
		assert.Less(t, strings.Index(got, "- echo"), strings.Index(got, "- fail"))
	})
}
