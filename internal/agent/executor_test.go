package agent

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ollagram/ollagram/internal/logger"
)

func TestExecutor_Invoke(t *testing.T) {
	r := NewRegistry()
	r.MustRegister(echoTool("echo"), failingTool("fail"), ToolSpec{
		Name:       "panic",
		Parameters: Schema{Type: TypeObject},
		Func: func(context.Context, Arguments) (any, error) {
			panic("kaboom")
		},
	})
	log := logger.NewTestLogger()
	e := NewExecutor(r, WithExecutorLogger(log))
	ctx := context.Background()

	t.Run("success", func(t *testing.T) {
		res := e.Invoke(ctx, ToolCall{Name: "echo", Arguments: Arguments{"text": "hi"}})
		require.True(t, res.OK())
		assert.Equal(t, "hi", res.Value)
		assert.NoError(t, res.Err())
	})

	t.Run("tool error becomes failure", func(t *testing.T) {
		res := e.Invoke(ctx, ToolCall{Name: "fail"})
		require.False(t, res.OK())
		assert.Equal(t, FailureExecution, res.Failure.Kind)
		assert.Equal(t, "boom", res.Failure.Message)
		assert.ErrorIs(t, res.Err(), ErrToolExecution)
	})

	t.Run("panic is recovered", func(t *testing.T) {
		var res ToolResult
		require.NotPanics(t, func() {
			res = e.Invoke(ctx, ToolCall{Name: "panic"})
		})
		require.False(t, res.OK())
		assert.Equal(t, FailureExecution, res.Failure.Kind)
		assert.Contains(t, res.Failure.Message, "kaboom")
		assert.True(t, log.HasEntry("error", "Tool panicked"))
	})

	t.Run("unknown tool", func(t *testing.T) {
		res := e.Invoke(ctx, ToolCall{Name: "ghost"})
		require.False(t, res.OK())
		assert.Equal(t, FailureUnknownTool, res.Failure.Kind)
		assert.ErrorIs(t, res.Err(), ErrUnknownTool)
	})

	t.Run("missing required field", func(t *testing.T) {
		res := e.Invoke(ctx, ToolCall{Name: "echo", Arguments: Arguments{}})
		require.False(t, res.OK())
		assert.Equal(t, FailureInvalidArguments, res.Failure.Kind)
		assert.ErrorIs(t, res.Err(), ErrInvalidArguments)
	})

	t.Run("extra field", func(t *testing.T) {
		res := e.Invoke(ctx, ToolCall{Name: "echo", Arguments: Arguments{"text": "a", "loud": true}})
		require.False(t, res.OK())
		assert.Equal(t, FailureInvalidArguments, res.Failure.Kind)
	})
}

func TestExecutor_WithoutValidation(t *testing.T) {
	r := NewRegistry()
	r.MustRegister(echoTool("echo"))
	e := NewExecutor(r, WithoutValidation())

	res := e.Invoke(context.Background(), ToolCall{Name: "echo", Arguments: Arguments{"text": "a", "loud": true}})
	assert.True(t, res.OK())

	// the tool itself still reports a missing argument
	res = e.Invoke(context.Background(), ToolCall{Name: "echo"})
	require.False(t, res.OK())
	assert.Equal(t, FailureExecution, res.Failure.Kind)
}

func TestExecutor_InvokeAllRunsEveryCall(t *testing.T) {
	r := NewRegistry()
	r.MustRegister(echoTool("echo"), failingTool("fail"))
	e := NewExecutor(r)

	results := e.InvokeAll(context.Background(), []ToolCall{
		{Name: "fail"},
		{Name: "echo", Arguments: Arguments{"text": "one"}},
		{Name: "fail"},
		{Name: "echo", Arguments: Arguments{"text": "two"}},
	})
	require.Len(t, results, 4)
	assert.False(t, results[0].OK())
	assert.Equal(t, "one", results[1].Value)
	assert.False(t, results[2].OK())
	assert.Equal(t, "two", results[3].Value)
}

func TestExecutor_AppliesDefaults(t *testing.T) {
	var got Arguments
	r := NewRegistry()
	r.MustRegister(ToolSpec{
		Name: "convert",
		Parameters: Schema{
			Type: TypeObject,
			Properties: map[string]Property{
				"from":   {Type: TypeString},
				"amount": {Type: TypeNumber, Default: 1.0},
			},
			Required: []string{"from"},
		},
		Func: func(_ context.Context, args Arguments) (any, error) {
			got = args
			return "ok", nil
		},
	})

	res := NewExecutor(r).Invoke(context.Background(), ToolCall{Name: "convert", Arguments: Arguments{"from": "USD"}})
	require.True(t, res.OK())
	assert.Equal(t, Arguments{"from": "USD", "amount": 1.0}, got)
}
