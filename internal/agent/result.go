package agent

import (
	"encoding/json"
	"fmt"
	"strings"
)

type FailureKind string

const (
	FailureUnknownTool      FailureKind = "unknown_tool"
	FailureInvalidArguments FailureKind = "invalid_arguments"
	FailureExecution        FailureKind = "execution"
)

func (k FailureKind) sentinel() error {
	switch k {
	case FailureUnknownTool:
		return ErrUnknownTool
	case FailureInvalidArguments:
		return ErrInvalidArguments
	default:
		return ErrToolExecution
	}
}

type Failure struct {
	Kind    FailureKind
	Message string
}

// ToolResult is either a success carrying Value or a failure carrying Failure.
type ToolResult struct {
	Tool    string
	Value   any
	Failure *Failure
}

func Success(tool string, value any) ToolResult {
	return ToolResult{Tool: tool, Value: value}
}

func Failed(tool string, kind FailureKind, err error) ToolResult {
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	return ToolResult{Tool: tool, Failure: &Failure{Kind: kind, Message: msg}}
}

func (r ToolResult) OK() bool {
	return r.Failure == nil
}

// Err returns nil for a success. Failures wrap ErrUnknownTool,
// ErrInvalidArguments or ErrToolExecution.
func (r ToolResult) Err() error {
	if r.Failure == nil {
		return nil
	}
	return fmt.Errorf("%w: %s: %s", r.Failure.Kind.sentinel(), r.Tool, r.Failure.Message)
}

// Format renders the result for the feedback turn. It never fails.
func (r ToolResult) Format() string {
	if r.Failure != nil {
		return fmt.Sprintf("ERROR FROM %s (%s):\n%s", r.Tool, r.Failure.Kind, r.Failure.Message)
	}
	return fmt.Sprintf("RESULT FROM %s:\n```json\n%s\n```", r.Tool, renderValue(r.Value))
}

func renderValue(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(data)
}

// FormatResults joins formatted results with newlines.
func FormatResults(results []ToolResult) string {
	parts := make([]string, len(results))
	for i, r := range results {
		parts[i] = r.Format()
	}
	return strings.Join(parts, "\n")
}
