package agent

import (
	"context"
	"fmt"
	"math"
	"strconv"
)

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleAssistant, RoleSystem:
		return true
	}
	return false
}

// Turn is one role-tagged message of a conversation.
type Turn struct {
	Role    Role
	Content string
}

// ModelClient sends a prompt to the model and blocks until the full reply is available.
// History is ordered oldest-first.
type ModelClient interface {
	Generate(ctx context.Context, systemPrompt, message string, history []Turn) (string, error)
}

// ConversationStore is an append-only log of turns keyed by conversation id.
type ConversationStore interface {
	Append(ctx context.Context, conversationID int64, role Role, content string) error
	History(ctx context.Context, conversationID int64) ([]Turn, error)
}

// ToolCall is a tool invocation requested by the model.
type ToolCall struct {
	Name      string
	Arguments Arguments
}

// Arguments holds decoded JSON call arguments.
type Arguments map[string]any

func (a Arguments) Has(key string) bool {
	_, ok := a[key]
	return ok
}

func (a Arguments) String(key string) (string, error) {
	v, ok := a[key]
	if !ok {
		return "", fmt.Errorf("%w: missing %q", ErrInvalidArguments, key)
	}
	switch s := v.(type) {
	case string:
		return s, nil
	case fmt.Stringer:
		return s.String(), nil
	}
	return "", fmt.Errorf("%w: %q must be a string, got %T", ErrInvalidArguments, key, v)
}

// Float accepts JSON numbers and numeric strings, since models often quote numbers.
func (a Arguments) Float(key string) (float64, error) {
	v, ok := a[key]
	if !ok {
		return 0, fmt.Errorf("%w: missing %q", ErrInvalidArguments, key)
	}
	switch n := v.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case string:
		f, err := strconv.ParseFloat(n, 64)
		if err != nil {
			return 0, fmt.Errorf("%w: %q is not a number", ErrInvalidArguments, key)
		}
		return f, nil
	}
	return 0, fmt.Errorf("%w: %q must be a number, got %T", ErrInvalidArguments, key, v)
}

func (a Arguments) Int(key string) (int, error) {
	f, err := a.Float(key)
	if err != nil {
		return 0, err
	}
	if f != math.Trunc(f) {
		return 0, fmt.Errorf("%w: %q must be an integer", ErrInvalidArguments, key)
	}
	return int(f), nil
}

func (a Arguments) Bool(key string) (bool, error) {
	v, ok := a[key]
	if !ok {
		return false, fmt.Errorf("%w: missing %q", ErrInvalidArguments, key)
	}
	b, ok := v.(bool)
	if !ok {
		return false, fmt.Errorf("%w: %q must be a boolean, got %T", ErrInvalidArguments, key, v)
	}
	return b, nil
}

// IntOr returns def when the key is absent.
func (a Arguments) IntOr(key string, def int) (int, error) {
	if !a.Has(key) {
		return def, nil
	}
	return a.Int(key)
}
