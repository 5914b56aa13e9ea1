package agent

import "errors"

var (
	ErrDuplicateTool      = errors.New("tool already registered")
	ErrInvalidSchema      = errors.New("invalid tool schema")
	ErrUnknownTool        = errors.New("unknown tool")
	ErrInvalidArguments   = errors.New("invalid tool arguments")
	ErrToolExecution      = errors.New("tool execution failed")
	ErrBackendUnavailable = errors.New("model backend unavailable")
	ErrConversationStore  = errors.New("conversation store failed")
)
