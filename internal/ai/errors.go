package ai

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
)

var (
	ErrStreamClosed = errors.New("stream ended before completion")
)

// AIError is an enriched error from the model backend.
type AIError struct {
	OriginalErr    error  `json:"-"`
	ProviderName   string `json:"provider_name"`
	ModelName      string `json:"model_name"`
	HTTPStatusCode int    `json:"http_status_code"`
	Message        string `json:"message"`
}

func (e *AIError) Error() string {
	msg := e.Message
	if msg == "" && e.OriginalErr != nil {
		msg = e.OriginalErr.Error()
	} else if e.OriginalErr != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.OriginalErr)
	}
	if e.ProviderName != "" && e.ModelName != "" {
		msg = fmt.Sprintf("[%s:%s] %s", e.ProviderName, e.ModelName, msg)
	}
	if e.HTTPStatusCode != 0 {
		msg = fmt.Sprintf("%d %s", e.HTTPStatusCode, msg)
	}
	return msg
}

func (e *AIError) Unwrap() error {
	return e.OriginalErr
}

type ErrorType string

const (
	ErrorTypeNetwork  ErrorType = "network"
	ErrorTypeNotFound ErrorType = "model_not_found"
	ErrorTypeServer   ErrorType = "server"
	ErrorTypeClient   ErrorType = "client"
	ErrorTypeUnknown  ErrorType = "unknown"
)

func (e *AIError) ErrorType() ErrorType {
	switch {
	case e.HTTPStatusCode == 0 && isNetworkError(e.OriginalErr):
		return ErrorTypeNetwork
	case e.HTTPStatusCode == 404 && strings.Contains(strings.ToLower(e.Message), "not found"):
		return ErrorTypeNotFound
	case e.HTTPStatusCode >= 500:
		return ErrorTypeServer
	case e.HTTPStatusCode >= 400:
		return ErrorTypeClient
	default:
		return ErrorTypeUnknown
	}
}

// IsRetryable reports whether the same request may succeed later.
func (e *AIError) IsRetryable() bool {
	switch e.ErrorType() {
	case ErrorTypeNetwork, ErrorTypeServer:
		return true
	}
	return false
}

func GetErrorType(err error) ErrorType {
	var aiErr *AIError
	if errors.As(err, &aiErr) {
		return aiErr.ErrorType()
	}
	return ErrorTypeUnknown
}

func IsRetryableError(err error) bool {
	var aiErr *AIError
	if errors.As(err, &aiErr) {
		return aiErr.IsRetryable()
	}
	return false
}

func isNetworkError(err error) bool {
	var urlErr *url.Error
	var netErr net.Error
	return errors.As(err, &urlErr) || errors.As(err, &netErr)
}
