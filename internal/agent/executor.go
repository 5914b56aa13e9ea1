package agent

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/ollagram/ollagram/internal/logger"
)

type Executor struct {
	resolver Resolver
	validate bool
	logger   logger.Logger
}

type ExecutorOption func(*Executor)

// WithoutValidation passes arguments to tools as parsed.
func WithoutValidation() ExecutorOption {
	return func(e *Executor) { e.validate = false }
}

func WithExecutorLogger(l logger.Logger) ExecutorOption {
	return func(e *Executor) { e.logger = l }
}

func NewExecutor(resolver Resolver, opts ...ExecutorOption) *Executor {
	e := &Executor{resolver: resolver, validate: true, logger: logger.Nop()}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Invoke runs a single call. Every failure, including a panic inside the
// tool, comes back as a failed ToolResult.
func (e *Executor) Invoke(ctx context.Context, call ToolCall) (result ToolResult) {
	log := e.logger.WithField("tool", call.Name)

	spec, err := e.resolver.Resolve(call.Name)
	if err != nil {
		log.Warn("Tool vanished between parsing and execution")
		return Failed(call.Name, FailureUnknownTool, err)
	}

	args := call.Arguments
	if args == nil {
		args = Arguments{}
	}
	if e.validate {
		args, err = spec.Parameters.Apply(args)
		if err != nil {
			log.WithError(err).Debug("Tool arguments rejected")
			return Failed(call.Name, FailureInvalidArguments, err)
		}
	}

	defer func() {
		if r := recover(); r != nil {
			log.WithFields(logger.Fields{
				"panic": r,
				"stack": string(debug.Stack()),
			}).Error("Tool panicked")
			result = Failed(call.Name, FailureExecution, fmt.Errorf("panic: %v", r))
		}
	}()

	start := time.Now()
	value, err := spec.Func(ctx, args)
	log = log.WithField("duration", time.Since(start).String())
	if err != nil {
		log.WithError(err).Warn("Tool failed")
		return Failed(call.Name, FailureExecution, err)
	}
	log.Debug("Tool succeeded")
	return Success(call.Name, value)
}

// InvokeAll runs calls one after another in the given order. A failing call
// does not stop the rest.
func (e *Executor) InvokeAll(ctx context.Context, calls []ToolCall) []ToolResult {
	results := make([]ToolResult, 0, len(calls))
	for _, call := range calls {
		results = append(results, e.Invoke(ctx, call))
	}
	return results
}
