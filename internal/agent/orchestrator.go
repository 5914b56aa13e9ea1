package agent

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ollagram/ollagram/internal/logger"
)

type State string

const (
	StateAwaitingModel State = "AWAITING_MODEL"
	StateParsing       State = "PARSING"
	StateExecuting     State = "EXECUTING"
	StateFeedback      State = "FEEDBACK"
	StateDone          State = "DONE"
	StateExhausted     State = "EXHAUSTED"
)

const (
	DefaultMaxAttempts        = 3
	DefaultBackoff            = time.Second
	DefaultContinuationPrompt = "Gather more information only if it is really necessary. " +
		"Otherwise answer the original request in a clear, readable form using the results above."
)

// Reply is the outcome of a single Run.
type Reply struct {
	RunID    string
	Text     string
	Attempts int
	// Results holds every tool result of the run in execution order.
	Results   []ToolResult
	Exhausted bool
}

type Options struct {
	MaxAttempts        int
	Backoff            time.Duration
	ContinuationPrompt string
	FeedbackRole       Role
	Prefix             string
}

func (o Options) withDefaults() Options {
	if o.MaxAttempts < 1 {
		o.MaxAttempts = DefaultMaxAttempts
	}
	if o.Backoff < 0 {
		o.Backoff = 0
	}
	if o.ContinuationPrompt == "" {
		o.ContinuationPrompt = DefaultContinuationPrompt
	}
	if !o.FeedbackRole.Valid() {
		o.FeedbackRole = RoleUser
	}
	return o
}

type Orchestrator struct {
	model    ModelClient
	store    ConversationStore
	tools    *Registry
	parser   Parser
	executor *Executor
	opts     Options
	logger   logger.Logger

	sleep func(ctx context.Context, d time.Duration) error
}

func NewOrchestrator(
	model ModelClient,
	store ConversationStore,
	tools *Registry,
	parser Parser,
	executor *Executor,
	opts Options,
	l logger.Logger,
) *Orchestrator {
	if l == nil {
		l = logger.Nop()
	}
	if pp, ok := parser.(*PrefixParser); ok && opts.Prefix == "" {
		opts.Prefix = pp.Prefix()
	}
	return &Orchestrator{
		model:    model,
		store:    store,
		tools:    tools,
		parser:   parser,
		executor: executor,
		opts:     opts.withDefaults(),
		logger:   l,
		sleep:    sleepContext,
	}
}

func (o *Orchestrator) Options() Options {
	return o.opts
}

// SystemPrompt returns base extended with the tool catalogue.
func (o *Orchestrator) SystemPrompt(base string) string {
	return BuildSystemPrompt(base, o.opts.Prefix, o.tools.DescribeAll())
}

// Run answers message within the given conversation. It returns the final
// text, or the last model response once MaxAttempts is reached. Only model
// failures (ErrBackendUnavailable) and store failures (ErrConversationStore)
// are returned as errors.
func (o *Orchestrator) Run(ctx context.Context, conversationID int64, systemPrompt, message string) (*Reply, error) {
	reply := &Reply{RunID: uuid.NewString()}
	log := o.logger.WithFields(logger.Fields{
		"run_id":          reply.RunID,
		"conversation_id": conversationID,
	})

	prompt := o.SystemPrompt(systemPrompt)

	history, err := o.store.History(ctx, conversationID)
	if err != nil {
		return nil, fmt.Errorf("%w: read history: %w", ErrConversationStore, err)
	}
	if err := o.store.Append(ctx, conversationID, RoleUser, message); err != nil {
		return nil, fmt.Errorf("%w: append user turn: %w", ErrConversationStore, err)
	}

	next := message
	for {
		reply.Attempts++
		log := log.WithField("attempt", reply.Attempts)

		log.WithField("state", StateAwaitingModel).Debug("Calling model")
		text, err := o.model.Generate(ctx, prompt, next, history)
		if err != nil {
			log.WithError(err).Error("Model call failed")
			return nil, fmt.Errorf("%w: %w", ErrBackendUnavailable, err)
		}
		reply.Text = text
		if err := o.store.Append(ctx, conversationID, RoleAssistant, text); err != nil {
			return nil, fmt.Errorf("%w: append model reply: %w", ErrConversationStore, err)
		}

		log.WithField("state", StateParsing).Trace("Parsing model reply")
		calls := o.parser.Extract(text)
		if len(calls) == 0 {
			log.WithField("state", StateDone).Debug("Reply has no tool calls")
			return reply, nil
		}

		log.WithFields(logger.Fields{
			"state": StateExecuting,
			"calls": len(calls),
		}).Info("Executing tool calls")
		results := o.executor.InvokeAll(ctx, calls)
		reply.Results = append(reply.Results, results...)

		log.WithField("state", StateFeedback).Debug("Feeding tool results back")
		if err := o.store.Append(ctx, conversationID, o.opts.FeedbackRole, FormatResults(results)); err != nil {
			return nil, fmt.Errorf("%w: append tool results: %w", ErrConversationStore, err)
		}

		if reply.Attempts >= o.opts.MaxAttempts {
			log.WithField("state", StateExhausted).Warn("Attempt budget exhausted, returning last reply")
			reply.Exhausted = true
			return reply, nil
		}

		if err := o.sleep(ctx, o.opts.Backoff); err != nil {
			return nil, fmt.Errorf("run cancelled: %w", err)
		}

		history, err = o.store.History(ctx, conversationID)
		if err != nil {
			return nil, fmt.Errorf("%w: read history: %w", ErrConversationStore, err)
		}
		next = o.opts.ContinuationPrompt
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
