package app

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/ollagram/ollagram/internal/agent"
	"github.com/ollagram/ollagram/internal/ai"
	"github.com/ollagram/ollagram/internal/app/di"
	"github.com/ollagram/ollagram/internal/commands"
	"github.com/ollagram/ollagram/internal/logger"
	"github.com/ollagram/ollagram/internal/service"
)

// ConsoleOwnerID is the owner of conversations created from the terminal.
const ConsoleOwnerID int64 = 0

// Console is a terminal chat over the same conversations and agent as the bot.
type Console struct {
	di         *di.Container
	in         io.Reader
	out        io.Writer
	ownerID    int64
	responders map[string]commands.TextResponder
	stream     bool
	logger     logger.Logger
}

func NewConsole(container *di.Container, in io.Reader, out io.Writer) *Console {
	responders := make(map[string]commands.TextResponder)
	for _, r := range TextCommands(container) {
		responders[r.Name()] = r
	}
	responders["?"] = responders["help"]

	return &Console{
		di:         container,
		in:         in,
		out:        out,
		ownerID:    ConsoleOwnerID,
		responders: responders,
		// Streaming bypasses tool calls, so it is only used with no tools.
		stream: container.Cfg.Ollama().Stream && container.Tools.Len() == 0,
		logger: container.Logger.WithField("component", "console"),
	}
}

// Run reads lines until EOF, /exit or ctx is done.
func (c *Console) Run(ctx context.Context) error {
	conv, err := c.di.ChatService.Active(ctx, c.ownerID)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.out, "Model: %s. Chat (ID-%d): %q. Type /help for commands, /exit to quit.\n",
		c.di.Model.Model(), conv.ID, conv.Title)

	scanner := bufio.NewScanner(c.in)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for {
		fmt.Fprint(c.out, "> ")
		if !scanner.Scan() {
			fmt.Fprintln(c.out)
			return scanner.Err()
		}
		if ctx.Err() != nil {
			return nil
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if line == "/exit" || line == "/quit" {
			return nil
		}
		if err := c.Handle(ctx, line); err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}
			fmt.Fprintf(c.out, "error: %v\n", err)
		}
	}
}

// Handle processes one input line.
func (c *Console) Handle(ctx context.Context, line string) error {
	if name, ok := strings.CutPrefix(line, "/"); ok {
		name, args, _ := strings.Cut(name, " ")
		if name == "models" {
			return c.listModels(ctx)
		}
		r, ok := c.responders[strings.ToLower(name)]
		if !ok {
			fmt.Fprintln(c.out, c.di.Localizer.Localize("unknown_command", nil))
			return nil
		}
		text, err := r.Respond(ctx, c.ownerID, args)
		if err != nil {
			return err
		}
		fmt.Fprintln(c.out, text)
		return nil
	}
	return c.ask(ctx, line)
}

func (c *Console) ask(ctx context.Context, text string) error {
	conv, err := c.di.ChatService.Active(ctx, c.ownerID)
	if err != nil {
		return err
	}
	mode, err := c.di.TeacherService.Mode(ctx, c.ownerID)
	if err != nil {
		mode = service.ModeChat
	}
	system, message := c.di.TeacherService.Prompt(mode, text)

	if c.stream {
		return c.streamReply(ctx, conv.ID, system, message)
	}

	reply, err := c.di.Orchestrator.Run(ctx, conv.ID, system, message)
	if err != nil {
		return err
	}
	for _, r := range reply.Results {
		fmt.Fprintf(c.out, "[tool %s] %s\n", r.Tool, status(r))
	}
	fmt.Fprintln(c.out, reply.Text)
	return nil
}

// streamReply prints the answer as it arrives and stores both turns.
func (c *Console) streamReply(ctx context.Context, conversationID int64, system, message string) error {
	history, err := c.di.History.History(ctx, conversationID)
	if err != nil {
		return fmt.Errorf("%w: %w", agent.ErrConversationStore, err)
	}
	if err := c.di.History.Append(ctx, conversationID, agent.RoleUser, message); err != nil {
		return fmt.Errorf("%w: %w", agent.ErrConversationStore, err)
	}

	ch, err := c.di.Model.GenerateStream(ctx, system, message, history)
	if err != nil {
		return fmt.Errorf("%w: %w", agent.ErrBackendUnavailable, err)
	}
	text, err := ai.CollectStream(ch, func(chunk string) {
		fmt.Fprint(c.out, chunk)
	})
	fmt.Fprintln(c.out)
	if err != nil {
		return fmt.Errorf("%w: %w", agent.ErrBackendUnavailable, err)
	}
	if err := c.di.History.Append(ctx, conversationID, agent.RoleAssistant, text); err != nil {
		return fmt.Errorf("%w: %w", agent.ErrConversationStore, err)
	}
	return nil
}

func (c *Console) listModels(ctx context.Context) error {
	models, err := c.di.Model.ListModels(ctx)
	if err != nil {
		return err
	}
	current := c.di.Model.Model()
	for _, m := range models {
		mark := " "
		if m.Name == current {
			mark = "*"
		}
		fmt.Fprintf(c.out, "%s %s\n", mark, m.Name)
	}
	return nil
}

func status(r agent.ToolResult) string {
	if r.OK() {
		return "ok"
	}
	return r.Err().Error()
}
