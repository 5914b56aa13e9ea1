package base

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/ollagram/ollagram/internal/agent"
	"github.com/ollagram/ollagram/internal/app/di"
	"github.com/ollagram/ollagram/internal/commands"
	"github.com/ollagram/ollagram/internal/config"
	"github.com/ollagram/ollagram/internal/logger"
	"github.com/ollagram/ollagram/internal/queue"
	"github.com/ollagram/ollagram/internal/service"
	"github.com/ollagram/ollagram/internal/service/cancel"
	"github.com/ollagram/ollagram/internal/telegram"
)

const (
	CancelCallbackPrefix = "cancel:"
	sendRetries          = 3
)

type Command struct {
	command      commands.Command
	queued       bool
	Tg           telegram.Client
	Logger       logger.Logger
	Cfg          *config.Config
	Queue        *queue.Queue
	ChatService  *service.ChatService
	Teacher      *service.TeacherService
	Localizer    *service.Localizer
	Orchestrator *agent.Orchestrator
	Cancels      *cancel.Manager
	ModelName    string
}

func NewCommand(cmd commands.Command, di *di.Container) *Command {
	c := &Command{
		command:      cmd,
		Tg:           di.BotClient,
		Logger:       di.Logger,
		Cfg:          di.Cfg,
		Queue:        di.Queue,
		ChatService:  di.ChatService,
		Teacher:      di.TeacherService,
		Localizer:    di.Localizer,
		Orchestrator: di.Orchestrator,
		Cancels:      di.Cancels,
	}
	if di.Model != nil {
		c.ModelName = di.Model.Model()
	}
	return c
}

// NewQueuedCommand is NewCommand for commands whose Handle goes through the
// task queue instead of running Execute inline.
func NewQueuedCommand(cmd commands.Command, di *di.Container) *Command {
	c := NewCommand(cmd, di)
	c.queued = true
	return c
}

func (c *Command) Name() string {
	return ""
}

func (c *Command) Aliases() []string {
	return []string{}
}

func (c *Command) Handle(ctx context.Context, update telegram.Update) error {
	if c.queued {
		return c.Queue.Add(ctx, c.command.Name(), ChatID(update), update)
	}
	return c.command.Execute(ctx, update)
}

func (c *Command) QueueOptions() config.QueueOptions {
	return c.Cfg.Queue().Ask
}

func (c *Command) Execute(ctx context.Context, update telegram.Update) error {
	return nil
}

func (c *Command) L(messageID string, data map[string]any) string {
	return c.Localizer.Localize(messageID, data)
}

// Reply sends text split into Telegram-sized parts, the first one as a
// reply to replyTo.
func (c *Command) Reply(ctx context.Context, chatID int64, replyTo int, text string) error {
	for i, part := range telegram.SplitText(text, telegram.MaxMessageLength) {
		if i > 0 {
			replyTo = 0
		}
		if _, err := c.Tg.SendWithRetry(ctx, telegram.NewMessage(chatID, part, replyTo), sendRetries); err != nil {
			return err
		}
	}
	return nil
}

// ErrorText maps an error to something the user can read.
func (c *Command) ErrorText(err error) string {
	switch {
	case errors.Is(err, agent.ErrBackendUnavailable):
		return c.L("error_backend", nil)
	case errors.Is(err, agent.ErrConversationStore):
		return c.L("error_storage", nil)
	case errors.Is(err, service.ErrConversationNotFound):
		return c.L("chat_not_found", nil)
	default:
		return c.L("error_generic", nil)
	}
}

// RunAgent answers message in the active conversation of chatID. A placeholder
// with a cancel button is shown while the model works and is then replaced
// with the answer.
func (c *Command) RunAgent(ctx context.Context, chatID int64, replyTo int, systemPrompt, message string) error {
	log := c.Logger.WithFields(logger.Fields{
		"command": c.command.Name(),
		"chat_id": chatID,
	})

	conv, err := c.ChatService.Active(ctx, chatID)
	if err != nil {
		log.WithError(err).Error("Failed to resolve active conversation")
		if sendErr := c.Reply(ctx, chatID, replyTo, c.L("error_storage", nil)); sendErr != nil {
			log.WithError(sendErr).Error("Failed to send error message")
		}
		return fmt.Errorf("%w: %w", queue.ErrPermanent, err)
	}

	keyboard := telegram.NewInlineKeyboardMarkup(telegram.NewInlineKeyboardRow(
		telegram.NewInlineKeyboardButtonData(c.L("cancel_button", nil), CancelCallbackPrefix+strconv.Itoa(replyTo)),
	))
	placeholder := telegram.NewMessage(chatID, c.L("thinking", nil), replyTo)
	placeholder.ReplyMarkup = &keyboard
	sent, err := c.Tg.SendWithRetry(ctx, placeholder, sendRetries)
	if err != nil {
		return err
	}

	runCtx, release := c.Cancels.Register(ctx, chatID, replyTo, c.command.Name())
	defer release()

	if err := c.Tg.SendChatAction(runCtx, chatID, telegram.ActionTyping); err != nil {
		log.WithError(err).Debug("Failed to send typing action")
	}

	reply, err := c.Orchestrator.Run(runCtx, conv.ID, systemPrompt, message)
	switch {
	case ctx.Err() != nil:
		// Shutdown or queue timeout: the task is retried or failed by the queue.
		return ctx.Err()
	case runCtx.Err() != nil:
		log.Info("Reply cancelled by user")
		c.edit(ctx, chatID, sent.MessageID, c.L("cancelled", nil))
		return nil
	case err != nil:
		log.WithError(err).Error("Agent run failed")
		c.edit(ctx, chatID, sent.MessageID, c.ErrorText(err))
		return fmt.Errorf("%w: %w", queue.ErrPermanent, err)
	}

	log.WithFields(logger.Fields{
		"run_id":    reply.RunID,
		"attempts":  reply.Attempts,
		"tools":     len(reply.Results),
		"exhausted": reply.Exhausted,
	}).Info("Reply ready")

	text := strings.TrimSpace(reply.Text)
	if text == "" {
		text = c.L("empty_reply", nil)
	}
	parts := telegram.SplitText(text, telegram.MaxMessageLength)
	c.edit(ctx, chatID, sent.MessageID, parts[0])
	for _, part := range parts[1:] {
		if _, err := c.Tg.SendWithRetry(ctx, telegram.NewMessage(chatID, part, 0), sendRetries); err != nil {
			return err
		}
	}
	return nil
}

func (c *Command) edit(ctx context.Context, chatID int64, messageID int, text string) {
	if err := c.Tg.Request(ctx, telegram.NewEditMessageText(chatID, messageID, text)); err != nil {
		c.Logger.WithError(err).WithField("chat_id", chatID).Error("Failed to edit message")
	}
}

// ChatID returns the chat an update belongs to, or 0.
func ChatID(update telegram.Update) int64 {
	switch {
	case update.Message != nil:
		return update.Message.Chat.ID
	case update.CallbackQuery != nil && update.CallbackQuery.Message != nil:
		return update.CallbackQuery.Message.Chat.ID
	}
	return 0
}
