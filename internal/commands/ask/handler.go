package ask

import (
	"context"
	"strconv"
	"strings"

	"github.com/ollagram/ollagram/internal/app/di"
	"github.com/ollagram/ollagram/internal/commands/base"
	"github.com/ollagram/ollagram/internal/logger"
	"github.com/ollagram/ollagram/internal/service"
	"github.com/ollagram/ollagram/internal/telegram"
)

const (
	CommandName       = "ask"
	CancelCommandName = "cancel"
)

// Command answers plain text and /ask through the agent in the chat's active
// conversation, shaped by the chat's teaching mode.
type Command struct {
	*base.Command
}

func New(di *di.Container) *Command {
	cmd := &Command{}
	cmd.Command = base.NewQueuedCommand(cmd, di)
	return cmd
}

func (c *Command) Name() string {
	return CommandName
}

func (c *Command) Aliases() []string {
	return []string{"a"}
}

func (c *Command) Execute(ctx context.Context, update telegram.Update) error {
	msg := telegram.AdaptMessage(update.Message)
	if msg == nil {
		return nil
	}
	text := msg.Text
	if msg.IsCommand() {
		text = msg.Arguments
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return c.Reply(ctx, msg.Chat.ID, msg.MessageID, c.L("ask_usage", nil))
	}

	mode, err := c.Teacher.Mode(ctx, msg.Chat.ID)
	if err != nil {
		c.Logger.WithError(err).WithField("chat_id", msg.Chat.ID).Warn("Failed to read mode, using chat")
		mode = service.ModeChat
	}
	system, message := c.Teacher.Prompt(mode, text)

	c.Logger.WithFields(logger.Fields{
		"chat_id":  msg.Chat.ID,
		"user_id":  msg.From.ID,
		"mode":     mode,
		"text_len": len(text),
	}).Debug("Asking model")

	return c.RunAgent(ctx, msg.Chat.ID, msg.MessageID, system, message)
}

// Cancel stops replies in progress, either all of a chat's (/cancel) or one
// from its placeholder button.
type Cancel struct {
	*base.Command
}

func NewCancel(di *di.Container) *Cancel {
	cmd := &Cancel{}
	cmd.Command = base.NewCommand(cmd, di)
	return cmd
}

func (c *Cancel) Name() string {
	return CancelCommandName
}

func (c *Cancel) Aliases() []string {
	return []string{"stop"}
}

func (c *Cancel) Execute(ctx context.Context, update telegram.Update) error {
	msg := telegram.AdaptMessage(update.Message)
	text := c.L("cancel_none", nil)
	if n := c.Cancels.CancelChat(msg.Chat.ID); n > 0 {
		c.Logger.WithFields(logger.Fields{
			"chat_id":   msg.Chat.ID,
			"cancelled": n,
		}).Info("Replies cancelled")
		text = c.L("cancelled", nil)
	}
	return c.Reply(ctx, msg.Chat.ID, msg.MessageID, text)
}

func (c *Cancel) CallbackPrefix() string {
	return base.CancelCallbackPrefix
}

func (c *Cancel) HandleCallback(ctx context.Context, cb *telegram.CallbackQuery, _ telegram.Update) error {
	if cb.Message == nil {
		return nil
	}
	messageID, err := strconv.Atoi(strings.TrimPrefix(cb.Data, base.CancelCallbackPrefix))
	if err != nil {
		c.Logger.WithError(err).WithField("data", cb.Data).Warn("Malformed cancel callback")
		return nil
	}
	if !c.Cancels.Cancel(cb.Message.Chat.ID, messageID) {
		c.Logger.WithFields(logger.Fields{
			"chat_id":    cb.Message.Chat.ID,
			"message_id": messageID,
		}).Debug("Nothing to cancel")
	}
	return nil
}
