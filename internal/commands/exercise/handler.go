package exercise

import (
	"context"
	"strings"

	"github.com/ollagram/ollagram/internal/app/di"
	"github.com/ollagram/ollagram/internal/commands/base"
	"github.com/ollagram/ollagram/internal/service"
	"github.com/ollagram/ollagram/internal/telegram"
)

const (
	CommandName    = "exercise"
	CallbackPrefix = "exercise:"
)

// Command offers an exercise keyboard. Picking a kind, from the keyboard or
// as "/exercise <kind>", queues a generation run in the active conversation.
type Command struct {
	*base.Command
}

func New(di *di.Container) *Command {
	cmd := &Command{}
	cmd.Command = base.NewCommand(cmd, di)
	return cmd
}

func (c *Command) Name() string {
	return CommandName
}

func (c *Command) Aliases() []string {
	return []string{"ex"}
}

func kindOf(update telegram.Update) string {
	if update.CallbackQuery != nil {
		return strings.TrimPrefix(update.CallbackQuery.Data, CallbackPrefix)
	}
	if update.Message != nil {
		return strings.TrimSpace(update.Message.CommandArguments())
	}
	return ""
}

func (c *Command) Handle(ctx context.Context, update telegram.Update) error {
	if kindOf(update) != "" {
		return c.Queue.Add(ctx, c.Name(), base.ChatID(update), update)
	}
	return c.Execute(ctx, update)
}

func (c *Command) Execute(ctx context.Context, update telegram.Update) error {
	chatID := base.ChatID(update)
	replyTo := 0
	switch {
	case update.Message != nil:
		replyTo = update.Message.MessageID
	case update.CallbackQuery != nil && update.CallbackQuery.Message != nil:
		replyTo = update.CallbackQuery.Message.MessageID
	}

	raw := kindOf(update)
	if raw == "" {
		return c.sendKeyboard(ctx, chatID, replyTo)
	}
	kind, err := service.ParseExerciseKind(raw)
	if err != nil {
		if sendErr := c.sendKeyboard(ctx, chatID, replyTo); sendErr != nil {
			return sendErr
		}
		return nil
	}

	system, message, err := c.Teacher.ExercisePrompt(kind)
	if err != nil {
		return err
	}
	return c.RunAgent(ctx, chatID, replyTo, system, message)
}

func (c *Command) sendKeyboard(ctx context.Context, chatID int64, replyTo int) error {
	rows := make([][]telegram.InlineKeyboardButton, 0, len(service.ExerciseKinds))
	for _, k := range service.ExerciseKinds {
		rows = append(rows, telegram.NewInlineKeyboardRow(
			telegram.NewInlineKeyboardButtonData(c.L("exercise_"+string(k), nil), CallbackPrefix+string(k)),
		))
	}
	keyboard := telegram.NewInlineKeyboardMarkup(rows...)
	msg := telegram.NewMessage(chatID, c.L("exercise_choose", nil), replyTo)
	msg.ReplyMarkup = &keyboard
	_, err := c.Tg.SendWithRetry(ctx, msg, 3)
	return err
}

func (c *Command) CallbackPrefix() string {
	return CallbackPrefix
}

// HandleCallback replaces the keyboard with a progress note and queues the run.
func (c *Command) HandleCallback(ctx context.Context, cb *telegram.CallbackQuery, update telegram.Update) error {
	if cb.Message == nil {
		return nil
	}
	if _, err := service.ParseExerciseKind(strings.TrimPrefix(cb.Data, CallbackPrefix)); err != nil {
		return err
	}
	if err := c.Tg.Request(ctx, telegram.NewEditMessageText(
		cb.Message.Chat.ID, cb.Message.MessageID, c.L("exercise_generating", nil),
	)); err != nil {
		c.Logger.WithError(err).Warn("Failed to edit exercise keyboard")
	}
	return c.Handle(ctx, update)
}
