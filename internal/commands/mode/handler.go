package mode

import (
	"context"
	"strings"

	"github.com/ollagram/ollagram/internal/app/di"
	"github.com/ollagram/ollagram/internal/commands/base"
	"github.com/ollagram/ollagram/internal/service"
	"github.com/ollagram/ollagram/internal/telegram"
)

const (
	CommandName    = "mode"
	CallbackPrefix = "mode:"
)

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

func (c *Command) modeName(m service.Mode) string {
	return c.L("mode_"+string(m), nil)
}

// Respond sets the mode named in args, or reports the current one.
func (c *Command) Respond(ctx context.Context, ownerID int64, args string) (string, error) {
	args = strings.TrimSpace(args)
	if args == "" {
		current, err := c.Teacher.Mode(ctx, ownerID)
		if err != nil {
			return "", err
		}
		ids := make([]string, len(service.Modes))
		for i, m := range service.Modes {
			ids[i] = string(m)
		}
		return c.L("mode_set", map[string]any{"Mode": c.modeName(current)}) +
			"\n" + c.L("mode_choose", nil) + " " + strings.Join(ids, ", "), nil
	}
	m, err := service.ParseMode(args)
	if err != nil {
		return c.L("mode_choose", nil), nil
	}
	if err := c.Teacher.SetMode(ctx, ownerID, m); err != nil {
		return "", err
	}
	return c.L("mode_set", map[string]any{"Mode": c.modeName(m)}), nil
}

func (c *Command) Execute(ctx context.Context, update telegram.Update) error {
	msg := telegram.AdaptMessage(update.Message)
	if strings.TrimSpace(msg.Arguments) != "" {
		text, err := c.Respond(ctx, msg.Chat.ID, msg.Arguments)
		if err != nil {
			text = c.ErrorText(err)
		}
		return c.Reply(ctx, msg.Chat.ID, msg.MessageID, text)
	}

	current, err := c.Teacher.Mode(ctx, msg.Chat.ID)
	if err != nil {
		return err
	}
	out := telegram.NewMessage(msg.Chat.ID, c.L("mode_choose", nil), msg.MessageID)
	keyboard := c.keyboard(current)
	out.ReplyMarkup = &keyboard
	_, err = c.Tg.SendWithRetry(ctx, out, 3)
	return err
}

func (c *Command) keyboard(current service.Mode) telegram.InlineKeyboardMarkup {
	rows := make([][]telegram.InlineKeyboardButton, 0, len(service.Modes))
	for _, m := range service.Modes {
		label := c.modeName(m)
		if m == current {
			label = "✓ " + label
		}
		rows = append(rows, telegram.NewInlineKeyboardRow(
			telegram.NewInlineKeyboardButtonData(label, CallbackPrefix+string(m)),
		))
	}
	return telegram.NewInlineKeyboardMarkup(rows...)
}

func (c *Command) CallbackPrefix() string {
	return CallbackPrefix
}

func (c *Command) HandleCallback(ctx context.Context, cb *telegram.CallbackQuery, _ telegram.Update) error {
	if cb.Message == nil {
		return nil
	}
	m, err := service.ParseMode(strings.TrimPrefix(cb.Data, CallbackPrefix))
	if err != nil {
		return err
	}
	if err := c.Teacher.SetMode(ctx, cb.Message.Chat.ID, m); err != nil {
		return err
	}
	return c.Tg.Request(ctx, telegram.NewEditMessageText(
		cb.Message.Chat.ID,
		cb.Message.MessageID,
		c.L("mode_set", map[string]any{"Mode": c.modeName(m)}),
	))
}
