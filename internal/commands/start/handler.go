package start

import (
	"context"

	"github.com/ollagram/ollagram/internal/app/di"
	"github.com/ollagram/ollagram/internal/commands/base"
	"github.com/ollagram/ollagram/internal/telegram"
)

const (
	CommandName     = "start"
	HelpCommandName = "help"
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

func (c *Command) Execute(ctx context.Context, update telegram.Update) error {
	msg := telegram.AdaptMessage(update.Message)
	name := msg.From.FirstName
	if name == "" {
		name = msg.From.UserName
	}
	return c.Reply(ctx, msg.Chat.ID, msg.MessageID, c.L("start", map[string]any{
		"Name":  name,
		"Model": c.ModelName,
	}))
}

type Help struct {
	*base.Command
}

func NewHelp(di *di.Container) *Help {
	cmd := &Help{}
	cmd.Command = base.NewCommand(cmd, di)
	return cmd
}

func (c *Help) Name() string {
	return HelpCommandName
}

func (c *Help) Aliases() []string {
	return []string{"?"}
}

func (c *Help) Respond(_ context.Context, _ int64, _ string) (string, error) {
	return c.L("help", nil), nil
}

func (c *Help) Execute(ctx context.Context, update telegram.Update) error {
	msg := telegram.AdaptMessage(update.Message)
	text, _ := c.Respond(ctx, msg.Chat.ID, msg.Arguments)
	return c.Reply(ctx, msg.Chat.ID, msg.MessageID, text)
}
