package commands

import (
	"context"

	"github.com/ollagram/ollagram/internal/telegram"
)

type Command interface {
	Name() string
	Aliases() []string
	Handle(ctx context.Context, update telegram.Update) error
	Execute(ctx context.Context, update telegram.Update) error
}

// CallbackHandler receives inline keyboard presses whose data starts with
// CallbackPrefix.
type CallbackHandler interface {
	CallbackPrefix() string
	HandleCallback(ctx context.Context, cb *telegram.CallbackQuery, update telegram.Update) error
}

// TextResponder answers without Telegram. The console uses it.
type TextResponder interface {
	Name() string
	Respond(ctx context.Context, ownerID int64, args string) (string, error)
}
