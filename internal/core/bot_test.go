package core

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	tgbotapi "github.com/OvyFlash/telegram-bot-api"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ollagram/ollagram/internal/commands/ask"
	"github.com/ollagram/ollagram/internal/config"
	"github.com/ollagram/ollagram/internal/database"
	"github.com/ollagram/ollagram/internal/logger"
	"github.com/ollagram/ollagram/internal/queue"
	"github.com/ollagram/ollagram/internal/service"
	"github.com/ollagram/ollagram/internal/telegram"
)

type fakeCommand struct {
	name    string
	aliases []string
	err     error

	mu      sync.Mutex
	handled []telegram.Update
}

func (c *fakeCommand) Name() string      { return c.name }
func (c *fakeCommand) Aliases() []string { return c.aliases }

func (c *fakeCommand) Handle(_ context.Context, update telegram.Update) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handled = append(c.handled, update)
	return c.err
}

func (c *fakeCommand) Execute(context.Context, telegram.Update) error { return nil }

func (c *fakeCommand) calls() []telegram.Update {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]telegram.Update(nil), c.handled...)
}

type fakeCallbackCommand struct {
	fakeCommand
	prefix string
	data   []string
}

func (c *fakeCallbackCommand) CallbackPrefix() string { return c.prefix }

func (c *fakeCallbackCommand) HandleCallback(_ context.Context, cb *telegram.CallbackQuery, _ telegram.Update) error {
	c.data = append(c.data, cb.Data)
	return c.err
}

type fixture struct {
	bot *Bot
	tg  *telegram.TestClient
	db  database.Database
	log *logger.TestLogger
}

func newFixture(t *testing.T, allowed ...int64) *fixture {
	t.Helper()
	db, err := database.NewSQLiteDB(filepath.Join(t.TempDir(), "bot.db")+"?_pragma=foreign_keys(1)", logger.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	localizer, err := service.NewLocalizer("en")
	require.NoError(t, err)

	tg := telegram.NewTestClient()
	log := logger.NewTestLogger()
	q := queue.NewQueue(db, 10*time.Millisecond, logger.Nop())
	bot := NewBot(tg, q, log, db, config.TelegramConfig{AllowedUsers: allowed, Timeout: 1}, localizer)
	return &fixture{bot: bot, tg: tg, db: db, log: log}
}

func message(chatID, userID int64, chatType, text string) telegram.Update {
	msg := &tgbotapi.Message{
		MessageID: 10,
		From:      &tgbotapi.User{ID: userID, FirstName: "Ann", UserName: "ann", LanguageCode: "en"},
		Chat:      tgbotapi.Chat{ID: chatID, Type: chatType},
		Text:      text,
	}
	if len(text) > 0 && text[0] == '/' {
		end := len(text)
		for i, r := range text {
			if r == ' ' {
				end = i
				break
			}
		}
		msg.Entities = []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: end}}
	}
	return telegram.Update{UpdateID: 1, Message: msg}
}

func TestBot_RoutesCommands(t *testing.T) {
	f := newFixture(t)
	cmd := &fakeCommand{name: "show", aliases: []string{"chats"}}
	f.bot.RegisterCommand(cmd)
	ctx := context.Background()

	f.bot.HandleUpdate(ctx, message(1, 5, "private", "/show"))
	f.bot.HandleUpdate(ctx, message(1, 5, "private", "/chats"))
	f.bot.HandleUpdate(ctx, message(1, 5, "group", "/show@ollagram_bot"))
	f.bot.HandleUpdate(ctx, message(1, 5, "group", "/show@other_bot"))

	assert.Len(t, cmd.calls(), 3)
	assert.True(t, f.log.HasEntry("info", "Handling command"))
}

func TestBot_UnknownCommand(t *testing.T) {
	f := newFixture(t)
	f.bot.HandleUpdate(context.Background(), message(1, 5, "private", "/nope"))
	assert.Equal(t, []string{"Unknown command. See /help."}, f.tg.Texts())
}

func TestBot_PlainTextGoesToAsk(t *testing.T) {
	f := newFixture(t)
	askCmd := &fakeCommand{name: ask.CommandName}
	f.bot.RegisterCommand(askCmd)
	ctx := context.Background()

	f.bot.HandleUpdate(ctx, message(1, 5, "private", "hello"))
	f.bot.HandleUpdate(ctx, message(-100, 5, "supergroup", "chatting with friends"))
	f.bot.HandleUpdate(ctx, message(-100, 5, "supergroup", "@ollagram_bot what's the weather?"))

	calls := askCmd.calls()
	require.Len(t, calls, 2)
	assert.Equal(t, "hello", calls[0].Message.Text)
	assert.Equal(t, "what's the weather?", calls[1].Message.Text)
}

func TestBot_ReplyToBotInGroup(t *testing.T) {
	f := newFixture(t)
	askCmd := &fakeCommand{name: ask.CommandName}
	f.bot.RegisterCommand(askCmd)

	update := message(-100, 5, "group", "and tomorrow?")
	update.Message.ReplyToMessage = &tgbotapi.Message{MessageID: 9, From: &tgbotapi.User{ID: 777}}
	f.bot.HandleUpdate(context.Background(), update)

	assert.Len(t, askCmd.calls(), 1)
}

func TestBot_AccessDenied(t *testing.T) {
	f := newFixture(t, 42)
	cmd := &fakeCommand{name: "show"}
	f.bot.RegisterCommand(cmd)

	f.bot.HandleUpdate(context.Background(), message(1, 5, "private", "/show"))

	assert.Empty(t, cmd.calls())
	assert.Equal(t, []string{"Sorry, you are not allowed to use this bot."}, f.tg.Texts())
	assert.True(t, f.log.HasEntry("warn", "Unauthorized access attempt"))
}

func TestBot_SavesUser(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.bot.HandleUpdate(ctx, message(1, 5, "private", "hi"))

	u, err := f.db.GetUser(ctx, 5)
	require.NoError(t, err)
	assert.Equal(t, "Ann", u.FirstName)
	assert.Equal(t, "ann", u.Username)
	assert.Equal(t, "en", u.Language)
	assert.True(t, f.log.HasEntry("info", "Store new user"))

	f.log.Reset()
	f.bot.HandleUpdate(ctx, message(1, 5, "private", "hi again"))
	assert.False(t, f.log.HasEntry("info", "Store new user"))
}

func TestBot_CommandErrorIsReported(t *testing.T) {
	f := newFixture(t)
	f.bot.RegisterCommand(&fakeCommand{name: "show", err: errors.New("boom")})

	f.bot.HandleUpdate(context.Background(), message(1, 5, "private", "/show"))

	assert.Equal(t, []string{"Something went wrong, please try again later."}, f.tg.Texts())
	assert.True(t, f.log.HasEntry("error", "Failed to handle command"))
}

func TestBot_Callbacks(t *testing.T) {
	f := newFixture(t)
	cmd := &fakeCallbackCommand{fakeCommand: fakeCommand{name: "mode"}, prefix: "mode:"}
	f.bot.RegisterCommand(cmd)

	update := telegram.Update{CallbackQuery: &tgbotapi.CallbackQuery{
		ID:      "cb-1",
		From:    &tgbotapi.User{ID: 5},
		Message: &tgbotapi.Message{MessageID: 3, Chat: tgbotapi.Chat{ID: 1}},
		Data:    "mode:correction",
	}}
	f.bot.HandleUpdate(context.Background(), update)

	assert.Equal(t, []string{"mode:correction"}, cmd.data)
	assert.Equal(t, []string{"cb-1"}, f.tg.Callbacks())

	update.CallbackQuery.ID = "cb-2"
	update.CallbackQuery.Data = "other:1"
	f.bot.HandleUpdate(context.Background(), update)
	assert.True(t, f.log.HasEntry("warn", "Unhandled callback"))
	assert.Equal(t, []string{"cb-1", "cb-2"}, f.tg.Callbacks())
}

func TestBot_StartStopsOnCancel(t *testing.T) {
	f := newFixture(t)
	cmd := &fakeCommand{name: "show"}
	f.bot.RegisterCommand(cmd)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.bot.Start(ctx) }()

	f.tg.Push(message(1, 5, "private", "/show"))
	require.Eventually(t, func() bool { return len(cmd.calls()) == 1 }, time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("bot did not stop")
	}
	assert.True(t, f.log.HasEntry("info", "Bot stopped"))
}
