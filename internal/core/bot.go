package core

import (
	"context"
	"errors"
	"slices"
	"strings"
	"sync"

	"github.com/ollagram/ollagram/internal/commands"
	"github.com/ollagram/ollagram/internal/commands/ask"
	"github.com/ollagram/ollagram/internal/config"
	"github.com/ollagram/ollagram/internal/database"
	"github.com/ollagram/ollagram/internal/logger"
	"github.com/ollagram/ollagram/internal/queue"
	"github.com/ollagram/ollagram/internal/service"
	"github.com/ollagram/ollagram/internal/telegram"
)

type Bot struct {
	commands  map[string]commands.Command
	callbacks []commands.CallbackHandler
	logger    logger.Logger
	queue     *queue.Queue
	db        database.Database
	tg        telegram.Client
	cfg       config.TelegramConfig
	localizer *service.Localizer
	wg        sync.WaitGroup
}

func NewBot(
	tg telegram.Client,
	queue *queue.Queue,
	logger logger.Logger,
	db database.Database,
	cfg config.TelegramConfig,
	localizer *service.Localizer,
) *Bot {
	return &Bot{
		commands:  make(map[string]commands.Command),
		tg:        tg,
		queue:     queue,
		cfg:       cfg,
		logger:    logger,
		db:        db,
		localizer: localizer,
	}
}

// Start long-polls Telegram until ctx is done, then waits for in-flight
// updates and queue workers.
func (b *Bot) Start(ctx context.Context) error {
	if err := b.queue.Start(ctx); err != nil {
		return err
	}

	updates := b.tg.GetUpdatesChan(telegram.UpdateConfig{Timeout: b.cfg.Timeout})
	b.logger.WithField("username", b.tg.Self().UserName).Info("Bot started")

	defer func() {
		b.tg.StopReceivingUpdates()
		b.wg.Wait()
		b.queue.Wait()
		b.logger.Info("Bot stopped")
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			b.wg.Add(1)
			go func() {
				defer b.wg.Done()
				b.HandleUpdate(ctx, update)
			}()
		}
	}
}

// HandleUpdate routes one update to a callback handler, a command, or the
// ask command for plain text.
func (b *Bot) HandleUpdate(ctx context.Context, update telegram.Update) {
	b.logger.WithField("update_id", update.UpdateID).Trace("Received update")

	if cb := telegram.AdaptCallback(update.CallbackQuery); cb != nil {
		b.handleCallback(ctx, cb, update)
		return
	}

	msg := telegram.AdaptMessage(update.Message)
	if msg == nil || msg.From.ID == 0 {
		return
	}
	b.saveUser(ctx, msg.From)

	if !b.cfg.IsAllowed(msg.From.ID) {
		b.logger.WithFields(logger.Fields{
			"user_id":  msg.From.ID,
			"username": msg.From.UserName,
			"chat_id":  msg.Chat.ID,
		}).Warn("Unauthorized access attempt")
		b.send(ctx, msg.Chat.ID, msg.MessageID, b.localizer.Localize("access_denied", nil))
		return
	}

	if msg.IsCommand() {
		if !b.addressedToUs(update.Message.CommandWithAt()) {
			return
		}
		cmd := b.findCommand(msg.Command)
		if cmd == nil {
			b.send(ctx, msg.Chat.ID, msg.MessageID, b.localizer.Localize("unknown_command", nil))
			return
		}
		b.logger.WithFields(logger.Fields{
			"command":  cmd.Name(),
			"user_id":  msg.From.ID,
			"username": msg.From.UserName,
			"args":     msg.Arguments,
		}).Info("Handling command")
		b.run(ctx, cmd, update, msg.Chat.ID, msg.MessageID)
		return
	}

	if strings.TrimSpace(msg.Text) == "" || !b.forUs(msg) {
		return
	}
	if self := b.tg.Self().UserName; self != "" {
		update.Message.Text = strings.TrimSpace(strings.ReplaceAll(update.Message.Text, "@"+self, ""))
	}
	if cmd, ok := b.commands[ask.CommandName]; ok {
		b.run(ctx, cmd, update, msg.Chat.ID, msg.MessageID)
	}
}

func (b *Bot) run(ctx context.Context, cmd commands.Command, update telegram.Update, chatID int64, messageID int) {
	if err := cmd.Handle(ctx, update); err != nil && !errors.Is(err, context.Canceled) {
		b.logger.WithError(err).WithField("command", cmd.Name()).Error("Failed to handle command")
		b.send(ctx, chatID, messageID, b.localizer.Localize("error_generic", nil))
	}
}

func (b *Bot) handleCallback(ctx context.Context, cb *telegram.CallbackQuery, update telegram.Update) {
	if err := b.tg.Request(ctx, telegram.NewCallback(cb.ID, "")); err != nil {
		b.logger.WithError(err).Error("Failed to answer callback query")
	}
	if !b.cfg.IsAllowed(cb.From.ID) {
		b.logger.WithField("user_id", cb.From.ID).Warn("Unauthorized callback")
		return
	}

	for _, h := range b.callbacks {
		if !strings.HasPrefix(cb.Data, h.CallbackPrefix()) {
			continue
		}
		if err := h.HandleCallback(ctx, cb, update); err != nil {
			b.logger.WithError(err).WithField("data", cb.Data).Error("Failed to handle callback")
			if cb.Message != nil {
				b.send(ctx, cb.Message.Chat.ID, cb.Message.MessageID, b.localizer.Localize("error_generic", nil))
			}
		}
		return
	}
	b.logger.WithField("data", cb.Data).Warn("Unhandled callback")
}

// addressedToUs rejects "/cmd@other_bot" in group chats.
func (b *Bot) addressedToUs(commandWithAt string) bool {
	_, target, ok := strings.Cut(commandWithAt, "@")
	return !ok || strings.EqualFold(target, b.tg.Self().UserName)
}

// forUs reports whether plain text should be answered: always in private
// chats, otherwise only on a mention or a reply to the bot.
func (b *Bot) forUs(msg *telegram.Message) bool {
	if msg.Chat.Type == "" || msg.Chat.Type == "private" {
		return true
	}
	self := b.tg.Self()
	if msg.ReplyTo != nil && msg.ReplyTo.From.ID == self.ID {
		return true
	}
	return self.UserName != "" && strings.Contains(strings.ToLower(msg.Text), "@"+strings.ToLower(self.UserName))
}

func (b *Bot) findCommand(name string) commands.Command {
	name = strings.ToLower(name)
	if cmd, ok := b.commands[name]; ok {
		return cmd
	}
	for _, cmd := range b.commands {
		if slices.Contains(cmd.Aliases(), name) {
			return cmd
		}
	}
	return nil
}

func (b *Bot) saveUser(ctx context.Context, from telegram.User) {
	user := database.User{
		ID:        from.ID,
		FirstName: from.FirstName,
		Username:  from.UserName,
		Language:  from.LanguageCode,
	}
	stored, err := b.db.GetUser(ctx, from.ID)
	switch {
	case errors.Is(err, database.ErrNotFound):
		b.logger.WithField("user_id", user.ID).Info("Store new user")
	case err != nil:
		b.logger.WithError(err).Error("Error get user by id")
		return
	case stored.FirstName == user.FirstName && stored.Username == user.Username && stored.Language == user.Language:
		return
	}
	if err := b.db.SaveUser(ctx, user); err != nil {
		b.logger.WithError(err).WithField("user_id", user.ID).Error("Error save user")
	}
}

func (b *Bot) send(ctx context.Context, chatID int64, replyTo int, text string) {
	if _, err := b.tg.Send(ctx, telegram.NewMessage(chatID, text, replyTo)); err != nil {
		b.logger.WithError(err).Error("Failed to send message")
	}
}

// RegisterCommand adds cmd to the router. Commands that also handle inline
// keyboard callbacks are registered for their prefix.
func (b *Bot) RegisterCommand(cmd commands.Command) {
	if cmd == nil {
		b.logger.Error("Attempting to register nil command")
		return
	}

	name := cmd.Name()
	if name == "" {
		b.logger.Error("Attempting to register command with empty name")
		return
	}

	b.logger.WithFields(logger.Fields{
		"command": name,
	}).Debug("Registering command")

	b.commands[name] = cmd
	if h, ok := cmd.(commands.CallbackHandler); ok {
		b.callbacks = append(b.callbacks, h)
	}
}

func (b *Bot) GetCommands() map[string]commands.Command {
	return b.commands
}
