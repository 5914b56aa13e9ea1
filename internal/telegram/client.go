package telegram

import (
	"context"
	"errors"
	"regexp"
	"strconv"
	"time"

	tgbotapi "github.com/OvyFlash/telegram-bot-api"
	"golang.org/x/time/rate"

	"github.com/ollagram/ollagram/internal/logger"
)

// DefaultSendRate stays under Telegram's global limit of about 30 messages per second.
const DefaultSendRate = 25

var retryAfterRe = regexp.MustCompile(`retry after (\d+)`)

type BotClient struct {
	bot     *tgbotapi.BotAPI
	limiter *rate.Limiter
	logger  logger.Logger
	sleep   func(ctx context.Context, d time.Duration) error
}

var _ Client = (*BotClient)(nil)

// NewBotClient paces every outgoing request to sendRate per second.
func NewBotClient(bot *tgbotapi.BotAPI, sendRate float64, log logger.Logger) *BotClient {
	if sendRate <= 0 {
		sendRate = DefaultSendRate
	}
	return &BotClient{
		bot:     bot,
		limiter: rate.NewLimiter(rate.Limit(sendRate), 1),
		logger:  log,
		sleep:   sleepContext,
	}
}

func (c *BotClient) Send(ctx context.Context, msg MessageConfig) (*Message, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	sent, err := c.bot.Send(msg.ToChattable())
	if err != nil {
		return nil, err
	}
	return adaptMessage(&sent), nil
}

// SendWithRetry resends after Telegram's flood-wait hint, at most maxRetries times.
func (c *BotClient) SendWithRetry(ctx context.Context, msg MessageConfig, maxRetries int) (*Message, error) {
	if maxRetries < 1 {
		maxRetries = 1
	}
	for attempt := 0; ; attempt++ {
		sent, err := c.Send(ctx, msg)
		if err == nil {
			return sent, nil
		}

		retryAfter, limited := RetryAfter(err)
		if !limited || attempt >= maxRetries {
			return nil, err
		}

		wait := time.Duration(retryAfter+1) * time.Second
		c.logger.WithFields(logger.Fields{
			"retry_after": retryAfter,
			"wait_time":   wait,
			"attempt":     attempt + 1,
		}).Warn("Rate limit hit, waiting before retry")

		if err := c.sleep(ctx, wait); err != nil {
			return nil, err
		}
	}
}

func (c *BotClient) Request(ctx context.Context, msg MessageConfig) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}
	_, err := c.bot.Request(msg.ToChattable())
	return err
}

func (c *BotClient) DeleteMessage(ctx context.Context, chatID int64, messageID int) error {
	return c.Request(ctx, DeleteMessageConfig{ChatID: chatID, MessageID: messageID})
}

func (c *BotClient) SendChatAction(ctx context.Context, chatID int64, action ChatAction) error {
	return c.Request(ctx, ChatActionConfig{ChatID: chatID, Action: action})
}

func (c *BotClient) GetUpdatesChan(config UpdateConfig) <-chan Update {
	return c.bot.GetUpdatesChan(tgbotapi.UpdateConfig{
		Offset:  config.Offset,
		Limit:   config.Limit,
		Timeout: config.Timeout,
	})
}

func (c *BotClient) StopReceivingUpdates() {
	c.bot.StopReceivingUpdates()
}

func (c *BotClient) Self() User {
	return adaptUser(&c.bot.Self)
}

// RetryAfter extracts the flood-wait delay in seconds from a Telegram error.
func RetryAfter(err error) (int, bool) {
	var apiErr *tgbotapi.Error
	if errors.As(err, &apiErr) && apiErr.RetryAfter > 0 {
		return apiErr.RetryAfter, true
	}
	matches := retryAfterRe.FindStringSubmatch(err.Error())
	if len(matches) > 1 {
		n, _ := strconv.Atoi(matches[1])
		return n, true
	}
	return 0, false
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func adaptMessage(msg *tgbotapi.Message) *Message {
	if msg == nil {
		return nil
	}
	return &Message{
		MessageID: msg.MessageID,
		Chat:      adaptChat(&msg.Chat),
		Text:      msg.Text,
		From:      adaptUser(msg.From),
		ReplyTo:   adaptMessage(msg.ReplyToMessage),
		Command:   msg.Command(),
		Arguments: msg.CommandArguments(),
	}
}

func adaptUser(user *tgbotapi.User) User {
	if user == nil {
		return User{}
	}
	return User{
		ID:           user.ID,
		FirstName:    user.FirstName,
		UserName:     user.UserName,
		LanguageCode: user.LanguageCode,
	}
}

func adaptChat(chat *tgbotapi.Chat) Chat {
	if chat == nil {
		return Chat{}
	}
	return Chat{
		ID:   chat.ID,
		Type: chat.Type,
	}
}

// AdaptMessage converts an incoming message. It returns nil for nil.
func AdaptMessage(msg *tgbotapi.Message) *Message {
	return adaptMessage(msg)
}

func AdaptCallback(cb *tgbotapi.CallbackQuery) *CallbackQuery {
	if cb == nil {
		return nil
	}
	return &CallbackQuery{
		ID:      cb.ID,
		From:    adaptUser(cb.From),
		Message: adaptMessage(cb.Message),
		Data:    cb.Data,
	}
}
