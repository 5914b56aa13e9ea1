package telegram

import (
	"context"
	"strings"
	"unicode/utf8"

	tgbotapi "github.com/OvyFlash/telegram-bot-api"
)

// MaxMessageLength is Telegram's limit for a text message, in UTF-16 code
// units. Runes are used here, which is stricter for BMP text.
const MaxMessageLength = 4096

type ParseMode = string

const (
	ModeMarkdownV2 = "MarkdownV2"
)

type (
	Update    = tgbotapi.Update
	Chattable = tgbotapi.Chattable

	InlineKeyboardMarkup = tgbotapi.InlineKeyboardMarkup
	InlineKeyboardButton = tgbotapi.InlineKeyboardButton
)

func NewInlineKeyboardMarkup(rows ...[]InlineKeyboardButton) InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

func NewInlineKeyboardRow(buttons ...InlineKeyboardButton) []InlineKeyboardButton {
	return tgbotapi.NewInlineKeyboardRow(buttons...)
}

func NewInlineKeyboardButtonData(text, data string) InlineKeyboardButton {
	return tgbotapi.NewInlineKeyboardButtonData(text, data)
}

type Message struct {
	MessageID int
	Chat      Chat
	Text      string
	From      User
	ReplyTo   *Message
	Command   string
	Arguments string
}

func (m *Message) IsCommand() bool {
	return m != nil && m.Command != ""
}

type User struct {
	ID           int64
	FirstName    string
	UserName     string
	LanguageCode string
}

type Chat struct {
	ID   int64
	Type string
}

type CallbackQuery struct {
	ID      string
	From    User
	Message *Message
	Data    string
}

type MessageConfig interface {
	ToChattable() tgbotapi.Chattable
}

type CallbackConfig struct {
	CallbackQueryID string
	Text            string
	ShowAlert       bool
	CacheTime       int
}

func NewCallback(id, text string) CallbackConfig {
	return CallbackConfig{
		CallbackQueryID: id,
		Text:            text,
	}
}

func (c CallbackConfig) ToChattable() tgbotapi.Chattable {
	config := tgbotapi.NewCallback(c.CallbackQueryID, c.Text)
	config.CacheTime = c.CacheTime
	config.ShowAlert = c.ShowAlert
	return config
}

type TextMessage struct {
	ChatID              int64
	Text                string
	ReplyTo             int
	ReplyMarkup         *InlineKeyboardMarkup
	LinkPreviewDisabled bool
	ParseMode           ParseMode
}

func NewMessage(chatID int64, text string, replyTo int) TextMessage {
	return TextMessage{
		ChatID:  chatID,
		Text:    text,
		ReplyTo: replyTo,
	}
}

func (m TextMessage) ToChattable() tgbotapi.Chattable {
	msg := tgbotapi.NewMessage(m.ChatID, m.Text)
	msg.ReplyParameters.MessageID = m.ReplyTo
	msg.ParseMode = m.ParseMode
	if m.ReplyMarkup != nil {
		msg.ReplyMarkup = m.ReplyMarkup
	}
	msg.LinkPreviewOptions.IsDisabled = m.LinkPreviewDisabled
	return msg
}

type EditMessageTextConfig struct {
	ChatID              int64
	MessageID           int
	Text                string
	ParseMode           string
	ReplyMarkup         *InlineKeyboardMarkup
	LinkPreviewDisabled bool
}

func NewEditMessageText(chatID int64, messageID int, text string) EditMessageTextConfig {
	return EditMessageTextConfig{
		ChatID:    chatID,
		MessageID: messageID,
		Text:      text,
	}
}

func (m EditMessageTextConfig) ToChattable() tgbotapi.Chattable {
	msg := tgbotapi.NewEditMessageText(m.ChatID, m.MessageID, m.Text)
	msg.LinkPreviewOptions.IsDisabled = m.LinkPreviewDisabled
	msg.ParseMode = m.ParseMode
	msg.ReplyMarkup = m.ReplyMarkup
	return msg
}

type EditMessageReplyMarkupConfig struct {
	ChatID      int64
	MessageID   int
	ReplyMarkup InlineKeyboardMarkup
}

func (c EditMessageReplyMarkupConfig) ToChattable() tgbotapi.Chattable {
	return tgbotapi.NewEditMessageReplyMarkup(c.ChatID, c.MessageID, c.ReplyMarkup)
}

type DeleteMessageConfig struct {
	ChatID    int64
	MessageID int
}

func (c DeleteMessageConfig) ToChattable() tgbotapi.Chattable {
	return tgbotapi.NewDeleteMessage(c.ChatID, c.MessageID)
}

type ChatAction string

const (
	ActionTyping ChatAction = "typing"
)

type ChatActionConfig struct {
	ChatID int64
	Action ChatAction
}

func (c ChatActionConfig) ToChattable() tgbotapi.Chattable {
	return tgbotapi.NewChatAction(c.ChatID, string(c.Action))
}

type UpdateConfig struct {
	Offset  int
	Limit   int
	Timeout int
}

type Client interface {
	Send(ctx context.Context, msg MessageConfig) (*Message, error)
	SendWithRetry(ctx context.Context, msg MessageConfig, maxRetries int) (*Message, error)
	Request(ctx context.Context, msg MessageConfig) error
	DeleteMessage(ctx context.Context, chatID int64, messageID int) error
	SendChatAction(ctx context.Context, chatID int64, action ChatAction) error
	GetUpdatesChan(config UpdateConfig) <-chan Update
	StopReceivingUpdates()
	Self() User
}

// SplitText cuts text into chunks of at most limit runes, preferring to break
// at a paragraph, then at a line, then at a space.
func SplitText(text string, limit int) []string {
	if limit <= 0 {
		limit = MaxMessageLength
	}
	var parts []string
	for utf8.RuneCountInString(text) > limit {
		head := string([]rune(text)[:limit])
		cut := -1
		if next := text[len(head):]; strings.HasPrefix(next, " ") || strings.HasPrefix(next, "\n") {
			cut = len(head)
		}
		if cut <= 0 {
			cut = strings.LastIndex(head, "\n\n")
		}
		if cut <= 0 {
			cut = strings.LastIndex(head, "\n")
		}
		if cut <= 0 {
			cut = strings.LastIndex(head, " ")
		}
		if cut <= 0 {
			cut = len(head)
		}
		parts = append(parts, strings.TrimRight(text[:cut], " \n"))
		text = strings.TrimLeft(text[cut:], " \n")
	}
	if text != "" || len(parts) == 0 {
		parts = append(parts, text)
	}
	return parts
}
