package database

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

var ErrNotFound = errors.New("not found")

type Database interface {
	GetDB() *sql.DB
	ExecWithRetry(ctx context.Context, query string, args ...any) (sql.Result, error)
	Close() error

	GetUser(ctx context.Context, userID int64) (*User, error)
	SaveUser(ctx context.Context, user User) error

	CreateConversation(ctx context.Context, ownerID int64, title string) (*Conversation, error)
	GetConversation(ctx context.Context, id int64) (*Conversation, error)
	RenameConversation(ctx context.Context, id int64, title string) error
	DeleteConversation(ctx context.Context, id int64) error
	ListConversations(ctx context.Context, ownerID int64) ([]ConversationSummary, error)
	CountConversations(ctx context.Context, ownerID int64) (int, error)

	AddMessage(ctx context.Context, conversationID int64, role, content string) error
	GetHistory(ctx context.Context, conversationID int64, limit, offset int) ([]Message, error)
	ClearHistory(ctx context.Context, conversationID int64) error
	ReplaceHistory(ctx context.Context, conversationID int64, role, content string) error
	GetMessageCount(ctx context.Context, conversationID int64) (int, error)
	GetLastActivity(ctx context.Context, conversationID int64) (time.Time, error)
	PurgeMessagesBefore(ctx context.Context, before time.Time) (int64, error)

	GetChatSettings(ctx context.Context, ownerID int64) (*ChatSettings, error)
	SetActiveConversation(ctx context.Context, ownerID, conversationID int64) error
	SetMode(ctx context.Context, ownerID int64, mode string) error

	PurgeFinishedTasks(ctx context.Context, before time.Time) (int64, error)
	PurgeExpiredCache(ctx context.Context, now time.Time) (int64, error)
}

type User struct {
	ID        int64
	FirstName string
	Username  string
	Language  string
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Conversation struct {
	ID        int64
	OwnerID   int64
	Title     string
	CreatedAt time.Time
}

type ConversationSummary struct {
	Conversation
	MessageCount int
	// LastActivity is zero for a conversation without messages.
	LastActivity time.Time
}

type Message struct {
	ID             int64
	ConversationID int64
	Role           string
	Content        string
	CreatedAt      time.Time
}

// ChatSettings is per Telegram chat (or console session) state.
type ChatSettings struct {
	OwnerID        int64
	ConversationID int64
	Mode           string
}

func toMillis(t time.Time) int64 {
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}
