package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ollagram/ollagram/internal/agent"
	"github.com/ollagram/ollagram/internal/database"
	"github.com/ollagram/ollagram/internal/logger"
)

const DefaultHistoryLimit = 20

var (
	ErrConversationNotFound = errors.New("conversation not found")
	ErrEmptyHistory         = errors.New("history is empty")
	ErrEmptySummary         = errors.New("model returned an empty summary")
	ErrEmptyTitle           = errors.New("title is empty")
)

// CompressPrompt turns a dialogue into a compact summary that replaces it.
const CompressPrompt = `You turn a conversation into a coherent, compact summary.

Output format:
Our chat history so far looks like this...
[A short coherent text in the language of the conversation]

Requirements:
• Turn the dialogue into a connected narrative
• Keep:
  – The main questions and decisions
  – Technical details (code, errors, commands)
  – Changes of context
  – Information about the user
• Remove:
  – Repetitions
  – Greetings and farewells
  – Insignificant clarifications

Style:
• Clear and businesslike
• Use ` + "`backticks`" + ` for code
• Use • for lists
• No interpretation or speculation

Notes:
• For technical topics keep commands and errors exact
• For creative topics record the key ideas
• If context is missing add a [note]`

// ChatService manages the conversations of each owner. An owner is a
// Telegram chat or a console session and has exactly one active conversation.
type ChatService struct {
	db     database.Database
	model  agent.ModelClient
	logger logger.Logger
}

func NewChatService(db database.Database, model agent.ModelClient, log logger.Logger) *ChatService {
	return &ChatService{db: db, model: model, logger: log}
}

// Active returns the owner's active conversation. An owner without one gets
// the newest existing conversation, or a fresh one.
func (s *ChatService) Active(ctx context.Context, ownerID int64) (*database.Conversation, error) {
	settings, err := s.db.GetChatSettings(ctx, ownerID)
	if err != nil && !errors.Is(err, database.ErrNotFound) {
		return nil, err
	}
	if settings != nil && settings.ConversationID != 0 {
		conv, err := s.db.GetConversation(ctx, settings.ConversationID)
		if err == nil {
			return conv, nil
		}
		if !errors.Is(err, database.ErrNotFound) {
			return nil, err
		}
	}

	list, err := s.db.ListConversations(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	if len(list) > 0 {
		conv := list[len(list)-1].Conversation
		if err := s.db.SetActiveConversation(ctx, ownerID, conv.ID); err != nil {
			return nil, err
		}
		return &conv, nil
	}
	return s.New(ctx, ownerID, "")
}

// New creates a conversation and makes it active. An empty title becomes "Chat N".
func (s *ChatService) New(ctx context.Context, ownerID int64, title string) (*database.Conversation, error) {
	conv, err := s.db.CreateConversation(ctx, ownerID, strings.TrimSpace(title))
	if err != nil {
		return nil, err
	}
	if err := s.db.SetActiveConversation(ctx, ownerID, conv.ID); err != nil {
		return nil, err
	}
	s.logger.WithFields(logger.Fields{
		"owner_id":        ownerID,
		"conversation_id": conv.ID,
	}).Info("Conversation created")
	return conv, nil
}

func (s *ChatService) Select(ctx context.Context, ownerID, id int64) (*database.Conversation, error) {
	conv, err := s.owned(ctx, ownerID, id)
	if err != nil {
		return nil, err
	}
	if err := s.db.SetActiveConversation(ctx, ownerID, conv.ID); err != nil {
		return nil, err
	}
	return conv, nil
}

// Get returns conversation id of the owner, or the active one when id is 0.
func (s *ChatService) Get(ctx context.Context, ownerID, id int64) (*database.Conversation, error) {
	return s.resolve(ctx, ownerID, id)
}

// List returns the owner's conversations in creation order.
func (s *ChatService) List(ctx context.Context, ownerID int64) ([]database.ConversationSummary, error) {
	return s.db.ListConversations(ctx, ownerID)
}

// Delete removes a conversation. When it was the active one a new
// conversation is created and returned as replacement.
func (s *ChatService) Delete(ctx context.Context, ownerID, id int64) (deleted, replacement *database.Conversation, err error) {
	active, err := s.Active(ctx, ownerID)
	if err != nil {
		return nil, nil, err
	}
	deleted, err = s.owned(ctx, ownerID, id)
	if err != nil {
		return nil, nil, err
	}
	if err := s.db.DeleteConversation(ctx, id); err != nil {
		return nil, nil, err
	}
	if active.ID == id {
		if replacement, err = s.New(ctx, ownerID, ""); err != nil {
			return deleted, nil, err
		}
	}
	return deleted, replacement, nil
}

// DeleteAll removes every conversation of the owner and starts a fresh one.
func (s *ChatService) DeleteAll(ctx context.Context, ownerID int64) (int, *database.Conversation, error) {
	list, err := s.db.ListConversations(ctx, ownerID)
	if err != nil {
		return 0, nil, err
	}
	for _, c := range list {
		if err := s.db.DeleteConversation(ctx, c.ID); err != nil {
			return 0, nil, err
		}
	}
	conv, err := s.New(ctx, ownerID, "")
	return len(list), conv, err
}

// Rename renames conversation id, or the active one when id is 0.
// It returns the conversation as it was before the rename.
func (s *ChatService) Rename(ctx context.Context, ownerID, id int64, title string) (*database.Conversation, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, ErrEmptyTitle
	}
	conv, err := s.resolve(ctx, ownerID, id)
	if err != nil {
		return nil, err
	}
	if err := s.db.RenameConversation(ctx, conv.ID, title); err != nil {
		return nil, err
	}
	return conv, nil
}

// History returns the last n messages of the active conversation, oldest
// first. A non-positive n uses DefaultHistoryLimit.
func (s *ChatService) History(ctx context.Context, ownerID int64, n int) ([]database.Message, error) {
	if n <= 0 {
		n = DefaultHistoryLimit
	}
	conv, err := s.Active(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	return s.db.GetHistory(ctx, conv.ID, n, 0)
}

func (s *ChatService) ClearHistory(ctx context.Context, ownerID int64) (*database.Conversation, error) {
	conv, err := s.Active(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	return conv, s.db.ClearHistory(ctx, conv.ID)
}

// Compress asks the model to summarize conversation id (the active one when
// id is 0) and replaces its history with that summary as a single assistant turn.
func (s *ChatService) Compress(ctx context.Context, ownerID, id int64) (*database.Conversation, string, error) {
	conv, err := s.resolve(ctx, ownerID, id)
	if err != nil {
		return nil, "", err
	}
	messages, err := s.db.GetHistory(ctx, conv.ID, 0, 0)
	if err != nil {
		return nil, "", err
	}
	if len(messages) == 0 {
		return conv, "", ErrEmptyHistory
	}

	summary, err := s.model.Generate(ctx, CompressPrompt, "", toTurns(messages))
	if err != nil {
		return conv, "", fmt.Errorf("%w: %w", agent.ErrBackendUnavailable, err)
	}
	summary = strings.TrimSpace(summary)
	if summary == "" {
		return conv, "", ErrEmptySummary
	}

	if err := s.db.ReplaceHistory(ctx, conv.ID, string(agent.RoleAssistant), summary); err != nil {
		return conv, "", err
	}

	s.logger.WithFields(logger.Fields{
		"conversation_id": conv.ID,
		"messages":        len(messages),
		"summary_len":     len(summary),
	}).Info("Conversation compressed")
	return conv, summary, nil
}

func (s *ChatService) resolve(ctx context.Context, ownerID, id int64) (*database.Conversation, error) {
	if id == 0 {
		return s.Active(ctx, ownerID)
	}
	return s.owned(ctx, ownerID, id)
}

// owned hides conversations of other owners behind ErrConversationNotFound.
func (s *ChatService) owned(ctx context.Context, ownerID, id int64) (*database.Conversation, error) {
	conv, err := s.db.GetConversation(ctx, id)
	if errors.Is(err, database.ErrNotFound) {
		return nil, fmt.Errorf("%w: %d", ErrConversationNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	if conv.OwnerID != ownerID {
		return nil, fmt.Errorf("%w: %d", ErrConversationNotFound, id)
	}
	return conv, nil
}
