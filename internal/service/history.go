package service

import (
	"context"

	"github.com/ollagram/ollagram/internal/agent"
	"github.com/ollagram/ollagram/internal/database"
)

// HistoryStore exposes stored conversations to the agent loop. Only the
// newest limit turns are returned by History; a non-positive limit returns all.
type HistoryStore struct {
	db    database.Database
	limit int
}

var _ agent.ConversationStore = (*HistoryStore)(nil)

func NewHistoryStore(db database.Database, limit int) *HistoryStore {
	return &HistoryStore{db: db, limit: limit}
}

func (s *HistoryStore) Append(ctx context.Context, conversationID int64, role agent.Role, content string) error {
	return s.db.AddMessage(ctx, conversationID, string(role), content)
}

func (s *HistoryStore) History(ctx context.Context, conversationID int64) ([]agent.Turn, error) {
	messages, err := s.db.GetHistory(ctx, conversationID, s.limit, 0)
	if err != nil {
		return nil, err
	}
	return toTurns(messages), nil
}

func toTurns(messages []database.Message) []agent.Turn {
	turns := make([]agent.Turn, 0, len(messages))
	for _, m := range messages {
		turns = append(turns, agent.Turn{Role: agent.Role(m.Role), Content: m.Content})
	}
	return turns
}
