package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

func (s *sqliteDB) CreateConversation(ctx context.Context, ownerID int64, title string) (*Conversation, error) {
	if title == "" {
		n, err := s.CountConversations(ctx, ownerID)
		if err != nil {
			return nil, err
		}
		title = fmt.Sprintf("Chat %d", n+1)
	}

	now := s.now()
	res, err := s.ExecWithRetry(ctx,
		"INSERT INTO conversations (owner_id, title, created_at) VALUES (?, ?, ?)",
		ownerID, title, toMillis(now),
	)
	if err != nil {
		return nil, fmt.Errorf("create conversation: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	return &Conversation{ID: id, OwnerID: ownerID, Title: title, CreatedAt: fromMillis(toMillis(now))}, nil
}

func (s *sqliteDB) GetConversation(ctx context.Context, id int64) (*Conversation, error) {
	var c Conversation
	var created int64
	err := s.db.QueryRowContext(ctx,
		"SELECT id, owner_id, title, created_at FROM conversations WHERE id = ?", id,
	).Scan(&c.ID, &c.OwnerID, &c.Title, &created)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("conversation %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	c.CreatedAt = fromMillis(created)
	return &c, nil
}

func (s *sqliteDB) RenameConversation(ctx context.Context, id int64, title string) error {
	res, err := s.ExecWithRetry(ctx, "UPDATE conversations SET title = ? WHERE id = ?", title, id)
	if err != nil {
		return fmt.Errorf("rename conversation: %w", err)
	}
	return expectRow(res, id)
}

func (s *sqliteDB) DeleteConversation(ctx context.Context, id int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM messages WHERE conversation_id = ?", id); err != nil {
		return fmt.Errorf("delete messages: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "UPDATE chat_settings SET conversation_id = NULL WHERE conversation_id = ?", id); err != nil {
		return fmt.Errorf("detach conversation: %w", err)
	}
	res, err := tx.ExecContext(ctx, "DELETE FROM conversations WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete conversation: %w", err)
	}
	if err := expectRow(res, id); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *sqliteDB) ListConversations(ctx context.Context, ownerID int64) ([]ConversationSummary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT c.id, c.owner_id, c.title, c.created_at,
		       COUNT(m.id), COALESCE(MAX(m.created_at), 0)
		FROM conversations c
		LEFT JOIN messages m ON m.conversation_id = c.id
		WHERE c.owner_id = ?
		GROUP BY c.id
		ORDER BY c.id ASC
	`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	defer rows.Close()

	var out []ConversationSummary
	for rows.Next() {
		var cs ConversationSummary
		var created, last int64
		if err := rows.Scan(&cs.ID, &cs.OwnerID, &cs.Title, &created, &cs.MessageCount, &last); err != nil {
			return nil, err
		}
		cs.CreatedAt = fromMillis(created)
		cs.LastActivity = fromMillis(last)
		out = append(out, cs)
	}
	return out, rows.Err()
}

func (s *sqliteDB) CountConversations(ctx context.Context, ownerID int64) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM conversations WHERE owner_id = ?", ownerID).Scan(&n)
	return n, err
}

func (s *sqliteDB) AddMessage(ctx context.Context, conversationID int64, role, content string) error {
	_, err := s.ExecWithRetry(ctx,
		"INSERT INTO messages (conversation_id, role, content, created_at) VALUES (?, ?, ?, ?)",
		conversationID, role, content, toMillis(s.now()),
	)
	if err != nil {
		return fmt.Errorf("add message: %w", err)
	}
	return nil
}

// GetHistory returns the newest limit messages (after skipping offset newer ones)
// in chronological order. A non-positive limit returns everything.
func (s *sqliteDB) GetHistory(ctx context.Context, conversationID int64, limit, offset int) ([]Message, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, conversation_id, role, content, created_at FROM (
			SELECT id, conversation_id, role, content, created_at
			FROM messages
			WHERE conversation_id = ?
			ORDER BY id DESC
			LIMIT ? OFFSET ?
		) ORDER BY id ASC
	`, conversationID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("get history: %w", err)
	}
	defer rows.Close()

	var out []Message
	for rows.Next() {
		var m Message
		var created int64
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.Role, &m.Content, &created); err != nil {
			return nil, err
		}
		m.CreatedAt = fromMillis(created)
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s *sqliteDB) ClearHistory(ctx context.Context, conversationID int64) error {
	_, err := s.ExecWithRetry(ctx, "DELETE FROM messages WHERE conversation_id = ?", conversationID)
	if err != nil {
		return fmt.Errorf("clear history: %w", err)
	}
	return nil
}

// ReplaceHistory drops every message of the conversation and stores content
// as its only one. Either both happen or neither does.
func (s *sqliteDB) ReplaceHistory(ctx context.Context, conversationID int64, role, content string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM messages WHERE conversation_id = ?", conversationID); err != nil {
		return fmt.Errorf("clear history: %w", err)
	}
	_, err = tx.ExecContext(ctx,
		"INSERT INTO messages (conversation_id, role, content, created_at) VALUES (?, ?, ?, ?)",
		conversationID, role, content, toMillis(s.now()),
	)
	if err != nil {
		return fmt.Errorf("add message: %w", err)
	}
	return tx.Commit()
}

func (s *sqliteDB) GetMessageCount(ctx context.Context, conversationID int64) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM messages WHERE conversation_id = ?", conversationID).Scan(&n)
	return n, err
}

// GetLastActivity returns the zero time when the conversation has no messages.
func (s *sqliteDB) GetLastActivity(ctx context.Context, conversationID int64) (time.Time, error) {
	var last int64
	err := s.db.QueryRowContext(ctx,
		"SELECT COALESCE(MAX(created_at), 0) FROM messages WHERE conversation_id = ?", conversationID,
	).Scan(&last)
	if err != nil {
		return time.Time{}, err
	}
	return fromMillis(last), nil
}

func (s *sqliteDB) PurgeMessagesBefore(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.ExecWithRetry(ctx, "DELETE FROM messages WHERE created_at < ?", toMillis(before))
	if err != nil {
		return 0, fmt.Errorf("purge messages: %w", err)
	}
	return res.RowsAffected()
}

func expectRow(res sql.Result, id int64) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("conversation %d: %w", id, ErrNotFound)
	}
	return nil
}
