package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/ollagram/ollagram/internal/logger"
)

type sqliteDB struct {
	db     *sql.DB
	logger logger.Logger
	now    func() time.Time
}

func NewSQLiteDB(dsn string, log logger.Logger) (Database, error) {
	db, err := Open(dsn, log)
	if err != nil {
		return nil, err
	}
	if err := RunMigrations(db, log); err != nil {
		db.Close()
		return nil, err
	}
	return &sqliteDB{db: db, logger: log, now: time.Now}, nil
}

// Open connects without migrating.
func Open(dsn string, log logger.Logger) (*sql.DB, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	log.WithField("dsn", dsn).Debug("Database opened")
	return db, nil
}

func (s *sqliteDB) GetDB() *sql.DB {
	return s.db
}

func (s *sqliteDB) Close() error {
	return s.db.Close()
}

func (s *sqliteDB) ExecWithRetry(ctx context.Context, query string, args ...any) (sql.Result, error) {
	var res sql.Result
	var err error
	for i := range 3 {
		res, err = s.db.ExecContext(ctx, query, args...)
		if err == nil || !strings.Contains(err.Error(), "database is locked") {
			return res, err
		}
		s.logger.WithFields(logger.Fields{
			"attempt": i + 1,
			"query":   query,
		}).WithError(err).Warn("Database locked, retrying")

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(100 * time.Millisecond * time.Duration(i+1)):
		}
	}
	return res, err
}

func (s *sqliteDB) GetUser(ctx context.Context, userID int64) (*User, error) {
	var u User
	var created, updated int64
	err := s.db.QueryRowContext(ctx,
		"SELECT id, first_name, username, language, created_at, updated_at FROM users WHERE id = ?",
		userID,
	).Scan(&u.ID, &u.FirstName, &u.Username, &u.Language, &created, &updated)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("user %d: %w", userID, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	u.CreatedAt, u.UpdatedAt = fromMillis(created), fromMillis(updated)
	return &u, nil
}

func (s *sqliteDB) SaveUser(ctx context.Context, user User) error {
	now := toMillis(s.now())
	_, err := s.ExecWithRetry(ctx, `
		INSERT INTO users (id, first_name, username, language, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			first_name = excluded.first_name,
			username = excluded.username,
			language = excluded.language,
			updated_at = excluded.updated_at
	`, user.ID, user.FirstName, user.Username, user.Language, now, now)
	if err != nil {
		return fmt.Errorf("save user %d: %w", user.ID, err)
	}
	return nil
}

func (s *sqliteDB) GetChatSettings(ctx context.Context, ownerID int64) (*ChatSettings, error) {
	settings := ChatSettings{OwnerID: ownerID}
	var conversationID sql.NullInt64
	err := s.db.QueryRowContext(ctx,
		"SELECT conversation_id, mode FROM chat_settings WHERE owner_id = ?", ownerID,
	).Scan(&conversationID, &settings.Mode)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("chat settings %d: %w", ownerID, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	settings.ConversationID = conversationID.Int64
	return &settings, nil
}

func (s *sqliteDB) SetActiveConversation(ctx context.Context, ownerID, conversationID int64) error {
	_, err := s.ExecWithRetry(ctx, `
		INSERT INTO chat_settings (owner_id, conversation_id, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(owner_id) DO UPDATE SET
			conversation_id = excluded.conversation_id,
			updated_at = excluded.updated_at
	`, ownerID, conversationID, toMillis(s.now()))
	if err != nil {
		return fmt.Errorf("set active conversation: %w", err)
	}
	return nil
}

func (s *sqliteDB) SetMode(ctx context.Context, ownerID int64, mode string) error {
	_, err := s.ExecWithRetry(ctx, `
		INSERT INTO chat_settings (owner_id, mode, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(owner_id) DO UPDATE SET
			mode = excluded.mode,
			updated_at = excluded.updated_at
	`, ownerID, mode, toMillis(s.now()))
	if err != nil {
		return fmt.Errorf("set mode: %w", err)
	}
	return nil
}

func (s *sqliteDB) PurgeFinishedTasks(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.ExecWithRetry(ctx,
		"DELETE FROM tasks WHERE status IN ('complete', 'failed') AND created_at < ?",
		toMillis(before),
	)
	if err != nil {
		return 0, fmt.Errorf("purge tasks: %w", err)
	}
	return res.RowsAffected()
}

func (s *sqliteDB) PurgeExpiredCache(ctx context.Context, now time.Time) (int64, error) {
	res, err := s.ExecWithRetry(ctx, "DELETE FROM cache WHERE expires_at <= ?", toMillis(now))
	if err != nil {
		return 0, fmt.Errorf("purge cache: %w", err)
	}
	return res.RowsAffected()
}
