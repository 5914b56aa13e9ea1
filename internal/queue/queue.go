package queue

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ollagram/ollagram/internal/config"
	"github.com/ollagram/ollagram/internal/database"
	"github.com/ollagram/ollagram/internal/logger"
	"github.com/ollagram/ollagram/internal/telegram"
)

type TaskStatus string

const (
	TaskStatusPending  TaskStatus = "pending"
	TaskStatusRunning  TaskStatus = "running"
	TaskStatusComplete TaskStatus = "complete"
	TaskStatusFailed   TaskStatus = "failed"
)

const DefaultPollInterval = 500 * time.Millisecond

// ErrPermanent marks a handler error that must not be retried.
var ErrPermanent = errors.New("permanent task failure")

// Handler executes queued updates of one command.
type Handler interface {
	Name() string
	Execute(ctx context.Context, update telegram.Update) error
	QueueOptions() config.QueueOptions
}

type Task struct {
	ID          int64
	Command     string
	ChatID      int64
	UpdateData  []byte
	RetryCount  int
	MaxRetries  int
	RetryDelay  time.Duration
	LastAttempt time.Time
	NextAttempt time.Time
	Status      TaskStatus
	Update      *telegram.Update
}

func (t *Task) GetUpdate() (*telegram.Update, error) {
	if t.Update != nil {
		return t.Update, nil
	}
	var update telegram.Update
	if err := json.Unmarshal(t.UpdateData, &update); err != nil {
		return nil, fmt.Errorf("failed to unmarshal update data: %w", err)
	}
	t.Update = &update
	return t.Update, nil
}

// Queue is a SQLite-backed task queue. Tasks of the same chat never run at
// the same time, whatever their command, so a conversation sees one reply
// loop at a time.
type Queue struct {
	db           database.Database
	logger       logger.Logger
	pollInterval time.Duration
	now          func() time.Time

	mu       sync.RWMutex
	handlers map[string]Handler
	wake     map[string]chan struct{}
	wg       sync.WaitGroup
}

func NewQueue(db database.Database, pollInterval time.Duration, log logger.Logger) *Queue {
	if pollInterval <= 0 {
		pollInterval = DefaultPollInterval
	}
	return &Queue{
		db:           db,
		logger:       log,
		pollInterval: pollInterval,
		now:          time.Now,
		handlers:     make(map[string]Handler),
		wake:         make(map[string]chan struct{}),
	}
}

func (q *Queue) Register(handlers ...Handler) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, h := range handlers {
		q.handlers[h.Name()] = h
		q.wake[h.Name()] = make(chan struct{}, 1)
	}
}

// Add stores an update for later execution by the handler of command.
func (q *Queue) Add(ctx context.Context, command string, chatID int64, update telegram.Update) error {
	if command == "" {
		return errors.New("command name cannot be empty")
	}
	q.mu.RLock()
	h, ok := q.handlers[command]
	wake := q.wake[command]
	q.mu.RUnlock()
	if !ok {
		return fmt.Errorf("no handler registered for %q", command)
	}

	data, err := json.Marshal(update)
	if err != nil {
		return err
	}

	opts := h.QueueOptions()
	now := q.now().UnixMilli()
	_, err = q.db.ExecWithRetry(ctx, `
		INSERT INTO tasks (command, chat_id, update_data, max_retries, retry_delay, next_attempt, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, command, chatID, data, opts.MaxRetries, opts.RetryDelay.Milliseconds(), now, now)
	if err != nil {
		q.logger.WithError(err).WithField("command", command).Error("Failed to add task")
		return err
	}

	select {
	case wake <- struct{}{}:
	default:
	}

	q.logger.WithFields(logger.Fields{
		"command":   command,
		"chat_id":   chatID,
		"update_id": update.UpdateID,
	}).Debug("Task added")
	return nil
}

// Start requeues tasks left running by a previous process and starts the
// workers. It returns at once; Wait blocks until they stop with ctx.
func (q *Queue) Start(ctx context.Context) error {
	res, err := q.db.ExecWithRetry(ctx, "UPDATE tasks SET status = ? WHERE status = ?",
		TaskStatusPending, TaskStatusRunning)
	if err != nil {
		return fmt.Errorf("failed to requeue stale tasks: %w", err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		q.logger.WithField("count", n).Warn("Requeued tasks interrupted by restart")
	}

	q.mu.RLock()
	defer q.mu.RUnlock()
	for name, h := range q.handlers {
		workers := max(h.QueueOptions().Concurrency, 1)
		q.logger.WithFields(logger.Fields{
			"command": name,
			"workers": workers,
			"timeout": h.QueueOptions().Timeout.String(),
		}).Info("Starting queue workers")
		for range workers {
			q.wg.Add(1)
			go q.worker(ctx, h, q.wake[name])
		}
	}
	return nil
}

func (q *Queue) Wait() {
	q.wg.Wait()
}

func (q *Queue) worker(ctx context.Context, h Handler, wake <-chan struct{}) {
	defer q.wg.Done()
	log := q.logger.WithField("command", h.Name())
	log.Debug("Worker started")
	defer log.Debug("Worker stopped")

	ticker := time.NewTicker(q.pollInterval)
	defer ticker.Stop()

	for {
		for {
			processed, err := q.ProcessNext(ctx, h)
			if err != nil && ctx.Err() == nil {
				log.WithError(err).Error("Task processing failed")
			}
			if !processed || ctx.Err() != nil {
				break
			}
		}

		select {
		case <-ctx.Done():
			return
		case <-wake:
		case <-ticker.C:
		}
	}
}

// ProcessNext runs at most one due task of h and reports whether it found one.
func (q *Queue) ProcessNext(ctx context.Context, h Handler) (bool, error) {
	task, err := q.lockAndGetTask(ctx, h.Name())
	if err != nil {
		return false, fmt.Errorf("failed to get task: %w", err)
	}
	if task == nil {
		return false, nil
	}
	return true, q.handleTask(ctx, task, h)
}

func (q *Queue) lockAndGetTask(ctx context.Context, command string) (*Task, error) {
	now := q.now().UnixMilli()
	var task Task
	var retryDelay int64
	err := q.db.GetDB().QueryRowContext(ctx, `
		UPDATE tasks
		SET status = ?, last_attempt = ?
		WHERE id = (
			SELECT id FROM tasks
			WHERE command = ? AND status = ? AND next_attempt <= ?
			  AND chat_id NOT IN (SELECT chat_id FROM tasks WHERE status = ?)
			ORDER BY id ASC
			LIMIT 1
		)
		RETURNING id, command, chat_id, update_data, retry_count, max_retries, retry_delay`,
		TaskStatusRunning, now, command, TaskStatusPending, now, TaskStatusRunning,
	).Scan(
		&task.ID, &task.Command, &task.ChatID, &task.UpdateData,
		&task.RetryCount, &task.MaxRetries, &retryDelay,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	task.RetryDelay = time.Duration(retryDelay) * time.Millisecond
	task.LastAttempt = time.UnixMilli(now)
	task.Status = TaskStatusRunning
	return &task, nil
}

func (q *Queue) handleTask(parent context.Context, task *Task, h Handler) error {
	opts := h.QueueOptions()
	log := q.logger.WithFields(logger.Fields{
		"command": task.Command,
		"task_id": task.ID,
		"chat_id": task.ChatID,
	})

	update, err := task.GetUpdate()
	if err != nil {
		log.WithError(err).Error("Dropping undecodable task")
		return q.updateTaskStatus(parent, task.ID, TaskStatusFailed)
	}

	ctx := parent
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(parent, opts.Timeout)
		defer cancel()
	}

	start := time.Now()
	err = q.execute(ctx, h, *update)
	log = log.WithField("duration", time.Since(start).String())

	// Status writes use the parent context: the task context may be expired.
	switch {
	case err == nil:
		log.Info("Task completed")
		return q.updateTaskStatus(parent, task.ID, TaskStatusComplete)
	case parent.Err() != nil:
		log.Info("Shutting down, task left for the next start")
		return nil
	case errors.Is(err, ErrPermanent) || errors.Is(err, context.Canceled):
		log.WithError(err).Warn("Task failed permanently")
		return q.updateTaskStatus(parent, task.ID, TaskStatusFailed)
	}

	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		log = log.WithField("timeout_reason", "deadline_exceeded")
	}
	log.WithError(err).Error("Handler execution failed")
	return q.handleTaskError(parent, task)
}

func (q *Queue) execute(ctx context.Context, h Handler, update telegram.Update) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: handler panicked: %v", ErrPermanent, r)
		}
	}()
	return h.Execute(ctx, update)
}

func (q *Queue) handleTaskError(ctx context.Context, task *Task) error {
	log := q.logger.WithFields(logger.Fields{
		"command":     task.Command,
		"task_id":     task.ID,
		"retry_count": task.RetryCount,
		"max_retries": task.MaxRetries,
	})

	if task.RetryCount >= task.MaxRetries {
		log.Warn("Max retries exceeded, marking as failed")
		return q.updateTaskStatus(ctx, task.ID, TaskStatusFailed)
	}

	nextAttempt := q.now().Add(task.RetryDelay)
	_, err := q.db.ExecWithRetry(ctx, `
		UPDATE tasks
		SET status = ?, retry_count = retry_count + 1, next_attempt = ?
		WHERE id = ?
	`, TaskStatusPending, nextAttempt.UnixMilli(), task.ID)
	if err != nil {
		log.WithError(err).Error("Failed to reschedule task")
		return err
	}

	log.WithField("next_attempt", nextAttempt).Info("Task rescheduled")
	return nil
}

func (q *Queue) updateTaskStatus(ctx context.Context, taskID int64, status TaskStatus) error {
	_, err := q.db.ExecWithRetry(ctx, "UPDATE tasks SET status = ? WHERE id = ?", status, taskID)
	return err
}

// Stats counts tasks per status.
func (q *Queue) Stats(ctx context.Context) (map[TaskStatus]int, error) {
	rows, err := q.db.GetDB().QueryContext(ctx, "SELECT status, COUNT(*) FROM tasks GROUP BY status")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	stats := make(map[TaskStatus]int)
	for rows.Next() {
		var status TaskStatus
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		stats[status] = n
	}
	return stats, rows.Err()
}
