package queue

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ollagram/ollagram/internal/config"
	"github.com/ollagram/ollagram/internal/database"
	"github.com/ollagram/ollagram/internal/logger"
	"github.com/ollagram/ollagram/internal/telegram"
)

type fakeHandler struct {
	name string
	opts config.QueueOptions
	fn   func(ctx context.Context, update telegram.Update) error

	mu    sync.Mutex
	calls []int
}

func (h *fakeHandler) Name() string                      { return h.name }
func (h *fakeHandler) QueueOptions() config.QueueOptions { return h.opts }

func (h *fakeHandler) Execute(ctx context.Context, update telegram.Update) error {
	h.mu.Lock()
	h.calls = append(h.calls, update.UpdateID)
	h.mu.Unlock()
	if h.fn == nil {
		return nil
	}
	return h.fn(ctx, update)
}

func (h *fakeHandler) Calls() []int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]int(nil), h.calls...)
}

func newTestQueue(t *testing.T) (*Queue, database.Database, *time.Time) {
	t.Helper()
	dsn := filepath.Join(t.TempDir(), "queue.db") + "?_pragma=foreign_keys(1)"
	db, err := database.NewSQLiteDB(dsn, logger.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	q := NewQueue(db, 10*time.Millisecond, logger.NewTestLogger())
	clock := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	q.now = func() time.Time { return clock }
	return q, db, &clock
}

func taskStatus(t *testing.T, db database.Database, id int64) (TaskStatus, int) {
	t.Helper()
	var status TaskStatus
	var retries int
	err := db.GetDB().QueryRow("SELECT status, retry_count FROM tasks WHERE id = ?", id).Scan(&status, &retries)
	require.NoError(t, err)
	return status, retries
}

func TestQueue_AddRequiresHandler(t *testing.T) {
	q, _, _ := newTestQueue(t)
	ctx := context.Background()

	assert.Error(t, q.Add(ctx, "", 1, telegram.Update{}))
	assert.Error(t, q.Add(ctx, "ask", 1, telegram.Update{}))
}

func TestQueue_ProcessNextCompletes(t *testing.T) {
	q, db, _ := newTestQueue(t)
	h := &fakeHandler{name: "ask"}
	q.Register(h)
	ctx := context.Background()

	require.NoError(t, q.Add(ctx, "ask", 1, telegram.Update{UpdateID: 11}))

	processed, err := q.ProcessNext(ctx, h)
	require.NoError(t, err)
	assert.True(t, processed)
	assert.Equal(t, []int{11}, h.Calls())

	status, _ := taskStatus(t, db, 1)
	assert.Equal(t, TaskStatusComplete, status)

	processed, err = q.ProcessNext(ctx, h)
	require.NoError(t, err)
	assert.False(t, processed)
}

func TestQueue_RetryThenFail(t *testing.T) {
	q, db, clock := newTestQueue(t)
	h := &fakeHandler{
		name: "ask",
		opts: config.QueueOptions{MaxRetries: 1, RetryDelay: 5 * time.Second},
		fn:   func(context.Context, telegram.Update) error { return errors.New("model offline") },
	}
	q.Register(h)
	ctx := context.Background()
	require.NoError(t, q.Add(ctx, "ask", 1, telegram.Update{UpdateID: 1}))

	_, err := q.ProcessNext(ctx, h)
	require.NoError(t, err)
	status, retries := taskStatus(t, db, 1)
	assert.Equal(t, TaskStatusPending, status)
	assert.Equal(t, 1, retries)

	processed, err := q.ProcessNext(ctx, h)
	require.NoError(t, err)
	assert.False(t, processed, "retry is not due yet")

	*clock = clock.Add(5 * time.Second)
	processed, err = q.ProcessNext(ctx, h)
	require.NoError(t, err)
	assert.True(t, processed)

	status, _ = taskStatus(t, db, 1)
	assert.Equal(t, TaskStatusFailed, status)
	assert.Len(t, h.Calls(), 2)
}

func TestQueue_PermanentErrorsAreNotRetried(t *testing.T) {
	q, db, _ := newTestQueue(t)
	h := &fakeHandler{
		name: "ask",
		opts: config.QueueOptions{MaxRetries: 3},
		fn: func(context.Context, telegram.Update) error {
			return fmt.Errorf("%w: bad input", ErrPermanent)
		},
	}
	q.Register(h)
	ctx := context.Background()
	require.NoError(t, q.Add(ctx, "ask", 1, telegram.Update{}))

	_, err := q.ProcessNext(ctx, h)
	require.NoError(t, err)
	status, retries := taskStatus(t, db, 1)
	assert.Equal(t, TaskStatusFailed, status)
	assert.Zero(t, retries)
}

func TestQueue_PanicFailsTask(t *testing.T) {
	q, db, _ := newTestQueue(t)
	h := &fakeHandler{
		name: "ask",
		opts: config.QueueOptions{MaxRetries: 3},
		fn:   func(context.Context, telegram.Update) error { panic("boom") },
	}
	q.Register(h)
	ctx := context.Background()
	require.NoError(t, q.Add(ctx, "ask", 1, telegram.Update{}))

	_, err := q.ProcessNext(ctx, h)
	require.NoError(t, err)
	status, _ := taskStatus(t, db, 1)
	assert.Equal(t, TaskStatusFailed, status)
}

func TestQueue_Timeout(t *testing.T) {
	q, db, _ := newTestQueue(t)
	h := &fakeHandler{
		name: "ask",
		opts: config.QueueOptions{Timeout: 20 * time.Millisecond},
		fn: func(ctx context.Context, _ telegram.Update) error {
			<-ctx.Done()
			return ctx.Err()
		},
	}
	q.Register(h)
	ctx := context.Background()
	require.NoError(t, q.Add(ctx, "ask", 1, telegram.Update{}))

	_, err := q.ProcessNext(ctx, h)
	require.NoError(t, err)
	status, _ := taskStatus(t, db, 1)
	assert.Equal(t, TaskStatusFailed, status)
}

func TestQueue_SameChatIsSerialized(t *testing.T) {
	q, db, _ := newTestQueue(t)
	h := &fakeHandler{name: "ask"}
	q.Register(h)
	ctx := context.Background()

	require.NoError(t, q.Add(ctx, "ask", 1, telegram.Update{UpdateID: 1}))
	require.NoError(t, q.Add(ctx, "ask", 1, telegram.Update{UpdateID: 2}))
	require.NoError(t, q.Add(ctx, "ask", 2, telegram.Update{UpdateID: 3}))

	_, err := db.GetDB().Exec("UPDATE tasks SET status = ? WHERE id = 1", TaskStatusRunning)
	require.NoError(t, err)

	processed, err := q.ProcessNext(ctx, h)
	require.NoError(t, err)
	assert.True(t, processed)
	assert.Equal(t, []int{3}, h.Calls(), "chat 1 is busy, chat 2 goes first")

	processed, err = q.ProcessNext(ctx, h)
	require.NoError(t, err)
	assert.False(t, processed)
}

func TestQueue_StartRequeuesAndRuns(t *testing.T) {
	q, db, _ := newTestQueue(t)
	done := make(chan int, 4)
	h := &fakeHandler{
		name: "ask",
		opts: config.QueueOptions{Concurrency: 2},
		fn: func(_ context.Context, u telegram.Update) error {
			done <- u.UpdateID
			return nil
		},
	}
	q.Register(h)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, q.Add(ctx, "ask", 1, telegram.Update{UpdateID: 1}))
	_, err := db.GetDB().Exec("UPDATE tasks SET status = ? WHERE id = 1", TaskStatusRunning)
	require.NoError(t, err)

	require.NoError(t, q.Start(ctx))
	require.NoError(t, q.Add(ctx, "ask", 2, telegram.Update{UpdateID: 2}))

	got := map[int]bool{}
	for range 2 {
		select {
		case id := <-done:
			got[id] = true
		case <-time.After(2 * time.Second):
			t.Fatal("tasks were not processed")
		}
	}
	assert.Equal(t, map[int]bool{1: true, 2: true}, got)

	require.Eventually(t, func() bool {
		stats, err := q.Stats(context.Background())
		return err == nil && stats[TaskStatusComplete] == 2
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	q.Wait()
}
