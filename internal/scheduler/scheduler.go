// Package scheduler runs periodic housekeeping on a cron schedule.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/ollagram/ollagram/internal/cache"
	"github.com/ollagram/ollagram/internal/config"
	"github.com/ollagram/ollagram/internal/database"
	"github.com/ollagram/ollagram/internal/logger"
)

// FinishedTaskTTL is how long completed and failed queue tasks are kept.
const FinishedTaskTTL = 24 * time.Hour

type Result struct {
	Messages      int64
	CacheRows     int64
	MemoryEntries int
	Tasks         int64
}

type Scheduler struct {
	cron   *cron.Cron
	db     database.Database
	memory *cache.MemoryCache
	cfg    config.CleanupConfig
	logger logger.Logger
	now    func() time.Time
}

func New(db database.Database, memory *cache.MemoryCache, cfg config.CleanupConfig, log logger.Logger) *Scheduler {
	cl := cronLogger{log}
	return &Scheduler{
		cron: cron.New(
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		db:     db,
		memory: memory,
		cfg:    cfg,
		logger: log,
		now:    time.Now,
	}
}

// Start registers the cleanup job and runs the cron until ctx is done.
// An empty schedule disables it.
func (s *Scheduler) Start(ctx context.Context) error {
	if s.cfg.Schedule == "" {
		s.logger.Info("Cleanup schedule is empty, scheduler disabled")
		return nil
	}
	if _, err := s.cron.AddFunc(s.cfg.Schedule, func() { s.Cleanup(ctx) }); err != nil {
		return fmt.Errorf("invalid cleanup schedule %q: %w", s.cfg.Schedule, err)
	}
	s.cron.Start()
	s.logger.WithField("schedule", s.cfg.Schedule).Info("Scheduler started")

	go func() {
		<-ctx.Done()
		<-s.cron.Stop().Done()
		s.logger.Debug("Scheduler stopped")
	}()
	return nil
}

// Cleanup purges old messages (when a TTL is set), expired cache entries
// and finished queue tasks. Failures are logged and do not stop the others.
func (s *Scheduler) Cleanup(ctx context.Context) Result {
	var res Result
	now := s.now()

	if s.cfg.MessageTTL > 0 {
		n, err := s.db.PurgeMessagesBefore(ctx, now.Add(-s.cfg.MessageTTL))
		if err != nil {
			s.logger.WithError(err).Error("Failed to purge old messages")
		}
		res.Messages = n
	}

	n, err := s.db.PurgeExpiredCache(ctx, now)
	if err != nil {
		s.logger.WithError(err).Error("Failed to purge expired cache")
	}
	res.CacheRows = n

	if s.memory != nil {
		res.MemoryEntries = s.memory.Purge()
	}

	n, err = s.db.PurgeFinishedTasks(ctx, now.Add(-FinishedTaskTTL))
	if err != nil {
		s.logger.WithError(err).Error("Failed to purge finished tasks")
	}
	res.Tasks = n

	s.logger.WithFields(logger.Fields{
		"messages":       res.Messages,
		"cache_rows":     res.CacheRows,
		"memory_entries": res.MemoryEntries,
		"tasks":          res.Tasks,
	}).Info("Cleanup finished")
	return res
}

type cronLogger struct {
	log logger.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.log.WithFields(fields(keysAndValues)).Debug("cron: " + msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.log.WithError(err).WithFields(fields(keysAndValues)).Error("cron: " + msg)
}

func fields(kv []any) logger.Fields {
	f := make(logger.Fields, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		f[fmt.Sprint(kv[i])] = kv[i+1]
	}
	return f
}
