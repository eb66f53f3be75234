package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"biliticket/invitehub/internal/repository"
)

// CleanupScheduler defers deletion of exhausted codes.
type CleanupScheduler interface {
	// ScheduleDeletion is idempotent per code: a pending task keeps its original due time.
	ScheduleDeletion(ctx context.Context, codeID uuid.UUID, delay time.Duration) error
}

type cleanupScheduler struct {
	queue  repository.TaskQueue
	now    Clock
	logger *zap.Logger
}

func NewCleanupScheduler(queue repository.TaskQueue, now Clock, logger *zap.Logger) CleanupScheduler {
	if now == nil {
		now = SystemClock
	}
	return &cleanupScheduler{queue: queue, now: now, logger: logger}
}

func (s *cleanupScheduler) ScheduleDeletion(ctx context.Context, codeID uuid.UUID, delay time.Duration) error {
	runAt := s.now().Add(delay)
	added, err := s.queue.Enqueue(ctx, repository.Task{
		Kind:   repository.TaskDeleteCode,
		CodeID: codeID,
		RunAt:  runAt,
	})
	if err != nil {
		return storageError("schedule deletion", err)
	}
	if added {
		s.logger.Info("scheduled invite code deletion",
			zap.String("code_id", codeID.String()),
			zap.Time("run_at", runAt),
		)
	}
	return nil
}

// CodeDeleter removes a code and its usage history. Missing codes are not an error.
type CodeDeleter interface {
	DeleteCode(ctx context.Context, id uuid.UUID) error
}

// CleanupWorker drains due deletion tasks.
type CleanupWorker struct {
	queue     repository.TaskQueue
	deleter   CodeDeleter
	interval  time.Duration
	batchSize int
	now       Clock
	logger    *zap.Logger
}

func NewCleanupWorker(queue repository.TaskQueue, deleter CodeDeleter, interval time.Duration, batchSize int, now Clock, logger *zap.Logger) *CleanupWorker {
	if now == nil {
		now = SystemClock
	}
	if interval <= 0 {
		interval = time.Minute
	}
	if batchSize <= 0 {
		batchSize = 100
	}
	return &CleanupWorker{
		queue:     queue,
		deleter:   deleter,
		interval:  interval,
		batchSize: batchSize,
		now:       now,
		logger:    logger,
	}
}

// Run polls until ctx is cancelled.
func (w *CleanupWorker) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.logger.Info("cleanup worker started", zap.Duration("interval", w.interval))
	for {
		if _, err := w.RunOnce(ctx); err != nil && ctx.Err() == nil {
			w.logger.Error("cleanup pass failed", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			w.logger.Info("cleanup worker stopped")
			return
		case <-ticker.C:
		}
	}
}

// RunOnce claims every due task and processes it, returning the number of
// codes deleted. A task whose delete fails is queued again one poll interval later.
func (w *CleanupWorker) RunOnce(ctx context.Context) (int, error) {
	deleted := 0
	for {
		tasks, err := w.queue.ClaimDue(ctx, w.now(), w.batchSize)
		if err != nil {
			return deleted, err
		}
		for _, task := range tasks {
			if task.Kind != repository.TaskDeleteCode {
				w.logger.Warn("unknown task kind", zap.String("kind", string(task.Kind)))
				continue
			}
			if err := w.deleter.DeleteCode(ctx, task.CodeID); err != nil {
				w.logger.Error("deferred code deletion failed",
					zap.String("code_id", task.CodeID.String()),
					zap.Error(err),
				)
				w.retry(ctx, task)
				continue
			}
			deleted++
		}
		if len(tasks) < w.batchSize {
			return deleted, nil
		}
	}
}

func (w *CleanupWorker) retry(ctx context.Context, task repository.Task) {
	task.RunAt = w.now().Add(w.interval)
	if _, err := w.queue.Enqueue(context.WithoutCancel(ctx), task); err != nil {
		w.logger.Error("requeue deferred code deletion",
			zap.String("code_id", task.CodeID.String()),
			zap.Error(err),
		)
		return
	}
	w.logger.Info("deferred code deletion requeued",
		zap.String("code_id", task.CodeID.String()),
		zap.Time("run_at", task.RunAt),
	)
}
