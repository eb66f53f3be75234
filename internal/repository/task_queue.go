package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type TaskKind string

const TaskDeleteCode TaskKind = "delete_code"

// Task is a one-shot job due at RunAt.
type Task struct {
	Kind   TaskKind
	CodeID uuid.UUID
	RunAt  time.Time
}

func (t Task) member() string {
	return fmt.Sprintf("%s:%s", t.Kind, t.CodeID)
}

// TaskQueue is a delayed one-shot job queue. A task is identified by kind and
// code id; enqueuing an identical task while one is pending keeps the first.
type TaskQueue interface {
	// Enqueue reports whether the task was newly added.
	Enqueue(ctx context.Context, task Task) (bool, error)
	// ClaimDue removes and returns up to limit tasks with RunAt <= now.
	// A claimed task is handed to exactly one caller.
	ClaimDue(ctx context.Context, now time.Time, limit int) ([]Task, error)
}
