package repository

import (
	"context"
	"slices"
	"sync"
	"time"
)

type memoryTaskQueue struct {
	mu    sync.Mutex
	tasks map[string]Task
}

func NewMemoryTaskQueue() TaskQueue {
	return &memoryTaskQueue{tasks: make(map[string]Task)}
}

func (q *memoryTaskQueue) Enqueue(_ context.Context, task Task) (bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	m := task.member()
	if _, ok := q.tasks[m]; ok {
		return false, nil
	}
	q.tasks[m] = task
	return true, nil
}

func (q *memoryTaskQueue) ClaimDue(_ context.Context, now time.Time, limit int) ([]Task, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	var due []Task
	for _, t := range q.tasks {
		if !t.RunAt.After(now) {
			due = append(due, t)
		}
	}
	slices.SortFunc(due, func(a, b Task) int { return a.RunAt.Compare(b.RunAt) })
	if limit > 0 && len(due) > limit {
		due = due[:limit]
	}
	for _, t := range due {
		delete(q.tasks, t.member())
	}
	return due, nil
}
