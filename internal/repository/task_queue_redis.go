package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cast"
)

// claimScript pops due members atomically so concurrent workers never share a task.
var claimScript = redis.NewScript(`
local items = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', ARGV[1], 'WITHSCORES', 'LIMIT', 0, ARGV[2])
for i = 1, #items, 2 do
	redis.call('ZREM', KEYS[1], items[i])
end
return items
`)

type redisTaskQueue struct {
	client *redis.Client
	key    string
}

// NewRedisTaskQueue stores tasks in a sorted set scored by due time (unix ms).
func NewRedisTaskQueue(client *redis.Client, prefix string) TaskQueue {
	return &redisTaskQueue{client: client, key: prefix + "tasks"}
}

func (q *redisTaskQueue) Enqueue(ctx context.Context, task Task) (bool, error) {
	n, err := q.client.ZAddNX(ctx, q.key, redis.Z{
		Score:  float64(task.RunAt.UnixMilli()),
		Member: task.member(),
	}).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (q *redisTaskQueue) ClaimDue(ctx context.Context, now time.Time, limit int) ([]Task, error) {
	raw, err := claimScript.Run(ctx, q.client, []string{q.key}, now.UnixMilli(), limit).Slice()
	if err != nil {
		return nil, err
	}

	tasks := make([]Task, 0, len(raw)/2)
	for i := 0; i+1 < len(raw); i += 2 {
		task, err := parseMember(cast.ToString(raw[i]))
		if err != nil {
			return tasks, err
		}
		task.RunAt = time.UnixMilli(cast.ToInt64(raw[i+1])).UTC()
		tasks = append(tasks, task)
	}
	return tasks, nil
}

func parseMember(m string) (Task, error) {
	kind, id, ok := strings.Cut(m, ":")
	if !ok {
		return Task{}, fmt.Errorf("malformed task member %q", m)
	}
	codeID, err := uuid.Parse(id)
	if err != nil {
		return Task{}, fmt.Errorf("malformed task member %q: %w", m, err)
	}
	return Task{Kind: TaskKind(kind), CodeID: codeID}, nil
}
