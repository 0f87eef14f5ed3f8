package queue

import (
	"context"
	stderrors "errors"

	"github.com/redis/go-redis/v9"

	"televid/internal/pkg/errors"
)

type RedisQueue struct {
	rdb       *redis.Client
	queueName string
}

func NewRedisQueue(rdb *redis.Client, queueName string) *RedisQueue {
	return &RedisQueue{rdb: rdb, queueName: queueName}
}

// Pop does a non-blocking RPOP; redis.Nil means the list is empty.
func (q *RedisQueue) Pop(ctx context.Context) (string, error) {
	res, err := q.rdb.RPop(ctx, q.queueName).Result()
	if stderrors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", errors.WrapWithCode(err, errors.CodeUnavailable, "queue.redis_pop", "rpop failed")
	}
	return res, nil
}
