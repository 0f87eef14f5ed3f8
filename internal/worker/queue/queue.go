// Package queue pops raw job payloads from the shared job list.
package queue

import (
	"context"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"

	"televid/internal/config"
	"televid/internal/pkg/errors"
)

// Queue removes and returns one payload. An empty string with a nil error
// means the list is empty.
type Queue interface {
	Pop(ctx context.Context) (string, error)
}

// New builds the transport selected by cfg.Transport. rdb is only used by
// the redis transport and may be nil otherwise. Every Pop is bounded by
// cfg.Timeout when it is positive.
func New(cfg config.Queue, rdb *redis.Client, hc *http.Client) (Queue, error) {
	var q Queue
	switch cfg.Transport {
	case config.TransportREST:
		q = NewRESTQueue(cfg.RESTURL, cfg.RESTToken, cfg.Name, hc)
	case config.TransportRedis:
		if rdb == nil {
			return nil, errors.Validation("redis transport needs a client")
		}
		q = NewRedisQueue(rdb, cfg.Name)
	default:
		return nil, errors.Newf(errors.CodeValidation, "unknown queue transport: %s", cfg.Transport)
	}
	return WithTimeout(q, cfg.Timeout), nil
}

// WithTimeout bounds each Pop of q by d. A non-positive d returns q as is.
func WithTimeout(q Queue, d time.Duration) Queue {
	if d <= 0 {
		return q
	}
	return &boundedQueue{next: q, timeout: d}
}

type boundedQueue struct {
	next    Queue
	timeout time.Duration
}

func (b *boundedQueue) Pop(ctx context.Context) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	payload, err := b.next.Pop(ctx)
	if err != nil && ctx.Err() == context.DeadlineExceeded && !errors.IsTimeout(err) {
		return "", errors.Timeout("queue.pop").WithField("timeout_s", b.timeout.Seconds())
	}
	return payload, err
}
