package main

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// Journal queue IDs, one per lending event type.
var EventQueues = []string{EventUserSignedUp, EventBookCreated, EventBookBorrowed}

// ErrQueueFull is returned when the in-memory queue buffer is exhausted.
var ErrQueueFull = errors.New("queue is full")

// Ensure both queues implement Queuer.
var (
	_ Queuer = (*redisQueue)(nil)
	_ Queuer = (*memoryQueue)(nil)
)

// Queuer describes a queue of lending events.
type Queuer interface {
	Push(ctx context.Context, qid string, event LendingEvent) error
	Pop(ctx context.Context, qids ...string) (string, LendingEvent, error)
}

// redisQueue represents a queue backed by redis lists.
type redisQueue struct {
	client *redis.Client
	prefix string
}

// NewRedisQueue returns a queue whose lists keys are namespaced with prefix.
func NewRedisQueue(client *redis.Client, prefix string) Queuer {
	if prefix == "" {
		prefix = "lending"
	}
	return &redisQueue{client: client, prefix: prefix}
}

func (q *redisQueue) key(qid string) string {
	return q.prefix + ":queue:" + qid
}

// Push enqueues an event onto the queue identified by qid.
func (q *redisQueue) Push(ctx context.Context, qid string, event LendingEvent) error {
	data, err := codec.Marshal(event)
	if err != nil {
		return err
	}
	return q.client.RPush(ctx, q.key(qid), data).Err()
}

// Pop blocks until an event is available on one of the queue ids.
func (q *redisQueue) Pop(ctx context.Context, qids ...string) (string, LendingEvent, error) {
	var event LendingEvent
	keys := make([]string, len(qids))
	byKey := make(map[string]string, len(qids))
	for i, qid := range qids {
		keys[i] = q.key(qid)
		byKey[keys[i]] = qid
	}
	infos, err := q.client.BLPop(ctx, 0*time.Second, keys...).Result()
	if err != nil {
		return "", event, err
	}

	if err = codec.UnmarshalFromString(infos[1], &event); err != nil {
		return "", event, err
	}
	return byKey[infos[0]], event, nil
}

type queuedEvent struct {
	qid   string
	event LendingEvent
}

// memoryQueue is a bounded in-process queue. Queue ids share one buffer
// so events keep their publication order.
type memoryQueue struct {
	items chan queuedEvent
}

// NewMemoryQueue returns an in-process queue holding up to size events.
func NewMemoryQueue(size int) Queuer {
	return &memoryQueue{items: make(chan queuedEvent, size)}
}

// Push never blocks. It fails with ErrQueueFull when the buffer is exhausted.
func (q *memoryQueue) Push(ctx context.Context, qid string, event LendingEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	select {
	case q.items <- queuedEvent{qid: qid, event: event}:
		return nil
	default:
		return ErrQueueFull
	}
}

// Pop waits for the next event. The qids are ignored since the buffer is shared.
func (q *memoryQueue) Pop(ctx context.Context, _ ...string) (string, LendingEvent, error) {
	select {
	case <-ctx.Done():
		return "", LendingEvent{}, ctx.Err()
	case item := <-q.items:
		return item.qid, item.event, nil
	}
}
