// Package queue implements a durable, delay-capable work queue on top
// of the store. Scheduling is decoupled from execution: rate-limit
// backoff is expressed as a delayed re-enqueue, never as a blocked
// consumer.
package queue

import (
	"context"
	"log/slog"
	"time"

	"github.com/starford/raido/internal/store"
)

// Storage is the slice of the store the queue needs.
type Storage interface {
	EnqueueItem(queue, payload string, availableAt, enqueuedAt int64) (int64, error)
	NextItem(queue string, now int64) (*store.QueueItem, error)
	NextAvailableAt(queue string) (int64, bool, error)
	DeleteItem(id int64) error
}

// Handler processes one delivered payload. A returned error is logged
// and the item is dropped; handlers that want a retry must re-enqueue
// explicitly.
type Handler func(ctx context.Context, payload string) error

// Queue is one named durable queue. Distinct queues progress
// independently; within one queue, delivery is serialized by the single
// Run loop, strictly in eligibility order, with at-least-once
// semantics (an item is deleted only after its handler returns).
type Queue struct {
	name   string
	st     Storage
	logger *slog.Logger

	poll time.Duration
	now  func() time.Time
	wake chan struct{}
}

// New creates a queue named name over st.
func New(name string, st Storage, logger *slog.Logger) *Queue {
	return &Queue{
		name:   name,
		st:     st,
		logger: logger,
		poll:   5 * time.Second,
		now:    time.Now,
		wake:   make(chan struct{}, 1),
	}
}

// Name returns the queue's name.
func (q *Queue) Name() string { return q.name }

// Enqueue records payload so it becomes eligible no earlier than
// now + delay.
func (q *Queue) Enqueue(payload string, delay time.Duration) error {
	if delay < 0 {
		delay = 0
	}
	now := q.now()
	if _, err := q.st.EnqueueItem(q.name, payload, now.Add(delay).Unix(), now.Unix()); err != nil {
		return err
	}
	// Nudge a sleeping consumer.
	select {
	case q.wake <- struct{}{}:
	default:
	}
	return nil
}

// Run drains the queue until ctx is cancelled, invoking h for each
// eligible item in order.
func (q *Queue) Run(ctx context.Context, h Handler) error {
	for {
		if ctx.Err() != nil {
			return nil
		}

		item, err := q.st.NextItem(q.name, q.now().Unix())
		if err != nil {
			q.logger.Error("queue: fetch next item failed",
				slog.String("queue", q.name), slog.String("error", err.Error()))
			if !q.sleep(ctx, q.poll) {
				return nil
			}
			continue
		}
		if item == nil {
			if !q.sleep(ctx, q.waitFor()) {
				return nil
			}
			continue
		}

		if err := h(ctx, item.Payload); err != nil {
			// No automatic redelivery: log and drop.
			q.logger.Warn("queue: handler failed, dropping item",
				slog.String("queue", q.name),
				slog.Int64("item_id", item.ID),
				slog.String("error", err.Error()))
		}
		if err := q.st.DeleteItem(item.ID); err != nil {
			q.logger.Error("queue: delete item failed",
				slog.String("queue", q.name),
				slog.Int64("item_id", item.ID),
				slog.String("error", err.Error()))
		}
	}
}

// waitFor returns how long to sleep before the next poll, shortened
// when a not-yet-eligible item is already scheduled.
func (q *Queue) waitFor() time.Duration {
	wait := q.poll
	at, ok, err := q.st.NextAvailableAt(q.name)
	if err != nil || !ok {
		return wait
	}
	if d := time.Duration(at-q.now().Unix()) * time.Second; d > 0 && d < wait {
		wait = d
	}
	return wait
}

// sleep blocks for d, waking early on a local enqueue. It reports false
// when ctx was cancelled.
func (q *Queue) sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-q.wake:
		return true
	case <-timer.C:
		return true
	}
}
