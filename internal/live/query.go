package live

import (
	"context"

	"github.com/drallgood/plex-audiobook-cache/internal/logger"
)

// FetchFunc loads the current value of a query
type FetchFunc[T any] func(ctx context.Context) (T, error)

// Query is an observable query: it emits its current value on subscription
// and again after every change signal on its topics.
type Query[T any] struct {
	notifier *Notifier
	topics   []string
	fetch    FetchFunc[T]
	logger   *logger.Logger
}

// NewQuery binds fetch to the change signals of topics
func NewQuery[T any](n *Notifier, fetch FetchFunc[T], log *logger.Logger, topics ...string) *Query[T] {
	return &Query[T]{
		notifier: n,
		topics:   topics,
		fetch:    fetch,
		logger:   log,
	}
}

// Get runs the query once
func (q *Query[T]) Get(ctx context.Context) (T, error) {
	return q.fetch(ctx)
}

// Subscribe streams query results until ctx is done, then closes the channel.
// The first value is delivered as soon as the initial fetch completes. A failed
// fetch is logged and skipped; the next change signal retries it.
func (q *Query[T]) Subscribe(ctx context.Context) <-chan T {
	out := make(chan T)
	changes, cancel := q.notifier.Subscribe(q.topics...)

	go func() {
		defer close(out)
		defer cancel()

		for {
			value, err := q.fetch(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				q.logger.Error("Observable query failed", map[string]interface{}{
					"topics": q.topics,
					"error":  err.Error(),
				})
			} else {
				select {
				case out <- value:
				case <-ctx.Done():
					return
				}
			}

			select {
			case <-changes:
			case <-ctx.Done():
				return
			}
		}
	}()

	return out
}
