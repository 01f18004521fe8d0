// Package dispatch provides serial executors for platform callbacks.
package dispatch

import (
	"context"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"
	"github.com/srg/blescope/internal/groutine"
)

// Queue runs submitted functions one at a time, in submission order, on a
// dedicated goroutine. Submission never blocks.
type Queue struct {
	name   string
	logger *logrus.Logger

	mu      sync.Mutex
	pending []func()
	closed  bool
	wake    chan struct{}
	done    chan struct{}
}

// NewQueue starts a queue worker. The name labels the worker goroutine in profiles.
func NewQueue(name string, logger *logrus.Logger) *Queue {
	if logger == nil {
		logger = logrus.New()
	}
	q := &Queue{
		name:   name,
		logger: logger,
		wake:   make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
	groutine.Go(context.Background(), "dispatch-"+name, q.run)
	return q
}

// Async enqueues fn. Calls after Close are dropped.
func (q *Queue) Async(fn func()) {
	if fn == nil {
		return
	}
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		q.logger.WithField("queue", q.name).Debug("Dropping work submitted to closed queue")
		return
	}
	q.pending = append(q.pending, fn)
	q.mu.Unlock()

	select {
	case q.wake <- struct{}{}:
	default:
	}
}

// Sync enqueues fn and waits until it has run. It must not be called from
// the queue's own goroutine. Returns false if the queue is closed.
func (q *Queue) Sync(fn func()) bool {
	ran := make(chan struct{})
	q.mu.Lock()
	closed := q.closed
	q.mu.Unlock()
	if closed {
		return false
	}
	q.Async(func() {
		defer close(ran)
		fn()
	})
	select {
	case <-ran:
		return true
	case <-q.done:
		// The worker drains before exiting, so ran may still have closed.
		select {
		case <-ran:
			return true
		default:
			return false
		}
	}
}

// Close stops accepting work, lets already queued work finish, and waits for the worker.
func (q *Queue) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		<-q.done
		return
	}
	q.closed = true
	q.mu.Unlock()

	select {
	case q.wake <- struct{}{}:
	default:
	}
	<-q.done
}

func (q *Queue) run(ctx context.Context) {
	defer close(q.done)
	q.logger.WithField("goroutine", groutine.Name(ctx)).Debug("Dispatch queue started")
	for {
		q.mu.Lock()
		batch := q.pending
		q.pending = nil
		closed := q.closed
		q.mu.Unlock()

		for _, fn := range batch {
			q.invoke(fn)
		}

		if len(batch) > 0 {
			continue
		}
		if closed {
			return
		}
		<-q.wake
	}
}

func (q *Queue) invoke(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			q.logger.WithFields(logrus.Fields{
				"queue": q.name,
				"panic": fmt.Sprint(r),
			}).Error("Recovered panic in queued callback")
		}
	}()
	fn()
}

// Inline runs work synchronously on the caller's goroutine.
type Inline struct{}

// Async runs fn immediately.
func (Inline) Async(fn func()) {
	if fn != nil {
		fn()
	}
}
