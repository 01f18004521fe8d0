package dispatch

import "sync/atomic"

// RingChannel is a bounded channel with overwrite-oldest semantics. Producers
// never block: when the buffer is full the oldest element is discarded.
//
// Readers use C() like a normal channel. Closing is the producer's job, and
// Send after Close panics.
type RingChannel[T any] struct {
	ch      chan T
	metrics Metrics
}

// NewRingChannel creates a RingChannel with the given capacity.
func NewRingChannel[T any](capacity int) *RingChannel[T] {
	if capacity <= 0 {
		panic("ringchan: capacity must be > 0")
	}
	return &RingChannel[T]{ch: make(chan T, capacity)}
}

// C returns the receive side. Reads through C are not counted as Processed.
func (rc *RingChannel[T]) C() <-chan T {
	return rc.ch
}

// ForceSend always succeeds immediately, discarding the oldest value if the
// buffer is full. It reports whether a value was dropped.
func (rc *RingChannel[T]) ForceSend(v T) bool {
	dropped := false
	for {
		select {
		case rc.ch <- v:
			atomic.AddInt64(&rc.metrics.Written, 1)
			return dropped
		default:
		}
		// A concurrent reader may empty the buffer between the two selects.
		select {
		case <-rc.ch:
			atomic.AddInt64(&rc.metrics.Overwritten, 1)
			dropped = true
		default:
		}
	}
}

// TryReceive attempts a non-blocking receive.
func (rc *RingChannel[T]) TryReceive() (v T, ok bool) {
	select {
	case v, ok = <-rc.ch:
		if ok {
			atomic.AddInt64(&rc.metrics.Processed, 1)
		}
		return v, ok
	default:
		var zero T
		return zero, false
	}
}

// Len returns the number of buffered elements.
func (rc *RingChannel[T]) Len() int { return len(rc.ch) }

// Close closes the underlying channel.
func (rc *RingChannel[T]) Close() { close(rc.ch) }

// GetMetrics returns a snapshot of the counters.
func (rc *RingChannel[T]) GetMetrics() Metrics {
	return Metrics{
		Processed:   atomic.LoadInt64(&rc.metrics.Processed),
		Written:     atomic.LoadInt64(&rc.metrics.Written),
		Overwritten: atomic.LoadInt64(&rc.metrics.Overwritten),
	}
}

// Metrics counts RingChannel traffic.
type Metrics struct {
	Processed   int64
	Written     int64
	Overwritten int64
}
