package session

import (
	"bytes"
	"sync"
	"time"

	"github.com/hedzr/go-ringbuf/v2/mpmc"
)

// Sample is one recorded characteristic value.
type Sample struct {
	At    time.Time
	Key   string
	Value []byte
}

// History keeps the most recent values per characteristic. When a ring is
// full the oldest sample is overwritten.
type History struct {
	size uint32

	mu    sync.Mutex
	rings map[string]mpmc.RichOverlappedRingBuffer[Sample]
	drops map[string]uint64
}

// NewHistory creates a history holding up to size samples per characteristic.
func NewHistory(size uint32) *History {
	if size < 2 {
		size = 2
	}
	return &History{
		size:  size,
		rings: make(map[string]mpmc.RichOverlappedRingBuffer[Sample]),
		drops: make(map[string]uint64),
	}
}

// Record appends a copy of value under key.
func (h *History) Record(key string, value []byte, at time.Time) {
	h.mu.Lock()
	defer h.mu.Unlock()

	ring, ok := h.rings[key]
	if !ok {
		ring = mpmc.NewOverlappedRingBuffer[Sample](h.size)
		h.rings[key] = ring
	}
	overwrites, err := ring.EnqueueM(Sample{At: at, Key: key, Value: bytes.Clone(value)})
	if err == nil {
		h.drops[key] += uint64(overwrites)
	}
}

// Drain removes and returns the samples recorded for key, oldest first.
func (h *History) Drain(key string) []Sample {
	h.mu.Lock()
	defer h.mu.Unlock()

	ring, ok := h.rings[key]
	if !ok {
		return nil
	}
	var out []Sample
	for !ring.IsEmpty() {
		s, err := ring.Dequeue()
		if err != nil {
			break
		}
		out = append(out, s)
	}
	return out
}

// Dropped returns how many samples of key were overwritten before being drained.
func (h *History) Dropped(key string) uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.drops[key]
}

// Keys returns the characteristic keys that have a ring.
func (h *History) Keys() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]string, 0, len(h.rings))
	for k := range h.rings {
		out = append(out, k)
	}
	return out
}

// Reset forgets everything.
func (h *History) Reset() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.rings = make(map[string]mpmc.RichOverlappedRingBuffer[Sample])
	h.drops = make(map[string]uint64)
}
