package main

import (
	"bytes"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// syncBuffer is a bytes.Buffer safe for the printer goroutine.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestProgressPrinter(t *testing.T) {
	out := &syncBuffer{}
	p := NewProgressPrinter(out, "Inspecting", "Scanning", "Failed")
	p.Start()
	p.Start()

	cb := p.Callback()
	cb("Connecting")
	assert.Eventually(t, func() bool { return strings.Contains(out.String(), "Connecting") }, time.Second, 10*time.Millisecond)

	cb("Failed")
	p.Stop()

	s := out.String()
	assert.True(t, strings.HasPrefix(s, "\rInspecting (Scanning...)"))
	assert.True(t, strings.HasSuffix(s, clearLineSequence), "stop MUST clear the line")
	assert.Equal(t, 1, strings.Count(s, clearLineSequence), "stop MUST run once")
}

func TestProgressPrinterStopWithoutStart(t *testing.T) {
	out := &syncBuffer{}
	p := NewCountdownProgressPrinter(out, "Scanning", "Scanning", 5*time.Second)
	p.Stop()
	assert.Empty(t, out.String())
}
