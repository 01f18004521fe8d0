package main

import (
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"
)

const (
	progressUpdateInterval = 100 * time.Millisecond
	clearLineSequence      = "\r\033[K"
)

// ProgressPrinter displays the current phase with elapsed or remaining time.
//
// A ProgressPrinter is single-use: Start at most once, Stop at least once.
// Phases listed as stop phases end the display when reported via Callback.
type ProgressPrinter struct {
	out        io.Writer
	prefix     string
	phase      atomic.Value
	stopPhases map[string]struct{}
	duration   time.Duration // countdown when positive
	startTime  time.Time

	started  atomic.Bool
	stopOnce sync.Once
	stopChan chan struct{}
	done     chan struct{}
}

// NewProgressPrinter creates a progress printer that counts up.
func NewProgressPrinter(out io.Writer, prefix, phase string, stopPhases ...string) *ProgressPrinter {
	return NewCountdownProgressPrinter(out, prefix, phase, 0, stopPhases...)
}

// NewCountdownProgressPrinter creates a progress printer that counts down
// from duration. A zero duration counts up.
func NewCountdownProgressPrinter(out io.Writer, prefix, phase string, duration time.Duration, stopPhases ...string) *ProgressPrinter {
	stopSet := make(map[string]struct{}, len(stopPhases))
	for _, s := range stopPhases {
		stopSet[s] = struct{}{}
	}
	p := &ProgressPrinter{
		out:        out,
		prefix:     prefix,
		stopPhases: stopSet,
		duration:   duration,
		stopChan:   make(chan struct{}),
		done:       make(chan struct{}),
	}
	p.phase.Store(phase)
	return p
}

// Start begins displaying progress updates in a background goroutine.
func (p *ProgressPrinter) Start() {
	if !p.started.CompareAndSwap(false, true) {
		return
	}
	p.startTime = time.Now()
	p.print(p.phase.Load().(string), 0)
	go p.loop()
}

func (p *ProgressPrinter) loop() {
	defer close(p.done)
	ticker := time.NewTicker(progressUpdateInterval)
	defer ticker.Stop()

	for {
		select {
		case <-p.stopChan:
			return
		case <-ticker.C:
			phase := p.phase.Load().(string)
			if _, stop := p.stopPhases[phase]; stop {
				return
			}
			p.print(phase, p.seconds())
		}
	}
}

func (p *ProgressPrinter) seconds() int {
	elapsed := time.Since(p.startTime)
	if p.duration <= 0 {
		return int(elapsed.Seconds())
	}
	remaining := p.duration - elapsed
	if remaining <= 0 {
		return 0
	}
	// Round to the nearest second
	return int(remaining.Seconds() + 0.5)
}

func (p *ProgressPrinter) print(phase string, seconds int) {
	if seconds > 0 {
		fmt.Fprintf(p.out, "\r%s (%s %ds)   ", p.prefix, phase, seconds)
		return
	}
	fmt.Fprintf(p.out, "\r%s (%s...)   ", p.prefix, phase)
}

// Callback returns a progress callback that updates the phase. Reporting a
// stop phase stops the printer. Safe for concurrent use.
func (p *ProgressPrinter) Callback() func(phase string) {
	return func(phase string) {
		p.phase.Store(phase)
		if _, stop := p.stopPhases[phase]; stop {
			p.Stop()
		}
	}
}

// Stop ends the display and clears the line. Safe to call repeatedly.
func (p *ProgressPrinter) Stop() {
	p.stopOnce.Do(func() {
		close(p.stopChan)
		if p.started.Load() {
			<-p.done
			fmt.Fprint(p.out, clearLineSequence)
		}
	})
}
