// Package notify delivers user-visible local notifications.
package notify

import (
	"fmt"
	"io"
	"sync"

	"github.com/fatih/color"
	"github.com/sirupsen/logrus"
)

// Notifier shows a short message to the user.
type Notifier interface {
	Notify(title, body string) error
}

// TerminalNotifier rings the terminal bell and prints a highlighted banner.
type TerminalNotifier struct {
	mu    sync.Mutex
	out   io.Writer
	title *color.Color
	bell  bool
}

// NewTerminalNotifier writes banners to out. Colour follows fatih/color's
// global detection unless forced with color.NoColor.
func NewTerminalNotifier(out io.Writer, bell bool) *TerminalNotifier {
	return &TerminalNotifier{
		out:   out,
		title: color.New(color.FgHiMagenta, color.Bold),
		bell:  bell,
	}
}

func (n *TerminalNotifier) Notify(title, body string) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	prefix := ""
	if n.bell {
		prefix = "\a"
	}
	if _, err := fmt.Fprintf(n.out, "%s%s %s\n", prefix, n.title.Sprintf("[%s]", title), body); err != nil {
		return fmt.Errorf("failed to write notification: %w", err)
	}
	return nil
}

// LogNotifier records notifications through logrus.
type LogNotifier struct {
	Logger *logrus.Logger
}

func (n LogNotifier) Notify(title, body string) error {
	if n.Logger == nil {
		return nil
	}
	n.Logger.WithField("title", title).Info(body)
	return nil
}

// Multi fans a notification out to several notifiers and returns the first error.
type Multi []Notifier

func (m Multi) Notify(title, body string) error {
	var first error
	for _, n := range m {
		if err := n.Notify(title, body); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Func adapts a function to Notifier.
type Func func(title, body string) error

func (f Func) Notify(title, body string) error {
	return f(title, body)
}
