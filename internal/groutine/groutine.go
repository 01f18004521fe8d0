// Package groutine starts goroutines that carry a name in their pprof
// labels and context, so dispatch queues and link monitors can be told apart
// in profiles and logs.
package groutine

import (
	"context"
	"runtime/pprof"
)

type nameKey struct{}

// LabelKey is the pprof label holding the goroutine name.
const LabelKey = "goroutine_name"

// Go runs fn on a new goroutine labelled name. A nil parent uses
// context.Background.
func Go(parent context.Context, name string, fn func(ctx context.Context)) {
	if parent == nil {
		parent = context.Background()
	}
	go pprof.Do(parent, pprof.Labels(LabelKey, name), func(ctx context.Context) {
		fn(context.WithValue(ctx, nameKey{}, name))
	})
}

// Name returns the name given to Go, or "" outside such a goroutine.
func Name(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	name, _ := ctx.Value(nameKey{}).(string)
	return name
}
