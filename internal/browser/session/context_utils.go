// internal/browser/session/context_utils.go
package session

import (
	"context"
	"time"
)

// CombineContext returns a context that carries the values of tab (which holds
// the chromedp target) but ends as soon as either tab or op ends. op's deadline,
// if earlier, becomes the combined deadline.
func CombineContext(tab, op context.Context) (context.Context, context.CancelFunc) {
	var (
		combined context.Context
		cancel   context.CancelFunc
	)
	if d, ok := op.Deadline(); ok {
		combined, cancel = context.WithDeadline(tab, d)
	} else {
		combined, cancel = context.WithCancel(tab)
	}

	stop := context.AfterFunc(op, cancel)
	return combined, func() {
		stop()
		cancel()
	}
}

// WithDefaultTimeout bounds ctx by d unless it already has a deadline.
func WithDefaultTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok || d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

type valueOnlyContext struct {
	context.Context
}

func (valueOnlyContext) Deadline() (deadline time.Time, ok bool) { return }
func (valueOnlyContext) Done() <-chan struct{}                   { return nil }
func (valueOnlyContext) Err() error                              { return nil }

// Detach returns a context with ctx's values but none of its cancellation.
// The browser process must outlive the request that caused it to launch.
func Detach(ctx context.Context) context.Context {
	return valueOnlyContext{ctx}
}
