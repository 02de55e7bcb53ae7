// internal/humanoid/humanoid.go
package humanoid

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/xkilldash9x/autoapply/internal/config"
	"go.uber.org/zap"
)

// Range is an inclusive interval a pause duration is drawn from.
type Range struct {
	Min time.Duration
	Max time.Duration
}

// Between builds a Range from two durations.
func Between(min, max time.Duration) Range {
	return Range{Min: min, Max: max}
}

// Seconds builds a Range from fractional seconds.
func Seconds(min, max float64) Range {
	return Range{
		Min: time.Duration(min * float64(time.Second)),
		Max: time.Duration(max * float64(time.Second)),
	}
}

// Fixed is a degenerate Range that always yields d.
func Fixed(d time.Duration) Range {
	return Range{Min: d, Max: d}
}

// Humanoid produces the randomized pauses that make browser automation look
// like a person at the keyboard.
type Humanoid struct {
	// mu guards rng, which is not safe for concurrent use.
	mu      sync.Mutex
	rng     *rand.Rand
	clock   clockwork.Clock
	logger  *zap.Logger
	enabled bool
	scale   float64
}

// Option customizes a Humanoid.
type Option func(*Humanoid)

// WithClock replaces the real clock, typically with a clockwork.FakeClock.
func WithClock(c clockwork.Clock) Option {
	return func(h *Humanoid) { h.clock = c }
}

// WithRand makes sampling deterministic.
func WithRand(r *rand.Rand) Option {
	return func(h *Humanoid) { h.rng = r }
}

// New creates a Humanoid from configuration.
func New(cfg config.HumanoidConfig, logger *zap.Logger, opts ...Option) *Humanoid {
	h := &Humanoid{
		rng:     rand.New(rand.NewSource(time.Now().UnixNano())),
		clock:   clockwork.NewRealClock(),
		logger:  logger.Named("humanoid"),
		enabled: cfg.Enabled,
		scale:   cfg.Scale,
	}
	if h.scale <= 0 {
		h.scale = 1
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// NewDisabled returns a Humanoid that never pauses. Used by tests and dry runs.
func NewDisabled() *Humanoid {
	return New(config.HumanoidConfig{Enabled: false}, zap.NewNop())
}

// Enabled reports whether Pause actually sleeps.
func (h *Humanoid) Enabled() bool {
	return h.enabled
}

// Sample draws a duration from r. The configured scale multiplies the random
// offset above r.Min, so the result never leaves [Min, Max]: a small scale
// keeps draws near Min and a large one piles them up at Max. An inverted
// range is treated as if its bounds were swapped.
func (h *Humanoid) Sample(r Range) time.Duration {
	lo, hi := r.Min, r.Max
	if hi < lo {
		lo, hi = hi, lo
	}
	span := hi - lo
	if span <= 0 {
		return lo
	}

	h.mu.Lock()
	offset := h.rng.Int63n(int64(span) + 1)
	h.mu.Unlock()

	scaled := float64(offset) * h.scale
	if scaled >= float64(span) {
		return hi
	}
	return lo + time.Duration(scaled)
}

// Intn returns a random int in [lo, hi].
func (h *Humanoid) Intn(lo, hi int) int {
	if hi <= lo {
		return lo
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	return lo + h.rng.Intn(hi-lo+1)
}

// Pause sleeps for a duration sampled from r. It returns early with ctx.Err()
// if the context ends first; no other error is possible.
func (h *Humanoid) Pause(ctx context.Context, r Range) error {
	if !h.enabled {
		return ctx.Err()
	}
	d := h.Sample(r)
	if d <= 0 {
		return ctx.Err()
	}
	h.logger.Debug("Pausing.", zap.Duration("duration", d))
	return sleep(ctx, h.clock, d)
}

func sleep(ctx context.Context, clock clockwork.Clock, d time.Duration) error {
	timer := clock.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.Chan():
		return nil
	}
}
