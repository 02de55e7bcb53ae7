package pacing

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/xkilldash9x/autoapply/internal/config"
	"github.com/xkilldash9x/autoapply/internal/metrics"
)

// Policy enforces a randomized minimum gap between consecutive applications.
// The last-application timestamp lives for the whole process and only moves
// forward.
type Policy struct {
	min, max time.Duration
	clock    clockwork.Clock
	logger   *zap.Logger

	mu   sync.Mutex
	rng  *rand.Rand
	last time.Time
}

// Option customizes a Policy.
type Option func(*Policy)

// WithClock replaces the real clock.
func WithClock(c clockwork.Clock) Option {
	return func(p *Policy) { p.clock = c }
}

// WithRand makes the required gap deterministic.
func WithRand(r *rand.Rand) Option {
	return func(p *Policy) { p.rng = r }
}

// New creates a Policy bounded by cfg.
func New(cfg config.PacingConfig, logger *zap.Logger, opts ...Option) *Policy {
	p := &Policy{
		min:    cfg.MinWait,
		max:    cfg.MaxWait,
		clock:  clockwork.NewRealClock(),
		logger: logger.Named("pacing"),
		rng:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Enforce blocks until enough time has passed since the last recorded
// application and returns how long it waited. With no prior application it
// returns immediately. A fresh gap in [min, max] is drawn on every call.
func (p *Policy) Enforce(ctx context.Context) (time.Duration, error) {
	p.mu.Lock()
	last := p.last
	required := p.sampleLocked()
	p.mu.Unlock()

	if last.IsZero() {
		metrics.PacingWait.Observe(0)
		return 0, nil
	}

	elapsed := p.clock.Since(last)
	wait := required - elapsed
	if wait <= 0 {
		p.logger.Debug("No pacing wait needed.",
			zap.Duration("elapsed", elapsed), zap.Duration("required", required))
		metrics.PacingWait.Observe(0)
		return 0, nil
	}

	p.logger.Info("Waiting before next application.",
		zap.Duration("wait", wait.Round(time.Second)),
		zap.Duration("required", required.Round(time.Second)))

	timer := p.clock.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return 0, ctx.Err()
	case <-timer.Chan():
	}
	metrics.PacingWait.Observe(wait.Seconds())
	return wait, nil
}

func (p *Policy) sampleLocked() time.Duration {
	lo, hi := p.min, p.max
	if hi <= lo {
		return lo
	}
	return lo + time.Duration(p.rng.Int63n(int64(hi-lo)+1))
}

// Record notes that an application attempt finished at t. Timestamps older
// than the one already stored are ignored.
func (p *Policy) Record(t time.Time) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if t.After(p.last) {
		p.last = t
	}
}

// LastApplication returns the last recorded attempt, or the zero time.
func (p *Policy) LastApplication() time.Time {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.last
}
