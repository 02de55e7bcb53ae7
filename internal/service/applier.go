package service

import (
	"context"
	"errors"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/xkilldash9x/autoapply/internal/browser"
	"github.com/xkilldash9x/autoapply/internal/lifecycle"
	"github.com/xkilldash9x/autoapply/internal/metrics"
	"github.com/xkilldash9x/autoapply/internal/workflow"
)

// ErrBusy is returned when an apply is already running and the applier is
// configured to reject rather than queue.
var ErrBusy = errors.New("an application is already in progress")

// Pacer spaces applications apart.
type Pacer interface {
	Enforce(ctx context.Context) (time.Duration, error)
	LastApplication() time.Time
}

// Sessions hands out pages on a logged-in browser.
type Sessions interface {
	Acquire(ctx context.Context) (*lifecycle.Lease, error)
	Release(ctx context.Context, lease *lifecycle.Lease)
	Reset(ctx context.Context)
	Stats() lifecycle.Stats
	Reuse() bool
}

// Runner executes one application on a page.
type Runner interface {
	Run(ctx context.Context, page browser.Page, jobURL string) workflow.Result
}

// ApplierConfig holds the settings the Applier reads.
type ApplierConfig struct {
	RejectConcurrent bool
	// DebugHold keeps the browser open after each run so it can be inspected.
	DebugHold time.Duration
	Headless  bool
}

// Health is the service status reported by /health. LastApplication is the
// last successful application and is cleared by Reset together with the
// counters. LastAttempt is when the last apply attempt finished, whatever
// its outcome. It drives pacing and survives Reset.
type Health struct {
	Status              string          `json:"status"`
	Headless            bool            `json:"headless"`
	ReuseSession        bool            `json:"reuse_session"`
	ApplicationsCount   int             `json:"applications_count"`
	LastApplication     *time.Time      `json:"last_application"`
	LastAttempt         *time.Time      `json:"last_attempt"`
	SessionState        lifecycle.State `json:"session_state"`
	SessionApplications int             `json:"session_applications"`
}

// Applier runs applications one at a time: pacing, then a session lease,
// then the workflow.
type Applier struct {
	cfg      ApplierConfig
	gate     *semaphore.Weighted
	pacer    Pacer
	sessions Sessions
	runner   Runner
	clock    clockwork.Clock
	logger   *zap.Logger
}

// ApplierOption customizes an Applier.
type ApplierOption func(*Applier)

// WithApplierClock replaces the clock used for the debug hold.
func WithApplierClock(c clockwork.Clock) ApplierOption {
	return func(a *Applier) { a.clock = c }
}

// NewApplier creates an Applier.
func NewApplier(cfg ApplierConfig, pacer Pacer, sessions Sessions, runner Runner, logger *zap.Logger, opts ...ApplierOption) *Applier {
	a := &Applier{
		cfg:      cfg,
		gate:     semaphore.NewWeighted(1),
		pacer:    pacer,
		sessions: sessions,
		runner:   runner,
		clock:    clockwork.NewRealClock(),
		logger:   logger.Named("applier"),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Apply submits an application for jobURL. Step failures come back as a
// failed Result with a nil error; the error is reserved for requests that
// never reached the workflow (busy, launch or login failure).
//
// Cancelling ctx only abandons a request still waiting for the gate. Once
// running, the apply is bounded by its step timeouts alone.
func (a *Applier) Apply(ctx context.Context, jobURL string) (workflow.Result, error) {
	if a.cfg.RejectConcurrent {
		if !a.gate.TryAcquire(1) {
			metrics.ApplyRejected.WithLabelValues("busy").Inc()
			return workflow.Result{}, ErrBusy
		}
	} else if err := a.gate.Acquire(ctx, 1); err != nil {
		return workflow.Result{}, err
	}
	defer a.gate.Release(1)

	runCtx := context.WithoutCancel(ctx)
	log := a.logger.With(zap.String("job_url", jobURL))

	if _, err := a.pacer.Enforce(runCtx); err != nil {
		return workflow.Result{}, err
	}

	lease, err := a.sessions.Acquire(runCtx)
	if err != nil {
		log.Error("Could not obtain a logged-in session.", zap.Error(err))
		return workflow.Result{}, err
	}
	defer a.sessions.Release(runCtx, lease)

	res := a.runner.Run(runCtx, lease.Page, jobURL)
	a.hold(runCtx, log)
	return res, nil
}

// hold keeps the page open for inspection in debug mode.
func (a *Applier) hold(ctx context.Context, log *zap.Logger) {
	if a.cfg.DebugHold <= 0 {
		return
	}
	log.Info("Debug mode: keeping browser open.", zap.Duration("hold", a.cfg.DebugHold))
	timer := a.clock.NewTimer(a.cfg.DebugHold)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.Chan():
	}
}

// Health reports counters and session state without waiting on a running
// apply.
func (a *Applier) Health() Health {
	st := a.sessions.Stats()
	h := Health{
		Status:              "running",
		Headless:            a.cfg.Headless,
		ReuseSession:        a.sessions.Reuse(),
		ApplicationsCount:   st.TotalApplications,
		SessionState:        st.State,
		SessionApplications: st.SessionApplications,
	}
	if last := st.LastApplication; !last.IsZero() {
		h.LastApplication = &last
	}
	if attempt := a.pacer.LastApplication(); !attempt.IsZero() {
		h.LastAttempt = &attempt
	}
	return h
}

// Reset closes any session and zeroes the counters. An apply in flight loses
// its browser and fails at its next step. The pacing clock is kept.
func (a *Applier) Reset(ctx context.Context) {
	a.logger.Info("Resetting session.")
	a.sessions.Reset(ctx)
}
