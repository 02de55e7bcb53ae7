package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/xkilldash9x/autoapply/internal/browser"
	"github.com/xkilldash9x/autoapply/internal/config"
	"github.com/xkilldash9x/autoapply/internal/metrics"
)

const teardownTimeout = 30 * time.Second

// State is the lifecycle state of the single session slot.
type State int

const (
	Absent State = iota
	Active
	Expired
)

func (s State) String() string {
	switch s {
	case Absent:
		return "absent"
	case Active:
		return "active"
	case Expired:
		return "expired"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// MarshalText renders the state by name in JSON.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Authenticator logs a fresh page in.
type Authenticator interface {
	Login(ctx context.Context, page browser.Page) error
}

// Session is an authenticated browser.
type Session struct {
	ID           string
	CreatedAt    time.Time
	ExpiresAt    time.Time
	Applications int

	browser browser.Browser
}

// Lease is a page handed out for one workflow run.
type Lease struct {
	Page      browser.Page
	SessionID string
	// Fresh is true when the session was created by this Acquire.
	Fresh bool
}

// Stats is a point-in-time view for health reporting.
type Stats struct {
	State               State
	SessionID           string
	SessionApplications int
	TotalApplications   int
	// LastApplication is when the most recent success was recorded. Zero
	// before the first one and after Reset.
	LastApplication time.Time
	CreatedAt       time.Time
	ExpiresAt       time.Time
}

// Manager owns the one process-wide browser session and decides when to
// reuse it and when to replace it.
type Manager struct {
	cfg      config.SessionConfig
	launcher browser.Launcher
	auth     Authenticator
	clock    clockwork.Clock
	logger   *zap.Logger

	// opMu serializes the slow operations (launch, login, teardown) so that
	// mu is only ever held briefly and Stats stays responsive.
	opMu sync.Mutex

	mu          sync.Mutex
	session     *Session
	total       int
	lastSuccess time.Time
}

// Option customizes a Manager.
type Option func(*Manager)

// WithClock replaces the real clock.
func WithClock(c clockwork.Clock) Option {
	return func(m *Manager) { m.clock = c }
}

// NewManager creates a Manager with no session.
func NewManager(cfg config.SessionConfig, launcher browser.Launcher, auth Authenticator, logger *zap.Logger, opts ...Option) *Manager {
	m := &Manager{
		cfg:      cfg,
		launcher: launcher,
		auth:     auth,
		clock:    clockwork.NewRealClock(),
		logger:   logger.Named("lifecycle"),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Reuse reports whether sessions survive between applications.
func (m *Manager) Reuse() bool {
	return m.cfg.Reuse
}

// Acquire returns a page on a logged-in session. An expired session is torn
// down first. With no session, a browser is launched and logged in; a launch
// failure wraps browser.ErrLaunch and a login failure wraps the
// authenticator's error, and in both cases no session remains.
func (m *Manager) Acquire(ctx context.Context) (*Lease, error) {
	m.opMu.Lock()
	defer m.opMu.Unlock()

	// 1. Retire an expired session.
	if s, reason := m.expired(); s != nil {
		m.logger.Info("Session expired.", zap.String("session_id", s.ID), zap.String("reason", reason))
		m.teardown(ctx, reason)
	}

	// 2. Reuse.
	m.mu.Lock()
	s := m.session
	m.mu.Unlock()
	if s != nil {
		page, err := s.browser.NewPage(ctx)
		if err == nil {
			m.logger.Info("Reusing session.", zap.String("session_id", s.ID), zap.Int("applications", s.Applications))
			return &Lease{Page: page, SessionID: s.ID}, nil
		}
		m.logger.Warn("Session browser is unusable; replacing it.", zap.String("session_id", s.ID), zap.Error(err))
		m.teardown(ctx, "unhealthy")
	}

	// 3. Create.
	return m.create(ctx)
}

func (m *Manager) create(ctx context.Context) (*Lease, error) {
	b, page, err := m.launcher.Launch(ctx)
	if err != nil {
		if !errors.Is(err, browser.ErrLaunch) {
			err = fmt.Errorf("%w: %w", browser.ErrLaunch, err)
		}
		return nil, err
	}

	if err := m.auth.Login(ctx, page); err != nil {
		metrics.LoginFailures.Inc()
		metrics.SessionTeardowns.WithLabelValues("login_failed").Inc()
		closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), teardownTimeout)
		defer cancel()
		if cerr := b.Close(closeCtx); cerr != nil {
			m.logger.Warn("Failed to close browser after login failure.", zap.Error(cerr))
		}
		return nil, err
	}

	now := m.clock.Now()
	s := &Session{
		ID:        uuid.NewString(),
		CreatedAt: now,
		ExpiresAt: now.Add(m.cfg.MaxDuration),
		browser:   b,
	}
	m.mu.Lock()
	m.session = s
	m.mu.Unlock()

	metrics.SessionsLaunched.Inc()
	metrics.SessionActive.Set(1)
	m.logger.Info("Session created.", zap.String("session_id", s.ID), zap.Time("expires_at", s.ExpiresAt))
	return &Lease{Page: page, SessionID: s.ID, Fresh: true}, nil
}

// expired returns the current session and why it must be retired, or nil.
func (m *Manager) expired() (*Session, string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.session == nil {
		return nil, ""
	}
	return m.session, m.expiryReasonLocked()
}

func (m *Manager) expiryReasonLocked() string {
	s := m.session
	switch {
	case s.Applications >= m.cfg.MaxApplications:
		return "quota"
	case !m.clock.Now().Before(s.ExpiresAt):
		return "expired"
	default:
		return ""
	}
}

// Release closes the lease's page. In one-shot mode the whole session goes
// with it.
func (m *Manager) Release(ctx context.Context, lease *Lease) {
	if lease == nil {
		return
	}
	if lease.Page != nil {
		if err := lease.Page.Close(ctx); err != nil {
			m.logger.Warn("Failed to close page.", zap.Error(err))
		}
	}
	if m.cfg.Reuse {
		return
	}

	m.opMu.Lock()
	defer m.opMu.Unlock()
	m.mu.Lock()
	current := m.session
	m.mu.Unlock()
	if current != nil && current.ID == lease.SessionID {
		m.teardown(ctx, "one_shot")
	}
}

// RecordApplication counts a successful application against the current
// session and the process total, stamps its time, and returns the new total.
func (m *Manager) RecordApplication() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.total++
	m.lastSuccess = m.clock.Now()
	if m.session != nil {
		m.session.Applications++
	}
	return m.total
}

// Reset tears down any session and zeroes every counter. Calling it again
// changes nothing.
func (m *Manager) Reset(ctx context.Context) {
	m.opMu.Lock()
	defer m.opMu.Unlock()

	m.teardown(ctx, "reset")
	m.mu.Lock()
	m.total = 0
	m.lastSuccess = time.Time{}
	m.mu.Unlock()
	m.logger.Info("Session state reset.")
}

// Shutdown closes the session on process exit.
func (m *Manager) Shutdown(ctx context.Context) {
	m.opMu.Lock()
	defer m.opMu.Unlock()
	m.teardown(ctx, "shutdown")
}

// teardown closes the current session, if any. Callers hold opMu.
func (m *Manager) teardown(ctx context.Context, reason string) {
	m.mu.Lock()
	s := m.session
	m.session = nil
	m.mu.Unlock()
	if s == nil {
		return
	}

	closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), teardownTimeout)
	defer cancel()
	if err := s.browser.Close(closeCtx); err != nil {
		m.logger.Warn("Failed to close session browser.", zap.String("session_id", s.ID), zap.Error(err))
	}

	metrics.SessionTeardowns.WithLabelValues(reason).Inc()
	metrics.SessionActive.Set(0)
	m.logger.Info("Session closed.",
		zap.String("session_id", s.ID),
		zap.String("reason", reason),
		zap.Int("applications", s.Applications))
}

// State reports the slot's state. A session past its quota or deadline is
// Expired until the next Acquire retires it.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stateLocked()
}

func (m *Manager) stateLocked() State {
	if m.session == nil {
		return Absent
	}
	if m.expiryReasonLocked() != "" {
		return Expired
	}
	return Active
}

// CurrentSession returns a copy of the live session.
func (m *Manager) CurrentSession() (Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.session == nil {
		return Session{}, false
	}
	return *m.session, true
}

// Stats returns a snapshot for health reporting.
func (m *Manager) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	st := Stats{State: m.stateLocked(), TotalApplications: m.total, LastApplication: m.lastSuccess}
	if s := m.session; s != nil {
		st.SessionID = s.ID
		st.SessionApplications = s.Applications
		st.CreatedAt = s.CreatedAt
		st.ExpiresAt = s.ExpiresAt
	}
	return st
}
