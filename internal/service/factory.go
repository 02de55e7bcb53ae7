// File: internal/service/factory.go
package service

import (
	"context"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/xkilldash9x/autoapply/internal/auth"
	"github.com/xkilldash9x/autoapply/internal/browser"
	"github.com/xkilldash9x/autoapply/internal/browser/session"
	"github.com/xkilldash9x/autoapply/internal/config"
	"github.com/xkilldash9x/autoapply/internal/humanoid"
	"github.com/xkilldash9x/autoapply/internal/lifecycle"
	"github.com/xkilldash9x/autoapply/internal/pacing"
	"github.com/xkilldash9x/autoapply/internal/workflow"
)

// ComponentFactory builds the Components for a configuration. The
// abstraction lets the commands run against fakes in tests.
type ComponentFactory interface {
	Create(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Components, error)
}

// concreteFactory is the production implementation: browsers come from
// chromedp.
type concreteFactory struct{}

// NewComponentFactory creates the production factory.
func NewComponentFactory() ComponentFactory {
	return &concreteFactory{}
}

func (f *concreteFactory) Create(_ context.Context, cfg *config.Config, logger *zap.Logger) (*Components, error) {
	return Build(cfg, session.NewFactory(cfg.Browser, logger), logger)
}

// Option customizes Build.
type Option func(*buildOptions)

type buildOptions struct {
	clock clockwork.Clock
}

// WithClock drives every timed component from c.
func WithClock(c clockwork.Clock) Option {
	return func(o *buildOptions) { o.clock = c }
}

// Build wires the components around launcher. Configuration is validated
// first; credentials are not, so that the service can start and report a
// login failure per request.
func Build(cfg *config.Config, launcher browser.Launcher, logger *zap.Logger, opts ...Option) (*Components, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	o := buildOptions{clock: clockwork.NewRealClock()}
	for _, opt := range opts {
		opt(&o)
	}

	h := humanoid.New(cfg.Humanoid, logger, humanoid.WithClock(o.clock))
	artifacts := browser.NewArtifacts(cfg.Artifacts.Dir, logger)
	resolver := browser.NewResolver(h, artifacts, logger)
	authenticator := auth.New(cfg, h, artifacts, logger)
	pace := pacing.New(cfg.Pacing, logger, pacing.WithClock(o.clock))
	sessions := lifecycle.NewManager(cfg.Session, launcher, authenticator, logger, lifecycle.WithClock(o.clock))

	wf := workflow.New(cfg, workflow.Deps{
		Humanoid:  h,
		Resolver:  resolver,
		Artifacts: artifacts,
		Pacing:    pace,
		Counter:   sessions,
		Clock:     o.clock,
		Logger:    logger,
	})

	var hold time.Duration
	if cfg.Browser.Debug {
		hold = cfg.Browser.DebugHold
	}
	applier := NewApplier(ApplierConfig{
		RejectConcurrent: cfg.Service.RejectConcurrent,
		DebugHold:        hold,
		Headless:         cfg.Browser.Headless,
	}, pace, sessions, wf, logger, WithApplierClock(o.clock))

	return &Components{
		Config:        cfg,
		Humanoid:      h,
		Artifacts:     artifacts,
		Resolver:      resolver,
		Authenticator: authenticator,
		Pacing:        pace,
		Sessions:      sessions,
		Workflow:      wf,
		Applier:       applier,
		logger:        logger.Named("service"),
	}, nil
}
