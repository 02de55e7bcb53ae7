// File: internal/service/components.go
package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/autoapply/internal/auth"
	"github.com/xkilldash9x/autoapply/internal/browser"
	"github.com/xkilldash9x/autoapply/internal/config"
	"github.com/xkilldash9x/autoapply/internal/humanoid"
	"github.com/xkilldash9x/autoapply/internal/lifecycle"
	"github.com/xkilldash9x/autoapply/internal/pacing"
	"github.com/xkilldash9x/autoapply/internal/workflow"
)

// shutdownTimeout bounds how long closing the session may take on exit.
const shutdownTimeout = 30 * time.Second

// Components holds everything an apply needs, wired together once per process.
type Components struct {
	Config        *config.Config
	Humanoid      *humanoid.Humanoid
	Artifacts     *browser.Artifacts
	Resolver      *browser.Resolver
	Authenticator *auth.Authenticator
	Pacing        *pacing.Policy
	Sessions      *lifecycle.Manager
	Workflow      *workflow.Workflow
	Applier       *Applier

	logger *zap.Logger
}

// Shutdown closes the browser session, if one is open. It is safe to call
// more than once.
func (c *Components) Shutdown(ctx context.Context) {
	if c == nil || c.Sessions == nil {
		return
	}
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()

	c.logger.Debug("Beginning components shutdown sequence.")
	c.Sessions.Shutdown(shutdownCtx)
	c.logger.Info("All components shut down.")
}
