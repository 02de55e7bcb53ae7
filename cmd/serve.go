// File: cmd/serve.go
package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/xkilldash9x/autoapply/internal/api"
	"github.com/xkilldash9x/autoapply/internal/config"
	"github.com/xkilldash9x/autoapply/internal/observability"
)

func newServeCmd(a *app) *cobra.Command {
	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP service (POST /apply, GET /health, POST /reset, GET /metrics)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			logger := observability.GetLogger()
			cfg := a.cfg

			if err := cfg.ValidateCredentials(); err != nil {
				logger.Warn("Credentials are not configured; every apply will fail at login.", zap.Error(err))
			}

			components, err := a.factory.Create(ctx, cfg, logger)
			if err != nil {
				return fmt.Errorf("failed to initialize components: %w", err)
			}
			defer components.Shutdown(context.WithoutCancel(ctx))

			logBanner(logger, cfg)
			return api.NewServer(cfg.Server, components.Applier, logger).ListenAndServe(ctx)
		},
	}

	serveCmd.Flags().IntP("port", "p", 5000, "port to listen on")
	serveCmd.Flags().Bool("reject-concurrent", false, "reject an apply while another is running instead of queueing it")
	bindFlag(a, "server.port", serveCmd.Flags(), "port")
	bindFlag(a, "service.reject_concurrent", serveCmd.Flags(), "reject-concurrent")
	return serveCmd
}

// bindFlag lets a flag override the config key when it is set explicitly.
func bindFlag(a *app, key string, flags *pflag.FlagSet, name string) {
	if err := a.v.BindPFlag(key, flags.Lookup(name)); err != nil {
		panic(fmt.Sprintf("bind flag %s: %v", name, err))
	}
}

// logBanner summarizes the effective settings at startup.
func logBanner(logger *zap.Logger, cfg *config.Config) {
	logger.Info("autoapply service starting.",
		zap.String("version", Version),
		zap.String("email", cfg.Account.Email),
		zap.Bool("headless", cfg.Browser.Headless),
		zap.Bool("debug", cfg.Browser.Debug),
		zap.Duration("min_wait", cfg.Pacing.MinWait),
		zap.Duration("max_wait", cfg.Pacing.MaxWait),
		zap.Bool("reuse_session", cfg.Session.Reuse),
		zap.Int("max_applications_per_session", cfg.Session.MaxApplications),
		zap.Int("port", cfg.Server.Port))
	if cfg.Browser.Debug {
		logger.Info("Debug mode: the browser opens visibly. Unset DEBUG_MODE in production.")
	}
	logger.Info("Test with: " + curlHint(cfg.Server.Port))
}

func curlHint(port int) string {
	return fmt.Sprintf(`curl -X POST http://localhost:%d/apply -H "Content-Type: application/json" -d '{"job_url": "https://www.dice.com/job-detail/YOUR-JOB-ID"}'`, port)
}
