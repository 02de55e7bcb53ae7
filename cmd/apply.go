// File: cmd/apply.go
package cmd

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/xkilldash9x/autoapply/internal/observability"
)

func newApplyCmd(a *app) *cobra.Command {
	applyCmd := &cobra.Command{
		Use:   "apply <job-url>",
		Short: "Apply to a single job and print the result as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := observability.GetLogger()
			cfg := a.cfg

			if err := cfg.ValidateCredentials(); err != nil {
				return err
			}

			components, err := a.factory.Create(ctx, cfg, logger)
			if err != nil {
				return fmt.Errorf("failed to initialize components: %w", err)
			}
			defer components.Shutdown(context.WithoutCancel(ctx))

			res, err := components.Applier.Apply(ctx, args[0])
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if err := enc.Encode(res); err != nil {
				return fmt.Errorf("failed to write result: %w", err)
			}
			if !res.Succeeded() {
				return fmt.Errorf("application failed at %s: %s", res.FailedStep, res.Error)
			}
			return nil
		},
	}
	return applyCmd
}
