package cli

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/yungbote/compoundlab-backend/internal/app"
)

func getServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the prediction workers",
		Long: `Serve migrates the schema, then runs the HTTP API, the prediction
worker pool and the pending-work sweeper until SIGINT or SIGTERM.

Examples:
  compoundlab serve
  PORT=9000 PIPELINE_WORKERS=8 compoundlab serve --config prod.yaml`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runServe(ctx)
		},
	}
}

func runServe(ctx context.Context) error {
	a, err := app.New(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()
	a.Log.Info("Starting compoundlab", "version", Version, "port", cfg.Port)
	return a.Run(ctx)
}
