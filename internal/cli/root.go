// Package cli holds the compoundlab command tree.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/yungbote/compoundlab-backend/internal/app"
)

var (
	Version = "dev"

	configFile string
	cfg        app.Config
)

func getRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:     "compoundlab",
		Short:   "Compound registry and property prediction service",
		Version: Version,
		Long: `compoundlab stores versioned chemical compounds, runs property
predictions through a background worker pool, and tracks experiments.

Configuration comes from defaults, an optional YAML file (--config) and
environment variables, in increasing order of precedence.`,
		PersistentPreRunE: bootstrap,
		SilenceErrors:     true,
		SilenceUsage:      true,
	}
	root.PersistentFlags().StringVarP(&configFile, "config", "c", "", "path to a YAML config file")
	root.AddCommand(getServeCmd(), getMigrateCmd(), getCreateAdminCmd())
	return root
}

func bootstrap(cmd *cobra.Command, _ []string) error {
	loaded, err := app.LoadConfig(configFile)
	if err != nil {
		return err
	}
	cfg = loaded
	return nil
}

// Execute runs the command tree and exits non-zero on failure.
func Execute() {
	if err := getRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
