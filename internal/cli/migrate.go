package cli

import (
	"github.com/spf13/cobra"

	"github.com/yungbote/compoundlab-backend/internal/app"
)

func getMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Migrate the database schema to the latest version",
		Long: `Migrate creates missing tables, columns and indexes. It never drops
data, so it is safe to run before every deploy.

Examples:
  compoundlab migrate
  DB_DRIVER=sqlite DATABASE_URL=file:dev.db compoundlab migrate`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return app.Migrate(cfg)
		},
	}
}
