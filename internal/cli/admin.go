package cli

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/yungbote/compoundlab-backend/internal/app"
)

func getCreateAdminCmd() *cobra.Command {
	var email, password, fullName string
	cmd := &cobra.Command{
		Use:   "create-admin",
		Short: "Create an admin account or promote an existing user",
		Long: `Create-admin creates an active admin user. If the email already
belongs to a user, that user is promoted and the password is left unchanged.

The password may be passed with --password or ADMIN_PASSWORD.

Examples:
  ADMIN_PASSWORD=... compoundlab create-admin --email admin@example.com`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if strings.TrimSpace(email) == "" {
				return errors.New("--email is required")
			}
			if password == "" {
				password = os.Getenv("ADMIN_PASSWORD")
			}
			u, err := app.CreateAdmin(cmd.Context(), cfg, email, password, fullName)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "admin ready: %s (%s)\n", u.Email, u.ID)
			return nil
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "admin email address")
	cmd.Flags().StringVar(&password, "password", "", "admin password")
	cmd.Flags().StringVar(&fullName, "full-name", "Administrator", "display name")
	return cmd
}
