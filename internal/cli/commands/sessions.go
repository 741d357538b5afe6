package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

// NewSessionsCmd creates the sessions command group
func NewSessionsCmd() *cobra.Command {
	var dbPath string

	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "Maintain sessions of the embedded identity provider",
	}
	cmd.PersistentFlags().StringVar(&dbPath, "db", "", "SQLite database path (defaults to the sqlite:// IDENTITY_URL)")

	cmd.AddCommand(&cobra.Command{
		Use:   "purge",
		Short: "Delete expired sessions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			provider, err := openLocalProvider(dbPath)
			if err != nil {
				return err
			}
			defer provider.Close()

			n, err := provider.PurgeExpired(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Purged %d expired sessions\n", n)
			return nil
		},
	})

	return cmd
}
