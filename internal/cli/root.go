package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/branchd-dev/sessiongate/internal/cli/commands"
)

var version = "dev" // Will be set during build

// NewRootCmd builds the command tree
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "sessiongate",
		Short: "sessiongate - cookie session gateway operator tool",
		Long: `sessiongate CLI - inspect route policies and manage accounts of the
embedded (sqlite://) identity provider.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the version number",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "sessiongate version %s\n", version)
		},
	})

	rootCmd.AddCommand(commands.NewClassifyCmd())
	rootCmd.AddCommand(commands.NewUsersCmd())
	rootCmd.AddCommand(commands.NewSessionsCmd())

	return rootCmd
}

// Execute runs the root command
func Execute() error {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return err
	}
	return nil
}
