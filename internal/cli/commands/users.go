package commands

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/branchd-dev/sessiongate/internal/auth"
	"github.com/branchd-dev/sessiongate/internal/identity"
)

// NewUsersCmd creates the users command group
func NewUsersCmd() *cobra.Command {
	var dbPath string

	cmd := &cobra.Command{
		Use:   "users",
		Short: "Manage accounts of the embedded identity provider",
	}
	cmd.PersistentFlags().StringVar(&dbPath, "db", "", "SQLite database path (defaults to the sqlite:// IDENTITY_URL)")

	cmd.AddCommand(newUsersCreateCmd(&dbPath))
	cmd.AddCommand(newUsersSetRoleCmd(&dbPath))

	return cmd
}

func newUsersCreateCmd(dbPath *string) *cobra.Command {
	var password, role string

	cmd := &cobra.Command{
		Use:   "create <email>",
		Short: "Register an account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(password) < 6 {
				return errors.New("password must be at least 6 characters")
			}
			if err := validateRole(role); err != nil {
				return err
			}

			provider, err := openLocalProvider(*dbPath)
			if err != nil {
				return err
			}
			defer provider.Close()

			if err := provider.SignUp(cmd.Context(), args[0], password); err != nil {
				return err
			}
			if role != "" {
				if err := provider.SetRole(cmd.Context(), args[0], role); err != nil {
					return err
				}
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Created %s (%s)\n", args[0], auth.RoleOrDefault(role))
			return nil
		},
	}

	cmd.Flags().StringVar(&password, "password", "", "Account password")
	cmd.Flags().StringVar(&role, "role", "", "Role to assign (user or admin)")
	_ = cmd.MarkFlagRequired("password")

	return cmd
}

func newUsersSetRoleCmd(dbPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "set-role <email> <role>",
		Short: "Assign a role to an account",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			email, role := args[0], args[1]
			if err := validateRole(role); err != nil {
				return err
			}

			provider, err := openLocalProvider(*dbPath)
			if err != nil {
				return err
			}
			defer provider.Close()

			if err := provider.SetRole(cmd.Context(), email, role); err != nil {
				if errors.Is(err, identity.ErrUserNotFound) {
					return fmt.Errorf("no account registered for %s", email)
				}
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "%s is now %s\n", email, role)
			return nil
		},
	}
}

func validateRole(role string) error {
	switch role {
	case "", auth.RoleUser, auth.RoleAdmin:
		return nil
	}
	return fmt.Errorf("unknown role %q (expected %s or %s)", role, auth.RoleUser, auth.RoleAdmin)
}
