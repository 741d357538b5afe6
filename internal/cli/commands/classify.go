package commands

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/branchd-dev/sessiongate/internal/routes"
)

// NewClassifyCmd creates the classify command
func NewClassifyCmd() *cobra.Command {
	var policyFile string

	cmd := &cobra.Command{
		Use:   "classify <path>...",
		Short: "Show the access class of request paths",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if policyFile == "" {
				policyFile = os.Getenv("ROUTE_POLICY_FILE")
			}
			policy, err := routes.LoadPolicy(policyFile)
			if err != nil {
				return err
			}

			for _, route := range policy.UncoveredDefaults() {
				fmt.Fprintf(cmd.ErrOrStderr(), "warning: policy leaves built-in route %s public\n", route)
			}

			classifier := routes.NewClassifier(policy)
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			for _, p := range args {
				fmt.Fprintf(w, "%s\t%s\n", p, classifier.Classify(routes.Normalize(p)))
			}
			return w.Flush()
		},
	}

	cmd.Flags().StringVar(&policyFile, "policy", "", "Route policy YAML file (defaults to $ROUTE_POLICY_FILE, then the built-in policy)")

	return cmd
}
