package cmd

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "support-tracker",
	Short: "Support-tracker reconciles support issues from Q&A sites and source control into a work-item tracker",
	Long: `support-tracker polls a public Q&A site, an internal Q&A site, and a
source-control host's issue tracker for support-relevant items, normalizes
them, and creates matching work items in a tracker when no equivalent
already exists. It can run one reconciliation pass from the CLI or serve
the control-plane HTTP API that drives on-demand runs.`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(runCmd)
}
