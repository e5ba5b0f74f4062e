package cmd

import (
	"github.com/spf13/cobra"

	"github.com/formzs/poe-to-gpt/pkg/logging"
)

// statusCmd represents the status command
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the session status",
	Long: `Show whether poeadmin holds a verified administrator session.

A stored credential is verified against the deployment first. A credential
the deployment rejects is removed.

Examples:
  poeadmin status            # Show the session status
  poeadmin status -o json    # Machine-readable status`,
	Args: cobra.NoArgs,
	RunE: runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}

	if err := a.resume(cmd.Context(), cmd); err != nil {
		logging.Debug("CLI", "Session verification: %v", err)
	}
	return a.printer.PrintStatus(a.status())
}
