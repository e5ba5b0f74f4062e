package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/formzs/poe-to-gpt/internal/cli"
)

// keyCmd represents the key command group
var keyCmd = &cobra.Command{
	Use:   "key",
	Short: "Manage your own API key",
}

var keyRotateCmd = &cobra.Command{
	Use:   "rotate",
	Short: "Issue a new API key for the logged-in account",
	Long: `Issue a new API key for the logged-in account and store it next to the
session. The previous key stops working immediately.`,
	Args: cobra.NoArgs,
	RunE: runKeyRotate,
}

var keyRotateYes bool

func init() {
	keyRotateCmd.Flags().BoolVarP(&keyRotateYes, "yes", "y", false, "Do not ask for confirmation")

	keyCmd.AddCommand(keyRotateCmd)
	rootCmd.AddCommand(keyCmd)
}

func runKeyRotate(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	if err := a.requireSession(cmd.Context(), cmd); err != nil {
		return err
	}

	if !keyRotateYes {
		ok, err := cli.Confirm(cmd.InOrStdin(), cmd.ErrOrStderr(), "Rotate your API key?")
		if err != nil {
			return err
		}
		if !ok {
			return errAborted
		}
	}

	key, err := a.session.RotateScopedKey(cmd.Context())
	if err != nil {
		return a.fail(err)
	}
	if a.printer.Format() == cli.OutputFormatTable {
		fmt.Fprintln(cmd.OutOrStdout(), cli.FormatSuccess("API key rotated"))
		fmt.Fprintf(cmd.OutOrStdout(), "New API key: %s\n", key)
		return nil
	}
	return a.printer.PrintData(map[string]string{"api_key": key})
}
