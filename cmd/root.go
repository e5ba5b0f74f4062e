package cmd

import (
	"errors"
	"os"

	"github.com/spf13/cobra"

	"github.com/formzs/poe-to-gpt/internal/cli"
)

// Exit codes for CLI commands.
// These follow common conventions so scripts can react to a missing session.
const (
	// ExitCodeSuccess indicates successful execution.
	ExitCodeSuccess = 0
	// ExitCodeError indicates a general error (command failed, invalid arguments).
	ExitCodeError = 1
	// ExitCodeAuthRequired indicates there is no session, or it expired.
	ExitCodeAuthRequired = 2
	// ExitCodeAuthFailed indicates the browser login failed.
	ExitCodeAuthFailed = 3
)

// rootFlags holds the persistent flags shared by every command.
var rootFlags = cli.CommandFlags{OutputFormat: string(cli.OutputFormatTable)}

// rootCmd represents the base command for poeadmin.
var rootCmd = &cobra.Command{
	Use:   "poeadmin",
	Short: "Administer a poe-to-gpt deployment",
	Long: `poeadmin manages the user accounts of a poe-to-gpt deployment.

Log in once through the deployment's identity provider with 'poeadmin login'.
The session is kept in ~/.config/poeadmin and reused by every command until
it expires or you log out.`,
	// SilenceUsage prevents Cobra from printing the usage message on errors that are handled by the application.
	SilenceUsage: true,
}

// SetVersion sets the version for the root command.
// This function is typically called from the main package to inject the application version at build time.
func SetVersion(v string) {
	rootCmd.Version = v
}

// GetVersion returns the current version of the application.
func GetVersion() string {
	return rootCmd.Version
}

// Execute is the main entry point for the CLI application.
// This function is called by main.main().
func Execute() {
	rootCmd.SetVersionTemplate(`{{printf "poeadmin version %s\n" .Version}}`)

	err := rootCmd.Execute()
	if err != nil {
		os.Exit(getExitCode(err))
	}
}

// getExitCode determines the appropriate exit code based on the error type.
func getExitCode(err error) int {
	var authRequired *cli.AuthRequiredError
	if errors.As(err, &authRequired) {
		return ExitCodeAuthRequired
	}

	var authExpired *cli.AuthExpiredError
	if errors.As(err, &authExpired) {
		return ExitCodeAuthRequired
	}

	var handshakeFailed *cli.HandshakeFailedError
	if errors.As(err, &handshakeFailed) {
		return ExitCodeAuthFailed
	}

	return ExitCodeError
}

func init() {
	cli.RegisterCommonFlags(rootCmd, &rootFlags)

	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newSelfUpdateCmd())
}
