package cmd

import (
	"context"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/formzs/poe-to-gpt/internal/console"
	"github.com/formzs/poe-to-gpt/internal/credential"
	"github.com/formzs/poe-to-gpt/pkg/logging"
)

// consoleCmd represents the console command
var consoleCmd = &cobra.Command{
	Use:     "console",
	Aliases: []string{"shell"},
	Short:   "Start the interactive admin console",
	Long: `Start an interactive console for browsing and managing user accounts.

The console keeps the roster in memory. Paging, and in client filtering mode
also searching and sorting, never refetch. Run 'login' inside the console
when the session ends. Logging out in another terminal ends the console's
session too.`,
	Args: cobra.NoArgs,
	RunE: runConsole,
}

func init() {
	rootCmd.AddCommand(consoleCmd)
}

func runConsole(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	if err := a.resume(ctx, cmd); err != nil {
		logging.Warn("Console", "Stored session could not be verified: %v", err)
	}

	watcher := credential.NewWatcher(a.store, a.session.CredentialChanged)
	if err := watcher.Start(); err != nil {
		logging.Warn("Console", "Not watching %s for changes: %v", a.store.Path(), err)
	} else {
		defer watcher.Stop()
	}

	c := console.New(a.roster, a.session, a.printer, console.Config{
		Endpoint:    a.cfg.Endpoint,
		HistoryFile: console.DefaultHistoryFile(a.configDir),
		Login: func(ctx context.Context) error {
			return a.login(ctx, cmd.ErrOrStderr(), cmd)
		},
	})
	return c.Run(ctx)
}
