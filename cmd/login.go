package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/formzs/poe-to-gpt/internal/cli"
	"github.com/formzs/poe-to-gpt/internal/handshake"
	"github.com/formzs/poe-to-gpt/internal/session"
	"github.com/formzs/poe-to-gpt/pkg/logging"
)

var loginForce bool

// loginCmd represents the login command
var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Log in through the deployment's identity provider",
	Long: `Log in through the deployment's identity provider.

poeadmin opens the identity provider in your browser and waits for the
deployment to hand the session back to a local relay on 127.0.0.1. The
account must be an administrator.

Examples:
  poeadmin login                           # Log in to the configured deployment
  poeadmin login --endpoint https://x.dev  # Log in to another deployment
  poeadmin login --force                   # Replace an existing session`,
	Args: cobra.NoArgs,
	RunE: runLogin,
}

// logoutCmd represents the logout command
var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "End the session and remove the stored credential",
	Args:  cobra.NoArgs,
	RunE:  runLogout,
}

func init() {
	loginCmd.Flags().BoolVar(&loginForce, "force", false, "Log in again even when a session exists")

	rootCmd.AddCommand(loginCmd)
	rootCmd.AddCommand(logoutCmd)
}

func runLogin(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	a, err := newApp(cmd)
	if err != nil {
		return err
	}

	if err := a.resume(ctx, cmd); err != nil {
		logging.Debug("Login", "Stored session not usable: %v", err)
	}
	if a.session.State() == session.StateAuthenticated {
		if !loginForce {
			fmt.Fprintln(cmd.OutOrStdout(), cli.FormatSuccess(fmt.Sprintf("Already logged in to %s", a.cfg.Endpoint)))
			return nil
		}
		info(cmd, "Discarding the current session of %s\n", a.cfg.Endpoint)
		if err := a.session.Logout(); err != nil {
			return err
		}
	}

	if err := a.login(ctx, cmd.ErrOrStderr(), cmd); err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), cli.FormatSuccess(fmt.Sprintf("Logged in to %s", a.cfg.Endpoint)))
	return nil
}

// login runs one browser handshake through a loopback relay and waits until
// the session machine has verified the handed-off credential.
func (a *app) login(ctx context.Context, out io.Writer, cmd *cobra.Command) error {
	origin, err := handshake.OriginOf(a.cfg.Endpoint)
	if err != nil {
		return err
	}

	relay, err := handshake.NewRelay(handshake.RelayConfig{
		Port:       a.cfg.Handshake.RelayPort,
		HostOrigin: origin,
		Launch: func(target string) error {
			fmt.Fprintf(out, "Opening the identity provider in your browser. If it does not open, visit:\n\n  %s\n\n", target)
			if err := handshake.OpenBrowser(target); err != nil {
				logging.Warn("Login", "Could not open a browser: %v", err)
			}
			return nil
		},
	})
	if err != nil {
		return err
	}

	relayCtx, cancelRelay := context.WithCancel(ctx)
	defer cancelRelay()
	if err := relay.Start(relayCtx); err != nil {
		return err
	}
	defer relay.Stop()

	controller, err := handshake.NewController(handshake.Config{
		EntryURL:     a.cfg.EntryURL(),
		HostOrigin:   origin,
		Timeout:      a.cfg.Handshake.Timeout,
		PollInterval: a.cfg.Handshake.PollInterval,
	}, relay, relay, a.store, a.session)
	if err != nil {
		return err
	}

	sub, err := controller.Begin(ctx)
	if err != nil {
		return &cli.HandshakeFailedError{Endpoint: a.cfg.Endpoint, Reason: err}
	}
	defer sub.Dispose()

	stopProgress := startProgress(cmd, "Waiting for the identity provider...")
	_, err = sub.Wait(ctx)
	stopProgress()
	if errors.Is(err, context.Canceled) {
		err = handshake.ErrCancelled
	}
	if err != nil {
		return a.fail(err)
	}

	if a.session.State() != session.StateAuthenticated {
		reason := a.session.LastError()
		if reason == nil {
			reason = errors.New("the session could not be verified")
		}
		return &cli.HandshakeFailedError{Endpoint: a.cfg.Endpoint, Reason: reason}
	}
	return nil
}

func runLogout(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}

	if _, ok := a.store.Get(); !ok {
		fmt.Fprintln(cmd.OutOrStdout(), "Not logged in.")
		return nil
	}

	// The server keeps no session state, removing the credential is enough.
	if err := a.store.Clear(); err != nil {
		return fmt.Errorf("failed to remove the stored credential: %w", err)
	}

	fmt.Fprintln(cmd.OutOrStdout(), cli.FormatSuccess(fmt.Sprintf("Logged out of %s", a.cfg.Endpoint)))
	return nil
}
