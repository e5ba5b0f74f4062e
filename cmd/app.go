package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/formzs/poe-to-gpt/internal/apiclient"
	"github.com/formzs/poe-to-gpt/internal/cli"
	"github.com/formzs/poe-to-gpt/internal/config"
	"github.com/formzs/poe-to-gpt/internal/credential"
	"github.com/formzs/poe-to-gpt/internal/roster"
	"github.com/formzs/poe-to-gpt/internal/session"
	"github.com/formzs/poe-to-gpt/pkg/logging"
)

// app bundles the components every command works with, wired from the
// configuration and the persistent flags.
type app struct {
	cfg       config.PoeadminConfig
	configDir string
	store     *credential.FileStore
	client    *apiclient.Client
	session   *session.Machine
	roster    *roster.Controller
	printer   *cli.Printer
}

// newApp loads the configuration, applies flag overrides and wires the
// credential store, API client, session machine and roster controller.
func newApp(cmd *cobra.Command) (*app, error) {
	configDir := rootFlags.ConfigPath
	if configDir == "" {
		var err error
		if configDir, err = config.GetDefaultConfigPath(); err != nil {
			return nil, err
		}
	}

	cfg, err := config.LoadConfig(configDir)
	if err != nil {
		var cfgErr *config.ConfigurationError
		if errors.As(err, &cfgErr) {
			return nil, errors.New(cfgErr.DetailedError())
		}
		return nil, err
	}
	if rootFlags.Endpoint != "" {
		cfg.Endpoint = rootFlags.Endpoint
	}
	if rootFlags.LogLevel != "" {
		cfg.LogLevel = rootFlags.LogLevel
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	level, err := logging.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	logging.InitForCLI(level, cmd.ErrOrStderr())

	credentialsDir := cfg.CredentialsDir
	if credentialsDir == "" {
		credentialsDir = configDir
	}
	store, err := credential.NewFileStore(credentialsDir)
	if err != nil {
		return nil, err
	}

	client, err := apiclient.New(apiclient.Config{
		BaseURL: cfg.Endpoint,
		Timeout: cfg.HTTP.Timeout,
	}, store)
	if err != nil {
		return nil, err
	}

	machine := session.New(store, client, session.Config{
		VerifyPath: cfg.Session.VerifyPath,
		RetryDelay: cfg.Session.RetryDelay,
	})

	filtering, err := roster.ParseFiltering(cfg.Roster.Filtering)
	if err != nil {
		return nil, err
	}
	controller := roster.NewController(client, machine, roster.Config{
		Filtering: filtering,
		SelfID:    cfg.Roster.AccountID,
		PageSize:  cfg.Roster.PageSize,
	})

	printer, err := cli.NewPrinter(cmd.OutOrStdout(), rootFlags.OutputFormat, rootFlags.NoHeaders)
	if err != nil {
		return nil, err
	}

	logging.Debug("CLI", "Using %s with credentials in %s", cfg.Endpoint, store.Path())
	return &app{
		cfg:       cfg,
		configDir: configDir,
		store:     store,
		client:    client,
		session:   machine,
		roster:    controller,
		printer:   printer,
	}, nil
}

// resume verifies a stored credential. A missing credential is not an error
// here, commands that need a session find out through requireSession.
func (a *app) resume(ctx context.Context, cmd *cobra.Command) error {
	stop := startProgress(cmd, "Verifying session...")
	err := a.session.Resume(ctx)
	stop()
	if errors.Is(err, session.ErrNotAuthenticated) {
		return nil
	}
	return err
}

// requireSession resumes the stored session and fails with guidance when
// there is none.
func (a *app) requireSession(ctx context.Context, cmd *cobra.Command) error {
	if err := a.resume(ctx, cmd); err != nil {
		return a.fail(err)
	}
	if a.session.State() != session.StateAuthenticated {
		reason := a.session.LastError()
		if reason == nil {
			reason = session.ErrNotAuthenticated
		}
		return a.fail(reason)
	}
	return nil
}

// fail converts err into the CLI error for the configured endpoint.
func (a *app) fail(err error) error {
	return cli.Translate(err, a.cfg.Endpoint)
}

// status reports the session for the status command and the console.
func (a *app) status() cli.SessionStatus {
	state := a.session.State()
	status := cli.SessionStatus{
		Endpoint:       a.cfg.Endpoint,
		State:          state.String(),
		LoggedIn:       state == session.StateAuthenticated,
		CredentialFile: a.store.Path(),
	}
	if cred, ok := a.store.Get(); ok {
		status.HasScopedKey = cred.ScopedKey != ""
	}
	if err := a.session.LastError(); err != nil {
		status.LastError = err.Error()
	}
	return status
}

func startProgress(cmd *cobra.Command, suffix string) func() {
	return cli.StartProgress(cmd.ErrOrStderr(), rootFlags.Quiet, suffix)
}

// info prints a progress line unless --quiet is set.
func info(cmd *cobra.Command, format string, args ...any) {
	if !rootFlags.Quiet {
		fmt.Fprintf(cmd.ErrOrStderr(), format, args...)
	}
}
