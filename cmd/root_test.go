package cmd

import (
	"bytes"
	"errors"
	"fmt"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/formzs/poe-to-gpt/internal/cli"
	"github.com/formzs/poe-to-gpt/internal/handshake"
)

func TestSetVersion(t *testing.T) {
	old := GetVersion()
	t.Cleanup(func() { SetVersion(old) })

	SetVersion("1.2.3-test")
	assert.Equal(t, "1.2.3-test", rootCmd.Version)
	assert.Equal(t, "1.2.3-test", GetVersion())
}

func TestRootCommand(t *testing.T) {
	assert.Equal(t, "poeadmin", rootCmd.Use)
	assert.NotEmpty(t, rootCmd.Short)
	assert.NotEmpty(t, rootCmd.Long)
	assert.True(t, rootCmd.SilenceUsage)

	for _, name := range []string{"config", "endpoint", "log-level", "output", "no-headers", "quiet"} {
		assert.NotNil(t, rootCmd.PersistentFlags().Lookup(name), "flag %s", name)
	}
}

func TestVersionTemplate(t *testing.T) {
	testCmd := &cobra.Command{
		Use:     "test",
		Version: "1.0.0",
	}
	testCmd.SetVersionTemplate(`{{printf "poeadmin version %s\n" .Version}}`)

	var buf bytes.Buffer
	testCmd.SetOut(&buf)
	testCmd.SetArgs([]string{"--version"})
	require.NoError(t, testCmd.Execute())

	assert.Equal(t, "poeadmin version 1.0.0\n", buf.String())
}

func TestSubcommands(t *testing.T) {
	found := make(map[string]bool)
	for _, c := range rootCmd.Commands() {
		found[c.Name()] = true
	}

	for _, expected := range []string{"version", "self-update", "login", "logout", "status", "users", "key", "console", "mcp-serve"} {
		assert.True(t, found[expected], "expected subcommand %q", expected)
	}

	found = make(map[string]bool)
	for _, c := range usersCmd.Commands() {
		found[c.Name()] = true
	}
	for _, expected := range []string{"list", "show", "enable", "disable", "grant-admin", "revoke-admin", "reset-key"} {
		assert.True(t, found[expected], "expected users subcommand %q", expected)
	}
}

func TestGetExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"generic error", errors.New("boom"), ExitCodeError},
		{"auth required", &cli.AuthRequiredError{Endpoint: "https://poe.example.com"}, ExitCodeAuthRequired},
		{"auth expired", &cli.AuthExpiredError{Endpoint: "https://poe.example.com", Reason: errors.New("401")}, ExitCodeAuthRequired},
		{"handshake failed", &cli.HandshakeFailedError{Endpoint: "https://poe.example.com", Reason: handshake.ErrTimedOut}, ExitCodeAuthFailed},
		{"wrapped auth required", fmt.Errorf("listing: %w", &cli.AuthRequiredError{}), ExitCodeAuthRequired},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, getExitCode(tt.err))
		})
	}
}
