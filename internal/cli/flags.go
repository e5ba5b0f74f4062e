package cli

import (
	"github.com/spf13/cobra"
)

// CommandFlags holds the flag values shared by every poeadmin command.
type CommandFlags struct {
	// ConfigPath is the configuration directory, empty for the default
	ConfigPath string
	// Endpoint overrides the configured deployment URL
	Endpoint string
	// LogLevel overrides the configured log level
	LogLevel string
	// OutputFormat specifies the desired output format (table, json, yaml, template=...)
	OutputFormat string
	// NoHeaders suppresses the header row in table output
	NoHeaders bool
	// Quiet suppresses progress indicators and non-essential output
	Quiet bool
}

// RegisterCommonFlags registers the persistent flags on the root command.
//
// The registered flags are:
//   - --config: Configuration directory (default ~/.config/poeadmin)
//   - --endpoint: Deployment URL (env: POEADMIN_ENDPOINT)
//   - --log-level: debug, info, warn or error (env: POEADMIN_LOG_LEVEL)
//   - --output/-o: Output format (table, json, yaml, template=<text>), default: "table"
//   - --no-headers: Suppress header row in table output
//   - --quiet/-q: Suppress non-essential output
func RegisterCommonFlags(cmd *cobra.Command, flags *CommandFlags) {
	cmd.PersistentFlags().StringVar(&flags.ConfigPath, "config", "", "Configuration directory (default ~/.config/poeadmin)")
	cmd.PersistentFlags().StringVar(&flags.Endpoint, "endpoint", "", "Deployment URL (env: POEADMIN_ENDPOINT)")
	cmd.PersistentFlags().StringVar(&flags.LogLevel, "log-level", "", "Log level: debug, info, warn or error (env: POEADMIN_LOG_LEVEL)")
	cmd.PersistentFlags().StringVarP(&flags.OutputFormat, "output", "o", string(OutputFormatTable), "Output format (table, json, yaml, template=<text>)")
	cmd.PersistentFlags().BoolVar(&flags.NoHeaders, "no-headers", false, "Suppress header row in table output")
	cmd.PersistentFlags().BoolVarP(&flags.Quiet, "quiet", "q", false, "Suppress non-essential output")
}
