package cmd

import (
	"github.com/spf13/cobra"

	"github.com/formzs/poe-to-gpt/internal/mcpserver"
	"github.com/formzs/poe-to-gpt/pkg/logging"
)

// mcpServeCmd represents the mcp-serve command
var mcpServeCmd = &cobra.Command{
	Use:   "mcp-serve",
	Short: "Serve the roster as MCP tools over stdio",
	Long: `Serve the roster as Model Context Protocol tools over stdin and stdout,
for use by AI assistants.

The server uses the stored session and never logs in by itself. Run
'poeadmin login' first. Logs go to stderr so they do not corrupt the protocol.

Example MCP client configuration:
  {"command": "poeadmin", "args": ["mcp-serve"]}`,
	Args: cobra.NoArgs,
	RunE: runMCPServe,
}

func init() {
	rootCmd.AddCommand(mcpServeCmd)
}

func runMCPServe(cmd *cobra.Command, args []string) error {
	// Spinners would write into the protocol stream.
	rootFlags.Quiet = true

	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	if err := a.resume(cmd.Context(), cmd); err != nil {
		logging.Warn("MCP", "Stored session could not be verified: %v", err)
	}

	logging.Info("MCP", "Serving poeadmin tools for %s on stdio", a.cfg.Endpoint)
	return mcpserver.New(a.roster, a.session, a.cfg.Endpoint, GetVersion()).Serve(cmd.Context())
}
