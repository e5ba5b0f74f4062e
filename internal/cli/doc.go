// Package cli provides the presentation layer shared by the poeadmin
// commands, the console and the MCP server.
//
// Printer renders roster pages, single accounts, mutation results and the
// session status in one of four formats:
//   - table: go-pretty tables with colored status and role columns
//   - json: indented JSON using the API's field names
//   - yaml: YAML converted from the JSON form, so field names match
//   - template=<text>: a text/template with the sprig function map,
//     executed against the JSON form
//
// The package also owns the CLI error types. Translate maps session, client
// and handshake failures onto AuthRequiredError, AuthExpiredError and
// HandshakeFailedError, which the root command turns into exit codes 2 and 3.
//
// StartProgress shows a spinner only when the output is a terminal, and
// PromptReason and Confirm read operator input for disable and key reset.
package cli
