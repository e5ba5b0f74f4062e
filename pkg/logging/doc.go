// Package logging provides subsystem-tagged structured logging for poeadmin.
//
// The package is a thin layer over log/slog. Every entry carries a subsystem
// attribute so output from the credential store, the handshake relay, the
// session machine and the roster controller can be told apart:
//
//	logging.InitForCLI(logging.LevelInfo, os.Stderr)
//
//	logging.Info("Config", "Loaded configuration from %s", path)
//	logging.Debug("Handshake", "Ignoring message from origin %s", origin)
//	logging.Error("Roster", err, "Failed to refresh roster")
//
// # Subsystems
//
//   - Config: configuration loading and validation
//   - Credential: credential persistence and file watching
//   - Handshake: browser handoff and loopback relay
//   - Session: session state transitions
//   - Roster: roster fetches and mutations
//   - Console: interactive console
//   - MCP: MCP tool surface
//
// Security-sensitive events (credential writes and removals) are logged with
// slog directly using a SECURITY_AUDIT message prefix and an event attribute.
// Token values are never logged.
package logging
