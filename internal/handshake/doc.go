// Package handshake implements the login handoff between the identity
// provider's window and poeadmin.
//
// # Protocol
//
// Begin opens a secondary window at the deployment's identity-provider entry
// path (by default /auth/linuxdo). When the provider flow finishes, the
// completion page served by the deployment posts a JSON handoff message back:
//
//	{"error": "..."}                                          // provider refused
//	{"oauth_token": "...", "apiKey": "sk-yn-...", "admin": true} // success
//
// A message is accepted only when all of the following hold:
//   - its origin equals the hosting origin (the deployment's origin)
//   - its source is the window opened by the current Begin call
//   - its payload is an object carrying an error string or a token
//
// Anything else is dropped without a trace beyond a debug log line.
//
// # Relay
//
// A command-line process has no opener window, so Relay stands in for it: a
// loopback HTTP server that launches the system browser and turns the
// completion page's POST into a Message. The entry URL receives three extra
// query parameters:
//
//	self=http://127.0.0.1:<port>/handoff
//	closed=http://127.0.0.1:<port>/closed
//	window=<window id>
//
// and the completion page is expected to run
//
//	fetch(self + "?window=" + id, {method: "POST",
//	    headers: {"Content-Type": "application/json"},
//	    body: JSON.stringify(payload)})
//
// optionally followed by navigator.sendBeacon(closed + "?window=" + id)
// from a pagehide handler so a manually closed window is noticed before the
// deadline.
//
// # Lifecycle
//
// At most one handshake is in flight per Controller. The Subscription returned
// by Begin owns the deadline timer, the message listener, the closed-window
// poller and the window itself; all four are released through Dispose, which
// every terminal state invokes.
package handshake
