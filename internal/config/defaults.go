package config

import "time"

const (
	// DefaultIdentityProviderPath is the deployment's login entry.
	DefaultIdentityProviderPath = "/auth/linuxdo"

	// DefaultLogLevel is used when neither file nor environment sets one.
	DefaultLogLevel = "info"
)

// GetDefaultConfig returns the default configuration. The endpoint has no
// default and must be configured.
func GetDefaultConfig() PoeadminConfig {
	return PoeadminConfig{
		IdentityProviderPath: DefaultIdentityProviderPath,
		LogLevel:             DefaultLogLevel,
		HTTP: HTTPConfig{
			Timeout: 30 * time.Second,
		},
		Handshake: HandshakeConfig{
			Timeout:      120 * time.Second,
			PollInterval: time.Second,
			RelayPort:    0,
		},
		Session: SessionConfig{
			VerifyPath: "/api/users",
			RetryDelay: 2 * time.Second,
		},
		Roster: RosterConfig{
			PageSize:  10,
			Filtering: "server",
		},
	}
}
