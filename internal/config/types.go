package config

import (
	"strings"
	"time"
)

// PoeadminConfig is the top-level configuration structure for poeadmin.
type PoeadminConfig struct {
	// Endpoint is the root URL of the deployment, which also hosts the
	// identity-provider completion page.
	Endpoint             string `yaml:"endpoint" env:"ENDPOINT"`
	IdentityProviderPath string `yaml:"identity_provider_path" env:"IDENTITY_PROVIDER_PATH"`
	// CredentialsDir holds the credential file, empty means the config directory.
	CredentialsDir string `yaml:"credentials_dir,omitempty" env:"CREDENTIALS_DIR"`
	LogLevel       string `yaml:"log_level" env:"LOG_LEVEL"`

	HTTP      HTTPConfig      `yaml:"http" envPrefix:"HTTP_"`
	Handshake HandshakeConfig `yaml:"handshake" envPrefix:"HANDSHAKE_"`
	Session   SessionConfig   `yaml:"session" envPrefix:"SESSION_"`
	Roster    RosterConfig    `yaml:"roster" envPrefix:"ROSTER_"`
}

// HTTPConfig configures the API client.
type HTTPConfig struct {
	Timeout time.Duration `yaml:"timeout" env:"TIMEOUT"`
}

// HandshakeConfig configures the login handshake.
type HandshakeConfig struct {
	Timeout      time.Duration `yaml:"timeout" env:"TIMEOUT"`
	PollInterval time.Duration `yaml:"poll_interval" env:"POLL_INTERVAL"`
	RelayPort    int           `yaml:"relay_port" env:"RELAY_PORT"`
}

// SessionConfig configures session verification.
type SessionConfig struct {
	VerifyPath string        `yaml:"verify_path" env:"VERIFY_PATH"`
	RetryDelay time.Duration `yaml:"retry_delay" env:"RETRY_DELAY"`
}

// RosterConfig configures the roster view.
type RosterConfig struct {
	PageSize  int    `yaml:"page_size" env:"PAGE_SIZE"`
	Filtering string `yaml:"filtering" env:"FILTERING"`
	// AccountID is the operator's own account id, 0 when unknown.
	AccountID int64 `yaml:"account_id,omitempty" env:"ACCOUNT_ID"`
}

// EntryURL returns the absolute identity-provider entry URL.
func (c PoeadminConfig) EntryURL() string {
	return strings.TrimRight(c.Endpoint, "/") + c.IdentityProviderPath
}
