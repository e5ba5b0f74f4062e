package config

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() PoeadminConfig {
	cfg := GetDefaultConfig()
	cfg.Endpoint = "https://poe.example.com"
	return cfg
}

func TestValidate_Valid(t *testing.T) {
	assert.NoError(t, validConfig().Validate())
}

func TestValidate_Fields(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*PoeadminConfig)
		field  string
	}{
		{"missing endpoint", func(c *PoeadminConfig) { c.Endpoint = "" }, "endpoint"},
		{"relative endpoint", func(c *PoeadminConfig) { c.Endpoint = "poe.example.com" }, "endpoint"},
		{"ftp endpoint", func(c *PoeadminConfig) { c.Endpoint = "ftp://poe.example.com" }, "endpoint"},
		{"provider path", func(c *PoeadminConfig) { c.IdentityProviderPath = "auth/linuxdo" }, "identity_provider_path"},
		{"log level", func(c *PoeadminConfig) { c.LogLevel = "loud" }, "log_level"},
		{"http timeout", func(c *PoeadminConfig) { c.HTTP.Timeout = 0 }, "http.timeout"},
		{"handshake timeout", func(c *PoeadminConfig) { c.Handshake.Timeout = -time.Second }, "handshake.timeout"},
		{"poll interval", func(c *PoeadminConfig) { c.Handshake.PollInterval = 5 * time.Minute }, "handshake.poll_interval"},
		{"relay port", func(c *PoeadminConfig) { c.Handshake.RelayPort = 70000 }, "handshake.relay_port"},
		{"verify path", func(c *PoeadminConfig) { c.Session.VerifyPath = "" }, "session.verify_path"},
		{"page size", func(c *PoeadminConfig) { c.Roster.PageSize = 0 }, "roster.page_size"},
		{"filtering", func(c *PoeadminConfig) { c.Roster.Filtering = "both" }, "roster.filtering"},
		{"account id", func(c *PoeadminConfig) { c.Roster.AccountID = -1 }, "roster.account_id"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := validConfig()
			tc.mutate(&cfg)

			err := cfg.Validate()
			require.Error(t, err)

			var errs ValidationErrors
			require.True(t, errors.As(err, &errs))
			require.Len(t, errs, 1)
			assert.Equal(t, tc.field, errs[0].Field)
		})
	}
}

func TestValidationErrors_Error(t *testing.T) {
	var errs ValidationErrors
	assert.Equal(t, "no validation errors", errs.Error())

	errs.Add("endpoint", "is required")
	assert.Equal(t, "field 'endpoint': is required", errs.Error())

	errs.Add("", "something else")
	assert.Equal(t, "validation failed: field 'endpoint': is required; something else", errs.Error())
}
