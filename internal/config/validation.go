package config

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/formzs/poe-to-gpt/pkg/logging"
)

// ValidationError represents a validation error with context
type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
}

// Error implements the error interface
func (ve ValidationError) Error() string {
	if ve.Field == "" {
		return ve.Message
	}
	return fmt.Sprintf("field '%s': %s", ve.Field, ve.Message)
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

// Error implements the error interface for multiple validation errors
func (ve ValidationErrors) Error() string {
	if len(ve) == 0 {
		return "no validation errors"
	}
	if len(ve) == 1 {
		return ve[0].Error()
	}

	var messages []string
	for _, err := range ve {
		messages = append(messages, err.Error())
	}
	return fmt.Sprintf("validation failed: %s", strings.Join(messages, "; "))
}

// HasErrors returns true if there are any validation errors
func (ve ValidationErrors) HasErrors() bool {
	return len(ve) > 0
}

// Add adds a new validation error
func (ve *ValidationErrors) Add(field, message string, value ...interface{}) {
	var val interface{}
	if len(value) > 0 {
		val = value[0]
	}
	*ve = append(*ve, ValidationError{
		Field:   field,
		Value:   val,
		Message: message,
	})
}

// ValidateOneOf checks if a value is in a list of allowed values
func ValidateOneOf(field, value string, allowed []string) error {
	for _, allowedValue := range allowed {
		if value == allowedValue {
			return nil
		}
	}
	return ValidationError{
		Field:   field,
		Value:   value,
		Message: fmt.Sprintf("must be one of: %s", strings.Join(allowed, ", ")),
	}
}

// Validate checks the configuration and returns every problem found.
func (c PoeadminConfig) Validate() error {
	var errs ValidationErrors

	if strings.TrimSpace(c.Endpoint) == "" {
		errs.Add("endpoint", "is required (set it in config.yaml, POEADMIN_ENDPOINT or --endpoint)")
	} else if u, err := url.Parse(c.Endpoint); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		errs.Add("endpoint", "must be an absolute http or https URL", c.Endpoint)
	}

	if !strings.HasPrefix(c.IdentityProviderPath, "/") {
		errs.Add("identity_provider_path", "must start with /", c.IdentityProviderPath)
	}
	if _, err := logging.ParseLevel(c.LogLevel); err != nil {
		errs.Add("log_level", err.Error(), c.LogLevel)
	}

	if c.HTTP.Timeout <= 0 {
		errs.Add("http.timeout", "must be positive", c.HTTP.Timeout)
	}
	if c.Handshake.Timeout <= 0 {
		errs.Add("handshake.timeout", "must be positive", c.Handshake.Timeout)
	}
	if c.Handshake.PollInterval <= 0 || c.Handshake.PollInterval > c.Handshake.Timeout {
		errs.Add("handshake.poll_interval", "must be positive and not exceed handshake.timeout", c.Handshake.PollInterval)
	}
	if c.Handshake.RelayPort < 0 || c.Handshake.RelayPort > 65535 {
		errs.Add("handshake.relay_port", "must be between 0 and 65535", c.Handshake.RelayPort)
	}

	if !strings.HasPrefix(c.Session.VerifyPath, "/") {
		errs.Add("session.verify_path", "must start with /", c.Session.VerifyPath)
	}
	if c.Session.RetryDelay < 0 {
		errs.Add("session.retry_delay", "must not be negative", c.Session.RetryDelay)
	}

	if c.Roster.PageSize < 1 || c.Roster.PageSize > 100 {
		errs.Add("roster.page_size", "must be between 1 and 100", c.Roster.PageSize)
	}
	if err := ValidateOneOf("roster.filtering", c.Roster.Filtering, []string{"server", "client"}); err != nil {
		errs = append(errs, err.(ValidationError))
	}
	if c.Roster.AccountID < 0 {
		errs.Add("roster.account_id", "must not be negative", c.Roster.AccountID)
	}

	if errs.HasErrors() {
		return errs
	}
	return nil
}
