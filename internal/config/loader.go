package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"github.com/formzs/poe-to-gpt/pkg/logging"
)

const (
	userConfigDir  = ".config/poeadmin"
	configFileName = "config.yaml"

	// EnvPrefix prefixes every environment variable read by LoadConfig.
	EnvPrefix = "POEADMIN_"
)

// osUserHomeDir is replaced in tests.
var osUserHomeDir = os.UserHomeDir

// lookupEnv supplies environment variables, nil means the process environment.
var lookupEnv map[string]string

// GetDefaultConfigPath returns ~/.config/poeadmin.
func GetDefaultConfigPath() (string, error) {
	homeDir, err := osUserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine user config directory: %w", err)
	}
	return filepath.Join(homeDir, userConfigDir), nil
}

// LoadConfig loads config.yaml from configPath on top of the defaults and
// applies POEADMIN_ environment variables. An empty configPath means the
// default directory. A missing file is not an error.
func LoadConfig(configPath string) (PoeadminConfig, error) {
	if configPath == "" {
		var err error
		if configPath, err = GetDefaultConfigPath(); err != nil {
			return PoeadminConfig{}, err
		}
	}

	config := GetDefaultConfig()
	configFilePath := filepath.Join(configPath, configFileName)

	data, err := os.ReadFile(configFilePath)
	switch {
	case errors.Is(err, os.ErrNotExist):
		logging.Debug("Config", "No config.yaml found at %s, using defaults", configFilePath)
	case err != nil:
		return PoeadminConfig{}, &ConfigurationError{
			FilePath:  configFilePath,
			ErrorType: "io",
			Message:   err.Error(),
		}
	default:
		if err := yaml.Unmarshal(data, &config); err != nil {
			return PoeadminConfig{}, &ConfigurationError{
				FilePath:    configFilePath,
				ErrorType:   "parse",
				Message:     err.Error(),
				Suggestions: []string{"check the YAML syntax", "durations are written like 30s or 2m"},
			}
		}
		logging.Debug("Config", "Loaded configuration from %s", configFilePath)
	}

	opts := env.Options{Prefix: EnvPrefix, Environment: lookupEnv}
	if err := env.ParseWithOptions(&config, opts); err != nil {
		return PoeadminConfig{}, &ConfigurationError{
			FilePath:  "environment",
			ErrorType: "parse",
			Message:   err.Error(),
		}
	}

	if config.CredentialsDir == "" {
		config.CredentialsDir = configPath
	}
	return config, nil
}
