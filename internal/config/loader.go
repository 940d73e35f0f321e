package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"farmfield/pkg/logging"
)

const (
	userConfigDir  = ".config/farmfield"
	configFileName = "config.yaml"
	envFileName    = ".env"
)

// Environment variables overriding file settings.
const (
	EnvClientID       = "FARMFIELD_CLIENT_ID"
	EnvClientSecret   = "FARMFIELD_CLIENT_SECRET"
	EnvOrganizationID = "FARMFIELD_ORG_ID"
	EnvAPIURL         = "FARMFIELD_API_URL"
	EnvTokenURL       = "FARMFIELD_TOKEN_URL"
	EnvAuthURL        = "FARMFIELD_AUTH_URL"
	EnvTokenDir       = "FARMFIELD_TOKEN_DIR"
	EnvRedirectPort   = "FARMFIELD_REDIRECT_PORT"
)

// osUserHomeDir is a variable so tests can redirect the home directory.
var osUserHomeDir = os.UserHomeDir

// DefaultConfigDir returns ~/.config/farmfield.
func DefaultConfigDir() (string, error) {
	homeDir, err := osUserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine user config directory: %w", err)
	}
	return filepath.Join(homeDir, userConfigDir), nil
}

// LoadConfig loads configuration from configDir (the default directory when
// empty). A missing config.yaml is not an error.
func LoadConfig(configDir string) (Config, error) {
	if configDir == "" {
		dir, err := DefaultConfigDir()
		if err != nil {
			return Config{}, err
		}
		configDir = dir
	}

	config := GetDefaultConfig()

	configFilePath := filepath.Join(configDir, configFileName)
	data, err := os.ReadFile(configFilePath)
	switch {
	case errors.Is(err, os.ErrNotExist):
		logging.Debug("ConfigLoader", "No config.yaml found at %s, using defaults", configFilePath)
	case err != nil:
		return Config{}, fmt.Errorf("error reading %s: %w", configFilePath, err)
	default:
		if err := yaml.Unmarshal(data, &config); err != nil {
			return Config{}, fmt.Errorf("error loading config from %s: %w", configFilePath, err)
		}
		logging.Info("ConfigLoader", "Loaded configuration from %s", configFilePath)
	}

	// godotenv.Load never overrides variables that are already set, so the
	// real environment wins over the working directory, which wins over the
	// config directory.
	_ = godotenv.Load(envFileName)
	_ = godotenv.Load(filepath.Join(configDir, envFileName))

	if err := applyEnv(&config); err != nil {
		return Config{}, err
	}

	if err := config.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid configuration: %w", err)
	}
	return config, nil
}

func applyEnv(c *Config) error {
	setString := func(dst *string, key string) {
		if v, ok := os.LookupEnv(key); ok && v != "" {
			*dst = v
		}
	}

	setString(&c.Provider.ClientID, EnvClientID)
	setString(&c.Provider.ClientSecret, EnvClientSecret)
	setString(&c.Provider.OrganizationID, EnvOrganizationID)
	setString(&c.Provider.APIURL, EnvAPIURL)
	setString(&c.Provider.TokenURL, EnvTokenURL)
	setString(&c.Provider.AuthURL, EnvAuthURL)
	setString(&c.TokenDir, EnvTokenDir)

	if v, ok := os.LookupEnv(EnvRedirectPort); ok && v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return &ConfigurationError{Field: EnvRedirectPort, Message: fmt.Sprintf("not a port number: %q", v)}
		}
		c.Provider.RedirectPort = port
	}
	return nil
}
