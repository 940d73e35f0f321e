package config

import "time"

// Config is the top-level farmfield configuration.
type Config struct {
	Provider     ProviderConfig     `yaml:"provider"`
	TokenDir     string             `yaml:"token_dir,omitempty"`
	Retry        RetryConfig        `yaml:"retry"`
	Projection   ProjectionConfig   `yaml:"projection"`
	DefaultField DefaultFieldConfig `yaml:"default_field"`

	// HTTPTimeout bounds a single provider request. Zero leaves the limit to
	// the provider.
	HTTPTimeout time.Duration `yaml:"http_timeout,omitempty"`
}

// ProviderConfig describes the precision-agriculture cloud API.
type ProviderConfig struct {
	ClientID       string   `yaml:"client_id,omitempty"`
	ClientSecret   string   `yaml:"client_secret,omitempty"`
	AuthURL        string   `yaml:"auth_url"`
	TokenURL       string   `yaml:"token_url"`
	APIURL         string   `yaml:"api_url"`
	OrganizationID string   `yaml:"organization_id,omitempty"`
	Scopes         []string `yaml:"scopes"`

	// RedirectPort is the loopback port registered as the OAuth redirect URI.
	RedirectPort int `yaml:"redirect_port"`

	// FieldTokenKind selects which token kind authorizes field API calls.
	FieldTokenKind string `yaml:"field_token_kind"`
}

// RetryConfig bounds retries of transient provider failures.
type RetryConfig struct {
	MaxAttempts     int           `yaml:"max_attempts"`
	InitialInterval time.Duration `yaml:"initial_interval"`
	MaxInterval     time.Duration `yaml:"max_interval"`
}

// ProjectionConfig configures the local planar projection.
type ProjectionConfig struct {
	// Padding in metres added on every side of the projected boundary.
	Padding float64 `yaml:"padding"`
}

// DefaultFieldConfig is the field used when a sample selection cannot resolve.
type DefaultFieldConfig struct {
	Name   string  `yaml:"name"`
	Width  float64 `yaml:"width"`
	Height float64 `yaml:"height"`
}
