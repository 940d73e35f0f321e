package config

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidate_Defaults(t *testing.T) {
	cfg := GetDefaultConfig()
	assert.NoError(t, cfg.Validate())
}

func TestValidate_Errors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"relative api url", func(c *Config) { c.Provider.APIURL = "/platform" }, "provider.api_url"},
		{"unknown token kind", func(c *Config) { c.Provider.FieldTokenKind = "robot" }, "provider.field_token_kind"},
		{"port out of range", func(c *Config) { c.Provider.RedirectPort = 70000 }, "provider.redirect_port"},
		{"no attempts", func(c *Config) { c.Retry.MaxAttempts = 0 }, "retry.max_attempts"},
		{"negative padding", func(c *Config) { c.Projection.Padding = -3 }, "projection.padding"},
		{"empty default field", func(c *Config) { c.DefaultField.Width = 0 }, "default_field"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := GetDefaultConfig()
			tt.mutate(&cfg)

			err := cfg.Validate()
			require.Error(t, err)

			var verrs ValidationErrors
			require.True(t, errors.As(err, &verrs))
			require.Len(t, verrs, 1)
			assert.Equal(t, tt.field, verrs[0].Field)
		})
	}
}

func TestRequireCredentials(t *testing.T) {
	p := ProviderConfig{}
	err := p.RequireCredentials()

	var cfgErr *ConfigurationError
	require.True(t, errors.As(err, &cfgErr))
	assert.Equal(t, "provider.client_id", cfgErr.Field)
	assert.NotEmpty(t, cfgErr.Suggestions)
	assert.Contains(t, cfgErr.DetailedError(), EnvClientID)

	p.ClientID = "id"
	err = p.RequireCredentials()
	require.True(t, errors.As(err, &cfgErr))
	assert.Equal(t, "provider.client_secret", cfgErr.Field)

	p.ClientSecret = "secret"
	assert.NoError(t, p.RequireCredentials())
}

func TestRequireOrganization(t *testing.T) {
	assert.Error(t, ProviderConfig{}.RequireOrganization())
	assert.NoError(t, ProviderConfig{OrganizationID: "1"}.RequireOrganization())
}

func TestValidationErrors_Error(t *testing.T) {
	assert.Equal(t, "no validation errors", ValidationErrors{}.Error())
	one := ValidationErrors{{Field: "a", Message: "bad"}}
	assert.Equal(t, "field 'a': bad", one.Error())
	two := append(one, ValidationError{Message: "worse"})
	assert.Equal(t, "validation failed: field 'a': bad; worse", two.Error())
}
