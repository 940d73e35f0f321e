package config

import (
	"net/url"

	"farmfield/pkg/oauth"
)

// Validate checks settings that must hold regardless of the operation.
func (c *Config) Validate() error {
	var errs ValidationErrors

	for field, raw := range map[string]string{
		"provider.auth_url":  c.Provider.AuthURL,
		"provider.token_url": c.Provider.TokenURL,
		"provider.api_url":   c.Provider.APIURL,
	} {
		u, err := url.Parse(raw)
		if err != nil || u.Scheme == "" || u.Host == "" {
			errs = append(errs, ValidationError{Field: field, Value: raw, Message: "must be an absolute URL"})
		}
	}

	if _, err := oauth.ParseKind(c.Provider.FieldTokenKind); err != nil {
		errs = append(errs, ValidationError{Field: "provider.field_token_kind", Value: c.Provider.FieldTokenKind, Message: err.Error()})
	}
	if c.Provider.RedirectPort < 0 || c.Provider.RedirectPort > 65535 {
		errs = append(errs, ValidationError{Field: "provider.redirect_port", Value: c.Provider.RedirectPort, Message: "must be a valid TCP port"})
	}
	if c.Retry.MaxAttempts < 1 {
		errs = append(errs, ValidationError{Field: "retry.max_attempts", Value: c.Retry.MaxAttempts, Message: "must be at least 1"})
	}
	if c.Projection.Padding < 0 {
		errs = append(errs, ValidationError{Field: "projection.padding", Value: c.Projection.Padding, Message: "must not be negative"})
	}
	if c.DefaultField.Width <= 0 || c.DefaultField.Height <= 0 {
		errs = append(errs, ValidationError{Field: "default_field", Value: c.DefaultField, Message: "width and height must be positive"})
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

// RequireCredentials reports a ConfigurationError when the client id or
// secret is missing.
func (p ProviderConfig) RequireCredentials() error {
	switch {
	case p.ClientID == "":
		return &ConfigurationError{
			Field:   "provider.client_id",
			Message: "client id is not set",
			Suggestions: []string{
				"export " + EnvClientID + "=<application id>",
				"or add it to a .env file in the working directory",
			},
		}
	case p.ClientSecret == "":
		return &ConfigurationError{
			Field:   "provider.client_secret",
			Message: "client secret is not set",
			Suggestions: []string{
				"export " + EnvClientSecret + "=<application secret>",
				"or add it to a .env file in the working directory",
			},
		}
	}
	return nil
}

// RequireOrganization reports a ConfigurationError when no organization is
// configured for live field listing.
func (p ProviderConfig) RequireOrganization() error {
	if p.OrganizationID == "" {
		return &ConfigurationError{
			Field:       "provider.organization_id",
			Message:     "organization id is not set",
			Suggestions: []string{"export " + EnvOrganizationID + "=<organization id>"},
		}
	}
	return nil
}
