package config

import (
	"time"

	"farmfield/internal/geo"
)

const (
	// DefaultAuthURL is the provider's authorization endpoint.
	DefaultAuthURL = "https://signin.johndeere.com/oauth2/aus78tnlaysMraFhC1t7/v1/authorize"

	// DefaultTokenURL is the provider's token endpoint.
	DefaultTokenURL = "https://signin.johndeere.com/oauth2/aus78tnlaysMraFhC1t7/v1/token"

	// DefaultAPIURL is the provider's field API base URL.
	DefaultAPIURL = "https://sandboxapi.deere.com/platform"

	// DefaultRedirectPort is the loopback port of the OAuth redirect URI.
	DefaultRedirectPort = 9090

	// DefaultPadding is the margin in metres around a projected field.
	DefaultPadding = geo.DefaultPadding
)

// DefaultScopes are requested for both grant kinds.
var DefaultScopes = []string{"ag1", "ag2", "ag3", "eq1", "eq2", "org1", "org2", "files", "offline_access"}

// GetDefaultConfig returns the built-in configuration.
func GetDefaultConfig() Config {
	return Config{
		Provider: ProviderConfig{
			AuthURL:        DefaultAuthURL,
			TokenURL:       DefaultTokenURL,
			APIURL:         DefaultAPIURL,
			Scopes:         append([]string(nil), DefaultScopes...),
			RedirectPort:   DefaultRedirectPort,
			FieldTokenKind: "user",
		},
		Retry: RetryConfig{
			MaxAttempts:     3,
			InitialInterval: 500 * time.Millisecond,
			MaxInterval:     5 * time.Second,
		},
		Projection: ProjectionConfig{
			Padding: DefaultPadding,
		},
		DefaultField: DefaultFieldConfig{
			Name:   "Open Field",
			Width:  120,
			Height: 80,
		},
	}
}
