package oauth

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"golang.org/x/oauth2"
)

// DefaultExpiryMargin is the safety margin applied when checking token expiry.
// A token is never handed out once less than this much lifetime remains.
const DefaultExpiryMargin = 60 * time.Second

// DefaultTokenStorageDir is the default directory for storing OAuth tokens,
// relative to the user's home directory.
const DefaultTokenStorageDir = ".config/farmfield/tokens"

// Kind identifies which grant a token was obtained with. The cache holds at
// most one token per kind.
type Kind string

const (
	// KindUser is a token acting on behalf of an end user (authorization code
	// grant, renewed with refresh tokens).
	KindUser Kind = "user"

	// KindClientCredentials is an application token from the client
	// credentials grant.
	KindClientCredentials Kind = "client_credentials"
)

// Kinds lists every supported token kind in a stable order.
func Kinds() []Kind {
	return []Kind{KindUser, KindClientCredentials}
}

// ParseKind validates a kind given on the command line or in config.
func ParseKind(s string) (Kind, error) {
	switch Kind(strings.ToLower(strings.TrimSpace(s))) {
	case KindUser:
		return KindUser, nil
	case KindClientCredentials, "cc", "client-credentials":
		return KindClientCredentials, nil
	default:
		return "", fmt.Errorf("unknown token kind %q (expected %q or %q)", s, KindUser, KindClientCredentials)
	}
}

// Token is an access token with the metadata needed to decide whether it can
// still be presented.
type Token struct {
	Kind Kind `json:"-"`

	// AccessToken is the bearer credential. Never log it.
	AccessToken string `json:"access_token"`

	// TokenType is typically "Bearer".
	TokenType string `json:"token_type"`

	// ExpiresAt is the absolute expiry. Zero means the provider gave none.
	ExpiresAt time.Time `json:"expires_at"`

	// Scope is the granted scope set, sorted and de-duplicated.
	Scope []string `json:"scope"`

	// RefreshToken is only issued for user tokens.
	RefreshToken string `json:"refresh_token,omitempty"`
}

// ValidAt reports whether the token may be presented at now, i.e. its
// remaining lifetime exceeds margin.
func (t *Token) ValidAt(now time.Time, margin time.Duration) bool {
	if t == nil || t.AccessToken == "" {
		return false
	}
	if t.ExpiresAt.IsZero() {
		return true
	}
	return now.Add(margin).Before(t.ExpiresAt)
}

// HasRefreshToken reports whether a refresh grant is possible.
func (t *Token) HasRefreshToken() bool {
	return t != nil && t.RefreshToken != ""
}

// ScopeString returns the scope set in OAuth wire form (space separated).
func (t *Token) ScopeString() string {
	return strings.Join(t.Scope, " ")
}

// ToOAuth2Token converts the Token for use with golang.org/x/oauth2.
func (t *Token) ToOAuth2Token() *oauth2.Token {
	return &oauth2.Token{
		AccessToken:  t.AccessToken,
		TokenType:    t.TokenType,
		RefreshToken: t.RefreshToken,
		Expiry:       t.ExpiresAt,
	}
}

// FromOAuth2Token builds a Token from a token endpoint response. The granted
// scope is taken from the response's "scope" parameter, falling back to the
// requested scopes when the provider omits it (RFC 6749 section 5.1).
func FromOAuth2Token(kind Kind, tok *oauth2.Token, requested []string) *Token {
	scope := requested
	if raw, ok := tok.Extra("scope").(string); ok && raw != "" {
		scope = strings.Fields(raw)
	}

	tokenType := tok.TokenType
	if tokenType == "" {
		tokenType = "Bearer"
	}

	return &Token{
		Kind:         kind,
		AccessToken:  tok.AccessToken,
		TokenType:    tokenType,
		ExpiresAt:    tok.Expiry,
		Scope:        NormalizeScopes(scope),
		RefreshToken: tok.RefreshToken,
	}
}

// NormalizeScopes returns scopes as a sorted set without blanks or duplicates.
func NormalizeScopes(scopes []string) []string {
	out := make([]string, 0, len(scopes))
	for _, s := range scopes {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	slices.Sort(out)
	return slices.Compact(out)
}
