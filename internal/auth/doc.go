// Package auth obtains OAuth2 access tokens for the field provider.
//
// Client.Acquire returns a cached token while its remaining lifetime exceeds
// the expiry margin and otherwise runs the grant for the requested kind:
// client credentials for application tokens, the refresh grant for user
// tokens, and the interactive authorization code grant with PKCE when no
// refresh token is available. Concurrent callers asking for the same kind
// share one exchange.
//
// Transient failures (5xx, 429, connection errors) are retried with
// exponential backoff. An invalid_grant response clears the cached entry and
// yields an AuthError matching ErrReauthorizationRequired.
package auth
