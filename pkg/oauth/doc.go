// Package oauth holds the token model shared by the credential cache, the
// auth client and the CLI.
//
// A Token is keyed by its Kind: "user" tokens come from the authorization
// code grant and are renewed with refresh tokens, "client_credentials"
// tokens authenticate the application itself. Expiry is checked with
// DefaultExpiryMargin so a token is never presented within 60 seconds of
// its expiry.
//
// ParseChallenge reads the WWW-Authenticate header of a rejected API call.
package oauth
