// Package mock provides in-process fakes of the precision-agriculture
// provider for tests.
//
// OAuthServer implements the token endpoint (client credentials, refresh
// token and authorization code with PKCE) plus an auto-approving authorize
// endpoint. Tests can queue failures (5xx, 429, invalid_grant), slow the
// endpoint down to provoke concurrent callers, and read per-grant request
// counters.
//
// FieldAPI serves the organization field list and boundary endpoints with
// pagination, and can answer 401 or 503 a set number of times.
//
// Clock drives the OAuth server and the auth client from one manual time
// source, so token expiry can be tested without sleeping.
//
// Example:
//
//	oauthServer := mock.NewOAuthServer(mock.OAuthServerConfig{
//	    ClientID:     "test-client",
//	    ClientSecret: "test-secret",
//	})
//	if _, err := oauthServer.Start(ctx); err != nil { ... }
//	defer oauthServer.Stop(ctx)
//
//	oauthServer.FailNext(2, http.StatusServiceUnavailable, "")
package mock
