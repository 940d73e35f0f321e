package auth

import (
	"context"
	"errors"
	"fmt"
	"io"

	"farmfield/pkg/logging"
	"farmfield/pkg/oauth"
)

// AuthorizationRequest is handed to an Authorizer to run the front channel
// of the authorization code grant.
type AuthorizationRequest struct {
	// State is the anti-forgery value the redirect must echo.
	State string

	// URL builds the authorization URL for the given redirect URI.
	URL func(redirectURI string) string
}

// AuthorizationResponse carries the code delivered to the redirect URI.
type AuthorizationResponse struct {
	Code        string
	RedirectURI string
}

// Authorizer obtains an authorization code from the resource owner.
type Authorizer interface {
	Authorize(ctx context.Context, req AuthorizationRequest) (*AuthorizationResponse, error)
}

// LoopbackAuthorizer sends the user to the provider in a browser and
// receives the redirect on a 127.0.0.1 callback server. It has no timeout of
// its own and waits until ctx is done.
type LoopbackAuthorizer struct {
	// Port is the registered redirect port.
	Port int

	// OpenBrowser defaults to OpenBrowser.
	OpenBrowser func(url string) error

	// Out receives the authorization URL as a fallback to the browser.
	Out io.Writer
}

// Authorize implements Authorizer.
func (a *LoopbackAuthorizer) Authorize(ctx context.Context, req AuthorizationRequest) (*AuthorizationResponse, error) {
	server := NewCallbackServer(a.Port)
	redirectURI, err := server.Start(ctx)
	if err != nil {
		return nil, err
	}
	defer server.Stop()

	authURL := req.URL(redirectURI)

	if a.Out != nil {
		fmt.Fprintf(a.Out, "Opening your browser to authorize farmfield.\nIf it does not open, visit:\n\n  %s\n\n", authURL)
	}
	open := a.OpenBrowser
	if open == nil {
		open = OpenBrowser
	}
	if err := open(authURL); err != nil {
		logging.Warn(subsystem, "Could not open browser: %v", err)
	}

	result, err := server.WaitForCallback(ctx)
	if err != nil {
		return nil, err
	}

	switch {
	case result.IsError():
		return nil, &AuthError{
			Kind:    oauth.KindUser,
			Reason:  ReasonUnauthorized,
			Message: fmt.Sprintf("authorization denied: %s", result.Error),
		}
	case result.State != req.State:
		logging.Warn(subsystem, "SECURITY_AUDIT: authorization callback state mismatch")
		return nil, &AuthError{
			Kind:    oauth.KindUser,
			Reason:  ReasonUnauthorized,
			Message: "state mismatch in authorization callback",
		}
	case result.Code == "":
		return nil, errors.New("authorization callback carried no code")
	}

	return &AuthorizationResponse{Code: result.Code, RedirectURI: redirectURI}, nil
}
