package auth

import (
	"errors"
	"fmt"
	"time"

	"farmfield/pkg/oauth"
)

// Sentinels matched by AuthError through errors.Is.
var (
	// ErrReauthorizationRequired means the stored grant is no longer usable
	// and the user must authorize again.
	ErrReauthorizationRequired = errors.New("re-authorization required")

	// ErrUnauthorized means the provider rejected the credentials.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrRateLimited means the provider kept answering 429.
	ErrRateLimited = errors.New("rate limited")
)

// Reason classifies an AuthError.
type Reason string

const (
	ReasonUnauthorized Reason = "unauthorized"
	ReasonInvalidGrant Reason = "invalid_grant"
	ReasonRateLimited  Reason = "rate_limited"
)

// AuthError is a non-transient authorization failure.
type AuthError struct {
	Kind    oauth.Kind
	Reason  Reason
	Message string

	// RetryAfter is the provider's hint for RateLimited errors.
	RetryAfter time.Duration

	Err error
}

func (e *AuthError) Error() string {
	msg := fmt.Sprintf("authorization failed (%s)", e.Reason)
	if e.Kind != "" {
		msg = fmt.Sprintf("%s token: %s", e.Kind, msg)
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	return msg
}

func (e *AuthError) Unwrap() error {
	return e.Err
}

// Is matches the package sentinels by reason.
func (e *AuthError) Is(target error) bool {
	switch target {
	case ErrReauthorizationRequired:
		return e.Reason == ReasonInvalidGrant
	case ErrUnauthorized:
		return e.Reason == ReasonUnauthorized
	case ErrRateLimited:
		return e.Reason == ReasonRateLimited
	}
	return false
}

// NetworkError is a transport failure or server error that persisted after
// retries. Response bodies are never included in the message.
type NetworkError struct {
	Op         string
	StatusCode int
	Err        error
}

func (e *NetworkError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s: provider returned status %d", e.Op, e.StatusCode)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return e.Op + ": network error"
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}
