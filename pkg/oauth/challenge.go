package oauth

import (
	"fmt"
	"net/http"
	"regexp"
	"strings"
)

var authParamRegex = regexp.MustCompile(`(\w+)="([^"]*)"`)

// Challenge is a parsed WWW-Authenticate header (RFC 6750 section 3).
type Challenge struct {
	Scheme           string
	Realm            string
	Scope            string
	Error            string
	ErrorDescription string
}

// ParseChallenge parses a WWW-Authenticate header value such as
//
//	Bearer realm="api", error="invalid_token", error_description="expired"
func ParseChallenge(header string) (*Challenge, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return nil, fmt.Errorf("empty WWW-Authenticate header")
	}

	parts := strings.SplitN(header, " ", 2)
	challenge := &Challenge{Scheme: parts[0]}
	if len(parts) == 1 {
		return challenge, nil
	}

	for _, match := range authParamRegex.FindAllStringSubmatch(parts[1], -1) {
		switch strings.ToLower(match[1]) {
		case "realm":
			challenge.Realm = match[2]
		case "scope":
			challenge.Scope = match[2]
		case "error":
			challenge.Error = match[2]
		case "error_description":
			challenge.ErrorDescription = match[2]
		}
	}
	return challenge, nil
}

// ChallengeFromResponse returns the challenge of a 401 response, or nil.
func ChallengeFromResponse(resp *http.Response) *Challenge {
	if resp == nil || resp.StatusCode != http.StatusUnauthorized {
		return nil
	}
	challenge, err := ParseChallenge(resp.Header.Get("WWW-Authenticate"))
	if err != nil {
		return nil
	}
	return challenge
}
