package mock

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"sync"
	"time"
)

// Grant types understood by the token endpoint.
const (
	GrantClientCredentials = "client_credentials"
	GrantRefreshToken      = "refresh_token"
	GrantAuthorizationCode = "authorization_code"
)

// OAuthServerConfig configures the mock OAuth server behavior
type OAuthServerConfig struct {
	// ClientID is the expected OAuth client ID
	ClientID string

	// ClientSecret is the expected OAuth client secret
	ClientSecret string

	// Scope is returned as the granted scope. Empty omits the parameter.
	Scope string

	// TokenLifetime is how long tokens remain valid
	TokenLifetime time.Duration

	// DenyAuthorization makes /authorize redirect with error=access_denied.
	DenyAuthorization bool

	// Now stamps issued tokens; defaults to time.Now. Use Clock.Now to
	// share a manual clock with the client under test.
	Now func() time.Time

	// Debug enables debug logging
	Debug bool
}

// Failure is a queued token endpoint failure.
type Failure struct {
	Status     int
	ErrorCode  string
	RetryAfter int
}

// OAuthServer is a mock OAuth 2.0 authorization server.
type OAuthServer struct {
	config     OAuthServerConfig
	httpServer *http.Server
	listener   net.Listener
	port       int
	running    bool
	mu         sync.RWMutex

	authCodes     map[string]*authCodeEntry
	refreshTokens map[string]bool
	accessTokens  map[string]time.Time
	requests      map[string]int
	failures      []Failure
	delay         time.Duration

	now func() time.Time
}

type authCodeEntry struct {
	RedirectURI   string
	CodeChallenge string
	Method        string
}

// TokenResponse is the OAuth token response
type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"`
	Scope        string `json:"scope,omitempty"`
}

// NewOAuthServer creates a new mock OAuth server
func NewOAuthServer(config OAuthServerConfig) *OAuthServer {
	if config.TokenLifetime == 0 {
		config.TokenLifetime = 1 * time.Hour
	}
	if config.ClientID == "" {
		config.ClientID = "test-client"
	}

	now := config.Now
	if now == nil {
		now = time.Now
	}

	return &OAuthServer{
		config:        config,
		authCodes:     make(map[string]*authCodeEntry),
		refreshTokens: make(map[string]bool),
		accessTokens:  make(map[string]time.Time),
		requests:      make(map[string]int),
		now:           now,
	}
}

// Start starts the OAuth server on a random loopback port
func (s *OAuthServer) Start(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return s.port, nil
	}

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return 0, fmt.Errorf("failed to listen: %w", err)
	}
	s.listener = listener
	s.port = listener.Addr().(*net.TCPAddr).Port

	mux := http.NewServeMux()
	mux.HandleFunc("/authorize", s.handleAuthorize)
	mux.HandleFunc("/token", s.handleToken)

	s.httpServer = &http.Server{
		Handler:  mux,
		ErrorLog: log.New(io.Discard, "", 0),
	}

	go func() {
		if err := s.httpServer.Serve(listener); err != nil && err != http.ErrServerClosed {
			if s.config.Debug {
				fmt.Fprintf(os.Stderr, "OAuth server error: %v\n", err)
			}
		}
	}()

	s.running = true
	return s.port, nil
}

// Stop stops the OAuth server. Token requests still in flight are allowed
// to finish, so the lock must not be held while shutting down.
func (s *OAuthServer) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	srv := s.httpServer
	s.mu.Unlock()

	return srv.Shutdown(ctx)
}

// BaseURL returns the server's root URL.
func (s *OAuthServer) BaseURL() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return fmt.Sprintf("http://127.0.0.1:%d", s.port)
}

// AuthorizeURL returns the authorization endpoint URL
func (s *OAuthServer) AuthorizeURL() string {
	return s.BaseURL() + "/authorize"
}

// TokenURL returns the token endpoint URL
func (s *OAuthServer) TokenURL() string {
	return s.BaseURL() + "/token"
}

// FailNext queues n token endpoint failures answered before any grant is
// processed. An ErrorCode produces an RFC 6749 JSON error body.
func (s *OAuthServer) FailNext(n, status int, errorCode string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for range n {
		s.failures = append(s.failures, Failure{Status: status, ErrorCode: errorCode})
	}
}

// QueueFailure queues a single failure with full control.
func (s *OAuthServer) QueueFailure(f Failure) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures = append(s.failures, f)
}

// SetTokenDelay slows every token response down by d.
func (s *OAuthServer) SetTokenDelay(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.delay = d
}

// IssueRefreshToken registers a refresh token the server will accept.
func (s *OAuthServer) IssueRefreshToken() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	rt := generateOpaqueToken()
	s.refreshTokens[rt] = true
	return rt
}

// RevokeRefreshTokens invalidates every issued refresh token.
func (s *OAuthServer) RevokeRefreshTokens() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.refreshTokens = make(map[string]bool)
}

// ValidateToken reports whether accessToken was issued and is unexpired.
func (s *OAuthServer) ValidateToken(accessToken string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	expiry, ok := s.accessTokens[accessToken]
	return ok && s.now().Before(expiry)
}

// TokenRequests returns the number of token requests seen for grantType,
// failed ones included.
func (s *OAuthServer) TokenRequests(grantType string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.requests[grantType]
}

// TotalTokenRequests returns the number of token requests across grants.
func (s *OAuthServer) TotalTokenRequests() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	total := 0
	for _, n := range s.requests {
		total += n
	}
	return total
}

// handleAuthorize auto-approves and redirects back with a code.
func (s *OAuthServer) handleAuthorize(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	redirectURI := q.Get("redirect_uri")
	state := q.Get("state")

	if q.Get("response_type") != "code" {
		http.Error(w, "unsupported_response_type", http.StatusBadRequest)
		return
	}
	if q.Get("client_id") != s.config.ClientID {
		http.Error(w, "invalid_client", http.StatusBadRequest)
		return
	}
	if q.Get("code_challenge") == "" {
		http.Error(w, "PKCE required: code_challenge missing", http.StatusBadRequest)
		return
	}

	redirectURL, err := url.Parse(redirectURI)
	if err != nil || redirectURI == "" {
		http.Error(w, "invalid redirect_uri", http.StatusBadRequest)
		return
	}

	params := redirectURL.Query()
	if s.config.DenyAuthorization {
		params.Set("error", "access_denied")
		params.Set("error_description", "the resource owner denied the request")
	} else {
		code := generateOpaqueToken()
		s.mu.Lock()
		s.authCodes[code] = &authCodeEntry{
			RedirectURI:   redirectURI,
			CodeChallenge: q.Get("code_challenge"),
			Method:        q.Get("code_challenge_method"),
		}
		s.mu.Unlock()
		params.Set("code", code)
	}
	if state != "" {
		params.Set("state", state)
	}
	redirectURL.RawQuery = params.Encode()

	http.Redirect(w, r, redirectURL.String(), http.StatusFound)
}

// handleToken handles token exchange requests
func (s *OAuthServer) handleToken(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid request", http.StatusBadRequest)
		return
	}

	grantType := r.FormValue("grant_type")

	s.mu.Lock()
	s.requests[grantType]++
	delay := s.delay
	var failure *Failure
	if len(s.failures) > 0 {
		f := s.failures[0]
		s.failures = s.failures[1:]
		failure = &f
	}
	s.mu.Unlock()

	if delay > 0 {
		time.Sleep(delay)
	}

	if failure != nil {
		if failure.RetryAfter > 0 {
			w.Header().Set("Retry-After", strconv.Itoa(failure.RetryAfter))
		}
		if failure.ErrorCode == "" {
			http.Error(w, http.StatusText(failure.Status), failure.Status)
			return
		}
		writeOAuthError(w, failure.Status, failure.ErrorCode, "simulated failure")
		return
	}

	clientID, clientSecret, ok := r.BasicAuth()
	if !ok || clientID != s.config.ClientID || (s.config.ClientSecret != "" && clientSecret != s.config.ClientSecret) {
		writeOAuthError(w, http.StatusUnauthorized, "invalid_client", "client authentication failed")
		return
	}

	switch grantType {
	case GrantClientCredentials:
		s.issue(w, false)
	case GrantRefreshToken:
		s.handleRefreshToken(w, r)
	case GrantAuthorizationCode:
		s.handleAuthCodeExchange(w, r)
	default:
		writeOAuthError(w, http.StatusBadRequest, "unsupported_grant_type",
			fmt.Sprintf("grant_type %s not supported", grantType))
	}
}

func (s *OAuthServer) handleRefreshToken(w http.ResponseWriter, r *http.Request) {
	rt := r.FormValue("refresh_token")

	s.mu.Lock()
	valid := s.refreshTokens[rt]
	delete(s.refreshTokens, rt)
	s.mu.Unlock()

	if !valid {
		writeOAuthError(w, http.StatusBadRequest, "invalid_grant", "refresh token is invalid or revoked")
		return
	}
	s.issue(w, true)
}

func (s *OAuthServer) handleAuthCodeExchange(w http.ResponseWriter, r *http.Request) {
	code := r.FormValue("code")

	s.mu.Lock()
	entry, exists := s.authCodes[code]
	delete(s.authCodes, code)
	s.mu.Unlock()

	if !exists {
		writeOAuthError(w, http.StatusBadRequest, "invalid_grant", "authorization code not found or expired")
		return
	}
	if r.FormValue("redirect_uri") != entry.RedirectURI {
		writeOAuthError(w, http.StatusBadRequest, "invalid_grant", "redirect_uri mismatch")
		return
	}
	if !verifyPKCE(entry.CodeChallenge, entry.Method, r.FormValue("code_verifier")) {
		writeOAuthError(w, http.StatusBadRequest, "invalid_grant", "code_verifier verification failed")
		return
	}
	s.issue(w, true)
}

func (s *OAuthServer) issue(w http.ResponseWriter, withRefresh bool) {
	resp := TokenResponse{
		AccessToken: generateOpaqueToken(),
		TokenType:   "Bearer",
		ExpiresIn:   int(s.config.TokenLifetime.Seconds()),
		Scope:       s.config.Scope,
	}

	s.mu.Lock()
	s.accessTokens[resp.AccessToken] = s.now().Add(s.config.TokenLifetime)
	if withRefresh {
		resp.RefreshToken = generateOpaqueToken()
		s.refreshTokens[resp.RefreshToken] = true
	}
	s.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	_ = json.NewEncoder(w).Encode(resp)
}

func writeOAuthError(w http.ResponseWriter, status int, code, description string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"error":             code,
		"error_description": description,
	})
}

func verifyPKCE(challenge, method, verifier string) bool {
	if method != "S256" || verifier == "" {
		return false
	}
	hash := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(hash[:]) == challenge
}

// generateOpaqueToken generates a random opaque token.
// Panics if crypto/rand fails, which should never happen in practice.
func generateOpaqueToken() string {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		panic(fmt.Errorf("crypto/rand failed: %w", err))
	}
	return base64.RawURLEncoding.EncodeToString(b)
}
