package auth

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"
	"github.com/hashicorp/go-cleanhttp"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
	"golang.org/x/sync/singleflight"

	"farmfield/internal/config"
	"farmfield/pkg/logging"
	"farmfield/pkg/oauth"
)

const subsystem = "Auth"

// TokenStore is the durable per-kind token cache.
type TokenStore interface {
	Get(kind oauth.Kind) (*oauth.Token, bool)
	Put(kind oauth.Kind, token *oauth.Token) error
	Clear(kind oauth.Kind) error
	ClearAll() error
}

// Config configures a Client.
type Config struct {
	ClientID     string
	ClientSecret string
	AuthURL      string
	TokenURL     string
	Scopes       []string

	// MaxAttempts bounds token requests per exchange, first try included.
	MaxAttempts     int
	InitialInterval time.Duration
	MaxInterval     time.Duration

	// ExpiryMargin defaults to oauth.DefaultExpiryMargin.
	ExpiryMargin time.Duration
}

// NewConfig derives a Config from the loaded application configuration.
func NewConfig(cfg config.Config) Config {
	return Config{
		ClientID:        cfg.Provider.ClientID,
		ClientSecret:    cfg.Provider.ClientSecret,
		AuthURL:         cfg.Provider.AuthURL,
		TokenURL:        cfg.Provider.TokenURL,
		Scopes:          cfg.Provider.Scopes,
		MaxAttempts:     cfg.Retry.MaxAttempts,
		InitialInterval: cfg.Retry.InitialInterval,
		MaxInterval:     cfg.Retry.MaxInterval,
	}
}

// Client hands out access tokens per kind, refreshing them as needed.
type Client struct {
	cfg        Config
	store      TokenStore
	httpClient *http.Client
	authorizer Authorizer
	now        func() time.Time

	group singleflight.Group

	mu      sync.Mutex
	flights map[oauth.Kind]*flight
}

// flight is the context of an in-progress exchange. It outlives any single
// caller and is cancelled only once every caller waiting on it has left.
type flight struct {
	ctx     context.Context
	cancel  context.CancelFunc
	waiters int
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets the client used for token requests.
func WithHTTPClient(c *http.Client) Option {
	return func(client *Client) {
		client.httpClient = c
	}
}

// WithAuthorizer enables the interactive grant for user tokens.
func WithAuthorizer(a Authorizer) Option {
	return func(client *Client) {
		client.authorizer = a
	}
}

// WithClock replaces time.Now for expiry checks.
func WithClock(now func() time.Time) Option {
	return func(client *Client) {
		client.now = now
	}
}

// NewClient creates a Client backed by store. Credentials are only checked
// when a grant is actually needed.
func NewClient(cfg Config, store TokenStore, opts ...Option) *Client {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 3
	}
	if cfg.InitialInterval <= 0 {
		cfg.InitialInterval = 500 * time.Millisecond
	}
	if cfg.MaxInterval <= 0 {
		cfg.MaxInterval = 5 * time.Second
	}
	if cfg.ExpiryMargin <= 0 {
		cfg.ExpiryMargin = oauth.DefaultExpiryMargin
	}
	cfg.Scopes = oauth.NormalizeScopes(cfg.Scopes)

	c := &Client{
		cfg:        cfg,
		store:      store,
		httpClient: cleanhttp.DefaultPooledClient(),
		now:        time.Now,
		flights:    make(map[oauth.Kind]*flight),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Acquire returns a token of kind that remains valid for longer than the
// expiry margin. A valid cached token is returned without network access.
func (c *Client) Acquire(ctx context.Context, kind oauth.Kind) (*oauth.Token, error) {
	if _, err := oauth.ParseKind(string(kind)); err != nil {
		return nil, err
	}

	if tok, ok := c.store.Get(kind); ok && tok.ValidAt(c.now(), c.cfg.ExpiryMargin) {
		logging.Debug(subsystem, "Using cached %s token (expires %s)", kind, tok.ExpiresAt.Format(time.RFC3339))
		return tok, nil
	}
	return c.exchange(ctx, kind, false)
}

// ForceRefresh obtains a new token of kind even if the cached one looks
// valid, e.g. after the provider rejected it.
func (c *Client) ForceRefresh(ctx context.Context, kind oauth.Kind) (*oauth.Token, error) {
	if _, err := oauth.ParseKind(string(kind)); err != nil {
		return nil, err
	}
	return c.exchange(ctx, kind, true)
}

// Clear removes the cached token of kind.
func (c *Client) Clear(kind oauth.Kind) error {
	return c.store.Clear(kind)
}

// ClearAll removes every cached token.
func (c *Client) ClearAll() error {
	return c.store.ClearAll()
}

// TokenStatus describes a cached token without exposing it.
type TokenStatus struct {
	Kind            oauth.Kind
	Present         bool
	Valid           bool
	ExpiresAt       time.Time
	Scope           []string
	HasRefreshToken bool
}

// Status reports the cached token of kind. It never touches the network.
func (c *Client) Status(kind oauth.Kind) TokenStatus {
	status := TokenStatus{Kind: kind}
	tok, ok := c.store.Get(kind)
	if !ok {
		return status
	}
	status.Present = true
	status.Valid = tok.ValidAt(c.now(), c.cfg.ExpiryMargin)
	status.ExpiresAt = tok.ExpiresAt
	status.Scope = tok.Scope
	status.HasRefreshToken = tok.HasRefreshToken()
	return status
}

// exchange runs one grant per kind at a time; concurrent callers wait for
// and share its result. A caller whose ctx ends stops waiting, but the grant
// keeps running for the others and is only cancelled when nobody waits.
func (c *Client) exchange(ctx context.Context, kind oauth.Kind, force bool) (*oauth.Token, error) {
	for {
		f := c.join(ctx, kind)
		ch := c.group.DoChan(string(kind), func() (interface{}, error) {
			cached, ok := c.store.Get(kind)
			if !force && ok && cached.ValidAt(c.now(), c.cfg.ExpiryMargin) {
				return cached, nil
			}
			return c.obtain(f.ctx, kind, cached)
		})

		select {
		case res := <-ch:
			c.leave(kind, f)
			if res.Err != nil {
				// Joined a flight that was abandoned by its callers just
				// before this one arrived: start a fresh one.
				if isContextError(res.Err) && ctx.Err() == nil {
					logging.Debug(subsystem, "Abandoned %s token exchange, retrying", kind)
					continue
				}
				return nil, res.Err
			}
			if res.Shared {
				logging.Debug(subsystem, "Shared in-flight %s token exchange", kind)
			}
			return res.Val.(*oauth.Token), nil
		case <-ctx.Done():
			c.leave(kind, f)
			return nil, ctx.Err()
		}
	}
}

func (c *Client) join(ctx context.Context, kind oauth.Kind) *flight {
	c.mu.Lock()
	defer c.mu.Unlock()

	f := c.flights[kind]
	if f == nil {
		fctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
		f = &flight{ctx: fctx, cancel: cancel}
		c.flights[kind] = f
	}
	f.waiters++
	return f
}

func (c *Client) leave(kind oauth.Kind, f *flight) {
	c.mu.Lock()
	defer c.mu.Unlock()

	f.waiters--
	if f.waiters > 0 {
		return
	}
	f.cancel()
	if c.flights[kind] == f {
		delete(c.flights, kind)
	}
}

func isContextError(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

func (c *Client) obtain(ctx context.Context, kind oauth.Kind, cached *oauth.Token) (*oauth.Token, error) {
	if err := c.requireCredentials(); err != nil {
		return nil, err
	}
	ctx = context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)

	var (
		raw *oauth2.Token
		err error
	)
	switch {
	case kind == oauth.KindClientCredentials:
		ccfg := c.clientCredentialsConfig()
		raw, err = c.retry(ctx, kind, func() (*oauth2.Token, error) {
			return ccfg.Token(ctx)
		})
	case cached.HasRefreshToken():
		ocfg := c.oauth2Config()
		refreshToken := cached.RefreshToken
		raw, err = c.retry(ctx, kind, func() (*oauth2.Token, error) {
			return ocfg.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken}).Token()
		})
	default:
		raw, err = c.authorize(ctx)
	}

	if err != nil {
		if errors.Is(err, ErrReauthorizationRequired) {
			logging.Warn(subsystem, "SECURITY_AUDIT: %s grant rejected as invalid, clearing cached token", kind)
			if clearErr := c.store.Clear(kind); clearErr != nil {
				logging.Error(subsystem, clearErr, "Failed to clear %s token", kind)
			}
		}
		return nil, err
	}

	tok := oauth.FromOAuth2Token(kind, raw, c.cfg.Scopes)
	if err := c.store.Put(kind, tok); err != nil {
		logging.Error(subsystem, err, "Failed to persist %s token", kind)
	}

	logging.Info(subsystem, "Obtained %s token (expires %s, %d scopes)",
		kind, tok.ExpiresAt.Format(time.RFC3339), len(tok.Scope))
	return tok, nil
}

func (c *Client) authorize(ctx context.Context) (*oauth2.Token, error) {
	if c.authorizer == nil {
		return nil, &AuthError{
			Kind:    oauth.KindUser,
			Reason:  ReasonInvalidGrant,
			Message: "no refresh token cached, run 'farmfield auth login'",
		}
	}

	state := uuid.NewString()
	verifier := oauth2.GenerateVerifier()
	base := c.oauth2Config()

	resp, err := c.authorizer.Authorize(ctx, AuthorizationRequest{
		State: state,
		URL: func(redirectURI string) string {
			cfg := base
			cfg.RedirectURL = redirectURI
			return cfg.AuthCodeURL(state, oauth2.S256ChallengeOption(verifier))
		},
	})
	if err != nil {
		return nil, err
	}

	cfg := base
	cfg.RedirectURL = resp.RedirectURI
	return c.retry(ctx, oauth.KindUser, func() (*oauth2.Token, error) {
		return cfg.Exchange(ctx, resp.Code, oauth2.VerifierOption(verifier))
	})
}

// retry runs op with exponential backoff, retrying only transient failures.
func (c *Client) retry(ctx context.Context, kind oauth.Kind, op func() (*oauth2.Token, error)) (*oauth2.Token, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.cfg.InitialInterval
	b.MaxInterval = c.cfg.MaxInterval

	tok, err := backoff.Retry(ctx, func() (*oauth2.Token, error) {
		tok, err := op()
		if err != nil {
			return nil, classify(kind, err)
		}
		return tok, nil
	},
		backoff.WithBackOff(b),
		backoff.WithMaxTries(uint(c.cfg.MaxAttempts)),
		backoff.WithNotify(func(err error, next time.Duration) {
			logging.Warn(subsystem, "Token request for %s failed, retrying in %s: %v", kind, next, err)
		}),
	)
	if err != nil {
		var authErr *AuthError
		var netErr *NetworkError
		switch {
		case errors.As(err, &authErr):
			return nil, authErr
		case errors.As(err, &netErr):
			return nil, netErr
		}
		return nil, err
	}
	return tok, nil
}

// classify maps a token endpoint failure onto the error taxonomy and marks
// the ones that must not be retried.
func classify(kind oauth.Kind, err error) error {
	if isContextError(err) {
		return backoff.Permanent(err)
	}

	var re *oauth2.RetrieveError
	if !errors.As(err, &re) {
		return &NetworkError{Op: "token request", Err: err}
	}

	status := 0
	if re.Response != nil {
		status = re.Response.StatusCode
	}

	switch {
	case re.ErrorCode == "invalid_grant":
		return backoff.Permanent(&AuthError{Kind: kind, Reason: ReasonInvalidGrant, Message: re.ErrorDescription, Err: err})
	case status == http.StatusTooManyRequests:
		authErr := &AuthError{Kind: kind, Reason: ReasonRateLimited, Err: err}
		if d := retryAfter(re.Response.Header); d > 0 {
			authErr.RetryAfter = d
			return errors.Join(authErr, &backoff.RetryAfterError{Duration: d})
		}
		return authErr
	case status >= 500:
		return &NetworkError{Op: "token request", StatusCode: status, Err: err}
	default:
		msg := re.ErrorCode
		if msg == "" {
			msg = "status " + strconv.Itoa(status)
		}
		return backoff.Permanent(&AuthError{Kind: kind, Reason: ReasonUnauthorized, Message: msg, Err: err})
	}
}

// retryAfter parses a Retry-After header given in seconds or as a date.
func retryAfter(h http.Header) time.Duration {
	v := h.Get("Retry-After")
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(v); err == nil {
		if d := time.Until(at); d > 0 {
			return d
		}
	}
	return 0
}

func (c *Client) requireCredentials() error {
	return config.ProviderConfig{ClientID: c.cfg.ClientID, ClientSecret: c.cfg.ClientSecret}.RequireCredentials()
}

func (c *Client) oauth2Config() oauth2.Config {
	return oauth2.Config{
		ClientID:     c.cfg.ClientID,
		ClientSecret: c.cfg.ClientSecret,
		Endpoint: oauth2.Endpoint{
			AuthURL:   c.cfg.AuthURL,
			TokenURL:  c.cfg.TokenURL,
			AuthStyle: oauth2.AuthStyleInHeader,
		},
		Scopes: c.cfg.Scopes,
	}
}

func (c *Client) clientCredentialsConfig() *clientcredentials.Config {
	return &clientcredentials.Config{
		ClientID:     c.cfg.ClientID,
		ClientSecret: c.cfg.ClientSecret,
		TokenURL:     c.cfg.TokenURL,
		Scopes:       c.cfg.Scopes,
		AuthStyle:    oauth2.AuthStyleInHeader,
	}
}
