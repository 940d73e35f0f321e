package fields

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hashicorp/go-cleanhttp"
	"github.com/hashicorp/go-retryablehttp"

	"farmfield/internal/auth"
	"farmfield/internal/config"
	"farmfield/internal/geo"
	"farmfield/pkg/logging"
	"farmfield/pkg/oauth"
	pkgstrings "farmfield/pkg/strings"
)

const (
	subsystem = "Fields"

	mediaType = "application/vnd.deere.axiom.v3+json"

	maxPages     = 1000
	maxBodyBytes = 16 << 20
)

// TokenProvider supplies access tokens for API calls.
type TokenProvider interface {
	Acquire(ctx context.Context, kind oauth.Kind) (*oauth.Token, error)
	ForceRefresh(ctx context.Context, kind oauth.Kind) (*oauth.Token, error)
}

// Config configures a Client.
type Config struct {
	APIURL         string
	OrganizationID string

	// TokenKind authorizes live requests.
	TokenKind oauth.Kind

	// RetryMax is the number of retries after the first attempt.
	RetryMax     int
	RetryWaitMin time.Duration
	RetryWaitMax time.Duration

	// HTTPTimeout bounds each attempt. Zero means no limit.
	HTTPTimeout time.Duration
}

// NewConfig derives a Config from the application configuration.
func NewConfig(cfg config.Config) (Config, error) {
	kind, err := oauth.ParseKind(cfg.Provider.FieldTokenKind)
	if err != nil {
		return Config{}, err
	}
	return Config{
		APIURL:         cfg.Provider.APIURL,
		OrganizationID: cfg.Provider.OrganizationID,
		TokenKind:      kind,
		RetryMax:       max(cfg.Retry.MaxAttempts-1, 0),
		RetryWaitMin:   cfg.Retry.InitialInterval,
		RetryWaitMax:   cfg.Retry.MaxInterval,
		HTTPTimeout:    cfg.HTTPTimeout,
	}, nil
}

// Client reads fields from the sample catalog or the provider API.
type Client struct {
	cfg     Config
	tokens  TokenProvider
	http    *retryablehttp.Client
	catalog *Catalog
}

// Option configures a Client.
type Option func(*Client)

// WithCatalog replaces the built-in sample catalog.
func WithCatalog(c *Catalog) Option {
	return func(client *Client) {
		client.catalog = c
	}
}

// WithHTTPClient sets the transport used under the retrying client.
func WithHTTPClient(hc *http.Client) Option {
	return func(client *Client) {
		client.http.HTTPClient = hc
	}
}

// NewClient creates a Client. tokens is only used for the live source.
func NewClient(cfg Config, tokens TokenProvider, opts ...Option) *Client {
	if cfg.TokenKind == "" {
		cfg.TokenKind = oauth.KindUser
	}

	rc := retryablehttp.NewClient()
	rc.HTTPClient = cleanhttp.DefaultPooledClient()
	rc.HTTPClient.Timeout = cfg.HTTPTimeout
	rc.Logger = logging.Logger(subsystem)
	rc.RetryMax = cfg.RetryMax
	if cfg.RetryWaitMin > 0 {
		rc.RetryWaitMin = cfg.RetryWaitMin
	}
	if cfg.RetryWaitMax > 0 {
		rc.RetryWaitMax = cfg.RetryWaitMax
	}
	rc.ErrorHandler = retryablehttp.PassthroughErrorHandler
	rc.RequestLogHook = func(_ retryablehttp.Logger, req *http.Request, attempt int) {
		if attempt > 0 {
			logging.Warn(subsystem, "Retrying GET %s (attempt %d)", req.URL.Path, attempt+1)
		}
	}

	c := &Client{
		cfg:     cfg,
		tokens:  tokens,
		http:    rc,
		catalog: SampleCatalog(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ListAvailableFields returns the fields of source in provider order.
func (c *Client) ListAvailableFields(ctx context.Context, source Source) ([]Summary, error) {
	switch source {
	case SourceSample:
		return c.catalog.Summaries(), nil
	case SourceLive:
	default:
		return nil, fmt.Errorf("unknown field source %q", source)
	}

	if err := c.requireOrganization(); err != nil {
		return nil, err
	}

	var out []Summary
	err := getPages(ctx, c, "list fields", c.endpoint("organizations", c.cfg.OrganizationID, "fields"), nil,
		func(page *fieldPage) links {
			for _, f := range page.Values {
				if f.Archived {
					continue
				}
				out = append(out, Summary{
					ID:             f.ID,
					Name:           f.Name,
					Source:         SourceLive,
					OrganizationID: c.cfg.OrganizationID,
				})
			}
			return page.Links
		})
	if err != nil {
		return nil, err
	}

	logging.Info(subsystem, "Listed %d live fields", len(out))
	return out, nil
}

// FetchBoundary returns the validated boundary of fieldID.
func (c *Client) FetchBoundary(ctx context.Context, source Source, fieldID string) (*Boundary, error) {
	if fieldID == "" {
		return nil, ErrFieldNotFound
	}

	var (
		b   *Boundary
		err error
	)
	switch source {
	case SourceSample:
		b, err = c.catalog.Boundary(fieldID)
	case SourceLive:
		b, err = c.fetchLiveBoundary(ctx, fieldID)
	default:
		err = fmt.Errorf("unknown field source %q", source)
	}
	if err != nil {
		return nil, err
	}

	if err := b.Validate(); err != nil {
		logging.Warn(subsystem, "Boundary of field %s rejected: %v", fieldID, err)
		return nil, err
	}
	return b, nil
}

func (c *Client) fetchLiveBoundary(ctx context.Context, fieldID string) (*Boundary, error) {
	if err := c.requireOrganization(); err != nil {
		return nil, err
	}

	var records boundaryRecords
	notFound := fmt.Errorf("%w: %s", ErrFieldNotFound, fieldID)

	err := getPages(ctx, c, "fetch boundary",
		c.endpoint("organizations", c.cfg.OrganizationID, "fields", fieldID, "boundaries"), notFound,
		func(page *boundaryPage) links {
			for _, item := range page.Values {
				records.add(item)
			}
			return page.Links
		})
	if err != nil {
		return nil, err
	}

	rec := records.pick()
	if rec == nil {
		return &Boundary{FieldID: fieldID, Name: fieldID, Source: SourceLive}, nil
	}
	if len(records.list) > 1 {
		logging.Debug(subsystem, "Field %s has %d boundary records, using %s", fieldID, len(records.list), rec.id)
	}

	var ring []geo.LatLon
	switch rings := rec.nonEmpty(); len(rings) {
	case 0:
	case 1:
		ring = rings[0]
	default:
		return nil, &geo.GeometryError{
			Reason: fmt.Sprintf("boundary %s has %d disjoint exterior rings", rec.id, len(rings)),
			Points: rec.points(),
		}
	}

	name := rec.name
	if name == "" {
		name = fieldID
	}
	return &Boundary{FieldID: fieldID, Name: name, Source: SourceLive, Ring: ring}, nil
}

// boundaryRecord is one provider boundary, reassembled from every page it
// appeared on.
type boundaryRecord struct {
	id     string
	name   string
	active bool
	rings  [][]geo.LatLon
}

// boundaryRecords keeps records in the order they were first seen.
type boundaryRecords struct {
	list []*boundaryRecord
	byID map[string]*boundaryRecord
}

// add merges item into its record. The first exterior ring of a repeated
// record continues the ring the previous page ended with; further exterior
// rings start new ones.
func (rs *boundaryRecords) add(item boundaryItem) {
	if rs.byID == nil {
		rs.byID = make(map[string]*boundaryRecord)
	}
	rec, seen := rs.byID[item.ID]
	if !seen {
		rec = &boundaryRecord{id: item.ID, name: item.Name, active: item.Active && !item.Archived}
		rs.byID[item.ID] = rec
		rs.list = append(rs.list, rec)
	}

	first := true
	for _, mp := range item.Multipolygons {
		for _, r := range mp.Rings {
			if !r.exterior() {
				continue
			}
			pts := make([]geo.LatLon, 0, len(r.Points))
			for _, p := range r.Points {
				pts = append(pts, geo.LatLon{Lat: p.Lat, Lon: p.Lon})
			}
			if first && seen && len(rec.rings) > 0 {
				last := len(rec.rings) - 1
				rec.rings[last] = append(rec.rings[last], pts...)
			} else {
				rec.rings = append(rec.rings, pts)
			}
			first = false
		}
	}
}

// pick returns the first active record, or the first inactive one when the
// field has no active boundary.
func (rs *boundaryRecords) pick() *boundaryRecord {
	for _, rec := range rs.list {
		if rec.active {
			return rec
		}
	}
	if len(rs.list) > 0 {
		logging.Debug(subsystem, "No active boundary, using inactive record %s", rs.list[0].id)
		return rs.list[0]
	}
	return nil
}

func (r *boundaryRecord) nonEmpty() [][]geo.LatLon {
	var out [][]geo.LatLon
	for _, ring := range r.rings {
		if len(ring) > 0 {
			out = append(out, ring)
		}
	}
	return out
}

func (r *boundaryRecord) points() int {
	n := 0
	for _, ring := range r.rings {
		n += len(ring)
	}
	return n
}

// getPages fetches first and every nextPage after it, handing each decoded
// page to visit.
func getPages[T any](ctx context.Context, c *Client, op, first string, notFound error, visit func(*T) links) error {
	seen := make(map[string]bool)
	for next, n := first, 0; next != ""; n++ {
		if n >= maxPages || seen[next] {
			return &auth.NetworkError{Op: op, Err: errors.New("pagination did not terminate")}
		}
		seen[next] = true

		var page T
		if err := c.getJSON(ctx, op, next, notFound, &page); err != nil {
			return err
		}
		next = visit(&page).next()
	}
	return nil
}

// getJSON performs an authorized GET. A 401 forces one token refresh and one
// more attempt.
func (c *Client) getJSON(ctx context.Context, op, target string, notFound error, out interface{}) error {
	kind := c.cfg.TokenKind

	tok, err := c.tokens.Acquire(ctx, kind)
	if err != nil {
		return err
	}

	resp, err := c.send(ctx, op, target, tok)
	if err != nil {
		return err
	}

	if resp.StatusCode == http.StatusUnauthorized {
		reason := "unauthorized"
		if challenge := oauth.ChallengeFromResponse(resp); challenge != nil && challenge.Error != "" {
			reason = challenge.Error
		}
		drain(resp)
		logging.Info(subsystem, "%s: %s token rejected (%s), refreshing", op, kind, reason)

		if tok, err = c.tokens.ForceRefresh(ctx, kind); err != nil {
			return err
		}
		if resp, err = c.send(ctx, op, target, tok); err != nil {
			return err
		}
	}
	defer drain(resp)

	switch status := resp.StatusCode; {
	case status >= 200 && status < 300:
		if err := json.NewDecoder(io.LimitReader(resp.Body, maxBodyBytes)).Decode(out); err != nil {
			logging.Debug(subsystem, "%s: undecodable response: %v", op, err)
			return &auth.NetworkError{Op: op, Err: errors.New("malformed provider response")}
		}
		return nil
	case status == http.StatusUnauthorized:
		return &auth.AuthError{Kind: kind, Reason: auth.ReasonUnauthorized, Message: "access token rejected after refresh"}
	case status == http.StatusForbidden:
		return &auth.AuthError{Kind: kind, Reason: auth.ReasonUnauthorized, Message: "access to organization forbidden"}
	case status == http.StatusNotFound && notFound != nil:
		return notFound
	case status == http.StatusTooManyRequests:
		return &auth.AuthError{Kind: kind, Reason: auth.ReasonRateLimited, Message: op}
	default:
		if body, _ := io.ReadAll(io.LimitReader(resp.Body, 512)); len(body) > 0 {
			logging.Debug(subsystem, "%s: status %d body: %s", op, status, pkgstrings.Truncate(string(body), 200))
		}
		return &auth.NetworkError{Op: op, StatusCode: status}
	}
}

func (c *Client) send(ctx context.Context, op, target string, tok *oauth.Token) (*http.Response, error) {
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	req.Header.Set("Accept", mediaType)
	req.Header.Set("Authorization", "Bearer "+tok.AccessToken)

	resp, err := c.http.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, &auth.NetworkError{Op: op, Err: err}
	}
	return resp, nil
}

func (c *Client) requireOrganization() error {
	return config.ProviderConfig{OrganizationID: c.cfg.OrganizationID}.RequireOrganization()
}

func (c *Client) endpoint(segments ...string) string {
	escaped := make([]string, len(segments))
	for i, s := range segments {
		escaped[i] = url.PathEscape(s)
	}
	return strings.TrimRight(c.cfg.APIURL, "/") + "/" + strings.Join(escaped, "/")
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodyBytes))
	_ = resp.Body.Close()
}
