package mock

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
)

// Request kinds counted by FieldAPI.
const (
	RequestListFields = "list"
	RequestBoundaries = "boundaries"
)

// Coordinate is a WGS84 vertex served by FieldAPI.
type Coordinate struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Field is a field served by FieldAPI.
type Field struct {
	ID   string
	Name string

	// Chunks split the exterior ring of one active boundary record across
	// pages, one chunk per page, in order.
	Chunks [][]Coordinate

	// Archived, if set, is served as an inactive boundary on the first page.
	Archived []Coordinate

	// Records are extra boundary records served on the first page.
	Records []BoundaryRecord
}

// BoundaryRecord is a whole boundary served on a single page.
type BoundaryRecord struct {
	ID     string
	Active bool

	// Exteriors are the exterior rings, one multipolygon each.
	Exteriors [][]Coordinate
}

// FieldAPIConfig configures the mock field API.
type FieldAPIConfig struct {
	// OrganizationID is the only organization the API knows.
	OrganizationID string

	// PageSize bounds fields per list page. Defaults to 2.
	PageSize int

	// ValidateToken checks bearer tokens. Nil accepts any non-empty token.
	ValidateToken func(token string) bool
}

// FieldAPI is a mock of the provider's organization field endpoints.
type FieldAPI struct {
	config     FieldAPIConfig
	httpServer *http.Server
	listener   net.Listener
	running    bool
	mu         sync.RWMutex

	fields   []Field
	failures []int
	requests map[string]int
	tokens   []string
}

// NewFieldAPI creates a new mock field API.
func NewFieldAPI(config FieldAPIConfig) *FieldAPI {
	if config.OrganizationID == "" {
		config.OrganizationID = "4711"
	}
	if config.PageSize <= 0 {
		config.PageSize = 2
	}
	return &FieldAPI{
		config:   config,
		requests: make(map[string]int),
	}
}

// Start starts the API on a random loopback port.
func (a *FieldAPI) Start(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.running {
		return nil
	}

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}
	a.listener = listener

	a.httpServer = &http.Server{
		Handler:  http.HandlerFunc(a.handle),
		ErrorLog: log.New(io.Discard, "", 0),
	}
	go func() { _ = a.httpServer.Serve(listener) }()

	a.running = true
	return nil
}

// Stop stops the API.
func (a *FieldAPI) Stop(ctx context.Context) error {
	a.mu.Lock()
	if !a.running {
		a.mu.Unlock()
		return nil
	}
	a.running = false
	srv := a.httpServer
	a.mu.Unlock()

	return srv.Shutdown(ctx)
}

// BaseURL returns the API root, the equivalent of the provider's platform URL.
func (a *FieldAPI) BaseURL() string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return "http://" + a.listener.Addr().String()
}

// OrganizationID returns the served organization.
func (a *FieldAPI) OrganizationID() string {
	return a.config.OrganizationID
}

// AddField registers a field.
func (a *FieldAPI) AddField(f Field) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.fields = append(a.fields, f)
}

// FailNext answers the next n requests with status, before authorization.
func (a *FieldAPI) FailNext(n, status int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for range n {
		a.failures = append(a.failures, status)
	}
}

// Requests returns how many requests of kind arrived, failed ones included.
func (a *FieldAPI) Requests(kind string) int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.requests[kind]
}

// Tokens returns the bearer tokens presented, in arrival order.
func (a *FieldAPI) Tokens() []string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return append([]string(nil), a.tokens...)
}

type apiLink struct {
	Rel string `json:"rel"`
	URI string `json:"uri"`
}

type apiPage struct {
	Links  []apiLink     `json:"links"`
	Total  int           `json:"total"`
	Values []interface{} `json:"values"`
}

func (a *FieldAPI) handle(w http.ResponseWriter, r *http.Request) {
	// /organizations/{org}/fields[/{id}/boundaries]
	parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	kind := ""
	switch {
	case len(parts) == 3 && parts[0] == "organizations" && parts[2] == "fields":
		kind = RequestListFields
	case len(parts) == 5 && parts[0] == "organizations" && parts[2] == "fields" && parts[4] == "boundaries":
		kind = RequestBoundaries
	default:
		http.NotFound(w, r)
		return
	}

	a.mu.Lock()
	a.requests[kind]++
	token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	a.tokens = append(a.tokens, token)
	failure := 0
	if len(a.failures) > 0 {
		failure = a.failures[0]
		a.failures = a.failures[1:]
	}
	a.mu.Unlock()

	if failure != 0 {
		http.Error(w, http.StatusText(failure), failure)
		return
	}

	valid := token != ""
	if valid && a.config.ValidateToken != nil {
		valid = a.config.ValidateToken(token)
	}
	if !valid {
		w.Header().Set("WWW-Authenticate", `Bearer error="invalid_token"`)
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	if parts[1] != a.config.OrganizationID {
		http.Error(w, "Forbidden", http.StatusForbidden)
		return
	}

	offset, _ := strconv.Atoi(r.URL.Query().Get("pageOffset"))
	base := "http://" + r.Host + r.URL.Path

	if kind == RequestListFields {
		a.serveFieldList(w, base, offset)
		return
	}
	a.serveBoundaries(w, parts[3], base, offset)
}

func (a *FieldAPI) serveFieldList(w http.ResponseWriter, base string, offset int) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	page := apiPage{Total: len(a.fields), Values: []interface{}{}}
	end := min(offset+a.config.PageSize, len(a.fields))
	for i := offset; i < end; i++ {
		f := a.fields[i]
		page.Values = append(page.Values, map[string]interface{}{
			"@type": "Field",
			"id":    f.ID,
			"name":  f.Name,
		})
	}
	if end < len(a.fields) {
		page.Links = append(page.Links, apiLink{Rel: "nextPage", URI: fmt.Sprintf("%s?pageOffset=%d", base, end)})
	}
	writeJSON(w, page)
}

func (a *FieldAPI) serveBoundaries(w http.ResponseWriter, fieldID, base string, offset int) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	var field *Field
	for i := range a.fields {
		if a.fields[i].ID == fieldID {
			field = &a.fields[i]
			break
		}
	}
	if field == nil {
		http.Error(w, "Not Found", http.StatusNotFound)
		return
	}

	page := apiPage{Total: len(field.Chunks), Values: []interface{}{}}
	if offset == 0 {
		if len(field.Archived) > 0 {
			page.Values = append(page.Values, boundaryValue(field.ID+"-archived", false, field.Archived))
		}
		for _, rec := range field.Records {
			page.Values = append(page.Values, boundaryValue(rec.ID, rec.Active, rec.Exteriors...))
		}
	}
	if offset < len(field.Chunks) {
		page.Values = append(page.Values, boundaryValue(field.ID+"-boundary", true, field.Chunks[offset]))
	}
	if offset+1 < len(field.Chunks) {
		page.Links = append(page.Links, apiLink{Rel: "nextPage", URI: fmt.Sprintf("%s?pageOffset=%d", base, offset+1)})
	}
	writeJSON(w, page)
}

func boundaryValue(id string, active bool, exteriors ...[]Coordinate) map[string]interface{} {
	polygons := make([]interface{}, 0, len(exteriors))
	for _, points := range exteriors {
		polygons = append(polygons, map[string]interface{}{
			"rings": []interface{}{
				map[string]interface{}{
					"type":     "exterior",
					"passable": true,
					"points":   points,
				},
			},
		})
	}
	return map[string]interface{}{
		"@type":         "Boundary",
		"id":            id,
		"name":          id,
		"active":        active,
		"archived":      !active,
		"multipolygons": polygons,
	}
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/vnd.deere.axiom.v3+json")
	_ = json.NewEncoder(w).Encode(v)
}
