package fields

import (
	"errors"
	"fmt"
	"strings"

	"farmfield/internal/geo"
)

// Source selects where fields come from.
type Source string

const (
	SourceSample Source = "sample"
	SourceLive   Source = "live"
)

// ParseSource validates a source name.
func ParseSource(s string) (Source, error) {
	switch Source(strings.ToLower(strings.TrimSpace(s))) {
	case SourceSample:
		return SourceSample, nil
	case SourceLive:
		return SourceLive, nil
	}
	return "", fmt.Errorf("unknown field source %q (expected %q or %q)", s, SourceSample, SourceLive)
}

// ErrFieldNotFound is returned for an unknown field ID.
var ErrFieldNotFound = errors.New("field not found")

// Summary is a selectable field.
type Summary struct {
	ID             string   `json:"id"`
	Name           string   `json:"name"`
	Source         Source   `json:"source"`
	OrganizationID string   `json:"organization_id"`
	AreaHectares   *float64 `json:"area_hectares,omitempty"`
}

// Boundary is a field outline in WGS84.
type Boundary struct {
	FieldID string       `json:"field_id"`
	Name    string       `json:"name"`
	Source  Source       `json:"source"`
	Ring    []geo.LatLon `json:"ring"`
}

// Validate rejects rings with fewer than three distinct points or no
// enclosed area with a *geo.GeometryError.
func (b *Boundary) Validate() error {
	_, err := geo.ValidateRing(b.Ring)
	return err
}
