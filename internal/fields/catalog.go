package fields

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"io"

	"farmfield/internal/geo"
)

//go:embed samples/fields.json
var sampleCatalogJSON []byte

// Catalog is a static set of fields with their boundaries.
type Catalog struct {
	OrganizationID string         `json:"organization_id"`
	Fields         []CatalogField `json:"fields"`
}

// CatalogField is one catalog entry.
type CatalogField struct {
	ID       string       `json:"id"`
	Name     string       `json:"name"`
	Boundary []geo.LatLon `json:"boundary"`
}

// SampleCatalog returns the catalog built into the binary.
func SampleCatalog() *Catalog {
	var c Catalog
	if err := json.Unmarshal(sampleCatalogJSON, &c); err != nil {
		panic(fmt.Sprintf("embedded sample catalog is invalid: %v", err))
	}
	return &c
}

// LoadCatalog reads a catalog in the embedded format.
func LoadCatalog(r io.Reader) (*Catalog, error) {
	var c Catalog
	if err := json.NewDecoder(r).Decode(&c); err != nil {
		return nil, fmt.Errorf("failed to decode field catalog: %w", err)
	}
	return &c, nil
}

// Summaries lists the catalog in order. Area is reported for entries whose
// boundary is valid.
func (c *Catalog) Summaries() []Summary {
	out := make([]Summary, 0, len(c.Fields))
	for _, f := range c.Fields {
		s := Summary{
			ID:             f.ID,
			Name:           f.Name,
			Source:         SourceSample,
			OrganizationID: c.OrganizationID,
		}
		if projected, err := (geo.Projector{}).Project(f.Boundary); err == nil {
			ha := projected.Area() / 10000
			s.AreaHectares = &ha
		}
		out = append(out, s)
	}
	return out
}

// Boundary returns the boundary of fieldID.
func (c *Catalog) Boundary(fieldID string) (*Boundary, error) {
	for _, f := range c.Fields {
		if f.ID == fieldID {
			return &Boundary{
				FieldID: f.ID,
				Name:    f.Name,
				Source:  SourceSample,
				Ring:    append([]geo.LatLon(nil), f.Boundary...),
			}, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrFieldNotFound, fieldID)
}
