package geo

import (
	"math"

	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/geojson"
)

// Area returns the area enclosed by the local ring in square metres.
func (pf *ProjectedField) Area() float64 {
	poly, err := pf.polygon()
	if err != nil {
		return 0
	}
	return math.Abs(poly.Area())
}

// Feature renders the local ring as a GeoJSON feature in planar metres, with
// the play area dimensions and origin as properties.
func (pf *ProjectedField) Feature(id string) (*geojson.Feature, error) {
	poly, err := pf.polygon()
	if err != nil {
		return nil, err
	}

	return &geojson.Feature{
		ID:       id,
		Geometry: poly,
		Properties: map[string]interface{}{
			"field_w":    pf.FieldW,
			"field_h":    pf.FieldH,
			"padding":    pf.Padding,
			"origin_lat": pf.Origin.Lat,
			"origin_lon": pf.Origin.Lon,
			"area_m2":    math.Abs(poly.Area()),
		},
	}, nil
}

func (pf *ProjectedField) polygon() (*geom.Polygon, error) {
	return polygon(pf.LocalRing, func(p Point) geom.Coord { return geom.Coord{p.X, p.Y} })
}
