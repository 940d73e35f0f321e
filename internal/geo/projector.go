package geo

import (
	"math"

	"github.com/twpayne/go-geom"
)

const (
	// MetersPerDegree is the length of one degree of latitude.
	MetersPerDegree = 111320.0

	// EarthRadius is the mean Earth radius in metres.
	EarthRadius = 6371008.8

	// DefaultPadding is the margin in metres around a projected field.
	DefaultPadding = 10.0

	// minArea is the smallest enclosed area, in square degrees, treated as
	// non-degenerate (roughly 0.01 m²).
	minArea = 1e-12
)

// Projector maps boundaries into local metres. The zero value projects
// without padding. It holds no state and is safe for concurrent use.
type Projector struct {
	Padding float64
}

// Project converts ring into a ProjectedField. The ring must pass
// ValidateRing.
func (p Projector) Project(ring []LatLon) (*ProjectedField, error) {
	poly, err := ValidateRing(ring)
	if err != nil {
		return nil, err
	}

	bounds := poly.Bounds()
	origin := LatLon{Lat: bounds.Min(1), Lon: bounds.Min(0)}
	scaleX := MetersPerDegree * math.Cos(origin.Lat*math.Pi/180)

	local := make([]Point, len(ring))
	for i, ll := range ring {
		local[i] = Point{
			X: (ll.Lon - origin.Lon) * scaleX,
			Y: (ll.Lat - origin.Lat) * MetersPerDegree,
		}
	}

	extent := Size{
		Width:  (bounds.Max(0) - origin.Lon) * scaleX,
		Height: (bounds.Max(1) - origin.Lat) * MetersPerDegree,
	}

	return &ProjectedField{
		FieldW:    extent.Width + 2*p.Padding,
		FieldH:    extent.Height + 2*p.Padding,
		Extent:    extent,
		Padding:   p.Padding,
		Origin:    origin,
		LocalRing: local,
	}, nil
}

// Unproject maps a local point back to WGS84. It is the exact inverse of the
// projection used by Project for the same origin.
func Unproject(origin LatLon, pt Point) LatLon {
	scaleX := MetersPerDegree * math.Cos(origin.Lat*math.Pi/180)
	return LatLon{
		Lat: origin.Lat + pt.Y/MetersPerDegree,
		Lon: origin.Lon + pt.X/scaleX,
	}
}

// Haversine returns the great-circle distance between a and b in metres.
func Haversine(a, b LatLon) float64 {
	lat1 := a.Lat * math.Pi / 180
	lat2 := b.Lat * math.Pi / 180
	dLat := lat2 - lat1
	dLon := (b.Lon - a.Lon) * math.Pi / 180

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * EarthRadius * math.Asin(math.Min(1, math.Sqrt(h)))
}

// ValidateRing checks that ring encloses a non-zero area with at least three
// distinct points, and returns it as a closed XY polygon in lon/lat order.
func ValidateRing(ring []LatLon) (*geom.Polygon, error) {
	distinct := make(map[LatLon]struct{}, len(ring))
	for _, ll := range ring {
		if math.IsNaN(ll.Lat) || math.IsNaN(ll.Lon) || math.Abs(ll.Lat) > 90 || math.Abs(ll.Lon) > 180 {
			return nil, &GeometryError{Reason: "coordinate out of range", Points: len(ring)}
		}
		distinct[ll] = struct{}{}
	}
	if len(distinct) < 3 {
		return nil, &GeometryError{Reason: "fewer than 3 distinct points", Points: len(ring)}
	}

	poly, err := polygon(ring, func(ll LatLon) geom.Coord { return geom.Coord{ll.Lon, ll.Lat} })
	if err != nil {
		return nil, &GeometryError{Reason: err.Error(), Points: len(ring)}
	}
	if math.Abs(poly.Area()) < minArea {
		return nil, &GeometryError{Reason: "ring encloses no area", Points: len(ring)}
	}
	return poly, nil
}

// polygon builds a closed single-ring polygon; go-geom does not close rings
// implicitly and its area is signed by winding.
func polygon[T comparable](ring []T, coord func(T) geom.Coord) (*geom.Polygon, error) {
	coords := make([]geom.Coord, 0, len(ring)+1)
	for _, v := range ring {
		coords = append(coords, coord(v))
	}
	if len(ring) > 0 && ring[0] != ring[len(ring)-1] {
		coords = append(coords, coord(ring[0]))
	}
	return geom.NewPolygon(geom.XY).SetCoords([][]geom.Coord{coords})
}
