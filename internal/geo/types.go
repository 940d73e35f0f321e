package geo

import "fmt"

// LatLon is a WGS84 position in decimal degrees.
type LatLon struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Point is a local planar position in metres; X grows east, Y grows north.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Size is a planar extent in metres.
type Size struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// ProjectedField is a boundary in local metres, ready for the engine.
type ProjectedField struct {
	// FieldW and FieldH are the play area: Extent plus Padding on each side.
	FieldW float64 `json:"field_w"`
	FieldH float64 `json:"field_h"`

	// Extent is the bounding box of LocalRing.
	Extent Size `json:"extent"`

	Padding float64 `json:"padding"`

	// Origin is the geographic position of local (0, 0).
	Origin LatLon `json:"origin"`

	// LocalRing has one point per source vertex, in source order. The play
	// area spans [-Padding, Extent+Padding] on both axes.
	LocalRing []Point `json:"local_ring"`
}

// GeometryError reports a boundary that cannot describe a field.
type GeometryError struct {
	Reason string
	Points int
}

func (e *GeometryError) Error() string {
	return fmt.Sprintf("invalid field geometry (%d points): %s", e.Points, e.Reason)
}
