// Package geo converts field boundaries between WGS84 and the planar metres
// the simulation engine works in.
//
// Projection is an equirectangular approximation anchored at the south-west
// corner of the boundary's bounding box:
//
//	x = (lon - lon0) * 111320 * cos(lat0)
//	y = (lat - lat0) * 111320
//
// This is accurate to well under 0.5% against great-circle distances for
// fields spanning less than 5 km at mid latitudes. It degrades towards the
// poles and across very large extents, which is acceptable for agricultural
// fields and deliberately not handled.
package geo
