package geo

import (
	"errors"

	"github.com/cornerculling/extension/internal/geometry"
	geom "github.com/peterstace/simplefeatures/geom"
)

// FOOTPRINTS
// Occluder footprints are planar: map units on the XY plane, no SRID. The hull is kept as a
// geom.Geometry so it can be stored as GeoJSON alongside the map load record.

// ErrNoBounds is returned when a footprint is requested for zero boxes
var ErrNoBounds = errors.New("no bounds provided")

// Footprint is the XY convex hull of a set of occluder bounds
type Footprint struct {
	Hull geom.Geometry
	Area float64
	Min  geom.XY
	Max  geom.XY
}

// GeoJSON returns the hull encoded as a GeoJSON geometry object
func (f Footprint) GeoJSON() ([]byte, error) {
	return f.Hull.MarshalJSON()
}

// WKT returns the hull as well-known text, used in log lines
func (f Footprint) WKT() string {
	return f.Hull.AsText()
}

// FootprintFromBounds projects every box onto the XY plane and returns the convex hull of the corners
func FootprintFromBounds(bounds []geometry.AABB) (Footprint, error) {
	if len(bounds) == 0 {
		return Footprint{}, ErrNoBounds
	}

	// four XY corners per box
	flat := make([]float64, 0, len(bounds)*8)
	fp := Footprint{
		Min: geom.XY{X: bounds[0].Min[0], Y: bounds[0].Min[1]},
		Max: geom.XY{X: bounds[0].Max[0], Y: bounds[0].Max[1]},
	}
	for _, b := range bounds {
		flat = append(flat,
			b.Min[0], b.Min[1],
			b.Max[0], b.Min[1],
			b.Max[0], b.Max[1],
			b.Min[0], b.Max[1],
		)
		fp.Min.X = min(fp.Min.X, b.Min[0])
		fp.Min.Y = min(fp.Min.Y, b.Min[1])
		fp.Max.X = max(fp.Max.X, b.Max[0])
		fp.Max.Y = max(fp.Max.Y, b.Max[1])
	}

	seq := geom.NewSequence(flat, geom.DimXY)
	corners, err := geom.NewLineString(seq)
	if err != nil {
		return Footprint{}, err
	}

	fp.Hull = corners.AsGeometry().ConvexHull()
	fp.Area = fp.Hull.Area()
	return fp, nil
}
