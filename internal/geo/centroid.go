package geo

import (
	"math"

	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/xy"
	"go.uber.org/zap"
)

// Centroid returns the area centroid of a WGS84 polygon or multipolygon in
// Mercator meters. Any other geometry, an empty one or a degenerate ring
// yields nil.
func Centroid(g geom.T) *Point {
	var projected geom.T
	switch t := g.(type) {
	case *geom.Polygon:
		if t == nil || t.Empty() {
			return nil
		}
		projected = geom.NewPolygonFlat(geom.XY, project(t.FlatCoords(), t.Stride()), rescale(t.Ends(), t.Stride()))
	case *geom.MultiPolygon:
		if t == nil || t.Empty() {
			return nil
		}
		endss := make([][]int, len(t.Endss()))
		for i, ends := range t.Endss() {
			endss[i] = rescale(ends, t.Stride())
		}
		projected = geom.NewMultiPolygonFlat(geom.XY, project(t.FlatCoords(), t.Stride()), endss)
	default:
		return nil
	}

	c, err := xy.Centroid(projected)
	if err != nil {
		zap.L().Debug("geo: centroid failed", zap.Error(err))
		return nil
	}
	if len(c) < 2 || math.IsNaN(c[0]) || math.IsNaN(c[1]) {
		return nil
	}
	return &Point{X: c[0], Y: c[1]}
}

// project converts flat lon/lat coordinates of any stride into XY Mercator.
func project(flat []float64, stride int) []float64 {
	out := make([]float64, 0, len(flat)/stride*2)
	for i := 0; i+1 < len(flat); i += stride {
		p := FromLatLon(LatLon{Lat: flat[i+1], Lon: flat[i]})
		out = append(out, p.X, p.Y)
	}
	return out
}

// rescale maps ring end offsets from stride to the XY stride of project.
func rescale(ends []int, stride int) []int {
	out := make([]int, len(ends))
	for i, e := range ends {
		out[i] = e / stride * 2
	}
	return out
}
