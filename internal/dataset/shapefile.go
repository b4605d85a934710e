package dataset

import (
	"strconv"
	"strings"

	"github.com/jonas-p/go-shp"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"go.uber.org/zap"

	"github.com/sells-group/address-helper/internal/model"
)

// idFields are DBF columns taken as the primitive id, in priority order.
var idFields = []string{"osm_id", "id"}

// LoadShapefile reads a WGS84 shapefile. DBF attributes become tags (empty
// values dropped); the osm_id or id column, when present, becomes the id.
func LoadShapefile(path string) ([]*model.Primitive, error) {
	reader, err := shp.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "dataset: open shapefile %s", path)
	}
	defer func() { _ = reader.Close() }()

	fields := reader.Fields()
	names := make([]string, len(fields))
	for i, f := range fields {
		names[i] = strings.TrimSpace(strings.TrimRight(f.String(), "\x00"))
	}

	var prims []*model.Primitive
	var skipped int
	for reader.Next() {
		n, shape := reader.Shape()

		tags := make(model.Tags, len(names))
		for i, name := range names {
			val := strings.TrimSpace(strings.TrimRight(reader.Attribute(i), "\x00"))
			if val != "" && name != "" {
				tags[name] = val
			}
		}

		g := ShapeToGeometry(shape)
		if g == nil {
			skipped++
			continue
		}

		id := "shp/" + strconv.Itoa(n)
		for _, f := range idFields {
			if v, ok := tags[f]; ok {
				id = v
				delete(tags, f)
				break
			}
		}
		prims = append(prims, &model.Primitive{ID: id, Tags: tags, Geometry: g})
	}

	if skipped > 0 {
		zap.L().Debug("dataset: skipped shapefile records",
			zap.String("path", path),
			zap.Int("skipped", skipped),
		)
	}
	return prims, nil
}

// ShapeToGeometry converts a shapefile record to go-geom. Polygon rings are
// grouped by winding: clockwise rings are shells, the rest are holes of the
// preceding shell. A single shell yields a Polygon, several a MultiPolygon.
// Polylines yield a LineString or MultiLineString. Other shapes yield nil.
func ShapeToGeometry(shape shp.Shape) geom.T {
	switch s := shape.(type) {
	case *shp.Point:
		return geom.NewPointFlat(geom.XY, []float64{s.X, s.Y})
	case *shp.PolyLine:
		return polyLineToGeometry(s)
	case *shp.Polygon:
		return polygonToGeometry(s)
	default:
		return nil
	}
}

func parts(numParts int32, starts []int32, points []shp.Point) [][]float64 {
	out := make([][]float64, 0, numParts)
	for i := int32(0); i < numParts && int(i) < len(starts); i++ {
		start := starts[i]
		end := int32(len(points))
		if i+1 < numParts && int(i+1) < len(starts) {
			end = starts[i+1]
		}
		if start < 0 || start > end || int(end) > len(points) {
			continue
		}
		flat := make([]float64, 0, (end-start)*2)
		for j := start; j < end; j++ {
			flat = append(flat, points[j].X, points[j].Y)
		}
		out = append(out, flat)
	}
	return out
}

func polyLineToGeometry(pl *shp.PolyLine) geom.T {
	if pl == nil {
		return nil
	}
	var lines [][]float64
	for _, flat := range parts(pl.NumParts, pl.Parts, pl.Points) {
		if len(flat) >= 4 {
			lines = append(lines, flat)
		}
	}
	switch len(lines) {
	case 0:
		return nil
	case 1:
		return geom.NewLineStringFlat(geom.XY, lines[0])
	}
	mls := geom.NewMultiLineString(geom.XY)
	for i, flat := range lines {
		if err := mls.Push(geom.NewLineStringFlat(geom.XY, flat)); err != nil {
			zap.L().Debug("dataset: skipping malformed linestring part", zap.Int("part", i), zap.Error(err))
		}
	}
	return mls
}

func polygonToGeometry(p *shp.Polygon) geom.T {
	if p == nil {
		return nil
	}
	var polys []*geom.Polygon
	for i, flat := range parts(p.NumParts, p.Parts, p.Points) {
		if len(flat) < 8 {
			continue
		}
		ring := geom.NewLinearRingFlat(geom.XY, flat)
		if signedArea(flat) < 0 || len(polys) == 0 {
			polys = append(polys, geom.NewPolygon(geom.XY))
		}
		if err := polys[len(polys)-1].Push(ring); err != nil {
			zap.L().Debug("dataset: skipping malformed polygon ring", zap.Int("part", i), zap.Error(err))
		}
	}
	switch len(polys) {
	case 0:
		return nil
	case 1:
		return polys[0]
	}
	mp := geom.NewMultiPolygon(geom.XY)
	for i, poly := range polys {
		if err := mp.Push(poly); err != nil {
			zap.L().Debug("dataset: skipping malformed polygon part", zap.Int("part", i), zap.Error(err))
		}
	}
	return mp
}

// signedArea is the shoelace sum; negative for clockwise rings.
func signedArea(flat []float64) float64 {
	var sum float64
	for i := 0; i+3 < len(flat); i += 2 {
		sum += flat[i]*flat[i+3] - flat[i+2]*flat[i+1]
	}
	return sum / 2
}
