package enrich

import (
	"context"

	"github.com/twpayne/go-geom"

	"github.com/sells-group/address-helper/internal/geo"
	"github.com/sells-group/address-helper/internal/model"
	"github.com/sells-group/address-helper/pkg/egrn"
)

type requesterFunc func(ctx context.Context, ll geo.LatLon) (*egrn.Response, error)

func (f requesterFunc) Request(ctx context.Context, ll geo.LatLon) (*egrn.Response, error) {
	return f(ctx, ll)
}

func okResponse(body string) *egrn.Response {
	return &egrn.Response{StatusCode: 200, Body: []byte(body)}
}

// square returns a closed WGS84 ring with its south-west corner at lon/lat.
func square(lon, lat, d float64) *geom.Polygon {
	flat := []float64{lon, lat, lon + d, lat, lon + d, lat + d, lon, lat + d, lon, lat}
	return geom.NewPolygonFlat(geom.XY, flat, []int{len(flat)})
}

func building(id string, lon, lat float64, tags model.Tags) *model.Primitive {
	if tags == nil {
		tags = model.Tags{}
	}
	tags[model.KeyBuilding] = "yes"
	return &model.Primitive{ID: id, Tags: tags, Geometry: square(lon, lat, 0.0005)}
}

func road(id, name string) *model.Primitive {
	return &model.Primitive{
		ID:       id,
		Tags:     model.Tags{model.KeyHighway: "residential", model.KeyName: name},
		Geometry: geom.NewLineStringFlat(geom.XY, []float64{37.6, 55.75, 37.61, 55.76}),
	}
}

// buildingsAt returns n anchored buildings in input order.
func buildingsAt(n int) []*Building {
	out := make([]*Building, n)
	for i := range out {
		out[i] = NewBuilding(building("way/"+string(rune('a'+i)), 37.0+float64(i)*0.01, 55.0, nil))
	}
	return out
}

func drain(ch <-chan Response) []Response {
	var out []Response
	for r := range ch {
		out = append(out, r)
	}
	return out
}
