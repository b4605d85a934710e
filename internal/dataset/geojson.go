package dataset

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom/encoding/geojson"

	"github.com/sells-group/address-helper/internal/model"
)

// Feature properties with special meaning on import.
const (
	propID         = "@id"
	propDeleted    = "@deleted"
	propIncomplete = "@incomplete"
)

// LoadGeoJSON reads a FeatureCollection. Properties become tags; non-string
// values are formatted, nulls dropped. The feature id (or an "@id" property)
// becomes the primitive id, falling back to "feature/<index>".
func LoadGeoJSON(r io.Reader) ([]*model.Primitive, error) {
	var fc geojson.FeatureCollection
	if err := json.NewDecoder(r).Decode(&fc); err != nil {
		return nil, eris.Wrap(err, "dataset: decode geojson")
	}

	prims := make([]*model.Primitive, 0, len(fc.Features))
	for i, f := range fc.Features {
		if f == nil {
			continue
		}
		p := &model.Primitive{
			ID:       f.ID,
			Tags:     make(model.Tags, len(f.Properties)),
			Geometry: f.Geometry,
		}
		for k, v := range f.Properties {
			switch k {
			case propID:
				if p.ID == "" {
					p.ID = formatValue(v)
				}
				continue
			case propDeleted:
				p.Deleted = truthy(v)
				continue
			case propIncomplete:
				p.Incomplete = truthy(v)
				continue
			}
			if v == nil {
				continue
			}
			p.Tags[k] = formatValue(v)
		}
		if p.ID == "" {
			p.ID = "feature/" + strconv.Itoa(i)
		}
		prims = append(prims, p)
	}
	return prims, nil
}

// LoadGeoJSONFile opens path and calls LoadGeoJSON.
func LoadGeoJSONFile(path string) ([]*model.Primitive, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "dataset: open %s", path)
	}
	defer f.Close() //nolint:errcheck
	return LoadGeoJSON(f)
}

// WriteGeoJSON encodes prims as a FeatureCollection. Deleted primitives are
// skipped.
func WriteGeoJSON(w io.Writer, prims []*model.Primitive) error {
	fc := geojson.FeatureCollection{Features: make([]*geojson.Feature, 0, len(prims))}
	for _, p := range prims {
		if p == nil || p.Deleted {
			continue
		}
		props := make(map[string]interface{}, len(p.Tags))
		for k, v := range p.Tags {
			props[k] = v
		}
		if p.Incomplete {
			props[propIncomplete] = true
		}
		fc.Features = append(fc.Features, &geojson.Feature{
			ID:         p.ID,
			Geometry:   p.Geometry,
			Properties: props,
		})
	}

	data, err := json.Marshal(&fc)
	if err != nil {
		return eris.Wrap(err, "dataset: encode geojson")
	}
	if _, err := w.Write(data); err != nil {
		return eris.Wrap(err, "dataset: write geojson")
	}
	return nil
}

// WriteGeoJSONFile writes prims to path, replacing it.
func WriteGeoJSONFile(path string, prims []*model.Primitive) error {
	f, err := os.Create(path)
	if err != nil {
		return eris.Wrapf(err, "dataset: create %s", path)
	}
	if err := WriteGeoJSON(f, prims); err != nil {
		_ = f.Close()
		return err
	}
	return eris.Wrapf(f.Close(), "dataset: close %s", path)
}

func formatValue(v interface{}) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	case nil:
		return ""
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprint(t)
		}
		return string(b)
	}
}

func truthy(v interface{}) bool {
	switch t := v.(type) {
	case bool:
		return t
	case string:
		b, _ := strconv.ParseBool(t)
		return b
	case float64:
		return t != 0
	}
	return false
}
