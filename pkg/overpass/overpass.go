// Package overpass fetches buildings and named roads from an Overpass API
// endpoint and converts them into map primitives.
package overpass

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"go.uber.org/zap"

	"github.com/sells-group/address-helper/internal/model"
)

// DefaultURL is the public Overpass interpreter.
const DefaultURL = "https://overpass-api.de/api/interpreter"

const defaultTimeout = 60 * time.Second

// BBox is a WGS84 bounding box.
type BBox struct {
	South float64 `json:"south"`
	West  float64 `json:"west"`
	North float64 `json:"north"`
	East  float64 `json:"east"`
}

// ParseBBox parses "minLat,minLon,maxLat,maxLon".
func ParseBBox(s string) (BBox, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return BBox{}, eris.Errorf("overpass: bbox %q must be minLat,minLon,maxLat,maxLon", s)
	}
	var vals [4]float64
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return BBox{}, eris.Wrapf(err, "overpass: bbox value %q", p)
		}
		vals[i] = v
	}
	b := BBox{South: vals[0], West: vals[1], North: vals[2], East: vals[3]}
	if b.South >= b.North || b.West >= b.East {
		return BBox{}, eris.Errorf("overpass: bbox %q is empty", s)
	}
	if b.South < -90 || b.North > 90 || b.West < -180 || b.East > 180 {
		return BBox{}, eris.Errorf("overpass: bbox %q out of range", s)
	}
	return b, nil
}

func (b BBox) String() string {
	return fmt.Sprintf("%f,%f,%f,%f", b.South, b.West, b.North, b.East)
}

// Client queries an Overpass interpreter.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
	Timeout    time.Duration
}

// NewClient returns a client for baseURL (DefaultURL when empty).
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{BaseURL: baseURL, Timeout: timeout}
}

// Query builds the Overpass QL request for buildings and named highways
// inside bbox.
func Query(bbox BBox, timeout time.Duration) string {
	secs := int(timeout / time.Second)
	if secs <= 0 {
		secs = int(defaultTimeout / time.Second)
	}
	b := bbox.String()
	return fmt.Sprintf(`[out:json][timeout:%d];
(
  way["building"](%s);
  relation["building"]["type"="multipolygon"](%s);
  way["highway"]["name"](%s);
);
out geom;`, secs, b, b, b)
}

// Fetch downloads the buildings and named roads inside bbox.
func (c *Client) Fetch(ctx context.Context, bbox BBox) ([]*model.Primitive, error) {
	ctx, cancel := context.WithTimeout(ctx, c.effectiveTimeout())
	defer cancel()

	endpoint, err := url.Parse(c.baseURL())
	if err != nil {
		return nil, eris.Wrap(err, "overpass: parse url")
	}
	params := url.Values{}
	params.Set("data", Query(bbox, c.effectiveTimeout()))
	endpoint.RawQuery = params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), nil)
	if err != nil {
		return nil, eris.Wrap(err, "overpass: create request")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient().Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "overpass: request")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, eris.Errorf("overpass: status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var decoded response
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, eris.Wrap(err, "overpass: decode response")
	}

	prims := Convert(decoded.Elements)
	zap.L().Debug("overpass: fetched",
		zap.String("bbox", bbox.String()),
		zap.Int("elements", len(decoded.Elements)),
		zap.Int("primitives", len(prims)),
	)
	return prims, nil
}

func (c *Client) httpClient() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return &http.Client{Timeout: c.effectiveTimeout()}
}

func (c *Client) effectiveTimeout() time.Duration {
	if c.Timeout > 0 {
		return c.Timeout
	}
	return defaultTimeout
}

func (c *Client) baseURL() string {
	if c.BaseURL != "" {
		return c.BaseURL
	}
	return DefaultURL
}

type latLon struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

type member struct {
	Type     string   `json:"type"`
	Ref      int64    `json:"ref"`
	Role     string   `json:"role"`
	Geometry []latLon `json:"geometry"`
}

// Element is one item of an Overpass JSON response produced with "out geom".
type Element struct {
	Type     string            `json:"type"`
	ID       int64             `json:"id"`
	Tags     map[string]string `json:"tags"`
	Geometry []latLon          `json:"geometry"`
	Members  []member          `json:"members"`
}

type response struct {
	Elements []Element `json:"elements"`
}

// Convert turns Overpass elements into primitives. Closed building ways become
// polygons, other ways become line strings, multipolygon relations become
// multipolygons. Relations with an unclosed ring are marked incomplete.
func Convert(elements []Element) []*model.Primitive {
	out := make([]*model.Primitive, 0, len(elements))
	for _, el := range elements {
		p := &model.Primitive{
			ID:   el.Type + "/" + strconv.FormatInt(el.ID, 10),
			Tags: model.Tags(el.Tags),
		}
		if p.Tags == nil {
			p.Tags = model.Tags{}
		}
		switch el.Type {
		case "way":
			if len(el.Geometry) < 2 {
				p.Incomplete = true
				break
			}
			flat := flatCoords(el.Geometry)
			if p.IsBuilding() && closed(el.Geometry) {
				p.Geometry = geom.NewPolygonFlat(geom.XY, flat, []int{len(flat)})
			} else {
				p.Geometry = geom.NewLineStringFlat(geom.XY, flat)
			}
		case "relation":
			mp, ok := relationGeometry(el.Members)
			p.Geometry = mp
			p.Incomplete = !ok
		default:
			continue
		}
		out = append(out, p)
	}
	return out
}

// relationGeometry assembles outer/inner member rings. Each inner ring is
// attached to the first outer ring whose bounds contain its first vertex.
func relationGeometry(members []member) (*geom.MultiPolygon, bool) {
	mp := geom.NewMultiPolygon(geom.XY)
	var outers []*geom.Polygon
	var inners [][]latLon
	complete := true
	for _, m := range members {
		if m.Type != "way" {
			continue
		}
		if len(m.Geometry) < 4 || !closed(m.Geometry) {
			complete = false
			continue
		}
		switch m.Role {
		case "inner":
			inners = append(inners, m.Geometry)
		default:
			flat := flatCoords(m.Geometry)
			outers = append(outers, geom.NewPolygonFlat(geom.XY, flat, []int{len(flat)}))
		}
	}
	for _, ring := range inners {
		pt := ring[0]
		for _, outer := range outers {
			if outer.Bounds().OverlapsPoint(geom.XY, geom.Coord{pt.Lon, pt.Lat}) {
				if err := outer.Push(geom.NewLinearRingFlat(geom.XY, flatCoords(ring))); err != nil {
					complete = false
				}
				break
			}
		}
	}
	for _, outer := range outers {
		if err := mp.Push(outer); err != nil {
			complete = false
		}
	}
	return mp, complete && len(outers) > 0
}

func closed(pts []latLon) bool {
	return len(pts) >= 4 && pts[0] == pts[len(pts)-1]
}

func flatCoords(pts []latLon) []float64 {
	flat := make([]float64, 0, 2*len(pts))
	for _, pt := range pts {
		flat = append(flat, pt.Lon, pt.Lat)
	}
	return flat
}
