// Package model defines the map primitives, tags and changesets shared by the
// dataset stores, the parsers and the enrichment pipeline.
package model

import (
	"sort"

	"github.com/twpayne/go-geom"
)

// Well-known tag keys.
const (
	KeyHighway     = "highway"
	KeyName        = "name"
	KeyBuilding    = "building"
	KeyHouseNumber = "addr:housenumber"
	KeyStreet      = "addr:street"
	KeySourceAddr  = "source:addr"
)

// Tags is a key/value tag map. Keys are unique; order is irrelevant.
type Tags map[string]string

// Keys returns the tag keys sorted lexically.
func (t Tags) Keys() []string {
	keys := make([]string, 0, len(t))
	for k := range t {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Clone returns a shallow copy of the tag map.
func (t Tags) Clone() Tags {
	out := make(Tags, len(t))
	for k, v := range t {
		out[k] = v
	}
	return out
}

// Primitive is a map object (node, way or relation) as seen by the enrichment
// pipeline. Geometry is expressed in WGS84 longitude/latitude.
type Primitive struct {
	ID         string `json:"id"` // e.g. "way/123456"
	Tags       Tags   `json:"tags"`
	Geometry   geom.T `json:"-"`
	Deleted    bool   `json:"deleted,omitempty"`
	Incomplete bool   `json:"incomplete,omitempty"`
}

// HasKey reports whether the primitive carries the given key with any value.
func (p *Primitive) HasKey(key string) bool {
	if p == nil || p.Tags == nil {
		return false
	}
	_, ok := p.Tags[key]
	return ok
}

// Get returns the value of key, or "" when absent.
func (p *Primitive) Get(key string) string {
	if p == nil || p.Tags == nil {
		return ""
	}
	return p.Tags[key]
}

// Usable reports whether the primitive is neither deleted nor incomplete.
func (p *Primitive) Usable() bool {
	return p != nil && !p.Deleted && !p.Incomplete
}

// IsBuilding reports whether the primitive is tagged as a building.
func (p *Primitive) IsBuilding() bool {
	return p.HasKey(KeyBuilding)
}

// IsNamedRoad reports whether the primitive is a named highway.
func (p *Primitive) IsNamedRoad() bool {
	return p.HasKey(KeyHighway) && p.HasKey(KeyName)
}
