// Package enrich runs address enrichment batches: buildings are queried
// against the cadastral service at their anchor point, responses are parsed
// into address tags, and the resulting proposals are sanitized and grouped
// into one changeset.
package enrich

import (
	"sync"

	"github.com/sells-group/address-helper/internal/geo"
	"github.com/sells-group/address-helper/internal/model"
)

// Building is a primitive taking part in a batch together with its anchor
// point and the tags proposed for it so far.
type Building struct {
	Primitive *model.Primitive
	Anchor    *geo.Point // EPSG:3857; nil when the geometry is unsupported

	mu   sync.Mutex
	tags model.Tags
}

// NewBuilding derives the anchor point of p from its geometry.
func NewBuilding(p *model.Primitive) *Building {
	return &Building{
		Primitive: p,
		Anchor:    geo.Centroid(p.Geometry),
		tags:      model.Tags{},
	}
}

// NewBuildings wraps the usable primitives that have an anchor point. The
// ids of primitives left out are returned as skipped.
func NewBuildings(prims []*model.Primitive) (buildings []*Building, skipped []string) {
	for _, p := range prims {
		if p == nil {
			continue
		}
		if !p.Usable() {
			skipped = append(skipped, p.ID)
			continue
		}
		b := NewBuilding(p)
		if b.Anchor == nil {
			skipped = append(skipped, p.ID)
			continue
		}
		buildings = append(buildings, b)
	}
	return buildings, skipped
}

// ID returns the primitive id.
func (b *Building) ID() string { return b.Primitive.ID }

// LatLon returns the anchor point in WGS84.
func (b *Building) LatLon() geo.LatLon {
	if b.Anchor == nil {
		return geo.LatLon{}
	}
	return geo.ToLatLon(*b.Anchor)
}

// ProposedTags returns a copy of the tags proposed so far.
func (b *Building) ProposedTags() model.Tags {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.tags.Clone()
}

// Propose sets a proposed tag value.
func (b *Building) Propose(key, value string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.tags[key] = value
}

// HasProposals reports whether at least one tag has been proposed.
func (b *Building) HasProposals() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.tags) > 0
}
