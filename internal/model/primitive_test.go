package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPrimitive_HasKeyAndGet(t *testing.T) {
	t.Parallel()

	p := &Primitive{ID: "way/1", Tags: Tags{"highway": "residential", "name": "улица Ленина"}}
	assert.True(t, p.HasKey("highway"))
	assert.False(t, p.HasKey("building"))
	assert.Equal(t, "улица Ленина", p.Get("name"))
	assert.Equal(t, "", p.Get("missing"))
	assert.True(t, p.IsNamedRoad())
	assert.False(t, p.IsBuilding())
}

func TestPrimitive_NilSafe(t *testing.T) {
	t.Parallel()

	var p *Primitive
	assert.False(t, p.HasKey("name"))
	assert.Equal(t, "", p.Get("name"))
	assert.False(t, p.Usable())
}

func TestPrimitive_Usable(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		p    Primitive
		want bool
	}{
		{"plain", Primitive{ID: "way/1"}, true},
		{"deleted", Primitive{ID: "way/2", Deleted: true}, false},
		{"incomplete", Primitive{ID: "way/3", Incomplete: true}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, tt.p.Usable())
		})
	}
}

func TestTags_KeysSortedAndClone(t *testing.T) {
	t.Parallel()

	tags := Tags{"b": "2", "a": "1", "c": "3"}
	assert.Equal(t, []string{"a", "b", "c"}, tags.Keys())

	clone := tags.Clone()
	clone["a"] = "changed"
	assert.Equal(t, "1", tags["a"])
}

func TestChangeset_PrimitiveIDs(t *testing.T) {
	t.Parallel()

	cs := Changeset{Changes: []TagChange{
		{PrimitiveID: "way/2", Key: "addr:street", Value: "улица Ленина"},
		{PrimitiveID: "way/2", Key: "addr:housenumber", Value: "5"},
		{PrimitiveID: "way/1", Key: "addr:housenumber", Value: "7"},
	}}
	assert.Equal(t, []string{"way/2", "way/1"}, cs.PrimitiveIDs())
}
