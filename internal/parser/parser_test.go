package parser

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/address-helper/internal/model"
	"github.com/sells-group/address-helper/internal/patterns"
)

func road(id, name string) *model.Primitive {
	return &model.Primitive{ID: id, Tags: model.Tags{"highway": "residential", "name": name}}
}

type staticSource struct {
	prims []*model.Primitive
	err   error
}

func (s staticSource) Primitives(context.Context) ([]*model.Primitive, error) {
	return s.prims, s.err
}

func TestHouseNumberParser_Bundled(t *testing.T) {
	t.Parallel()

	p := NewHouseNumberParser(nil)
	tests := []struct {
		address string
		want    string
	}{
		{"г Москва, ул Ленина, д 5", "5"},
		{"г Москва, ул Ленина, д. 12/1а, кв 3", "12/1А"},
		{"г Москва, ул Ленина, 9б", "9Б"},
		{"г Москва, ул Ленина, дом № 7к2", "7К2"},
		{"г Москва, ул Ленина", ""},
		{"", ""},
	}
	for _, tt := range tests {
		t.Run(tt.address, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, p.Parse(tt.address))
		})
	}
}

func TestHouseNumberParser_FirstPatternWins(t *testing.T) {
	t.Parallel()

	list, err := patterns.Parse("test", []byte(`
patterns:
  - 'корп (?P<housenumber>\d+)'
  - 'д (?P<housenumber>\d+)'
`), patterns.GroupHouseNumber)
	require.NoError(t, err)

	p := NewHouseNumberParser(list)
	assert.Equal(t, "2", p.Parse("д 5 корп 2"))
	assert.Equal(t, "5", p.Parse("д 5"))
}

func TestHouseNumberParser_TrimsAndUppercases(t *testing.T) {
	t.Parallel()

	list, err := patterns.Parse("test", []byte(`
patterns:
  - 'no(?P<housenumber>\s*\d+[а-я]\s*)$'
`), patterns.GroupHouseNumber)
	require.NoError(t, err)

	assert.Equal(t, "7Б", NewHouseNumberParser(list).Parse("no 7б "))
}

func TestHammingDistance(t *testing.T) {
	t.Parallel()

	tests := []struct {
		a, b    string
		want    int
		wantOK  bool
		similar bool
	}{
		{"ленина", "ленина", 0, true, true},
		{"ленина", "ленона", 1, true, true},
		{"ленина", "лонона", 2, true, true},
		{"ленина", "лонопа", 3, true, false},
		{"ленина", "ленинаа", 0, false, false},
		{"мира", "мир", 0, false, false},
	}
	for _, tt := range tests {
		t.Run(tt.a+"/"+tt.b, func(t *testing.T) {
			t.Parallel()
			d, ok := HammingDistance(tt.a, tt.b)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, d)
			assert.Equal(t, tt.similar, similar(tt.a, tt.b))
		})
	}
}

func TestHammingDistance_CountsCharactersNotBytes(t *testing.T) {
	t.Parallel()

	// Cyrillic letters are two bytes each; a byte-wise comparison would
	// report a length mismatch against the mixed-script string.
	d, ok := HammingDistance("мир", "миp")
	require.True(t, ok)
	assert.Equal(t, 1, d)
}

func TestNewStreetParser_BuildsIndex(t *testing.T) {
	t.Parallel()

	prims := []*model.Primitive{
		road("way/1", "улица Ленина"),
		road("way/2", "улица Ленина"), // duplicate name
		road("way/3", "Ленинский проспект"),
		{ID: "way/4", Tags: model.Tags{"highway": "service"}},    // unnamed
		{ID: "way/5", Tags: model.Tags{"name": "Парк Горького"}}, // not a road
		{ID: "way/6", Tags: model.Tags{"highway": "primary", "name": "ул Садовая"}, Deleted: true},
		{ID: "way/7", Tags: model.Tags{"highway": "primary", "name": "Тверская"}, Incomplete: true},
	}

	p, err := NewStreetParser(context.Background(), staticSource{prims: prims}, nil)
	require.NoError(t, err)

	assert.Equal(t, 2, p.Len())
	assert.Equal(t, []KnownStreet{
		{Name: "улица Ленина", Core: "ленина"},
		{Name: "Ленинский проспект", Core: "ленинский"},
	}, p.Streets())
}

func TestNewStreetParser_SourceError(t *testing.T) {
	t.Parallel()

	_, err := NewStreetParser(context.Background(), staticSource{err: errors.New("boom")}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "load streets")
}

func TestStreetParser_Parse(t *testing.T) {
	t.Parallel()

	p := NewStreetParserFromPrimitives([]*model.Primitive{
		road("way/1", "улица Ленина"),
		road("way/2", "проспект Мира"),
		road("way/3", "Садовая улица"),
	}, nil)

	tests := []struct {
		name    string
		address string
		want    StreetParse
	}{
		{"exact", "г Москва, ул Ленина, д 5", StreetParse{Name: "улица Ленина", Extracted: "ленина"}},
		{"one typo", "г Москва, ул Ленона, д 5", StreetParse{Name: "улица Ленина", Extracted: "ленона"}},
		{"two typos", "г Москва, ул Лонона, д 5", StreetParse{Name: "улица Ленина", Extracted: "лонона"}},
		{"three typos", "г Москва, ул Лонопа, д 5", StreetParse{Extracted: "лонопа"}},
		{"length mismatch", "г Москва, ул Ленинаа, д 5", StreetParse{Extracted: "ленинаа"}},
		{"case insensitive", "г Москва, пр-кт МИРА, д 1", StreetParse{Name: "проспект Мира", Extracted: "мира"}},
		{"suffix form", "г Москва, Садовая ул, д 3", StreetParse{Name: "Садовая улица", Extracted: "садовая"}},
		{"no street", "г Москва, д 5", StreetParse{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, p.Parse(tt.address))
		})
	}
}

func TestStreetParser_FirstQualifyingEntryWins(t *testing.T) {
	t.Parallel()

	// "ленона" is one edit from both; dataset order decides.
	p := NewStreetParserFromPrimitives([]*model.Primitive{
		road("way/1", "улица Леоона"),
		road("way/2", "улица Ленина"),
	}, nil)

	got := p.Parse("г Москва, ул Ленона, д 5")
	assert.Equal(t, "улица Леоона", got.Name)
}

func TestStreetParser_Deterministic(t *testing.T) {
	t.Parallel()

	p := NewStreetParserFromPrimitives([]*model.Primitive{
		road("way/1", "улица Ленина"),
		road("way/2", "улица Ленона"),
	}, nil)

	first := p.Parse("г Москва, ул Лекина, д 5")
	for range 20 {
		assert.Equal(t, first, p.Parse("г Москва, ул Лекина, д 5"))
	}
}
