package patterns

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Bundled(t *testing.T) {
	t.Parallel()

	house, err := Load(House)
	require.NoError(t, err)
	assert.Equal(t, GroupHouseNumber, house.Group())
	assert.Greater(t, house.Len(), 0)

	street, err := Load(Street)
	require.NoError(t, err)
	assert.Equal(t, GroupStreet, street.Group())
	assert.Greater(t, street.Len(), 0)
}

func TestLoad_UnknownCatalog(t *testing.T) {
	t.Parallel()

	_, err := Load("nope")
	require.Error(t, err)
	assert.True(t, eris.Is(err, ErrInvalid))
}

func TestMustLoad_PanicsOnUnknown(t *testing.T) {
	t.Parallel()

	assert.Panics(t, func() { MustLoad("nope") })
	assert.NotPanics(t, func() { MustLoad(House) })
}

func TestParse_PreservesOrder(t *testing.T) {
	t.Parallel()

	data := []byte(`
patterns:
  - '(?P<street>first)'
  - '(?P<street>fir)'
`)
	l, err := Parse("inline", data, GroupStreet)
	require.NoError(t, err)

	value, idx, ok := l.Find("first")
	require.True(t, ok)
	assert.Equal(t, 0, idx)
	assert.Equal(t, "first", value)

	value, idx, ok = l.Find("fir")
	require.True(t, ok)
	assert.Equal(t, 1, idx)
	assert.Equal(t, "fir", value)
}

func TestParse_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		data string
	}{
		{"bad yaml", "patterns: [unclosed"},
		{"empty", "patterns: []"},
		{"bad regexp", "patterns:\n  - '(?P<street>[a-'\n"},
		{"missing group", "patterns:\n  - '(?P<other>x)'\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := Parse(tt.name, []byte(tt.data), GroupStreet)
			require.Error(t, err)
			assert.True(t, eris.Is(err, ErrInvalid))
		})
	}
}

func TestLoadFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "house.yml")
	require.NoError(t, os.WriteFile(path, []byte("patterns:\n  - 'no (?P<housenumber>\\d+)'\n"), 0o644))

	l, err := LoadFile(House, path)
	require.NoError(t, err)
	assert.Equal(t, path, l.Name())

	value, _, ok := l.Find("no 42")
	require.True(t, ok)
	assert.Equal(t, "42", value)

	_, err = LoadFile(House, filepath.Join(dir, "missing.yml"))
	require.Error(t, err)

	bundledList, err := LoadFile(House, "")
	require.NoError(t, err)
	assert.Equal(t, House, bundledList.Name())
}

func TestFind_NoMatch(t *testing.T) {
	t.Parallel()

	l := MustLoad(House)
	value, idx, ok := l.Find("без номера")
	assert.False(t, ok)
	assert.Equal(t, -1, idx)
	assert.Empty(t, value)

	var nilList *List
	_, _, ok = nilList.Find("д 5")
	assert.False(t, ok)
}

func TestBundledStreetPatterns(t *testing.T) {
	t.Parallel()

	l := MustLoad(Street)
	tests := []struct {
		address string
		want    string
	}{
		{"г Москва, ул Ленина, д 5", "Ленина"},
		{"Российская Федерация, обл. Московская, г. Химки, ул. Молодёжная, д. 7", "Молодёжная"},
		{"г Москва, пр-кт Мира, д 12", "Мира"},
		{"г Москва, Ленинский пр-кт, д 30", "Ленинский"},
		{"край Краснодарский, ст-ца Полтавская, улица Красная, 12", "Красная"},
	}
	for _, tt := range tests {
		t.Run(tt.address, func(t *testing.T) {
			t.Parallel()
			got, _, ok := l.Find(tt.address)
			require.True(t, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestBundledHousePatterns(t *testing.T) {
	t.Parallel()

	l := MustLoad(House)
	tests := []struct {
		address string
		want    string
	}{
		{"г Москва, ул Ленина, д 5", "5"},
		{"г Москва, ул Ленина, д. 12/1а, кв 3", "12/1а"},
		{"г Москва, ул Ленина, дом № 7", "7"},
		{"г Москва, ул Ленина, влд 14", "14"},
		{"г Москва, ул Ленина, 9б", "9б"},
		{"г Москва, ул Ленина, дом № 7к2", "7к2"},
		{"г Москва, ул Ленина, д 12с1, кв 4", "12с1"},
		{"г Москва, ул Ленина, д 3к1с2", "3к1с2"},
		{"г Москва, ул Ленина, 15к3", "15к3"},
	}
	for _, tt := range tests {
		t.Run(tt.address, func(t *testing.T) {
			t.Parallel()
			got, _, ok := l.Find(tt.address)
			require.True(t, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}
