package enrich

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/address-helper/internal/model"
)

func proposed(id, street, house string) *Building {
	b := NewBuilding(building(id, 37.6, 55.75, nil))
	if street != "" {
		b.Propose(model.KeyStreet, street)
	}
	if house != "" {
		b.Propose(model.KeyHouseNumber, house)
	}
	if street == "" && house == "" {
		b.Propose(DefaultRawAddressKey, "raw")
	}
	return b
}

func ids(buildings []*Building) []string {
	out := make([]string, len(buildings))
	for i, b := range buildings {
		out[i] = b.ID()
	}
	return out
}

func TestRemoveDoubles(t *testing.T) {
	input := func() []*Building {
		return []*Building{
			proposed("way/1", "улица Ленина", "5"),
			proposed("way/2", "улица Ленина", "7"),
			proposed("way/3", "улица Ленина", "5"),
			proposed("way/4", "", ""),
			proposed("way/5", "", ""),
			proposed("way/6", "улица Мира", "5"),
			proposed("way/7", "улица Ленина", "5"),
		}
	}

	assert.Equal(t, []string{"way/2", "way/4", "way/5", "way/6"}, ids(RemoveDoubles(input(), DropAll)))
	assert.Equal(t, []string{"way/1", "way/2", "way/4", "way/5", "way/6"}, ids(RemoveDoubles(input(), KeepFirst)))
}

func TestRemoveDoubles_NoDuplicateAddresses(t *testing.T) {
	for _, policy := range []DoublePolicy{DropAll, KeepFirst} {
		out := RemoveDoubles([]*Building{
			proposed("way/1", "улица Ленина", "5"),
			proposed("way/2", "улица Ленина", "5"),
			proposed("way/3", "улица Ленина", "5"),
		}, policy)

		seen := map[string]bool{}
		for _, b := range out {
			k := addressKey(b)
			assert.False(t, seen[k], "duplicate %q with %s", k, policy)
			seen[k] = true
		}
	}
}

func TestParseDoublePolicy(t *testing.T) {
	p, err := ParseDoublePolicy("")
	require.NoError(t, err)
	assert.Equal(t, DropAll, p)

	p, err = ParseDoublePolicy("keep_first")
	require.NoError(t, err)
	assert.Equal(t, KeepFirst, p)

	_, err = ParseDoublePolicy("keep_last")
	assert.Error(t, err)
}
