package enrich

import (
	"github.com/rotisserie/eris"

	"github.com/sells-group/address-helper/internal/model"
)

// DoublePolicy decides what happens to buildings proposing the same address.
type DoublePolicy string

const (
	// DropAll removes every building of a duplicate group.
	DropAll DoublePolicy = "drop_all"
	// KeepFirst keeps the first building of a group in batch order.
	KeepFirst DoublePolicy = "keep_first"
)

// ParseDoublePolicy validates a policy name. An empty name means DropAll.
func ParseDoublePolicy(s string) (DoublePolicy, error) {
	switch DoublePolicy(s) {
	case "", DropAll:
		return DropAll, nil
	case KeepFirst:
		return KeepFirst, nil
	default:
		return "", eris.Errorf("enrich: unknown double policy %q", s)
	}
}

// addressKey returns the street/house pair proposed for b, or "" when one of
// them is missing.
func addressKey(b *Building) string {
	tags := b.ProposedTags()
	street, house := tags[model.KeyStreet], tags[model.KeyHouseNumber]
	if street == "" || house == "" {
		return ""
	}
	return street + "\x00" + house
}

// RemoveDoubles filters buildings whose proposed street and house number pair
// is shared with another building. Buildings without both tags are kept.
func RemoveDoubles(buildings []*Building, policy DoublePolicy) []*Building {
	keys := make([]string, len(buildings))
	counts := make(map[string]int)
	for i, b := range buildings {
		keys[i] = addressKey(b)
		if keys[i] != "" {
			counts[keys[i]]++
		}
	}

	out := make([]*Building, 0, len(buildings))
	kept := make(map[string]bool)
	for i, b := range buildings {
		k := keys[i]
		if k == "" || counts[k] == 1 {
			out = append(out, b)
			continue
		}
		if policy == KeepFirst && !kept[k] {
			kept[k] = true
			out = append(out, b)
		}
	}
	return out
}
