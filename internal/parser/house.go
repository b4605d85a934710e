package parser

import (
	"github.com/sells-group/address-helper/internal/patterns"
)

// HouseNumberParser returns the house number of the first matching pattern.
type HouseNumberParser struct {
	patterns *patterns.List
}

var _ Parser = (*HouseNumberParser)(nil)

// NewHouseNumberParser creates a parser over the given catalog. A nil catalog
// falls back to the bundled house patterns.
func NewHouseNumberParser(list *patterns.List) *HouseNumberParser {
	if list == nil {
		list = patterns.MustLoad(patterns.House)
	}
	return &HouseNumberParser{patterns: list}
}

// Parse returns the trimmed, upper-cased house number or "" when no pattern
// matches. Values from different patterns are never combined.
func (p *HouseNumberParser) Parse(address string) string {
	value, _, ok := p.patterns.Find(address)
	if !ok {
		return ""
	}
	return upper(value)
}
