package parser

import (
	"context"
	"regexp"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/address-helper/internal/model"
	"github.com/sells-group/address-helper/internal/patterns"
)

// roadTypes lists the street type words stripped from OSM names.
const roadTypes = `ул\.?|улица|пр-кт|просп\.?|проспект|пер\.?|переулок|б-р|бульвар|ш\.?|шоссе|пр-д|проезд|пл\.?|площадь|наб\.?|набережная|туп\.?|тупик|аллея`

// osmStreetName strips the road type from an OSM street name so that
// "улица Ленина" and "Ленинский проспект" compare by their core part.
var osmStreetName = regexp.MustCompile(`(?i)^(?:(?:` + roadTypes + `)\s+)?(?P<street>.+?)(?:\s+(?:` + roadTypes + `))?$`)

// PrimitiveSource enumerates the non-deleted, complete primitives of a dataset.
type PrimitiveSource interface {
	Primitives(ctx context.Context) ([]*model.Primitive, error)
}

// StreetParse is the outcome of matching an address against known streets.
type StreetParse struct {
	Name      string `json:"name"`      // matched OSM street name, "" when unresolved
	Extracted string `json:"extracted"` // lower-cased street token taken from the address
}

// KnownStreet is one entry of the street index.
type KnownStreet struct {
	Name string `json:"name"`
	Core string `json:"core"`
}

// StreetParser matches extracted street tokens against the named roads of a
// dataset snapshot. The index is built once and never modified.
type StreetParser struct {
	patterns     *patterns.List
	streets      []string
	streetsShort []string
}

// NewStreetParser builds the street index from src. A nil catalog falls back
// to the bundled street patterns.
func NewStreetParser(ctx context.Context, src PrimitiveSource, list *patterns.List) (*StreetParser, error) {
	prims, err := src.Primitives(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "parser: load streets")
	}
	return NewStreetParserFromPrimitives(prims, list), nil
}

// NewStreetParserFromPrimitives builds the street index from an in-memory
// snapshot, in enumeration order.
func NewStreetParserFromPrimitives(prims []*model.Primitive, list *patterns.List) *StreetParser {
	if list == nil {
		list = patterns.MustLoad(patterns.Street)
	}
	p := &StreetParser{patterns: list}

	seen := make(map[string]bool)
	group := osmStreetName.SubexpIndex("street")
	for _, prim := range prims {
		if !prim.Usable() || !prim.IsNamedRoad() {
			continue
		}
		name := prim.Get(model.KeyName)
		if seen[name] {
			continue
		}
		m := osmStreetName.FindStringSubmatch(name)
		if m == nil {
			continue
		}
		seen[name] = true
		p.streets = append(p.streets, name)
		p.streetsShort = append(p.streetsShort, lower(m[group]))
	}

	zap.L().Debug("parser: street index built", zap.Int("streets", len(p.streets)))
	return p
}

// Parse extracts the street token from address and returns the first known
// street that equals it or differs from it in at most two positions. The scan
// follows dataset order, not best-match order.
func (p *StreetParser) Parse(address string) StreetParse {
	value, _, ok := p.patterns.Find(address)
	if !ok {
		return StreetParse{}
	}
	extracted := lower(value)
	if extracted == "" {
		return StreetParse{}
	}

	for i, short := range p.streetsShort {
		if similar(extracted, short) {
			return StreetParse{Name: p.streets[i], Extracted: extracted}
		}
	}
	return StreetParse{Extracted: extracted}
}

// Len returns the number of indexed streets.
func (p *StreetParser) Len() int { return len(p.streets) }

// Streets returns a copy of the index in dataset order.
func (p *StreetParser) Streets() []KnownStreet {
	out := make([]KnownStreet, len(p.streets))
	for i := range p.streets {
		out[i] = KnownStreet{Name: p.streets[i], Core: p.streetsShort[i]}
	}
	return out
}
