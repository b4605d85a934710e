// Package patterns loads ordered lists of address extraction patterns from
// YAML resources. The bundled catalogs live under references/ and can be
// replaced with files on disk through configuration.
package patterns

import (
	"embed"
	"os"
	"regexp"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// Named capture groups the parsers read.
const (
	GroupHouseNumber = "housenumber"
	GroupStreet      = "street"
)

// Bundled catalog names.
const (
	House  = "house"
	Street = "street"
)

//go:embed references/*.yml
var references embed.FS

var bundled = map[string]struct {
	file  string
	group string
}{
	House:  {file: "references/house_patterns.yml", group: GroupHouseNumber},
	Street: {file: "references/street_patterns.yml", group: GroupStreet},
}

// ErrInvalid marks a catalog that cannot be used: unreadable, malformed YAML,
// a pattern that does not compile, or a pattern missing its named group.
var ErrInvalid = eris.New("patterns: invalid catalog")

// List is an ordered, immutable sequence of compiled patterns sharing one
// required named group. It is safe for concurrent use.
type List struct {
	name     string
	group    string
	patterns []*regexp.Regexp
}

type catalogFile struct {
	Patterns []string `yaml:"patterns"`
}

// Load returns a bundled catalog by name (House or Street).
func Load(name string) (*List, error) {
	ref, ok := bundled[name]
	if !ok {
		return nil, eris.Wrapf(ErrInvalid, "unknown catalog %q", name)
	}
	data, err := references.ReadFile(ref.file)
	if err != nil {
		return nil, eris.Wrapf(ErrInvalid, "read %s: %v", ref.file, err)
	}
	return Parse(name, data, ref.group)
}

// MustLoad is like Load but panics; a bundled catalog that fails to load is a
// packaging error.
func MustLoad(name string) *List {
	l, err := Load(name)
	if err != nil {
		panic(err)
	}
	return l
}

// LoadFile reads a catalog from disk. When path is empty the bundled catalog
// for name is returned instead.
func LoadFile(name, path string) (*List, error) {
	if path == "" {
		return Load(name)
	}
	ref, ok := bundled[name]
	if !ok {
		return nil, eris.Wrapf(ErrInvalid, "unknown catalog %q", name)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(ErrInvalid, "read %s: %v", path, err)
	}
	return Parse(path, data, ref.group)
}

// Parse compiles a YAML catalog. Every pattern must compile and define group.
// Declaration order is preserved.
func Parse(name string, data []byte, group string) (*List, error) {
	var f catalogFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, eris.Wrapf(ErrInvalid, "%s: parse yaml: %v", name, err)
	}
	if len(f.Patterns) == 0 {
		return nil, eris.Wrapf(ErrInvalid, "%s: no patterns", name)
	}

	l := &List{name: name, group: group, patterns: make([]*regexp.Regexp, 0, len(f.Patterns))}
	for i, expr := range f.Patterns {
		re, err := regexp.Compile(expr)
		if err != nil {
			return nil, eris.Wrapf(ErrInvalid, "%s: pattern %d: %v", name, i, err)
		}
		if re.SubexpIndex(group) < 0 {
			return nil, eris.Wrapf(ErrInvalid, "%s: pattern %d has no %q group", name, i, group)
		}
		l.patterns = append(l.patterns, re)
	}
	return l, nil
}

// Name returns the catalog name or source path.
func (l *List) Name() string { return l.name }

// Group returns the named group every pattern defines.
func (l *List) Group() string { return l.group }

// Len returns the number of patterns.
func (l *List) Len() int { return len(l.patterns) }

// Find applies the patterns in order and returns the group value of the first
// pattern that matches, with that pattern's index. ok is false when nothing
// matches.
func (l *List) Find(s string) (value string, index int, ok bool) {
	if l == nil {
		return "", -1, false
	}
	for i, re := range l.patterns {
		m := re.FindStringSubmatch(s)
		if m == nil {
			continue
		}
		return m[re.SubexpIndex(l.group)], i, true
	}
	return "", -1, false
}
