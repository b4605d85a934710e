package egrn

import (
	"net/url"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/address-helper/internal/geo"
)

// Placeholders substituted in a URL template.
const (
	PlaceholderLat = "{lat}"
	PlaceholderLon = "{lon}"
)

// DefaultTemplate queries the public cadastral map for the parcel at a point.
const DefaultTemplate = "https://pkk.rosreestr.ru/api/features/1?text={lat} {lon}&limit=1&skip=0&inPoint=true"

// ErrTemplate is returned for URL templates that cannot produce a request.
var ErrTemplate = eris.New("egrn: invalid url template")

// Template is a request URL with literal {lat} and {lon} placeholders.
type Template struct {
	raw string
}

// ParseTemplate validates that s carries both placeholders and expands into
// an absolute http(s) URL.
func ParseTemplate(s string) (Template, error) {
	s = strings.TrimSpace(s)
	if !strings.Contains(s, PlaceholderLat) || !strings.Contains(s, PlaceholderLon) {
		return Template{}, eris.Wrapf(ErrTemplate, "%q: missing %s or %s", s, PlaceholderLat, PlaceholderLon)
	}
	t := Template{raw: s}
	u, err := url.Parse(t.Expand(geo.LatLon{}))
	if err != nil {
		return Template{}, eris.Wrapf(ErrTemplate, "%q: %v", s, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return Template{}, eris.Wrapf(ErrTemplate, "%q: need an absolute http(s) url", s)
	}
	return t, nil
}

// MustParseTemplate is ParseTemplate for compile-time constants.
func MustParseTemplate(s string) Template {
	t, err := ParseTemplate(s)
	if err != nil {
		panic(err)
	}
	return t
}

// String returns the template as configured.
func (t Template) String() string { return t.raw }

// Expand substitutes the coordinate and percent-encodes spaces. Nothing else
// in the template is touched.
func (t Template) Expand(ll geo.LatLon) string {
	r := strings.NewReplacer(
		PlaceholderLat, geo.FormatDegrees(ll.Lat),
		PlaceholderLon, geo.FormatDegrees(ll.Lon),
		" ", "%20",
	)
	return r.Replace(t.raw)
}
