// Package parser turns free-text cadastral addresses into OSM address tags:
// house numbers are extracted by pattern, street names are extracted by
// pattern and then matched against the streets present in the dataset.
package parser

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Parser extracts a single value from an address string. An empty result
// means nothing was found.
type Parser interface {
	Parse(address string) string
}

// lower and upper build a fresh Caser per call; casers keep state and must
// not be shared between goroutines.
func lower(s string) string {
	return cases.Lower(language.Russian).String(s)
}

func upper(s string) string {
	return cases.Upper(language.Russian).String(strings.TrimSpace(s))
}
