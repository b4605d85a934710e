// Package geo provides the planar geometry used to place a building on the
// cadastral map: centroids in spherical Mercator (EPSG:3857) and the inverse
// projection back to WGS84 degrees.
package geo

import (
	"math"
	"strconv"
	"strings"
)

const (
	// EarthRadius is the WGS84 semi-major axis used by spherical Mercator, in meters.
	EarthRadius = 6378137.0

	// MaxLat is the latitude at which spherical Mercator becomes square.
	MaxLat = 85.05112878
	// MaxLon is the longitude bound.
	MaxLon = 180.0
)

// Point is a planar EPSG:3857 coordinate in meters.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// LatLon is a WGS84 coordinate in degrees.
type LatLon struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// ToLatLon converts a Mercator point to degrees, clamped to the projection bounds.
func ToLatLon(p Point) LatLon {
	lon := p.X / EarthRadius * 180 / math.Pi
	lat := (2*math.Atan(math.Exp(p.Y/EarthRadius)) - math.Pi/2) * 180 / math.Pi
	return LatLon{Lat: clamp(lat, MaxLat), Lon: clamp(lon, MaxLon)}
}

// FromLatLon projects degrees into Mercator meters. Input is clamped first.
func FromLatLon(ll LatLon) Point {
	lat := clamp(ll.Lat, MaxLat) * math.Pi / 180
	lon := clamp(ll.Lon, MaxLon) * math.Pi / 180
	return Point{
		X: EarthRadius * lon,
		Y: EarthRadius * math.Log(math.Tan(math.Pi/4+lat/2)),
	}
}

// FormatDegrees renders a coordinate with 7 decimals and no trailing zeros.
func FormatDegrees(v float64) string {
	s := strconv.FormatFloat(v, 'f', 7, 64)
	s = strings.TrimRight(s, "0")
	s = strings.TrimSuffix(s, ".")
	if s == "-0" {
		return "0"
	}
	return s
}

func clamp(v, bound float64) float64 {
	switch {
	case math.IsNaN(v):
		return 0
	case v > bound:
		return bound
	case v < -bound:
		return -bound
	}
	return v
}
