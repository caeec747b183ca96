package catalog

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Point is a GeoJSON point in (longitude, latitude) order
type Point struct {
	Type        string     `json:"type"`
	Coordinates [2]float64 `json:"coordinates"`
}

// NewPoint creates a GeoJSON point
func NewPoint(lon, lat float64) *Point {
	return &Point{Type: "Point", Coordinates: [2]float64{lon, lat}}
}

// Lon returns the longitude
func (p Point) Lon() float64 { return p.Coordinates[0] }

// Lat returns the latitude
func (p Point) Lat() float64 { return p.Coordinates[1] }

// Polygon is a GeoJSON polygon made of linear rings
type Polygon struct {
	Type        string         `json:"type"`
	Coordinates [][][2]float64 `json:"coordinates"`
}

// Feature is a GeoJSON feature carrying an entry location
type Feature struct {
	Type       string         `json:"type"`
	Geometry   Point          `json:"geometry"`
	Properties map[string]any `json:"properties"`
}

// GeometryCollection is the GeoJSON feature collection of entry locations.
// Features is never nil so that it always serializes as a JSON array.
type GeometryCollection struct {
	Type     string    `json:"type"`
	Features []Feature `json:"features"`
}

// NewGeometryCollection creates an empty collection
func NewGeometryCollection() *GeometryCollection {
	return &GeometryCollection{Type: "FeatureCollection", Features: []Feature{}}
}

// Add appends a point feature
func (gc *GeometryCollection) Add(p Point, properties map[string]any) {
	if properties == nil {
		properties = map[string]any{}
	}
	gc.Features = append(gc.Features, Feature{Type: "Feature", Geometry: p, Properties: properties})
}

// ParseWKTPoint parses "POINT (lon lat)" or a bare "lon lat" / "lon,lat" pair
func ParseWKTPoint(s string) (*Point, error) {
	raw := strings.TrimSpace(s)
	upper := strings.ToUpper(raw)
	if strings.HasPrefix(upper, "POINT") {
		raw = strings.TrimSpace(raw[len("POINT"):])
		if !strings.HasPrefix(raw, "(") || !strings.HasSuffix(raw, ")") {
			return nil, fmt.Errorf("invalid WKT point: %q", s)
		}
		raw = strings.TrimSpace(raw[1 : len(raw)-1])
	}

	parts := strings.FieldsFunc(raw, func(r rune) bool { return r == ' ' || r == ',' })
	if len(parts) != 2 {
		return nil, fmt.Errorf("invalid point: %q", s)
	}
	lon, err := strconv.ParseFloat(parts[0], 64)
	if err != nil {
		return nil, fmt.Errorf("invalid longitude in %q: %w", s, err)
	}
	lat, err := strconv.ParseFloat(parts[1], 64)
	if err != nil {
		return nil, fmt.Errorf("invalid latitude in %q: %w", s, err)
	}
	if !finite(lon) || !finite(lat) {
		return nil, fmt.Errorf("point coordinates must be finite: %q", s)
	}
	if lon < -180 || lon > 180 || lat < -90 || lat > 90 {
		return nil, fmt.Errorf("point out of range: %q", s)
	}
	return NewPoint(lon, lat), nil
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
