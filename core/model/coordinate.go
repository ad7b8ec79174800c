package model

import "math"

// Coordinate is a WGS84 latitude/longitude pair in decimal degrees.
type Coordinate struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Validate checks that both components are finite and within range.
func (c Coordinate) Validate() error {
	if math.IsNaN(c.Lat) || math.IsInf(c.Lat, 0) || c.Lat < -90 || c.Lat > 90 {
		return &ArgumentError{Field: "lat", Reason: "must be a finite value in [-90, 90]"}
	}
	if math.IsNaN(c.Lon) || math.IsInf(c.Lon, 0) || c.Lon < -180 || c.Lon > 180 {
		return &ArgumentError{Field: "lon", Reason: "must be a finite value in [-180, 180]"}
	}
	return nil
}

// Ring is one polygon ring as [longitude, latitude] pairs, GeoJSON order.
type Ring [][2]float64

// Polygon is a possibly multi-ring territory shape. Rings[0] is the exterior
// ring; holes are stored but not evaluated by containment.
type Polygon struct {
	Rings []Ring `json:"rings"`
}

// Exterior returns the outer ring, or nil when the polygon has none.
func (p *Polygon) Exterior() Ring {
	if p == nil || len(p.Rings) == 0 {
		return nil
	}
	return p.Rings[0]
}
