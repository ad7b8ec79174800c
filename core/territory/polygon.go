package territory

import (
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/mfvargas/fieldops/core/model"
)

// ValidatePolygon checks that the polygon has at least one ring and that its
// exterior ring holds at least three finite points.
func ValidatePolygon(p *model.Polygon) error {
	if p == nil || len(p.Rings) == 0 {
		return &model.ArgumentError{Field: "geometry", Reason: "polygon needs at least one ring"}
	}
	ext := p.Exterior()
	if len(ext) < 3 {
		return &model.ArgumentError{Field: "geometry", Reason: "exterior ring needs at least three points"}
	}
	for _, pt := range ext {
		for _, v := range pt {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return &model.ArgumentError{Field: "geometry", Reason: "ring contains a non-finite coordinate"}
			}
		}
	}
	return nil
}

// Contains reports whether the coordinate falls inside the polygon's exterior
// ring, by even-odd ray casting. The strict > span test makes points on the
// bottom/left boundary (and the min corner) inside and points on the
// top/right boundary outside.
func Contains(p *model.Polygon, c model.Coordinate) bool {
	ext := p.Exterior()
	if len(ext) < 3 {
		return false
	}
	x, y := c.Lon, c.Lat
	inside := false
	j := len(ext) - 1
	for i := 0; i < len(ext); i++ {
		xi, yi := ext[i][0], ext[i][1]
		xj, yj := ext[j][0], ext[j][1]
		if (yi > y) != (yj > y) {
			if x < (xj-xi)*(y-yi)/(yj-yi)+xi {
				inside = !inside
			}
		}
		j = i
	}
	return inside
}

// Centroid returns the vertex mean of the exterior ring. A proxy for the true
// area centroid; good enough for the nearest-territory fallback.
func Centroid(p *model.Polygon) (model.Coordinate, error) {
	if err := ValidatePolygon(p); err != nil {
		return model.Coordinate{}, err
	}
	ext := p.Exterior()
	lons := make([]float64, len(ext))
	lats := make([]float64, len(ext))
	for i, pt := range ext {
		lons[i] = pt[0]
		lats[i] = pt[1]
	}
	return model.Coordinate{
		Lat: stat.Mean(lats, nil),
		Lon: stat.Mean(lons, nil),
	}, nil
}

// Bounds is the axis-aligned bounding box of a polygon.
type Bounds struct {
	MinLat float64 `json:"min_lat"`
	MinLon float64 `json:"min_lon"`
	MaxLat float64 `json:"max_lat"`
	MaxLon float64 `json:"max_lon"`
}

// BoundingBox computes the bounds of the exterior ring.
func BoundingBox(p *model.Polygon) (Bounds, error) {
	if err := ValidatePolygon(p); err != nil {
		return Bounds{}, err
	}
	ext := p.Exterior()
	b := Bounds{
		MinLat: math.Inf(1), MinLon: math.Inf(1),
		MaxLat: math.Inf(-1), MaxLon: math.Inf(-1),
	}
	for _, pt := range ext {
		b.MinLon = math.Min(b.MinLon, pt[0])
		b.MaxLon = math.Max(b.MaxLon, pt[0])
		b.MinLat = math.Min(b.MinLat, pt[1])
		b.MaxLat = math.Max(b.MaxLat, pt[1])
	}
	return b, nil
}
