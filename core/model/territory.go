package model

import (
	"time"

	"github.com/google/uuid"
)

// Territory is an administrative region. Reference data loaded out-of-band
// and read-only here; requests keep a nullable reference to the territory
// whose polygon contained their coordinate at creation time.
type Territory struct {
	ID           uuid.UUID   `json:"id"`
	Code         string      `json:"code"`
	Name         string      `json:"name"`
	Geometry     *Polygon    `json:"geometry,omitempty"`
	Centroid     *Coordinate `json:"centroid,omitempty"`
	AreaHectares float64     `json:"area_hectares,omitempty"`
	Active       bool        `json:"active"`
	CreatedAt    time.Time   `json:"created_at"`
}
