// Package territory attributes coordinates to administrative regions.
// Geometry is reference data loaded out-of-band; the resolver only reads it.
package territory

import (
	"context"
	"math"

	"github.com/mfvargas/fieldops/core/logger"
	"github.com/mfvargas/fieldops/core/model"
	"github.com/mfvargas/fieldops/core/store"
)

// kmPerDegree approximates how many kilometers one degree of latitude spans.
// Used only by the Nearest fallback, where a degree-space proxy is
// acceptable.
const kmPerDegree = 111.0

// Resolver answers point-in-territory queries over the territory store.
type Resolver struct {
	store store.TerritoryStore
	log   logger.Logger
}

// NewResolver creates a Resolver over the given store.
func NewResolver(st store.TerritoryStore, log logger.Logger) *Resolver {
	return &Resolver{store: st, log: log}
}

// FindByPoint returns the first active territory whose polygon contains the
// coordinate, or (nil, nil) when none does. Territories without geometry are
// skipped.
func (r *Resolver) FindByPoint(ctx context.Context, c model.Coordinate) (*model.Territory, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	terrs, err := r.store.ActiveTerritories(ctx)
	if err != nil {
		return nil, err
	}
	for _, t := range terrs {
		if t.Geometry == nil {
			continue
		}
		if Contains(t.Geometry, c) {
			return t, nil
		}
	}
	return nil, nil
}

// Nearest returns the active territory whose centroid lies closest to the
// coordinate in degree space, limited to radiusKm (converted with the
// kilometers-per-degree proxy). (nil, nil) when nothing is in range.
func (r *Resolver) Nearest(ctx context.Context, c model.Coordinate, radiusKm float64) (*model.Territory, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	if radiusKm <= 0 {
		return nil, &model.ArgumentError{Field: "radius_km", Reason: "must be positive"}
	}
	terrs, err := r.store.ActiveTerritories(ctx)
	if err != nil {
		return nil, err
	}
	maxDeg := radiusKm / kmPerDegree
	var best *model.Territory
	bestDeg := math.Inf(1)
	for _, t := range terrs {
		centroid := t.Centroid
		if centroid == nil {
			if t.Geometry == nil {
				continue
			}
			ct, cerr := Centroid(t.Geometry)
			if cerr != nil {
				r.log.Warnf("territory %s has unusable geometry: %v", t.Code, cerr)
				continue
			}
			centroid = &ct
		}
		d := math.Hypot(centroid.Lat-c.Lat, centroid.Lon-c.Lon)
		if d <= maxDeg && d < bestDeg {
			best = t
			bestDeg = d
		}
	}
	return best, nil
}

// Locate resolves by containment first and falls back to the nearest
// centroid within radiusKm.
func (r *Resolver) Locate(ctx context.Context, c model.Coordinate, radiusKm float64) (*model.Territory, error) {
	t, err := r.FindByPoint(ctx, c)
	if err != nil || t != nil {
		return t, err
	}
	return r.Nearest(ctx, c, radiusKm)
}
