// Package proximity ranks pending requests and available units by
// great-circle distance. Straight-line only: no routing, no traffic.
package proximity

import (
	"context"
	"errors"
	"math"
	"sort"
	"time"

	"github.com/mfvargas/fieldops/core/logger"
	"github.com/mfvargas/fieldops/core/metrics"
	"github.com/mfvargas/fieldops/core/model"
	"github.com/mfvargas/fieldops/core/store"
)

// Priority tiers a result by distance from the origin.
type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

const (
	highTierKm   = 5.0
	mediumTierKm = 10.0
	// minETAMinutes floors the estimate; nobody arrives in under five
	// minutes once dispatch overhead counts.
	minETAMinutes = 5
)

func tier(distanceKm float64) Priority {
	switch {
	case distanceKm <= highTierKm:
		return PriorityHigh
	case distanceKm <= mediumTierKm:
		return PriorityMedium
	}
	return PriorityLow
}

// Config carries the matcher's tunables.
type Config struct {
	// FreshnessWindow bounds how old a location fix may be before the unit
	// drops out of the results.
	FreshnessWindow time.Duration
	// MinutesPerKm converts straight-line distance into the ETA estimate.
	MinutesPerKm float64
	// DefaultRadiusKm applies when the caller passes a non-positive radius.
	DefaultRadiusKm float64
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		FreshnessWindow: 15 * time.Minute,
		MinutesPerKm:    2.5,
		DefaultRadiusKm: 10,
	}
}

// Matcher answers "what is near this point" over the live store state.
type Matcher struct {
	store store.Store
	cfg   Config
	log   logger.Logger
	sink  metrics.MetricsSink
	now   func() time.Time
}

// NewMatcher creates a Matcher over the given store.
func NewMatcher(st store.Store, cfg Config, log logger.Logger) *Matcher {
	def := DefaultConfig()
	if cfg.FreshnessWindow <= 0 {
		cfg.FreshnessWindow = def.FreshnessWindow
	}
	if cfg.MinutesPerKm <= 0 {
		cfg.MinutesPerKm = def.MinutesPerKm
	}
	if cfg.DefaultRadiusKm <= 0 {
		cfg.DefaultRadiusKm = def.DefaultRadiusKm
	}
	return &Matcher{store: st, cfg: cfg, log: log, sink: metrics.NopSink{}, now: time.Now}
}

// SetMetricsSink routes query metrics to the sink.
func (m *Matcher) SetMetricsSink(s metrics.MetricsSink) {
	if s != nil {
		m.sink = s
	}
}

// SetClock overrides the time source.
func (m *Matcher) SetClock(now func() time.Time) {
	if now != nil {
		m.now = now
	}
}

func (m *Matcher) etaMinutes(distanceKm float64) int {
	eta := int(math.Ceil(distanceKm * m.cfg.MinutesPerKm))
	if eta < minETAMinutes {
		eta = minETAMinutes
	}
	return eta
}

// RankedRequest is a pending request scored against the query origin.
type RankedRequest struct {
	Request    *model.Request `json:"request"`
	DistanceKm float64        `json:"distance_km"`
	Priority   Priority       `json:"priority"`
	ETAMinutes int            `json:"eta_minutes"`
}

// NearbyRequests returns pending, non-expired requests within radiusKm of the
// origin, optionally filtered by support kind, sorted by distance. Store
// failures surface unchanged.
func (m *Matcher) NearbyRequests(ctx context.Context, origin model.Coordinate, radiusKm float64, kind model.SupportKind) ([]RankedRequest, error) {
	if err := origin.Validate(); err != nil {
		return nil, err
	}
	if radiusKm <= 0 {
		radiusKm = m.cfg.DefaultRadiusKm
	}
	started := m.now()
	pending, err := m.store.ListRequestsByStatus(ctx, model.RequestPending)
	if err != nil {
		return nil, err
	}
	out := make([]RankedRequest, 0, len(pending))
	for _, req := range pending {
		if req.Expired(started) {
			continue
		}
		if kind != "" && req.Kind != kind {
			continue
		}
		d := DistanceKm(origin, req.Coord)
		if d > radiusKm {
			continue
		}
		out = append(out, RankedRequest{
			Request:    req,
			DistanceKm: d,
			Priority:   tier(d),
			ETAMinutes: m.etaMinutes(d),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DistanceKm < out[j].DistanceKm })
	m.recordQuery("requests", radiusKm, len(out), started)
	return out, nil
}

// RankedUnit is an active unit scored against the query origin.
type RankedUnit struct {
	Unit       *model.Actor    `json:"unit"`
	Location   *model.Location `json:"location"`
	DistanceKm float64         `json:"distance_km"`
	Available  bool            `json:"available"`
	Priority   Priority        `json:"priority"`
	ETAMinutes int             `json:"eta_minutes"`
}

// NearbyUnits returns active units with a fresh location within radiusKm of
// the origin. Availability means no active service; onlyAvailable drops busy
// units from the result instead of ranking them last. Sorted by availability,
// then priority tier, then distance.
func (m *Matcher) NearbyUnits(ctx context.Context, origin model.Coordinate, radiusKm float64, onlyAvailable bool) ([]RankedUnit, error) {
	if err := origin.Validate(); err != nil {
		return nil, err
	}
	if radiusKm <= 0 {
		radiusKm = m.cfg.DefaultRadiusKm
	}
	started := m.now()
	units, err := m.store.ActiveUnits(ctx)
	if err != nil {
		return nil, err
	}
	locations, err := m.store.LatestLocations(ctx)
	if err != nil {
		return nil, err
	}

	fresh := 0
	out := make([]RankedUnit, 0, len(units))
	for _, u := range units {
		loc, ok := locations[u.ID]
		if !ok || !loc.Fresh(started, m.cfg.FreshnessWindow) {
			continue
		}
		fresh++
		d := DistanceKm(origin, loc.Coord)
		if d > radiusKm {
			continue
		}
		available := false
		if _, err := m.store.ActiveServiceForUnit(ctx, u.ID); err != nil {
			if !errors.Is(err, model.ErrNotFound) {
				return nil, err
			}
			available = true
		}
		if onlyAvailable && !available {
			continue
		}
		out = append(out, RankedUnit{
			Unit:       u,
			Location:   loc,
			DistanceKm: d,
			Available:  available,
			Priority:   tier(d),
			ETAMinutes: m.etaMinutes(d),
		})
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Available != b.Available {
			return a.Available
		}
		if pa, pb := tierRank(a.Priority), tierRank(b.Priority); pa != pb {
			return pa < pb
		}
		return a.DistanceKm < b.DistanceKm
	})
	if rec, ok := m.sink.(metrics.FleetFreshnessRecorder); ok {
		if err := rec.RecordFleetFreshness(fresh, len(units)); err != nil {
			m.log.Errorf("fleet freshness record failed: %v", err)
		}
	}
	m.recordQuery("units", radiusKm, len(out), started)
	return out, nil
}

func tierRank(p Priority) int {
	switch p {
	case PriorityHigh:
		return 0
	case PriorityMedium:
		return 1
	}
	return 2
}

func (m *Matcher) recordQuery(kind string, radiusKm float64, results int, started time.Time) {
	rec, ok := m.sink.(metrics.NearbyQueryRecorder)
	if !ok {
		return
	}
	ev := metrics.NearbyQueryEvent{
		Kind:     kind,
		RadiusKm: radiusKm,
		Results:  results,
		Elapsed:  m.now().Sub(started),
		Time:     started,
	}
	if err := rec.RecordNearbyQuery(ev); err != nil {
		m.log.Errorf("nearby query record failed: %v", err)
	}
}
