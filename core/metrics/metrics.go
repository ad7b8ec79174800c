package metrics

import (
	"time"

	"github.com/mfvargas/fieldops/core/model"
)

// TransitionEvent is one committed lifecycle transition to be recorded.
// DurationMinutes is set only when the transition closes a service.
type TransitionEvent struct {
	Entity          string
	From            string
	To              string
	Role            model.Role
	DurationMinutes int
	Time            time.Time
}

// MetricsSink records lifecycle transitions for observability purposes.
type MetricsSink interface {
	RecordTransition(ev TransitionEvent) error
}

// NearbyQueryEvent captures one proximity query.
type NearbyQueryEvent struct {
	Kind     string
	RadiusKm float64
	Results  int
	Elapsed  time.Duration
	Time     time.Time
}

// NearbyQueryRecorder records proximity queries.
type NearbyQueryRecorder interface {
	RecordNearbyQuery(ev NearbyQueryEvent) error
}

// FleetFreshnessRecorder records how many units reported a fresh location out
// of the active fleet.
type FleetFreshnessRecorder interface {
	RecordFleetFreshness(fresh, total int) error
}

// NopSink implements MetricsSink with no-op methods.
type NopSink struct{}

func (NopSink) RecordTransition(TransitionEvent) error   { return nil }
func (NopSink) RecordNearbyQuery(NearbyQueryEvent) error { return nil }
func (NopSink) RecordFleetFreshness(int, int) error      { return nil }
