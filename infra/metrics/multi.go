package metrics

import coremetrics "github.com/mfvargas/fieldops/core/metrics"

// MultiSink fans events out to multiple sinks.
type MultiSink struct {
	Sinks []coremetrics.MetricsSink
}

// NewMultiSink creates a MultiSink with the provided sinks.
func NewMultiSink(sinks ...coremetrics.MetricsSink) *MultiSink {
	return &MultiSink{Sinks: sinks}
}

// RecordTransition forwards the event to all sinks, returning the first error
// encountered.
func (m *MultiSink) RecordTransition(ev coremetrics.TransitionEvent) error {
	for _, s := range m.Sinks {
		if err := s.RecordTransition(ev); err != nil {
			return err
		}
	}
	return nil
}

// RecordNearbyQuery forwards query events to sinks that support them.
func (m *MultiSink) RecordNearbyQuery(ev coremetrics.NearbyQueryEvent) error {
	for _, s := range m.Sinks {
		if rec, ok := s.(coremetrics.NearbyQueryRecorder); ok {
			if err := rec.RecordNearbyQuery(ev); err != nil {
				return err
			}
		}
	}
	return nil
}

// RecordFleetFreshness forwards freshness snapshots to sinks that support
// them.
func (m *MultiSink) RecordFleetFreshness(fresh, total int) error {
	for _, s := range m.Sinks {
		if rec, ok := s.(coremetrics.FleetFreshnessRecorder); ok {
			if err := rec.RecordFleetFreshness(fresh, total); err != nil {
				return err
			}
		}
	}
	return nil
}
