package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	coremetrics "github.com/mfvargas/fieldops/core/metrics"
)

// PromSink records lifecycle and proximity events in Prometheus metrics.
type PromSink struct {
	transitions *prometheus.CounterVec
	durations   prometheus.Histogram
	queries     *prometheus.HistogramVec
	fresh       prometheus.Gauge
	fleet       prometheus.Gauge
}

// NewPromSink registers the metrics on the default Prometheus registerer. The
// Prometheus server is started separately via StartPromServer.
func NewPromSink() (*PromSink, error) {
	return NewPromSinkWithRegistry(prometheus.DefaultRegisterer)
}

// NewPromSinkWithRegistry registers metrics on the provided registerer. A nil
// registerer defaults to the global one.
func NewPromSinkWithRegistry(reg prometheus.Registerer) (*PromSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	transitions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "fieldops_transitions_total",
		Help: "Total number of committed lifecycle transitions",
	}, []string{"entity", "to", "role"})
	durations := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "fieldops_service_duration_minutes",
		Help:    "Work duration of finished services in minutes",
		Buckets: []float64{5, 10, 15, 30, 45, 60, 90, 120, 240},
	})
	queries := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "fieldops_nearby_query_seconds",
		Help:    "Latency of proximity queries",
		Buckets: prometheus.DefBuckets,
	}, []string{"kind"})
	fresh := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "fieldops_fleet_fresh_units",
		Help: "Active units with a location inside the freshness window",
	})
	fleet := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "fieldops_fleet_units_total",
		Help: "Active units known to the dispatcher",
	})

	if err := reg.Register(transitions); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			transitions = are.ExistingCollector.(*prometheus.CounterVec)
		} else {
			return nil, err
		}
	}
	if err := reg.Register(durations); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			durations = are.ExistingCollector.(prometheus.Histogram)
		} else {
			return nil, err
		}
	}
	if err := reg.Register(queries); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			queries = are.ExistingCollector.(*prometheus.HistogramVec)
		} else {
			return nil, err
		}
	}
	if err := reg.Register(fresh); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			fresh = are.ExistingCollector.(prometheus.Gauge)
		} else {
			return nil, err
		}
	}
	if err := reg.Register(fleet); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			fleet = are.ExistingCollector.(prometheus.Gauge)
		} else {
			return nil, err
		}
	}

	return &PromSink{transitions: transitions, durations: durations, queries: queries, fresh: fresh, fleet: fleet}, nil
}

// RecordTransition increments the transition counter and, for finished
// services, observes the duration histogram.
func (s *PromSink) RecordTransition(ev coremetrics.TransitionEvent) error {
	s.transitions.WithLabelValues(ev.Entity, ev.To, string(ev.Role)).Inc()
	if ev.Entity == "service" && ev.To == "completed" {
		s.durations.Observe(float64(ev.DurationMinutes))
	}
	return nil
}

// RecordNearbyQuery observes the query latency histogram.
func (s *PromSink) RecordNearbyQuery(ev coremetrics.NearbyQueryEvent) error {
	s.queries.WithLabelValues(ev.Kind).Observe(ev.Elapsed.Seconds())
	return nil
}

// RecordFleetFreshness sets the freshness gauges.
func (s *PromSink) RecordFleetFreshness(fresh, total int) error {
	s.fresh.Set(float64(fresh))
	s.fleet.Set(float64(total))
	return nil
}
