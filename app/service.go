package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/mfvargas/fieldops/api"
	"github.com/mfvargas/fieldops/config"
	coreaudit "github.com/mfvargas/fieldops/core/audit"
	"github.com/mfvargas/fieldops/core/events"
	"github.com/mfvargas/fieldops/core/lifecycle"
	coremetrics "github.com/mfvargas/fieldops/core/metrics"
	"github.com/mfvargas/fieldops/core/proximity"
	"github.com/mfvargas/fieldops/core/store"
	"github.com/mfvargas/fieldops/core/territory"
	"github.com/mfvargas/fieldops/infra/audit"
	"github.com/mfvargas/fieldops/infra/logger"
	"github.com/mfvargas/fieldops/infra/metrics"
	"github.com/mfvargas/fieldops/infra/mqtt"
	"github.com/mfvargas/fieldops/infra/postgres"
	"github.com/mfvargas/fieldops/internal/eventbus"
)

// Service owns the wired dispatch stack: store, engine, matcher, resolver,
// HTTP surface and the MQTT and metrics side channels.
type Service struct {
	Engine   *lifecycle.Engine
	Matcher  *proximity.Matcher
	Resolver *territory.Resolver
	Store    store.Store

	cfg      *config.Config
	log      logger.Logger
	bus      *eventbus.Bus[events.Event]
	sink     coremetrics.MetricsSink
	audit    coreaudit.Store
	handler  *api.Handler
	pg       *postgres.Store
	ingestor *mqtt.Ingestor
	notifier mqtt.Publisher
}

// New creates a Service from the configuration. The database URL selects the
// backing store; an empty URL runs everything in memory.
func New(ctx context.Context, cfg *config.Config) (*Service, error) {
	log := logger.New("service")

	svc := &Service{cfg: cfg, log: log}

	if cfg.Database.URL != "" {
		pg, err := postgres.New(ctx, cfg.Database.URL)
		if err != nil {
			return nil, fmt.Errorf("postgres: %w", err)
		}
		svc.pg = pg
		svc.Store = pg
	} else {
		svc.Store = store.NewMemory()
	}

	auditStore, err := audit.New(cfg.Audit.Options())
	if err != nil {
		return nil, fmt.Errorf("audit store: %w", err)
	}
	svc.audit = auditStore

	promSink, err := metrics.NewPromSink()
	if err != nil {
		return nil, fmt.Errorf("prom sink: %w", err)
	}
	var sink coremetrics.MetricsSink = promSink
	if cfg.Metrics.Influx.URL != "" {
		influx := metrics.NewInfluxSinkWithFallback(
			cfg.Metrics.Influx.URL,
			cfg.Metrics.Influx.Token,
			cfg.Metrics.Influx.Org,
			cfg.Metrics.Influx.Bucket,
		)
		sink = metrics.NewMultiSink(promSink, influx)
	}
	svc.sink = sink

	svc.bus = eventbus.New[events.Event]()

	engine := lifecycle.New(svc.Store, lifecycle.Config{
		RequestTTL:       cfg.Dispatch.RequestTTL(),
		ServiceSoftLimit: cfg.Dispatch.ServiceSoftLimit(),
	}, log)
	engine.SetAuditStore(auditStore)
	engine.SetEventBus(svc.bus)
	svc.Engine = engine

	matcher := proximity.NewMatcher(svc.Store, proximity.Config{
		FreshnessWindow: cfg.Dispatch.FreshnessWindow(),
		MinutesPerKm:    cfg.Dispatch.MinutesPerKm,
		DefaultRadiusKm: cfg.Dispatch.DefaultRadiusKm,
	}, log)
	matcher.SetMetricsSink(sink)
	svc.Matcher = matcher

	resolver := territory.NewResolver(svc.Store, log)
	engine.SetTerritoryLocator(resolver)
	svc.Resolver = resolver

	svc.handler = api.New(engine, matcher, resolver, svc.Store, log)

	if cfg.MQTT.Broker != "" {
		ingestor, err := mqtt.NewIngestor(cfg.MQTT, svc.Store)
		if err != nil {
			return nil, fmt.Errorf("mqtt ingestor: %w", err)
		}
		svc.ingestor = ingestor
		pub, err := mqtt.NewPahoPublisher(cfg.MQTT)
		if err != nil {
			return nil, fmt.Errorf("mqtt publisher: %w", err)
		}
		svc.notifier = pub
	}

	return svc, nil
}

// Run starts the HTTP surface and the background consumers and blocks until
// the context is cancelled.
func (s *Service) Run(ctx context.Context) error {
	// Transitions reach the sink through the bus so one committed write
	// produces exactly one metric point.
	metrics.StartEventCollector(ctx, s.bus, s.sink)
	if s.notifier != nil {
		mqtt.StartNotifier(ctx, s.bus, s.notifier, s.log)
	}
	if s.cfg.Metrics.PromAddr != "" {
		go func() {
			if err := metrics.StartPromServer(ctx, s.cfg.Metrics.PromAddr); err != nil {
				s.log.Errorf("prom server: %v", err)
			}
		}()
	}

	srv := &http.Server{
		Addr:              s.cfg.HTTP.Addr,
		Handler:           s.handler.Mux(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		s.log.Infof("http listening on %s", s.cfg.HTTP.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// Close releases resources held by the service.
func (s *Service) Close() error {
	if s.ingestor != nil {
		s.ingestor.Close()
	}
	if s.notifier != nil {
		s.notifier.Close()
	}
	s.bus.Close()
	if err := s.audit.Close(); err != nil {
		s.log.Errorf("audit close: %v", err)
	}
	if s.pg != nil {
		s.pg.Close()
	}
	return nil
}
