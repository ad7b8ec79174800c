// Package lifecycle implements the request and service state machines. All
// status writes in the system go through the Engine; stores only apply the
// conditional transitions it asks for.
package lifecycle

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/mfvargas/fieldops/core/audit"
	"github.com/mfvargas/fieldops/core/events"
	"github.com/mfvargas/fieldops/core/logger"
	"github.com/mfvargas/fieldops/core/metrics"
	"github.com/mfvargas/fieldops/core/model"
	"github.com/mfvargas/fieldops/core/store"
	"github.com/mfvargas/fieldops/internal/eventbus"
)

// TerritoryLocator resolves the territory containing a coordinate. A nil
// territory with a nil error means no territory matched.
type TerritoryLocator interface {
	FindByPoint(ctx context.Context, c model.Coordinate) (*model.Territory, error)
}

// Config carries the engine's tunables.
type Config struct {
	// RequestTTL is how long a request may sit pending before it expires.
	RequestTTL time.Duration
	// ServiceSoftLimit is the advisory work-duration limit. Exceeding it is
	// reported on snapshots; nothing is auto-cancelled.
	ServiceSoftLimit time.Duration
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		RequestTTL:       2 * time.Hour,
		ServiceSoftLimit: 60 * time.Minute,
	}
}

// Engine drives every lifecycle transition. It validates input and
// authorization, delegates the conditional writes to the store, and emits
// audit records, metrics and bus events for each committed transition.
type Engine struct {
	store   store.Store
	cfg     Config
	log     logger.Logger
	locator TerritoryLocator
	audit   audit.Store
	sink    metrics.MetricsSink
	bus     *eventbus.Bus[events.Event]
	now     func() time.Time
}

// New creates an Engine over the given store.
func New(st store.Store, cfg Config, log logger.Logger) *Engine {
	if cfg.RequestTTL <= 0 {
		cfg.RequestTTL = DefaultConfig().RequestTTL
	}
	if cfg.ServiceSoftLimit <= 0 {
		cfg.ServiceSoftLimit = DefaultConfig().ServiceSoftLimit
	}
	return &Engine{
		store: st,
		cfg:   cfg,
		log:   log,
		audit: audit.NopStore{},
		sink:  metrics.NopSink{},
		now:   time.Now,
	}
}

// SetTerritoryLocator enables best-effort territory tagging on create.
func (e *Engine) SetTerritoryLocator(l TerritoryLocator) { e.locator = l }

// SetAuditStore routes committed transitions to the audit trail.
func (e *Engine) SetAuditStore(s audit.Store) {
	if s != nil {
		e.audit = s
	}
}

// SetMetricsSink routes committed transitions to the metrics sink.
func (e *Engine) SetMetricsSink(s metrics.MetricsSink) {
	if s != nil {
		e.sink = s
	}
}

// SetEventBus publishes committed transitions on the bus.
func (e *Engine) SetEventBus(b *eventbus.Bus[events.Event]) { e.bus = b }

// SetClock overrides the time source.
func (e *Engine) SetClock(now func() time.Time) {
	if now != nil {
		e.now = now
	}
}

// Config returns the engine's tunables.
func (e *Engine) Config() Config { return e.cfg }

// emit records one committed transition in the audit trail, the metrics sink
// and the event bus. Failures here are logged, never propagated: the
// transition is already committed and must not appear to roll back.
func (e *Engine) emit(ctx context.Context, typ events.Type, actor *model.Actor, req *model.Request, svc *model.Service, from, notes string) {
	at := e.now()
	entity, entityID, to := "request", uuid.Nil, ""
	if req != nil {
		entityID = req.ID
		to = string(req.Status)
	}
	if svc != nil {
		entity = "service"
		entityID = svc.ID
		to = string(svc.Status)
	}
	rec := audit.Record{
		Timestamp: at,
		ActorID:   actor.ID,
		ActorRole: actor.Role,
		Entity:    entity,
		EntityID:  entityID,
		From:      from,
		To:        to,
		Notes:     notes,
	}
	if err := e.audit.Append(ctx, rec); err != nil {
		e.log.Errorf("audit append failed for %s %s: %v", entity, entityID, err)
	}
	tev := metrics.TransitionEvent{Entity: entity, From: from, To: to, Role: actor.Role, Time: at}
	if svc != nil {
		tev.DurationMinutes = svc.DurationMinutes
	}
	if err := e.sink.RecordTransition(tev); err != nil {
		e.log.Errorf("metrics record failed for %s %s: %v", entity, entityID, err)
	}
	if e.bus != nil {
		e.bus.Publish(events.Event{
			Type:    typ,
			At:      at,
			ActorID: actor.ID,
			Role:    actor.Role,
			From:    from,
			Request: req,
			Service: svc,
		})
	}
}

// observe appends an observation to the service trail. Best effort.
func (e *Engine) observe(ctx context.Context, serviceID uuid.UUID, kind model.ObservationKind, content string) {
	if content == "" {
		return
	}
	obs := &model.Observation{
		ID:        uuid.New(),
		ServiceID: serviceID,
		Content:   content,
		Kind:      kind,
		CreatedAt: e.now(),
	}
	if err := e.store.AddObservation(ctx, obs); err != nil {
		e.log.Errorf("observation append failed for service %s: %v", serviceID, err)
	}
}

func requireRole(actor *model.Actor, roles ...model.Role) error {
	if actor == nil {
		return model.ErrForbidden
	}
	for _, r := range roles {
		if actor.Role == r {
			return nil
		}
	}
	return model.ErrForbidden
}
