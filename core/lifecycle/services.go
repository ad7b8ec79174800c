package lifecycle

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/mfvargas/fieldops/core/events"
	"github.com/mfvargas/fieldops/core/model"
)

// ownedService loads the service and checks that the calling unit owns it.
func (e *Engine) ownedService(ctx context.Context, actor *model.Actor, serviceID uuid.UUID) (*model.Service, error) {
	if err := requireRole(actor, model.RoleUnit); err != nil {
		return nil, err
	}
	svc, err := e.store.GetService(ctx, serviceID)
	if err != nil {
		return nil, err
	}
	if svc.UnitID != actor.ID {
		return nil, model.ErrForbidden
	}
	return svc, nil
}

// StartRoute marks the unit as moving toward the request site.
func (e *Engine) StartRoute(ctx context.Context, actor *model.Actor, serviceID uuid.UUID) (*ServiceSnapshot, error) {
	svc, err := e.ownedService(ctx, actor, serviceID)
	if err != nil {
		return nil, err
	}
	svc, err = e.store.TransitionService(ctx, svc.ID, model.ServiceAccepted, model.ServiceEnRoute)
	if err != nil {
		return nil, err
	}
	e.observe(ctx, svc.ID, model.ObservationProgress, "unit en route")
	e.emit(ctx, events.ServiceEnRoute, actor, nil, svc, string(model.ServiceAccepted), "")
	return e.snapshotService(svc), nil
}

// Arrive marks the unit on site.
func (e *Engine) Arrive(ctx context.Context, actor *model.Actor, serviceID uuid.UUID) (*ServiceSnapshot, error) {
	svc, err := e.ownedService(ctx, actor, serviceID)
	if err != nil {
		return nil, err
	}
	svc, err = e.store.TransitionService(ctx, svc.ID, model.ServiceEnRoute, model.ServiceOnSite)
	if err != nil {
		return nil, err
	}
	e.observe(ctx, svc.ID, model.ObservationProgress, "unit on site")
	e.emit(ctx, events.ServiceOnSite, actor, nil, svc, string(model.ServiceEnRoute), "")
	return e.snapshotService(svc), nil
}

// BeginWork stamps the work-start time. The stamp is written once, on the
// store's conditional write; repeating the call fails with ErrAlreadyStarted
// and changes nothing.
func (e *Engine) BeginWork(ctx context.Context, actor *model.Actor, serviceID uuid.UUID) (*ServiceSnapshot, error) {
	svc, err := e.ownedService(ctx, actor, serviceID)
	if err != nil {
		return nil, err
	}
	svc, err = e.store.MarkWorkStarted(ctx, svc.ID, e.now())
	if err != nil {
		return nil, err
	}
	e.observe(ctx, svc.ID, model.ObservationProgress, "work started")
	e.emit(ctx, events.ServiceStarted, actor, nil, svc, string(model.ServiceOnSite), "")
	return e.snapshotService(svc), nil
}

// Finish closes the service, recording the duration in whole minutes and
// completing the owning request in the same store transaction.
func (e *Engine) Finish(ctx context.Context, actor *model.Actor, serviceID uuid.UUID, notes string) (*ServiceSnapshot, error) {
	svc, err := e.ownedService(ctx, actor, serviceID)
	if err != nil {
		return nil, err
	}
	if svc.FinishedAt != nil {
		return nil, model.ErrAlreadyFinished
	}
	if svc.StartedAt == nil {
		return nil, &model.StateError{Entity: "service", Current: string(svc.Status), Op: "finish before work started"}
	}
	if !svc.Status.Active() {
		return nil, &model.StateError{Entity: "service", Current: string(svc.Status), Op: "finish"}
	}
	from := string(svc.Status)
	now := e.now()
	svc.Status = model.ServiceCompleted
	svc.FinishedAt = &now
	svc.FinalNotes = strings.TrimSpace(notes)
	svc.DurationMinutes = int(now.Sub(*svc.StartedAt).Minutes())
	req, err := e.store.FinishService(ctx, svc)
	if err != nil {
		return nil, err
	}
	e.log.Infof("service %s finished by unit %s in %d min", svc.ID, actor.ID, svc.DurationMinutes)
	e.observe(ctx, svc.ID, model.ObservationCompletion, svc.FinalNotes)
	e.emit(ctx, events.ServiceCompleted, actor, nil, svc, from, svc.FinalNotes)
	e.emit(ctx, events.RequestCompleted, actor, req, nil, string(model.RequestAccepted), "")
	return e.snapshotService(svc), nil
}

// CancelService abandons the service. Work already performed keeps a partial
// duration; the owning request is cancelled with it.
func (e *Engine) CancelService(ctx context.Context, actor *model.Actor, serviceID uuid.UUID, notes string) (*ServiceSnapshot, error) {
	svc, err := e.ownedService(ctx, actor, serviceID)
	if err != nil {
		return nil, err
	}
	if !svc.Status.Active() {
		return nil, &model.StateError{Entity: "service", Current: string(svc.Status), Op: "cancel"}
	}
	from := string(svc.Status)
	now := e.now()
	svc.Status = model.ServiceCancelled
	svc.FinalNotes = strings.TrimSpace(notes)
	if svc.StartedAt != nil {
		svc.FinishedAt = &now
		svc.DurationMinutes = int(now.Sub(*svc.StartedAt).Minutes())
	}
	req, err := e.store.CancelService(ctx, svc, true, now)
	if err != nil {
		return nil, err
	}
	e.log.Infof("service %s cancelled by unit %s", svc.ID, actor.ID)
	e.observe(ctx, svc.ID, model.ObservationRejection, svc.FinalNotes)
	e.emit(ctx, events.ServiceCancelled, actor, nil, svc, from, svc.FinalNotes)
	e.emit(ctx, events.RequestCancelled, actor, req, nil, string(model.RequestAccepted), svc.FinalNotes)
	return e.snapshotService(svc), nil
}

// GetService returns the service snapshot.
func (e *Engine) GetService(ctx context.Context, serviceID uuid.UUID) (*ServiceSnapshot, error) {
	svc, err := e.store.GetService(ctx, serviceID)
	if err != nil {
		return nil, err
	}
	return e.snapshotService(svc), nil
}

// ActiveService returns the calling unit's current service, or ErrNotFound
// when the unit is free.
func (e *Engine) ActiveService(ctx context.Context, actor *model.Actor) (*ServiceSnapshot, error) {
	if err := requireRole(actor, model.RoleUnit); err != nil {
		return nil, err
	}
	svc, err := e.store.ActiveServiceForUnit(ctx, actor.ID)
	if err != nil {
		return nil, err
	}
	return e.snapshotService(svc), nil
}

// Observations returns the note trail for a service.
func (e *Engine) Observations(ctx context.Context, serviceID uuid.UUID) ([]*model.Observation, error) {
	return e.store.ObservationsForService(ctx, serviceID)
}
