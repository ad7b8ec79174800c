package lifecycle

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"

	"github.com/mfvargas/fieldops/core/events"
	"github.com/mfvargas/fieldops/core/model"
)

// CreateRequestInput carries the technician's call for support.
type CreateRequestInput struct {
	Kind    string
	Coord   model.Coordinate
	Address string
	Notes   string
}

// CreateRequest opens a pending request for the technician. At most one
// pending request may exist per technician; territory tagging is best effort
// and never fails the create.
func (e *Engine) CreateRequest(ctx context.Context, actor *model.Actor, in CreateRequestInput) (*RequestSnapshot, error) {
	if err := requireRole(actor, model.RoleTechnician); err != nil {
		return nil, err
	}
	kind, err := model.ParseSupportKind(in.Kind)
	if err != nil {
		return nil, err
	}
	if err := in.Coord.Validate(); err != nil {
		return nil, err
	}

	now := e.now()
	req := &model.Request{
		ID:           uuid.New(),
		TechnicianID: actor.ID,
		Kind:         kind,
		Coord:        in.Coord,
		Address:      strings.TrimSpace(in.Address),
		Notes:        strings.TrimSpace(in.Notes),
		Status:       model.RequestPending,
		CreatedAt:    now,
		ExpiresAt:    now.Add(e.cfg.RequestTTL),
		UpdatedAt:    now,
	}
	if e.locator != nil {
		if terr, lerr := e.locator.FindByPoint(ctx, in.Coord); lerr != nil {
			e.log.Warnf("territory lookup failed for request %s: %v", req.ID, lerr)
		} else if terr != nil {
			id := terr.ID
			req.TerritoryID = &id
		}
	}
	if err := e.store.CreateRequest(ctx, req); err != nil {
		return nil, err
	}
	e.log.Infof("request %s created by technician %s (%s)", req.ID, actor.ID, kind)
	e.emit(ctx, events.RequestCreated, actor, req, nil, "", req.Notes)
	return e.snapshotRequest(req), nil
}

// GetRequest returns the request, evaluating expiry lazily: a pending request
// read past its deadline is marked expired first.
func (e *Engine) GetRequest(ctx context.Context, id uuid.UUID) (*RequestSnapshot, error) {
	req, err := e.store.GetRequest(ctx, id)
	if err != nil {
		return nil, err
	}
	if req.Expired(e.now()) {
		if req, err = e.expire(ctx, req); err != nil {
			return nil, err
		}
	}
	return e.snapshotRequest(req), nil
}

// PendingRequest returns the technician's open request, lazily expiring it
// when overdue.
func (e *Engine) PendingRequest(ctx context.Context, actor *model.Actor) (*RequestSnapshot, error) {
	if err := requireRole(actor, model.RoleTechnician); err != nil {
		return nil, err
	}
	req, err := e.store.PendingRequestForTechnician(ctx, actor.ID)
	if err != nil {
		return nil, err
	}
	if req.Expired(e.now()) {
		if _, err = e.expire(ctx, req); err != nil {
			return nil, err
		}
		return nil, model.ErrNotFound
	}
	return e.snapshotRequest(req), nil
}

// AcceptRequest assigns the request to the calling unit, creating its
// service. The store applies the still-pending check, the status flip and the
// service insert as one serializable unit; exactly one concurrent caller can
// win.
func (e *Engine) AcceptRequest(ctx context.Context, actor *model.Actor, requestID uuid.UUID) (*RequestSnapshot, *ServiceSnapshot, error) {
	if err := requireRole(actor, model.RoleUnit); err != nil {
		return nil, nil, err
	}
	req, err := e.store.GetRequest(ctx, requestID)
	if err != nil {
		return nil, nil, err
	}
	now := e.now()
	if req.Expired(now) {
		if _, err := e.expire(ctx, req); err != nil {
			return nil, nil, err
		}
		return nil, nil, model.ErrExpired
	}
	req, svc, err := e.store.AcceptRequest(ctx, requestID, actor.ID, now)
	if err != nil {
		return nil, nil, err
	}
	e.log.Infof("request %s accepted by unit %s, service %s", requestID, actor.ID, svc.ID)
	e.emit(ctx, events.RequestAccepted, actor, req, nil, string(model.RequestPending), "")
	return e.snapshotRequest(req), e.snapshotService(svc), nil
}

// RejectRequest declines a pending request. Notes are mandatory so the
// technician learns why.
func (e *Engine) RejectRequest(ctx context.Context, actor *model.Actor, requestID uuid.UUID, notes string) (*RequestSnapshot, error) {
	if err := requireRole(actor, model.RoleUnit); err != nil {
		return nil, err
	}
	notes = strings.TrimSpace(notes)
	if notes == "" {
		return nil, &model.ArgumentError{Field: "notes", Reason: "rejection requires a reason"}
	}
	req, err := e.store.GetRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}
	now := e.now()
	if req.Expired(now) {
		if _, err := e.expire(ctx, req); err != nil {
			return nil, err
		}
		return nil, model.ErrExpired
	}
	req, err = e.store.TransitionRequest(ctx, requestID, model.RequestPending, model.RequestRejected, notes, now)
	if err != nil {
		return nil, err
	}
	e.log.Infof("request %s rejected by unit %s", requestID, actor.ID)
	e.emit(ctx, events.RequestRejected, actor, req, nil, string(model.RequestPending), notes)
	return e.snapshotRequest(req), nil
}

// CancelRequest cancels a non-terminal request. Only the owning technician or
// a leader may cancel; an active service for the request is cancelled with it,
// keeping a partial duration when work had started.
func (e *Engine) CancelRequest(ctx context.Context, actor *model.Actor, requestID uuid.UUID, notes string) (*RequestSnapshot, error) {
	if err := requireRole(actor, model.RoleTechnician, model.RoleLeader); err != nil {
		return nil, err
	}
	req, err := e.store.GetRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if actor.Role == model.RoleTechnician && req.TechnicianID != actor.ID {
		return nil, model.ErrForbidden
	}
	from := string(req.Status)
	svcFrom := ""
	if prior, serr := e.store.ServiceByRequest(ctx, requestID); serr == nil {
		svcFrom = string(prior.Status)
	}
	notes = strings.TrimSpace(notes)
	req, svc, err := e.store.CancelRequest(ctx, requestID, notes, e.now())
	if err != nil {
		return nil, err
	}
	e.log.Infof("request %s cancelled by %s %s", requestID, actor.Role, actor.ID)
	e.emit(ctx, events.RequestCancelled, actor, req, nil, from, notes)
	if svc != nil {
		e.observe(ctx, svc.ID, model.ObservationRejection, notes)
		e.emit(ctx, events.ServiceCancelled, actor, req, svc, svcFrom, notes)
	}
	return e.snapshotRequest(req), nil
}

// MarkExpiredIfDue expires an overdue pending request. Marking an already
// expired request again is a no-op success; a request in any other terminal
// state is left alone.
func (e *Engine) MarkExpiredIfDue(ctx context.Context, requestID uuid.UUID) (bool, error) {
	req, err := e.store.GetRequest(ctx, requestID)
	if err != nil {
		return false, err
	}
	if req.Status == model.RequestExpired {
		return false, nil
	}
	if !req.Expired(e.now()) {
		return false, nil
	}
	if _, err := e.expire(ctx, req); err != nil {
		return false, err
	}
	return true, nil
}

// expire flips an overdue pending request to expired. Losing the race to
// another expirer counts as success.
func (e *Engine) expire(ctx context.Context, req *model.Request) (*model.Request, error) {
	updated, err := e.store.TransitionRequest(ctx, req.ID, model.RequestPending, model.RequestExpired, "", e.now())
	if err != nil {
		if errors.Is(err, model.ErrInvalidState) {
			current, gerr := e.store.GetRequest(ctx, req.ID)
			if gerr != nil {
				return nil, gerr
			}
			if current.Status == model.RequestExpired {
				return current, nil
			}
			return nil, err
		}
		return nil, err
	}
	e.log.Infof("request %s expired", req.ID)
	e.emit(ctx, events.RequestExpired, systemActor, updated, nil, string(model.RequestPending), "")
	return updated, nil
}

// systemActor stamps transitions the engine applies on its own, such as lazy
// expiry.
var systemActor = &model.Actor{ID: uuid.Nil, Role: "system"}
