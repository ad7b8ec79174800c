package store

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/mfvargas/fieldops/core/model"
)

// RequestStore persists support requests. Transition methods are conditional
// on the expected prior status so concurrent writers cannot clobber each
// other: the update applies only if the row still holds `from`, otherwise
// model.ErrInvalidState (via StateError) is returned and the row is left
// untouched.
type RequestStore interface {
	// CreateRequest inserts a new pending request. Implementations must
	// enforce the one-pending-request-per-technician rule atomically with the
	// insert and return model.ErrConflict when it is violated.
	CreateRequest(ctx context.Context, req *model.Request) error
	GetRequest(ctx context.Context, id uuid.UUID) (*model.Request, error)
	// PendingRequestForTechnician returns the technician's open request, or
	// model.ErrNotFound when there is none.
	PendingRequestForTechnician(ctx context.Context, technicianID uuid.UUID) (*model.Request, error)
	ListRequestsByStatus(ctx context.Context, status model.RequestStatus) ([]*model.Request, error)
	// TransitionRequest conditionally moves a request from `from` to `to`,
	// stamping notes (when non-empty) and the update time.
	TransitionRequest(ctx context.Context, id uuid.UUID, from, to model.RequestStatus, notes string, now time.Time) (*model.Request, error)
}

// ServiceStore persists unit-side work records. Status moves go through
// TransitionService/MarkWorkStarted, conditional like TransitionRequest.
type ServiceStore interface {
	GetService(ctx context.Context, id uuid.UUID) (*model.Service, error)
	ServiceByRequest(ctx context.Context, requestID uuid.UUID) (*model.Service, error)
	// ActiveServiceForUnit returns the unit's service in an active status, or
	// model.ErrNotFound when the unit is free.
	ActiveServiceForUnit(ctx context.Context, unitID uuid.UUID) (*model.Service, error)
	// TransitionService conditionally moves a service from `from` to `to`;
	// a row no longer holding `from` returns model.ErrInvalidState and stays
	// untouched.
	TransitionService(ctx context.Context, id uuid.UUID, from, to model.ServiceStatus) (*model.Service, error)
	// MarkWorkStarted stamps the work-start time once: the service must be
	// on site with no prior stamp. A repeat returns model.ErrAlreadyStarted.
	MarkWorkStarted(ctx context.Context, id uuid.UUID, at time.Time) (*model.Service, error)
	// UpdateService is an unconditional overwrite for rows the caller already
	// owns inside a composite operation or a test fixture; lifecycle
	// transitions must use the conditional methods above.
	UpdateService(ctx context.Context, svc *model.Service) error
	ListServicesSince(ctx context.Context, since time.Time) ([]*model.Service, error)
}

// DispatchStore groups the multi-row operations that must not partially
// apply. Each call either commits every write it names or none of them.
type DispatchStore interface {
	// AcceptRequest is the safety-critical path: in one serializable unit it
	// re-checks that the request is still pending, re-checks that the unit
	// holds no active service, flips the request to accepted and creates the
	// service. Losing a race returns model.ErrInvalidState (request taken) or
	// model.ErrConflict (unit busy); exactly one caller can win.
	AcceptRequest(ctx context.Context, requestID, unitID uuid.UUID, now time.Time) (*model.Request, *model.Service, error)
	// FinishService persists the finished service row and completes its
	// owning request in the same transaction.
	FinishService(ctx context.Context, svc *model.Service) (*model.Request, error)
	// CancelService persists the cancelled service row and, when
	// cancelRequest is set and the owning request is not terminal, cancels it
	// too.
	CancelService(ctx context.Context, svc *model.Service, cancelRequest bool, now time.Time) (*model.Request, error)
	// CancelRequest cancels a non-terminal request and, when an active
	// service exists for it, cancels that service as well (recording a
	// partial duration if work had started).
	CancelRequest(ctx context.Context, id uuid.UUID, notes string, now time.Time) (*model.Request, *model.Service, error)
}

// ObservationStore persists the note trail attached to services.
type ObservationStore interface {
	AddObservation(ctx context.Context, obs *model.Observation) error
	ObservationsForService(ctx context.Context, serviceID uuid.UUID) ([]*model.Observation, error)
}

// LocationStore persists reported positions. A new row supersedes the
// previous one for the same actor; history is kept.
type LocationStore interface {
	RecordLocation(ctx context.Context, loc *model.Location) error
	// LatestLocation returns the most recent active fix for the actor, or
	// model.ErrNotFound.
	LatestLocation(ctx context.Context, actorID uuid.UUID) (*model.Location, error)
	// LatestLocations returns the most recent active fix per actor.
	LatestLocations(ctx context.Context) (map[uuid.UUID]*model.Location, error)
}

// TerritoryStore holds the administrative regions. Loaded out-of-band,
// read-only for the dispatch flow.
type TerritoryStore interface {
	PutTerritory(ctx context.Context, t *model.Territory) error
	TerritoryByCode(ctx context.Context, code string) (*model.Territory, error)
	ActiveTerritories(ctx context.Context) ([]*model.Territory, error)
}

// ActorStore is the directory of known actors (accounts come from the
// identity layer; this is the projection the matcher needs).
type ActorStore interface {
	PutActor(ctx context.Context, a *model.Actor) error
	GetActor(ctx context.Context, id uuid.UUID) (*model.Actor, error)
	ActiveUnits(ctx context.Context) ([]*model.Actor, error)
}

// Store is the full persistence surface used by the engine and matcher.
type Store interface {
	RequestStore
	ServiceStore
	DispatchStore
	ObservationStore
	LocationStore
	TerritoryStore
	ActorStore
	Close() error
}
