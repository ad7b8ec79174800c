package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mfvargas/fieldops/core/model"
)

// Memory is the in-memory Store used by tests and by deployments without a
// DATABASE_URL. A single mutex makes every composite operation a critical
// section, which is what gives AcceptRequest its serializability.
type Memory struct {
	mu           sync.Mutex
	requests     map[uuid.UUID]*model.Request
	services     map[uuid.UUID]*model.Service
	svcByRequest map[uuid.UUID]uuid.UUID
	observations map[uuid.UUID][]*model.Observation
	locations    map[uuid.UUID][]*model.Location
	territories  map[uuid.UUID]*model.Territory
	actors       map[uuid.UUID]*model.Actor
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		requests:     map[uuid.UUID]*model.Request{},
		services:     map[uuid.UUID]*model.Service{},
		svcByRequest: map[uuid.UUID]uuid.UUID{},
		observations: map[uuid.UUID][]*model.Observation{},
		locations:    map[uuid.UUID][]*model.Location{},
		territories:  map[uuid.UUID]*model.Territory{},
		actors:       map[uuid.UUID]*model.Actor{},
	}
}

func cloneRequest(r *model.Request) *model.Request {
	c := *r
	if r.TerritoryID != nil {
		id := *r.TerritoryID
		c.TerritoryID = &id
	}
	return &c
}

func cloneService(s *model.Service) *model.Service {
	c := *s
	if s.StartedAt != nil {
		t := *s.StartedAt
		c.StartedAt = &t
	}
	if s.FinishedAt != nil {
		t := *s.FinishedAt
		c.FinishedAt = &t
	}
	return &c
}

func cloneLocation(l *model.Location) *model.Location {
	c := *l
	return &c
}

func cloneTerritory(t *model.Territory) *model.Territory {
	c := *t
	if t.Centroid != nil {
		ct := *t.Centroid
		c.Centroid = &ct
	}
	return &c
}

// CreateRequest inserts a pending request, enforcing the single-pending rule
// per technician inside the lock.
func (m *Memory) CreateRequest(ctx context.Context, req *model.Request) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.requests {
		if r.TechnicianID == req.TechnicianID && r.Status == model.RequestPending {
			return model.ErrConflict
		}
	}
	m.requests[req.ID] = cloneRequest(req)
	return nil
}

func (m *Memory) GetRequest(ctx context.Context, id uuid.UUID) (*model.Request, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.requests[id]
	if !ok {
		return nil, model.ErrNotFound
	}
	return cloneRequest(r), nil
}

func (m *Memory) PendingRequestForTechnician(ctx context.Context, technicianID uuid.UUID) (*model.Request, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.requests {
		if r.TechnicianID == technicianID && r.Status == model.RequestPending {
			return cloneRequest(r), nil
		}
	}
	return nil, model.ErrNotFound
}

func (m *Memory) ListRequestsByStatus(ctx context.Context, status model.RequestStatus) ([]*model.Request, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.Request
	for _, r := range m.requests {
		if r.Status == status {
			out = append(out, cloneRequest(r))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *Memory) TransitionRequest(ctx context.Context, id uuid.UUID, from, to model.RequestStatus, notes string, now time.Time) (*model.Request, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.requests[id]
	if !ok {
		return nil, model.ErrNotFound
	}
	if r.Status != from {
		return nil, &model.StateError{Entity: "request", Current: string(r.Status), Op: "transition to " + string(to)}
	}
	r.Status = to
	if notes != "" {
		r.Notes = notes
	}
	r.UpdatedAt = now
	return cloneRequest(r), nil
}

func (m *Memory) GetService(ctx context.Context, id uuid.UUID) (*model.Service, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.services[id]
	if !ok {
		return nil, model.ErrNotFound
	}
	return cloneService(s), nil
}

func (m *Memory) ServiceByRequest(ctx context.Context, requestID uuid.UUID) (*model.Service, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.svcByRequest[requestID]
	if !ok {
		return nil, model.ErrNotFound
	}
	return cloneService(m.services[id]), nil
}

func (m *Memory) ActiveServiceForUnit(ctx context.Context, unitID uuid.UUID) (*model.Service, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s := m.activeServiceLocked(unitID); s != nil {
		return cloneService(s), nil
	}
	return nil, model.ErrNotFound
}

func (m *Memory) activeServiceLocked(unitID uuid.UUID) *model.Service {
	for _, s := range m.services {
		if s.UnitID == unitID && s.Status.Active() {
			return s
		}
	}
	return nil
}

func (m *Memory) TransitionService(ctx context.Context, id uuid.UUID, from, to model.ServiceStatus) (*model.Service, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.services[id]
	if !ok {
		return nil, model.ErrNotFound
	}
	if s.Status != from {
		return nil, &model.StateError{Entity: "service", Current: string(s.Status), Op: "transition to " + string(to)}
	}
	s.Status = to
	return cloneService(s), nil
}

func (m *Memory) MarkWorkStarted(ctx context.Context, id uuid.UUID, at time.Time) (*model.Service, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.services[id]
	if !ok {
		return nil, model.ErrNotFound
	}
	if s.StartedAt != nil {
		return nil, model.ErrAlreadyStarted
	}
	if s.Status != model.ServiceOnSite {
		return nil, &model.StateError{Entity: "service", Current: string(s.Status), Op: "begin work"}
	}
	t := at
	s.StartedAt = &t
	return cloneService(s), nil
}

func (m *Memory) UpdateService(ctx context.Context, svc *model.Service) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.services[svc.ID]; !ok {
		return model.ErrNotFound
	}
	m.services[svc.ID] = cloneService(svc)
	return nil
}

func (m *Memory) ListServicesSince(ctx context.Context, since time.Time) ([]*model.Service, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.Service
	for _, s := range m.services {
		if !s.AcceptedAt.Before(since) {
			out = append(out, cloneService(s))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AcceptedAt.Before(out[j].AcceptedAt) })
	return out, nil
}

// AcceptRequest re-checks both exclusivity rules and applies the flip plus
// the service insert under one lock.
func (m *Memory) AcceptRequest(ctx context.Context, requestID, unitID uuid.UUID, now time.Time) (*model.Request, *model.Service, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.requests[requestID]
	if !ok {
		return nil, nil, model.ErrNotFound
	}
	if r.Status != model.RequestPending {
		return nil, nil, &model.StateError{Entity: "request", Current: string(r.Status), Op: "accept"}
	}
	if m.activeServiceLocked(unitID) != nil {
		return nil, nil, model.ErrConflict
	}
	r.Status = model.RequestAccepted
	r.UpdatedAt = now
	svc := &model.Service{
		ID:         uuid.New(),
		RequestID:  requestID,
		UnitID:     unitID,
		Status:     model.ServiceAccepted,
		AcceptedAt: now,
	}
	m.services[svc.ID] = svc
	m.svcByRequest[requestID] = svc.ID
	return cloneRequest(r), cloneService(svc), nil
}

func (m *Memory) FinishService(ctx context.Context, svc *model.Service) (*model.Request, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.services[svc.ID]; !ok {
		return nil, model.ErrNotFound
	}
	m.services[svc.ID] = cloneService(svc)
	r, ok := m.requests[svc.RequestID]
	if !ok {
		return nil, model.ErrNotFound
	}
	if r.Status == model.RequestAccepted {
		r.Status = model.RequestCompleted
		r.UpdatedAt = *svc.FinishedAt
	}
	return cloneRequest(r), nil
}

func (m *Memory) CancelService(ctx context.Context, svc *model.Service, cancelRequest bool, now time.Time) (*model.Request, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.services[svc.ID]; !ok {
		return nil, model.ErrNotFound
	}
	m.services[svc.ID] = cloneService(svc)
	r, ok := m.requests[svc.RequestID]
	if !ok {
		return nil, model.ErrNotFound
	}
	if cancelRequest && !r.Status.Terminal() {
		r.Status = model.RequestCancelled
		r.UpdatedAt = now
	}
	return cloneRequest(r), nil
}

func (m *Memory) CancelRequest(ctx context.Context, id uuid.UUID, notes string, now time.Time) (*model.Request, *model.Service, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.requests[id]
	if !ok {
		return nil, nil, model.ErrNotFound
	}
	if r.Status.Terminal() {
		return nil, nil, &model.StateError{Entity: "request", Current: string(r.Status), Op: "cancel"}
	}
	r.Status = model.RequestCancelled
	if notes != "" {
		r.Notes = notes
	}
	r.UpdatedAt = now
	var cancelled *model.Service
	if svcID, ok := m.svcByRequest[id]; ok {
		s := m.services[svcID]
		if s.Status.Active() {
			s.Status = model.ServiceCancelled
			s.FinalNotes = notes
			if s.StartedAt != nil && s.FinishedAt == nil {
				t := now
				s.FinishedAt = &t
				s.DurationMinutes = int(now.Sub(*s.StartedAt).Minutes())
			}
			cancelled = cloneService(s)
		}
	}
	return cloneRequest(r), cancelled, nil
}

func (m *Memory) AddObservation(ctx context.Context, obs *model.Observation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	o := *obs
	m.observations[obs.ServiceID] = append(m.observations[obs.ServiceID], &o)
	return nil
}

func (m *Memory) ObservationsForService(ctx context.Context, serviceID uuid.UUID) ([]*model.Observation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	src := m.observations[serviceID]
	out := make([]*model.Observation, 0, len(src))
	for _, o := range src {
		c := *o
		out = append(out, &c)
	}
	return out, nil
}

func (m *Memory) RecordLocation(ctx context.Context, loc *model.Location) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, prev := range m.locations[loc.ActorID] {
		prev.Active = false
	}
	m.locations[loc.ActorID] = append(m.locations[loc.ActorID], cloneLocation(loc))
	return nil
}

func (m *Memory) LatestLocation(ctx context.Context, actorID uuid.UUID) (*model.Location, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rows := m.locations[actorID]
	for i := len(rows) - 1; i >= 0; i-- {
		if rows[i].Active {
			return cloneLocation(rows[i]), nil
		}
	}
	return nil, model.ErrNotFound
}

func (m *Memory) LatestLocations(ctx context.Context) (map[uuid.UUID]*model.Location, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[uuid.UUID]*model.Location, len(m.locations))
	for actorID, rows := range m.locations {
		for i := len(rows) - 1; i >= 0; i-- {
			if rows[i].Active {
				out[actorID] = cloneLocation(rows[i])
				break
			}
		}
	}
	return out, nil
}

func (m *Memory) PutTerritory(ctx context.Context, t *model.Territory) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.territories[t.ID] = cloneTerritory(t)
	return nil
}

func (m *Memory) TerritoryByCode(ctx context.Context, code string) (*model.Territory, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.territories {
		if t.Code == code {
			return cloneTerritory(t), nil
		}
	}
	return nil, model.ErrNotFound
}

func (m *Memory) ActiveTerritories(ctx context.Context) ([]*model.Territory, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.Territory
	for _, t := range m.territories {
		if t.Active {
			out = append(out, cloneTerritory(t))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out, nil
}

func (m *Memory) PutActor(ctx context.Context, a *model.Actor) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := *a
	m.actors[a.ID] = &c
	return nil
}

func (m *Memory) GetActor(ctx context.Context, id uuid.UUID) (*model.Actor, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.actors[id]
	if !ok {
		return nil, model.ErrNotFound
	}
	c := *a
	return &c, nil
}

func (m *Memory) ActiveUnits(ctx context.Context) ([]*model.Actor, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.Actor
	for _, a := range m.actors {
		if a.Role == model.RoleUnit && a.Active {
			c := *a
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID.String() < out[j].ID.String() })
	return out, nil
}

func (m *Memory) Close() error { return nil }
