package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/mfvargas/fieldops/core/model"
)

const serviceCols = `id, request_id, unit_id, status, accepted_at, started_at, finished_at, final_notes, duration_minutes`

func scanService(row pgx.Row) (*model.Service, error) {
	var s model.Service
	var status string
	err := row.Scan(&s.ID, &s.RequestID, &s.UnitID, &status, &s.AcceptedAt,
		&s.StartedAt, &s.FinishedAt, &s.FinalNotes, &s.DurationMinutes)
	if err != nil {
		return nil, mapError(err)
	}
	s.Status = model.ServiceStatus(status)
	return &s, nil
}

func (s *Store) GetService(ctx context.Context, id uuid.UUID) (*model.Service, error) {
	return scanService(s.pool.QueryRow(ctx, `SELECT `+serviceCols+` FROM services WHERE id = $1`, id))
}

func (s *Store) ServiceByRequest(ctx context.Context, requestID uuid.UUID) (*model.Service, error) {
	return scanService(s.pool.QueryRow(ctx, `SELECT `+serviceCols+` FROM services WHERE request_id = $1`, requestID))
}

func (s *Store) ActiveServiceForUnit(ctx context.Context, unitID uuid.UUID) (*model.Service, error) {
	return scanService(s.pool.QueryRow(ctx, `
		SELECT `+serviceCols+` FROM services
		WHERE unit_id = $1 AND status IN ('accepted', 'en_route', 'on_site')`, unitID))
}

// TransitionService applies a conditional status flip and reports the state
// that blocked it, same shape as transitionRequest.
func (s *Store) TransitionService(ctx context.Context, id uuid.UUID, from, to model.ServiceStatus) (*model.Service, error) {
	svc, err := scanService(s.pool.QueryRow(ctx, `
		UPDATE services SET status = $3
		WHERE id = $1 AND status = $2
		RETURNING `+serviceCols,
		id, string(from), string(to)))
	if err == nil {
		return svc, nil
	}
	if !errors.Is(err, model.ErrNotFound) {
		return nil, err
	}
	var current string
	if serr := s.pool.QueryRow(ctx, `SELECT status FROM services WHERE id = $1`, id).Scan(&current); serr != nil {
		return nil, mapError(serr)
	}
	return nil, &model.StateError{Entity: "service", Current: current, Op: "transition to " + string(to)}
}

// MarkWorkStarted stamps started_at once; the condition rides on the UPDATE
// so two concurrent callers cannot both win.
func (s *Store) MarkWorkStarted(ctx context.Context, id uuid.UUID, at time.Time) (*model.Service, error) {
	svc, err := scanService(s.pool.QueryRow(ctx, `
		UPDATE services SET started_at = $2
		WHERE id = $1 AND started_at IS NULL AND status = 'on_site'
		RETURNING `+serviceCols,
		id, at))
	if err == nil {
		return svc, nil
	}
	if !errors.Is(err, model.ErrNotFound) {
		return nil, err
	}
	cur, gerr := s.GetService(ctx, id)
	if gerr != nil {
		return nil, gerr
	}
	if cur.StartedAt != nil {
		return nil, model.ErrAlreadyStarted
	}
	return nil, &model.StateError{Entity: "service", Current: string(cur.Status), Op: "begin work"}
}

func updateService(ctx context.Context, q querier, svc *model.Service) error {
	tag, err := q.Exec(ctx, `
		UPDATE services
		SET status = $2, started_at = $3, finished_at = $4, final_notes = $5, duration_minutes = $6
		WHERE id = $1`,
		svc.ID, string(svc.Status), svc.StartedAt, svc.FinishedAt, svc.FinalNotes, svc.DurationMinutes)
	if err != nil {
		return mapError(err)
	}
	if tag.RowsAffected() == 0 {
		return model.ErrNotFound
	}
	return nil
}

func (s *Store) UpdateService(ctx context.Context, svc *model.Service) error {
	return updateService(ctx, s.pool, svc)
}

func (s *Store) ListServicesSince(ctx context.Context, since time.Time) ([]*model.Service, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+serviceCols+` FROM services
		WHERE accepted_at >= $1 ORDER BY accepted_at`, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*model.Service
	for rows.Next() {
		svc, err := scanService(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, svc)
	}
	return out, rows.Err()
}

func (s *Store) AddObservation(ctx context.Context, obs *model.Observation) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO observations (id, service_id, content, kind, created_at)
		VALUES ($1, $2, $3, $4, $5)`,
		obs.ID, obs.ServiceID, obs.Content, string(obs.Kind), obs.CreatedAt)
	return mapError(err)
}

func (s *Store) ObservationsForService(ctx context.Context, serviceID uuid.UUID) ([]*model.Observation, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, service_id, content, kind, created_at FROM observations
		WHERE service_id = $1 ORDER BY created_at`, serviceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*model.Observation
	for rows.Next() {
		var o model.Observation
		var kind string
		if err := rows.Scan(&o.ID, &o.ServiceID, &o.Content, &kind, &o.CreatedAt); err != nil {
			return nil, err
		}
		o.Kind = model.ObservationKind(kind)
		out = append(out, &o)
	}
	return out, rows.Err()
}

// RecordLocation deactivates the actor's previous fixes and inserts the new
// one in one transaction.
func (s *Store) RecordLocation(ctx context.Context, loc *model.Location) error {
	return s.withTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `UPDATE locations SET active = FALSE WHERE actor_id = $1 AND active`, loc.ActorID); err != nil {
			return mapError(err)
		}
		_, err := tx.Exec(ctx, `
			INSERT INTO locations (id, actor_id, lat, lon, captured_at, active)
			VALUES ($1, $2, $3, $4, $5, $6)`,
			loc.ID, loc.ActorID, loc.Coord.Lat, loc.Coord.Lon, loc.CapturedAt, loc.Active)
		return mapError(err)
	})
}

func scanLocation(row pgx.Row) (*model.Location, error) {
	var l model.Location
	err := row.Scan(&l.ID, &l.ActorID, &l.Coord.Lat, &l.Coord.Lon, &l.CapturedAt, &l.Active)
	if err != nil {
		return nil, mapError(err)
	}
	return &l, nil
}

func (s *Store) LatestLocation(ctx context.Context, actorID uuid.UUID) (*model.Location, error) {
	return scanLocation(s.pool.QueryRow(ctx, `
		SELECT id, actor_id, lat, lon, captured_at, active FROM locations
		WHERE actor_id = $1 AND active
		ORDER BY captured_at DESC LIMIT 1`, actorID))
}

func (s *Store) LatestLocations(ctx context.Context) (map[uuid.UUID]*model.Location, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT DISTINCT ON (actor_id) id, actor_id, lat, lon, captured_at, active
		FROM locations WHERE active
		ORDER BY actor_id, captured_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[uuid.UUID]*model.Location)
	for rows.Next() {
		l, err := scanLocation(rows)
		if err != nil {
			return nil, err
		}
		out[l.ActorID] = l
	}
	return out, rows.Err()
}

func (s *Store) PutTerritory(ctx context.Context, t *model.Territory) error {
	var geometry, centroid []byte
	var err error
	if t.Geometry != nil {
		if geometry, err = json.Marshal(t.Geometry); err != nil {
			return err
		}
	}
	if t.Centroid != nil {
		if centroid, err = json.Marshal(t.Centroid); err != nil {
			return err
		}
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO territories (id, code, name, geometry, centroid, area_hectares, active, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (code) DO UPDATE
		SET name = EXCLUDED.name, geometry = EXCLUDED.geometry, centroid = EXCLUDED.centroid,
		    area_hectares = EXCLUDED.area_hectares, active = EXCLUDED.active`,
		t.ID, t.Code, t.Name, geometry, centroid, t.AreaHectares, t.Active, t.CreatedAt)
	return mapError(err)
}

func scanTerritory(row pgx.Row) (*model.Territory, error) {
	var t model.Territory
	var geometry, centroid []byte
	err := row.Scan(&t.ID, &t.Code, &t.Name, &geometry, &centroid, &t.AreaHectares, &t.Active, &t.CreatedAt)
	if err != nil {
		return nil, mapError(err)
	}
	if len(geometry) > 0 {
		var p model.Polygon
		if err := json.Unmarshal(geometry, &p); err != nil {
			return nil, err
		}
		t.Geometry = &p
	}
	if len(centroid) > 0 {
		var c model.Coordinate
		if err := json.Unmarshal(centroid, &c); err != nil {
			return nil, err
		}
		t.Centroid = &c
	}
	return &t, nil
}

func (s *Store) TerritoryByCode(ctx context.Context, code string) (*model.Territory, error) {
	return scanTerritory(s.pool.QueryRow(ctx, `
		SELECT id, code, name, geometry, centroid, area_hectares, active, created_at
		FROM territories WHERE code = $1`, code))
}

func (s *Store) ActiveTerritories(ctx context.Context) ([]*model.Territory, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, code, name, geometry, centroid, area_hectares, active, created_at
		FROM territories WHERE active ORDER BY code`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*model.Territory
	for rows.Next() {
		t, err := scanTerritory(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *Store) PutActor(ctx context.Context, a *model.Actor) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO actors (id, role, name, active)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET role = EXCLUDED.role, name = EXCLUDED.name, active = EXCLUDED.active`,
		a.ID, string(a.Role), a.Name, a.Active)
	return mapError(err)
}

func (s *Store) GetActor(ctx context.Context, id uuid.UUID) (*model.Actor, error) {
	var a model.Actor
	var role string
	err := s.pool.QueryRow(ctx, `SELECT id, role, name, active FROM actors WHERE id = $1`, id).
		Scan(&a.ID, &role, &a.Name, &a.Active)
	if err != nil {
		return nil, mapError(err)
	}
	a.Role = model.Role(role)
	return &a, nil
}

func (s *Store) ActiveUnits(ctx context.Context) ([]*model.Actor, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, role, name, active FROM actors
		WHERE role = 'unit' AND active ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*model.Actor
	for rows.Next() {
		var a model.Actor
		var role string
		if err := rows.Scan(&a.ID, &role, &a.Name, &a.Active); err != nil {
			return nil, err
		}
		a.Role = model.Role(role)
		out = append(out, &a)
	}
	return out, rows.Err()
}
