package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/mfvargas/fieldops/core/model"
)

// querier is satisfied by both the pool and a transaction.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const requestCols = `id, technician_id, territory_id, kind, lat, lon, address, notes, status, created_at, expires_at, updated_at`

func scanRequest(row pgx.Row) (*model.Request, error) {
	var r model.Request
	var kind, status string
	err := row.Scan(&r.ID, &r.TechnicianID, &r.TerritoryID, &kind, &r.Coord.Lat, &r.Coord.Lon,
		&r.Address, &r.Notes, &status, &r.CreatedAt, &r.ExpiresAt, &r.UpdatedAt)
	if err != nil {
		return nil, mapError(err)
	}
	r.Kind = model.SupportKind(kind)
	r.Status = model.RequestStatus(status)
	return &r, nil
}

func (s *Store) CreateRequest(ctx context.Context, req *model.Request) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO requests (`+requestCols+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		req.ID, req.TechnicianID, req.TerritoryID, string(req.Kind), req.Coord.Lat, req.Coord.Lon,
		req.Address, req.Notes, string(req.Status), req.CreatedAt, req.ExpiresAt, req.UpdatedAt)
	return mapError(err)
}

func (s *Store) GetRequest(ctx context.Context, id uuid.UUID) (*model.Request, error) {
	return scanRequest(s.pool.QueryRow(ctx, `SELECT `+requestCols+` FROM requests WHERE id = $1`, id))
}

func (s *Store) PendingRequestForTechnician(ctx context.Context, technicianID uuid.UUID) (*model.Request, error) {
	return scanRequest(s.pool.QueryRow(ctx, `
		SELECT `+requestCols+` FROM requests
		WHERE technician_id = $1 AND status = 'pending'`, technicianID))
}

func (s *Store) ListRequestsByStatus(ctx context.Context, status model.RequestStatus) ([]*model.Request, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+requestCols+` FROM requests
		WHERE status = $1 ORDER BY created_at`, string(status))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*model.Request
	for rows.Next() {
		r, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// transitionRequest applies a conditional status flip on q and reports the
// state that blocked it.
func transitionRequest(ctx context.Context, q querier, id uuid.UUID, from, to model.RequestStatus, notes string, now time.Time) (*model.Request, error) {
	req, err := scanRequest(q.QueryRow(ctx, `
		UPDATE requests
		SET status = $3,
		    notes = CASE WHEN $4 <> '' THEN $4 ELSE notes END,
		    updated_at = $5
		WHERE id = $1 AND status = $2
		RETURNING `+requestCols,
		id, string(from), string(to), notes, now))
	if err == nil {
		return req, nil
	}
	if !errors.Is(err, model.ErrNotFound) {
		return nil, err
	}
	var current string
	if serr := q.QueryRow(ctx, `SELECT status FROM requests WHERE id = $1`, id).Scan(&current); serr != nil {
		return nil, mapError(serr)
	}
	return nil, &model.StateError{Entity: "request", Current: current, Op: "transition to " + string(to)}
}

func (s *Store) TransitionRequest(ctx context.Context, id uuid.UUID, from, to model.RequestStatus, notes string, now time.Time) (*model.Request, error) {
	return transitionRequest(ctx, s.pool, id, from, to, notes, now)
}

// AcceptRequest flips the request and inserts the service in one
// transaction. The still-pending check rides on the conditional UPDATE; the
// unit-exclusivity check rides on the partial unique index over active
// services, surfacing as ErrConflict.
func (s *Store) AcceptRequest(ctx context.Context, requestID, unitID uuid.UUID, now time.Time) (*model.Request, *model.Service, error) {
	var req *model.Request
	var svc *model.Service
	err := s.withTx(ctx, func(tx pgx.Tx) error {
		var err error
		req, err = scanRequest(tx.QueryRow(ctx, `
			UPDATE requests SET status = 'accepted', updated_at = $2
			WHERE id = $1 AND status = 'pending'
			RETURNING `+requestCols, requestID, now))
		if err != nil {
			if !errors.Is(err, model.ErrNotFound) {
				return err
			}
			var current string
			if serr := tx.QueryRow(ctx, `SELECT status FROM requests WHERE id = $1`, requestID).Scan(&current); serr != nil {
				return mapError(serr)
			}
			return &model.StateError{Entity: "request", Current: current, Op: "accept"}
		}
		svc = &model.Service{
			ID:         uuid.New(),
			RequestID:  requestID,
			UnitID:     unitID,
			Status:     model.ServiceAccepted,
			AcceptedAt: now,
		}
		_, err = tx.Exec(ctx, `
			INSERT INTO services (id, request_id, unit_id, status, accepted_at)
			VALUES ($1, $2, $3, $4, $5)`,
			svc.ID, svc.RequestID, svc.UnitID, string(svc.Status), svc.AcceptedAt)
		return mapError(err)
	})
	if err != nil {
		return nil, nil, err
	}
	return req, svc, nil
}

// FinishService persists the finished service and completes its request in
// the same transaction.
func (s *Store) FinishService(ctx context.Context, svc *model.Service) (*model.Request, error) {
	var req *model.Request
	err := s.withTx(ctx, func(tx pgx.Tx) error {
		if err := updateService(ctx, tx, svc); err != nil {
			return err
		}
		_, err := tx.Exec(ctx, `
			UPDATE requests SET status = 'completed', updated_at = $2
			WHERE id = $1 AND status = 'accepted'`,
			svc.RequestID, svc.FinishedAt)
		if err != nil {
			return mapError(err)
		}
		req, err = scanRequest(tx.QueryRow(ctx, `SELECT `+requestCols+` FROM requests WHERE id = $1`, svc.RequestID))
		return err
	})
	if err != nil {
		return nil, err
	}
	return req, nil
}

// CancelService persists the cancelled service and optionally cancels its
// owning request.
func (s *Store) CancelService(ctx context.Context, svc *model.Service, cancelRequest bool, now time.Time) (*model.Request, error) {
	var req *model.Request
	err := s.withTx(ctx, func(tx pgx.Tx) error {
		if err := updateService(ctx, tx, svc); err != nil {
			return err
		}
		if cancelRequest {
			_, err := tx.Exec(ctx, `
				UPDATE requests SET status = 'cancelled', updated_at = $2
				WHERE id = $1 AND status NOT IN ('completed', 'rejected', 'cancelled', 'expired')`,
				svc.RequestID, now)
			if err != nil {
				return mapError(err)
			}
		}
		var err error
		req, err = scanRequest(tx.QueryRow(ctx, `SELECT `+requestCols+` FROM requests WHERE id = $1`, svc.RequestID))
		return err
	})
	if err != nil {
		return nil, err
	}
	return req, nil
}

// CancelRequest cancels a non-terminal request and any active service bound
// to it, keeping a partial duration when work had started.
func (s *Store) CancelRequest(ctx context.Context, id uuid.UUID, notes string, now time.Time) (*model.Request, *model.Service, error) {
	var req *model.Request
	var cancelled *model.Service
	err := s.withTx(ctx, func(tx pgx.Tx) error {
		current, err := scanRequest(tx.QueryRow(ctx, `SELECT `+requestCols+` FROM requests WHERE id = $1 FOR UPDATE`, id))
		if err != nil {
			return err
		}
		if current.Status.Terminal() {
			return &model.StateError{Entity: "request", Current: string(current.Status), Op: "cancel"}
		}
		req, err = transitionRequest(ctx, tx, id, current.Status, model.RequestCancelled, notes, now)
		if err != nil {
			return err
		}
		svc, err := scanService(tx.QueryRow(ctx, `SELECT `+serviceCols+` FROM services WHERE request_id = $1 FOR UPDATE`, id))
		if err != nil {
			if errors.Is(err, model.ErrNotFound) {
				return nil
			}
			return err
		}
		if !svc.Status.Active() {
			return nil
		}
		svc.Status = model.ServiceCancelled
		svc.FinalNotes = notes
		if svc.StartedAt != nil && svc.FinishedAt == nil {
			t := now
			svc.FinishedAt = &t
			svc.DurationMinutes = int(now.Sub(*svc.StartedAt).Minutes())
		}
		if err := updateService(ctx, tx, svc); err != nil {
			return err
		}
		cancelled = svc
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return req, cancelled, nil
}
