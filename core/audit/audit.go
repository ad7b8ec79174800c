// Package audit defines the transition trail written by the lifecycle engine.
// One record per committed transition; the trail answers "who moved this
// request/service, when, and from what state".
package audit

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/mfvargas/fieldops/core/model"
)

// Record captures one committed lifecycle transition.
type Record struct {
	Timestamp time.Time  `json:"timestamp"`
	ActorID   uuid.UUID  `json:"actor_id"`
	ActorRole model.Role `json:"actor_role"`
	Entity    string     `json:"entity"`
	EntityID  uuid.UUID  `json:"entity_id"`
	From      string     `json:"from"`
	To        string     `json:"to"`
	Notes     string     `json:"notes,omitempty"`
}

// Query defines filters for retrieving records. Zero values mean "no filter".
type Query struct {
	Start    time.Time
	End      time.Time
	Entity   string
	EntityID uuid.UUID
}

// Matches reports whether the record passes the query filters.
func (q Query) Matches(r Record) bool {
	if !q.Start.IsZero() && r.Timestamp.Before(q.Start) {
		return false
	}
	if !q.End.IsZero() && r.Timestamp.After(q.End) {
		return false
	}
	if q.Entity != "" && r.Entity != q.Entity {
		return false
	}
	if q.EntityID != uuid.Nil && r.EntityID != q.EntityID {
		return false
	}
	return true
}

// Store persists Records and supports querying.
type Store interface {
	Append(ctx context.Context, rec Record) error
	Query(ctx context.Context, q Query) ([]Record, error)
	Close() error
}

// NopStore discards records. Used when auditing is disabled.
type NopStore struct{}

func (NopStore) Append(context.Context, Record) error           { return nil }
func (NopStore) Query(context.Context, Query) ([]Record, error) { return nil, nil }
func (NopStore) Close() error                                   { return nil }
