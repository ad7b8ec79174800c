package model

import (
	"time"

	"github.com/google/uuid"
)

// Location is a reported position for an actor. Rows accumulate per actor;
// only the most recent active one is authoritative.
type Location struct {
	ID         uuid.UUID  `json:"id"`
	ActorID    uuid.UUID  `json:"actor_id"`
	Coord      Coordinate `json:"coord"`
	CapturedAt time.Time  `json:"captured_at"`
	Active     bool       `json:"active"`
}

// Fresh reports whether the fix was captured within the staleness window.
func (l *Location) Fresh(now time.Time, window time.Duration) bool {
	return l.Active && now.Sub(l.CapturedAt) <= window
}
