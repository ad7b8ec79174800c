package model

import (
	"time"

	"github.com/google/uuid"
)

// SupportKind is the kind of field support a technician asks for.
type SupportKind string

const (
	KindLadder    SupportKind = "ladder"
	KindEquipment SupportKind = "equipment"
)

// ParseSupportKind validates a support kind string.
func ParseSupportKind(s string) (SupportKind, error) {
	switch SupportKind(s) {
	case KindLadder, KindEquipment:
		return SupportKind(s), nil
	}
	return "", &ArgumentError{Field: "kind", Reason: "must be \"ladder\" or \"equipment\""}
}

// RequestStatus is the lifecycle state of a support request.
type RequestStatus string

const (
	RequestPending   RequestStatus = "pending"
	RequestAccepted  RequestStatus = "accepted"
	RequestRejected  RequestStatus = "rejected"
	RequestCompleted RequestStatus = "completed"
	RequestCancelled RequestStatus = "cancelled"
	RequestExpired   RequestStatus = "expired"
)

// Terminal reports whether no further transition is allowed from the status.
func (s RequestStatus) Terminal() bool {
	switch s {
	case RequestCompleted, RequestRejected, RequestCancelled, RequestExpired:
		return true
	}
	return false
}

// Request is a technician's call for support at a coordinate. Status fields
// are written only by the lifecycle engine.
type Request struct {
	ID           uuid.UUID     `json:"id"`
	TechnicianID uuid.UUID     `json:"technician_id"`
	TerritoryID  *uuid.UUID    `json:"territory_id,omitempty"`
	Kind         SupportKind   `json:"kind"`
	Coord        Coordinate    `json:"coord"`
	Address      string        `json:"address,omitempty"`
	Notes        string        `json:"notes,omitempty"`
	Status       RequestStatus `json:"status"`
	CreatedAt    time.Time     `json:"created_at"`
	ExpiresAt    time.Time     `json:"expires_at"`
	UpdatedAt    time.Time     `json:"updated_at"`
}

// Expired reports whether the request sat pending past its deadline. Expiry
// is evaluated lazily; readers must re-check before acting on a pending
// request.
func (r *Request) Expired(now time.Time) bool {
	return r.Status == RequestPending && now.After(r.ExpiresAt)
}

// TimeRemaining returns the time left before expiry, zero when overdue and
// nil once the request left the pending state.
func (r *Request) TimeRemaining(now time.Time) *time.Duration {
	if r.Status != RequestPending {
		return nil
	}
	d := r.ExpiresAt.Sub(now)
	if d < 0 {
		d = 0
	}
	return &d
}

// Elapsed returns the time since creation.
func (r *Request) Elapsed(now time.Time) time.Duration {
	return now.Sub(r.CreatedAt)
}
