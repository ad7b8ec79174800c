package model

import (
	"time"

	"github.com/google/uuid"
)

// ServiceStatus is the lifecycle state of the unit-side work record.
type ServiceStatus string

const (
	ServiceAccepted  ServiceStatus = "accepted"
	ServiceEnRoute   ServiceStatus = "en_route"
	ServiceOnSite    ServiceStatus = "on_site"
	ServiceCompleted ServiceStatus = "completed"
	ServiceCancelled ServiceStatus = "cancelled"
)

// Active reports whether the status occupies the unit. A unit may hold at
// most one service in an active status at any time.
func (s ServiceStatus) Active() bool {
	switch s {
	case ServiceAccepted, ServiceEnRoute, ServiceOnSite:
		return true
	}
	return false
}

// Terminal reports whether no further transition is allowed from the status.
func (s ServiceStatus) Terminal() bool {
	return s == ServiceCompleted || s == ServiceCancelled
}

// Service is the work performed by a unit against an accepted request.
// Exactly one service exists per accepted request.
type Service struct {
	ID              uuid.UUID     `json:"id"`
	RequestID       uuid.UUID     `json:"request_id"`
	UnitID          uuid.UUID     `json:"unit_id"`
	Status          ServiceStatus `json:"status"`
	AcceptedAt      time.Time     `json:"accepted_at"`
	StartedAt       *time.Time    `json:"started_at,omitempty"`
	FinishedAt      *time.Time    `json:"finished_at,omitempty"`
	FinalNotes      string        `json:"final_notes,omitempty"`
	DurationMinutes int           `json:"duration_minutes"`
}

// ActiveDuration is the elapsed work time: now minus start while unfinished,
// finish minus start afterwards. Nil when work has not started.
func (s *Service) ActiveDuration(now time.Time) *time.Duration {
	if s.StartedAt == nil {
		return nil
	}
	end := now
	if s.FinishedAt != nil {
		end = *s.FinishedAt
	}
	d := end.Sub(*s.StartedAt)
	return &d
}

// TimeLimitExceeded reports whether unfinished work has run past the soft
// limit. Advisory only; nothing auto-cancels on it.
func (s *Service) TimeLimitExceeded(now time.Time, limit time.Duration) bool {
	if s.StartedAt == nil || s.FinishedAt != nil {
		return false
	}
	return now.Sub(*s.StartedAt) > limit
}

// SinceAccepted is the total time from acceptance to finish, or to now while
// the service is open.
func (s *Service) SinceAccepted(now time.Time) time.Duration {
	end := now
	if s.FinishedAt != nil {
		end = *s.FinishedAt
	}
	return end.Sub(s.AcceptedAt)
}
