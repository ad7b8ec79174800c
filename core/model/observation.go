package model

import (
	"time"

	"github.com/google/uuid"
)

// ObservationKind tags the note trail attached to a service.
type ObservationKind string

const (
	ObservationRejection  ObservationKind = "rejection"
	ObservationProgress   ObservationKind = "progress"
	ObservationCompletion ObservationKind = "completion"
)

// Observation is a timestamped note the lifecycle engine records as a side
// effect of service transitions.
type Observation struct {
	ID        uuid.UUID       `json:"id"`
	ServiceID uuid.UUID       `json:"service_id"`
	Content   string          `json:"content"`
	Kind      ObservationKind `json:"kind"`
	CreatedAt time.Time       `json:"created_at"`
}
