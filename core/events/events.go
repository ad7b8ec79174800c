// Package events defines the lifecycle events published on the internal bus.
// The metrics collector and the MQTT notifier consume them; the engine never
// waits on consumers.
package events

import (
	"time"

	"github.com/google/uuid"

	"github.com/mfvargas/fieldops/core/model"
)

// Type names a lifecycle transition.
type Type string

const (
	RequestCreated   Type = "request.created"
	RequestAccepted  Type = "request.accepted"
	RequestRejected  Type = "request.rejected"
	RequestCancelled Type = "request.cancelled"
	RequestExpired   Type = "request.expired"
	RequestCompleted Type = "request.completed"

	ServiceEnRoute   Type = "service.en_route"
	ServiceOnSite    Type = "service.on_site"
	ServiceStarted   Type = "service.started"
	ServiceCompleted Type = "service.completed"
	ServiceCancelled Type = "service.cancelled"
)

// Event is one committed lifecycle transition. Request is always set; Service
// is set for service-side transitions and for request transitions that
// cascaded into one.
type Event struct {
	Type    Type       `json:"type"`
	At      time.Time  `json:"at"`
	ActorID uuid.UUID  `json:"actor_id"`
	Role    model.Role `json:"role"`
	// From is the status the transitioned entity held before the commit.
	From    string         `json:"from,omitempty"`
	Request *model.Request `json:"request,omitempty"`
	Service *model.Service `json:"service,omitempty"`
}
