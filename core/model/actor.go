package model

import "github.com/google/uuid"

// Role identifies what an actor is allowed to do in the dispatch flow.
type Role string

const (
	// RoleTechnician creates support requests from the field.
	RoleTechnician Role = "technician"
	// RoleUnit accepts requests and performs the resulting service.
	RoleUnit Role = "unit"
	// RoleLeader supervises; read access plus request cancellation.
	RoleLeader Role = "leader"
)

// Actor is the authenticated identity attached to every call. The session
// layer upstream derives it; this module only trusts and checks it.
type Actor struct {
	ID     uuid.UUID `json:"id"`
	Role   Role      `json:"role"`
	Name   string    `json:"name,omitempty"`
	Active bool      `json:"active"`
}

// ParseRole validates a role string.
func ParseRole(s string) (Role, error) {
	switch Role(s) {
	case RoleTechnician, RoleUnit, RoleLeader:
		return Role(s), nil
	}
	return "", &ArgumentError{Field: "role", Reason: "unknown role " + s}
}
