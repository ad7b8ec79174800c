package api

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/mfvargas/fieldops/core/model"
)

// Identity headers set by the upstream session layer. The module trusts them;
// authenticating them is out of scope here.
const (
	headerActorID   = "X-Actor-ID"
	headerActorRole = "X-Actor-Role"
)

// actorFrom builds the acting identity from the request headers.
func actorFrom(r *http.Request) (*model.Actor, error) {
	rawID := r.Header.Get(headerActorID)
	if rawID == "" {
		return nil, &model.ArgumentError{Field: headerActorID, Reason: "missing"}
	}
	id, err := uuid.Parse(rawID)
	if err != nil {
		return nil, &model.ArgumentError{Field: headerActorID, Reason: "not a uuid"}
	}
	role, err := model.ParseRole(r.Header.Get(headerActorRole))
	if err != nil {
		return nil, err
	}
	return &model.Actor{ID: id, Role: role, Active: true}, nil
}
