// Package api exposes the dispatch flow as an HTTP JSON surface. Identity
// arrives from the upstream session layer via headers; role preconditions are
// enforced in the engine.
package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/mfvargas/fieldops/core/lifecycle"
	"github.com/mfvargas/fieldops/core/model"
	"github.com/mfvargas/fieldops/core/proximity"
	"github.com/mfvargas/fieldops/core/store"
	"github.com/mfvargas/fieldops/core/territory"
	"github.com/mfvargas/fieldops/infra/logger"
)

// Handler wires the core services to HTTP routes.
type Handler struct {
	engine   *lifecycle.Engine
	matcher  *proximity.Matcher
	resolver *territory.Resolver
	store    store.Store
	log      logger.Logger
}

// New creates the HTTP handler set.
func New(engine *lifecycle.Engine, matcher *proximity.Matcher, resolver *territory.Resolver, st store.Store, log logger.Logger) *Handler {
	return &Handler{engine: engine, matcher: matcher, resolver: resolver, store: st, log: log}
}

// Mux returns the route table.
func (h *Handler) Mux() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/requests", h.createRequest)
	mux.HandleFunc("GET /api/requests/pending", h.pendingRequest)
	mux.HandleFunc("GET /api/requests/{id}", h.getRequest)
	mux.HandleFunc("POST /api/requests/{id}/accept", h.acceptRequest)
	mux.HandleFunc("POST /api/requests/{id}/reject", h.rejectRequest)
	mux.HandleFunc("POST /api/requests/{id}/cancel", h.cancelRequest)

	mux.HandleFunc("GET /api/services/active", h.activeService)
	mux.HandleFunc("GET /api/services/{id}", h.getService)
	mux.HandleFunc("GET /api/services/{id}/observations", h.serviceObservations)
	mux.HandleFunc("POST /api/services/{id}/route", h.startRoute)
	mux.HandleFunc("POST /api/services/{id}/arrive", h.arrive)
	mux.HandleFunc("POST /api/services/{id}/start", h.beginWork)
	mux.HandleFunc("POST /api/services/{id}/finish", h.finish)
	mux.HandleFunc("POST /api/services/{id}/cancel", h.cancelService)

	mux.HandleFunc("GET /api/nearby/requests", h.nearbyRequests)
	mux.HandleFunc("GET /api/nearby/units", h.nearbyUnits)
	mux.HandleFunc("PUT /api/location", h.recordLocation)

	mux.HandleFunc("GET /api/territories", h.listTerritories)
	mux.HandleFunc("GET /api/territories/locate", h.locateTerritory)
	mux.HandleFunc("GET /api/territories/{code}/bounds", h.territoryBounds)

	mux.HandleFunc("GET /api/kpi/services", h.serviceKPI)

	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	return mux
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type errorBody struct {
	Error string `json:"error"`
}

// writeError maps the domain taxonomy onto status codes. Anything outside
// the taxonomy is an infrastructure failure and stays opaque to the client.
func (h *Handler) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, model.ErrInvalidArgument):
		status = http.StatusBadRequest
	case errors.Is(err, model.ErrForbidden):
		status = http.StatusForbidden
	case errors.Is(err, model.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, model.ErrConflict),
		errors.Is(err, model.ErrInvalidState),
		errors.Is(err, model.ErrExpired),
		errors.Is(err, model.ErrAlreadyStarted),
		errors.Is(err, model.ErrAlreadyFinished):
		status = http.StatusConflict
	}
	if status == http.StatusInternalServerError {
		h.log.Errorf("internal error: %v", err)
		writeJSON(w, status, errorBody{Error: "internal error"})
		return
	}
	writeJSON(w, status, errorBody{Error: err.Error()})
}

func decodeBody(r *http.Request, v any) error {
	if r.Body == nil {
		return &model.ArgumentError{Field: "body", Reason: "missing"}
	}
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(v); err != nil {
		return &model.ArgumentError{Field: "body", Reason: "malformed json"}
	}
	return nil
}
