package api

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/mfvargas/fieldops/core/lifecycle"
	"github.com/mfvargas/fieldops/core/model"
)

func pathID(r *http.Request, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(r.PathValue(name))
	if err != nil {
		return uuid.Nil, &model.ArgumentError{Field: name, Reason: "not a uuid"}
	}
	return id, nil
}

type createRequestBody struct {
	Kind    string  `json:"kind"`
	Lat     float64 `json:"lat"`
	Lon     float64 `json:"lon"`
	Address string  `json:"address"`
	Notes   string  `json:"notes"`
}

func (h *Handler) createRequest(w http.ResponseWriter, r *http.Request) {
	actor, err := actorFrom(r)
	if err != nil {
		h.writeError(w, err)
		return
	}
	var body createRequestBody
	if err := decodeBody(r, &body); err != nil {
		h.writeError(w, err)
		return
	}
	snap, err := h.engine.CreateRequest(r.Context(), actor, lifecycle.CreateRequestInput{
		Kind:    body.Kind,
		Coord:   model.Coordinate{Lat: body.Lat, Lon: body.Lon},
		Address: body.Address,
		Notes:   body.Notes,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, snap)
}

func (h *Handler) getRequest(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.writeError(w, err)
		return
	}
	snap, err := h.engine.GetRequest(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (h *Handler) pendingRequest(w http.ResponseWriter, r *http.Request) {
	actor, err := actorFrom(r)
	if err != nil {
		h.writeError(w, err)
		return
	}
	snap, err := h.engine.PendingRequest(r.Context(), actor)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

type acceptResponse struct {
	Request *lifecycle.RequestSnapshot `json:"request"`
	Service *lifecycle.ServiceSnapshot `json:"service"`
}

func (h *Handler) acceptRequest(w http.ResponseWriter, r *http.Request) {
	actor, err := actorFrom(r)
	if err != nil {
		h.writeError(w, err)
		return
	}
	id, err := pathID(r, "id")
	if err != nil {
		h.writeError(w, err)
		return
	}
	reqSnap, svcSnap, err := h.engine.AcceptRequest(r.Context(), actor, id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, acceptResponse{Request: reqSnap, Service: svcSnap})
}

type notesBody struct {
	Notes string `json:"notes"`
}

func (h *Handler) rejectRequest(w http.ResponseWriter, r *http.Request) {
	actor, err := actorFrom(r)
	if err != nil {
		h.writeError(w, err)
		return
	}
	id, err := pathID(r, "id")
	if err != nil {
		h.writeError(w, err)
		return
	}
	var body notesBody
	if err := decodeBody(r, &body); err != nil {
		h.writeError(w, err)
		return
	}
	snap, err := h.engine.RejectRequest(r.Context(), actor, id, body.Notes)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (h *Handler) cancelRequest(w http.ResponseWriter, r *http.Request) {
	actor, err := actorFrom(r)
	if err != nil {
		h.writeError(w, err)
		return
	}
	id, err := pathID(r, "id")
	if err != nil {
		h.writeError(w, err)
		return
	}
	var body notesBody
	_ = decodeBody(r, &body) // notes are optional on cancel
	snap, err := h.engine.CancelRequest(r.Context(), actor, id, body.Notes)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// serviceOp factors the shared shape of the service transition handlers.
func (h *Handler) serviceOp(w http.ResponseWriter, r *http.Request, op func(actor *model.Actor, id uuid.UUID) (*lifecycle.ServiceSnapshot, error)) {
	actor, err := actorFrom(r)
	if err != nil {
		h.writeError(w, err)
		return
	}
	id, err := pathID(r, "id")
	if err != nil {
		h.writeError(w, err)
		return
	}
	snap, err := op(actor, id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (h *Handler) startRoute(w http.ResponseWriter, r *http.Request) {
	h.serviceOp(w, r, func(actor *model.Actor, id uuid.UUID) (*lifecycle.ServiceSnapshot, error) {
		return h.engine.StartRoute(r.Context(), actor, id)
	})
}

func (h *Handler) arrive(w http.ResponseWriter, r *http.Request) {
	h.serviceOp(w, r, func(actor *model.Actor, id uuid.UUID) (*lifecycle.ServiceSnapshot, error) {
		return h.engine.Arrive(r.Context(), actor, id)
	})
}

func (h *Handler) beginWork(w http.ResponseWriter, r *http.Request) {
	h.serviceOp(w, r, func(actor *model.Actor, id uuid.UUID) (*lifecycle.ServiceSnapshot, error) {
		return h.engine.BeginWork(r.Context(), actor, id)
	})
}

func (h *Handler) finish(w http.ResponseWriter, r *http.Request) {
	var body notesBody
	_ = decodeBody(r, &body)
	h.serviceOp(w, r, func(actor *model.Actor, id uuid.UUID) (*lifecycle.ServiceSnapshot, error) {
		return h.engine.Finish(r.Context(), actor, id, body.Notes)
	})
}

func (h *Handler) cancelService(w http.ResponseWriter, r *http.Request) {
	var body notesBody
	_ = decodeBody(r, &body)
	h.serviceOp(w, r, func(actor *model.Actor, id uuid.UUID) (*lifecycle.ServiceSnapshot, error) {
		return h.engine.CancelService(r.Context(), actor, id, body.Notes)
	})
}

func (h *Handler) getService(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.writeError(w, err)
		return
	}
	snap, err := h.engine.GetService(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (h *Handler) activeService(w http.ResponseWriter, r *http.Request) {
	actor, err := actorFrom(r)
	if err != nil {
		h.writeError(w, err)
		return
	}
	snap, err := h.engine.ActiveService(r.Context(), actor)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (h *Handler) serviceObservations(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.writeError(w, err)
		return
	}
	obs, err := h.engine.Observations(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	if obs == nil {
		obs = []*model.Observation{}
	}
	writeJSON(w, http.StatusOK, obs)
}
