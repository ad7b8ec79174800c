package api

import (
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/google/uuid"
	"gonum.org/v1/gonum/stat"

	"github.com/mfvargas/fieldops/core/model"
	"github.com/mfvargas/fieldops/core/territory"
)

func queryFloat(r *http.Request, name string) (float64, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, &model.ArgumentError{Field: name, Reason: "missing"}
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, &model.ArgumentError{Field: name, Reason: "not a number"}
	}
	return v, nil
}

func queryOrigin(r *http.Request) (model.Coordinate, error) {
	lat, err := queryFloat(r, "lat")
	if err != nil {
		return model.Coordinate{}, err
	}
	lon, err := queryFloat(r, "lon")
	if err != nil {
		return model.Coordinate{}, err
	}
	return model.Coordinate{Lat: lat, Lon: lon}, nil
}

// queryRadius returns radius_km, zero (meaning "use the default") when
// absent.
func queryRadius(r *http.Request) (float64, error) {
	if r.URL.Query().Get("radius_km") == "" {
		return 0, nil
	}
	return queryFloat(r, "radius_km")
}

func (h *Handler) nearbyRequests(w http.ResponseWriter, r *http.Request) {
	origin, err := queryOrigin(r)
	if err != nil {
		h.writeError(w, err)
		return
	}
	radius, err := queryRadius(r)
	if err != nil {
		h.writeError(w, err)
		return
	}
	var kind model.SupportKind
	if raw := r.URL.Query().Get("kind"); raw != "" {
		if kind, err = model.ParseSupportKind(raw); err != nil {
			h.writeError(w, err)
			return
		}
	}
	ranked, err := h.matcher.NearbyRequests(r.Context(), origin, radius, kind)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ranked)
}

func (h *Handler) nearbyUnits(w http.ResponseWriter, r *http.Request) {
	origin, err := queryOrigin(r)
	if err != nil {
		h.writeError(w, err)
		return
	}
	radius, err := queryRadius(r)
	if err != nil {
		h.writeError(w, err)
		return
	}
	onlyAvailable := false
	if raw := r.URL.Query().Get("available"); raw != "" {
		onlyAvailable, err = strconv.ParseBool(raw)
		if err != nil {
			h.writeError(w, &model.ArgumentError{Field: "available", Reason: "not a boolean"})
			return
		}
	}
	ranked, err := h.matcher.NearbyUnits(r.Context(), origin, radius, onlyAvailable)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ranked)
}

type locationBody struct {
	Lat        float64    `json:"lat"`
	Lon        float64    `json:"lon"`
	CapturedAt *time.Time `json:"captured_at,omitempty"`
}

func (h *Handler) recordLocation(w http.ResponseWriter, r *http.Request) {
	actor, err := actorFrom(r)
	if err != nil {
		h.writeError(w, err)
		return
	}
	var body locationBody
	if err := decodeBody(r, &body); err != nil {
		h.writeError(w, err)
		return
	}
	coord := model.Coordinate{Lat: body.Lat, Lon: body.Lon}
	if err := coord.Validate(); err != nil {
		h.writeError(w, err)
		return
	}
	captured := time.Now()
	if body.CapturedAt != nil {
		captured = *body.CapturedAt
	}
	// Reporting a location also keeps the actor directory current, so the
	// matcher sees units that have never gone through another flow.
	if err := h.store.PutActor(r.Context(), actor); err != nil {
		h.writeError(w, err)
		return
	}
	loc := &model.Location{
		ID:         uuid.New(),
		ActorID:    actor.ID,
		Coord:      coord,
		CapturedAt: captured,
		Active:     true,
	}
	if err := h.store.RecordLocation(r.Context(), loc); err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, loc)
}

func (h *Handler) listTerritories(w http.ResponseWriter, r *http.Request) {
	terrs, err := h.store.ActiveTerritories(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	if terrs == nil {
		terrs = []*model.Territory{}
	}
	writeJSON(w, http.StatusOK, terrs)
}

func (h *Handler) locateTerritory(w http.ResponseWriter, r *http.Request) {
	origin, err := queryOrigin(r)
	if err != nil {
		h.writeError(w, err)
		return
	}
	radius, err := queryRadius(r)
	if err != nil {
		h.writeError(w, err)
		return
	}
	if radius <= 0 {
		radius = 50
	}
	terr, err := h.resolver.Locate(r.Context(), origin, radius)
	if err != nil {
		h.writeError(w, err)
		return
	}
	if terr == nil {
		h.writeError(w, model.ErrNotFound)
		return
	}
	writeJSON(w, http.StatusOK, terr)
}

func (h *Handler) territoryBounds(w http.ResponseWriter, r *http.Request) {
	code := r.PathValue("code")
	terr, err := h.store.TerritoryByCode(r.Context(), code)
	if err != nil {
		h.writeError(w, err)
		return
	}
	if terr.Geometry == nil {
		h.writeError(w, &model.ArgumentError{Field: "code", Reason: "territory has no geometry"})
		return
	}
	bounds, err := territory.BoundingBox(terr.Geometry)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, bounds)
}

type serviceKPIResponse struct {
	Since         time.Time      `json:"since"`
	Total         int            `json:"total"`
	ByStatus      map[string]int `json:"by_status"`
	MeanMinutes   float64        `json:"mean_minutes"`
	MedianMinutes float64        `json:"median_minutes"`
	P90Minutes    float64        `json:"p90_minutes"`
}

// serviceKPI aggregates duration statistics over finished services.
func (h *Handler) serviceKPI(w http.ResponseWriter, r *http.Request) {
	since := time.Now().Add(-24 * time.Hour)
	if raw := r.URL.Query().Get("since"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			h.writeError(w, &model.ArgumentError{Field: "since", Reason: "not an RFC3339 timestamp"})
			return
		}
		since = parsed
	}
	services, err := h.store.ListServicesSince(r.Context(), since)
	if err != nil {
		h.writeError(w, err)
		return
	}
	resp := serviceKPIResponse{Since: since, Total: len(services), ByStatus: map[string]int{}}
	var durations []float64
	for _, svc := range services {
		resp.ByStatus[string(svc.Status)]++
		if svc.Status == model.ServiceCompleted {
			durations = append(durations, float64(svc.DurationMinutes))
		}
	}
	if len(durations) > 0 {
		sort.Float64s(durations)
		resp.MeanMinutes = stat.Mean(durations, nil)
		resp.MedianMinutes = stat.Quantile(0.5, stat.Empirical, durations, nil)
		resp.P90Minutes = stat.Quantile(0.9, stat.Empirical, durations, nil)
	}
	writeJSON(w, http.StatusOK, resp)
}
