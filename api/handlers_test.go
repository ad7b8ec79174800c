package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mfvargas/fieldops/core/lifecycle"
	"github.com/mfvargas/fieldops/core/model"
	"github.com/mfvargas/fieldops/core/proximity"
	"github.com/mfvargas/fieldops/core/store"
	"github.com/mfvargas/fieldops/core/territory"
	"github.com/mfvargas/fieldops/infra/logger"
)

type fixture struct {
	mux *http.ServeMux
	mem *store.Memory
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	mem := store.NewMemory()
	log := logger.NopLogger{}
	resolver := territory.NewResolver(mem, log)
	engine := lifecycle.New(mem, lifecycle.DefaultConfig(), log)
	engine.SetTerritoryLocator(resolver)
	matcher := proximity.NewMatcher(mem, proximity.DefaultConfig(), log)
	h := New(engine, matcher, resolver, mem, log)
	return &fixture{mux: h.Mux(), mem: mem}
}

func (f *fixture) do(t *testing.T, method, path string, actor *model.Actor, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if actor != nil {
		req.Header.Set(headerActorID, actor.ID.String())
		req.Header.Set(headerActorRole, string(actor.Role))
	}
	rec := httptest.NewRecorder()
	f.mux.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), "body: %s", rec.Body.String())
	return v
}

func tech() *model.Actor { return &model.Actor{ID: uuid.New(), Role: model.RoleTechnician} }
func unitActor() *model.Actor {
	return &model.Actor{ID: uuid.New(), Role: model.RoleUnit}
}

func createBody() map[string]any {
	return map[string]any{"kind": "ladder", "lat": 4.61, "lon": -74.08, "address": "Cll 26 #13-19"}
}

func TestCreateRequestEndpoint(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodPost, "/api/requests", tech(), createBody())
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	snap := decode[lifecycle.RequestSnapshot](t, rec)
	assert.Equal(t, model.RequestPending, snap.Request.Status)
	require.NotNil(t, snap.TimeRemainingSeconds)
}

func TestCreateRequestRejectsMissingIdentity(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodPost, "/api/requests", nil, createBody())
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreateRequestRoleForbidden(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodPost, "/api/requests", unitActor(), createBody())
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestCreateRequestConflict(t *testing.T) {
	f := newFixture(t)
	actor := tech()
	require.Equal(t, http.StatusCreated, f.do(t, http.MethodPost, "/api/requests", actor, createBody()).Code)
	rec := f.do(t, http.MethodPost, "/api/requests", actor, createBody())
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestAcceptFlowEndpoints(t *testing.T) {
	f := newFixture(t)
	u := unitActor()

	created := decode[lifecycle.RequestSnapshot](t, f.do(t, http.MethodPost, "/api/requests", tech(), createBody()))
	reqID := created.Request.ID

	rec := f.do(t, http.MethodPost, fmt.Sprintf("/api/requests/%s/accept", reqID), u, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	accepted := decode[acceptResponse](t, rec)
	svcID := accepted.Service.Service.ID

	// Same request again conflicts.
	rec = f.do(t, http.MethodPost, fmt.Sprintf("/api/requests/%s/accept", reqID), unitActor(), nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	for _, step := range []string{"route", "arrive", "start"} {
		rec = f.do(t, http.MethodPost, fmt.Sprintf("/api/services/%s/%s", svcID, step), u, nil)
		require.Equal(t, http.StatusOK, rec.Code, "step %s: %s", step, rec.Body.String())
	}

	// Double start conflicts.
	rec = f.do(t, http.MethodPost, fmt.Sprintf("/api/services/%s/start", svcID), u, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = f.do(t, http.MethodPost, fmt.Sprintf("/api/services/%s/finish", svcID), u, map[string]any{"notes": "done"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	finished := decode[lifecycle.ServiceSnapshot](t, rec)
	assert.Equal(t, model.ServiceCompleted, finished.Service.Status)

	// GET /api/requests/{id} shows the completed request.
	got := decode[lifecycle.RequestSnapshot](t, f.do(t, http.MethodGet, fmt.Sprintf("/api/requests/%s", reqID), nil, nil))
	assert.Equal(t, model.RequestCompleted, got.Request.Status)

	// Observations were recorded along the way.
	obs := decode[[]*model.Observation](t, f.do(t, http.MethodGet, fmt.Sprintf("/api/services/%s/observations", svcID), nil, nil))
	assert.NotEmpty(t, obs)
}

func TestRejectRequiresNotes(t *testing.T) {
	f := newFixture(t)
	created := decode[lifecycle.RequestSnapshot](t, f.do(t, http.MethodPost, "/api/requests", tech(), createBody()))

	rec := f.do(t, http.MethodPost, fmt.Sprintf("/api/requests/%s/reject", created.Request.ID), unitActor(), map[string]any{"notes": ""})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodPost, fmt.Sprintf("/api/requests/%s/reject", created.Request.ID), unitActor(), map[string]any{"notes": "wrong zone"})
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestUnknownRequest404(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodGet, "/api/requests/"+uuid.NewString(), nil, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestLocationAndNearbyUnits(t *testing.T) {
	f := newFixture(t)
	u := unitActor()

	rec := f.do(t, http.MethodPut, "/api/location", u, map[string]any{"lat": 4.615, "lon": -74.081})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = f.do(t, http.MethodPut, "/api/location", u, map[string]any{"lat": 120.0, "lon": 0.0})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/nearby/units?lat=4.61&lon=-74.08", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	units := decode[[]proximity.RankedUnit](t, rec)
	require.Len(t, units, 1)
	assert.True(t, units[0].Available)
	assert.Equal(t, u.ID, units[0].Unit.ID)

	// A busy unit drops out when only available units are asked for.
	busy := unitActor()
	require.Equal(t, http.StatusOK, f.do(t, http.MethodPut, "/api/location", busy, map[string]any{"lat": 4.612, "lon": -74.08}).Code)
	created := decode[lifecycle.RequestSnapshot](t, f.do(t, http.MethodPost, "/api/requests", tech(), createBody()))
	require.Equal(t, http.StatusOK, f.do(t, http.MethodPost, fmt.Sprintf("/api/requests/%s/accept", created.Request.ID), busy, nil).Code)

	rec = f.do(t, http.MethodGet, "/api/nearby/units?lat=4.61&lon=-74.08", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, decode[[]proximity.RankedUnit](t, rec), 2)

	rec = f.do(t, http.MethodGet, "/api/nearby/units?lat=4.61&lon=-74.08&available=true", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	units = decode[[]proximity.RankedUnit](t, rec)
	require.Len(t, units, 1)
	assert.Equal(t, u.ID, units[0].Unit.ID)

	rec = f.do(t, http.MethodGet, "/api/nearby/units?lat=4.61&lon=-74.08&available=maybe", nil, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestNearbyRequestsEndpoint(t *testing.T) {
	f := newFixture(t)
	created := decode[lifecycle.RequestSnapshot](t, f.do(t, http.MethodPost, "/api/requests", tech(), createBody()))

	rec := f.do(t, http.MethodGet, "/api/nearby/requests?lat=4.61&lon=-74.08&radius_km=5&kind=ladder", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	ranked := decode[[]proximity.RankedRequest](t, rec)
	require.Len(t, ranked, 1)
	assert.Equal(t, created.Request.ID, ranked[0].Request.ID)
	assert.Equal(t, proximity.PriorityHigh, ranked[0].Priority)

	rec = f.do(t, http.MethodGet, "/api/nearby/requests?lat=bogus&lon=0", nil, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestTerritoryEndpoints(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	poly := &model.Polygon{Rings: []model.Ring{{
		{-74.2, 4.5}, {-74.2, 4.8}, {-73.9, 4.8}, {-73.9, 4.5}, {-74.2, 4.5},
	}}}
	centroid, err := territory.Centroid(poly)
	require.NoError(t, err)
	require.NoError(t, f.mem.PutTerritory(ctx, &model.Territory{
		ID: uuid.New(), Code: "BOG-01", Name: "Bogota Centro",
		Geometry: poly, Centroid: &centroid, Active: true, CreatedAt: time.Now(),
	}))

	rec := f.do(t, http.MethodGet, "/api/territories", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	terrs := decode[[]*model.Territory](t, rec)
	require.Len(t, terrs, 1)

	rec = f.do(t, http.MethodGet, "/api/territories/locate?lat=4.61&lon=-74.08", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	located := decode[*model.Territory](t, rec)
	assert.Equal(t, "BOG-01", located.Code)

	rec = f.do(t, http.MethodGet, "/api/territories/locate?lat=50&lon=50", nil, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/territories/BOG-01/bounds", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	bounds := decode[territory.Bounds](t, rec)
	assert.Equal(t, 4.5, bounds.MinLat)
	assert.Equal(t, -73.9, bounds.MaxLon)
}

func TestTerritoryTaggingOnCreate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	poly := &model.Polygon{Rings: []model.Ring{{
		{-74.2, 4.5}, {-74.2, 4.8}, {-73.9, 4.8}, {-73.9, 4.5}, {-74.2, 4.5},
	}}}
	terr := &model.Territory{ID: uuid.New(), Code: "BOG-01", Geometry: poly, Active: true, CreatedAt: time.Now()}
	require.NoError(t, f.mem.PutTerritory(ctx, terr))

	created := decode[lifecycle.RequestSnapshot](t, f.do(t, http.MethodPost, "/api/requests", tech(), createBody()))
	require.NotNil(t, created.Request.TerritoryID)
	assert.Equal(t, terr.ID, *created.Request.TerritoryID)
}

func TestServiceKPIEndpoint(t *testing.T) {
	f := newFixture(t)
	u := unitActor()

	created := decode[lifecycle.RequestSnapshot](t, f.do(t, http.MethodPost, "/api/requests", tech(), createBody()))
	accepted := decode[acceptResponse](t, f.do(t, http.MethodPost, fmt.Sprintf("/api/requests/%s/accept", created.Request.ID), u, nil))
	svcID := accepted.Service.Service.ID
	for _, step := range []string{"route", "arrive", "start"} {
		require.Equal(t, http.StatusOK, f.do(t, http.MethodPost, fmt.Sprintf("/api/services/%s/%s", svcID, step), u, nil).Code)
	}
	require.Equal(t, http.StatusOK, f.do(t, http.MethodPost, fmt.Sprintf("/api/services/%s/finish", svcID), u, map[string]any{"notes": "ok"}).Code)

	rec := f.do(t, http.MethodGet, "/api/kpi/services", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	kpi := decode[serviceKPIResponse](t, rec)
	assert.Equal(t, 1, kpi.Total)
	assert.Equal(t, 1, kpi.ByStatus["completed"])
}

func TestActiveServiceEndpoint(t *testing.T) {
	f := newFixture(t)
	u := unitActor()

	rec := f.do(t, http.MethodGet, "/api/services/active", u, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	created := decode[lifecycle.RequestSnapshot](t, f.do(t, http.MethodPost, "/api/requests", tech(), createBody()))
	accepted := decode[acceptResponse](t, f.do(t, http.MethodPost, fmt.Sprintf("/api/requests/%s/accept", created.Request.ID), u, nil))

	rec = f.do(t, http.MethodGet, "/api/services/active", u, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	active := decode[lifecycle.ServiceSnapshot](t, rec)
	assert.Equal(t, accepted.Service.Service.ID, active.Service.ID)
}
