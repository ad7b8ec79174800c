package proximity

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mfvargas/fieldops/core/model"
	"github.com/mfvargas/fieldops/core/store"
	"github.com/mfvargas/fieldops/infra/logger"
)

var base = time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

func newTestMatcher(t *testing.T) (*Matcher, *store.Memory) {
	t.Helper()
	mem := store.NewMemory()
	m := NewMatcher(mem, DefaultConfig(), logger.NopLogger{})
	m.SetClock(func() time.Time { return base })
	return m, mem
}

func addPending(t *testing.T, mem *store.Memory, kind model.SupportKind, lat, lon float64) *model.Request {
	t.Helper()
	req := &model.Request{
		ID:           uuid.New(),
		TechnicianID: uuid.New(),
		Kind:         kind,
		Coord:        model.Coordinate{Lat: lat, Lon: lon},
		Status:       model.RequestPending,
		CreatedAt:    base.Add(-time.Hour),
		ExpiresAt:    base.Add(time.Hour),
		UpdatedAt:    base.Add(-time.Hour),
	}
	require.NoError(t, mem.CreateRequest(context.Background(), req))
	return req
}

func addUnit(t *testing.T, mem *store.Memory, lat, lon float64, age time.Duration) *model.Actor {
	t.Helper()
	ctx := context.Background()
	u := &model.Actor{ID: uuid.New(), Role: model.RoleUnit, Active: true}
	require.NoError(t, mem.PutActor(ctx, u))
	require.NoError(t, mem.RecordLocation(ctx, &model.Location{
		ID:         uuid.New(),
		ActorID:    u.ID,
		Coord:      model.Coordinate{Lat: lat, Lon: lon},
		CapturedAt: base.Add(-age),
		Active:     true,
	}))
	return u
}

func TestNearbyRequestsInvalidOrigin(t *testing.T) {
	m, _ := newTestMatcher(t)
	_, err := m.NearbyRequests(context.Background(), model.Coordinate{Lat: 91, Lon: 0}, 10, "")
	require.ErrorIs(t, err, model.ErrInvalidArgument)
}

func TestNearbyRequestsSortedAndFiltered(t *testing.T) {
	m, mem := newTestMatcher(t)
	ctx := context.Background()
	origin := model.Coordinate{Lat: 0, Lon: 0}

	far := addPending(t, mem, model.KindLadder, 0, 0.08)   // ~8.9 km
	near := addPending(t, mem, model.KindLadder, 0, 0.01)  // ~1.1 km
	addPending(t, mem, model.KindEquipment, 0, 0.02)       // filtered by kind
	addPending(t, mem, model.KindLadder, 0, 1)             // ~111 km, out of radius

	got, err := m.NearbyRequests(ctx, origin, 10, model.KindLadder)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, near.ID, got[0].Request.ID)
	assert.Equal(t, far.ID, got[1].Request.ID)
	assert.Equal(t, PriorityHigh, got[0].Priority)
	assert.Equal(t, PriorityMedium, got[1].Priority)
	// ~1.1 km at 2.5 min/km rounds up to 3, floored to 5.
	assert.Equal(t, 5, got[0].ETAMinutes)
	assert.Equal(t, 23, got[1].ETAMinutes)
}

func TestNearbyRequestsSkipsExpired(t *testing.T) {
	m, mem := newTestMatcher(t)
	ctx := context.Background()

	overdue := &model.Request{
		ID:           uuid.New(),
		TechnicianID: uuid.New(),
		Kind:         model.KindLadder,
		Coord:        model.Coordinate{Lat: 0, Lon: 0.01},
		Status:       model.RequestPending,
		CreatedAt:    base.Add(-3 * time.Hour),
		ExpiresAt:    base.Add(-time.Hour),
		UpdatedAt:    base.Add(-3 * time.Hour),
	}
	require.NoError(t, mem.CreateRequest(ctx, overdue))

	got, err := m.NearbyRequests(ctx, model.Coordinate{Lat: 0, Lon: 0}, 10, "")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestNearbyUnitsAvailabilityAndFreshness(t *testing.T) {
	m, mem := newTestMatcher(t)
	ctx := context.Background()
	origin := model.Coordinate{Lat: 0, Lon: 0}

	available := addUnit(t, mem, 0, 0.06, 5*time.Minute) // ~6.7 km, free
	busy := addUnit(t, mem, 0, 0.01, 5*time.Minute)      // ~1.1 km, occupied
	addUnit(t, mem, 0, 0.01, 20*time.Minute)             // stale fix, dropped
	addUnit(t, mem, 0, 2, 5*time.Minute)                 // out of radius

	req := addPending(t, mem, model.KindLadder, 0, 0.01)
	_, _, err := mem.AcceptRequest(ctx, req.ID, busy.ID, base)
	require.NoError(t, err)

	got, err := m.NearbyUnits(ctx, origin, 10, false)
	require.NoError(t, err)
	require.Len(t, got, 2)
	// Available first even though the busy unit is closer.
	assert.Equal(t, available.ID, got[0].Unit.ID)
	assert.True(t, got[0].Available)
	assert.Equal(t, busy.ID, got[1].Unit.ID)
	assert.False(t, got[1].Available)
}

func TestNearbyUnitsOnlyAvailable(t *testing.T) {
	m, mem := newTestMatcher(t)
	ctx := context.Background()
	origin := model.Coordinate{Lat: 0, Lon: 0}

	free := addUnit(t, mem, 0, 0.06, 5*time.Minute)
	busy := addUnit(t, mem, 0, 0.01, 5*time.Minute)

	req := addPending(t, mem, model.KindLadder, 0, 0.01)
	_, _, err := mem.AcceptRequest(ctx, req.ID, busy.ID, base)
	require.NoError(t, err)

	got, err := m.NearbyUnits(ctx, origin, 10, true)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, free.ID, got[0].Unit.ID)
	assert.True(t, got[0].Available)
}

func TestNearbyUnitsTieBreaksByTierThenDistance(t *testing.T) {
	m, mem := newTestMatcher(t)
	origin := model.Coordinate{Lat: 0, Lon: 0}

	mid := addUnit(t, mem, 0, 0.07, time.Minute)   // ~7.8 km, medium tier
	close1 := addUnit(t, mem, 0, 0.02, time.Minute) // ~2.2 km, high tier
	close2 := addUnit(t, mem, 0, 0.03, time.Minute) // ~3.3 km, high tier

	got, err := m.NearbyUnits(context.Background(), origin, 10, false)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, close1.ID, got[0].Unit.ID)
	assert.Equal(t, close2.ID, got[1].Unit.ID)
	assert.Equal(t, mid.ID, got[2].Unit.ID)
}

func TestNearbyDefaultRadius(t *testing.T) {
	m, mem := newTestMatcher(t)
	addPending(t, mem, model.KindLadder, 0, 0.05)

	got, err := m.NearbyRequests(context.Background(), model.Coordinate{Lat: 0, Lon: 0}, 0, "")
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestMatcherConcurrentQueries(t *testing.T) {
	m, mem := newTestMatcher(t)
	for i := 0; i < 5; i++ {
		addPending(t, mem, model.KindLadder, 0, 0.01*float64(i+1))
		addUnit(t, mem, 0, 0.01*float64(i+1), time.Minute)
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := m.NearbyRequests(context.Background(), model.Coordinate{Lat: 0, Lon: 0}, 10, "")
			assert.NoError(t, err)
			_, err = m.NearbyUnits(context.Background(), model.Coordinate{Lat: 0, Lon: 0}, 10, false)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
}
