package mqtt

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mfvargas/fieldops/core/events"
	"github.com/mfvargas/fieldops/core/model"
	"github.com/mfvargas/fieldops/core/store"
	"github.com/mfvargas/fieldops/infra/logger"
	"github.com/mfvargas/fieldops/internal/eventbus"
)

func newTestIngestor(mem *store.Memory) *Ingestor {
	return &Ingestor{
		store: mem,
		log:   logger.NopLogger{},
		now:   func() time.Time { return time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC) },
	}
}

func TestHandleMessageRecordsLocation(t *testing.T) {
	mem := store.NewMemory()
	ing := newTestIngestor(mem)
	actor := uuid.New()

	payload, _ := json.Marshal(map[string]any{"lat": 4.61, "lon": -74.08})
	ing.HandleMessage("fieldops/location/"+actor.String(), payload)

	loc, err := mem.LatestLocation(context.Background(), actor)
	require.NoError(t, err)
	assert.Equal(t, 4.61, loc.Coord.Lat)
	assert.Equal(t, -74.08, loc.Coord.Lon)
	// Missing captured_at falls back to the ingest time.
	assert.Equal(t, 2026, loc.CapturedAt.Year())
}

func TestHandleMessageRejectsBadInput(t *testing.T) {
	mem := store.NewMemory()
	ing := newTestIngestor(mem)
	actor := uuid.New()
	topic := "fieldops/location/" + actor.String()

	ing.HandleMessage(topic, []byte("{not json"))
	ing.HandleMessage(topic, []byte(`{"lat": 120, "lon": 0}`))
	ing.HandleMessage("fieldops/location/not-a-uuid", []byte(`{"lat": 1, "lon": 1}`))
	ing.HandleMessage("malformed", []byte(`{"lat": 1, "lon": 1}`))

	_, err := mem.LatestLocation(context.Background(), actor)
	require.ErrorIs(t, err, model.ErrNotFound)
}

func TestHandleMessageNewFixSupersedes(t *testing.T) {
	mem := store.NewMemory()
	ing := newTestIngestor(mem)
	actor := uuid.New()
	topic := "fieldops/location/" + actor.String()

	ing.HandleMessage(topic, []byte(`{"lat": 1, "lon": 1}`))
	ing.HandleMessage(topic, []byte(`{"lat": 2, "lon": 2}`))

	loc, err := mem.LatestLocation(context.Background(), actor)
	require.NoError(t, err)
	assert.Equal(t, 2.0, loc.Coord.Lat)
}

func TestNotifierPublishesRequestCreated(t *testing.T) {
	bus := eventbus.New[events.Event]()
	defer bus.Close()
	pub := NewMockPublisher()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	StartNotifier(ctx, bus, pub, logger.NopLogger{})

	req := &model.Request{ID: uuid.New(), Status: model.RequestPending, Kind: model.KindLadder}
	bus.Publish(events.Event{Type: events.RequestCreated, Request: req})
	// Non-create events are ignored.
	bus.Publish(events.Event{Type: events.RequestAccepted, Request: req})

	require.Eventually(t, func() bool {
		pub.mu.Lock()
		defer pub.mu.Unlock()
		return len(pub.Messages[RequestNotifyTopic]) == 1
	}, time.Second, 10*time.Millisecond)

	pub.mu.Lock()
	var got events.Event
	require.NoError(t, json.Unmarshal(pub.Messages[RequestNotifyTopic][0], &got))
	pub.mu.Unlock()
	assert.Equal(t, req.ID, got.Request.ID)
}

func TestQoSFor(t *testing.T) {
	cfg := Config{QoS: map[string]byte{"location": 1}}
	assert.Equal(t, byte(1), cfg.QoSFor("location"))
	assert.Equal(t, byte(0), cfg.QoSFor("notify"))
}
