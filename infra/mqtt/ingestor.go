package mqtt

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"github.com/mfvargas/fieldops/core/model"
	"github.com/mfvargas/fieldops/core/store"
	"github.com/mfvargas/fieldops/infra/logger"
)

// locationPayload is the wire form units publish on fieldops/location/<id>.
type locationPayload struct {
	Lat        float64   `json:"lat"`
	Lon        float64   `json:"lon"`
	CapturedAt time.Time `json:"captured_at"`
}

// Ingestor subscribes to the location topic and upserts location rows. A bad
// message is logged and dropped; the subscription stays up.
type Ingestor struct {
	cli   pahoClient
	store store.LocationStore
	qos   byte
	log   logger.Logger
	now   func() time.Time
}

// NewIngestor connects to the broker and subscribes to the location topic.
func NewIngestor(cfg Config, st store.LocationStore) (*Ingestor, error) {
	opts, err := NewClientOptions(cfg)
	if err != nil {
		return nil, err
	}
	log := logger.New("mqtt-ingestor")
	ing := &Ingestor{store: st, qos: cfg.QoSFor("location"), log: log, now: time.Now}

	opts.OnConnect = func(c paho.Client) {
		log.Infof("MQTT connected, subscribing to %s", LocationTopic)
		if token := c.Subscribe(LocationTopic, ing.qos, ing.onLocation); token.Wait() && token.Error() != nil {
			log.Errorf("subscribe error: %v", token.Error())
		}
	}
	opts.OnConnectionLost = func(_ paho.Client, err error) {
		log.Errorf("connection lost: %v", err)
	}
	opts.OnReconnecting = func(_ paho.Client, _ *paho.ClientOptions) {
		log.Warnf("reconnecting to MQTT broker")
	}

	c := newMQTTClient(opts)
	if token := c.Connect(); token.Wait() && token.Error() != nil {
		return nil, token.Error()
	}
	ing.cli = c
	return ing, nil
}

func (i *Ingestor) onLocation(_ paho.Client, msg paho.Message) {
	i.HandleMessage(msg.Topic(), msg.Payload())
}

// HandleMessage processes one location message. Exported for tests and for
// replaying captured traffic.
func (i *Ingestor) HandleMessage(topic string, payload []byte) {
	idx := strings.LastIndex(topic, "/")
	if idx < 0 || idx == len(topic)-1 {
		i.log.Warnf("location message on malformed topic %q", topic)
		return
	}
	actorID, err := uuid.Parse(topic[idx+1:])
	if err != nil {
		i.log.Warnf("location message with bad actor id on %q: %v", topic, err)
		return
	}
	var p locationPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		i.log.Warnf("undecodable location for %s: %v", actorID, err)
		return
	}
	coord := model.Coordinate{Lat: p.Lat, Lon: p.Lon}
	if err := coord.Validate(); err != nil {
		i.log.Warnf("out-of-range location for %s: %v", actorID, err)
		return
	}
	captured := p.CapturedAt
	if captured.IsZero() {
		captured = i.now()
	}
	loc := &model.Location{
		ID:         uuid.New(),
		ActorID:    actorID,
		Coord:      coord,
		CapturedAt: captured,
		Active:     true,
	}
	if err := i.store.RecordLocation(context.Background(), loc); err != nil {
		i.log.Errorf("store location for %s: %v", actorID, err)
		return
	}
	i.log.Debugw("location recorded", map[string]any{
		"actor_id": actorID.String(),
		"lat":      p.Lat,
		"lon":      p.Lon,
	})
}

// Close disconnects from the broker.
func (i *Ingestor) Close() {
	if i.cli != nil && i.cli.IsConnected() {
		i.cli.Disconnect(250)
	}
}
