package mqtt

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/mfvargas/fieldops/core/events"
	"github.com/mfvargas/fieldops/infra/logger"
	"github.com/mfvargas/fieldops/internal/eventbus"
)

// Publisher publishes a payload to a topic.
type Publisher interface {
	Publish(topic string, payload []byte) error
	Close()
}

// PahoPublisher publishes over a live broker connection.
type PahoPublisher struct {
	cli pahoClient
	qos byte
	log logger.Logger
}

// NewPahoPublisher connects to the broker.
func NewPahoPublisher(cfg Config) (*PahoPublisher, error) {
	opts, err := NewClientOptions(cfg)
	if err != nil {
		return nil, err
	}
	c := newMQTTClient(opts)
	if token := c.Connect(); token.Wait() && token.Error() != nil {
		return nil, token.Error()
	}
	return &PahoPublisher{cli: c, qos: cfg.QoSFor("notify"), log: logger.New("mqtt-notifier")}, nil
}

// Publish sends the payload and waits for the token.
func (p *PahoPublisher) Publish(topic string, payload []byte) error {
	token := p.cli.Publish(topic, p.qos, false, payload)
	token.Wait()
	return token.Error()
}

// Close disconnects from the broker.
func (p *PahoPublisher) Close() {
	if p.cli != nil && p.cli.IsConnected() {
		p.cli.Disconnect(250)
	}
}

// MockPublisher records published payloads for tests.
type MockPublisher struct {
	mu       sync.Mutex
	Messages map[string][][]byte
}

// NewMockPublisher creates an empty MockPublisher.
func NewMockPublisher() *MockPublisher {
	return &MockPublisher{Messages: make(map[string][][]byte)}
}

// Publish records the payload.
func (m *MockPublisher) Publish(topic string, payload []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Messages[topic] = append(m.Messages[topic], payload)
	return nil
}

// Close is a no-op.
func (m *MockPublisher) Close() {}

// StartNotifier forwards request-created events from the bus to the notify
// topic so listening units learn about new work. It stops when the context is
// canceled.
func StartNotifier(ctx context.Context, bus *eventbus.Bus[events.Event], pub Publisher, log logger.Logger) {
	if bus == nil || pub == nil {
		return
	}
	sub := bus.Subscribe()
	go func() {
		defer bus.Unsubscribe(sub)
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-sub:
				if !ok {
					return
				}
				if ev.Type != events.RequestCreated || ev.Request == nil {
					continue
				}
				payload, err := json.Marshal(ev)
				if err != nil {
					log.Errorf("encode request event: %v", err)
					continue
				}
				if err := pub.Publish(RequestNotifyTopic, payload); err != nil {
					log.Errorf("publish request event: %v", err)
				}
			}
		}
	}()
}
