package habitron

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"
)

// fakePublisher records published messages for assertions.
type fakePublisher struct {
	mu        sync.Mutex
	connected bool
	published []publishedMessage
}

type publishedMessage struct {
	topic    string
	payload  []byte
	qos      byte
	retained bool
}

func (f *fakePublisher) Publish(topic string, payload []byte, qos byte, retained bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.published = append(f.published, publishedMessage{topic, append([]byte(nil), payload...), qos, retained})
	return nil
}

func (f *fakePublisher) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *fakePublisher) messages() []publishedMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]publishedMessage(nil), f.published...)
}

func (f *fakePublisher) lastMessage(t *testing.T) publishedMessage {
	t.Helper()
	msgs := f.messages()
	if len(msgs) == 0 {
		t.Fatal("nothing published")
	}
	return msgs[len(msgs)-1]
}

func decodeHealth(t *testing.T, payload []byte) HealthMessage {
	t.Helper()
	var msg HealthMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		t.Fatalf("unmarshaling health payload: %v", err)
	}
	return msg
}

func newTestReporter(pub *fakePublisher, transport Connector) *HealthReporter {
	return NewHealthReporter(HealthReporterConfig{
		BridgeID:  "bridge-test",
		Version:   "1.2.3",
		Router:    "192.0.2.10:7777",
		Interval:  time.Minute,
		Publisher: pub,
		Transport: transport,
	})
}

func TestHealthReporter_PublishNow_Healthy(t *testing.T) {
	pub := &fakePublisher{connected: true}
	h := newTestReporter(pub, &fakeConnector{})
	h.SetModuleCount(12)

	if err := h.PublishNow(); err != nil {
		t.Fatalf("PublishNow() error = %v", err)
	}

	msg := pub.lastMessage(t)
	if msg.topic != HealthTopic() {
		t.Errorf("topic = %q, want %q", msg.topic, HealthTopic())
	}
	if !msg.retained || msg.qos != 1 {
		t.Errorf("qos/retained = %d/%v, want 1/true", msg.qos, msg.retained)
	}

	health := decodeHealth(t, msg.payload)
	if health.Status != HealthHealthy {
		t.Errorf("Status = %q, want healthy", health.Status)
	}
	if health.BridgeID != "bridge-test" || health.Version != "1.2.3" {
		t.Errorf("identity = %q/%q", health.BridgeID, health.Version)
	}
	if health.ModuleCount != 12 {
		t.Errorf("ModuleCount = %d, want 12", health.ModuleCount)
	}
	if health.Router != "192.0.2.10:7777" {
		t.Errorf("Router = %q", health.Router)
	}
}

func TestHealthReporter_DegradedWhenMQTTDown(t *testing.T) {
	pub := &fakePublisher{connected: false}
	h := newTestReporter(pub, &fakeConnector{})

	if err := h.PublishNow(); err != nil {
		t.Fatalf("PublishNow() error = %v", err)
	}

	health := decodeHealth(t, pub.lastMessage(t).payload)
	if health.Status != HealthDegraded {
		t.Errorf("Status = %q, want degraded", health.Status)
	}
	if health.Reason != "MQTT disconnected" {
		t.Errorf("Reason = %q", health.Reason)
	}
}

func TestHealthReporter_DegradedWhenGatewayUnreachable(t *testing.T) {
	pub := &fakePublisher{connected: true}
	h := newTestReporter(pub, unreachableConnector{})

	if err := h.PublishNow(); err != nil {
		t.Fatalf("PublishNow() error = %v", err)
	}

	health := decodeHealth(t, pub.lastMessage(t).payload)
	if health.Status != HealthDegraded {
		t.Errorf("Status = %q, want degraded", health.Status)
	}
	if health.Reason != "gateway unreachable" {
		t.Errorf("Reason = %q", health.Reason)
	}
}

// unreachableConnector always reports the gateway as down.
type unreachableConnector struct{}

func (unreachableConnector) SendReceive(ctx context.Context, frame []byte) (Response, error) {
	return Response{}, ErrConnection
}
func (unreachableConnector) SendOnly(ctx context.Context, frame []byte) error { return ErrConnection }
func (unreachableConnector) Reachable() bool                                  { return false }
func (unreachableConnector) Stats() ClientStats                               { return ClientStats{} }

func TestHealthReporter_StopPublishesStopping(t *testing.T) {
	pub := &fakePublisher{connected: true}
	h := newTestReporter(pub, &fakeConnector{})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h.Start(ctx)

	h.Stop()
	h.Stop() // idempotent

	msgs := pub.messages()
	if len(msgs) == 0 {
		t.Fatal("nothing published")
	}
	final := decodeHealth(t, msgs[len(msgs)-1].payload)
	if final.Status != HealthStopping {
		t.Errorf("final status = %q, want stopping", final.Status)
	}
}

func TestHealthReporter_LWT(t *testing.T) {
	h := newTestReporter(&fakePublisher{}, nil)

	if h.GetLWTTopic() != HealthTopic() {
		t.Errorf("GetLWTTopic() = %q, want %q", h.GetLWTTopic(), HealthTopic())
	}

	payload, err := h.GetLWTPayload()
	if err != nil {
		t.Fatalf("GetLWTPayload() error = %v", err)
	}
	msg := decodeHealth(t, payload)
	if msg.Status != HealthOffline {
		t.Errorf("LWT status = %q, want offline", msg.Status)
	}
	if msg.BridgeID != "bridge-test" {
		t.Errorf("LWT bridge id = %q", msg.BridgeID)
	}
}

func TestHealthReporter_PublishStarting(t *testing.T) {
	pub := &fakePublisher{connected: true}
	h := newTestReporter(pub, &fakeConnector{})

	if err := h.PublishStarting(); err != nil {
		t.Fatalf("PublishStarting() error = %v", err)
	}
	health := decodeHealth(t, pub.lastMessage(t).payload)
	if health.Status != HealthStarting {
		t.Errorf("Status = %q, want starting", health.Status)
	}
}
