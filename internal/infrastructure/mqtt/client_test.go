package mqtt

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/wschoenell/chimera-manager/internal/infrastructure/config"
)

const testBroker = "127.0.0.1:1883"

// testConfig returns a configuration for the broker at testBroker.
func testConfig(clientID string) config.MQTTConfig {
	return config.MQTTConfig{
		Broker: config.MQTTBrokerConfig{
			Host:     "127.0.0.1",
			Port:     1883,
			ClientID: clientID,
		},
		QoS: 1,
		Reconnect: config.MQTTReconnectConfig{
			InitialDelay: 1,
			MaxDelay:     5,
		},
	}
}

// connectOrSkip connects to the local broker or skips the test when none
// is listening.
func connectOrSkip(t *testing.T, clientID string) *Client {
	t.Helper()
	conn, err := net.DialTimeout("tcp", testBroker, 200*time.Millisecond)
	if err != nil {
		t.Skipf("no MQTT broker at %s", testBroker)
	}
	conn.Close() //nolint:errcheck // reachability check only

	client, err := Connect(testConfig(clientID), NewTopics(fmt.Sprintf("chimera-test-%d", time.Now().UnixNano())))
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	t.Cleanup(func() { client.Close() }) //nolint:errcheck // Test cleanup
	return client
}

func TestTopics(t *testing.T) {
	topics := NewTopics("")

	tests := []struct {
		name string
		got  string
		want string
	}{
		{"InstrumentCommand", topics.InstrumentCommand("dome-0"), "chimera/instrument/dome-0/command"},
		{"InstrumentAck", topics.InstrumentAck("dome-0"), "chimera/instrument/dome-0/ack"},
		{"InstrumentEvent", topics.InstrumentEvent("tel-0"), "chimera/instrument/tel-0/event"},
		{"AllInstrumentAcks", topics.AllInstrumentAcks(), "chimera/instrument/+/ack"},
		{"AllInstrumentEvents", topics.AllInstrumentEvents(), "chimera/instrument/+/event"},
		{"Status", topics.Status(), "chimera/supervisor/status"},
		{"Broadcast", topics.Broadcast(), "chimera/supervisor/broadcast"},
		{"Photo", topics.Photo(), "chimera/supervisor/photo"},
		{"Ask", topics.Ask(), "chimera/supervisor/ask"},
		{"Answer", topics.Answer(), "chimera/supervisor/answer"},
		{"Command", topics.Command(), "chimera/supervisor/command"},
		{"All", topics.All(), "chimera/#"},
		{"custom prefix", NewTopics("obs/t80").Broadcast(), "obs/t80/supervisor/broadcast"},
		{"zero value", Topics{}.Status(), "chimera/supervisor/status"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("got %q, want %q", tt.got, tt.want)
			}
		})
	}
}

func TestTopics_InstrumentID(t *testing.T) {
	topics := NewTopics("chimera")

	tests := []struct {
		topic string
		want  string
	}{
		{"chimera/instrument/dome-0/ack", "dome-0"},
		{"chimera/instrument/tel-0/event", "tel-0"},
		{"chimera/instrument/site/a/event", "site/a"},
		{"chimera/instrument/dome-0", ""},
		{"chimera/instrument//ack", ""},
		{"chimera/instrument/dome-0/", ""},
		{"chimera/supervisor/status", ""},
		{"other/instrument/dome-0/ack", ""},
	}
	for _, tt := range tests {
		if got := topics.InstrumentID(tt.topic); got != tt.want {
			t.Errorf("InstrumentID(%q) = %q, want %q", tt.topic, got, tt.want)
		}
	}
}

func TestPublish_Validation(t *testing.T) {
	c := &Client{subscriptions: make(map[string]subscription)}

	tests := []struct {
		name    string
		topic   string
		payload []byte
		qos     byte
		want    error
	}{
		{"empty topic", "", []byte("x"), 1, ErrInvalidTopic},
		{"invalid qos", "chimera/x", []byte("x"), 3, ErrInvalidQoS},
		{"too large", "chimera/x", make([]byte, maxPayloadSize+1), 1, ErrPublishFailed},
		{"not connected", "chimera/x", []byte("x"), 1, ErrNotConnected},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := c.Publish(tt.topic, tt.payload, tt.qos, false); !errors.Is(err, tt.want) {
				t.Errorf("Publish() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestPublishJSON_EncodeError(t *testing.T) {
	c := &Client{}
	if err := c.PublishJSON("chimera/x", make(chan int)); !errors.Is(err, ErrPublishFailed) {
		t.Errorf("PublishJSON() error = %v, want ErrPublishFailed", err)
	}
}

func TestSubscribe_Validation(t *testing.T) {
	c := &Client{subscriptions: make(map[string]subscription)}
	handler := func(string, []byte) error { return nil }

	if err := c.Subscribe("", 1, handler); !errors.Is(err, ErrInvalidTopic) {
		t.Errorf("empty topic error = %v", err)
	}
	if err := c.Subscribe("chimera/x", 3, handler); !errors.Is(err, ErrInvalidQoS) {
		t.Errorf("invalid qos error = %v", err)
	}
	if err := c.Subscribe("chimera/x", 1, nil); !errors.Is(err, ErrSubscribeFailed) {
		t.Errorf("nil handler error = %v", err)
	}
	if err := c.Subscribe("chimera/x", 1, handler); !errors.Is(err, ErrNotConnected) {
		t.Errorf("disconnected error = %v", err)
	}
	if err := c.Unsubscribe(""); !errors.Is(err, ErrInvalidTopic) {
		t.Errorf("Unsubscribe empty topic error = %v", err)
	}
	if c.SubscriptionCount() != 0 {
		t.Errorf("SubscriptionCount() = %d, want 0", c.SubscriptionCount())
	}
}

func TestClose_NilClient(t *testing.T) {
	c := &Client{}
	if err := c.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
}

func TestHealthCheck_Disconnected(t *testing.T) {
	c := &Client{}
	if err := c.HealthCheck(context.Background()); !errors.Is(err, ErrNotConnected) {
		t.Errorf("HealthCheck() error = %v, want ErrNotConnected", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := c.HealthCheck(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("HealthCheck(cancelled) error = %v, want context.Canceled", err)
	}
}

func TestConnect_BrokerRefused(t *testing.T) {
	cfg := testConfig("chimera-test-refused")
	cfg.Broker.Port = 19999

	_, err := Connect(cfg, NewTopics(""))
	if !errors.Is(err, ErrConnectionFailed) {
		t.Errorf("Connect() error = %v, want ErrConnectionFailed", err)
	}
}

func TestWrapHandler_RecoversPanic(t *testing.T) {
	logger := &captureLogger{}
	c := &Client{}
	c.SetLogger(logger)

	h := c.wrapHandler(func(string, []byte) error { panic("boom") })
	h(nil, fakeMessage{topic: "chimera/x"})

	h = c.wrapHandler(func(string, []byte) error { return errors.New("bad payload") })
	h(nil, fakeMessage{topic: "chimera/y"})

	logger.mu.Lock()
	defer logger.mu.Unlock()
	if logger.errors != 1 || logger.warns != 1 {
		t.Errorf("errors = %d, warns = %d; want 1 and 1", logger.errors, logger.warns)
	}
}

func TestBroker_PublishSubscribeRoundtrip(t *testing.T) {
	client := connectOrSkip(t, "chimera-test-roundtrip")
	topics := client.Topics()

	received := make(chan string, 1)
	if err := client.Subscribe(topics.AllInstrumentAcks(), 1, func(topic string, payload []byte) error {
		received <- topics.InstrumentID(topic) + ":" + string(payload)
		return nil
	}); err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}
	if !client.HasSubscription(topics.AllInstrumentAcks()) {
		t.Error("subscription not tracked")
	}

	if err := client.PublishJSON(topics.InstrumentAck("dome-0"), map[string]bool{"ok": true}); err != nil {
		t.Fatalf("PublishJSON() error = %v", err)
	}

	select {
	case got := <-received:
		if got != `dome-0:{"ok":true}` {
			t.Errorf("received %q", got)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("message not received")
	}

	if err := client.Unsubscribe(topics.AllInstrumentAcks()); err != nil {
		t.Fatalf("Unsubscribe() error = %v", err)
	}
	if client.SubscriptionCount() != 0 {
		t.Errorf("SubscriptionCount() = %d, want 0", client.SubscriptionCount())
	}
}

func TestBroker_HealthCheck(t *testing.T) {
	client := connectOrSkip(t, "chimera-test-health")
	if err := client.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck() error = %v", err)
	}
	if client.QoS() != 1 {
		t.Errorf("QoS() = %d, want 1", client.QoS())
	}
}

type captureLogger struct {
	mu     sync.Mutex
	errors int
	warns  int
}

func (l *captureLogger) Error(string, ...any) {
	l.mu.Lock()
	l.errors++
	l.mu.Unlock()
}

func (l *captureLogger) Warn(string, ...any) {
	l.mu.Lock()
	l.warns++
	l.mu.Unlock()
}

// fakeMessage implements pahomqtt.Message for handler tests.
type fakeMessage struct {
	topic   string
	payload []byte
}

func (m fakeMessage) Duplicate() bool   { return false }
func (m fakeMessage) Qos() byte         { return 1 }
func (m fakeMessage) Retained() bool    { return false }
func (m fakeMessage) Topic() string     { return m.topic }
func (m fakeMessage) MessageID() uint16 { return 0 }
func (m fakeMessage) Payload() []byte   { return m.payload }
func (m fakeMessage) Ack()              {}
