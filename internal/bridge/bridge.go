package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/wschoenell/chimera-manager/internal/capability"
	"github.com/wschoenell/chimera-manager/internal/infrastructure/mqtt"
	"github.com/wschoenell/chimera-manager/internal/supervisor"
)

// DefaultTimeout bounds a call when Options.Timeout is zero.
const DefaultTimeout = 30 * time.Second

// Bus is the subset of the MQTT client the bridge uses.
// *mqtt.Client satisfies it; tests use an in-memory fake.
type Bus interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
}

// Logger is the subset of logging.Logger the bridge uses.
type Logger interface {
	Debug(msg string, args ...any)
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Warn(string, ...any)  {}

// EventFunc receives instrument events. supervisor.HandleEvent fits.
type EventFunc func(ctx context.Context, ev supervisor.Event) error

// ReadingFunc observes every weather reading fetched from a station.
type ReadingFunc func(station string, q capability.Quantity, r capability.Reading)

// Options configures a Bridge.
type Options struct {
	Bus    Bus
	Topics mqtt.Topics
	QoS    byte

	// Timeout bounds each call. Zero means DefaultTimeout.
	Timeout time.Duration

	// Instruments maps capability names (dome, telescope, ...) to bridge ids.
	// Names without a proxy type, such as site, are ignored.
	Instruments map[string]string

	// WeatherStations lists station bridge ids.
	WeatherStations []string

	// Fans maps fan names to bridge ids.
	Fans map[string]string

	OnReading ReadingFunc
	Logger    Logger
}

// Bridge is the supervisor side of the instrument protocol.
//
// Thread Safety: all methods are safe for concurrent use.
type Bridge struct {
	bus     Bus
	topics  mqtt.Topics
	qos     byte
	timeout time.Duration
	logger  Logger

	instruments map[string]string
	stations    []string
	fans        map[string]string
	names       map[string]string // bridge id -> capability name
	onReading   ReadingFunc

	mu      sync.Mutex
	pending map[string]chan AckMessage
	closed  bool

	handlerMu sync.RWMutex
	onEvent   EventFunc

	ctx    context.Context //nolint:containedctx // event handlers outlive the MQTT callback
	cancel context.CancelFunc
}

// New validates opts and builds a Bridge. Start must be called before use.
func New(opts Options) (*Bridge, error) {
	if opts.Bus == nil {
		return nil, fmt.Errorf("%w: bus is required", ErrInvalidConfig)
	}
	if opts.QoS > 2 {
		return nil, fmt.Errorf("%w: qos %d", ErrInvalidConfig, opts.QoS)
	}

	b := &Bridge{
		bus:         opts.Bus,
		topics:      opts.Topics,
		qos:         opts.QoS,
		timeout:     opts.Timeout,
		logger:      opts.Logger,
		instruments: make(map[string]string, len(opts.Instruments)),
		stations:    append([]string(nil), opts.WeatherStations...),
		fans:        make(map[string]string, len(opts.Fans)),
		names:       make(map[string]string),
		onReading:   opts.OnReading,
		pending:     make(map[string]chan AckMessage),
	}
	if b.timeout <= 0 {
		b.timeout = DefaultTimeout
	}
	if b.logger == nil {
		b.logger = noopLogger{}
	}

	for name, id := range opts.Instruments {
		if id == "" {
			return nil, fmt.Errorf("%w: empty bridge id for %s", ErrInvalidConfig, name)
		}
		if other, dup := b.names[id]; dup {
			return nil, fmt.Errorf("%w: bridge id %s used by %s and %s", ErrInvalidConfig, id, other, name)
		}
		b.instruments[name] = id
		b.names[id] = name
	}
	for name, id := range opts.Fans {
		if id == "" {
			return nil, fmt.Errorf("%w: empty bridge id for fan %s", ErrInvalidConfig, name)
		}
		b.fans[name] = id
	}
	for _, id := range b.stations {
		if id == "" {
			return nil, fmt.Errorf("%w: empty weather station id", ErrInvalidConfig)
		}
	}

	b.ctx, b.cancel = context.WithCancel(context.Background())
	return b, nil
}

// SetEventHandler registers the receiver of instrument events.
func (b *Bridge) SetEventHandler(fn EventFunc) {
	b.handlerMu.Lock()
	defer b.handlerMu.Unlock()
	b.onEvent = fn
}

// Start subscribes to acknowledgements and events from every bridge.
// ctx scopes event handling; cancelling it has the same effect as Close.
func (b *Bridge) Start(ctx context.Context) error {
	if err := b.bus.Subscribe(b.topics.AllInstrumentAcks(), b.qos, b.handleAck); err != nil {
		return fmt.Errorf("subscribing to acks: %w", err)
	}
	if err := b.bus.Subscribe(b.topics.AllInstrumentEvents(), b.qos, b.handleEvent); err != nil {
		return fmt.Errorf("subscribing to events: %w", err)
	}

	go func() {
		select {
		case <-ctx.Done():
			b.Close()
		case <-b.ctx.Done():
		}
	}()
	return nil
}

// Close fails every pending call with ErrClosed and rejects new ones.
func (b *Bridge) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for id, ch := range b.pending {
		close(ch)
		delete(b.pending, id)
	}
	b.cancel()
}

// Pending returns the number of calls awaiting an acknowledgement.
func (b *Bridge) Pending() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pending)
}

// Call invokes method on the instrument with bridge id and waits for its
// acknowledgement. When result is non-nil the ack result is decoded into it.
func (b *Bridge) Call(ctx context.Context, id, method string, args map[string]any, result any) error {
	cmd := NewCommand(id, method, args)
	ch := make(chan AckMessage, 1)

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return ErrClosed
	}
	b.pending[cmd.ID] = ch
	b.mu.Unlock()
	defer b.forget(cmd.ID)

	payload, err := json.Marshal(cmd)
	if err != nil {
		return fmt.Errorf("encoding %s.%s: %w", id, method, err)
	}
	if err := b.bus.Publish(b.topics.InstrumentCommand(id), payload, b.qos, false); err != nil {
		return fmt.Errorf("sending %s.%s: %w", id, method, err)
	}

	timer := time.NewTimer(b.timeout)
	defer timer.Stop()

	select {
	case ack, ok := <-ch:
		if !ok {
			return ErrClosed
		}
		return decodeAck(ack, id, method, result)
	case <-timer.C:
		return fmt.Errorf("%w: %s.%s after %s", ErrTimeout, id, method, b.timeout)
	case <-ctx.Done():
		return fmt.Errorf("%s.%s: %w", id, method, ctx.Err())
	}
}

func (b *Bridge) forget(id string) {
	b.mu.Lock()
	delete(b.pending, id)
	b.mu.Unlock()
}

func decodeAck(ack AckMessage, id, method string, result any) error {
	switch ack.Status {
	case AckAccepted:
	case AckTimeout:
		return fmt.Errorf("%w: %s.%s reported by bridge", ErrTimeout, id, method)
	default:
		code, msg := "", string(ack.Status)
		if ack.Error != nil {
			code, msg = ack.Error.Code, ack.Error.Message
		}
		return fmt.Errorf("%w: %s.%s: %s %s", ErrRejected, id, method, code, msg)
	}

	if result == nil || len(ack.Result) == 0 {
		return nil
	}
	if err := json.Unmarshal(ack.Result, result); err != nil {
		return fmt.Errorf("decoding %s.%s result: %w", id, method, err)
	}
	return nil
}

func (b *Bridge) handleAck(topic string, payload []byte) error {
	var ack AckMessage
	if err := json.Unmarshal(payload, &ack); err != nil {
		return fmt.Errorf("decoding ack on %s: %w", topic, err)
	}

	b.mu.Lock()
	ch, ok := b.pending[ack.CommandID]
	delete(b.pending, ack.CommandID)
	b.mu.Unlock()

	if !ok {
		b.logger.Debug("ack for unknown call", "topic", topic, "command_id", ack.CommandID)
		return nil
	}
	ch <- ack
	return nil
}

func (b *Bridge) handleEvent(topic string, payload []byte) error {
	id := b.topics.InstrumentID(topic)
	name, ok := b.names[id]
	if !ok {
		b.logger.Debug("event from unknown bridge", "topic", topic)
		return nil
	}

	var msg EventMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		return fmt.Errorf("decoding event on %s: %w", topic, err)
	}

	b.handlerMu.RLock()
	fn := b.onEvent
	b.handlerMu.RUnlock()
	if fn == nil {
		return nil
	}

	ev := supervisor.Event{
		Source:  name,
		Name:    msg.Event,
		Status:  msg.Status,
		State:   msg.State,
		Program: msg.Program,
		Message: msg.Message,
	}
	if err := fn(b.ctx, ev); err != nil {
		b.logger.Warn("handling instrument event failed", "source", name, "event", msg.Event, "error", err)
	}
	return nil
}

// Capabilities returns a proxy for every configured instrument, keyed by
// capability name. Weather stations and fans are only present when configured.
func (b *Bridge) Capabilities() map[string]any {
	caps := make(map[string]any)
	for name, id := range b.instruments {
		switch name {
		case capability.NameDome:
			caps[name] = &Dome{b: b, id: id}
		case capability.NameTelescope:
			caps[name] = &Telescope{b: b, id: id}
		case capability.NameCamera:
			caps[name] = &Camera{b: b, id: id}
		case capability.NameScheduler:
			caps[name] = &Scheduler{b: b, id: id}
		}
	}

	if len(b.stations) > 0 {
		stations := make(capability.WeatherStations, 0, len(b.stations))
		for _, id := range b.stations {
			stations = append(stations, &WeatherStation{b: b, id: id})
		}
		caps[capability.NameWeatherStations] = stations
	}

	if len(b.fans) > 0 {
		fans := make(capability.Fans, len(b.fans))
		for name, id := range b.fans {
			fans[name] = &Fan{b: b, id: id}
		}
		caps[capability.NameDomeFan] = fans
	}
	return caps
}

// IDs returns every bridge id the supervisor talks to, sorted.
func (b *Bridge) IDs() []string {
	seen := make(map[string]struct{})
	for _, id := range b.instruments {
		seen[id] = struct{}{}
	}
	for _, id := range b.stations {
		seen[id] = struct{}{}
	}
	for _, id := range b.fans {
		seen[id] = struct{}{}
	}
	ids := make([]string, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
