package notify

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/wschoenell/chimera-manager/internal/infrastructure/mqtt"
)

type published struct {
	topic   string
	payload []byte
}

type recordingBus struct {
	mu      sync.Mutex
	msgs    []published
	subs    map[string]mqtt.MessageHandler
	onAsk   func(payload []byte)
	failPub error
}

func newRecordingBus() *recordingBus {
	return &recordingBus{subs: make(map[string]mqtt.MessageHandler)}
}

func (b *recordingBus) Publish(topic string, payload []byte, _ byte, _ bool) error {
	b.mu.Lock()
	if b.failPub != nil {
		b.mu.Unlock()
		return b.failPub
	}
	b.msgs = append(b.msgs, published{topic: topic, payload: payload})
	onAsk := b.onAsk
	b.mu.Unlock()

	if onAsk != nil && topic == mqtt.NewTopics("test").Ask() {
		go onAsk(payload)
	}
	return nil
}

func (b *recordingBus) Subscribe(topic string, _ byte, handler mqtt.MessageHandler) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs[topic] = handler
	return nil
}

func (b *recordingBus) handler(topic string) mqtt.MessageHandler {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.subs[topic]
}

func (b *recordingBus) on(topic string) []published {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []published
	for _, m := range b.msgs {
		if m.topic == topic {
			out = append(out, m)
		}
	}
	return out
}

type recordingPublisher struct {
	mu    sync.Mutex
	kinds []string
}

func (p *recordingPublisher) Publish(kind string, _ any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.kinds = append(p.kinds, kind)
}

func (p *recordingPublisher) count(kind string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, k := range p.kinds {
		if k == kind {
			n++
		}
	}
	return n
}

func newTestNotifier(t *testing.T) (*Notifier, *recordingBus, *recordingPublisher) {
	t.Helper()
	bus := newRecordingBus()
	pub := &recordingPublisher{}
	n := New(Options{Bus: bus, Topics: mqtt.NewTopics("test"), QoS: 1, Publisher: pub})
	if err := n.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	return n, bus, pub
}

func TestBroadcast(t *testing.T) {
	n, bus, _ := newTestNotifier(t)
	fixed := time.Date(2026, 3, 1, 2, 0, 0, 0, time.UTC)
	n.now = func() time.Time { return fixed }

	n.Broadcast(context.Background(), "dome slit closed")

	msgs := bus.on("test/supervisor/broadcast")
	if len(msgs) != 1 {
		t.Fatalf("broadcasts = %d, want 1", len(msgs))
	}
	var m Message
	if err := json.Unmarshal(msgs[0].payload, &m); err != nil {
		t.Fatalf("decoding broadcast: %v", err)
	}
	if m.Message != "dome slit closed" || !m.Time.Equal(fixed) {
		t.Errorf("broadcast = %+v", m)
	}
}

func TestBroadcast_PublishFailureIsLogged(t *testing.T) {
	n, bus, _ := newTestNotifier(t)
	bus.failPub = errors.New("offline")
	n.Broadcast(context.Background(), "ignored")
}

func TestBroadcast_NoBus(t *testing.T) {
	n := New(Options{})
	if err := n.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	n.Broadcast(context.Background(), "only logged")
	n.BroadcastPhoto(context.Background(), "/tmp/sky.jpg", "")
}

func TestBroadcastPhoto(t *testing.T) {
	n, bus, pub := newTestNotifier(t)
	n.BroadcastPhoto(context.Background(), "/data/allsky/latest.jpg", "clouds")

	msgs := bus.on("test/supervisor/photo")
	if len(msgs) != 1 {
		t.Fatalf("photos = %d, want 1", len(msgs))
	}
	var p Photo
	if err := json.Unmarshal(msgs[0].payload, &p); err != nil {
		t.Fatalf("decoding photo: %v", err)
	}
	if p.Path != "/data/allsky/latest.jpg" || p.Caption != "clouds" {
		t.Errorf("photo = %+v", p)
	}
	if pub.count(EventPhoto) != 1 {
		t.Errorf("photo events = %d, want 1", pub.count(EventPhoto))
	}
}

func TestAsk_AnsweredOverMQTT(t *testing.T) {
	n, bus, pub := newTestNotifier(t)
	answers := bus.handler("test/supervisor/answer")
	if answers == nil {
		t.Fatal("answer topic not subscribed")
	}
	bus.onAsk = func(payload []byte) {
		var q Question
		if err := json.Unmarshal(payload, &q); err != nil {
			t.Errorf("decoding question: %v", err)
			return
		}
		out, _ := json.Marshal(Answer{ID: q.ID, Answer: " lock ", From: "alice"})
		if err := answers("test/supervisor/answer", out); err != nil {
			t.Errorf("answer handler error = %v", err)
		}
	}

	answer, ok := n.Ask(context.Background(), "Close the dome?", 2*time.Second)
	if !ok || answer != "lock" {
		t.Fatalf("Ask() = %q, %v; want lock, true", answer, ok)
	}
	if len(n.Questions()) != 0 {
		t.Errorf("Questions() = %v after answer", n.Questions())
	}
	if pub.count(EventQuestion) != 1 || pub.count(EventAnswer) != 1 {
		t.Errorf("question/answer events = %d/%d", pub.count(EventQuestion), pub.count(EventAnswer))
	}
}

func TestAsk_Timeout(t *testing.T) {
	n, _, _ := newTestNotifier(t)
	answer, ok := n.Ask(context.Background(), "Anyone?", 20*time.Millisecond)
	if ok || answer != "" {
		t.Errorf("Ask() = %q, %v; want unanswered", answer, ok)
	}
	if err := n.Answer(Answer{Answer: "late"}); !errors.Is(err, ErrUnknownQuestion) {
		t.Errorf("late Answer() error = %v, want ErrUnknownQuestion", err)
	}
}

func TestAsk_ContextCancelled(t *testing.T) {
	n, _, _ := newTestNotifier(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, ok := n.Ask(ctx, "Anyone?", time.Minute); ok {
		t.Error("Ask() ok = true with cancelled context")
	}
}

func TestAnswer_ThroughAPI(t *testing.T) {
	n, _, _ := newTestNotifier(t)

	type result struct {
		answer string
		ok     bool
	}
	done := make(chan result, 1)
	go func() {
		a, ok := n.Ask(context.Background(), "Open?", 2*time.Second)
		done <- result{a, ok}
	}()

	var qs []Question
	deadline := time.Now().Add(2 * time.Second)
	for len(qs) == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
		qs = n.Questions()
	}
	if len(qs) != 1 {
		t.Fatalf("Questions() = %v, want 1 pending", qs)
	}
	if qs[0].Question != "Open?" || !qs[0].Deadline.After(qs[0].Asked) {
		t.Errorf("question = %+v", qs[0])
	}

	if err := n.Answer(Answer{ID: "wrong", Answer: "yes"}); !errors.Is(err, ErrUnknownQuestion) {
		t.Errorf("Answer(wrong id) error = %v", err)
	}
	if err := n.Answer(Answer{ID: qs[0].ID, Answer: "  "}); !errors.Is(err, ErrEmptyAnswer) {
		t.Errorf("Answer(blank) error = %v", err)
	}
	if err := n.Answer(Answer{ID: qs[0].ID, Answer: "Yes"}); err != nil {
		t.Fatalf("Answer() error = %v", err)
	}

	r := <-done
	if !r.ok || r.answer != "Yes" {
		t.Errorf("Ask() = %q, %v", r.answer, r.ok)
	}
}

func TestAnswer_EmptyIDNeedsSinglePending(t *testing.T) {
	n, _, _ := newTestNotifier(t)
	n.pending["a"] = &pendingQuestion{q: Question{ID: "a"}, answer: make(chan string, 1)}
	n.pending["b"] = &pendingQuestion{q: Question{ID: "b"}, answer: make(chan string, 1)}

	if err := n.Answer(Answer{Answer: "yes"}); !errors.Is(err, ErrUnknownQuestion) {
		t.Errorf("Answer() with two pending error = %v, want ErrUnknownQuestion", err)
	}

	delete(n.pending, "b")
	if err := n.Answer(Answer{Answer: "yes"}); err != nil {
		t.Fatalf("Answer() with one pending error = %v", err)
	}
}

func TestHandleAnswer_BadPayload(t *testing.T) {
	n, _, _ := newTestNotifier(t)
	if err := n.handleAnswer("test/supervisor/answer", []byte("nope")); err == nil {
		t.Error("handleAnswer() expected decode error")
	}
}

func TestServeCommands(t *testing.T) {
	n, bus, _ := newTestNotifier(t)

	var got []string
	err := n.ServeCommands(context.Background(), func(_ context.Context, line string) (string, error) {
		got = append(got, line)
		if line == "/bogus" {
			return "", errors.New("unknown command")
		}
		return "ok", nil
	})
	if err != nil {
		t.Fatalf("ServeCommands() error = %v", err)
	}

	h := bus.handler("test/supervisor/command")
	if h == nil {
		t.Fatal("command topic not subscribed")
	}
	for _, payload := range []string{" /list\n", "", "/bogus"} {
		if err := h("test/supervisor/command", []byte(payload)); err != nil {
			t.Errorf("handler(%q) error = %v", payload, err)
		}
	}
	if len(got) != 2 || got[0] != "/list" || got[1] != "/bogus" {
		t.Errorf("commands = %q", got)
	}
}
