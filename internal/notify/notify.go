package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/wschoenell/chimera-manager/internal/capability"
	"github.com/wschoenell/chimera-manager/internal/infrastructure/mqtt"
)

// DefaultAskTimeout applies when Ask is called with a zero timeout.
const DefaultAskTimeout = time.Minute

// Live event kinds handed to the Publisher.
const (
	EventPhoto    = "photo"
	EventQuestion = "question"
	EventAnswer   = "answer"
)

// Bus is the subset of the MQTT client the notifier uses.
type Bus interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
}

// Publisher streams live events to WebSocket clients.
type Publisher interface {
	Publish(kind string, payload any)
}

// Logger is the subset of logging.Logger the notifier uses.
type Logger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Info(string, ...any) {}
func (noopLogger) Warn(string, ...any) {}

// CommandFunc executes an operator command line.
type CommandFunc func(ctx context.Context, line string) (string, error)

// Message is a broadcast.
type Message struct {
	Message string    `json:"message"`
	Time    time.Time `json:"time"`
}

// Photo is an image broadcast; Path is local to the supervisor host.
type Photo struct {
	Path    string    `json:"path"`
	Caption string    `json:"caption,omitempty"`
	Time    time.Time `json:"time"`
}

// Question is a pending operator question.
type Question struct {
	ID       string    `json:"id"`
	Question string    `json:"question"`
	Asked    time.Time `json:"asked"`
	Deadline time.Time `json:"deadline"`
}

// Answer replies to a Question. An empty ID answers the only pending question.
type Answer struct {
	ID     string `json:"id"`
	Answer string `json:"answer"`
	From   string `json:"from,omitempty"`
}

// Options configures a Notifier. Every field is optional; a Notifier
// without a bus only logs and serves answers given through Answer.
type Options struct {
	Bus            Bus
	Topics         mqtt.Topics
	QoS            byte
	Publisher      Publisher
	DefaultTimeout time.Duration
	Logger         Logger
}

// Notifier implements capability.Notifier.
//
// Thread Safety: all methods are safe for concurrent use.
type Notifier struct {
	bus            Bus
	topics         mqtt.Topics
	qos            byte
	publisher      Publisher
	defaultTimeout time.Duration
	logger         Logger
	now            func() time.Time

	mu      sync.Mutex
	pending map[string]*pendingQuestion
}

type pendingQuestion struct {
	q      Question
	answer chan string
}

var _ capability.Notifier = (*Notifier)(nil)

// New creates a Notifier.
func New(opts Options) *Notifier {
	n := &Notifier{
		bus:            opts.Bus,
		topics:         opts.Topics,
		qos:            opts.QoS,
		publisher:      opts.Publisher,
		defaultTimeout: opts.DefaultTimeout,
		logger:         opts.Logger,
		now:            time.Now,
		pending:        make(map[string]*pendingQuestion),
	}
	if n.defaultTimeout <= 0 {
		n.defaultTimeout = DefaultAskTimeout
	}
	if n.logger == nil {
		n.logger = noopLogger{}
	}
	return n
}

// Start subscribes to the answer topic. It is a no-op without a bus.
func (n *Notifier) Start() error {
	if n.bus == nil {
		return nil
	}
	if err := n.bus.Subscribe(n.topics.Answer(), n.qos, n.handleAnswer); err != nil {
		return fmt.Errorf("subscribing to answers: %w", err)
	}
	return nil
}

// ServeCommands subscribes to the operator command topic and runs each
// line through fn with ctx. Replies are broadcast by fn itself.
func (n *Notifier) ServeCommands(ctx context.Context, fn CommandFunc) error {
	if n.bus == nil {
		return nil
	}
	handler := func(topic string, payload []byte) error {
		line := strings.TrimSpace(string(payload))
		if line == "" {
			return nil
		}
		if _, err := fn(ctx, line); err != nil {
			n.logger.Warn("operator command failed", "command", line, "error", err)
		}
		return nil
	}
	if err := n.bus.Subscribe(n.topics.Command(), n.qos, handler); err != nil {
		return fmt.Errorf("subscribing to commands: %w", err)
	}
	return nil
}

// Broadcast publishes msg to the operators.
func (n *Notifier) Broadcast(_ context.Context, msg string) {
	n.publish(n.topics.Broadcast(), Message{Message: msg, Time: n.now().UTC()})
}

// BroadcastPhoto publishes an image reference to the operators and live clients.
func (n *Notifier) BroadcastPhoto(_ context.Context, path, caption string) {
	p := Photo{Path: path, Caption: caption, Time: n.now().UTC()}
	n.logger.Info("broadcast photo", "path", path, "caption", caption)
	n.publish(n.topics.Photo(), p)
	if n.publisher != nil {
		n.publisher.Publish(EventPhoto, p)
	}
}

// Ask publishes question and waits for an answer. ok is false when the
// timeout expires or ctx ends first.
func (n *Notifier) Ask(ctx context.Context, question string, timeout time.Duration) (string, bool) {
	if timeout <= 0 {
		timeout = n.defaultTimeout
	}
	now := n.now().UTC()
	pq := &pendingQuestion{
		q: Question{
			ID:       uuid.NewString(),
			Question: question,
			Asked:    now,
			Deadline: now.Add(timeout),
		},
		answer: make(chan string, 1),
	}

	n.mu.Lock()
	n.pending[pq.q.ID] = pq
	n.mu.Unlock()
	defer n.forget(pq.q.ID)

	n.logger.Info("asking operators", "id", pq.q.ID, "question", question, "timeout", timeout)
	n.publish(n.topics.Ask(), pq.q)
	if n.publisher != nil {
		n.publisher.Publish(EventQuestion, pq.q)
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case a := <-pq.answer:
		return a, true
	case <-timer.C:
		n.logger.Info("question unanswered", "id", pq.q.ID)
		return "", false
	case <-ctx.Done():
		return "", false
	}
}

// Answer delivers an answer to a pending question.
func (n *Notifier) Answer(a Answer) error {
	text := strings.TrimSpace(a.Answer)
	if text == "" {
		return ErrEmptyAnswer
	}

	n.mu.Lock()
	pq, ok := n.pending[a.ID]
	if !ok && a.ID == "" && len(n.pending) == 1 {
		for _, only := range n.pending {
			pq, ok = only, true
		}
	}
	if ok {
		delete(n.pending, pq.q.ID)
	}
	n.mu.Unlock()

	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownQuestion, a.ID)
	}
	pq.answer <- text

	n.logger.Info("question answered", "id", pq.q.ID, "answer", text, "from", a.From)
	if n.publisher != nil {
		n.publisher.Publish(EventAnswer, Answer{ID: pq.q.ID, Answer: text, From: a.From})
	}
	return nil
}

// Questions returns the pending questions, oldest first.
func (n *Notifier) Questions() []Question {
	n.mu.Lock()
	defer n.mu.Unlock()
	qs := make([]Question, 0, len(n.pending))
	for _, pq := range n.pending {
		qs = append(qs, pq.q)
	}
	sort.Slice(qs, func(i, j int) bool { return qs[i].Asked.Before(qs[j].Asked) })
	return qs
}

func (n *Notifier) forget(id string) {
	n.mu.Lock()
	delete(n.pending, id)
	n.mu.Unlock()
}

func (n *Notifier) handleAnswer(topic string, payload []byte) error {
	var a Answer
	if err := json.Unmarshal(payload, &a); err != nil {
		return fmt.Errorf("decoding answer on %s: %w", topic, err)
	}
	if err := n.Answer(a); err != nil {
		n.logger.Warn("answer dropped", "id", a.ID, "error", err)
	}
	return nil
}

func (n *Notifier) publish(topic string, v any) {
	if n.bus == nil {
		return
	}
	payload, err := json.Marshal(v)
	if err != nil {
		n.logger.Warn("encoding notification failed", "topic", topic, "error", err)
		return
	}
	if err := n.bus.Publish(topic, payload, n.qos, false); err != nil {
		n.logger.Warn("publishing notification failed", "topic", topic, "error", err)
	}
}
