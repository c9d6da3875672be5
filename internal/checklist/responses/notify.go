package responses

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/wschoenell/chimera-manager/internal/capability"
	"github.com/wschoenell/chimera-manager/internal/checklist"
)

// AnswerLock is the question answer that locks the configured instrument.
const AnswerLock = "lock"

// defaultAnswer is assumed when nobody answers in time.
const defaultAnswer = "No"

// MessageParams configures send_message.
type MessageParams struct {
	Message string `param:"message"`
}

// Validate implements checklist.Validator.
func (p *MessageParams) Validate() error {
	if p.Message == "" {
		return errors.New("message is required")
	}
	return nil
}

// MessageResponse broadcasts a fixed message.
type MessageResponse struct {
	checklist.Bound
}

// Requires implements checklist.Binder.
func (h *MessageResponse) Requires() []string {
	return []string{capability.NameNotifier}
}

// NewParams implements checklist.ResponseHandler.
func (h *MessageResponse) NewParams() any { return &MessageParams{} }

// Process implements checklist.ResponseHandler.
func (h *MessageResponse) Process(ctx context.Context, _ *checklist.Response, params any) error {
	p := params.(*MessageParams)
	n, ok := h.Caps().Notifier()
	if !ok {
		return missing(capability.NameNotifier)
	}
	n.Broadcast(ctx, p.Message)
	return nil
}

// PhotoParams configures send_photo.
type PhotoParams struct {
	Path    string `param:"path"`
	Caption string `param:"caption"`
}

// Validate implements checklist.Validator.
func (p *PhotoParams) Validate() error {
	if p.Path == "" {
		return errors.New("path is required")
	}
	return nil
}

// PhotoResponse broadcasts an image, typically an all-sky camera frame.
type PhotoResponse struct {
	checklist.Bound
}

// Requires implements checklist.Binder.
func (h *PhotoResponse) Requires() []string {
	return []string{capability.NameNotifier}
}

// NewParams implements checklist.ResponseHandler.
func (h *PhotoResponse) NewParams() any { return &PhotoParams{} }

// Process implements checklist.ResponseHandler.
func (h *PhotoResponse) Process(ctx context.Context, _ *checklist.Response, params any) error {
	p := params.(*PhotoParams)
	n, ok := h.Caps().Notifier()
	if !ok {
		return missing(capability.NameNotifier)
	}
	n.BroadcastPhoto(ctx, p.Path, p.Caption)
	return nil
}

// QuestionParams configures question. LockInstrument and LockKey are both
// needed for a "lock" answer to take effect.
type QuestionParams struct {
	Question       string        `param:"question"`
	WaitTime       time.Duration `param:"wait_time"`
	LockInstrument string        `param:"lock_instrument"`
	LockKey        string        `param:"lock_key"`
}

// Validate implements checklist.Validator.
func (p *QuestionParams) Validate() error {
	if p.Question == "" {
		return errors.New("question is required")
	}
	if p.WaitTime < 0 {
		return errors.New("wait_time must not be negative")
	}
	return nil
}

// QuestionResponse asks the operators and acts on the answer.
type QuestionResponse struct {
	checklist.Bound
	sup         Supervisor
	defaultWait time.Duration
}

// Requires implements checklist.Binder.
func (h *QuestionResponse) Requires() []string {
	return []string{capability.NameNotifier}
}

// NewParams implements checklist.ResponseHandler.
func (h *QuestionResponse) NewParams() any { return &QuestionParams{} }

// SelfTimed implements checklist.SelfTimed; the wait is bounded by WaitTime.
func (h *QuestionResponse) SelfTimed() bool { return true }

// Process implements checklist.ResponseHandler.
func (h *QuestionResponse) Process(ctx context.Context, _ *checklist.Response, params any) error {
	p := params.(*QuestionParams)
	n, ok := h.Caps().Notifier()
	if !ok {
		return missing(capability.NameNotifier)
	}

	wait := p.WaitTime
	if wait <= 0 {
		wait = h.defaultWait
	}
	answer, ok := n.Ask(ctx, p.Question, wait)
	if !ok {
		answer = defaultAnswer
	}
	answer = strings.TrimSpace(answer)
	n.Broadcast(ctx, fmt.Sprintf("answer to %q: %s", p.Question, answer))

	if !strings.EqualFold(answer, AnswerLock) || p.LockInstrument == "" || p.LockKey == "" {
		return nil
	}
	if err := h.sup.LockInstrument(ctx, p.LockInstrument, p.LockKey); err != nil {
		return fmt.Errorf("locking %s on operator request: %w", p.LockInstrument, err)
	}
	n.Broadcast(ctx, fmt.Sprintf("%s locked with key %s", p.LockInstrument, p.LockKey))
	return nil
}
