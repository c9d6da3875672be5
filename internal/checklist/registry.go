package checklist

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/wschoenell/chimera-manager/internal/capability"
)

// Logger defines the logging interface used by the Registry and Evaluator.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Registry maps check and response kinds to handler instances and binds
// them to capabilities.
//
// Handlers belong to one Registry. Two supervisors in the same process each
// build their own Registry and never share handler state.
//
// All public methods are thread-safe.
type Registry struct {
	mu        sync.RWMutex
	checks    map[string]CheckHandler
	responses map[string]ResponseHandler
	logger    Logger
}

// NewRegistry creates an empty handler registry.
func NewRegistry() *Registry {
	return &Registry{
		checks:    make(map[string]CheckHandler),
		responses: make(map[string]ResponseHandler),
		logger:    noopLogger{},
	}
}

// SetLogger sets the logger for the registry.
func (r *Registry) SetLogger(logger Logger) {
	r.logger = logger
}

// RegisterCheck registers h for kind, replacing any previous handler.
func (r *Registry) RegisterCheck(kind string, h CheckHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.checks[kind]; exists {
		r.logger.Warn("replacing check handler", "kind", kind)
	}
	r.checks[kind] = h
}

// RegisterResponse registers h for kind, replacing any previous handler.
func (r *Registry) RegisterResponse(kind string, h ResponseHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.responses[kind]; exists {
		r.logger.Warn("replacing response handler", "kind", kind)
	}
	r.responses[kind] = h
}

// CheckHandler returns the handler for kind.
func (r *Registry) CheckHandler(kind string) (CheckHandler, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.checks[kind]
	if !ok {
		return nil, fmt.Errorf("%w: check %q", ErrHandlerNotFound, kind)
	}
	return h, nil
}

// ResponseHandler returns the handler for kind.
func (r *Registry) ResponseHandler(kind string) (ResponseHandler, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.responses[kind]
	if !ok {
		return nil, fmt.Errorf("%w: response %q", ErrHandlerNotFound, kind)
	}
	return h, nil
}

// CheckKinds returns the registered check kinds in sorted order.
func (r *Registry) CheckKinds() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	kinds := make([]string, 0, len(r.checks))
	for k := range r.checks {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	return kinds
}

// ResponseKinds returns the registered response kinds in sorted order.
func (r *Registry) ResponseKinds() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	kinds := make([]string, 0, len(r.responses))
	for k := range r.responses {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	return kinds
}

// Bind resolves every capability declared by every handler through lookup
// and hands each handler its set. Unresolvable names are logged and left
// out of the set, so the handler fails closed.
//
// Returns the sorted list of names that could not be resolved.
func (r *Registry) Bind(ctx context.Context, lookup capability.Lookup) []string {
	r.mu.RLock()
	binders := make(map[string]Binder, len(r.checks)+len(r.responses))
	for kind, h := range r.checks {
		binders["check:"+kind] = h
	}
	for kind, h := range r.responses {
		binders["response:"+kind] = h
	}
	r.mu.RUnlock()

	resolved := make(map[string]any)
	failed := make(map[string]bool)
	resolve := func(name string) (any, bool) {
		if v, ok := resolved[name]; ok {
			return v, true
		}
		if failed[name] {
			return nil, false
		}
		v, err := lookup.Lookup(ctx, name)
		if err != nil {
			r.logger.Warn("capability unavailable", "capability", name, "error", err)
			failed[name] = true
			return nil, false
		}
		resolved[name] = v
		return v, true
	}

	for id, b := range binders {
		values := make(map[string]any)
		for _, name := range b.Requires() {
			if v, ok := resolve(name); ok {
				values[name] = v
			}
		}
		set, errs := capability.NewSet(values)
		for _, err := range errs {
			r.logger.Error("capability rejected", "handler", id, "error", err)
		}
		b.Bind(set)
	}

	missing := make([]string, 0, len(failed))
	for name := range failed {
		missing = append(missing, name)
	}
	sort.Strings(missing)
	r.logger.Info("handlers bound", "handlers", len(binders), "missing", missing)
	return missing
}

// DecodeCheck decodes chk's params with its handler's params type.
func (r *Registry) DecodeCheck(chk *Check) (CheckHandler, any, error) {
	h, err := r.CheckHandler(chk.Kind)
	if err != nil {
		return nil, nil, err
	}
	params := h.NewParams()
	if err := chk.Params.Decode(params); err != nil {
		return nil, nil, fmt.Errorf("check %q at position %d: %w", chk.Kind, chk.Position, err)
	}
	return h, params, nil
}

// DecodeResponse decodes resp's params with its handler's params type.
func (r *Registry) DecodeResponse(resp *Response) (ResponseHandler, any, error) {
	h, err := r.ResponseHandler(resp.Kind)
	if err != nil {
		return nil, nil, err
	}
	params := h.NewParams()
	if err := resp.Params.Decode(params); err != nil {
		return nil, nil, fmt.Errorf("response %q at position %d: %w", resp.Kind, resp.Position, err)
	}
	return h, params, nil
}

// ValidateItem checks that every check and response of it has a handler
// and decodable params.
func (r *Registry) ValidateItem(it *Item) error {
	if it.Name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidItem)
	}
	for i := range it.Checks {
		if _, _, err := r.DecodeCheck(&it.Checks[i]); err != nil {
			return fmt.Errorf("%w: %s: %w", ErrInvalidItem, it.Name, err)
		}
	}
	for i := range it.Responses {
		if _, _, err := r.DecodeResponse(&it.Responses[i]); err != nil {
			return fmt.Errorf("%w: %s: %w", ErrInvalidItem, it.Name, err)
		}
	}
	return nil
}
