package capability

import (
	"context"
	"fmt"
	"sync"
)

// Lookup resolves a capability name to its implementation.
type Lookup interface {
	Lookup(ctx context.Context, name string) (any, error)
}

// Static is a map-backed Lookup. The zero value is empty and ready to use.
//
// Thread Safety: safe for concurrent use.
type Static struct {
	mu     sync.RWMutex
	values map[string]any
}

// NewStatic creates a Static lookup with the given entries.
func NewStatic(values map[string]any) *Static {
	s := &Static{values: make(map[string]any, len(values))}
	for k, v := range values {
		s.values[k] = v
	}
	return s
}

// Put registers (or replaces) a capability.
func (s *Static) Put(name string, v any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.values == nil {
		s.values = make(map[string]any)
	}
	s.values[name] = v
}

// Remove forgets a capability.
func (s *Static) Remove(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.values, name)
}

// Lookup implements Lookup.
func (s *Static) Lookup(_ context.Context, name string) (any, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[name]
	if !ok || v == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return v, nil
}
