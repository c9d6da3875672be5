package checklist

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/wschoenell/chimera-manager/internal/capability"
)

// capCheck records the set it was bound with.
type capCheck struct {
	condCheck
	requires []string
	binds    int
}

func (c *capCheck) Requires() []string { return c.requires }
func (c *capCheck) Bind(set capability.Set) {
	c.binds++
	c.Bound.Bind(set)
}

type silentNotifier struct{}

func (silentNotifier) Broadcast(context.Context, string)              {}
func (silentNotifier) BroadcastPhoto(context.Context, string, string) {}
func (silentNotifier) Ask(context.Context, string, time.Duration) (string, bool) {
	return "", false
}

func TestRegistry_Lookup(t *testing.T) {
	r := NewRegistry()
	r.RegisterCheck("cond", &condCheck{})
	r.RegisterResponse("act", &recordingResponse{})

	if _, err := r.CheckHandler("cond"); err != nil {
		t.Errorf("CheckHandler(cond) error = %v", err)
	}
	if _, err := r.CheckHandler("act"); !errors.Is(err, ErrHandlerNotFound) {
		t.Errorf("CheckHandler(act) error = %v, want ErrHandlerNotFound", err)
	}
	if _, err := r.ResponseHandler("cond"); !errors.Is(err, ErrHandlerNotFound) {
		t.Errorf("ResponseHandler(cond) error = %v, want ErrHandlerNotFound", err)
	}
	if kinds := r.CheckKinds(); !reflect.DeepEqual(kinds, []string{"cond"}) {
		t.Errorf("CheckKinds = %v", kinds)
	}
	if kinds := r.ResponseKinds(); !reflect.DeepEqual(kinds, []string{"act"}) {
		t.Errorf("ResponseKinds = %v", kinds)
	}
}

func TestRegistry_BindFailsClosed(t *testing.T) {
	r := NewRegistry()
	h := &capCheck{requires: []string{capability.NameNotifier, capability.NameDome}}
	r.RegisterCheck("needs", h)

	lookup := capability.NewStatic(map[string]any{capability.NameNotifier: silentNotifier{}})
	missing := r.Bind(context.Background(), lookup)

	if !reflect.DeepEqual(missing, []string{capability.NameDome}) {
		t.Errorf("missing = %v, want [dome]", missing)
	}
	if _, ok := h.Caps().Notifier(); !ok {
		t.Error("notifier not bound")
	}
	if _, ok := h.Caps().Dome(); ok {
		t.Error("dome should be missing")
	}

	// Rebinding after the dome appears picks it up.
	lookup.Put(capability.NameDome, "wrong type")
	if missing := r.Bind(context.Background(), lookup); len(missing) != 0 {
		t.Errorf("missing = %v after Put", missing)
	}
	if _, ok := h.Caps().Dome(); ok {
		t.Error("a value of the wrong type must not be bound")
	}
	if h.binds != 2 {
		t.Errorf("binds = %d, want 2", h.binds)
	}
}

func TestRegistry_ValidateItem(t *testing.T) {
	r := NewRegistry()
	r.RegisterCheck("cond", &condCheck{})
	r.RegisterResponse("act", &recordingResponse{})

	tests := []struct {
		name    string
		item    Item
		wantErr error
	}{
		{"valid", Item{Name: "ok", Checks: []Check{cond("x", true)}, Responses: []Response{act("y")}}, nil},
		{"no name", Item{}, ErrInvalidItem},
		{"unknown check", Item{Name: "n", Checks: []Check{{Kind: "nope"}}}, ErrHandlerNotFound},
		{"unknown response", Item{Name: "n", Responses: []Response{{Kind: "nope"}}}, ErrHandlerNotFound},
		{"unused param", Item{Name: "n", Checks: []Check{{Kind: "cond", Params: Params{"bogus": 1}}}}, ErrInvalidParams},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := r.ValidateItem(&tt.item)
			if tt.wantErr == nil {
				if err != nil {
					t.Fatalf("ValidateItem error = %v", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("ValidateItem error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}
