package checklist

import (
	"context"
	"sync/atomic"

	"github.com/wschoenell/chimera-manager/internal/capability"
)

// Binder is the capability side of a handler.
type Binder interface {
	// Requires lists the capability names the handler uses.
	Requires() []string

	// Bind hands the handler its resolved capabilities. It may be called
	// again at any time and must replace the previous set.
	Bind(set capability.Set)
}

// CheckHandler evaluates one kind of check.
type CheckHandler interface {
	Binder

	// NewParams returns a pointer to a zero value of the kind's params struct.
	NewParams() any

	// Process evaluates chk with its decoded params. A returned error means
	// the check could not be evaluated; a false condition is a result, not an error.
	Process(ctx context.Context, chk *Check, params any) (Result, error)
}

// ResponseHandler performs one kind of response.
type ResponseHandler interface {
	Binder

	// NewParams returns a pointer to a zero value of the kind's params struct.
	NewParams() any

	// Process performs resp with its decoded params.
	Process(ctx context.Context, resp *Response, params any) error
}

// SelfTimed is implemented by handlers that bound their own run time through
// their params. The evaluator does not apply its handler timeout to them.
type SelfTimed interface {
	SelfTimed() bool
}

// Bound is an embeddable helper that stores the capability set of a handler.
// Rebinding is safe while a pass is using the handler.
type Bound struct {
	set atomic.Pointer[capability.Set]
}

// Bind implements Binder.
func (b *Bound) Bind(set capability.Set) {
	b.set.Store(&set)
}

// Caps returns the bound capability set, or an empty set before the first Bind.
func (b *Bound) Caps() capability.Set {
	if s := b.set.Load(); s != nil {
		return *s
	}
	return capability.Set{}
}
