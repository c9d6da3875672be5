package checks

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/wschoenell/chimera-manager/internal/checklist"
)

const defaultDialTimeout = 5 * time.Second

// NetworkParams configures a connectivity beacon check.
type NetworkParams struct {
	Address string        `param:"address"`
	Timeout time.Duration `param:"timeout"`
	// Unreachable selects the triggering state; defaults to true.
	Unreachable *bool         `param:"unreachable"`
	Duration    time.Duration `param:"duration"`
}

// Validate implements checklist.Validator.
func (p *NetworkParams) Validate() error {
	if _, _, err := net.SplitHostPort(p.Address); err != nil {
		return fmt.Errorf("address must be host:port: %w", err)
	}
	if p.Timeout < 0 {
		return errors.New("timeout must not be negative")
	}
	return nil
}

// NetworkCheck dials a TCP beacon to detect loss of connectivity.
type NetworkCheck struct {
	checklist.Bound
	now  func() time.Time
	dial func(ctx context.Context, network, address string) (net.Conn, error)
}

// NewNetworkCheck creates a connectivity check.
func NewNetworkCheck(now func() time.Time) *NetworkCheck {
	if now == nil {
		now = time.Now
	}
	var d net.Dialer
	return &NetworkCheck{now: now, dial: d.DialContext}
}

// Requires implements checklist.Binder.
func (c *NetworkCheck) Requires() []string { return nil }

// NewParams implements checklist.CheckHandler.
func (c *NetworkCheck) NewParams() any { return &NetworkParams{} }

// Process implements checklist.CheckHandler.
func (c *NetworkCheck) Process(ctx context.Context, chk *checklist.Check, params any) (checklist.Result, error) {
	p := params.(*NetworkParams)

	timeout := p.Timeout
	if timeout == 0 {
		timeout = defaultDialTimeout
	}
	dctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	reachable := true
	conn, err := c.dial(dctx, "tcp", p.Address)
	if err != nil {
		reachable = false
	} else {
		conn.Close() //nolint:errcheck // reachability check only
	}

	wantUnreachable := p.Unreachable == nil || *p.Unreachable
	cond := reachable != wantUnreachable

	triggered, ref := sustain(chk, cond, p.Duration, c.now())
	msg := fmt.Sprintf("%s reachable", p.Address)
	if !reachable {
		msg = fmt.Sprintf("%s unreachable: %v", p.Address, err)
	}
	return checklist.Result{Triggered: triggered, Status: checklist.StatusOK, Message: msg, Reference: ref}, nil
}
