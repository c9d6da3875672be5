package checklist

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/wschoenell/chimera-manager/internal/infrastructure/database"
	"github.com/wschoenell/chimera-manager/migrations"
)

func setupRepo(t *testing.T) *SQLiteRepository {
	t.Helper()
	db, err := database.OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	t.Cleanup(func() { db.Close() }) //nolint:errcheck // Test cleanup
	if err := db.Migrate(context.Background(), migrations.FS); err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	return NewSQLiteRepository(db.DB)
}

// condParams drives the test check handler.
type condParams struct {
	Name    string `param:"name"`
	Trigger bool   `param:"trigger"`
	Status  int    `param:"status"`
	Fail    bool   `param:"fail"`
	Panic   bool   `param:"panic"`
	Block   bool   `param:"block"`
	Mark    bool   `param:"mark"`
	Clear   bool   `param:"clear"`
}

// condCheck is a check handler whose outcome comes from its params.
type condCheck struct {
	Bound
	mu    sync.Mutex
	calls []string
}

func (c *condCheck) Requires() []string { return nil }
func (c *condCheck) NewParams() any     { return &condParams{} }

func (c *condCheck) Process(ctx context.Context, _ *Check, params any) (Result, error) {
	p := params.(*condParams)
	c.mu.Lock()
	c.calls = append(c.calls, p.Name)
	c.mu.Unlock()

	switch {
	case p.Panic:
		panic("boom")
	case p.Fail:
		return Result{}, errors.New("sensor offline")
	case p.Block:
		<-ctx.Done()
		return Result{}, ctx.Err()
	}

	res := Result{Triggered: p.Trigger, Status: Status(p.Status), Message: p.Name}
	switch {
	case p.Mark:
		res.Reference = ReferenceMark
	case p.Clear:
		res.Reference = ReferenceClear
	}
	return res, nil
}

func (c *condCheck) Calls() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.calls...)
}

type actParams struct {
	Name  string `param:"name"`
	Fail  bool   `param:"fail"`
	Abort bool   `param:"abort"`
}

// recordingResponse records every response it runs.
type recordingResponse struct {
	Bound
	mu      sync.Mutex
	calls   []string
	onAbort func()
}

func (r *recordingResponse) Requires() []string { return nil }
func (r *recordingResponse) NewParams() any     { return &actParams{} }

func (r *recordingResponse) Process(_ context.Context, _ *Response, params any) error {
	p := params.(*actParams)
	r.mu.Lock()
	r.calls = append(r.calls, p.Name)
	r.mu.Unlock()
	if p.Abort && r.onAbort != nil {
		r.onAbort()
	}
	if p.Fail {
		return errors.New("actuator jammed")
	}
	return nil
}

func (r *recordingResponse) Calls() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.calls...)
}

type harness struct {
	repo     *SQLiteRepository
	registry *Registry
	eval     *Evaluator
	check    *condCheck
	resp     *recordingResponse
	clock    time.Time
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		repo:     setupRepo(t),
		registry: NewRegistry(),
		check:    &condCheck{},
		resp:     &recordingResponse{},
		clock:    time.Date(2026, 10, 16, 23, 0, 0, 0, time.UTC),
	}
	h.registry.RegisterCheck("cond", h.check)
	h.registry.RegisterResponse("act", h.resp)
	h.eval = NewEvaluator(h.repo, h.registry, nil)
	h.eval.SetClock(func() time.Time { return h.clock })
	return h
}

func (h *harness) advance(d time.Duration) {
	h.clock = h.clock.Add(d)
}

func cond(name string, trigger bool, extra ...any) Check {
	p := Params{"name": name, "trigger": trigger}
	for i := 0; i+1 < len(extra); i += 2 {
		p[extra[i].(string)] = extra[i+1]
	}
	return Check{Kind: "cond", Params: p}
}

func act(name string, extra ...any) Response {
	p := Params{"name": name}
	for i := 0; i+1 < len(extra); i += 2 {
		p[extra[i].(string)] = extra[i+1]
	}
	return Response{Kind: "act", Params: p}
}

func (h *harness) save(t *testing.T, it Item) *Item {
	t.Helper()
	if err := h.repo.Save(context.Background(), &it); err != nil {
		t.Fatalf("Save(%s): %v", it.Name, err)
	}
	return &it
}

func (h *harness) get(t *testing.T, name string) *Item {
	t.Helper()
	it, err := h.repo.GetByName(context.Background(), name)
	if err != nil {
		t.Fatalf("GetByName(%s): %v", name, err)
	}
	return it
}

// recordingObserver captures evaluator events.
type recordingObserver struct {
	mu     sync.Mutex
	events []string
}

func (o *recordingObserver) add(s string) {
	o.mu.Lock()
	o.events = append(o.events, s)
	o.mu.Unlock()
}

func (o *recordingObserver) CheckBegin(it *Item) { o.add("begin:" + it.Name) }
func (o *recordingObserver) CheckComplete(it *Item, s Status, _ error) {
	o.add("complete:" + it.Name + ":" + s.String())
}
func (o *recordingObserver) ItemStatusChanged(it *Item, from, to Status) {
	o.add("changed:" + it.Name + ":" + from.String() + ">" + to.String())
}
func (o *recordingObserver) ItemResponseBegin(it *Item) { o.add("respond:" + it.Name) }
func (o *recordingObserver) ItemResponseComplete(it *Item, err error) {
	if err != nil {
		o.add("responded:" + it.Name + ":error")
		return
	}
	o.add("responded:" + it.Name)
}
