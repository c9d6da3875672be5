package checklist

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// PassSummary describes one evaluation pass.
type PassSummary struct {
	Items      int
	Triggered  int
	Dispatched int
	Errors     int
	Aborted    bool
	Duration   time.Duration
}

// Evaluator runs the monitored items: checks, decision, responses and
// status stamping.
//
// Thread Safety: Run and RunAction may be called concurrently; each call
// works on its own copy of the items.
type Evaluator struct {
	repo           Repository
	registry       *Registry
	logger         Logger
	observer       Observer
	aborted        func() bool
	now            func() time.Time
	handlerTimeout time.Duration
}

// NewEvaluator creates an evaluator.
//
// Parameters:
//   - repo: Item persistence
//   - registry: Handler registry, already bound to capabilities
//   - logger: Logger instance (may be nil)
func NewEvaluator(repo Repository, registry *Registry, logger Logger) *Evaluator {
	if logger == nil {
		logger = noopLogger{}
	}
	return &Evaluator{
		repo:     repo,
		registry: registry,
		logger:   logger,
		observer: NopObserver{},
		now:      time.Now,
	}
}

// SetObserver registers the event observer.
func (e *Evaluator) SetObserver(o Observer) {
	if o == nil {
		o = NopObserver{}
	}
	e.observer = o
}

// SetAbort registers the abort flag. It is polled before and between
// checks, before and between responses, and between items.
func (e *Evaluator) SetAbort(aborted func() bool) {
	e.aborted = aborted
}

// SetClock replaces the time source. Intended for tests.
func (e *Evaluator) SetClock(now func() time.Time) {
	e.now = now
}

// SetHandlerTimeout bounds each check and response call. Zero disables it.
func (e *Evaluator) SetHandlerTimeout(d time.Duration) {
	e.handlerTimeout = d
}

// Run makes one pass over the active items in id order.
//
// An item whose check fails is recorded as ERROR and the pass continues.
// If the abort flag is raised the current item is recorded as ABORTED and
// Run returns ErrCheckAborted.
func (e *Evaluator) Run(ctx context.Context) (PassSummary, error) {
	start := time.Now()
	var summary PassSummary

	items, err := e.repo.ListActive(ctx)
	if err != nil {
		summary.Duration = time.Since(start)
		return summary, fmt.Errorf("loading active items: %w", err)
	}

	for i := range items {
		it := &items[i]
		summary.Items++

		o, err := e.evaluate(ctx, it)
		if o.triggered {
			summary.Triggered++
		}
		if o.dispatched {
			summary.Dispatched++
		}
		if errors.Is(err, ErrCheckAborted) {
			summary.Aborted = true
			summary.Duration = time.Since(start)
			e.logger.Info("checklist pass aborted", "item", it.Name)
			return summary, err
		}
		if err != nil {
			summary.Errors++
		}
	}

	summary.Duration = time.Since(start)
	e.logger.Debug("checklist pass complete",
		"items", summary.Items,
		"triggered", summary.Triggered,
		"dispatched", summary.Dispatched,
		"errors", summary.Errors,
		"duration_ms", summary.Duration.Milliseconds(),
	)
	return summary, nil
}

// RunAction runs the response chain of the named item without evaluating
// its checks. It works on inactive items, ignores the abort flag and
// stamps LastChange.
func (e *Evaluator) RunAction(ctx context.Context, name string) error {
	it, err := e.repo.GetByName(ctx, name)
	if err != nil {
		return err
	}

	now := e.now().UTC()
	e.logger.Info("running item responses", "item", it.Name, "responses", len(it.Responses))

	e.observer.ItemResponseBegin(it)
	respErr := e.runResponses(ctx, it, false)
	e.observer.ItemResponseComplete(it, respErr)

	e.record(ctx, it, it.Status, now, &now)
	return respErr
}

type outcome struct {
	triggered  bool
	dispatched bool
}

// evaluate runs one item through checks, decision and responses.
func (e *Evaluator) evaluate(ctx context.Context, it *Item) (outcome, error) { //nolint:gocognit // linear state sequence
	var o outcome
	now := e.now().UTC()

	if e.isAborted(ctx) {
		return o, e.abort(ctx, it, now)
	}

	e.observer.CheckBegin(it)
	result, err := e.runChecks(ctx, it)
	if errors.Is(err, ErrCheckAborted) {
		return o, e.abort(ctx, it, now)
	}
	if err != nil {
		e.logger.Error("check failed", "item", it.Name, "error", err)
		e.record(ctx, it, StatusError, now, nil)
		e.observer.CheckComplete(it, StatusError, err)
		return o, err
	}

	if !result.Triggered {
		e.record(ctx, it, StatusUnset, now, nil)
		e.observer.CheckComplete(it, StatusUnset, nil)
		return o, nil
	}

	o.triggered = true
	status := result.Status
	if status == StatusUnknown {
		status = StatusOK
	}
	e.observer.CheckComplete(it, status, nil)

	if !it.Eager && status == it.Status {
		e.logger.Debug("item unchanged, responses skipped", "item", it.Name, "status", status)
		e.record(ctx, it, status, now, nil)
		return o, nil
	}

	if e.isAborted(ctx) {
		return o, e.abort(ctx, it, now)
	}

	if status != it.Status {
		e.logger.Info("item status changed", "item", it.Name, "from", it.Status, "to", status, "message", result.Message)
		e.observer.ItemStatusChanged(it, it.Status, status)
	}

	o.dispatched = true
	e.observer.ItemResponseBegin(it)
	respErr := e.runResponses(ctx, it, true)
	if errors.Is(respErr, ErrCheckAborted) {
		e.observer.ItemResponseComplete(it, respErr)
		return o, e.abort(ctx, it, now)
	}
	e.observer.ItemResponseComplete(it, respErr)

	e.record(ctx, it, status, now, &now)
	return o, respErr
}

// runChecks runs the conjunctive check chain, stopping at the first
// check that does not trigger.
func (e *Evaluator) runChecks(ctx context.Context, it *Item) (Result, error) {
	if len(it.Checks) == 0 {
		return NotTriggered("item has no checks"), nil
	}

	var last Result
	for i := range it.Checks {
		if i > 0 && e.isAborted(ctx) {
			return last, ErrCheckAborted
		}

		chk := &it.Checks[i]
		res, err := e.runCheck(ctx, chk)
		if err != nil {
			return res, fmt.Errorf("%w: item %s check %d (%s): %w", ErrCheckExecution, it.Name, chk.Position, chk.Kind, err)
		}
		e.applyReference(ctx, chk, res.Reference)

		e.logger.Debug("check evaluated",
			"item", it.Name,
			"kind", chk.Kind,
			"triggered", res.Triggered,
			"message", res.Message,
		)
		if !res.Triggered {
			return res, nil
		}
		last = res
	}
	return last, nil
}

func (e *Evaluator) runCheck(ctx context.Context, chk *Check) (res Result, err error) {
	h, params, err := e.registry.DecodeCheck(chk)
	if err != nil {
		return Result{}, err
	}

	hctx, cancel := e.handlerContext(ctx, h)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("check handler %s panicked: %v", chk.Kind, r)
		}
	}()
	return h.Process(hctx, chk, params)
}

// runResponses runs the response chain. With honourAbort the abort flag is
// polled before each response.
func (e *Evaluator) runResponses(ctx context.Context, it *Item, honourAbort bool) error {
	var errs []error
	for i := range it.Responses {
		if honourAbort && e.isAborted(ctx) {
			return ErrCheckAborted
		}

		rsp := &it.Responses[i]
		if err := e.runResponse(ctx, rsp); err != nil {
			err = fmt.Errorf("%w: item %s response %d (%s): %w", ErrResponseExecution, it.Name, rsp.Position, rsp.Kind, err)
			errs = append(errs, err)
			e.logger.Error("response failed", "item", it.Name, "kind", rsp.Kind, "error", err)
			if !it.EagerResponse {
				e.logger.Warn("skipping remaining responses", "item", it.Name, "remaining", len(it.Responses)-i-1)
				break
			}
		}
	}
	return errors.Join(errs...)
}

func (e *Evaluator) runResponse(ctx context.Context, rsp *Response) (err error) {
	h, params, err := e.registry.DecodeResponse(rsp)
	if err != nil {
		return err
	}

	hctx, cancel := e.handlerContext(ctx, h)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("response handler %s panicked: %v", rsp.Kind, r)
		}
	}()
	return h.Process(hctx, rsp, params)
}

func (e *Evaluator) handlerContext(ctx context.Context, h any) (context.Context, context.CancelFunc) {
	if st, ok := h.(SelfTimed); ok && st.SelfTimed() {
		return context.WithCancel(ctx)
	}
	if e.handlerTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, e.handlerTimeout)
}

func (e *Evaluator) applyReference(ctx context.Context, chk *Check, action ReferenceAction) {
	var ref *time.Time
	switch action {
	case ReferenceMark:
		if chk.ReferenceTime != nil {
			return
		}
		now := e.now().UTC()
		ref = &now
	case ReferenceClear:
		if chk.ReferenceTime == nil {
			return
		}
	default:
		return
	}

	chk.ReferenceTime = ref
	if err := e.repo.UpdateCheckReference(context.WithoutCancel(ctx), chk.ID, ref); err != nil {
		e.logger.Error("persisting check reference time failed", "check_id", chk.ID, "error", err)
	}
}

func (e *Evaluator) isAborted(ctx context.Context) bool {
	if ctx.Err() != nil {
		return true
	}
	return e.aborted != nil && e.aborted()
}

func (e *Evaluator) abort(ctx context.Context, it *Item, now time.Time) error {
	e.record(ctx, it, StatusAborted, now, nil)
	e.observer.CheckComplete(it, StatusAborted, ErrCheckAborted)
	return ErrCheckAborted
}

// record stamps the evaluation outcome. Writes survive a cancelled ctx so
// an aborted pass still leaves an accurate trail.
func (e *Evaluator) record(ctx context.Context, it *Item, status Status, now time.Time, lastChange *time.Time) {
	if err := e.repo.UpdateStatus(context.WithoutCancel(ctx), it.ID, status, now, lastChange); err != nil {
		e.logger.Error("recording item status failed", "item", it.Name, "status", status, "error", err)
		return
	}
	it.Status = status
	it.LastUpdate = &now
	if lastChange != nil {
		it.LastChange = lastChange
	}
}
