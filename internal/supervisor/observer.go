package supervisor

import (
	"context"
	"fmt"

	"github.com/wschoenell/chimera-manager/internal/checklist"
)

// passObserver turns evaluator events into metrics, history and broadcasts.
type passObserver struct {
	checklist.NopObserver
	s *Supervisor
}

func (o *passObserver) CheckComplete(it *checklist.Item, status checklist.Status, err error) {
	o.s.metrics.observeEvaluation(status)
	if o.s.recorder != nil {
		o.s.recorder.RecordItem(it, status, o.s.now())
	}
	if err != nil && status == checklist.StatusError {
		o.s.Broadcast(context.Background(), fmt.Sprintf("%s: check failed: %v", it.Name, err))
	}
}

func (o *passObserver) ItemStatusChanged(it *checklist.Item, from, to checklist.Status) {
	o.s.Broadcast(context.Background(), fmt.Sprintf("%s: %s -> %s", it.Name, from, to))
	if o.s.publisher != nil {
		o.s.publisher.Publish(EventItemStatus, map[string]string{
			"item": it.Name,
			"from": from.String(),
			"to":   to.String(),
		})
	}
}

func (o *passObserver) ItemResponseComplete(it *checklist.Item, err error) {
	if err == nil {
		return
	}
	o.s.metrics.observeResponseFailure(it.Name)
	o.s.Broadcast(context.Background(), fmt.Sprintf("%s: response failed: %v", it.Name, err))
}
