package engine

import (
	"context"

	"gitlab.com/caseflow-workflow/caseflow/model"
)

// Listener receives outbound notifications from the engine.  The engine
// emits; delivery onward (resourcing, UI, protocol adapters) is the
// listener's responsibility.  Implementations are called from the owning
// case's serialization goroutine and must not block.
type Listener interface {
	// WorkItemOffered reports a work item entering the enabled state.
	WorkItemOffered(ctx context.Context, item *model.WorkItem)
	// WorkItemWithdrawn reports a live work item leaving the offered set
	// without being worked: cancellation, dead binding or case cancellation.
	WorkItemWithdrawn(ctx context.Context, item *model.WorkItem)
	// CaseCompleted reports normal case completion with the final data document.
	CaseCompleted(ctx context.Context, caseID string, vars []byte)
	// CaseFailed reports a case-fatal condition.
	CaseFailed(ctx context.Context, caseID string, reason string)
	// ExceptionRaised reports a non-terminal exceptional event, carrying the
	// work item it concerns when there is one.
	ExceptionRaised(ctx context.Context, caseID string, workItemID string, reason string)
}

// notices accumulates the notifications produced while applying one event.
// They are emitted, in order, only after the transition is durably recorded.
type notices struct {
	fns []func(ctx context.Context, l Listener)
}

func (n *notices) offered(item *model.WorkItem) {
	cp := *item
	n.fns = append(n.fns, func(ctx context.Context, l Listener) { l.WorkItemOffered(ctx, &cp) })
}

func (n *notices) withdrawn(item *model.WorkItem) {
	cp := *item
	n.fns = append(n.fns, func(ctx context.Context, l Listener) { l.WorkItemWithdrawn(ctx, &cp) })
}

func (n *notices) completed(caseID string, vars []byte) {
	n.fns = append(n.fns, func(ctx context.Context, l Listener) { l.CaseCompleted(ctx, caseID, vars) })
}

func (n *notices) failed(caseID string, reason string) {
	n.fns = append(n.fns, func(ctx context.Context, l Listener) { l.CaseFailed(ctx, caseID, reason) })
}

func (n *notices) exception(caseID, itemID, reason string) {
	n.fns = append(n.fns, func(ctx context.Context, l Listener) { l.ExceptionRaised(ctx, caseID, itemID, reason) })
}

func (n *notices) emit(ctx context.Context, listeners []Listener) {
	for _, fn := range n.fns {
		for _, l := range listeners {
			fn(ctx, l)
		}
	}
}
