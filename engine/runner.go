package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"gitlab.com/caseflow-workflow/caseflow/common/logx"
	"gitlab.com/caseflow-workflow/caseflow/model"
	errors2 "gitlab.com/caseflow-workflow/caseflow/server/errors"
	"gitlab.com/caseflow-workflow/caseflow/server/errors/keys"
	"gitlab.com/caseflow-workflow/caseflow/store"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// eventKind enumerates the events a case accepts.  Timer expiry is
// system-originated but flows through the same queue as external events, so
// it can never race an in-flight transition.
type eventKind int

const (
	evLaunch eventKind = iota
	evStartItem
	evCompleteItem
	evForceCompleteItem
	evFailItem
	evSuspendItem
	evResumeItem
	evAddInstance
	evTimerExpired
	evCancelCase
	evSuspendCase
	evResumeCase
)

// String returns the transition-record kind for an event.
func (k eventKind) String() string {
	switch k {
	case evLaunch:
		return "case.launch"
	case evStartItem:
		return "workItem.start"
	case evCompleteItem:
		return "workItem.complete"
	case evForceCompleteItem:
		return "workItem.forceComplete"
	case evFailItem:
		return "workItem.fail"
	case evSuspendItem:
		return "workItem.suspend"
	case evResumeItem:
		return "workItem.resume"
	case evAddInstance:
		return "workItem.addInstance"
	case evTimerExpired:
		return "timer.expired"
	case evCancelCase:
		return "case.cancel"
	case evSuspendCase:
		return "case.suspend"
	case evResumeCase:
		return "case.resume"
	default:
		return fmt.Sprintf("event(%d)", int(k))
	}
}

type eventResult struct {
	err    error
	itemID string
}

// caseEvent is one serialized unit of work for a case.  A non-nil query runs
// read-only against the current state and is never persisted.  A teardown
// event discards the case from memory without persisting anything; it is only
// legal while nothing about the case has ever been persisted.
type caseEvent struct {
	kind        eventKind
	itemID      string
	participant string
	data        []byte
	reason      string
	query       func(*caseState)
	teardown    bool
	done        chan eventResult
}

// caseRunner is the single serialization context for one case: all mutating
// events for the case pass through its queue and are applied one at a time.
type caseRunner struct {
	e      *Engine
	caseID string
	events chan *caseEvent
	quit   chan struct{}
	state  *caseState
	timers map[string]*time.Timer
}

func newCaseRunner(e *Engine, state *caseState) *caseRunner {
	return &caseRunner{
		e:      e,
		caseID: state.caseID,
		events: make(chan *caseEvent, 64),
		quit:   make(chan struct{}),
		state:  state,
		timers: make(map[string]*time.Timer),
	}
}

func (r *caseRunner) run() {
	defer r.e.wg.Done()
	for {
		select {
		case ev := <-r.events:
			r.dispatch(ev)
			if r.state.status.Terminal() {
				r.retire()
				return
			}
		case <-r.e.closing:
			r.stopTimers()
			return
		}
	}
}

// retire drains the queue after the case reached a terminal status, then
// removes the runner.  Late events are rejected, not lost in a blocked queue.
func (r *caseRunner) retire() {
	r.stopTimers()
	close(r.quit)
	r.e.removeRunner(r.caseID)
	for {
		select {
		case ev := <-r.events:
			reply(ev, eventResult{err: fmt.Errorf("case %s is %s: %w", r.caseID, r.state.status, errors2.ErrCaseNotRunning)})
		default:
			return
		}
	}
}

func (r *caseRunner) dispatch(ev *caseEvent) {
	ctx, log := logx.ContextWith(context.Background(), "engine.case")
	log = log.With(slog.String(keys.CaseID, r.caseID), slog.String(keys.EventKind, ev.kind.String()))
	ctx = logx.NewContext(ctx, log)

	if ev.teardown {
		// The run loop sees the terminal status and retires the runner.
		r.state.status = model.CaseCancelled
		reply(ev, eventResult{})
		return
	}
	if ev.query != nil {
		ev.query(r.state)
		reply(ev, eventResult{})
		return
	}

	ctx, span := r.e.tr.Start(ctx, "case.event", trace.WithAttributes(
		attribute.String(keys.CaseID, r.caseID),
		attribute.String(keys.EventKind, ev.kind.String()),
	))
	defer span.End()

	res := r.process(ctx, ev)
	if res.err != nil {
		span.RecordError(res.err)
		log.Debug("event rejected or failed case", slog.Any("error", res.err))
	}
	reply(ev, res)
}

func (r *caseRunner) process(ctx context.Context, ev *caseEvent) eventResult {
	if err := r.admissible(ev); err != nil {
		if ev.kind == evTimerExpired {
			// The timer has fired, so its entry must go: armTimers on resume
			// then re-arms the deadline and redelivers immediately, matching
			// what Recover does after a restart.
			delete(r.timers, ev.itemID)
		}
		return eventResult{err: err}
	}

	next := r.state.clone()
	n := &notices{}
	itemID, aerr := next.apply(ctx, r.e.deps, ev, n)

	if aerr != nil && !errors2.IsCaseFatal(aerr) {
		// Recoverable rejection: the case is unaffected and the error is
		// returned synchronously to the event's originator.
		return eventResult{err: aerr}
	}
	if aerr != nil {
		// Case-fatal: discard the partial mutation and fail the case from the
		// pre-event state, so no half-applied transition survives.
		next = r.state.clone()
		n = &notices{}
		next.status = model.CaseFailed
		next.failure = aerr.Error()
		n.exception(r.caseID, ev.itemID, aerr.Error())
		n.failed(r.caseID, aerr.Error())
	}

	snap, serr := next.snapshot(ctx)
	if serr != nil {
		return eventResult{err: fmt.Errorf("snapshot case %s: %w", r.caseID, serr)}
	}
	rec := &store.TransitionRecord{
		CaseID: r.caseID,
		Kind:   ev.kind.String(),
		At:     time.Now().UnixNano(),
		State:  snap,
	}
	if perr := r.e.store.AppendTransition(ctx, r.caseID, rec); perr != nil {
		// The event is rejected and not applied in memory, so in-memory and
		// durable state never diverge.
		_ = logx.Err(ctx, "durability write rejected event", perr, slog.String(keys.CaseID, r.caseID))
		return eventResult{err: fmt.Errorf("append transition for case %s: %w: %w", r.caseID, perr, errors2.ErrPersistenceDegraded)}
	}

	r.state = next
	r.e.reindexItems(next)
	r.armTimers()
	n.emit(ctx, r.e.listeners)
	if next.status.Terminal() {
		if err := r.e.store.ArchiveCase(ctx, r.caseID); err != nil {
			_ = logx.Err(ctx, "archive terminal case", err, slog.String(keys.CaseID, r.caseID))
		}
	}
	return eventResult{err: aerr, itemID: itemID}
}

// admissible gates events against the case status: a suspended case accepts
// only resume and cancel; a terminal case accepts nothing.
func (r *caseRunner) admissible(ev *caseEvent) error {
	switch r.state.status {
	case model.CaseSuspended:
		if ev.kind != evResumeCase && ev.kind != evCancelCase {
			return fmt.Errorf("case %s is suspended: %w", r.caseID, errors2.ErrCaseNotRunning)
		}
	case model.CaseCompleted, model.CaseCancelled, model.CaseFailed:
		return fmt.Errorf("case %s is %s: %w", r.caseID, r.state.status, errors2.ErrCaseNotRunning)
	}
	return nil
}

// armTimers reconciles the running deadline timers with the live work items.
func (r *caseRunner) armTimers() {
	want := r.state.deadlines()
	for id, t := range r.timers {
		if _, ok := want[id]; !ok {
			t.Stop()
			delete(r.timers, id)
		}
	}
	for id, at := range want {
		if _, ok := r.timers[id]; ok {
			continue
		}
		itemID := id
		d := time.Until(at)
		if d < 0 {
			d = 0
		}
		r.timers[itemID] = time.AfterFunc(d, func() {
			ev := &caseEvent{kind: evTimerExpired, itemID: itemID, done: make(chan eventResult, 1)}
			select {
			case r.events <- ev:
			case <-r.quit:
			case <-r.e.closing:
			}
		})
	}
}

func (r *caseRunner) stopTimers() {
	for id, t := range r.timers {
		t.Stop()
		delete(r.timers, id)
	}
}

func reply(ev *caseEvent, res eventResult) {
	if ev.done != nil {
		ev.done <- res
	}
}

// apply routes one event to the life-cycle and interpreter operations.
func (c *caseState) apply(ctx context.Context, d *deps, ev *caseEvent, n *notices) (string, error) {
	switch ev.kind {
	case evLaunch:
		return "", c.launch(ctx, d, ev.data, n)
	case evStartItem:
		return "", c.startItem(ctx, d, ev.itemID, ev.participant, n)
	case evCompleteItem:
		if err := c.completeItem(ctx, d, ev.itemID, ev.data, model.ItemComplete, n); err != nil {
			return "", err
		}
		return "", nil
	case evForceCompleteItem:
		return "", c.completeItem(ctx, d, ev.itemID, ev.data, model.ItemForcedComplete, n)
	case evFailItem:
		return "", c.failItem(ev.itemID, ev.reason, n)
	case evSuspendItem:
		return "", c.suspendItem(ev.itemID)
	case evResumeItem:
		return "", c.resumeItem(ev.itemID)
	case evAddInstance:
		return c.addInstance(ev.itemID, n)
	case evTimerExpired:
		return "", c.timerExpired(ctx, d, ev.itemID, n)
	case evCancelCase:
		c.cancelCase(n)
		return "", nil
	case evSuspendCase:
		c.status = model.CaseSuspended
		return "", nil
	case evResumeCase:
		c.status = model.CaseRunning
		return "", c.finish(ctx, d, n)
	default:
		return "", fmt.Errorf("unknown event kind %d: %w", ev.kind, errors2.ErrElementNotFound)
	}
}
