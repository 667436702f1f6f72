// Package engine executes cases of compiled workflow specifications.  Each
// running case is owned by a single goroutine which applies events one at a
// time, records the resulting state durably, and only then makes it visible.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/segmentio/ksuid"
	"gitlab.com/caseflow-workflow/caseflow/common/cache"
	"gitlab.com/caseflow-workflow/caseflow/common/expression"
	"gitlab.com/caseflow-workflow/caseflow/common/logx"
	"gitlab.com/caseflow-workflow/caseflow/model"
	errors2 "gitlab.com/caseflow-workflow/caseflow/server/errors"
	"gitlab.com/caseflow-workflow/caseflow/server/errors/keys"
	"gitlab.com/caseflow-workflow/caseflow/store"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

// Engine is the case-execution service.  It multiplexes any number of
// concurrent cases, each isolated behind its own runner.
type Engine struct {
	store        store.Store
	deps         *deps
	tr           trace.Tracer
	listeners    []Listener
	mx           sync.RWMutex
	cases        map[string]*caseRunner
	items        map[string]string
	closing      chan struct{}
	closeOnce    sync.Once
	wg           sync.WaitGroup
	recoverLimit int
}

// Option configures an Engine under construction.
type Option func(*Engine)

// WithListener registers a life-cycle listener.  Listeners are called from
// case goroutines after a transition is durably recorded and must not block.
func WithListener(l Listener) Option {
	return func(e *Engine) {
		e.listeners = append(e.listeners, l)
	}
}

// WithExpressionEngine replaces the default expr-lang expression engine.
func WithExpressionEngine(exp expression.Engine) Option {
	return func(e *Engine) {
		e.deps.exp = exp
	}
}

// WithRecoveryConcurrency sets how many cases Recover restores in parallel.
func WithRecoveryConcurrency(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.recoverLimit = n
		}
	}
}

// WithCacheBackend replaces the default ristretto memoization backend.
func WithCacheBackend(b cache.Backend) Option {
	return func(e *Engine) {
		e.deps.memo = cache.New(b)
	}
}

// New creates an engine over the given store.
func New(st store.Store, options ...Option) (*Engine, error) {
	backend, err := cache.NewRistrettoBackend()
	if err != nil {
		return nil, fmt.Errorf("create engine cache backend: %w", err)
	}
	e := &Engine{
		store: st,
		deps: &deps{
			exp:  &expression.ExprEngine{},
			memo: cache.New(backend),
		},
		tr:           otel.Tracer("caseflow-engine"),
		cases:        make(map[string]*caseRunner),
		items:        make(map[string]string),
		closing:      make(chan struct{}),
		recoverLimit: 8,
	}
	for _, o := range options {
		o(e)
	}
	return e, nil
}

// LoadSpecification validates a compiled specification and records it
// durably.  Launching a case references the specification by id.
func (e *Engine) LoadSpecification(ctx context.Context, spec *model.Specification) error {
	if err := spec.Validate(); err != nil {
		return fmt.Errorf("validate specification %s: %w", spec.ID, err)
	}
	if err := e.store.PutSpecification(ctx, spec); err != nil {
		return fmt.Errorf("put specification %s: %w", spec.ID, err)
	}
	return nil
}

// LaunchCase starts a new case of the given specification with the initial
// data document, and returns the new case id.
func (e *Engine) LaunchCase(ctx context.Context, specID string, initial model.Vars) (string, error) {
	spec, err := e.specification(ctx, specID)
	if err != nil {
		return "", err
	}
	var data []byte
	if initial != nil {
		data, err = initial.Encode(ctx)
		if err != nil {
			return "", fmt.Errorf("encode initial case data: %w", err)
		}
	}
	caseID := ksuid.New().String()
	r, err := e.addRunner(newCaseState(caseID, spec))
	if err != nil {
		return "", err
	}
	if _, err := e.send(ctx, r, &caseEvent{kind: evLaunch, data: data}); err != nil {
		// Nothing was persisted, so the case must not linger in memory.  The
		// runner retires itself once the state turns terminal.
		_, _ = e.send(context.Background(), r, &caseEvent{teardown: true})
		return "", fmt.Errorf("launch case %s: %w", caseID, err)
	}
	return caseID, nil
}

// CancelCase cancels a running or suspended case, withdrawing all of its
// live work items.
func (e *Engine) CancelCase(ctx context.Context, caseID string) error {
	return e.submit(ctx, caseID, &caseEvent{kind: evCancelCase})
}

// SuspendCase pauses a running case.  Its state is frozen and only resume or
// cancel are accepted until it runs again.
func (e *Engine) SuspendCase(ctx context.Context, caseID string) error {
	return e.submit(ctx, caseID, &caseEvent{kind: evSuspendCase})
}

// ResumeCase returns a suspended case to the running status.
func (e *Engine) ResumeCase(ctx context.Context, caseID string) error {
	return e.submit(ctx, caseID, &caseEvent{kind: evResumeCase})
}

// StartWorkItem moves an enabled work item into execution on behalf of the
// given participant.
func (e *Engine) StartWorkItem(ctx context.Context, itemID, participant string) error {
	return e.submitItem(ctx, itemID, &caseEvent{kind: evStartItem, itemID: itemID, participant: participant})
}

// CompleteWorkItem completes an executing work item, merging its output into
// the case data document and advancing the case.
func (e *Engine) CompleteWorkItem(ctx context.Context, itemID string, output model.Vars) error {
	data, err := encodeOutput(ctx, output)
	if err != nil {
		return err
	}
	return e.submitItem(ctx, itemID, &caseEvent{kind: evCompleteItem, itemID: itemID, data: data})
}

// ForceCompleteWorkItem administratively completes a work item from any
// non-terminal state, optionally supplying output data.
func (e *Engine) ForceCompleteWorkItem(ctx context.Context, itemID string, output model.Vars) error {
	data, err := encodeOutput(ctx, output)
	if err != nil {
		return err
	}
	return e.submitItem(ctx, itemID, &caseEvent{kind: evForceCompleteItem, itemID: itemID, data: data})
}

// FailWorkItem records an executing work item as failed and fails its case.
func (e *Engine) FailWorkItem(ctx context.Context, itemID, reason string) error {
	return e.submitItem(ctx, itemID, &caseEvent{kind: evFailItem, itemID: itemID, reason: reason})
}

// SuspendWorkItem pauses a live work item, remembering the state it will
// resume into.
func (e *Engine) SuspendWorkItem(ctx context.Context, itemID string) error {
	return e.submitItem(ctx, itemID, &caseEvent{kind: evSuspendItem, itemID: itemID})
}

// ResumeWorkItem returns a suspended work item to its pre-suspension state.
func (e *Engine) ResumeWorkItem(ctx context.Context, itemID string) error {
	return e.submitItem(ctx, itemID, &caseEvent{kind: evResumeItem, itemID: itemID})
}

// AddWorkItemInstance adds one instance to a dynamic multiple-instance work
// item and returns the new child work item id.
func (e *Engine) AddWorkItemInstance(ctx context.Context, parentItemID string) (string, error) {
	caseID, ok := e.caseOfItem(parentItemID)
	if !ok {
		return "", fmt.Errorf("work item %s: %w", parentItemID, errors2.ErrWorkItemNotFound)
	}
	r, ok := e.runner(caseID)
	if !ok {
		return "", fmt.Errorf("case %s for work item %s: %w", caseID, parentItemID, errors2.ErrCaseNotFound)
	}
	res, err := e.send(ctx, r, &caseEvent{kind: evAddInstance, itemID: parentItemID})
	if err != nil {
		return "", err
	}
	return res.itemID, nil
}

// CaseStatus reports the status of a case, live or archived.
func (e *Engine) CaseStatus(ctx context.Context, caseID string) (model.CaseStatus, error) {
	var status model.CaseStatus
	if r, ok := e.runner(caseID); ok {
		_, err := e.send(ctx, r, &caseEvent{query: func(c *caseState) { status = c.status }})
		if err == nil {
			return status, nil
		}
		if !errors.Is(err, errors2.ErrCaseNotRunning) {
			return 0, err
		}
	}
	snap, err := e.store.LoadCaseState(ctx, caseID)
	if err != nil {
		return 0, fmt.Errorf("load case %s: %w", caseID, err)
	}
	return snap.Status, nil
}

// WorkItems returns the live work items of a case, sorted by id.
func (e *Engine) WorkItems(ctx context.Context, caseID string) ([]*model.WorkItem, error) {
	r, ok := e.runner(caseID)
	if !ok {
		return nil, fmt.Errorf("case %s: %w", caseID, errors2.ErrCaseNotFound)
	}
	var items []*model.WorkItem
	_, err := e.send(ctx, r, &caseEvent{query: func(c *caseState) {
		for _, it := range c.liveItems() {
			cp := *it
			items = append(items, &cp)
		}
	}})
	if err != nil {
		return nil, err
	}
	return items, nil
}

// CaseVars returns a copy of a running case's data document.
func (e *Engine) CaseVars(ctx context.Context, caseID string) (model.Vars, error) {
	r, ok := e.runner(caseID)
	if !ok {
		return nil, fmt.Errorf("case %s: %w", caseID, errors2.ErrCaseNotFound)
	}
	var data []byte
	var encErr error
	_, err := e.send(ctx, r, &caseEvent{query: func(c *caseState) {
		data, encErr = c.vars.Encode(ctx)
	}})
	if err != nil {
		return nil, err
	}
	if encErr != nil {
		return nil, fmt.Errorf("encode case %s data: %w", caseID, encErr)
	}
	v := model.NewVars()
	if len(data) > 0 {
		if err := v.Decode(ctx, data); err != nil {
			return nil, fmt.Errorf("decode case %s data: %w", caseID, err)
		}
	}
	return v, nil
}

// Recover restores every active case from the store.  Cases recover
// independently: a case whose state cannot be restored is failed and
// archived without affecting its siblings.
func (e *Engine) Recover(ctx context.Context) error {
	ids, err := e.store.ActiveCases(ctx)
	if err != nil {
		return fmt.Errorf("list active cases: %w", err)
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.recoverLimit)
	for _, caseID := range ids {
		g.Go(func() error {
			return e.recoverCase(gctx, caseID)
		})
	}
	if err := g.Wait(); err != nil {
		return fmt.Errorf("recover cases: %w", err)
	}
	return nil
}

func (e *Engine) recoverCase(ctx context.Context, caseID string) error {
	ctx, log := logx.ContextWith(ctx, "engine.recover")
	log = log.With(slog.String(keys.CaseID, caseID))

	snap, err := e.store.LoadCaseState(ctx, caseID)
	if err == nil {
		var spec *model.Specification
		spec, err = e.specification(ctx, snap.SpecID)
		if err == nil {
			var state *caseState
			state, err = restoreCase(ctx, spec, snap)
			if err == nil {
				if state.status.Terminal() {
					// Crash between the terminal transition and the archive.
					if aerr := e.store.ArchiveCase(ctx, caseID); aerr != nil {
						return fmt.Errorf("archive recovered terminal case %s: %w", caseID, aerr)
					}
					return nil
				}
				r, rerr := e.addRunner(state)
				if rerr != nil {
					return rerr
				}
				r.armTimers()
				for _, it := range state.liveItems() {
					if it.State == model.ItemEnabled {
						cp := *it
						for _, l := range e.listeners {
							l.WorkItemOffered(ctx, &cp)
						}
					}
				}
				log.Info("case recovered", slog.String(keys.CaseStatus, state.status.String()))
				return nil
			}
		}
	}
	if !errors.Is(err, errors2.ErrCorruptState) && !errors.Is(err, errors2.ErrSpecNotFound) {
		return fmt.Errorf("recover case %s: %w", caseID, err)
	}

	// The case is unrecoverable on its own evidence.  Record the failure so
	// the outcome is durable and visible, then retire it.
	_ = logx.Err(ctx, "case state unrecoverable", err)
	reason := fmt.Sprintf("state unrecoverable: %s", err.Error())
	failed := &store.CaseSnapshot{
		CaseID:        caseID,
		Status:        model.CaseFailed,
		FailureReason: reason,
	}
	if snap != nil {
		failed.SpecID = snap.SpecID
		failed.Root = snap.Root
	}
	rec := &store.TransitionRecord{
		CaseID: caseID,
		Kind:   "case.recoveryFailed",
		At:     time.Now().UnixNano(),
		State:  failed,
	}
	if aerr := e.store.AppendTransition(ctx, caseID, rec); aerr != nil {
		return fmt.Errorf("record recovery failure for case %s: %w", caseID, aerr)
	}
	if aerr := e.store.ArchiveCase(ctx, caseID); aerr != nil {
		return fmt.Errorf("archive unrecoverable case %s: %w", caseID, aerr)
	}
	for _, l := range e.listeners {
		l.CaseFailed(ctx, caseID, reason)
	}
	return nil
}

// Shutdown stops every case runner and closes the store.  In-flight events
// complete; queued events are abandoned and must be resubmitted after the
// next Recover.
func (e *Engine) Shutdown() {
	e.closeOnce.Do(func() {
		close(e.closing)
	})
	e.wg.Wait()
	if err := e.store.Close(); err != nil {
		_, log := logx.ContextWith(context.Background(), "engine")
		log.Error("close store", slog.Any("error", err))
	}
}

func (e *Engine) specification(ctx context.Context, specID string) (*model.Specification, error) {
	spec, err := cache.Cacheable("spec|"+specID, func() (*model.Specification, error) {
		return e.store.GetSpecification(ctx, specID)
	}, e.deps.memo)
	if err != nil {
		return nil, fmt.Errorf("get specification %s: %w", specID, err)
	}
	return spec, nil
}

func (e *Engine) addRunner(state *caseState) (*caseRunner, error) {
	e.mx.Lock()
	defer e.mx.Unlock()
	select {
	case <-e.closing:
		return nil, fmt.Errorf("engine is shut down: %w", errors2.ErrCaseNotRunning)
	default:
	}
	r := newCaseRunner(e, state)
	e.cases[state.caseID] = r
	for id := range state.items {
		e.items[id] = state.caseID
	}
	e.wg.Add(1)
	go r.run()
	return r, nil
}

func (e *Engine) removeRunner(caseID string) {
	e.mx.Lock()
	defer e.mx.Unlock()
	delete(e.cases, caseID)
	for id, cid := range e.items {
		if cid == caseID {
			delete(e.items, id)
		}
	}
}

// reindexItems refreshes the item-to-case index after a transition.  Called
// from the owning runner goroutine.
func (e *Engine) reindexItems(state *caseState) {
	e.mx.Lock()
	defer e.mx.Unlock()
	for id, cid := range e.items {
		if cid != state.caseID {
			continue
		}
		if _, ok := state.items[id]; !ok {
			delete(e.items, id)
		}
	}
	for id := range state.items {
		e.items[id] = state.caseID
	}
}

func (e *Engine) runner(caseID string) (*caseRunner, bool) {
	e.mx.RLock()
	defer e.mx.RUnlock()
	r, ok := e.cases[caseID]
	return r, ok
}

func (e *Engine) caseOfItem(itemID string) (string, bool) {
	e.mx.RLock()
	defer e.mx.RUnlock()
	caseID, ok := e.items[itemID]
	return caseID, ok
}

func (e *Engine) submit(ctx context.Context, caseID string, ev *caseEvent) error {
	r, ok := e.runner(caseID)
	if !ok {
		return fmt.Errorf("case %s: %w", caseID, errors2.ErrCaseNotFound)
	}
	_, err := e.send(ctx, r, ev)
	return err
}

func (e *Engine) submitItem(ctx context.Context, itemID string, ev *caseEvent) error {
	caseID, ok := e.caseOfItem(itemID)
	if !ok {
		return fmt.Errorf("work item %s: %w", itemID, errors2.ErrWorkItemNotFound)
	}
	return e.submit(ctx, caseID, ev)
}

func (e *Engine) send(ctx context.Context, r *caseRunner, ev *caseEvent) (eventResult, error) {
	ev.done = make(chan eventResult, 1)
	select {
	case r.events <- ev:
	case <-r.quit:
		return eventResult{}, fmt.Errorf("case %s: %w", r.caseID, errors2.ErrCaseNotRunning)
	case <-e.closing:
		return eventResult{}, fmt.Errorf("engine is shut down: %w", errors2.ErrCaseNotRunning)
	case <-ctx.Done():
		return eventResult{}, fmt.Errorf("submit event to case %s: %w", r.caseID, ctx.Err())
	}
	select {
	case res := <-ev.done:
		return res, res.err
	case <-r.quit:
		// The runner replies before it retires, so a result present now is
		// authoritative even though quit is closed.
		select {
		case res := <-ev.done:
			return res, res.err
		default:
			return eventResult{}, fmt.Errorf("case %s: %w", r.caseID, errors2.ErrCaseNotRunning)
		}
	case <-ctx.Done():
		return eventResult{}, fmt.Errorf("await event on case %s: %w", r.caseID, ctx.Err())
	}
}

func encodeOutput(ctx context.Context, output model.Vars) ([]byte, error) {
	if output == nil {
		return nil, nil
	}
	data, err := output.Encode(ctx)
	if err != nil {
		return nil, fmt.Errorf("encode work item output: %w", err)
	}
	return data, nil
}
