// Package client provides a worker facade over the case engine.  A Client
// registers service functions against task identifiers and executes them
// automatically as the engine offers matching work items, so a caller can
// write straight-line task code instead of driving the work item life cycle
// by hand.
package client

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"gitlab.com/caseflow-workflow/caseflow/common/logx"
	"gitlab.com/caseflow-workflow/caseflow/engine"
	"gitlab.com/caseflow-workflow/caseflow/model"
	"gitlab.com/caseflow-workflow/caseflow/server/errors/keys"
)

// ServiceFn is the signature of a registered task function.  It receives the
// work item being executed and the case data document, and returns the
// variables to merge back into the case on completion.
type ServiceFn func(ctx context.Context, item *model.WorkItem, vars model.Vars) (model.Vars, error)

// CompleteFn is the signature of a case completion hook.
type CompleteFn func(ctx context.Context, caseID string, vars model.Vars)

// FailedFn is the signature of a case failure hook.
type FailedFn func(ctx context.Context, caseID string, reason string)

// ErrNotConnected is returned by operations that need an engine before
// Connect has been called.
var ErrNotConnected = errors.New("client is not connected to an engine")

// Client executes registered service functions against offered work items.
// It implements engine.Listener so it can be handed to the engine (or the
// server) as a listener option before Connect supplies the engine handle.
type Client struct {
	participant string
	concurrency int
	noRecovery  bool

	eng    *engine.Engine
	offers chan model.WorkItem

	mx          sync.RWMutex
	svcFns      map[string]ServiceFn
	completeFns map[string]CompleteFn
	failedFns   map[string]FailedFn
	launched    map[string]string
	withdrawn   map[string]struct{}
}

// New creates a new worker client.
func New(option ...Option) *Client {
	c := &Client{
		participant: "worker",
		concurrency: 10,
		offers:      make(chan model.WorkItem, 1024),
		svcFns:      make(map[string]ServiceFn),
		completeFns: make(map[string]CompleteFn),
		failedFns:   make(map[string]FailedFn),
		launched:    make(map[string]string),
		withdrawn:   make(map[string]struct{}),
	}
	for _, i := range option {
		i.configure(c)
	}
	return c
}

// Connect attaches the client to an engine.  The client must also be
// registered as a listener on that engine, otherwise no offers arrive.
func (c *Client) Connect(eng *engine.Engine) {
	c.mx.Lock()
	defer c.mx.Unlock()
	c.eng = eng
}

// RegisterTaskHandler binds a service function to a task identifier.  Every
// offered work item for that task is started, executed and completed by the
// client.  Registering the same task twice is an error.
func (c *Client) RegisterTaskHandler(taskID string, fn ServiceFn) error {
	c.mx.Lock()
	defer c.mx.Unlock()
	if _, ok := c.svcFns[taskID]; ok {
		return fmt.Errorf("task %s already has a handler", taskID)
	}
	c.svcFns[taskID] = fn
	return nil
}

// RegisterCaseComplete binds a completion hook to a specification.  The hook
// fires for cases launched through this client.
func (c *Client) RegisterCaseComplete(specID string, fn CompleteFn) {
	c.mx.Lock()
	defer c.mx.Unlock()
	c.completeFns[specID] = fn
}

// RegisterCaseFailed binds a failure hook to a specification.  The hook
// fires for cases launched through this client.
func (c *Client) RegisterCaseFailed(specID string, fn FailedFn) {
	c.mx.Lock()
	defer c.mx.Unlock()
	c.failedFns[specID] = fn
}

// LoadSpecification loads a case specification into the connected engine.
func (c *Client) LoadSpecification(ctx context.Context, spec *model.Specification) error {
	eng, err := c.engine()
	if err != nil {
		return err
	}
	if err := eng.LoadSpecification(ctx, spec); err != nil {
		return fmt.Errorf("load specification: %w", err)
	}
	return nil
}

// LaunchCase launches a case and records it so completion and failure hooks
// registered for its specification fire when it terminates.
func (c *Client) LaunchCase(ctx context.Context, specID string, initial model.Vars) (string, error) {
	eng, err := c.engine()
	if err != nil {
		return "", err
	}
	caseID, err := eng.LaunchCase(ctx, specID, initial)
	if err != nil {
		return "", fmt.Errorf("launch case: %w", err)
	}
	c.mx.Lock()
	c.launched[caseID] = specID
	c.mx.Unlock()
	return caseID, nil
}

// CancelCase cancels a running case.
func (c *Client) CancelCase(ctx context.Context, caseID string) error {
	eng, err := c.engine()
	if err != nil {
		return err
	}
	if err := eng.CancelCase(ctx, caseID); err != nil {
		return fmt.Errorf("cancel case: %w", err)
	}
	return nil
}

// Listen executes registered service functions against offered work items
// until the context is cancelled.  It returns after all in-flight task
// functions have finished.
func (c *Client) Listen(ctx context.Context) error {
	if _, err := c.engine(); err != nil {
		return err
	}
	ctx, log := logx.ContextWith(ctx, "client.listen")
	sem := make(chan struct{}, c.concurrency)
	wg := &sync.WaitGroup{}
	for {
		select {
		case <-ctx.Done():
			wg.Wait()
			return nil
		case item := <-c.offers:
			if c.dropWithdrawn(item.ID) {
				continue
			}
			c.mx.RLock()
			fn, ok := c.svcFns[item.TaskID]
			c.mx.RUnlock()
			if !ok {
				log.Debug("no handler for offered task", slog.String(keys.TaskID, item.TaskID))
				continue
			}
			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				wg.Wait()
				return nil
			}
			wg.Add(1)
			go func(item model.WorkItem) {
				defer wg.Done()
				defer func() { <-sem }()
				c.runTask(ctx, item, fn)
			}(item)
		}
	}
}

func (c *Client) runTask(ctx context.Context, item model.WorkItem, fn ServiceFn) {
	eng, err := c.engine()
	if err != nil {
		return
	}
	if !c.noRecovery {
		defer func() {
			if r := recover(); r != nil {
				if err := eng.FailWorkItem(ctx, item.ID, fmt.Sprintf("task function panic: %v", r)); err != nil {
					_ = logx.Err(ctx, "fail panicked work item", err, slog.String(keys.WorkItemID, item.ID))
				}
			}
		}()
	}
	if err := eng.StartWorkItem(ctx, item.ID, c.participant); err != nil {
		// The offer can be stale: the item may have been withdrawn or
		// started by another participant since it was queued.
		logx.FromContext(ctx).Debug("offered item no longer startable",
			slog.String(keys.WorkItemID, item.ID), slog.String("error", err.Error()))
		return
	}
	vars, err := eng.CaseVars(ctx, item.CaseID)
	if err != nil {
		_ = logx.Err(ctx, "read case data for task", err, slog.String(keys.WorkItemID, item.ID))
		vars = model.NewVars()
	}
	out, err := fn(ctx, &item, vars)
	if err != nil {
		if ferr := eng.FailWorkItem(ctx, item.ID, err.Error()); ferr != nil {
			_ = logx.Err(ctx, "fail work item", ferr, slog.String(keys.WorkItemID, item.ID))
		}
		return
	}
	if out == nil {
		out = model.NewVars()
	}
	if err := eng.CompleteWorkItem(ctx, item.ID, out); err != nil {
		_ = logx.Err(ctx, "complete work item", err, slog.String(keys.WorkItemID, item.ID))
	}
}

func (c *Client) engine() (*engine.Engine, error) {
	c.mx.RLock()
	defer c.mx.RUnlock()
	if c.eng == nil {
		return nil, ErrNotConnected
	}
	return c.eng, nil
}

func (c *Client) dropWithdrawn(itemID string) bool {
	c.mx.Lock()
	defer c.mx.Unlock()
	if _, ok := c.withdrawn[itemID]; ok {
		delete(c.withdrawn, itemID)
		return true
	}
	return false
}

// WorkItemOffered queues an offered item for execution.  It is called on the
// engine's case goroutine and must not block, so a full queue drops the
// offer.
func (c *Client) WorkItemOffered(ctx context.Context, item *model.WorkItem) {
	select {
	case c.offers <- *item:
	default:
		logx.FromContext(ctx).Warn("offer queue full, dropping offer",
			slog.String(keys.WorkItemID, item.ID), slog.String(keys.TaskID, item.TaskID))
	}
}

// WorkItemWithdrawn marks a queued offer stale so Listen skips it.
func (c *Client) WorkItemWithdrawn(ctx context.Context, item *model.WorkItem) {
	c.mx.Lock()
	defer c.mx.Unlock()
	c.withdrawn[item.ID] = struct{}{}
}

// CaseCompleted runs the completion hook registered for the case's
// specification, if any.
func (c *Client) CaseCompleted(ctx context.Context, caseID string, vars []byte) {
	c.mx.Lock()
	specID, launched := c.launched[caseID]
	delete(c.launched, caseID)
	fn := c.completeFns[specID]
	c.mx.Unlock()
	if !launched || fn == nil {
		return
	}
	v := model.NewVars()
	if err := v.Decode(ctx, vars); err != nil {
		_ = logx.Err(ctx, "decode completed case data", err, slog.String(keys.CaseID, caseID))
	}
	go fn(ctx, caseID, v)
}

// CaseFailed runs the failure hook registered for the case's specification,
// if any.
func (c *Client) CaseFailed(ctx context.Context, caseID string, reason string) {
	c.mx.Lock()
	specID, launched := c.launched[caseID]
	delete(c.launched, caseID)
	fn := c.failedFns[specID]
	c.mx.Unlock()
	if !launched || fn == nil {
		return
	}
	go fn(ctx, caseID, reason)
}

// ExceptionRaised logs non-terminal exceptional events.
func (c *Client) ExceptionRaised(ctx context.Context, caseID string, workItemID string, reason string) {
	logx.FromContext(ctx).Warn("case exception", slog.String(keys.CaseID, caseID),
		slog.String(keys.WorkItemID, workItemID), slog.String("reason", reason))
}
