package engine

import (
	"context"
	"fmt"

	imodel "gitlab.com/caseflow-workflow/caseflow/internal/model"
	"gitlab.com/caseflow-workflow/caseflow/model"
	errors2 "gitlab.com/caseflow-workflow/caseflow/server/errors"
)

// launch places the case root identifier's token on the input condition of
// the root net and runs the first enablement check.
func (c *caseState) launch(ctx context.Context, d *deps, data []byte, n *notices) error {
	if err := c.vars.Decode(ctx, data); err != nil {
		return &errors2.ErrCaseFatal{Err: fmt.Errorf("decode initial case data: %w", err)}
	}
	root := c.spec.Root()
	c.mark.add(place{root.ID, root.InputCondition}, c.idents.root)
	return c.finish(ctx, d, n)
}

// startItem fires a work item on behalf of a participant: its join binding's
// tokens are consumed and the item moves to executing.
func (c *caseState) startItem(ctx context.Context, d *deps, itemID, participant string, n *notices) error {
	item, err := c.item(itemID)
	if err != nil {
		return err
	}
	if !item.State.CanTransition(model.ItemFired) {
		return fmt.Errorf("start work item %s in state %s: %w", itemID, item.State, errors2.ErrStateTransition)
	}
	if item.Parent == "" {
		b, err := c.bindingFor(ctx, d, item)
		if err != nil {
			return err
		}
		c.consume(b)
	}
	// A start traverses fired to executing within the one serialized event.
	item.State = model.ItemFired
	item.State = model.ItemExecuting
	item.Participant = participant
	// Consuming the binding may strand sibling offers on shared conditions.
	return c.sweep(ctx, d, n)
}

// completeItem finishes an executing work item: its output data is merged
// into the case data document and the task's outputs are produced.
func (c *caseState) completeItem(ctx context.Context, d *deps, itemID string, output []byte, final model.WorkItemState, n *notices) error {
	item, err := c.item(itemID)
	if err != nil {
		return err
	}
	if !item.State.CanTransition(final) {
		return fmt.Errorf("complete work item %s in state %s: %w", itemID, item.State, errors2.ErrStateTransition)
	}
	if err := c.mergeOutput(ctx, output); err != nil {
		return err
	}
	// A forced completion may land on an item that never fired, in which case
	// its input tokens are still on the join's places and must be consumed.
	if final == model.ItemForcedComplete && item.State == model.ItemEnabled && item.Parent == "" {
		b, err := c.bindingFor(ctx, d, item)
		if err != nil {
			return err
		}
		c.consume(b)
	}
	item.State = final

	if item.Parent != "" {
		if err := c.completeInstance(ctx, d, item, n); err != nil {
			return err
		}
	} else {
		t := c.taskOf(item)
		if t == nil {
			return fmt.Errorf("task %s for work item %s: %w", item.TaskID, itemID, errors2.ErrElementNotFound)
		}
		if err := c.produce(ctx, d, item.NetID, t, item.Identifier); err != nil {
			return err
		}
	}
	return c.finish(ctx, d, n)
}

// completeInstance tracks a multiple-instance child completion.  When the
// completion threshold is reached the remaining children are cancelled, never
// completed, and the parent task's join fires for the parent identifier.
func (c *caseState) completeInstance(ctx context.Context, d *deps, child *model.WorkItem, n *notices) error {
	parent, err := c.item(child.Parent)
	if err != nil {
		return fmt.Errorf("multiple-instance parent: %w", err)
	}
	t := c.taskOf(parent)
	if t == nil || t.MultiInstance == nil {
		return fmt.Errorf("task %s is not multiple-instance: %w", parent.TaskID, errors2.ErrElementNotFound)
	}
	if c.miCompleted(parent.ID) < c.miThreshold(t.MultiInstance, parent.ID) {
		return nil
	}
	for _, sibling := range c.childrenOf(parent.ID) {
		if sibling.State.Terminal() {
			continue
		}
		c.cancelIdentifier(sibling.Identifier)
		n.withdrawn(sibling)
	}
	parent.State = model.ItemComplete
	return c.produce(ctx, d, parent.NetID, t, parent.Identifier)
}

// failItem records a work-item failure.  The core attempts no recovery: the
// case fails and the failure is surfaced as an exception notification.
func (c *caseState) failItem(itemID, reason string, n *notices) error {
	item, err := c.item(itemID)
	if err != nil {
		return err
	}
	if !item.State.CanTransition(model.ItemFailed) {
		return fmt.Errorf("fail work item %s in state %s: %w", itemID, item.State, errors2.ErrStateTransition)
	}
	item.State = model.ItemFailed
	c.status = model.CaseFailed
	c.failure = reason
	n.exception(c.caseID, itemID, reason)
	n.failed(c.caseID, reason)
	return nil
}

// suspendItem overlays the suspended state on a non-terminal work item.
func (c *caseState) suspendItem(itemID string) error {
	item, err := c.item(itemID)
	if err != nil {
		return err
	}
	if item.State == model.ItemSuspended || !item.State.CanTransition(model.ItemSuspended) {
		return fmt.Errorf("suspend work item %s in state %s: %w", itemID, item.State, errors2.ErrStateTransition)
	}
	item.Resume = item.State
	item.State = model.ItemSuspended
	return nil
}

// resumeItem restores the state a work item held before suspension.
func (c *caseState) resumeItem(itemID string) error {
	item, err := c.item(itemID)
	if err != nil {
		return err
	}
	if item.State != model.ItemSuspended {
		return fmt.Errorf("resume work item %s in state %s: %w", itemID, item.State, errors2.ErrStateTransition)
	}
	item.State = item.Resume
	item.Resume = 0
	return nil
}

// addInstance adds a child work item to a live multiple-instance firing whose
// configuration permits dynamic growth.
func (c *caseState) addInstance(parentItemID string, n *notices) (string, error) {
	parent, err := c.item(parentItemID)
	if err != nil {
		return "", err
	}
	t := c.taskOf(parent)
	if t == nil || t.MultiInstance == nil || parent.Parent != "" {
		return "", fmt.Errorf("work item %s is not a multiple-instance parent: %w", parentItemID, errors2.ErrElementNotFound)
	}
	mi := t.MultiInstance
	if !mi.Dynamic {
		return "", fmt.Errorf("add instance to work item %s: %w", parentItemID, errors2.ErrNotDynamic)
	}
	if parent.State.Terminal() {
		return "", fmt.Errorf("add instance to work item %s in state %s: %w", parentItemID, parent.State, errors2.ErrStateTransition)
	}
	if c.miCompleted(parent.ID) >= c.miThreshold(mi, parent.ID) {
		return "", fmt.Errorf("add instance to work item %s past completion threshold: %w", parentItemID, errors2.ErrStateTransition)
	}
	if len(c.childrenOf(parent.ID)) >= mi.Maximum {
		return "", fmt.Errorf("add instance to work item %s at instance maximum %d: %w", parentItemID, mi.Maximum, errors2.ErrStateTransition)
	}
	child, err := c.spawnInstance(parent.NetID, t, parent, n)
	if err != nil {
		return "", err
	}
	return child.ID, nil
}

// timerExpired handles an enablement deadline.  The item is forcibly
// completed with no output data, consuming its binding first when it has not
// yet been started.  A stale timer for a terminal item is ignored.
func (c *caseState) timerExpired(ctx context.Context, d *deps, itemID string, n *notices) error {
	item, ok := c.items[itemID]
	if !ok || item.State.Terminal() {
		return nil
	}
	effective := item.State
	if effective == model.ItemSuspended {
		effective = item.Resume
	}
	if effective == model.ItemEnabled && item.Parent == "" {
		b, err := c.bindingFor(ctx, d, item)
		if err != nil {
			return err
		}
		c.consume(b)
	}
	item.State = model.ItemForcedComplete
	item.Resume = 0
	n.exception(c.caseID, item.ID, "work item deadline expired")

	if item.Parent != "" {
		if err := c.completeInstance(ctx, d, item, n); err != nil {
			return err
		}
	} else {
		t := c.taskOf(item)
		if t == nil {
			return fmt.Errorf("task %s for work item %s: %w", item.TaskID, itemID, errors2.ErrElementNotFound)
		}
		if err := c.produce(ctx, d, item.NetID, t, item.Identifier); err != nil {
			return err
		}
	}
	return c.finish(ctx, d, n)
}

// cancelCase withdraws every live work item and clears the marking.
func (c *caseState) cancelCase(n *notices) {
	for _, item := range c.liveItems() {
		c.cancelItem(item)
		n.withdrawn(item)
	}
	for p, s := range c.mark {
		for id := range s {
			delete(s, id)
		}
		delete(c.mark, p)
	}
	c.decomps = nil
	c.status = model.CaseCancelled
}

// finish runs the enablement sweep and promotes the case to completed when
// the output condition holds the root token and nothing else is live.
func (c *caseState) finish(ctx context.Context, d *deps, n *notices) error {
	if err := c.sweep(ctx, d, n); err != nil {
		return err
	}
	if c.status == model.CaseRunning && c.isComplete() {
		c.status = model.CaseCompleted
		vars, err := c.vars.Encode(ctx)
		if err != nil {
			return &errors2.ErrCaseFatal{Err: fmt.Errorf("encode final case data: %w", err)}
		}
		out := place{c.spec.Root().ID, c.spec.Root().OutputCondition}
		for _, id := range c.mark.idents(out) {
			c.mark.remove(out, id)
		}
		n.completed(c.caseID, vars)
	}
	return nil
}

func (c *caseState) item(itemID string) (*model.WorkItem, error) {
	item, ok := c.items[itemID]
	if !ok || item.State.Terminal() {
		return nil, fmt.Errorf("work item %s: %w", itemID, errors2.ErrWorkItemNotFound)
	}
	return item, nil
}

// bindingFor recomputes the enabled binding backing an offered work item.
func (c *caseState) bindingFor(ctx context.Context, d *deps, item *model.WorkItem) (binding, error) {
	bs, err := c.enabledBindings(ctx, d)
	if err != nil {
		return binding{}, err
	}
	for _, b := range bs {
		if b.netID == item.NetID && b.task.ID == item.TaskID && b.ident == item.Identifier {
			return b, nil
		}
	}
	return binding{}, fmt.Errorf("work item %s has no live token binding: %w", item.ID, errors2.ErrStateTransition)
}

func (c *caseState) mergeOutput(ctx context.Context, output []byte) error {
	if len(output) == 0 {
		return nil
	}
	out := imodel.NewCaseVars()
	if err := out.Decode(ctx, output); err != nil {
		return &errors2.ErrCaseFatal{Err: fmt.Errorf("decode work item output data: %w", err)}
	}
	for k, v := range out.Vals {
		c.vars.Vals[k] = v
	}
	return nil
}
