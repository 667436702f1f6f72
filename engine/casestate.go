package engine

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/segmentio/ksuid"
	"gitlab.com/caseflow-workflow/caseflow/common/cache"
	"gitlab.com/caseflow-workflow/caseflow/common/expression"
	imodel "gitlab.com/caseflow-workflow/caseflow/internal/model"
	"gitlab.com/caseflow-workflow/caseflow/model"
	errors2 "gitlab.com/caseflow-workflow/caseflow/server/errors"
	"gitlab.com/caseflow-workflow/caseflow/store"
)

// deps carries the shared, read-only collaborators the interpreter needs
// while applying an event.
type deps struct {
	exp  expression.Engine
	memo *cache.Cache
}

// caseState is the complete in-memory state of one case.  It is owned
// exclusively by the case's runner goroutine; every mutation happens on a
// clone that replaces the original only after the transition is durably
// recorded.
type caseState struct {
	caseID  string
	spec    *model.Specification
	index   map[string]*model.Index
	status  model.CaseStatus
	vars    *imodel.CaseVars
	mark    marking
	idents  *identTree
	items   map[string]*model.WorkItem
	decomps []store.Decomposition
	failure string
}

func newCaseState(caseID string, spec *model.Specification) *caseState {
	index := make(map[string]*model.Index, len(spec.Nets))
	for id, n := range spec.Nets {
		index[id] = model.IndexNet(n)
	}
	return &caseState{
		caseID: caseID,
		spec:   spec,
		index:  index,
		status: model.CaseRunning,
		vars:   imodel.NewCaseVars(),
		mark:   make(marking),
		idents: newIdentTree(),
		items:  make(map[string]*model.WorkItem),
	}
}

func (c *caseState) clone() *caseState {
	n := &caseState{
		caseID:  c.caseID,
		spec:    c.spec,
		index:   c.index,
		status:  c.status,
		vars:    c.vars.Clone(),
		mark:    c.mark.clone(),
		idents:  c.idents.clone(),
		items:   make(map[string]*model.WorkItem, len(c.items)),
		decomps: append([]store.Decomposition(nil), c.decomps...),
		failure: c.failure,
	}
	for id, item := range c.items {
		cp := *item
		n.items[id] = &cp
	}
	return n
}

// liveItems returns every non-terminal work item in a stable order.
func (c *caseState) liveItems() []*model.WorkItem {
	var out []*model.WorkItem
	for _, item := range c.items {
		if !item.State.Terminal() {
			out = append(out, item)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (c *caseState) liveItemsOfTask(netID, taskID string) []*model.WorkItem {
	var out []*model.WorkItem
	for _, item := range c.liveItems() {
		if item.NetID == netID && item.TaskID == taskID {
			out = append(out, item)
		}
	}
	return out
}

func (c *caseState) liveItemFor(netID, taskID, ident string) *model.WorkItem {
	for _, item := range c.liveItems() {
		if item.NetID == netID && item.TaskID == taskID && item.Identifier == ident {
			return item
		}
	}
	return nil
}

func (c *caseState) childrenOf(parentID string) []*model.WorkItem {
	var out []*model.WorkItem
	for _, item := range c.items {
		if item.Parent == parentID {
			out = append(out, item)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// cancelItem moves a work item to its terminal cancelled state.  The caller
// is responsible for the corresponding marking change.
func (c *caseState) cancelItem(item *model.WorkItem) {
	if item.State.Terminal() {
		return
	}
	item.State = model.ItemCancelled
	item.Resume = 0
}

// newItem creates a work item in the enabled state for one task firing bound
// to one identifier.
func (c *caseState) newItem(netID string, t *model.Task, ident, parent string) *model.WorkItem {
	item := &model.WorkItem{
		ID:         ksuid.New().String(),
		CaseID:     c.caseID,
		NetID:      netID,
		TaskID:     t.ID,
		Identifier: ident,
		Parent:     parent,
		State:      model.ItemEnabled,
	}
	if t.Timeout > 0 {
		item.DeadlineAt = time.Now().Add(t.Timeout).UnixNano()
	}
	c.items[item.ID] = item
	return item
}

// sweep drives the case to quiescence after a marking change: it completes
// finished decompositions, enters newly enabled composite tasks, expands
// newly enabled multiple-instance tasks, offers work items for newly enabled
// atomic tasks and withdraws enabled items whose bindings have gone.
func (c *caseState) sweep(ctx context.Context, d *deps, n *notices) error {
	for {
		changed, err := c.sweepOnce(ctx, d, n)
		if err != nil {
			return err
		}
		if !changed {
			return nil
		}
	}
}

func (c *caseState) sweepOnce(ctx context.Context, d *deps, n *notices) (bool, error) {
	// Finished decompositions first: a sub-net whose token reached the output
	// condition with no other subtree tokens completes its composite task.
	for i, dc := range c.decomps {
		sub := c.spec.Nets[dc.SubnetID]
		out := place{dc.SubnetID, sub.OutputCondition}
		if !c.mark.has(out, dc.Identifier) {
			continue
		}
		if c.subtreeTokensElsewhere(dc, out) {
			continue
		}
		c.mark.remove(out, dc.Identifier)
		c.decomps = append(c.decomps[:i], c.decomps[i+1:]...)
		host := c.spec.Nets[dc.NetID].Tasks[dc.TaskID]
		if err := c.produce(ctx, d, dc.NetID, host, dc.Identifier); err != nil {
			return false, err
		}
		return true, nil
	}

	bs, err := c.enabledBindings(ctx, d)
	if err != nil {
		return false, err
	}

	for _, b := range bs {
		t := b.task
		if t.Decomposition != "" {
			c.consume(b)
			sub := c.spec.Nets[t.Decomposition]
			c.mark.add(place{sub.ID, sub.InputCondition}, b.ident)
			c.decomps = append(c.decomps, store.Decomposition{
				NetID:      b.netID,
				TaskID:     t.ID,
				SubnetID:   t.Decomposition,
				Identifier: b.ident,
			})
			return true, nil
		}
		if t.MultiInstance != nil {
			if err := c.expandMultiInstance(ctx, d, b, n); err != nil {
				return false, err
			}
			return true, nil
		}
		if c.liveItemFor(b.netID, t.ID, b.ident) == nil {
			item := c.newItem(b.netID, t, b.ident, "")
			n.offered(item)
		}
	}

	// Withdraw enabled items whose binding no longer exists.
	live := make(map[string]bool)
	for _, b := range bs {
		live[b.netID+"|"+b.task.ID+"|"+b.ident] = true
	}
	for _, item := range c.liveItems() {
		if item.State != model.ItemEnabled || item.Parent != "" {
			continue
		}
		if c.taskOf(item) != nil && c.taskOf(item).MultiInstance != nil {
			continue
		}
		if !live[item.NetID+"|"+item.TaskID+"|"+item.Identifier] {
			c.cancelItem(item)
			n.withdrawn(item)
		}
	}
	return false, nil
}

// subtreeTokensElsewhere reports whether the decomposition's identifier
// subtree still holds tokens anywhere other than the given place.
func (c *caseState) subtreeTokensElsewhere(dc store.Decomposition, except place) bool {
	sub := map[string]struct{}{dc.Identifier: {}}
	for _, id := range c.idents.descendants(dc.Identifier) {
		sub[id] = struct{}{}
	}
	for p, s := range c.mark {
		if p == except {
			// Another decomposition of the same sub-net may hold tokens here
			// too; only this subtree's surplus blocks completion.
			own := 0
			for id := range s {
				if _, ok := sub[id]; ok {
					own++
				}
			}
			if own > 1 {
				return true
			}
			continue
		}
		for id := range s {
			if _, ok := sub[id]; ok {
				return true
			}
		}
	}
	for _, item := range c.liveItems() {
		if _, ok := sub[item.Identifier]; ok && item.Identifier != dc.Identifier {
			return true
		}
	}
	return false
}

// expandMultiInstance fires a multiple-instance task: it consumes the join
// binding, evaluates the instance count against the case data, and creates
// that many child work items under one parent.
func (c *caseState) expandMultiInstance(ctx context.Context, d *deps, b binding, n *notices) error {
	mi := b.task.MultiInstance
	count := mi.Minimum
	if mi.CountExpr != "" {
		v, err := c.evalCount(ctx, d, mi.CountExpr)
		if err != nil {
			return err
		}
		count = v
	}
	if count < mi.Minimum {
		count = mi.Minimum
	}
	if count > mi.Maximum {
		count = mi.Maximum
	}

	c.consume(b)
	parent := &model.WorkItem{
		ID:         ksuid.New().String(),
		CaseID:     c.caseID,
		NetID:      b.netID,
		TaskID:     b.task.ID,
		Identifier: b.ident,
		State:      model.ItemFired,
	}
	c.items[parent.ID] = parent

	for i := 0; i < count; i++ {
		if _, err := c.spawnInstance(b.netID, b.task, parent, n); err != nil {
			return err
		}
	}
	return nil
}

func (c *caseState) spawnInstance(netID string, t *model.Task, parent *model.WorkItem, n *notices) (*model.WorkItem, error) {
	childIdent, err := c.idents.allocate(parent.Identifier)
	if err != nil {
		return nil, fmt.Errorf("allocate instance identifier: %w", err)
	}
	child := c.newItem(netID, t, childIdent, parent.ID)
	n.offered(child)
	return child, nil
}

// evalCount evaluates a multiple-instance count expression.  A failed or
// non-integer evaluation is a data error and therefore case-fatal.
func (c *caseState) evalCount(ctx context.Context, d *deps, exp string) (int, error) {
	res, err := expression.EvalAny(ctx, d.exp, exp, c.vars.Vals)
	if err != nil {
		return 0, &errors2.ErrCaseFatal{Err: fmt.Errorf("evaluate instance count: %w", err)}
	}
	switch v := res.(type) {
	case int:
		return v, nil
	case int64:
		return int(v), nil
	case float64:
		return int(v), nil
	default:
		return 0, &errors2.ErrCaseFatal{Err: fmt.Errorf("instance count %q is not numeric", exp)}
	}
}

// miThreshold returns the number of completed children that completes the
// task: the configured threshold, or every spawned instance when none is
// configured.
func (c *caseState) miThreshold(mi *model.MultiInstance, parentID string) int {
	if mi.Threshold > 0 {
		return mi.Threshold
	}
	return len(c.childrenOf(parentID))
}

func (c *caseState) miCompleted(parentID string) int {
	n := 0
	for _, child := range c.childrenOf(parentID) {
		if child.State == model.ItemComplete || child.State == model.ItemForcedComplete {
			n++
		}
	}
	return n
}
