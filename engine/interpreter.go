package engine

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"gitlab.com/caseflow-workflow/caseflow/common/expression"
	"gitlab.com/caseflow-workflow/caseflow/model"
	errors2 "gitlab.com/caseflow-workflow/caseflow/server/errors"
)

// maxJoinCombos bounds the number of token assignments examined per join.
const maxJoinCombos = 256

// binding is one enabled occurrence of a task: the identifier it would fire
// for and the exact tokens its join would consume.
type binding struct {
	netID   string
	task    *model.Task
	ident   string
	consume map[place]string
}

// enabledBindings computes every (task, identifier) pair whose join is
// satisfied by the current marking, in a stable order.
//
// AND-joins need a token on every input place for one identifier lineage.
// XOR-joins fire for any single token.  OR-joins additionally require the
// backward-reachability proof that no token can still arrive on an empty
// input place.
func (c *caseState) enabledBindings(ctx context.Context, d *deps) ([]binding, error) {
	var out []binding
	for _, netID := range c.netIDs() {
		n := c.spec.Nets[netID]
		ix := c.index[netID]
		taskIDs := make([]string, 0, len(n.Tasks))
		for id := range n.Tasks {
			taskIDs = append(taskIDs, id)
		}
		sort.Strings(taskIDs)
		for _, tid := range taskIDs {
			t := n.Tasks[tid]
			inputs := ix.Inputs[tid]
			if len(inputs) == 0 {
				continue
			}
			bs, err := c.joinBindings(ctx, d, netID, t, inputs)
			if err != nil {
				return nil, err
			}
			out = append(out, bs...)
		}
	}
	return out, nil
}

func (c *caseState) joinBindings(ctx context.Context, d *deps, netID string, t *model.Task, inputs []string) ([]binding, error) {
	marked := make([]string, 0, len(inputs))
	empty := make([]string, 0, len(inputs))
	for _, condID := range inputs {
		if len(c.mark[place{netID, condID}]) > 0 {
			marked = append(marked, condID)
		} else {
			empty = append(empty, condID)
		}
	}
	if len(marked) == 0 {
		return nil, nil
	}

	switch t.Join {
	case model.GateXor:
		var out []binding
		for _, condID := range marked {
			p := place{netID, condID}
			for _, id := range c.mark.idents(p) {
				out = append(out, binding{
					netID:   netID,
					task:    t,
					ident:   id,
					consume: map[place]string{p: id},
				})
			}
		}
		return out, nil

	case model.GateAnd:
		if len(empty) > 0 {
			return nil, nil
		}
		return c.lineageBindings(netID, t, inputs)

	case model.GateOr:
		ok, err := c.orJoinEnabled(ctx, d, netID, t, empty)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, nil
		}
		return c.lineageBindings(netID, t, marked)

	default:
		return nil, fmt.Errorf("task %s has unknown join type %v: %w", t.ID, t.Join, errors2.ErrElementNotFound)
	}
}

// lineageBindings enumerates token assignments over the given input places,
// one token per place, keeping those that form a set of distinct parallel
// threads, and collapses each to its nearest common ancestor as the firing
// identifier.  A join too wide to enumerate within maxJoinCombos is a
// structural defect: truncating could hide an enabled binding, so the case
// fails instead.
func (c *caseState) lineageBindings(netID string, t *model.Task, inputs []string) ([]binding, error) {
	tokenSets := make([][]string, len(inputs))
	for i, condID := range inputs {
		tokenSets[i] = c.mark.idents(place{netID, condID})
	}

	var out []binding
	seen := make(map[string]bool)
	combo := make([]string, len(inputs))
	examined := 0

	var walk func(i int) bool
	walk = func(i int) bool {
		if examined > maxJoinCombos {
			return true
		}
		if i == len(inputs) {
			examined++
			if !c.parallelThreads(combo) {
				return false
			}
			ident := c.idents.nca(combo...)
			if ident == "" || seen[ident] {
				return false
			}
			seen[ident] = true
			consume := make(map[place]string, len(inputs))
			for j, condID := range inputs {
				consume[place{netID, condID}] = combo[j]
			}
			out = append(out, binding{netID: netID, task: t, ident: ident, consume: consume})
			return false
		}
		for _, id := range tokenSets[i] {
			combo[i] = id
			if walk(i + 1) {
				return true
			}
		}
		return false
	}
	if walk(0) {
		return nil, &errors2.ErrCaseFatal{Err: fmt.Errorf("join for task %s exceeds %d token assignments", t.ID, maxJoinCombos)}
	}
	return out, nil
}

// parallelThreads reports whether the identifiers are pairwise distinct and
// none is an ancestor of another, i.e. they are concurrent threads that a
// join may legally merge.
func (c *caseState) parallelThreads(ids []string) bool {
	for i := 0; i < len(ids); i++ {
		for j := i + 1; j < len(ids); j++ {
			if ids[i] == ids[j] && len(ids) > 1 {
				return false
			}
			if c.idents.isAncestor(ids[i], ids[j]) || c.idents.isAncestor(ids[j], ids[i]) {
				return false
			}
		}
	}
	return true
}

// consume removes the tokens of a binding from the marking.  This begins the
// firing transaction: the firing identifier holds no token until the task's
// outputs are produced.
func (c *caseState) consume(b binding) {
	for p, id := range b.consume {
		c.mark.remove(p, id)
	}
}

// produce evaluates the task's split semantics for the firing identifier and
// places the output tokens, then applies the task's cancellation set.  This
// ends the firing transaction.
func (c *caseState) produce(ctx context.Context, d *deps, netID string, t *model.Task, ident string) error {
	if len(t.Flows) == 0 {
		return fmt.Errorf("task %s has no outgoing flows: %w", t.ID, errors2.ErrElementNotFound)
	}
	targets, err := c.splitTargets(ctx, d, t)
	if err != nil {
		return err
	}
	if len(targets) == 1 {
		c.mark.add(place{netID, targets[0]}, ident)
	} else {
		for _, condID := range targets {
			child, err := c.idents.allocate(ident)
			if err != nil {
				return fmt.Errorf("allocate split identifier: %w", err)
			}
			c.mark.add(place{netID, condID}, child)
		}
	}
	c.applyCancellationSet(netID, t)
	return nil
}

// splitTargets returns the ids of the conditions the split activates.
func (c *caseState) splitTargets(ctx context.Context, d *deps, t *model.Task) ([]string, error) {
	switch t.Split {
	case model.GateAnd:
		out := make([]string, 0, len(t.Flows))
		for _, f := range t.Flows {
			out = append(out, f.To)
		}
		return out, nil

	case model.GateXor:
		var deflt string
		for _, f := range t.Flows {
			if f.Default {
				deflt = f.To
				continue
			}
			ok, err := c.evalPredicate(ctx, d, f.Predicate)
			if err != nil {
				return nil, err
			}
			if ok {
				return []string{f.To}, nil
			}
		}
		if deflt != "" {
			return []string{deflt}, nil
		}
		return nil, &errors2.ErrCaseFatal{Err: fmt.Errorf("task %s: %w", t.ID, errors2.ErrUnsatisfiedSplit)}

	case model.GateOr:
		var out []string
		for _, f := range t.Flows {
			ok, err := c.evalPredicate(ctx, d, f.Predicate)
			if err != nil {
				return nil, err
			}
			if ok {
				out = append(out, f.To)
			}
		}
		if len(out) == 0 {
			return nil, &errors2.ErrCaseFatal{Err: fmt.Errorf("task %s: %w", t.ID, errors2.ErrUnsatisfiedSplit)}
		}
		return out, nil

	default:
		return nil, &errors2.ErrCaseFatal{Err: fmt.Errorf("task %s has unknown split type %v", t.ID, t.Split)}
	}
}

// evalPredicate evaluates a flow predicate against the case data document.
// An empty predicate is always true.  A failed or non-boolean evaluation is a
// data error and therefore case-fatal; the error names the variables the
// predicate references to aid repair.
func (c *caseState) evalPredicate(ctx context.Context, d *deps, pred string) (bool, error) {
	if pred == "" {
		return true, nil
	}
	res, err := expression.EvalAny(ctx, d.exp, pred, c.vars.Vals)
	if err != nil {
		refs, verr := expression.GetVariables(ctx, d.exp, pred)
		if verr == nil && len(refs) > 0 {
			names := make([]string, 0, len(refs))
			for _, r := range refs {
				names = append(names, r.Name)
			}
			err = fmt.Errorf("predicate references [%s]: %w", strings.Join(names, ", "), err)
		}
		return false, &errors2.ErrCaseFatal{Err: err}
	}
	b, ok := res.(bool)
	if !ok {
		return false, &errors2.ErrCaseFatal{Err: fmt.Errorf("predicate %q is not boolean", pred)}
	}
	return b, nil
}

// applyCancellationSet removes the tokens and busy work items of the
// completing task's cancellation region.  Conditions in the region lose every
// token; tasks in the region lose their in-flight work items together with
// the identifier subtrees those items own.  Enabled-but-unstarted items whose
// input tokens were removed are withdrawn by the following enablement sweep.
func (c *caseState) applyCancellationSet(netID string, t *model.Task) {
	if len(t.CancellationSet) == 0 {
		return
	}
	n := c.spec.Nets[netID]
	for _, elID := range t.CancellationSet {
		if _, ok := n.Conditions[elID]; ok {
			p := place{netID, elID}
			for _, id := range c.mark.idents(p) {
				c.mark.remove(p, id)
			}
			continue
		}
		if _, ok := n.Tasks[elID]; ok {
			for _, item := range c.liveItemsOfTask(netID, elID) {
				if item.State == model.ItemEnabled {
					continue
				}
				c.cancelIdentifier(item.Identifier)
			}
		}
	}
}

// cancelIdentifier removes every token belonging to the identifier's subtree
// and cancels every live work item the subtree owns.  It is idempotent.
func (c *caseState) cancelIdentifier(ident string) {
	sub := map[string]struct{}{ident: {}}
	for _, d := range c.idents.descendants(ident) {
		sub[d] = struct{}{}
	}
	c.mark.removeIdents(sub)
	for _, item := range c.liveItems() {
		if _, ok := sub[item.Identifier]; ok {
			c.cancelItem(item)
		}
	}
}

// isComplete reports whether the output condition of the root net is marked
// and no live token elsewhere, work item or in-flight decomposition remains.
// Cancellation regions may remove whole branches, so the surviving token need
// not carry the case root identifier.
func (c *caseState) isComplete() bool {
	root := c.spec.Root()
	out := place{root.ID, root.OutputCondition}
	n := len(c.mark[out])
	if n == 0 {
		return false
	}
	if c.mark.size() != n {
		return false
	}
	if len(c.decomps) != 0 {
		return false
	}
	return len(c.liveItems()) == 0
}

func (c *caseState) netIDs() []string {
	out := make([]string, 0, len(c.spec.Nets))
	for id := range c.spec.Nets {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
