package engine

import (
	"context"
	"fmt"
	"sort"
	"time"

	imodel "gitlab.com/caseflow-workflow/caseflow/internal/model"
	"gitlab.com/caseflow-workflow/caseflow/model"
	errors2 "gitlab.com/caseflow-workflow/caseflow/server/errors"
	"gitlab.com/caseflow-workflow/caseflow/store"
)

// snapshot renders the case state as a durable record.  The snapshot is an
// independent value: mutating the state afterwards does not affect it.
func (c *caseState) snapshot(ctx context.Context) (*store.CaseSnapshot, error) {
	vars, err := c.vars.Encode(ctx)
	if err != nil {
		return nil, fmt.Errorf("encode case data: %w", err)
	}

	snap := &store.CaseSnapshot{
		CaseID:         c.caseID,
		SpecID:         c.spec.ID,
		Status:         c.status,
		Root:           c.idents.root,
		Vars:           vars,
		Decompositions: append([]store.Decomposition(nil), c.decomps...),
		FailureReason:  c.failure,
	}

	for _, p := range c.mark.places() {
		snap.Marking = append(snap.Marking, store.PlaceTokens{
			NetID:       p.netID,
			ConditionID: p.condID,
			Identifiers: c.mark.idents(p),
		})
	}

	for _, n := range c.idents.nodes() {
		snap.Identifiers = append(snap.Identifiers, store.IdentNode{ID: n.id, Parent: n.parent})
	}

	itemIDs := make([]string, 0, len(c.items))
	for id := range c.items {
		itemIDs = append(itemIDs, id)
	}
	sort.Strings(itemIDs)
	for _, id := range itemIDs {
		cp := *c.items[id]
		snap.Items = append(snap.Items, &cp)
	}
	return snap, nil
}

// restoreCase reconstructs a case state from a durable snapshot.
func restoreCase(ctx context.Context, spec *model.Specification, snap *store.CaseSnapshot) (*caseState, error) {
	if spec.ID != snap.SpecID {
		return nil, fmt.Errorf("snapshot for specification %s restored against %s: %w", snap.SpecID, spec.ID, errors2.ErrCorruptState)
	}
	c := newCaseState(snap.CaseID, spec)
	c.status = snap.Status
	c.failure = snap.FailureReason
	c.decomps = append([]store.Decomposition(nil), snap.Decompositions...)

	c.vars = imodel.NewCaseVars()
	if err := c.vars.Decode(ctx, snap.Vars); err != nil {
		return nil, fmt.Errorf("decode case data: %w", err)
	}

	c.idents = &identTree{
		root:     snap.Root,
		parent:   make(map[string]string, len(snap.Identifiers)),
		children: make(map[string][]string),
	}
	for _, n := range snap.Identifiers {
		c.idents.parent[n.ID] = n.Parent
		if n.Parent != "" {
			c.idents.children[n.Parent] = append(c.idents.children[n.Parent], n.ID)
		}
	}
	if !c.idents.known(snap.Root) {
		return nil, fmt.Errorf("snapshot root identifier %s not in tree: %w", snap.Root, errors2.ErrCorruptState)
	}

	for _, pt := range snap.Marking {
		n, ok := spec.Nets[pt.NetID]
		if !ok {
			return nil, fmt.Errorf("marking references unknown net %s: %w", pt.NetID, errors2.ErrCorruptState)
		}
		if _, ok := n.Conditions[pt.ConditionID]; !ok {
			return nil, fmt.Errorf("marking references unknown condition %s/%s: %w", pt.NetID, pt.ConditionID, errors2.ErrCorruptState)
		}
		for _, id := range pt.Identifiers {
			if !c.idents.known(id) {
				return nil, fmt.Errorf("token owned by unknown identifier %s: %w", id, errors2.ErrCorruptState)
			}
			c.mark.add(place{pt.NetID, pt.ConditionID}, id)
		}
	}

	for _, item := range snap.Items {
		cp := *item
		c.items[cp.ID] = &cp
	}
	return c, nil
}

// deadlines returns the live work items carrying an enablement deadline,
// expired or not, so the runner can re-arm timers after an event or a
// recovery.
func (c *caseState) deadlines() map[string]time.Time {
	out := make(map[string]time.Time)
	for _, item := range c.liveItems() {
		if item.DeadlineAt == 0 {
			continue
		}
		out[item.ID] = time.Unix(0, item.DeadlineAt)
	}
	return out
}
