package engine

import (
	"context"
	"fmt"
	"strings"

	"gitlab.com/caseflow-workflow/caseflow/common/cache"
	"gitlab.com/caseflow-workflow/caseflow/model"
	errors2 "gitlab.com/caseflow-workflow/caseflow/server/errors"
)

// node addresses a condition or a task in the specification graph during
// OR-join analysis.
type node struct {
	netID  string
	elID   string
	isTask bool
}

// orJoinEnabled decides whether an OR-join may fire: it may not while any of
// its empty input places could still receive a token.  The proof walks the
// flow relation forward from every live token and every busy task; branches
// whose upstream splits are already dead for this case carry no source and
// are pruned implicitly.  Results are memoized per (case, task, state
// fingerprint); the cache is advisory and a miss recomputes.
func (c *caseState) orJoinEnabled(ctx context.Context, d *deps, netID string, t *model.Task, empty []string) (bool, error) {
	if len(empty) == 0 {
		return true, nil
	}
	key := c.caseID + "|" + netID + "|" + t.ID + "|" + c.analysisFingerprint()
	return cache.Cacheable(key, func() (bool, error) {
		return c.computeOrJoin(netID, t, empty)
	}, d.memo)
}

// analysisFingerprint digests everything the OR-join proof depends on: the
// marking, the set of busy tasks and the in-flight decompositions.
func (c *caseState) analysisFingerprint() string {
	var sb strings.Builder
	sb.WriteString(c.mark.fingerprint())
	sb.WriteByte('#')
	for _, item := range c.liveItems() {
		if itemBusy(item) {
			sb.WriteString(item.NetID)
			sb.WriteByte('/')
			sb.WriteString(item.TaskID)
			sb.WriteByte(';')
		}
	}
	sb.WriteByte('#')
	for _, dc := range c.decomps {
		sb.WriteString(dc.NetID)
		sb.WriteByte('/')
		sb.WriteString(dc.TaskID)
		sb.WriteByte(';')
	}
	return sb.String()
}

// itemBusy reports whether a work item represents a token in transit inside
// its task: its inputs are consumed and its outputs not yet produced.
func itemBusy(item *model.WorkItem) bool {
	switch item.State {
	case model.ItemFired, model.ItemExecuting:
		return true
	case model.ItemSuspended:
		return item.Resume == model.ItemFired || item.Resume == model.ItemExecuting
	default:
		return false
	}
}

func (c *caseState) computeOrJoin(netID string, join *model.Task, empty []string) (bool, error) {
	targets := make(map[node]struct{}, len(empty))
	for _, condID := range empty {
		targets[node{netID, condID, false}] = struct{}{}
	}
	joinNode := node{netID, join.ID, true}

	var frontier []node
	seenSrc := make(map[node]struct{})
	push := func(n node) {
		if _, ok := seenSrc[n]; !ok {
			seenSrc[n] = struct{}{}
			frontier = append(frontier, n)
		}
	}

	for _, p := range c.mark.places() {
		push(node{p.netID, p.condID, false})
	}
	for _, item := range c.liveItems() {
		if itemBusy(item) {
			push(node{item.NetID, item.TaskID, true})
		}
		// A live multiple-instance firing produces the parent task's
		// outputs when its threshold is reached.
		if item.Parent == "" && !item.State.Terminal() {
			if task := c.taskOf(item); task != nil && task.MultiInstance != nil {
				push(node{item.NetID, item.TaskID, true})
			}
		}
	}
	for _, dc := range c.decomps {
		push(node{dc.NetID, dc.TaskID, true})
	}

	maxSteps := c.graphBound()
	steps := 0
	visited := make(map[node]struct{})
	for len(frontier) > 0 {
		steps++
		if steps > maxSteps {
			return false, &errors2.ErrCaseFatal{Err: fmt.Errorf("or-join reachability check for task %s did not terminate", join.ID)}
		}
		n := frontier[len(frontier)-1]
		frontier = frontier[:len(frontier)-1]
		if _, ok := visited[n]; ok {
			continue
		}
		visited[n] = struct{}{}
		if _, ok := targets[n]; ok {
			return false, nil
		}
		for _, succ := range c.successors(n, joinNode) {
			frontier = append(frontier, succ)
		}
	}
	return true, nil
}

// successors returns the forward flow relation for a node, never traversing
// through the join under analysis: tokens consumed by the join itself cannot
// arrive on its own inputs.
func (c *caseState) successors(n node, joinNode node) []node {
	net := c.spec.Nets[n.netID]
	if net == nil {
		return nil
	}
	var out []node
	if !n.isTask {
		if cond, ok := net.Conditions[n.elID]; ok {
			for _, tid := range cond.Flows {
				tn := node{n.netID, tid, true}
				if tn != joinNode {
					out = append(out, tn)
				}
			}
		}
		// A sub-net output condition surfaces through every composite task
		// decomposing to that net.
		if n.elID == net.OutputCondition {
			for _, hostNetID := range c.netIDs() {
				hn := c.spec.Nets[hostNetID]
				for tid, task := range hn.Tasks {
					if task.Decomposition == n.netID {
						tn := node{hostNetID, tid, true}
						if tn != joinNode {
							out = append(out, tn)
						}
					}
				}
			}
		}
		return out
	}
	task, ok := net.Tasks[n.elID]
	if !ok {
		return nil
	}
	for _, f := range task.Flows {
		out = append(out, node{n.netID, f.To, false})
	}
	if task.Decomposition != "" {
		sub := c.spec.Nets[task.Decomposition]
		if sub != nil {
			out = append(out, node{sub.ID, sub.InputCondition, false})
		}
	}
	return out
}

func (c *caseState) graphBound() int {
	n := 0
	for _, net := range c.spec.Nets {
		n += len(net.Tasks) + len(net.Conditions)
	}
	return n*4 + 16
}

func (c *caseState) taskOf(item *model.WorkItem) *model.Task {
	net := c.spec.Nets[item.NetID]
	if net == nil {
		return nil
	}
	return net.Tasks[item.TaskID]
}
