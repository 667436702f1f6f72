package model

import (
	"fmt"
	"sort"
	"time"
)

// GateType describes the join or split behaviour of a task over its incoming
// or outgoing flows.
type GateType int

const (
	// GateAnd waits for (join) or activates (split) every flow.
	GateAnd GateType = iota
	// GateXor waits for any single flow (join) or activates exactly one flow (split).
	GateXor
	// GateOr waits until no further inbound token can arrive (join) or activates
	// every flow whose predicate holds (split).
	GateOr
)

// String returns the display name for a gate type.
func (g GateType) String() string {
	switch g {
	case GateAnd:
		return "and"
	case GateXor:
		return "xor"
	case GateOr:
		return "or"
	default:
		return fmt.Sprintf("gate(%d)", int(g))
	}
}

// Flow is a directed arc from a task to a condition.  Predicate is an
// expression evaluated against the case data document; an empty predicate is
// always true.  At most one outgoing flow of a task may be marked Default.
type Flow struct {
	To        string `msgpack:"to"`
	Predicate string `msgpack:"predicate,omitempty"`
	Default   bool   `msgpack:"default,omitempty"`
}

// MultiInstance configures a task that spawns several concurrent child work
// items.  CountExpr is evaluated against the case data at enablement and
// clamped to [Minimum, Maximum].  Threshold is the number of child completions
// that completes the task; zero means all instances must complete.  Dynamic
// permits additional children to be added while the task remains below
// threshold.
type MultiInstance struct {
	Minimum   int    `msgpack:"min"`
	Maximum   int    `msgpack:"max"`
	Threshold int    `msgpack:"threshold,omitempty"`
	CountExpr string `msgpack:"countExpr,omitempty"`
	Dynamic   bool   `msgpack:"dynamic,omitempty"`
}

// Task is a net transition.  Join governs its incoming flows and Split its
// outgoing flows.  CancellationSet lists task and condition ids whose tokens
// and live work items are removed when this task completes.  A non-empty
// Decomposition names a sub-net executed in place of an atomic work item.
// A non-zero Timeout sets an enablement deadline delivered as a timer event.
type Task struct {
	ID              string         `msgpack:"id"`
	Name            string         `msgpack:"name,omitempty"`
	Join            GateType       `msgpack:"join"`
	Split           GateType       `msgpack:"split"`
	Flows           []Flow         `msgpack:"flows,omitempty"`
	CancellationSet []string       `msgpack:"cancel,omitempty"`
	MultiInstance   *MultiInstance `msgpack:"mi,omitempty"`
	Decomposition   string         `msgpack:"decomposition,omitempty"`
	Timeout         time.Duration  `msgpack:"timeout,omitempty"`
}

// Condition is a place holding tokens.  Flows lists the ids of the tasks this
// condition feeds.
type Condition struct {
	ID    string   `msgpack:"id"`
	Name  string   `msgpack:"name,omitempty"`
	Flows []string `msgpack:"flows,omitempty"`
}

// Net is a single process graph with one input and one output condition.
type Net struct {
	ID              string                `msgpack:"id"`
	Name            string                `msgpack:"name,omitempty"`
	Tasks           map[string]*Task      `msgpack:"tasks"`
	Conditions      map[string]*Condition `msgpack:"conditions"`
	InputCondition  string                `msgpack:"inputCondition"`
	OutputCondition string                `msgpack:"outputCondition"`
}

// Specification is an immutable compiled process definition.  It is loaded
// once and shared read-only across every case instantiated from it.
type Specification struct {
	ID      string          `msgpack:"id"`
	Name    string          `msgpack:"name,omitempty"`
	Version string          `msgpack:"version,omitempty"`
	RootNet string          `msgpack:"rootNet"`
	Nets    map[string]*Net `msgpack:"nets"`
}

// Root returns the specification's root net.
func (s *Specification) Root() *Net {
	return s.Nets[s.RootNet]
}

// Validate performs the structural checks the engine relies on.  Semantic
// soundness (cycle-free cancellation sets, OR-joins that cannot deadlock) is
// the authoring tool's responsibility.
func (s *Specification) Validate() error {
	if s.ID == "" {
		return fmt.Errorf("specification has no id")
	}
	if _, ok := s.Nets[s.RootNet]; !ok {
		return fmt.Errorf("specification %s: root net %q not found", s.ID, s.RootNet)
	}
	for _, n := range s.Nets {
		if err := n.validate(s); err != nil {
			return fmt.Errorf("net %s: %w", n.ID, err)
		}
	}
	return nil
}

func (n *Net) validate(s *Specification) error {
	if _, ok := n.Conditions[n.InputCondition]; !ok {
		return fmt.Errorf("input condition %q not found", n.InputCondition)
	}
	if _, ok := n.Conditions[n.OutputCondition]; !ok {
		return fmt.Errorf("output condition %q not found", n.OutputCondition)
	}
	for _, c := range n.Conditions {
		for _, tid := range c.Flows {
			if _, ok := n.Tasks[tid]; !ok {
				return fmt.Errorf("condition %s flows to unknown task %q", c.ID, tid)
			}
		}
	}
	for _, t := range n.Tasks {
		defaults := 0
		for _, f := range t.Flows {
			if _, ok := n.Conditions[f.To]; !ok {
				return fmt.Errorf("task %s flows to unknown condition %q", t.ID, f.To)
			}
			if f.Default {
				defaults++
			}
		}
		if defaults > 1 {
			return fmt.Errorf("task %s has %d default flows", t.ID, defaults)
		}
		if t.Decomposition != "" {
			if _, ok := s.Nets[t.Decomposition]; !ok {
				return fmt.Errorf("task %s decomposes to unknown net %q", t.ID, t.Decomposition)
			}
		}
		if mi := t.MultiInstance; mi != nil {
			if mi.Minimum < 1 || mi.Maximum < mi.Minimum {
				return fmt.Errorf("task %s has invalid instance bounds [%d,%d]", t.ID, mi.Minimum, mi.Maximum)
			}
			if mi.Threshold < 0 || mi.Threshold > mi.Maximum {
				return fmt.Errorf("task %s has invalid completion threshold %d", t.ID, mi.Threshold)
			}
		}
	}
	return nil
}

// Index holds the reverse flow relation for one net: for every task, the ids
// of the conditions that feed it, in a stable order.
type Index struct {
	Inputs map[string][]string
}

// IndexNet builds the input index for a net.  The index is derived purely from
// the immutable specification and may be shared between cases.
func IndexNet(n *Net) *Index {
	ix := &Index{Inputs: make(map[string][]string, len(n.Tasks))}
	// Stable iteration keyed on sorted condition ids keeps input order
	// deterministic across runs.
	keys := make([]string, 0, len(n.Conditions))
	for k := range n.Conditions {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		c := n.Conditions[k]
		for _, tid := range c.Flows {
			ix.Inputs[tid] = append(ix.Inputs[tid], c.ID)
		}
	}
	return ix
}
