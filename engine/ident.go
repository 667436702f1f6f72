package engine

import (
	"fmt"
	"sort"

	"github.com/segmentio/ksuid"
	errors2 "gitlab.com/caseflow-workflow/caseflow/server/errors"
)

// identTree is the ancestry tree of execution identifiers within one case.
// The root identifier is created at launch; AND-splits and multiple-instance
// expansion create children.  Identifiers are never reused: a cancelled
// subtree's identifiers remain allocated for audit but carry no further
// tokens.
type identTree struct {
	root     string
	parent   map[string]string
	children map[string][]string
}

func newIdentTree() *identTree {
	t := &identTree{
		parent:   make(map[string]string),
		children: make(map[string][]string),
	}
	t.root = ksuid.New().String()
	t.parent[t.root] = ""
	return t
}

// allocate creates a new identifier as a child of parent.
func (t *identTree) allocate(parent string) (string, error) {
	if _, ok := t.parent[parent]; !ok {
		return "", fmt.Errorf("parent identifier %s: %w", parent, errors2.ErrElementNotFound)
	}
	id := ksuid.New().String()
	t.parent[id] = parent
	t.children[parent] = append(t.children[parent], id)
	return id, nil
}

func (t *identTree) known(id string) bool {
	_, ok := t.parent[id]
	return ok
}

// isAncestor reports whether a is a strict ancestor of b.
func (t *identTree) isAncestor(a, b string) bool {
	if a == b {
		return false
	}
	for p := t.parent[b]; p != ""; p = t.parent[p] {
		if p == a {
			return true
		}
	}
	return false
}

// selfOrAncestor reports whether a equals b or is an ancestor of b.
func (t *identTree) selfOrAncestor(a, b string) bool {
	return a == b || t.isAncestor(a, b)
}

// descendants returns every identifier in the subtree rooted at id,
// excluding id itself.
func (t *identTree) descendants(id string) []string {
	var out []string
	stack := append([]string{}, t.children[id]...)
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		out = append(out, n)
		stack = append(stack, t.children[n]...)
	}
	return out
}

// chain returns the path from id up to the root, starting with id.
func (t *identTree) chain(id string) []string {
	var out []string
	for n := id; n != ""; n = t.parent[n] {
		out = append(out, n)
	}
	return out
}

// nca returns the nearest common ancestor of the given identifiers.  A single
// identifier is its own nearest common ancestor.
func (t *identTree) nca(ids ...string) string {
	if len(ids) == 0 {
		return ""
	}
	common := make(map[string]int)
	for _, id := range ids {
		for _, a := range t.chain(id) {
			common[a]++
		}
	}
	// The nearest shared node is the deepest entry present in every chain.
	best := ""
	bestDepth := -1
	for n, cnt := range common {
		if cnt != len(ids) {
			continue
		}
		d := len(t.chain(n))
		if d > bestDepth {
			best, bestDepth = n, d
		}
	}
	return best
}

func (t *identTree) clone() *identTree {
	c := &identTree{
		root:     t.root,
		parent:   make(map[string]string, len(t.parent)),
		children: make(map[string][]string, len(t.children)),
	}
	for k, v := range t.parent {
		c.parent[k] = v
	}
	for k, v := range t.children {
		c.children[k] = append([]string(nil), v...)
	}
	return c
}

// nodes returns the tree as parent links in a stable order, suitable for
// persistence.
func (t *identTree) nodes() []identNode {
	out := make([]identNode, 0, len(t.parent))
	for id, p := range t.parent {
		out = append(out, identNode{id: id, parent: p})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].id < out[j].id })
	return out
}

type identNode struct {
	id     string
	parent string
}
