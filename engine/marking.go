package engine

import (
	"sort"
	"strings"
)

// place addresses one condition within one net of a specification.
type place struct {
	netID  string
	condID string
}

// marking is the distribution of identifier-tagged tokens over places.  Each
// case's marking is owned exclusively by that case's serialization context.
type marking map[place]map[string]struct{}

func (m marking) add(p place, ident string) {
	s, ok := m[p]
	if !ok {
		s = make(map[string]struct{})
		m[p] = s
	}
	s[ident] = struct{}{}
}

func (m marking) remove(p place, ident string) bool {
	s, ok := m[p]
	if !ok {
		return false
	}
	if _, ok := s[ident]; !ok {
		return false
	}
	delete(s, ident)
	if len(s) == 0 {
		delete(m, p)
	}
	return true
}

func (m marking) has(p place, ident string) bool {
	_, ok := m[p][ident]
	return ok
}

// idents returns the identifiers holding tokens on p in a stable order.
func (m marking) idents(p place) []string {
	s := m[p]
	out := make([]string, 0, len(s))
	for id := range s {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// placesOf returns every place holding a token for ident.
func (m marking) placesOf(ident string) []place {
	var out []place
	for p, s := range m {
		if _, ok := s[ident]; ok {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].netID != out[j].netID {
			return out[i].netID < out[j].netID
		}
		return out[i].condID < out[j].condID
	})
	return out
}

// removeIdents removes every token owned by any of the given identifiers and
// returns the number of tokens removed.
func (m marking) removeIdents(ids map[string]struct{}) int {
	n := 0
	for p, s := range m {
		for id := range ids {
			if _, ok := s[id]; ok {
				delete(s, id)
				n++
			}
		}
		if len(s) == 0 {
			delete(m, p)
		}
	}
	return n
}

// size returns the total number of live tokens.
func (m marking) size() int {
	n := 0
	for _, s := range m {
		n += len(s)
	}
	return n
}

// places returns every marked place in a stable order.
func (m marking) places() []place {
	out := make([]place, 0, len(m))
	for p := range m {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].netID != out[j].netID {
			return out[i].netID < out[j].netID
		}
		return out[i].condID < out[j].condID
	})
	return out
}

func (m marking) clone() marking {
	c := make(marking, len(m))
	for p, s := range m {
		cs := make(map[string]struct{}, len(s))
		for id := range s {
			cs[id] = struct{}{}
		}
		c[p] = cs
	}
	return c
}

// fingerprint returns a stable textual digest of the marking, used as part of
// the memoization key for OR-join analysis.
func (m marking) fingerprint() string {
	var sb strings.Builder
	for _, p := range m.places() {
		sb.WriteString(p.netID)
		sb.WriteByte('/')
		sb.WriteString(p.condID)
		sb.WriteByte('=')
		sb.WriteString(strings.Join(m.idents(p), ","))
		sb.WriteByte(';')
	}
	return sb.String()
}
