package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMarkingAddRemove(t *testing.T) {
	m := make(marking)
	p := place{"main", "c1"}

	assert.False(t, m.has(p, "x"))
	m.add(p, "x")
	m.add(p, "y")
	assert.True(t, m.has(p, "x"))
	assert.Equal(t, 2, m.size())
	assert.Equal(t, []string{"x", "y"}, m.idents(p))

	assert.True(t, m.remove(p, "x"))
	assert.False(t, m.remove(p, "x"), "a token is removed at most once")
	assert.True(t, m.remove(p, "y"))
	assert.Len(t, m, 0, "empty places are dropped")
}

func TestMarkingRemoveIdents(t *testing.T) {
	m := make(marking)
	m.add(place{"main", "c1"}, "x")
	m.add(place{"main", "c2"}, "x")
	m.add(place{"main", "c2"}, "y")

	n := m.removeIdents(map[string]struct{}{"x": {}})
	assert.Equal(t, 2, n)
	assert.Equal(t, 1, m.size())
	assert.True(t, m.has(place{"main", "c2"}, "y"))
}

func TestMarkingPlacesOf(t *testing.T) {
	m := make(marking)
	m.add(place{"sub", "c9"}, "x")
	m.add(place{"main", "c1"}, "x")
	m.add(place{"main", "c2"}, "y")

	assert.Equal(t, []place{{"main", "c1"}, {"sub", "c9"}}, m.placesOf("x"))
}

func TestMarkingFingerprintStable(t *testing.T) {
	a := make(marking)
	a.add(place{"main", "c2"}, "y")
	a.add(place{"main", "c1"}, "x")
	a.add(place{"main", "c1"}, "z")

	b := make(marking)
	b.add(place{"main", "c1"}, "z")
	b.add(place{"main", "c1"}, "x")
	b.add(place{"main", "c2"}, "y")

	assert.Equal(t, a.fingerprint(), b.fingerprint())

	b.add(place{"main", "c3"}, "x")
	assert.NotEqual(t, a.fingerprint(), b.fingerprint())
}

func TestMarkingCloneIsIndependent(t *testing.T) {
	m := make(marking)
	p := place{"main", "c1"}
	m.add(p, "x")

	cp := m.clone()
	cp.add(p, "y")
	m.remove(p, "x")

	assert.Equal(t, 0, m.size())
	assert.Equal(t, 2, cp.size())
}
