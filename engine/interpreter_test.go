package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gitlab.com/caseflow-workflow/caseflow/common/cache"
	"gitlab.com/caseflow-workflow/caseflow/common/expression"
	errors2 "gitlab.com/caseflow-workflow/caseflow/server/errors"
	"gitlab.com/caseflow-workflow/caseflow/store"
)

// mapBackend is a deterministic cache backend for tests.
type mapBackend struct {
	m map[string]any
}

func newMapBackend() *mapBackend {
	return &mapBackend{m: make(map[string]any)}
}

func (b *mapBackend) Get(key string) (any, bool) {
	v, ok := b.m[key]
	return v, ok
}

func (b *mapBackend) Set(key string, value any) bool {
	b.m[key] = value
	return true
}

func testDeps() *deps {
	return &deps{exp: &expression.ExprEngine{}, memo: cache.New(newMapBackend())}
}

func TestAndJoinBindingCollapsesSiblingThreads(t *testing.T) {
	c := newCaseState("case1", parallelSpec())
	i1, err := c.idents.allocate(c.idents.root)
	require.NoError(t, err)
	i2, err := c.idents.allocate(c.idents.root)
	require.NoError(t, err)
	c.mark.add(place{"main", "c3"}, i1)
	c.mark.add(place{"main", "c4"}, i2)

	bs, err := c.enabledBindings(context.Background(), testDeps())
	require.NoError(t, err)
	require.Len(t, bs, 1)
	assert.Equal(t, "d", bs[0].task.ID)
	assert.Equal(t, c.idents.root, bs[0].ident)
	assert.Len(t, bs[0].consume, 2)
}

func TestAndJoinRejectsAncestorPair(t *testing.T) {
	c := newCaseState("case1", parallelSpec())
	i1, err := c.idents.allocate(c.idents.root)
	require.NoError(t, err)
	// A token and its ancestor's token are not concurrent threads.
	c.mark.add(place{"main", "c3"}, i1)
	c.mark.add(place{"main", "c4"}, c.idents.root)

	bs, err := c.enabledBindings(context.Background(), testDeps())
	require.NoError(t, err)
	assert.Empty(t, bs)
}

func TestAndJoinWaitsForAllInputs(t *testing.T) {
	c := newCaseState("case1", parallelSpec())
	i1, err := c.idents.allocate(c.idents.root)
	require.NoError(t, err)
	c.mark.add(place{"main", "c3"}, i1)

	bs, err := c.enabledBindings(context.Background(), testDeps())
	require.NoError(t, err)
	assert.Empty(t, bs)
}

func TestXorJoinFiresPerToken(t *testing.T) {
	c := newCaseState("case1", parallelSpec())
	i1, err := c.idents.allocate(c.idents.root)
	require.NoError(t, err)
	i2, err := c.idents.allocate(c.idents.root)
	require.NoError(t, err)
	c.mark.add(place{"main", "c1"}, i1)
	c.mark.add(place{"main", "c1"}, i2)

	bs, err := c.enabledBindings(context.Background(), testDeps())
	require.NoError(t, err)
	require.Len(t, bs, 2)
	for _, b := range bs {
		assert.Equal(t, "b", b.task.ID)
		assert.Len(t, b.consume, 1)
	}
}

func TestConsumeAndProduceConserveTokens(t *testing.T) {
	ctx := context.Background()
	c := newCaseState("case1", parallelSpec())
	c.mark.add(place{"main", "start"}, c.idents.root)
	d := testDeps()

	bs, err := c.enabledBindings(ctx, d)
	require.NoError(t, err)
	require.Len(t, bs, 1)

	c.consume(bs[0])
	assert.Equal(t, 0, c.mark.size(), "tokens are gone while the task is busy")

	require.NoError(t, c.produce(ctx, d, "main", bs[0].task, bs[0].ident))
	assert.Equal(t, 2, c.mark.size(), "the and-split fans out to one token per branch")
	assert.Len(t, c.mark.idents(place{"main", "c1"}), 1)
	assert.Len(t, c.mark.idents(place{"main", "c2"}), 1)

	// Fanned-out tokens carry fresh sibling identifiers below the input one.
	id1 := c.mark.idents(place{"main", "c1"})[0]
	id2 := c.mark.idents(place{"main", "c2"})[0]
	assert.NotEqual(t, id1, id2)
	assert.True(t, c.idents.isAncestor(bs[0].ident, id1))
	assert.True(t, c.idents.isAncestor(bs[0].ident, id2))
}

func TestCancelIdentifierIsIdempotent(t *testing.T) {
	c := newCaseState("case1", parallelSpec())
	i1, err := c.idents.allocate(c.idents.root)
	require.NoError(t, err)
	i11, err := c.idents.allocate(i1)
	require.NoError(t, err)
	c.mark.add(place{"main", "c1"}, i1)
	c.mark.add(place{"main", "c3"}, i11)
	c.mark.add(place{"main", "c2"}, c.idents.root)

	c.cancelIdentifier(i1)
	assert.Equal(t, 1, c.mark.size(), "only the subtree's tokens are removed")
	c.cancelIdentifier(i1)
	assert.Equal(t, 1, c.mark.size())
}

func TestSubnetCompletesBesideSiblingDecomposition(t *testing.T) {
	c := newCaseState("case1", compositeSpec())
	i1, err := c.idents.allocate(c.idents.root)
	require.NoError(t, err)
	i2, err := c.idents.allocate(c.idents.root)
	require.NoError(t, err)

	// Two decompositions of the same sub-net, both with their token already
	// at the shared output condition.
	out := place{"sub", "subEnd"}
	c.mark.add(out, i1)
	c.mark.add(out, i2)
	c.decomps = append(c.decomps,
		store.Decomposition{NetID: "main", TaskID: "comp", SubnetID: "sub", Identifier: i1},
		store.Decomposition{NetID: "main", TaskID: "comp", SubnetID: "sub", Identifier: i2},
	)

	for _, dc := range c.decomps {
		assert.False(t, c.subtreeTokensElsewhere(dc, out),
			"a sibling decomposition's token must not block completion")
	}

	// A second token of the same subtree at the output still blocks it.
	extra, err := c.idents.allocate(i1)
	require.NoError(t, err)
	c.mark.add(out, extra)
	assert.True(t, c.subtreeTokensElsewhere(c.decomps[0], out))
	assert.False(t, c.subtreeTokensElsewhere(c.decomps[1], out))
}

func TestOverwideJoinFailsCase(t *testing.T) {
	c := newCaseState("case1", parallelSpec())
	for i := 0; i < 17; i++ {
		a, err := c.idents.allocate(c.idents.root)
		require.NoError(t, err)
		b, err := c.idents.allocate(c.idents.root)
		require.NoError(t, err)
		c.mark.add(place{"main", "c3"}, a)
		c.mark.add(place{"main", "c4"}, b)
	}

	// 17x17 assignments exceed the enumeration budget for d's and-join.
	_, err := c.enabledBindings(context.Background(), testDeps())
	require.Error(t, err)
	assert.True(t, errors2.IsCaseFatal(err))
	assert.Contains(t, err.Error(), "token assignments")
}
