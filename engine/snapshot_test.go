package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gitlab.com/caseflow-workflow/caseflow/model"
	errors2 "gitlab.com/caseflow-workflow/caseflow/server/errors"
)

func TestSnapshotRestoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	spec := parallelSpec()
	c := newCaseState("case1", spec)
	d := testDeps()
	n := &notices{}

	require.NoError(t, c.launch(ctx, d, nil, n))
	require.Len(t, c.liveItems(), 1)
	c.vars.SetString("customer", "acme")

	snap, err := c.snapshot(ctx)
	require.NoError(t, err)

	r, err := restoreCase(ctx, spec, snap)
	require.NoError(t, err)
	assert.Equal(t, c.caseID, r.caseID)
	assert.Equal(t, c.status, r.status)
	assert.Equal(t, c.mark.fingerprint(), r.mark.fingerprint())
	assert.Equal(t, c.idents.root, r.idents.root)
	require.Len(t, r.liveItems(), 1)
	assert.Equal(t, c.liveItems()[0].ID, r.liveItems()[0].ID)
	got, err := r.vars.GetString("customer")
	require.NoError(t, err)
	assert.Equal(t, "acme", got)
}

func TestSnapshotIsIndependentOfLaterMutation(t *testing.T) {
	ctx := context.Background()
	c := newCaseState("case1", parallelSpec())
	c.mark.add(place{"main", "start"}, c.idents.root)

	snap, err := c.snapshot(ctx)
	require.NoError(t, err)

	c.mark.remove(place{"main", "start"}, c.idents.root)
	c.vars.SetString("late", "change")

	require.Len(t, snap.Marking, 1)
	assert.Equal(t, []string{c.idents.root}, snap.Marking[0].Identifiers)
	assert.NotContains(t, string(snap.Vars), "late")
}

func TestRestoreRejectsSpecMismatch(t *testing.T) {
	ctx := context.Background()
	c := newCaseState("case1", parallelSpec())
	snap, err := c.snapshot(ctx)
	require.NoError(t, err)

	other := parallelSpec()
	other.ID = "different"
	_, err = restoreCase(ctx, other, snap)
	assert.ErrorIs(t, err, errors2.ErrCorruptState)
}

func TestRestoreRejectsUnknownPlacesAndIdentifiers(t *testing.T) {
	ctx := context.Background()
	spec := parallelSpec()
	c := newCaseState("case1", spec)
	c.mark.add(place{"main", "start"}, c.idents.root)

	snap, err := c.snapshot(ctx)
	require.NoError(t, err)
	snap.Marking[0].ConditionID = "ghost"
	_, err = restoreCase(ctx, spec, snap)
	assert.ErrorIs(t, err, errors2.ErrCorruptState)

	snap, err = c.snapshot(ctx)
	require.NoError(t, err)
	snap.Marking[0].Identifiers = []string{"never-allocated"}
	_, err = restoreCase(ctx, spec, snap)
	assert.ErrorIs(t, err, errors2.ErrCorruptState)
}

func TestDeadlinesListsLiveTimedItems(t *testing.T) {
	spec := parallelSpec()
	spec.Nets["main"].Tasks["b"].Timeout = time.Minute
	c := newCaseState("case1", spec)

	timed := c.newItem("main", spec.Nets["main"].Tasks["b"], c.idents.root, "")
	plain := c.newItem("main", spec.Nets["main"].Tasks["c"], c.idents.root, "")
	done := c.newItem("main", spec.Nets["main"].Tasks["d"], c.idents.root, "")
	done.State = model.ItemComplete
	done.DeadlineAt = time.Now().Add(time.Minute).UnixNano()

	dl := c.deadlines()
	assert.Contains(t, dl, timed.ID)
	assert.NotContains(t, dl, plain.ID)
	assert.NotContains(t, dl, done.ID, "terminal items carry no timer")
}
