package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gitlab.com/caseflow-workflow/caseflow/model"
	errors2 "gitlab.com/caseflow-workflow/caseflow/server/errors"
	"go.etcd.io/bbolt"
)

func openTestBolt(t *testing.T) *BoltStore {
	t.Helper()
	s, err := OpenBolt(filepath.Join(t.TempDir(), "store.db"), 0o600)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func testSpec() *model.Specification {
	return &model.Specification{
		ID:      "s1",
		RootNet: "main",
		Nets: map[string]*model.Net{
			"main": {
				ID:              "main",
				InputCondition:  "in",
				OutputCondition: "out",
				Conditions: map[string]*model.Condition{
					"in":  {ID: "in", Flows: []string{"t"}},
					"out": {ID: "out"},
				},
				Tasks: map[string]*model.Task{
					"t": {ID: "t", Flows: []model.Flow{{To: "out"}}},
				},
			},
		},
	}
}

func snapshotFor(caseID string, status model.CaseStatus) *CaseSnapshot {
	return &CaseSnapshot{
		CaseID: caseID,
		SpecID: "s1",
		Status: status,
		Root:   "root-ident",
		Marking: []PlaceTokens{
			{NetID: "main", ConditionID: "in", Identifiers: []string{"root-ident"}},
		},
		Identifiers: []IdentNode{{ID: "root-ident"}},
	}
}

func TestBoltSpecificationRoundTrip(t *testing.T) {
	s := openTestBolt(t)
	ctx := context.Background()

	require.NoError(t, s.PutSpecification(ctx, testSpec()))
	got, err := s.GetSpecification(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "main", got.RootNet)
	assert.Contains(t, got.Nets["main"].Tasks, "t")

	_, err = s.GetSpecification(ctx, "missing")
	assert.ErrorIs(t, err, errors2.ErrSpecNotFound)
}

func TestBoltLoadReturnsLastTransition(t *testing.T) {
	s := openTestBolt(t)
	ctx := context.Background()

	for i, status := range []model.CaseStatus{model.CaseRunning, model.CaseRunning, model.CaseCompleted} {
		rec := &TransitionRecord{CaseID: "c1", Kind: "event", State: snapshotFor("c1", status)}
		require.NoError(t, s.AppendTransition(ctx, "c1", rec))
		assert.Equal(t, uint64(i+1), rec.Seq)
	}

	snap, err := s.LoadCaseState(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, model.CaseCompleted, snap.Status)
	assert.Equal(t, "root-ident", snap.Root)
}

func TestBoltTransitionsListHistoryInOrder(t *testing.T) {
	s := openTestBolt(t)
	ctx := context.Background()

	for _, kind := range []string{"case.launch", "workItem.start", "workItem.complete"} {
		rec := &TransitionRecord{CaseID: "c1", Kind: kind, State: snapshotFor("c1", model.CaseRunning)}
		require.NoError(t, s.AppendTransition(ctx, "c1", rec))
	}
	require.NoError(t, s.ArchiveCase(ctx, "c1"))

	recs, err := s.Transitions(ctx, "c1")
	require.NoError(t, err)
	require.Len(t, recs, 3)
	assert.Equal(t, "case.launch", recs[0].Kind)
	assert.Equal(t, "workItem.complete", recs[2].Kind)
	assert.Equal(t, uint64(3), recs[2].Seq)

	_, err = s.Transitions(ctx, "missing")
	assert.ErrorIs(t, err, errors2.ErrCaseNotFound)
}

func TestBoltActiveAndArchive(t *testing.T) {
	s := openTestBolt(t)
	ctx := context.Background()

	require.NoError(t, s.AppendTransition(ctx, "c1", &TransitionRecord{CaseID: "c1", Kind: "launch", State: snapshotFor("c1", model.CaseRunning)}))
	require.NoError(t, s.AppendTransition(ctx, "c2", &TransitionRecord{CaseID: "c2", Kind: "launch", State: snapshotFor("c2", model.CaseRunning)}))

	ids, err := s.ActiveCases(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"c1", "c2"}, ids)

	require.NoError(t, s.ArchiveCase(ctx, "c1"))
	ids, err = s.ActiveCases(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"c2"}, ids)

	// Archived history remains readable.
	snap, err := s.LoadCaseState(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, "c1", snap.CaseID)

	err = s.ArchiveCase(ctx, "c1")
	assert.ErrorIs(t, err, errors2.ErrCaseNotFound)
}

func TestBoltSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "store.db")
	ctx := context.Background()

	s, err := OpenBolt(path, 0o600)
	require.NoError(t, err)
	require.NoError(t, s.PutSpecification(ctx, testSpec()))
	require.NoError(t, s.AppendTransition(ctx, "c1", &TransitionRecord{CaseID: "c1", Kind: "launch", State: snapshotFor("c1", model.CaseRunning)}))
	require.NoError(t, s.Close())

	s2, err := OpenBolt(path, 0o600)
	require.NoError(t, err)
	defer func() { _ = s2.Close() }()

	snap, err := s2.LoadCaseState(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, model.CaseRunning, snap.Status)
}

func TestBoltRefusesForeignSchema(t *testing.T) {
	path := filepath.Join(t.TempDir(), "store.db")

	s, err := OpenBolt(path, 0o600)
	require.NoError(t, err)
	require.NoError(t, s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketMeta).Put(keySchema, []byte("9.0.0"))
	}))
	require.NoError(t, s.Close())

	_, err = OpenBolt(path, 0o600)
	assert.ErrorIs(t, err, errors2.ErrStoreVersion)
}

func TestBoltCorruptRecordReportsCorruptState(t *testing.T) {
	s := openTestBolt(t)
	ctx := context.Background()

	require.NoError(t, s.AppendTransition(ctx, "c1", &TransitionRecord{CaseID: "c1", Kind: "launch", State: snapshotFor("c1", model.CaseRunning)}))
	require.NoError(t, s.db.Update(func(tx *bbolt.Tx) error {
		cb := tx.Bucket(bucketCases).Bucket([]byte("c1"))
		k, _ := cb.Cursor().Last()
		return cb.Put(k, []byte{0xc1})
	}))

	_, err := s.LoadCaseState(ctx, "c1")
	assert.ErrorIs(t, err, errors2.ErrCorruptState)
}
