package server

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gitlab.com/caseflow-workflow/caseflow/engine"
	"gitlab.com/caseflow-workflow/caseflow/model"
	"gitlab.com/caseflow-workflow/caseflow/server/server/option"
)

func startServer(t *testing.T, options ...option.Option) (*Server, *engine.Engine) {
	t.Helper()
	svr := New(options...)
	listenDone := make(chan error, 1)
	go func() { listenDone <- svr.Listen() }()
	eng := svr.Engine()
	t.Cleanup(func() {
		svr.Shutdown()
		select {
		case err := <-listenDone:
			require.NoError(t, err)
		case <-time.After(5 * time.Second):
			t.Fatal("server did not stop")
		}
	})
	return svr, eng
}

func approvalSpec() *model.Specification {
	return &model.Specification{
		ID:      "approval",
		Name:    "approval",
		RootNet: "main",
		Nets: map[string]*model.Net{
			"main": {
				ID:              "main",
				InputCondition:  "start",
				OutputCondition: "end",
				Conditions: map[string]*model.Condition{
					"start": {ID: "start", Flows: []string{"approve"}},
					"end":   {ID: "end"},
				},
				Tasks: map[string]*model.Task{
					"approve": {ID: "approve", Join: model.GateXor, Split: model.GateAnd, Flows: []model.Flow{{To: "end"}}},
				},
			},
		},
	}
}

func awaitEnabled(t *testing.T, eng *engine.Engine, caseID, taskID string) *model.WorkItem {
	t.Helper()
	ctx := context.Background()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		items, err := eng.WorkItems(ctx, caseID)
		require.NoError(t, err)
		for _, item := range items {
			if item.TaskID == taskID && item.State == model.ItemEnabled {
				return item
			}
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("no enabled work item for task %s", taskID)
	return nil
}

func TestServerRunsCaseOnEphemeralStorage(t *testing.T) {
	ctx := context.Background()
	_, eng := startServer(t, option.EphemeralStorage())

	require.NoError(t, eng.LoadSpecification(ctx, approvalSpec()))
	caseID, err := eng.LaunchCase(ctx, "approval", nil)
	require.NoError(t, err)

	item := awaitEnabled(t, eng, caseID, "approve")
	require.NoError(t, eng.StartWorkItem(ctx, item.ID, "tester"))
	require.NoError(t, eng.CompleteWorkItem(ctx, item.ID, nil))

	status, err := eng.CaseStatus(ctx, caseID)
	require.NoError(t, err)
	assert.Equal(t, model.CaseCompleted, status)
}

func TestServerRestoresCasesFromDatabase(t *testing.T) {
	ctx := context.Background()
	dbPath := filepath.Join(t.TempDir(), "caseflow.db")

	svr := New(option.DBPath(dbPath))
	listenDone := make(chan error, 1)
	go func() { listenDone <- svr.Listen() }()
	eng := svr.Engine()
	require.NoError(t, eng.LoadSpecification(ctx, approvalSpec()))
	caseID, err := eng.LaunchCase(ctx, "approval", nil)
	require.NoError(t, err)
	awaitEnabled(t, eng, caseID, "approve")

	svr.Shutdown()
	require.NoError(t, <-listenDone)

	_, eng2 := startServer(t, option.DBPath(dbPath))
	item := awaitEnabled(t, eng2, caseID, "approve")
	require.NoError(t, eng2.StartWorkItem(ctx, item.ID, "tester"))
	require.NoError(t, eng2.CompleteWorkItem(ctx, item.ID, nil))

	status, err := eng2.CaseStatus(ctx, caseID)
	require.NoError(t, err)
	assert.Equal(t, model.CaseCompleted, status)
}
