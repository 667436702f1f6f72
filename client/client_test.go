package client

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gitlab.com/caseflow-workflow/caseflow/engine"
	"gitlab.com/caseflow-workflow/caseflow/model"
	"gitlab.com/caseflow-workflow/caseflow/store"
)

func twoStepSpec() *model.Specification {
	return &model.Specification{
		ID:      "greeting",
		Name:    "greeting",
		RootNet: "main",
		Nets: map[string]*model.Net{
			"main": {
				ID:              "main",
				InputCondition:  "start",
				OutputCondition: "end",
				Conditions: map[string]*model.Condition{
					"start": {ID: "start", Flows: []string{"prepare"}},
					"c1":    {ID: "c1", Flows: []string{"send"}},
					"end":   {ID: "end"},
				},
				Tasks: map[string]*model.Task{
					"prepare": {ID: "prepare", Join: model.GateXor, Split: model.GateAnd, Flows: []model.Flow{{To: "c1"}}},
					"send":    {ID: "send", Join: model.GateXor, Split: model.GateAnd, Flows: []model.Flow{{To: "end"}}},
				},
			},
		},
	}
}

func newTestClient(t *testing.T) *Client {
	t.Helper()
	cl := New(WithParticipant("svc"), WithConcurrency(2))
	eng, err := engine.New(store.NewMemoryStore(), engine.WithListener(cl))
	require.NoError(t, err)
	t.Cleanup(eng.Shutdown)
	cl.Connect(eng)
	return cl
}

func TestClientRunsRegisteredTasks(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	cl := newTestClient(t)
	require.NoError(t, cl.LoadSpecification(ctx, twoStepSpec()))

	require.NoError(t, cl.RegisterTaskHandler("prepare", func(ctx context.Context, item *model.WorkItem, vars model.Vars) (model.Vars, error) {
		out := model.NewVars()
		out.SetString("greeting", "hello")
		return out, nil
	}))
	require.NoError(t, cl.RegisterTaskHandler("send", func(ctx context.Context, item *model.WorkItem, vars model.Vars) (model.Vars, error) {
		g, err := vars.GetString("greeting")
		if err != nil {
			return nil, err
		}
		out := model.NewVars()
		out.SetString("sent", g+" world")
		return out, nil
	}))

	done := make(chan model.Vars, 1)
	cl.RegisterCaseComplete("greeting", func(ctx context.Context, caseID string, vars model.Vars) {
		done <- vars
	})

	go func() { _ = cl.Listen(ctx) }()

	_, err := cl.LaunchCase(ctx, "greeting", nil)
	require.NoError(t, err)

	select {
	case vars := <-done:
		sent, err := vars.GetString("sent")
		require.NoError(t, err)
		assert.Equal(t, "hello world", sent)
	case <-time.After(5 * time.Second):
		t.Fatal("case did not complete")
	}
}

func TestHandlerErrorFailsCase(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	cl := newTestClient(t)
	require.NoError(t, cl.LoadSpecification(ctx, twoStepSpec()))

	require.NoError(t, cl.RegisterTaskHandler("prepare", func(ctx context.Context, item *model.WorkItem, vars model.Vars) (model.Vars, error) {
		return nil, errors.New("upstream unavailable")
	}))

	failed := make(chan string, 1)
	cl.RegisterCaseFailed("greeting", func(ctx context.Context, caseID string, reason string) {
		failed <- reason
	})

	go func() { _ = cl.Listen(ctx) }()

	_, err := cl.LaunchCase(ctx, "greeting", nil)
	require.NoError(t, err)

	select {
	case reason := <-failed:
		assert.Contains(t, reason, "upstream unavailable")
	case <-time.After(5 * time.Second):
		t.Fatal("case did not fail")
	}
}

func TestDuplicateTaskHandlerRejected(t *testing.T) {
	cl := New()
	fn := func(ctx context.Context, item *model.WorkItem, vars model.Vars) (model.Vars, error) {
		return nil, nil
	}
	require.NoError(t, cl.RegisterTaskHandler("prepare", fn))
	assert.Error(t, cl.RegisterTaskHandler("prepare", fn))
}

func TestOperationsRequireConnect(t *testing.T) {
	cl := New()
	assert.ErrorIs(t, cl.Listen(context.Background()), ErrNotConnected)
	_, err := cl.LaunchCase(context.Background(), "greeting", nil)
	assert.ErrorIs(t, err, ErrNotConnected)
}
