package expression

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	errors2 "gitlab.com/caseflow-workflow/caseflow/server/errors"
)

func TestEvalBooleanPredicate(t *testing.T) {
	ctx := context.Background()
	eng := &ExprEngine{}

	res, err := Eval[bool](ctx, eng, "amount > 1000", map[string]any{"amount": int64(5000)})
	require.NoError(t, err)
	assert.True(t, res)

	res, err = Eval[bool](ctx, eng, "amount > 1000", map[string]any{"amount": int64(500)})
	require.NoError(t, err)
	assert.False(t, res)
}

func TestEvalStripsLeadingEquals(t *testing.T) {
	ctx := context.Background()
	eng := &ExprEngine{}

	res, err := Eval[bool](ctx, eng, "=approved", map[string]any{"approved": true})
	require.NoError(t, err)
	assert.True(t, res)
}

func TestEvalEmptyExpressionIsNil(t *testing.T) {
	res, err := EvalAny(context.Background(), &ExprEngine{}, "", nil)
	require.NoError(t, err)
	assert.Nil(t, res)
}

func TestEvalCompileErrorIsCaseFatal(t *testing.T) {
	_, err := EvalAny(context.Background(), &ExprEngine{}, "1 +", map[string]any{})
	require.Error(t, err)
	assert.True(t, errors2.IsCaseFatal(err))
}

func TestEvalMissingVariableErrors(t *testing.T) {
	_, err := Eval[bool](context.Background(), &ExprEngine{}, "missing > 3", map[string]any{})
	require.Error(t, err)
}

func TestGetVariables(t *testing.T) {
	vs, err := GetVariables(context.Background(), &ExprEngine{}, "amount > threshold && approved")
	require.NoError(t, err)
	names := make([]string, 0, len(vs))
	for _, v := range vs {
		names = append(names, v.Name)
	}
	assert.ElementsMatch(t, []string{"amount", "threshold", "approved"}, names)
}
