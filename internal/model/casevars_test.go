package model

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gitlab.com/caseflow-workflow/caseflow/model"
)

func TestCaseVarsRoundTrip(t *testing.T) {
	ctx := context.Background()
	v := NewCaseVars()
	v.SetInt64("count", 42)
	v.SetString("who", "tester")
	v.SetBool("flag", true)
	v.SetFloat64("ratio", 0.25)

	b, err := v.Encode(ctx)
	require.NoError(t, err)

	d := NewCaseVars()
	require.NoError(t, d.Decode(ctx, b))

	count, err := d.GetInt64("count")
	require.NoError(t, err)
	assert.Equal(t, int64(42), count)
	who, err := d.GetString("who")
	require.NoError(t, err)
	assert.Equal(t, "tester", who)
	flag, err := d.GetBool("flag")
	require.NoError(t, err)
	assert.True(t, flag)
	ratio, err := d.GetFloat64("ratio")
	require.NoError(t, err)
	assert.Equal(t, 0.25, ratio)
}

func TestCaseVarsDecodeEmptyIsNoOp(t *testing.T) {
	v := NewCaseVars()
	v.SetString("keep", "me")
	require.NoError(t, v.Decode(context.Background(), nil))
	assert.Equal(t, 1, v.Len())
}

func TestCaseVarsGetInt64AcceptsNarrowInts(t *testing.T) {
	// msgpack shrinks small integers on the wire, so the getter widens.
	v := NewCaseVars()
	v.Vals["small"] = int8(7)
	got, err := v.GetInt64("small")
	require.NoError(t, err)
	assert.Equal(t, int64(7), got)

	v.Vals["wrong"] = "text"
	_, err = v.GetInt64("wrong")
	assert.ErrorIs(t, err, model.ErrVarNotFound)
}

func TestCaseVarsCloneIsIndependent(t *testing.T) {
	v := NewCaseVars()
	v.SetString("a", "1")

	c := v.Clone()
	c.SetString("b", "2")

	assert.Equal(t, 1, v.Len())
	assert.Equal(t, 2, c.Len())
}
