package model

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeVars(t *testing.T) {
	ctx := context.Background()
	v := NewVars()
	v.SetInt64("first", 56)
	v.SetString("second", "elvis")
	v.SetFloat64("third", 5.98)
	v.SetBool("fourth", true)

	e, err := v.Encode(ctx)
	require.NoError(t, err)

	d := NewVars()
	require.NoError(t, d.Decode(ctx, e))
	vFirst, err := d.GetInt64("first")
	require.NoError(t, err)
	vSecond, err := d.GetString("second")
	require.NoError(t, err)
	vThird, err := d.GetFloat64("third")
	require.NoError(t, err)
	vFourth, err := d.GetBool("fourth")
	require.NoError(t, err)
	assert.Equal(t, int64(56), vFirst)
	assert.Equal(t, "elvis", vSecond)
	assert.Equal(t, float64(5.98), vThird)
	assert.Equal(t, true, vFourth)
}

func TestNewRejectsUnsupportedTypes(t *testing.T) {
	_, err := New(map[string]any{"ok": "yes", "bad": []int{1, 2}})
	require.Error(t, err)

	v, err := New(map[string]any{"n": int64(3), "f": 1.5, "b": false, "s": "x"})
	require.NoError(t, err)
	assert.Equal(t, 4, v.Len())
}

func TestMissingVarReportsNotFound(t *testing.T) {
	v := NewVars()
	_, err := v.GetString("absent")
	assert.ErrorIs(t, err, ErrVarNotFound)
}
