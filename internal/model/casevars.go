package model

import (
	"context"
	"fmt"
	"iter"
	"maps"
	"reflect"

	"github.com/vmihailenco/msgpack/v5"
	"gitlab.com/caseflow-workflow/caseflow/common/logx"
	"gitlab.com/caseflow-workflow/caseflow/model"
)

// CaseVars is the engine-side implementation of the case data document,
// backed by a map of key-value pairs.
type CaseVars struct {
	Vals map[string]any
}

// NewCaseVars creates and returns an empty CaseVars instance.
func NewCaseVars() *CaseVars {
	return &CaseVars{
		Vals: make(map[string]any),
	}
}

// Get takes the desired return type as parameter and safely searches the map,
// returning the value if it is found and is of the desired type.
func Get[V any](vars *CaseVars, key string) (V, error) { //nolint:ireturn
	var v V

	if vars.Vals[key] == nil {
		return v, fmt.Errorf("case var %s found nil: %w", key, model.ErrVarNotFound)
	}

	v, ok := vars.Vals[key].(V)
	if !ok {
		return v, fmt.Errorf("case var %s not present: %w", key, model.ErrVarNotFound)
	}

	return v, nil
}

// GetString validates that a key has an underlying string value and safely
// returns the result.
func (vars *CaseVars) GetString(key string) (string, error) {
	v, err := Get[string](vars, key)
	if err != nil {
		return "", fmt.Errorf("getString: %w", err)
	}
	return v, nil
}

// GetInt64 validates that a key has an underlying integer value and safely
// returns the result.
func (vars *CaseVars) GetInt64(key string) (int64, error) {
	xt, ok := vars.Vals[key]
	if !ok {
		return 0, fmt.Errorf("case var %s not present: %w", key, model.ErrVarNotFound)
	}
	switch ut := xt.(type) {
	case int:
		return int64(ut), nil
	case int8:
		return int64(ut), nil
	case int16:
		return int64(ut), nil
	case int32:
		return int64(ut), nil
	case int64:
		return ut, nil
	case uint8:
		return int64(ut), nil
	case uint16:
		return int64(ut), nil
	case uint32:
		return int64(ut), nil
	default:
		return 0, fmt.Errorf("case var %s is %s not int64: %w", key, reflect.TypeOf(xt).Name(), model.ErrVarNotFound)
	}
}

// GetBool validates that a key has an underlying boolean value and safely
// returns the result.
func (vars *CaseVars) GetBool(key string) (bool, error) {
	v, err := Get[bool](vars, key)
	if err != nil {
		return false, fmt.Errorf("getBool: %w", err)
	}
	return v, nil
}

// GetFloat64 validates that a key has an underlying float value and safely
// returns the result.
func (vars *CaseVars) GetFloat64(key string) (float64, error) {
	return Get[float64](vars, key)
}

// SetString sets a string value for the specified key.
func (vars *CaseVars) SetString(key string, value string) {
	vars.Vals[key] = value
}

// SetInt64 sets an int64 value for the specified key.
func (vars *CaseVars) SetInt64(key string, value int64) {
	vars.Vals[key] = value
}

// SetFloat64 sets a float64 value for the specified key.
func (vars *CaseVars) SetFloat64(key string, value float64) {
	vars.Vals[key] = value
}

// SetBool sets a boolean value for the specified key.
func (vars *CaseVars) SetBool(key string, value bool) {
	vars.Vals[key] = value
}

// Encode encodes the case data document into a binary for persistence.
func (vars *CaseVars) Encode(ctx context.Context) ([]byte, error) {
	b, err := msgpack.Marshal(vars.Vals)
	if err != nil {
		return nil, logx.Err(ctx, "encode vars", err)
	}
	return b, nil
}

// Decode decodes a binary object containing the case data document.
func (vars *CaseVars) Decode(ctx context.Context, b []byte) error {
	if len(b) == 0 {
		return nil
	}

	if err := msgpack.Unmarshal(b, &vars.Vals); err != nil {
		return logx.Err(ctx, "decode vars", err)
	}
	return nil
}

// Keys returns a sequence of all keys present in the case data document.
func (vars *CaseVars) Keys() iter.Seq[string] {
	return maps.Keys(vars.Vals)
}

// Len returns the number of key-value pairs in the case data document.
func (vars *CaseVars) Len() int {
	return len(vars.Vals)
}

// Clone returns a shallow copy of the case data document.  Values are
// primitive types, so a shallow copy is an independent document.
func (vars *CaseVars) Clone() *CaseVars {
	c := NewCaseVars()
	maps.Copy(c.Vals, vars.Vals)
	return c
}
