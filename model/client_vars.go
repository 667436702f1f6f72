package model

import (
	"context"
	"fmt"
	"iter"
	"maps"
	"reflect"

	"github.com/vmihailenco/msgpack/v5"
	"gitlab.com/caseflow-workflow/caseflow/common/logx"
)

// ClientVars holds a map of caller-defined variables forming a case data
// document, with string keys and primitive values.
type ClientVars struct {
	vals map[string]any
}

// NewVars creates and returns a new instance of ClientVars.
func NewVars() *ClientVars {
	return &ClientVars{
		vals: make(map[string]any),
	}
}

// New creates and returns a new instance of ClientVars populated with the given map of vars.
func New(vars map[string]any) (*ClientVars, error) {
	for k, v := range vars {
		switch v.(type) {
		case string, bool, int64, float64:
			continue
		default:
			return nil, fmt.Errorf("%s is not a supported type, please convert to string, bool, int64 or float64", k)
		}
	}

	return &ClientVars{
		vals: vars,
	}, nil
}

// get takes the desired return type as parameter and safely searches the map
// and returns the value if it is found and is of the desired type.
func get[V any](vars *ClientVars, key string) (V, error) { //nolint:ireturn
	var v V

	if vars.vals[key] == nil {
		return v, fmt.Errorf("case var %s found nil: %w", key, ErrVarNotFound)
	}

	v, ok := vars.vals[key].(V)
	if !ok {
		return v, fmt.Errorf("case var %s not present: %w", key, ErrVarNotFound)
	}

	return v, nil
}

// GetString validates that a key has an underlying string value and safely
// returns the result.
func (vars *ClientVars) GetString(key string) (string, error) {
	v, err := get[string](vars, key)
	if err != nil {
		return "", fmt.Errorf("getString: %w", err)
	}
	return v, nil
}

// GetInt64 validates that a key has an underlying integer value and safely
// returns the result.
func (vars *ClientVars) GetInt64(key string) (int64, error) {
	xt, ok := vars.vals[key]
	if !ok {
		return 0, fmt.Errorf("case var %s not present: %w", key, ErrVarNotFound)
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
		return 0, fmt.Errorf("case var %s is %s not int64: %w", key, reflect.TypeOf(xt).Name(), ErrVarNotFound)
	}
}

// GetBool validates that a key has an underlying boolean value and safely
// returns the result.
func (vars *ClientVars) GetBool(key string) (bool, error) {
	v, err := get[bool](vars, key)
	if err != nil {
		return false, fmt.Errorf("getBool: %w", err)
	}
	return v, nil
}

// GetFloat64 validates that a key has an underlying float value and safely
// returns the result.
func (vars *ClientVars) GetFloat64(key string) (float64, error) {
	return get[float64](vars, key)
}

// SetString sets a string value for the specified key.
func (vars *ClientVars) SetString(key string, value string) {
	vars.vals[key] = value
}

// SetInt64 sets an int64 value for the specified key.
func (vars *ClientVars) SetInt64(key string, value int64) {
	vars.vals[key] = value
}

// SetFloat64 sets a float64 value for the specified key.
func (vars *ClientVars) SetFloat64(key string, value float64) {
	vars.vals[key] = value
}

// SetBool sets a boolean value for the specified key.
func (vars *ClientVars) SetBool(key string, value bool) {
	vars.vals[key] = value
}

// Encode encodes the case data document into a binary.
func (vars *ClientVars) Encode(ctx context.Context) ([]byte, error) {
	b, err := msgpack.Marshal(vars.vals)
	if err != nil {
		return nil, logx.Err(ctx, "encode client vars", err)
	}
	return b, nil
}

// Decode decodes a binary object containing a case data document.
func (vars *ClientVars) Decode(ctx context.Context, b []byte) error {
	if len(b) == 0 {
		return nil
	}
	if err := msgpack.Unmarshal(b, &vars.vals); err != nil {
		return logx.Err(ctx, "decode client vars", err)
	}
	return nil
}

// Keys returns a sequence of all keys present in the case data document.
func (vars *ClientVars) Keys() iter.Seq[string] {
	return maps.Keys(vars.vals)
}

// Len returns the number of key-value pairs in the case data document.
func (vars *ClientVars) Len() int {
	return len(vars.vals)
}
