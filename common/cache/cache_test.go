package cache

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

type mockBackend struct {
	mock.Mock
}

func (m *mockBackend) Get(key string) (any, bool) {
	args := m.Called(key)
	return args.Get(0), args.Bool(1)
}

func (m *mockBackend) Set(key string, value any) bool {
	args := m.Called(key, value)
	return args.Bool(0)
}

func TestCacheHit(t *testing.T) {
	backend := &mockBackend{}
	cche := New(backend)

	isCachableFnCalled := false
	key := "key"
	val := "value"
	backend.On("Get", key).Return(val, true)

	cacheableFn := func() (string, error) {
		isCachableFnCalled = true
		return "h", nil
	}

	v, err := Cacheable(key, cacheableFn, cche)

	backend.AssertExpectations(t)
	assert.NoError(t, err)
	assert.Equal(t, val, v)
	assert.Equal(t, false, isCachableFnCalled, "cacheable fn should not have been called")
}

func TestCacheMiss(t *testing.T) {
	backend := &mockBackend{}
	cche := New(backend)

	isCachableFnCalled := false
	key := "key"
	val := "value"
	backend.On("Get", key).Return(nil, false)
	backend.On("Set", key, val).Return(true)

	cacheableFn := func() (string, error) {
		isCachableFnCalled = true
		return val, nil
	}

	v, err := Cacheable(key, cacheableFn, cche)

	backend.AssertExpectations(t)
	assert.NoError(t, err)
	assert.Equal(t, val, v)
	assert.Equal(t, true, isCachableFnCalled, "cacheable fn should have been called")
}

func TestCacheMissError(t *testing.T) {
	backend := &mockBackend{}
	cche := New(backend)

	isCachableFnCalled := false
	key := "key"
	backend.On("Get", key).Return(nil, false)

	cacheableFn := func() (string, error) {
		isCachableFnCalled = true
		return "", fmt.Errorf("fetch value: %w", errors.New("cacheableFn err"))
	}

	v, err := Cacheable(key, cacheableFn, cche)

	backend.AssertExpectations(t)
	backend.AssertNotCalled(t, "Set")
	assert.Equal(t, "", v)
	assert.Error(t, err)
	assert.Equal(t, true, isCachableFnCalled, "cacheable fn should have been called")
}
