package option

import (
	"gitlab.com/caseflow-workflow/caseflow/engine"
)

// ServerOptions contains settings that control the server's operation.
type ServerOptions struct {
	DBPath              string
	EphemeralStorage    bool
	RecoverOnStart      bool
	RecoveryConcurrency int
	Listeners           []engine.Listener
}

// Option represents a server option.
type Option interface {
	Configure(serverOptions *ServerOptions)
}

// DBPath sets the path of the bolt database file backing the server.
func DBPath(path string) dbPathOption { //nolint
	return dbPathOption{value: path}
}

type dbPathOption struct{ value string }

func (o dbPathOption) Configure(serverOptions *ServerOptions) {
	serverOptions.DBPath = o.value
}

// EphemeralStorage runs the server on an in-memory store.  Nothing survives a
// restart, which is useful for tests and demos only.
func EphemeralStorage() ephemeralStorageOption { //nolint
	return ephemeralStorageOption{}
}

type ephemeralStorageOption struct{}

func (o ephemeralStorageOption) Configure(serverOptions *ServerOptions) {
	serverOptions.EphemeralStorage = true
}

// RecoverOnStart enables or disables restoring active cases during startup.
// This is on by default.
func RecoverOnStart(enabled bool) recoverOption { //nolint
	return recoverOption{value: enabled}
}

type recoverOption struct{ value bool }

func (o recoverOption) Configure(serverOptions *ServerOptions) {
	serverOptions.RecoverOnStart = o.value
}

// RecoveryConcurrency sets how many cases are restored in parallel on start.
func RecoveryConcurrency(n int) recoveryConcurrencyOption { //nolint
	return recoveryConcurrencyOption{value: n}
}

type recoveryConcurrencyOption struct{ value int }

func (o recoveryConcurrencyOption) Configure(serverOptions *ServerOptions) {
	serverOptions.RecoveryConcurrency = o.value
}

// WithListener registers a work-item life-cycle listener with the engine.
func WithListener(l engine.Listener) listenerOption { //nolint
	return listenerOption{value: l}
}

type listenerOption struct{ value engine.Listener }

func (o listenerOption) Configure(serverOptions *ServerOptions) {
	serverOptions.Listeners = append(serverOptions.Listeners, o.value)
}
