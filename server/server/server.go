// Package server hosts a case-execution engine over durable storage and ties
// its life to the process signals.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/jedib0t/go-pretty/v6/table"
	"gitlab.com/caseflow-workflow/caseflow/common/logx"
	"gitlab.com/caseflow-workflow/caseflow/engine"
	"gitlab.com/caseflow-workflow/caseflow/server/server/option"
	"gitlab.com/caseflow-workflow/caseflow/store"
)

// Server is the caseflow server.  It owns the store and the engine, and shuts
// both down cleanly on SIGTERM or SIGINT.
type Server struct {
	sig     chan os.Signal
	options option.ServerOptions
	store   store.Store
	engine  *engine.Engine
	ready   chan struct{}
}

// New creates a new caseflow server.
func New(options ...option.Option) *Server {
	s := &Server{
		sig: make(chan os.Signal, 10),
		options: option.ServerOptions{
			DBPath:              "caseflow.db",
			RecoverOnStart:      true,
			RecoveryConcurrency: 8,
		},
		ready: make(chan struct{}),
	}
	for _, i := range options {
		i.Configure(&s.options)
	}
	return s
}

// The following variables are set by -ldflags at build time.
var (
	VersionTag string
	CommitHash string
	BuildDate  string
)

// Details prints the running configuration to stdout.
func (s *Server) Details() {
	t := table.NewWriter()
	t.SetStyle(table.StyleLight)
	t.SetOutputMirror(os.Stdout)
	t.AppendHeader(table.Row{"CASEFLOW SERVER CONFIGURATION", "VALUE"})
	t.Style().Options.SeparateRows = true
	t.AppendRows([]table.Row{
		{"Version           ", VersionTag},
		{"Build Time        ", BuildDate},
		{"Commit SHA        ", CommitHash},
		{"Store Schema      ", store.SchemaVersion},
		{"DB Path           ", s.options.DBPath},
		{"Ephemeral Storage ", s.options.EphemeralStorage},
		{"Recover On Start  ", s.options.RecoverOnStart},
		{"Recovery Workers  ", s.options.RecoveryConcurrency},
	}, table.RowConfig{AutoMerge: false})
	t.AppendSeparator()
	t.Render()
}

// Listen starts the engine, recovers active cases, and blocks until the
// process receives a termination signal.
func (s *Server) Listen() error {
	ctx, log := logx.ContextWith(context.Background(), "server")

	if err := s.start(ctx); err != nil {
		return err
	}
	log.Info("caseflow server started", slog.String("db", s.options.DBPath), slog.Bool("ephemeral", s.options.EphemeralStorage))

	signal.Notify(s.sig, syscall.SIGTERM, syscall.SIGINT)
	sig := <-s.sig
	log.Info("shutting down", slog.String("signal", sig.String()))
	s.engine.Shutdown()
	return nil
}

func (s *Server) start(ctx context.Context) error {
	var st store.Store
	if s.options.EphemeralStorage {
		st = store.NewMemoryStore()
	} else {
		bs, err := store.OpenBolt(s.options.DBPath, 0o600)
		if err != nil {
			return fmt.Errorf("open store at %s: %w", s.options.DBPath, err)
		}
		st = bs
	}
	opts := []engine.Option{engine.WithRecoveryConcurrency(s.options.RecoveryConcurrency)}
	for _, l := range s.options.Listeners {
		opts = append(opts, engine.WithListener(l))
	}
	eng, err := engine.New(st, opts...)
	if err != nil {
		_ = st.Close()
		return fmt.Errorf("create engine: %w", err)
	}
	if s.options.RecoverOnStart {
		if err := eng.Recover(ctx); err != nil {
			eng.Shutdown()
			return fmt.Errorf("recover active cases: %w", err)
		}
	}
	s.store = st
	s.engine = eng
	close(s.ready)
	return nil
}

// Engine exposes the hosted engine, for embedding the server in another
// process.  It blocks until the server has started.
func (s *Server) Engine() *engine.Engine {
	<-s.ready
	return s.engine
}

// Shutdown stops the server from another goroutine.
func (s *Server) Shutdown() {
	s.sig <- syscall.SIGTERM
}
