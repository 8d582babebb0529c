package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"connectrpc.com/connect"
	"github.com/tliron/commonlog"

	"github.com/chazu/orca/vm"
	"github.com/chazu/orca/vm/image"
)

var log = commonlog.GetLogger("orca.server")

// OrcaServer serves the toolchain over Connect. The same handlers answer
// Connect (HTTP/JSON), gRPC and gRPC-Web clients.
type OrcaServer struct {
	worker    *Worker
	runs      *RunRegistry
	toolchain *ToolchainService
	mux       *http.ServeMux
	http      *http.Server
}

// ServerOption configures an OrcaServer.
type ServerOption func(*serverConfig)

type serverConfig struct {
	cache    image.Cache
	maxStack int
	timeout  time.Duration
}

// WithCache sets the compiled-program cache. Without it an in-memory cache
// is used.
func WithCache(c image.Cache) ServerOption {
	return func(cfg *serverConfig) { cfg.cache = c }
}

// WithMaxStack sets the stack limit of machines created for Run.
func WithMaxStack(n int) ServerOption {
	return func(cfg *serverConfig) { cfg.maxStack = n }
}

// WithRunTimeout sets the default Run timeout.
func WithRunTimeout(d time.Duration) ServerOption {
	return func(cfg *serverConfig) { cfg.timeout = d }
}

// New creates an OrcaServer.
func New(opts ...ServerOption) *OrcaServer {
	cfg := &serverConfig{
		maxStack: vm.DefaultMaxStack,
		timeout:  DefaultRunTimeout,
	}
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.cache == nil {
		cfg.cache = image.NewMemoryCache()
	}

	s := &OrcaServer{
		worker: NewWorker(),
		runs:   NewRunRegistry(),
		mux:    http.NewServeMux(),
	}
	s.toolchain = NewToolchainService(s.worker, cfg.cache, s.runs, cfg.maxStack)
	s.toolchain.timeout = cfg.timeout

	for path, h := range s.toolchain.Handlers(connect.WithRecover(recoverHandler)) {
		s.mux.Handle(path, h)
	}
	return s
}

// recoverHandler turns a handler panic into an internal error.
func recoverHandler(_ context.Context, spec connect.Spec, _ http.Header, r any) error {
	log.Errorf("panic in %s: %v", spec.Procedure, r)
	return connect.NewError(connect.CodeInternal, errors.New("internal error"))
}

// Handler returns the HTTP handler serving every procedure.
func (s *OrcaServer) Handler() http.Handler {
	return s.mux
}

// ListenAndServe starts the HTTP server on the given address.
// The address should be in the form "host:port" or ":port".
func (s *OrcaServer) ListenAndServe(addr string) error {
	s.http = &http.Server{Addr: addr, Handler: s.mux}
	log.Noticef("Orca toolchain server listening on %s", addr)
	log.Infof("  Connect (HTTP/JSON): http://%s%s", addr, CompileProcedure)
	err := s.http.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Stop cancels active runs and shuts the server down.
func (s *OrcaServer) Stop() {
	if n := s.runs.CancelAll(errRunStopped); n > 0 {
		log.Infof("cancelled %d active runs", n)
	}
	if s.http != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.http.Shutdown(ctx); err != nil {
			log.Warningf("shutdown: %s", err)
		}
	}
	s.worker.Stop()
}
