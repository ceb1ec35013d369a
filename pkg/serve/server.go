// Package serve hosts a plugin behind the tapgate wire protocol.
//
// A plugin author implements plugin.Plugin (plus the per-stage handler
// interfaces), constructs a Server with New and calls ListenAndServe. The
// server validates the declaration at startup, answers Describe with the
// cached capability descriptor, dispatches each exchange on its own
// goroutine under the per-call timeout, and converts handler failures into
// protocol-valid decisions per the declared failure policy — a misbehaving
// handler never blocks or crashes the host-facing endpoint.
package serve

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/hashicorp/go-hclog"
	"google.golang.org/grpc"

	"github.com/tapgate/plugins-sdk-go/pkg/plugin"
	"github.com/tapgate/plugins-sdk-go/pkg/wire"
)

// Server lifecycle states.
const (
	stateUnstarted int32 = iota
	stateListening
	stateShuttingDown
	stateStopped
)

// Option customizes a Server.
type Option func(*Server)

// WithLogger replaces the default logger.
func WithLogger(logger hclog.Logger) Option {
	return func(s *Server) { s.logger = logger }
}

// WithConfig supplies an explicit configuration instead of DefaultConfig.
// Use LoadConfig to read it from the environment.
func WithConfig(cfg Config) Option {
	return func(s *Server) { s.cfg = cfg }
}

// Server is the plugin runtime: a long-lived gRPC endpoint exposing the
// plugin's capability descriptor and exchange handling to the host proxy.
type Server struct {
	plugin   plugin.Plugin
	meta     plugin.Metadata
	caps     plugin.Capabilities
	handlers map[plugin.Stage]plugin.HandlerFunc

	cfg    Config
	logger hclog.Logger

	grpcServer  *grpc.Server
	state       atomic.Int32
	inFlight    atomic.Int64
	stopOnce    sync.Once
	stopReqOnce sync.Once
	stopped     chan struct{}
}

// New validates the plugin's declaration and builds a server for it.
//
// Validation happens here, not at first call: empty metadata, an empty
// capability set, or a declared stage without the matching handler interface
// all return plugin.ErrConfiguration, and the process must not begin
// serving in that state.
func New(p plugin.Plugin, opts ...Option) (*Server, error) {
	s := &Server{
		plugin:  p,
		cfg:     DefaultConfig(),
		stopped: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = hclog.New(&hclog.LoggerOptions{Name: "plugin-serve"})
	}

	if err := s.cfg.Validate(); err != nil {
		return nil, err
	}

	// Descriptor construction failures are fatal here, before Listening.
	s.meta = p.Metadata()
	if err := s.meta.Validate(); err != nil {
		return nil, err
	}
	s.caps = p.Capabilities()
	if err := s.caps.Validate(); err != nil {
		return nil, fmt.Errorf("plugin %q: %w", s.meta.Name, err)
	}

	s.handlers = make(map[plugin.Stage]plugin.HandlerFunc, len(s.caps))
	for stage := range s.caps {
		switch stage {
		case plugin.StageRequest:
			h, ok := p.(plugin.RequestHandler)
			if !ok {
				return nil, fmt.Errorf("%w: plugin %q declares %s stage without implementing RequestHandler",
					plugin.ErrConfiguration, s.meta.Name, stage)
			}
			s.handlers[stage] = h.HandleRequest
		case plugin.StageResponse:
			h, ok := p.(plugin.ResponseHandler)
			if !ok {
				return nil, fmt.Errorf("%w: plugin %q declares %s stage without implementing ResponseHandler",
					plugin.ErrConfiguration, s.meta.Name, stage)
			}
			s.handlers[stage] = h.HandleResponse
		}
	}

	return s, nil
}

// ListenAndServe binds the configured endpoint and serves until ctx is
// canceled, a termination signal arrives, or the host calls Stop. A bind
// failure returns plugin.ErrBind; a clean drain returns nil.
func (s *Server) ListenAndServe(ctx context.Context) error {
	network, address := s.cfg.Network, s.cfg.ListenAddress()

	if network == "unix" {
		// A stale socket from a previous run would fail the bind.
		_ = os.Remove(address)
	}
	lis, err := net.Listen(network, address)
	if err != nil {
		return fmt.Errorf("%w: listen %s %s: %w", plugin.ErrBind, network, address, err)
	}
	defer func() {
		if network == "unix" {
			_ = os.Remove(address)
		}
	}()

	return s.Serve(ctx, lis)
}

// Serve runs the plugin service on an existing listener. Most callers want
// ListenAndServe; Serve exists for tests and callers that manage their own
// listeners.
func (s *Server) Serve(ctx context.Context, lis net.Listener) error {
	if !s.state.CompareAndSwap(stateUnstarted, stateListening) {
		return fmt.Errorf("%w: server already started", plugin.ErrConfiguration)
	}

	s.grpcServer = grpc.NewServer(grpc.ForceServerCodec(wire.Codec{}))
	wire.RegisterPluginServer(s.grpcServer, rpcHandler{srv: s})

	notifyCtx, stopNotify := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stopNotify()

	go func() {
		select {
		case <-notifyCtx.Done():
			s.logger.Info("shutdown requested", "reason", "signal or context")
		case <-s.stopped:
			s.logger.Info("shutdown requested", "reason", "stop call")
		}
		s.shutdown()
	}()

	s.logger.Info("plugin server listening",
		"plugin", s.meta.Name,
		"version", s.meta.Version,
		"network", lis.Addr().Network(),
		"address", lis.Addr().String(),
		"stages", len(s.caps),
	)

	err := s.grpcServer.Serve(lis)
	s.state.Store(stateStopped)
	if err != nil && !errors.Is(err, grpc.ErrServerStopped) {
		return fmt.Errorf("serving plugin %q: %w", s.meta.Name, err)
	}
	s.logger.Info("plugin server stopped", "plugin", s.meta.Name)
	return nil
}

// shutdown drains in-flight calls bounded by the drain timeout, then closes
// the listener forcefully.
func (s *Server) shutdown() {
	s.stopOnce.Do(func() {
		s.state.Store(stateShuttingDown)
		s.logger.Info("draining in-flight calls",
			"in_flight", s.inFlight.Load(),
			"drain_timeout", s.cfg.DrainTimeout,
		)

		done := make(chan struct{})
		go func() {
			s.grpcServer.GracefulStop()
			close(done)
		}()

		if s.cfg.DrainTimeout <= 0 {
			<-done
			return
		}
		select {
		case <-done:
		case <-time.After(s.cfg.DrainTimeout):
			s.logger.Warn("drain timeout exceeded, forcing stop")
			s.grpcServer.Stop()
			<-done
		}
	})
}

// requestStop triggers the same shutdown path as a termination signal. Used
// by the Stop RPC.
func (s *Server) requestStop() {
	s.stopReqOnce.Do(func() { close(s.stopped) })
}
