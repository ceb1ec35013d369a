package serve

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/tapgate/plugins-sdk-go/pkg/plugin"
	"github.com/tapgate/plugins-sdk-go/pkg/wire"
)

// rpcHandler adapts the Server to the wire service. Error containment rule:
// only envelope-shape violations surface as call-level gRPC errors; anything
// that goes wrong inside plugin logic becomes a protocol-valid decision per
// the stage's failure policy, so the host pipeline is never left hanging on
// a raw failure.
type rpcHandler struct {
	srv *Server
}

var _ wire.PluginServer = rpcHandler{}

func (h rpcHandler) Describe(ctx context.Context, _ *wire.Empty) (*wire.Descriptor, error) {
	return wire.FromMetadata(h.srv.meta, h.srv.caps), nil
}

func (h rpcHandler) Handle(ctx context.Context, env *wire.Envelope) (*wire.Decision, error) {
	s := h.srv

	ex, err := env.Exchange()
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	if err := ex.Validate(); err != nil {
		// Malformed envelope: rejected before it reaches plugin logic.
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	handler, ok := s.handlers[ex.Stage]
	if !ok {
		return nil, status.Errorf(codes.FailedPrecondition,
			"plugin %q does not support the %s stage", s.meta.Name, ex.Stage)
	}

	s.inFlight.Add(1)
	defer s.inFlight.Add(-1)

	dec := s.dispatch(ctx, handler, ex)

	// Enforce decision invariants before transmission. A handler that built
	// an invalid decision is a handler failure, not a protocol failure the
	// host has to deal with.
	if err := dec.Validate(); err != nil {
		dec = s.failureDecision(ex.Stage, fmt.Errorf("%w: %w", plugin.ErrHandler, err))
	} else if dec.Continue && dec.Mutated != nil {
		if dec.Mutated.Stage != ex.Stage {
			dec = s.failureDecision(ex.Stage, fmt.Errorf("%w: mutated envelope switched stage from %s to %s",
				plugin.ErrHandler, ex.Stage, dec.Mutated.Stage))
		} else if err := dec.Mutated.Validate(); err != nil {
			dec = s.failureDecision(ex.Stage, fmt.Errorf("%w: %w", plugin.ErrHandler, err))
		}
	}

	return wire.FromDecision(dec), nil
}

// dispatch runs the handler on its own goroutine under the per-call timeout.
// On timeout or host cancellation the in-flight result is abandoned and the
// failure policy applies; the goroutine's send never blocks thanks to the
// buffered channel.
func (s *Server) dispatch(ctx context.Context, handler plugin.HandlerFunc, ex *plugin.Exchange) *plugin.Decision {
	callCtx := ctx
	if s.cfg.CallTimeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, s.cfg.CallTimeout)
		defer cancel()
	}

	type result struct {
		dec *plugin.Decision
		err error
	}
	ch := make(chan result, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				ch <- result{err: fmt.Errorf("%w: panic: %v", plugin.ErrHandler, r)}
			}
		}()
		dec, err := handler(callCtx, ex)
		if err != nil {
			ch <- result{err: fmt.Errorf("%w: %w", plugin.ErrHandler, err)}
			return
		}
		if dec == nil {
			ch <- result{err: fmt.Errorf("%w: handler returned no decision", plugin.ErrHandler)}
			return
		}
		ch <- result{dec: dec}
	}()

	select {
	case <-callCtx.Done():
		err := callCtx.Err()
		if errors.Is(err, context.DeadlineExceeded) {
			err = fmt.Errorf("%w (%s)", plugin.ErrTimeout, s.cfg.CallTimeout)
		}
		return s.failureDecision(ex.Stage, err)
	case r := <-ch:
		if r.err != nil {
			return s.failureDecision(ex.Stage, r.err)
		}
		return r.dec
	}
}

// failureDecision applies the stage's declared fail-open/fail-closed policy.
func (s *Server) failureDecision(stage plugin.Stage, err error) *plugin.Decision {
	policy := s.caps[stage]
	s.logger.Error("handler failed, applying failure policy",
		"plugin", s.meta.Name,
		"stage", stage,
		"fail_open", policy.FailOpen,
		"error", err,
	)
	if policy.FailOpen {
		// Pass through: continue with the original, unmodified envelope.
		return plugin.Pass()
	}
	return plugin.ShortCircuit(http.StatusInternalServerError, []byte(`{"error":"plugin handler failed"}`)).
		WithHeader("Content-Type", "application/json")
}

func (h rpcHandler) CheckHealth(ctx context.Context, _ *wire.Empty) (*wire.Empty, error) {
	if hr, ok := h.srv.plugin.(plugin.HealthReporter); ok {
		if err := hr.Health(ctx); err != nil {
			return nil, status.Errorf(codes.Unavailable, "plugin unhealthy: %v", err)
		}
	}
	return &wire.Empty{}, nil
}

func (h rpcHandler) CheckReady(ctx context.Context, _ *wire.Empty) (*wire.Empty, error) {
	if h.srv.state.Load() != stateListening {
		return nil, status.Error(codes.Unavailable, "plugin is not accepting exchanges")
	}
	return &wire.Empty{}, nil
}

func (h rpcHandler) Stop(ctx context.Context, _ *wire.Empty) (*wire.Empty, error) {
	// Acknowledge first; the drain starts asynchronously so this call can
	// complete and is not counted against its own drain.
	h.srv.requestStop()
	return &wire.Empty{}, nil
}
