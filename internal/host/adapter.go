package host

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/metric"
	mnop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	tnop "go.opentelemetry.io/otel/trace/noop"

	"github.com/tapgate/plugins-sdk-go/pkg/plugin"
	"github.com/tapgate/plugins-sdk-go/pkg/wire"
)

// Ensure grpcPluginAdapter implements host.Plugin.
var _ Plugin = (*grpcPluginAdapter)(nil)

// grpcPluginAdapter adapts a wire.PluginClient to the host Plugin interface.
// Metadata and capabilities are fetched eagerly at construction — this is
// the registration step, and a plugin whose descriptor declares no stages
// fails it.
type grpcPluginAdapter struct {
	client       wire.PluginClient
	metadata     plugin.Metadata
	capabilities plugin.Capabilities
}

func NewGRPCPluginAdapter(ctx context.Context, client wire.PluginClient) (Plugin, error) {
	desc, err := client.Describe(ctx, &wire.Empty{})
	if err != nil {
		return nil, fmt.Errorf("%w: fetching descriptor: %w", ErrRegistrationFailed, err)
	}
	caps, err := desc.Capabilities()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRegistrationFailed, err)
	}
	meta := desc.Metadata()
	if err := meta.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRegistrationFailed, err)
	}
	return &grpcPluginAdapter{
		client:       client,
		metadata:     meta,
		capabilities: caps,
	}, nil
}

func (g *grpcPluginAdapter) Metadata() plugin.Metadata { return g.metadata }

func (g *grpcPluginAdapter) Capabilities() plugin.Capabilities { return g.capabilities }

func (g *grpcPluginAdapter) HandleExchange(ctx context.Context, ex *plugin.Exchange) (*plugin.Decision, error) {
	resp, err := g.client.Handle(ctx, wire.FromExchange(ex))
	if err != nil {
		return nil, err
	}
	dec, err := resp.Decision()
	if err != nil {
		return nil, err
	}
	if err := dec.Validate(); err != nil {
		return nil, err
	}
	// Plugins are untrusted; a mutated envelope must stay on the call's
	// stage and hold its shape before it is threaded through the pipeline.
	if dec.Continue && dec.Mutated != nil {
		if dec.Mutated.Stage != ex.Stage {
			return nil, fmt.Errorf("%w: mutated envelope switched stage from %s to %s",
				plugin.ErrProtocol, ex.Stage, dec.Mutated.Stage)
		}
		if err := dec.Mutated.Validate(); err != nil {
			return nil, err
		}
	}
	return dec, nil
}

func (g *grpcPluginAdapter) Health(ctx context.Context) error {
	_, err := g.client.CheckHealth(ctx, &wire.Empty{})
	return err
}

func (g *grpcPluginAdapter) Ready(ctx context.Context) (bool, error) {
	if _, err := g.client.CheckReady(ctx, &wire.Empty{}); err != nil {
		return false, err
	}
	return true, nil
}

func (g *grpcPluginAdapter) Stop(ctx context.Context) error {
	_, err := g.client.Stop(ctx, &wire.Empty{})
	return err
}

func (g *grpcPluginAdapter) Tracer() trace.Tracer {
	return tnop.NewTracerProvider().Tracer("")
}

func (g *grpcPluginAdapter) Meter() metric.Meter {
	return mnop.NewMeterProvider().Meter("")
}
