// Package host is the proxy-side view of the plugin protocol: it spawns
// plugin processes, registers them via their capability descriptors, and
// exposes each one as a Plugin the pipeline can route exchanges to.
package host

import (
	"context"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/tapgate/plugins-sdk-go/pkg/plugin"
)

// Plugin is the host-side contract over one running plugin process.
type Plugin interface {
	// Metadata returns the identity fetched at registration time.
	Metadata() plugin.Metadata

	// Capabilities returns the stage set negotiated at registration time.
	// It is immutable for the session.
	Capabilities() plugin.Capabilities

	// HandleExchange sends one envelope and synchronously awaits exactly one
	// decision.
	HandleExchange(ctx context.Context, ex *plugin.Exchange) (*plugin.Decision, error)

	// Health checks internal correctness of the plugin process.
	Health(ctx context.Context) error

	// Ready reports whether the plugin is accepting exchanges.
	Ready(ctx context.Context) (bool, error)

	// Stop asks the plugin process to drain and exit gracefully.
	Stop(ctx context.Context) error

	// Tracer provides OpenTelemetry tracing for distributed request tracking.
	Tracer() trace.Tracer

	// Meter provides OpenTelemetry metrics for counters, histograms, and gauges.
	Meter() metric.Meter
}
