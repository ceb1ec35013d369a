package plugin

import (
	"context"
	"fmt"
)

// Plugin is the contract a plugin author implements.
//
// Metadata and Capabilities are queried once at startup and must be
// deterministic for a given build; the runtime caches them for the process
// lifetime. A plugin additionally implements RequestHandler and/or
// ResponseHandler for every stage its capabilities declare — a declared
// stage without the matching handler interface fails startup with
// ErrConfiguration rather than failing at first call.
type Plugin interface {
	// Metadata returns static identity information. Name and Version are required.
	Metadata() Metadata

	// Capabilities returns the stages this plugin participates in, each with
	// its failure policy. Must be non-empty.
	Capabilities() Capabilities
}

// RequestHandler processes request-stage exchanges.
type RequestHandler interface {
	HandleRequest(ctx context.Context, ex *Exchange) (*Decision, error)
}

// ResponseHandler processes response-stage exchanges.
type ResponseHandler interface {
	HandleResponse(ctx context.Context, ex *Exchange) (*Decision, error)
}

// HealthReporter is optionally implemented by plugins that can check their
// own internal correctness. Plugins without it are reported healthy whenever
// the runtime is serving.
type HealthReporter interface {
	Health(ctx context.Context) error
}

// HandlerFunc is the per-stage dispatch signature used by the runtime.
type HandlerFunc func(ctx context.Context, ex *Exchange) (*Decision, error)

// Metadata provides static identity information for a plugin.
type Metadata struct {
	// Name is the unique identifier for this plugin.
	Name string

	// Version is the semantic version of the plugin.
	Version string

	// Description provides human-readable information about the plugin's purpose.
	Description string

	// CommitHash is the git commit hash the plugin was built from.
	CommitHash string

	// BuildDate is the ISO 8601 timestamp when the plugin was compiled.
	BuildDate string
}

// Validate checks that the required identity fields are present.
func (m Metadata) Validate() error {
	if m.Name == "" {
		return fmt.Errorf("%w: metadata name is required", ErrConfiguration)
	}
	if m.Version == "" {
		return fmt.Errorf("%w: metadata version is required", ErrConfiguration)
	}
	return nil
}

// Policy controls what the runtime does when a handler errors, panics, or
// exceeds the per-call deadline.
type Policy struct {
	// FailOpen passes the original envelope through unmodified on failure.
	// The default (fail-closed) short-circuits with a 500.
	FailOpen bool
}

// Capabilities maps each supported stage to its failure policy.
type Capabilities map[Stage]Policy

// Supports reports whether the stage was declared.
func (c Capabilities) Supports(s Stage) bool {
	_, ok := c[s]
	return ok
}

// Validate rejects an empty stage set or an unknown stage. A plugin that
// declares no stages is invalid and must fail registration.
func (c Capabilities) Validate() error {
	if len(c) == 0 {
		return fmt.Errorf("%w: plugin declares no stages", ErrConfiguration)
	}
	for s := range c {
		if !s.Valid() {
			return fmt.Errorf("%w: unknown stage %d", ErrConfiguration, int(s))
		}
	}
	return nil
}
