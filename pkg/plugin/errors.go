package plugin

import "errors"

var (
	// ErrConfiguration is returned for an invalid plugin declaration: empty
	// metadata, no declared stages, or a declared stage without a handler.
	// It is fatal at startup; the runtime never starts listening in this state.
	ErrConfiguration = errors.New("invalid plugin configuration")

	// ErrProtocol is returned for an envelope or decision that violates the
	// exchange contract (e.g. a response-stage envelope without a status code,
	// or a short-circuit decision without a valid one). It fails the single
	// call, never the server.
	ErrProtocol = errors.New("exchange protocol violation")

	// ErrHandler wraps an unhandled error (or panic) from plugin-author logic.
	// The runtime converts it into a decision per the stage's failure policy.
	ErrHandler = errors.New("plugin handler failed")

	// ErrBind is returned when the configured listen endpoint is unavailable.
	// Fatal at startup.
	ErrBind = errors.New("listen endpoint unavailable")

	// ErrTimeout is returned when a handler exceeds the per-call deadline.
	// Treated like ErrHandler for failure-policy purposes.
	ErrTimeout = errors.New("handler deadline exceeded")
)
