package plugin

import "fmt"

// Decision is a plugin's verdict on an exchange: continue (optionally with a
// mutated envelope) or short-circuit with a synthesized response.
type Decision struct {
	// Continue passes the transaction on to the next hop. When false the
	// host answers the client directly with the short-circuit fields below.
	Continue bool

	// Mutated replaces the envelope for downstream processing. Only
	// meaningful when Continue is true; nil means pass through unchanged.
	Mutated *Exchange

	// Status, Body and Headers synthesize the client-facing response when
	// Continue is false. Status must be a valid HTTP status in [100,599].
	Status  int
	Body    []byte
	Headers Headers
}

// Pass continues the transaction with the envelope unchanged.
func Pass() *Decision {
	return &Decision{Continue: true}
}

// Mutate continues the transaction with ex replacing the original envelope.
func Mutate(ex *Exchange) *Decision {
	return &Decision{Continue: true, Mutated: ex}
}

// ShortCircuit stops the transaction and answers the client with the given
// status and body.
func ShortCircuit(status int, body []byte) *Decision {
	return &Decision{Status: status, Body: body}
}

// WithHeader adds a header to a short-circuit response and returns d for
// chaining.
func (d *Decision) WithHeader(key, value string) *Decision {
	d.Headers.Add(key, value)
	return d
}

// Validate enforces the decision invariants. The runtime rejects an invalid
// decision before transmission and applies the stage's failure policy
// instead.
func (d *Decision) Validate() error {
	if d.Continue {
		if d.Status != 0 || len(d.Body) > 0 || len(d.Headers) > 0 {
			return fmt.Errorf("%w: continue decision carries short-circuit fields", ErrProtocol)
		}
		return nil
	}
	if d.Mutated != nil {
		return fmt.Errorf("%w: short-circuit decision carries a mutated envelope", ErrProtocol)
	}
	if !validStatus(d.Status) {
		return fmt.Errorf("%w: short-circuit status %d outside [100,599]", ErrProtocol, d.Status)
	}
	return nil
}
