package plugin

const (
	// StageUnknown is the zero value and never valid on the wire.
	StageUnknown Stage = iota

	// StageRequest intercepts inbound requests before they reach the upstream.
	StageRequest

	// StageResponse intercepts outbound responses after the upstream responds.
	StageResponse
)

// Stage indicates which point of the HTTP transaction lifecycle a plugin
// participates in. The numeric values match the wire enum and are frozen.
type Stage int

func (s Stage) String() string {
	switch s {
	case StageRequest:
		return "request"
	case StageResponse:
		return "response"
	default:
		return "unknown"
	}
}

// Valid reports whether s names a known stage.
func (s Stage) Valid() bool {
	return s == StageRequest || s == StageResponse
}
