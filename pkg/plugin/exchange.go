package plugin

import (
	"fmt"
	"maps"
	"slices"
	"strings"
)

// Header is a single header field with one or more values. Field order and
// value order are significant and preserved across the wire.
type Header struct {
	Key    string
	Values []string
}

// Headers is an ordered, multi-valued header collection. Lookups are
// case-insensitive; the stored casing is preserved.
type Headers []Header

// Get returns the first value for key, or "" if absent.
func (h Headers) Get(key string) string {
	for _, f := range h {
		if strings.EqualFold(f.Key, key) && len(f.Values) > 0 {
			return f.Values[0]
		}
	}
	return ""
}

// Values returns all values for key in order.
func (h Headers) Values(key string) []string {
	var out []string
	for _, f := range h {
		if strings.EqualFold(f.Key, key) {
			out = append(out, f.Values...)
		}
	}
	return out
}

// Add appends value to key, creating the field at the end if absent.
func (h *Headers) Add(key, value string) {
	for i, f := range *h {
		if strings.EqualFold(f.Key, key) {
			(*h)[i].Values = append(f.Values, value)
			return
		}
	}
	*h = append(*h, Header{Key: key, Values: []string{value}})
}

// Set replaces all values for key with value, creating the field at the end
// if absent.
func (h *Headers) Set(key, value string) {
	for i, f := range *h {
		if strings.EqualFold(f.Key, key) {
			(*h)[i].Values = []string{value}
			return
		}
	}
	*h = append(*h, Header{Key: key, Values: []string{value}})
}

// Del removes every field named key.
func (h *Headers) Del(key string) {
	out := (*h)[:0]
	for _, f := range *h {
		if !strings.EqualFold(f.Key, key) {
			out = append(out, f)
		}
	}
	*h = out
}

// Clone returns a deep copy.
func (h Headers) Clone() Headers {
	if h == nil {
		return nil
	}
	out := make(Headers, len(h))
	for i, f := range h {
		out[i] = Header{Key: f.Key, Values: slices.Clone(f.Values)}
	}
	return out
}

// Exchange carries one intercepted HTTP transaction at a given stage.
// Method and URL are set only for StageRequest; StatusCode only for
// StageResponse. Fields not applicable to the stage must be left zero.
//
// An Exchange is owned exclusively by the call it was created for and must
// not be retained after the decision has been returned.
type Exchange struct {
	Stage      Stage
	Method     string
	URL        string
	StatusCode int
	Headers    Headers
	Body       []byte

	// Metadata is opaque context passed between plugins on the same
	// transaction (e.g. an exchange ID stamped by the host).
	Metadata map[string]string
}

// Validate checks the stage-specific shape of the envelope. A malformed
// envelope is rejected with ErrProtocol before it reaches plugin logic.
func (ex *Exchange) Validate() error {
	switch ex.Stage {
	case StageRequest:
		if ex.Method == "" {
			return fmt.Errorf("%w: request envelope missing method", ErrProtocol)
		}
		if ex.URL == "" {
			return fmt.Errorf("%w: request envelope missing url", ErrProtocol)
		}
		if ex.StatusCode != 0 {
			return fmt.Errorf("%w: request envelope carries status code %d", ErrProtocol, ex.StatusCode)
		}
	case StageResponse:
		if !validStatus(ex.StatusCode) {
			return fmt.Errorf("%w: response envelope status code %d outside [100,599]", ErrProtocol, ex.StatusCode)
		}
		if ex.Method != "" || ex.URL != "" {
			return fmt.Errorf("%w: response envelope carries request fields", ErrProtocol)
		}
	default:
		return fmt.Errorf("%w: unknown stage %d", ErrProtocol, int(ex.Stage))
	}
	return nil
}

// Clone returns a deep copy, safe to mutate independently.
func (ex *Exchange) Clone() *Exchange {
	if ex == nil {
		return nil
	}
	out := &Exchange{
		Stage:      ex.Stage,
		Method:     ex.Method,
		URL:        ex.URL,
		StatusCode: ex.StatusCode,
		Headers:    ex.Headers.Clone(),
		Body:       slices.Clone(ex.Body),
	}
	if ex.Metadata != nil {
		out.Metadata = maps.Clone(ex.Metadata)
	}
	return out
}

func validStatus(code int) bool {
	return code >= 100 && code <= 599
}
