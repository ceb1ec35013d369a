// Package wire implements the tapgate plugin protocol from proto/plugin.proto:
// the binary message encoding and the gRPC service stubs for both sides.
//
// Messages are encoded with protowire directly against the frozen field
// numbers in the schema — there is no generated code. Unknown fields are
// skipped on decode so hosts and plugins can evolve independently.
package wire

import (
	"fmt"
	"slices"

	"google.golang.org/protobuf/encoding/protowire"
)

// Stage values mirror the wire enum in proto/plugin.proto.
const (
	StageUnspecified uint64 = 0
	StageRequest     uint64 = 1
	StageResponse    uint64 = 2
)

// Descriptor is the capability declaration returned by Describe.
type Descriptor struct {
	Name        string            // field 1
	Version     string            // field 2
	Description string            // field 3
	Stages      []StageCapability // field 4
	CommitHash  string            // field 5
	BuildDate   string            // field 6
}

// StageCapability declares participation in one stage plus its failure policy.
type StageCapability struct {
	Stage    uint64 // field 1
	FailOpen bool   // field 2
}

// Header is one header field; repetition order is significant.
type Header struct {
	Key    string   // field 1
	Values []string // field 2
}

// Envelope carries one intercepted HTTP message.
type Envelope struct {
	Stage      uint64          // field 1
	Method     string          // field 2
	URL        string          // field 3
	StatusCode int32           // field 4
	Headers    []Header        // field 5
	Body       []byte          // field 6
	Metadata   []MetadataEntry // field 7
}

// MetadataEntry is opaque cross-plugin context attached to an envelope.
type MetadataEntry struct {
	Key   string // field 1
	Value string // field 2
}

// Decision is the plugin's verdict on an envelope.
type Decision struct {
	Continue   bool      // field 1
	Mutated    *Envelope // field 2
	StatusCode int32     // field 3
	Body       []byte    // field 4
	Headers    []Header  // field 5
}

// Empty is the no-payload message.
type Empty struct{}

func (*Empty) MarshalBinary() ([]byte, error) { return nil, nil }

func (*Empty) UnmarshalBinary(data []byte) error {
	// Skip everything: all fields are unknown by definition.
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return protowire.ParseError(n)
		}
		data = data[n:]
		n = protowire.ConsumeFieldValue(num, typ, data)
		if n < 0 {
			return protowire.ParseError(n)
		}
		data = data[n:]
	}
	return nil
}

func (d *Descriptor) MarshalBinary() ([]byte, error) {
	var b []byte
	b = appendString(b, 1, d.Name)
	b = appendString(b, 2, d.Version)
	b = appendString(b, 3, d.Description)
	for i := range d.Stages {
		sub, err := d.Stages[i].MarshalBinary()
		if err != nil {
			return nil, err
		}
		b = appendMessage(b, 4, sub)
	}
	b = appendString(b, 5, d.CommitHash)
	b = appendString(b, 6, d.BuildDate)
	return b, nil
}

func (d *Descriptor) UnmarshalBinary(data []byte) error {
	*d = Descriptor{}
	return consume(data, func(num protowire.Number, typ protowire.Type, v value) error {
		switch num {
		case 1:
			d.Name = v.str()
		case 2:
			d.Version = v.str()
		case 3:
			d.Description = v.str()
		case 4:
			var sc StageCapability
			if err := sc.UnmarshalBinary(v.bytes); err != nil {
				return err
			}
			d.Stages = append(d.Stages, sc)
		case 5:
			d.CommitHash = v.str()
		case 6:
			d.BuildDate = v.str()
		}
		return nil
	})
}

func (sc *StageCapability) MarshalBinary() ([]byte, error) {
	var b []byte
	b = appendVarint(b, 1, sc.Stage)
	b = appendBool(b, 2, sc.FailOpen)
	return b, nil
}

func (sc *StageCapability) UnmarshalBinary(data []byte) error {
	*sc = StageCapability{}
	return consume(data, func(num protowire.Number, typ protowire.Type, v value) error {
		switch num {
		case 1:
			sc.Stage = v.varint
		case 2:
			sc.FailOpen = protowire.DecodeBool(v.varint)
		}
		return nil
	})
}

func (h *Header) MarshalBinary() ([]byte, error) {
	var b []byte
	b = appendString(b, 1, h.Key)
	for _, val := range h.Values {
		b = protowire.AppendTag(b, 2, protowire.BytesType)
		b = protowire.AppendString(b, val)
	}
	return b, nil
}

func (h *Header) UnmarshalBinary(data []byte) error {
	*h = Header{}
	return consume(data, func(num protowire.Number, typ protowire.Type, v value) error {
		switch num {
		case 1:
			h.Key = v.str()
		case 2:
			h.Values = append(h.Values, v.str())
		}
		return nil
	})
}

func (e *Envelope) MarshalBinary() ([]byte, error) {
	var b []byte
	b = appendVarint(b, 1, e.Stage)
	b = appendString(b, 2, e.Method)
	b = appendString(b, 3, e.URL)
	if e.StatusCode != 0 {
		b = appendVarint(b, 4, uint64(uint32(e.StatusCode)))
	}
	for i := range e.Headers {
		sub, err := e.Headers[i].MarshalBinary()
		if err != nil {
			return nil, err
		}
		b = appendMessage(b, 5, sub)
	}
	if len(e.Body) > 0 {
		b = protowire.AppendTag(b, 6, protowire.BytesType)
		b = protowire.AppendBytes(b, e.Body)
	}
	for i := range e.Metadata {
		sub, err := e.Metadata[i].MarshalBinary()
		if err != nil {
			return nil, err
		}
		b = appendMessage(b, 7, sub)
	}
	return b, nil
}

func (e *Envelope) UnmarshalBinary(data []byte) error {
	*e = Envelope{}
	return consume(data, func(num protowire.Number, typ protowire.Type, v value) error {
		switch num {
		case 1:
			e.Stage = v.varint
		case 2:
			e.Method = v.str()
		case 3:
			e.URL = v.str()
		case 4:
			e.StatusCode = int32(v.varint)
		case 5:
			var h Header
			if err := h.UnmarshalBinary(v.bytes); err != nil {
				return err
			}
			e.Headers = append(e.Headers, h)
		case 6:
			e.Body = slices.Clone(v.bytes)
		case 7:
			var m MetadataEntry
			if err := m.UnmarshalBinary(v.bytes); err != nil {
				return err
			}
			e.Metadata = append(e.Metadata, m)
		}
		return nil
	})
}

func (m *MetadataEntry) MarshalBinary() ([]byte, error) {
	var b []byte
	b = appendString(b, 1, m.Key)
	b = appendString(b, 2, m.Value)
	return b, nil
}

func (m *MetadataEntry) UnmarshalBinary(data []byte) error {
	*m = MetadataEntry{}
	return consume(data, func(num protowire.Number, typ protowire.Type, v value) error {
		switch num {
		case 1:
			m.Key = v.str()
		case 2:
			m.Value = v.str()
		}
		return nil
	})
}

func (d *Decision) MarshalBinary() ([]byte, error) {
	var b []byte
	b = appendBool(b, 1, d.Continue)
	if d.Mutated != nil {
		sub, err := d.Mutated.MarshalBinary()
		if err != nil {
			return nil, err
		}
		b = appendMessage(b, 2, sub)
	}
	if d.StatusCode != 0 {
		b = appendVarint(b, 3, uint64(uint32(d.StatusCode)))
	}
	if len(d.Body) > 0 {
		b = protowire.AppendTag(b, 4, protowire.BytesType)
		b = protowire.AppendBytes(b, d.Body)
	}
	for i := range d.Headers {
		sub, err := d.Headers[i].MarshalBinary()
		if err != nil {
			return nil, err
		}
		b = appendMessage(b, 5, sub)
	}
	return b, nil
}

func (d *Decision) UnmarshalBinary(data []byte) error {
	*d = Decision{}
	return consume(data, func(num protowire.Number, typ protowire.Type, v value) error {
		switch num {
		case 1:
			d.Continue = protowire.DecodeBool(v.varint)
		case 2:
			d.Mutated = new(Envelope)
			if err := d.Mutated.UnmarshalBinary(v.bytes); err != nil {
				return err
			}
		case 3:
			d.StatusCode = int32(v.varint)
		case 4:
			d.Body = slices.Clone(v.bytes)
		case 5:
			var h Header
			if err := h.UnmarshalBinary(v.bytes); err != nil {
				return err
			}
			d.Headers = append(d.Headers, h)
		}
		return nil
	})
}

// value holds one decoded field payload. Exactly one of varint/bytes is
// meaningful depending on the wire type seen by the caller.
type value struct {
	varint uint64
	bytes  []byte
}

func (v value) str() string { return string(v.bytes) }

// consume walks every field in data, decoding varint and length-delimited
// payloads and skipping anything else (including unknown field numbers,
// which the callback simply ignores).
func consume(data []byte, field func(protowire.Number, protowire.Type, value) error) error {
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return protowire.ParseError(n)
		}
		data = data[n:]

		switch typ {
		case protowire.VarintType:
			v, m := protowire.ConsumeVarint(data)
			if m < 0 {
				return protowire.ParseError(m)
			}
			if err := field(num, typ, value{varint: v}); err != nil {
				return err
			}
			data = data[m:]
		case protowire.BytesType:
			v, m := protowire.ConsumeBytes(data)
			if m < 0 {
				return protowire.ParseError(m)
			}
			if err := field(num, typ, value{bytes: v}); err != nil {
				return err
			}
			data = data[m:]
		default:
			// Fixed32/fixed64/groups are not used by this schema; skip them
			// so a newer peer can still talk to us.
			m := protowire.ConsumeFieldValue(num, typ, data)
			if m < 0 {
				return protowire.ParseError(m)
			}
			data = data[m:]
		}
	}
	return nil
}

func appendString(b []byte, num protowire.Number, v string) []byte {
	if v == "" {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendString(b, v)
}

func appendVarint(b []byte, num protowire.Number, v uint64) []byte {
	if v == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, v)
}

func appendBool(b []byte, num protowire.Number, v bool) []byte {
	if !v {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, 1)
}

func appendMessage(b []byte, num protowire.Number, sub []byte) []byte {
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, sub)
}

func stageName(s uint64) string {
	switch s {
	case StageRequest:
		return "request"
	case StageResponse:
		return "response"
	default:
		return fmt.Sprintf("stage(%d)", s)
	}
}
