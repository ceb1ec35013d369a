package wire

import (
	"encoding"
	"fmt"

	"google.golang.org/grpc"
)

// CodecName identifies the tapgate wire encoding in gRPC content subtypes.
const CodecName = "tapgate"

// Codec is a grpc encoding.Codec over the hand-encoded wire messages. Every
// message type in this package satisfies encoding.BinaryMarshaler and
// encoding.BinaryUnmarshaler.
//
// The server side installs it with grpc.ForceServerCodec; clients dial with
// DialOption (or pass grpc.ForceCodec per call).
type Codec struct{}

func (Codec) Name() string { return CodecName }

func (Codec) Marshal(v any) ([]byte, error) {
	m, ok := v.(encoding.BinaryMarshaler)
	if !ok {
		return nil, fmt.Errorf("wire codec: %T is not a wire message", v)
	}
	return m.MarshalBinary()
}

func (Codec) Unmarshal(data []byte, v any) error {
	u, ok := v.(encoding.BinaryUnmarshaler)
	if !ok {
		return fmt.Errorf("wire codec: %T is not a wire message", v)
	}
	return u.UnmarshalBinary(data)
}

// DialOption forces the wire codec on every call made through the
// connection. Hosts must dial plugin endpoints with this option.
func DialOption() grpc.DialOption {
	return grpc.WithDefaultCallOptions(grpc.ForceCodec(Codec{}))
}
