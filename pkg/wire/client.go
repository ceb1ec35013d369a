package wire

import (
	"context"

	"google.golang.org/grpc"
)

// PluginClient is the client-side contract for the plugin service.
type PluginClient interface {
	Describe(ctx context.Context, in *Empty, opts ...grpc.CallOption) (*Descriptor, error)
	Handle(ctx context.Context, in *Envelope, opts ...grpc.CallOption) (*Decision, error)
	CheckHealth(ctx context.Context, in *Empty, opts ...grpc.CallOption) (*Empty, error)
	CheckReady(ctx context.Context, in *Empty, opts ...grpc.CallOption) (*Empty, error)
	Stop(ctx context.Context, in *Empty, opts ...grpc.CallOption) (*Empty, error)
}

type pluginClient struct {
	cc grpc.ClientConnInterface
}

// NewPluginClient wraps cc with typed plugin-service calls. The connection
// must have been dialed with DialOption (or every call must carry
// grpc.ForceCodec(Codec{})).
func NewPluginClient(cc grpc.ClientConnInterface) PluginClient {
	return &pluginClient{cc: cc}
}

func (c *pluginClient) Describe(ctx context.Context, in *Empty, opts ...grpc.CallOption) (*Descriptor, error) {
	out := new(Descriptor)
	if err := c.cc.Invoke(ctx, MethodDescribe, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *pluginClient) Handle(ctx context.Context, in *Envelope, opts ...grpc.CallOption) (*Decision, error) {
	out := new(Decision)
	if err := c.cc.Invoke(ctx, MethodHandle, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *pluginClient) CheckHealth(ctx context.Context, in *Empty, opts ...grpc.CallOption) (*Empty, error) {
	out := new(Empty)
	if err := c.cc.Invoke(ctx, MethodCheckHealth, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *pluginClient) CheckReady(ctx context.Context, in *Empty, opts ...grpc.CallOption) (*Empty, error) {
	out := new(Empty)
	if err := c.cc.Invoke(ctx, MethodCheckReady, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *pluginClient) Stop(ctx context.Context, in *Empty, opts ...grpc.CallOption) (*Empty, error) {
	out := new(Empty)
	if err := c.cc.Invoke(ctx, MethodStop, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
