package wire

import (
	"context"

	"google.golang.org/grpc"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "tapgate.plugins.v1.Plugin"

// Full method names for use with grpc.ClientConnInterface.Invoke and
// interceptor matching.
const (
	MethodDescribe    = "/" + ServiceName + "/Describe"
	MethodHandle      = "/" + ServiceName + "/Handle"
	MethodCheckHealth = "/" + ServiceName + "/CheckHealth"
	MethodCheckReady  = "/" + ServiceName + "/CheckReady"
	MethodStop        = "/" + ServiceName + "/Stop"
)

// PluginServer is the server-side contract for the plugin service.
type PluginServer interface {
	// Describe returns the plugin's capability descriptor.
	Describe(ctx context.Context, in *Empty) (*Descriptor, error)

	// Handle processes one exchange envelope and returns exactly one decision.
	Handle(ctx context.Context, in *Envelope) (*Decision, error)

	CheckHealth(ctx context.Context, in *Empty) (*Empty, error)
	CheckReady(ctx context.Context, in *Empty) (*Empty, error)

	// Stop requests a graceful drain and shutdown.
	Stop(ctx context.Context, in *Empty) (*Empty, error)
}

// RegisterPluginServer registers srv on s. The server must be constructed
// with grpc.ForceServerCodec(Codec{}).
func RegisterPluginServer(s grpc.ServiceRegistrar, srv PluginServer) {
	s.RegisterService(&PluginServiceDesc, srv)
}

// PluginServiceDesc is the hand-written service descriptor matching
// proto/plugin.proto.
var PluginServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*PluginServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Describe", Handler: describeHandler},
		{MethodName: "Handle", Handler: handleHandler},
		{MethodName: "CheckHealth", Handler: checkHealthHandler},
		{MethodName: "CheckReady", Handler: checkReadyHandler},
		{MethodName: "Stop", Handler: stopHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "proto/plugin.proto",
}

func describeHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(PluginServer).Describe(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: MethodDescribe}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(PluginServer).Describe(ctx, req.(*Empty))
	}
	return interceptor(ctx, in, info, handler)
}

func handleHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(Envelope)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(PluginServer).Handle(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: MethodHandle}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(PluginServer).Handle(ctx, req.(*Envelope))
	}
	return interceptor(ctx, in, info, handler)
}

func checkHealthHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(PluginServer).CheckHealth(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: MethodCheckHealth}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(PluginServer).CheckHealth(ctx, req.(*Empty))
	}
	return interceptor(ctx, in, info, handler)
}

func checkReadyHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(PluginServer).CheckReady(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: MethodCheckReady}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(PluginServer).CheckReady(ctx, req.(*Empty))
	}
	return interceptor(ctx, in, info, handler)
}

func stopHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(PluginServer).Stop(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: MethodStop}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(PluginServer).Stop(ctx, req.(*Empty))
	}
	return interceptor(ctx, in, info, handler)
}
