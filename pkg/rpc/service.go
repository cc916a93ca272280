package rpc

import (
	"context"

	"google.golang.org/grpc"
)

// serviceName and the single method it exposes. There is no .proto file
// behind this — see package doc — so the descriptor below is written by
// hand the way protoc-gen-go-grpc would have generated it.
const serviceName = "cluster.PeerFabric"

// Receiver is implemented by whatever wants to handle an inbound peer
// message: the cluster plugin's Shared component, in production, or a
// test double.
type Receiver interface {
	Receive(ctx context.Context, msg *Message) (*Reply, error)
}

// ServiceDesc is the hand-written grpc.ServiceDesc for the PeerFabric
// service's single Send method.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*Receiver)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Send", Handler: sendHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "pkg/rpc/service.go",
}

func sendHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(Message)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(Receiver).Receive(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + serviceName + "/Send"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(Receiver).Receive(ctx, req.(*Message))
	}
	return interceptor(ctx, in, info, handler)
}

// sendMethod is the fully qualified method path used by client Invoke calls.
const sendMethod = "/" + serviceName + "/Send"
