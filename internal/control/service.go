// Package control is the gRPC control plane a UI process uses to drive a
// running link: status, diagnostics, sending control messages, reconnect
// and target selection. Messages are protobuf well-known types, so the
// service needs no generated code.
package control

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// ServiceName is the fully qualified gRPC service name
const ServiceName = "ctrlr.control.v1.Control"

const (
	methodStatus         = "/" + ServiceName + "/Status"
	methodDiagnostics    = "/" + ServiceName + "/Diagnostics"
	methodReconnect      = "/" + ServiceName + "/Reconnect"
	methodSend           = "/" + ServiceName + "/Send"
	methodTargets        = "/" + ServiceName + "/Targets"
	methodRefreshTargets = "/" + ServiceName + "/RefreshTargets"
	methodSelectTarget   = "/" + ServiceName + "/SelectTarget"
	methodWatch          = "/" + ServiceName + "/Watch"
)

// ControlServer is the server API for the Control service
type ControlServer interface {
	Status(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	Diagnostics(context.Context, *emptypb.Empty) (*structpb.ListValue, error)
	Reconnect(context.Context, *emptypb.Empty) (*emptypb.Empty, error)
	Send(context.Context, *wrapperspb.BytesValue) (*emptypb.Empty, error)
	Targets(context.Context, *emptypb.Empty) (*structpb.ListValue, error)
	RefreshTargets(context.Context, *emptypb.Empty) (*structpb.ListValue, error)
	SelectTarget(context.Context, *wrapperspb.StringValue) (*emptypb.Empty, error)
	Watch(*emptypb.Empty, grpc.ServerStream) error
}

// RegisterControlServer registers srv on s
func RegisterControlServer(s grpc.ServiceRegistrar, srv ControlServer) {
	s.RegisterService(&ServiceDesc, srv)
}

// unary builds a MethodDesc the way protoc-gen-go-grpc does for a single
// request/response method.
func unary(name string, newReq func() proto.Message, call func(ControlServer, context.Context, proto.Message) (proto.Message, error)) grpc.MethodDesc {
	full := "/" + ServiceName + "/" + name
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := newReq()
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(ControlServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: full}
			handler := func(ctx context.Context, req any) (any, error) {
				return call(srv.(ControlServer), ctx, req.(proto.Message))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

func newEmpty() proto.Message { return new(emptypb.Empty) }

// ServiceDesc is the grpc.ServiceDesc for the Control service
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*ControlServer)(nil),
	Methods: []grpc.MethodDesc{
		unary("Status", newEmpty, func(s ControlServer, ctx context.Context, in proto.Message) (proto.Message, error) {
			return s.Status(ctx, in.(*emptypb.Empty))
		}),
		unary("Diagnostics", newEmpty, func(s ControlServer, ctx context.Context, in proto.Message) (proto.Message, error) {
			return s.Diagnostics(ctx, in.(*emptypb.Empty))
		}),
		unary("Reconnect", newEmpty, func(s ControlServer, ctx context.Context, in proto.Message) (proto.Message, error) {
			return s.Reconnect(ctx, in.(*emptypb.Empty))
		}),
		unary("Send", func() proto.Message { return new(wrapperspb.BytesValue) }, func(s ControlServer, ctx context.Context, in proto.Message) (proto.Message, error) {
			return s.Send(ctx, in.(*wrapperspb.BytesValue))
		}),
		unary("Targets", newEmpty, func(s ControlServer, ctx context.Context, in proto.Message) (proto.Message, error) {
			return s.Targets(ctx, in.(*emptypb.Empty))
		}),
		unary("RefreshTargets", newEmpty, func(s ControlServer, ctx context.Context, in proto.Message) (proto.Message, error) {
			return s.RefreshTargets(ctx, in.(*emptypb.Empty))
		}),
		unary("SelectTarget", func() proto.Message { return new(wrapperspb.StringValue) }, func(s ControlServer, ctx context.Context, in proto.Message) (proto.Message, error) {
			return s.SelectTarget(ctx, in.(*wrapperspb.StringValue))
		}),
	},
	Streams: []grpc.StreamDesc{
		{
			StreamName: "Watch",
			Handler: func(srv any, stream grpc.ServerStream) error {
				in := new(emptypb.Empty)
				if err := stream.RecvMsg(in); err != nil {
					return err
				}
				return srv.(ControlServer).Watch(in, stream)
			},
			ServerStreams: true,
		},
	},
	Metadata: "ctrlr/control/v1/control.proto",
}
