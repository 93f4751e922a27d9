package api

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	grpcstatus "google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "comet.v1.CometService"

// Full method names.
const (
	MethodSend           = "/" + ServiceName + "/Send"
	MethodListHistory    = "/" + ServiceName + "/ListHistory"
	MethodListContacts   = "/" + ServiceName + "/ListContacts"
	MethodAddContact     = "/" + ServiceName + "/AddContact"
	MethodRemoveContact  = "/" + ServiceName + "/RemoveContact"
	MethodListQRContacts = "/" + ServiceName + "/ListQRContacts"
	MethodSaveQRContact  = "/" + ServiceName + "/SaveQRContact"
	MethodListPushLog    = "/" + ServiceName + "/ListPushLog"
	MethodGetPushToken   = "/" + ServiceName + "/GetPushToken"
	MethodSetPushToken   = "/" + ServiceName + "/SetPushToken"
	MethodSetTransport   = "/" + ServiceName + "/SetTransport"
	MethodGetStatus      = "/" + ServiceName + "/GetStatus"
	MethodWatchEvents    = "/" + ServiceName + "/WatchEvents"
)

// CometServer is the server API for CometService. Requests and responses
// are google.protobuf.Struct documents shaped by the types in this package.
type CometServer interface {
	Send(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ListHistory(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	ListContacts(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	AddContact(context.Context, *structpb.Struct) (*structpb.Struct, error)
	RemoveContact(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ListQRContacts(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	SaveQRContact(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ListPushLog(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	GetPushToken(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	SetPushToken(context.Context, *structpb.Struct) (*emptypb.Empty, error)
	SetTransport(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetStatus(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	WatchEvents(*emptypb.Empty, EventStream) error
}

// EventStream is the server side of WatchEvents.
type EventStream interface {
	Send(*structpb.Struct) error
	grpc.ServerStream
}

// RegisterCometServer registers srv on s.
func RegisterCometServer(s grpc.ServiceRegistrar, srv CometServer) {
	s.RegisterService(&serviceDesc, srv)
}

func unaryHandler[Req any](method string, call func(CometServer, context.Context, *Req) (any, error)) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(Req)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(CometServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: method}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(CometServer), ctx, req.(*Req))
		}
		return interceptor(ctx, in, info, handler)
	}
}

func watchEventsHandler(srv any, stream grpc.ServerStream) error {
	in := new(emptypb.Empty)
	if err := stream.RecvMsg(in); err != nil {
		return err
	}
	return srv.(CometServer).WatchEvents(in, &eventStream{stream})
}

type eventStream struct {
	grpc.ServerStream
}

func (s *eventStream) Send(m *structpb.Struct) error {
	return s.ServerStream.SendMsg(m)
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*CometServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Send", Handler: unaryHandler(MethodSend, func(s CometServer, ctx context.Context, in *structpb.Struct) (any, error) {
			return s.Send(ctx, in)
		})},
		{MethodName: "ListHistory", Handler: unaryHandler(MethodListHistory, func(s CometServer, ctx context.Context, in *emptypb.Empty) (any, error) {
			return s.ListHistory(ctx, in)
		})},
		{MethodName: "ListContacts", Handler: unaryHandler(MethodListContacts, func(s CometServer, ctx context.Context, in *emptypb.Empty) (any, error) {
			return s.ListContacts(ctx, in)
		})},
		{MethodName: "AddContact", Handler: unaryHandler(MethodAddContact, func(s CometServer, ctx context.Context, in *structpb.Struct) (any, error) {
			return s.AddContact(ctx, in)
		})},
		{MethodName: "RemoveContact", Handler: unaryHandler(MethodRemoveContact, func(s CometServer, ctx context.Context, in *structpb.Struct) (any, error) {
			return s.RemoveContact(ctx, in)
		})},
		{MethodName: "ListQRContacts", Handler: unaryHandler(MethodListQRContacts, func(s CometServer, ctx context.Context, in *emptypb.Empty) (any, error) {
			return s.ListQRContacts(ctx, in)
		})},
		{MethodName: "SaveQRContact", Handler: unaryHandler(MethodSaveQRContact, func(s CometServer, ctx context.Context, in *structpb.Struct) (any, error) {
			return s.SaveQRContact(ctx, in)
		})},
		{MethodName: "ListPushLog", Handler: unaryHandler(MethodListPushLog, func(s CometServer, ctx context.Context, in *emptypb.Empty) (any, error) {
			return s.ListPushLog(ctx, in)
		})},
		{MethodName: "GetPushToken", Handler: unaryHandler(MethodGetPushToken, func(s CometServer, ctx context.Context, in *emptypb.Empty) (any, error) {
			return s.GetPushToken(ctx, in)
		})},
		{MethodName: "SetPushToken", Handler: unaryHandler(MethodSetPushToken, func(s CometServer, ctx context.Context, in *structpb.Struct) (any, error) {
			return s.SetPushToken(ctx, in)
		})},
		{MethodName: "SetTransport", Handler: unaryHandler(MethodSetTransport, func(s CometServer, ctx context.Context, in *structpb.Struct) (any, error) {
			return s.SetTransport(ctx, in)
		})},
		{MethodName: "GetStatus", Handler: unaryHandler(MethodGetStatus, func(s CometServer, ctx context.Context, in *emptypb.Empty) (any, error) {
			return s.GetStatus(ctx, in)
		})},
	},
	Streams: []grpc.StreamDesc{
		{StreamName: "WatchEvents", Handler: watchEventsHandler, ServerStreams: true},
	},
	Metadata: "comet/v1/comet.proto",
}

// CometClient is the client API for CometService.
type CometClient struct {
	cc grpc.ClientConnInterface
}

// NewCometClient wraps a connection.
func NewCometClient(cc grpc.ClientConnInterface) *CometClient {
	return &CometClient{cc: cc}
}

// Call invokes a unary method, converting req and resp through Struct
// documents. req may be nil for methods that take Empty; resp may be nil
// to discard the reply.
func (c *CometClient) Call(ctx context.Context, method string, req, resp any, opts ...grpc.CallOption) error {
	var in any = &emptypb.Empty{}
	if req != nil {
		s, err := ToStruct(req)
		if err != nil {
			return err
		}
		in = s
	}

	var out any
	switch method {
	case MethodSetPushToken:
		out = &emptypb.Empty{}
	default:
		out = &structpb.Struct{}
	}
	if err := c.cc.Invoke(ctx, method, in, out, opts...); err != nil {
		return err
	}
	if s, ok := out.(*structpb.Struct); ok && resp != nil {
		return FromStruct(s, resp)
	}
	return nil
}

// EventReceiver reads WatchEvents envelopes.
type EventReceiver interface {
	Recv() (*EventEnvelope, error)
}

type eventReceiver struct {
	grpc.ClientStream
}

func (r *eventReceiver) Recv() (*EventEnvelope, error) {
	m := new(structpb.Struct)
	if err := r.ClientStream.RecvMsg(m); err != nil {
		return nil, err
	}
	var env EventEnvelope
	if err := FromStruct(m, &env); err != nil {
		return nil, err
	}
	return &env, nil
}

// WatchEvents opens the event stream.
func (c *CometClient) WatchEvents(ctx context.Context, opts ...grpc.CallOption) (EventReceiver, error) {
	stream, err := c.cc.NewStream(ctx, &serviceDesc.Streams[0], MethodWatchEvents, opts...)
	if err != nil {
		return nil, err
	}
	if err := stream.SendMsg(&emptypb.Empty{}); err != nil {
		return nil, err
	}
	if err := stream.CloseSend(); err != nil {
		return nil, err
	}
	return &eventReceiver{stream}, nil
}

// UnimplementedCometServer can be embedded for forward compatibility.
type UnimplementedCometServer struct{}

func unimplemented(name string) error {
	return grpcstatus.Errorf(codes.Unimplemented, "method %s not implemented", name)
}

func (UnimplementedCometServer) Send(context.Context, *structpb.Struct) (*structpb.Struct, error) {
	return nil, unimplemented("Send")
}
func (UnimplementedCometServer) ListHistory(context.Context, *emptypb.Empty) (*structpb.Struct, error) {
	return nil, unimplemented("ListHistory")
}
func (UnimplementedCometServer) ListContacts(context.Context, *emptypb.Empty) (*structpb.Struct, error) {
	return nil, unimplemented("ListContacts")
}
func (UnimplementedCometServer) AddContact(context.Context, *structpb.Struct) (*structpb.Struct, error) {
	return nil, unimplemented("AddContact")
}
func (UnimplementedCometServer) RemoveContact(context.Context, *structpb.Struct) (*structpb.Struct, error) {
	return nil, unimplemented("RemoveContact")
}
func (UnimplementedCometServer) ListQRContacts(context.Context, *emptypb.Empty) (*structpb.Struct, error) {
	return nil, unimplemented("ListQRContacts")
}
func (UnimplementedCometServer) SaveQRContact(context.Context, *structpb.Struct) (*structpb.Struct, error) {
	return nil, unimplemented("SaveQRContact")
}
func (UnimplementedCometServer) ListPushLog(context.Context, *emptypb.Empty) (*structpb.Struct, error) {
	return nil, unimplemented("ListPushLog")
}
func (UnimplementedCometServer) GetPushToken(context.Context, *emptypb.Empty) (*structpb.Struct, error) {
	return nil, unimplemented("GetPushToken")
}
func (UnimplementedCometServer) SetPushToken(context.Context, *structpb.Struct) (*emptypb.Empty, error) {
	return nil, unimplemented("SetPushToken")
}
func (UnimplementedCometServer) SetTransport(context.Context, *structpb.Struct) (*structpb.Struct, error) {
	return nil, unimplemented("SetTransport")
}
func (UnimplementedCometServer) GetStatus(context.Context, *emptypb.Empty) (*structpb.Struct, error) {
	return nil, unimplemented("GetStatus")
}
func (UnimplementedCometServer) WatchEvents(*emptypb.Empty, EventStream) error {
	return unimplemented("WatchEvents")
}
