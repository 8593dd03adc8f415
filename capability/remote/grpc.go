package remote

import (
	"context"

	"github.com/chazu/corvid/capability"
	"github.com/jhump/protoreflect/grpcreflect"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	rpb "google.golang.org/grpc/reflection/grpc_reflection_v1alpha"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// ---------------------------------------------------------------------------
// Server
// ---------------------------------------------------------------------------

type dispatchServer interface {
	dispatch(ctx context.Context, in *wrapperspb.BytesValue) (*wrapperspb.BytesValue, error)
}

type grpcServer struct {
	d capability.Dispatcher
}

func (s *grpcServer) dispatch(ctx context.Context, in *wrapperspb.BytesValue) (*wrapperspb.BytesValue, error) {
	out, err := serve(ctx, s.d, in.GetValue())
	if err != nil {
		return nil, toGRPCError(err)
	}
	return wrapperspb.Bytes(out), nil
}

func dispatchHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(wrapperspb.BytesValue)
	if err := dec(in); err != nil {
		return nil, err
	}
	s := srv.(dispatchServer)
	if interceptor == nil {
		return s.dispatch(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: DispatchProcedure}
	handler := func(ctx context.Context, req any) (any, error) {
		return s.dispatch(ctx, req.(*wrapperspb.BytesValue))
	}
	return interceptor(ctx, in, info, handler)
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*dispatchServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Dispatch", Handler: dispatchHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "corvid/capability/v1/capability.proto",
}

// RegisterGRPC exposes d on s.
func RegisterGRPC(s grpc.ServiceRegistrar, d capability.Dispatcher) {
	s.RegisterService(&serviceDesc, &grpcServer{d: d})
}

// ---------------------------------------------------------------------------
// Client
// ---------------------------------------------------------------------------

// Dial opens an insecure client connection to target.
func Dial(target string, opts ...grpc.DialOption) (*grpc.ClientConn, error) {
	opts = append([]grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}, opts...)
	return grpc.NewClient(target, opts...)
}

// GRPCDispatcher dispatches requests over a gRPC connection.
type GRPCDispatcher struct {
	conn grpc.ClientConnInterface
}

func NewGRPCDispatcher(conn grpc.ClientConnInterface) *GRPCDispatcher {
	return &GRPCDispatcher{conn: conn}
}

func (g *GRPCDispatcher) Dispatch(ctx context.Context, req *capability.Request) (*capability.Response, error) {
	data, err := capability.MarshalRequest(req)
	if err != nil {
		return nil, err
	}
	out := new(wrapperspb.BytesValue)
	if err := g.conn.Invoke(ctx, DispatchProcedure, wrapperspb.Bytes(data), out); err != nil {
		return nil, fromGRPCError(err)
	}
	return capability.UnmarshalResponse(out.GetValue())
}

// ListServices asks a server with reflection enabled which services it
// exposes. Hosts use it to check an endpoint before binding tools to it.
func ListServices(ctx context.Context, conn *grpc.ClientConn) ([]string, error) {
	client := grpcreflect.NewClientV1Alpha(ctx, rpb.NewServerReflectionClient(conn))
	defer client.Reset()
	return client.ListServices()
}

// Serves reports whether the server behind conn exposes the capability
// service.
func Serves(ctx context.Context, conn *grpc.ClientConn) (bool, error) {
	services, err := ListServices(ctx, conn)
	if err != nil {
		return false, err
	}
	for _, s := range services {
		if s == ServiceName {
			return true, nil
		}
	}
	return false, nil
}
