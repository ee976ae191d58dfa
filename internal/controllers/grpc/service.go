package grpc

import (
	"context"

	"google.golang.org/genproto/googleapis/api/httpbody"
	"google.golang.org/grpc"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

// ServiceName is the fully qualified name of the analysis service.
const ServiceName = "sdofresponse.v1.Analysis"

// AnalysisServer is the server API of the analysis service.
type AnalysisServer interface {
	ListMethods(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Resample(context.Context, *structpb.Struct) (*structpb.Struct, error)
	TimeHistory(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Spectrum(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Inelastic(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Plot(context.Context, *structpb.Struct) (*httpbody.HttpBody, error)
	GetRun(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*AnalysisServer)(nil),
	Methods: []grpc.MethodDesc{
		unary("ListMethods", AnalysisServer.ListMethods),
		unary("Resample", AnalysisServer.Resample),
		unary("TimeHistory", AnalysisServer.TimeHistory),
		unary("Spectrum", AnalysisServer.Spectrum),
		unary("Inelastic", AnalysisServer.Inelastic),
		unary("Plot", AnalysisServer.Plot),
		unary("GetRun", AnalysisServer.GetRun),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "sdofresponse/v1/analysis.proto",
}

// unary builds the method descriptor of a Struct-in RPC.
func unary[Resp proto.Message](name string, call func(AnalysisServer, context.Context, *structpb.Struct) (Resp, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(structpb.Struct)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(AnalysisServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{
				Server:     srv,
				FullMethod: "/" + ServiceName + "/" + name,
			}
			handler := func(ctx context.Context, req any) (any, error) {
				return call(srv.(AnalysisServer), ctx, req.(*structpb.Struct))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

// Client calls the analysis service.
type Client struct {
	cc grpc.ClientConnInterface
}

// NewClient returns a client that calls the analysis service over cc.
func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

func (c *Client) invoke(ctx context.Context, method string, in *structpb.Struct, out proto.Message, opts ...grpc.CallOption) error {
	return c.cc.Invoke(ctx, "/"+ServiceName+"/"+method, in, out, opts...)
}

func (c *Client) call(ctx context.Context, method string, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.invoke(ctx, method, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) ListMethods(ctx context.Context, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.call(ctx, "ListMethods", &structpb.Struct{}, opts...)
}

func (c *Client) Resample(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.call(ctx, "Resample", in, opts...)
}

func (c *Client) TimeHistory(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.call(ctx, "TimeHistory", in, opts...)
}

func (c *Client) Spectrum(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.call(ctx, "Spectrum", in, opts...)
}

func (c *Client) Inelastic(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.call(ctx, "Inelastic", in, opts...)
}

func (c *Client) GetRun(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.call(ctx, "GetRun", in, opts...)
}

func (c *Client) Plot(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*httpbody.HttpBody, error) {
	out := new(httpbody.HttpBody)
	if err := c.invoke(ctx, "Plot", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
