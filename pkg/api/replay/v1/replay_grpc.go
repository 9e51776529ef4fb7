package replayv1

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const ServiceName = "wizard.replay.v1.Replay"

const (
	MethodAppend           = "/" + ServiceName + "/Append"
	MethodAppendBatch      = "/" + ServiceName + "/AppendBatch"
	MethodSample           = "/" + ServiceName + "/Sample"
	MethodUpdatePriorities = "/" + ServiceName + "/UpdatePriorities"
	MethodGetStats         = "/" + ServiceName + "/GetStats"
	MethodClear            = "/" + ServiceName + "/Clear"
	MethodSetBeta          = "/" + ServiceName + "/SetBeta"
)

// ReplayClient is the client API for the Replay service
type ReplayClient interface {
	Append(ctx context.Context, in *AppendRequest, opts ...grpc.CallOption) (*AppendResponse, error)
	AppendBatch(ctx context.Context, in *AppendBatchRequest, opts ...grpc.CallOption) (*AppendBatchResponse, error)
	Sample(ctx context.Context, in *SampleRequest, opts ...grpc.CallOption) (*SampleResponse, error)
	UpdatePriorities(ctx context.Context, in *UpdatePrioritiesRequest, opts ...grpc.CallOption) (*UpdatePrioritiesResponse, error)
	GetStats(ctx context.Context, in *GetStatsRequest, opts ...grpc.CallOption) (*StatsResponse, error)
	Clear(ctx context.Context, in *ClearRequest, opts ...grpc.CallOption) (*ClearResponse, error)
	SetBeta(ctx context.Context, in *SetBetaRequest, opts ...grpc.CallOption) (*SetBetaResponse, error)
}

type replayClient struct {
	cc grpc.ClientConnInterface
}

// NewReplayClient wraps a connection; every call uses the JSON codec
func NewReplayClient(cc grpc.ClientConnInterface) ReplayClient {
	return &replayClient{cc: cc}
}

func (c *replayClient) invoke(ctx context.Context, method string, in, out any, opts []grpc.CallOption) error {
	opts = append([]grpc.CallOption{CallOption()}, opts...)
	return c.cc.Invoke(ctx, method, in, out, opts...)
}

func (c *replayClient) Append(ctx context.Context, in *AppendRequest, opts ...grpc.CallOption) (*AppendResponse, error) {
	out := new(AppendResponse)
	if err := c.invoke(ctx, MethodAppend, in, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *replayClient) AppendBatch(ctx context.Context, in *AppendBatchRequest, opts ...grpc.CallOption) (*AppendBatchResponse, error) {
	out := new(AppendBatchResponse)
	if err := c.invoke(ctx, MethodAppendBatch, in, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *replayClient) Sample(ctx context.Context, in *SampleRequest, opts ...grpc.CallOption) (*SampleResponse, error) {
	out := new(SampleResponse)
	if err := c.invoke(ctx, MethodSample, in, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *replayClient) UpdatePriorities(ctx context.Context, in *UpdatePrioritiesRequest, opts ...grpc.CallOption) (*UpdatePrioritiesResponse, error) {
	out := new(UpdatePrioritiesResponse)
	if err := c.invoke(ctx, MethodUpdatePriorities, in, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *replayClient) GetStats(ctx context.Context, in *GetStatsRequest, opts ...grpc.CallOption) (*StatsResponse, error) {
	out := new(StatsResponse)
	if err := c.invoke(ctx, MethodGetStats, in, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *replayClient) Clear(ctx context.Context, in *ClearRequest, opts ...grpc.CallOption) (*ClearResponse, error) {
	out := new(ClearResponse)
	if err := c.invoke(ctx, MethodClear, in, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *replayClient) SetBeta(ctx context.Context, in *SetBetaRequest, opts ...grpc.CallOption) (*SetBetaResponse, error) {
	out := new(SetBetaResponse)
	if err := c.invoke(ctx, MethodSetBeta, in, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}

// ReplayServer is the server API for the Replay service
type ReplayServer interface {
	Append(context.Context, *AppendRequest) (*AppendResponse, error)
	AppendBatch(context.Context, *AppendBatchRequest) (*AppendBatchResponse, error)
	Sample(context.Context, *SampleRequest) (*SampleResponse, error)
	UpdatePriorities(context.Context, *UpdatePrioritiesRequest) (*UpdatePrioritiesResponse, error)
	GetStats(context.Context, *GetStatsRequest) (*StatsResponse, error)
	Clear(context.Context, *ClearRequest) (*ClearResponse, error)
	SetBeta(context.Context, *SetBetaRequest) (*SetBetaResponse, error)
}

// UnimplementedReplayServer can be embedded to stay forward compatible
type UnimplementedReplayServer struct{}

func (UnimplementedReplayServer) Append(context.Context, *AppendRequest) (*AppendResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method Append not implemented")
}

func (UnimplementedReplayServer) AppendBatch(context.Context, *AppendBatchRequest) (*AppendBatchResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method AppendBatch not implemented")
}

func (UnimplementedReplayServer) Sample(context.Context, *SampleRequest) (*SampleResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method Sample not implemented")
}

func (UnimplementedReplayServer) UpdatePriorities(context.Context, *UpdatePrioritiesRequest) (*UpdatePrioritiesResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method UpdatePriorities not implemented")
}

func (UnimplementedReplayServer) GetStats(context.Context, *GetStatsRequest) (*StatsResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method GetStats not implemented")
}

func (UnimplementedReplayServer) Clear(context.Context, *ClearRequest) (*ClearResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method Clear not implemented")
}

func (UnimplementedReplayServer) SetBeta(context.Context, *SetBetaRequest) (*SetBetaResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method SetBeta not implemented")
}

// RegisterReplayServer registers srv on s
func RegisterReplayServer(s grpc.ServiceRegistrar, srv ReplayServer) {
	s.RegisterService(&ServiceDesc, srv)
}

// unaryHandler adapts a typed server method to the Handler field of
// grpc.MethodDesc
func unaryHandler[Req any, Resp any](method string, call func(ReplayServer, context.Context, *Req) (*Resp, error)) func(any, context.Context, func(any) error, grpc.UnaryServerInterceptor) (any, error) {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(Req)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(ReplayServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{
			Server:     srv,
			FullMethod: method,
		}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(ReplayServer), ctx, req.(*Req))
		}
		return interceptor(ctx, in, info, handler)
	}
}

// ServiceDesc is the grpc.ServiceDesc for the Replay service
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*ReplayServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Append", Handler: unaryHandler(MethodAppend, ReplayServer.Append)},
		{MethodName: "AppendBatch", Handler: unaryHandler(MethodAppendBatch, ReplayServer.AppendBatch)},
		{MethodName: "Sample", Handler: unaryHandler(MethodSample, ReplayServer.Sample)},
		{MethodName: "UpdatePriorities", Handler: unaryHandler(MethodUpdatePriorities, ReplayServer.UpdatePriorities)},
		{MethodName: "GetStats", Handler: unaryHandler(MethodGetStats, ReplayServer.GetStats)},
		{MethodName: "Clear", Handler: unaryHandler(MethodClear, ReplayServer.Clear)},
		{MethodName: "SetBeta", Handler: unaryHandler(MethodSetBeta, ReplayServer.SetBeta)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "replay/v1",
}
