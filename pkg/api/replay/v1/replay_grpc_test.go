package replayv1

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

type sampleServer struct {
	UnimplementedReplayServer
	batchSize uint32
}

func (s *sampleServer) Sample(ctx context.Context, req *SampleRequest) (*SampleResponse, error) {
	s.batchSize = req.BatchSize
	return &SampleResponse{Generation: "gen-1", TotalAvailable: 8}, nil
}

func handlerFor(t *testing.T, name string) func(any, context.Context, func(any) error, grpc.UnaryServerInterceptor) (any, error) {
	t.Helper()
	for _, m := range ServiceDesc.Methods {
		if m.MethodName == name {
			return m.Handler
		}
	}
	t.Fatalf("method %s not registered", name)
	return nil
}

// decodeFrom mimics the transport: the request arrives as codec bytes
func decodeFrom(t *testing.T, msg any) func(any) error {
	t.Helper()
	data, err := Codec{}.Marshal(msg)
	require.NoError(t, err)
	return func(v any) error {
		return Codec{}.Unmarshal(data, v)
	}
}

func TestServiceDesc_MethodsRegistered(t *testing.T) {
	assert.Equal(t, ServiceName, ServiceDesc.ServiceName)
	names := make([]string, 0, len(ServiceDesc.Methods))
	for _, m := range ServiceDesc.Methods {
		names = append(names, m.MethodName)
	}
	assert.ElementsMatch(t, []string{"Append", "AppendBatch", "Sample", "UpdatePriorities", "GetStats", "Clear", "SetBeta"}, names)
}

func TestUnaryHandler_WithoutInterceptor(t *testing.T) {
	srv := &sampleServer{}
	handler := handlerFor(t, "Sample")

	resp, err := handler(srv, context.Background(), decodeFrom(t, &SampleRequest{BatchSize: 4}), nil)
	require.NoError(t, err)
	assert.Equal(t, uint32(4), srv.batchSize)
	assert.Equal(t, "gen-1", resp.(*SampleResponse).Generation)
}

func TestUnaryHandler_WithInterceptor(t *testing.T) {
	srv := &sampleServer{}
	handler := handlerFor(t, "Sample")

	var seen *grpc.UnaryServerInfo
	interceptor := func(ctx context.Context, req any, info *grpc.UnaryServerInfo, next grpc.UnaryHandler) (any, error) {
		seen = info
		assert.Equal(t, uint32(2), req.(*SampleRequest).BatchSize)
		return next(ctx, req)
	}

	resp, err := handler(srv, context.Background(), decodeFrom(t, &SampleRequest{BatchSize: 2}), interceptor)
	require.NoError(t, err)
	require.NotNil(t, seen)
	assert.Equal(t, MethodSample, seen.FullMethod)
	assert.Same(t, srv, seen.Server)
	assert.Equal(t, uint32(8), resp.(*SampleResponse).TotalAvailable)
}

func TestUnaryHandler_DecodeError(t *testing.T) {
	handler := handlerFor(t, "Sample")

	_, err := handler(&sampleServer{}, context.Background(), func(any) error {
		return status.Error(codes.Internal, "bad frame")
	}, nil)
	assert.Equal(t, codes.Internal, status.Code(err))
}

func TestUnaryHandler_Unimplemented(t *testing.T) {
	handler := handlerFor(t, "Clear")

	_, err := handler(&sampleServer{}, context.Background(), decodeFrom(t, &ClearRequest{}), nil)
	assert.Equal(t, codes.Unimplemented, status.Code(err))
}
