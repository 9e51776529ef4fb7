package service

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/cartridge/wizard-replay/internal/events"
	"github.com/cartridge/wizard-replay/internal/metrics"
	"github.com/cartridge/wizard-replay/internal/storage"
	replayv1 "github.com/cartridge/wizard-replay/pkg/api/replay/v1"
)

// ReplayService implements the Replay gRPC service
type ReplayService struct {
	replayv1.UnimplementedReplayServer
	backend   storage.Backend
	publisher events.Publisher
	metrics   *metrics.Collector
	logger    zerolog.Logger
}

// NewReplayService creates a new ReplayService
func NewReplayService(backend storage.Backend, publisher events.Publisher, collector *metrics.Collector, logger zerolog.Logger) *ReplayService {
	return &ReplayService{
		backend:   backend,
		publisher: publisher,
		metrics:   collector,
		logger:    logger.With().Str("component", "replay_service").Logger(),
	}
}

// Append stores a single transition
func (s *ReplayService) Append(ctx context.Context, req *replayv1.AppendRequest) (*replayv1.AppendResponse, error) {
	if req.Transition == nil {
		return nil, status.Error(codes.InvalidArgument, "transition is required")
	}

	transition := protoToStorageTransition(req.Transition)

	var (
		idx int
		err error
	)
	if req.Priority != nil {
		idx, err = s.backend.AppendWithPriority(ctx, transition, *req.Priority)
	} else {
		idx, err = s.backend.Append(ctx, transition)
	}
	if err != nil {
		return nil, toStatus(err)
	}

	s.metrics.TransitionsAppended(1, s.available(ctx))

	return &replayv1.AppendResponse{
		Index:        int64(idx),
		TransitionID: transition.ID,
	}, nil
}

// AppendBatch stores multiple transitions with the default priority
func (s *ReplayService) AppendBatch(ctx context.Context, req *replayv1.AppendBatchRequest) (*replayv1.AppendBatchResponse, error) {
	if len(req.Transitions) == 0 {
		return &replayv1.AppendBatchResponse{}, nil
	}

	transitions := make([]*storage.Transition, len(req.Transitions))
	for i, protoTransition := range req.Transitions {
		if protoTransition == nil {
			return nil, status.Errorf(codes.InvalidArgument, "transition %d is empty", i)
		}
		transitions[i] = protoToStorageTransition(protoTransition)
	}

	indices, err := s.backend.AppendBatch(ctx, transitions)

	resp := &replayv1.AppendBatchResponse{
		Indices:       make([]int64, len(indices)),
		TransitionIDs: make([]string, len(indices)),
		StoredCount:   uint32(len(indices)),
		FailedCount:   uint32(len(req.Transitions) - len(indices)),
	}
	for i, idx := range indices {
		resp.Indices[i] = int64(idx)
		resp.TransitionIDs[i] = transitions[i].ID
	}
	if err != nil {
		s.logger.Warn().Err(err).Int("stored", len(indices)).Msg("batch append stopped early")
		resp.ErrorMessages = []string{err.Error()}
	}

	s.metrics.TransitionsAppended(len(indices), s.available(ctx))

	return resp, nil
}

// Sample draws a prioritized minibatch for training
func (s *ReplayService) Sample(ctx context.Context, req *replayv1.SampleRequest) (*replayv1.SampleResponse, error) {
	if req.BatchSize == 0 {
		return nil, status.Error(codes.InvalidArgument, "batch_size must be positive")
	}

	start := time.Now()
	result, err := s.backend.Sample(ctx, int(req.BatchSize))
	if err != nil {
		var insufficient *storage.InsufficientSamplesError
		if errors.As(err, &insufficient) {
			s.metrics.SampleSkipped(insufficient.Requested, insufficient.Available)
		}
		return nil, toStatus(err)
	}

	resp := &replayv1.SampleResponse{
		Transitions:    make([]*replayv1.Transition, len(result.Transitions)),
		Indices:        make([]int64, len(result.Indices)),
		Weights:        result.Weights,
		Generation:     result.Generation,
		TotalAvailable: uint32(s.available(ctx)),
	}

	maxIndex, minWeight := 0, 1.0
	for i, transition := range result.Transitions {
		resp.Transitions[i] = storageToProtoTransition(transition)
		resp.Indices[i] = int64(result.Indices[i])
		if result.Indices[i] > maxIndex {
			maxIndex = result.Indices[i]
		}
		if result.Weights[i] < minWeight {
			minWeight = result.Weights[i]
		}
	}

	s.metrics.BatchSampled(len(result.Indices), maxIndex, minWeight, time.Since(start))

	return resp, nil
}

// UpdatePriorities refreshes priorities from fresh TD-errors
func (s *ReplayService) UpdatePriorities(ctx context.Context, req *replayv1.UpdatePrioritiesRequest) (*replayv1.UpdatePrioritiesResponse, error) {
	if len(req.Indices) != len(req.Priorities) {
		return nil, status.Error(codes.InvalidArgument, "indices and priorities must have same length")
	}

	indices := make([]int, len(req.Indices))
	for i, idx := range req.Indices {
		indices[i] = int(idx)
	}

	if err := s.backend.UpdatePriorities(ctx, req.Generation, indices, req.Priorities); err != nil {
		return nil, toStatus(err)
	}

	s.metrics.PrioritiesUpdated(len(indices), req.Generation)

	return &replayv1.UpdatePrioritiesResponse{
		UpdatedCount: uint32(len(indices)),
	}, nil
}

// GetStats returns replay buffer statistics
func (s *ReplayService) GetStats(ctx context.Context, req *replayv1.GetStatsRequest) (*replayv1.StatsResponse, error) {
	stats, err := s.backend.Stats(ctx)
	if err != nil {
		return nil, toStatus(err)
	}

	return storageToProtoStats(stats), nil
}

// Clear drops every transition and starts a new buffer generation
func (s *ReplayService) Clear(ctx context.Context, req *replayv1.ClearRequest) (*replayv1.ClearResponse, error) {
	cleared, err := s.backend.Clear(ctx)
	if err != nil {
		return nil, toStatus(err)
	}

	stats, err := s.backend.Stats(ctx)
	if err != nil {
		return nil, toStatus(err)
	}

	s.metrics.BufferCleared(cleared, stats.Generation)
	s.publish(ctx, events.BufferEvent{
		Kind:         events.KindCleared,
		Generation:   stats.Generation,
		ClearedCount: cleared,
		Beta:         stats.Beta,
	})

	return &replayv1.ClearResponse{
		ClearedCount: uint64(cleared),
		Generation:   stats.Generation,
	}, nil
}

// SetBeta sets the importance-sampling exponent, used to anneal it remotely
func (s *ReplayService) SetBeta(ctx context.Context, req *replayv1.SetBetaRequest) (*replayv1.SetBetaResponse, error) {
	if err := s.backend.SetBeta(req.Beta); err != nil {
		return nil, toStatus(err)
	}

	stats, err := s.backend.Stats(ctx)
	if err != nil {
		return nil, toStatus(err)
	}
	s.publish(ctx, events.BufferEvent{
		Kind:       events.KindBetaChanged,
		Generation: stats.Generation,
		Beta:       stats.Beta,
	})

	return &replayv1.SetBetaResponse{Beta: stats.Beta}, nil
}

// publish fans out a buffer event; delivery failures are logged, not returned
func (s *ReplayService) publish(ctx context.Context, event events.BufferEvent) {
	event.Source = "grpc"
	event.Timestamp = time.Now().UTC()
	if err := s.publisher.PublishBufferEvent(ctx, event); err != nil {
		s.logger.Warn().Err(err).Str("kind", string(event.Kind)).Msg("failed to publish buffer event")
	}
}

func (s *ReplayService) available(ctx context.Context) int {
	stats, err := s.backend.Stats(ctx)
	if err != nil {
		return 0
	}
	return stats.Available
}

// toStatus maps storage errors onto gRPC codes
func toStatus(err error) error {
	switch {
	case errors.Is(err, storage.ErrInsufficientSamples):
		return status.Error(codes.FailedPrecondition, err.Error())
	case errors.Is(err, storage.ErrIndexOutOfRange):
		return status.Error(codes.OutOfRange, err.Error())
	case errors.Is(err, storage.ErrStaleGeneration):
		return status.Error(codes.Aborted, err.Error())
	case errors.Is(err, storage.ErrInvalidArgument):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, storage.ErrClosed):
		return status.Error(codes.Unavailable, err.Error())
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	default:
		return status.Error(codes.Internal, err.Error())
	}
}
