package learner

import (
	"context"
	"fmt"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/cartridge/wizard-replay/internal/storage"
	replayv1 "github.com/cartridge/wizard-replay/pkg/api/replay/v1"
)

// RemoteBuffer adapts the replay gRPC client to the Buffer interface so a
// learner can train against a replay server in another process.
type RemoteBuffer struct {
	client  replayv1.ReplayClient
	timeout time.Duration
}

var _ Buffer = (*RemoteBuffer)(nil)

// NewRemoteBuffer wraps a connection to a replay server. timeout bounds the
// calls that take no context (SetBeta).
func NewRemoteBuffer(conn grpc.ClientConnInterface, timeout time.Duration) *RemoteBuffer {
	return &RemoteBuffer{
		client:  replayv1.NewReplayClient(conn),
		timeout: timeout,
	}
}

// Sample implements Buffer.Sample
func (r *RemoteBuffer) Sample(ctx context.Context, batchSize int) (*storage.SampleResult, error) {
	if batchSize <= 0 {
		return nil, fmt.Errorf("%w: batch size must be positive, got %d", storage.ErrInvalidArgument, batchSize)
	}

	resp, err := r.client.Sample(ctx, &replayv1.SampleRequest{BatchSize: uint32(batchSize)})
	if err != nil {
		if status.Code(err) == codes.FailedPrecondition {
			return nil, &storage.InsufficientSamplesError{Requested: batchSize, Available: -1}
		}
		return nil, fromStatus(err)
	}

	result := &storage.SampleResult{
		Transitions: make([]*storage.Transition, len(resp.Transitions)),
		Indices:     make([]int, len(resp.Indices)),
		Weights:     resp.Weights,
		Generation:  resp.Generation,
	}
	for i, tr := range resp.Transitions {
		var ts time.Time
		if tr.Timestamp != 0 {
			ts = time.Unix(0, tr.Timestamp)
		}
		result.Transitions[i] = &storage.Transition{
			ID:             tr.ID,
			EpisodeID:      tr.EpisodeID,
			Agent:          storage.Agent(tr.Agent),
			State:          tr.State,
			Action:         tr.Action,
			Reward:         tr.Reward,
			NextState:      tr.NextState,
			IllegalActions: tr.IllegalActions,
			Done:           tr.Done,
			Timestamp:      ts,
			Metadata:       tr.Metadata,
		}
	}
	for i, idx := range resp.Indices {
		result.Indices[i] = int(idx)
	}
	return result, nil
}

// UpdatePriorities implements Buffer.UpdatePriorities
func (r *RemoteBuffer) UpdatePriorities(ctx context.Context, generation string, indices []int, priorities []float64) error {
	req := &replayv1.UpdatePrioritiesRequest{
		Generation: generation,
		Indices:    make([]int64, len(indices)),
		Priorities: priorities,
	}
	for i, idx := range indices {
		req.Indices[i] = int64(idx)
	}
	if _, err := r.client.UpdatePriorities(ctx, req); err != nil {
		return fromStatus(err)
	}
	return nil
}

// Stats implements Buffer.Stats
func (r *RemoteBuffer) Stats(ctx context.Context) (*storage.Stats, error) {
	resp, err := r.client.GetStats(ctx, &replayv1.GetStatsRequest{})
	if err != nil {
		return nil, fromStatus(err)
	}
	stats := &storage.Stats{
		Capacity:           int(resp.Capacity),
		Available:          int(resp.Available),
		WriteIndex:         int(resp.WriteIndex),
		TotalAppended:      resp.TotalAppended,
		TotalPriority:      resp.TotalPriority,
		MaxPriority:        resp.MaxPriority,
		Alpha:              resp.Alpha,
		Beta:               resp.Beta,
		MinPriority:        resp.MinPriority,
		Generation:         resp.Generation,
		TransitionsByAgent: make(map[storage.Agent]uint64, len(resp.TransitionsByAgent)),
	}
	for agent, count := range resp.TransitionsByAgent {
		stats.TransitionsByAgent[storage.Agent(agent)] = count
	}
	return stats, nil
}

// SetBeta implements Buffer.SetBeta
func (r *RemoteBuffer) SetBeta(beta float64) error {
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()

	if _, err := r.client.SetBeta(ctx, &replayv1.SetBetaRequest{Beta: beta}); err != nil {
		return fromStatus(err)
	}
	return nil
}

// fromStatus maps gRPC codes back onto storage sentinel errors
func fromStatus(err error) error {
	switch status.Code(err) {
	case codes.FailedPrecondition:
		return fmt.Errorf("%w: %s", storage.ErrInsufficientSamples, status.Convert(err).Message())
	case codes.OutOfRange:
		return fmt.Errorf("%w: %s", storage.ErrIndexOutOfRange, status.Convert(err).Message())
	case codes.Aborted:
		return fmt.Errorf("%w: %s", storage.ErrStaleGeneration, status.Convert(err).Message())
	case codes.InvalidArgument:
		return fmt.Errorf("%w: %s", storage.ErrInvalidArgument, status.Convert(err).Message())
	case codes.Unavailable:
		return fmt.Errorf("replay server unavailable: %w", err)
	default:
		return err
	}
}
