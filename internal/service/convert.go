package service

import (
	"time"

	"github.com/cartridge/wizard-replay/internal/storage"
	replayv1 "github.com/cartridge/wizard-replay/pkg/api/replay/v1"
)

// Conversion functions

func protoToStorageTransition(proto *replayv1.Transition) *storage.Transition {
	transition := &storage.Transition{
		ID:             proto.ID,
		EpisodeID:      proto.EpisodeID,
		Agent:          storage.Agent(proto.Agent),
		State:          proto.State,
		Action:         proto.Action,
		Reward:         proto.Reward,
		NextState:      proto.NextState,
		IllegalActions: proto.IllegalActions,
		Done:           proto.Done,
		Metadata:       proto.Metadata,
	}

	if proto.Timestamp > 0 {
		transition.Timestamp = time.Unix(0, proto.Timestamp)
	}

	return transition
}

func storageToProtoTransition(transition *storage.Transition) *replayv1.Transition {
	return &replayv1.Transition{
		ID:             transition.ID,
		EpisodeID:      transition.EpisodeID,
		Agent:          string(transition.Agent),
		State:          transition.State,
		Action:         transition.Action,
		Reward:         transition.Reward,
		NextState:      transition.NextState,
		IllegalActions: transition.IllegalActions,
		Done:           transition.Done,
		Timestamp:      transition.Timestamp.UnixNano(),
		Metadata:       transition.Metadata,
	}
}

func storageToProtoStats(stats *storage.Stats) *replayv1.StatsResponse {
	response := &replayv1.StatsResponse{
		Capacity:      uint64(stats.Capacity),
		Available:     uint64(stats.Available),
		WriteIndex:    uint64(stats.WriteIndex),
		TotalAppended: stats.TotalAppended,
		TotalPriority: stats.TotalPriority,
		MaxPriority:   stats.MaxPriority,
		Alpha:         stats.Alpha,
		Beta:          stats.Beta,
		MinPriority:   stats.MinPriority,
		Generation:    stats.Generation,
	}

	if len(stats.TransitionsByAgent) > 0 {
		response.TransitionsByAgent = make(map[string]uint64, len(stats.TransitionsByAgent))
		for agent, count := range stats.TransitionsByAgent {
			response.TransitionsByAgent[string(agent)] = count
		}
	}
	if stats.OldestTimestamp != nil {
		response.OldestTimestamp = stats.OldestTimestamp.UnixNano()
	}
	if stats.NewestTimestamp != nil {
		response.NewestTimestamp = stats.NewestTimestamp.UnixNano()
	}

	return response
}
