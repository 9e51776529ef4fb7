// Package replayv1 defines the wire messages and gRPC service of the replay
// API. Messages are plain structs carried by a JSON codec registered under
// the "json" content-subtype.
package replayv1

// Transition is the wire form of one recorded step of experience
type Transition struct {
	ID             string            `json:"id,omitempty"`
	EpisodeID      string            `json:"episode_id,omitempty"`
	Agent          string            `json:"agent,omitempty"`
	State          []float32         `json:"state"`
	Action         int32             `json:"action"`
	Reward         float32           `json:"reward"`
	NextState      []float32         `json:"next_state"`
	IllegalActions []int32           `json:"illegal_actions,omitempty"`
	Done           bool              `json:"done"`
	Timestamp      int64             `json:"timestamp,omitempty"` // unix nanoseconds
	Metadata       map[string]string `json:"metadata,omitempty"`
}

type AppendRequest struct {
	Transition *Transition `json:"transition"`
	// Priority is the raw priority; nil means the buffer's current maximum
	Priority *float64 `json:"priority,omitempty"`
}

type AppendResponse struct {
	Index        int64  `json:"index"`
	TransitionID string `json:"transition_id"`
}

type AppendBatchRequest struct {
	Transitions []*Transition `json:"transitions"`
}

type AppendBatchResponse struct {
	Indices       []int64  `json:"indices"`
	TransitionIDs []string `json:"transition_ids"`
	StoredCount   uint32   `json:"stored_count"`
	FailedCount   uint32   `json:"failed_count"`
	ErrorMessages []string `json:"error_messages,omitempty"`
}

type SampleRequest struct {
	BatchSize uint32 `json:"batch_size"`
}

type SampleResponse struct {
	Transitions    []*Transition `json:"transitions"`
	Indices        []int64       `json:"indices"`
	Weights        []float64     `json:"weights"`
	Generation     string        `json:"generation"`
	TotalAvailable uint32        `json:"total_available"`
}

type UpdatePrioritiesRequest struct {
	// Generation from the SampleResponse the indices came from
	Generation string    `json:"generation,omitempty"`
	Indices    []int64   `json:"indices"`
	Priorities []float64 `json:"priorities"`
}

type UpdatePrioritiesResponse struct {
	UpdatedCount uint32 `json:"updated_count"`
}

type GetStatsRequest struct{}

type StatsResponse struct {
	Capacity           uint64            `json:"capacity"`
	Available          uint64            `json:"available"`
	WriteIndex         uint64            `json:"write_index"`
	TotalAppended      uint64            `json:"total_appended"`
	TotalPriority      float64           `json:"total_priority"`
	MaxPriority        float64           `json:"max_priority"`
	Alpha              float64           `json:"alpha"`
	Beta               float64           `json:"beta"`
	MinPriority        float64           `json:"min_priority"`
	Generation         string            `json:"generation"`
	TransitionsByAgent map[string]uint64 `json:"transitions_by_agent,omitempty"`
	OldestTimestamp    int64             `json:"oldest_timestamp,omitempty"`
	NewestTimestamp    int64             `json:"newest_timestamp,omitempty"`
}

type ClearRequest struct{}

type ClearResponse struct {
	ClearedCount uint64 `json:"cleared_count"`
	Generation   string `json:"generation"`
}

type SetBetaRequest struct {
	Beta float64 `json:"beta"`
}

type SetBetaResponse struct {
	Beta float64 `json:"beta"`
}
