package storage

import (
	"context"
	"fmt"
	"math"
	"time"
)

// Agent identifies which learner produced a transition
type Agent string

const (
	AgentGuessing Agent = "guessing"
	AgentPlaying  Agent = "playing"
)

// Transition represents a single experience transition. The buffer stores
// it as given and never interprets its contents.
type Transition struct {
	ID             string            `json:"id"`
	EpisodeID      string            `json:"episode_id"`
	Agent          Agent             `json:"agent"`
	State          []float32         `json:"state"`
	Action         int32             `json:"action"`
	Reward         float32           `json:"reward"`
	NextState      []float32         `json:"next_state"`
	IllegalActions []int32           `json:"illegal_actions,omitempty"`
	Done           bool              `json:"done"`
	Timestamp      time.Time         `json:"timestamp"`
	Metadata       map[string]string `json:"metadata,omitempty"`
}

// Config holds buffer sizing and the prioritization exponents
type Config struct {
	// Capacity is the number of transitions retained
	Capacity int
	// Alpha controls how strongly priority skews sampling (0 = uniform)
	Alpha float64
	// Beta is the importance-sampling exponent, usually annealed toward 1
	Beta float64
	// MinPriority is added to every raw priority so nothing starves
	MinPriority float64
	// Seed for the sampling RNG; zero seeds from the clock
	Seed int64
}

// DefaultConfig returns alpha=0.6, beta=0.4, min_priority=0.01
func DefaultConfig(capacity int) Config {
	return Config{
		Capacity:    capacity,
		Alpha:       0.6,
		Beta:        0.4,
		MinPriority: 0.01,
	}
}

// Validate checks if the configuration is valid
func (c Config) Validate() error {
	if c.Capacity <= 0 {
		return fmt.Errorf("capacity must be positive, got %d", c.Capacity)
	}
	if c.Alpha < 0 || math.IsNaN(c.Alpha) {
		return fmt.Errorf("alpha must be non-negative, got %v", c.Alpha)
	}
	if c.Beta < 0 || math.IsNaN(c.Beta) {
		return fmt.Errorf("beta must be non-negative, got %v", c.Beta)
	}
	if !(c.MinPriority > 0) {
		return fmt.Errorf("min_priority must be positive, got %v", c.MinPriority)
	}
	return nil
}

// SampleResult is one prioritized minibatch
type SampleResult struct {
	Transitions []*Transition
	// Indices are buffer slots, needed to feed fresh priorities back
	Indices []int
	// Weights are importance-sampling weights normalized to a max of 1
	Weights []float64
	// Generation identifies the buffer contents the indices refer to
	Generation string
}

// Stats represents replay buffer statistics
type Stats struct {
	Capacity           int
	Available          int
	WriteIndex         int
	TotalAppended      uint64
	TotalPriority      float64
	MaxPriority        float64
	Alpha              float64
	Beta               float64
	MinPriority        float64
	Generation         string
	TransitionsByAgent map[Agent]uint64
	OldestTimestamp    *time.Time
	NewestTimestamp    *time.Time
}

// Backend defines the interface for replay buffer storage implementations
type Backend interface {
	// Append stores a transition with the current maximum priority
	Append(ctx context.Context, transition *Transition) (int, error)

	// AppendWithPriority stores a transition with an explicit raw priority
	AppendWithPriority(ctx context.Context, transition *Transition, priority float64) (int, error)

	// AppendBatch stores multiple transitions with the default priority
	AppendBatch(ctx context.Context, transitions []*Transition) ([]int, error)

	// Sample draws a prioritized minibatch
	Sample(ctx context.Context, batchSize int) (*SampleResult, error)

	// UpdatePriorities refreshes priorities from new TD-errors. A non-empty
	// generation must match the current one.
	UpdatePriorities(ctx context.Context, generation string, indices []int, priorities []float64) error

	// Get buffer statistics
	Stats(ctx context.Context) (*Stats, error)

	// Beta and SetBeta expose the importance-sampling exponent for annealing
	Beta() float64
	SetBeta(beta float64) error

	// Clear drops every transition, starts a new generation and reports how
	// many transitions were dropped
	Clear(ctx context.Context) (int, error)

	// Close the backend and cleanup resources
	Close() error
}
