package storage

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"gonum.org/v1/gonum/floats"

	"github.com/cartridge/wizard-replay/internal/sumtree"
)

// MemoryBackend implements an in-memory prioritized replay buffer: a
// fixed-capacity ring of transitions paired slot-for-slot with the leaves of
// a sum tree holding their adjusted priorities.
type MemoryBackend struct {
	mu            sync.Mutex
	cfg           Config
	buffer        []*Transition // slot -> transition, nil until written
	tree          *sumtree.Tree // leaf i holds the priority of buffer[i]
	writeIdx      int           // next slot to overwrite
	available     int           // filled slots, at most cfg.Capacity
	maxPriority   float64       // largest adjusted priority seen
	totalAppended uint64
	byAgent       map[Agent]uint64
	generation    string
	closed        bool
	rng           *rand.Rand
}

var _ Backend = (*MemoryBackend)(nil)

// NewMemoryBackend creates a new in-memory prioritized buffer. The sum tree
// is rounded up to the next power of two; the padding leaves stay at zero
// and are never sampled.
func NewMemoryBackend(cfg Config) (*MemoryBackend, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid buffer config: %w", err)
	}

	tree, err := sumtree.New(sumtree.NextPowerOfTwo(cfg.Capacity))
	if err != nil {
		return nil, fmt.Errorf("failed to build sum tree: %w", err)
	}

	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	return &MemoryBackend{
		cfg:         cfg,
		buffer:      make([]*Transition, cfg.Capacity),
		tree:        tree,
		maxPriority: 1,
		byAgent:     make(map[Agent]uint64),
		generation:  uuid.New().String(),
		rng:         rand.New(rand.NewSource(seed)),
	}, nil
}

// Adjust maps a raw priority (usually a TD-error) to the value stored in the
// tree: (raw + min_priority) ^ alpha.
func (m *MemoryBackend) Adjust(raw float64) float64 {
	return math.Pow(raw+m.cfg.MinPriority, m.cfg.Alpha)
}

// Append implements Backend.Append. The running maximum is used as the raw
// priority and adjusted like any other, so new transitions are sampled at
// least once before their TD-error is known.
func (m *MemoryBackend) Append(ctx context.Context, transition *Transition) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.appendLocked(transition, m.Adjust(m.maxPriority))
}

// AppendWithPriority implements Backend.AppendWithPriority
func (m *MemoryBackend) AppendWithPriority(ctx context.Context, transition *Transition, priority float64) (int, error) {
	if err := checkRawPriority(priority); err != nil {
		return -1, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	return m.appendLocked(transition, m.Adjust(priority))
}

// AppendBatch implements Backend.AppendBatch
func (m *MemoryBackend) AppendBatch(ctx context.Context, transitions []*Transition) ([]int, error) {
	indices := make([]int, 0, len(transitions))

	for _, transition := range transitions {
		if err := ctx.Err(); err != nil {
			return indices, err
		}
		idx, err := m.Append(ctx, transition)
		if err != nil {
			return indices, err
		}
		indices = append(indices, idx)
	}

	return indices, nil
}

// Sample implements Backend.Sample. Draws are with replacement.
func (m *MemoryBackend) Sample(ctx context.Context, batchSize int) (*SampleResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if batchSize <= 0 {
		return nil, fmt.Errorf("%w: batch size must be positive, got %d", ErrInvalidArgument, batchSize)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, ErrClosed
	}
	if m.available < batchSize {
		return nil, &InsufficientSamplesError{Requested: batchSize, Available: m.available}
	}

	total := m.tree.Total()
	n := float64(m.available)

	result := &SampleResult{
		Transitions: make([]*Transition, batchSize),
		Indices:     make([]int, batchSize),
		Weights:     make([]float64, batchSize),
		Generation:  m.generation,
	}

	for i := 0; i < batchSize; i++ {
		// uniform in (0, total] to match the tree's right-closed ranges
		target := total - m.rng.Float64()*total
		idx := m.tree.Retrieve(target)
		if idx >= m.available {
			return nil, fmt.Errorf("sum tree returned unfilled slot %d (%d available)", idx, m.available)
		}

		probability := m.tree.Leaf(idx) / total

		result.Indices[i] = idx
		result.Transitions[i] = m.buffer[idx]
		result.Weights[i] = math.Pow(n*probability, -m.cfg.Beta)
	}

	// divide rather than scale by the reciprocal so the max is exactly 1
	maxWeight := floats.Max(result.Weights)
	for i := range result.Weights {
		result.Weights[i] /= maxWeight
	}

	return result, nil
}

// UpdatePriorities implements Backend.UpdatePriorities
func (m *MemoryBackend) UpdatePriorities(ctx context.Context, generation string, indices []int, priorities []float64) error {
	if len(indices) != len(priorities) {
		return fmt.Errorf("%w: mismatched lengths: %d indices vs %d priorities", ErrInvalidArgument, len(indices), len(priorities))
	}
	for _, p := range priorities {
		if err := checkRawPriority(p); err != nil {
			return err
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrClosed
	}
	if generation != "" && generation != m.generation {
		return fmt.Errorf("%w: got %s, current %s", ErrStaleGeneration, generation, m.generation)
	}

	// validate everything first so a bad index leaves the tree untouched
	for _, idx := range indices {
		if idx < 0 || idx >= m.available {
			return &IndexError{Index: idx, Available: m.available, Capacity: m.cfg.Capacity}
		}
	}

	for i, idx := range indices {
		if err := m.setPriorityLocked(idx, m.Adjust(priorities[i])); err != nil {
			return err
		}
	}

	return nil
}

// Stats implements Backend.Stats
func (m *MemoryBackend) Stats(ctx context.Context) (*Stats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, ErrClosed
	}

	stats := &Stats{
		Capacity:           m.cfg.Capacity,
		Available:          m.available,
		WriteIndex:         m.writeIdx,
		TotalAppended:      m.totalAppended,
		TotalPriority:      m.tree.Total(),
		MaxPriority:        m.maxPriority,
		Alpha:              m.cfg.Alpha,
		Beta:               m.cfg.Beta,
		MinPriority:        m.cfg.MinPriority,
		Generation:         m.generation,
		TransitionsByAgent: make(map[Agent]uint64, len(m.byAgent)),
	}

	for agent, count := range m.byAgent {
		stats.TransitionsByAgent[agent] = count
	}

	// slots are written in order, so the oldest sits at the write index
	// once the ring has wrapped and at slot 0 before that
	if m.available > 0 {
		oldest := 0
		if m.available == m.cfg.Capacity {
			oldest = m.writeIdx
		}
		newest := (m.writeIdx - 1 + m.cfg.Capacity) % m.cfg.Capacity
		oldestTs := m.buffer[oldest].Timestamp
		newestTs := m.buffer[newest].Timestamp
		stats.OldestTimestamp = &oldestTs
		stats.NewestTimestamp = &newestTs
	}

	return stats, nil
}

// Beta implements Backend.Beta
func (m *MemoryBackend) Beta() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.cfg.Beta
}

// SetBeta implements Backend.SetBeta
func (m *MemoryBackend) SetBeta(beta float64) error {
	if beta < 0 || math.IsNaN(beta) || math.IsInf(beta, 0) {
		return fmt.Errorf("%w: beta must be a non-negative number, got %v", ErrInvalidArgument, beta)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.cfg.Beta = beta
	return nil
}

// Clear implements Backend.Clear. The tree keeps its shape; only values and
// the ring position are reset. Indices sampled before the call belong to the
// previous generation.
func (m *MemoryBackend) Clear(ctx context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return 0, ErrClosed
	}

	dropped := m.available

	for i := range m.buffer {
		m.buffer[i] = nil
	}
	m.tree.Reset()
	m.writeIdx = 0
	m.available = 0
	m.maxPriority = 1
	m.byAgent = make(map[Agent]uint64)
	m.generation = uuid.New().String()

	return dropped, nil
}

// Close implements Backend.Close
func (m *MemoryBackend) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.closed = true
	m.buffer = nil
	m.byAgent = nil

	return nil
}

// Helper methods

func (m *MemoryBackend) appendLocked(transition *Transition, priority float64) (int, error) {
	if m.closed {
		return -1, ErrClosed
	}
	if transition == nil {
		return -1, fmt.Errorf("%w: transition is required", ErrInvalidArgument)
	}

	// Generate ID if not provided
	if transition.ID == "" {
		transition.ID = uuid.New().String()
	}

	// Set timestamp if not provided
	if transition.Timestamp.IsZero() {
		transition.Timestamp = time.Now()
	}

	idx := m.writeIdx
	if old := m.buffer[idx]; old != nil {
		m.forgetAgent(old.Agent)
	}
	m.buffer[idx] = transition
	if transition.Agent != "" {
		m.byAgent[transition.Agent]++
	}

	if err := m.setPriorityLocked(idx, priority); err != nil {
		return -1, err
	}

	m.writeIdx = (m.writeIdx + 1) % m.cfg.Capacity
	if m.available < m.cfg.Capacity {
		m.available++
	}
	m.totalAppended++

	return idx, nil
}

func (m *MemoryBackend) setPriorityLocked(idx int, adjusted float64) error {
	if adjusted > m.maxPriority {
		m.maxPriority = adjusted
	}
	return m.tree.Update(idx, adjusted)
}

func (m *MemoryBackend) forgetAgent(agent Agent) {
	if agent == "" {
		return
	}
	if m.byAgent[agent] <= 1 {
		delete(m.byAgent, agent)
		return
	}
	m.byAgent[agent]--
}

func checkRawPriority(p float64) error {
	if p < 0 || math.IsNaN(p) || math.IsInf(p, 0) {
		return fmt.Errorf("%w: priority must be a finite non-negative number, got %v", ErrInvalidArgument, p)
	}
	return nil
}
