// Package policy provides action selection over q-values with illegal
// actions masked out.
package policy

import (
	"fmt"
	"math"
	"math/rand"
	"sync"
	"time"

	"gonum.org/v1/gonum/floats"
)

// Policy chooses an action index from one row of q-values
type Policy interface {
	SelectAction(q []float64, illegal []int32) (int, error)
}

// BestAction returns the index of the largest q-value, skipping illegal
// actions. With every action masked it falls back to the unmasked argmax.
func BestAction(q []float64, illegal []int32) int {
	if len(illegal) == 0 {
		return floats.MaxIdx(q)
	}

	masked := make([]float64, len(q))
	copy(masked, q)
	legal := len(q)
	for _, a := range illegal {
		if int(a) >= 0 && int(a) < len(masked) && !math.IsInf(masked[a], -1) {
			masked[a] = math.Inf(-1)
			legal--
		}
	}
	if legal == 0 {
		return floats.MaxIdx(q)
	}
	return floats.MaxIdx(masked)
}

// LegalActions lists the actions in [0, n) that are not masked
func LegalActions(n int, illegal []int32) []int {
	masked := make(map[int]struct{}, len(illegal))
	for _, a := range illegal {
		masked[int(a)] = struct{}{}
	}
	legal := make([]int, 0, n)
	for a := 0; a < n; a++ {
		if _, ok := masked[a]; !ok {
			legal = append(legal, a)
		}
	}
	return legal
}

// EpsilonConfig controls exploration. Epsilon decays multiplicatively after
// every episode and never drops below Min.
type EpsilonConfig struct {
	Start float64
	Min   float64
	Decay float64
	Seed  int64
}

// DefaultEpsilonConfig matches the playing agent's exploration settings
func DefaultEpsilonConfig() EpsilonConfig {
	return EpsilonConfig{Start: 1, Min: 0.03, Decay: 0.999}
}

// Validate checks if the configuration is valid
func (c EpsilonConfig) Validate() error {
	if c.Start < 0 || c.Start > 1 {
		return fmt.Errorf("epsilon must be in [0, 1], got %v", c.Start)
	}
	if c.Min < 0 || c.Min > c.Start {
		return fmt.Errorf("min epsilon must be in [0, %v], got %v", c.Start, c.Min)
	}
	if c.Decay <= 0 || c.Decay > 1 {
		return fmt.Errorf("epsilon decay must be in (0, 1], got %v", c.Decay)
	}
	return nil
}

// EpsilonGreedy explores a uniformly random legal action with probability
// epsilon and otherwise exploits the best legal action.
type EpsilonGreedy struct {
	mu      sync.Mutex
	cfg     EpsilonConfig
	epsilon float64
	rng     *rand.Rand
}

var _ Policy = (*EpsilonGreedy)(nil)

// NewEpsilonGreedy creates a new epsilon-greedy policy
func NewEpsilonGreedy(cfg EpsilonConfig) (*EpsilonGreedy, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &EpsilonGreedy{
		cfg:     cfg,
		epsilon: cfg.Start,
		rng:     rand.New(rand.NewSource(seed)),
	}, nil
}

// SelectAction implements Policy
func (p *EpsilonGreedy) SelectAction(q []float64, illegal []int32) (int, error) {
	if len(q) == 0 {
		return -1, fmt.Errorf("no q-values to select from")
	}

	p.mu.Lock()
	explore := p.rng.Float64() < p.epsilon
	var pick int
	legal := LegalActions(len(q), illegal)
	if explore && len(legal) > 0 {
		pick = legal[p.rng.Intn(len(legal))]
	}
	p.mu.Unlock()

	if explore && len(legal) > 0 {
		return pick, nil
	}
	return BestAction(q, illegal), nil
}

// Epsilon returns the current exploration rate
func (p *EpsilonGreedy) Epsilon() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.epsilon
}

// Decay lowers epsilon once, typically at the end of an episode
func (p *EpsilonGreedy) Decay() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.epsilon = math.Max(p.cfg.Min, p.epsilon*p.cfg.Decay)
	return p.epsilon
}
