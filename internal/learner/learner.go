// Package learner drives Q-learning training steps against a prioritized
// replay buffer: it samples a minibatch, builds double-DQN targets, hands the
// weighted batch to a trainer, feeds the TD-errors back as priorities and
// anneals beta.
package learner

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/floats"

	"github.com/cartridge/wizard-replay/internal/policy"
	"github.com/cartridge/wizard-replay/internal/storage"
)

// Buffer is the part of the replay buffer a learner needs. Both the local
// storage backend and the remote client adapter satisfy it.
type Buffer interface {
	Sample(ctx context.Context, batchSize int) (*storage.SampleResult, error)
	UpdatePriorities(ctx context.Context, generation string, indices []int, priorities []float64) error
	Stats(ctx context.Context) (*storage.Stats, error)
	SetBeta(beta float64) error
}

// Estimator evaluates a value network: one row of action values per state.
type Estimator interface {
	QValues(ctx context.Context, states [][]float32) ([][]float64, error)
}

// Trainer fits the online network to a weighted batch of targets.
type Trainer interface {
	Fit(ctx context.Context, batch *Batch) error
}

// Batch is one training minibatch. Targets holds the full Q row for each
// state with only the taken action replaced, so the loss on the other
// actions is zero.
type Batch struct {
	States  [][]float32
	Actions []int32
	Targets [][]float64
	Weights []float64
}

// Config holds learner settings
type Config struct {
	BatchSize int
	Discount  float64
	// MinReplaySize is the number of stored transitions before training starts
	MinReplaySize int
	Beta          BetaSchedule
	// IdleWait is how long Run waits after a skipped step
	IdleWait time.Duration
}

// DefaultConfig mirrors the playing network: 32-transition batches, discount
// 0.7, training from ~20 games of tricks onward, fixed beta.
func DefaultConfig() Config {
	return Config{
		BatchSize:     32,
		Discount:      0.7,
		MinReplaySize: 4200,
		Beta:          BetaSchedule{Start: 0.4, End: 0.4},
		IdleWait:      100 * time.Millisecond,
	}
}

// Validate checks if the configuration is valid
func (c Config) Validate() error {
	if c.BatchSize <= 0 {
		return fmt.Errorf("batch_size must be positive")
	}
	if c.Discount < 0 || c.Discount > 1 {
		return fmt.Errorf("discount must be in [0, 1], got %v", c.Discount)
	}
	if c.MinReplaySize < 0 {
		return fmt.Errorf("min_replay_size must not be negative")
	}
	return c.Beta.Validate()
}

// StepResult summarizes one training step
type StepResult struct {
	Skipped     bool
	Step        int
	Beta        float64
	MeanTDError float64
	MaxTDError  float64
}

// Learner runs training steps
type Learner struct {
	cfg     Config
	buffer  Buffer
	online  Estimator
	target  Estimator
	trainer Trainer
	logger  zerolog.Logger
	step    int
}

// New creates a learner. online and target may be the same estimator when
// no separate target network is kept.
func New(cfg Config, buffer Buffer, online, target Estimator, trainer Trainer, logger zerolog.Logger) (*Learner, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid learner config: %w", err)
	}
	if buffer == nil || online == nil || target == nil || trainer == nil {
		return nil, errors.New("buffer, estimators and trainer are required")
	}
	if err := buffer.SetBeta(cfg.Beta.At(0)); err != nil {
		return nil, fmt.Errorf("failed to set initial beta: %w", err)
	}
	return &Learner{
		cfg:     cfg,
		buffer:  buffer,
		online:  online,
		target:  target,
		trainer: trainer,
		logger:  logger.With().Str("component", "learner").Logger(),
	}, nil
}

// Steps returns the number of completed training steps
func (l *Learner) Steps() int {
	return l.step
}

// Step runs one training step. Too few stored transitions is not an error:
// the result is marked Skipped.
func (l *Learner) Step(ctx context.Context) (*StepResult, error) {
	stats, err := l.buffer.Stats(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read buffer stats: %w", err)
	}
	if stats.Available < l.cfg.MinReplaySize {
		return &StepResult{Skipped: true, Step: l.step}, nil
	}

	sample, err := l.buffer.Sample(ctx, l.cfg.BatchSize)
	if errors.Is(err, storage.ErrInsufficientSamples) {
		return &StepResult{Skipped: true, Step: l.step}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to sample batch: %w", err)
	}

	batch, tdErrors, err := l.buildBatch(ctx, sample)
	if err != nil {
		return nil, err
	}

	if err := l.trainer.Fit(ctx, batch); err != nil {
		return nil, fmt.Errorf("failed to fit batch: %w", err)
	}

	if err := l.buffer.UpdatePriorities(ctx, sample.Generation, sample.Indices, tdErrors); err != nil {
		if errors.Is(err, storage.ErrStaleGeneration) {
			// buffer was cleared mid-step; the sampled slots are gone
			l.logger.Warn().Err(err).Msg("dropping priorities for cleared buffer")
		} else {
			return nil, fmt.Errorf("failed to update priorities: %w", err)
		}
	}

	l.step++
	beta := l.cfg.Beta.At(l.step)
	if err := l.buffer.SetBeta(beta); err != nil {
		return nil, fmt.Errorf("failed to anneal beta: %w", err)
	}

	result := &StepResult{
		Step:        l.step,
		Beta:        beta,
		MeanTDError: floats.Sum(tdErrors) / float64(len(tdErrors)),
		MaxTDError:  floats.Max(tdErrors),
	}

	l.logger.Debug().
		Int("step", result.Step).
		Float64("beta", result.Beta).
		Float64("mean_td_error", result.MeanTDError).
		Float64("max_td_error", result.MaxTDError).
		Msg("Training step")

	return result, nil
}

// Run trains until ctx is cancelled or maxSteps steps have completed
// (maxSteps <= 0 means no limit).
func (l *Learner) Run(ctx context.Context, maxSteps int) error {
	l.logger.Info().Int("batch_size", l.cfg.BatchSize).Msg("Learner starting")

	for {
		if maxSteps > 0 && l.step >= maxSteps {
			l.logger.Info().Int("steps", l.step).Msg("Reached maximum steps, stopping")
			return nil
		}

		result, err := l.Step(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}
		if !result.Skipped {
			continue
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(l.cfg.IdleWait):
		}
	}
}

func (l *Learner) buildBatch(ctx context.Context, sample *storage.SampleResult) (*Batch, []float64, error) {
	n := len(sample.Transitions)
	states := make([][]float32, n)
	nextStates := make([][]float32, n)
	for i, tr := range sample.Transitions {
		states[i] = tr.State
		nextStates[i] = tr.NextState
	}

	current, err := l.online.QValues(ctx, states)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to evaluate states: %w", err)
	}
	futureOnline, err := l.online.QValues(ctx, nextStates)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to evaluate next states: %w", err)
	}
	futureTarget, err := l.target.QValues(ctx, nextStates)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to evaluate next states on target: %w", err)
	}
	if len(current) != n || len(futureOnline) != n || len(futureTarget) != n {
		return nil, nil, fmt.Errorf("estimator returned %d/%d/%d rows for %d states",
			len(current), len(futureOnline), len(futureTarget), n)
	}

	batch := &Batch{
		States:  states,
		Actions: make([]int32, n),
		Targets: make([][]float64, n),
		Weights: sample.Weights,
	}
	tdErrors := make([]float64, n)

	for i, tr := range sample.Transitions {
		action := int(tr.Action)
		if action < 0 || action >= len(current[i]) {
			return nil, nil, fmt.Errorf("transition %s: action %d outside %d q-values", tr.ID, action, len(current[i]))
		}

		target := float64(tr.Reward)
		if !tr.Done {
			if len(futureOnline[i]) == 0 || len(futureOnline[i]) != len(futureTarget[i]) {
				return nil, nil, fmt.Errorf("transition %s: mismatched next-state q-values", tr.ID)
			}
			// online network picks the action, target network values it
			best := policy.BestAction(futureOnline[i], tr.IllegalActions)
			target += l.cfg.Discount * futureTarget[i][best]
		}

		row := make([]float64, len(current[i]))
		copy(row, current[i])
		row[action] = target

		batch.Actions[i] = tr.Action
		batch.Targets[i] = row
		tdErrors[i] = math.Abs(target - current[i][action])
	}

	return batch, tdErrors, nil
}
