package learner

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cartridge/wizard-replay/internal/storage"
)

// tableEstimator looks q-values up by the first feature of each state
type tableEstimator struct {
	rows map[float32][]float64
	err  error
}

func (e *tableEstimator) QValues(ctx context.Context, states [][]float32) ([][]float64, error) {
	if e.err != nil {
		return nil, e.err
	}
	out := make([][]float64, len(states))
	for i, s := range states {
		out[i] = e.rows[s[0]]
	}
	return out, nil
}

type recordingTrainer struct {
	batches []*Batch
	onFit   func()
}

func (r *recordingTrainer) Fit(ctx context.Context, batch *Batch) error {
	r.batches = append(r.batches, batch)
	if r.onFit != nil {
		r.onFit()
	}
	return nil
}

func newBackend(t *testing.T, capacity int) *storage.MemoryBackend {
	t.Helper()
	cfg := storage.DefaultConfig(capacity)
	cfg.Seed = 3
	backend, err := storage.NewMemoryBackend(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { backend.Close() })
	return backend
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.BatchSize = 1
	cfg.MinReplaySize = 1
	cfg.IdleWait = time.Millisecond
	return cfg
}

func TestLearner_DoubleDQNTarget(t *testing.T) {
	backend := newBackend(t, 1)
	ctx := context.Background()

	_, err := backend.Append(ctx, &storage.Transition{
		State:          []float32{0},
		Action:         1,
		Reward:         1,
		NextState:      []float32{1},
		IllegalActions: []int32{0},
	})
	require.NoError(t, err)

	online := &tableEstimator{rows: map[float32][]float64{
		0: {0, 0.5, 0},
		1: {3, 1, 2}, // action 0 is best but illegal, so action 2 is picked
	}}
	target := &tableEstimator{rows: map[float32][]float64{
		1: {10, 20, 30},
	}}
	trainer := &recordingTrainer{}

	l, err := New(testConfig(), backend, online, target, trainer, zerolog.Nop())
	require.NoError(t, err)

	result, err := l.Step(ctx)
	require.NoError(t, err)
	assert.False(t, result.Skipped)
	assert.Equal(t, 1, result.Step)
	assert.InDelta(t, 21.5, result.MeanTDError, 1e-9)
	assert.InDelta(t, 21.5, result.MaxTDError, 1e-9)

	require.Len(t, trainer.batches, 1)
	batch := trainer.batches[0]
	assert.Equal(t, []int32{1}, batch.Actions)
	assert.InDeltaSlice(t, []float64{0, 1 + 0.7*30, 0}, batch.Targets[0], 1e-9)
	assert.Equal(t, []float64{1}, batch.Weights)

	// the estimator's row must not be modified in place
	assert.Equal(t, []float64{0, 0.5, 0}, online.rows[0])

	stats, err := backend.Stats(ctx)
	require.NoError(t, err)
	assert.InDelta(t, backend.Adjust(21.5), stats.TotalPriority, 1e-9)
}

func TestLearner_TerminalTargetIsReward(t *testing.T) {
	backend := newBackend(t, 1)
	ctx := context.Background()

	_, err := backend.Append(ctx, &storage.Transition{
		State:     []float32{0},
		Action:    0,
		Reward:    -2,
		NextState: []float32{1},
		Done:      true,
	})
	require.NoError(t, err)

	online := &tableEstimator{rows: map[float32][]float64{0: {1, 1}, 1: {5, 5}}}
	trainer := &recordingTrainer{}

	l, err := New(testConfig(), backend, online, online, trainer, zerolog.Nop())
	require.NoError(t, err)

	result, err := l.Step(ctx)
	require.NoError(t, err)
	assert.InDelta(t, 3.0, result.MeanTDError, 1e-9)
	assert.Equal(t, []float64{-2, 1}, trainer.batches[0].Targets[0])
}

func TestLearner_SkipsUntilMinReplaySize(t *testing.T) {
	backend := newBackend(t, 8)
	ctx := context.Background()

	cfg := testConfig()
	cfg.MinReplaySize = 3
	online := &tableEstimator{rows: map[float32][]float64{0: {1}}}
	trainer := &recordingTrainer{}

	l, err := New(cfg, backend, online, online, trainer, zerolog.Nop())
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		_, err := backend.Append(ctx, &storage.Transition{State: []float32{0}, NextState: []float32{0}, Done: true})
		require.NoError(t, err)

		result, err := l.Step(ctx)
		require.NoError(t, err)
		assert.True(t, result.Skipped)
	}
	assert.Empty(t, trainer.batches)

	_, err = backend.Append(ctx, &storage.Transition{State: []float32{0}, NextState: []float32{0}, Done: true})
	require.NoError(t, err)
	result, err := l.Step(ctx)
	require.NoError(t, err)
	assert.False(t, result.Skipped)
	assert.Len(t, trainer.batches, 1)
}

func TestLearner_SkipsOnInsufficientSamples(t *testing.T) {
	backend := newBackend(t, 8)
	cfg := testConfig()
	cfg.MinReplaySize = 0
	cfg.BatchSize = 4
	online := &tableEstimator{}

	l, err := New(cfg, backend, online, online, &recordingTrainer{}, zerolog.Nop())
	require.NoError(t, err)

	result, err := l.Step(context.Background())
	require.NoError(t, err)
	assert.True(t, result.Skipped)
	assert.Equal(t, 0, l.Steps())
}

func TestLearner_AnnealsBeta(t *testing.T) {
	backend := newBackend(t, 4)
	ctx := context.Background()

	_, err := backend.Append(ctx, &storage.Transition{State: []float32{0}, NextState: []float32{0}, Done: true})
	require.NoError(t, err)

	cfg := testConfig()
	cfg.Beta = BetaSchedule{Start: 0.4, End: 1.0, Steps: 2}
	online := &tableEstimator{rows: map[float32][]float64{0: {0}}}

	l, err := New(cfg, backend, online, online, &recordingTrainer{}, zerolog.Nop())
	require.NoError(t, err)
	assert.Equal(t, 0.4, backend.Beta())

	expected := []float64{0.7, 1.0, 1.0}
	for _, want := range expected {
		result, err := l.Step(ctx)
		require.NoError(t, err)
		assert.InDelta(t, want, result.Beta, 1e-12)
		assert.InDelta(t, want, backend.Beta(), 1e-12)
	}
}

func TestLearner_ToleratesClearDuringStep(t *testing.T) {
	backend := newBackend(t, 4)
	ctx := context.Background()

	_, err := backend.Append(ctx, &storage.Transition{State: []float32{0}, NextState: []float32{0}, Done: true})
	require.NoError(t, err)

	online := &tableEstimator{rows: map[float32][]float64{0: {0}}}
	// refill after the clear so the stale indices would otherwise be valid
	trainer := &recordingTrainer{onFit: func() {
		dropped, err := backend.Clear(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, dropped)
		_, err = backend.Append(ctx, &storage.Transition{State: []float32{0}, NextState: []float32{0}, Done: true})
		require.NoError(t, err)
	}}

	l, err := New(testConfig(), backend, online, online, trainer, zerolog.Nop())
	require.NoError(t, err)

	result, err := l.Step(ctx)
	require.NoError(t, err)
	assert.False(t, result.Skipped)

	stats, err := backend.Stats(ctx)
	require.NoError(t, err)
	// only the fresh default priority remains
	assert.InDelta(t, backend.Adjust(1), stats.TotalPriority, 1e-12)
}

func TestLearner_PropagatesEstimatorErrors(t *testing.T) {
	backend := newBackend(t, 1)
	ctx := context.Background()

	_, err := backend.Append(ctx, &storage.Transition{State: []float32{0}, NextState: []float32{0}})
	require.NoError(t, err)

	boom := errors.New("model unavailable")
	online := &tableEstimator{err: boom}

	l, err := New(testConfig(), backend, online, online, &recordingTrainer{}, zerolog.Nop())
	require.NoError(t, err)

	_, err = l.Step(ctx)
	assert.ErrorIs(t, err, boom)
}

func TestLearner_RejectsOutOfRangeAction(t *testing.T) {
	backend := newBackend(t, 1)
	ctx := context.Background()

	_, err := backend.Append(ctx, &storage.Transition{State: []float32{0}, NextState: []float32{0}, Action: 5})
	require.NoError(t, err)

	online := &tableEstimator{rows: map[float32][]float64{0: {1, 2}}}
	l, err := New(testConfig(), backend, online, online, &recordingTrainer{}, zerolog.Nop())
	require.NoError(t, err)

	_, err = l.Step(ctx)
	assert.Error(t, err)
}

func TestLearner_Run(t *testing.T) {
	backend := newBackend(t, 4)
	ctx := context.Background()

	online := &tableEstimator{rows: map[float32][]float64{0: {0, 1}}}
	l, err := New(testConfig(), backend, online, online, &recordingTrainer{}, zerolog.Nop())
	require.NoError(t, err)

	// nothing stored: Run idles until cancelled
	cancelCtx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, l.Run(cancelCtx, 0), context.DeadlineExceeded)

	_, err = backend.Append(ctx, &storage.Transition{State: []float32{0}, NextState: []float32{0}, Done: true})
	require.NoError(t, err)
	require.NoError(t, l.Run(ctx, 3))
	assert.Equal(t, 3, l.Steps())
}

func TestNew_Validation(t *testing.T) {
	backend := newBackend(t, 1)
	online := &tableEstimator{}

	cfg := testConfig()
	cfg.Discount = 1.5
	_, err := New(cfg, backend, online, online, &recordingTrainer{}, zerolog.Nop())
	assert.Error(t, err)

	_, err = New(testConfig(), backend, nil, online, &recordingTrainer{}, zerolog.Nop())
	assert.Error(t, err)
}

func TestBetaSchedule(t *testing.T) {
	fixed := BetaSchedule{Start: 0.4, End: 1.0}
	assert.Equal(t, 0.4, fixed.At(1000))

	linear := BetaSchedule{Start: 0.4, End: 1.0, Steps: 10}
	assert.Equal(t, 0.4, linear.At(0))
	assert.InDelta(t, 0.7, linear.At(5), 1e-12)
	assert.Equal(t, 1.0, linear.At(10))
	assert.Equal(t, 1.0, linear.At(50))

	assert.Error(t, BetaSchedule{Start: -1}.Validate())
}
