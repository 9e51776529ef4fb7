// Package producer batches transitions on the simulation side and ships
// them to the replay server.
package producer

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	replayv1 "github.com/cartridge/wizard-replay/pkg/api/replay/v1"
)

// Config holds writer settings
type Config struct {
	// BatchSize is the number of buffered transitions that triggers a flush
	BatchSize int
	// FlushInterval bounds how long a partial batch waits in Run
	FlushInterval time.Duration
	// Agent is stamped on transitions that do not name one
	Agent string
}

// DefaultConfig returns a config with sensible defaults
func DefaultConfig() Config {
	return Config{
		BatchSize:     64,
		FlushInterval: time.Second,
	}
}

// Validate checks if the configuration is valid
func (c Config) Validate() error {
	if c.BatchSize <= 0 {
		return fmt.Errorf("batch_size must be positive")
	}
	if c.FlushInterval <= 0 {
		return fmt.Errorf("flush_interval must be positive")
	}
	return nil
}

// Writer buffers transitions and sends them with AppendBatch, either when the
// batch is full or on the flush ticker. It is safe for concurrent use by
// several game workers.
type Writer struct {
	cfg    Config
	client replayv1.ReplayClient
	logger zerolog.Logger

	mu      sync.Mutex
	pending []*replayv1.Transition
	sent    uint64
	failed  uint64
}

// NewWriter creates a new writer
func NewWriter(cfg Config, client replayv1.ReplayClient, logger zerolog.Logger) (*Writer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid writer config: %w", err)
	}
	return &Writer{
		cfg:     cfg,
		client:  client,
		logger:  logger.With().Str("component", "producer").Logger(),
		pending: make([]*replayv1.Transition, 0, cfg.BatchSize),
	}, nil
}

// Add buffers one transition and flushes if the batch is full
func (w *Writer) Add(ctx context.Context, transition *replayv1.Transition) error {
	if transition == nil {
		return fmt.Errorf("transition is required")
	}
	if transition.Agent == "" {
		transition.Agent = w.cfg.Agent
	}
	if transition.Timestamp == 0 {
		transition.Timestamp = time.Now().UnixNano()
	}

	w.mu.Lock()
	w.pending = append(w.pending, transition)
	var batch []*replayv1.Transition
	if len(w.pending) >= w.cfg.BatchSize {
		batch = w.takeLocked()
	}
	w.mu.Unlock()

	if batch == nil {
		return nil
	}
	return w.send(ctx, batch)
}

// Flush sends whatever is buffered
func (w *Writer) Flush(ctx context.Context) error {
	w.mu.Lock()
	batch := w.takeLocked()
	w.mu.Unlock()

	if len(batch) == 0 {
		return nil
	}
	return w.send(ctx, batch)
}

// Run flushes partial batches every FlushInterval until ctx is done, then
// makes a final flush with a fresh context.
func (w *Writer) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.cfg.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			flushCtx, cancel := context.WithTimeout(context.Background(), w.cfg.FlushInterval)
			defer cancel()
			if err := w.Flush(flushCtx); err != nil {
				w.logger.Error().Err(err).Msg("Failed to flush on shutdown")
			}
			return ctx.Err()
		case <-ticker.C:
			if err := w.Flush(ctx); err != nil {
				w.logger.Warn().Err(err).Msg("Failed to flush partial batch")
			}
		}
	}
}

// Pending returns the number of buffered transitions
func (w *Writer) Pending() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.pending)
}

// Sent returns how many transitions the server stored and how many it
// rejected.
func (w *Writer) Sent() (stored uint64, failed uint64) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.sent, w.failed
}

func (w *Writer) takeLocked() []*replayv1.Transition {
	if len(w.pending) == 0 {
		return nil
	}
	batch := w.pending
	w.pending = make([]*replayv1.Transition, 0, w.cfg.BatchSize)
	return batch
}

func (w *Writer) send(ctx context.Context, batch []*replayv1.Transition) error {
	resp, err := w.client.AppendBatch(ctx, &replayv1.AppendBatchRequest{Transitions: batch})
	if err != nil {
		// put the batch back in front so nothing is lost on a transient error
		w.mu.Lock()
		w.pending = append(batch, w.pending...)
		w.mu.Unlock()
		return fmt.Errorf("failed to append batch: %w", err)
	}

	w.mu.Lock()
	w.sent += uint64(resp.StoredCount)
	w.failed += uint64(resp.FailedCount)
	w.mu.Unlock()

	if resp.FailedCount > 0 {
		w.logger.Warn().
			Uint32("stored", resp.StoredCount).
			Uint32("failed", resp.FailedCount).
			Strs("errors", resp.ErrorMessages).
			Msg("Replay server rejected part of a batch")
	} else {
		w.logger.Debug().Int("count", len(batch)).Msg("Flushed transitions to replay")
	}
	return nil
}
