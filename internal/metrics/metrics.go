package metrics

import (
	"time"

	"github.com/rs/zerolog"
)

// Collector emits replay metrics as structured log events
type Collector struct {
	logger zerolog.Logger
}

func NewCollector(logger zerolog.Logger) *Collector {
	return &Collector{
		logger: logger,
	}
}

// Track transitions written into the buffer
func (c *Collector) TransitionsAppended(count int, available int) {
	c.logger.Debug().
		Str("metric", "transitions_appended").
		Int("count", count).
		Int("available", available).
		Msg("Append metric")
}

// Track minibatches drawn for training
func (c *Collector) BatchSampled(batchSize int, maxIndex int, minWeight float64, latency time.Duration) {
	c.logger.Debug().
		Str("metric", "batch_sampled").
		Int("batch_size", batchSize).
		Int("max_index", maxIndex).
		Float64("min_weight", minWeight).
		Dur("latency", latency).
		Msg("Sample metric")
}

// Track sampling attempts that could not fill a batch
func (c *Collector) SampleSkipped(requested int, available int) {
	c.logger.Info().
		Str("metric", "sample_skipped").
		Int("requested", requested).
		Int("available", available).
		Msg("Insufficient samples")
}

// Track TD-error priority refreshes
func (c *Collector) PrioritiesUpdated(count int, generation string) {
	c.logger.Debug().
		Str("metric", "priorities_updated").
		Int("count", count).
		Str("generation", generation).
		Msg("Priority update metric")
}

// Track explicit buffer resets
func (c *Collector) BufferCleared(cleared int, generation string) {
	c.logger.Info().
		Str("metric", "buffer_cleared").
		Int("cleared", cleared).
		Str("generation", generation).
		Msg("Buffer cleared")
}

// Track RPC metrics
func (c *Collector) RPC(method string, code string, duration time.Duration) {
	c.logger.Info().
		Str("metric", "rpc").
		Str("method", method).
		Str("code", code).
		Dur("duration", duration).
		Msg("RPC metric")
}
