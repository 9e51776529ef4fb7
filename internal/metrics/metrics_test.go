package metrics

import (
	"bufio"
	"bytes"
	"encoding/json"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var entries []map[string]any
	scanner := bufio.NewScanner(buf)
	for scanner.Scan() {
		var entry map[string]any
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &entry))
		entries = append(entries, entry)
	}
	return entries
}

func TestCollector_EmitsMetricEvents(t *testing.T) {
	var buf bytes.Buffer
	c := NewCollector(zerolog.New(&buf).Level(zerolog.DebugLevel))

	c.TransitionsAppended(3, 10)
	c.BatchSampled(32, 9, 0.25, time.Millisecond)
	c.SampleSkipped(32, 4)
	c.PrioritiesUpdated(32, "gen-1")
	c.BufferCleared(10, "gen-2")
	c.RPC("/wizard.replay.v1.Replay/Sample", "OK", time.Millisecond)

	entries := decodeLines(t, &buf)
	require.Len(t, entries, 6)

	names := make([]string, len(entries))
	for i, e := range entries {
		names[i], _ = e["metric"].(string)
	}
	assert.Equal(t, []string{
		"transitions_appended", "batch_sampled", "sample_skipped",
		"priorities_updated", "buffer_cleared", "rpc",
	}, names)

	assert.Equal(t, float64(10), entries[0]["available"])
	assert.Equal(t, 0.25, entries[1]["min_weight"])
	assert.Equal(t, "gen-2", entries[4]["generation"])
}

func TestCollector_RespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	c := NewCollector(zerolog.New(&buf).Level(zerolog.InfoLevel))

	c.TransitionsAppended(1, 1)
	c.PrioritiesUpdated(1, "gen")
	assert.Zero(t, buf.Len())

	c.BufferCleared(1, "gen")
	assert.NotZero(t, buf.Len())
}
