package events

import (
	"context"
	"time"
)

// Kind names a buffer lifecycle change
type Kind string

const (
	KindCleared     Kind = "cleared"
	KindBetaChanged Kind = "beta_changed"
)

// Publisher is implemented by downstream fan-out mechanisms.
type Publisher interface {
	PublishBufferEvent(ctx context.Context, event BufferEvent) error
}

// BufferEvent is emitted when the buffer is cleared or beta changes, so
// learners holding sampled indices can drop them.
type BufferEvent struct {
	Kind         Kind      `json:"kind"`
	Generation   string    `json:"generation"`
	ClearedCount int       `json:"cleared_count,omitempty"`
	Beta         float64   `json:"beta"`
	Source       string    `json:"source,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
}

// NoopPublisher drops every event; useful for tests.
type NoopPublisher struct{}

// PublishBufferEvent satisfies Publisher.
func (NoopPublisher) PublishBufferEvent(context.Context, BufferEvent) error { return nil }
