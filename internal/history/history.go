// Package history records engine lifecycle events. Emission is fire and
// forget; the engine never depends on the sink succeeding.
package history

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/fetcharr/fetcharr/internal/library"
)

// EventType enumerates recorded lifecycle events.
type EventType string

const (
	EventGrabbed     EventType = "grabbed"
	EventImported    EventType = "imported"
	EventFailed      EventType = "failed"
	EventBlocklisted EventType = "blocklisted"
)

// Event is one history record.
type Event struct {
	Type     EventType        `json:"type"`
	TargetID library.TargetID `json:"targetId"`
	Title    string           `json:"title"`
	Indexer  string           `json:"indexer,omitempty"`
	Detail   string           `json:"detail,omitempty"`
	At       time.Time        `json:"at"`
}

// Sink receives events. Implementations must not block the caller on
// downstream failures.
type Sink interface {
	Emit(e Event)
}

// Store persists events for later inspection.
type Store interface {
	AddEvent(ctx context.Context, e Event) error
}

// Recorder logs every event and, when a store is attached, persists it.
// Persistence failures are logged and swallowed.
type Recorder struct {
	store  Store
	now    func() time.Time
	logger zerolog.Logger
}

func NewRecorder(store Store, logger zerolog.Logger) *Recorder {
	return &Recorder{
		store:  store,
		now:    time.Now,
		logger: logger.With().Str("component", "history").Logger(),
	}
}

func (r *Recorder) Emit(e Event) {
	if e.At.IsZero() {
		e.At = r.now()
	}
	r.logger.Info().
		Str("event", string(e.Type)).
		Str("target", string(e.TargetID)).
		Str("title", e.Title).
		Str("detail", e.Detail).
		Msg("history event")

	if r.store == nil {
		return
	}
	if err := r.store.AddEvent(context.Background(), e); err != nil {
		r.logger.Warn().Err(err).Str("event", string(e.Type)).Msg("failed to persist history event")
	}
}

// NopSink discards all events.
type NopSink struct{}

func (NopSink) Emit(Event) {}
