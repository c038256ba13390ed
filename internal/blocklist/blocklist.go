// Package blocklist records known-bad releases per target so they are never
// selected again.
package blocklist

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/fetcharr/fetcharr/internal/library"
)

// Entry is one blocklisted release identity. Append-only.
type Entry struct {
	Title    string           `json:"title"`
	Indexer  string           `json:"indexer"`
	TargetID library.TargetID `json:"targetId"`
	Reason   string           `json:"reason"`
	AddedAt  time.Time        `json:"addedAt"`
}

// Store persists entries across restarts. Add must be idempotent on
// (title, indexer, target).
type Store interface {
	AddEntry(ctx context.Context, e Entry) error
	ListEntries(ctx context.Context) ([]Entry, error)
}

// Manager is the in-process blocklist. Reads are lock-free on a map guarded
// by RWMutex; writes append to the backing store first, then publish to the
// map, so a crash never loses an entry the engine already acted on.
type Manager struct {
	mu      sync.RWMutex
	entries map[string]Entry
	store   Store
	now     func() time.Time
	logger  zerolog.Logger
}

func NewManager(store Store, logger zerolog.Logger) *Manager {
	return &Manager{
		entries: make(map[string]Entry),
		store:   store,
		now:     time.Now,
		logger:  logger.With().Str("component", "blocklist").Logger(),
	}
}

// Load populates the in-memory index from the backing store.
func (m *Manager) Load(ctx context.Context) error {
	if m.store == nil {
		return nil
	}
	entries, err := m.store.ListEntries(ctx)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range entries {
		m.entries[key(e.Title, e.Indexer, e.TargetID)] = e
	}
	m.logger.Debug().Int("entries", len(entries)).Msg("blocklist loaded")
	return nil
}

// Add records a release identity as bad for a target. Re-adding the same
// identity is a no-op, not an error.
func (m *Manager) Add(ctx context.Context, title, indexer string, targetID library.TargetID, reason string) error {
	k := key(title, indexer, targetID)

	m.mu.RLock()
	_, exists := m.entries[k]
	m.mu.RUnlock()
	if exists {
		return nil
	}

	entry := Entry{
		Title:    title,
		Indexer:  indexer,
		TargetID: targetID,
		Reason:   reason,
		AddedAt:  m.now(),
	}
	if m.store != nil {
		if err := m.store.AddEntry(ctx, entry); err != nil {
			return err
		}
	}

	m.mu.Lock()
	m.entries[k] = entry
	m.mu.Unlock()

	m.logger.Info().
		Str("title", title).
		Str("indexer", indexer).
		Str("target", string(targetID)).
		Str("reason", reason).
		Msg("release blocklisted")
	return nil
}

// Contains reports whether the release identity is blocklisted for the target.
func (m *Manager) Contains(title, indexer string, targetID library.TargetID) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.entries[key(title, indexer, targetID)]
	return ok
}

// Entries returns a snapshot of all entries.
func (m *Manager) Entries() []Entry {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Entry, 0, len(m.entries))
	for _, e := range m.entries {
		out = append(out, e)
	}
	return out
}

func key(title, indexer string, targetID library.TargetID) string {
	return strings.ToLower(strings.TrimSpace(title)) + "|" + strings.ToLower(indexer) + "|" + string(targetID)
}
