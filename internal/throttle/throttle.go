// Package throttle bounds automated search frequency per target. It exists
// purely to limit indexer query volume and never blocks a forced search.
package throttle

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/fetcharr/fetcharr/internal/library"
	"github.com/fetcharr/fetcharr/internal/release"
)

// Record is the per-target cooldown state. One record per target,
// overwritten on every search attempt.
type Record struct {
	TargetID     library.TargetID `json:"targetId"`
	LastSearch   time.Time        `json:"lastSearch"`
	NextEligible time.Time        `json:"nextEligible"`
}

// Store persists records across restarts.
type Store interface {
	UpsertRecord(ctx context.Context, r Record) error
	ListRecords(ctx context.Context) ([]Record, error)
}

// Policy is the cooldown duration table, keyed by content kind and target
// lifecycle state.
type Policy struct {
	Missing         time.Duration // aired but no file yet
	Anime           time.Duration // simulcast cadence
	Stale           time.Duration // long-unfound items
	StaleAfter      time.Duration // age at which an item counts as stale
	UnreleasedExtra time.Duration // wait past release date before first search
}

// DefaultPolicy mirrors the documented cooldown table.
func DefaultPolicy() Policy {
	return Policy{
		Missing:         7 * 24 * time.Hour,
		Anime:           24 * time.Hour,
		Stale:           14 * 24 * time.Hour,
		StaleAfter:      90 * 24 * time.Hour,
		UnreleasedExtra: 24 * time.Hour,
	}
}

// Tracker decides whether an automated search for a target is allowed.
type Tracker struct {
	mu      sync.RWMutex
	records map[library.TargetID]Record
	store   Store
	policy  Policy
	now     func() time.Time
	logger  zerolog.Logger
}

func NewTracker(store Store, policy Policy, logger zerolog.Logger) *Tracker {
	return &Tracker{
		records: make(map[library.TargetID]Record),
		store:   store,
		policy:  policy,
		now:     time.Now,
		logger:  logger.With().Str("component", "throttle").Logger(),
	}
}

// Load populates the in-memory records from the backing store.
func (t *Tracker) Load(ctx context.Context) error {
	if t.store == nil {
		return nil
	}
	records, err := t.store.ListRecords(ctx)
	if err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, r := range records {
		t.records[r.TargetID] = r
	}
	return nil
}

// ShouldSearch reports whether a search for the target is allowed now. A
// forced search is always allowed; callers still record the attempt
// afterward via RecordSearch.
func (t *Tracker) ShouldSearch(target *library.Target, forced bool) bool {
	if forced {
		return true
	}

	t.mu.RLock()
	rec, ok := t.records[target.ID]
	t.mu.RUnlock()
	if !ok {
		return true
	}
	return !t.now().Before(rec.NextEligible)
}

// RecordSearch overwrites the target's cooldown record after a search
// attempt, forced or not.
func (t *Tracker) RecordSearch(ctx context.Context, target *library.Target) error {
	now := t.now()
	rec := Record{
		TargetID:     target.ID,
		LastSearch:   now,
		NextEligible: t.nextEligible(target, now),
	}

	if t.store != nil {
		if err := t.store.UpsertRecord(ctx, rec); err != nil {
			return err
		}
	}

	t.mu.Lock()
	t.records[target.ID] = rec
	t.mu.Unlock()
	return nil
}

// nextEligible applies the policy table. Unreleased items wait until the
// release date plus a grace period regardless of search cadence.
func (t *Tracker) nextEligible(target *library.Target, now time.Time) time.Time {
	if !target.Released(now) {
		return target.ReleaseDate.Add(t.policy.UnreleasedExtra)
	}

	var cooldown time.Duration
	switch {
	case target.Kind == release.KindAnime:
		cooldown = t.policy.Anime
	case !target.ReleaseDate.IsZero() && now.Sub(target.ReleaseDate) > t.policy.StaleAfter:
		cooldown = t.policy.Stale
	default:
		cooldown = t.policy.Missing
	}
	return now.Add(cooldown)
}
