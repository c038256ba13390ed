package throttle

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fetcharr/fetcharr/internal/library"
	"github.com/fetcharr/fetcharr/internal/release"
)

func fixedClock(at time.Time) func() time.Time {
	return func() time.Time { return at }
}

func newTestTracker(t *testing.T, at time.Time) *Tracker {
	t.Helper()
	tr := NewTracker(nil, DefaultPolicy(), zerolog.Nop())
	tr.now = fixedClock(at)
	return tr
}

func TestShouldSearchNoRecord(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	tr := newTestTracker(t, now)
	target := &library.Target{ID: "ep1", Kind: release.KindSeries}

	assert.True(t, tr.ShouldSearch(target, false))
}

func TestCooldownAfterSearch(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	tr := newTestTracker(t, now)
	target := &library.Target{
		ID:          "ep1",
		Kind:        release.KindSeries,
		ReleaseDate: now.Add(-48 * time.Hour),
	}

	require.NoError(t, tr.RecordSearch(context.Background(), target))
	assert.False(t, tr.ShouldSearch(target, false))

	// Still blocked just before the missing-item cooldown elapses.
	tr.now = fixedClock(now.Add(7*24*time.Hour - time.Minute))
	assert.False(t, tr.ShouldSearch(target, false))

	tr.now = fixedClock(now.Add(7 * 24 * time.Hour))
	assert.True(t, tr.ShouldSearch(target, false))
}

func TestForcedAlwaysAllowed(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	tr := newTestTracker(t, now)
	target := &library.Target{ID: "ep1", Kind: release.KindSeries, ReleaseDate: now.Add(-time.Hour)}

	require.NoError(t, tr.RecordSearch(context.Background(), target))
	assert.False(t, tr.ShouldSearch(target, false))
	assert.True(t, tr.ShouldSearch(target, true))
}

func TestAnimeCooldown(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	tr := newTestTracker(t, now)
	target := &library.Target{ID: "an1", Kind: release.KindAnime, ReleaseDate: now.Add(-time.Hour)}

	require.NoError(t, tr.RecordSearch(context.Background(), target))

	tr.now = fixedClock(now.Add(24 * time.Hour))
	assert.True(t, tr.ShouldSearch(target, false))
}

func TestStaleCooldown(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	tr := newTestTracker(t, now)
	target := &library.Target{
		ID:          "old1",
		Kind:        release.KindSeries,
		ReleaseDate: now.Add(-120 * 24 * time.Hour),
	}

	require.NoError(t, tr.RecordSearch(context.Background(), target))

	tr.now = fixedClock(now.Add(8 * 24 * time.Hour))
	assert.False(t, tr.ShouldSearch(target, false), "stale items wait longer than missing items")

	tr.now = fixedClock(now.Add(14 * 24 * time.Hour))
	assert.True(t, tr.ShouldSearch(target, false))
}

func TestUnreleasedWaitsForReleaseDate(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	airDate := now.Add(10 * 24 * time.Hour)
	tr := newTestTracker(t, now)
	target := &library.Target{ID: "fut1", Kind: release.KindSeries, ReleaseDate: airDate}

	require.NoError(t, tr.RecordSearch(context.Background(), target))

	// Not eligible before air date plus grace, even after a long while.
	tr.now = fixedClock(airDate.Add(12 * time.Hour))
	assert.False(t, tr.ShouldSearch(target, false))

	tr.now = fixedClock(airDate.Add(24 * time.Hour))
	assert.True(t, tr.ShouldSearch(target, false))
}

func TestLoadRestoresRecords(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	store := &memStore{}
	tr := NewTracker(store, DefaultPolicy(), zerolog.Nop())
	tr.now = fixedClock(now)
	target := &library.Target{ID: "ep1", Kind: release.KindSeries, ReleaseDate: now.Add(-time.Hour)}
	require.NoError(t, tr.RecordSearch(context.Background(), target))

	restored := NewTracker(store, DefaultPolicy(), zerolog.Nop())
	restored.now = fixedClock(now)
	require.NoError(t, restored.Load(context.Background()))
	assert.False(t, restored.ShouldSearch(target, false))
}

type memStore struct {
	records map[library.TargetID]Record
}

func (s *memStore) UpsertRecord(_ context.Context, r Record) error {
	if s.records == nil {
		s.records = make(map[library.TargetID]Record)
	}
	s.records[r.TargetID] = r
	return nil
}

func (s *memStore) ListRecords(_ context.Context) ([]Record, error) {
	out := make([]Record, 0, len(s.records))
	for _, r := range s.records {
		out = append(out, r)
	}
	return out, nil
}
