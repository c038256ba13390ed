package engine

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fetcharr/fetcharr/internal/blocklist"
	"github.com/fetcharr/fetcharr/internal/decision"
	"github.com/fetcharr/fetcharr/internal/downloader"
	"github.com/fetcharr/fetcharr/internal/downloader/mock"
	"github.com/fetcharr/fetcharr/internal/importer"
	"github.com/fetcharr/fetcharr/internal/indexer"
	"github.com/fetcharr/fetcharr/internal/library"
	"github.com/fetcharr/fetcharr/internal/profile"
	"github.com/fetcharr/fetcharr/internal/queue"
	"github.com/fetcharr/fetcharr/internal/release"
	"github.com/fetcharr/fetcharr/internal/retry"
	"github.com/fetcharr/fetcharr/internal/throttle"
)

type fakeSearcher struct {
	name     string
	releases []indexer.Release
	err      error

	mu    sync.Mutex
	calls int
}

func (f *fakeSearcher) Name() string { return f.name }

func (f *fakeSearcher) Search(_ context.Context, _ indexer.Query) ([]indexer.Release, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return f.releases, nil
}

func (f *fakeSearcher) FetchRecent(_ context.Context) ([]indexer.Release, error) {
	return f.Search(context.Background(), indexer.Query{})
}

type noopOrganizer struct{}

func (noopOrganizer) Place(_ context.Context, sourcePath string, target *library.Target, _ string) (string, error) {
	return filepath.Join("/library", string(target.ID), filepath.Base(sourcePath)), nil
}

type fixture struct {
	engine  *Engine
	tracker *queue.Tracker
	client  *mock.Client
	store   *library.MemoryStore
	bl      *blocklist.Manager
}

func candidate(title string, priority int) indexer.Release {
	return indexer.Release{
		Title:      title,
		PayloadRef: "ref:" + title,
		Indexer:    "idx",
		Priority:   priority,
		Protocol:   indexer.ProtocolTorrent,
		Seeders:    10,
		AgeDays:    1,
	}
}

func newFixture(t *testing.T, searchers ...indexer.Searcher) *fixture {
	t.Helper()
	store := library.NewMemoryStore()
	store.PutQualityProfile(profile.QualityProfile{
		ID:     1,
		Name:   "HD",
		Items:  []string{"hdtv-720p", "hdtv-1080p", "webdl-1080p", "bluray-1080p"},
		Cutoff: "bluray-1080p", UpgradeAllowed: true,
	})
	store.PutTarget(library.Target{
		ID: "show-s01e01", Kind: release.KindSeries, Title: "Show Name",
		Season: 1, Episode: 1, Monitored: true, QualityProfileID: 1,
		ReleaseDate: time.Now().Add(-48 * time.Hour),
	})

	client := mock.NewClient("mock", indexer.ProtocolTorrent)
	bl := blocklist.NewManager(nil, zerolog.Nop())
	tracker := queue.NewTracker(queue.Options{
		Router: downloader.NewRouter(client),
	}, zerolog.Nop())

	eng := New(Options{
		Config: Config{
			MaxConcurrentSearches: 2,
			SearchTimeout:         5 * time.Second,
			MaxRetriesPerCycle:    2,
			Retry:                 retry.Config{MaxAttempts: 1, Multiplier: 1},
		},
		Targets:   store,
		Searchers: searchers,
		Throttle:  throttle.NewTracker(nil, throttle.DefaultPolicy(), zerolog.Nop()),
		Blocklist: bl,
		Decider:   decision.NewDecider(bl, nil, decision.SizePolicy{}),
		Tracker:   tracker,
		Importer:  importer.NewService(store, noopOrganizer{}, 0, zerolog.Nop()),
	}, zerolog.Nop())
	tracker.Bind(eng, eng)

	return &fixture{engine: eng, tracker: tracker, client: client, store: store, bl: bl}
}

func TestTriggerSearchGrabsBest(t *testing.T) {
	s := &fakeSearcher{name: "idx", releases: []indexer.Release{
		candidate("Show.Name.S01E01.720p.HDTV.x264-GRP", 10),
		candidate("Show.Name.S01E01.1080p.WEB-DL-GRP", 10),
		candidate("Unrelated.Show.S05E05.1080p.WEB-DL-GRP", 10),
	}}
	f := newFixture(t, s)

	outcome, err := f.engine.TriggerSearch(context.Background(), "show-s01e01", false)
	require.NoError(t, err)
	assert.True(t, outcome.Grabbed)
	assert.Equal(t, "Show.Name.S01E01.1080p.WEB-DL-GRP", outcome.GrabbedTitle)

	snapshot := f.engine.GetQueueSnapshot()
	require.Len(t, snapshot, 1)
	assert.Equal(t, queue.StateQueued, snapshot[0].State)
	assert.Equal(t, library.TargetID("show-s01e01"), snapshot[0].TargetID)
}

func TestSearchOutcomeSkipCounters(t *testing.T) {
	s := &fakeSearcher{name: "idx", releases: []indexer.Release{
		candidate("Show.Name.S01E01.1080p.WEB-DL-GRP", 10),
		candidate("Unrelated.Show.S05E05.1080p.WEB-DL-GRP", 10),
		candidate("complete junk", 10),
	}}
	f := newFixture(t, s)

	outcome, err := f.engine.TriggerSearch(context.Background(), "show-s01e01", false)
	require.NoError(t, err)
	assert.True(t, outcome.Grabbed)
	assert.Equal(t, 1, outcome.Unparseable, "only the unparseable title counts")
	assert.Equal(t, 1, outcome.Unmatched, "parseable release for another show counts separately")
}

func TestTriggerSearchThrottled(t *testing.T) {
	s := &fakeSearcher{name: "idx"}
	f := newFixture(t, s)
	ctx := context.Background()

	first, err := f.engine.TriggerSearch(ctx, "show-s01e01", false)
	require.NoError(t, err)
	assert.True(t, first.NoResults)

	second, err := f.engine.TriggerSearch(ctx, "show-s01e01", false)
	require.NoError(t, err)
	assert.True(t, second.Throttled)
	assert.Equal(t, 1, s.calls)

	forced, err := f.engine.TriggerSearch(ctx, "show-s01e01", true)
	require.NoError(t, err)
	assert.False(t, forced.Throttled)
	assert.Equal(t, 2, s.calls)
}

func TestTriggerSearchBlocklistedRejected(t *testing.T) {
	title := "Show.Name.S01E01.1080p.WEB-DL-GRP"
	s := &fakeSearcher{name: "idx", releases: []indexer.Release{candidate(title, 10)}}
	f := newFixture(t, s)
	ctx := context.Background()
	require.NoError(t, f.bl.Add(ctx, title, "idx", "show-s01e01", "failed before"))

	outcome, err := f.engine.TriggerSearch(ctx, "show-s01e01", false)
	require.NoError(t, err)
	assert.False(t, outcome.Grabbed)
	assert.Equal(t, 1, outcome.RejectReasons[decision.ReasonBlocklisted])
}

func TestTriggerSearchIndexerFailures(t *testing.T) {
	ctx := context.Background()

	t.Run("one of two failing is skipped", func(t *testing.T) {
		good := &fakeSearcher{name: "good", releases: []indexer.Release{candidate("Show.Name.S01E01.1080p.WEB-DL-GRP", 10)}}
		bad := &fakeSearcher{name: "bad", err: errors.New("timeout")}
		f := newFixture(t, good, bad)

		outcome, err := f.engine.TriggerSearch(ctx, "show-s01e01", false)
		require.NoError(t, err)
		assert.True(t, outcome.Grabbed)
		assert.Equal(t, 1, outcome.FailedIndexer)
	})

	t.Run("all failing is an error", func(t *testing.T) {
		bad := &fakeSearcher{name: "bad", err: errors.New("timeout")}
		f := newFixture(t, bad)

		_, err := f.engine.TriggerSearch(ctx, "show-s01e01", false)
		assert.ErrorIs(t, err, ErrAllIndexersFailed)
	})
}

func TestSubmitFailureFallsBackToNextBest(t *testing.T) {
	s := &fakeSearcher{name: "idx", releases: []indexer.Release{
		candidate("Show.Name.S01E01.1080p.WEB-DL-GRP", 10),
		candidate("Show.Name.S01E01.720p.HDTV.x264-GRP", 10),
	}}
	f := newFixture(t, s)

	f.client.FailSubmissions(errors.New("unreachable"))

	outcome, err := f.engine.TriggerSearch(context.Background(), "show-s01e01", false)
	require.NoError(t, err)
	assert.False(t, outcome.Grabbed, "all submissions failing grabs nothing")
	assert.Empty(t, f.engine.GetQueueSnapshot())
}

func TestFailedDownloadBlocklistsAndRetriesNextBest(t *testing.T) {
	best := "Show.Name.S01E01.1080p.WEB-DL-GRP"
	second := "Show.Name.S01E01.720p.HDTV.x264-GRP"
	s := &fakeSearcher{name: "idx", releases: []indexer.Release{
		candidate(best, 10),
		candidate(second, 10),
	}}
	f := newFixture(t, s)
	ctx := context.Background()

	outcome, err := f.engine.TriggerSearch(ctx, "show-s01e01", false)
	require.NoError(t, err)
	require.Equal(t, best, outcome.GrabbedTitle)

	items := f.engine.GetQueueSnapshot()
	require.Len(t, items, 1)
	f.client.Fail(items[0].ID, "corrupt download")
	f.tracker.PollOnce(ctx)
	f.tracker.WaitHandlers()

	// Failure blocklisted the bad release and re-ran the search, so the
	// next-best candidate is now in the queue.
	assert.True(t, f.bl.Contains(best, "idx", "show-s01e01"))
	items = f.engine.GetQueueSnapshot()
	require.Len(t, items, 1)
	assert.Equal(t, second, items[0].Release.Title)
}

func TestRetryBudgetBoundsFailureLoop(t *testing.T) {
	titles := []string{
		"Show.Name.S01E01.1080p.WEB-DL-GRP",
		"Show.Name.S01E01.720p.HDTV.x264-GRP",
		"Show.Name.S01E01.1080p.HDTV.x264-GRP",
		"Show.Name.S01E01.1080p.BluRay.x264-GRP",
	}
	releases := make([]indexer.Release, 0, len(titles))
	for _, title := range titles {
		releases = append(releases, candidate(title, 10))
	}
	s := &fakeSearcher{name: "idx", releases: releases}
	f := newFixture(t, s)
	ctx := context.Background()

	_, err := f.engine.TriggerSearch(ctx, "show-s01e01", false)
	require.NoError(t, err)

	// Every grabbed release fails in the client; budget is 2 retries.
	for i := 0; i < len(titles); i++ {
		items := f.engine.GetQueueSnapshot()
		if len(items) == 0 {
			break
		}
		f.client.Fail(items[0].ID, "corrupt download")
		f.tracker.PollOnce(ctx)
		f.tracker.WaitHandlers()
	}

	assert.Empty(t, f.engine.GetQueueSnapshot(), "retry chain stopped by budget")
	assert.Len(t, f.bl.Entries(), 3, "initial grab plus two budgeted retries")
}

func TestTriggerRssSync(t *testing.T) {
	s := &fakeSearcher{name: "idx", releases: []indexer.Release{
		candidate("Show.Name.S01E01.1080p.WEB-DL-GRP", 10),
		candidate("Unmonitored.Show.S02E02.1080p.WEB-DL-GRP", 10),
	}}
	f := newFixture(t)
	f.engine.fetchers = []indexer.RSSFetcher{s}

	outcome, err := f.engine.TriggerRssSync(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, 2, outcome.Processed)
	assert.Equal(t, 1, outcome.Grabbed)

	items := f.engine.GetQueueSnapshot()
	require.Len(t, items, 1)
	assert.Equal(t, "Show.Name.S01E01.1080p.WEB-DL-GRP", items[0].Release.Title)
}

func TestTriggerRssSyncScopedToIndexers(t *testing.T) {
	wanted := &fakeSearcher{name: "idx-a", releases: []indexer.Release{
		candidate("Show.Name.S01E01.1080p.WEB-DL-GRP", 10),
	}}
	other := &fakeSearcher{name: "idx-b", releases: []indexer.Release{
		candidate("Show.Name.S01E01.720p.HDTV.x264-GRP", 10),
	}}
	f := newFixture(t)
	f.engine.fetchers = []indexer.RSSFetcher{wanted, other}

	outcome, err := f.engine.TriggerRssSync(context.Background(), []string{"idx-a"})
	require.NoError(t, err)
	assert.Equal(t, 1, outcome.Processed)
	assert.Equal(t, 1, outcome.Grabbed)
	assert.Equal(t, 1, wanted.calls)
	assert.Equal(t, 0, other.calls, "out-of-scope indexer is not fetched")
}

func TestHandleCompletedImports(t *testing.T) {
	f := newFixture(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "Show.Name.S01E01.1080p.WEB-DL-GRP.mkv")
	require.NoError(t, os.WriteFile(path, make([]byte, 2048), 0o644))

	err := f.engine.HandleCompleted(context.Background(), queue.Item{
		TargetID:   "show-s01e01",
		OutputPath: dir,
	})
	require.NoError(t, err)

	target, err := f.store.GetTarget(context.Background(), "show-s01e01")
	require.NoError(t, err)
	assert.Equal(t, "webdl-1080p", target.CurrentFileTier)
}
