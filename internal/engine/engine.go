// Package engine wires the acquisition pipeline together: search, decide,
// rank, dispatch, track, import, and retry.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"

	"github.com/fetcharr/fetcharr/internal/blocklist"
	"github.com/fetcharr/fetcharr/internal/decision"
	"github.com/fetcharr/fetcharr/internal/history"
	"github.com/fetcharr/fetcharr/internal/importer"
	"github.com/fetcharr/fetcharr/internal/indexer"
	"github.com/fetcharr/fetcharr/internal/library"
	"github.com/fetcharr/fetcharr/internal/profile"
	"github.com/fetcharr/fetcharr/internal/queue"
	"github.com/fetcharr/fetcharr/internal/retry"
	"github.com/fetcharr/fetcharr/internal/throttle"
)

var (
	ErrTargetNotMonitored = errors.New("target is not monitored")
	ErrAllIndexersFailed  = errors.New("all indexers failed")
)

// Config bounds the engine's external load.
type Config struct {
	// MaxConcurrentSearches bounds simultaneous indexer queries globally,
	// separate from the per-target cooldown throttle.
	MaxConcurrentSearches int64
	// SearchTimeout bounds how long one search waits for indexer responses
	// before ranking only what has returned.
	SearchTimeout time.Duration
	// MaxRetriesPerCycle caps automatic next-best retries per target within
	// one search cycle.
	MaxRetriesPerCycle int
	// Retry governs backoff on transient indexer failures within one query.
	Retry retry.Config
}

// Engine runs the acquisition pipeline.
type Engine struct {
	cfg       Config
	targets   library.Store
	searchers []indexer.Searcher
	fetchers  []indexer.RSSFetcher
	throttle  *throttle.Tracker
	blocklist *blocklist.Manager
	decider   *decision.Decider
	tracker   *queue.Tracker
	importer  *importer.Service
	history   history.Sink
	sem       *semaphore.Weighted
	logger    zerolog.Logger

	mu           sync.Mutex
	retryBudgets map[library.TargetID]int
}

type Options struct {
	Config    Config
	Targets   library.Store
	Searchers []indexer.Searcher
	Fetchers  []indexer.RSSFetcher
	Throttle  *throttle.Tracker
	Blocklist *blocklist.Manager
	Decider   *decision.Decider
	Tracker   *queue.Tracker
	Importer  *importer.Service
	History   history.Sink
}

func New(opts Options, logger zerolog.Logger) *Engine {
	concurrency := opts.Config.MaxConcurrentSearches
	if concurrency < 1 {
		concurrency = 1
	}
	sink := opts.History
	if sink == nil {
		sink = history.NopSink{}
	}
	cfg := opts.Config
	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry = retry.DefaultConfig()
	}
	return &Engine{
		cfg:          cfg,
		targets:      opts.Targets,
		searchers:    opts.Searchers,
		fetchers:     opts.Fetchers,
		throttle:     opts.Throttle,
		blocklist:    opts.Blocklist,
		decider:      opts.Decider,
		tracker:      opts.Tracker,
		importer:     opts.Importer,
		history:      sink,
		sem:          semaphore.NewWeighted(concurrency),
		logger:       logger.With().Str("component", "engine").Logger(),
		retryBudgets: make(map[library.TargetID]int),
	}
}

// CancelQueueItem removes a queued download, optionally blocklisting its
// release.
func (e *Engine) CancelQueueItem(ctx context.Context, id string, blocklistRelease bool) error {
	return e.tracker.Cancel(ctx, id, blocklistRelease)
}

// GetQueueSnapshot returns the active queue for status surfaces.
func (e *Engine) GetQueueSnapshot() []queue.Item {
	return e.tracker.Snapshot()
}

// HandleCompleted satisfies the queue's import hook.
func (e *Engine) HandleCompleted(ctx context.Context, item queue.Item) error {
	target, err := e.targets.GetTarget(ctx, item.TargetID)
	if err != nil {
		return fmt.Errorf("loading target for import: %w", err)
	}
	_, err = e.importer.Import(ctx, item.OutputPath, target.Kind, target)
	return err
}

// HandleFailed satisfies the queue's failure hook: blocklist the release and
// immediately retry the next-best candidate, bounded per cycle.
func (e *Engine) HandleFailed(ctx context.Context, item queue.Item) {
	if err := e.blocklist.Add(ctx, item.Release.Title, item.Release.Indexer, item.TargetID, item.Error); err != nil {
		e.logger.Error().Err(err).Str("title", item.Release.Title).Msg("failed to blocklist release")
	}
	e.history.Emit(history.Event{
		Type:     history.EventBlocklisted,
		TargetID: item.TargetID,
		Title:    item.Release.Title,
		Indexer:  item.Release.Indexer,
		Detail:   item.Error,
	})

	if !e.consumeRetryBudget(item.TargetID) {
		e.logger.Warn().
			Str("target", string(item.TargetID)).
			Msg("retry budget exhausted, not re-searching")
		return
	}

	outcome, err := e.searchTarget(ctx, item.TargetID, true)
	if err != nil {
		e.logger.Error().Err(err).Str("target", string(item.TargetID)).Msg("next-best retry failed")
		return
	}
	e.logger.Info().
		Str("target", string(item.TargetID)).
		Bool("grabbed", outcome.Grabbed).
		Msg("next-best retry completed")
}

// consumeRetryBudget takes one retry slot for the target, reporting whether
// a retry is still allowed this cycle.
func (e *Engine) consumeRetryBudget(id library.TargetID) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	used := e.retryBudgets[id]
	if used >= e.cfg.MaxRetriesPerCycle {
		return false
	}
	e.retryBudgets[id] = used + 1
	return true
}

// resetRetryBudget opens a fresh retry cycle for the target.
func (e *Engine) resetRetryBudget(id library.TargetID) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.retryBudgets, id)
}

// buildRules snapshots the rule sets for one decision run so every candidate
// in a batch sees identical rules.
func (e *Engine) buildRules(ctx context.Context, target *library.Target) (*decision.Rules, error) {
	prof, err := e.targets.QualityProfile(ctx, target.QualityProfileID)
	if err != nil {
		return nil, err
	}
	if err := prof.Validate(); err != nil {
		return nil, fmt.Errorf("invalid quality profile: %w", err)
	}
	formats, err := e.targets.CustomFormats(ctx)
	if err != nil {
		return nil, err
	}
	restrictions, err := e.targets.Restrictions(ctx)
	if err != nil {
		return nil, err
	}
	delays, err := e.targets.DelayProfiles(ctx)
	if err != nil {
		return nil, err
	}
	return &decision.Rules{
		Profile:       prof,
		Formats:       formats,
		Restrictions:  restrictions,
		DelayProfiles: delays,
	}, nil
}

// preferredProtocol resolves the ranking tie-break protocol for a target.
func preferredProtocol(rules *decision.Rules, target *library.Target) string {
	dp, err := profile.ResolveDelayProfile(rules.DelayProfiles, target.Tags)
	if err != nil || dp == nil {
		return ""
	}
	return dp.PreferredProtocol
}
