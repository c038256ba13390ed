package engine

import (
	"context"
	"errors"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/fetcharr/fetcharr/internal/decision"
	"github.com/fetcharr/fetcharr/internal/downloader"
	"github.com/fetcharr/fetcharr/internal/indexer"
	"github.com/fetcharr/fetcharr/internal/library"
	"github.com/fetcharr/fetcharr/internal/release"
	"github.com/fetcharr/fetcharr/internal/retry"
)

// SearchOutcome reports what one search attempt produced. "No acceptable
// releases found" and "search failed" stay distinct: the latter is an error
// from TriggerSearch, not an outcome.
type SearchOutcome struct {
	Throttled     bool           `json:"throttled,omitempty"`
	Grabbed       bool           `json:"grabbed"`
	GrabbedTitle  string         `json:"grabbedTitle,omitempty"`
	NoResults     bool           `json:"noResults,omitempty"`
	Delayed       int            `json:"delayed,omitempty"`
	RejectReasons map[string]int `json:"rejectReasons,omitempty"`
	Unparseable   int            `json:"unparseable,omitempty"`
	Unmatched     int            `json:"unmatched,omitempty"`
	FailedIndexer int            `json:"failedIndexers,omitempty"`
}

// TriggerSearch runs one full search cycle for a target. A forced search
// bypasses the cooldown throttle and opens a fresh retry budget.
func (e *Engine) TriggerSearch(ctx context.Context, targetID library.TargetID, forced bool) (SearchOutcome, error) {
	e.resetRetryBudget(targetID)
	return e.searchTarget(ctx, targetID, forced)
}

// searchTarget is the shared search path; next-best retries come here
// without resetting the budget.
func (e *Engine) searchTarget(ctx context.Context, targetID library.TargetID, forced bool) (SearchOutcome, error) {
	target, err := e.targets.GetTarget(ctx, targetID)
	if err != nil {
		return SearchOutcome{}, err
	}
	if !target.Monitored && !forced {
		return SearchOutcome{}, ErrTargetNotMonitored
	}

	if !e.throttle.ShouldSearch(target, forced) {
		e.logger.Debug().Str("target", string(targetID)).Msg("search throttled")
		return SearchOutcome{Throttled: true}, nil
	}

	rules, err := e.buildRules(ctx, target)
	if err != nil {
		return SearchOutcome{}, err
	}

	releases, failedIndexers, err := e.fanOutSearch(ctx, indexer.Query{Term: target.SearchTerm()})
	// The attempt counts against the cooldown whether or not it succeeded.
	if recErr := e.throttle.RecordSearch(ctx, target); recErr != nil {
		e.logger.Warn().Err(recErr).Str("target", string(targetID)).Msg("failed to record search attempt")
	}
	if err != nil {
		return SearchOutcome{}, err
	}

	outcome := SearchOutcome{FailedIndexer: failedIndexers}
	if len(releases) == 0 {
		outcome.NoResults = true
		return outcome, nil
	}

	decisions, unparseable, unmatched, err := e.decideBatch(ctx, releases, target, rules)
	if err != nil {
		return SearchOutcome{}, err
	}
	outcome.Unparseable = unparseable
	outcome.Unmatched = unmatched

	summary := decision.Summarize(decisions)
	outcome.Delayed = summary.Delayed
	outcome.RejectReasons = summary.RejectReasons

	winner, err := e.grabBest(ctx, decisions, target, preferredProtocol(rules, target))
	if err != nil {
		return SearchOutcome{}, err
	}
	if winner != nil {
		outcome.Grabbed = true
		outcome.GrabbedTitle = winner.Candidate.Title
	} else if summary.Accepted == 0 && summary.Delayed == 0 {
		outcome.NoResults = len(summary.RejectReasons) == 0
	}
	return outcome, nil
}

// fanOutSearch queries every indexer concurrently under the global
// concurrency limit and a per-search deadline, ranking only what returned in
// time. Individual indexer failures are skipped; only all indexers failing
// is an error.
func (e *Engine) fanOutSearch(ctx context.Context, q indexer.Query) ([]indexer.Release, int, error) {
	if len(e.searchers) == 0 {
		return nil, 0, nil
	}

	searchCtx := ctx
	if e.cfg.SearchTimeout > 0 {
		var cancel context.CancelFunc
		searchCtx, cancel = context.WithTimeout(ctx, e.cfg.SearchTimeout)
		defer cancel()
	}

	var (
		mu       sync.Mutex
		releases []indexer.Release
		failed   int
	)
	g, gctx := errgroup.WithContext(searchCtx)
	for _, s := range e.searchers {
		s := s
		g.Go(func() error {
			if err := e.sem.Acquire(gctx, 1); err != nil {
				return nil
			}
			defer e.sem.Release(1)

			var results []indexer.Release
			err := retry.Do(gctx, "search "+s.Name(), e.cfg.Retry, func() error {
				var serr error
				results, serr = s.Search(gctx, q)
				return serr
			}, e.logger)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				failed++
				e.logger.Warn().Err(err).Str("indexer", s.Name()).Msg("indexer search failed")
				return nil
			}
			releases = append(releases, results...)
			return nil
		})
	}
	// Goroutines never return errors; Wait only propagates ctx teardown.
	_ = g.Wait()

	if ctx.Err() != nil {
		return nil, failed, ctx.Err()
	}
	if failed == len(e.searchers) {
		return nil, failed, ErrAllIndexersFailed
	}
	return releases, failed, nil
}

// decideBatch parses and scores all candidates for one target. Evaluations
// share no mutable state, so they fan out and rejoin before ranking.
// Candidates that do not parse and candidates that parse but cover a
// different target are counted separately.
func (e *Engine) decideBatch(ctx context.Context, releases []indexer.Release, target *library.Target, rules *decision.Rules) ([]decision.Decision, int, int, error) {
	type slot struct {
		dec       decision.Decision
		ok        bool
		unparsed  bool
		unmatched bool
	}
	slots := make([]slot, len(releases))

	g, _ := errgroup.WithContext(ctx)
	for i, rel := range releases {
		i, rel := i, rel
		g.Go(func() error {
			parsed := release.Parse(rel.Title, target.Kind)
			if parsed == nil {
				slots[i].unparsed = true
				return nil
			}
			if !target.Matches(parsed) {
				slots[i].unmatched = true
				return nil
			}
			dec, err := e.decider.Decide(rel, parsed, target, rules)
			if err != nil {
				return err
			}
			slots[i] = slot{dec: dec, ok: true}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, 0, 0, err
	}

	decisions := make([]decision.Decision, 0, len(releases))
	unparseable, unmatched := 0, 0
	for _, s := range slots {
		switch {
		case s.ok:
			decisions = append(decisions, s.dec)
		case s.unparsed:
			unparseable++
		case s.unmatched:
			unmatched++
		}
	}
	return decisions, unparseable, unmatched, nil
}

// grabBest ranks accepted decisions and dispatches the winner. A client-side
// submission failure falls through to the next-best candidate instead of
// aborting the cycle.
func (e *Engine) grabBest(ctx context.Context, decisions []decision.Decision, target *library.Target, preferred string) (*decision.Decision, error) {
	remaining := decisions
	for {
		winner := decision.Rank(remaining, preferred)
		if winner == nil {
			return nil, nil
		}

		_, err := e.tracker.Dispatch(ctx, *winner, target)
		if err == nil {
			return winner, nil
		}
		if !errors.Is(err, downloader.ErrSubmitFailed) && !errors.Is(err, downloader.ErrNoClientForProtocol) {
			return nil, err
		}

		e.logger.Warn().Err(err).
			Str("title", winner.Candidate.Title).
			Msg("dispatch failed, trying next-best candidate")
		next := make([]decision.Decision, 0, len(remaining)-1)
		for _, d := range remaining {
			if d.Candidate != winner.Candidate {
				next = append(next, d)
			}
		}
		if len(next) == len(remaining) {
			return nil, nil
		}
		remaining = next
	}
}
