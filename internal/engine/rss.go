package engine

import (
	"context"

	"github.com/fetcharr/fetcharr/internal/indexer"
	"github.com/fetcharr/fetcharr/internal/library"
	"github.com/fetcharr/fetcharr/internal/release"
)

// RssOutcome reports one feed sweep.
type RssOutcome struct {
	Processed int `json:"processed"`
	Grabbed   int `json:"grabbed"`
}

// TriggerRssSync sweeps the indexers' recent-release feeds and grabs
// anything a monitored target wants. A non-empty indexerNames set restricts
// the sweep to those indexers; empty means all. Feed items arrive
// unsolicited, so the per-target search cooldown does not apply here.
func (e *Engine) TriggerRssSync(ctx context.Context, indexerNames []string) (RssOutcome, error) {
	var outcome RssOutcome

	wanted := make(map[string]bool, len(indexerNames))
	for _, name := range indexerNames {
		wanted[name] = true
	}

	byTarget := make(map[library.TargetID][]indexer.Release)
	targets := make(map[library.TargetID]*library.Target)

	for _, f := range e.fetchers {
		if len(wanted) > 0 && !wanted[f.Name()] {
			continue
		}
		if err := e.sem.Acquire(ctx, 1); err != nil {
			return outcome, err
		}
		releases, err := f.FetchRecent(ctx)
		e.sem.Release(1)
		if err != nil {
			e.logger.Warn().Err(err).Str("indexer", f.Name()).Msg("rss fetch failed")
			continue
		}

		for _, rel := range releases {
			outcome.Processed++
			parsed := release.Parse(rel.Title, "")
			if parsed == nil {
				continue
			}
			target, err := e.targets.MatchTarget(ctx, parsed)
			if err != nil {
				return outcome, err
			}
			if target == nil {
				continue
			}
			byTarget[target.ID] = append(byTarget[target.ID], rel)
			targets[target.ID] = target
		}
	}

	for id, releases := range byTarget {
		target := targets[id]
		rules, err := e.buildRules(ctx, target)
		if err != nil {
			e.logger.Error().Err(err).Str("target", string(id)).Msg("skipping target with invalid rules")
			continue
		}
		decisions, _, _, err := e.decideBatch(ctx, releases, target, rules)
		if err != nil {
			return outcome, err
		}
		winner, err := e.grabBest(ctx, decisions, target, preferredProtocol(rules, target))
		if err != nil {
			return outcome, err
		}
		if winner != nil {
			outcome.Grabbed++
		}
	}
	return outcome, nil
}
