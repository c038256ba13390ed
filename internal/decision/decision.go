// Package decision scores parsed candidates against acquisition targets and
// picks winners. Decide is a pure function of its inputs; rejection is a
// first-class result, never an error.
package decision

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/fetcharr/fetcharr/internal/indexer"
	"github.com/fetcharr/fetcharr/internal/library"
	"github.com/fetcharr/fetcharr/internal/profile"
	"github.com/fetcharr/fetcharr/internal/release"
)

// Outcome of scoring one candidate against one target.
type Outcome string

const (
	OutcomeAccept Outcome = "accept"
	OutcomeReject Outcome = "reject"
	OutcomeDelay  Outcome = "delay"
)

// Reject reason codes.
const (
	ReasonBlocklisted       = "blocklisted"
	ReasonRestricted        = "restricted"
	ReasonQualityNotWanted  = "quality_not_wanted"
	ReasonUpgradeNotAllowed = "upgrade_not_allowed"
	ReasonCutoffMet         = "cutoff_met"
	ReasonNotAnUpgrade      = "not_an_upgrade"
	ReasonFormatScoreTooLow = "format_score_too_low"
)

// Breakdown itemizes the score components of an accepted candidate.
type Breakdown struct {
	Quality         int `json:"quality"`
	Format          int `json:"format"`
	PreferredWords  int `json:"preferredWords"`
	IndexerPriority int `json:"indexerPriority"`
	Age             int `json:"age"`
	Size            int `json:"size"`
	Seeders         int `json:"seeders"`
}

// Total sums the components.
func (b Breakdown) Total() int {
	return b.Quality + b.Format + b.PreferredWords + b.IndexerPriority + b.Age + b.Size + b.Seeders
}

// Decision is the outcome of evaluating one candidate for one target.
type Decision struct {
	Candidate indexer.Release        `json:"candidate"`
	Parsed    *release.ParsedRelease `json:"parsed"`
	Outcome   Outcome                `json:"outcome"`
	Reason    string                 `json:"reason,omitempty"`
	Delay     time.Duration          `json:"delay,omitempty"`
	Score     int                    `json:"score"`
	Breakdown Breakdown              `json:"breakdown"`
}

func (d *Decision) Accepted() bool { return d.Outcome == OutcomeAccept }
func (d *Decision) Rejected() bool { return d.Outcome == OutcomeReject }
func (d *Decision) Delayed() bool  { return d.Outcome == OutcomeDelay }

// Rules is the snapshot of rule sets a decision run evaluates against. Built
// once per search so every candidate in a batch sees identical rules.
type Rules struct {
	Profile       *profile.QualityProfile
	Formats       []profile.CustomFormat
	Restrictions  []profile.Restriction
	DelayProfiles []profile.DelayProfile
}

// BlocklistChecker answers whether a release identity is already known bad.
type BlocklistChecker interface {
	Contains(title, indexer string, targetID library.TargetID) bool
}

// NoBlocklist is a BlocklistChecker that blocks nothing.
type NoBlocklist struct{}

func (NoBlocklist) Contains(string, string, library.TargetID) bool { return false }

// SizePolicy drives the size score component.
type SizePolicy struct {
	PreferredBytes int64
}

// Decider evaluates candidates. It holds only static policy; all per-run
// state arrives through arguments, keeping Decide pure and testable.
type Decider struct {
	blocklist      BlocklistChecker
	preferredWords []string
	sizePolicy     SizePolicy
}

func NewDecider(bl BlocklistChecker, preferredWords []string, sizePolicy SizePolicy) *Decider {
	if bl == nil {
		bl = NoBlocklist{}
	}
	return &Decider{
		blocklist:      bl,
		preferredWords: preferredWords,
		sizePolicy:     sizePolicy,
	}
}

// Decide evaluates one parsed candidate against one target. Evaluation
// short-circuits on the first terminal outcome; scoring always completes for
// accepted candidates. The only error case is an invariant violation in the
// configured rule sets.
func (d *Decider) Decide(candidate indexer.Release, parsed *release.ParsedRelease, target *library.Target, rules *Rules) (Decision, error) {
	dec := Decision{Candidate: candidate, Parsed: parsed}

	if d.blocklist.Contains(candidate.Title, candidate.Indexer, target.ID) {
		return reject(dec, ReasonBlocklisted), nil
	}

	if !profile.CheckAll(candidate.Title, rules.Restrictions) {
		return reject(dec, ReasonRestricted), nil
	}

	tier := profile.TierForQuality(parsed.Quality)
	if !rules.Profile.IsAllowed(tier.Name) {
		return reject(dec, ReasonQualityNotWanted), nil
	}

	if target.HasFile() {
		if !rules.Profile.UpgradeAllowed {
			return reject(dec, ReasonUpgradeNotAllowed), nil
		}
		if rules.Profile.CutoffMet(target.CurrentFileTier) {
			return reject(dec, ReasonCutoffMet), nil
		}
		if !rules.Profile.IsUpgrade(tier.Name, target.CurrentFileTier) {
			return reject(dec, ReasonNotAnUpgrade), nil
		}
	}

	formatScore := profile.ScoreRelease(parsed, rules.Formats)
	if formatScore < rules.Profile.MinFormatScore {
		return reject(dec, ReasonFormatScoreTooLow), nil
	}

	delayProfile, err := profile.ResolveDelayProfile(rules.DelayProfiles, target.Tags)
	if err != nil {
		return Decision{}, fmt.Errorf("resolving delay profile for target %s: %w", target.ID, err)
	}
	if delayProfile != nil && candidate.Protocol != delayProfile.PreferredProtocol {
		wait := delayProfile.DelayFor(candidate.Protocol)
		bypassed := delayProfile.BypassForProper && (parsed.Proper || parsed.Repack)
		if wait > 0 && !bypassed {
			dec.Outcome = OutcomeDelay
			dec.Delay = wait
			return dec, nil
		}
	}

	dec.Outcome = OutcomeAccept
	dec.Breakdown = Breakdown{
		Quality:         tier.Weight * 100,
		Format:          formatScore,
		PreferredWords:  d.preferredWordCount(candidate.Title) * 10,
		IndexerPriority: 100 - candidate.Priority,
		Age:             ageScore(candidate.AgeDays),
		Size:            sizeScore(candidate.Size, d.sizePolicy.PreferredBytes),
		Seeders:         seederScore(candidate),
	}
	dec.Score = dec.Breakdown.Total()
	return dec, nil
}

func reject(dec Decision, reason string) Decision {
	dec.Outcome = OutcomeReject
	dec.Reason = reason
	return dec
}

func (d *Decider) preferredWordCount(title string) int {
	lower := strings.ToLower(title)
	count := 0
	for _, w := range d.preferredWords {
		if w != "" && strings.Contains(lower, strings.ToLower(w)) {
			count++
		}
	}
	return count
}

// ageScore penalizes old releases one point per day, floored at -30.
func ageScore(ageDays int) int {
	if ageDays < 0 {
		ageDays = 0
	}
	if ageDays > 30 {
		return -30
	}
	return -ageDays
}

// sizeScore rewards sizes near the preferred size, linearly from 20 at an
// exact match down to 0 at a 100% deviation.
func sizeScore(size, preferred int64) int {
	if preferred <= 0 || size <= 0 {
		return 0
	}
	deviation := math.Abs(float64(size-preferred)) / float64(preferred)
	if deviation >= 1 {
		return 0
	}
	return int(math.Round(20 * (1 - deviation)))
}

// seederScore rewards well-seeded torrents logarithmically, capped at 50.
// Usenet candidates score 0 here.
func seederScore(candidate indexer.Release) int {
	if candidate.Protocol != indexer.ProtocolTorrent {
		return 0
	}
	score := int(20 * math.Log10(float64(candidate.Seeders)+1))
	if score > 50 {
		return 50
	}
	return score
}
