package profile

import (
	"errors"
	"fmt"
)

var (
	ErrCutoffNotInItems = errors.New("profile cutoff tier is not in the allowed list")
	ErrNoItems          = errors.New("profile has no allowed tiers")
)

// QualityProfile is an ordered list of allowed tiers, worst first. The item
// order is the rank used for upgrade comparisons, independent of global tier
// weights.
type QualityProfile struct {
	ID             int64    `json:"id"`
	Name           string   `json:"name"`
	Items          []string `json:"items"` // tier names, worst to best
	Cutoff         string   `json:"cutoff"`
	UpgradeAllowed bool     `json:"upgradeAllowed"`
	MinFormatScore int      `json:"minFormatScore"`
}

// Validate checks the profile's structural invariants. A profile whose cutoff
// is missing from its own allowed list is a fatal configuration error, not
// something to work around at decision time.
func (p *QualityProfile) Validate() error {
	if len(p.Items) == 0 {
		return fmt.Errorf("profile %q: %w", p.Name, ErrNoItems)
	}
	for _, item := range p.Items {
		if _, ok := TierByName(item); !ok {
			return fmt.Errorf("profile %q: unknown tier %q", p.Name, item)
		}
	}
	if p.Rank(p.Cutoff) < 0 {
		return fmt.Errorf("profile %q: %w", p.Name, ErrCutoffNotInItems)
	}
	return nil
}

// Rank returns the tier's position in the profile order, or -1 when the tier
// is not allowed. Higher rank is better.
func (p *QualityProfile) Rank(tierName string) int {
	for i, item := range p.Items {
		if item == tierName {
			return i
		}
	}
	return -1
}

// IsAllowed reports whether the tier appears in the profile.
func (p *QualityProfile) IsAllowed(tierName string) bool {
	return p.Rank(tierName) >= 0
}

// CutoffMet reports whether a file at the given tier meets or exceeds the
// profile cutoff.
func (p *QualityProfile) CutoffMet(tierName string) bool {
	rank := p.Rank(tierName)
	return rank >= 0 && rank >= p.Rank(p.Cutoff)
}

// IsUpgrade reports whether candidateTier is strictly better than currentTier
// by profile order.
func (p *QualityProfile) IsUpgrade(candidateTier, currentTier string) bool {
	return p.Rank(candidateTier) > p.Rank(currentTier)
}
