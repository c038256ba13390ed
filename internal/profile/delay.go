package profile

import (
	"errors"
	"fmt"
	"time"
)

// ErrAmbiguousDelayProfile is returned when two tagged delay profiles match a
// target equally well. Treated as a fatal configuration error rather than
// picking one arbitrarily.
var ErrAmbiguousDelayProfile = errors.New("multiple delay profiles match target tags")

// DelayProfile holds protocol preference and per-protocol wait durations. An
// untagged profile is the default and applies when no tagged profile matches.
type DelayProfile struct {
	ID                int64         `json:"id"`
	PreferredProtocol string        `json:"preferredProtocol"` // "torrent" or "usenet"
	TorrentDelay      time.Duration `json:"torrentDelay"`
	UsenetDelay       time.Duration `json:"usenetDelay"`
	BypassForProper   bool          `json:"bypassForProper"`
	Tags              []string      `json:"tags"`
}

// DelayFor returns the wait duration for the given protocol.
func (d *DelayProfile) DelayFor(protocol string) time.Duration {
	if protocol == "torrent" {
		return d.TorrentDelay
	}
	return d.UsenetDelay
}

// ResolveDelayProfile picks the single delay profile applicable to a target's
// tag set. The profile sharing the most tags with the target wins; an
// untagged profile is the fallback. Two tagged profiles matching equally well
// is ambiguous and fails.
func ResolveDelayProfile(profiles []DelayProfile, targetTags []string) (*DelayProfile, error) {
	tagSet := make(map[string]bool, len(targetTags))
	for _, t := range targetTags {
		tagSet[t] = true
	}

	var best *DelayProfile
	var fallback *DelayProfile
	bestCount := 0
	ambiguous := false

	for i := range profiles {
		p := &profiles[i]
		if len(p.Tags) == 0 {
			if fallback == nil {
				fallback = p
			}
			continue
		}
		count := 0
		for _, t := range p.Tags {
			if tagSet[t] {
				count++
			}
		}
		if count == 0 {
			continue
		}
		switch {
		case count > bestCount:
			best, bestCount, ambiguous = p, count, false
		case count == bestCount:
			ambiguous = true
		}
	}

	if best != nil {
		if ambiguous {
			return nil, fmt.Errorf("%w: %d matching tags", ErrAmbiguousDelayProfile, bestCount)
		}
		return best, nil
	}
	return fallback, nil
}
