package decision

import "sort"

// Rank picks the winning decision out of a candidate batch. Only accepted
// decisions compete; nil means nothing was acceptable. Ties break by
// preferred protocol, then lower indexer priority, then newer publish date,
// and finally first-seen order via the stable sort. The ordering is total, so
// repeated runs over the same batch always pick the same winner.
func Rank(decisions []Decision, preferredProtocol string) *Decision {
	accepted := make([]Decision, 0, len(decisions))
	for _, d := range decisions {
		if d.Accepted() {
			accepted = append(accepted, d)
		}
	}
	if len(accepted) == 0 {
		return nil
	}

	sort.SliceStable(accepted, func(i, j int) bool {
		a, b := accepted[i], accepted[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if preferredProtocol != "" {
			aPref := a.Candidate.Protocol == preferredProtocol
			bPref := b.Candidate.Protocol == preferredProtocol
			if aPref != bPref {
				return aPref
			}
		}
		if a.Candidate.Priority != b.Candidate.Priority {
			return a.Candidate.Priority < b.Candidate.Priority
		}
		if !a.Candidate.PublishDate.Equal(b.Candidate.PublishDate) {
			return a.Candidate.PublishDate.After(b.Candidate.PublishDate)
		}
		return false
	})

	winner := accepted[0]
	return &winner
}

// Summarize tallies a decision batch for search outcome reporting.
type Summary struct {
	Accepted      int            `json:"accepted"`
	Delayed       int            `json:"delayed"`
	RejectReasons map[string]int `json:"rejectReasons,omitempty"`
}

func Summarize(decisions []Decision) Summary {
	s := Summary{RejectReasons: make(map[string]int)}
	for _, d := range decisions {
		switch d.Outcome {
		case OutcomeAccept:
			s.Accepted++
		case OutcomeDelay:
			s.Delayed++
		case OutcomeReject:
			s.RejectReasons[d.Reason]++
		}
	}
	return s
}
