package decision

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fetcharr/fetcharr/internal/indexer"
)

func accepted(title string, score int, mutate func(*Decision)) Decision {
	d := Decision{
		Candidate: indexer.Release{Title: title, Protocol: indexer.ProtocolUsenet},
		Outcome:   OutcomeAccept,
		Score:     score,
	}
	if mutate != nil {
		mutate(&d)
	}
	return d
}

func TestRankPicksHighestScore(t *testing.T) {
	decisions := []Decision{
		accepted("low", 100, nil),
		accepted("high", 300, nil),
		accepted("mid", 200, nil),
	}
	winner := Rank(decisions, "")
	require.NotNil(t, winner)
	assert.Equal(t, "high", winner.Candidate.Title)
}

func TestRankIgnoresNonAccepted(t *testing.T) {
	decisions := []Decision{
		{Candidate: indexer.Release{Title: "rejected"}, Outcome: OutcomeReject, Reason: ReasonRestricted, Score: 999},
		{Candidate: indexer.Release{Title: "delayed"}, Outcome: OutcomeDelay, Score: 999},
		accepted("winner", 10, nil),
	}
	winner := Rank(decisions, "")
	require.NotNil(t, winner)
	assert.Equal(t, "winner", winner.Candidate.Title)
}

func TestRankEmpty(t *testing.T) {
	assert.Nil(t, Rank(nil, ""))
	assert.Nil(t, Rank([]Decision{
		{Outcome: OutcomeReject, Reason: ReasonBlocklisted},
	}, ""))
}

func TestRankTieBreaks(t *testing.T) {
	t.Run("preferred protocol wins", func(t *testing.T) {
		decisions := []Decision{
			accepted("usenet", 100, nil),
			accepted("torrent", 100, func(d *Decision) { d.Candidate.Protocol = indexer.ProtocolTorrent }),
		}
		winner := Rank(decisions, indexer.ProtocolTorrent)
		require.NotNil(t, winner)
		assert.Equal(t, "torrent", winner.Candidate.Title)
	})

	t.Run("lower indexer priority wins", func(t *testing.T) {
		decisions := []Decision{
			accepted("prio20", 100, func(d *Decision) { d.Candidate.Priority = 20 }),
			accepted("prio5", 100, func(d *Decision) { d.Candidate.Priority = 5 }),
		}
		winner := Rank(decisions, "")
		require.NotNil(t, winner)
		assert.Equal(t, "prio5", winner.Candidate.Title)
	})

	t.Run("newer publish date wins", func(t *testing.T) {
		old := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
		decisions := []Decision{
			accepted("old", 100, func(d *Decision) { d.Candidate.PublishDate = old }),
			accepted("new", 100, func(d *Decision) { d.Candidate.PublishDate = old.Add(time.Hour) }),
		}
		winner := Rank(decisions, "")
		require.NotNil(t, winner)
		assert.Equal(t, "new", winner.Candidate.Title)
	})

	t.Run("first seen wins as final tie break", func(t *testing.T) {
		decisions := []Decision{
			accepted("first", 100, nil),
			accepted("second", 100, nil),
		}
		winner := Rank(decisions, "")
		require.NotNil(t, winner)
		assert.Equal(t, "first", winner.Candidate.Title)
	})
}

func TestRankDeterministic(t *testing.T) {
	decisions := []Decision{
		accepted("a", 100, func(d *Decision) { d.Candidate.Priority = 3 }),
		accepted("b", 100, func(d *Decision) { d.Candidate.Priority = 3 }),
		accepted("c", 200, nil),
		accepted("d", 100, func(d *Decision) { d.Candidate.Protocol = indexer.ProtocolTorrent }),
	}
	first := Rank(decisions, indexer.ProtocolTorrent)
	for i := 0; i < 10; i++ {
		again := Rank(decisions, indexer.ProtocolTorrent)
		require.NotNil(t, again)
		assert.Equal(t, first.Candidate.Title, again.Candidate.Title)
	}
}

func TestSummarize(t *testing.T) {
	decisions := []Decision{
		accepted("a", 100, nil),
		{Outcome: OutcomeDelay},
		{Outcome: OutcomeReject, Reason: ReasonBlocklisted},
		{Outcome: OutcomeReject, Reason: ReasonBlocklisted},
		{Outcome: OutcomeReject, Reason: ReasonNotAnUpgrade},
	}
	s := Summarize(decisions)
	assert.Equal(t, 1, s.Accepted)
	assert.Equal(t, 1, s.Delayed)
	assert.Equal(t, 2, s.RejectReasons[ReasonBlocklisted])
	assert.Equal(t, 1, s.RejectReasons[ReasonNotAnUpgrade])
}
