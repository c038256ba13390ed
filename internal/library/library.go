// Package library models the monitored items the engine hunts releases for
// and the rule sets attached to them.
package library

import (
	"context"
	"errors"
	"time"

	"github.com/fetcharr/fetcharr/internal/profile"
	"github.com/fetcharr/fetcharr/internal/release"
)

var ErrTargetNotFound = errors.New("target not found")

// TargetID is the stable identifying key of a monitored item.
type TargetID string

// Target is the thing being hunted: one episode, movie, or album. Created and
// updated by the library layer; the decision engine reads it as a snapshot.
type Target struct {
	ID              TargetID     `json:"id"`
	Kind            release.Kind `json:"kind"`
	Title           string       `json:"title"`
	Year            int          `json:"year,omitempty"`
	Season          int          `json:"season,omitempty"`
	Episode         int          `json:"episode,omitempty"`
	AbsoluteEpisode int          `json:"absoluteEpisode,omitempty"`
	Monitored       bool         `json:"monitored"`

	// Current best file, empty tier when the target has no file yet.
	CurrentFileTier string `json:"currentFileTier,omitempty"`
	CurrentFilePath string `json:"currentFilePath,omitempty"`

	QualityProfileID int64     `json:"qualityProfileId"`
	Tags             []string  `json:"tags,omitempty"`
	ReleaseDate      time.Time `json:"releaseDate,omitempty"` // air date for episodes
}

// HasFile reports whether the target already has a library file.
func (t *Target) HasFile() bool {
	return t.CurrentFileTier != ""
}

// Released reports whether the target's release date has passed. An unknown
// release date never holds a search back, so zero counts as released.
func (t *Target) Released(now time.Time) bool {
	return t.ReleaseDate.IsZero() || !now.Before(t.ReleaseDate)
}

// SearchTerm builds the indexer query term for the target.
func (t *Target) SearchTerm() string {
	return release.NormalizeTitle(t.Title)
}

// Matches reports whether a parsed release covers this target. Title identity
// is compared on normalized form; numbering is kind-specific.
func (t *Target) Matches(parsed *release.ParsedRelease) bool {
	if parsed == nil {
		return false
	}
	if parsed.NormalizedTitle != release.NormalizeTitle(t.Title) {
		return false
	}
	switch t.Kind {
	case release.KindSeries:
		return parsed.CoversEpisode(t.Season, t.Episode)
	case release.KindAnime:
		if parsed.AbsoluteEpisode != 0 {
			return parsed.AbsoluteEpisode == t.AbsoluteEpisode
		}
		return parsed.CoversEpisode(t.Season, t.Episode)
	case release.KindMovie:
		return t.Year == 0 || parsed.Year == 0 || parsed.Year == t.Year
	case release.KindMusic:
		return t.Year == 0 || parsed.Year == 0 || parsed.Year == t.Year
	}
	return false
}

// Store provides targets and their attached rule sets to the engine. The
// engine only ever writes back the current-file state after an import.
type Store interface {
	GetTarget(ctx context.Context, id TargetID) (*Target, error)
	ListMonitored(ctx context.Context) ([]*Target, error)
	// MatchTarget finds the monitored target a parsed release belongs to,
	// or nil when nothing matches.
	MatchTarget(ctx context.Context, parsed *release.ParsedRelease) (*Target, error)
	SetCurrentFile(ctx context.Context, id TargetID, tier, path string) error

	QualityProfile(ctx context.Context, id int64) (*profile.QualityProfile, error)
	CustomFormats(ctx context.Context) ([]profile.CustomFormat, error)
	Restrictions(ctx context.Context) ([]profile.Restriction, error)
	DelayProfiles(ctx context.Context) ([]profile.DelayProfile, error)
}
