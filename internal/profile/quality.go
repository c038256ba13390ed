// Package profile holds the quality, format, restriction, and delay rules the
// decision engine evaluates candidates against.
package profile

import (
	"fmt"

	"github.com/fetcharr/fetcharr/internal/release"
)

// Tier is a named quality level with a global weight. Weights order tiers
// across profiles; the per-profile item order decides upgrade rank.
type Tier struct {
	Name   string `json:"name"`
	Weight int    `json:"weight"`
}

// Tiers in ascending weight order.
var Tiers = []Tier{
	{Name: "unknown", Weight: 0},
	{Name: "cam", Weight: 1},
	{Name: "sdtv", Weight: 2},
	{Name: "dvd", Weight: 3},
	{Name: "hdtv-720p", Weight: 4},
	{Name: "hdtv-1080p", Weight: 5},
	{Name: "webrip-720p", Weight: 6},
	{Name: "webdl-720p", Weight: 7},
	{Name: "webrip-1080p", Weight: 8},
	{Name: "webdl-1080p", Weight: 9},
	{Name: "bluray-720p", Weight: 10},
	{Name: "bluray-1080p", Weight: 11},
	{Name: "remux-1080p", Weight: 12},
	{Name: "hdtv-2160p", Weight: 13},
	{Name: "webdl-2160p", Weight: 14},
	{Name: "bluray-2160p", Weight: 15},
	{Name: "remux-2160p", Weight: 16},
}

var tiersByName = func() map[string]Tier {
	m := make(map[string]Tier, len(Tiers))
	for _, t := range Tiers {
		m[t.Name] = t
	}
	return m
}()

// TierByName looks up a tier by its canonical name.
func TierByName(name string) (Tier, bool) {
	t, ok := tiersByName[name]
	return t, ok
}

// TierForQuality maps parsed quality attributes onto a tier name.
func TierForQuality(q release.Quality) Tier {
	if q.Source == "cam" {
		return tiersByName["cam"]
	}
	if q.Source == "dvd" {
		return tiersByName["dvd"]
	}
	if q.Modifier == "remux" {
		if t, ok := tiersByName[fmt.Sprintf("remux-%dp", q.Resolution)]; ok {
			return t
		}
		// Remux at an unmapped resolution still beats plain bluray.
		return tiersByName["remux-1080p"]
	}
	if q.Source != "" && q.Resolution != 0 {
		if t, ok := tiersByName[fmt.Sprintf("%s-%dp", q.Source, q.Resolution)]; ok {
			return t
		}
	}
	if q.Resolution == 480 {
		return tiersByName["sdtv"]
	}
	return tiersByName["unknown"]
}
