package profile

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fetcharr/fetcharr/internal/release"
)

func standardProfile() *QualityProfile {
	return &QualityProfile{
		ID:             1,
		Name:           "HD-1080p",
		Items:          []string{"hdtv-1080p", "webdl-1080p", "bluray-1080p"},
		Cutoff:         "webdl-1080p",
		UpgradeAllowed: true,
	}
}

func TestProfileValidate(t *testing.T) {
	p := standardProfile()
	require.NoError(t, p.Validate())

	p.Cutoff = "remux-2160p"
	assert.ErrorIs(t, p.Validate(), ErrCutoffNotInItems)

	p = standardProfile()
	p.Items = nil
	assert.ErrorIs(t, p.Validate(), ErrNoItems)

	p = standardProfile()
	p.Items = []string{"hdtv-1080p", "no-such-tier"}
	assert.Error(t, p.Validate())
}

func TestProfileRanking(t *testing.T) {
	p := standardProfile()

	assert.True(t, p.IsAllowed("webdl-1080p"))
	assert.False(t, p.IsAllowed("cam"))

	// Profile order, not global weight, drives upgrade comparisons.
	assert.True(t, p.IsUpgrade("bluray-1080p", "webdl-1080p"))
	assert.False(t, p.IsUpgrade("webdl-1080p", "bluray-1080p"))
	assert.False(t, p.IsUpgrade("webdl-1080p", "webdl-1080p"))

	assert.True(t, p.CutoffMet("webdl-1080p"))
	assert.True(t, p.CutoffMet("bluray-1080p"))
	assert.False(t, p.CutoffMet("hdtv-1080p"))
	assert.False(t, p.CutoffMet("cam"))
}

func TestTierForQuality(t *testing.T) {
	tests := []struct {
		name    string
		quality release.Quality
		want    string
	}{
		{"webdl 1080p", release.Quality{Resolution: 1080, Source: "webdl"}, "webdl-1080p"},
		{"bluray 2160p", release.Quality{Resolution: 2160, Source: "bluray"}, "bluray-2160p"},
		{"remux", release.Quality{Resolution: 2160, Source: "bluray", Modifier: "remux"}, "remux-2160p"},
		{"cam ignores resolution", release.Quality{Resolution: 1080, Source: "cam"}, "cam"},
		{"dvd", release.Quality{Source: "dvd"}, "dvd"},
		{"bare 480p", release.Quality{Resolution: 480}, "sdtv"},
		{"nothing known", release.Quality{}, "unknown"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, TierForQuality(tt.quality).Name)
		})
	}
}

func TestCustomFormatMatching(t *testing.T) {
	parsed := release.Parse("Show.S01E01.2160p.WEB-DL.DV.x265-GRP", release.KindSeries)
	require.NotNil(t, parsed)

	dv := CustomFormat{
		Name:  "Dolby Vision",
		Score: 60,
		Conditions: []Condition{
			{Field: "tag", Pattern: "dv"},
		},
	}
	require.NoError(t, dv.Compile())
	assert.True(t, dv.Matches(parsed))

	notBluray := CustomFormat{
		Name:  "Not Bluray",
		Score: 10,
		Conditions: []Condition{
			{Field: "source", Pattern: "bluray", Negate: true},
		},
	}
	require.NoError(t, notBluray.Compile())
	assert.True(t, notBluray.Matches(parsed))

	badGroup := CustomFormat{
		Name:  "Banned Group",
		Score: -9999,
		Conditions: []Condition{
			{Field: "group", Pattern: "^(YIFY|RARBG)$"},
		},
	}
	require.NoError(t, badGroup.Compile())
	assert.False(t, badGroup.Matches(parsed))

	assert.Equal(t, 70, ScoreRelease(parsed, []CustomFormat{dv, notBluray, badGroup}))
}

func TestCustomFormatCompileErrors(t *testing.T) {
	f := CustomFormat{Name: "bad", Conditions: []Condition{{Field: "title", Pattern: "("}}}
	assert.Error(t, f.Compile())

	f = CustomFormat{Name: "bad", Conditions: []Condition{{Field: "nope", Pattern: "x"}}}
	assert.Error(t, f.Compile())

	f = CustomFormat{Name: "bad"}
	assert.Error(t, f.Compile())
}

func TestRestrictionCheck(t *testing.T) {
	r := Restriction{Required: []string{"1080p"}, Ignored: []string{"korsub", "cam"}}

	assert.True(t, r.Check("Show.S01E01.1080p.WEB-DL-GRP"))
	assert.False(t, r.Check("Show.S01E01.720p.WEB-DL-GRP"))
	assert.False(t, r.Check("Show.S01E01.1080p.KORSUB.WEB-DL-GRP"))

	assert.True(t, CheckAll("Show.S01E01.1080p-GRP", []Restriction{r}))
	assert.True(t, CheckAll("anything", nil))
}

func TestResolveDelayProfile(t *testing.T) {
	def := DelayProfile{ID: 1, PreferredProtocol: "usenet", TorrentDelay: time.Hour}
	anime := DelayProfile{ID: 2, PreferredProtocol: "torrent", Tags: []string{"anime"}}
	animeHD := DelayProfile{ID: 3, PreferredProtocol: "torrent", Tags: []string{"anime", "hd"}}

	t.Run("untagged default", func(t *testing.T) {
		got, err := ResolveDelayProfile([]DelayProfile{def, anime}, []string{"movies"})
		require.NoError(t, err)
		assert.Equal(t, int64(1), got.ID)
	})

	t.Run("most specific wins", func(t *testing.T) {
		got, err := ResolveDelayProfile([]DelayProfile{def, anime, animeHD}, []string{"anime", "hd"})
		require.NoError(t, err)
		assert.Equal(t, int64(3), got.ID)
	})

	t.Run("equal specificity is fatal", func(t *testing.T) {
		other := DelayProfile{ID: 4, Tags: []string{"hd"}}
		_, err := ResolveDelayProfile([]DelayProfile{def, anime, other}, []string{"anime", "hd"})
		assert.ErrorIs(t, err, ErrAmbiguousDelayProfile)
	})

	t.Run("no profiles", func(t *testing.T) {
		got, err := ResolveDelayProfile(nil, []string{"anime"})
		require.NoError(t, err)
		assert.Nil(t, got)
	})
}
