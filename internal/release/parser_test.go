package release

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSeries(t *testing.T) {
	tests := []struct {
		name     string
		title    string
		want     *ParsedRelease
	}{
		{
			name:  "standard episode",
			title: "Breaking.Bad.S05E14.1080p.WEB-DL.DD5.1.H.264-NTb",
			want: &ParsedRelease{
				Kind:     KindSeries,
				Title:    "Breaking Bad",
				Season:   5,
				Episodes: []int{14},
			},
		},
		{
			name:  "multi episode",
			title: "Show.Name.S01E01E02.720p.HDTV.x264-GRP",
			want: &ParsedRelease{
				Kind:     KindSeries,
				Title:    "Show Name",
				Season:   1,
				Episodes: []int{1, 2},
			},
		},
		{
			name:  "episode range",
			title: "Show.Name.S02E01-E04.1080p.BluRay.x265-GRP",
			want: &ParsedRelease{
				Kind:     KindSeries,
				Title:    "Show Name",
				Season:   2,
				Episodes: []int{1, 2, 3, 4},
			},
		},
		{
			name:  "scene numbering",
			title: "Show Name 3x07 HDTV XviD-LOL",
			want: &ParsedRelease{
				Kind:     KindSeries,
				Title:    "Show Name",
				Season:   3,
				Episodes: []int{7},
			},
		},
		{
			name:  "season pack",
			title: "Show.Name.S03.1080p.BluRay.x264-GRP",
			want: &ParsedRelease{
				Kind:         KindSeries,
				Title:        "Show Name",
				Season:       3,
				IsSeasonPack: true,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Parse(tt.title, KindSeries)
			require.NotNil(t, got)
			assert.Equal(t, tt.want.Kind, got.Kind)
			assert.Equal(t, tt.want.Title, got.Title)
			assert.Equal(t, tt.want.Season, got.Season)
			assert.Equal(t, tt.want.Episodes, got.Episodes)
			assert.Equal(t, tt.want.IsSeasonPack, got.IsSeasonPack)
			assert.Equal(t, tt.title, got.RawTitle)
		})
	}
}

func TestParseAnime(t *testing.T) {
	t.Run("fansub bracket", func(t *testing.T) {
		got := Parse("[SubsPlease] Frieren - 028 (1080p) [F02B9CEE]", KindAnime)
		require.NotNil(t, got)
		assert.Equal(t, KindAnime, got.Kind)
		assert.Equal(t, "Frieren", got.Title)
		assert.Equal(t, 28, got.AbsoluteEpisode)
		assert.Equal(t, "SubsPlease", got.Group)
		assert.Equal(t, 1080, got.Quality.Resolution)
	})

	t.Run("bare absolute numbering", func(t *testing.T) {
		got := Parse("One Piece - 1071 720p WEB x264", KindAnime)
		require.NotNil(t, got)
		assert.Equal(t, 1071, got.AbsoluteEpisode)
	})

	t.Run("year is not an absolute episode", func(t *testing.T) {
		got := Parse("Some Film - 1999", KindAnime)
		assert.Nil(t, got)
	})

	t.Run("falls back to standard numbering", func(t *testing.T) {
		got := Parse("Attack.on.Titan.S04E28.1080p.WEB.x264-GRP", KindAnime)
		require.NotNil(t, got)
		assert.Equal(t, KindAnime, got.Kind)
		assert.Equal(t, 4, got.Season)
		assert.Equal(t, []int{28}, got.Episodes)
	})
}

func TestParseMovie(t *testing.T) {
	t.Run("parenthesized year", func(t *testing.T) {
		got := Parse("Inception (2010) 1080p BluRay x264-SPARKS", KindMovie)
		require.NotNil(t, got)
		assert.Equal(t, KindMovie, got.Kind)
		assert.Equal(t, "Inception", got.Title)
		assert.Equal(t, 2010, got.Year)
	})

	t.Run("dotted year", func(t *testing.T) {
		got := Parse("The.Matrix.1999.2160p.UHD.BluRay.Remux.DV.HDR10-FraMeSToR", KindMovie)
		require.NotNil(t, got)
		assert.Equal(t, "The Matrix", got.Title)
		assert.Equal(t, 1999, got.Year)
		assert.Equal(t, 2160, got.Quality.Resolution)
		assert.Equal(t, "remux", got.Quality.Modifier)
		assert.Equal(t, "bluray", got.Quality.Source)
	})

	t.Run("no year", func(t *testing.T) {
		assert.Nil(t, Parse("Just A Title Without Anything", KindMovie))
	})
}

func TestParseMusic(t *testing.T) {
	got := Parse("Daft Punk - Random Access Memories (2013) [FLAC]", KindMusic)
	require.NotNil(t, got)
	assert.Equal(t, KindMusic, got.Kind)
	assert.Equal(t, "Daft Punk Random Access Memories", got.Title)
	assert.Equal(t, 2013, got.Year)
	assert.True(t, got.HasTag("flac"))
}

func TestParseNoHint(t *testing.T) {
	tests := []struct {
		title string
		kind  Kind
	}{
		{"Breaking.Bad.S05E14.1080p.WEB-DL-NTb", KindSeries},
		{"[SubsPlease] Frieren - 028 (1080p)", KindAnime},
		{"Inception.2010.1080p.BluRay.x264-SPARKS", KindMovie},
		{"Daft Punk - Random Access Memories (2013) [FLAC]", KindMusic},
	}
	for _, tt := range tests {
		got := Parse(tt.title, "")
		require.NotNil(t, got, tt.title)
		assert.Equal(t, tt.kind, got.Kind, tt.title)
	}
}

func TestParseUnparseable(t *testing.T) {
	for _, title := range []string{
		"",
		"    ",
		"random words with no structure",
	} {
		assert.Nil(t, Parse(title, ""), "title %q", title)
	}
}

func TestQualityAndTagScan(t *testing.T) {
	got := Parse("Show.S01E01.2160p.WEB-DL.DDP5.1.Atmos.DV.HDR10+.x265-GRP", KindSeries)
	require.NotNil(t, got)
	assert.Equal(t, 2160, got.Quality.Resolution)
	assert.Equal(t, "webdl", got.Quality.Source)
	assert.Empty(t, got.Quality.Modifier)
	assert.True(t, got.HasTag("x265"))
	assert.True(t, got.HasTag("atmos"))
	assert.True(t, got.HasTag("dv"))
	assert.True(t, got.HasTag("hdr10plus"))
	assert.True(t, got.HasTag("ddp"))
	assert.Equal(t, "GRP", got.Group)
}

func TestProperRepack(t *testing.T) {
	got := Parse("Show.S01E01.PROPER.720p.HDTV.x264-GRP", KindSeries)
	require.NotNil(t, got)
	assert.True(t, got.Proper)
	assert.False(t, got.Repack)

	got = Parse("Show.S01E01.REPACK.720p.HDTV.x264-GRP", KindSeries)
	require.NotNil(t, got)
	assert.True(t, got.Repack)
}

func TestExtractGroupExcludesQualityTokens(t *testing.T) {
	got := Parse("Show.S01E01.1080p.WEB-DL", KindSeries)
	require.NotNil(t, got)
	assert.Empty(t, got.Group)
}

func TestCoversEpisode(t *testing.T) {
	pack := &ParsedRelease{Season: 2, IsSeasonPack: true}
	assert.True(t, pack.CoversEpisode(2, 9))
	assert.False(t, pack.CoversEpisode(3, 1))

	multi := &ParsedRelease{Season: 1, Episodes: []int{3, 4}}
	assert.True(t, multi.CoversEpisode(1, 4))
	assert.False(t, multi.CoversEpisode(1, 5))
}

func TestNormalizeTitle(t *testing.T) {
	assert.Equal(t, "breaking bad", NormalizeTitle("Breaking.Bad"))
	assert.Equal(t, "show name", NormalizeTitle("Show_Name"))
}

func TestMalformedEpisodeRange(t *testing.T) {
	// Inverted range must fail rather than yield an empty episode list.
	assert.Nil(t, Parse("Show.Name.S01E05-E02.720p-GRP", KindSeries))
}
