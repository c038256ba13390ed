// Package release parses raw release titles into structured candidates.
//
// Parsing never returns an error: a title that matches no known pattern
// yields a nil result, which callers treat as a first-class "unparseable"
// outcome rather than a fault.
package release

import (
	"regexp"
	"strconv"
	"strings"
)

// Kind identifies the content category of a release.
type Kind string

const (
	KindSeries Kind = "series"
	KindAnime  Kind = "anime"
	KindMovie  Kind = "movie"
	KindMusic  Kind = "music"
)

// Quality describes the claimed quality of a release title.
type Quality struct {
	Resolution int    `json:"resolution,omitempty"` // 480, 720, 1080, 2160
	Source     string `json:"source,omitempty"`     // "bluray", "webdl", "webrip", "hdtv", "dvd", "cam"
	Modifier   string `json:"modifier,omitempty"`   // "remux" or ""
}

// ParsedRelease is the structured form of a release title. It carries no
// identity beyond its source title and is recomputed on demand.
type ParsedRelease struct {
	RawTitle        string   `json:"rawTitle"`
	Title           string   `json:"title"`
	NormalizedTitle string   `json:"normalizedTitle"`
	Year            int      `json:"year,omitempty"`
	Kind            Kind     `json:"kind"`
	Season          int      `json:"season,omitempty"`
	Episodes        []int    `json:"episodes,omitempty"` // ordered, supports multi-episode releases
	AbsoluteEpisode int      `json:"absoluteEpisode,omitempty"`
	IsSeasonPack    bool     `json:"isSeasonPack,omitempty"`
	Quality         Quality  `json:"quality"`
	Group           string   `json:"group,omitempty"`
	Tags            []string `json:"tags,omitempty"` // codec/audio/HDR/language tokens
	Proper          bool     `json:"proper,omitempty"`
	Repack          bool     `json:"repack,omitempty"`
}

// CoversEpisode reports whether the release covers the given episode number,
// either explicitly or as a season pack.
func (p *ParsedRelease) CoversEpisode(season, episode int) bool {
	if p.Season != season {
		return false
	}
	if p.IsSeasonPack {
		return true
	}
	for _, e := range p.Episodes {
		if e == episode {
			return true
		}
	}
	return false
}

// Title/episode patterns, tried in order; first match wins.
var (
	// Show.Name.S01E02 or S01E02E03 or S01E01-E03
	seriesPatternSE = regexp.MustCompile(`(?i)^(.+?)[\.\s_-]+[Ss](\d{1,2})([Ee]\d{1,3}-[Ee]?\d{1,3}|(?:[Ee]\d{1,3})+)[\.\s_-]*(.*)$`)
	// Show.Name.1x02 scene numbering
	seriesPatternX = regexp.MustCompile(`(?i)^(.+?)[\.\s_-]+(\d{1,2})[xX](\d{1,3})[\.\s_-]*(.*)$`)
	// Show.Name.S01 season pack (no episode)
	seriesPatternSeason = regexp.MustCompile(`(?i)^(.+?)[\.\s_-]+[Ss](\d{1,2})(?:[\.\s_-]+(.*))?$`)
	// [Fansub] Title - 012 anime absolute numbering
	animePatternBracket = regexp.MustCompile(`^\[([^\]]+)\]\s*(.+?)\s+-\s+(\d{1,4})(?:v\d)?(?:\s+(.*))?$`)
	// Title - 012 absolute numbering without fansub group
	animePatternAbsolute = regexp.MustCompile(`(?i)^(.+?)\s+-\s+(\d{2,4})(?:v\d)?(?:[\.\s_-]+(.*))?$`)
	// Movie.Title.2019 / Movie Title (2019)
	moviePatternParen = regexp.MustCompile(`^(.+?)\s*\((\d{4})\)\s*(.*)$`)
	moviePatternDot   = regexp.MustCompile(`^(.+?)[\.\s_-]+(\d{4})(?:[\.\s_-]+(.*))?$`)
	// Artist - Album (2019) music-style titles
	musicPattern = regexp.MustCompile(`^(.+?)\s+-\s+(.+?)\s*\((\d{4})\)\s*(.*)$`)

	episodeListPattern = regexp.MustCompile(`(?i)[Ee](\d{1,3})`)
	cleanupPattern     = regexp.MustCompile(`[\.\s_-]+`)
	groupPattern       = regexp.MustCompile(`-([A-Za-z0-9]+)(?:\s*\[[^\]]*\])?$`)
)

// Quality token patterns, scanned over the whole title regardless of which
// title pattern matched.
var (
	resolutionPatterns = []struct {
		res     int
		pattern *regexp.Regexp
	}{
		{2160, regexp.MustCompile(`(?i)\b(2160p|4k|uhd)\b`)},
		{1080, regexp.MustCompile(`(?i)\b1080[pi]\b`)},
		{720, regexp.MustCompile(`(?i)\b720p\b`)},
		{480, regexp.MustCompile(`(?i)\b(480p|sdtv)\b`)},
	}

	sourcePatterns = []struct {
		source  string
		pattern *regexp.Regexp
	}{
		{"bluray", regexp.MustCompile(`(?i)(blu-?ray|bdrip|brrip|bdremux)`)},
		{"webdl", regexp.MustCompile(`(?i)(web-?dl|\bweb\b)`)},
		{"webrip", regexp.MustCompile(`(?i)webrip`)},
		{"hdtv", regexp.MustCompile(`(?i)hdtv`)},
		{"dvd", regexp.MustCompile(`(?i)(dvdrip|dvd-?r|\bdvd\b)`)},
		{"cam", regexp.MustCompile(`(?i)\b(cam|hdcam|telesync|\bts\b)\b`)},
	}

	remuxPattern  = regexp.MustCompile(`(?i)\bremux\b`)
	properPattern = regexp.MustCompile(`(?i)\bproper\b`)
	repackPattern = regexp.MustCompile(`(?i)\b(repack|rerip)\b`)

	tagPatterns = []struct {
		tag     string
		pattern *regexp.Regexp
	}{
		{"x265", regexp.MustCompile(`(?i)(x265|h\.?265|hevc)`)},
		{"x264", regexp.MustCompile(`(?i)(x264|h\.?264|avc)`)},
		{"av1", regexp.MustCompile(`(?i)\bav1\b`)},
		{"dv", regexp.MustCompile(`(?i)(dolby[\.\s]?vision|dovi|\bdv\b)`)},
		{"hdr10plus", regexp.MustCompile(`(?i)hdr10\+`)},
		{"hdr10", regexp.MustCompile(`(?i)hdr10([^+]|$)`)},
		{"hdr", regexp.MustCompile(`(?i)\bhdr\b`)},
		{"atmos", regexp.MustCompile(`(?i)atmos`)},
		{"truehd", regexp.MustCompile(`(?i)truehd`)},
		{"dts-hd", regexp.MustCompile(`(?i)dts[\.\-]?hd`)},
		{"dts", regexp.MustCompile(`(?i)\bdts\b`)},
		{"ddp", regexp.MustCompile(`(?i)(ddp|dd\+|e[\.\-]?ac[\.\-]?3)`)},
		{"aac", regexp.MustCompile(`(?i)\baac\b`)},
		{"flac", regexp.MustCompile(`(?i)\bflac\b`)},
		{"mp3", regexp.MustCompile(`(?i)\bmp3\b`)},
		{"multi", regexp.MustCompile(`(?i)\bmulti\b`)},
		{"dual-audio", regexp.MustCompile(`(?i)dual[\.\s_-]?audio`)},
	}
)

// Parse parses a raw release title. The hint, when non-empty, restricts which
// title patterns are tried. Returns nil when no pattern matches or when a
// matched pattern contains malformed numbers: a release that cannot be
// unambiguously numbered must not default to episode 0.
func Parse(rawTitle string, hint Kind) *ParsedRelease {
	title := strings.TrimSpace(rawTitle)
	if title == "" {
		return nil
	}

	var parsed *ParsedRelease
	switch hint {
	case KindSeries:
		parsed = parseSeries(title)
	case KindAnime:
		parsed = parseAnime(title)
		if parsed == nil {
			// Anime releases frequently use standard series numbering.
			parsed = parseSeries(title)
			if parsed != nil {
				parsed.Kind = KindAnime
			}
		}
	case KindMovie:
		parsed = parseMovie(title)
	case KindMusic:
		parsed = parseMusic(title)
	default:
		// No hint: patterns are tried most-specific first. Music requires the
		// full "Artist - Album (Year)" shape and must run before the looser
		// movie year patterns.
		parsed = parseSeries(title)
		if parsed == nil {
			parsed = parseAnime(title)
		}
		if parsed == nil {
			parsed = parseMusic(title)
		}
		if parsed == nil {
			parsed = parseMovie(title)
		}
	}

	if parsed == nil {
		return nil
	}

	parsed.RawTitle = rawTitle
	parsed.NormalizedTitle = NormalizeTitle(parsed.Title)

	// Quality, tags, and group are orthogonal token scans over the whole
	// title, independent of which title pattern matched.
	scanQuality(title, parsed)
	scanTags(title, parsed)
	if parsed.Group == "" {
		parsed.Group = extractGroup(title)
	}

	return parsed
}

// NormalizeTitle lowercases a title and collapses separators for index keys.
func NormalizeTitle(title string) string {
	cleaned := cleanupPattern.ReplaceAllString(title, " ")
	return strings.ToLower(strings.TrimSpace(cleaned))
}

func parseSeries(title string) *ParsedRelease {
	if match := seriesPatternSE.FindStringSubmatch(title); match != nil {
		season, ok := parseNumber(match[2])
		if !ok {
			return nil
		}
		episodes, ok := parseEpisodeList(match[3])
		if !ok {
			return nil
		}
		return &ParsedRelease{
			Kind:     KindSeries,
			Title:    cleanTitle(match[1]),
			Season:   season,
			Episodes: episodes,
		}
	}

	if match := seriesPatternX.FindStringSubmatch(title); match != nil {
		season, ok := parseNumber(match[2])
		if !ok {
			return nil
		}
		episode, ok := parseNumber(match[3])
		if !ok {
			return nil
		}
		return &ParsedRelease{
			Kind:     KindSeries,
			Title:    cleanTitle(match[1]),
			Season:   season,
			Episodes: []int{episode},
		}
	}

	if match := seriesPatternSeason.FindStringSubmatch(title); match != nil {
		season, ok := parseNumber(match[2])
		if !ok {
			return nil
		}
		return &ParsedRelease{
			Kind:         KindSeries,
			Title:        cleanTitle(match[1]),
			Season:       season,
			IsSeasonPack: true,
		}
	}

	return nil
}

func parseAnime(title string) *ParsedRelease {
	if match := animePatternBracket.FindStringSubmatch(title); match != nil {
		abs, ok := parseNumber(match[3])
		if !ok {
			return nil
		}
		return &ParsedRelease{
			Kind:            KindAnime,
			Title:           cleanTitle(match[2]),
			AbsoluteEpisode: abs,
			Group:           strings.TrimSpace(match[1]),
		}
	}

	if match := animePatternAbsolute.FindStringSubmatch(title); match != nil {
		// A bare "Title - NNNN" where NNNN looks like a year is a movie or
		// music title, not an absolute episode number.
		abs, ok := parseNumber(match[2])
		if !ok || isYear(abs) {
			return nil
		}
		return &ParsedRelease{
			Kind:            KindAnime,
			Title:           cleanTitle(match[1]),
			AbsoluteEpisode: abs,
		}
	}

	return nil
}

func parseMovie(title string) *ParsedRelease {
	if match := moviePatternParen.FindStringSubmatch(title); match != nil {
		year, ok := parseNumber(match[2])
		if !ok || !isYear(year) {
			return nil
		}
		return &ParsedRelease{
			Kind:  KindMovie,
			Title: cleanTitle(match[1]),
			Year:  year,
		}
	}

	if match := moviePatternDot.FindStringSubmatch(title); match != nil {
		year, ok := parseNumber(match[2])
		if ok && isYear(year) {
			return &ParsedRelease{
				Kind:  KindMovie,
				Title: cleanTitle(match[1]),
				Year:  year,
			}
		}
	}

	return nil
}

func parseMusic(title string) *ParsedRelease {
	match := musicPattern.FindStringSubmatch(title)
	if match == nil {
		return nil
	}
	year, ok := parseNumber(match[3])
	if !ok || !isYear(year) {
		return nil
	}
	return &ParsedRelease{
		Kind:  KindMusic,
		Title: cleanTitle(match[1]) + " " + cleanTitle(match[2]),
		Year:  year,
	}
}

// parseEpisodeList expands "E01", "E01E02E03", or "E01-E03" into an ordered
// episode set. Returns false on malformed or empty input.
func parseEpisodeList(text string) ([]int, bool) {
	if idx := strings.IndexByte(text, '-'); idx > 0 {
		first, ok1 := parseNumber(strings.TrimLeft(text[:idx], "eE"))
		last, ok2 := parseNumber(strings.TrimLeft(text[idx+1:], "eE"))
		if !ok1 || !ok2 || last < first {
			return nil, false
		}
		episodes := make([]int, 0, last-first+1)
		for e := first; e <= last; e++ {
			episodes = append(episodes, e)
		}
		return episodes, true
	}

	matches := episodeListPattern.FindAllStringSubmatch(text, -1)
	if len(matches) == 0 {
		return nil, false
	}
	episodes := make([]int, 0, len(matches))
	for _, m := range matches {
		e, ok := parseNumber(m[1])
		if !ok {
			return nil, false
		}
		episodes = append(episodes, e)
	}
	return episodes, true
}

func parseNumber(text string) (int, bool) {
	n, err := strconv.Atoi(strings.TrimSpace(text))
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}

func isYear(n int) bool {
	return n >= 1900 && n <= 2100
}

func cleanTitle(title string) string {
	cleaned := cleanupPattern.ReplaceAllString(title, " ")
	return strings.TrimSpace(cleaned)
}

func scanQuality(text string, parsed *ParsedRelease) {
	for _, rp := range resolutionPatterns {
		if rp.pattern.MatchString(text) {
			parsed.Quality.Resolution = rp.res
			break
		}
	}

	if remuxPattern.MatchString(text) {
		parsed.Quality.Modifier = "remux"
		parsed.Quality.Source = "bluray"
	} else {
		for _, sp := range sourcePatterns {
			if sp.pattern.MatchString(text) {
				parsed.Quality.Source = sp.source
				break
			}
		}
	}

	parsed.Proper = properPattern.MatchString(text)
	parsed.Repack = repackPattern.MatchString(text)
}

func scanTags(text string, parsed *ParsedRelease) {
	var tags []string
	seen := make(map[string]bool)
	for _, tp := range tagPatterns {
		if tp.pattern.MatchString(text) && !seen[tp.tag] {
			tags = append(tags, tp.tag)
			seen[tp.tag] = true
		}
	}
	parsed.Tags = tags
}

// HasTag reports whether the release carries the given tag token.
func (p *ParsedRelease) HasTag(tag string) bool {
	for _, t := range p.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

func extractGroup(title string) string {
	// Strip a trailing bracket chunk ("[rartv]") before looking for the
	// conventional trailing -GROUP token.
	match := groupPattern.FindStringSubmatch(strings.TrimSpace(title))
	if match == nil {
		return ""
	}
	group := match[1]
	// A trailing resolution or year is not a group.
	if n, err := strconv.Atoi(group); err == nil && n > 0 {
		return ""
	}
	if notGroupTokens[strings.ToLower(group)] {
		return ""
	}
	return group
}

// Quality tokens that legitimately end a title with a hyphen and must not be
// mistaken for a release group.
var notGroupTokens = map[string]bool{
	"dl": true, "ray": true, "hd": true, "rip": true,
	"audio": true, "vision": true, "r": true,
}
