package profile

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/fetcharr/fetcharr/internal/release"
)

// Condition is a single predicate over a parsed release. All of a format's
// conditions must hold for the format to match.
type Condition struct {
	Field   string `json:"field" yaml:"field"`     // "title", "group", "tag", "source", "resolution", "modifier"
	Pattern string `json:"pattern" yaml:"pattern"` // regex for title/group, literal otherwise
	Negate  bool   `json:"negate" yaml:"negate"`

	compiled *regexp.Regexp
}

// CustomFormat is a scored pattern rule layered on top of raw quality.
// Multiple formats may match one candidate; matching scores sum.
type CustomFormat struct {
	Name       string      `json:"name" yaml:"name"`
	Score      int         `json:"score" yaml:"score"`
	Conditions []Condition `json:"conditions" yaml:"conditions"`
}

// Compile validates and precompiles the format's regex conditions.
func (f *CustomFormat) Compile() error {
	if f.Name == "" {
		return fmt.Errorf("custom format with empty name")
	}
	if len(f.Conditions) == 0 {
		return fmt.Errorf("custom format %q has no conditions", f.Name)
	}
	for i := range f.Conditions {
		c := &f.Conditions[i]
		switch c.Field {
		case "title", "group":
			re, err := regexp.Compile("(?i)" + c.Pattern)
			if err != nil {
				return fmt.Errorf("custom format %q condition %d: %w", f.Name, i, err)
			}
			c.compiled = re
		case "tag", "source", "resolution", "modifier":
		default:
			return fmt.Errorf("custom format %q condition %d: unknown field %q", f.Name, i, c.Field)
		}
	}
	return nil
}

// Matches reports whether every condition holds for the release.
func (f *CustomFormat) Matches(parsed *release.ParsedRelease) bool {
	for i := range f.Conditions {
		if !f.Conditions[i].matches(parsed) {
			return false
		}
	}
	return true
}

func (c *Condition) matches(parsed *release.ParsedRelease) bool {
	var hit bool
	switch c.Field {
	case "title":
		hit = c.compiled.MatchString(parsed.RawTitle)
	case "group":
		hit = parsed.Group != "" && c.compiled.MatchString(parsed.Group)
	case "tag":
		hit = parsed.HasTag(strings.ToLower(c.Pattern))
	case "source":
		hit = strings.EqualFold(parsed.Quality.Source, c.Pattern)
	case "resolution":
		hit = fmt.Sprintf("%d", parsed.Quality.Resolution) == c.Pattern
	case "modifier":
		hit = strings.EqualFold(parsed.Quality.Modifier, c.Pattern)
	}
	if c.Negate {
		return !hit
	}
	return hit
}

// ScoreRelease sums the score deltas of every matching format.
func ScoreRelease(parsed *release.ParsedRelease, formats []CustomFormat) int {
	total := 0
	for i := range formats {
		if formats[i].Matches(parsed) {
			total += formats[i].Score
		}
	}
	return total
}

// LoadCustomFormats reads and compiles custom format definitions from a YAML
// file. A missing path returns an empty set.
func LoadCustomFormats(path string) ([]CustomFormat, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading custom formats: %w", err)
	}

	var doc struct {
		Formats []CustomFormat `yaml:"formats"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parsing custom formats: %w", err)
	}
	for i := range doc.Formats {
		if err := doc.Formats[i].Compile(); err != nil {
			return nil, err
		}
	}
	return doc.Formats, nil
}
