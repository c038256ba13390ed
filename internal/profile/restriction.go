package profile

import "strings"

// Restriction is a binary pass/fail filter over the raw release title,
// independent of scoring. Required terms must all be present; ignored terms
// must all be absent. Matching is case-insensitive substring.
type Restriction struct {
	Required []string `json:"required"`
	Ignored  []string `json:"ignored"`
}

// Check reports whether the title passes the restriction.
func (r *Restriction) Check(rawTitle string) bool {
	title := strings.ToLower(rawTitle)
	for _, term := range r.Ignored {
		if term != "" && strings.Contains(title, strings.ToLower(term)) {
			return false
		}
	}
	for _, term := range r.Required {
		if term != "" && !strings.Contains(title, strings.ToLower(term)) {
			return false
		}
	}
	return true
}

// CheckAll reports whether the title passes every restriction in the set.
func CheckAll(rawTitle string, restrictions []Restriction) bool {
	for i := range restrictions {
		if !restrictions[i].Check(rawTitle) {
			return false
		}
	}
	return true
}
