package domain

import (
	"encoding/json"
	"slices"
	"strings"
)

// DefaultLanguage is used when a query carries no language code.
const DefaultLanguage = "en"

// Query describes what to search for. It is a value: derived queries are new values.
type Query struct {
	Topic       string `json:"topic"`
	MaxArticles int    `json:"max_articles"`
	Language    string `json:"language"`
	Category    string `json:"category,omitempty"`
	Attempt     int    `json:"attempt"`

	// Search filters the enhancer may relax.
	Sources          []string `json:"sources,omitempty"`
	WindowDays       int      `json:"window_days,omitempty"`
	MinContentLength int      `json:"min_content_length,omitempty"`
}

// Normalize returns a copy with trimmed topic and lowercased language/category.
func (q Query) Normalize() Query {
	q.Topic = strings.Join(strings.Fields(q.Topic), " ")
	q.Language = strings.ToLower(strings.TrimSpace(q.Language))
	if q.Language == "" {
		q.Language = DefaultLanguage
	}
	q.Category = strings.ToLower(strings.TrimSpace(q.Category))
	if len(q.Sources) > 0 {
		q.Sources = slices.Clone(q.Sources)
	}
	return q
}

// SearchFingerprint is a canonical rendering of every field that affects a fetch.
func (q Query) SearchFingerprint() string {
	sources := slices.Clone(q.Sources)
	slices.Sort(sources)
	raw, _ := json.Marshal([]any{strings.ToLower(q.Topic), q.MaxArticles, q.Language, q.Category,
		sources, q.WindowDays, q.MinContentLength})
	return string(raw)
}

// Equal reports whether both queries are identical, attempt included.
func (q Query) Equal(other Query) bool {
	return q.Attempt == other.Attempt && q.SearchFingerprint() == other.SearchFingerprint()
}
