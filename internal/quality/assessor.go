// Package quality scores fetched article sets against configurable thresholds.
package quality

import (
	"strings"
	"unicode/utf8"

	"NewsDigest/internal/domain"
)

// Thresholds are the floors a result set must reach to pass.
type Thresholds struct {
	MinArticles         int `yaml:"minArticles"`
	MinAvgContentLength int `yaml:"minAvgContentLength"`
	MinDistinctSources  int `yaml:"minDistinctSources"`
}

// DefaultThresholds returns the policy defaults.
func DefaultThresholds() Thresholds {
	return Thresholds{
		MinArticles:         3,
		MinAvgContentLength: 200,
		MinDistinctSources:  2,
	}
}

// Assessor is a pure function over articles and the query that produced them.
type Assessor struct {
	thresholds Thresholds
}

// NewAssessor builds an assessor; zero fields fall back to defaults.
func NewAssessor(t Thresholds) *Assessor {
	def := DefaultThresholds()
	if t.MinArticles <= 0 {
		t.MinArticles = def.MinArticles
	}
	if t.MinAvgContentLength < 0 {
		t.MinAvgContentLength = def.MinAvgContentLength
	}
	if t.MinDistinctSources <= 0 {
		t.MinDistinctSources = def.MinDistinctSources
	}
	return &Assessor{thresholds: t}
}

// Thresholds exposes the effective thresholds.
func (a *Assessor) Thresholds() Thresholds {
	return a.thresholds
}

// Assess checks count, content density and source diversity, in that order.
func (a *Assessor) Assess(articles []domain.Article, query domain.Query) domain.QualityVerdict {
	metrics := Measure(articles)
	minCount, minSources := a.floors(query)

	verdict := domain.QualityVerdict{Passed: true, Reason: domain.ReasonOK, Metrics: metrics}
	switch {
	case metrics.Count < minCount:
		verdict.Passed, verdict.Reason = false, domain.ReasonTooFewArticles
	case metrics.AvgContentLength < float64(a.thresholds.MinAvgContentLength):
		verdict.Passed, verdict.Reason = false, domain.ReasonLowContentDensity
	case metrics.DistinctSources < minSources:
		verdict.Passed, verdict.Reason = false, domain.ReasonLowSourceDiversity
	}
	return verdict
}

// MetCount returns how many of the three thresholds the verdict's metrics satisfy.
func (a *Assessor) MetCount(v domain.QualityVerdict, query domain.Query) int {
	met := 0
	minCount, minSources := a.floors(query)
	if v.Metrics.Count >= minCount {
		met++
	}
	if v.Metrics.AvgContentLength >= float64(a.thresholds.MinAvgContentLength) {
		met++
	}
	if v.Metrics.DistinctSources >= minSources {
		met++
	}
	return met
}

// floors caps the count and diversity floors at what the query can possibly return.
func (a *Assessor) floors(query domain.Query) (int, int) {
	minCount := a.thresholds.MinArticles
	if query.MaxArticles > 0 && query.MaxArticles < minCount {
		minCount = query.MaxArticles
	}
	return minCount, min(a.thresholds.MinDistinctSources, minCount)
}

// Measure computes the metrics of an article set.
func Measure(articles []domain.Article) domain.QualityMetrics {
	metrics := domain.QualityMetrics{Count: len(articles)}
	if len(articles) == 0 {
		return metrics
	}

	sources := make(map[string]struct{}, len(articles))
	total := 0
	for _, article := range articles {
		total += utf8.RuneCountInString(strings.TrimSpace(article.RawContent))
		source := strings.ToLower(strings.TrimSpace(article.Source))
		if source == "" {
			source = article.Host()
		}
		if source != "" {
			sources[source] = struct{}{}
		}
	}

	metrics.AvgContentLength = float64(total) / float64(len(articles))
	metrics.DistinctSources = len(sources)
	return metrics
}
