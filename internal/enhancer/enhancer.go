// Package enhancer rewrites queries whose results failed quality assessment.
package enhancer

import (
	"regexp"
	"strings"

	"NewsDigest/internal/domain"
)

// maxWindowDays is the widest bounded date window before the window is dropped.
const maxWindowDays = 30

var (
	yearExpr     = regexp.MustCompile(`^(19|20)\d{2}$`)
	operatorExpr = regexp.MustCompile(`^[a-z]+:\S+$`)

	// Words that narrow a search without naming its subject.
	qualifiers = map[string]struct{}{
		"latest": {}, "breaking": {}, "today": {}, "todays": {}, "tonight": {},
		"yesterday": {}, "recent": {}, "new": {}, "news": {}, "update": {},
		"updates": {}, "live": {}, "exclusive": {}, "official": {},
	}
)

type strategy func(domain.Query) domain.Query

// Enhancer is a deterministic, total query rewriter.
type Enhancer struct {
	strategies map[domain.QualityReason]strategy
	order      []domain.QualityReason
}

// New returns an enhancer with the reason-to-strategy table.
func New() *Enhancer {
	return &Enhancer{
		strategies: map[domain.QualityReason]strategy{
			domain.ReasonTooFewArticles:     broaden,
			domain.ReasonLowContentDensity:  dropContentFilters,
			domain.ReasonLowSourceDiversity: dropSourceRestriction,
		},
		order: []domain.QualityReason{
			domain.ReasonTooFewArticles,
			domain.ReasonLowContentDensity,
			domain.ReasonLowSourceDiversity,
		},
	}
}

// Enhance derives the next query. The strategy matching the verdict reason is tried
// first; when it changes nothing the remaining strategies are tried in fixed order.
// Attempt always advances, so a sequence never yields the same query twice.
func (e *Enhancer) Enhance(q domain.Query, v domain.QualityVerdict) domain.Query {
	next := q.Normalize()

	candidates := make([]domain.QualityReason, 0, len(e.order))
	if _, ok := e.strategies[v.Reason]; ok {
		candidates = append(candidates, v.Reason)
	}
	for _, reason := range e.order {
		if reason != v.Reason {
			candidates = append(candidates, reason)
		}
	}

	base := next.SearchFingerprint()
	for _, reason := range candidates {
		rewritten := e.strategies[reason](next)
		if rewritten.SearchFingerprint() != base {
			next = rewritten
			break
		}
	}

	next.Attempt = q.Attempt + 1
	return next
}

// broaden strips narrowing qualifiers, shortens the topic and widens the date window.
func broaden(q domain.Query) domain.Query {
	words := strings.Fields(q.Topic)
	kept := make([]string, 0, len(words))
	for _, word := range words {
		bare := strings.Trim(word, `"'`)
		lower := strings.ToLower(strings.Trim(bare, ".,;:!?"))
		if lower == "" || strings.HasPrefix(lower, "-") || operatorExpr.MatchString(lower) || yearExpr.MatchString(lower) {
			continue
		}
		if _, ok := qualifiers[lower]; ok {
			continue
		}
		kept = append(kept, bare)
	}

	topic := strings.Join(kept, " ")
	if topic == "" {
		topic = q.Topic
	}
	if topic == strings.Join(words, " ") {
		switch {
		case len(kept) > 2:
			topic = strings.Join(kept[:2], " ")
		case len(kept) == 2:
			topic = kept[0]
		}
	}
	q.Topic = topic

	switch {
	case q.WindowDays <= 0:
	case q.WindowDays*2 > maxWindowDays:
		q.WindowDays = 0
	default:
		q.WindowDays *= 2
	}
	return q
}

// dropContentFilters removes filters that depend on article length.
func dropContentFilters(q domain.Query) domain.Query {
	q.MinContentLength = 0
	return q
}

// dropSourceRestriction removes source and category restrictions.
func dropSourceRestriction(q domain.Query) domain.Query {
	q.Sources = nil
	q.Category = ""
	return q
}
