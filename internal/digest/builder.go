// Package digest merges per-article summaries into a topic-level digest.
package digest

import (
	"sort"
	"strings"
	"time"
	"unicode"

	"NewsDigest/internal/domain"
)

// Builder orders and deduplicates article summaries.
type Builder struct {
	now func() time.Time
}

// NewBuilder uses clock for GeneratedAt; nil means time.Now.
func NewBuilder(clock func() time.Time) *Builder {
	if clock == nil {
		clock = time.Now
	}
	return &Builder{now: clock}
}

// Build deduplicates summaries, then orders them most recent first with source name
// and URL as tie-breakers. Partial is set when any summary failed.
func (b *Builder) Build(topic string, summaries []domain.ArticleSummary) domain.Digest {
	unique := Dedupe(summaries, func(s domain.ArticleSummary) domain.Article { return s.Article })
	sort.SliceStable(unique, func(i, j int) bool {
		return less(unique[i].Article, unique[j].Article)
	})

	result := domain.Digest{
		Topic:       topic,
		Summaries:   unique,
		GeneratedAt: b.now().UTC(),
	}
	for _, s := range unique {
		if s.Status != domain.SummaryOK {
			result.Partial = true
			break
		}
	}
	return result
}

// DedupeArticles collapses duplicate and near-identical articles, keeping the first seen.
func DedupeArticles(articles []domain.Article) []domain.Article {
	return Dedupe(articles, func(a domain.Article) domain.Article { return a })
}

// Dedupe removes items whose article repeats an earlier URL or an earlier
// normalized title on the same host.
func Dedupe[T any](items []T, article func(T) domain.Article) []T {
	seenURL := make(map[string]struct{}, len(items))
	seenTitle := make(map[string]struct{}, len(items))
	out := make([]T, 0, len(items))

	for _, item := range items {
		a := article(item)
		urlKey := strings.TrimRight(strings.TrimSpace(a.URL), "/")
		if urlKey != "" {
			if _, ok := seenURL[urlKey]; ok {
				continue
			}
		}

		titleKey := ""
		if title := NormalizeTitle(a.Title); title != "" {
			titleKey = a.Host() + "|" + title
			if _, ok := seenTitle[titleKey]; ok {
				continue
			}
		}

		if urlKey != "" {
			seenURL[urlKey] = struct{}{}
		}
		if titleKey != "" {
			seenTitle[titleKey] = struct{}{}
		}
		out = append(out, item)
	}
	return out
}

// NormalizeTitle lowercases, drops punctuation and a trailing " - Source" suffix,
// and collapses whitespace.
func NormalizeTitle(title string) string {
	if idx := strings.LastIndex(title, " - "); idx > 0 {
		title = title[:idx]
	}
	if idx := strings.LastIndex(title, " | "); idx > 0 {
		title = title[:idx]
	}

	var b strings.Builder
	for _, r := range strings.ToLower(title) {
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r):
			b.WriteRune(r)
		default:
			b.WriteRune(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

func less(a, b domain.Article) bool {
	if !a.PublishedAt.Equal(b.PublishedAt) {
		return a.PublishedAt.After(b.PublishedAt)
	}
	if a.Source != b.Source {
		return a.Source < b.Source
	}
	return a.URL < b.URL
}
