package usecase

import (
	"fmt"
	"strings"

	"NewsDigest/internal/domain"
)

// FormatDigest renders a digest as plain text for chat delivery.
func FormatDigest(d domain.Digest) string {
	if len(d.Summaries) == 0 {
		return ""
	}

	var b strings.Builder
	fmt.Fprintf(&b, "News digest: %s\n", d.Topic)
	if d.Partial {
		b.WriteString("(partial result)\n")
	}
	if d.Overview != "" {
		fmt.Fprintf(&b, "\n%s\n", d.Overview)
	}
	b.WriteString("\n")

	for _, s := range d.Summaries {
		summary := "Summary unavailable."
		if s.SummaryText != nil {
			summary = *s.SummaryText
		}
		published := ""
		if !s.Article.PublishedAt.IsZero() {
			published = ", " + s.Article.PublishedAt.UTC().Format("2006-01-02 15:04")
		}
		fmt.Fprintf(&b, "- %s\n%s%s\n%s\n%s\n\n",
			s.Article.Title,
			s.Article.Source,
			published,
			summary,
			s.Article.URL)
	}

	return strings.TrimRight(b.String(), "\n") + "\n"
}
