// Package extractor downloads article pages and pulls their main text.
package extractor

import (
	"context"
	"errors"
	"fmt"
	"html"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/microcosm-cc/bluemonday"

	"NewsDigest/internal/ports"
)

// MinContentLength is the shortest extracted text accepted as an article body.
const MinContentLength = 100

var (
	ErrBlockedDomain = errors.New("domain blocks extraction")
	ErrNoContent     = errors.New("no article content found")
)

var contentSelectors = []string{
	"article",
	`[role="main"]`,
	".content",
	".article-content",
	".post-content",
	".entry-content",
	"main",
	".main-content",
}

var blockedDomains = []string{
	"facebook.com", "twitter.com", "instagram.com", "linkedin.com",
	"youtube.com", "tiktok.com", "reddit.com",
}

// Extractor fetches HTML pages and returns their main readable text.
type Extractor struct {
	client *http.Client
	policy *bluemonday.Policy
}

var _ ports.ContentExtractor = (*Extractor)(nil)

// New wires an HTTP client; a nil client gets a 10 second timeout.
func New(client *http.Client) *Extractor {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &Extractor{client: client, policy: bluemonday.StrictPolicy()}
}

// Extractable reports whether rawURL is an http(s) URL outside the blocked domains.
func Extractable(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return false
	}
	host := strings.ToLower(u.Hostname())
	for _, blocked := range blockedDomains {
		if host == blocked || strings.HasSuffix(host, "."+blocked) {
			return false
		}
	}
	return true
}

// Extract downloads rawURL and returns its main text.
func (e *Extractor) Extract(ctx context.Context, rawURL string) (string, error) {
	if !Extractable(rawURL) {
		return "", fmt.Errorf("%w: %s", ErrBlockedDomain, rawURL)
	}

	doc, err := e.fetchDocument(ctx, rawURL)
	if err != nil {
		return "", err
	}

	text := e.MainText(doc)
	if len([]rune(text)) <= MinContentLength {
		return "", fmt.Errorf("%w: %s", ErrNoContent, rawURL)
	}
	return text, nil
}

// MainText picks the first content area with enough text, falling back to the body.
func (e *Extractor) MainText(doc *goquery.Document) string {
	doc.Find("script, style, noscript, nav, footer").Remove()

	content := ""
	for _, selector := range contentSelectors {
		selection := doc.Find(selector)
		if selection.Length() == 0 {
			continue
		}
		parts := make([]string, 0, selection.Length())
		selection.Each(func(_ int, s *goquery.Selection) {
			parts = append(parts, s.Text())
		})
		content = collapse(strings.Join(parts, " "))
		if len([]rune(content)) > MinContentLength {
			break
		}
	}

	if len([]rune(content)) < MinContentLength {
		content = collapse(doc.Find("body").Text())
	}
	return collapse(html.UnescapeString(e.policy.Sanitize(content)))
}

// Sanitize strips markup from a provider snippet and collapses whitespace.
func (e *Extractor) Sanitize(s string) string {
	return collapse(html.UnescapeString(e.policy.Sanitize(s)))
}

func (e *Extractor) fetchDocument(ctx context.Context, pageURL string) (*goquery.Document, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", "NewsDigest/1.0")

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request document: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%s returned %s", pageURL, resp.Status)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parse document: %w", err)
	}

	return doc, nil
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
