package domain

import (
	"net/url"
	"strings"
	"time"
)

// Article is a single news item produced by a NewsSource. Read-only downstream.
type Article struct {
	Title       string    `json:"title"`
	URL         string    `json:"url"`
	Source      string    `json:"source"`
	PublishedAt time.Time `json:"published_at"`
	Description string    `json:"description,omitempty"`
	RawContent  string    `json:"raw_content"`
	ImageURL    string    `json:"image_url,omitempty"`
}

// Host returns the lowercased URL host without a leading "www.".
func (a Article) Host() string {
	parsed, err := url.Parse(a.URL)
	if err != nil {
		return ""
	}
	return strings.TrimPrefix(strings.ToLower(parsed.Hostname()), "www.")
}

// Text picks the richest text available for summarization.
func (a Article) Text() string {
	if content := strings.TrimSpace(a.RawContent); content != "" {
		return content
	}
	if desc := strings.TrimSpace(a.Description); desc != "" {
		return desc
	}
	return strings.TrimSpace(a.Title)
}

// TrendingTopic aggregates how often a topic appears in the latest headlines.
type TrendingTopic struct {
	Topic             string    `json:"topic"`
	Count             int       `json:"count"`
	LatestTitle       string    `json:"latest_title,omitempty"`
	LatestURL         string    `json:"latest_url,omitempty"`
	LatestPublishedAt time.Time `json:"latest_published_at,omitempty"`
}
