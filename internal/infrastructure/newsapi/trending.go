package newsapi

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"time"
	"unicode"

	"NewsDigest/internal/domain"
)

const (
	trendingLimit      = 20
	trendingCategories = "general,business,technology,sports"
	maxTrending        = 10
)

// Trending derives popular topics from the latest headlines: every category and the
// first two significant title words of each article count as one mention.
func (c *Client) Trending(ctx context.Context, language string) ([]domain.TrendingTopic, error) {
	params := url.Values{}
	params.Set("language", language)
	params.Set("limit", fmt.Sprint(trendingLimit))
	params.Set("categories", trendingCategories)

	resp, err := c.get(ctx, "/top", params)
	if err != nil {
		return nil, fmt.Errorf("load top headlines: %w", err)
	}
	return extractTrending(resp.Data), nil
}

func extractTrending(items []apiArticle) []domain.TrendingTopic {
	index := map[string]int{}
	topics := make([]domain.TrendingTopic, 0)

	for _, item := range items {
		mentions := make([]string, 0, len(item.Categories)+2)
		mentions = append(mentions, item.Categories...)
		significant := 0
		for _, word := range strings.Fields(item.Title) {
			if significant == 2 {
				break
			}
			if len([]rune(word)) > 4 {
				mentions = append(mentions, strings.ToLower(word))
				significant++
			}
		}

		for _, mention := range mentions {
			key := strings.ToLower(strings.TrimSpace(mention))
			if len([]rune(key)) <= 3 {
				continue
			}
			i, ok := index[key]
			if !ok {
				published, _ := time.Parse(time.RFC3339Nano, item.PublishedAt)
				topics = append(topics, domain.TrendingTopic{
					Topic:             titleCase(key),
					LatestTitle:       item.Title,
					LatestURL:         item.URL,
					LatestPublishedAt: published.UTC(),
				})
				i = len(topics) - 1
				index[key] = i
			}
			topics[i].Count++
		}
	}

	sort.SliceStable(topics, func(i, j int) bool { return topics[i].Count > topics[j].Count })
	if len(topics) > maxTrending {
		topics = topics[:maxTrending]
	}
	return topics
}

func titleCase(s string) string {
	upper := true
	return strings.Map(func(r rune) rune {
		if !unicode.IsLetter(r) {
			upper = true
			return r
		}
		if upper {
			upper = false
			return unicode.ToUpper(r)
		}
		return r
	}, s)
}
