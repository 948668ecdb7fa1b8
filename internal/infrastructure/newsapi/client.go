// Package newsapi is a TheNewsAPI-style news source with retries, pacing and
// relevance filtering.
package newsapi

import (
	"context"
	"encoding/json"
	"fmt"
	"html"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/cenkalti/backoff/v5"
	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"NewsDigest/internal/domain"
	"NewsDigest/internal/metrics"
	"NewsDigest/internal/ports"
)

const (
	DefaultBaseURL = "https://api.thenewsapi.com/v1/news"
	maxLimit       = 100
	enrichBelow    = 200
	paywallMarker  = "ONLY AVAILABLE IN PAID PLANS"
)

// Options configure the client. Zero values take defaults.
type Options struct {
	BaseURL           string
	Token             string
	Timeout           time.Duration
	MaxRetries        int
	InitialBackoff    time.Duration
	RequestsPerSecond float64
	Burst             int
	MinRelevance      float64
	// Extractor, when set, fetches full text for articles with short content.
	Extractor ports.ContentExtractor
	Logger    *slog.Logger
	Clock     func() time.Time
}

// Client implements ports.NewsSource and ports.TrendingSource.
type Client struct {
	baseURL        string
	token          string
	http           *http.Client
	limiter        *rate.Limiter
	maxRetries     int
	initialBackoff time.Duration
	minRelevance   float64
	extractor      ports.ContentExtractor
	policy         *bluemonday.Policy
	logger         *slog.Logger
	now            func() time.Time
}

var (
	_ ports.NewsSource     = (*Client)(nil)
	_ ports.TrendingSource = (*Client)(nil)
)

// NewClient builds a client from options.
func NewClient(opts Options) *Client {
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultBaseURL
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}
	if opts.InitialBackoff <= 0 {
		opts.InitialBackoff = 500 * time.Millisecond
	}
	if opts.RequestsPerSecond <= 0 {
		opts.RequestsPerSecond = 2
	}
	if opts.Burst <= 0 {
		opts.Burst = 1
	}
	if opts.MinRelevance <= 0 {
		opts.MinRelevance = DefaultMinRelevance
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	return &Client{
		baseURL:        strings.TrimRight(opts.BaseURL, "/"),
		token:          opts.Token,
		http:           &http.Client{Timeout: opts.Timeout},
		limiter:        rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), opts.Burst),
		maxRetries:     opts.MaxRetries,
		initialBackoff: opts.InitialBackoff,
		minRelevance:   opts.MinRelevance,
		extractor:      opts.Extractor,
		policy:         bluemonday.StrictPolicy(),
		logger:         opts.Logger.With("component", "newsapi"),
		now:            opts.Clock,
	}
}

type apiArticle struct {
	UUID        string   `json:"uuid"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Snippet     string   `json:"snippet"`
	URL         string   `json:"url"`
	ImageURL    string   `json:"image_url"`
	PublishedAt string   `json:"published_at"`
	Source      string   `json:"source"`
	Categories  []string `json:"categories"`
}

type apiResponse struct {
	Data  []apiArticle `json:"data"`
	Error *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// Fetch searches articles for the query, enriches short ones and keeps the relevant ones.
func (c *Client) Fetch(ctx context.Context, q domain.Query) ([]domain.Article, error) {
	limit := min(q.MaxArticles*2, maxLimit)
	params := url.Values{}
	params.Set("search", q.Topic)
	params.Set("language", q.Language)
	params.Set("limit", strconv.Itoa(limit))
	if q.Category != "" {
		params.Set("categories", q.Category)
	}
	if len(q.Sources) > 0 {
		params.Set("domains", strings.Join(q.Sources, ","))
	}
	if q.WindowDays > 0 {
		params.Set("published_after", c.now().UTC().AddDate(0, 0, -q.WindowDays).Format("2006-01-02"))
	}

	resp, err := c.get(ctx, "/all", params)
	if err != nil {
		return nil, fmt.Errorf("search %q: %w", q.Topic, err)
	}

	articles := c.convert(resp.Data)
	c.enrich(ctx, articles)

	if q.MinContentLength > 0 {
		long := articles[:0]
		for _, a := range articles {
			if utf8.RuneCountInString(a.RawContent) >= q.MinContentLength {
				long = append(long, a)
			}
		}
		articles = long
	}

	relevant := FilterRelevant(articles, q.Topic, c.minRelevance)
	if len(relevant) > limit {
		relevant = relevant[:limit]
	}

	c.logger.Info("articles fetched",
		"topic", q.Topic,
		"attempt", q.Attempt,
		"received", len(resp.Data),
		"relevant", len(relevant))
	return relevant, nil
}

func (c *Client) convert(items []apiArticle) []domain.Article {
	out := make([]domain.Article, 0, len(items))
	for _, item := range items {
		if strings.TrimSpace(item.Description) == "" && strings.TrimSpace(item.Snippet) == "" {
			continue
		}
		if item.URL == "" {
			continue
		}

		description := c.sanitize(item.Description)
		snippet := c.sanitize(item.Snippet)
		if description == "" {
			description = snippet
		}
		content := snippet
		if content == "" {
			content = description
		}

		published, err := time.Parse(time.RFC3339Nano, item.PublishedAt)
		if err != nil {
			published = time.Time{}
		}

		source := item.Source
		if source == "" {
			source = "Unknown"
		}

		out = append(out, domain.Article{
			Title:       c.sanitize(item.Title),
			URL:         item.URL,
			Source:      source,
			PublishedAt: published.UTC(),
			Description: description,
			RawContent:  content,
			ImageURL:    item.ImageURL,
		})
	}
	return out
}

// enrich replaces short or paywalled content with extracted full text. Extraction
// failures keep the provider snippet.
func (c *Client) enrich(ctx context.Context, articles []domain.Article) {
	if c.extractor == nil {
		return
	}

	var g errgroup.Group
	g.SetLimit(3)
	for i := range articles {
		content := articles[i].RawContent
		if utf8.RuneCountInString(content) > enrichBelow && !strings.Contains(content, paywallMarker) {
			continue
		}
		g.Go(func() error {
			text, err := c.extractor.Extract(ctx, articles[i].URL)
			if err != nil {
				c.logger.Debug("extraction failed", "url", articles[i].URL, "error", err)
				return nil
			}
			articles[i].RawContent = text
			return nil
		})
	}
	_ = g.Wait()
}

func (c *Client) sanitize(s string) string {
	return strings.Join(strings.Fields(html.UnescapeString(c.policy.Sanitize(s))), " ")
}

// get performs a paced GET with exponential backoff on rate limiting and 5xx.
func (c *Client) get(ctx context.Context, path string, params url.Values) (apiResponse, error) {
	params.Set("api_token", c.token)
	endpoint := c.baseURL + path + "?" + params.Encode()

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = c.initialBackoff
	bo.MaxInterval = 30 * c.initialBackoff

	op := func() (apiResponse, error) {
		if err := c.limiter.Wait(ctx); err != nil {
			return apiResponse{}, backoff.Permanent(fmt.Errorf("wait for rate limiter: %w", err))
		}
		return c.do(ctx, endpoint)
	}

	resp, err := backoff.Retry(ctx, op,
		backoff.WithBackOff(bo),
		backoff.WithMaxTries(uint(c.maxRetries+1)))
	if err != nil {
		return apiResponse{}, err
	}
	return resp, nil
}

func (c *Client) do(ctx context.Context, endpoint string) (apiResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return apiResponse{}, backoff.Permanent(fmt.Errorf("build request: %w", err))
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		metrics.RecordUpstream("newsapi", "transport_error")
		if ctxErr := ctx.Err(); ctxErr != nil {
			return apiResponse{}, backoff.Permanent(ctxErr)
		}
		return apiResponse{}, fmt.Errorf("%w: %v", ports.ErrUnavailable, err)
	}
	defer resp.Body.Close()
	metrics.RecordUpstream("newsapi", strconv.Itoa(resp.StatusCode))

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		c.logger.Warn("news source rate limited", "status", resp.Status)
		return apiResponse{}, fmt.Errorf("%w: %s", ports.ErrRateLimited, resp.Status)
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		c.logger.Error("news source rejected credentials", "status", resp.Status)
		return apiResponse{}, backoff.Permanent(fmt.Errorf("%w: credentials rejected: %s", ports.ErrUnavailable, resp.Status))
	case resp.StatusCode >= http.StatusInternalServerError:
		return apiResponse{}, fmt.Errorf("%w: %s", ports.ErrUnavailable, resp.Status)
	case resp.StatusCode >= http.StatusBadRequest:
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return apiResponse{}, backoff.Permanent(fmt.Errorf("%w: %s: %s", ports.ErrBadRequest, resp.Status, strings.TrimSpace(string(detail))))
	}

	var out apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return apiResponse{}, fmt.Errorf("%w: decode response: %v", ports.ErrUnavailable, err)
	}
	if out.Error != nil {
		return apiResponse{}, backoff.Permanent(fmt.Errorf("%w: %s: %s", payloadError(out.Error.Code), out.Error.Code, out.Error.Message))
	}
	return out, nil
}

// payloadError classifies an error code reported in a response body. Account
// problems are the server's, not the caller's.
func payloadError(code string) error {
	switch code {
	case "invalid_api_token", "endpoint_access_restricted", "usage_limit_reached":
		return ports.ErrUnavailable
	case "rate_limit_reached":
		return ports.ErrRateLimited
	default:
		return ports.ErrBadRequest
	}
}
