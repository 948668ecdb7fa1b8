package ports

import (
	"context"
	"errors"
	"time"

	"NewsDigest/internal/domain"
)

// Errors returned by NewsSource implementations. Wrap them with %w.
var (
	ErrRateLimited = errors.New("news source rate limited")
	ErrUnavailable = errors.New("news source unavailable")
	ErrBadRequest  = errors.New("news source rejected request")
)

// Errors returned by Summarizer implementations.
var (
	ErrInputTooLong     = errors.New("summarizer input too long")
	ErrModelUnavailable = errors.New("summarizer model unavailable")
)

// NewsSource returns candidate articles for a query. Implementations apply their own
// retry policy before returning ErrRateLimited or ErrUnavailable.
type NewsSource interface {
	Fetch(ctx context.Context, query domain.Query) ([]domain.Article, error)
}

// TrendingSource lists topics that dominate the latest headlines.
type TrendingSource interface {
	Trending(ctx context.Context, language string) ([]domain.TrendingTopic, error)
}

// Summarizer shortens text to at most maxLen characters.
type Summarizer interface {
	Summarize(ctx context.Context, text string, maxLen int) (string, error)
}

// ContentExtractor downloads the full text behind an article URL.
type ContentExtractor interface {
	Extract(ctx context.Context, url string) (string, error)
}

// CacheBackend is the durable medium behind the cache store.
type CacheBackend interface {
	Load(ctx context.Context, key string) (domain.CacheEntry, bool, error)
	Save(ctx context.Context, entry domain.CacheEntry) error
	Delete(ctx context.Context, key string) error
	DeleteAll(ctx context.Context) error
	List(ctx context.Context) ([]domain.CacheEntry, error)
}

// Notifier streams formatted digests to Telegram or other channels.
type Notifier interface {
	PublishDigest(ctx context.Context, digest string) error
}

// Scheduler controls when recurring jobs execute.
type Scheduler interface {
	Start(ctx context.Context, job func(time.Time)) error
	Stop(ctx context.Context) error
}
