package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"NewsDigest/internal/cache"
	"NewsDigest/internal/domain"
	"NewsDigest/internal/ports"
)

// ErrTrendingUnavailable is returned when no trending source is configured.
var ErrTrendingUnavailable = errors.New("trending source not configured")

// TopicRequest is what a caller asks a digest for.
type TopicRequest struct {
	Topic       string `json:"topic"`
	MaxArticles int    `json:"max_articles"`
	Language    string `json:"language"`
	Category    string `json:"category,omitempty"`
}

// Query converts the request into a normalized workflow query.
func (r TopicRequest) Query() domain.Query {
	return domain.Query{
		Topic:       r.Topic,
		MaxArticles: r.MaxArticles,
		Language:    r.Language,
		Category:    r.Category,
	}.Normalize()
}

// CachedTopic describes one live cache entry.
type CachedTopic struct {
	Key       string    `json:"key"`
	Topic     string    `json:"topic"`
	Articles  int       `json:"articles"`
	Partial   bool      `json:"partial"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Status summarizes the service configuration and cache occupancy.
type Status struct {
	CacheEntries           int           `json:"cache_entries"`
	CacheTTL               time.Duration `json:"cache_ttl"`
	MaxEnhanceAttempts     int           `json:"max_enhance_attempts"`
	MaxConcurrentSummaries int           `json:"max_concurrent_summaries"`
	MaxArticlesLimit       int           `json:"max_articles_limit"`
	TrendingEnabled        bool          `json:"trending_enabled"`
	Uptime                 time.Duration `json:"uptime"`
}

// SearchDefaults are filters every initial query starts with. The enhancer may
// relax them on later attempts.
type SearchDefaults struct {
	// WindowDays bounds results to the last N days; zero searches without a window.
	WindowDays       int
	MinContentLength int
}

// ServiceDeps wires the topic service.
type ServiceDeps struct {
	Engine   *Engine
	Cache    *cache.Store
	Trending ports.TrendingSource
	Search   SearchDefaults
	Logger   *slog.Logger
	Clock    func() time.Time
}

// TopicService is the request-facing entry point of the core.
type TopicService struct {
	engine   *Engine
	cache    *cache.Store
	trending ports.TrendingSource
	search   SearchDefaults
	logger   *slog.Logger
	now      func() time.Time
	started  time.Time
}

// NewTopicService constructs the service; a nil cache uses an in-memory store.
func NewTopicService(deps ServiceDeps) *TopicService {
	if deps.Clock == nil {
		deps.Clock = time.Now
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Cache == nil {
		deps.Cache = cache.NewStore(nil, cache.Options{Clock: deps.Clock, Logger: deps.Logger})
	}
	return &TopicService{
		engine:   deps.Engine,
		cache:    deps.Cache,
		trending: deps.Trending,
		search:   deps.Search,
		logger:   deps.Logger.With("component", "topic_service"),
		now:      deps.Clock,
		started:  deps.Clock(),
	}
}

// SummarizeTopic returns the cached digest for the request or runs the workflow.
func (s *TopicService) SummarizeTopic(ctx context.Context, req TopicRequest) (*domain.Digest, error) {
	q := s.query(req)
	key := cache.Key(q)

	value, outcome, err := s.cache.Resolve(ctx, key, func(ctx context.Context) (domain.Digest, error) {
		d, err := s.engine.Run(ctx, q)
		if err != nil {
			return domain.Digest{}, err
		}
		return *d, nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("topic digest served", "topic", q.Topic, "key", key, "cache", outcome, "partial", value.Partial)
	return &value, nil
}

// RefreshTopic drops any cached digest for the request and computes a fresh one.
func (s *TopicService) RefreshTopic(ctx context.Context, req TopicRequest) (*domain.Digest, error) {
	key := cache.Key(s.query(req))
	if err := s.cache.Invalidate(ctx, key); err != nil {
		s.logger.Warn("cache degraded, refresh continues", "key", key, "error", err)
	}
	return s.SummarizeTopic(ctx, req)
}

// query applies the configured search filters. They stay out of the cache key.
func (s *TopicService) query(req TopicRequest) domain.Query {
	q := req.Query()
	q.WindowDays = max(s.search.WindowDays, 0)
	q.MinContentLength = max(s.search.MinContentLength, 0)
	return q
}

// InvalidateCache removes one key, or every entry when key is empty.
func (s *TopicService) InvalidateCache(ctx context.Context, key string) error {
	if key == "" {
		if err := s.cache.InvalidateAll(ctx); err != nil {
			return fmt.Errorf("invalidate cache: %w", err)
		}
		s.logger.Info("cache cleared")
		return nil
	}
	if err := s.cache.Invalidate(ctx, key); err != nil {
		return fmt.Errorf("invalidate cache key %s: %w", key, err)
	}
	s.logger.Info("cache entry invalidated", "key", key)
	return nil
}

// CachedTopics lists live cache entries, newest first.
func (s *TopicService) CachedTopics(ctx context.Context) ([]CachedTopic, error) {
	entries, err := s.cache.Entries(ctx)
	if err != nil {
		return nil, fmt.Errorf("list cached topics: %w", err)
	}

	topics := make([]CachedTopic, 0, len(entries))
	for _, entry := range entries {
		topics = append(topics, CachedTopic{
			Key:       entry.Key,
			Topic:     entry.Value.Topic,
			Articles:  len(entry.Value.Summaries),
			Partial:   entry.Value.Partial,
			CreatedAt: entry.CreatedAt,
			ExpiresAt: entry.ExpiresAt(),
		})
	}
	return topics, nil
}

// Trending lists the topics dominating the latest headlines.
func (s *TopicService) Trending(ctx context.Context, language string) ([]domain.TrendingTopic, error) {
	if s.trending == nil {
		return nil, ErrTrendingUnavailable
	}
	if language == "" {
		language = domain.DefaultLanguage
	}
	topics, err := s.trending.Trending(ctx, language)
	if err != nil {
		return nil, fmt.Errorf("load trending topics: %w", err)
	}
	return topics, nil
}

// Status reports limits and cache occupancy. A degraded cache reports zero entries.
func (s *TopicService) Status(ctx context.Context) Status {
	entries, err := s.cache.Entries(ctx)
	if err != nil {
		s.logger.Warn("cache degraded, status without entries", "error", err)
	}
	policy := s.engine.Policy()
	return Status{
		CacheEntries:           len(entries),
		CacheTTL:               s.cache.TTL(),
		MaxEnhanceAttempts:     policy.MaxEnhanceAttempts,
		MaxConcurrentSummaries: policy.MaxConcurrentSummaries,
		MaxArticlesLimit:       policy.MaxArticlesLimit,
		TrendingEnabled:        s.trending != nil,
		Uptime:                 s.now().Sub(s.started),
	}
}
