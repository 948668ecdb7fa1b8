package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"NewsDigest/internal/cache"
	"NewsDigest/internal/domain"
	"NewsDigest/internal/ports"
)

func newTestService(source *fakeSource, summarizer *fakeSummarizer) (*TopicService, *cache.Store) {
	store := cache.NewStore(nil, cache.Options{TTL: time.Hour})
	engine := NewEngine(EngineDeps{Source: source, Summarizer: summarizer})
	return NewTopicService(ServiceDeps{Engine: engine, Cache: store}), store
}

func TestSummarizeTopicIsIdempotentWithinTTL(t *testing.T) {
	t.Parallel()

	source := &fakeSource{fallback: makeArticles("tech", 5, 3)}
	summarizer := &fakeSummarizer{}
	service, _ := newTestService(source, summarizer)
	req := TopicRequest{Topic: "Technology", MaxArticles: 5, Language: "en"}

	first, err := service.SummarizeTopic(context.Background(), req)
	require.NoError(t, err)
	fetches, summaries := source.Calls(), summarizer.Calls()

	second, err := service.SummarizeTopic(context.Background(), TopicRequest{Topic: "  technology ", MaxArticles: 5})
	require.NoError(t, err)

	assert.Equal(t, fetches, source.Calls())
	assert.Equal(t, summaries, summarizer.Calls())

	firstJSON, err := json.Marshal(first)
	require.NoError(t, err)
	secondJSON, err := json.Marshal(second)
	require.NoError(t, err)
	assert.Equal(t, string(firstJSON), string(secondJSON))
}

func TestSummarizeTopicServesStoredDigest(t *testing.T) {
	t.Parallel()

	source := &fakeSource{fallback: makeArticles("tech", 5, 3)}
	summarizer := &fakeSummarizer{}
	service, store := newTestService(source, summarizer)
	req := TopicRequest{Topic: "technology", MaxArticles: 5, Language: "en"}

	stored := domain.Digest{RunID: "stored", Topic: "technology", Overview: "from cache"}
	require.NoError(t, store.Put(context.Background(), cache.Key(req.Query()), stored, 0))

	d, err := service.SummarizeTopic(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "stored", d.RunID)
	assert.Equal(t, "from cache", d.Overview)
	assert.Zero(t, source.Calls())
	assert.Zero(t, summarizer.Calls())
}

func TestSummarizeTopicConcurrentRequestsShareOneRun(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	source := &fakeSource{
		fallback: makeArticles("tech", 5, 3),
		hook: func(ctx context.Context, _ domain.Query) error {
			select {
			case <-release:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		},
	}
	summarizer := &fakeSummarizer{}
	service, _ := newTestService(source, summarizer)
	req := TopicRequest{Topic: "technology", MaxArticles: 5}

	const callers = 10
	results := make([]*domain.Digest, callers)
	errs := make([]error, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = service.SummarizeTopic(context.Background(), req)
		}(i)
	}

	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, 1, source.Calls())
	assert.Equal(t, 6, summarizer.Calls(), "five articles and one overview")
	for i := 0; i < callers; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, results[0].RunID, results[i].RunID)
	}
}

func TestSummarizeTopicCancelledRunIsNotCached(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	source := &fakeSource{
		fallback: makeArticles("tech", 5, 3),
		hook: func(ctx context.Context, _ domain.Query) error {
			cancel()
			<-ctx.Done()
			return ctx.Err()
		},
	}
	summarizer := &fakeSummarizer{}
	service, store := newTestService(source, summarizer)

	_, err := service.SummarizeTopic(ctx, TopicRequest{Topic: "technology", MaxArticles: 5})
	require.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, summarizer.Calls())

	entries, err := store.Entries(context.Background())
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestSummarizeTopicFailuresAreNotCached(t *testing.T) {
	t.Parallel()

	source := &fakeSource{err: fmt.Errorf("status 400: %w", ports.ErrBadRequest)}
	summarizer := &fakeSummarizer{}
	service, store := newTestService(source, summarizer)
	req := TopicRequest{Topic: "technology", MaxArticles: 5}

	_, err := service.SummarizeTopic(context.Background(), req)
	require.ErrorIs(t, err, ErrValidation)
	_, err = service.SummarizeTopic(context.Background(), req)
	require.ErrorIs(t, err, ErrValidation)

	assert.Equal(t, 2, source.Calls())
	assert.Zero(t, summarizer.Calls())
	_, ok := store.Get(context.Background(), cache.Key(req.Query()))
	assert.False(t, ok)
}

func TestInvalidateCache(t *testing.T) {
	t.Parallel()

	source := &fakeSource{fallback: makeArticles("tech", 5, 3)}
	service, _ := newTestService(source, &fakeSummarizer{})
	ctx := context.Background()

	golang := TopicRequest{Topic: "golang", MaxArticles: 5}
	rust := TopicRequest{Topic: "rust", MaxArticles: 5}
	_, err := service.SummarizeTopic(ctx, golang)
	require.NoError(t, err)
	_, err = service.SummarizeTopic(ctx, rust)
	require.NoError(t, err)

	topics, err := service.CachedTopics(ctx)
	require.NoError(t, err)
	require.Len(t, topics, 2)

	require.NoError(t, service.InvalidateCache(ctx, cache.Key(golang.Query())))
	topics, err = service.CachedTopics(ctx)
	require.NoError(t, err)
	require.Len(t, topics, 1)
	assert.Equal(t, "rust", topics[0].Topic)
	assert.Equal(t, 5, topics[0].Articles)
	assert.Equal(t, topics[0].CreatedAt.Add(time.Hour), topics[0].ExpiresAt)

	_, err = service.SummarizeTopic(ctx, golang)
	require.NoError(t, err)
	assert.Equal(t, 3, source.Calls())

	require.NoError(t, service.InvalidateCache(ctx, ""))
	topics, err = service.CachedTopics(ctx)
	require.NoError(t, err)
	assert.Empty(t, topics)
}

func TestRefreshTopicRecomputes(t *testing.T) {
	t.Parallel()

	source := &fakeSource{fallback: makeArticles("tech", 5, 3)}
	service, _ := newTestService(source, &fakeSummarizer{})
	req := TopicRequest{Topic: "technology", MaxArticles: 5}

	first, err := service.SummarizeTopic(context.Background(), req)
	require.NoError(t, err)
	second, err := service.RefreshTopic(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, 2, source.Calls())
	assert.NotEqual(t, first.RunID, second.RunID)
}

func TestTrending(t *testing.T) {
	t.Parallel()

	service, _ := newTestService(&fakeSource{}, &fakeSummarizer{})
	_, err := service.Trending(context.Background(), "en")
	require.ErrorIs(t, err, ErrTrendingUnavailable)

	trending := &fakeTrending{topics: []domain.TrendingTopic{{Topic: "elections", Count: 4}}}
	service = NewTopicService(ServiceDeps{
		Engine:   NewEngine(EngineDeps{}),
		Trending: trending,
	})
	topics, err := service.Trending(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, "en", trending.lang)
	require.Len(t, topics, 1)
	assert.Equal(t, "elections", topics[0].Topic)
}

func TestStatus(t *testing.T) {
	t.Parallel()

	source := &fakeSource{fallback: makeArticles("tech", 5, 3)}
	service, _ := newTestService(source, &fakeSummarizer{})
	_, err := service.SummarizeTopic(context.Background(), TopicRequest{Topic: "technology", MaxArticles: 5})
	require.NoError(t, err)

	status := service.Status(context.Background())
	assert.Equal(t, 1, status.CacheEntries)
	assert.Equal(t, time.Hour, status.CacheTTL)
	assert.Equal(t, 2, status.MaxEnhanceAttempts)
	assert.Equal(t, 1, status.MaxConcurrentSummaries)
	assert.Equal(t, 100, status.MaxArticlesLimit)
	assert.False(t, status.TrendingEnabled)
}

func TestSummarizeTopicAppliesSearchDefaults(t *testing.T) {
	t.Parallel()

	source := &fakeSource{fallback: makeArticles("golang", 1, 1)}
	store := cache.NewStore(nil, cache.Options{TTL: time.Hour})
	engine := NewEngine(EngineDeps{Source: source, Summarizer: &fakeSummarizer{}, Policy: Policy{MaxEnhanceAttempts: 2}})
	service := NewTopicService(ServiceDeps{
		Engine: engine,
		Cache:  store,
		Search: SearchDefaults{WindowDays: 1, MinContentLength: 50},
	})
	req := TopicRequest{Topic: "golang", MaxArticles: 5}

	_, err := service.SummarizeTopic(context.Background(), req)
	require.NoError(t, err)

	source.mu.Lock()
	queries := slices.Clone(source.queries)
	source.mu.Unlock()
	require.Len(t, queries, 3)
	assert.Equal(t, 1, queries[0].WindowDays)
	assert.Equal(t, 50, queries[0].MinContentLength)
	assert.Equal(t, 2, queries[1].WindowDays, "too few articles widens the window")
	assert.Equal(t, 4, queries[2].WindowDays)

	_, ok := store.Get(context.Background(), cache.Key(req.Query()))
	assert.True(t, ok, "search filters do not change the cache key")
}
