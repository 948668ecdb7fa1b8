package usecase

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"NewsDigest/internal/domain"
)

var baseTime = time.Date(2025, time.November, 8, 12, 0, 0, 0, time.UTC)

type fakeSource struct {
	mu      sync.Mutex
	calls   int
	queries []domain.Query

	byAttempt map[int][]domain.Article
	fallback  []domain.Article
	err       error
	hook      func(ctx context.Context, q domain.Query) error
}

func (f *fakeSource) Fetch(ctx context.Context, q domain.Query) ([]domain.Article, error) {
	f.mu.Lock()
	f.calls++
	f.queries = append(f.queries, q)
	hook := f.hook
	f.mu.Unlock()

	if hook != nil {
		if err := hook(ctx, q); err != nil {
			return nil, err
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	if articles, ok := f.byAttempt[q.Attempt]; ok {
		return slices.Clone(articles), nil
	}
	return slices.Clone(f.fallback), nil
}

func (f *fakeSource) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeSummarizer struct {
	mu          sync.Mutex
	calls       int
	inputs      []string
	inFlight    int
	maxInFlight int

	delay time.Duration
	fail  func(text string) error
}

func (f *fakeSummarizer) Summarize(_ context.Context, text string, maxLen int) (string, error) {
	f.mu.Lock()
	f.calls++
	f.inputs = append(f.inputs, text)
	f.inFlight++
	f.maxInFlight = max(f.maxInFlight, f.inFlight)
	f.mu.Unlock()

	defer func() {
		f.mu.Lock()
		f.inFlight--
		f.mu.Unlock()
	}()

	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	if f.fail != nil {
		if err := f.fail(text); err != nil {
			return "", err
		}
	}

	runes := []rune(text)
	n := min(len(runes), 40, maxLen)
	return "summary: " + string(runes[:n]), nil
}

func (f *fakeSummarizer) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func (f *fakeSummarizer) MaxInFlight() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.maxInFlight
}

func (f *fakeSummarizer) Inputs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.inputs)
}

// makeArticles returns n articles with long content spread over the given number of sources.
func makeArticles(prefix string, n, sources int) []domain.Article {
	out := make([]domain.Article, 0, n)
	for i := 0; i < n; i++ {
		src := i % sources
		out = append(out, domain.Article{
			Title:       fmt.Sprintf("%s story %d", prefix, i),
			URL:         fmt.Sprintf("https://src%d.example.com/%s/%d", src, prefix, i),
			Source:      fmt.Sprintf("source-%d", src),
			PublishedAt: baseTime.Add(-time.Duration(i) * time.Hour),
			RawContent:  strings.Repeat(fmt.Sprintf("%s content %d ", prefix, i), 30),
		})
	}
	return out
}

type fakeScheduler struct {
	job     func(time.Time)
	stopped bool
}

func (f *fakeScheduler) Start(_ context.Context, job func(time.Time)) error {
	f.job = job
	return nil
}

func (f *fakeScheduler) Stop(context.Context) error {
	f.stopped = true
	return nil
}

type fakeNotifier struct {
	mu       sync.Mutex
	messages []string
	err      error
}

func (f *fakeNotifier) PublishDigest(_ context.Context, digest string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.messages = append(f.messages, digest)
	return nil
}

type fakeTrending struct {
	topics []domain.TrendingTopic
	lang   string
}

func (f *fakeTrending) Trending(_ context.Context, language string) ([]domain.TrendingTopic, error) {
	f.lang = language
	return f.topics, nil
}
