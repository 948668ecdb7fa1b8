package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"NewsDigest/internal/domain"
	"NewsDigest/internal/ports"
)

func newTestEngine(source ports.NewsSource, summarizer ports.Summarizer, policy Policy) *Engine {
	return NewEngine(EngineDeps{
		Source:     source,
		Summarizer: summarizer,
		Policy:     policy,
		Clock:      func() time.Time { return baseTime },
	})
}

func traceStates(trace []domain.TraceStep) []string {
	out := make([]string, 0, len(trace))
	for _, step := range trace {
		out = append(out, step.State)
	}
	return out
}

func TestRunBroadensWhenTooFewArticles(t *testing.T) {
	t.Parallel()

	source := &fakeSource{byAttempt: map[int][]domain.Article{
		0: makeArticles("tech", 2, 2),
		1: makeArticles("tech", 6, 3),
	}}
	summarizer := &fakeSummarizer{}
	engine := newTestEngine(source, summarizer, Policy{})

	d, err := engine.Run(context.Background(), domain.Query{Topic: "technology", MaxArticles: 5, Language: "en"})
	require.NoError(t, err)

	assert.Equal(t, 2, source.Calls())
	assert.LessOrEqual(t, len(d.Summaries), 5)
	assert.Len(t, d.Summaries, 5)
	assert.False(t, d.Partial)
	assert.NotEmpty(t, d.Overview)
	assert.NotEmpty(t, d.RunID)
	assert.Equal(t, "technology", d.Topic)
	assert.Equal(t, 1, d.Metadata.EnhancementAttempts)
	assert.True(t, d.Metadata.Quality.Passed)
	assert.Equal(t, []string{"source-0", "source-1", "source-2"}, d.Metadata.Sources)

	assert.Equal(t, []string{
		StateValidate, StateFetch, StateQualityCheck, StateEnhance,
		StateFetch, StateQualityCheck, StateSummarize, StateDigest, StateFormat, StateDone,
	}, traceStates(d.Trace))

	// Most recent articles are kept when the set exceeds MaxArticles.
	assert.Equal(t, "tech story 0", d.Summaries[0].Article.Title)
	assert.Equal(t, "tech story 4", d.Summaries[4].Article.Title)
}

func TestRunPartialTolerance(t *testing.T) {
	t.Parallel()

	source := &fakeSource{fallback: makeArticles("tech", 5, 3)}
	summarizer := &fakeSummarizer{fail: func(text string) error {
		if strings.Contains(text, "tech content 2 ") {
			return ports.ErrModelUnavailable
		}
		return nil
	}}
	engine := newTestEngine(source, summarizer, Policy{})

	d, err := engine.Run(context.Background(), domain.Query{Topic: "technology", MaxArticles: 5})
	require.NoError(t, err)

	require.Len(t, d.Summaries, 5)
	ok, failed := 0, 0
	for _, s := range d.Summaries {
		switch s.Status {
		case domain.SummaryOK:
			ok++
			require.NotNil(t, s.SummaryText)
			assert.Greater(t, s.CompressionRatio, 0.0)
		case domain.SummaryFailed:
			failed++
			assert.Nil(t, s.SummaryText)
			assert.Equal(t, "tech story 2", s.Article.Title)
			assert.Contains(t, s.Error, ports.ErrModelUnavailable.Error())
		}
	}
	assert.Equal(t, 4, ok)
	assert.Equal(t, 1, failed)
	assert.True(t, d.Partial)
	assert.Equal(t, 1, d.Metadata.FailedSummaries)
	assert.NotEmpty(t, d.Overview)
}

func TestRunAllSummariesFailed(t *testing.T) {
	t.Parallel()

	source := &fakeSource{fallback: makeArticles("tech", 4, 2)}
	summarizer := &fakeSummarizer{fail: func(string) error { return ports.ErrModelUnavailable }}
	engine := newTestEngine(source, summarizer, Policy{})

	d, err := engine.Run(context.Background(), domain.Query{Topic: "technology", MaxArticles: 5})
	require.NoError(t, err)

	assert.Len(t, d.Summaries, 4)
	assert.Empty(t, d.Overview)
	assert.True(t, d.Partial)
	assert.Equal(t, 4, summarizer.Calls(), "no overview call without successful summaries")
}

func TestRunOverviewFailureMarksPartial(t *testing.T) {
	t.Parallel()

	source := &fakeSource{fallback: makeArticles("tech", 3, 3)}
	summarizer := &fakeSummarizer{fail: func(text string) error {
		if strings.HasPrefix(text, "summary: ") {
			return ports.ErrModelUnavailable
		}
		return nil
	}}
	engine := newTestEngine(source, summarizer, Policy{})

	d, err := engine.Run(context.Background(), domain.Query{Topic: "technology", MaxArticles: 5})
	require.NoError(t, err)

	assert.Empty(t, d.Overview)
	assert.True(t, d.Partial)
	assert.Zero(t, d.Metadata.FailedSummaries)
}

func TestRunBadRequestIsValidationError(t *testing.T) {
	t.Parallel()

	source := &fakeSource{err: fmt.Errorf("status 422: %w", ports.ErrBadRequest)}
	summarizer := &fakeSummarizer{}
	engine := newTestEngine(source, summarizer, Policy{})

	d, err := engine.Run(context.Background(), domain.Query{Topic: "technology", MaxArticles: 5})
	require.Error(t, err)
	assert.Nil(t, d)
	assert.ErrorIs(t, err, ErrValidation)
	assert.ErrorIs(t, err, ports.ErrBadRequest)
	assert.NotErrorIs(t, err, ErrUpstreamFetch)
	assert.Zero(t, summarizer.Calls())

	var wfErr *WorkflowError
	require.ErrorAs(t, err, &wfErr)
	assert.Equal(t, StateFetch, wfErr.State)
	assert.Equal(t, []string{StateValidate, StateFailed}, traceStates(wfErr.Trace))
}

func TestRunUpstreamFailure(t *testing.T) {
	t.Parallel()

	for _, cause := range []error{ports.ErrUnavailable, ports.ErrRateLimited} {
		source := &fakeSource{err: fmt.Errorf("after 3 attempts: %w", cause)}
		summarizer := &fakeSummarizer{}
		engine := newTestEngine(source, summarizer, Policy{})

		_, err := engine.Run(context.Background(), domain.Query{Topic: "technology", MaxArticles: 5})
		assert.ErrorIs(t, err, ErrUpstreamFetch)
		assert.ErrorIs(t, err, cause)
		assert.Zero(t, summarizer.Calls())
	}
}

func TestRunRejectsMalformedQueries(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		query domain.Query
	}{
		{name: "empty topic", query: domain.Query{Topic: "   ", MaxArticles: 5}},
		{name: "one rune topic", query: domain.Query{Topic: "a", MaxArticles: 5}},
		{name: "zero max articles", query: domain.Query{Topic: "go", MaxArticles: 0}},
		{name: "negative max articles", query: domain.Query{Topic: "go", MaxArticles: -1}},
		{name: "max articles above limit", query: domain.Query{Topic: "go", MaxArticles: 101}},
		{name: "bad language", query: domain.Query{Topic: "go", MaxArticles: 5, Language: "eng"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			source := &fakeSource{}
			engine := newTestEngine(source, &fakeSummarizer{}, Policy{})

			_, err := engine.Run(context.Background(), tt.query)
			require.ErrorIs(t, err, ErrValidation)

			var wfErr *WorkflowError
			require.ErrorAs(t, err, &wfErr)
			assert.Equal(t, StateValidate, wfErr.State)
			assert.Zero(t, source.Calls())
		})
	}
}

func TestRunTerminatesAfterMaxEnhancements(t *testing.T) {
	t.Parallel()

	for _, attempts := range []int{1, 2, 4} {
		t.Run(fmt.Sprintf("max=%d", attempts), func(t *testing.T) {
			t.Parallel()

			source := &fakeSource{fallback: makeArticles("tech", 1, 1)}
			engine := newTestEngine(source, &fakeSummarizer{}, Policy{MaxEnhanceAttempts: attempts})

			d, err := engine.Run(context.Background(), domain.Query{Topic: "latest technology news", MaxArticles: 5})
			require.NoError(t, err)

			assert.Equal(t, attempts+1, source.Calls())
			assert.Equal(t, attempts, d.Metadata.EnhancementAttempts)
			assert.True(t, d.Partial)
			assert.False(t, d.Metadata.Quality.Passed)

			enhances := 0
			for _, state := range traceStates(d.Trace) {
				if state == StateEnhance {
					enhances++
				}
			}
			assert.Equal(t, attempts, enhances)
		})
	}
}

func TestRunDegradedUsesBestArticleSet(t *testing.T) {
	t.Parallel()

	source := &fakeSource{byAttempt: map[int][]domain.Article{
		0: makeArticles("first", 2, 1),
		1: makeArticles("second", 2, 2),
		2: makeArticles("third", 1, 1),
	}}
	engine := newTestEngine(source, &fakeSummarizer{}, Policy{MaxEnhanceAttempts: 2})

	d, err := engine.Run(context.Background(), domain.Query{Topic: "technology", MaxArticles: 5})
	require.NoError(t, err)

	assert.Equal(t, 3, source.Calls())
	assert.True(t, d.Partial)
	require.Len(t, d.Summaries, 2)
	for _, s := range d.Summaries {
		assert.True(t, strings.HasPrefix(s.Article.Title, "second"), s.Article.Title)
	}
	assert.Equal(t, 2, d.Metadata.Quality.Metrics.DistinctSources)
}

func TestRunDegradedReportsTopicOfChosenSet(t *testing.T) {
	t.Parallel()

	source := &fakeSource{byAttempt: map[int][]domain.Article{
		0: makeArticles("first", 1, 1),
		1: makeArticles("second", 2, 2),
		2: makeArticles("third", 1, 1),
	}}
	engine := newTestEngine(source, &fakeSummarizer{}, Policy{MaxEnhanceAttempts: 2})

	d, err := engine.Run(context.Background(), domain.Query{Topic: "latest go compiler news", MaxArticles: 5})
	require.NoError(t, err)

	require.Len(t, source.queries, 3)
	assert.Equal(t, "go compiler", source.queries[1].Topic)
	assert.Equal(t, "go", source.queries[2].Topic)
	assert.True(t, d.Partial)
	assert.Equal(t, "go compiler", d.Metadata.FinalTopic)
}

func TestRunLowDensityDropsContentFilter(t *testing.T) {
	t.Parallel()

	short := make([]domain.Article, 0, 3)
	for i := range 3 {
		short = append(short, domain.Article{
			Title:       fmt.Sprintf("brief %d", i),
			URL:         fmt.Sprintf("https://src%d.example.com/brief", i),
			Source:      fmt.Sprintf("source-%d", i),
			PublishedAt: baseTime,
			RawContent:  "too short to matter",
		})
	}
	source := &fakeSource{byAttempt: map[int][]domain.Article{0: short}, fallback: makeArticles("full", 4, 3)}
	engine := newTestEngine(source, &fakeSummarizer{}, Policy{MaxEnhanceAttempts: 2})

	d, err := engine.Run(context.Background(), domain.Query{Topic: "golang", MaxArticles: 5, MinContentLength: 150})
	require.NoError(t, err)

	require.Len(t, source.queries, 2)
	assert.Equal(t, 150, source.queries[0].MinContentLength)
	assert.Zero(t, source.queries[1].MinContentLength)
	assert.False(t, d.Partial)
}

func TestRunQueriesNeverRepeat(t *testing.T) {
	t.Parallel()

	source := &fakeSource{fallback: nil}
	engine := newTestEngine(source, &fakeSummarizer{}, Policy{MaxEnhanceAttempts: 3})

	d, err := engine.Run(context.Background(), domain.Query{Topic: "breaking technology news 2025", MaxArticles: 5, WindowDays: 7})
	require.NoError(t, err)
	assert.Empty(t, d.Summaries)
	assert.True(t, d.Partial)

	for i := 1; i < len(source.queries); i++ {
		assert.False(t, source.queries[i].Equal(source.queries[i-1]))
		assert.Equal(t, i, source.queries[i].Attempt)
	}
}

func TestRunDeduplicatesFetchedArticles(t *testing.T) {
	t.Parallel()

	articles := makeArticles("tech", 4, 2)
	articles = append(articles, articles[0], articles[1])
	source := &fakeSource{fallback: articles}
	engine := newTestEngine(source, &fakeSummarizer{}, Policy{})

	d, err := engine.Run(context.Background(), domain.Query{Topic: "technology", MaxArticles: 10})
	require.NoError(t, err)
	assert.Len(t, d.Summaries, 4)
}

func TestRunBoundsConcurrentSummaries(t *testing.T) {
	t.Parallel()

	source := &fakeSource{fallback: makeArticles("tech", 10, 5)}
	summarizer := &fakeSummarizer{delay: 5 * time.Millisecond}
	engine := newTestEngine(source, summarizer, Policy{MaxConcurrentSummaries: 2})

	var wg sync.WaitGroup
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := engine.Run(context.Background(), domain.Query{Topic: "technology", MaxArticles: 10})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, 3*11, summarizer.Calls())
	assert.LessOrEqual(t, summarizer.MaxInFlight(), 2)
	assert.GreaterOrEqual(t, summarizer.MaxInFlight(), 1)
}

func TestRunTruncatesSummarizerInput(t *testing.T) {
	t.Parallel()

	source := &fakeSource{fallback: makeArticles("tech", 3, 3)}
	summarizer := &fakeSummarizer{}
	engine := newTestEngine(source, summarizer, Policy{MaxInputChars: 50})

	_, err := engine.Run(context.Background(), domain.Query{Topic: "technology", MaxArticles: 5})
	require.NoError(t, err)

	for _, input := range summarizer.Inputs() {
		assert.LessOrEqual(t, utf8.RuneCountInString(input), 50)
		if !strings.HasPrefix(input, "summary: ") {
			assert.True(t, strings.HasSuffix(input, "tech"), "cut on a word boundary: %q", input)
		}
	}
}

func TestRunRetriesWithHalfInputWhenTooLong(t *testing.T) {
	t.Parallel()

	source := &fakeSource{fallback: makeArticles("tech", 3, 3)}
	summarizer := &fakeSummarizer{fail: func(text string) error {
		if utf8.RuneCountInString(text) > 120 {
			return ports.ErrInputTooLong
		}
		return nil
	}}
	engine := newTestEngine(source, summarizer, Policy{MaxInputChars: 200})

	d, err := engine.Run(context.Background(), domain.Query{Topic: "technology", MaxArticles: 5})
	require.NoError(t, err)

	for _, s := range d.Summaries {
		assert.Equal(t, domain.SummaryOK, s.Status)
	}
	// Each article needs two calls: the full budget fails, the halved one succeeds.
	assert.GreaterOrEqual(t, summarizer.Calls(), 6)
}

func TestRunCancelledBeforeStart(t *testing.T) {
	t.Parallel()

	source := &fakeSource{fallback: makeArticles("tech", 3, 3)}
	engine := newTestEngine(source, &fakeSummarizer{}, Policy{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := engine.Run(ctx, domain.Query{Topic: "technology", MaxArticles: 5})
	require.ErrorIs(t, err, context.Canceled)
	assert.False(t, errors.Is(err, ErrValidation))
	assert.Zero(t, source.Calls())
}

func TestSummaryLengthIsMonotone(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 150, SummaryLength(1))
	assert.Equal(t, 150, SummaryLength(10))
	assert.Equal(t, 130, SummaryLength(11))
	assert.Equal(t, 130, SummaryLength(15))
	assert.Equal(t, 100, SummaryLength(16))
	assert.Equal(t, 100, SummaryLength(100))

	prev := SummaryLength(0)
	for n := 1; n <= 50; n++ {
		assert.LessOrEqual(t, SummaryLength(n), prev)
		prev = SummaryLength(n)
	}

	assert.Equal(t, 210, OverviewLength(1))
	assert.Equal(t, 300, OverviewLength(10))
	assert.Equal(t, 300, OverviewLength(40))
}

func TestTruncateWords(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "short", truncateWords("short", 10))
	assert.Equal(t, "hello", truncateWords("hello world", 8))
	assert.Equal(t, "helloworld", truncateWords("helloworldagain", 10))
	assert.Equal(t, "привет", truncateWords("привет мир", 8))
}
