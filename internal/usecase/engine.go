package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"slices"
	"sort"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"NewsDigest/internal/digest"
	"NewsDigest/internal/domain"
	"NewsDigest/internal/enhancer"
	"NewsDigest/internal/metrics"
	"NewsDigest/internal/ports"
	"NewsDigest/internal/quality"
)

const minTopicRunes = 2

var languagePattern = regexp.MustCompile(`^[a-z]{2}$`)

var errEmptySummary = errors.New("summarizer returned empty text")

// Policy holds the engine's tunable limits.
type Policy struct {
	MaxEnhanceAttempts     int `yaml:"maxEnhanceAttempts"`
	MaxArticlesLimit       int `yaml:"maxArticlesLimit"`
	MaxInputChars          int `yaml:"maxInputChars"`
	MaxConcurrentSummaries int `yaml:"maxConcurrentSummaries"`
}

// DefaultPolicy returns the stock limits.
func DefaultPolicy() Policy {
	return Policy{
		MaxEnhanceAttempts:     2,
		MaxArticlesLimit:       100,
		MaxInputChars:          4000,
		MaxConcurrentSummaries: 1,
	}
}

func (p Policy) withDefaults() Policy {
	def := DefaultPolicy()
	if p.MaxEnhanceAttempts <= 0 {
		p.MaxEnhanceAttempts = def.MaxEnhanceAttempts
	}
	if p.MaxArticlesLimit <= 0 {
		p.MaxArticlesLimit = def.MaxArticlesLimit
	}
	if p.MaxInputChars <= 0 {
		p.MaxInputChars = def.MaxInputChars
	}
	if p.MaxConcurrentSummaries <= 0 {
		p.MaxConcurrentSummaries = def.MaxConcurrentSummaries
	}
	return p
}

// EngineDeps wires the collaborators of the workflow engine.
type EngineDeps struct {
	Source     ports.NewsSource
	Summarizer ports.Summarizer
	Assessor   *quality.Assessor
	Enhancer   *enhancer.Enhancer
	Builder    *digest.Builder
	Policy     Policy
	Logger     *slog.Logger
	Clock      func() time.Time
}

// Engine runs the digest workflow state machine. It is safe for concurrent use;
// each Run owns its own state and only the summarizer gate is shared.
type Engine struct {
	source     ports.NewsSource
	summarizer ports.Summarizer
	assessor   *quality.Assessor
	enhancer   *enhancer.Enhancer
	builder    *digest.Builder
	policy     Policy
	gate       *semaphore.Weighted
	logger     *slog.Logger
	now        func() time.Time
}

type step func(ctx context.Context, st *workflowState) (next string, detail string, err error)

// NewEngine constructs the workflow engine. Non-positive policy fields take the defaults.
func NewEngine(deps EngineDeps) *Engine {
	policy := deps.Policy.withDefaults()
	if deps.Assessor == nil {
		deps.Assessor = quality.NewAssessor(quality.DefaultThresholds())
	}
	if deps.Enhancer == nil {
		deps.Enhancer = enhancer.New()
	}
	if deps.Clock == nil {
		deps.Clock = time.Now
	}
	if deps.Builder == nil {
		deps.Builder = digest.NewBuilder(deps.Clock)
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return &Engine{
		source:     deps.Source,
		summarizer: deps.Summarizer,
		assessor:   deps.Assessor,
		enhancer:   deps.Enhancer,
		builder:    deps.Builder,
		policy:     policy,
		gate:       semaphore.NewWeighted(int64(policy.MaxConcurrentSummaries)),
		logger:     deps.Logger.With("component", "workflow"),
		now:        deps.Clock,
	}
}

// Policy returns the effective limits.
func (e *Engine) Policy() Policy {
	return e.policy
}

// Run executes VALIDATE → FETCH → QUALITY_CHECK → (ENHANCE → FETCH)* → SUMMARIZE →
// DIGEST → FORMAT for one query. Only validation and upstream fetch failures are
// returned as errors; everything else yields a digest flagged Partial.
func (e *Engine) Run(ctx context.Context, query domain.Query) (*domain.Digest, error) {
	started := time.Now()
	st := &workflowState{
		runID:    uuid.NewString(),
		original: query.Normalize(),
		status:   statusRunning,
	}
	st.query = st.original
	logger := e.logger.With("run_id", st.runID, "topic", st.original.Topic)

	steps := map[string]step{
		StateValidate:     e.validate,
		StateFetch:        e.fetch,
		StateQualityCheck: e.checkQuality,
		StateEnhance:      e.enhance,
		StateSummarize:    e.summarizeArticles,
		StateDigest:       e.buildDigest,
		StateFormat:       e.format,
	}

	current := StateValidate
	for current != StateDone {
		if err := ctx.Err(); err != nil {
			return nil, e.fail(logger, st, current, err, started)
		}

		next, detail, err := steps[current](ctx, st)
		if err != nil {
			return nil, e.fail(logger, st, current, err, started)
		}
		e.record(st, current, detail)
		logger.Debug("workflow step", "state", current, "next", next, "detail", detail)
		current = next
	}

	st.status = statusDone
	e.record(st, StateDone, fmt.Sprintf("partial=%t", st.digest.Partial))
	st.digest.Trace = slices.Clone(st.trace)

	outcome := "ok"
	if st.digest.Partial {
		outcome = "partial"
	}
	metrics.RecordRun(outcome, time.Since(started).Seconds(), st.enhancementAttempts)
	logger.Info("workflow done",
		"articles", len(st.digest.Summaries),
		"partial", st.digest.Partial,
		"enhancements", st.enhancementAttempts,
		"duration", time.Since(started))

	return st.digest, nil
}

func (e *Engine) record(st *workflowState, state, detail string) {
	st.trace = append(st.trace, domain.TraceStep{State: state, At: e.now().UTC(), Detail: detail})
}

func (e *Engine) fail(logger *slog.Logger, st *workflowState, state string, err error, started time.Time) error {
	var wfErr *WorkflowError
	if !errors.As(err, &wfErr) {
		wfErr = &WorkflowError{Err: err}
	}
	wfErr.State = state

	st.status = statusFailed
	st.err = wfErr
	e.record(st, StateFailed, state+": "+err.Error())
	wfErr.Trace = slices.Clone(st.trace)

	metrics.RecordRun("failed", time.Since(started).Seconds(), st.enhancementAttempts)
	logger.Warn("workflow failed", "state", state, "error", err)
	return wfErr
}

// Validate checks a normalized query without running the workflow.
func (e *Engine) Validate(q domain.Query) error {
	if utf8.RuneCountInString(strings.TrimSpace(q.Topic)) < minTopicRunes {
		return validationError("topic must have at least %d characters", minTopicRunes)
	}
	if q.MaxArticles <= 0 {
		return validationError("max articles must be positive, got %d", q.MaxArticles)
	}
	if q.MaxArticles > e.policy.MaxArticlesLimit {
		return validationError("max articles must not exceed %d, got %d", e.policy.MaxArticlesLimit, q.MaxArticles)
	}
	if !languagePattern.MatchString(q.Language) {
		return validationError("language must be a two-letter code, got %q", q.Language)
	}
	if q.Attempt < 0 {
		return validationError("attempt must not be negative")
	}
	return nil
}

func (e *Engine) validate(_ context.Context, st *workflowState) (string, string, error) {
	if err := e.Validate(st.query); err != nil {
		return "", "", err
	}
	return StateFetch, fmt.Sprintf("max_articles=%d language=%s", st.query.MaxArticles, st.query.Language), nil
}

func (e *Engine) fetch(ctx context.Context, st *workflowState) (string, string, error) {
	if e.source == nil {
		return "", "", &WorkflowError{Kind: ErrUpstreamFetch, Err: errors.New("no news source configured")}
	}

	articles, err := e.source.Fetch(ctx, st.query)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", "", ctxErr
		}
		kind := ErrUpstreamFetch
		if errors.Is(err, ports.ErrBadRequest) {
			kind = ErrValidation
		}
		return "", "", &WorkflowError{Kind: kind, Err: fmt.Errorf("fetch articles: %w", err)}
	}

	st.articles = digest.DedupeArticles(articles)
	return StateQualityCheck, fmt.Sprintf("attempt=%d topic=%q fetched=%d unique=%d",
		st.query.Attempt, st.query.Topic, len(articles), len(st.articles)), nil
}

func (e *Engine) checkQuality(_ context.Context, st *workflowState) (string, string, error) {
	verdict := e.assessor.Assess(st.articles, st.query)
	st.quality = verdict
	st.consider(candidate{
		query:    st.query,
		articles: st.articles,
		verdict:  verdict,
		met:      e.assessor.MetCount(verdict, st.query),
		attempt:  st.enhancementAttempts,
	})

	detail := fmt.Sprintf("reason=%s count=%d avg_len=%.0f sources=%d",
		verdict.Reason, verdict.Metrics.Count, verdict.Metrics.AvgContentLength, verdict.Metrics.DistinctSources)

	switch {
	case verdict.Passed:
		st.final = st.query
		return StateSummarize, detail, nil
	case st.enhancementAttempts < e.policy.MaxEnhanceAttempts:
		return StateEnhance, detail, nil
	default:
		st.degraded = true
		st.final = st.best.query
		st.articles = st.best.articles
		st.quality = st.best.verdict
		return StateSummarize, fmt.Sprintf("%s; enhancements exhausted, using attempt %d", detail, st.best.attempt), nil
	}
}

func (e *Engine) enhance(_ context.Context, st *workflowState) (string, string, error) {
	st.query = e.enhancer.Enhance(st.query, st.quality)
	st.enhancementAttempts++
	return StateFetch, fmt.Sprintf("attempt=%d topic=%q window_days=%d", st.query.Attempt, st.query.Topic, st.query.WindowDays), nil
}

func (e *Engine) summarizeArticles(ctx context.Context, st *workflowState) (string, string, error) {
	articles := slices.Clone(st.articles)
	sort.SliceStable(articles, func(i, j int) bool {
		return articles[i].PublishedAt.After(articles[j].PublishedAt)
	})
	if len(articles) > st.original.MaxArticles {
		articles = articles[:st.original.MaxArticles]
	}

	maxLen := SummaryLength(len(articles))
	summaries := make([]domain.ArticleSummary, len(articles))

	var g errgroup.Group
	for i, article := range articles {
		g.Go(func() error {
			summaries[i] = e.summarizeArticle(ctx, article, maxLen)
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return "", "", err
	}

	st.summaries = summaries
	failed := 0
	for _, s := range summaries {
		if s.Status != domain.SummaryOK {
			failed++
		}
	}
	return StateDigest, fmt.Sprintf("articles=%d max_len=%d failed=%d", len(summaries), maxLen, failed), nil
}

func (e *Engine) summarizeArticle(ctx context.Context, article domain.Article, maxLen int) domain.ArticleSummary {
	result := domain.ArticleSummary{Article: article, Status: domain.SummaryFailed}

	text := strings.TrimSpace(article.Text())
	if text == "" {
		result.Error = "article has no text"
		return result
	}

	summary, err := e.summarize(ctx, text, maxLen)
	if err != nil {
		result.Error = err.Error()
		e.logger.Debug("article summary failed", "url", article.URL, "error", err)
		return result
	}

	result.Status = domain.SummaryOK
	result.SummaryText = &summary
	result.CompressionRatio = float64(utf8.RuneCountInString(summary)) / float64(utf8.RuneCountInString(text))
	return result
}

func (e *Engine) buildDigest(ctx context.Context, st *workflowState) (string, string, error) {
	d := e.builder.Build(st.original.Topic, st.summaries)

	texts := make([]string, 0, len(d.Summaries))
	for _, s := range d.Summaries {
		if s.Status == domain.SummaryOK && s.SummaryText != nil {
			texts = append(texts, *s.SummaryText)
		}
	}

	detail := "overview=ok"
	if len(texts) == 0 {
		d.Partial = true
		detail = "overview=empty no successful summaries"
	} else {
		overview, err := e.summarize(ctx, strings.Join(texts, "\n\n"), OverviewLength(len(texts)))
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return "", "", ctxErr
			}
			d.Partial = true
			detail = "overview=failed " + err.Error()
		} else {
			d.Overview = overview
		}
	}

	st.digest = &d
	return StateFormat, fmt.Sprintf("entries=%d %s", len(d.Summaries), detail), nil
}

func (e *Engine) format(_ context.Context, st *workflowState) (string, string, error) {
	d := st.digest
	d.RunID = st.runID
	if st.degraded {
		d.Partial = true
	}

	failed := 0
	seen := map[string]struct{}{}
	sources := make([]string, 0, len(d.Summaries))
	for _, s := range d.Summaries {
		if s.Status != domain.SummaryOK {
			failed++
		}
		name := strings.TrimSpace(s.Article.Source)
		if name == "" {
			name = s.Article.Host()
		}
		if _, ok := seen[name]; ok || name == "" {
			continue
		}
		seen[name] = struct{}{}
		sources = append(sources, name)
	}
	sort.Strings(sources)

	d.Metadata = domain.DigestMetadata{
		Language:            st.original.Language,
		Category:            st.original.Category,
		FinalTopic:          st.final.Topic,
		Sources:             sources,
		TotalArticles:       len(d.Summaries),
		FailedSummaries:     failed,
		EnhancementAttempts: st.enhancementAttempts,
		Quality:             st.quality,
	}
	return StateDone, fmt.Sprintf("sources=%d failed=%d", len(sources), failed), nil
}

// summarize is the adapter toward the external summarizer: it pre-truncates input,
// retries once with half the input on ErrInputTooLong and queues on the gate.
func (e *Engine) summarize(ctx context.Context, text string, maxLen int) (string, error) {
	if e.summarizer == nil {
		return "", errors.New("no summarizer configured")
	}

	input := truncateWords(text, e.policy.MaxInputChars)
	out, err := e.callSummarizer(ctx, input, maxLen)
	if errors.Is(err, ports.ErrInputTooLong) {
		input = truncateWords(input, utf8.RuneCountInString(input)/2)
		out, err = e.callSummarizer(ctx, input, maxLen)
	}
	if err != nil {
		return "", fmt.Errorf("summarize: %w", err)
	}

	out = strings.TrimSpace(out)
	if out == "" {
		return "", errEmptySummary
	}
	return out, nil
}

func (e *Engine) callSummarizer(ctx context.Context, text string, maxLen int) (string, error) {
	waitStarted := time.Now()
	if err := e.gate.Acquire(ctx, 1); err != nil {
		return "", fmt.Errorf("acquire summarizer slot: %w", err)
	}
	defer e.gate.Release(1)
	metrics.SummarizerGateWait.Observe(time.Since(waitStarted).Seconds())

	out, err := e.summarizer.Summarize(ctx, text, maxLen)
	status := "ok"
	switch {
	case errors.Is(err, ports.ErrInputTooLong):
		status = "input_too_long"
	case err != nil:
		status = "error"
	}
	metrics.SummarizerCalls.WithLabelValues(status).Inc()
	return out, err
}

// SummaryLength is the per-article summary budget in characters:
// more than 15 articles get 100, more than 10 get 130, otherwise 150.
func SummaryLength(articles int) int {
	switch {
	case articles > 15:
		return 100
	case articles > 10:
		return 130
	default:
		return 150
	}
}

// OverviewLength is the overview budget for ok successful summaries, capped at 300.
func OverviewLength(ok int) int {
	return min(200+10*ok, 300)
}

// truncateWords cuts text to at most limit runes, backing off to the last word boundary.
func truncateWords(text string, limit int) string {
	if limit <= 0 || utf8.RuneCountInString(text) <= limit {
		return text
	}
	runes := []rune(text)
	cut := string(runes[:limit])
	if idx := strings.LastIndexFunc(cut, unicode.IsSpace); idx > 0 {
		cut = cut[:idx]
	}
	return strings.TrimSpace(cut)
}
