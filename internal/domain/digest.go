package domain

import "time"

// QualityReason names the first quality threshold a result set failed.
type QualityReason string

const (
	ReasonOK                 QualityReason = "OK"
	ReasonTooFewArticles     QualityReason = "TOO_FEW_ARTICLES"
	ReasonLowContentDensity  QualityReason = "LOW_CONTENT_DENSITY"
	ReasonLowSourceDiversity QualityReason = "LOW_SOURCE_DIVERSITY"
)

// QualityMetrics are always populated, pass or fail.
type QualityMetrics struct {
	Count            int     `json:"count"`
	AvgContentLength float64 `json:"avg_content_length"`
	DistinctSources  int     `json:"distinct_sources"`
}

// QualityVerdict is the pass/fail judgment on a fetched article set.
type QualityVerdict struct {
	Passed  bool           `json:"passed"`
	Reason  QualityReason  `json:"reason"`
	Metrics QualityMetrics `json:"metrics"`
}

// SummaryStatus tags a per-article summarization outcome.
type SummaryStatus string

const (
	SummaryOK     SummaryStatus = "OK"
	SummaryFailed SummaryStatus = "FAILED"
)

// ArticleSummary is one per Article. SummaryText is nil when summarization failed.
type ArticleSummary struct {
	Article          Article       `json:"article"`
	SummaryText      *string       `json:"summary_text"`
	Status           SummaryStatus `json:"status"`
	CompressionRatio float64       `json:"compression_ratio"`
	Error            string        `json:"error,omitempty"`
}

// TraceStep records one state transition of a workflow run.
type TraceStep struct {
	State  string    `json:"state"`
	At     time.Time `json:"at"`
	Detail string    `json:"detail"`
}

// DigestMetadata carries diagnostics about how a digest was produced.
type DigestMetadata struct {
	Language            string         `json:"language"`
	Category            string         `json:"category,omitempty"`
	FinalTopic          string         `json:"final_topic"`
	Sources             []string       `json:"sources"`
	TotalArticles       int            `json:"total_articles"`
	FailedSummaries     int            `json:"failed_summaries"`
	EnhancementAttempts int            `json:"enhancement_attempts"`
	Quality             QualityVerdict `json:"quality"`
}

// Digest is the topic-level result returned to callers.
type Digest struct {
	RunID       string           `json:"run_id"`
	Topic       string           `json:"topic"`
	Summaries   []ArticleSummary `json:"summaries"`
	Overview    string           `json:"overview"`
	GeneratedAt time.Time        `json:"generated_at"`
	Partial     bool             `json:"partial"`
	Metadata    DigestMetadata   `json:"metadata"`
	Trace       []TraceStep      `json:"trace,omitempty"`
}

// CacheEntry is a stored Digest with its lifetime.
type CacheEntry struct {
	Key       string        `json:"key"`
	Value     Digest        `json:"value"`
	CreatedAt time.Time     `json:"created_at"`
	TTL       time.Duration `json:"ttl"`
}

// ExpiresAt returns the instant after which the entry is logically absent.
func (e CacheEntry) ExpiresAt() time.Time {
	return e.CreatedAt.Add(e.TTL)
}

// Expired reports whether the entry is dead at now. A non-positive TTL never expires.
func (e CacheEntry) Expired(now time.Time) bool {
	if e.TTL <= 0 {
		return false
	}
	return !now.Before(e.ExpiresAt())
}
