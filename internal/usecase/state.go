package usecase

import (
	"NewsDigest/internal/domain"
)

// Workflow states in execution order.
const (
	StateValidate     = "VALIDATE"
	StateFetch        = "FETCH"
	StateQualityCheck = "QUALITY_CHECK"
	StateEnhance      = "ENHANCE"
	StateSummarize    = "SUMMARIZE"
	StateDigest       = "DIGEST"
	StateFormat       = "FORMAT"
	StateDone         = "DONE"
	StateFailed       = "FAILED"
)

type runStatus int

const (
	statusRunning runStatus = iota
	statusDone
	statusFailed
)

// candidate is one fetched article set kept for degraded completion.
type candidate struct {
	query    domain.Query
	articles []domain.Article
	verdict  domain.QualityVerdict
	met      int
	attempt  int
}

func (c candidate) betterThan(other candidate) bool {
	if c.met != other.met {
		return c.met > other.met
	}
	if len(c.articles) != len(other.articles) {
		return len(c.articles) > len(other.articles)
	}
	return c.attempt < other.attempt
}

// workflowState is owned by a single Run call and never shared.
type workflowState struct {
	runID    string
	original domain.Query
	query    domain.Query
	// final is the query whose articles were summarized.
	final domain.Query

	articles            []domain.Article
	quality             domain.QualityVerdict
	enhancementAttempts int
	best                *candidate
	degraded            bool

	summaries []domain.ArticleSummary
	digest    *domain.Digest

	status runStatus
	err    error
	trace  []domain.TraceStep
}

func (st *workflowState) consider(c candidate) {
	if st.best == nil || c.betterThan(*st.best) {
		st.best = &c
	}
}
