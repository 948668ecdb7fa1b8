package httpapi

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"NewsDigest/internal/domain"
	"NewsDigest/internal/ports"
	"NewsDigest/internal/usecase"
)

// Handler serves the digest endpoints.
type Handler struct {
	service        DigestService
	logger         *slog.Logger
	maxArticles    int
	requestTimeout time.Duration
}

type summarizeRequest struct {
	Topic       string `json:"topic" form:"topic"`
	MaxArticles int    `json:"max_articles" form:"max_articles"`
	Language    string `json:"language" form:"language"`
	Category    string `json:"category" form:"category"`
	Refresh     bool   `json:"refresh" form:"refresh"`
}

type errorResponse struct {
	Error string             `json:"error"`
	State string             `json:"state,omitempty"`
	Trace []domain.TraceStep `json:"trace,omitempty"`
}

type statusResponse struct {
	Status                 string `json:"status"`
	CacheEntries           int    `json:"cache_entries"`
	CacheTTL               string `json:"cache_ttl"`
	MaxEnhanceAttempts     int    `json:"max_enhance_attempts"`
	MaxConcurrentSummaries int    `json:"max_concurrent_summaries"`
	MaxArticlesLimit       int    `json:"max_articles_limit"`
	TrendingEnabled        bool   `json:"trending_enabled"`
	Uptime                 string `json:"uptime"`
}

// Health answers liveness probes.
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"message": "NewsDigest is running", "status": "online"})
}

// Status reports limits and cache occupancy.
func (h *Handler) Status(c *gin.Context) {
	st := h.service.Status(c.Request.Context())
	c.JSON(http.StatusOK, statusResponse{
		Status:                 "online",
		CacheEntries:           st.CacheEntries,
		CacheTTL:               st.CacheTTL.String(),
		MaxEnhanceAttempts:     st.MaxEnhanceAttempts,
		MaxConcurrentSummaries: st.MaxConcurrentSummaries,
		MaxArticlesLimit:       st.MaxArticlesLimit,
		TrendingEnabled:        st.TrendingEnabled,
		Uptime:                 st.Uptime.Truncate(time.Second).String(),
	})
}

// SummarizeJSON handles POST /summarize.
func (h *Handler) SummarizeJSON(c *gin.Context) {
	var req summarizeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid request body: " + err.Error()})
		return
	}
	h.summarize(c, req)
}

// SummarizeQuery handles GET /summarize?topic=...
func (h *Handler) SummarizeQuery(c *gin.Context) {
	var req summarizeRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid query parameters: " + err.Error()})
		return
	}
	h.summarize(c, req)
}

// SummarizeTrending handles POST /trending/:topic.
func (h *Handler) SummarizeTrending(c *gin.Context) {
	var req summarizeRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid query parameters: " + err.Error()})
		return
	}
	req.Topic = c.Param("topic")
	h.summarize(c, req)
}

func (h *Handler) summarize(c *gin.Context, req summarizeRequest) {
	if req.MaxArticles == 0 {
		req.MaxArticles = h.maxArticles
	}
	topic := usecase.TopicRequest{
		Topic:       req.Topic,
		MaxArticles: req.MaxArticles,
		Language:    req.Language,
		Category:    req.Category,
	}

	ctx := c.Request.Context()
	if h.requestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.requestTimeout)
		defer cancel()
	}

	run := h.service.SummarizeTopic
	if req.Refresh {
		run = h.service.RefreshTopic
	}
	digest, err := run(ctx, topic)
	if err != nil {
		h.fail(c, err)
		return
	}

	c.Header("X-Run-ID", digest.RunID)
	c.JSON(http.StatusOK, digest)
}

// Trending handles GET /trending?language=..
func (h *Handler) Trending(c *gin.Context) {
	language := c.DefaultQuery("language", domain.DefaultLanguage)
	topics, err := h.service.Trending(c.Request.Context(), language)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status":   "success",
		"language": language,
		"topics":   topics,
		"count":    len(topics),
	})
}

// CachedTopics handles GET /cache.
func (h *Handler) CachedTopics(c *gin.Context) {
	topics, err := h.service.CachedTopics(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status":        "success",
		"cached_topics": topics,
		"count":         len(topics),
	})
}

// ClearCache handles DELETE /cache, optionally limited to ?key=.
func (h *Handler) ClearCache(c *gin.Context) {
	key := c.Query("key")
	if err := h.service.InvalidateCache(c.Request.Context(), key); err != nil {
		h.fail(c, err)
		return
	}
	message := "All caches cleared"
	if key != "" {
		message = "Cache entry " + key + " cleared"
	}
	c.JSON(http.StatusOK, gin.H{"status": "success", "message": message})
}

func (h *Handler) fail(c *gin.Context, err error) {
	status := statusFor(err)
	_ = c.Error(err)

	resp := errorResponse{Error: err.Error()}
	var wfErr *usecase.WorkflowError
	if errors.As(err, &wfErr) {
		resp.State = wfErr.State
		resp.Trace = wfErr.Trace
	}
	c.JSON(status, resp)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, usecase.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, usecase.ErrTrendingUnavailable):
		return http.StatusNotImplemented
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, usecase.ErrUpstreamFetch),
		errors.Is(err, ports.ErrUnavailable),
		errors.Is(err, ports.ErrRateLimited),
		errors.Is(err, context.Canceled):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
