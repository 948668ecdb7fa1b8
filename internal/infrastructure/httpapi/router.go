// Package httpapi exposes the topic service over HTTP.
package httpapi

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"NewsDigest/internal/domain"
	"NewsDigest/internal/usecase"
)

// DefaultMaxArticles applies when a request leaves max_articles unset.
const DefaultMaxArticles = 25

// DigestService is the use case surface the handlers drive.
type DigestService interface {
	SummarizeTopic(ctx context.Context, req usecase.TopicRequest) (*domain.Digest, error)
	RefreshTopic(ctx context.Context, req usecase.TopicRequest) (*domain.Digest, error)
	InvalidateCache(ctx context.Context, key string) error
	CachedTopics(ctx context.Context) ([]usecase.CachedTopic, error)
	Trending(ctx context.Context, language string) ([]domain.TrendingTopic, error)
	Status(ctx context.Context) usecase.Status
}

var _ DigestService = (*usecase.TopicService)(nil)

// RouterDeps wires the HTTP surface.
type RouterDeps struct {
	Service            DigestService
	Logger             *slog.Logger
	DefaultMaxArticles int
	// RequestTimeout bounds digest computations; zero leaves only the client's deadline.
	RequestTimeout time.Duration
}

// NewRouter builds the gin engine with every route registered.
func NewRouter(deps RouterDeps) *gin.Engine {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.DefaultMaxArticles <= 0 {
		deps.DefaultMaxArticles = DefaultMaxArticles
	}

	h := &Handler{
		service:        deps.Service,
		logger:         deps.Logger.With("component", "httpapi"),
		maxArticles:    deps.DefaultMaxArticles,
		requestTimeout: deps.RequestTimeout,
	}

	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(h.logger))

	corsCfg := cors.DefaultConfig()
	corsCfg.AllowAllOrigins = true
	corsCfg.AllowMethods = []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions}
	corsCfg.AllowHeaders = []string{"Origin", "Content-Type", "Accept", "Authorization"}
	r.Use(cors.New(corsCfg))

	r.GET("/", h.Health)
	r.GET("/status", h.Status)
	r.POST("/summarize", h.SummarizeJSON)
	r.GET("/summarize", h.SummarizeQuery)
	r.GET("/trending", h.Trending)
	r.POST("/trending/:topic", h.SummarizeTrending)
	r.GET("/cache", h.CachedTopics)
	r.DELETE("/cache", h.ClearCache)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}
