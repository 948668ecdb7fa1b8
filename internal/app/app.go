package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"NewsDigest/internal/cache"
	"NewsDigest/internal/config"
	"NewsDigest/internal/digest"
	"NewsDigest/internal/enhancer"
	"NewsDigest/internal/infrastructure/extractor"
	"NewsDigest/internal/infrastructure/httpapi"
	"NewsDigest/internal/infrastructure/llm"
	"NewsDigest/internal/infrastructure/ml"
	"NewsDigest/internal/infrastructure/newsapi"
	"NewsDigest/internal/infrastructure/redisstore"
	"NewsDigest/internal/infrastructure/scheduler"
	"NewsDigest/internal/infrastructure/storage"
	"NewsDigest/internal/infrastructure/telegram"
	"NewsDigest/internal/logging"
	"NewsDigest/internal/ports"
	"NewsDigest/internal/quality"
	"NewsDigest/internal/usecase"
)

// Application wires configs to use cases and lifecycle orchestration.
type Application struct {
	cfg     config.Config
	logger  *slog.Logger
	service *usecase.TopicService
	warmer  *usecase.Warmer
	handler http.Handler
	closers []func() error
}

// New builds a runnable application instance. Connections to durable cache backends
// are opened here, so ctx bounds the start-up checks.
func New(ctx context.Context, cfg config.Config, baseLogger *slog.Logger) (*Application, error) {
	if baseLogger == nil {
		baseLogger = logging.New(cfg.Logging.Level, cfg.Logging.Format)
	}
	a := &Application{cfg: cfg, logger: baseLogger}

	backend, err := a.cacheBackend(ctx)
	if err != nil {
		_ = a.Close()
		return nil, err
	}
	store := cache.NewStore(backend, cache.Options{
		TTL:         cfg.Cache.TTL.Duration,
		WaitTimeout: cfg.Cache.WaitTimeout.Duration,
		Logger:      baseLogger.With("component", "cache"),
	})

	var contentExtractor ports.ContentExtractor
	if cfg.NewsAPI.ExtractContent {
		contentExtractor = extractor.New(nil)
	}
	source := newsapi.NewClient(newsapi.Options{
		BaseURL:           cfg.NewsAPI.BaseURL,
		Token:             cfg.NewsAPI.Token,
		Timeout:           cfg.NewsAPI.Timeout.Duration,
		MaxRetries:        cfg.NewsAPI.MaxRetries,
		InitialBackoff:    cfg.NewsAPI.InitialBackoff.Duration,
		RequestsPerSecond: cfg.NewsAPI.RequestsPerSecond,
		Burst:             cfg.NewsAPI.Burst,
		MinRelevance:      cfg.NewsAPI.MinRelevance,
		Extractor:         contentExtractor,
		Logger:            baseLogger.With("component", "newsapi"),
	})
	if cfg.NewsAPI.Token == "" {
		baseLogger.Warn("THENEWSAPI_TOKEN not set, news requests will be rejected")
	}

	engine := usecase.NewEngine(usecase.EngineDeps{
		Source:     source,
		Summarizer: newSummarizer(cfg),
		Assessor: quality.NewAssessor(quality.Thresholds{
			MinArticles:         cfg.Quality.MinArticles,
			MinAvgContentLength: cfg.Quality.MinAvgContentLength,
			MinDistinctSources:  cfg.Quality.MinDistinctSources,
		}),
		Enhancer: enhancer.New(),
		Builder:  digest.NewBuilder(nil),
		Policy: usecase.Policy{
			MaxEnhanceAttempts:     cfg.Workflow.MaxEnhanceAttempts,
			MaxArticlesLimit:       cfg.Workflow.MaxArticlesLimit,
			MaxInputChars:          cfg.Summarizer.MaxInputChars,
			MaxConcurrentSummaries: cfg.Summarizer.MaxConcurrent,
		},
		Logger: baseLogger,
	})

	a.service = usecase.NewTopicService(usecase.ServiceDeps{
		Engine:   engine,
		Cache:    store,
		Trending: source,
		Search: usecase.SearchDefaults{
			WindowDays:       cfg.NewsAPI.WindowDays,
			MinContentLength: cfg.NewsAPI.MinContentLength,
		},
		Logger: baseLogger,
	})

	var notifier ports.Notifier
	if tg := cfg.Notifications.Telegram; tg.Enabled() {
		notifier = telegram.NewNotifier(tg.BotToken, tg.ChatID, telegram.WithParseMode(tg.ParseMode))
	}
	a.warmer = usecase.NewWarmer(usecase.WarmerDeps{
		Driver:   scheduler.NewIntervalScheduler(cfg.Scheduler.Interval.Duration),
		Service:  a.service,
		Notifier: notifier,
		Topics:   warmTopics(cfg.Scheduler.WarmTopics),
		Logger:   baseLogger,
	})

	if !strings.EqualFold(cfg.Logging.Level, "debug") {
		gin.SetMode(gin.ReleaseMode)
	}
	a.handler = httpapi.NewRouter(httpapi.RouterDeps{
		Service:            a.service,
		Logger:             baseLogger,
		DefaultMaxArticles: cfg.Server.DefaultMaxArticles,
		RequestTimeout:     cfg.Server.RequestTimeout.Duration,
	})

	return a, nil
}

func (a *Application) cacheBackend(ctx context.Context) (ports.CacheBackend, error) {
	switch a.cfg.Cache.Backend {
	case config.BackendRedis:
		backend, err := redisstore.Dial(ctx, a.cfg.Redis.Address, a.cfg.Redis.Password, a.cfg.Redis.DB)
		if err != nil {
			return nil, fmt.Errorf("connect cache backend: %w", err)
		}
		a.closers = append(a.closers, backend.Close)
		return backend, nil
	case config.BackendPostgres:
		db, err := storage.Open(ctx, a.cfg.Database.DSN)
		if err != nil {
			return nil, fmt.Errorf("connect cache backend: %w", err)
		}
		a.closers = append(a.closers, db.Close)
		backend := storage.NewPostgresBackend(db)
		if err := backend.EnsureSchema(ctx); err != nil {
			return nil, err
		}
		return backend, nil
	default:
		return cache.NewMemoryBackend(), nil
	}
}

func newSummarizer(cfg config.Config) ports.Summarizer {
	if cfg.Summarizer.Provider == config.ProviderChatGPT {
		return llm.NewChatGPTClient(cfg.ChatGPT)
	}
	return ml.NewClient(cfg.ML.Endpoint, cfg.ML.APIKey, cfg.ML.Timeout.Duration)
}

func warmTopics(topics []config.WarmTopic) []usecase.TopicRequest {
	out := make([]usecase.TopicRequest, 0, len(topics))
	for _, t := range topics {
		maxArticles := t.MaxArticles
		if maxArticles <= 0 {
			maxArticles = httpapi.DefaultMaxArticles
		}
		out = append(out, usecase.TopicRequest{
			Topic:       t.Topic,
			MaxArticles: maxArticles,
			Language:    t.Language,
			Category:    t.Category,
		})
	}
	return out
}

// Service exposes the topic service.
func (a *Application) Service() *usecase.TopicService {
	return a.service
}

// Handler returns the HTTP surface.
func (a *Application) Handler() http.Handler {
	return a.handler
}

// Run serves HTTP on the configured address and starts the warmer, until ctx ends.
func (a *Application) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", a.cfg.Server.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", a.cfg.Server.Addr, err)
	}
	return a.Serve(ctx, ln)
}

// Serve is Run on an existing listener.
func (a *Application) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:      a.handler,
		ReadTimeout:  a.cfg.Server.ReadTimeout.Duration,
		WriteTimeout: a.cfg.Server.WriteTimeout.Duration,
	}

	if err := a.warmer.Start(ctx); err != nil {
		return fmt.Errorf("start warmer: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("http server listening", "addr", ln.Addr().String())
		errCh <- srv.Serve(ln)
	}()

	var serveErr error
	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			serveErr = fmt.Errorf("serve http: %w", err)
		}
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.cfg.Server.ShutdownTimeout.Duration)
	defer cancel()

	a.logger.Info("shutting down")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		serveErr = errors.Join(serveErr, fmt.Errorf("shutdown http: %w", err))
	}
	if err := a.warmer.Stop(shutdownCtx); err != nil {
		serveErr = errors.Join(serveErr, fmt.Errorf("stop warmer: %w", err))
	}
	return errors.Join(serveErr, a.Close())
}

// Close releases backend connections.
func (a *Application) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
