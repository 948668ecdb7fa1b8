package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"NewsDigest/internal/ports"
)

// WarmerDeps wires the scheduled digest refresher.
type WarmerDeps struct {
	Driver   ports.Scheduler
	Service  *TopicService
	Notifier ports.Notifier
	Topics   []TopicRequest
	Logger   *slog.Logger
}

// Warmer recomputes configured topics on a schedule and optionally delivers them.
type Warmer struct {
	driver   ports.Scheduler
	service  *TopicService
	notifier ports.Notifier
	topics   []TopicRequest
	logger   *slog.Logger
}

// NewWarmer returns a helper to start/stop recurring digest refreshes.
func NewWarmer(deps WarmerDeps) *Warmer {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return &Warmer{
		driver:   deps.Driver,
		service:  deps.Service,
		notifier: deps.Notifier,
		topics:   deps.Topics,
		logger:   deps.Logger.With("component", "warmer"),
	}
}

// Start registers the refresh job with the provided scheduler.
func (w *Warmer) Start(ctx context.Context) error {
	if w.driver == nil || w.service == nil || len(w.topics) == 0 {
		return nil
	}

	job := func(trigger time.Time) {
		if err := w.Warm(ctx, trigger); err != nil {
			w.logger.Warn("warm run finished with errors", "error", err)
		}
	}

	return w.driver.Start(ctx, job)
}

// Warm refreshes every configured topic once. Failures of one topic do not stop the rest.
func (w *Warmer) Warm(ctx context.Context, trigger time.Time) error {
	var errs []error
	for _, topic := range w.topics {
		if err := ctx.Err(); err != nil {
			return err
		}

		d, err := w.service.RefreshTopic(ctx, topic)
		if err != nil {
			errs = append(errs, fmt.Errorf("refresh %q: %w", topic.Topic, err))
			continue
		}
		w.logger.Info("topic warmed", "topic", topic.Topic, "trigger", trigger, "articles", len(d.Summaries))

		if w.notifier == nil {
			continue
		}
		message := FormatDigest(*d)
		if message == "" {
			continue
		}
		if err := w.notifier.PublishDigest(ctx, message); err != nil {
			errs = append(errs, fmt.Errorf("publish %q: %w", topic.Topic, err))
		}
	}
	return errors.Join(errs...)
}

// Stop gracefully tears down the underlying scheduler.
func (w *Warmer) Stop(ctx context.Context) error {
	if w.driver == nil {
		return nil
	}

	return w.driver.Stop(ctx)
}
