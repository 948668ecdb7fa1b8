// Package cache stores completed digests with TTL-bound lifetimes and guarantees at
// most one computation per key at a time.
package cache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"NewsDigest/internal/domain"
	"NewsDigest/internal/metrics"
	"NewsDigest/internal/ports"
)

// ErrUnavailable wraps failures of the durable medium. The store never fails a
// request because of it; callers see it only from Put/Invalidate.
var ErrUnavailable = errors.New("cache unavailable")

// DefaultTTL applies when neither options nor Put specify a lifetime.
const DefaultTTL = time.Hour

// Outcome tells how Resolve obtained its digest.
type Outcome string

const (
	OutcomeHit         Outcome = "hit"         // live entry found on first lookup
	OutcomeShared      Outcome = "shared"      // produced by a concurrent caller we waited for
	OutcomeComputed    Outcome = "computed"    // computed and stored by this caller
	OutcomeIndependent Outcome = "independent" // wait timed out; computed without storing
)

// Compute produces a digest on a cache miss.
type Compute func(ctx context.Context) (domain.Digest, error)

// Options tune lifetimes and the wait policy.
type Options struct {
	TTL time.Duration
	// WaitTimeout bounds how long a caller waits for an in-flight computation of the
	// same key. Zero waits without bound.
	WaitTimeout time.Duration
	Clock       func() time.Time
	Logger      *slog.Logger
}

type keyLock struct {
	sem  *semaphore.Weighted
	refs int
}

// Store is the only shared mutable resource of the workflow core.
type Store struct {
	backend ports.CacheBackend
	ttl     time.Duration
	wait    time.Duration
	now     func() time.Time
	logger  *slog.Logger

	// mu guards the lock table only; computations hold their key's semaphore.
	mu    sync.Mutex
	locks map[string]*keyLock
}

// NewStore wraps a backend; a nil backend means an in-process memory backend.
func NewStore(backend ports.CacheBackend, opts Options) *Store {
	if backend == nil {
		backend = NewMemoryBackend()
	}
	if opts.TTL <= 0 {
		opts.TTL = DefaultTTL
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Store{
		backend: backend,
		ttl:     opts.TTL,
		wait:    opts.WaitTimeout,
		now:     opts.Clock,
		logger:  opts.Logger,
		locks:   map[string]*keyLock{},
	}
}

// TTL returns the default entry lifetime.
func (s *Store) TTL() time.Duration {
	return s.ttl
}

// Get returns the live entry for key. Expired entries are deleted and reported absent.
func (s *Store) Get(ctx context.Context, key string) (domain.CacheEntry, bool) {
	entry, result := s.lookup(ctx, key)
	metrics.CacheLookups.WithLabelValues(result).Inc()
	return entry, result == "hit"
}

func (s *Store) lookup(ctx context.Context, key string) (domain.CacheEntry, string) {
	entry, ok, err := s.backend.Load(ctx, key)
	if err != nil {
		s.logger.Warn("cache degraded, bypassing", "op", "load", "key", key, "error", err)
		return domain.CacheEntry{}, "error"
	}
	if !ok {
		return domain.CacheEntry{}, "miss"
	}
	if entry.Expired(s.now()) {
		if err := s.backend.Delete(ctx, key); err != nil {
			s.logger.Warn("cache degraded, bypassing", "op", "evict", "key", key, "error", err)
		}
		return domain.CacheEntry{}, "expired"
	}
	return entry, "hit"
}

// Put stores value under key. A non-positive ttl uses the store default.
func (s *Store) Put(ctx context.Context, key string, value domain.Digest, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = s.ttl
	}
	entry := domain.CacheEntry{
		Key:       key,
		Value:     value,
		CreatedAt: s.now().UTC(),
		TTL:       ttl,
	}
	if err := s.backend.Save(ctx, entry); err != nil {
		return fmt.Errorf("%w: save %s: %w", ErrUnavailable, key, err)
	}
	return nil
}

// Invalidate removes a single key.
func (s *Store) Invalidate(ctx context.Context, key string) error {
	if err := s.backend.Delete(ctx, key); err != nil {
		return fmt.Errorf("%w: delete %s: %w", ErrUnavailable, key, err)
	}
	return nil
}

// InvalidateAll removes every entry.
func (s *Store) InvalidateAll(ctx context.Context) error {
	if err := s.backend.DeleteAll(ctx); err != nil {
		return fmt.Errorf("%w: delete all: %w", ErrUnavailable, err)
	}
	return nil
}

// Entries lists live entries, newest first.
func (s *Store) Entries(ctx context.Context) ([]domain.CacheEntry, error) {
	all, err := s.backend.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: list: %w", ErrUnavailable, err)
	}

	now := s.now()
	live := make([]domain.CacheEntry, 0, len(all))
	for _, entry := range all {
		if !entry.Expired(now) {
			live = append(live, entry)
		}
	}
	sort.SliceStable(live, func(i, j int) bool {
		return live[i].CreatedAt.After(live[j].CreatedAt)
	})
	return live, nil
}

// Resolve returns the cached digest for key or computes it. Concurrent callers for
// the same key wait for the one computing; when WaitTimeout elapses they compute
// independently and leave the cache untouched. Only successful computations are stored.
func (s *Store) Resolve(ctx context.Context, key string, compute Compute) (domain.Digest, Outcome, error) {
	if entry, ok := s.Get(ctx, key); ok {
		return entry.Value, OutcomeHit, nil
	}

	lock := s.ref(key)
	defer s.unref(key, lock)

	waitCtx, cancel := ctx, context.CancelFunc(func() {})
	if s.wait > 0 {
		waitCtx, cancel = context.WithTimeout(ctx, s.wait)
	}
	acquired := lock.sem.Acquire(waitCtx, 1)
	cancel()

	if acquired != nil {
		if err := ctx.Err(); err != nil {
			return domain.Digest{}, "", err
		}
		s.logger.Warn("cache wait timed out, computing independently", "key", key, "wait", s.wait)
		value, err := compute(ctx)
		return value, OutcomeIndependent, err
	}
	defer lock.sem.Release(1)

	if entry, result := s.lookup(ctx, key); result == "hit" {
		metrics.CacheLookups.WithLabelValues("shared").Inc()
		return entry.Value, OutcomeShared, nil
	}

	value, err := compute(ctx)
	if err != nil {
		return domain.Digest{}, OutcomeComputed, err
	}

	// Stored even when ctx was cancelled after the digest completed.
	if err := s.Put(context.WithoutCancel(ctx), key, value, 0); err != nil {
		s.logger.Warn("cache degraded, result not stored", "op", "save", "key", key, "error", err)
	}
	return value, OutcomeComputed, nil
}

func (s *Store) ref(key string) *keyLock {
	s.mu.Lock()
	defer s.mu.Unlock()

	lock, ok := s.locks[key]
	if !ok {
		lock = &keyLock{sem: semaphore.NewWeighted(1)}
		s.locks[key] = lock
	}
	lock.refs++
	return lock
}

func (s *Store) unref(key string, lock *keyLock) {
	s.mu.Lock()
	defer s.mu.Unlock()

	lock.refs--
	if lock.refs == 0 {
		delete(s.locks, key)
	}
}
