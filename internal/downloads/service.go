package downloads

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// Load triggers reported to observers and recorders.
const (
	TriggerInitial   = "initial"
	TriggerReload    = "reload"
	TriggerScheduled = "scheduled"
)

// Fetcher retrieves a snapshot for a connection in a single attempt.
type Fetcher interface {
	Fetch(ctx context.Context, conn Connection) (Snapshot, error)
}

// LoadEvent describes one snapshot load attempt.
type LoadEvent struct {
	Endpoint    string
	Trigger     string
	Digest      string
	GeneratedAt time.Time
	Records     int
	Duration    time.Duration
	Err         error
	At          time.Time
}

// Succeeded reports whether the attempt produced a snapshot.
func (e LoadEvent) Succeeded() bool { return e.Err == nil }

// LoadObserver receives load attempts for metrics.
type LoadObserver interface {
	ObserveLoad(trigger string, err error, duration time.Duration)
}

// LoadRecorder persists load attempts.
type LoadRecorder interface {
	RecordLoad(ctx context.Context, event LoadEvent) error
}

// ServiceConfig collects the Service dependencies. Only Fetcher is required.
type ServiceConfig struct {
	Fetcher  Fetcher
	Cache    *Cache
	Observer LoadObserver
	Recorder LoadRecorder
	Logger   *slog.Logger
	// Check validates connections before loading. Nil uses Connection.Validate.
	Check ConnectionCheck
	// TTL bounds how long an in-memory snapshot is served before the shared cache or
	// the endpoint is consulted again. Zero keeps snapshots until reloaded.
	TTL time.Duration
}

type heldSnapshot struct {
	snapshot Snapshot
	storedAt time.Time
	// stale marks a snapshot superseded elsewhere. It is still returned when a refetch fails.
	stale bool
}

// Service owns the last good snapshot per endpoint and serialises loads.
type Service struct {
	fetcher  Fetcher
	cache    *Cache
	observer LoadObserver
	recorder LoadRecorder
	logger   *slog.Logger
	check    ConnectionCheck
	ttl      time.Duration
	now      func() time.Time

	group     singleflight.Group
	mu        sync.RWMutex
	snapshots map[string]heldSnapshot
}

// NewService wires a Service.
func NewService(cfg ServiceConfig) *Service {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	check := cfg.Check
	if check == nil {
		check = Connection.Validate
	}
	return &Service{
		fetcher:   cfg.Fetcher,
		check:     check,
		cache:     cfg.Cache,
		observer:  cfg.Observer,
		recorder:  cfg.Recorder,
		logger:    logger,
		ttl:       cfg.TTL,
		now:       time.Now,
		snapshots: make(map[string]heldSnapshot),
	}
}

// WithNow overrides the service clock for testing.
func (s *Service) WithNow(fn func() time.Time) {
	if fn != nil {
		s.now = fn
	}
}

// Snapshot returns the snapshot for conn, consulting memory, then the shared cache, then
// the endpoint. When a refresh fails but an older snapshot is held, the older snapshot is
// returned together with the error.
func (s *Service) Snapshot(ctx context.Context, conn Connection) (Snapshot, error) {
	conn = conn.Normalize()
	if err := s.check(conn); err != nil {
		return Snapshot{}, err
	}
	held, ok := s.held(conn)
	if ok && s.fresh(held) {
		return held.snapshot, nil
	}

	if snap, hit := s.fromCache(ctx, conn); hit {
		s.store(conn, snap)
		return snap, nil
	}

	snap, err := s.fetch(ctx, conn, TriggerInitial)
	if err != nil {
		if ok {
			return held.snapshot, err
		}
		return Snapshot{}, err
	}
	return snap, nil
}

// Reload fetches conn again, bypassing every cache. On failure the previously held
// snapshot, if any, is returned unchanged alongside the error. Concurrent loads of the
// same endpoint share one fetch.
func (s *Service) Reload(ctx context.Context, conn Connection) (Snapshot, error) {
	return s.reload(ctx, conn, TriggerReload)
}

// Refresh is Reload for scheduled jobs.
func (s *Service) Refresh(ctx context.Context, conn Connection) (Snapshot, error) {
	return s.reload(ctx, conn, TriggerScheduled)
}

func (s *Service) reload(ctx context.Context, conn Connection, trigger string) (Snapshot, error) {
	conn = conn.Normalize()
	if err := s.check(conn); err != nil {
		return Snapshot{}, err
	}
	snap, err := s.fetch(ctx, conn, trigger)
	if err != nil {
		if held, ok := s.held(conn); ok {
			return held.snapshot, err
		}
		return Snapshot{}, err
	}
	return snap, nil
}

// Held returns the in-memory snapshot for conn without loading anything.
func (s *Service) Held(conn Connection) (Snapshot, error) {
	held, ok := s.held(conn.Normalize())
	if !ok {
		return Snapshot{}, ErrNoSnapshot
	}
	return held.snapshot, nil
}

// Forget marks the held snapshot of endpoint stale so the next request consults the
// shared cache. The snapshot stays available as the fallback for a failed refetch.
func (s *Service) Forget(endpoint string) {
	s.mu.Lock()
	if held, ok := s.snapshots[endpoint]; ok {
		held.stale = true
		s.snapshots[endpoint] = held
	}
	s.mu.Unlock()
}

// ListenForInvalidation marks the bumped endpoint stale whenever a process writes a new
// snapshot for it to the shared cache.
func (s *Service) ListenForInvalidation(ctx context.Context) error {
	if s.cache == nil {
		return nil
	}
	return s.cache.ListenForInvalidation(ctx, func(endpoint string) {
		s.logger.Debug("snapshot cache bumped", slog.String("endpoint", endpoint))
		s.Forget(endpoint)
	})
}

func (s *Service) fetch(ctx context.Context, conn Connection, trigger string) (Snapshot, error) {
	if s.fetcher == nil {
		return Snapshot{}, errors.New("downloads: fetcher not configured")
	}
	// Joiners must not fail because the first caller went away.
	flightCtx := context.WithoutCancel(ctx)
	resultCh := s.group.DoChan(conn.Key(), func() (interface{}, error) {
		return s.fetchOnce(flightCtx, conn, trigger)
	})
	select {
	case <-ctx.Done():
		return Snapshot{}, ctx.Err()
	case res := <-resultCh:
		if res.Err != nil {
			return Snapshot{}, res.Err
		}
		return res.Val.(Snapshot), nil
	}
}

func (s *Service) fetchOnce(ctx context.Context, conn Connection, trigger string) (Snapshot, error) {
	start := s.now()
	snap, err := s.fetcher.Fetch(ctx, conn)
	elapsed := s.now().Sub(start)

	event := LoadEvent{
		Endpoint: snap.Endpoint,
		Trigger:  trigger,
		Duration: elapsed,
		Err:      err,
		At:       start,
	}
	if event.Endpoint == "" {
		event.Endpoint = conn.Key()
	}
	if err == nil {
		event.Digest = snap.Digest
		event.GeneratedAt = snap.Dataset.Metadata.GeneratedAt
		event.Records = len(snap.Dataset.Downloads)
	}
	s.report(ctx, event)

	if err != nil {
		s.logger.Warn("snapshot load failed",
			slog.String("endpoint", event.Endpoint),
			slog.String("trigger", trigger),
			slog.Any("error", err))
		return Snapshot{}, err
	}

	if previous, ok := s.held(conn); ok && previous.snapshot.Digest == snap.Digest && snap.Digest != "" {
		s.logger.Info("snapshot unchanged", slog.String("endpoint", event.Endpoint), slog.String("digest", snap.Digest))
	} else {
		s.logger.Info("snapshot loaded",
			slog.String("endpoint", event.Endpoint),
			slog.String("trigger", trigger),
			slog.Int("records", event.Records),
			slog.Duration("duration", elapsed))
	}

	s.store(conn, snap)
	s.toCache(ctx, conn, snap)
	return snap, nil
}

func (s *Service) report(ctx context.Context, event LoadEvent) {
	if s.observer != nil {
		s.observer.ObserveLoad(event.Trigger, event.Err, event.Duration)
	}
	if s.recorder != nil {
		if err := s.recorder.RecordLoad(ctx, event); err != nil {
			s.logger.Warn("record snapshot load", slog.Any("error", err))
		}
	}
}

func (s *Service) held(conn Connection) (heldSnapshot, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	held, ok := s.snapshots[conn.Key()]
	return held, ok
}

func (s *Service) fresh(held heldSnapshot) bool {
	if held.stale {
		return false
	}
	if s.ttl <= 0 {
		return true
	}
	return s.now().Sub(held.storedAt) < s.ttl
}

func (s *Service) store(conn Connection, snap Snapshot) {
	s.mu.Lock()
	s.snapshots[conn.Key()] = heldSnapshot{snapshot: snap, storedAt: s.now()}
	s.mu.Unlock()
}

func (s *Service) fromCache(ctx context.Context, conn Connection) (Snapshot, bool) {
	if s.cache == nil {
		return Snapshot{}, false
	}
	key, err := s.cache.SnapshotKey(ctx, conn.Key())
	if err != nil {
		s.logger.Warn("snapshot cache key", slog.Any("error", err))
		return Snapshot{}, false
	}
	snap, ok, err := s.cache.Get(ctx, key)
	if err != nil {
		s.logger.Warn("snapshot cache read", slog.Any("error", err))
		return Snapshot{}, false
	}
	return snap, ok
}

// toCache bumps the endpoint version before writing so that other processes mark their
// in-memory copy stale and pick up this snapshot under the new key.
func (s *Service) toCache(ctx context.Context, conn Connection, snap Snapshot) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Bump(ctx, conn.Key()); err != nil {
		s.logger.Warn("snapshot cache bump", slog.Any("error", err))
		return
	}
	key, err := s.cache.SnapshotKey(ctx, conn.Key())
	if err != nil {
		s.logger.Warn("snapshot cache key", slog.Any("error", err))
		return
	}
	if err := s.cache.Put(ctx, key, snap); err != nil {
		s.logger.Warn("snapshot cache write", slog.Any("error", err))
	}
}
