/*

This file contains the protocol snapshot cache served to the HTTP API.

Requests never wait on a protocol fetch. A fresh snapshot is returned as is; a stale or missing one is
returned (or replaced by the fallback catalog) while a single background refresh runs. A refresh that
produces no live data keeps the last known good snapshot, and a partial refresh keeps the previous live
figures for the protocols that failed.

*/

package cache

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/elys-network/yield-aggregator/internal/datafetcher"
	"github.com/elys-network/yield-aggregator/internal/logger"
	"github.com/elys-network/yield-aggregator/internal/metrics"
	"github.com/elys-network/yield-aggregator/internal/types"
	"golang.org/x/sync/singleflight"
)

var cacheLogger = logger.GetForComponent("snapshot_cache")

var ErrNoLiveData = errors.New("refresh returned no live protocol data")

const (
	REFRESH_KEY          = "protocol_snapshot"
	REFRESH_TIMEOUT      = 30 * time.Second
	MIN_REFRESH_INTERVAL = 30 * time.Second
)

// CacheStatus describes what Get returned.
type CacheStatus string

const (
	StatusFresh    CacheStatus = "fresh"    // Within the TTL
	StatusStale    CacheStatus = "stale"    // Last known good snapshot, refresh triggered
	StatusFallback CacheStatus = "fallback" // Nothing fetched yet, catalog constants served
)

// SnapshotMirror shares snapshots between service instances.
type SnapshotMirror interface {
	Load(ctx context.Context) (types.MetricsSnapshot, bool, error)
	Store(ctx context.Context, snapshot types.MetricsSnapshot) error
}

// SnapshotCache is safe for concurrent use.
type SnapshotCache struct {
	provider datafetcher.Provider
	ttl      time.Duration
	fallback types.MetricsSnapshot
	mirror   SnapshotMirror
	onStore  func(types.MetricsSnapshot)

	group singleflight.Group

	mu          sync.RWMutex
	current     *types.MetricsSnapshot
	storedAt    time.Time
	lastAttempt time.Time

	now            func() time.Time
	refreshTimeout time.Duration
}

// Option configures a SnapshotCache.
type Option func(*SnapshotCache)

// WithMirror writes every stored snapshot to the mirror and allows Seed to read from it.
func WithMirror(mirror SnapshotMirror) Option {
	return func(c *SnapshotCache) { c.mirror = mirror }
}

// WithStoreHook is called with every snapshot the cache accepts, outside the cache lock.
func WithStoreHook(hook func(types.MetricsSnapshot)) Option {
	return func(c *SnapshotCache) { c.onStore = hook }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(c *SnapshotCache) { c.now = now }
}

// NewSnapshotCache creates an empty cache. fallback is served until the first successful refresh.
func NewSnapshotCache(provider datafetcher.Provider, ttl time.Duration, fallback types.MetricsSnapshot, opts ...Option) *SnapshotCache {
	c := &SnapshotCache{
		provider:       provider,
		ttl:            ttl,
		fallback:       fallback.Clone(),
		now:            time.Now,
		refreshTimeout: REFRESH_TIMEOUT,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get returns the best snapshot available right now and triggers a background refresh when it is not fresh.
func (c *SnapshotCache) Get(ctx context.Context) (types.MetricsSnapshot, CacheStatus) {
	now := c.now()

	c.mu.RLock()
	current := c.current
	storedAt := c.storedAt
	lastAttempt := c.lastAttempt
	c.mu.RUnlock()

	if current != nil && now.Sub(storedAt) < c.ttl {
		metrics.SnapshotCacheTotal.WithLabelValues(string(StatusFresh)).Inc()
		return current.Clone(), StatusFresh
	}

	if lastAttempt.IsZero() || now.Sub(lastAttempt) >= MIN_REFRESH_INTERVAL {
		c.triggerRefresh()
	}

	if current != nil {
		metrics.SnapshotCacheTotal.WithLabelValues(string(StatusStale)).Inc()
		return current.Clone(), StatusStale
	}
	metrics.SnapshotCacheTotal.WithLabelValues(string(StatusFallback)).Inc()
	snapshot := c.fallback.Clone()
	snapshot.FetchedAt = now.UTC()
	return snapshot, StatusFallback
}

// Refresh fetches synchronously, joining any refresh already in flight.
func (c *SnapshotCache) Refresh(ctx context.Context) (types.MetricsSnapshot, error) {
	result, err, shared := c.group.Do(REFRESH_KEY, func() (interface{}, error) {
		return c.refresh(ctx)
	})
	if shared {
		cacheLogger.Debug().Msg("Joined in-flight snapshot refresh")
	}
	if err != nil {
		return types.MetricsSnapshot{}, err
	}
	return result.(types.MetricsSnapshot).Clone(), nil
}

// Seed loads the mirror into an empty cache. It reports whether a snapshot was loaded.
func (c *SnapshotCache) Seed(ctx context.Context) (bool, error) {
	if c.mirror == nil {
		return false, nil
	}
	snapshot, found, err := c.mirror.Load(ctx)
	if err != nil || !found {
		return false, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current != nil {
		return false, nil
	}
	c.current = &snapshot
	c.storedAt = snapshot.FetchedAt
	cacheLogger.Info().
		Time("fetchedAt", snapshot.FetchedAt).
		Int("live", snapshot.LiveCount()).
		Msg("Snapshot cache seeded from mirror")
	return true, nil
}

// triggerRefresh starts a background refresh unless one is already running. It never blocks.
func (c *SnapshotCache) triggerRefresh() {
	c.group.DoChan(REFRESH_KEY, func() (interface{}, error) {
		ctx, cancel := context.WithTimeout(context.Background(), c.refreshTimeout)
		defer cancel()
		snapshot, err := c.refresh(ctx)
		if err != nil {
			cacheLogger.Warn().Err(err).Msg("Background snapshot refresh failed")
		}
		return snapshot, err
	})
}

func (c *SnapshotCache) refresh(ctx context.Context) (types.MetricsSnapshot, error) {
	start := c.now()
	c.mu.Lock()
	c.lastAttempt = start
	c.mu.Unlock()

	fetched, fetchErr := c.provider.Fetch(ctx)
	metrics.SnapshotRefreshDuration.Observe(c.now().Sub(start).Seconds())
	if fetchErr != nil {
		cacheLogger.Warn().Err(fetchErr).Int("live", fetched.LiveCount()).Msg("Protocol fetch was incomplete")
	}

	c.mu.Lock()
	previous := c.current
	if fetched.LiveCount() == 0 {
		c.mu.Unlock()
		if previous != nil {
			cacheLogger.Warn().Time("keptFetchedAt", previous.FetchedAt).Msg("Keeping last known good snapshot")
		}
		if fetchErr != nil {
			return types.MetricsSnapshot{}, errors.Join(ErrNoLiveData, fetchErr)
		}
		return types.MetricsSnapshot{}, ErrNoLiveData
	}

	merged := mergeSnapshots(previous, fetched)
	c.current = &merged
	c.storedAt = c.now()
	c.mu.Unlock()

	cacheLogger.Info().
		Int("protocols", len(merged.Protocols)).
		Int("live", merged.LiveCount()).
		Msg("Protocol snapshot cached")

	if c.mirror != nil {
		if err := c.mirror.Store(ctx, merged); err != nil {
			cacheLogger.Warn().Err(err).Msg("Failed to write snapshot to mirror")
		}
	}
	if c.onStore != nil {
		c.onStore(merged.Clone())
	}
	return merged, nil
}

// mergeSnapshots keeps previous live figures for protocols that fell back in the new snapshot.
func mergeSnapshots(previous *types.MetricsSnapshot, fetched types.MetricsSnapshot) types.MetricsSnapshot {
	merged := fetched.Clone()
	if previous == nil {
		return merged
	}
	for id, metric := range merged.Protocols {
		if metric.Source == types.SourceLive {
			continue
		}
		if last, ok := previous.Protocols[id]; ok && last.Source == types.SourceLive {
			last.Tokens = append([]string(nil), last.Tokens...)
			merged.Protocols[id] = last
		}
	}
	return merged
}
