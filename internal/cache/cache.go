// Package cache stores past search results, the search history log and saved
// comparison snapshots on top of a pluggable key-value Store.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/dharmasatrya/skysearch/internal/models"
)

type Config struct {
	FreshTTL          time.Duration
	FallbackTTL       time.Duration
	ResultRetention   time.Duration
	HistoryLimit      int
	SnapshotRetention time.Duration
}

func DefaultConfig() Config {
	return Config{
		FreshTTL:          15 * time.Minute,
		FallbackTTL:       24 * time.Hour,
		ResultRetention:   7 * 24 * time.Hour,
		HistoryLimit:      50,
		SnapshotRetention: 30 * 24 * time.Hour,
	}
}

// Entry is one cached search result. Newer entries with the same hash
// replace older ones.
type Entry struct {
	Hash        string             `json:"hash"`
	Trip        models.TripSpec    `json:"trip"`
	Itineraries []models.Itinerary `json:"itineraries"`
	Timestamp   time.Time          `json:"timestamp"`
}

func (e Entry) Age(now time.Time) time.Duration {
	return now.Sub(e.Timestamp)
}

type CleanupStats struct {
	Results   int
	History   int
	Snapshots int
}

func (s CleanupStats) Total() int {
	return s.Results + s.History + s.Snapshots
}

// ResultCache never fails a search: read errors are logged and reported as a
// miss. Write errors are returned for the caller to log.
type ResultCache struct {
	store  Store
	cfg    Config
	logger *zap.Logger
	now    func() time.Time
}

func New(store Store, cfg Config, logger *zap.Logger) *ResultCache {
	if logger == nil {
		logger = zap.NewNop()
	}
	def := DefaultConfig()
	if cfg.FreshTTL <= 0 {
		cfg.FreshTTL = def.FreshTTL
	}
	if cfg.FallbackTTL <= 0 {
		cfg.FallbackTTL = def.FallbackTTL
	}
	if cfg.ResultRetention <= 0 {
		cfg.ResultRetention = def.ResultRetention
	}
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = def.HistoryLimit
	}
	if cfg.SnapshotRetention <= 0 {
		cfg.SnapshotRetention = def.SnapshotRetention
	}

	return &ResultCache{
		store:  store,
		cfg:    cfg,
		logger: logger,
		now:    time.Now,
	}
}

// SetClock replaces the time source. Intended for tests.
func (c *ResultCache) SetClock(now func() time.Time) {
	c.now = now
}

func (c *ResultCache) Config() Config {
	return c.cfg
}

// IsFresh reports whether entry is still inside the fresh tier.
func (c *ResultCache) IsFresh(entry *Entry) bool {
	return entry.Age(c.now()) < c.cfg.FreshTTL
}

// Get returns the entry for hash at any age still within retention.
func (c *ResultCache) Get(ctx context.Context, hash string) (*Entry, bool) {
	return c.Lookup(ctx, hash, c.cfg.ResultRetention)
}

// Fresh returns the entry for hash only while it is young enough to skip the
// network entirely.
func (c *ResultCache) Fresh(ctx context.Context, hash string) (*Entry, bool) {
	return c.Lookup(ctx, hash, c.cfg.FreshTTL)
}

// Fallback returns the entry for hash while it is still usable after a
// failed search.
func (c *ResultCache) Fallback(ctx context.Context, hash string) (*Entry, bool) {
	return c.Lookup(ctx, hash, c.cfg.FallbackTTL)
}

// Lookup returns the entry for hash if it is younger than maxAge.
func (c *ResultCache) Lookup(ctx context.Context, hash string, maxAge time.Duration) (*Entry, bool) {
	rec, err := c.store.Get(ctx, resultKey(hash))
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			c.logger.Warn("cache read failed", zap.String("hash", hash), zap.Error(err))
		}
		return nil, false
	}

	entry, err := decodeEntry(rec)
	if err != nil {
		c.logger.Warn("cache entry corrupted", zap.String("hash", hash), zap.Error(err))
		return nil, false
	}

	if entry.Age(c.now()) >= maxAge {
		return nil, false
	}
	return entry, true
}

// Put stores a new entry for the trip, replacing any previous one with the
// same hash.
func (c *ResultCache) Put(ctx context.Context, trip models.TripSpec, itineraries []models.Itinerary) (*Entry, error) {
	if itineraries == nil {
		itineraries = []models.Itinerary{}
	}
	entry := &Entry{
		Hash:        SearchHash(trip),
		Trip:        trip,
		Itineraries: itineraries,
		Timestamp:   c.now(),
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return nil, fmt.Errorf("encode cache entry: %w", err)
	}

	if err := c.store.Put(ctx, Record{Key: resultKey(entry.Hash), Value: data, Timestamp: entry.Timestamp}); err != nil {
		return nil, fmt.Errorf("write cache entry: %w", err)
	}

	if _, err := c.cleanupResults(ctx); err != nil {
		c.logger.Warn("cache retention trim failed", zap.Error(err))
	}
	return entry, nil
}

// LastValidAny returns the newest entry of any search younger than maxAge.
func (c *ResultCache) LastValidAny(ctx context.Context, maxAge time.Duration) (*Entry, bool) {
	recs, err := c.store.Scan(ctx, ResultPrefix)
	if err != nil {
		c.logger.Warn("cache scan failed", zap.Error(err))
		return nil, false
	}

	now := c.now()
	for _, rec := range recs {
		entry, err := decodeEntry(rec)
		if err != nil {
			c.logger.Warn("cache entry corrupted", zap.String("key", rec.Key), zap.Error(err))
			continue
		}
		if entry.Age(now) < maxAge {
			return entry, true
		}
	}
	return nil, false
}

// AppendHistory records a completed search and trims the log to the
// configured limit.
func (c *ResultCache) AppendHistory(ctx context.Context, route string, resultCount int) (models.SearchHistoryEntry, error) {
	h := models.SearchHistoryEntry{
		ID:          uuid.NewString(),
		Route:       route,
		Timestamp:   c.now(),
		ResultCount: resultCount,
	}

	data, err := json.Marshal(h)
	if err != nil {
		return models.SearchHistoryEntry{}, err
	}
	if err := c.store.Put(ctx, Record{Key: HistoryPrefix + h.ID, Value: data, Timestamp: h.Timestamp}); err != nil {
		return models.SearchHistoryEntry{}, fmt.Errorf("write history: %w", err)
	}

	if _, err := c.cleanupHistory(ctx); err != nil {
		c.logger.Warn("history trim failed", zap.Error(err))
	}
	return h, nil
}

// History returns the most recent searches, newest first.
func (c *ResultCache) History(ctx context.Context) ([]models.SearchHistoryEntry, error) {
	recs, err := c.store.Scan(ctx, HistoryPrefix)
	if err != nil {
		return nil, err
	}

	out := make([]models.SearchHistoryEntry, 0, len(recs))
	for _, rec := range recs {
		if len(out) == c.cfg.HistoryLimit {
			break
		}
		var h models.SearchHistoryEntry
		if err := json.Unmarshal(rec.Value, &h); err != nil {
			continue
		}
		out = append(out, h)
	}
	return out, nil
}

func (c *ResultCache) SaveSnapshot(ctx context.Context, name string, itineraries []models.Itinerary) (models.Snapshot, error) {
	if itineraries == nil {
		itineraries = []models.Itinerary{}
	}
	snap := models.Snapshot{
		ID:          uuid.NewString(),
		Name:        name,
		Itineraries: itineraries,
		CreatedAt:   c.now(),
	}

	data, err := json.Marshal(snap)
	if err != nil {
		return models.Snapshot{}, err
	}
	if err := c.store.Put(ctx, Record{Key: SnapshotPrefix + snap.ID, Value: data, Timestamp: snap.CreatedAt}); err != nil {
		return models.Snapshot{}, fmt.Errorf("write snapshot: %w", err)
	}
	return snap, nil
}

// Snapshot returns ErrNotFound for unknown or expired ids.
func (c *ResultCache) Snapshot(ctx context.Context, id string) (models.Snapshot, error) {
	rec, err := c.store.Get(ctx, SnapshotPrefix+id)
	if err != nil {
		return models.Snapshot{}, err
	}
	if c.now().Sub(rec.Timestamp) >= c.cfg.SnapshotRetention {
		return models.Snapshot{}, ErrNotFound
	}

	var snap models.Snapshot
	if err := json.Unmarshal(rec.Value, &snap); err != nil {
		return models.Snapshot{}, fmt.Errorf("decode snapshot: %w", err)
	}
	return snap, nil
}

// Snapshots lists saved snapshots, newest first.
func (c *ResultCache) Snapshots(ctx context.Context) ([]models.Snapshot, error) {
	recs, err := c.store.Scan(ctx, SnapshotPrefix)
	if err != nil {
		return nil, err
	}

	now := c.now()
	out := make([]models.Snapshot, 0, len(recs))
	for _, rec := range recs {
		if now.Sub(rec.Timestamp) >= c.cfg.SnapshotRetention {
			continue
		}
		var snap models.Snapshot
		if err := json.Unmarshal(rec.Value, &snap); err != nil {
			continue
		}
		out = append(out, snap)
	}
	return out, nil
}

func (c *ResultCache) DeleteSnapshot(ctx context.Context, id string) error {
	if _, err := c.store.Get(ctx, SnapshotPrefix+id); err != nil {
		return err
	}
	return c.store.Delete(ctx, SnapshotPrefix+id)
}

// Cleanup applies every retention rule once.
func (c *ResultCache) Cleanup(ctx context.Context) (CleanupStats, error) {
	var stats CleanupStats
	var errs []error

	n, err := c.cleanupResults(ctx)
	stats.Results = n
	errs = append(errs, err)

	n, err = c.cleanupHistory(ctx)
	stats.History = n
	errs = append(errs, err)

	n, err = c.expire(ctx, SnapshotPrefix, c.cfg.SnapshotRetention)
	stats.Snapshots = n
	errs = append(errs, err)

	return stats, errors.Join(errs...)
}

// Run calls Cleanup every interval until ctx is done.
func (c *ResultCache) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			stats, err := c.Cleanup(ctx)
			if err != nil {
				c.logger.Warn("cache cleanup failed", zap.Error(err))
			}
			if stats.Total() > 0 {
				c.logger.Info("cache cleanup",
					zap.Int("results", stats.Results),
					zap.Int("history", stats.History),
					zap.Int("snapshots", stats.Snapshots),
				)
			}
		}
	}
}

func (c *ResultCache) cleanupResults(ctx context.Context) (int, error) {
	return c.expire(ctx, ResultPrefix, c.cfg.ResultRetention)
}

func (c *ResultCache) cleanupHistory(ctx context.Context) (int, error) {
	recs, err := c.store.Scan(ctx, HistoryPrefix)
	if err != nil {
		return 0, err
	}
	if len(recs) <= c.cfg.HistoryLimit {
		return 0, nil
	}

	var stale []string
	for _, rec := range recs[c.cfg.HistoryLimit:] {
		stale = append(stale, rec.Key)
	}
	return len(stale), c.store.Delete(ctx, stale...)
}

func (c *ResultCache) expire(ctx context.Context, prefix string, maxAge time.Duration) (int, error) {
	recs, err := c.store.Scan(ctx, prefix)
	if err != nil {
		return 0, err
	}

	now := c.now()
	var stale []string
	for _, rec := range recs {
		if now.Sub(rec.Timestamp) >= maxAge {
			stale = append(stale, rec.Key)
		}
	}
	if len(stale) == 0 {
		return 0, nil
	}
	return len(stale), c.store.Delete(ctx, stale...)
}

func decodeEntry(rec Record) (*Entry, error) {
	var entry Entry
	if err := json.Unmarshal(rec.Value, &entry); err != nil {
		return nil, err
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = rec.Timestamp
	}
	return &entry, nil
}
