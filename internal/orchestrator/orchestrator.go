// Package orchestrator runs one search across its whole date window: it fans
// the queries out, retries transient failures, joins every result and falls
// back to cached data when the primary query fails.
package orchestrator

import (
	"context"
	"errors"
	"sort"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/dharmasatrya/skysearch/internal/cache"
	"github.com/dharmasatrya/skysearch/internal/models"
	"github.com/dharmasatrya/skysearch/internal/normalizer"
	"github.com/dharmasatrya/skysearch/internal/providers"
	"github.com/dharmasatrya/skysearch/internal/window"
)

type Config struct {
	QueryTimeout    time.Duration
	MaxAttempts     int
	RetryDelay      time.Duration
	AlternateRadius int
	// MaxConcurrency caps in-flight queries per search. Zero means no cap.
	MaxConcurrency int
}

func DefaultConfig() Config {
	return Config{
		QueryTimeout:    30 * time.Second,
		MaxAttempts:     3,
		RetryDelay:      time.Second,
		AlternateRadius: window.DefaultRadius,
	}
}

type Orchestrator struct {
	provider providers.Provider
	cache    *cache.ResultCache
	config   Config
	logger   *zap.Logger
	after    func(time.Duration) <-chan time.Time
}

func New(provider providers.Provider, resultCache *cache.ResultCache, config Config, logger *zap.Logger) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.MaxAttempts < 1 {
		config.MaxAttempts = 1
	}
	if config.QueryTimeout <= 0 {
		config.QueryTimeout = DefaultConfig().QueryTimeout
	}
	if config.AlternateRadius < 0 {
		config.AlternateRadius = 0
	}

	return &Orchestrator{
		provider: provider,
		cache:    resultCache,
		config:   config,
		logger:   logger,
		after:    time.After,
	}
}

type queryResult struct {
	query       window.Query
	itineraries []models.Itinerary
	err         error
}

// Search returns live results when the primary query succeeds, a fresh cache
// entry without any network call when one exists, and otherwise the best
// usable cached entry. A cancelled search returns a CategoryCancelled error
// and leaves the cache untouched.
func (o *Orchestrator) Search(ctx context.Context, trip models.TripSpec) (*models.ItinerarySet, error) {
	start := time.Now()

	if err := trip.Validate(); err != nil {
		return nil, &SearchFailedError{Category: CategoryValidation, Err: err}
	}
	hash := cache.SearchHash(trip)

	if entry, ok := o.cache.Fresh(ctx, hash); ok {
		o.logger.Debug("serving fresh cache entry", zap.String("hash", hash))
		set := o.fromEntry(entry, models.SourceCache)
		set.Metadata.SearchTimeMs = time.Since(start).Milliseconds()
		return set, nil
	}

	w, err := window.Build(trip, o.config.AlternateRadius)
	if err != nil {
		return nil, &SearchFailedError{Category: CategoryValidation, Err: err}
	}

	results := o.fanOut(ctx, w.Queries())

	if err := ctx.Err(); err != nil {
		o.logger.Info("search abandoned", zap.String("route", trip.Route()), zap.Error(err))
		return nil, &SearchFailedError{Category: CategoryCancelled, Err: err}
	}

	primary := results[0]
	set := &models.ItinerarySet{
		Trip: trip,
		Metadata: models.SearchMetadata{
			SearchHash:      hash,
			Source:          models.SourceLive,
			QueriesLaunched: len(results),
		},
		Alternates: summarize(results[1:]),
	}
	for _, r := range results {
		if r.err != nil {
			set.Metadata.QueriesFailed++
		}
	}

	if primary.err == nil {
		set.Itineraries = primary.itineraries
		o.store(ctx, trip, primary.itineraries)
		set.Metadata.SearchTimeMs = time.Since(start).Milliseconds()
		return set, nil
	}

	category := categorize(primary.err)
	if category == CategoryProviderRejected {
		return nil, &SearchFailedError{Category: category, Err: primary.err}
	}

	fallback := o.fallback(ctx, hash)
	if fallback == nil {
		o.logger.Warn("primary query failed with no usable cache entry",
			zap.String("route", trip.Route()),
			zap.String("category", string(category)),
			zap.Error(primary.err),
		)
		return nil, &SearchFailedError{Category: category, Err: primary.err}
	}

	o.logger.Warn("primary query failed, serving cached results",
		zap.String("route", trip.Route()),
		zap.String("category", string(category)),
		zap.String("cached_hash", fallback.Metadata.SearchHash),
		zap.Error(primary.err),
	)
	fallback.Metadata.QueriesLaunched = set.Metadata.QueriesLaunched
	fallback.Metadata.QueriesFailed = set.Metadata.QueriesFailed
	fallback.Metadata.PrimaryError = string(category)
	fallback.Metadata.SearchTimeMs = time.Since(start).Milliseconds()
	fallback.Alternates = set.Alternates
	return fallback, nil
}

// fanOut runs every query and waits for all of them. Results are indexed like
// queries, so the primary stays at index 0 regardless of completion order.
func (o *Orchestrator) fanOut(ctx context.Context, queries []window.Query) []queryResult {
	results := make([]queryResult, len(queries))

	var g errgroup.Group
	if o.config.MaxConcurrency > 0 {
		g.SetLimit(o.config.MaxConcurrency)
	}

	for i, q := range queries {
		g.Go(func() error {
			results[i] = o.run(ctx, q)
			return nil
		})
	}
	_ = g.Wait()

	return results
}

func (o *Orchestrator) run(ctx context.Context, q window.Query) queryResult {
	raws, err := o.searchWithRetry(ctx, q)
	if err != nil {
		if !q.IsPrimary() && ctx.Err() == nil {
			o.logger.Warn("alternate date degraded to empty",
				zap.String("role", string(q.Role)),
				zap.String("date", q.ShiftedDate()),
				zap.String("kind", string(providers.KindOf(err))),
				zap.Error(err),
			)
		}
		return queryResult{query: q, err: err}
	}

	return queryResult{
		query:       q,
		itineraries: normalizer.NormalizeAll(raws, q.Trip.Passengers),
	}
}

func (o *Orchestrator) searchWithRetry(ctx context.Context, q window.Query) ([]models.RawFlight, error) {
	var lastErr error

	for attempt := 0; attempt < o.config.MaxAttempts; attempt++ {
		if attempt > 0 {
			delay := time.Duration(attempt) * o.config.RetryDelay
			select {
			case <-o.after(delay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		attemptCtx, cancel := context.WithTimeout(ctx, o.config.QueryTimeout)
		raws, err := o.provider.Search(attemptCtx, q)
		cancel()
		if err == nil {
			return raws, nil
		}

		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		lastErr = err
		o.logger.Debug("provider attempt failed",
			zap.String("role", string(q.Role)),
			zap.String("date", q.ShiftedDate()),
			zap.Int("attempt", attempt+1),
			zap.String("kind", string(providers.KindOf(err))),
			zap.Error(err),
		)

		if !providers.IsRetryable(err) {
			break
		}
	}

	return nil, lastErr
}

func (o *Orchestrator) store(ctx context.Context, trip models.TripSpec, itineraries []models.Itinerary) {
	if err := ctx.Err(); err != nil {
		o.logger.Info("search abandoned before cache write", zap.String("route", trip.Route()), zap.Error(err))
		return
	}
	if _, err := o.cache.Put(ctx, trip, itineraries); err != nil {
		o.logger.Warn("cache write failed", zap.String("route", trip.Route()), zap.Error(err))
		return
	}
	if _, err := o.cache.AppendHistory(ctx, trip.Route(), len(itineraries)); err != nil {
		o.logger.Warn("history write failed", zap.String("route", trip.Route()), zap.Error(err))
	}
}

// fallback tries the same search at fallback age, then the newest entry of
// any search.
func (o *Orchestrator) fallback(ctx context.Context, hash string) *models.ItinerarySet {
	if entry, ok := o.cache.Fallback(ctx, hash); ok {
		return o.fromEntry(entry, models.SourceFallback)
	}
	if entry, ok := o.cache.LastValidAny(ctx, o.cache.Config().FallbackTTL); ok {
		return o.fromEntry(entry, models.SourceFallback)
	}
	return nil
}

func (o *Orchestrator) fromEntry(entry *cache.Entry, source models.ResultSource) *models.ItinerarySet {
	cachedAt := entry.Timestamp
	return &models.ItinerarySet{
		Trip: entry.Trip,
		Metadata: models.SearchMetadata{
			SearchHash: entry.Hash,
			Source:     source,
			Stale:      !o.cache.IsFresh(entry),
			CachedAt:   &cachedAt,
		},
		Itineraries: entry.Itineraries,
		Alternates:  []models.DateSummary{},
	}
}

// summarize builds one summary per successful alternate, ordered by date.
// Failed alternates contribute nothing.
func summarize(results []queryResult) []models.DateSummary {
	out := make([]models.DateSummary, 0, len(results))
	for _, r := range results {
		if r.err != nil {
			continue
		}

		s := models.DateSummary{
			Date:        r.query.ShiftedDate(),
			Direction:   r.query.Direction(),
			Offset:      r.query.Offset,
			Currency:    r.query.Trip.Currency,
			ResultCount: len(r.itineraries),
		}
		for i, it := range r.itineraries {
			if i == 0 || it.Price.Amount < s.MinPrice {
				s.MinPrice = it.Price.Amount
				if it.Price.Currency != "" {
					s.Currency = it.Price.Currency
				}
			}
		}
		out = append(out, s)
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Date != out[j].Date {
			return out[i].Date < out[j].Date
		}
		return out[i].Direction == models.Outbound && out[j].Direction != models.Outbound
	})
	return out
}

// Cancelled reports whether err came from an abandoned search.
func Cancelled(err error) bool {
	return IsCategory(err, CategoryCancelled) || errors.Is(err, context.Canceled)
}
