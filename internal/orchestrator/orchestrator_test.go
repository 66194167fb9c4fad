package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dharmasatrya/skysearch/internal/cache"
	"github.com/dharmasatrya/skysearch/internal/models"
	"github.com/dharmasatrya/skysearch/internal/providers"
	"github.com/dharmasatrya/skysearch/internal/window"
)

type searchFunc func(ctx context.Context, q window.Query) ([]models.RawFlight, error)

type fakeProvider struct {
	calls        atomic.Int64
	primaryCalls atomic.Int64
	mu           sync.Mutex
	fn           searchFunc
}

func newFakeProvider(fn searchFunc) *fakeProvider {
	return &fakeProvider{fn: fn}
}

func (p *fakeProvider) Name() string { return "fake" }

func (p *fakeProvider) Search(ctx context.Context, q window.Query) ([]models.RawFlight, error) {
	p.calls.Add(1)
	if q.IsPrimary() {
		p.primaryCalls.Add(1)
	}
	p.mu.Lock()
	fn := p.fn
	p.mu.Unlock()
	return fn(ctx, q)
}

func (p *fakeProvider) set(fn searchFunc) {
	p.mu.Lock()
	p.fn = fn
	p.mu.Unlock()
}

func intPtr(i int) *int { return &i }

// flightsFor returns two direct flights on the query's departure date, the
// cheaper one priced by offset so summaries can be told apart.
func flightsFor(q window.Query) []models.RawFlight {
	base := 100.0 + float64(q.Offset*10)
	if q.Role == window.RoleReturn {
		base += 1000
	}
	date := q.Trip.DepartureDate
	out := make([]models.RawFlight, 2)
	for i := range out {
		out[i] = models.RawFlight{
			ID:           fmt.Sprintf("%s-%s-%d", q.Role, q.ShiftedDate(), i),
			Price:        base + float64(i*50),
			Currency:     "EUR",
			Availability: models.RawAvailability{Seats: intPtr(9)},
			Airlines:     []string{"W6"},
			BookingToken: fmt.Sprintf("tok-%s-%d", q.ShiftedDate(), i),
			Route: []models.RawRouteSegment{{
				FlyFrom:        q.Trip.Origin,
				FlyTo:          q.Trip.Destination,
				LocalDeparture: date + "T08:00:00.000Z",
				UTCDeparture:   date + "T06:00:00.000Z",
				LocalArrival:   date + "T09:40:00.000Z",
				UTCArrival:     date + "T09:40:00.000Z",
				Airline:        "W6",
				FlightNo:       3101 + i,
			}},
		}
	}
	return out
}

func okSearch(_ context.Context, q window.Query) ([]models.RawFlight, error) {
	return flightsFor(q), nil
}

func outage(_ context.Context, _ window.Query) ([]models.RawFlight, error) {
	return nil, providers.NewProviderError("fake", providers.KindServer, 503, errors.New("service unavailable"))
}

type fixture struct {
	orch     *Orchestrator
	provider *fakeProvider
	cache    *cache.ResultCache
	store    *cache.MemoryStore
	now      time.Time
}

func (f *fixture) advance(d time.Duration) { f.now = f.now.Add(d) }

func newFixture(t *testing.T, fn searchFunc) *fixture {
	t.Helper()
	f := &fixture{
		provider: newFakeProvider(fn),
		store:    cache.NewMemoryStore(),
		now:      time.Now(),
	}
	f.cache = cache.New(f.store, cache.DefaultConfig(), nil)
	f.cache.SetClock(func() time.Time { return f.now })

	cfg := DefaultConfig()
	cfg.RetryDelay = time.Millisecond
	cfg.QueryTimeout = time.Second
	f.orch = New(f.provider, f.cache, cfg, nil)
	return f
}

func oneWay() models.TripSpec {
	return models.TripSpec{
		Origin:        "OTP",
		Destination:   "LHR",
		DepartureDate: "2025-06-10",
		Passengers:    models.Passengers{Adults: 1},
		HoldBags:      2,
	}
}

func roundTrip() models.TripSpec {
	t := oneWay()
	ret := "2025-06-17"
	t.ReturnDate = &ret
	return t
}

func TestSearch_OneWayFansOutConcurrently(t *testing.T) {
	var inflight atomic.Int64
	allStarted := make(chan struct{})
	var once sync.Once

	f := newFixture(t, func(ctx context.Context, q window.Query) ([]models.RawFlight, error) {
		if inflight.Add(1) == 7 {
			once.Do(func() { close(allStarted) })
		}
		select {
		case <-allStarted:
		case <-time.After(500 * time.Millisecond):
			return nil, errors.New("queries were not issued concurrently")
		}
		return flightsFor(q), nil
	})

	set, err := f.orch.Search(context.Background(), oneWay())
	require.NoError(t, err)

	assert.EqualValues(t, 7, f.provider.calls.Load())
	assert.Equal(t, 7, set.Metadata.QueriesLaunched)
	assert.Zero(t, set.Metadata.QueriesFailed)
	assert.Equal(t, models.SourceLive, set.Metadata.Source)
	assert.False(t, set.Metadata.Stale)
	require.Len(t, set.Itineraries, 2)
	assert.Equal(t, "primary-2025-06-10-0", set.Itineraries[0].ID)

	require.Len(t, set.Alternates, 6)
	dates := make([]string, len(set.Alternates))
	for i, s := range set.Alternates {
		dates[i] = s.Date
	}
	assert.Equal(t, []string{"2025-06-07", "2025-06-08", "2025-06-09", "2025-06-11", "2025-06-12", "2025-06-13"}, dates)
	assert.Equal(t, 70.0, set.Alternates[0].MinPrice)
	assert.Equal(t, 2, set.Alternates[0].ResultCount)
	assert.Equal(t, "EUR", set.Alternates[0].Currency)

	_, ok := f.cache.Fresh(context.Background(), cache.SearchHash(oneWay()))
	assert.True(t, ok, "primary success is cached")

	hist, err := f.cache.History(context.Background())
	require.NoError(t, err)
	require.Len(t, hist, 1)
	assert.Equal(t, "OTP-LHR", hist[0].Route)
	assert.Equal(t, 2, hist[0].ResultCount)
}

func TestSearch_RoundTripLaunchesThirteen(t *testing.T) {
	f := newFixture(t, okSearch)

	set, err := f.orch.Search(context.Background(), roundTrip())
	require.NoError(t, err)

	assert.EqualValues(t, 13, f.provider.calls.Load())
	require.Len(t, set.Alternates, 12)

	var outbound, inbound int
	for i, s := range set.Alternates {
		if s.Direction == models.Inbound {
			inbound++
		} else {
			outbound++
		}
		if i > 0 {
			assert.LessOrEqual(t, set.Alternates[i-1].Date, s.Date, "sorted by date")
		}
	}
	assert.Equal(t, 6, outbound)
	assert.Equal(t, 6, inbound)
}

func TestSearch_FailedAlternateDegrades(t *testing.T) {
	var failedCalls atomic.Int64
	f := newFixture(t, func(ctx context.Context, q window.Query) ([]models.RawFlight, error) {
		if q.Role == window.RoleDeparture && q.Offset == 2 {
			failedCalls.Add(1)
			return outage(ctx, q)
		}
		return flightsFor(q), nil
	})

	set, err := f.orch.Search(context.Background(), oneWay())
	require.NoError(t, err)

	assert.Len(t, set.Alternates, 5)
	for _, s := range set.Alternates {
		assert.NotEqual(t, "2025-06-12", s.Date)
	}
	assert.Equal(t, 1, set.Metadata.QueriesFailed)
	assert.EqualValues(t, 3, failedCalls.Load(), "5xx is retried up to three attempts")
	assert.Len(t, set.Itineraries, 2)
}

func TestSearch_NonRetryableAlternatesDegrade(t *testing.T) {
	var rejected atomic.Int64
	f := newFixture(t, func(ctx context.Context, q window.Query) ([]models.RawFlight, error) {
		if q.Offset == -1 || q.Offset == 3 {
			rejected.Add(1)
			return nil, providers.NewProviderError("fake", providers.KindClient, 400, errors.New("date out of range"))
		}
		return flightsFor(q), nil
	})

	set, err := f.orch.Search(context.Background(), oneWay())
	require.NoError(t, err)

	assert.Len(t, set.Alternates, 4)
	for _, s := range set.Alternates {
		assert.NotEqual(t, "2025-06-09", s.Date)
		assert.NotEqual(t, "2025-06-13", s.Date)
	}
	assert.Equal(t, 2, set.Metadata.QueriesFailed)
	assert.EqualValues(t, 2, rejected.Load(), "each rejected alternate is tried once")
	assert.EqualValues(t, 7, f.provider.calls.Load())
	assert.Len(t, set.Itineraries, 2)
}

func TestSearch_FreshCacheSkipsNetwork(t *testing.T) {
	f := newFixture(t, okSearch)
	ctx := context.Background()

	_, err := f.cache.Put(ctx, oneWay(), []models.Itinerary{{ID: "cached"}})
	require.NoError(t, err)
	f.advance(10 * time.Minute)

	set, err := f.orch.Search(ctx, oneWay())
	require.NoError(t, err)

	assert.Zero(t, f.provider.calls.Load())
	assert.Equal(t, models.SourceCache, set.Metadata.Source)
	assert.False(t, set.Metadata.Stale)
	require.NotNil(t, set.Metadata.CachedAt)
	require.Len(t, set.Itineraries, 1)
	assert.Equal(t, "cached", set.Itineraries[0].ID)
}

func TestSearch_OldEntryOnlyUsedAsFallback(t *testing.T) {
	f := newFixture(t, okSearch)
	ctx := context.Background()

	_, err := f.cache.Put(ctx, oneWay(), []models.Itinerary{{ID: "yesterday"}})
	require.NoError(t, err)
	f.advance(20 * time.Hour)

	set, err := f.orch.Search(ctx, oneWay())
	require.NoError(t, err)
	assert.Equal(t, models.SourceLive, set.Metadata.Source, "20h entry is not fresh")
	assert.EqualValues(t, 7, f.provider.calls.Load())

	// Put the old entry back and break the provider.
	f.advance(-20 * time.Hour)
	_, err = f.cache.Put(ctx, oneWay(), []models.Itinerary{{ID: "yesterday"}})
	require.NoError(t, err)
	f.advance(20 * time.Hour)
	f.provider.set(outage)

	set, err = f.orch.Search(ctx, oneWay())
	require.NoError(t, err)
	assert.Equal(t, models.SourceFallback, set.Metadata.Source)
	assert.True(t, set.Metadata.Stale)
	assert.Equal(t, string(CategoryProviderUnavailable), set.Metadata.PrimaryError)
	require.Len(t, set.Itineraries, 1)
	assert.Equal(t, "yesterday", set.Itineraries[0].ID)
	assert.Empty(t, set.Alternates)
	assert.Equal(t, 7, set.Metadata.QueriesFailed)
}

func TestSearch_FallsBackToAnyRecentSearch(t *testing.T) {
	f := newFixture(t, outage)
	ctx := context.Background()

	other := oneWay()
	other.Destination = "CDG"
	_, err := f.cache.Put(ctx, other, []models.Itinerary{{ID: "paris"}})
	require.NoError(t, err)
	f.advance(time.Hour)

	set, err := f.orch.Search(ctx, oneWay())
	require.NoError(t, err)
	assert.Equal(t, models.SourceFallback, set.Metadata.Source)
	assert.Equal(t, "CDG", set.Trip.Destination)
	assert.Equal(t, "paris", set.Itineraries[0].ID)
}

func TestSearch_NoFallbackFails(t *testing.T) {
	f := newFixture(t, outage)
	ctx := context.Background()

	other := oneWay()
	other.Destination = "CDG"
	_, err := f.cache.Put(ctx, other, []models.Itinerary{{ID: "too-old"}})
	require.NoError(t, err)
	f.advance(25 * time.Hour)

	set, err := f.orch.Search(ctx, oneWay())
	assert.Nil(t, set)

	var serr *SearchFailedError
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, CategoryProviderUnavailable, serr.Category)
	assert.EqualValues(t, 3, f.provider.primaryCalls.Load())
}

func TestSearch_ClientErrorIsNotRetried(t *testing.T) {
	f := newFixture(t, func(_ context.Context, q window.Query) ([]models.RawFlight, error) {
		return nil, providers.NewProviderError("fake", providers.KindClient, 400, errors.New("bad request"))
	})
	ctx := context.Background()

	// A usable fallback exists but a rejected request is surfaced anyway.
	_, err := f.cache.Put(ctx, oneWay(), []models.Itinerary{{ID: "old"}})
	require.NoError(t, err)
	f.advance(time.Hour)

	_, err = f.orch.Search(ctx, oneWay())
	assert.True(t, IsCategory(err, CategoryProviderRejected))
	assert.EqualValues(t, 1, f.provider.primaryCalls.Load())
	assert.EqualValues(t, 7, f.provider.calls.Load())
}

func TestSearch_MalformedIsNotRetried(t *testing.T) {
	f := newFixture(t, func(_ context.Context, q window.Query) ([]models.RawFlight, error) {
		return nil, providers.NewProviderError("fake", providers.KindMalformed, 200, errors.New("unexpected token"))
	})

	_, err := f.orch.Search(context.Background(), oneWay())
	assert.True(t, IsCategory(err, CategoryMalformedResponse))
	assert.EqualValues(t, 1, f.provider.primaryCalls.Load())
}

func TestSearch_TimeoutIsRetried(t *testing.T) {
	f := newFixture(t, func(ctx context.Context, q window.Query) ([]models.RawFlight, error) {
		if q.IsPrimary() {
			<-ctx.Done()
			return nil, ctx.Err()
		}
		return flightsFor(q), nil
	})
	f.orch.config.QueryTimeout = 20 * time.Millisecond

	_, err := f.orch.Search(context.Background(), oneWay())
	assert.True(t, IsCategory(err, CategoryNetwork))
	assert.EqualValues(t, 3, f.provider.primaryCalls.Load())
}

func TestSearch_RetryDelayGrowsLinearly(t *testing.T) {
	f := newFixture(t, func(ctx context.Context, q window.Query) ([]models.RawFlight, error) {
		if q.IsPrimary() {
			return outage(ctx, q)
		}
		return flightsFor(q), nil
	})
	f.orch.config.RetryDelay = 40 * time.Millisecond

	var mu sync.Mutex
	var delays []time.Duration
	f.orch.after = func(d time.Duration) <-chan time.Time {
		mu.Lock()
		delays = append(delays, d)
		mu.Unlock()
		ch := make(chan time.Time, 1)
		ch <- time.Now()
		return ch
	}

	_, err := f.orch.Search(context.Background(), oneWay())
	assert.True(t, IsCategory(err, CategoryProviderUnavailable))
	assert.EqualValues(t, 3, f.provider.primaryCalls.Load())

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []time.Duration{40 * time.Millisecond, 80 * time.Millisecond}, delays)
}

func TestStore_SkipsAbandonedSearch(t *testing.T) {
	f := newFixture(t, okSearch)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	f.orch.store(ctx, oneWay(), []models.Itinerary{{ID: "late"}})

	recs, err := f.store.Scan(context.Background(), "")
	require.NoError(t, err)
	assert.Empty(t, recs)
}

func TestSearch_CancelledSearchIsNotCached(t *testing.T) {
	started := make(chan struct{}, 16)
	f := newFixture(t, func(ctx context.Context, q window.Query) ([]models.RawFlight, error) {
		started <- struct{}{}
		if q.IsPrimary() {
			return flightsFor(q), nil
		}
		<-ctx.Done()
		return nil, ctx.Err()
	})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		for i := 0; i < 7; i++ {
			<-started
		}
		cancel()
	}()

	set, err := f.orch.Search(ctx, oneWay())
	assert.Nil(t, set)
	assert.True(t, IsCategory(err, CategoryCancelled))
	assert.True(t, Cancelled(err))

	recs, err := f.store.Scan(context.Background(), "")
	require.NoError(t, err)
	assert.Empty(t, recs, "abandoned search must not write to the cache")
}

func TestSearch_ValidationFailsFast(t *testing.T) {
	f := newFixture(t, okSearch)
	trip := oneWay()
	trip.Origin = ""

	_, err := f.orch.Search(context.Background(), trip)
	assert.True(t, IsCategory(err, CategoryValidation))
	assert.ErrorIs(t, err, models.ErrMissingOrigin)
	assert.Zero(t, f.provider.calls.Load())
}

func TestSearch_MaxConcurrency(t *testing.T) {
	var inflight, peak atomic.Int64
	f := newFixture(t, func(_ context.Context, q window.Query) ([]models.RawFlight, error) {
		n := inflight.Add(1)
		defer inflight.Add(-1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		return flightsFor(q), nil
	})
	f.orch.config.MaxConcurrency = 2

	_, err := f.orch.Search(context.Background(), roundTrip())
	require.NoError(t, err)
	assert.EqualValues(t, 13, f.provider.calls.Load())
	assert.LessOrEqual(t, peak.Load(), int64(2))
}

func TestSearch_CacheWriteFailureDoesNotFailSearch(t *testing.T) {
	f := newFixture(t, okSearch)
	f.cache = cache.New(failingStore{}, cache.DefaultConfig(), nil)
	f.orch.cache = f.cache

	set, err := f.orch.Search(context.Background(), oneWay())
	require.NoError(t, err)
	assert.Len(t, set.Itineraries, 2)
}

type failingStore struct{}

var errStore = errors.New("store unavailable")

func (failingStore) Get(context.Context, string) (cache.Record, error)    { return cache.Record{}, errStore }
func (failingStore) Put(context.Context, cache.Record) error              { return errStore }
func (failingStore) Delete(context.Context, ...string) error              { return errStore }
func (failingStore) Scan(context.Context, string) ([]cache.Record, error) { return nil, errStore }
func (failingStore) Close() error                                         { return nil }

// OTP to LHR, one adult with two hold bags: the allocator gives the adult
// both bags, the one-way window is seven queries, and a provider outage with
// a ten-minute-old entry is answered from cache as fresh.
func TestSearch_EndToEndOTPToLHR(t *testing.T) {
	var bagsSeen sync.Map
	f := newFixture(t, func(_ context.Context, q window.Query) ([]models.RawFlight, error) {
		bagsSeen.Store(q.Bags.AdultHold(), true)
		return flightsFor(q), nil
	})
	ctx := context.Background()

	set, err := f.orch.Search(ctx, oneWay())
	require.NoError(t, err)
	assert.EqualValues(t, 7, f.provider.calls.Load())
	_, ok := bagsSeen.Load("2")
	assert.True(t, ok)
	assert.Equal(t, models.SourceLive, set.Metadata.Source)

	f.advance(10 * time.Minute)
	f.provider.set(outage)

	set, err = f.orch.Search(ctx, oneWay())
	require.NoError(t, err)
	assert.EqualValues(t, 7, f.provider.calls.Load(), "no network call on a fresh hit")
	assert.Equal(t, models.SourceCache, set.Metadata.Source)
	assert.False(t, set.Metadata.Stale)
	assert.Len(t, set.Itineraries, 2)
}
