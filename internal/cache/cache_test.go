package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dharmasatrya/skysearch/internal/models"
)

type fakeClock struct {
	t time.Time
}

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestCache(t *testing.T, store Store, cfg Config) (*ResultCache, *fakeClock) {
	t.Helper()
	clock := &fakeClock{t: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
	c := New(store, cfg, nil)
	c.SetClock(clock.Now)
	return c, clock
}

func strPtr(s string) *string { return &s }

func trip(origin, dest, dep string) models.TripSpec {
	return models.TripSpec{
		Origin:        origin,
		Destination:   dest,
		DepartureDate: dep,
		OneWay:        true,
		Passengers:    models.Passengers{Adults: 1},
		CabinClass:    models.CabinEconomy,
		Currency:      "EUR",
		Locale:        "en",
	}
}

func itineraries(ids ...string) []models.Itinerary {
	out := make([]models.Itinerary, len(ids))
	for i, id := range ids {
		out[i] = models.Itinerary{ID: id, Price: models.Price{Amount: float64(100 + i), Currency: "EUR"}}
	}
	return out
}

func TestSearchHash(t *testing.T) {
	a := trip("OTP", "LHR", "2025-03-01")
	b := a
	b.Currency = "GBP"
	b.Locale = "ro"
	b.HoldBags = 2
	assert.Equal(t, SearchHash(a), SearchHash(b), "display-only fields do not change the key")

	c := a
	c.Origin = " otp "
	assert.Equal(t, SearchHash(a), SearchHash(c))

	d := a
	d.DepartureDate = "2025-03-02"
	assert.NotEqual(t, SearchHash(a), SearchHash(d))

	e := a
	e.Passengers.Children = 1
	assert.NotEqual(t, SearchHash(a), SearchHash(e))

	rt := a
	rt.OneWay = false
	rt.ReturnDate = strPtr("2025-03-08")
	assert.NotEqual(t, SearchHash(a), SearchHash(rt))

	// A one-way flag wins over a stray return date.
	ow := a
	ow.ReturnDate = strPtr("2025-03-08")
	assert.Equal(t, SearchHash(a), SearchHash(ow))

	noCabin := a
	noCabin.CabinClass = ""
	assert.Equal(t, SearchHash(a), SearchHash(noCabin))
}

func TestResultCache_FreshnessTiers(t *testing.T) {
	for name, store := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			c, clock := newTestCache(t, store, DefaultConfig())
			tr := trip("OTP", "LHR", "2025-03-01")
			hash := SearchHash(tr)

			_, ok := c.Fresh(ctx, hash)
			assert.False(t, ok)

			entry, err := c.Put(ctx, tr, itineraries("a", "b"))
			require.NoError(t, err)
			assert.Equal(t, hash, entry.Hash)

			clock.Advance(10 * time.Minute)
			got, ok := c.Fresh(ctx, hash)
			require.True(t, ok, "10 minutes old is fresh")
			assert.Len(t, got.Itineraries, 2)

			clock.Advance(20*time.Hour - 10*time.Minute)
			_, ok = c.Fresh(ctx, hash)
			assert.False(t, ok, "20 hours old is not fresh")
			_, ok = c.Fallback(ctx, hash)
			assert.True(t, ok, "20 hours old is usable as fallback")

			clock.Advance(5 * time.Hour)
			_, ok = c.Fallback(ctx, hash)
			assert.False(t, ok)
			_, ok = c.Get(ctx, hash)
			assert.True(t, ok, "still retained")
		})
	}
}

func TestResultCache_PutReplacesSameHash(t *testing.T) {
	ctx := context.Background()
	c, clock := newTestCache(t, NewMemoryStore(), DefaultConfig())
	tr := trip("OTP", "LHR", "2025-03-01")

	_, err := c.Put(ctx, tr, itineraries("old"))
	require.NoError(t, err)
	clock.Advance(time.Minute)
	_, err = c.Put(ctx, tr, itineraries("new1", "new2"))
	require.NoError(t, err)

	got, ok := c.Get(ctx, SearchHash(tr))
	require.True(t, ok)
	assert.Equal(t, "new1", got.Itineraries[0].ID)
	assert.True(t, got.Timestamp.Equal(clock.Now()))
}

func TestResultCache_LastValidAny(t *testing.T) {
	for name, store := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			c, clock := newTestCache(t, store, DefaultConfig())

			_, ok := c.LastValidAny(ctx, 24*time.Hour)
			assert.False(t, ok)

			_, err := c.Put(ctx, trip("OTP", "LHR", "2025-03-01"), itineraries("first"))
			require.NoError(t, err)
			clock.Advance(time.Hour)
			_, err = c.Put(ctx, trip("OTP", "CDG", "2025-03-01"), itineraries("second"))
			require.NoError(t, err)
			clock.Advance(time.Hour)

			got, ok := c.LastValidAny(ctx, 24*time.Hour)
			require.True(t, ok)
			assert.Equal(t, "CDG", got.Trip.Destination)

			_, ok = c.LastValidAny(ctx, 30*time.Minute)
			assert.False(t, ok)
		})
	}
}

func TestResultCache_HistoryIsCapped(t *testing.T) {
	for name, store := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			cfg := DefaultConfig()
			cfg.HistoryLimit = 3
			c, clock := newTestCache(t, store, cfg)

			routes := []string{"OTP-LHR", "OTP-CDG", "OTP-FRA", "OTP-MAD", "OTP-BCN"}
			for i, r := range routes {
				_, err := c.AppendHistory(ctx, r, i)
				require.NoError(t, err)
				clock.Advance(time.Second)
			}

			hist, err := c.History(ctx)
			require.NoError(t, err)
			require.Len(t, hist, 3)
			assert.Equal(t, "OTP-BCN", hist[0].Route)
			assert.Equal(t, "OTP-MAD", hist[1].Route)
			assert.Equal(t, "OTP-FRA", hist[2].Route)
			assert.Equal(t, 4, hist[0].ResultCount)

			recs, err := store.Scan(ctx, HistoryPrefix)
			require.NoError(t, err)
			assert.Len(t, recs, 3, "older records are deleted, not hidden")
		})
	}
}

func TestResultCache_Snapshots(t *testing.T) {
	for name, store := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			c, clock := newTestCache(t, store, DefaultConfig())

			snap, err := c.SaveSnapshot(ctx, "weekend options", itineraries("a", "b"))
			require.NoError(t, err)
			assert.NotEmpty(t, snap.ID)

			got, err := c.Snapshot(ctx, snap.ID)
			require.NoError(t, err)
			assert.Equal(t, "weekend options", got.Name)
			assert.Len(t, got.Itineraries, 2)

			clock.Advance(time.Hour)
			second, err := c.SaveSnapshot(ctx, "later", nil)
			require.NoError(t, err)

			list, err := c.Snapshots(ctx)
			require.NoError(t, err)
			require.Len(t, list, 2)
			assert.Equal(t, second.ID, list[0].ID)
			assert.NotNil(t, list[0].Itineraries)

			require.NoError(t, c.DeleteSnapshot(ctx, second.ID))
			_, err = c.Snapshot(ctx, second.ID)
			assert.ErrorIs(t, err, ErrNotFound)
			assert.ErrorIs(t, c.DeleteSnapshot(ctx, second.ID), ErrNotFound)

			clock.Advance(31 * 24 * time.Hour)
			_, err = c.Snapshot(ctx, snap.ID)
			assert.ErrorIs(t, err, ErrNotFound, "expired snapshots are not served")
		})
	}
}

func TestResultCache_Cleanup(t *testing.T) {
	for name, store := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			c, clock := newTestCache(t, store, DefaultConfig())

			_, err := c.Put(ctx, trip("OTP", "LHR", "2025-03-01"), itineraries("old"))
			require.NoError(t, err)
			_, err = c.SaveSnapshot(ctx, "old", nil)
			require.NoError(t, err)

			clock.Advance(8 * 24 * time.Hour)
			_, err = c.Put(ctx, trip("OTP", "CDG", "2025-03-09"), itineraries("new"))
			require.NoError(t, err)

			// The write above already trimmed the week-old result.
			recs, err := store.Scan(ctx, ResultPrefix)
			require.NoError(t, err)
			require.Len(t, recs, 1)

			clock.Advance(23 * 24 * time.Hour)
			stats, err := c.Cleanup(ctx)
			require.NoError(t, err)
			assert.Equal(t, 1, stats.Results)
			assert.Equal(t, 1, stats.Snapshots)
			assert.Equal(t, 0, stats.History)

			stats, err = c.Cleanup(ctx)
			require.NoError(t, err)
			assert.Zero(t, stats.Total())
		})
	}
}

func TestResultCache_CorruptedEntryIsMiss(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	c, clock := newTestCache(t, store, DefaultConfig())
	tr := trip("OTP", "LHR", "2025-03-01")

	require.NoError(t, store.Put(ctx, Record{Key: resultKey(SearchHash(tr)), Value: []byte("{not json"), Timestamp: clock.Now()}))

	_, ok := c.Fresh(ctx, SearchHash(tr))
	assert.False(t, ok)
	_, ok = c.LastValidAny(ctx, time.Hour)
	assert.False(t, ok)
}

type brokenStore struct{ MemoryStore }

var errBroken = errors.New("disk on fire")

func (*brokenStore) Get(context.Context, string) (Record, error)    { return Record{}, errBroken }
func (*brokenStore) Put(context.Context, Record) error              { return errBroken }
func (*brokenStore) Scan(context.Context, string) ([]Record, error) { return nil, errBroken }

func TestResultCache_StoreFailureIsMiss(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestCache(t, &brokenStore{}, DefaultConfig())
	tr := trip("OTP", "LHR", "2025-03-01")

	_, ok := c.Fresh(ctx, SearchHash(tr))
	assert.False(t, ok)
	_, ok = c.LastValidAny(ctx, time.Hour)
	assert.False(t, ok)

	_, err := c.Put(ctx, tr, itineraries("a"))
	assert.ErrorIs(t, err, errBroken)
}

func TestResultCache_RunStopsOnCancel(t *testing.T) {
	c, _ := newTestCache(t, NewMemoryStore(), DefaultConfig())
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		c.Run(ctx, time.Millisecond)
		close(done)
	}()

	time.Sleep(5 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("janitor did not stop")
	}
}
