// Package session keeps per-user search state: the current trip, filters,
// sort order, results and selected itinerary.
package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/dharmasatrya/skysearch/internal/baggage"
	"github.com/dharmasatrya/skysearch/internal/filter"
	"github.com/dharmasatrya/skysearch/internal/models"
	"github.com/dharmasatrya/skysearch/internal/providers"
)

var (
	ErrClosed             = errors.New("session closed")
	ErrSuperseded         = errors.New("search superseded by a newer search")
	ErrNoResults          = errors.New("no search results in session")
	ErrItineraryNotFound  = errors.New("itinerary not found in current results")
	ErrNothingSelected    = errors.New("no itinerary selected")
	ErrPriceCheckDisabled = errors.New("price confirmation is not configured")
)

// Searcher runs one orchestrated search.
type Searcher interface {
	Search(ctx context.Context, trip models.TripSpec) (*models.ItinerarySet, error)
}

type EventType string

const (
	EventSearchCompleted EventType = "search_completed"
	EventSearchFailed    EventType = "search_failed"
	EventResultsChanged  EventType = "results_changed"
	EventFlightSelected  EventType = "flight_selected"
)

type Event struct {
	Type      EventType
	SessionID string
	Response  *models.SearchResponse
	Selected  *models.Itinerary
	Err       error
}

const subscriberBuffer = 8

type Session struct {
	id       string
	searcher Searcher
	checker  providers.PriceChecker
	logger   *zap.Logger

	mu          sync.Mutex
	trip        *models.TripSpec
	filters     models.FilterSpec
	sort        models.SortSpec
	result      *models.ItinerarySet
	selected    *models.Itinerary
	generation  uint64
	cancel      context.CancelFunc
	subscribers map[chan Event]struct{}
	closed      bool
	lastActive  time.Time
}

// New creates a session. checker may be nil, in which case ConfirmPrice
// returns ErrPriceCheckDisabled.
func New(id string, searcher Searcher, checker providers.PriceChecker, logger *zap.Logger) *Session {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Session{
		id:          id,
		searcher:    searcher,
		checker:     checker,
		logger:      logger.With(zap.String("session_id", id)),
		sort:        models.DefaultSort(),
		subscribers: make(map[chan Event]struct{}),
		lastActive:  time.Now(),
	}
}

func (s *Session) ID() string {
	return s.id
}

func (s *Session) LastActive() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActive
}

// SearchFlights runs a new search and replaces the session's results. Any
// search still in flight is cancelled first, and a search that is overtaken
// while running returns ErrSuperseded without touching session state.
func (s *Session) SearchFlights(ctx context.Context, trip models.TripSpec) (*models.SearchResponse, error) {
	if err := trip.Validate(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrClosed
	}
	if s.cancel != nil {
		s.cancel()
	}
	searchCtx, cancel := context.WithCancel(ctx)
	s.generation++
	gen := s.generation
	s.cancel = cancel
	s.lastActive = time.Now()
	s.mu.Unlock()

	set, err := s.searcher.Search(searchCtx, trip)

	s.mu.Lock()
	defer s.mu.Unlock()
	cancel()

	if s.closed {
		return nil, ErrClosed
	}
	if gen != s.generation {
		s.logger.Debug("discarding superseded search", zap.String("route", trip.Route()))
		return nil, ErrSuperseded
	}
	s.cancel = nil

	if err != nil {
		s.publishLocked(Event{Type: EventSearchFailed, Err: err})
		return nil, err
	}

	s.trip = &trip
	s.result = set
	s.selected = nil
	resp := s.responseLocked()
	s.publishLocked(Event{Type: EventSearchCompleted, Response: resp})
	return resp, nil
}

// UpdateFilters merges the set fields of partial into the current filters.
func (s *Session) UpdateFilters(partial models.FilterSpec) (*models.SearchResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}

	merged := s.filters.Merge(partial)
	if err := merged.Validate(); err != nil {
		return nil, err
	}
	s.filters = merged
	s.lastActive = time.Now()

	resp := s.responseLocked()
	s.publishLocked(Event{Type: EventResultsChanged, Response: resp})
	return resp, nil
}

func (s *Session) UpdateSort(spec models.SortSpec) (*models.SearchResponse, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}
	s.sort = spec
	s.lastActive = time.Now()

	resp := s.responseLocked()
	s.publishLocked(Event{Type: EventResultsChanged, Response: resp})
	return resp, nil
}

// Results returns the current filtered and sorted view.
func (s *Session) Results() *models.SearchResponse {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.responseLocked()
}

// SelectFlight marks one itinerary of the current results for booking.
func (s *Session) SelectFlight(id string) (*models.Itinerary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}
	if s.result == nil {
		return nil, ErrNoResults
	}

	for _, it := range s.result.Itineraries {
		if it.ID == id {
			selected := it
			s.selected = &selected
			s.lastActive = time.Now()
			s.publishLocked(Event{Type: EventFlightSelected, Selected: &selected})
			return &selected, nil
		}
	}
	return nil, ErrItineraryNotFound
}

func (s *Session) Selected() (*models.Itinerary, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.selected == nil {
		return nil, false
	}
	it := *s.selected
	return &it, true
}

// ConfirmPrice re-checks the selected itinerary with the provider using the
// session's passengers and bag allocation.
func (s *Session) ConfirmPrice(ctx context.Context) (*models.PriceConfirmation, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrClosed
	}
	if s.selected == nil || s.trip == nil {
		s.mu.Unlock()
		return nil, ErrNothingSelected
	}
	trip := *s.trip
	token := s.selected.BookingToken
	s.mu.Unlock()

	if s.checker == nil {
		return nil, ErrPriceCheckDisabled
	}

	return s.checker.CheckPrice(ctx, providers.PriceCheckRequest{
		BookingToken: token,
		Bags:         baggage.Allocate(trip.Passengers.Adults, trip.Passengers.Children, trip.HoldBags, trip.HandBags),
		Passengers:   trip.Passengers,
		Currency:     trip.Currency,
	})
}

// Subscribe returns a channel of session events and a function that stops
// delivery. Slow subscribers miss events rather than block the session.
func (s *Session) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, subscriberBuffer)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		close(ch)
		return ch, func() {}
	}
	s.subscribers[ch] = struct{}{}

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			if _, ok := s.subscribers[ch]; ok {
				delete(s.subscribers, ch)
				close(ch)
			}
		})
	}
}

// Close cancels any in-flight search and ends all subscriptions.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	for ch := range s.subscribers {
		close(ch)
	}
	s.subscribers = map[chan Event]struct{}{}
}

func (s *Session) publishLocked(ev Event) {
	ev.SessionID = s.id
	for ch := range s.subscribers {
		select {
		case ch <- ev:
		default:
			s.logger.Debug("dropping event for slow subscriber", zap.String("event", string(ev.Type)))
		}
	}
}

func (s *Session) responseLocked() *models.SearchResponse {
	resp := &models.SearchResponse{
		SessionID: s.id,
		Filters:   s.filters,
		Sort:      s.sort,
		Flights:   []models.Itinerary{},
		Nearby:    []models.DateSummary{},
	}
	if s.trip != nil {
		resp.Trip = *s.trip
	}
	if s.result == nil {
		return resp
	}

	resp.Metadata = s.result.Metadata
	resp.Flights = filter.Apply(s.result.Itineraries, s.filters, s.sort)
	resp.Total = len(resp.Flights)
	if s.result.Alternates != nil {
		resp.Nearby = s.result.Alternates
	}
	return resp
}
