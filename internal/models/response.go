package models

import "time"

type ResultSource string

const (
	SourceLive     ResultSource = "live"
	SourceCache    ResultSource = "cache"
	SourceFallback ResultSource = "fallback"
)

// DateSummary is the lightweight result of one alternate-date query, used for
// "cheaper nearby dates" hints.
type DateSummary struct {
	Date        string    `json:"date"`
	Direction   Direction `json:"direction"`
	Offset      int       `json:"offset"`
	MinPrice    float64   `json:"min_price"`
	Currency    string    `json:"currency"`
	ResultCount int       `json:"result_count"`
}

type SearchMetadata struct {
	SearchHash      string       `json:"search_hash"`
	Source          ResultSource `json:"source"`
	Stale           bool         `json:"stale"`
	CachedAt        *time.Time   `json:"cached_at,omitempty"`
	QueriesLaunched int          `json:"queries_launched"`
	QueriesFailed   int          `json:"queries_failed"`
	PrimaryError    string       `json:"primary_error,omitempty"`
	SearchTimeMs    int64        `json:"search_time_ms"`
}

// ItinerarySet is the outcome of one orchestrated search.
type ItinerarySet struct {
	Trip        TripSpec       `json:"trip"`
	Metadata    SearchMetadata `json:"metadata"`
	Itineraries []Itinerary    `json:"itineraries"`
	Alternates  []DateSummary  `json:"alternates"`
}

type SearchResponse struct {
	SessionID string         `json:"session_id,omitempty"`
	Trip      TripSpec       `json:"trip"`
	Metadata  SearchMetadata `json:"metadata"`
	Filters   FilterSpec     `json:"filters"`
	Sort      SortSpec       `json:"sort"`
	Total     int            `json:"total_results"`
	Flights   []Itinerary    `json:"flights"`
	Nearby    []DateSummary  `json:"nearby_dates"`
}

type SearchHistoryEntry struct {
	ID          string    `json:"id"`
	Route       string    `json:"route"`
	Timestamp   time.Time `json:"timestamp"`
	ResultCount int       `json:"result_count"`
}

type Snapshot struct {
	ID          string      `json:"id"`
	Name        string      `json:"name"`
	Itineraries []Itinerary `json:"itineraries"`
	CreatedAt   time.Time   `json:"created_at"`
}

type PriceConfirmation struct {
	BookingToken   string    `json:"booking_token"`
	Price          Price     `json:"price"`
	PriceChanged   bool      `json:"price_changed"`
	FlightsChecked bool      `json:"flights_checked"`
	FlightsInvalid bool      `json:"flights_invalid"`
	CheckedAt      time.Time `json:"checked_at"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Reason  string `json:"reason,omitempty"`
	Code    int    `json:"code"`
}
