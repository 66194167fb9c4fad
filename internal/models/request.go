package models

import (
	"strings"
	"time"
)

// DateLayout is the calendar date format accepted from clients.
const DateLayout = "2006-01-02"

// MaxSeatedPassengers is the most seats the provider books in one search.
const MaxSeatedPassengers = 9

type CabinClass string

const (
	CabinEconomy        CabinClass = "economy"
	CabinPremiumEconomy CabinClass = "premium_economy"
	CabinBusiness       CabinClass = "business"
	CabinFirst          CabinClass = "first"
)

func (c CabinClass) Valid() bool {
	switch c {
	case CabinEconomy, CabinPremiumEconomy, CabinBusiness, CabinFirst:
		return true
	}
	return false
}

type Passengers struct {
	Adults   int `json:"adults"`
	Children int `json:"children"`
	Infants  int `json:"infants"`
}

// Seated is the number of passengers that need their own seat. Infants fly on
// an adult's lap.
func (p Passengers) Seated() int {
	return p.Adults + p.Children
}

func (p Passengers) Total() int {
	return p.Adults + p.Children + p.Infants
}

// TripSpec describes one user search action. A missing return date means the
// trip is one-way.
type TripSpec struct {
	Origin        string     `json:"origin"`
	Destination   string     `json:"destination"`
	DepartureDate string     `json:"departure_date"`
	ReturnDate    *string    `json:"return_date,omitempty"`
	OneWay        bool       `json:"one_way"`
	Passengers    Passengers `json:"passengers"`
	HoldBags      int        `json:"hold_bags"`
	HandBags      int        `json:"hand_bags"`
	CabinClass    CabinClass `json:"cabin_class"`
	Currency      string     `json:"currency"`
	Locale        string     `json:"locale"`
}

// Validate checks the trip and fills in defaults for optional fields.
func (t *TripSpec) Validate() error {
	t.Origin = strings.ToUpper(strings.TrimSpace(t.Origin))
	t.Destination = strings.ToUpper(strings.TrimSpace(t.Destination))

	if t.Origin == "" {
		return ErrMissingOrigin
	}
	if t.Destination == "" {
		return ErrMissingDestination
	}
	if t.Origin == t.Destination {
		return ErrSameAirports
	}
	if t.DepartureDate == "" {
		return ErrMissingDepartureDate
	}
	dep, err := time.Parse(DateLayout, t.DepartureDate)
	if err != nil {
		return ErrInvalidDepartureDate
	}

	if t.ReturnDate != nil && *t.ReturnDate == "" {
		t.ReturnDate = nil
	}
	if t.OneWay || t.ReturnDate == nil {
		t.OneWay = true
		t.ReturnDate = nil
	} else {
		ret, err := time.Parse(DateLayout, *t.ReturnDate)
		if err != nil {
			return ErrInvalidReturnDate
		}
		if ret.Before(dep) {
			return ErrReturnBeforeDeparture
		}
	}

	if t.Passengers.Adults < 1 {
		return ErrNoAdults
	}
	if t.Passengers.Children < 0 || t.Passengers.Infants < 0 {
		return ErrNegativePassengers
	}
	// Checked per class first so the sum cannot overflow.
	if t.Passengers.Adults > MaxSeatedPassengers || t.Passengers.Children > MaxSeatedPassengers ||
		t.Passengers.Seated() > MaxSeatedPassengers {
		return ErrTooManyPassengers
	}
	if t.Passengers.Infants > t.Passengers.Adults {
		return ErrTooManyInfants
	}
	if t.HoldBags < 0 || t.HandBags < 0 {
		return ErrNegativeBags
	}

	if t.CabinClass == "" {
		t.CabinClass = CabinEconomy
	}
	t.CabinClass = CabinClass(strings.ToLower(string(t.CabinClass)))
	if !t.CabinClass.Valid() {
		return ErrInvalidCabinClass
	}
	if t.Currency == "" {
		t.Currency = "EUR"
	}
	t.Currency = strings.ToUpper(t.Currency)
	if t.Locale == "" {
		t.Locale = "en"
	}
	return nil
}

// Departure returns the parsed departure date. The trip must be validated.
func (t TripSpec) Departure() time.Time {
	d, _ := time.Parse(DateLayout, t.DepartureDate)
	return d
}

// Return returns the parsed return date, or false for one-way trips.
func (t TripSpec) Return() (time.Time, bool) {
	if t.ReturnDate == nil {
		return time.Time{}, false
	}
	d, err := time.Parse(DateLayout, *t.ReturnDate)
	if err != nil {
		return time.Time{}, false
	}
	return d, true
}

func (t TripSpec) Route() string {
	return t.Origin + "-" + t.Destination
}

type ValidationError string

func (e ValidationError) Error() string {
	return string(e)
}

const (
	ErrMissingOrigin         ValidationError = "origin is required"
	ErrMissingDestination    ValidationError = "destination is required"
	ErrSameAirports          ValidationError = "origin and destination must differ"
	ErrMissingDepartureDate  ValidationError = "departure_date is required"
	ErrInvalidDepartureDate  ValidationError = "departure_date must be YYYY-MM-DD"
	ErrInvalidReturnDate     ValidationError = "return_date must be YYYY-MM-DD"
	ErrReturnBeforeDeparture ValidationError = "return_date must not be before departure_date"
	ErrNoAdults              ValidationError = "at least one adult is required"
	ErrNegativePassengers    ValidationError = "passenger counts must not be negative"
	ErrTooManyInfants        ValidationError = "infants must not outnumber adults"
	ErrTooManyPassengers     ValidationError = "at most 9 adults and children per search"
	ErrNegativeBags          ValidationError = "bag counts must not be negative"
	ErrInvalidCabinClass     ValidationError = "cabin_class must be one of economy, premium_economy, business, first"
	ErrInvalidSortField      ValidationError = "sort field must be one of price, duration, departure, arrival, popularity, stops"
	ErrInvalidSortDirection  ValidationError = "sort direction must be asc or desc"
	ErrInvalidTimeOfDay      ValidationError = "time filters must be HH:mm"
)

type FilterSpec struct {
	PriceMin      *float64 `json:"price_min,omitempty"`
	PriceMax      *float64 `json:"price_max,omitempty"`
	Airlines      []string `json:"airlines,omitempty"`
	Stops         []int    `json:"stops,omitempty"`
	DepartureFrom *string  `json:"departure_from,omitempty"`
	DepartureTo   *string  `json:"departure_to,omitempty"`
	ArrivalFrom   *string  `json:"arrival_from,omitempty"`
	ArrivalTo     *string  `json:"arrival_to,omitempty"`
	MaxDuration   *int     `json:"max_duration_minutes,omitempty"`
}

// Merge overlays the fields set in partial. A non-nil empty slice clears the
// corresponding set filter.
func (f FilterSpec) Merge(partial FilterSpec) FilterSpec {
	out := f
	if partial.PriceMin != nil {
		out.PriceMin = partial.PriceMin
	}
	if partial.PriceMax != nil {
		out.PriceMax = partial.PriceMax
	}
	if partial.Airlines != nil {
		out.Airlines = partial.Airlines
	}
	if partial.Stops != nil {
		out.Stops = partial.Stops
	}
	if partial.DepartureFrom != nil {
		out.DepartureFrom = partial.DepartureFrom
	}
	if partial.DepartureTo != nil {
		out.DepartureTo = partial.DepartureTo
	}
	if partial.ArrivalFrom != nil {
		out.ArrivalFrom = partial.ArrivalFrom
	}
	if partial.ArrivalTo != nil {
		out.ArrivalTo = partial.ArrivalTo
	}
	if partial.MaxDuration != nil {
		out.MaxDuration = partial.MaxDuration
	}
	return out
}

func (f FilterSpec) Validate() error {
	for _, v := range []*string{f.DepartureFrom, f.DepartureTo, f.ArrivalFrom, f.ArrivalTo} {
		if v == nil {
			continue
		}
		if _, err := time.Parse("15:04", *v); err != nil || len(*v) != 5 {
			return ErrInvalidTimeOfDay
		}
	}
	return nil
}

type SortField string

const (
	SortByPrice      SortField = "price"
	SortByDuration   SortField = "duration"
	SortByDeparture  SortField = "departure"
	SortByArrival    SortField = "arrival"
	SortByPopularity SortField = "popularity"
	SortByStops      SortField = "stops"
)

type SortDirection string

const (
	SortAsc  SortDirection = "asc"
	SortDesc SortDirection = "desc"
)

type SortSpec struct {
	Field     SortField     `json:"field"`
	Direction SortDirection `json:"direction"`
}

func DefaultSort() SortSpec {
	return SortSpec{Field: SortByPrice, Direction: SortAsc}
}

// Validate fills in defaults and rejects unknown fields or directions.
func (s *SortSpec) Validate() error {
	if s.Field == "" {
		s.Field = SortByPrice
	}
	if s.Direction == "" {
		s.Direction = SortAsc
	}
	s.Field = SortField(strings.ToLower(string(s.Field)))
	s.Direction = SortDirection(strings.ToLower(string(s.Direction)))
	switch s.Field {
	case SortByPrice, SortByDuration, SortByDeparture, SortByArrival, SortByPopularity, SortByStops:
	default:
		return ErrInvalidSortField
	}
	if s.Direction != SortAsc && s.Direction != SortDesc {
		return ErrInvalidSortDirection
	}
	return nil
}
