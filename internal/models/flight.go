package models

import "time"

type Direction string

const (
	Outbound Direction = "outbound"
	Inbound  Direction = "return"
)

type Price struct {
	Amount    float64 `json:"amount"`
	Currency  string  `json:"currency"`
	Formatted string  `json:"formatted"`
}

type Duration struct {
	Hours        int    `json:"hours"`
	Minutes      int    `json:"minutes"`
	TotalMinutes int    `json:"total_minutes"`
	Text         string `json:"text"`
}

// RouteSegment is a single flown leg. Local times carry the airport's wall
// clock, UTC times are used for all arithmetic.
type RouteSegment struct {
	Carrier        string    `json:"carrier"`
	FlightNumber   string    `json:"flight_number"`
	From           string    `json:"from"`
	To             string    `json:"to"`
	CityFrom       string    `json:"city_from,omitempty"`
	CityTo         string    `json:"city_to,omitempty"`
	LocalDeparture time.Time `json:"local_departure"`
	LocalArrival   time.Time `json:"local_arrival"`
	UTCDeparture   time.Time `json:"utc_departure"`
	UTCArrival     time.Time `json:"utc_arrival"`
	Direction      Direction `json:"direction"`
}

type Layover struct {
	Airport  string   `json:"airport"`
	Duration Duration `json:"duration"`
}

// Leg is one direction of an itinerary.
type Leg struct {
	Direction      Direction      `json:"direction"`
	LocalDeparture string         `json:"local_departure"`
	LocalArrival   string         `json:"local_arrival"`
	DepartureTime  string         `json:"departure_time"`
	ArrivalTime    string         `json:"arrival_time"`
	UTCDeparture   time.Time      `json:"utc_departure"`
	UTCArrival     time.Time      `json:"utc_arrival"`
	Duration       Duration       `json:"duration"`
	Segments       []RouteSegment `json:"segments"`
	Layovers       []Layover      `json:"layovers,omitempty"`
	StopCount      int            `json:"stop_count"`
	IsNextDay      bool           `json:"is_next_day"`
}

// Itinerary is the canonical, provider-independent form of one bookable
// flight option.
type Itinerary struct {
	ID           string   `json:"id"`
	BookingToken string   `json:"booking_token"`
	Price        Price    `json:"price"`
	Outbound     Leg      `json:"outbound"`
	Return       *Leg     `json:"return,omitempty"`
	StopCount    int      `json:"stop_count"`
	IsNextDay    bool     `json:"is_next_day"`
	Airline      string   `json:"airline"`
	Airlines     []string `json:"airlines,omitempty"`
	SeatsLeft    int      `json:"seats_left"`
	Popularity   float64  `json:"popularity"`
	DeepLink     string   `json:"deep_link,omitempty"`
}

// TotalMinutes is the flown time across both directions.
func (it Itinerary) TotalMinutes() int {
	total := it.Outbound.Duration.TotalMinutes
	if it.Return != nil {
		total += it.Return.Duration.TotalMinutes
	}
	return total
}

// RawFlight is a flight record as the provider returns it.
type RawFlight struct {
	ID             string            `json:"id"`
	FlyFrom        string            `json:"flyFrom"`
	FlyTo          string            `json:"flyTo"`
	LocalDeparture string            `json:"local_departure"`
	UTCDeparture   string            `json:"utc_departure"`
	LocalArrival   string            `json:"local_arrival"`
	UTCArrival     string            `json:"utc_arrival"`
	Duration       RawDuration       `json:"duration"`
	Price          float64           `json:"price"`
	Currency       string            `json:"currency,omitempty"`
	Availability   RawAvailability   `json:"availability"`
	Carrier        string            `json:"carrier,omitempty"`
	Airlines       []string          `json:"airlines"`
	Route          []RawRouteSegment `json:"route"`
	BookingToken   string            `json:"booking_token"`
	Quality        float64           `json:"quality,omitempty"`
	DeepLink       string            `json:"deep_link,omitempty"`
}

type RawDuration struct {
	Departure int `json:"departure"`
	Return    int `json:"return"`
	Total     int `json:"total"`
}

type RawAvailability struct {
	Seats *int `json:"seats"`
}

type RawRouteSegment struct {
	ID               string `json:"id"`
	FlyFrom          string `json:"flyFrom"`
	FlyTo            string `json:"flyTo"`
	CityFrom         string `json:"cityFrom"`
	CityTo           string `json:"cityTo"`
	LocalDeparture   string `json:"local_departure"`
	UTCDeparture     string `json:"utc_departure"`
	LocalArrival     string `json:"local_arrival"`
	UTCArrival       string `json:"utc_arrival"`
	Airline          string `json:"airline"`
	FlightNo         int    `json:"flight_no"`
	OperatingCarrier string `json:"operating_carrier,omitempty"`
	Return           int    `json:"return"`
}
