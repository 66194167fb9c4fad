// Package normalizer converts raw provider flight records into canonical
// itineraries.
package normalizer

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/dharmasatrya/skysearch/internal/models"
	"github.com/dharmasatrya/skysearch/internal/timezone"
	"github.com/dharmasatrya/skysearch/pkg/currency"
)

const UnknownAirline = "Unknown"

var (
	ErrUnknownSeats      = errors.New("seat availability not reported")
	ErrInsufficientSeats = errors.New("not enough seats for all passengers")
	ErrNoRoute           = errors.New("flight has no outbound segments")
)

// NormalizeAll converts every usable record and silently drops the rest.
func NormalizeAll(raws []models.RawFlight, passengers models.Passengers) []models.Itinerary {
	out := make([]models.Itinerary, 0, len(raws))
	for _, raw := range raws {
		it, err := Normalize(raw, passengers)
		if err != nil {
			continue
		}
		out = append(out, it)
	}
	return out
}

func Normalize(raw models.RawFlight, passengers models.Passengers) (models.Itinerary, error) {
	if raw.Availability.Seats == nil {
		return models.Itinerary{}, ErrUnknownSeats
	}
	if *raw.Availability.Seats < passengers.Seated() {
		return models.Itinerary{}, ErrInsufficientSeats
	}

	segments, err := parseSegments(raw)
	if err != nil {
		return models.Itinerary{}, err
	}

	var outSegs, retSegs []models.RouteSegment
	for _, s := range segments {
		if s.Direction == models.Inbound {
			retSegs = append(retSegs, s)
		} else {
			outSegs = append(outSegs, s)
		}
	}
	if len(outSegs) == 0 {
		return models.Itinerary{}, ErrNoRoute
	}

	it := models.Itinerary{
		ID:           raw.ID,
		BookingToken: raw.BookingToken,
		Price: models.Price{
			Amount:    raw.Price,
			Currency:  raw.Currency,
			Formatted: currency.Format(raw.Price, raw.Currency),
		},
		Outbound:   buildLeg(models.Outbound, outSegs, raw.Duration.Departure),
		Airline:    airlineName(raw),
		Airlines:   raw.Airlines,
		SeatsLeft:  *raw.Availability.Seats,
		Popularity: raw.Quality,
		DeepLink:   raw.DeepLink,
	}
	if it.ID == "" {
		it.ID = raw.BookingToken
	}

	it.StopCount = it.Outbound.StopCount
	it.IsNextDay = it.Outbound.IsNextDay
	if len(retSegs) > 0 {
		ret := buildLeg(models.Inbound, retSegs, raw.Duration.Return)
		it.Return = &ret
		it.StopCount = max(it.StopCount, ret.StopCount)
	}

	return it, nil
}

func airlineName(raw models.RawFlight) string {
	if raw.Carrier != "" {
		return raw.Carrier
	}
	if len(raw.Airlines) > 0 && raw.Airlines[0] != "" {
		return raw.Airlines[0]
	}
	return UnknownAirline
}

func parseSegments(raw models.RawFlight) ([]models.RouteSegment, error) {
	route := raw.Route
	if len(route) == 0 {
		// Some records describe a direct flight only at the top level.
		route = []models.RawRouteSegment{{
			FlyFrom:        raw.FlyFrom,
			FlyTo:          raw.FlyTo,
			LocalDeparture: raw.LocalDeparture,
			UTCDeparture:   raw.UTCDeparture,
			LocalArrival:   raw.LocalArrival,
			UTCArrival:     raw.UTCArrival,
			Airline:        airlineName(raw),
		}}
	}

	segments := make([]models.RouteSegment, 0, len(route))
	for i, r := range route {
		seg, err := parseSegment(r)
		if err != nil {
			return nil, fmt.Errorf("segment %d: %w", i, err)
		}
		segments = append(segments, seg)
	}

	sort.SliceStable(segments, func(i, j int) bool {
		return segments[i].UTCDeparture.Before(segments[j].UTCDeparture)
	})
	return segments, nil
}

func parseSegment(r models.RawRouteSegment) (models.RouteSegment, error) {
	utcDep, err := timezone.ParseProviderTime(r.UTCDeparture)
	if err != nil {
		return models.RouteSegment{}, err
	}
	utcArr, err := timezone.ParseProviderTime(r.UTCArrival)
	if err != nil {
		return models.RouteSegment{}, err
	}

	localDep := localOrDerived(r.LocalDeparture, utcDep, r.FlyFrom)
	localArr := localOrDerived(r.LocalArrival, utcArr, r.FlyTo)

	direction := models.Outbound
	if r.Return == 1 {
		direction = models.Inbound
	}

	flightNo := ""
	if r.FlightNo > 0 {
		flightNo = r.Airline + strconv.Itoa(r.FlightNo)
	}

	return models.RouteSegment{
		Carrier:        r.Airline,
		FlightNumber:   flightNo,
		From:           r.FlyFrom,
		To:             r.FlyTo,
		CityFrom:       r.CityFrom,
		CityTo:         r.CityTo,
		LocalDeparture: localDep,
		LocalArrival:   localArr,
		UTCDeparture:   utcDep,
		UTCArrival:     utcArr,
		Direction:      direction,
	}, nil
}

func localOrDerived(local string, utc time.Time, airport string) time.Time {
	if local != "" {
		if t, err := timezone.ParseLocalTime(local); err == nil {
			return t
		}
	}
	return timezone.LocalFromUTC(utc, airport)
}

func buildLeg(direction models.Direction, segs []models.RouteSegment, providerSeconds int) models.Leg {
	first, last := segs[0], segs[len(segs)-1]

	seconds := providerSeconds
	if seconds <= 0 {
		seconds = int(last.UTCArrival.Sub(first.UTCDeparture).Seconds())
	}

	layovers := make([]models.Layover, 0, len(segs)-1)
	for i := 1; i < len(segs); i++ {
		wait := segs[i].UTCDeparture.Sub(segs[i-1].UTCArrival)
		layovers = append(layovers, models.Layover{
			Airport:  segs[i].From,
			Duration: NewDuration(int(wait.Seconds())),
		})
	}

	return models.Leg{
		Direction:      direction,
		LocalDeparture: first.LocalDeparture.Format(timezone.LocalLayout),
		LocalArrival:   last.LocalArrival.Format(timezone.LocalLayout),
		DepartureTime:  first.LocalDeparture.Format(timezone.TimeOfDayLayout),
		ArrivalTime:    last.LocalArrival.Format(timezone.TimeOfDayLayout),
		UTCDeparture:   first.UTCDeparture,
		UTCArrival:     last.UTCArrival,
		Duration:       NewDuration(seconds),
		Segments:       segs,
		Layovers:       layovers,
		StopCount:      len(segs) - 1,
		IsNextDay:      !timezone.SameDate(first.LocalDeparture, last.LocalArrival),
	}
}

// NewDuration renders seconds as "{hours}h {minutes}min".
func NewDuration(seconds int) models.Duration {
	if seconds < 0 {
		seconds = 0
	}
	total := seconds / 60
	hours, mins := total/60, total%60
	return models.Duration{
		Hours:        hours,
		Minutes:      mins,
		TotalMinutes: total,
		Text:         fmt.Sprintf("%dh %dmin", hours, mins),
	}
}
