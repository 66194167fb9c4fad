// Package window expands a trip into the set of provider queries covering the
// requested dates and their neighbours.
package window

import (
	"github.com/dharmasatrya/skysearch/internal/baggage"
	"github.com/dharmasatrya/skysearch/internal/models"
)

// ProviderDateLayout is the date format the provider's query parameters use.
const ProviderDateLayout = "02/01/2006"

const DefaultRadius = 3

type Role string

const (
	RolePrimary   Role = "primary"
	RoleDeparture Role = "departure_alternate"
	RoleReturn    Role = "return_alternate"
)

// Query is one provider request. Dates are already in provider format.
type Query struct {
	Trip          models.TripSpec
	Role          Role
	Offset        int
	DepartureDate string
	ReturnDate    string
	Bags          baggage.Allocation
}

func (q Query) IsPrimary() bool {
	return q.Role == RolePrimary
}

// ShiftedDate is the calendar date this query varies, as YYYY-MM-DD: the
// return date for return alternates, the departure date otherwise.
func (q Query) ShiftedDate() string {
	if q.Role == RoleReturn && q.Trip.ReturnDate != nil {
		return *q.Trip.ReturnDate
	}
	return q.Trip.DepartureDate
}

func (q Query) Direction() models.Direction {
	if q.Role == RoleReturn {
		return models.Inbound
	}
	return models.Outbound
}

type Window struct {
	Primary    Query
	Alternates []Query
}

// Queries returns the primary followed by every alternate.
func (w Window) Queries() []Query {
	out := make([]Query, 0, 1+len(w.Alternates))
	out = append(out, w.Primary)
	return append(out, w.Alternates...)
}

func (w Window) Len() int {
	return 1 + len(w.Alternates)
}

// Build produces the primary query plus radius alternates on each side of the
// departure date and, for round trips, of the return date. Each alternate
// differs from the primary in exactly one date.
func Build(trip models.TripSpec, radius int) (Window, error) {
	if err := trip.Validate(); err != nil {
		return Window{}, err
	}
	if radius < 0 {
		radius = 0
	}

	bags := baggage.Allocate(trip.Passengers.Adults, trip.Passengers.Children, trip.HoldBags, trip.HandBags)
	w := Window{
		Primary:    newQuery(trip, RolePrimary, 0, bags),
		Alternates: make([]Query, 0, 4*radius),
	}

	dep := trip.Departure()
	for _, offset := range offsets(radius) {
		alt := trip
		alt.DepartureDate = dep.AddDate(0, 0, offset).Format(models.DateLayout)
		w.Alternates = append(w.Alternates, newQuery(alt, RoleDeparture, offset, bags))
	}

	if ret, ok := trip.Return(); ok {
		for _, offset := range offsets(radius) {
			alt := trip
			shifted := ret.AddDate(0, 0, offset).Format(models.DateLayout)
			alt.ReturnDate = &shifted
			w.Alternates = append(w.Alternates, newQuery(alt, RoleReturn, offset, bags))
		}
	}

	return w, nil
}

func offsets(radius int) []int {
	out := make([]int, 0, 2*radius)
	for d := -radius; d <= radius; d++ {
		if d != 0 {
			out = append(out, d)
		}
	}
	return out
}

func newQuery(trip models.TripSpec, role Role, offset int, bags baggage.Allocation) Query {
	q := Query{
		Trip:          trip,
		Role:          role,
		Offset:        offset,
		DepartureDate: trip.Departure().Format(ProviderDateLayout),
		Bags:          bags,
	}
	if ret, ok := trip.Return(); ok {
		q.ReturnDate = ret.Format(ProviderDateLayout)
	}
	return q
}
