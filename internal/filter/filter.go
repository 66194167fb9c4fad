// Package filter narrows and orders normalized itineraries. Apply never
// modifies its input.
package filter

import (
	"sort"
	"strings"

	"github.com/dharmasatrya/skysearch/internal/models"
	"github.com/dharmasatrya/skysearch/internal/ranking"
)

func Apply(itineraries []models.Itinerary, filters models.FilterSpec, spec models.SortSpec) []models.Itinerary {
	filtered := applyFilters(itineraries, filters)

	if spec.Field == models.SortByPopularity {
		filtered = ranking.FillPopularity(filtered)
	}

	applySort(filtered, spec)
	return filtered
}

func applyFilters(itineraries []models.Itinerary, filters models.FilterSpec) []models.Itinerary {
	result := make([]models.Itinerary, 0, len(itineraries))
	for _, it := range itineraries {
		if matchesFilters(it, filters) {
			result = append(result, it)
		}
	}
	return result
}

func matchesFilters(it models.Itinerary, filters models.FilterSpec) bool {
	if filters.PriceMin != nil && it.Price.Amount < *filters.PriceMin {
		return false
	}
	if filters.PriceMax != nil && it.Price.Amount > *filters.PriceMax {
		return false
	}

	if len(filters.Airlines) > 0 && !matchesAirline(it, filters.Airlines) {
		return false
	}

	if len(filters.Stops) > 0 {
		found := false
		for _, s := range filters.Stops {
			if it.StopCount == s {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}

	// HH:mm is fixed width, so string order is time order.
	if !inRange(it.Outbound.DepartureTime, filters.DepartureFrom, filters.DepartureTo) {
		return false
	}
	if !inRange(it.Outbound.ArrivalTime, filters.ArrivalFrom, filters.ArrivalTo) {
		return false
	}

	if filters.MaxDuration != nil && it.TotalMinutes() > *filters.MaxDuration {
		return false
	}

	return true
}

func matchesAirline(it models.Itinerary, allowed []string) bool {
	for _, airline := range allowed {
		if strings.EqualFold(it.Airline, airline) {
			return true
		}
		for _, code := range it.Airlines {
			if strings.EqualFold(code, airline) {
				return true
			}
		}
	}
	return false
}

func inRange(v string, from, to *string) bool {
	if from != nil && v < *from {
		return false
	}
	if to != nil && v > *to {
		return false
	}
	return true
}

func applySort(itineraries []models.Itinerary, spec models.SortSpec) {
	if len(itineraries) < 2 {
		return
	}

	var less func(a, b models.Itinerary) bool
	switch spec.Field {
	case models.SortByDuration:
		less = func(a, b models.Itinerary) bool { return a.TotalMinutes() < b.TotalMinutes() }
	case models.SortByDeparture:
		less = func(a, b models.Itinerary) bool { return a.Outbound.UTCDeparture.Before(b.Outbound.UTCDeparture) }
	case models.SortByArrival:
		less = func(a, b models.Itinerary) bool { return a.Outbound.UTCArrival.Before(b.Outbound.UTCArrival) }
	case models.SortByPopularity:
		less = func(a, b models.Itinerary) bool { return a.Popularity < b.Popularity }
	case models.SortByStops:
		less = func(a, b models.Itinerary) bool { return a.StopCount < b.StopCount }
	default:
		less = func(a, b models.Itinerary) bool { return a.Price.Amount < b.Price.Amount }
	}

	// Equal keys keep their relative order in both directions.
	if spec.Direction == models.SortDesc {
		sort.SliceStable(itineraries, func(i, j int) bool {
			return less(itineraries[j], itineraries[i])
		})
		return
	}
	sort.SliceStable(itineraries, func(i, j int) bool {
		return less(itineraries[i], itineraries[j])
	})
}
