// Package ranking scores itineraries the provider did not rank itself.
package ranking

import (
	"math"

	"github.com/dharmasatrya/skysearch/internal/models"
)

const (
	PriceWeight    = 0.5
	DurationWeight = 0.3
	StopsWeight    = 0.2
)

// FillPopularity returns a copy of itineraries where every record without a
// provider popularity gets one derived from its value relative to the set.
// Records that already carry a score are left alone.
func FillPopularity(itineraries []models.Itinerary) []models.Itinerary {
	result := make([]models.Itinerary, len(itineraries))
	copy(result, itineraries)
	if len(result) == 0 {
		return result
	}

	maxPrice := findMaxPrice(result)
	maxDuration := findMaxDuration(result)

	for i := range result {
		if result[i].Popularity > 0 {
			continue
		}
		result[i].Popularity = Popularity(result[i], maxPrice, maxDuration)
	}
	return result
}

// Popularity is the inverse of the best-value cost: cheaper, shorter, more
// direct itineraries score higher. The result lies in (0, 100].
func Popularity(it models.Itinerary, maxPrice, maxDuration float64) float64 {
	score := 100 - BestValue(it, maxPrice, maxDuration)
	if score <= 0 {
		score = 0.01
	}
	return math.Round(score*100) / 100
}

// BestValue is a weighted cost: lower means better value.
func BestValue(it models.Itinerary, maxPrice, maxDuration float64) float64 {
	priceScore := 0.0
	if maxPrice > 0 {
		priceScore = (it.Price.Amount / maxPrice) * 100
	}

	durationScore := 0.0
	if maxDuration > 0 {
		durationScore = (float64(it.TotalMinutes()) / maxDuration) * 100
	}

	stopsScore := float64(it.StopCount) * 15
	score := (priceScore * PriceWeight) + (durationScore * DurationWeight) + (stopsScore * StopsWeight)

	return math.Round(score*100) / 100
}

func findMaxPrice(itineraries []models.Itinerary) float64 {
	maxPrice := 0.0
	for _, it := range itineraries {
		if it.Price.Amount > maxPrice {
			maxPrice = it.Price.Amount
		}
	}
	return maxPrice
}

func findMaxDuration(itineraries []models.Itinerary) float64 {
	maxDuration := 0.0
	for _, it := range itineraries {
		dur := float64(it.TotalMinutes())
		if dur > maxDuration {
			maxDuration = dur
		}
	}
	return maxDuration
}
