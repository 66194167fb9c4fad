package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strings"

	"github.com/dharmasatrya/skysearch/internal/models"
)

// Key prefixes partition the store by record kind.
const (
	ResultPrefix   = "result:"
	HistoryPrefix  = "history:"
	SnapshotPrefix = "snapshot:"
)

// SearchHash derives the cache identity of a trip from its normalized fields
// only. Currency, locale and bag counts do not change which flights exist and
// are left out.
func SearchHash(trip models.TripSpec) string {
	keyData := struct {
		Origin        string `json:"origin"`
		Destination   string `json:"destination"`
		DepartureDate string `json:"departure_date"`
		ReturnDate    string `json:"return_date"`
		OneWay        bool   `json:"one_way"`
		Adults        int    `json:"adults"`
		Children      int    `json:"children"`
		Infants       int    `json:"infants"`
		CabinClass    string `json:"cabin_class"`
	}{
		Origin:        strings.ToUpper(strings.TrimSpace(trip.Origin)),
		Destination:   strings.ToUpper(strings.TrimSpace(trip.Destination)),
		DepartureDate: trip.DepartureDate,
		OneWay:        trip.OneWay || trip.ReturnDate == nil,
		Adults:        trip.Passengers.Adults,
		Children:      trip.Passengers.Children,
		Infants:       trip.Passengers.Infants,
		CabinClass:    string(trip.CabinClass),
	}

	if trip.ReturnDate != nil && !keyData.OneWay {
		keyData.ReturnDate = *trip.ReturnDate
	}
	if keyData.CabinClass == "" {
		keyData.CabinClass = string(models.CabinEconomy)
	}

	data, _ := json.Marshal(keyData)
	hash := sha256.Sum256(data)
	return hex.EncodeToString(hash[:])
}

func resultKey(hash string) string {
	return ResultPrefix + hash
}
