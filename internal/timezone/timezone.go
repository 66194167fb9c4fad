package timezone

import (
	"strings"
	"sync"
	"time"
	_ "time/tzdata"
)

// Display layouts for local wall-clock values.
const (
	LocalLayout     = "2006-01-02 15:04"
	TimeOfDayLayout = "15:04"
)

// Used only when the provider omits a local timestamp.
var airportZones = map[string]string{
	// Europe
	"OTP": "Europe/Bucharest", // Bucharest - Henri Coanda
	"CLJ": "Europe/Bucharest", // Cluj-Napoca
	"IAS": "Europe/Bucharest", // Iasi
	"TSR": "Europe/Bucharest", // Timisoara
	"LHR": "Europe/London",    // London - Heathrow
	"LGW": "Europe/London",    // London - Gatwick
	"STN": "Europe/London",    // London - Stansted
	"LTN": "Europe/London",    // London - Luton
	"CDG": "Europe/Paris",     // Paris - Charles de Gaulle
	"ORY": "Europe/Paris",     // Paris - Orly
	"FRA": "Europe/Berlin",    // Frankfurt
	"MUC": "Europe/Berlin",    // Munich
	"BER": "Europe/Berlin",    // Berlin - Brandenburg
	"AMS": "Europe/Amsterdam", // Amsterdam - Schiphol
	"MAD": "Europe/Madrid",    // Madrid - Barajas
	"BCN": "Europe/Madrid",    // Barcelona - El Prat
	"FCO": "Europe/Rome",      // Rome - Fiumicino
	"VIE": "Europe/Vienna",    // Vienna
	"IST": "Europe/Istanbul",  // Istanbul

	// Middle East / Asia
	"DXB": "Asia/Dubai",     // Dubai
	"DOH": "Asia/Qatar",     // Doha - Hamad
	"SIN": "Asia/Singapore", // Singapore - Changi
	"CGK": "Asia/Jakarta",   // Jakarta - Soekarno-Hatta
	"DPS": "Asia/Makassar",  // Bali - Ngurah Rai
	"HND": "Asia/Tokyo",     // Tokyo - Haneda

	// Americas
	"JFK": "America/New_York",    // New York - JFK
	"EWR": "America/New_York",    // Newark
	"ORD": "America/Chicago",     // Chicago - O'Hare
	"LAX": "America/Los_Angeles", // Los Angeles
}

var (
	locMu     sync.RWMutex
	locations = map[string]*time.Location{}
)

// LocationByAirport resolves the IANA zone of an airport, falling back to UTC
// for unknown codes.
func LocationByAirport(code string) *time.Location {
	name, ok := airportZones[strings.ToUpper(code)]
	if !ok {
		return time.UTC
	}

	locMu.RLock()
	loc, cached := locations[name]
	locMu.RUnlock()
	if cached {
		return loc
	}

	loc, err := time.LoadLocation(name)
	if err != nil {
		loc = time.UTC
	}
	locMu.Lock()
	locations[name] = loc
	locMu.Unlock()
	return loc
}

var providerLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05.000Z",
	"2006-01-02T15:04:05-0700", // Without colon
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04",
}

func parseAny(timeStr string) (time.Time, error) {
	for _, layout := range providerLayouts {
		if t, err := time.Parse(layout, timeStr); err == nil {
			return t, nil
		}
	}

	return time.Time{}, &time.ParseError{
		Value:   timeStr,
		Message: "unable to parse time string",
	}
}

// ParseProviderTime parses a provider timestamp. Values without an offset are
// taken as UTC. The result is always in UTC.
func ParseProviderTime(timeStr string) (time.Time, error) {
	t, err := parseAny(timeStr)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}

// ParseLocalTime parses a provider local timestamp as a wall-clock value. The
// provider tags local times with Z even though they carry no zone meaning, so
// any offset is discarded and the wall clock is kept in UTC form. That keeps
// date-boundary comparisons between local values consistent.
func ParseLocalTime(timeStr string) (time.Time, error) {
	t, err := parseAny(timeStr)
	if err != nil {
		return time.Time{}, err
	}
	return WallClock(t), nil
}

// LocalFromUTC derives an airport's wall clock for a UTC instant.
func LocalFromUTC(utc time.Time, airportCode string) time.Time {
	return WallClock(utc.In(LocationByAirport(airportCode)))
}

// WallClock re-tags the wall-clock reading of t as UTC.
func WallClock(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), time.UTC)
}

// SameDate reports whether two wall-clock values fall on the same calendar day.
func SameDate(a, b time.Time) bool {
	ay, am, ad := a.UTC().Date()
	by, bm, bd := b.UTC().Date()
	return ay == by && am == bm && ad == bd
}
