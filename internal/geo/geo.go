package geo

import (
	"math"
	"strings"

	"github.com/mmcloughlin/geohash"
)

const (
	// EarthRadiusMeters is the mean Earth radius used by the haversine
	// formula.
	EarthRadiusMeters = 6371000.0

	// metersPerDegreeLat is the local planar scale for one degree of
	// latitude. Longitude scale shrinks with cos(lat).
	metersPerDegreeLat = 111320.0

	hashPrecision = 7
)

// Position is a WGS 84 coordinate in decimal degrees.
type Position struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Waypoint is a named fixed location that can serve as a pickup or
// destination block.
type Waypoint struct {
	Name string
	Lat  float64
	Lng  float64
}

// Position returns the waypoint's coordinate.
func (w Waypoint) Position() Position { return Position{Lat: w.Lat, Lng: w.Lng} }

// Waypoints is the static reference table of service locations.
var Waypoints = []Waypoint{
	{"CUET_CAMPUS", 22.4633, 91.9714},
	{"PAHARTOLI", 22.4725, 91.9845},
	{"NOAPARA", 22.4580, 91.9920},
	{"RAOJAN", 22.4520, 91.9650},
}

// aliases maps loose keywords to canonical waypoint names, used as a
// last-resort lookup fallback.
var aliases = map[string]string{
	"PAHAR":   "PAHARTOLI",
	"CUET":    "CUET_CAMPUS",
	"NOAPARA": "NOAPARA",
	"RAOJAN":  "RAOJAN",
}

// LookupWaypoint resolves a location name to a waypoint. Matching is
// case-insensitive: exact name first, then substring containment in either
// direction, then the alias keyword table.
func LookupWaypoint(name string) (Waypoint, bool) {
	q := strings.ToUpper(strings.TrimSpace(name))
	if q == "" {
		return Waypoint{}, false
	}
	for _, w := range Waypoints {
		if w.Name == q {
			return w, true
		}
	}
	for _, w := range Waypoints {
		if strings.Contains(w.Name, q) || strings.Contains(q, w.Name) {
			return w, true
		}
	}
	for key, canonical := range aliases {
		if strings.Contains(q, key) {
			for _, w := range Waypoints {
				if w.Name == canonical {
					return w, true
				}
			}
		}
	}
	return Waypoint{}, false
}

// DistanceMeters returns the great-circle distance between a and b using the
// haversine formula. It is symmetric and returns 0 for identical points. A
// NaN result (degenerate input) propagates; callers must treat NaN as
// "unknown" and hold their current state.
func DistanceMeters(a, b Position) float64 {
	dLat := radians(b.Lat - a.Lat)
	dLng := radians(b.Lng - a.Lng)

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(radians(a.Lat))*math.Cos(radians(b.Lat))*
			math.Sin(dLng/2)*math.Sin(dLng/2)

	return 2 * EarthRadiusMeters * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
}

// BearingDegrees returns the initial forward azimuth from a to b, normalized
// into [0, 360).
func BearingDegrees(a, b Position) float64 {
	dLng := radians(b.Lng - a.Lng)
	lat1 := radians(a.Lat)
	lat2 := radians(b.Lat)

	y := math.Sin(dLng) * math.Cos(lat2)
	x := math.Cos(lat1)*math.Sin(lat2) - math.Sin(lat1)*math.Cos(lat2)*math.Cos(dLng)
	bearing := math.Atan2(y, x) * 180.0 / math.Pi

	return math.Mod(bearing+360.0, 360.0)
}

// Step advances from p by stepMeters along the given bearing, using the
// local-degree planar approximation. Valid for kilometer-scale hops; it is
// deliberately not great-circle-accurate.
func Step(p Position, bearingDeg, stepMeters float64) Position {
	bearingRad := radians(bearingDeg)
	dLatMeters := stepMeters * math.Cos(bearingRad)
	dLngMeters := stepMeters * math.Sin(bearingRad)

	metersPerDegreeLng := metersPerDegreeLat * math.Cos(radians(p.Lat))

	return Position{
		Lat: p.Lat + dLatMeters/metersPerDegreeLat,
		Lng: p.Lng + dLngMeters/metersPerDegreeLng,
	}
}

var octants = []string{"N", "NE", "E", "SE", "S", "SW", "W", "NW"}

// Octant buckets a bearing into one of eight 45-degree compass sectors.
// A bearing exactly on a sector boundary belongs to the clockwise-next
// sector (22.5 is NE, 67.5 is E). Returns "?" for NaN.
func Octant(bearingDeg float64) string {
	if math.IsNaN(bearingDeg) {
		return "?"
	}
	b := math.Mod(math.Mod(bearingDeg, 360)+360, 360)
	if b >= 337.5 || b < 22.5 {
		return "N"
	}
	idx := int((b - 22.5) / 45.0)
	return octants[idx+1]
}

// Hash returns the geohash tag attached to position reports, for backend
// spatial indexing.
func Hash(p Position) string {
	return geohash.EncodeWithPrecision(p.Lat, p.Lng, hashPrecision)
}

func radians(deg float64) float64 { return deg * math.Pi / 180.0 }
