package geo

import (
	"math"
	"testing"
)

var (
	cuetCampus = Position{Lat: 22.4633, Lng: 91.9714}
	pahartoli  = Position{Lat: 22.4725, Lng: 91.9845}
)

func TestDistanceIdenticalPoints(t *testing.T) {
	if d := DistanceMeters(cuetCampus, cuetCampus); d != 0 {
		t.Errorf("Expected 0 for identical points, got %f", d)
	}
}

func TestDistanceSymmetric(t *testing.T) {
	ab := DistanceMeters(cuetCampus, pahartoli)
	ba := DistanceMeters(pahartoli, cuetCampus)
	if math.Abs(ab-ba) > 1e-9 {
		t.Errorf("Distance not symmetric: %f vs %f", ab, ba)
	}
}

func TestDistanceReferencePair(t *testing.T) {
	d := DistanceMeters(cuetCampus, pahartoli)
	if d < 1500 || d > 1900 {
		t.Errorf("CUET_CAMPUS to PAHARTOLI should be 1500-1900 m, got %f", d)
	}
}

func TestDistanceMonotonic(t *testing.T) {
	near := Position{Lat: 22.4640, Lng: 91.9720}
	far := Position{Lat: 22.4700, Lng: 91.9800}
	if DistanceMeters(cuetCampus, near) >= DistanceMeters(cuetCampus, far) {
		t.Error("Expected distance to grow with coordinate separation")
	}
}

func TestBearingRange(t *testing.T) {
	points := []Position{
		pahartoli,
		{Lat: 22.4520, Lng: 91.9650},
		{Lat: 22.4633, Lng: 91.9000},
		{Lat: 23.0, Lng: 91.9714},
		{Lat: 22.0, Lng: 91.9714},
	}
	for _, p := range points {
		b := BearingDegrees(cuetCampus, p)
		if b < 0 || b >= 360 {
			t.Errorf("Bearing out of [0,360): %f for %+v", b, p)
		}
	}
}

func TestBearingCardinal(t *testing.T) {
	north := Position{Lat: cuetCampus.Lat + 0.01, Lng: cuetCampus.Lng}
	b := BearingDegrees(cuetCampus, north)
	if math.Abs(b) > 0.5 && math.Abs(b-360) > 0.5 {
		t.Errorf("Expected ~0 bearing due north, got %f", b)
	}

	east := Position{Lat: cuetCampus.Lat, Lng: cuetCampus.Lng + 0.01}
	b = BearingDegrees(cuetCampus, east)
	if math.Abs(b-90) > 0.5 {
		t.Errorf("Expected ~90 bearing due east, got %f", b)
	}
}

func TestOctantBuckets(t *testing.T) {
	cases := []struct {
		bearing float64
		want    string
	}{
		{0, "N"},
		{337.5, "N"},
		{359.9, "N"},
		{22.4, "N"},
		{22.5, "NE"},
		{45, "NE"},
		{67.5, "E"},
		{90, "E"},
		{112.5, "SE"},
		{157.5, "S"},
		{180, "S"},
		{202.5, "SW"},
		{247.5, "W"},
		{270, "W"},
		{292.5, "NW"},
		{337.4, "NW"},
	}
	for _, c := range cases {
		if got := Octant(c.bearing); got != c.want {
			t.Errorf("Octant(%f) = %q, want %q", c.bearing, got, c.want)
		}
	}
}

func TestOctantNaN(t *testing.T) {
	if got := Octant(math.NaN()); got != "?" {
		t.Errorf("Expected ? for NaN bearing, got %q", got)
	}
}

func TestStepMovesTowardBearing(t *testing.T) {
	next := Step(cuetCampus, 0, 10)
	if next.Lat <= cuetCampus.Lat {
		t.Error("Step north should increase latitude")
	}
	if math.Abs(next.Lng-cuetCampus.Lng) > 1e-9 {
		t.Error("Step north should not change longitude")
	}

	next = Step(cuetCampus, 90, 10)
	if next.Lng <= cuetCampus.Lng {
		t.Error("Step east should increase longitude")
	}
}

func TestLookupWaypointExact(t *testing.T) {
	w, ok := LookupWaypoint("PAHARTOLI")
	if !ok || w.Name != "PAHARTOLI" {
		t.Fatalf("Expected PAHARTOLI, got %+v ok=%v", w, ok)
	}
}

func TestLookupWaypointCaseInsensitive(t *testing.T) {
	w, ok := LookupWaypoint("cuet_campus")
	if !ok || w.Name != "CUET_CAMPUS" {
		t.Fatalf("Expected CUET_CAMPUS, got %+v ok=%v", w, ok)
	}
}

func TestLookupWaypointSubstring(t *testing.T) {
	w, ok := LookupWaypoint("NOAP")
	if !ok || w.Name != "NOAPARA" {
		t.Fatalf("Expected NOAPARA via substring, got %+v ok=%v", w, ok)
	}
}

func TestLookupWaypointAlias(t *testing.T) {
	w, ok := LookupWaypoint("Pahar Bazar")
	if !ok || w.Name != "PAHARTOLI" {
		t.Fatalf("Expected PAHARTOLI via alias, got %+v ok=%v", w, ok)
	}
}

func TestLookupWaypointUnknown(t *testing.T) {
	if _, ok := LookupWaypoint("NOWHERE"); ok {
		t.Error("Expected lookup miss for unknown name")
	}
	if _, ok := LookupWaypoint(""); ok {
		t.Error("Expected lookup miss for empty name")
	}
}

func TestHashNonEmpty(t *testing.T) {
	h := Hash(cuetCampus)
	if len(h) != 7 {
		t.Errorf("Expected precision-7 geohash, got %q", h)
	}
}
