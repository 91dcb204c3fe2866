package sim

import (
	"math"
	"sync"
	"testing"

	"github.com/rafio1020/project-aeras/internal/geo"
)

var (
	cuetCampus = geo.Position{Lat: 22.4633, Lng: 91.9714}
	pahartoli  = geo.Waypoint{Name: "PAHARTOLI", Lat: 22.4725, Lng: 91.9845}
)

func TestAdvanceStrictlyDecreasesDistance(t *testing.T) {
	s := New(cuetCampus, 15, 1)
	s.Retarget(pahartoli)

	prev := s.RemainingMeters()
	for i := 0; i < 100; i++ {
		if s.Advance() {
			break
		}
		d := s.RemainingMeters()
		if d >= prev {
			t.Fatalf("Tick %d: distance did not decrease (%f -> %f)", i, prev, d)
		}
		prev = d
	}
}

func TestConvergesWithinArrivalRadius(t *testing.T) {
	s := New(cuetCampus, 15, 1)
	s.Retarget(pahartoli)

	// ~1.7 km at 4.17 m/s is ~420 ticks; allow slack.
	arrived := false
	for i := 0; i < 1000; i++ {
		if s.Advance() {
			arrived = true
			break
		}
	}
	if !arrived {
		t.Fatal("Simulator never signaled arrival")
	}
	if d := s.RemainingMeters(); d > ArrivalRadiusMeters {
		t.Errorf("Arrived with %f m remaining, want <= %f", d, ArrivalRadiusMeters)
	}
}

func TestArrivalLatched(t *testing.T) {
	start := geo.Position{Lat: pahartoli.Lat, Lng: pahartoli.Lng}
	s := New(start, 15, 1)
	s.Retarget(pahartoli)

	if !s.Advance() {
		t.Fatal("Expected immediate arrival at target")
	}
	pos := s.Position()
	if !s.Advance() {
		t.Error("Arrival should stay latched")
	}
	if s.Position() != pos {
		t.Error("Position must not change after arrival")
	}
}

func TestStepClampNoOvershoot(t *testing.T) {
	// Start ~6 m south of the target: one 4.17 m tick leaves it inside the
	// next tick's step, which must snap to the target instead of passing it.
	start := geo.Step(pahartoli.Position(), 180, 6)
	s := New(start, 15, 1)
	s.Retarget(pahartoli)

	for i := 0; i < 5 && !s.Advance(); i++ {
	}
	if !s.Arrived() {
		t.Fatal("Expected arrival within a few ticks")
	}
	if d := geo.DistanceMeters(s.Position(), pahartoli.Position()); d > ArrivalRadiusMeters {
		t.Errorf("Overshot target: %f m away after arrival", d)
	}
}

func TestRetargetClearsArrival(t *testing.T) {
	s := New(pahartoli.Position(), 15, 1)
	s.Retarget(pahartoli)
	s.Advance()
	if !s.Arrived() {
		t.Fatal("Expected arrival at co-located target")
	}

	s.Retarget(geo.Waypoint{Name: "CUET_CAMPUS", Lat: cuetCampus.Lat, Lng: cuetCampus.Lng})
	if s.Arrived() {
		t.Error("Retarget should clear the arrival latch")
	}
	if s.Advance() {
		t.Error("Should not arrive immediately at a distant target")
	}
}

func TestConcurrentAdvanceAndReads(t *testing.T) {
	s := New(cuetCampus, 15, 1)
	// A target far enough away that arrival never latches during the test.
	s.Retarget(geo.Waypoint{Name: "RAOJAN", Lat: 22.5333, Lng: 91.9200})

	var wg sync.WaitGroup
	wg.Add(3)
	go func() {
		defer wg.Done()
		for i := 0; i < 500; i++ {
			s.Advance()
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 500; i++ {
			pos := s.Position()
			if math.IsNaN(pos.Lat) || math.IsNaN(pos.Lng) {
				t.Error("Position went NaN under concurrent access")
				return
			}
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 500; i++ {
			if !s.Arrived() && math.IsNaN(s.RemainingMeters()) {
				t.Error("RemainingMeters went NaN with a target set")
				return
			}
			_ = s.Target()
		}
	}()
	wg.Wait()

	if d := s.RemainingMeters(); math.IsNaN(d) || d <= 0 {
		t.Errorf("Expected a positive remaining distance, got %f", d)
	}
}

func TestNoTargetIsInert(t *testing.T) {
	s := New(cuetCampus, 15, 1)
	if s.Advance() {
		t.Error("Advance without a target should not signal arrival")
	}
	if s.Position() != cuetCampus {
		t.Error("Position must not move without a target")
	}
	if !math.IsNaN(s.RemainingMeters()) {
		t.Error("RemainingMeters without a target should be NaN")
	}
}
