package sim

import (
	"math"
	"sync"

	"github.com/rafio1020/project-aeras/internal/geo"
)

const (
	// DefaultSpeedKmh is the simulated ground speed of a rickshaw.
	DefaultSpeedKmh = 15.0

	// ArrivalRadiusMeters is the distance at which the simulator latches
	// arrival and stops moving.
	ArrivalRadiusMeters = 5.0
)

// Simulator advances a position toward a target waypoint at constant ground
// speed, one fixed-interval tick at a time. All methods are safe for
// concurrent use; the motion loop advances while reporters read the position.
type Simulator struct {
	mu            sync.Mutex
	pos           geo.Position
	target        geo.Waypoint
	metersPerTick float64
	arrived       bool
	hasTarget     bool
}

// New returns a simulator starting at pos with the given speed and tick
// interval expressed as meters per tick.
func New(pos geo.Position, speedKmh float64, tickSeconds float64) *Simulator {
	if speedKmh <= 0 {
		speedKmh = DefaultSpeedKmh
	}
	if tickSeconds <= 0 {
		tickSeconds = 1
	}
	return &Simulator{
		pos:           pos,
		metersPerTick: speedKmh * 1000.0 / 3600.0 * tickSeconds,
	}
}

// Position returns the current simulated position.
func (s *Simulator) Position() geo.Position {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pos
}

// Target returns the current target waypoint.
func (s *Simulator) Target() geo.Waypoint {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.target
}

// Arrived reports whether the simulator has latched arrival at the current
// target.
func (s *Simulator) Arrived() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.arrived
}

// Retarget points the simulator at a new waypoint and clears the arrival
// latch.
func (s *Simulator) Retarget(w geo.Waypoint) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.target = w
	s.arrived = false
	s.hasTarget = true
}

// RemainingMeters returns the distance from the current position to the
// target, or NaN when no target is set.
func (s *Simulator) RemainingMeters() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.hasTarget {
		return math.NaN()
	}
	return geo.DistanceMeters(s.pos, s.target.Position())
}

// Advance moves one tick toward the target and reports whether the simulator
// has arrived (distance within ArrivalRadiusMeters). The step is clamped to
// the remaining distance so a tick never overshoots the target. A NaN
// distance or bearing holds the position unchanged.
func (s *Simulator) Advance() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.hasTarget || s.arrived {
		return s.arrived
	}

	distance := geo.DistanceMeters(s.pos, s.target.Position())
	if math.IsNaN(distance) {
		return false
	}
	if distance <= ArrivalRadiusMeters {
		s.arrived = true
		return true
	}

	bearing := geo.BearingDegrees(s.pos, s.target.Position())
	if math.IsNaN(bearing) {
		return false
	}

	step := s.metersPerTick
	if step >= distance {
		// Snap to the target instead of stepping past it.
		s.pos = s.target.Position()
		s.arrived = true
		return true
	}

	s.pos = geo.Step(s.pos, bearing, step)
	return false
}
