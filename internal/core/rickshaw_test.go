package core

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/librescoot/librefsm"

	"github.com/rafio1020/project-aeras/internal/backend"
	"github.com/rafio1020/project-aeras/internal/fsm"
	"github.com/rafio1020/project-aeras/internal/geo"
	"github.com/rafio1020/project-aeras/internal/logger"
	"github.com/rafio1020/project-aeras/internal/types"
)

func newTestRickshawSystemAt(start geo.Position) (*RickshawSystem, *mockCorrelator, *mockMessagingClient) {
	l := logger.NewLogger(nil, logger.LogLevelError)
	correlator := newMockCorrelator()
	redis := newMockMessagingClient()
	cfg := RickshawConfig{
		NodeID:      "RICKSHAW_7",
		DisplayName: "Test Puller",
		SpeedKmh:    15,
		Start:       start,
	}
	system := NewRickshawSystem(cfg, correlator, redis, l, nil)
	return system, correlator, redis
}

func newTestRickshawSystem() (*RickshawSystem, *mockCorrelator, *mockMessagingClient) {
	return newTestRickshawSystemAt(geo.Position{Lat: 22.4600, Lng: 91.9700})
}

func initTestRickshawFSM(t *testing.T, system *RickshawSystem) {
	t.Helper()
	if err := system.initFSM(context.Background()); err != nil {
		t.Fatalf("Failed to initialize FSM: %v", err)
	}
}

func mustWaypoint(t *testing.T, name string) geo.Waypoint {
	t.Helper()
	wp, ok := geo.LookupWaypoint(name)
	if !ok {
		t.Fatalf("Unknown waypoint %s", name)
	}
	return wp
}

func pendingRide(id string) backend.PendingRide {
	return backend.PendingRide{
		RideID:      id,
		Pickup:      "CUET_CAMPUS",
		Destination: "PAHARTOLI",
	}
}

// setActiveSession puts the system into a mid-ride state without going
// through the backend.
func setActiveSession(t *testing.T, system *RickshawSystem, state librefsm.StateID) {
	t.Helper()
	system.mu.Lock()
	system.session = types.RideSession{
		RideID:      "RIDE_1",
		Pickup:      "CUET_CAMPUS",
		Destination: "PAHARTOLI",
	}
	system.pickupWp = mustWaypoint(t, "CUET_CAMPUS")
	system.destWp = mustWaypoint(t, "PAHARTOLI")
	system.mu.Unlock()

	if err := system.machine.SetState(state); err != nil {
		t.Fatalf("Failed to set state: %v", err)
	}
}

// ===== Basic Construction Tests =====

func TestNewRickshawSystem(t *testing.T) {
	system, correlator, redis := newTestRickshawSystem()

	if system == nil {
		t.Fatal("NewRickshawSystem returned nil")
	}
	if system.backend != correlator {
		t.Error("backend not set correctly")
	}
	if system.redis != MessagingClient(redis) {
		t.Error("redis not set correctly")
	}
}

func TestRickshawInitialStateIsAvailable(t *testing.T) {
	system, _, _ := newTestRickshawSystem()
	initTestRickshawFSM(t, system)

	if system.CurrentState() != fsm.VehicleStateAvailable {
		t.Errorf("Expected available, got %v", system.CurrentState())
	}
}

// ===== Pending Poll Tests =====

func TestPollPendingCreatesOffer(t *testing.T) {
	system, correlator, _ := newTestRickshawSystem()
	initTestRickshawFSM(t, system)

	correlator.pending = []backend.PendingRide{pendingRide("RIDE_1")}
	system.pollPending()
	time.Sleep(50 * time.Millisecond)

	if system.CurrentState() != fsm.VehicleStateOfferPending {
		t.Fatalf("Expected offer-pending, got %v", system.CurrentState())
	}

	system.mu.RLock()
	offer := system.offer
	system.mu.RUnlock()
	if offer == nil {
		t.Fatal("Expected offer to be stored")
	}
	if offer.RideID != "RIDE_1" {
		t.Errorf("Expected RIDE_1, got %s", offer.RideID)
	}
	if offer.DistanceKm <= 0 {
		t.Errorf("Expected computed pickup distance, got %f", offer.DistanceKm)
	}
}

func TestPollPendingSkipsSeenOffers(t *testing.T) {
	system, correlator, _ := newTestRickshawSystem()
	initTestRickshawFSM(t, system)

	system.mu.Lock()
	system.seenOffers["RIDE_1"] = struct{}{}
	system.mu.Unlock()

	correlator.pending = []backend.PendingRide{pendingRide("RIDE_1")}
	system.pollPending()
	time.Sleep(50 * time.Millisecond)

	if system.CurrentState() != fsm.VehicleStateAvailable {
		t.Errorf("Expected available, got %v", system.CurrentState())
	}
}

func TestPollPendingWithdrawsStaleOffer(t *testing.T) {
	system, correlator, _ := newTestRickshawSystem()
	initTestRickshawFSM(t, system)

	correlator.pending = []backend.PendingRide{pendingRide("RIDE_1")}
	system.pollPending()
	time.Sleep(50 * time.Millisecond)

	// The ride disappears from the pending list before anyone accepts it
	correlator.pending = nil
	system.pollPending()
	time.Sleep(50 * time.Millisecond)

	if system.CurrentState() != fsm.VehicleStateAvailable {
		t.Errorf("Expected available after withdrawal, got %v", system.CurrentState())
	}

	system.mu.RLock()
	_, seen := system.seenOffers["RIDE_1"]
	system.mu.RUnlock()
	if !seen {
		t.Error("Expected withdrawn ride to be marked as seen")
	}
}

// ===== Accept / Reject Tests =====

func offerRide(t *testing.T, system *RickshawSystem, correlator *mockCorrelator) {
	t.Helper()
	correlator.pending = []backend.PendingRide{pendingRide("RIDE_1")}
	system.pollPending()
	time.Sleep(50 * time.Millisecond)
	if system.CurrentState() != fsm.VehicleStateOfferPending {
		t.Fatalf("Expected offer-pending, got %v", system.CurrentState())
	}
}

func TestAcceptRide(t *testing.T) {
	system, correlator, redis := newTestRickshawSystem()
	initTestRickshawFSM(t, system)
	offerRide(t, system, correlator)

	if err := system.HandleRideCommand("accept"); err != nil {
		t.Fatalf("accept failed: %v", err)
	}
	time.Sleep(50 * time.Millisecond)

	if len(correlator.accepted) != 1 || correlator.accepted[0] != "RIDE_1" {
		t.Errorf("Expected RIDE_1 accepted, got %v", correlator.accepted)
	}
	if system.CurrentState() != fsm.VehicleStateEnRoutePickup {
		t.Errorf("Expected en-route-pickup, got %v", system.CurrentState())
	}
	if system.sim.Target().Name != "CUET_CAMPUS" {
		t.Errorf("Expected simulator targeting CUET_CAMPUS, got %s", system.sim.Target().Name)
	}
	if len(redis.rideInfos) != 1 || redis.rideInfos[0].rideID != "RIDE_1" {
		t.Errorf("Expected ride info recorded, got %v", redis.rideInfos)
	}
}

func TestAcceptConflictClearsOffer(t *testing.T) {
	system, correlator, _ := newTestRickshawSystem()
	initTestRickshawFSM(t, system)
	offerRide(t, system, correlator)

	correlator.acceptErr = backend.ErrRideTaken
	if err := system.HandleRideCommand("accept"); err != nil {
		t.Fatalf("accept conflict should not return an error: %v", err)
	}
	time.Sleep(50 * time.Millisecond)

	if system.CurrentState() != fsm.VehicleStateAvailable {
		t.Errorf("Expected available after conflict, got %v", system.CurrentState())
	}

	// The conflicted ride must not be offered again
	system.pollPending()
	time.Sleep(50 * time.Millisecond)
	if system.CurrentState() != fsm.VehicleStateAvailable {
		t.Errorf("Expected conflicted ride skipped, got %v", system.CurrentState())
	}
}

func TestAcceptFailureStaysInOfferPending(t *testing.T) {
	system, correlator, _ := newTestRickshawSystem()
	initTestRickshawFSM(t, system)
	offerRide(t, system, correlator)

	correlator.acceptErr = backend.ErrConnectivity
	if err := system.HandleRideCommand("accept"); err == nil {
		t.Error("Expected error from failed accept")
	}
	time.Sleep(50 * time.Millisecond)

	if system.CurrentState() != fsm.VehicleStateOfferPending {
		t.Errorf("Expected offer-pending after failure, got %v", system.CurrentState())
	}
}

func TestRejectOffer(t *testing.T) {
	system, correlator, _ := newTestRickshawSystem()
	initTestRickshawFSM(t, system)
	offerRide(t, system, correlator)

	if err := system.HandleRideCommand("reject"); err != nil {
		t.Fatalf("reject failed: %v", err)
	}
	time.Sleep(50 * time.Millisecond)

	if system.CurrentState() != fsm.VehicleStateAvailable {
		t.Errorf("Expected available after reject, got %v", system.CurrentState())
	}
	if len(correlator.accepted) != 0 {
		t.Error("Reject must not call the backend accept")
	}
}

func TestInvalidRideCommand(t *testing.T) {
	system, _, _ := newTestRickshawSystem()
	initTestRickshawFSM(t, system)

	if err := system.HandleRideCommand("fly"); err == nil {
		t.Error("Expected error for invalid command")
	}
}

func TestStatusCommandRepaintsPanel(t *testing.T) {
	system, _, redis := newTestRickshawSystem()
	initTestRickshawFSM(t, system)

	if err := system.HandleRideCommand("status"); err != nil {
		t.Fatalf("status failed: %v", err)
	}
	if len(redis.rickshawDisplays) == 0 {
		t.Fatal("Expected a status display intent")
	}
	last := redis.rickshawDisplays[len(redis.rickshawDisplays)-1]
	if last.Line1 != "available" {
		t.Errorf("Expected phase in status line, got %q", last.Line1)
	}
	if last.Line2 != "Total points: 0" {
		t.Errorf("Expected points in status line, got %q", last.Line2)
	}
}

// ===== Motion Tests =====

func TestMotionAdvancesTowardPickup(t *testing.T) {
	system, correlator, _ := newTestRickshawSystem()
	initTestRickshawFSM(t, system)
	offerRide(t, system, correlator)

	if err := system.HandleRideCommand("accept"); err != nil {
		t.Fatalf("accept failed: %v", err)
	}
	time.Sleep(50 * time.Millisecond)

	before := system.sim.RemainingMeters()
	system.tickMotion()
	after := system.sim.RemainingMeters()

	if after >= before {
		t.Errorf("Expected distance to shrink: %.1f -> %.1f", before, after)
	}
}

func TestArrivalAtPickup(t *testing.T) {
	cuet := mustWaypoint(t, "CUET_CAMPUS")
	system, correlator, _ := newTestRickshawSystemAt(cuet.Position())
	initTestRickshawFSM(t, system)
	offerRide(t, system, correlator)

	if err := system.HandleRideCommand("accept"); err != nil {
		t.Fatalf("accept failed: %v", err)
	}
	time.Sleep(50 * time.Millisecond)

	// Already at the pickup waypoint, so the first tick latches arrival
	system.tickMotion()
	time.Sleep(50 * time.Millisecond)

	if system.CurrentState() != fsm.VehicleStateAtPickup {
		t.Errorf("Expected at-pickup, got %v", system.CurrentState())
	}
}

// ===== Geofence Tests =====

func TestPickupRejectedOutsideGeofence(t *testing.T) {
	cuet := mustWaypoint(t, "CUET_CAMPUS")
	start := geo.Step(cuet.Position(), 180, 150) // 150m south of the pickup
	system, correlator, redis := newTestRickshawSystemAt(start)
	initTestRickshawFSM(t, system)
	setActiveSession(t, system, fsm.VehicleStateAtPickup)

	if err := system.HandleRideCommand("pickup"); err != nil {
		t.Fatalf("pickup outside geofence should not error: %v", err)
	}
	time.Sleep(50 * time.Millisecond)

	if len(correlator.pickups) != 0 {
		t.Error("Pickup must not reach the backend outside the geofence")
	}
	if system.CurrentState() != fsm.VehicleStateAtPickup {
		t.Errorf("Expected at-pickup, got %v", system.CurrentState())
	}
	last := redis.rickshawDisplays[len(redis.rickshawDisplays)-1]
	if last.Line1 != "Too far from pickup" {
		t.Errorf("Expected geofence display, got %q", last.Line1)
	}
}

func TestPickupInsideGeofence(t *testing.T) {
	cuet := mustWaypoint(t, "CUET_CAMPUS")
	start := geo.Step(cuet.Position(), 180, 80) // 80m south, inside the fence
	system, correlator, _ := newTestRickshawSystemAt(start)
	initTestRickshawFSM(t, system)
	setActiveSession(t, system, fsm.VehicleStateAtPickup)

	if err := system.HandleRideCommand("pickup"); err != nil {
		t.Fatalf("pickup failed: %v", err)
	}
	time.Sleep(50 * time.Millisecond)

	if len(correlator.pickups) != 1 || correlator.pickups[0] != "RIDE_1" {
		t.Errorf("Expected pickup confirmed for RIDE_1, got %v", correlator.pickups)
	}
	if system.CurrentState() != fsm.VehicleStateEnRouteDestination {
		t.Errorf("Expected en-route-destination, got %v", system.CurrentState())
	}
	if system.sim.Target().Name != "PAHARTOLI" {
		t.Errorf("Expected simulator targeting PAHARTOLI, got %s", system.sim.Target().Name)
	}
}

func TestPickupRefusedWhenDistanceUnknown(t *testing.T) {
	system, correlator, redis := newTestRickshawSystemAt(geo.Position{Lat: math.NaN(), Lng: math.NaN()})
	initTestRickshawFSM(t, system)
	setActiveSession(t, system, fsm.VehicleStateAtPickup)

	if err := system.HandleRideCommand("pickup"); err != nil {
		t.Fatalf("pickup with unknown position should not error: %v", err)
	}
	time.Sleep(50 * time.Millisecond)

	// An unresolvable distance never satisfies the geofence
	if len(correlator.pickups) != 0 {
		t.Error("Pickup must not reach the backend with an unknown distance")
	}
	if system.CurrentState() != fsm.VehicleStateAtPickup {
		t.Errorf("Expected at-pickup, got %v", system.CurrentState())
	}
	last := redis.rickshawDisplays[len(redis.rickshawDisplays)-1]
	if last.Line1 != "Too far from pickup" {
		t.Errorf("Expected geofence display, got %q", last.Line1)
	}
}

func TestCompleteRefusedWhenDistanceUnknown(t *testing.T) {
	system, correlator, redis := newTestRickshawSystemAt(geo.Position{Lat: math.NaN(), Lng: math.NaN()})
	initTestRickshawFSM(t, system)
	setActiveSession(t, system, fsm.VehicleStateAtDestination)

	if err := system.HandleRideCommand("complete"); err != nil {
		t.Fatalf("complete with unknown position should not error: %v", err)
	}
	time.Sleep(50 * time.Millisecond)

	if len(correlator.completed) != 0 {
		t.Error("Completion must not reach the backend with an unknown distance")
	}
	if system.CurrentState() != fsm.VehicleStateAtDestination {
		t.Errorf("Expected at-destination, got %v", system.CurrentState())
	}
	last := redis.rickshawDisplays[len(redis.rickshawDisplays)-1]
	if last.Line1 != "Position unknown" {
		t.Errorf("Expected unknown-position display, got %q", last.Line1)
	}
}

func TestCompleteOutsideGeofenceGoesToReview(t *testing.T) {
	dest := mustWaypoint(t, "PAHARTOLI")
	start := geo.Step(dest.Position(), 90, 200) // 200m east of the destination
	system, correlator, _ := newTestRickshawSystemAt(start)
	initTestRickshawFSM(t, system)
	setActiveSession(t, system, fsm.VehicleStateAtDestination)

	// The backend still scores the drop; locally it is held for review.
	correlator.completeResult = backend.CompletionResult{
		Points:       7,
		DropDistance: 200.0,
		Status:       backend.StatusCompleted,
	}

	if err := system.HandleRideCommand("complete"); err != nil {
		t.Fatalf("complete outside geofence should not error: %v", err)
	}
	time.Sleep(50 * time.Millisecond)

	if len(correlator.completed) != 1 {
		t.Fatalf("Expected completion to reach the backend, got %d calls", len(correlator.completed))
	}
	if system.CurrentState() != fsm.VehicleStateCompleting {
		t.Errorf("Expected completing, got %v", system.CurrentState())
	}

	system.mu.RLock()
	banner := system.lastBanner
	system.mu.RUnlock()
	if banner != "UNDER REVIEW" {
		t.Errorf("Expected UNDER REVIEW banner for an out-of-range drop, got %q", banner)
	}
}

// ===== Completion Tests =====

func TestCompleteAwardsPoints(t *testing.T) {
	dest := mustWaypoint(t, "PAHARTOLI")
	system, correlator, redis := newTestRickshawSystemAt(dest.Position())
	initTestRickshawFSM(t, system)
	setActiveSession(t, system, fsm.VehicleStateAtDestination)

	correlator.completeResult = backend.CompletionResult{
		Points:       10,
		DropDistance: 3.2,
		Status:       backend.StatusCompleted,
	}

	if err := system.HandleRideCommand("complete"); err != nil {
		t.Fatalf("complete failed: %v", err)
	}
	time.Sleep(50 * time.Millisecond)

	if system.CurrentState() != fsm.VehicleStateCompleting {
		t.Fatalf("Expected completing, got %v", system.CurrentState())
	}
	if system.TotalPoints() != 10 {
		t.Errorf("Expected 10 total points, got %d", system.TotalPoints())
	}
	if redis.totalPoints != 10 {
		t.Errorf("Expected total points mirrored, got %d", redis.totalPoints)
	}

	system.mu.RLock()
	banner := system.lastBanner
	system.mu.RUnlock()
	if banner != "PERFECT DROP" {
		t.Errorf("Expected PERFECT DROP banner, got %q", banner)
	}

	// Display hold elapses, the session resets
	system.machine.Send(librefsm.Event{ID: fsm.EvCompletionHoldDone})
	time.Sleep(50 * time.Millisecond)

	if system.CurrentState() != fsm.VehicleStateAvailable {
		t.Errorf("Expected available after reset, got %v", system.CurrentState())
	}
	if redis.rideInfoCleared != 1 {
		t.Errorf("Expected ride info cleared once, got %d", redis.rideInfoCleared)
	}

	system.mu.RLock()
	active := system.session.Active()
	system.mu.RUnlock()
	if active {
		t.Error("Expected session reset")
	}
}

func TestCompletePendingReview(t *testing.T) {
	dest := mustWaypoint(t, "PAHARTOLI")
	system, correlator, _ := newTestRickshawSystemAt(dest.Position())
	initTestRickshawFSM(t, system)
	setActiveSession(t, system, fsm.VehicleStateAtDestination)

	correlator.completeResult = backend.CompletionResult{
		Points:       0,
		DropDistance: 95.0,
		Status:       backend.StatusPendingReview,
	}

	if err := system.HandleRideCommand("complete"); err != nil {
		t.Fatalf("complete failed: %v", err)
	}
	time.Sleep(50 * time.Millisecond)

	if system.TotalPoints() != 0 {
		t.Errorf("Expected 0 points for pending review, got %d", system.TotalPoints())
	}

	system.mu.RLock()
	banner := system.lastBanner
	system.mu.RUnlock()
	if banner != "UNDER REVIEW" {
		t.Errorf("Expected UNDER REVIEW banner, got %q", banner)
	}
}

// ===== Position Report Tests =====

func TestReportPosition(t *testing.T) {
	system, correlator, redis := newTestRickshawSystem()
	initTestRickshawFSM(t, system)

	system.reportPosition()

	if len(correlator.reported) != 1 {
		t.Fatalf("Expected 1 position report, got %d", len(correlator.reported))
	}
	if len(redis.positions) != 1 {
		t.Fatalf("Expected 1 mirrored position, got %d", len(redis.positions))
	}
	if redis.positions[0].lat != system.Position().Lat {
		t.Error("Mirrored latitude does not match the simulator position")
	}
}

// ===== Full Ride Scenario =====

func TestFullRideScenario(t *testing.T) {
	cuet := mustWaypoint(t, "CUET_CAMPUS")
	start := geo.Step(cuet.Position(), 0, 20) // 20m north of the pickup
	system, correlator, _ := newTestRickshawSystemAt(start)
	initTestRickshawFSM(t, system)

	// Offer arrives and is accepted
	offerRide(t, system, correlator)
	if err := system.HandleRideCommand("accept"); err != nil {
		t.Fatalf("accept failed: %v", err)
	}
	time.Sleep(50 * time.Millisecond)

	// Ride to the pickup
	for i := 0; i < 50 && !system.sim.Arrived(); i++ {
		system.tickMotion()
	}
	time.Sleep(100 * time.Millisecond)
	if system.CurrentState() != fsm.VehicleStateAtPickup {
		t.Fatalf("Expected at-pickup, got %v", system.CurrentState())
	}

	// Confirm the passenger
	if err := system.HandleRideCommand("pickup"); err != nil {
		t.Fatalf("pickup failed: %v", err)
	}
	time.Sleep(50 * time.Millisecond)
	if system.CurrentState() != fsm.VehicleStateEnRouteDestination {
		t.Fatalf("Expected en-route-destination, got %v", system.CurrentState())
	}

	// Ride to the destination (a few km at ~4m per tick)
	for i := 0; i < 2000 && !system.sim.Arrived(); i++ {
		system.tickMotion()
	}
	time.Sleep(100 * time.Millisecond)
	if system.CurrentState() != fsm.VehicleStateAtDestination {
		t.Fatalf("Expected at-destination, got %v", system.CurrentState())
	}

	// Complete the drop
	correlator.completeResult = backend.CompletionResult{
		Points:       8,
		DropDistance: 4.0,
		Status:       backend.StatusCompleted,
	}
	if err := system.HandleRideCommand("complete"); err != nil {
		t.Fatalf("complete failed: %v", err)
	}
	time.Sleep(50 * time.Millisecond)

	if system.CurrentState() != fsm.VehicleStateCompleting {
		t.Fatalf("Expected completing, got %v", system.CurrentState())
	}
	if system.TotalPoints() != 8 {
		t.Errorf("Expected 8 points, got %d", system.TotalPoints())
	}
	if len(correlator.completed) != 1 {
		t.Errorf("Expected 1 completion, got %d", len(correlator.completed))
	}
}

// ===== Point Band Tests =====

func TestOfferPointsBand(t *testing.T) {
	cases := []struct {
		km   float64
		want string
	}{
		{0.5, "10"},
		{2.0, "10"},
		{3.5, "8-10"},
		{5.0, "8-10"},
		{7.0, "5-10"},
	}
	for _, tc := range cases {
		if got := offerPointsBand(tc.km); got != tc.want {
			t.Errorf("offerPointsBand(%.1f) = %q, want %q", tc.km, got, tc.want)
		}
	}
}

func TestNavPointsBand(t *testing.T) {
	cases := []struct {
		meters float64
		want   string
	}{
		{10, "8-10"},
		{50, "8-10"},
		{75, "5-8"},
		{100, "5-8"},
		{150, "Review"},
	}
	for _, tc := range cases {
		if got := navPointsBand(tc.meters); got != tc.want {
			t.Errorf("navPointsBand(%.0f) = %q, want %q", tc.meters, got, tc.want)
		}
	}
}

func TestCompletionBanner(t *testing.T) {
	cases := []struct {
		points int
		want   string
	}{
		{10, "PERFECT DROP"},
		{9, "GREAT"},
		{8, "GREAT"},
		{6, "GOOD"},
		{5, "GOOD"},
		{3, "COMPLETED"},
		{1, "COMPLETED"},
		{0, "UNDER REVIEW"},
	}
	for _, tc := range cases {
		if got := completionBanner(tc.points); got != tc.want {
			t.Errorf("completionBanner(%d) = %q, want %q", tc.points, got, tc.want)
		}
	}
}
