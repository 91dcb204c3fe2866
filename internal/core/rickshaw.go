package core

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/librescoot/librefsm"
	"github.com/rafio1020/project-aeras/internal/backend"
	"github.com/rafio1020/project-aeras/internal/fsm"
	"github.com/rafio1020/project-aeras/internal/geo"
	"github.com/rafio1020/project-aeras/internal/logger"
	"github.com/rafio1020/project-aeras/internal/messaging"
	"github.com/rafio1020/project-aeras/internal/metrics"
	"github.com/rafio1020/project-aeras/internal/sim"
	"github.com/rafio1020/project-aeras/internal/types"
)

// RickshawConfig carries the identity and tuning of one navigation unit.
// Zero durations select the built-in defaults.
type RickshawConfig struct {
	NodeID      string
	DisplayName string
	SpeedKmh    float64
	Start       geo.Position

	PendingPollInterval  time.Duration
	MoveTickInterval     time.Duration
	PositionReportPeriod time.Duration
}

// RickshawSystem drives the vehicle-side navigation unit. It polls the
// backend for pending rides, walks the puller through pickup and drop-off
// with geofence-gated commands, and moves a simulated position between
// waypoints in the meantime.
type RickshawSystem struct {
	cfg     RickshawConfig
	logger  *logger.Logger
	backend backend.Correlator
	redis   MessagingClient
	metrics *metrics.Collector // optional

	machine *librefsm.Machine
	sim     *sim.Simulator

	mu          sync.RWMutex
	offer       *types.RideOffer
	session     types.RideSession
	pickupWp    geo.Waypoint
	destWp      geo.Waypoint
	rideStart   time.Time
	totalPoints int
	lastBanner  string
	seenOffers  map[string]struct{}
}

func NewRickshawSystem(cfg RickshawConfig, correlator backend.Correlator, redis MessagingClient, l *logger.Logger, collector *metrics.Collector) *RickshawSystem {
	if cfg.SpeedKmh <= 0 {
		cfg.SpeedKmh = sim.DefaultSpeedKmh
	}
	if cfg.PendingPollInterval <= 0 {
		cfg.PendingPollInterval = fsm.PendingPollInterval
	}
	if cfg.MoveTickInterval <= 0 {
		cfg.MoveTickInterval = fsm.MoveTickInterval
	}
	if cfg.PositionReportPeriod <= 0 {
		cfg.PositionReportPeriod = fsm.PositionReportPeriod
	}
	return &RickshawSystem{
		cfg:        cfg,
		logger:     l.WithTag("rickshaw"),
		backend:    correlator,
		redis:      redis,
		metrics:    collector,
		sim:        sim.New(cfg.Start, cfg.SpeedKmh, cfg.MoveTickInterval.Seconds()),
		seenOffers: make(map[string]struct{}),
	}
}

func (r *RickshawSystem) Start(ctx context.Context) error {
	r.logger.Infof("Starting rickshaw system %s (%s)", r.cfg.NodeID, r.cfg.DisplayName)

	r.redis.SetCallbacks(messaging.Callbacks{
		RideCallback: r.HandleRideCommand,
	})

	if err := r.redis.Connect(); err != nil {
		return fmt.Errorf("failed to connect to Redis: %w", err)
	}

	if err := r.initFSM(ctx); err != nil {
		return fmt.Errorf("failed to start state machine: %w", err)
	}

	// Registration failure is not fatal: the node keeps polling and the
	// backend learns about us from the first position report.
	if err := r.backend.Register(r.cfg.NodeID, r.cfg.DisplayName, r.sim.Position()); err != nil {
		r.logger.Warnf("Failed to register with backend: %v", err)
		r.countBackendError(err)
	} else {
		r.logger.Infof("Registered with backend as %s", r.cfg.NodeID)
	}

	if err := r.redis.PublishRickshawPhase(vehicleStateToPhase(r.machine.CurrentState())); err != nil {
		return fmt.Errorf("failed to publish initial phase: %w", err)
	}

	go r.pendingPollLoop(ctx)
	go r.motionLoop(ctx)
	go r.positionReportLoop(ctx)

	if err := r.redis.StartListening(); err != nil {
		return fmt.Errorf("failed to start Redis listeners: %w", err)
	}

	r.logger.Infof("Rickshaw system started successfully")
	return nil
}

// initFSM builds and starts the librefsm machine
func (r *RickshawSystem) initFSM(ctx context.Context) error {
	machine, err := fsm.NewVehicleDefinition(r).Build()
	if err != nil {
		return err
	}
	r.machine = machine

	r.machine.OnStateChange(func(from, to librefsm.StateID) {
		r.logger.Infof("State transition: %s -> %s", from, to)
		if err := r.redis.PublishRickshawPhase(vehicleStateToPhase(to)); err != nil {
			r.logger.Errorf("Failed to publish phase: %v", err)
		}
	})

	return r.machine.Start(ctx)
}

func (r *RickshawSystem) Shutdown() {
	if r.redis != nil {
		r.redis.Close()
	}
}

// CurrentState exposes the machine state for diagnostics.
func (r *RickshawSystem) CurrentState() librefsm.StateID {
	return r.machine.CurrentState()
}

// Position returns the current simulated position.
func (r *RickshawSystem) Position() geo.Position {
	return r.sim.Position()
}

// TotalPoints returns the running drop accuracy total.
func (r *RickshawSystem) TotalPoints() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.totalPoints
}

// HandleRideCommand processes an operator command from the command list.
func (r *RickshawSystem) HandleRideCommand(command string) error {
	r.logger.Infof("Handling ride command: %s", command)
	switch command {
	case "accept":
		return r.handleAccept()
	case "reject":
		return r.handleReject()
	case "pickup":
		return r.handlePickup()
	case "complete":
		return r.handleComplete()
	case "status":
		return r.handleStatus()
	default:
		return fmt.Errorf("invalid ride command: %s", command)
	}
}

func (r *RickshawSystem) handleAccept() error {
	if r.machine.CurrentState() != fsm.VehicleStateOfferPending {
		r.logger.Infof("Ignoring accept outside offer-pending")
		return nil
	}

	r.mu.RLock()
	offer := r.offer
	r.mu.RUnlock()
	if offer == nil {
		return nil
	}

	pickupWp, ok := geo.LookupWaypoint(offer.Pickup)
	if !ok {
		r.logger.Errorf("Unknown pickup block %q, rejecting offer", offer.Pickup)
		r.dropOffer(offer.RideID, "Unknown pickup")
		return nil
	}
	destWp, ok := geo.LookupWaypoint(offer.Destination)
	if !ok {
		r.logger.Errorf("Unknown destination %q, rejecting offer", offer.Destination)
		r.dropOffer(offer.RideID, "Unknown destination")
		return nil
	}

	if err := r.backend.AcceptRide(offer.RideID, r.cfg.NodeID); err != nil {
		if errors.Is(err, backend.ErrRideTaken) {
			r.logger.Infof("Ride %s already taken", offer.RideID)
			if r.metrics != nil {
				r.metrics.OffersLost.Inc()
			}
			r.dropOffer(offer.RideID, "Ride taken")
			return nil
		}
		r.logger.Errorf("Failed to accept ride %s: %v", offer.RideID, err)
		r.countBackendError(err)
		r.display("Accept failed", "Try again", 0)
		return err
	}

	r.mu.Lock()
	r.session = types.RideSession{
		RideID:      offer.RideID,
		Pickup:      offer.Pickup,
		Destination: offer.Destination,
	}
	r.pickupWp = pickupWp
	r.destWp = destWp
	r.rideStart = time.Now()
	r.offer = nil
	r.mu.Unlock()

	r.sim.Retarget(pickupWp)

	if err := r.redis.SetRideInfo(offer.RideID, offer.Pickup, offer.Destination); err != nil {
		r.logger.Warnf("Failed to record ride info: %v", err)
	}
	if r.metrics != nil {
		r.metrics.RidesAccepted.Inc()
	}

	r.logger.Infof("Accepted ride %s: %s -> %s", offer.RideID, offer.Pickup, offer.Destination)
	r.sendEvent(fsm.EvAcceptSucceeded)
	return nil
}

func (r *RickshawSystem) handleReject() error {
	if r.machine.CurrentState() != fsm.VehicleStateOfferPending {
		r.logger.Infof("Ignoring reject outside offer-pending")
		return nil
	}

	r.mu.RLock()
	offer := r.offer
	r.mu.RUnlock()
	if offer == nil {
		return nil
	}

	r.logger.Infof("Rejected ride %s", offer.RideID)
	r.dropOffer(offer.RideID, "Offer rejected")
	return nil
}

// handlePickup confirms the passenger is aboard. The confirmation is only
// forwarded to the backend when the unit is inside the pickup geofence.
func (r *RickshawSystem) handlePickup() error {
	if r.machine.CurrentState() != fsm.VehicleStateAtPickup {
		r.logger.Infof("Ignoring pickup outside at-pickup")
		return nil
	}

	r.mu.RLock()
	session := r.session
	pickupWp := r.pickupWp
	destWp := r.destWp
	r.mu.RUnlock()

	dist := geo.DistanceMeters(r.sim.Position(), pickupWp.Position())
	if math.IsNaN(dist) || dist > fsm.PickupGeofenceMeters {
		r.logger.Warnf("Pickup rejected: %.0fm from %s (limit %.0fm)", dist, pickupWp.Name, fsm.PickupGeofenceMeters)
		r.display("Too far from pickup", fmt.Sprintf("%.0fm away", dist), 0)
		return nil
	}

	if err := r.backend.ConfirmPickup(session.RideID); err != nil {
		r.logger.Errorf("Failed to confirm pickup: %v", err)
		r.countBackendError(err)
		r.display("Pickup failed", "Try again", 0)
		return err
	}

	r.mu.Lock()
	r.session.PickupConfirmed = true
	r.mu.Unlock()

	r.sim.Retarget(destWp)

	r.logger.Infof("Pickup confirmed for ride %s, heading to %s", session.RideID, destWp.Name)
	r.sendEvent(fsm.EvPickupConfirmed)
	return nil
}

// handleComplete scores the drop. A drop outside the destination geofence
// does not fail the ride: it still completes, but the outcome is held for
// review instead of scoring.
func (r *RickshawSystem) handleComplete() error {
	if r.machine.CurrentState() != fsm.VehicleStateAtDestination {
		r.logger.Infof("Ignoring complete outside at-destination")
		return nil
	}

	r.mu.RLock()
	session := r.session
	destWp := r.destWp
	r.mu.RUnlock()

	drop := r.sim.Position()
	dist := geo.DistanceMeters(drop, destWp.Position())
	if math.IsNaN(dist) {
		r.logger.Warnf("Drop distance to %s is indeterminate, not completing", destWp.Name)
		r.display("Position unknown", "Try again", 0)
		return nil
	}
	outOfRange := dist > fsm.DropoffGeofenceMeters
	if outOfRange {
		r.logger.Warnf("Drop %.0fm from %s (limit %.0fm), completion goes to review", dist, destWp.Name, fsm.DropoffGeofenceMeters)
	}

	result, err := r.backend.CompleteRide(session.RideID, drop)
	if err != nil {
		r.logger.Errorf("Failed to complete ride: %v", err)
		r.countBackendError(err)
		r.display("Completion failed", "Try again", 0)
		return err
	}

	banner := completionBanner(result.Points)
	if outOfRange || result.Status == backend.StatusPendingReview {
		banner = completionBanner(0)
	}

	r.mu.Lock()
	r.session.PointsAwarded = result.Points
	r.totalPoints += result.Points
	r.lastBanner = banner
	total := r.totalPoints
	r.mu.Unlock()

	if r.metrics != nil {
		r.metrics.RidesCompleted.Inc()
		r.metrics.PointsAwarded.Add(float64(result.Points))
		r.metrics.DropDistance.Observe(result.DropDistance)
	}
	if err := r.redis.SetTotalPoints(total); err != nil {
		r.logger.Warnf("Failed to record total points: %v", err)
	}

	r.logger.Infof("Ride %s completed: %d points (%.0fm drop, %s)", session.RideID, result.Points, result.DropDistance, result.Status)
	r.sendEvent(fsm.EvRideFinished)
	return nil
}

// handleStatus repaints the panel with the current phase and session.
func (r *RickshawSystem) handleStatus() error {
	r.mu.RLock()
	session := r.session
	total := r.totalPoints
	r.mu.RUnlock()

	phase := vehicleStateToPhase(r.machine.CurrentState())
	if session.Active() {
		r.display(fmt.Sprintf("%s %s", phase, session.RideID),
			fmt.Sprintf("%s > %s", session.Pickup, session.Destination), 0)
	} else {
		r.display(string(phase), fmt.Sprintf("Total points: %d", total), 0)
	}
	return nil
}

// dropOffer marks the ride as seen so the poll loop skips it, shows why, and
// clears the pending offer.
func (r *RickshawSystem) dropOffer(rideID, reason string) {
	r.mu.Lock()
	r.seenOffers[rideID] = struct{}{}
	r.mu.Unlock()

	r.display(reason, "", 3000)
	r.sendEvent(fsm.EvOfferCleared)
}

func (r *RickshawSystem) pendingPollLoop(ctx context.Context) {
	ticker := time.NewTicker(r.cfg.PendingPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logger.Infof("Context cancelled, exiting pending poll loop")
			return
		case <-ticker.C:
			r.pollPending()
		}
	}
}

func (r *RickshawSystem) pollPending() {
	state := r.machine.CurrentState()
	if state != fsm.VehicleStateAvailable && state != fsm.VehicleStateOfferPending {
		return
	}

	rides, err := r.backend.PollPendingRequests(r.cfg.NodeID)
	if err != nil {
		r.logger.Warnf("Pending poll failed: %v", err)
		r.countBackendError(err)
		return
	}

	if state == fsm.VehicleStateOfferPending {
		// Withdraw the offer if the ride is no longer pending.
		r.mu.RLock()
		offer := r.offer
		r.mu.RUnlock()
		if offer == nil {
			return
		}
		for _, ride := range rides {
			if ride.RideID == offer.RideID {
				return
			}
		}
		r.logger.Infof("Ride %s no longer pending, clearing offer", offer.RideID)
		if r.metrics != nil {
			r.metrics.OffersLost.Inc()
		}
		r.dropOffer(offer.RideID, "Offer withdrawn")
		return
	}

	for _, ride := range rides {
		r.mu.RLock()
		_, seen := r.seenOffers[ride.RideID]
		r.mu.RUnlock()
		if seen {
			continue
		}

		distanceKm := ride.DistanceKm
		if distanceKm <= 0 {
			if wp, ok := geo.LookupWaypoint(ride.Pickup); ok {
				distanceKm = geo.DistanceMeters(r.sim.Position(), wp.Position()) / 1000.0
			}
		}

		r.mu.Lock()
		r.offer = &types.RideOffer{
			RideID:      ride.RideID,
			Pickup:      ride.Pickup,
			Destination: ride.Destination,
			DistanceKm:  distanceKm,
		}
		r.mu.Unlock()

		if r.metrics != nil {
			r.metrics.OffersSeen.Inc()
		}
		r.logger.Infof("New ride offer %s: %s -> %s (%.1f km)", ride.RideID, ride.Pickup, ride.Destination, distanceKm)
		r.sendEvent(fsm.EvOfferReceived)
		return
	}
}

func (r *RickshawSystem) motionLoop(ctx context.Context) {
	ticker := time.NewTicker(r.cfg.MoveTickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logger.Infof("Context cancelled, exiting motion loop")
			return
		case <-ticker.C:
			r.tickMotion()
		}
	}
}

func (r *RickshawSystem) tickMotion() {
	state := r.machine.CurrentState()
	if state != fsm.VehicleStateEnRoutePickup && state != fsm.VehicleStateEnRouteDestination {
		return
	}

	before := r.sim.Position()
	r.sim.Advance()
	after := r.sim.Position()

	if r.metrics != nil {
		r.metrics.DistanceTraveled.Add(geo.DistanceMeters(before, after))
	}

	r.mu.RLock()
	rideStart := r.rideStart
	r.mu.RUnlock()

	target := r.sim.Target()
	remaining := r.sim.RemainingMeters()
	bearing := geo.BearingDegrees(after, target.Position())
	r.display(
		fmt.Sprintf("%s %s %s", geo.Octant(bearing), target.Name, formatElapsed(time.Since(rideStart))),
		fmt.Sprintf("%.0fm, pts %s", remaining, navPointsBand(remaining)),
		0,
	)

	if r.sim.Arrived() {
		r.logger.Infof("Arrived at %s", target.Name)
		if state == fsm.VehicleStateEnRoutePickup {
			r.sendEvent(fsm.EvArrivedPickup)
		} else {
			r.sendEvent(fsm.EvArrivedDestination)
		}
	}
}

func (r *RickshawSystem) positionReportLoop(ctx context.Context) {
	ticker := time.NewTicker(r.cfg.PositionReportPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logger.Infof("Context cancelled, exiting position report loop")
			return
		case <-ticker.C:
			r.reportPosition()
		}
	}
}

func (r *RickshawSystem) reportPosition() {
	pos := r.sim.Position()

	if err := r.backend.ReportPosition(r.cfg.NodeID, pos); err != nil {
		r.logger.Warnf("Failed to report position: %v", err)
		r.countBackendError(err)
	}
	if err := r.redis.PublishRickshawPosition(pos.Lat, pos.Lng, geo.Hash(pos)); err != nil {
		r.logger.Warnf("Failed to mirror position: %v", err)
	}
}

// formatElapsed renders a ride duration as m:ss for the panel.
func formatElapsed(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	s := int(d.Seconds())
	return fmt.Sprintf("%d:%02d", s/60, s%60)
}

func (r *RickshawSystem) sendEvent(event librefsm.EventID) {
	r.machine.Send(librefsm.Event{ID: event})
}

func (r *RickshawSystem) countBackendError(err error) {
	if r.metrics == nil {
		return
	}
	r.metrics.BackendErrors.WithLabelValues(backend.ErrorKind(err)).Inc()
}

func (r *RickshawSystem) display(line1, line2 string, holdMs int) {
	intent := messaging.DisplayIntent{Line1: line1, Line2: line2, HoldMs: holdMs}
	if err := r.redis.PublishRickshawDisplay(intent); err != nil {
		r.logger.Warnf("Failed to publish display intent: %v", err)
	}
}
