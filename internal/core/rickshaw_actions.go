package core

import (
	"fmt"
	"time"

	"github.com/librescoot/librefsm"
	"github.com/rafio1020/project-aeras/internal/fsm"
	"github.com/rafio1020/project-aeras/internal/geo"
	"github.com/rafio1020/project-aeras/internal/types"
)

// Ensure RickshawSystem implements fsm.VehicleActions
var _ fsm.VehicleActions = (*RickshawSystem)(nil)

// vehicleStateToPhase converts a librefsm StateID to the published phase
func vehicleStateToPhase(id librefsm.StateID) types.VehiclePhase {
	switch id {
	case fsm.VehicleStateAvailable:
		return types.VehicleAvailable
	case fsm.VehicleStateOfferPending:
		return types.VehicleOfferPending
	case fsm.VehicleStateEnRoutePickup:
		return types.VehicleEnRouteToPickup
	case fsm.VehicleStateAtPickup:
		return types.VehicleAtPickup
	case fsm.VehicleStateEnRouteDestination:
		return types.VehicleEnRouteToDestination
	case fsm.VehicleStateAtDestination:
		return types.VehicleAtDestination
	case fsm.VehicleStateCompleting:
		return types.VehicleCompleting
	default:
		return types.VehiclePhase(string(id))
	}
}

// === State Entry Actions ===

func (r *RickshawSystem) EnterAvailable(c *librefsm.Context) error {
	r.logger.Debugf("FSM: EnterAvailable")

	r.mu.RLock()
	total := r.totalPoints
	r.mu.RUnlock()

	r.display("Available", fmt.Sprintf("Total points: %d", total), 0)
	return nil
}

func (r *RickshawSystem) EnterOfferPending(c *librefsm.Context) error {
	r.logger.Debugf("FSM: EnterOfferPending")

	r.mu.RLock()
	offer := r.offer
	r.mu.RUnlock()
	if offer == nil {
		return nil
	}

	r.display(
		fmt.Sprintf("Ride: %s > %s", offer.Pickup, offer.Destination),
		fmt.Sprintf("%.1f km, pts %s", offer.DistanceKm, offerPointsBand(offer.DistanceKm)),
		0,
	)
	return nil
}

func (r *RickshawSystem) EnterEnRoutePickup(c *librefsm.Context) error {
	r.logger.Debugf("FSM: EnterEnRoutePickup")

	r.mu.RLock()
	pickup := r.pickupWp
	r.mu.RUnlock()

	r.display("To pickup", pickup.Name, 0)
	return nil
}

func (r *RickshawSystem) EnterAtPickup(c *librefsm.Context) error {
	r.logger.Infof("FSM: EnterAtPickup - waiting for passenger confirmation")
	r.display("At pickup", "Confirm passenger", 0)
	return nil
}

func (r *RickshawSystem) EnterEnRouteDestination(c *librefsm.Context) error {
	r.logger.Debugf("FSM: EnterEnRouteDestination")

	r.mu.RLock()
	dest := r.destWp
	r.mu.RUnlock()

	r.display("To destination", dest.Name, 0)
	return nil
}

func (r *RickshawSystem) EnterAtDestination(c *librefsm.Context) error {
	r.logger.Infof("FSM: EnterAtDestination - waiting for drop-off")
	r.display("At destination", "Complete drop-off", 0)
	return nil
}

func (r *RickshawSystem) EnterCompleting(c *librefsm.Context) error {
	r.logger.Debugf("FSM: EnterCompleting")

	r.mu.RLock()
	banner := r.lastBanner
	points := r.session.PointsAwarded
	total := r.totalPoints
	r.mu.RUnlock()

	r.display(
		banner,
		fmt.Sprintf("+%d pts (total %d)", points, total),
		int(fsm.CompletionDisplayHold/time.Millisecond),
	)
	return nil
}

// === Transition Actions ===

func (r *RickshawSystem) OnOfferCleared(c *librefsm.Context) error {
	r.logger.Debugf("FSM: Offer cleared")

	r.mu.Lock()
	r.offer = nil
	r.mu.Unlock()
	return nil
}

func (r *RickshawSystem) OnSessionReset(c *librefsm.Context) error {
	r.logger.Infof("FSM: Session reset, back to available")

	r.mu.Lock()
	r.session.Reset()
	r.pickupWp = geo.Waypoint{}
	r.destWp = geo.Waypoint{}
	r.rideStart = time.Time{}
	r.mu.Unlock()

	if err := r.redis.ClearRideInfo(); err != nil {
		r.logger.Warnf("Failed to clear ride info: %v", err)
	}
	return nil
}
