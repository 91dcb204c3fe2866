package fsm

import (
	"time"

	"github.com/librescoot/librefsm"
)

// Rickshaw states
const (
	VehicleStateAvailable          librefsm.StateID = "available"
	VehicleStateOfferPending       librefsm.StateID = "offer-pending"
	VehicleStateEnRoutePickup      librefsm.StateID = "en-route-pickup"
	VehicleStateAtPickup           librefsm.StateID = "at-pickup"
	VehicleStateEnRouteDestination librefsm.StateID = "en-route-destination"
	VehicleStateAtDestination      librefsm.StateID = "at-destination"
	VehicleStateCompleting         librefsm.StateID = "completing"
)

// Rickshaw events
const (
	// Backend poll / operator commands
	EvOfferReceived   librefsm.EventID = "offer-received"
	EvOfferCleared    librefsm.EventID = "offer-cleared"
	EvAcceptSucceeded librefsm.EventID = "accept-succeeded"
	EvPickupConfirmed librefsm.EventID = "pickup-confirmed"
	EvRideFinished    librefsm.EventID = "ride-finished"

	// Motion simulator
	EvArrivedPickup      librefsm.EventID = "arrived-pickup"
	EvArrivedDestination librefsm.EventID = "arrived-destination"

	// Timer events
	EvCompletionHoldDone librefsm.EventID = "completion-hold-done"
)

// Timing constants
const (
	PendingPollInterval   = 3000 * time.Millisecond
	PositionReportPeriod  = 5000 * time.Millisecond
	MoveTickInterval      = 1000 * time.Millisecond
	CompletionDisplayHold = 5 * time.Second
)

// Geofence radii in meters.
const (
	PickupGeofenceMeters  = 100.0
	DropoffGeofenceMeters = 100.0
)

// VehicleActions is implemented by the rickshaw system. Geofence gating
// happens in the command handlers before any event is sent, so a rejected
// pickup never reaches the machine.
type VehicleActions interface {
	EnterAvailable(c *librefsm.Context) error
	EnterOfferPending(c *librefsm.Context) error
	EnterEnRoutePickup(c *librefsm.Context) error
	EnterAtPickup(c *librefsm.Context) error
	EnterEnRouteDestination(c *librefsm.Context) error
	EnterAtDestination(c *librefsm.Context) error
	EnterCompleting(c *librefsm.Context) error

	// Transition actions
	OnOfferCleared(c *librefsm.Context) error
	OnSessionReset(c *librefsm.Context) error
}

// NewVehicleDefinition creates the rickshaw FSM definition.
func NewVehicleDefinition(actions VehicleActions) *librefsm.Definition {
	return librefsm.NewDefinition().
		State(VehicleStateAvailable,
			librefsm.WithOnEnter(actions.EnterAvailable),
		).
		State(VehicleStateOfferPending,
			librefsm.WithOnEnter(actions.EnterOfferPending),
		).
		State(VehicleStateEnRoutePickup,
			librefsm.WithOnEnter(actions.EnterEnRoutePickup),
		).
		State(VehicleStateAtPickup,
			librefsm.WithOnEnter(actions.EnterAtPickup),
		).
		State(VehicleStateEnRouteDestination,
			librefsm.WithOnEnter(actions.EnterEnRouteDestination),
		).
		State(VehicleStateAtDestination,
			librefsm.WithOnEnter(actions.EnterAtDestination),
		).
		State(VehicleStateCompleting,
			librefsm.WithTimeout(CompletionDisplayHold, EvCompletionHoldDone),
			librefsm.WithOnEnter(actions.EnterCompleting),
		).

		// Offer lifecycle
		Transition(VehicleStateAvailable, EvOfferReceived, VehicleStateOfferPending).
		Transition(VehicleStateOfferPending, EvOfferCleared, VehicleStateAvailable,
			librefsm.WithAction(actions.OnOfferCleared),
		).
		Transition(VehicleStateOfferPending, EvAcceptSucceeded, VehicleStateEnRoutePickup).

		// Navigation to pickup
		Transition(VehicleStateEnRoutePickup, EvArrivedPickup, VehicleStateAtPickup).
		Transition(VehicleStateAtPickup, EvPickupConfirmed, VehicleStateEnRouteDestination).

		// Navigation to destination and completion
		Transition(VehicleStateEnRouteDestination, EvArrivedDestination, VehicleStateAtDestination).
		Transition(VehicleStateAtDestination, EvRideFinished, VehicleStateCompleting).
		Transition(VehicleStateCompleting, EvCompletionHoldDone, VehicleStateAvailable,
			librefsm.WithAction(actions.OnSessionReset),
		).

		Initial(VehicleStateAvailable)
}
