package types

// RiderPhase is the ride lifecycle phase of the pickup kiosk.
type RiderPhase string

const (
	RiderIdle              RiderPhase = "idle"
	RiderDetecting         RiderPhase = "detecting"
	RiderPrivilegeCheck    RiderPhase = "privilege-check"
	RiderWaitingConfirm    RiderPhase = "waiting-confirm"
	RiderWaitingAcceptance RiderPhase = "waiting-acceptance"
	RiderAccepted          RiderPhase = "accepted"
	RiderActive            RiderPhase = "active"
	RiderTimeoutError      RiderPhase = "timeout-error"
)

// VehiclePhase is the ride lifecycle phase of the rickshaw unit.
type VehiclePhase string

const (
	VehicleAvailable            VehiclePhase = "available"
	VehicleOfferPending         VehiclePhase = "offer-pending"
	VehicleEnRouteToPickup      VehiclePhase = "en-route-pickup"
	VehicleAtPickup             VehiclePhase = "at-pickup"
	VehicleEnRouteToDestination VehiclePhase = "en-route-destination"
	VehicleAtDestination        VehiclePhase = "at-destination"
	VehicleCompleting           VehiclePhase = "completing"
)

// RideOffer is a pending request surfaced to the rickshaw operator.
// Waypoints are carried by name until the offer is accepted.
type RideOffer struct {
	RideID      string
	Pickup      string
	Destination string
	DistanceKm  float64
}

// RideSession is the mutable record of the ride a node is currently part of.
// At most one non-empty session exists per node; Reset returns it to empty.
type RideSession struct {
	RideID          string
	Pickup          string
	Destination     string
	PickupConfirmed bool
	PointsAwarded   int
}

// Active reports whether a ride is in progress on this node.
func (s *RideSession) Active() bool { return s.RideID != "" }

// Reset clears every session field. It must always succeed, so it has no
// error path.
func (s *RideSession) Reset() { *s = RideSession{} }
