package backend

import (
	"github.com/rafio1020/project-aeras/internal/geo"
)

// Wire types for the coordination backend. Every payload is a typed schema
// decoded with encoding/json; a missing required field is a protocol error,
// never a silent default — except where noted.

// RegisterRequest announces a node to the backend.
type RegisterRequest struct {
	NodeID      string  `json:"nodeID"`
	DisplayName string  `json:"displayName"`
	PhoneNumber string  `json:"phoneNumber,omitempty"`
	Lat         float64 `json:"lat"`
	Lng         float64 `json:"lng"`
}

// PositionReport is the fire-and-forget location broadcast.
type PositionReport struct {
	NodeID  string  `json:"nodeID"`
	Lat     float64 `json:"lat"`
	Lng     float64 `json:"lng"`
	Geohash string  `json:"geohash,omitempty"`
}

// RideRequest asks for a ride from a pickup block to a destination block.
type RideRequest struct {
	Pickup      string `json:"pickupBlock"`
	Destination string `json:"destination"`
	RequesterID string `json:"userID"`
}

type rideRequestResponse struct {
	RideID *string `json:"rideID"`
}

// PendingRide is one entry from the pending-requests poll.
type PendingRide struct {
	RideID      string  `json:"rideID"`
	Pickup      string  `json:"pickupBlock"`
	Destination string  `json:"destination"`
	DistanceKm  float64 `json:"distanceKm"`
}

type pendingRidesResponse struct {
	Rides []PendingRide `json:"rides"`
}

type acceptRequest struct {
	RideID string `json:"rideID"`
	NodeID string `json:"rickshawID"`
}

type acceptResponse struct {
	Accepted *bool `json:"accepted"`
}

type pickupRequest struct {
	RideID string `json:"rideID"`
}

type completeRequest struct {
	RideID  string  `json:"rideID"`
	DropLat float64 `json:"dropLat"`
	DropLng float64 `json:"dropLng"`
}

// CompletionResult is the outcome of a completed ride.
type CompletionResult struct {
	// Points defaults to 0 when the backend omits it; a missing award is
	// the safe reading of "pending review".
	Points       int     `json:"points"`
	DropDistance float64 `json:"distance"`
	Status       string  `json:"status"`
}

// Completion status values.
// Ride status values, shared by the completion response and the status poll.
const (
	StatusRequested     = "REQUESTED"
	StatusAccepted      = "ACCEPTED"
	StatusPickup        = "PICKUP"
	StatusCompleted     = "COMPLETED"
	StatusPendingReview = "PENDING_REVIEW"
)

type statusResponse struct {
	Phase *string `json:"status"`
}

// Correlator is the request/poll contract both state machines use to
// exchange ride state with the shared backend.
type Correlator interface {
	Register(nodeID, displayName string, pos geo.Position) error
	ReportPosition(nodeID string, pos geo.Position) error
	SubmitRequest(pickup, destination, requesterID string) (rideID string, err error)
	PollPendingRequests(nodeID string) ([]PendingRide, error)
	AcceptRide(rideID, nodeID string) error
	ConfirmPickup(rideID string) error
	CompleteRide(rideID string, drop geo.Position) (CompletionResult, error)
	PollStatus(blockID string) (phase string, err error)
}
