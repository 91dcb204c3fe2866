package core

import (
	"github.com/rafio1020/project-aeras/internal/messaging"
	"github.com/rafio1020/project-aeras/internal/types"
)

// MessagingClient defines the interface for Redis messaging operations needed
// by the node systems
type MessagingClient interface {
	SetCallbacks(callbacks messaging.Callbacks)
	Connect() error
	StartListening() error
	Close() error

	// Kiosk side
	PublishKioskPhase(phase types.RiderPhase) error
	PublishKioskDisplay(intent messaging.DisplayIntent) error
	SetKioskLed(color string, on bool) error
	PublishKioskBeep(count, durationMs int) error

	// Rickshaw side
	PublishRickshawPhase(phase types.VehiclePhase) error
	PublishRickshawDisplay(intent messaging.DisplayIntent) error
	PublishRickshawPosition(lat, lng float64, geohash string) error
	SetRideInfo(rideID, pickup, destination string) error
	ClearRideInfo() error
	SetTotalPoints(points int) error
}

// SignalIO defines the interface for the kiosk's physical panel. When the
// kiosk runs with SIGNAL_SOURCE=redis the system has no SignalIO and the
// presence, confirm and light signals arrive over the command list instead.
type SignalIO interface {
	Initialize() error
	Cleanup()

	SetLed(color string, on bool) error
	Beep(count, durationMs int) error
	ReadLightLevel() (int, error)

	RegisterPresenceCallback(callback func(bool) error)
	RegisterConfirmCallback(callback func() error)
}
