package core

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/librescoot/librefsm"
	"github.com/rafio1020/project-aeras/internal/backend"
	"github.com/rafio1020/project-aeras/internal/fsm"
	"github.com/rafio1020/project-aeras/internal/logger"
	"github.com/rafio1020/project-aeras/internal/messaging"
	"github.com/rafio1020/project-aeras/internal/metrics"
)

// KioskConfig carries the identity and tuning of one detection kiosk.
// Zero durations select the built-in defaults.
type KioskConfig struct {
	NodeID         string
	PickupBlock    string
	Destination    string
	LightThreshold int

	StatusPollInterval time.Duration
	RequestTimeout     time.Duration
}

// KioskSystem drives the rider-side detection kiosk: a presence pad, an
// ambient light privilege sensor, a confirm button and a small panel. It
// submits ride requests to the backend and follows their status by polling.
type KioskSystem struct {
	cfg     KioskConfig
	logger  *logger.Logger
	backend backend.Correlator
	redis   MessagingClient
	io      SignalIO           // nil when signals arrive over Redis
	metrics *metrics.Collector // optional

	machine *librefsm.Machine
	ctx     context.Context

	mu          sync.RWMutex
	rideID      string
	requesterID string
	lastLight   int
	lastConfirm time.Time
	waitStart   time.Time
}

func NewKioskSystem(cfg KioskConfig, correlator backend.Correlator, redis MessagingClient, io SignalIO, l *logger.Logger, collector *metrics.Collector) *KioskSystem {
	if cfg.StatusPollInterval <= 0 {
		cfg.StatusPollInterval = fsm.StatusPollInterval
	}
	return &KioskSystem{
		cfg:     cfg,
		logger:  l.WithTag("kiosk"),
		backend: correlator,
		redis:   redis,
		io:      io,
		metrics: collector,
	}
}

func (k *KioskSystem) Start(ctx context.Context) error {
	k.logger.Infof("Starting kiosk system %s (block %s)", k.cfg.NodeID, k.cfg.PickupBlock)
	k.ctx = ctx

	k.redis.SetCallbacks(messaging.Callbacks{
		PresenceCallback: k.HandlePresence,
		ConfirmCallback:  k.HandleConfirm,
		LightCallback:    k.HandleLight,
	})

	if err := k.redis.Connect(); err != nil {
		return fmt.Errorf("failed to connect to Redis: %w", err)
	}

	if err := k.initFSM(ctx); err != nil {
		return fmt.Errorf("failed to start state machine: %w", err)
	}

	if k.io != nil {
		if err := k.io.Initialize(); err != nil {
			return fmt.Errorf("failed to initialize signal IO: %w", err)
		}
		k.io.RegisterPresenceCallback(k.HandlePresence)
		k.io.RegisterConfirmCallback(k.HandleConfirm)
	}

	if err := k.redis.PublishKioskPhase(riderStateToPhase(k.machine.CurrentState())); err != nil {
		return fmt.Errorf("failed to publish initial phase: %w", err)
	}

	go k.statusPollLoop(ctx)

	if err := k.redis.StartListening(); err != nil {
		return fmt.Errorf("failed to start Redis listeners: %w", err)
	}

	k.logger.Infof("Kiosk system started successfully")
	return nil
}

// initFSM builds and starts the librefsm machine
func (k *KioskSystem) initFSM(ctx context.Context) error {
	machine, err := fsm.NewRiderDefinition(k, k.cfg.RequestTimeout).Build()
	if err != nil {
		return err
	}
	k.machine = machine

	k.machine.OnStateChange(func(from, to librefsm.StateID) {
		k.logger.Infof("State transition: %s -> %s", from, to)
		if err := k.redis.PublishKioskPhase(riderStateToPhase(to)); err != nil {
			k.logger.Errorf("Failed to publish phase: %v", err)
		}
	})

	return k.machine.Start(ctx)
}

func (k *KioskSystem) Shutdown() {
	if k.io != nil {
		k.io.Cleanup()
	}
	if k.redis != nil {
		k.redis.Close()
	}
}

// CurrentState exposes the machine state for diagnostics.
func (k *KioskSystem) CurrentState() librefsm.StateID {
	return k.machine.CurrentState()
}

// HandlePresence processes a presence pad edge.
func (k *KioskSystem) HandlePresence(present bool) error {
	k.logger.Debugf("Presence signal: %v", present)
	if present {
		k.sendEvent(fsm.EvPresenceOn)
	} else {
		k.sendEvent(fsm.EvPresenceOff)
	}
	return nil
}

// HandleConfirm processes a confirm button press. Presses closer together
// than the debounce window are treated as switch bounce and dropped.
func (k *KioskSystem) HandleConfirm() error {
	now := time.Now()

	k.mu.Lock()
	if now.Sub(k.lastConfirm) < fsm.ConfirmDebounce {
		k.mu.Unlock()
		k.logger.Debugf("Confirm press debounced")
		return nil
	}
	k.lastConfirm = now
	k.mu.Unlock()

	if k.machine.CurrentState() != fsm.RiderStateWaitingConfirm {
		k.logger.Debugf("Ignoring confirm press outside waiting-confirm")
		return nil
	}

	return k.submitRequest()
}

// HandleLight records an ambient light reading arriving over Redis. While
// the machine sits in privilege-check, a reading at or above the threshold
// authorizes it immediately.
func (k *KioskSystem) HandleLight(level int) error {
	k.mu.Lock()
	k.lastLight = level
	k.mu.Unlock()

	if k.machine.CurrentState() == fsm.RiderStatePrivilegeCheck && level >= k.cfg.LightThreshold {
		k.sendEvent(fsm.EvAuthorized)
	}
	return nil
}

// watchPrivilege polls the light sensor while the machine sits in
// privilege-check. Authorization fires on the first reading at or above the
// threshold; denial is left to the state's own deadline.
func (k *KioskSystem) watchPrivilege() {
	ticker := time.NewTicker(fsm.PrivilegePollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-k.ctx.Done():
			return
		case <-ticker.C:
			if k.machine.CurrentState() != fsm.RiderStatePrivilegeCheck {
				return
			}
			level, err := k.io.ReadLightLevel()
			if err != nil {
				k.logger.Warnf("Failed to read light level: %v", err)
				continue
			}
			k.mu.Lock()
			k.lastLight = level
			k.mu.Unlock()
			if level >= k.cfg.LightThreshold {
				k.sendEvent(fsm.EvAuthorized)
				return
			}
		}
	}
}

// submitRequest sends the ride request to the backend. A failed submission
// shows an error and resets the session to idle; the rider starts over from
// the pad.
func (k *KioskSystem) submitRequest() error {
	requesterID := fmt.Sprintf("USER_%d", 1000+rand.Intn(9000))
	k.logger.Infof("Submitting ride request: %s -> %s (%s)", k.cfg.PickupBlock, k.cfg.Destination, requesterID)

	rideID, err := k.backend.SubmitRequest(k.cfg.PickupBlock, k.cfg.Destination, requesterID)
	if err != nil {
		k.logger.Errorf("Failed to submit ride request: %v", err)
		k.countBackendError(err)
		k.display("Request failed", "Please try again", 3000)
		k.beep(1, 400)
		k.sendEvent(fsm.EvRequestFailed)
		return err
	}

	k.mu.Lock()
	k.rideID = rideID
	k.requesterID = requesterID
	k.mu.Unlock()

	if k.metrics != nil {
		k.metrics.RequestsSubmitted.Inc()
	}

	k.logger.Infof("Ride request acknowledged: %s", rideID)
	k.sendEvent(fsm.EvRequestSent)
	return nil
}

func (k *KioskSystem) statusPollLoop(ctx context.Context) {
	ticker := time.NewTicker(k.cfg.StatusPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			k.logger.Infof("Context cancelled, exiting status poll loop")
			return
		case <-ticker.C:
			k.pollStatus()
		}
	}
}

func (k *KioskSystem) pollStatus() {
	state := k.machine.CurrentState()
	switch state {
	case fsm.RiderStateWaitingAcceptance, fsm.RiderStateAccepted, fsm.RiderStateActive:
	default:
		return
	}

	k.mu.RLock()
	rideID := k.rideID
	waitStart := k.waitStart
	k.mu.RUnlock()
	if rideID == "" {
		return
	}

	phase, err := k.backend.PollStatus(k.cfg.PickupBlock)
	if err != nil {
		k.logger.Warnf("Status poll failed: %v", err)
		k.countBackendError(err)
		return
	}

	k.logger.Debugf("Status poll: ride %s phase %s", rideID, phase)

	switch phase {
	case backend.StatusAccepted:
		k.sendEvent(fsm.EvRideAccepted)
	case backend.StatusPickup:
		k.sendEvent(fsm.EvRideStarted)
	case backend.StatusCompleted:
		k.sendEvent(fsm.EvRideCompleted)
	default:
		// Any phase that does not advance the machine keeps the wait
		// counter ticking on the panel.
		if state == fsm.RiderStateWaitingAcceptance && !waitStart.IsZero() {
			elapsed := int(time.Since(waitStart).Seconds())
			k.display("Finding rickshaw...", fmt.Sprintf("Waiting %ds", elapsed), 0)
		}
	}
}

func (k *KioskSystem) readLightLevel() (int, error) {
	if k.io != nil {
		return k.io.ReadLightLevel()
	}
	k.mu.RLock()
	defer k.mu.RUnlock()
	return k.lastLight, nil
}

func (k *KioskSystem) sendEvent(event librefsm.EventID) {
	k.machine.Send(librefsm.Event{ID: event})
}

func (k *KioskSystem) countBackendError(err error) {
	if k.metrics == nil {
		return
	}
	k.metrics.BackendErrors.WithLabelValues(backend.ErrorKind(err)).Inc()
}

// display publishes a panel intent. Failures are logged, never fatal.
func (k *KioskSystem) display(line1, line2 string, holdMs int) {
	intent := messaging.DisplayIntent{Line1: line1, Line2: line2, HoldMs: holdMs}
	if err := k.redis.PublishKioskDisplay(intent); err != nil {
		k.logger.Warnf("Failed to publish display intent: %v", err)
	}
}

func (k *KioskSystem) setLed(color string, on bool) {
	if k.io != nil {
		if err := k.io.SetLed(color, on); err != nil {
			k.logger.Warnf("Failed to set %s LED: %v", color, err)
		}
	}
	if err := k.redis.SetKioskLed(color, on); err != nil {
		k.logger.Warnf("Failed to mirror %s LED state: %v", color, err)
	}
}

func (k *KioskSystem) beep(count, durationMs int) {
	if k.io != nil {
		if err := k.io.Beep(count, durationMs); err != nil {
			k.logger.Warnf("Failed to beep: %v", err)
		}
		return
	}
	if err := k.redis.PublishKioskBeep(count, durationMs); err != nil {
		k.logger.Warnf("Failed to publish beep request: %v", err)
	}
}
