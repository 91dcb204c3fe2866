package core

import (
	"time"

	"github.com/librescoot/librefsm"
	"github.com/rafio1020/project-aeras/internal/fsm"
	"github.com/rafio1020/project-aeras/internal/types"
)

// Ensure KioskSystem implements fsm.RiderActions
var _ fsm.RiderActions = (*KioskSystem)(nil)

// riderStateToPhase converts a librefsm StateID to the published phase
func riderStateToPhase(id librefsm.StateID) types.RiderPhase {
	switch id {
	case fsm.RiderStateIdle:
		return types.RiderIdle
	case fsm.RiderStateDetecting:
		return types.RiderDetecting
	case fsm.RiderStatePrivilegeCheck:
		return types.RiderPrivilegeCheck
	case fsm.RiderStateWaitingConfirm:
		return types.RiderWaitingConfirm
	case fsm.RiderStateWaitingAcceptance:
		return types.RiderWaitingAcceptance
	case fsm.RiderStateAccepted:
		return types.RiderAccepted
	case fsm.RiderStateActive:
		return types.RiderActive
	case fsm.RiderStateTimeoutError:
		return types.RiderTimeoutError
	default:
		return types.RiderPhase(string(id))
	}
}

// === State Entry Actions ===

func (k *KioskSystem) EnterIdle(c *librefsm.Context) error {
	k.logger.Debugf("FSM: EnterIdle")

	k.setLed("yellow", true)
	k.setLed("green", false)
	k.setLed("red", false)
	k.display("Rickshaw point", "Stand on the pad", 0)
	return nil
}

func (k *KioskSystem) EnterDetecting(c *librefsm.Context) error {
	k.logger.Debugf("FSM: EnterDetecting")

	k.display("Hold position...", "", 0)
	k.beep(1, 100)
	return nil
}

// EnterPrivilegeCheck samples the light sensor once as a fast path, then
// keeps the check armed: later readings (HandleLight over Redis, or the
// watcher when reading hardware directly) can still authorize. Denial only
// happens when the state deadline elapses with no qualifying reading.
func (k *KioskSystem) EnterPrivilegeCheck(c *librefsm.Context) error {
	k.logger.Debugf("FSM: EnterPrivilegeCheck")
	k.display("Checking access", "", 0)

	level, err := k.readLightLevel()
	if err != nil {
		k.logger.Warnf("Failed to read light level: %v", err)
	} else {
		k.logger.Infof("Privilege check: light level %d (threshold %d)", level, k.cfg.LightThreshold)
		if level >= k.cfg.LightThreshold {
			k.sendEvent(fsm.EvAuthorized)
			return nil
		}
	}

	if k.io != nil {
		go k.watchPrivilege()
	}
	return nil
}

func (k *KioskSystem) EnterWaitingConfirm(c *librefsm.Context) error {
	k.logger.Debugf("FSM: EnterWaitingConfirm")

	k.setLed("yellow", false)
	k.setLed("green", true)
	k.display("Access granted", "Press confirm to call", 0)
	k.beep(2, 100)
	return nil
}

func (k *KioskSystem) EnterWaitingAcceptance(c *librefsm.Context) error {
	k.logger.Debugf("FSM: EnterWaitingAcceptance")

	k.mu.Lock()
	k.waitStart = time.Now()
	k.mu.Unlock()

	k.display("Finding rickshaw...", "", 0)
	return nil
}

func (k *KioskSystem) EnterAccepted(c *librefsm.Context) error {
	k.logger.Debugf("FSM: EnterAccepted")

	k.mu.RLock()
	waitStart := k.waitStart
	k.mu.RUnlock()

	if k.metrics != nil && !waitStart.IsZero() {
		k.metrics.WaitDuration.Observe(time.Since(waitStart).Seconds())
	}

	k.display("Rickshaw on the way", "Please wait here", 0)
	k.beep(2, 150)
	return nil
}

func (k *KioskSystem) EnterActive(c *librefsm.Context) error {
	k.logger.Debugf("FSM: EnterActive")
	k.display("Ride in progress", "", 0)
	return nil
}

func (k *KioskSystem) EnterTimeoutError(c *librefsm.Context) error {
	k.logger.Infof("FSM: EnterTimeoutError - no rickshaw accepted in time")

	if k.metrics != nil {
		k.metrics.RequestsTimedOut.Inc()
	}

	k.setLed("green", false)
	k.setLed("red", true)
	k.display("No rickshaw found", "Please try again", int(fsm.TimeoutDisplayHold/time.Millisecond))
	k.beep(3, 200)
	return nil
}

// === Transition Actions ===

func (k *KioskSystem) OnDetectionLost(c *librefsm.Context) error {
	k.logger.Infof("FSM: Presence lost before hold elapsed")
	return nil
}

func (k *KioskSystem) OnAuthorizationDenied(c *librefsm.Context) error {
	k.logger.Infof("FSM: Authorization denied")

	k.setLed("red", true)
	k.display("Not authorized", "", 3000)
	k.beep(1, 500)
	return nil
}

func (k *KioskSystem) OnRideCompleted(c *librefsm.Context) error {
	k.logger.Infof("FSM: Ride completed")

	k.mu.Lock()
	k.rideID = ""
	k.requesterID = ""
	k.mu.Unlock()

	k.display("Ride complete", "Thank you", 3000)
	k.beep(2, 100)
	return nil
}

func (k *KioskSystem) OnTimeoutReset(c *librefsm.Context) error {
	k.logger.Debugf("FSM: Timeout display hold elapsed, resetting")

	k.mu.Lock()
	k.rideID = ""
	k.requesterID = ""
	k.mu.Unlock()
	return nil
}
