package fsm

import (
	"time"

	"github.com/librescoot/librefsm"
)

// Kiosk states
const (
	RiderStateIdle              librefsm.StateID = "idle"
	RiderStateDetecting         librefsm.StateID = "detecting"
	RiderStatePrivilegeCheck    librefsm.StateID = "privilege-check"
	RiderStateWaitingConfirm    librefsm.StateID = "waiting-confirm"
	RiderStateWaitingAcceptance librefsm.StateID = "waiting-acceptance"
	RiderStateAccepted          librefsm.StateID = "accepted"
	RiderStateActive            librefsm.StateID = "active"
	RiderStateTimeoutError      librefsm.StateID = "timeout-error"
)

// Kiosk events
const (
	// External signals
	EvPresenceOn    librefsm.EventID = "presence-on"
	EvPresenceOff   librefsm.EventID = "presence-off"
	EvAuthorized    librefsm.EventID = "authorized"
	EvDenied        librefsm.EventID = "denied"
	EvRequestSent   librefsm.EventID = "request-sent"
	EvRequestFailed librefsm.EventID = "request-failed"

	// Backend poll results
	EvRideAccepted  librefsm.EventID = "ride-accepted"
	EvRideStarted   librefsm.EventID = "ride-started"
	EvRideCompleted librefsm.EventID = "ride-completed"

	// Timer events
	EvPresenceHeld    librefsm.EventID = "presence-held"
	EvRequestTimeout  librefsm.EventID = "request-timeout"
	EvDisplayHoldDone librefsm.EventID = "display-hold-done"
)

// Timing constants
const (
	PresenceHoldThreshold = 3000 * time.Millisecond
	ConfirmDebounce       = 200 * time.Millisecond
	RequestTimeout        = 60000 * time.Millisecond
	TimeoutDisplayHold    = 5 * time.Second
	StatusPollInterval    = 2000 * time.Millisecond
	PrivilegeCheckTimeout = 15 * time.Second
	PrivilegePollInterval = 200 * time.Millisecond
)

// RiderActions is implemented by the kiosk system to handle state entry and
// lifecycle side effects.
type RiderActions interface {
	EnterIdle(c *librefsm.Context) error
	EnterDetecting(c *librefsm.Context) error
	EnterPrivilegeCheck(c *librefsm.Context) error
	EnterWaitingConfirm(c *librefsm.Context) error
	EnterWaitingAcceptance(c *librefsm.Context) error
	EnterAccepted(c *librefsm.Context) error
	EnterActive(c *librefsm.Context) error
	EnterTimeoutError(c *librefsm.Context) error

	// Transition actions
	OnDetectionLost(c *librefsm.Context) error
	OnAuthorizationDenied(c *librefsm.Context) error
	OnRideCompleted(c *librefsm.Context) error
	OnTimeoutReset(c *librefsm.Context) error
}

// NewRiderDefinition creates the kiosk FSM definition. The detection hold,
// privilege-check deadline and request timeout run as declarative state
// timeouts; losing presence before the hold elapses drops back to idle with
// the timer cancelled. The privilege check stays armed until an authorizing
// light reading arrives or the deadline denies it.
// A non-positive requestTimeout selects the default.
func NewRiderDefinition(actions RiderActions, requestTimeout time.Duration) *librefsm.Definition {
	if requestTimeout <= 0 {
		requestTimeout = RequestTimeout
	}
	return librefsm.NewDefinition().
		State(RiderStateIdle,
			librefsm.WithOnEnter(actions.EnterIdle),
		).
		State(RiderStateDetecting,
			librefsm.WithTimeout(PresenceHoldThreshold, EvPresenceHeld),
			librefsm.WithOnEnter(actions.EnterDetecting),
		).
		State(RiderStatePrivilegeCheck,
			librefsm.WithTimeout(PrivilegeCheckTimeout, EvDenied),
			librefsm.WithOnEnter(actions.EnterPrivilegeCheck),
		).
		State(RiderStateWaitingConfirm,
			librefsm.WithOnEnter(actions.EnterWaitingConfirm),
		).
		State(RiderStateWaitingAcceptance,
			librefsm.WithTimeout(requestTimeout, EvRequestTimeout),
			librefsm.WithOnEnter(actions.EnterWaitingAcceptance),
		).
		State(RiderStateAccepted,
			librefsm.WithOnEnter(actions.EnterAccepted),
		).
		State(RiderStateActive,
			librefsm.WithOnEnter(actions.EnterActive),
		).
		State(RiderStateTimeoutError,
			librefsm.WithTimeout(TimeoutDisplayHold, EvDisplayHoldDone),
			librefsm.WithOnEnter(actions.EnterTimeoutError),
		).

		// Detection
		Transition(RiderStateIdle, EvPresenceOn, RiderStateDetecting).
		Transition(RiderStateDetecting, EvPresenceOff, RiderStateIdle,
			librefsm.WithAction(actions.OnDetectionLost),
		).
		Transition(RiderStateDetecting, EvPresenceHeld, RiderStatePrivilegeCheck).

		// Authorization and confirmation
		Transition(RiderStatePrivilegeCheck, EvAuthorized, RiderStateWaitingConfirm).
		Transition(RiderStatePrivilegeCheck, EvDenied, RiderStateIdle,
			librefsm.WithAction(actions.OnAuthorizationDenied),
		).
		Transition(RiderStateWaitingConfirm, EvRequestSent, RiderStateWaitingAcceptance).
		Transition(RiderStateWaitingConfirm, EvRequestFailed, RiderStateIdle).

		// Ride status updates from the backend poll
		Transition(RiderStateWaitingAcceptance, EvRideAccepted, RiderStateAccepted).
		Transition(RiderStateWaitingAcceptance, EvRideStarted, RiderStateActive).
		Transition(RiderStateAccepted, EvRideStarted, RiderStateActive).
		Transition(RiderStateAccepted, EvRideCompleted, RiderStateIdle,
			librefsm.WithAction(actions.OnRideCompleted),
		).
		Transition(RiderStateActive, EvRideCompleted, RiderStateIdle,
			librefsm.WithAction(actions.OnRideCompleted),
		).

		// Timeout path: terminal for the session, then automatic reset
		Transition(RiderStateWaitingAcceptance, EvRequestTimeout, RiderStateTimeoutError).
		Transition(RiderStateTimeoutError, EvDisplayHoldDone, RiderStateIdle,
			librefsm.WithAction(actions.OnTimeoutReset),
		).

		Initial(RiderStateIdle)
}
