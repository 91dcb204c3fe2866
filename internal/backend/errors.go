package backend

import "errors"

var (
	// ErrConnectivity marks transport failures (no network, timeout). The
	// caller skips the action this tick and retries on its next interval.
	ErrConnectivity = errors.New("backend unreachable")

	// ErrProtocol marks malformed or unexpected responses. Treated as "no
	// new information".
	ErrProtocol = errors.New("protocol error")

	// ErrRideTaken is returned by AcceptRide when another rickshaw got the
	// ride first. Expected and non-fatal.
	ErrRideTaken = errors.New("ride already taken")
)

// ErrorKind maps an error from the client to a metrics label.
func ErrorKind(err error) string {
	switch {
	case errors.Is(err, ErrConnectivity):
		return "connectivity"
	case errors.Is(err, ErrProtocol):
		return "protocol"
	case errors.Is(err, ErrRideTaken):
		return "conflict"
	default:
		return "other"
	}
}
