package gateway

import (
	"errors"
	"fmt"

	"github.com/gorilla/websocket"
)

// Status is the lifecycle state of a Session.
type Status int32

const (
	StatusConnecting Status = iota
	StatusIdentifying
	StatusConnected
	StatusAwaitingHeartbeatAck
	StatusReconnecting
	StatusClosed
)

func (s Status) String() string {
	switch s {
	case StatusConnecting:
		return "connecting"
	case StatusIdentifying:
		return "identifying"
	case StatusConnected:
		return "connected"
	case StatusAwaitingHeartbeatAck:
		return "awaiting_heartbeat_ack"
	case StatusReconnecting:
		return "reconnecting"
	case StatusClosed:
		return "closed"
	default:
		return fmt.Sprintf("status(%d)", int32(s))
	}
}

var (
	ErrEmptyToken          = errors.New("gateway token is empty")
	ErrAlreadyConnected    = errors.New("gateway session already connected")
	ErrNotConnected        = errors.New("gateway session is not connected")
	ErrClosed              = errors.New("gateway session closed")
	ErrHeartbeatAckMissed  = errors.New("heartbeat was not acknowledged")
	ErrReconnectRequested  = errors.New("gateway requested a reconnect")
	ErrInvalidSession      = errors.New("gateway invalidated the session")
	ErrUnexpectedHandshake = errors.New("unexpected frame during handshake")

	errConnectionDone = errors.New("connection closed while dispatching")
)

// FatalError is a handshake rejection that must not be retried.
type FatalError struct {
	Code   int
	Reason string
}

func (e *FatalError) Error() string {
	return fmt.Sprintf("gateway rejected the connection (%d): %s", e.Code, e.Reason)
}

var _ error = (*FatalError)(nil)

// Close codes after which reconnecting cannot succeed.
var fatalCloseCodes = map[int]string{
	4004: "authentication failed",
	4010: "invalid shard",
	4011: "sharding required",
	4012: "invalid API version",
	4013: "invalid intents",
	4014: "disallowed intents",
}

// classify turns fatal websocket close errors into a FatalError and leaves
// every other error untouched.
func classify(err error) error {
	var closeErr *websocket.CloseError
	if errors.As(err, &closeErr) {
		if reason, fatal := fatalCloseCodes[closeErr.Code]; fatal {
			return &FatalError{Code: closeErr.Code, Reason: reason}
		}
	}
	return err
}
