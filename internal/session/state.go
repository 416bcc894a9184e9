package session

import (
	"errors"
	"fmt"

	"github.com/markis/coach/internal/transcript"
)

// State is the lifecycle position of a Session.
type State int

const (
	// StateIdle accepts a new query.
	StateIdle State = iota
	// StateAwaiting has submitted a query and waits for the service to answer.
	StateAwaiting
	// StateStreaming is folding events from an open answer stream.
	StateStreaming
	// StateErrored has folded the failure turn and is about to return to idle.
	StateErrored
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAwaiting:
		return "awaiting"
	case StateStreaming:
		return "streaming"
	case StateErrored:
		return "errored"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Busy reports whether an exchange is in flight.
func (s State) Busy() bool {
	return s == StateAwaiting || s == StateStreaming
}

// ErrUsage matches every error caused by calling the session incorrectly.
var ErrUsage = errors.New("usage error")

var (
	ErrBusy       = fmt.Errorf("%w: a chat exchange is already in flight", ErrUsage)
	ErrEmptyQuery = fmt.Errorf("%w: query is empty", ErrUsage)
)

// Snapshot is a point-in-time copy of the session, safe to keep and read
// from any goroutine.
type Snapshot struct {
	Turns      []transcript.Turn
	State      State
	Generation uint64

	// Err is the failure that ended the last exchange, or nil if it
	// completed or was cancelled.
	Err error
}
