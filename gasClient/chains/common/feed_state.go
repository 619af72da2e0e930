package common

import (
	"fmt"
	"sync"

	"github.com/rs/zerolog"
)

// FeedState is the lifecycle state of one feed connection
type FeedState int

const (
	StateDisconnected FeedState = iota
	StateConnecting
	StateConnected
	StateErroring
)

func (s FeedState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateErroring:
		return "erroring"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// allowed lists the legal transitions; a feed never reconnects by itself,
// so Disconnected is only left through a new Connecting attempt.
var allowed = map[FeedState][]FeedState{
	StateDisconnected: {StateConnecting},
	StateConnecting:   {StateConnected, StateErroring, StateDisconnected},
	StateConnected:    {StateErroring, StateDisconnected},
	StateErroring:     {StateConnected, StateDisconnected},
}

// CanTransition reports whether from -> to is a legal transition
func CanTransition(from, to FeedState) bool {
	for _, s := range allowed[from] {
		if s == to {
			return true
		}
	}
	return false
}

// StateTracker holds a feed's state and logs transitions
type StateTracker struct {
	mu     sync.RWMutex
	state  FeedState
	logger zerolog.Logger
}

// NewStateTracker creates a tracker in the Disconnected state
func NewStateTracker(logger zerolog.Logger) *StateTracker {
	return &StateTracker{
		state:  StateDisconnected,
		logger: logger,
	}
}

// State returns the current state
func (t *StateTracker) State() FeedState {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.state
}

// IsConnected returns true if connected
func (t *StateTracker) IsConnected() bool {
	return t.State() == StateConnected
}

// Transition moves to the given state. Illegal transitions are ignored and
// reported with false.
func (t *StateTracker) Transition(to FeedState) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.state == to {
		return true
	}
	if !CanTransition(t.state, to) {
		t.logger.Warn().
			Str("from", t.state.String()).
			Str("to", to.String()).
			Msg("illegal feed state transition ignored")
		return false
	}

	t.logger.Debug().
		Str("from", t.state.String()).
		Str("to", to.String()).
		Msg("feed state changed")
	t.state = to
	return true
}
