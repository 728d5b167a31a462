package session

import (
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// State is the lifecycle position of one connection.
type State int32

const (
	StateConnecting State = iota
	StateNegotiating
	StateStreaming
	StateClosed
)

var ErrInvalidTransition = errors.New("session: invalid state transition")

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateNegotiating:
		return "negotiating"
	case StateStreaming:
		return "streaming"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

func allowed(from, to State) bool {
	switch from {
	case StateConnecting:
		return to == StateNegotiating || to == StateClosed
	case StateNegotiating:
		return to == StateStreaming || to == StateClosed
	case StateStreaming:
		return to == StateClosed
	default:
		return false
	}
}

// Role is the side of the handshake a connection plays.
type Role string

const (
	RoleSubscriber Role = "subscriber"
	RolePublisher  Role = "publisher"
)

// Lifecycle tracks one connection's state. Safe for concurrent use.
type Lifecycle struct {
	ID    string
	Topic string
	Peer  string
	Role  Role

	state atomic.Int32
	since atomic.Int64
}

func NewLifecycle(role Role, topic, peer string) *Lifecycle {
	l := &Lifecycle{
		ID:    uuid.NewString(),
		Topic: topic,
		Peer:  peer,
		Role:  role,
	}
	l.state.Store(int32(StateConnecting))
	l.since.Store(time.Now().UnixNano())
	return l
}

func (l *Lifecycle) State() State {
	return State(l.state.Load())
}

// Transition moves to next if the edge is legal. Closing an already closed
// connection is a no-op.
func (l *Lifecycle) Transition(next State) error {
	for {
		cur := State(l.state.Load())
		if cur == StateClosed && next == StateClosed {
			return nil
		}
		if !allowed(cur, next) {
			return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, cur, next)
		}
		if l.state.CompareAndSwap(int32(cur), int32(next)) {
			l.since.Store(time.Now().UnixNano())
			return nil
		}
	}
}

// Close forces the Closed state from any state.
func (l *Lifecycle) Close() {
	if l.state.Swap(int32(StateClosed)) != int32(StateClosed) {
		l.since.Store(time.Now().UnixNano())
	}
}

// Info is a point-in-time view of a connection.
type Info struct {
	ID    string    `json:"id"`
	Topic string    `json:"topic"`
	Peer  string    `json:"peer"`
	Role  Role      `json:"role"`
	State string    `json:"state"`
	Since time.Time `json:"since"`
}

func (l *Lifecycle) Snapshot() Info {
	return Info{
		ID:    l.ID,
		Topic: l.Topic,
		Peer:  l.Peer,
		Role:  l.Role,
		State: l.State().String(),
		Since: time.Unix(0, l.since.Load()),
	}
}
