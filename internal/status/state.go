// Package status tracks the sync health of a session.
package status

import (
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/matheus3301/rentchat/internal/bus"
)

// State is the sync health of a session.
type State string

const (
	Booting      State = "BOOTING"
	Syncing      State = "SYNCING"
	Ready        State = "READY"
	Degraded     State = "DEGRADED"
	Unauthorized State = "UNAUTHORIZED"
	Error        State = "ERROR"
)

// Serving reports whether the daemon can still produce fresh data. A
// degraded session serves stale data and keeps retrying, so it counts.
func (s State) Serving() bool {
	return s != Unauthorized && s != Error
}

// Unauthorized must pass through Syncing after new credentials: Ready is
// only reachable from a successful poll.
var validTransitions = map[State][]State{
	Booting:      {Syncing, Unauthorized, Error},
	Syncing:      {Ready, Degraded, Unauthorized, Error},
	Ready:        {Degraded, Unauthorized, Error},
	Degraded:     {Ready, Unauthorized, Error},
	Unauthorized: {Syncing, Error},
	Error:        {Booting},
}

// TransitionError is returned for a transition the machine does not allow.
type TransitionError struct {
	From, To State
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("invalid transition from %s to %s", e.From, e.To)
}

// Machine holds the current state and publishes every change on the bus as
// a session.status_changed event.
type Machine struct {
	mu      sync.RWMutex
	current State
	since   time.Time
	bus     *bus.Bus
	now     func() time.Time
}

// NewMachine creates a machine in Booting. b may be nil.
func NewMachine(b *bus.Bus) *Machine {
	m := &Machine{current: Booting, bus: b, now: time.Now}
	m.since = m.now()
	return m
}

// Current returns the current state.
func (m *Machine) Current() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// Since returns when the machine entered its current state.
func (m *Machine) Since() time.Time {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.since
}

// Transition moves to a new state or returns a *TransitionError.
func (m *Machine) Transition(to State) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	from := m.current
	if !slices.Contains(validTransitions[from], to) {
		return &TransitionError{From: from, To: to}
	}
	m.current = to
	m.since = m.now()
	// Emitted under the lock so subscribers see changes in order.
	m.bus.Emit(bus.SessionStatus, "from", string(from), "to", string(to))
	return nil
}

// TransitionIfNot moves to `to` unless the machine is already there.
func (m *Machine) TransitionIfNot(to State) error {
	if m.Current() == to {
		return nil
	}
	return m.Transition(to)
}
