// Package status tracks the Bluetooth link state.
package status

import (
	"fmt"
	"slices"
	"sync"

	"github.com/matheus3301/comet/internal/bus"
)

// State is a Bluetooth link state.
type State string

const (
	Disconnected State = "DISCONNECTED"
	Connecting   State = "CONNECTING"
	Connected    State = "CONNECTED"
	Listening    State = "LISTENING"
	Failed       State = "FAILED"
)

// validTransitions defines allowed state transitions.
var validTransitions = map[State][]State{
	Disconnected: {Connecting},
	Connecting:   {Connected, Failed},
	Connected:    {Listening, Disconnected, Failed},
	Listening:    {Disconnected, Failed},
	Failed:       {Connecting, Disconnected},
}

// Machine tracks and enforces link state transitions.
type Machine struct {
	mu      sync.RWMutex
	current State
	bus     *bus.Bus
}

// NewMachine creates a new state machine starting in Disconnected state.
func NewMachine(b *bus.Bus) *Machine {
	return &Machine{
		current: Disconnected,
		bus:     b,
	}
}

// Current returns the current state.
func (m *Machine) Current() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// Transition attempts to move to a new state for the device at addr.
// Returns error if transition is invalid.
func (m *Machine) Transition(to State, addr string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	allowed := validTransitions[m.current]
	if !slices.Contains(allowed, to) {
		return fmt.Errorf("invalid transition from %s to %s", m.current, to)
	}
	from := m.current
	m.current = to
	if m.bus != nil {
		m.bus.Publish(bus.Event{
			Kind: bus.KindLinkChanged,
			Payload: LinkChange{
				From:    from,
				To:      to,
				Address: addr,
			},
		})
	}
	return nil
}

// LinkChange is the payload for link change events.
type LinkChange struct {
	From    State  `json:"from"`
	To      State  `json:"to"`
	Address string `json:"address,omitempty"`
}
