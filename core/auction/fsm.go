package auction

import (
	"fmt"
	"sync"
)

// ParticipantState is the per-interval state of a participant.
type ParticipantState string

const (
	ParticipantIdle          ParticipantState = "idle"
	ParticipantBidSubmitted  ParticipantState = "bid_submitted"
	ParticipantAwaitingPrice ParticipantState = "awaiting_price"
	ParticipantDispatched    ParticipantState = "dispatched"
)

// ClearerState is the state of the market clearing cycle.
type ClearerState string

const (
	ClearerIdle           ClearerState = "idle"
	ClearerCollectingBids ClearerState = "collecting_bids"
	ClearerAggregating    ClearerState = "aggregating"
	ClearerClearing       ClearerState = "clearing"
	ClearerDispatching    ClearerState = "dispatching"
)

var participantTransitions = map[ParticipantState][]ParticipantState{
	ParticipantIdle:          {ParticipantBidSubmitted},
	ParticipantBidSubmitted:  {ParticipantAwaitingPrice},
	ParticipantAwaitingPrice: {ParticipantDispatched, ParticipantIdle},
	ParticipantDispatched:    {ParticipantIdle},
}

var clearerTransitions = map[ClearerState][]ClearerState{
	ClearerIdle:           {ClearerCollectingBids},
	ClearerCollectingBids: {ClearerAggregating},
	ClearerAggregating:    {ClearerClearing},
	ClearerClearing:       {ClearerDispatching},
	ClearerDispatching:    {ClearerIdle},
}

// machine is a small guarded state machine.
type machine[S ~string] struct {
	mu      sync.Mutex
	name    string
	initial S
	state   S
	allowed map[S][]S
}

func newMachine[S ~string](name string, initial S, allowed map[S][]S) *machine[S] {
	return &machine[S]{name: name, initial: initial, state: initial, allowed: allowed}
}

func (m *machine[S]) current() S {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

func (m *machine[S]) to(next S) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.allowed[m.state] {
		if s == next {
			m.state = next
			return nil
		}
	}
	return fmt.Errorf("%w: %s %s -> %s", ErrInvalidTransition, m.name, m.state, next)
}

// reset forces the machine back to its initial state after an aborted cycle.
func (m *machine[S]) reset() {
	m.mu.Lock()
	m.state = m.initial
	m.mu.Unlock()
}
