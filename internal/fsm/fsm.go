// Package fsm is the event-dispatch state machine the strategies run
// on. A machine lives for a single strategy invocation: it is seeded
// with an initial state, the scheduler dispatches one event into it,
// and handlers chain further dispatches synchronously until one returns
// without dispatching.
package fsm

import (
	"context"

	"go.uber.org/zap"
)

// State names a node of the machine.
type State string

// Event names an entry point within a state. A state may hold several
// independent entry points.
type Event string

// Handler processes one event. The payload is event-specific; handlers
// type-assert it and treat a mismatch as a logged no-op.
type Handler func(ctx context.Context, payload any) error

// Table maps state -> event -> handler. It is treated as immutable
// after construction.
type Table map[State]map[Event]Handler

// Machine holds the current state and the transition table.
type Machine struct {
	state  State
	table  Table
	logger *zap.SugaredLogger
}

// New creates a machine positioned at the initial state.
func New(table Table, initial State, logger *zap.SugaredLogger) *Machine {
	return &Machine{
		state:  initial,
		table:  table,
		logger: logger,
	}
}

// Dispatch invokes the handler registered for the current state and the
// given event. A missing handler is a recoverable no-op: it is logged
// and the chain simply ends. The handler's error is returned to the
// caller; the machine itself never acts on it.
func (m *Machine) Dispatch(ctx context.Context, event Event, payload any) error {
	handler, ok := m.table[m.state][event]
	if !ok {
		m.logger.Errorw("handler not found",
			"state", m.state,
			"event", event,
		)
		return nil
	}
	return handler(ctx, payload)
}

// ChangeState unconditionally replaces the current state. No validation
// is done: an unknown state yields "handler not found" on the next
// dispatch.
func (m *Machine) ChangeState(state State) {
	m.state = state
}

// State returns the current state name.
func (m *Machine) State() State {
	return m.state
}
