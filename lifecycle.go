package agentcore

import (
	"context"
	"sync"
)

// SessionState is the lifecycle state of one execution.
type SessionState int

const (
	StateIdle SessionState = iota
	StateRunning
	StatePaused
	StateStopping
	StateStopped
	StateCompleted
	StateErrored
)

func (s SessionState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StatePaused:
		return "paused"
	case StateStopping:
		return "stopping"
	case StateStopped:
		return "stopped"
	case StateCompleted:
		return "completed"
	case StateErrored:
		return "errored"
	default:
		return "unknown"
	}
}

// Terminal reports whether the state admits no further transitions.
func (s SessionState) Terminal() bool {
	return s == StateStopped || s == StateCompleted || s == StateErrored
}

// stateMachine serializes lifecycle transitions for one execution. Pause and
// stop requests are latched flags applied at turn boundaries; stop
// additionally closes stopCh so in-flight work can abort early. Waiters are
// notified by closing and replacing the changed channel.
type stateMachine struct {
	mu             sync.Mutex
	state          SessionState
	pauseRequested bool
	stopRequested  bool
	changed        chan struct{}
	stopCh         chan struct{}
	done           chan struct{}
	turns          int
	err            error
}

func newStateMachine() *stateMachine {
	return &stateMachine{
		state:   StateIdle,
		changed: make(chan struct{}),
		stopCh:  make(chan struct{}),
		done:    make(chan struct{}),
	}
}

func (m *stateMachine) notifyLocked() {
	close(m.changed)
	m.changed = make(chan struct{})
}

// Begin moves Idle to Running. Fails once the machine has ever started.
func (m *stateMachine) Begin() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != StateIdle {
		return ErrAlreadyRunning
	}
	m.state = StateRunning
	m.notifyLocked()
	return nil
}

// RequestPause latches a pause that takes effect at the next turn boundary.
func (m *stateMachine) RequestPause() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != StateRunning && m.state != StatePaused {
		return ErrNotRunning
	}
	m.pauseRequested = true
	return nil
}

// RequestResume clears any latched pause and wakes a paused execution.
func (m *stateMachine) RequestResume() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != StateRunning && m.state != StatePaused {
		return ErrNotRunning
	}
	m.pauseRequested = false
	if m.state == StatePaused {
		m.state = StateRunning
		m.notifyLocked()
	}
	return nil
}

// RequestStop latches a stop and signals in-flight work through StopSignal.
// Stopping an Idle machine settles it directly in Stopped.
func (m *stateMachine) RequestStop() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state.Terminal() || m.state == StateStopping {
		return ErrNotRunning
	}
	m.stopRequested = true
	if m.state == StateIdle {
		m.state = StateStopped
		m.notifyLocked()
		close(m.stopCh)
		close(m.done)
		return nil
	}
	m.state = StateStopping
	m.notifyLocked()
	close(m.stopCh)
	return nil
}

// StopSignal is closed once a stop has been requested.
func (m *stateMachine) StopSignal() <-chan struct{} {
	return m.stopCh
}

// TurnBoundary applies latched pause and stop requests before the next turn
// starts. It blocks while paused and returns ErrStopped once a stop request
// is observed, or ctx.Err() if the context ends first.
func (m *stateMachine) TurnBoundary(ctx context.Context) error {
	for {
		m.mu.Lock()
		if m.stopRequested {
			m.mu.Unlock()
			return ErrStopped
		}
		if m.pauseRequested && m.state == StateRunning {
			m.state = StatePaused
			m.notifyLocked()
		}
		if m.state == StateRunning {
			m.mu.Unlock()
			return nil
		}
		wait := m.changed
		m.mu.Unlock()

		select {
		case <-wait:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// NextTurn increments and returns the turn counter.
func (m *stateMachine) NextTurn() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.turns++
	return m.turns
}

// Turns returns how many turns have started.
func (m *stateMachine) Turns() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.turns
}

// Complete settles the machine in Completed.
func (m *stateMachine) Complete() {
	m.settle(StateCompleted, nil)
}

// Fail settles the machine in Errored with the fatal error.
func (m *stateMachine) Fail(err error) {
	m.settle(StateErrored, err)
}

// ConfirmStopped settles a Stopping machine in Stopped.
func (m *stateMachine) ConfirmStopped() {
	m.settle(StateStopped, ErrStopped)
}

func (m *stateMachine) settle(state SessionState, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state.Terminal() {
		return
	}
	m.state = state
	m.err = err
	m.notifyLocked()
	close(m.done)
}

// State returns the current lifecycle state.
func (m *stateMachine) State() SessionState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Err returns the settling error, if any.
func (m *stateMachine) Err() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.err
}

// Done is closed once the machine reaches a terminal state.
func (m *stateMachine) Done() <-chan struct{} {
	return m.done
}

// Wait blocks until the machine settles or ctx ends, returning the settling
// error.
func (m *stateMachine) Wait(ctx context.Context) error {
	select {
	case <-m.done:
		return m.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}
