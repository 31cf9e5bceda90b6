package voice

import (
	"context"
	"slices"
	"sync"
)

// Listeners is an ordered set of callbacks that can be removed individually.
type Listeners[F any] struct {
	mu    sync.Mutex
	next  int
	ids   []int
	funcs map[int]F
}

// Add registers fn and returns a func that unregisters it.
func (l *Listeners[F]) Add(fn F) func() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.funcs == nil {
		l.funcs = make(map[int]F)
	}
	id := l.next
	l.next++
	l.ids = append(l.ids, id)
	l.funcs[id] = fn

	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			defer l.mu.Unlock()
			delete(l.funcs, id)
			l.ids = slices.DeleteFunc(l.ids, func(v int) bool { return v == id })
		})
	}
}

// Snapshot returns the registered callbacks in registration order.
func (l *Listeners[F]) Snapshot() []F {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]F, 0, len(l.ids))
	for _, id := range l.ids {
		out = append(out, l.funcs[id])
	}
	return out
}

type waiter struct {
	states []State
	done   chan error
}

// StateMachine tracks a connection's State. Destroyed is terminal.
type StateMachine struct {
	mu        sync.Mutex
	state     State
	waiters   []*waiter
	listeners Listeners[func(old, new State)]
}

// NewStateMachine returns a machine in the initial state.
func NewStateMachine(initial State) *StateMachine {
	return &StateMachine{state: initial}
}

// State returns the current state.
func (m *StateMachine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Set moves the machine to next. It returns false when next equals the
// current state or the machine is already destroyed. Listeners run on the
// calling goroutine after the transition is visible.
func (m *StateMachine) Set(next State) bool {
	m.mu.Lock()
	old := m.state
	if old == next || old == StateDestroyed {
		m.mu.Unlock()
		return false
	}
	m.state = next

	remaining := m.waiters[:0]
	for _, w := range m.waiters {
		switch {
		case slices.Contains(w.states, next):
			w.done <- nil
		case next == StateDestroyed:
			w.done <- ErrDestroyed
		default:
			remaining = append(remaining, w)
		}
	}
	m.waiters = remaining
	m.mu.Unlock()

	for _, fn := range m.listeners.Snapshot() {
		fn(old, next)
	}
	return true
}

// WaitFor blocks until the machine is in one of states, ctx ends, or the
// machine is destroyed. Every transition is observed, so a state that is
// entered and left again before the caller is scheduled still counts.
func (m *StateMachine) WaitFor(ctx context.Context, states ...State) error {
	m.mu.Lock()
	if slices.Contains(states, m.state) {
		m.mu.Unlock()
		return nil
	}
	if m.state == StateDestroyed {
		m.mu.Unlock()
		return ErrDestroyed
	}
	w := &waiter{states: states, done: make(chan error, 1)}
	m.waiters = append(m.waiters, w)
	m.mu.Unlock()

	select {
	case err := <-w.done:
		return err
	case <-ctx.Done():
		m.mu.Lock()
		m.waiters = slices.DeleteFunc(m.waiters, func(x *waiter) bool { return x == w })
		m.mu.Unlock()
		// A transition may have resolved the waiter while ctx was ending.
		select {
		case err := <-w.done:
			return err
		default:
		}
		return ctx.Err()
	}
}

// OnStateChange registers fn for every transition.
func (m *StateMachine) OnStateChange(fn func(old, new State)) (remove func()) {
	return m.listeners.Add(fn)
}
