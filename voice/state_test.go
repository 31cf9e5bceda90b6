package voice

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStateMachine_WaitForCurrentState(t *testing.T) {
	m := NewStateMachine(StateReady)
	require.NoError(t, m.WaitFor(context.Background(), StateReady))
}

func TestStateMachine_WaitForTransition(t *testing.T) {
	m := NewStateMachine(StateConnecting)
	done := make(chan error, 1)
	go func() { done <- m.WaitFor(context.Background(), StateReady) }()

	// Give the waiter time to register.
	time.Sleep(20 * time.Millisecond)
	m.Set(StateReady)

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("WaitFor did not return after transition")
	}
}

func TestStateMachine_WaitForObservesBriefTransition(t *testing.T) {
	m := NewStateMachine(StateDisconnected)
	done := make(chan error, 1)
	go func() { done <- m.WaitFor(context.Background(), StateSignalling, StateConnecting) }()
	time.Sleep(20 * time.Millisecond)

	m.Set(StateSignalling)
	m.Set(StateDisconnected)

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("brief transition was missed")
	}
}

func TestStateMachine_WaitForTimeout(t *testing.T) {
	m := NewStateMachine(StateConnecting)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := m.WaitFor(ctx, StateReady)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestStateMachine_WaitForDestroyed(t *testing.T) {
	m := NewStateMachine(StateConnecting)
	done := make(chan error, 1)
	go func() { done <- m.WaitFor(context.Background(), StateReady) }()
	time.Sleep(20 * time.Millisecond)
	m.Set(StateDestroyed)

	assert.ErrorIs(t, <-done, ErrDestroyed)
	assert.ErrorIs(t, m.WaitFor(context.Background(), StateReady), ErrDestroyed)
}

func TestStateMachine_DestroyedIsTerminal(t *testing.T) {
	m := NewStateMachine(StateReady)
	assert.True(t, m.Set(StateDestroyed))
	assert.False(t, m.Set(StateReady))
	assert.False(t, m.Set(StateDestroyed))
	assert.Equal(t, StateDestroyed, m.State())
}

func TestStateMachine_ListenersInOrder(t *testing.T) {
	m := NewStateMachine(StateConnecting)
	var mu sync.Mutex
	var seen []string

	m.OnStateChange(func(old, new State) {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, "a:"+old.String()+">"+new.String())
	})
	remove := m.OnStateChange(func(old, new State) {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, "b:"+new.String())
	})

	m.Set(StateReady)
	remove()
	m.Set(StateDisconnected)
	assert.False(t, m.Set(StateDisconnected))

	assert.Equal(t, []string{"a:connecting>ready", "b:ready", "a:ready>disconnected"}, seen)
}
