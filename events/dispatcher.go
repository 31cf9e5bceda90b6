package events

import (
	"context"
	"errors"
	"fmt"
	"sync"

	logger "github.com/EasterCompany/dex-scribe-service/log"
)

// ErrDispatcherClosed is returned by SubmitWait after Close.
var ErrDispatcherClosed = errors.New("dispatcher closed")

// Dispatcher runs tasks one at a time per group, in submission order.
// Different groups run in parallel.
type Dispatcher struct {
	logger logger.Logger

	mu     sync.Mutex
	idle   *sync.Cond
	queues map[string][]func()
	active int
	closed bool
}

// NewDispatcher creates an empty Dispatcher.
func NewDispatcher(logger logger.Logger) *Dispatcher {
	d := &Dispatcher{logger: logger, queues: make(map[string][]func())}
	d.idle = sync.NewCond(&d.mu)
	return d
}

// Submit enqueues task on group's queue. It returns false after Close.
func (d *Dispatcher) Submit(group string, task func()) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return false
	}
	q, running := d.queues[group]
	d.queues[group] = append(q, task)
	if !running {
		d.active++
		go d.drain(group)
	}
	return true
}

// SubmitWait enqueues task and blocks until it has run or ctx ends.
func (d *Dispatcher) SubmitWait(ctx context.Context, group string, task func()) error {
	done := make(chan struct{})
	if !d.Submit(group, func() {
		defer close(done)
		task()
	}) {
		return ErrDispatcherClosed
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Wait blocks until every queue is empty.
func (d *Dispatcher) Wait() {
	d.mu.Lock()
	defer d.mu.Unlock()
	for d.active > 0 {
		d.idle.Wait()
	}
}

// Close rejects further tasks. Queued tasks still run.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()
}

func (d *Dispatcher) drain(group string) {
	for {
		d.mu.Lock()
		q := d.queues[group]
		if len(q) == 0 {
			delete(d.queues, group)
			d.active--
			d.idle.Broadcast()
			d.mu.Unlock()
			return
		}
		task := q[0]
		q[0] = nil
		d.queues[group] = q[1:]
		d.mu.Unlock()

		d.run(group, task)
	}
}

func (d *Dispatcher) run(group string, task func()) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("TaskPanic", fmt.Errorf("%v", r), "group", group)
		}
	}()
	task()
}
