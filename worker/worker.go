// Package worker post-processes stopped recordings off the connection path.
package worker

import (
	"context"
	"sync"

	"github.com/EasterCompany/dex-scribe-service/audio"
	logger "github.com/EasterCompany/dex-scribe-service/log"
)

// Job holds all the necessary data for processing one stopped recording.
type Job struct {
	Result      *audio.Result
	ChannelName string
}

// JobHandler processes a single job.
type JobHandler interface {
	Process(ctx context.Context, job Job)
}

// WorkerPool manages a pool of workers and a queue of jobs.
type WorkerPool struct {
	JobQueue   chan Job
	MaxWorkers int

	handler JobHandler
	logger  logger.Logger
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	mu      sync.RWMutex
	closed  bool
}

// New creates a new WorkerPool.
func New(maxWorkers, queueSize int, handler JobHandler, logger logger.Logger) *WorkerPool {
	if maxWorkers < 1 {
		maxWorkers = 1
	}
	return &WorkerPool{
		JobQueue:   make(chan Job, queueSize),
		MaxWorkers: maxWorkers,
		handler:    handler,
		logger:     logger,
	}
}

// Start creates and starts the worker goroutines. Jobs run under a
// context derived from ctx.
func (wp *WorkerPool) Start(ctx context.Context) {
	wp.ctx, wp.cancel = context.WithCancel(ctx)
	for i := 1; i <= wp.MaxWorkers; i++ {
		wp.wg.Add(1)
		go wp.worker(i)
	}
}

// Submit adds a new job to the job queue. It returns false once the pool is
// stopping.
func (wp *WorkerPool) Submit(job Job) bool {
	wp.mu.RLock()
	defer wp.mu.RUnlock()
	if wp.closed {
		wp.logger.Warn("worker pool stopped, dropping job", "session_id", job.Result.SessionID)
		return false
	}
	wp.JobQueue <- job
	return true
}

// Stop closes the queue and waits for queued jobs to finish. If ctx ends
// first the running jobs are cancelled.
func (wp *WorkerPool) Stop(ctx context.Context) error {
	wp.mu.Lock()
	if !wp.closed {
		wp.closed = true
		close(wp.JobQueue)
	}
	wp.mu.Unlock()

	done := make(chan struct{})
	go func() {
		wp.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		wp.cancel()
		return nil
	case <-ctx.Done():
		wp.cancel()
		<-done
		return ctx.Err()
	}
}

// worker is a goroutine that continuously processes jobs from the JobQueue.
func (wp *WorkerPool) worker(id int) {
	defer wp.wg.Done()
	for job := range wp.JobQueue {
		wp.logger.Info("processing session", "worker", id, "session_id", job.Result.SessionID, "guild_id", job.Result.GuildID)
		wp.handler.Process(wp.ctx, job)
	}
}
