// Package worker runs mutations one at a time on a single background
// goroutine.
package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"weighttracker/internal/observability"
)

var (
	// ErrStopped is returned by Do once Stop has been called.
	ErrStopped = errors.New("worker stopped")
	// ErrNotStarted is returned by Do before Start.
	ErrNotStarted = errors.New("worker not started")
)

// Task is a unit of work. Its context is never cancelled by the submitter.
type Task func(ctx context.Context) error

type job struct {
	ctx    context.Context
	run    Task
	result chan error
}

// Queue executes submitted tasks strictly in submission order.
type Queue struct {
	jobs    chan job
	done    chan struct{}
	metrics *observability.Metrics

	mu      sync.RWMutex
	started bool
	stopped bool
}

// New creates a Queue that buffers up to buffer pending tasks. Submitters
// block once the buffer is full.
func New(buffer int, m *observability.Metrics) *Queue {
	return &Queue{
		jobs:    make(chan job, buffer),
		done:    make(chan struct{}),
		metrics: m,
	}
}

// Start launches the worker goroutine. Calling it again is a no-op.
func (q *Queue) Start() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.started || q.stopped {
		return
	}
	q.started = true
	go q.loop()
}

// Do enqueues fn and waits for its result. If ctx ends first Do returns
// ctx.Err(), but fn still runs once it reaches the head of the queue.
func (q *Queue) Do(ctx context.Context, fn Task) error {
	q.mu.RLock()
	switch {
	case q.stopped:
		q.mu.RUnlock()
		return ErrStopped
	case !q.started:
		q.mu.RUnlock()
		return ErrNotStarted
	}

	j := job{ctx: context.WithoutCancel(ctx), run: fn, result: make(chan error, 1)}
	select {
	case q.jobs <- j:
		q.gauge(1)
	case <-ctx.Done():
		q.mu.RUnlock()
		return ctx.Err()
	}
	q.mu.RUnlock()

	select {
	case err := <-j.result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stop refuses new tasks, lets queued tasks finish, and waits for the worker
// to exit or ctx to end.
func (q *Queue) Stop(ctx context.Context) error {
	q.mu.Lock()
	if q.stopped {
		q.mu.Unlock()
		return q.wait(ctx)
	}
	q.stopped = true
	close(q.jobs)
	started := q.started
	q.mu.Unlock()

	if !started {
		close(q.done)
		return nil
	}
	return q.wait(ctx)
}

func (q *Queue) wait(ctx context.Context) error {
	select {
	case <-q.done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("worker drain: %w", ctx.Err())
	}
}

func (q *Queue) loop() {
	defer close(q.done)
	for j := range q.jobs {
		q.gauge(-1)
		j.result <- q.exec(j)
	}
}

func (q *Queue) exec(j job) (err error) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("worker task panic: %v", r)
		}
		q.observe(start, err)
	}()
	return j.run(j.ctx)
}

func (q *Queue) gauge(delta float64) {
	if q.metrics != nil {
		q.metrics.WorkerQueueDepth.Add(delta)
	}
}

func (q *Queue) observe(start time.Time, err error) {
	status := "ok"
	if err != nil {
		status = "error"
		log.Debug().Err(err).Msg("worker task failed")
	}
	if q.metrics != nil {
		q.metrics.WorkerTasksTotal.WithLabelValues(status).Inc()
		q.metrics.WorkerTaskDuration.Observe(time.Since(start).Seconds())
	}
}
