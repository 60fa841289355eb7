package queue

import (
	"context"
	"errors"
	"fmt"
	"runtime"

	"github.com/rs/zerolog"

	"github.com/99minutos/starter/internal/api/metrics"
)

// ErrPoolStopped is returned by Do once the pool's context has been cancelled.
var ErrPoolStopped = errors.New("worker pool stopped")

// Pool runs CPU-bound jobs (password hashing and verification) on a fixed
// number of goroutines so a burst of logins cannot occupy every CPU and starve
// unrelated requests.
type Pool struct {
	jobs    chan func()
	stopped chan struct{}
	size    int
	log     zerolog.Logger
}

// NewPool creates a Pool with size workers. If size <= 0, GOMAXPROCS is used.
func NewPool(size int, log zerolog.Logger) *Pool {
	if size <= 0 {
		size = runtime.GOMAXPROCS(0)
	}
	return &Pool{
		jobs:    make(chan func()),
		stopped: make(chan struct{}),
		size:    size,
		log:     log,
	}
}

// Size reports the number of workers.
func (p *Pool) Size() int { return p.size }

// Start launches all worker goroutines. Workers stop when ctx is cancelled.
func (p *Pool) Start(ctx context.Context) {
	for i := 0; i < p.size; i++ {
		go p.runWorker(ctx, i)
	}
	go func() {
		<-ctx.Done()
		close(p.stopped)
	}()
}

// Do blocks until a worker has run job. ctx only bounds the wait for a free
// worker; once accepted, job runs to completion and Do waits for it.
func (p *Pool) Do(ctx context.Context, job func()) error {
	done := make(chan error, 1)
	wrapped := func() {
		defer func() {
			if r := recover(); r != nil {
				done <- fmt.Errorf("worker pool: job panicked: %v", r)
			}
		}()
		job()
		done <- nil
	}

	metrics.HashPoolWaiting.Inc()
	select {
	case p.jobs <- wrapped:
		metrics.HashPoolWaiting.Dec()
	case <-ctx.Done():
		metrics.HashPoolWaiting.Dec()
		return ctx.Err()
	case <-p.stopped:
		metrics.HashPoolWaiting.Dec()
		return ErrPoolStopped
	}
	return <-done
}

func (p *Pool) runWorker(ctx context.Context, id int) {
	for {
		select {
		case <-ctx.Done():
			return
		case job := <-p.jobs:
			job()
			p.log.Trace().Int("worker_id", id).Msg("hash job done")
		}
	}
}
