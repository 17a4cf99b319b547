package worker

import (
	"context"
	"errors"
	"sync"

	"github.com/shaneisley/snatch/pkg/logging"
	"github.com/shaneisley/snatch/pkg/scheduler"
)

// ErrPoolStopped is returned by Launch after Stop
var ErrPoolStopped = errors.New("worker pool stopped")

// ErrPoolBusy is returned by Launch when every worker is occupied
var ErrPoolBusy = errors.New("worker pool busy")

// RunFunc performs one job
type RunFunc func(ctx context.Context, job scheduler.Job)

// Pool runs jobs on a fixed set of background goroutines. The scheduler
// only ever admits one job at a time, so the default pool has one worker
// and a queue of one.
type Pool struct {
	workers  int
	run      RunFunc
	jobQueue chan scheduler.Job
	workerWg sync.WaitGroup
	ctx      context.Context
	cancel   context.CancelFunc
	logger   *logging.Logger

	mu       sync.RWMutex
	started  bool
	stopped  bool
	active   int
	launched int
}

// NewPool creates a pool with the given number of workers
func NewPool(workers int, run RunFunc, logger *logging.Logger) *Pool {
	if workers <= 0 {
		workers = 1
	}
	if logger == nil {
		logger = logging.Discard()
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Pool{
		workers:  workers,
		run:      run,
		jobQueue: make(chan scheduler.Job, workers),
		ctx:      ctx,
		cancel:   cancel,
		logger:   logger.WithComponent("pool"),
	}
}

// Start starts the worker goroutines
func (p *Pool) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.started || p.stopped {
		return
	}
	p.started = true

	for i := 0; i < p.workers; i++ {
		p.workerWg.Add(1)
		go p.worker(i)
	}

	p.logger.Info("worker pool started", "workers", p.workers)
}

// Stop cancels running jobs and waits for the workers to exit
func (p *Pool) Stop() {
	p.mu.Lock()
	if !p.started || p.stopped {
		p.stopped = true
		p.mu.Unlock()
		return
	}
	p.stopped = true
	p.cancel()
	close(p.jobQueue)
	p.mu.Unlock()

	p.logger.Info("stopping worker pool")
	p.workerWg.Wait()
	p.logger.Info("worker pool stopped", "launched", p.Stats()["launched"])
}

// Launch hands job to a free worker without blocking
func (p *Pool) Launch(job scheduler.Job) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.stopped || !p.started {
		return ErrPoolStopped
	}
	// a worker may still be returning from the previous job; the buffered
	// queue absorbs that overlap
	select {
	case p.jobQueue <- job:
		p.launched++
		return nil
	default:
		p.logger.Warn("worker pool queue full, rejecting job", "job_id", job.ID, "queue_size", cap(p.jobQueue))
		return ErrPoolBusy
	}
}

func (p *Pool) worker(id int) {
	defer p.workerWg.Done()

	p.logger.Debug("worker started", "worker_id", id)
	defer p.logger.Debug("worker stopped", "worker_id", id)

	for {
		select {
		case job, ok := <-p.jobQueue:
			if !ok {
				return
			}
			p.setActive(1)
			p.run(p.ctx, job)
			p.setActive(-1)

		case <-p.ctx.Done():
			return
		}
	}
}

func (p *Pool) setActive(delta int) {
	p.mu.Lock()
	p.active += delta
	p.mu.Unlock()
}

// Stats returns pool statistics
func (p *Pool) Stats() map[string]interface{} {
	p.mu.RLock()
	defer p.mu.RUnlock()

	return map[string]interface{}{
		"workers":  p.workers,
		"active":   p.active,
		"queued":   len(p.jobQueue),
		"launched": p.launched,
		"started":  p.started,
		"stopped":  p.stopped,
	}
}
