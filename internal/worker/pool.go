package worker

import (
	"context"
	"errors"
	"sync"

	"github.com/sirupsen/logrus"
)

var (
	// ErrQueueFull is returned by Submit when the job queue has no room.
	ErrQueueFull = errors.New("job queue is full")
	// ErrPoolStopped is returned by Submit after Stop was called.
	ErrPoolStopped = errors.New("worker pool is stopped")
)

// Job represents a unit of work to be executed.
type Job interface {
	Execute(ctx context.Context) error // The method that performs the actual work
	ID() string                        // A unique identifier for the job
}

// Worker is responsible for processing jobs.
// It runs in its own goroutine and receives jobs on its own channel after
// registering that channel with the pool.
type Worker struct {
	ID         int
	WorkerPool chan chan Job // A pool of channels, used to register this worker's job channel
	JobChannel chan Job      // A channel specific to this worker, to receive jobs
	Quit       <-chan struct{}
	Wg         *sync.WaitGroup
	logger     *logrus.Logger
}

// NewWorker creates a new Worker.
func NewWorker(id int, workerPool chan chan Job, quit <-chan struct{}, wg *sync.WaitGroup, logger *logrus.Logger) Worker {
	return Worker{
		ID:         id,
		WorkerPool: workerPool,
		JobChannel: make(chan Job),
		Quit:       quit,
		Wg:         wg,
		logger:     logger,
	}
}

// Start makes the Worker listen for jobs on its JobChannel.
func (w Worker) Start(ctx context.Context) {
	w.Wg.Add(1)
	go func() {
		defer w.Wg.Done()
		for {
			// Register the current worker's JobChannel to the worker pool.
			select {
			case w.WorkerPool <- w.JobChannel:
			case <-w.Quit:
				return
			}

			select {
			case job := <-w.JobChannel:
				w.run(ctx, job)
			case <-w.Quit:
				w.logger.WithField("worker_id", w.ID).Debug("Worker stopping")
				return
			}
		}
	}()
}

func (w Worker) run(ctx context.Context, job Job) {
	entry := w.logger.WithFields(logrus.Fields{"worker_id": w.ID, "job_id": job.ID()})
	entry.Debug("Started job")
	defer func() {
		if r := recover(); r != nil {
			entry.WithField("panic", r).Error("Job panicked")
		}
	}()
	if err := job.Execute(ctx); err != nil {
		entry.WithError(err).Error("Error processing job")
		return
	}
	entry.Debug("Finished job")
}

// Pool manages a set of workers and hands queued jobs to them.
type Pool struct {
	MaxWorkers int
	WorkerPool chan chan Job // A pool of worker job channels
	JobQueue   chan Job      // A buffered channel for incoming jobs
	Workers    []Worker

	wg     sync.WaitGroup
	quit   chan struct{}
	done   chan struct{}
	ctx    context.Context
	cancel context.CancelFunc
	logger *logrus.Logger

	mu      sync.RWMutex
	stopped bool
}

// NewPool creates a new Pool. Jobs run with a context derived from ctx that
// is cancelled if Stop gives up waiting for them.
func NewPool(ctx context.Context, maxWorkers int, jobQueueSize int, logger *logrus.Logger) *Pool {
	if maxWorkers < 1 {
		maxWorkers = 1
	}
	ctx, cancel := context.WithCancel(ctx)
	return &Pool{
		MaxWorkers: maxWorkers,
		WorkerPool: make(chan chan Job, maxWorkers),
		JobQueue:   make(chan Job, jobQueueSize),
		Workers:    make([]Worker, 0, maxWorkers),
		quit:       make(chan struct{}),
		done:       make(chan struct{}),
		ctx:        ctx,
		cancel:     cancel,
		logger:     logger,
	}
}

// Run starts the workers and the dispatch loop.
func (p *Pool) Run() {
	p.logger.WithField("workers", p.MaxWorkers).Info("Worker pool starting")
	for i := 1; i <= p.MaxWorkers; i++ {
		worker := NewWorker(i, p.WorkerPool, p.quit, &p.wg, p.logger)
		p.Workers = append(p.Workers, worker)
		worker.Start(p.ctx)
	}
	go p.dispatch()
}

// dispatch hands each queued job to the next free worker. It returns once
// the queue is closed and drained, then tells the workers to quit.
func (p *Pool) dispatch() {
	defer close(p.done)
	defer close(p.quit)
	for job := range p.JobQueue {
		jobChannel := <-p.WorkerPool
		jobChannel <- job
	}
}

// Submit queues a job without blocking.
func (p *Pool) Submit(job Job) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.stopped {
		return ErrPoolStopped
	}
	select {
	case p.JobQueue <- job:
		p.logger.WithField("job_id", job.ID()).Debug("Job submitted to queue")
		return nil
	default:
		p.logger.WithField("job_id", job.ID()).Warn("Job queue full")
		return ErrQueueFull
	}
}

// QueueLen reports how many jobs are waiting for a worker.
func (p *Pool) QueueLen() int {
	return len(p.JobQueue)
}

// Stop stops accepting jobs and waits for queued and running jobs to finish.
// If ctx ends first the jobs' context is cancelled and ctx.Err is returned.
func (p *Pool) Stop(ctx context.Context) error {
	p.mu.Lock()
	if !p.stopped {
		p.stopped = true
		close(p.JobQueue)
	}
	p.mu.Unlock()

	finished := make(chan struct{})
	go func() {
		<-p.done
		p.wg.Wait()
		close(finished)
	}()

	select {
	case <-finished:
		p.cancel()
		p.logger.Info("Worker pool stopped")
		return nil
	case <-ctx.Done():
		p.cancel()
		p.logger.Warn("Worker pool stop timed out, cancelling running jobs")
		return ctx.Err()
	}
}
