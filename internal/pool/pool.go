package pool

import (
	"context"
	"errors"
	"sync"
	"time"

	"tickerwatch/pkg/harvest"
	"tickerwatch/pkg/logger"
	"tickerwatch/pkg/ticker"
)

// ErrShuttingDown is returned by Submit once the pool has been cancelled
var ErrShuttingDown = errors.New("worker pool is shutting down")

// Job is one source to harvest. Index is the source's position in the
// configured order.
type Job struct {
	Index  int
	Source harvest.Source
}

// Result is the outcome of a Job
type Result struct {
	Job      Job
	Counts   ticker.Counts
	Err      error
	Duration time.Duration
}

// HarvestFunc harvests a single source
type HarvestFunc func(ctx context.Context, source harvest.Source) (ticker.Counts, error)

// WorkerPool harvests sources concurrently, never running more than
// numWorkers harvests (and so renderer sessions) at once
type WorkerPool struct {
	numWorkers  int
	jobQueue    chan Job
	resultQueue chan Result
	wg          sync.WaitGroup
	ctx         context.Context
	cancel      context.CancelFunc
	harvest     HarvestFunc
	logger      logger.Logger
}

// NewWorkerPool creates a pool whose workers stop when parent is cancelled
func NewWorkerPool(parent context.Context, numWorkers int, fn HarvestFunc, log logger.Logger) *WorkerPool {
	if numWorkers < 1 {
		numWorkers = 1
	}
	if log == nil {
		log = logger.GetLogger()
	}
	ctx, cancel := context.WithCancel(parent)

	return &WorkerPool{
		numWorkers:  numWorkers,
		jobQueue:    make(chan Job, numWorkers),
		resultQueue: make(chan Result, numWorkers),
		ctx:         ctx,
		cancel:      cancel,
		harvest:     fn,
		logger:      log,
	}
}

// Start launches the workers
func (wp *WorkerPool) Start() {
	wp.logger.DebugWithFields("Starting worker pool", map[string]interface{}{
		"num_workers": wp.numWorkers,
	})
	for i := 0; i < wp.numWorkers; i++ {
		wp.wg.Add(1)
		go wp.worker(i)
	}
}

// Stop closes the job queue, waits for in-flight harvests and closes the
// result channel. Call it once, after the last Submit.
func (wp *WorkerPool) Stop() {
	close(wp.jobQueue)
	wp.wg.Wait()
	close(wp.resultQueue)
	wp.cancel()
	wp.logger.Debug("Worker pool stopped")
}

// Cancel stops workers from picking up further jobs
func (wp *WorkerPool) Cancel() {
	wp.cancel()
}

// Submit queues a job, blocking while all workers are busy
func (wp *WorkerPool) Submit(job Job) error {
	if wp.ctx.Err() != nil {
		return ErrShuttingDown
	}
	select {
	case wp.jobQueue <- job:
		return nil
	case <-wp.ctx.Done():
		return ErrShuttingDown
	}
}

// Results returns the result channel; it is closed by Stop
func (wp *WorkerPool) Results() <-chan Result {
	return wp.resultQueue
}

// Run submits every source in order from a separate goroutine and stops the
// pool afterwards. The caller consumes Results until it is closed.
func (wp *WorkerPool) Run(sources []harvest.Source) {
	wp.Start()
	go func() {
		defer wp.Stop()
		for i, source := range sources {
			if err := wp.Submit(Job{Index: i, Source: source}); err != nil {
				wp.logger.DebugWithFields("Stopped submitting jobs", map[string]interface{}{
					"remaining": len(sources) - i,
				})
				return
			}
		}
	}()
}

func (wp *WorkerPool) worker(id int) {
	defer wp.wg.Done()

	for job := range wp.jobQueue {
		if wp.ctx.Err() != nil {
			// drain without working so Stop can return
			continue
		}

		start := time.Now()
		counts, err := wp.harvest(wp.ctx, job.Source)
		result := Result{Job: job, Counts: counts, Err: err, Duration: time.Since(start)}

		wp.logger.DebugWithFields("Worker finished job", map[string]interface{}{
			"worker_id": id,
			"source":    string(job.Source),
			"duration":  result.Duration,
			"failed":    err != nil,
		})

		select {
		case wp.resultQueue <- result:
		case <-wp.ctx.Done():
		}
	}
}
