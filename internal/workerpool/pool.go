// Package workerpool dispatches CPU-heavy per-region jobs with bounded
// concurrency and per-job error isolation. Each job runs on a fresh
// goroutine acquired through a semaphore, so no worker is ever reused
// across jobs, and one job's failure never cancels or blocks its siblings.
// Outcomes are delivered as one Result per job on a channel drained by a
// dedicated aggregator rather than re-raised at Join.
package workerpool

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"sync"

	"landopt/internal/logging"
)

// Job is one unit of work: the region label and the function that runs the
// external optimization routine. Jobs share no mutable state; each writes
// to its own per-region directory tree.
type Job struct {
	Label string
	Run   func(context.Context) error
}

// Result reports one finished job.
type Result struct {
	Label string
	Err   error
}

// Pool runs submitted jobs with a fixed concurrency bound.
type Pool struct {
	logger  *slog.Logger
	sem     chan struct{}
	results chan Result
	wg      sync.WaitGroup

	mu     sync.Mutex
	joined bool
}

// New constructs a pool. size values below one default to the number of
// available processing units.
func New(logger *slog.Logger, size int) *Pool {
	if size < 1 {
		size = runtime.NumCPU()
	}
	return &Pool{
		logger:  logging.NewComponentLogger(logger, "workerpool"),
		sem:     make(chan struct{}, size),
		results: make(chan Result, size),
	}
}

// Submit enqueues a job for asynchronous execution. Panics inside the job
// are recovered into the job's Result. Submit must not be called after
// Join.
func (p *Pool) Submit(ctx context.Context, job Job) {
	p.mu.Lock()
	if p.joined {
		p.mu.Unlock()
		panic("workerpool: submit after join")
	}
	p.wg.Add(1)
	p.mu.Unlock()

	go func() {
		defer p.wg.Done()
		p.sem <- struct{}{}
		defer func() { <-p.sem }()

		p.logger.Debug("job started", logging.String(logging.FieldRegion, job.Label))
		err := p.run(ctx, job)
		if err != nil {
			p.logger.Error("job failed", logging.String(logging.FieldRegion, job.Label), logging.Error(err))
		} else {
			p.logger.Debug("job completed", logging.String(logging.FieldRegion, job.Label))
		}
		p.results <- Result{Label: job.Label, Err: err}
	}()
}

func (p *Pool) run(ctx context.Context, job Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job %q panicked: %v", job.Label, r)
		}
	}()
	return job.Run(ctx)
}

// Results returns the channel carrying one Result per submitted job. A
// consumer must drain it concurrently with submission; the channel closes
// when Join returns.
func (p *Pool) Results() <-chan Result {
	return p.results
}

// Join blocks until every submitted job has finished, successfully or not,
// then closes the results channel. It never returns job errors; those are
// reported exclusively through Results.
func (p *Pool) Join() {
	p.mu.Lock()
	if p.joined {
		p.mu.Unlock()
		return
	}
	p.joined = true
	p.mu.Unlock()

	p.wg.Wait()
	close(p.results)
}
