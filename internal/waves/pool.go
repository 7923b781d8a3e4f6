package waves

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/asaficontact/reflective-resonance/internal/observe"
	"github.com/asaficontact/reflective-resonance/pkg/types"
)

// Kernel is the decomposition function a pool runs. Replaced in tests.
type Kernel func(job types.DecomposeJob) types.DecomposeResult

// Pool executes decomposition jobs on a fixed set of workers behind a bounded
// queue. Submission never blocks: a full queue drops the job. Every executed
// job produces exactly one record on Results, success or not.
type Pool struct {
	logger     *slog.Logger
	kernel     Kernel
	metrics    *observe.Metrics
	jobTimeout time.Duration

	jobs    chan types.DecomposeJob
	results chan types.DecomposeResult

	wg       sync.WaitGroup
	stopOnce sync.Once

	mu     sync.RWMutex
	closed bool
}

// PoolOption configures a Pool.
type PoolOption func(*Pool)

// WithKernel replaces the decomposition kernel.
func WithKernel(k Kernel) PoolOption {
	return func(p *Pool) {
		p.kernel = k
	}
}

// NewPool creates and starts a pool of maxWorkers workers with a queue of
// queueMaxSize jobs and a per-job timeout.
func NewPool(maxWorkers, queueMaxSize int, jobTimeout time.Duration, logger *slog.Logger, opts ...PoolOption) *Pool {
	p := &Pool{
		logger:     logger,
		kernel:     Decompose,
		metrics:    observe.DefaultMetrics(),
		jobTimeout: jobTimeout,
		jobs:       make(chan types.DecomposeJob, queueMaxSize),
		results:    make(chan types.DecomposeResult, queueMaxSize),
	}
	for _, o := range opts {
		o(p)
	}

	for i := 0; i < maxWorkers; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}
	logger.Info("waves worker pool started",
		"workers", maxWorkers, "queue_size", queueMaxSize, "job_timeout", jobTimeout)
	return p
}

// Submit queues a job without blocking. Returns false when the queue is full
// or the pool is shutting down; the job is dropped in both cases.
func (p *Pool) Submit(job types.DecomposeJob) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		p.logger.Warn("waves pool stopped, job dropped",
			"session_id", job.SessionID, "turn", job.TurnIndex, "input", job.InputPath)
		return false
	}
	select {
	case p.jobs <- job:
		p.logger.Info("decomposition job queued",
			"session_id", job.SessionID, "turn", job.TurnIndex, "input", job.InputPath)
		return true
	default:
		p.metrics.RecordDecomposeJob(context.Background(), "dropped")
		p.logger.Warn("waves queue full, job dropped",
			"session_id", job.SessionID, "turn", job.TurnIndex, "input", job.InputPath)
		return false
	}
}

// Results delivers one record per executed job. The channel is closed after
// Shutdown completes.
func (p *Pool) Results() <-chan types.DecomposeResult {
	return p.results
}

// Shutdown stops accepting jobs, waits for in-flight work to settle (bounded
// by ctx), then closes Results.
func (p *Pool) Shutdown(ctx context.Context) error {
	var err error
	p.stopOnce.Do(func() {
		p.mu.Lock()
		p.closed = true
		p.mu.Unlock()
		close(p.jobs)

		done := make(chan struct{})
		go func() {
			p.wg.Wait()
			close(done)
		}()
		select {
		case <-done:
		case <-ctx.Done():
			err = ctx.Err()
		}
		close(p.results)
		p.logger.Info("waves worker pool stopped")
	})
	return err
}

func (p *Pool) worker(id int) {
	defer p.wg.Done()
	for job := range p.jobs {
		p.deliver(p.run(id, job))
	}
}

// run executes one job under the per-job timeout. The kernel is CPU-bound and
// not cancellable mid-flight; on timeout its eventual result is discarded.
func (p *Pool) run(workerID int, job types.DecomposeJob) types.DecomposeResult {
	ctx, cancel := context.WithTimeout(context.Background(), p.jobTimeout)
	defer cancel()
	start := time.Now()

	done := make(chan types.DecomposeResult, 1)
	go func() {
		done <- p.kernel(job)
	}()

	select {
	case res := <-done:
		p.metrics.DecomposeDuration.Record(ctx, time.Since(start).Seconds())
		if res.Success {
			p.metrics.RecordDecomposeJob(ctx, "ok")
			p.logger.Info("decomposition complete",
				"worker", workerID, "session_id", job.SessionID, "turn", job.TurnIndex,
				"rmse", res.Metrics.RMSE, "duration_ms", res.Metrics.DurationMS)
		} else {
			p.metrics.RecordDecomposeJob(ctx, "failed")
			p.logger.Warn("decomposition failed",
				"worker", workerID, "session_id", job.SessionID, "turn", job.TurnIndex,
				"error", res.Err)
		}
		return res
	case <-ctx.Done():
		p.metrics.RecordDecomposeJob(context.Background(), "timeout")
		p.logger.Warn("decomposition timeout",
			"worker", workerID, "session_id", job.SessionID, "turn", job.TurnIndex,
			"timeout", p.jobTimeout)
		return types.DecomposeResult{Job: job, Err: "timeout"}
	}
}

// deliver hands the result to the consumer without ever blocking a worker.
func (p *Pool) deliver(res types.DecomposeResult) {
	select {
	case p.results <- res:
	default:
		p.logger.Warn("results channel full, decomposition result dropped",
			"session_id", res.Job.SessionID, "turn", res.Job.TurnIndex)
	}
}
