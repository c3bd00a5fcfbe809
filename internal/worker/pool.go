// Package worker runs the pool of goroutines that pull job IDs off the queue
// and drive them through the pipeline sequencer, plus the sweeper that
// recovers jobs orphaned by a dead worker.
package worker

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/clipflow/pipeline/internal/job"
	"github.com/clipflow/pipeline/internal/metrics"
	"github.com/clipflow/pipeline/internal/pipeline"
	"github.com/clipflow/pipeline/internal/queue"
)

// DefaultWorkers is the pool size when none is configured.
const DefaultWorkers = 4

// Pool runs a fixed number of workers over the queue.
type Pool struct {
	queue     queue.Queue
	sequencer *pipeline.Sequencer
	collector *metrics.Collector
	workers   int
	logger    *slog.Logger

	wg sync.WaitGroup
}

// NewPool creates a worker pool. workers <= 0 falls back to DefaultWorkers.
func NewPool(q queue.Queue, seq *pipeline.Sequencer, collector *metrics.Collector, workers int, logger *slog.Logger) *Pool {
	if workers <= 0 {
		workers = DefaultWorkers
	}
	return &Pool{
		queue:     q,
		sequencer: seq,
		collector: collector,
		workers:   workers,
		logger:    logger,
	}
}

// Start launches the workers. They run until the context is cancelled or the
// queue is closed; Wait blocks until all of them have drained.
func (p *Pool) Start(ctx context.Context) {
	p.logger.Info("starting worker pool", "workers", p.workers)
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.run(ctx, i)
	}
}

// Wait blocks until every worker has exited.
func (p *Pool) Wait() {
	p.wg.Wait()
}

func (p *Pool) run(ctx context.Context, id int) {
	defer p.wg.Done()
	log := p.logger.With("worker", id)
	log.Debug("worker started")

	for {
		jobID, err := p.queue.Dequeue(ctx)
		if err != nil {
			if errors.Is(err, queue.ErrClosed) || ctx.Err() != nil {
				log.Debug("worker stopping", "reason", err)
				return
			}
			p.collector.RecordDequeueError()
			log.Error("dequeue failed", "error", err)
			continue
		}
		p.process(ctx, jobID, log)
	}
}

func (p *Pool) process(ctx context.Context, jobID string, log *slog.Logger) {
	p.collector.WorkerStarted()
	defer p.collector.WorkerStopped()

	started := time.Now()
	res, err := p.sequencer.Run(ctx, jobID)
	if err != nil {
		// Infrastructure error: the job record was left for the sweeper or a
		// later retry, nothing more to do here.
		log.Error("job run aborted", "job_id", jobID, "error", err)
		return
	}
	if res.Status == "" {
		// Lost the claim race; not this worker's job.
		return
	}
	p.collector.RecordJob(string(res.Type), string(res.Status), time.Since(started).Seconds())
}

// Sweeper periodically fails PROCESSING jobs whose lease has expired, so jobs
// orphaned by a crashed worker reach a terminal state instead of hanging.
type Sweeper struct {
	store     job.Store
	collector *metrics.Collector
	lease     time.Duration
	interval  time.Duration
	logger    *slog.Logger
}

// DefaultLease is how long a PROCESSING job may go without a progress write
// before the sweeper declares it orphaned. It must comfortably exceed the
// longest expected stage.
const DefaultLease = 30 * time.Minute

// NewSweeper creates a sweeper checking every interval for jobs whose last
// update is older than lease.
func NewSweeper(store job.Store, collector *metrics.Collector, lease, interval time.Duration, logger *slog.Logger) *Sweeper {
	if lease <= 0 {
		lease = DefaultLease
	}
	if interval <= 0 {
		interval = lease / 4
	}
	return &Sweeper{
		store:     store,
		collector: collector,
		lease:     lease,
		interval:  interval,
		logger:    logger,
	}
}

// Run sweeps until the context is cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	s.logger.Info("starting stuck-job sweeper", "lease", s.lease.String(), "interval", s.interval.String())
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *Sweeper) sweep(ctx context.Context) {
	failed, err := s.store.FailStuck(ctx, s.lease)
	if err != nil {
		s.logger.Error("stuck-job sweep failed", "error", err)
		return
	}
	if len(failed) > 0 {
		s.collector.RecordStuckRecovered(len(failed))
		s.logger.Warn("recovered stuck jobs", "count", len(failed), "job_ids", failed)
	}
}
