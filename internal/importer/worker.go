package importer

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/vrsandeep/catalog-importer/internal/store"
)

// Pool runs queued imports in the background. Each worker claims one due
// job at a time, so a job is only ever executed by a single worker.
type Pool struct {
	orch     *Orchestrator
	store    *store.Store
	workers  int
	interval time.Duration
	log      *logrus.Entry
	wg       sync.WaitGroup
}

func NewPool(orch *Orchestrator, st *store.Store, workers int, interval time.Duration, log *logrus.Entry) *Pool {
	if workers <= 0 {
		workers = 1
	}
	if interval <= 0 {
		interval = 5 * time.Second
	}
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Pool{orch: orch, store: st, workers: workers, interval: interval, log: log.WithField("component", "worker")}
}

// Start fails jobs that a previous process left InProgress, then starts
// the workers. They stop when ctx is cancelled.
func (p *Pool) Start(ctx context.Context) error {
	n, err := p.store.FailInterruptedImports(ctx, "Failed - "+MsgInterrupted)
	if err != nil {
		return err
	}
	if n > 0 {
		p.log.WithField("count", n).Warn("Marked interrupted imports as failed")
	}

	for i := 1; i <= p.workers; i++ {
		p.wg.Add(1)
		go p.worker(ctx, i)
	}
	return nil
}

// Wait blocks until every worker has returned.
func (p *Pool) Wait() {
	p.wg.Wait()
}

func (p *Pool) worker(ctx context.Context, id int) {
	defer p.wg.Done()
	log := p.log.WithField("worker", id)
	log.Info("Starting import worker")

	timer := time.NewTimer(0)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			log.Info("Import worker stopped")
			return
		case <-timer.C:
		}

		ran, err := p.RunOnce(ctx)
		if err != nil && ctx.Err() == nil {
			log.WithError(err).Error("Error claiming import")
		}
		if ran {
			// Look for the next job straight away.
			timer.Reset(0)
		} else {
			timer.Reset(p.interval)
		}
	}
}

// RunOnce claims and executes the next due job. It reports whether a job
// was found; the job's own failure is recorded on it, not returned.
func (p *Pool) RunOnce(ctx context.Context) (bool, error) {
	job, err := p.store.ClaimNextImport(ctx)
	if err != nil || job == nil {
		return false, err
	}
	p.orch.Execute(ctx, job)
	return true, nil
}
