package services

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"alfredoptarigan/cv-matcher/internal/logger"
)

type Worker interface {
	Start(ctx context.Context)
	Stop()
	EnqueueJob(jobID uuid.UUID)
}

type WorkerConfig struct {
	Concurrency  int
	PollInterval time.Duration
	QueueSize    int
}

type worker struct {
	jobs     JobStore
	runner   JobRunner
	jobQueue chan uuid.UUID
	cfg      WorkerConfig
	log      *zap.Logger
	wg       sync.WaitGroup
	stopChan chan struct{}
	stopOnce sync.Once

	// inflight guards against the poller enqueueing a job that is already queued.
	mu       sync.Mutex
	inflight map[uuid.UUID]struct{}
}

func NewWorker(jobs JobStore, runner JobRunner, cfg WorkerConfig, log *zap.Logger) Worker {
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 10 * time.Second
	}
	if cfg.QueueSize < 1 {
		cfg.QueueSize = 100
	}
	return &worker{
		jobs:     jobs,
		runner:   runner,
		jobQueue: make(chan uuid.UUID, cfg.QueueSize),
		cfg:      cfg,
		log:      logger.OrNop(log),
		stopChan: make(chan struct{}),
		inflight: make(map[uuid.UUID]struct{}),
	}
}

// Start implements Worker.
func (w *worker) Start(ctx context.Context) {
	w.log.Info("starting worker", zap.Int("concurrency", w.cfg.Concurrency))

	for i := 0; i < w.cfg.Concurrency; i++ {
		w.wg.Add(1)
		go w.processJobs(ctx, i+1)
	}

	w.wg.Add(1)
	go w.pollPendingJobs(ctx)
}

// Stop implements Worker.
func (w *worker) Stop() {
	w.stopOnce.Do(func() {
		w.log.Info("stopping worker")
		close(w.stopChan)
	})
	w.wg.Wait()
	w.log.Info("worker stopped")
}

// EnqueueJob implements Worker.
func (w *worker) EnqueueJob(jobID uuid.UUID) {
	w.mu.Lock()
	if _, ok := w.inflight[jobID]; ok {
		w.mu.Unlock()
		return
	}
	w.inflight[jobID] = struct{}{}
	w.mu.Unlock()

	select {
	case w.jobQueue <- jobID:
		w.log.Debug("job enqueued", zap.String("job_id", jobID.String()))
	case <-w.stopChan:
		w.release(jobID)
		w.log.Warn("worker stopped, cannot enqueue job", zap.String("job_id", jobID.String()))
	}
}

func (w *worker) release(jobID uuid.UUID) {
	w.mu.Lock()
	delete(w.inflight, jobID)
	w.mu.Unlock()
}

func (w *worker) processJobs(ctx context.Context, workerID int) {
	defer w.wg.Done()
	log := w.log.With(zap.Int("worker", workerID))

	for {
		select {
		case <-w.stopChan:
			return
		case <-ctx.Done():
			return
		case jobID := <-w.jobQueue:
			log.Info("processing job", zap.String("job_id", jobID.String()))
			if err := w.runner.RunJob(ctx, jobID); err != nil {
				log.Error("job failed", zap.String("job_id", jobID.String()), zap.Error(err))
			}
			w.release(jobID)
		}
	}
}

func (w *worker) pollPendingJobs(ctx context.Context) {
	defer w.wg.Done()
	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-w.stopChan:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			pending, err := w.jobs.FindPendingJobs(10)
			if err != nil {
				w.log.Warn("failed to fetch pending jobs", zap.Error(err))
				continue
			}
			if len(pending) > 0 {
				w.log.Info("found pending jobs", zap.Int("count", len(pending)))
			}
			for _, job := range pending {
				w.EnqueueJob(job.ID)
			}
		}
	}
}
