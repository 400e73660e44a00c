package dispatch

import (
	"context"
	"sync"
	"time"

	"github.com/lamallamadel/outbound-gateway/internal/model"
	"github.com/lamallamadel/outbound-gateway/pkg/logger"
	"github.com/lamallamadel/outbound-gateway/pkg/prom"
	"github.com/lamallamadel/outbound-gateway/pkg/worker"
)

const DispatchTimeout = 30 * time.Second

type PendingSource interface {
	FindPending(ctx context.Context, now time.Time, limit int) ([]*model.Message, error)
	RecoverStale(ctx context.Context, before time.Time) (int64, error)
}

type WorkerConfig struct {
	PollInterval   time.Duration
	BatchSize      int
	Workers        int
	StaleThreshold time.Duration
}

// Worker is the dispatch process: a poll loop pulling eligible QUEUED
// messages from the store and fanning them out over a bounded pool. The
// claim CAS inside the dispatcher keeps concurrent instances safe.
type Worker struct {
	config     WorkerConfig
	pending    PendingSource
	dispatcher *Dispatcher
	pool       *worker.WorkerManager
	ctx        context.Context
	cancel     context.CancelFunc
	wg         sync.WaitGroup
}

func NewWorker(config WorkerConfig, pending PendingSource, dispatcher *Dispatcher) *Worker {
	if config.PollInterval <= 0 {
		config.PollInterval = time.Second
	}
	if config.BatchSize <= 0 {
		config.BatchSize = 50
	}
	if config.Workers <= 0 {
		config.Workers = 10
	}
	if config.StaleThreshold <= 0 {
		config.StaleThreshold = 5 * time.Minute
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		config:     config,
		pending:    pending,
		dispatcher: dispatcher,
		pool:       worker.NewWorkerManager(config.BatchSize*2, config.Workers, nil),
		ctx:        ctx,
		cancel:     cancel,
	}
}

func (w *Worker) Start() error {
	logger.Info("Starting dispatch worker...",
		"poll_interval", w.config.PollInterval,
		"batch_size", w.config.BatchSize,
		"workers", w.config.Workers)

	w.pool.SetWorker(w.handleJob)

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		if err := w.pool.Start(); err != nil {
			logger.Error("Worker pool stopped", "error", err)
		}
	}()

	w.wg.Add(1)
	go w.pollLoop()

	logger.Info("Dispatch worker started")
	return nil
}

func (w *Worker) pollLoop() {
	defer w.wg.Done()

	ticker := time.NewTicker(w.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			w.tick()
		case <-w.ctx.Done():
			return
		}
	}
}

// tick recovers stale claims and pulls the next batch. Messages whose
// backoff deadline is still in the future stay untouched in the store.
func (w *Worker) tick() {
	ctx, cancel := context.WithTimeout(w.ctx, w.config.PollInterval*2)
	defer cancel()

	now := time.Now()

	recovered, err := w.pending.RecoverStale(ctx, now.Add(-w.config.StaleThreshold))
	if err != nil {
		logger.Warn("Stale recovery failed", "error", err)
	} else if recovered > 0 {
		prom.AddStaleRecovered(float64(recovered))
		logger.Warn("Recovered stale SENDING messages", "count", recovered)
	}

	msgs, err := w.pending.FindPending(ctx, now, w.config.BatchSize)
	if err != nil {
		logger.Error("Pending pull failed", "error", err)
		return
	}
	for _, msg := range msgs {
		w.pool.Enqueue(msg)
	}
}

func (w *Worker) handleJob(workerIndex int, job interface{}) {
	msg, ok := job.(*model.Message)
	if !ok {
		logger.Error("Invalid job type in worker", "worker", workerIndex)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), DispatchTimeout)
	defer cancel()

	if err := w.dispatcher.Dispatch(ctx, msg); err != nil {
		logger.Error("Dispatch failed", "worker", workerIndex, "message_id", msg.ID, "error", err)
	}
}

// Stop drains the poll loop and the pool.
func (w *Worker) Stop() {
	logger.Info("Shutting down dispatch worker...")
	w.cancel()
	w.pool.Exit()
	w.wg.Wait()
	logger.Info("Dispatch worker stopped")
}
