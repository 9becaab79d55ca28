// Package jobs runs periodic background work next to the API server.
package jobs

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Processor runs one round of background work.
type Processor interface {
	Process(ctx context.Context) error
}

// Worker calls a Processor on a fixed interval.
type Worker struct {
	name      string
	processor Processor
	interval  time.Duration
	logger    *slog.Logger
	stopOnce  sync.Once
	stopChan  chan struct{}
	doneChan  chan struct{}
}

// NewWorker creates a Worker. name only labels log lines.
func NewWorker(name string, processor Processor, interval time.Duration, logger *slog.Logger) *Worker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Worker{
		name:      name,
		processor: processor,
		interval:  interval,
		logger:    logger.With("worker", name),
		stopChan:  make(chan struct{}),
		doneChan:  make(chan struct{}),
	}
}

// Start runs a round immediately and then once per interval, until ctx is
// cancelled or Stop is called. It blocks.
func (w *Worker) Start(ctx context.Context) {
	defer close(w.doneChan)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.logger.Info("worker started", "interval", w.interval)
	w.runRound(ctx)

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("worker stopped: context cancelled")
			return
		case <-w.stopChan:
			w.logger.Info("worker stopped: stop signal received")
			return
		case <-ticker.C:
			w.runRound(ctx)
		}
	}
}

func (w *Worker) runRound(ctx context.Context) {
	if err := w.processor.Process(ctx); err != nil && ctx.Err() == nil {
		w.logger.Error("round failed", "error", err)
	}
}

// Stop signals Start to return and waits for the current round to finish.
// Call it only after Start has been launched.
func (w *Worker) Stop() {
	w.stopOnce.Do(func() { close(w.stopChan) })
	<-w.doneChan
}
