package alerting

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/eventwish/fraudguard/pkg/domain/activity"
	"github.com/eventwish/fraudguard/pkg/infra/prometheus"
	"github.com/sirupsen/logrus"
)

const (
	DefaultQueueSize      = 1000
	DefaultPublishTimeout = 5 * time.Second
)

type Worker interface {
	// Enqueue never blocks; it reports false when the alert was dropped.
	Enqueue(rec activity.Record) bool
	StartWorkers(n int)
	Shutdown()
}

type worker struct {
	logger     *logrus.Logger
	publishers []Publisher
	taskChan   chan activity.Record
	ctx        context.Context
	cancel     context.CancelFunc
	closed     atomic.Bool
	wg         sync.WaitGroup
	mu         sync.RWMutex
	timeout    time.Duration
}

func NewWorker(logger *logrus.Logger, queueSize int, publishers ...Publisher) Worker {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &worker{
		logger:     logger,
		publishers: publishers,
		taskChan:   make(chan activity.Record, queueSize),
		ctx:        ctx,
		cancel:     cancel,
		timeout:    DefaultPublishTimeout,
	}
}

func (w *worker) Enqueue(rec activity.Record) bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.closed.Load() {
		return false
	}
	select {
	case w.taskChan <- rec:
		return true
	default:
		prometheus.AlertsDroppedTotal.Inc()
		w.logger.WithField("eventID", rec.EventID).Warn("alert queue is full, dropping alert")
		return false
	}
}

func (w *worker) StartWorkers(n int) {
	w.logger.WithField("workers", n).Info("starting alert workers")
	for i := 0; i < n; i++ {
		w.wg.Add(1)
		go func() {
			defer w.wg.Done()
			for rec := range w.taskChan {
				w.publish(rec)
			}
		}()
	}
}

// Shutdown drains queued alerts, then closes the publishers.
func (w *worker) Shutdown() {
	w.mu.Lock()
	if w.closed.Swap(true) {
		w.mu.Unlock()
		return
	}
	close(w.taskChan)
	w.mu.Unlock()

	w.logger.Info("shutting down alert workers")
	w.wg.Wait()
	w.cancel()
	for _, p := range w.publishers {
		p.Close()
	}
	w.logger.Info("alert workers stopped")
}

func (w *worker) publish(rec activity.Record) {
	for _, p := range w.publishers {
		ctx, cancel := context.WithTimeout(w.ctx, w.timeout)
		err := p.Publish(ctx, rec)
		cancel()
		if err != nil {
			w.logger.WithFields(logrus.Fields{
				"publisher": p.Name(),
				"eventID":   rec.EventID,
			}).WithError(err).Error("failed to publish alert")
		}
	}
}
