package analytics

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/flowvana/backend/internal/metrics"
	"github.com/flowvana/backend/internal/storage/models"
	"github.com/flowvana/backend/pkg/logger"
)

// LogStore is the sink request logs land in.
type LogStore interface {
	InsertRequestLog(entry *models.RequestLog) error
}

// Recorder writes request logs off the request path through a bounded worker
// pool. Submit never blocks: when the queue is full the entry is dropped and
// counted, because response latency must not depend on storage latency.
// Entries already queued are written even after the caller's request ends;
// Close drains the queue.
type Recorder struct {
	store LogStore
	tasks chan *models.RequestLog
	wg    sync.WaitGroup

	mu     sync.RWMutex
	closed bool

	closeOnce sync.Once
}

func NewRecorder(store LogStore, workers, queueSize int) *Recorder {
	if workers <= 0 {
		workers = 4
	}
	if queueSize <= 0 {
		queueSize = 256
	}

	r := &Recorder{
		store: store,
		tasks: make(chan *models.RequestLog, queueSize),
	}

	for i := 0; i < workers; i++ {
		r.wg.Add(1)
		go r.worker()
	}

	logger.Info("analytics recorder started",
		zap.Int("workers", workers),
		zap.Int("queue_size", queueSize),
	)
	return r
}

// Record enqueues an entry, fire-and-forget.
func (r *Recorder) Record(entry *models.RequestLog) {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}

	// Entries arriving after Close, such as a late websocket dispatch racing
	// shutdown, are dropped instead of sent on the closed channel.
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		metrics.AnalyticsDropped.Inc()
		logger.Warn("analytics recorder closed, dropping log entry",
			zap.String("request_id", entry.RequestID))
		return
	}

	select {
	case r.tasks <- entry:
	default:
		metrics.AnalyticsDropped.Inc()
		logger.Warn("analytics queue full, dropping log entry",
			zap.String("request_id", entry.RequestID))
	}
}

// Close stops accepting entries and waits for the queue to drain.
func (r *Recorder) Close() {
	r.closeOnce.Do(func() {
		r.mu.Lock()
		r.closed = true
		r.mu.Unlock()
		close(r.tasks)
	})
	r.wg.Wait()
}

func (r *Recorder) worker() {
	defer r.wg.Done()
	for entry := range r.tasks {
		if err := r.store.InsertRequestLog(entry); err != nil {
			// Write failures are swallowed; they never reach a caller.
			metrics.AnalyticsDropped.Inc()
			logger.Warn("failed to write request log",
				zap.String("request_id", entry.RequestID), zap.Error(err))
		}
	}
}
