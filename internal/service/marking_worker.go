package service

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"survey_marking_backend/internal/model"
	"survey_marking_backend/pkg/monitoring"

	"go.uber.org/zap"
)

// MarkingWorker drains queued marking jobs and folds each outcome into the
// job's batch status.
type MarkingWorker struct {
	Consumer  JobConsumer
	Marker    SessionMarker
	Status    BatchStatusStore
	Log       *zap.Logger
	statusTTL atomic.Int64
}

func NewMarkingWorker(consumer JobConsumer, marker SessionMarker, status BatchStatusStore, statusTTL time.Duration, log *zap.Logger) *MarkingWorker {
	if log == nil {
		log = zap.NewNop()
	}
	if statusTTL <= 0 {
		statusTTL = 24 * time.Hour
	}
	w := &MarkingWorker{Consumer: consumer, Marker: marker, Status: status, Log: log}
	w.SetStatusTTL(statusTTL)
	return w
}

func (w *MarkingWorker) SetStatusTTL(ttl time.Duration) {
	if ttl > 0 {
		w.statusTTL.Store(int64(ttl))
	}
}

func (w *MarkingWorker) StatusTTL() time.Duration {
	return time.Duration(w.statusTTL.Load())
}

// Run blocks until ctx is done.
func (w *MarkingWorker) Run(ctx context.Context) error {
	w.Log.Info("marking worker started")
	defer w.Log.Info("marking worker stopped")
	return w.Consumer.Consume(ctx, w.Handle)
}

// Handle processes one job. A marking failure is an outcome, not an error;
// only a failure to record it is returned, which leaves the job unacked.
func (w *MarkingWorker) Handle(ctx context.Context, job model.MarkingJob) error {
	item := markItem(context.WithoutCancel(ctx), w.Marker, w.Log, job.SessionID, job.SchemeID)
	monitoring.ObserveBatchItem(itemResult(item))
	if job.BatchID == "" || w.Status == nil {
		return nil
	}
	if err := w.Status.RecordBatchItem(ctx, job.BatchID, item, w.StatusTTL()); err != nil {
		return fmt.Errorf("record %s in batch %s: %w", job.IdempotencyKey(), job.BatchID, err)
	}
	return nil
}
