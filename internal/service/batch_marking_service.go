package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"survey_marking_backend/internal/model"
	"survey_marking_backend/pkg/monitoring"
	"survey_marking_backend/pkg/tracing"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// SessionMarker is the part of MarkingService a batch needs.
type SessionMarker interface {
	Mark(ctx context.Context, sessionID uint, schemeID *uint) (*MarkResult, error)
}

type BatchOptions struct {
	Concurrency   int
	ProgressEvery int
	StatusTTL     time.Duration
}

func (o BatchOptions) withDefaults() BatchOptions {
	if o.Concurrency <= 0 {
		o.Concurrency = 4
	}
	if o.ProgressEvery <= 0 {
		o.ProgressEvery = 25
	}
	if o.StatusTTL <= 0 {
		o.StatusTTL = 24 * time.Hour
	}
	return o
}

// BatchMarkingService fans marking out over many sessions. One failing
// session never aborts the others; the batch always completes with a tally.
type BatchMarkingService struct {
	Marker  SessionMarker
	Queue   JobQueue
	Status  BatchStatusStore
	Log     *zap.Logger
	Now     func() time.Time
	mu      sync.RWMutex
	options BatchOptions
}

func NewBatchMarkingService(marker SessionMarker, queue JobQueue, status BatchStatusStore, opts BatchOptions, log *zap.Logger) *BatchMarkingService {
	if log == nil {
		log = zap.NewNop()
	}
	return &BatchMarkingService{
		Marker:  marker,
		Queue:   queue,
		Status:  status,
		Log:     log,
		Now:     time.Now,
		options: opts.withDefaults(),
	}
}

func (s *BatchMarkingService) Options() BatchOptions {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.options
}

// SetOptions swaps the tunables; batches already running keep theirs.
func (s *BatchMarkingService) SetOptions(opts BatchOptions) {
	s.mu.Lock()
	s.options = opts.withDefaults()
	s.mu.Unlock()
}

// batchTally aggregates item outcomes across workers.
type batchTally struct {
	mu     sync.Mutex
	status *model.BatchStatus
}

func (t *batchTally) record(item BatchItemOutcome) model.BatchStatus {
	t.mu.Lock()
	defer t.mu.Unlock()
	applyOutcome(t.status, item)
	snapshot := *t.status
	snapshot.Errors = append([]model.BatchItemError(nil), t.status.Errors...)
	return snapshot
}

func applyOutcome(status *model.BatchStatus, item BatchItemOutcome) {
	status.Processed++
	switch {
	case item.Err != nil:
		status.Failed++
		status.Errors = append(status.Errors, model.BatchItemError{
			SessionID: item.SessionID,
			Message:   item.Err.Error(),
		})
	case item.Skipped:
		status.Skipped++
	default:
		status.Successful++
	}
}

// MarkBatch marks every session with a bounded pool and returns the final
// tally. Scheduled items are not cancelled when ctx is.
func (s *BatchMarkingService) MarkBatch(ctx context.Context, sessionIDs []uint, schemeID *uint) (*model.BatchStatus, error) {
	opts := s.Options()
	batchID := uuid.NewString()
	ctx, span := tracing.StartBatchSpan(ctx, batchID, len(sessionIDs))
	defer span.End()
	runCtx := context.WithoutCancel(ctx)

	monitoring.BatchesInFlight.Inc()
	defer monitoring.BatchesInFlight.Dec()

	tally := &batchTally{status: &model.BatchStatus{
		BatchID:   batchID,
		State:     model.BatchRunning,
		Total:     len(sessionIDs),
		CreatedAt: s.Now(),
	}}
	s.saveStatus(runCtx, tally.status, opts.StatusTTL)

	var g errgroup.Group
	g.SetLimit(opts.Concurrency)
	for _, id := range sessionIDs {
		sessionID := id
		g.Go(func() error {
			item := markItem(runCtx, s.Marker, s.Log, sessionID, schemeID)
			snapshot := tally.record(item)
			monitoring.ObserveBatchItem(itemResult(item))
			if snapshot.Processed%opts.ProgressEvery == 0 && snapshot.Processed < snapshot.Total {
				s.Log.Info("batch progress", zap.String("batchId", batchID), zap.String("progress", snapshot.Progress()))
				s.saveStatus(runCtx, &snapshot, opts.StatusTTL)
			}
			return nil
		})
	}
	_ = g.Wait()

	final := tally.status
	final.State = model.BatchCompleted
	finished := s.Now()
	final.FinishedAt = &finished
	s.saveStatus(runCtx, final, opts.StatusTTL)

	s.Log.Info("batch completed",
		zap.String("batchId", batchID),
		zap.Int("total", final.Total),
		zap.Int("successful", final.Successful),
		zap.Int("skipped", final.Skipped),
		zap.Int("failed", final.Failed),
	)
	return final, nil
}

// markItem isolates a single item, turning errors and panics into an outcome.
func markItem(ctx context.Context, marker SessionMarker, log *zap.Logger, sessionID uint, schemeID *uint) (item BatchItemOutcome) {
	item.SessionID = sessionID
	defer func() {
		if r := recover(); r != nil {
			item.Err = fmt.Errorf("marking panicked: %v", r)
			log.Error("batch item panicked", zap.Uint("sessionId", sessionID), zap.Any("panic", r))
		}
	}()
	result, err := marker.Mark(ctx, sessionID, schemeID)
	if err != nil {
		item.Err = fmt.Errorf("%s: %w", MarkingErrorMessage(err), err)
		log.Warn("batch item failed", zap.Uint("sessionId", sessionID), zap.Error(err))
		return item
	}
	// a session already graded under the same scheme counts as done
	item.Skipped = !result.Marked && !result.AlreadyMarked
	return item
}

// EnqueueBatch hands one job per session to the queue and returns at once.
// Workers fold their outcomes into the returned batch status.
func (s *BatchMarkingService) EnqueueBatch(ctx context.Context, sessionIDs []uint, schemeID *uint) (*model.BatchStatus, error) {
	opts := s.Options()
	status := &model.BatchStatus{
		BatchID:   uuid.NewString(),
		State:     model.BatchQueued,
		Total:     len(sessionIDs),
		CreatedAt: s.Now(),
	}
	if err := s.Status.SaveBatchStatus(ctx, status, opts.StatusTTL); err != nil {
		return nil, fmt.Errorf("save batch status: %w", err)
	}
	for _, id := range sessionIDs {
		job := model.MarkingJob{BatchID: status.BatchID, SessionID: id, SchemeID: schemeID}
		if err := s.Queue.Enqueue(ctx, job); err != nil {
			return nil, fmt.Errorf("enqueue %s: %w", job.IdempotencyKey(), err)
		}
	}
	s.Log.Info("batch enqueued", zap.String("batchId", status.BatchID), zap.Int("total", status.Total))
	return status, nil
}

func (s *BatchMarkingService) BatchStatus(ctx context.Context, batchID string) (*model.BatchStatus, error) {
	return s.Status.FindBatchStatus(ctx, batchID)
}

func (s *BatchMarkingService) saveStatus(ctx context.Context, status *model.BatchStatus, ttl time.Duration) {
	if s.Status == nil {
		return
	}
	if err := s.Status.SaveBatchStatus(ctx, status, ttl); err != nil {
		s.Log.Warn("save batch status failed", zap.String("batchId", status.BatchID), zap.Error(err))
	}
}

func itemResult(item BatchItemOutcome) string {
	switch {
	case item.Err != nil:
		return "failed"
	case item.Skipped:
		return "skipped"
	}
	return "successful"
}
