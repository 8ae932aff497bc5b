package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"survey_marking_backend/internal/model"
	"survey_marking_backend/internal/service"
	"survey_marking_backend/internal/util"

	"github.com/go-redis/redis/v8"
)

// BatchStatusRepository keeps batch monitoring records in redis. Counters
// live in a hash so queued items can be folded in atomically; item errors
// go to a side list. Both keys expire together.
type BatchStatusRepository struct {
	Redis  *redis.Client
	prefix string
}

func NewBatchStatusRepository(rdb *redis.Client) *BatchStatusRepository {
	return &BatchStatusRepository{Redis: rdb, prefix: "marking:batch:"}
}

func (r *BatchStatusRepository) statusKey(batchID string) string {
	return r.prefix + batchID
}

func (r *BatchStatusRepository) errorsKey(batchID string) string {
	return r.prefix + batchID + ":errors"
}

func (r *BatchStatusRepository) SaveBatchStatus(ctx context.Context, status *model.BatchStatus, ttl time.Duration) error {
	fields := map[string]interface{}{
		"batch_id":   status.BatchID,
		"state":      string(status.State),
		"total":      status.Total,
		"processed":  status.Processed,
		"successful": status.Successful,
		"skipped":    status.Skipped,
		"failed":     status.Failed,
		"created_at": status.CreatedAt.Format(time.RFC3339Nano),
	}
	if status.FinishedAt != nil {
		fields["finished_at"] = status.FinishedAt.Format(time.RFC3339Nano)
	}
	errorValues, err := encodeItemErrors(status.Errors)
	if err != nil {
		return err
	}

	key, errKey := r.statusKey(status.BatchID), r.errorsKey(status.BatchID)
	_, err = r.Redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key, fields)
		pipe.Del(ctx, errKey)
		if len(errorValues) > 0 {
			pipe.RPush(ctx, errKey, errorValues...)
			pipe.Expire(ctx, errKey, ttl)
		}
		pipe.Expire(ctx, key, ttl)
		return nil
	})
	return err
}

// RecordBatchItem counts one processed item and closes the batch when the
// last item arrives.
func (r *BatchStatusRepository) RecordBatchItem(ctx context.Context, batchID string, item service.BatchItemOutcome, ttl time.Duration) error {
	key, errKey := r.statusKey(batchID), r.errorsKey(batchID)
	field := "successful"
	switch {
	case item.Err != nil:
		field = "failed"
	case item.Skipped:
		field = "skipped"
	}

	var processed *redis.IntCmd
	var total *redis.StringCmd
	_, err := r.Redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		processed = pipe.HIncrBy(ctx, key, "processed", 1)
		pipe.HIncrBy(ctx, key, field, 1)
		total = pipe.HGet(ctx, key, "total")
		if item.Err != nil {
			data, err := json.Marshal(model.BatchItemError{SessionID: item.SessionID, Message: item.Err.Error()})
			if err != nil {
				return err
			}
			pipe.RPush(ctx, errKey, data)
			pipe.Expire(ctx, errKey, ttl)
		}
		pipe.Expire(ctx, key, ttl)
		return nil
	})
	if err != nil && err != redis.Nil {
		return err
	}

	n, totalErr := total.Int64()
	if totalErr != nil || processed.Val() < n {
		return nil
	}
	return r.Redis.HSet(ctx, key,
		"state", string(model.BatchCompleted),
		"finished_at", time.Now().Format(time.RFC3339Nano),
	).Err()
}

func (r *BatchStatusRepository) FindBatchStatus(ctx context.Context, batchID string) (*model.BatchStatus, error) {
	fields, err := r.Redis.HGetAll(ctx, r.statusKey(batchID)).Result()
	if err != nil {
		return nil, err
	}
	if len(fields) == 0 {
		return nil, util.ErrNotFound
	}

	status := &model.BatchStatus{
		BatchID:    batchID,
		State:      model.BatchState(fields["state"]),
		Total:      atoi(fields["total"]),
		Processed:  atoi(fields["processed"]),
		Successful: atoi(fields["successful"]),
		Skipped:    atoi(fields["skipped"]),
		Failed:     atoi(fields["failed"]),
	}
	if t, err := time.Parse(time.RFC3339Nano, fields["created_at"]); err == nil {
		status.CreatedAt = t
	}
	if t, err := time.Parse(time.RFC3339Nano, fields["finished_at"]); err == nil {
		status.FinishedAt = &t
	}

	raw, err := r.Redis.LRange(ctx, r.errorsKey(batchID), 0, -1).Result()
	if err != nil {
		return nil, err
	}
	for _, entry := range raw {
		var itemErr model.BatchItemError
		if err := json.Unmarshal([]byte(entry), &itemErr); err != nil {
			return nil, fmt.Errorf("decode batch error entry: %w", err)
		}
		status.Errors = append(status.Errors, itemErr)
	}
	return status, nil
}

func encodeItemErrors(errs []model.BatchItemError) ([]interface{}, error) {
	values := make([]interface{}, 0, len(errs))
	for _, e := range errs {
		data, err := json.Marshal(e)
		if err != nil {
			return nil, err
		}
		values = append(values, data)
	}
	return values, nil
}

func atoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}
