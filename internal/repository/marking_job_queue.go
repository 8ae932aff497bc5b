package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"survey_marking_backend/internal/model"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// MarkingJobQueue is a redis stream of marking jobs consumed through a
// consumer group, so each job reaches exactly one worker until acked.
type MarkingJobQueue struct {
	Redis      *redis.Client
	Log        *zap.Logger
	streamName string
	groupName  string
	consumer   string
	batchSize  int64
	block      time.Duration
	claimIdle  time.Duration
}

func NewMarkingJobQueue(rdb *redis.Client, log *zap.Logger) *MarkingJobQueue {
	if log == nil {
		log = zap.NewNop()
	}
	return &MarkingJobQueue{
		Redis:      rdb,
		Log:        log,
		streamName: "marking:jobs:stream",
		groupName:  "marking:jobs:group",
		consumer:   consumerName(),
		batchSize:  10,
		block:      2 * time.Second,
		claimIdle:  30 * time.Second,
	}
}

// consumerName stays the same across restarts of one host so its pending
// entries are picked up again.
func consumerName() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		return "worker-" + uuid.NewString()
	}
	return "worker-" + host
}

func (q *MarkingJobQueue) Enqueue(ctx context.Context, job model.MarkingJob) error {
	data, err := json.Marshal(job)
	if err != nil {
		return err
	}
	return q.Redis.XAdd(ctx, &redis.XAddArgs{
		Stream: q.streamName,
		Values: map[string]interface{}{
			"key":  job.IdempotencyKey(),
			"data": string(data),
		},
	}).Err()
}

// Consume reads jobs until ctx is done. A job whose handler fails stays
// pending and is claimed again once idle for claimIdle, from this or a dead
// consumer; undecodable entries are acked and dropped.
func (q *MarkingJobQueue) Consume(ctx context.Context, handle func(context.Context, model.MarkingJob) error) error {
	err := q.Redis.XGroupCreateMkStream(ctx, q.streamName, q.groupName, "0").Err()
	if err != nil && !strings.HasPrefix(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("create consumer group: %w", err)
	}

	for {
		if ctx.Err() != nil {
			return nil
		}
		q.retryPending(ctx, handle)

		streams, err := q.Redis.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    q.groupName,
			Consumer: q.consumer,
			Streams:  []string{q.streamName, ">"},
			Count:    q.batchSize,
			Block:    q.block,
		}).Result()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			q.Log.Warn("read marking jobs failed", zap.Error(err))
			time.Sleep(100 * time.Millisecond)
			continue
		}

		for _, stream := range streams {
			for _, msg := range stream.Messages {
				q.process(ctx, msg, handle)
			}
		}
	}
}

func (q *MarkingJobQueue) retryPending(ctx context.Context, handle func(context.Context, model.MarkingJob) error) {
	pending, err := q.Redis.XPendingExt(ctx, &redis.XPendingExtArgs{
		Stream: q.streamName,
		Group:  q.groupName,
		Start:  "-",
		End:    "+",
		Count:  q.batchSize,
	}).Result()
	if err != nil {
		if ctx.Err() == nil && !errors.Is(err, redis.Nil) {
			q.Log.Warn("list pending marking jobs failed", zap.Error(err))
		}
		return
	}

	var idle []string
	for _, p := range pending {
		if p.Idle >= q.claimIdle {
			idle = append(idle, p.ID)
		}
	}
	if len(idle) == 0 {
		return
	}

	// the v8 client cannot parse the Redis 7 XAUTOCLAIM reply
	msgs, err := q.Redis.XClaim(ctx, &redis.XClaimArgs{
		Stream:   q.streamName,
		Group:    q.groupName,
		Consumer: q.consumer,
		MinIdle:  q.claimIdle,
		Messages: idle,
	}).Result()
	if err != nil {
		if ctx.Err() == nil {
			q.Log.Warn("claim pending marking jobs failed", zap.Error(err))
		}
		return
	}
	for _, msg := range msgs {
		q.Log.Info("retrying marking job", zap.String("id", msg.ID))
		q.process(ctx, msg, handle)
	}
}

func (q *MarkingJobQueue) ack(ctx context.Context, id string) {
	if err := q.Redis.XAck(ctx, q.streamName, q.groupName, id).Err(); err != nil {
		q.Log.Error("ack marking job failed", zap.String("id", id), zap.Error(err))
	}
}

func (q *MarkingJobQueue) process(ctx context.Context, msg redis.XMessage, handle func(context.Context, model.MarkingJob) error) {
	var job model.MarkingJob
	data, ok := msg.Values["data"].(string)
	if !ok || json.Unmarshal([]byte(data), &job) != nil {
		q.Log.Error("dropping malformed marking job", zap.String("id", msg.ID))
		q.ack(ctx, msg.ID)
		return
	}
	if err := handle(ctx, job); err != nil {
		q.Log.Warn("marking job left pending",
			zap.String("id", msg.ID),
			zap.String("key", job.IdempotencyKey()),
			zap.Error(err),
		)
		return
	}
	q.ack(ctx, msg.ID)
}
