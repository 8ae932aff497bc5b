package service

import (
	"context"
	"encoding/json"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// LogNotifier reports marked sessions to the log only.
type LogNotifier struct {
	Log *zap.Logger
}

func (n LogNotifier) SessionMarked(_ context.Context, sessionID uint) error {
	if n.Log != nil {
		n.Log.Info("session marked notification", zap.Uint("sessionId", sessionID))
	}
	return nil
}

// MultiNotifier fans a notification out, returning the first error.
type MultiNotifier []Notifier

func (m MultiNotifier) SessionMarked(ctx context.Context, sessionID uint) error {
	var first error
	for _, n := range m {
		if err := n.SessionMarked(ctx, sessionID); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// RedisNotifier publishes marked sessions on a pub/sub channel.
type RedisNotifier struct {
	Redis   *redis.Client
	Channel string
}

func NewRedisNotifier(rdb *redis.Client) *RedisNotifier {
	return &RedisNotifier{Redis: rdb, Channel: "marking:events"}
}

type markedEvent struct {
	Event     string    `json:"event"`
	SessionID uint      `json:"sessionId"`
	At        time.Time `json:"at"`
}

func (n *RedisNotifier) SessionMarked(ctx context.Context, sessionID uint) error {
	payload, err := json.Marshal(markedEvent{Event: "session.marked", SessionID: sessionID, At: time.Now()})
	if err != nil {
		return err
	}
	return n.Redis.Publish(ctx, n.Channel, payload).Err()
}
