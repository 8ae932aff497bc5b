package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMultiNotifierReturnsFirstError(t *testing.T) {
	first := &recordingNotifier{err: errors.New("first")}
	second := &recordingNotifier{err: errors.New("second")}
	ok := &recordingNotifier{}

	err := MultiNotifier{ok, first, second}.SessionMarked(context.Background(), 7)
	assert.EqualError(t, err, "first")
	assert.Equal(t, []uint{7}, ok.calls)
	assert.Equal(t, []uint{7}, second.calls, "later notifiers still run")
	assert.NoError(t, LogNotifier{}.SessionMarked(context.Background(), 7))
}

func TestRedisNotifierPublishes(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	ctx := context.Background()
	n := NewRedisNotifier(rdb)
	sub := rdb.Subscribe(ctx, n.Channel)
	t.Cleanup(func() { _ = sub.Close() })
	_, err := sub.Receive(ctx)
	require.NoError(t, err)

	require.NoError(t, n.SessionMarked(ctx, 42))

	select {
	case msg := <-sub.Channel():
		var event markedEvent
		require.NoError(t, json.Unmarshal([]byte(msg.Payload), &event))
		assert.Equal(t, "session.marked", event.Event)
		assert.Equal(t, uint(42), event.SessionID)
	case <-time.After(2 * time.Second):
		t.Fatal("no event published")
	}
}
