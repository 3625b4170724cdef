package notifications

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pavitra93/care-intake-portal/shared/cache"
	"github.com/pavitra93/care-intake-portal/shared/models"
)

func newCenter(t *testing.T) *Center {
	t.Helper()
	c, err := cache.NewLocalCache(1 << 22)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return NewCenter(c)
}

func TestCenter_NewestFirst(t *testing.T) {
	ctx := context.Background()
	center := newCenter(t)

	for i := 1; i <= 3; i++ {
		_, err := center.Push(ctx, "u-1", models.Notification{Message: fmt.Sprintf("message %d", i)})
		require.NoError(t, err)
	}

	feed, err := center.List(ctx, "u-1")
	require.NoError(t, err)
	require.Len(t, feed, 3)
	assert.Equal(t, "message 3", feed[0].Message)
	assert.Equal(t, "message 1", feed[2].Message)
	assert.Equal(t, models.SeverityInfo, feed[0].Severity, "unknown severity defaults to info")
	assert.NotEqual(t, feed[0].ID, feed[1].ID)
}

func TestCenter_Cap(t *testing.T) {
	ctx := context.Background()
	center := newCenter(t)

	for i := 0; i < MaxFeedSize+5; i++ {
		_, err := center.Push(ctx, "u-1", models.Notification{Message: fmt.Sprintf("m%d", i)})
		require.NoError(t, err)
	}

	feed, err := center.List(ctx, "u-1")
	require.NoError(t, err)
	assert.Len(t, feed, MaxFeedSize)
	assert.Equal(t, fmt.Sprintf("m%d", MaxFeedSize+4), feed[0].Message)
	assert.Equal(t, "m5", feed[MaxFeedSize-1].Message)
}

func TestCenter_ReadFlags(t *testing.T) {
	ctx := context.Background()
	center := newCenter(t)

	first, err := center.Push(ctx, "u-1", models.Notification{Severity: models.SeverityWarning, Message: "budget nearly used"})
	require.NoError(t, err)
	_, err = center.Push(ctx, "u-1", models.Notification{Message: "invoice processed"})
	require.NoError(t, err)

	count, err := center.UnreadCount(ctx, "u-1")
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	require.NoError(t, center.MarkRead(ctx, "u-1", first.ID))
	count, _ = center.UnreadCount(ctx, "u-1")
	assert.Equal(t, 1, count)

	assert.ErrorIs(t, center.MarkRead(ctx, "u-1", "missing"), ErrNotificationNotFound)

	require.NoError(t, center.MarkAllRead(ctx, "u-1"))
	count, _ = center.UnreadCount(ctx, "u-1")
	assert.Zero(t, count)
}

func TestCenter_DismissAndClear(t *testing.T) {
	ctx := context.Background()
	center := newCenter(t)

	n, err := center.Push(ctx, "u-1", models.Notification{Message: "one"})
	require.NoError(t, err)
	_, err = center.Push(ctx, "u-1", models.Notification{Message: "two"})
	require.NoError(t, err)

	require.NoError(t, center.Dismiss(ctx, "u-1", n.ID))
	feed, _ := center.List(ctx, "u-1")
	require.Len(t, feed, 1)
	assert.Equal(t, "two", feed[0].Message)

	assert.ErrorIs(t, center.Dismiss(ctx, "u-1", n.ID), ErrNotificationNotFound)

	require.NoError(t, center.Clear(ctx, "u-1"))
	feed, err = center.List(ctx, "u-1")
	require.NoError(t, err)
	assert.NotNil(t, feed)
	assert.Empty(t, feed)
}

func TestCenter_FeedsArePerUser(t *testing.T) {
	ctx := context.Background()
	center := newCenter(t)

	_, err := center.Push(ctx, "u-1", models.Notification{Message: "hello"})
	require.NoError(t, err)

	feed, err := center.List(ctx, "u-2")
	require.NoError(t, err)
	assert.Empty(t, feed)
}

func TestCenter_RejectsEmptyMessage(t *testing.T) {
	_, err := newCenter(t).Push(context.Background(), "u-1", models.Notification{Message: "  "})
	assert.ErrorIs(t, err, ErrEmptyMessage)
}

func TestHandleEvent(t *testing.T) {
	ctx := context.Background()
	center := newCenter(t)

	event := NewTenantEvent(EventFeaturesUpdated, models.Tenant{ID: "t-1", Name: "Acme Care"}, "u-1")
	value, err := json.Marshal(event)
	require.NoError(t, err)

	require.NoError(t, HandleEvent(ctx, center, value))

	feed, err := center.List(ctx, "u-1")
	require.NoError(t, err)
	require.Len(t, feed, 1)
	assert.Equal(t, "Features updated for Acme Care", feed[0].Message)
	assert.Equal(t, models.SeveritySuccess, feed[0].Severity)

	assert.Error(t, HandleEvent(ctx, center, []byte("{")))

	noActor, _ := json.Marshal(TenantEvent{Type: EventTenantCreated, TenantName: "x"})
	assert.Error(t, HandleEvent(ctx, center, noActor))
}

type recordingWriter struct {
	mu     sync.Mutex
	msgs   []kafka.Message
	closed bool
}

func (w *recordingWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *recordingWriter) Close() error {
	w.closed = true
	return nil
}

func TestProducer_DrainsOnClose(t *testing.T) {
	writer := &recordingWriter{}
	p := newProducer(writer, 10, 2)

	for i := 0; i < 5; i++ {
		event := NewTenantEvent(EventTenantCreated, models.Tenant{ID: fmt.Sprintf("t-%d", i), Name: "Acme"}, "u-1")
		require.NoError(t, p.Publish(event))
	}
	require.NoError(t, p.Close())
	require.NoError(t, p.Close(), "close is idempotent")

	assert.True(t, writer.closed)
	require.Len(t, writer.msgs, 5)
	assert.Equal(t, "u-1", string(writer.msgs[0].Headers[2].Value))

	var decoded TenantEvent
	require.NoError(t, json.Unmarshal(writer.msgs[0].Value, &decoded))
	assert.Equal(t, EventTenantCreated, decoded.Type)
}

func TestProducer_QueueFull(t *testing.T) {
	writer := &recordingWriter{}
	p := newProducer(writer, 1, 0)

	require.NoError(t, p.Publish(TenantEvent{ID: "1"}))
	assert.ErrorIs(t, p.Publish(TenantEvent{ID: "2"}), ErrQueueFull)
	require.NoError(t, p.Close())
}

func TestNewPublisher_NoBroker(t *testing.T) {
	pub := NewPublisher("")
	assert.IsType(t, NopPublisher{}, pub)
	assert.NoError(t, pub.Publish(TenantEvent{}))
}
