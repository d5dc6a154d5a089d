package broker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"sales-reconciler/internal/models"
	"sales-reconciler/internal/util"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeReader serves queued messages, then blocks until the context ends.
type fakeReader struct {
	mu        sync.Mutex
	queue     []kafka.Message
	committed []int64
	drained   chan struct{}
}

func newFakeReader(msgs ...kafka.Message) *fakeReader {
	return &fakeReader{queue: msgs, drained: make(chan struct{})}
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	r.mu.Lock()
	if len(r.queue) > 0 {
		msg := r.queue[0]
		r.queue = r.queue[1:]
		r.mu.Unlock()
		return msg, nil
	}
	r.mu.Unlock()
	select {
	case <-r.drained:
	default:
		close(r.drained)
	}
	<-ctx.Done()
	return kafka.Message{}, ctx.Err()
}

func (r *fakeReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range msgs {
		r.committed = append(r.committed, m.Offset)
	}
	return nil
}

func (r *fakeReader) Close() error { return nil }

func (r *fakeReader) commits() []int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]int64(nil), r.committed...)
}

func runConsumer(t *testing.T, r *fakeReader, handler MessageHandler) {
	t.Helper()
	c := &Consumer{reader: r, topic: "sync.requested", retryDelay: time.Millisecond, logger: util.GetLogger()}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.StartConsuming(ctx, handler) }()

	select {
	case <-r.drained:
	case <-time.After(2 * time.Second):
		t.Fatal("consumer did not drain the queue")
	}
	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}

func TestStartConsuming_RetriesBeforeCommit(t *testing.T) {
	r := newFakeReader(kafka.Message{Offset: 1}, kafka.Message{Offset: 2})
	attempts := map[int64]int{}

	runConsumer(t, r, func(_ context.Context, msg kafka.Message) error {
		attempts[msg.Offset]++
		if msg.Offset == 1 && attempts[1] < 2 {
			return errors.New("redis unavailable")
		}
		return nil
	})

	assert.Equal(t, 2, attempts[1])
	assert.Equal(t, 1, attempts[2])
	assert.Equal(t, []int64{1, 2}, r.commits())
}

func TestStartConsuming_DropsMessageAfterMaxAttempts(t *testing.T) {
	r := newFakeReader(kafka.Message{Offset: 7}, kafka.Message{Offset: 8})
	attempts := map[int64]int{}

	runConsumer(t, r, func(_ context.Context, msg kafka.Message) error {
		attempts[msg.Offset]++
		if msg.Offset == 7 {
			return errors.New("malformed payload")
		}
		return nil
	})

	assert.Equal(t, maxHandleAttempts, attempts[7])
	assert.Equal(t, []int64{7, 8}, r.commits(), "the failing message must not block the next one")
}

func TestStartConsuming_StopsDuringRetryWithoutCommit(t *testing.T) {
	r := newFakeReader(kafka.Message{Offset: 3})
	c := &Consumer{reader: r, topic: "sync.requested", retryDelay: time.Hour, logger: util.GetLogger()}
	ctx, cancel := context.WithCancel(context.Background())

	failed := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- c.StartConsuming(ctx, func(context.Context, kafka.Message) error {
			select {
			case <-failed:
			default:
				close(failed)
			}
			return errors.New("broker down")
		})
	}()

	<-failed
	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
	assert.Empty(t, r.commits())
}

func TestPublishEvent_SetsEventTypeHeader(t *testing.T) {
	w := &fakeWriter{}
	p := &Producer{writer: w, topic: "sync.requested", logger: util.GetLogger()}

	err := p.PublishEvent(context.Background(), "product-9", &models.SyncRequestedEvent{
		BaseEvent: models.BaseEvent{EventID: "e9", EventType: models.EventTypeSyncRequested},
		ProductID: 9,
	})
	require.NoError(t, err)
	require.Len(t, w.messages, 1)
	assert.Equal(t, models.EventTypeSyncRequested, headerValue(w.messages[0], HeaderEventType))

	require.NoError(t, p.PublishEvent(context.Background(), "raw", map[string]string{"a": "b"}))
	assert.Empty(t, w.messages[1].Headers)
}
