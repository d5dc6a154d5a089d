package broker

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"sales-reconciler/internal/models"
	"sales-reconciler/internal/util"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeWriter struct {
	messages []kafka.Message
	err      error
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.messages = append(w.messages, msgs...)
	return nil
}

func (w *fakeWriter) Close() error { return nil }

func TestPublishSaleRecorded(t *testing.T) {
	w := &fakeWriter{}
	pub := NewEventPublisher(&Producer{writer: w, logger: util.GetLogger()})

	err := pub.PublishSaleRecorded(context.Background(), &models.SaleRecordedEvent{
		BaseEvent:      models.BaseEvent{EventID: "e1", EventType: models.EventTypeSaleRecorded, Timestamp: time.Now()},
		ProductID:      42,
		Quantity:       2,
		Source:         models.LiveSource(models.PlatformSquare),
		SourceRecordID: "ORD1-L1",
	})
	require.NoError(t, err)
	require.Len(t, w.messages, 1)
	assert.Equal(t, "product-42", string(w.messages[0].Key))

	var decoded models.SaleRecordedEvent
	require.NoError(t, json.Unmarshal(w.messages[0].Value, &decoded))
	assert.Equal(t, models.EventTypeSaleRecorded, decoded.EventType)
	assert.Equal(t, "ORD1-L1", decoded.SourceRecordID)
}

func TestPublish_WrapsWriterError(t *testing.T) {
	w := &fakeWriter{err: errors.New("leader not available")}
	pub := NewEventPublisher(&Producer{writer: w, logger: util.GetLogger()})

	err := pub.PublishImportStep(context.Background(), &models.ImportStepEvent{RunID: "run"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "leader not available")
}

func TestHandleMessage_RoutesSyncRequested(t *testing.T) {
	h := NewEventHandler()
	var got *models.SyncRequestedEvent
	h.OnSyncRequested(func(_ context.Context, e *models.SyncRequestedEvent) error {
		got = e
		return nil
	})

	raw, err := json.Marshal(models.SyncRequestedEvent{
		BaseEvent: models.BaseEvent{EventID: "e1", EventType: models.EventTypeSyncRequested},
		ProductID: 42,
		Date:      "2025-06-01",
		Force:     true,
	})
	require.NoError(t, err)

	require.NoError(t, h.HandleMessage(context.Background(), kafka.Message{Value: raw}))
	require.NotNil(t, got)
	assert.Equal(t, int64(42), got.ProductID)
	assert.True(t, got.Force)

	// other event types are ignored
	require.NoError(t, h.HandleMessage(context.Background(), kafka.Message{Value: []byte(`{"event_type":"SALE_RECORDED"}`)}))

	assert.Error(t, h.HandleMessage(context.Background(), kafka.Message{Value: []byte(`not json`)}))
}
