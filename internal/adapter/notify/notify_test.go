package notify

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rl1809/car-sharing/internal/core/domain"
)

// Mock kafka writer
type fakeWriter struct {
	msgs []kafka.Message
	err  error
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error { return nil }

func testEvent() domain.Event {
	return domain.Event{
		ID:         "evt-1",
		Type:       domain.EventPaymentConfirmed,
		RentalID:   7,
		PaymentID:  3,
		Message:    "**Payment Confirmed**",
		OccurredAt: time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC),
	}
}

func TestKafkaNotifier_Notify(t *testing.T) {
	w := &fakeWriter{}
	n := &KafkaNotifier{writer: w}

	require.NoError(t, n.Notify(context.Background(), testEvent()))
	require.Len(t, w.msgs, 1)

	msg := w.msgs[0]
	assert.Equal(t, "evt-1", string(msg.Key))
	assert.Equal(t, "payment_confirmed", string(msg.Headers[0].Value))

	var decoded domain.Event
	require.NoError(t, json.Unmarshal(msg.Value, &decoded))
	assert.Equal(t, testEvent(), decoded)
}

func TestKafkaNotifier_WriteError(t *testing.T) {
	broker := errors.New("leader not available")
	n := &KafkaNotifier{writer: &fakeWriter{err: broker}}

	err := n.Notify(context.Background(), testEvent())
	assert.ErrorIs(t, err, broker)
}

func TestLogNotifier(t *testing.T) {
	var buf bytes.Buffer
	n := NewLogNotifier(slog.New(slog.NewJSONHandler(&buf, nil)))

	require.NoError(t, n.Notify(context.Background(), testEvent()))
	assert.Contains(t, buf.String(), `"event_id":"evt-1"`)
	assert.Contains(t, buf.String(), `"type":"payment_confirmed"`)
}
