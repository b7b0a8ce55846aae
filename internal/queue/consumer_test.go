package queue

import (
	"context"
	"log/slog"
	"os"
	"testing"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lagonzalez1/micro-grader/internal/config"
	"github.com/lagonzalez1/micro-grader/internal/task"
)

// fakeAcknowledger records how a delivery was settled.
type fakeAcknowledger struct {
	acked   bool
	nacked  bool
	requeue bool
}

func (f *fakeAcknowledger) Ack(tag uint64, multiple bool) error {
	f.acked = true
	return nil
}

func (f *fakeAcknowledger) Nack(tag uint64, multiple, requeue bool) error {
	f.nacked = true
	f.requeue = requeue
	return nil
}

func (f *fakeAcknowledger) Reject(tag uint64, requeue bool) error {
	f.nacked = true
	f.requeue = requeue
	return nil
}

// mockHandler implements Handler with a Func field.
type mockHandler struct {
	ProcessFunc func(ctx context.Context, req task.GradeRequest, modelID string) task.Outcome
}

func (m *mockHandler) Process(ctx context.Context, req task.GradeRequest, modelID string) task.Outcome {
	if m.ProcessFunc != nil {
		return m.ProcessFunc(ctx, req, modelID)
	}
	return task.OutcomeAck
}

func testConsumer(t *testing.T, handler Handler) *Consumer {
	t.Helper()
	log := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
	c, err := NewConsumer(config.QueueConfig{
		URL:        "amqp://localhost",
		Exchange:   "grading",
		Queue:      "grading.requests",
		RoutingKey: "grade",
		Prefetch:   1,
	}, "gemini-2.0-flash", handler, log)
	require.NoError(t, err)
	return c
}

func TestNewConsumer(t *testing.T) {
	t.Parallel()

	t.Run("fails with nil handler", func(t *testing.T) {
		c, err := NewConsumer(config.QueueConfig{}, "m", nil, nil)
		assert.Error(t, err)
		assert.Nil(t, c)
	})

	t.Run("run fails when not connected", func(t *testing.T) {
		c := testConsumer(t, &mockHandler{})
		err := c.Run(context.Background())
		assert.Error(t, err)
	})
}

func TestHandleOutcomeMapping(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		outcome     task.Outcome
		wantAck     bool
		wantNack    bool
		wantRequeue bool
	}{
		{name: "ack acknowledges the delivery", outcome: task.OutcomeAck, wantAck: true},
		{name: "retry requeues the delivery", outcome: task.OutcomeRetry, wantNack: true, wantRequeue: true},
		{name: "drop rejects without requeue", outcome: task.OutcomeDrop, wantNack: true, wantRequeue: false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var seen task.GradeRequest
			handler := &mockHandler{
				ProcessFunc: func(ctx context.Context, req task.GradeRequest, modelID string) task.Outcome {
					seen = req
					return tc.outcome
				},
			}
			c := testConsumer(t, handler)

			ack := &fakeAcknowledger{}
			c.handle(context.Background(), amqp.Delivery{
				Acknowledger: ack,
				DeliveryTag:  1,
				Body:         []byte(`{"session_token":"sess-abc","session_id":42,"organization_id":"org-1"}`),
			})

			assert.Equal(t, tc.wantAck, ack.acked)
			assert.Equal(t, tc.wantNack, ack.nacked)
			if tc.wantNack {
				assert.Equal(t, tc.wantRequeue, ack.requeue)
			}
			assert.Equal(t, "sess-abc", seen.SessionToken)
			assert.Equal(t, int64(42), seen.SessionID)
			assert.Equal(t, "org-1", seen.OrganizationID)
		})
	}
}

func TestHandlePanickingHandler(t *testing.T) {
	t.Parallel()

	handler := &mockHandler{
		ProcessFunc: func(ctx context.Context, req task.GradeRequest, modelID string) task.Outcome {
			panic("boom")
		},
	}
	c := testConsumer(t, handler)

	ack := &fakeAcknowledger{}
	require.NotPanics(t, func() {
		c.handle(context.Background(), amqp.Delivery{
			Acknowledger: ack,
			DeliveryTag:  1,
			Body:         []byte(`{"session_token":"sess-abc","session_id":42,"organization_id":"org-1"}`),
		})
	})

	assert.False(t, ack.acked)
	assert.True(t, ack.nacked, "a panicking handler must still settle the delivery")
	assert.True(t, ack.requeue, "the delivery is requeued for another attempt")
}

func TestHandleMalformedPayload(t *testing.T) {
	t.Parallel()

	t.Run("drops undecodable body without invoking handler", func(t *testing.T) {
		handler := &mockHandler{
			ProcessFunc: func(ctx context.Context, req task.GradeRequest, modelID string) task.Outcome {
				t.Fatal("handler must not run for malformed payloads")
				return task.OutcomeAck
			},
		}
		c := testConsumer(t, handler)

		ack := &fakeAcknowledger{}
		c.handle(context.Background(), amqp.Delivery{
			Acknowledger: ack,
			DeliveryTag:  1,
			Body:         []byte("not json"),
		})

		assert.False(t, ack.acked)
		assert.True(t, ack.nacked)
		assert.False(t, ack.requeue, "poison payloads must not be requeued")
	})

	t.Run("drops payload without session token", func(t *testing.T) {
		handler := &mockHandler{
			ProcessFunc: func(ctx context.Context, req task.GradeRequest, modelID string) task.Outcome {
				t.Fatal("handler must not run without a session token")
				return task.OutcomeAck
			},
		}
		c := testConsumer(t, handler)

		ack := &fakeAcknowledger{}
		c.handle(context.Background(), amqp.Delivery{
			Acknowledger: ack,
			DeliveryTag:  1,
			Body:         []byte(`{"session_id":42}`),
		})

		assert.True(t, ack.nacked)
		assert.False(t, ack.requeue)
	})
}
