package broker

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"enrollment-service/internal/models"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestHandleMessageRoutesEnrollmentCompleted(t *testing.T) {
	event := models.EnrollmentCompletedEvent{
		BaseEvent: models.BaseEvent{
			EventID:   "evt-1",
			EventType: models.EventTypeEnrollmentCompleted,
			Timestamp: time.Now(),
		},
		EnrollmentID: "enr-1",
		UserEmail:    "asha@example.com",
		CourseTitle:  "Data Engineering Bootcamp",
	}
	payload, err := json.Marshal(event)
	require.NoError(t, err)

	var got *models.EnrollmentCompletedEvent
	handler := NewEventHandler()
	handler.OnEnrollmentCompleted(func(_ context.Context, e *models.EnrollmentCompletedEvent) error {
		got = e
		return nil
	})

	require.NoError(t, handler.HandleMessage(context.Background(), kafka.Message{Value: payload}))
	require.NotNil(t, got)
	assert.Equal(t, "evt-1", got.EventID)
	assert.Equal(t, "enr-1", got.EnrollmentID)
	assert.Equal(t, "asha@example.com", got.UserEmail)
}

func TestHandleMessageIgnoresUnknownAndGarbage(t *testing.T) {
	called := false
	handler := NewEventHandler()
	handler.OnEnrollmentCompleted(func(context.Context, *models.EnrollmentCompletedEvent) error {
		called = true
		return nil
	})

	assert.NoError(t, handler.HandleMessage(context.Background(), kafka.Message{Value: []byte(`{"event_type":"SOMETHING_ELSE"}`)}))
	assert.NoError(t, handler.HandleMessage(context.Background(), kafka.Message{Value: []byte(`not json`)}))
	assert.False(t, called)
}

func TestHandleWithRetryRecoversFromTransientFailure(t *testing.T) {
	c := &Consumer{logger: zap.NewNop(), attempts: 3, retryBackoff: time.Millisecond}

	calls := 0
	err := c.handleWithRetry(context.Background(), func(ctx context.Context, msg kafka.Message) error {
		calls++
		if calls < 3 {
			return errors.New("smtp: 421 try again later")
		}
		return nil
	}, kafka.Message{Offset: 42})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestHandleWithRetryGivesUp(t *testing.T) {
	c := &Consumer{logger: zap.NewNop(), attempts: 2, retryBackoff: time.Millisecond}
	permanent := errors.New("smtp: 550 mailbox unavailable")

	calls := 0
	err := c.handleWithRetry(context.Background(), func(ctx context.Context, msg kafka.Message) error {
		calls++
		return permanent
	}, kafka.Message{})

	assert.ErrorIs(t, err, permanent)
	assert.Equal(t, 2, calls)
}

func TestHandleWithRetryStopsOnCancel(t *testing.T) {
	c := &Consumer{logger: zap.NewNop(), attempts: 5, retryBackoff: time.Hour}
	ctx, cancel := context.WithCancel(context.Background())

	calls := 0
	err := c.handleWithRetry(ctx, func(ctx context.Context, msg kafka.Message) error {
		calls++
		cancel()
		return errors.New("boom")
	}, kafka.Message{})

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}
