package broker

import (
	"context"
	"encoding/json"
	"fmt"

	"enrollment-service/internal/models"
	"enrollment-service/internal/util"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// EventPublisher handles publishing domain events
type EventPublisher struct {
	producer *Producer
}

// NewEventPublisher creates a new event publisher
func NewEventPublisher(producer *Producer) *EventPublisher {
	return &EventPublisher{producer: producer}
}

// PublishEnrollmentCompleted publishes EnrollmentCompleted event keyed by user
func (ep *EventPublisher) PublishEnrollmentCompleted(ctx context.Context, event *models.EnrollmentCompletedEvent) error {
	key := fmt.Sprintf("user-%s", event.UserID)
	return ep.producer.PublishEvent(ctx, key, event.EventType, event)
}

// EventHandler handles incoming events
type EventHandler struct {
	onEnrollmentCompleted func(context.Context, *models.EnrollmentCompletedEvent) error
	logger                *zap.Logger
}

// NewEventHandler creates a new event handler
func NewEventHandler() *EventHandler {
	return &EventHandler{logger: util.GetLogger()}
}

// OnEnrollmentCompleted registers a handler for EnrollmentCompleted events
func (eh *EventHandler) OnEnrollmentCompleted(handler func(context.Context, *models.EnrollmentCompletedEvent) error) {
	eh.onEnrollmentCompleted = handler
}

// HandleMessage routes messages to appropriate handlers
func (eh *EventHandler) HandleMessage(ctx context.Context, msg kafka.Message) error {
	var baseEvent models.BaseEvent
	if err := json.Unmarshal(msg.Value, &baseEvent); err != nil {
		// a poison message would block the partition forever; drop it
		eh.logger.Error("Dropping undecodable event",
			zap.Int64("offset", msg.Offset),
			zap.Error(err))
		return nil
	}

	eh.logger.Debug("Handling event",
		zap.String("event_type", baseEvent.EventType),
		zap.String("event_id", baseEvent.EventID))

	switch baseEvent.EventType {
	case models.EventTypeEnrollmentCompleted:
		if eh.onEnrollmentCompleted != nil {
			var event models.EnrollmentCompletedEvent
			if err := json.Unmarshal(msg.Value, &event); err != nil {
				return fmt.Errorf("failed to unmarshal EnrollmentCompleted event: %w", err)
			}
			return eh.onEnrollmentCompleted(ctx, &event)
		}

	default:
		eh.logger.Warn("Unhandled event type", zap.String("event_type", baseEvent.EventType))
	}

	return nil
}
