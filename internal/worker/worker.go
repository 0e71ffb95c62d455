package worker

import (
	"context"
	"errors"
	"fmt"

	"enrollment-service/internal/broker"
	"enrollment-service/internal/models"
	"enrollment-service/internal/notification"
	"enrollment-service/internal/util"

	"go.uber.org/zap"
)

// EventLedger records which events were already handled
type EventLedger interface {
	IsEventProcessed(ctx context.Context, eventID string) (bool, error)
	MarkEventProcessed(ctx context.Context, eventID, eventType string) error
}

// Mailer delivers the enrollment confirmation
type Mailer interface {
	SendEnrollmentConfirmation(ctx context.Context, event *models.EnrollmentCompletedEvent) error
}

// NotificationWorker consumes enrollment events and emails learners
type NotificationWorker struct {
	consumer     *broker.Consumer
	eventHandler *broker.EventHandler
	ledger       EventLedger
	mailer       Mailer
	logger       *zap.Logger
}

// NewNotificationWorker creates a new notification worker
func NewNotificationWorker(consumer *broker.Consumer, ledger EventLedger, mailer Mailer) *NotificationWorker {
	w := &NotificationWorker{
		consumer:     consumer,
		eventHandler: broker.NewEventHandler(),
		ledger:       ledger,
		mailer:       mailer,
		logger:       util.GetLogger(),
	}
	w.eventHandler.OnEnrollmentCompleted(w.HandleEnrollmentCompleted)
	return w
}

// Start starts the worker
func (w *NotificationWorker) Start(ctx context.Context) error {
	w.logger.Info("Starting notification worker...")
	return w.consumer.StartConsuming(ctx, w.eventHandler.HandleMessage)
}

// Stop stops the worker
func (w *NotificationWorker) Stop() error {
	w.logger.Info("Stopping notification worker...")
	return w.consumer.Close()
}

// HandleEnrollmentCompleted sends the confirmation email once per event
func (w *NotificationWorker) HandleEnrollmentCompleted(ctx context.Context, event *models.EnrollmentCompletedEvent) error {
	ctx, span := util.StartSpan(ctx, "NotificationWorker.HandleEnrollmentCompleted")
	defer span.End()

	processed, err := w.ledger.IsEventProcessed(ctx, event.EventID)
	if err != nil {
		return fmt.Errorf("failed to check processed event: %w", err)
	}
	if processed {
		w.logger.Info("Event already processed, skipping", zap.String("event_id", event.EventID))
		return nil
	}

	err = w.mailer.SendEnrollmentConfirmation(ctx, event)
	switch {
	case errors.Is(err, notification.ErrMailerNotConfigured):
		util.EmailsSentTotal.WithLabelValues("skipped").Inc()
		w.logger.Warn("SMTP not configured, skipping enrollment email",
			zap.String("enrollment_id", event.EnrollmentID))
	case err != nil:
		util.FailSpan(span, err)
		util.EmailsSentTotal.WithLabelValues("failed").Inc()
		return err
	default:
		util.EmailsSentTotal.WithLabelValues("sent").Inc()
	}

	if err := w.ledger.MarkEventProcessed(ctx, event.EventID, event.EventType); err != nil {
		w.logger.Error("Failed to mark event as processed", zap.String("event_id", event.EventID), zap.Error(err))
	}
	return nil
}
