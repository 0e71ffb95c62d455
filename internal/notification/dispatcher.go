package notification

import (
	"context"
	"errors"
	"sync"
	"time"

	"enrollment-service/internal/models"
	"enrollment-service/internal/util"

	"go.uber.org/zap"
)

var (
	ErrQueueFull        = errors.New("notification queue is full")
	ErrDispatcherClosed = errors.New("notification dispatcher is closed")
)

const publishTimeout = 10 * time.Second

// Publisher delivers events to the message broker.
type Publisher interface {
	PublishEnrollmentCompleted(ctx context.Context, event *models.EnrollmentCompletedEvent) error
}

// Dispatcher decouples notification delivery from the request that caused
// it. Dispatch never blocks; a single goroutine drains the queue into the
// publisher and failures only show up in logs and metrics.
type Dispatcher struct {
	publisher Publisher
	queue     chan *models.EnrollmentCompletedEvent
	logger    *zap.Logger

	mu     sync.RWMutex
	closed bool
	done   chan struct{}
}

// NewDispatcher starts a dispatcher with a queue of the given size
func NewDispatcher(publisher Publisher, queueSize int) *Dispatcher {
	if queueSize <= 0 {
		queueSize = 1
	}

	d := &Dispatcher{
		publisher: publisher,
		queue:     make(chan *models.EnrollmentCompletedEvent, queueSize),
		logger:    util.GetLogger(),
		done:      make(chan struct{}),
	}
	go d.run()
	return d
}

// DispatchEnrollmentCompleted enqueues the event without waiting for delivery
func (d *Dispatcher) DispatchEnrollmentCompleted(event *models.EnrollmentCompletedEvent) error {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		util.NotificationsDispatchedTotal.WithLabelValues("dropped_closed").Inc()
		return ErrDispatcherClosed
	}

	select {
	case d.queue <- event:
		util.NotificationQueueDepth.Inc()
		return nil
	default:
		util.NotificationsDispatchedTotal.WithLabelValues("dropped_full").Inc()
		return ErrQueueFull
	}
}

func (d *Dispatcher) run() {
	defer close(d.done)

	for event := range d.queue {
		util.NotificationQueueDepth.Dec()
		d.publish(event)
	}
}

func (d *Dispatcher) publish(event *models.EnrollmentCompletedEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()

	if err := d.publisher.PublishEnrollmentCompleted(ctx, event); err != nil {
		util.NotificationsDispatchedTotal.WithLabelValues("failed").Inc()
		d.logger.Error("Failed to publish EnrollmentCompleted event",
			zap.String("event_id", event.EventID),
			zap.String("enrollment_id", event.EnrollmentID),
			zap.Error(err))
		return
	}
	util.NotificationsDispatchedTotal.WithLabelValues("published").Inc()
}

// Close stops accepting events and waits for the queue to drain or ctx to
// expire.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.queue)
	}
	d.mu.Unlock()

	select {
	case <-d.done:
		return nil
	case <-ctx.Done():
		d.logger.Warn("Notification queue not drained before shutdown", zap.Int("pending", len(d.queue)))
		return ctx.Err()
	}
}
