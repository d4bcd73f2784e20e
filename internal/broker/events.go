package broker

import (
	"context"
	"encoding/json"
	"fmt"

	"commerce-core/internal/models"
	"commerce-core/internal/util"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// NotificationPublisher emits post-commit order events for the notification
// dispatcher. Publish failures are the caller's to log, never to propagate:
// a committed order must not be rolled back because of a broker hiccup.
type NotificationPublisher struct {
	producer *Producer
}

// NewNotificationPublisher creates a new notification publisher.
func NewNotificationPublisher(producer *Producer) *NotificationPublisher {
	return &NotificationPublisher{producer: producer}
}

// PublishOrderConfirmed publishes an OrderConfirmed event.
func (np *NotificationPublisher) PublishOrderConfirmed(ctx context.Context, event *models.OrderConfirmedEvent) error {
	util.NotificationsPublishedTotal.WithLabelValues(models.EventTypeOrderConfirmed).Inc()
	key := fmt.Sprintf("order-%d", event.OrderID)
	return np.producer.PublishEvent(ctx, key, event)
}

// PublishStatusChanged publishes an OrderStatusChanged event.
func (np *NotificationPublisher) PublishStatusChanged(ctx context.Context, event *models.OrderStatusChangedEvent) error {
	util.NotificationsPublishedTotal.WithLabelValues(models.EventTypeOrderStatusChanged).Inc()
	key := fmt.Sprintf("order-%d", event.OrderID)
	return np.producer.PublishEvent(ctx, key, event)
}

// PublishOrderRefunded publishes an OrderRefunded event.
func (np *NotificationPublisher) PublishOrderRefunded(ctx context.Context, event *models.OrderRefundedEvent) error {
	util.NotificationsPublishedTotal.WithLabelValues(models.EventTypeOrderRefunded).Inc()
	key := fmt.Sprintf("order-%d", event.OrderID)
	return np.producer.PublishEvent(ctx, key, event)
}

// EventHandler routes incoming notification events.
type EventHandler struct {
	onOrderConfirmed func(context.Context, *models.OrderConfirmedEvent) error
	onStatusChanged  func(context.Context, *models.OrderStatusChangedEvent) error
	onOrderRefunded  func(context.Context, *models.OrderRefundedEvent) error
	logger           *zap.Logger
}

// NewEventHandler creates a new event handler.
func NewEventHandler() *EventHandler {
	return &EventHandler{logger: util.NamedLogger("event-handler")}
}

// OnOrderConfirmed registers a handler for OrderConfirmed events.
func (eh *EventHandler) OnOrderConfirmed(handler func(context.Context, *models.OrderConfirmedEvent) error) {
	eh.onOrderConfirmed = handler
}

// OnStatusChanged registers a handler for OrderStatusChanged events.
func (eh *EventHandler) OnStatusChanged(handler func(context.Context, *models.OrderStatusChangedEvent) error) {
	eh.onStatusChanged = handler
}

// OnOrderRefunded registers a handler for OrderRefunded events.
func (eh *EventHandler) OnOrderRefunded(handler func(context.Context, *models.OrderRefundedEvent) error) {
	eh.onOrderRefunded = handler
}

// HandleMessage routes messages to the appropriate handler.
func (eh *EventHandler) HandleMessage(ctx context.Context, msg kafka.Message) error {
	var baseEvent models.BaseEvent
	if err := json.Unmarshal(msg.Value, &baseEvent); err != nil {
		return fmt.Errorf("failed to unmarshal base event: %w", err)
	}

	eh.logger.Debug("Handling event",
		zap.String("type", baseEvent.EventType),
		zap.String("id", baseEvent.EventID))

	switch baseEvent.EventType {
	case models.EventTypeOrderConfirmed:
		if eh.onOrderConfirmed != nil {
			var event models.OrderConfirmedEvent
			if err := json.Unmarshal(msg.Value, &event); err != nil {
				return fmt.Errorf("failed to unmarshal OrderConfirmed event: %w", err)
			}
			return eh.onOrderConfirmed(ctx, &event)
		}

	case models.EventTypeOrderStatusChanged:
		if eh.onStatusChanged != nil {
			var event models.OrderStatusChangedEvent
			if err := json.Unmarshal(msg.Value, &event); err != nil {
				return fmt.Errorf("failed to unmarshal OrderStatusChanged event: %w", err)
			}
			return eh.onStatusChanged(ctx, &event)
		}

	case models.EventTypeOrderRefunded:
		if eh.onOrderRefunded != nil {
			var event models.OrderRefundedEvent
			if err := json.Unmarshal(msg.Value, &event); err != nil {
				return fmt.Errorf("failed to unmarshal OrderRefunded event: %w", err)
			}
			return eh.onOrderRefunded(ctx, &event)
		}

	default:
		eh.logger.Warn("Unhandled event type", zap.String("type", baseEvent.EventType))
	}

	return nil
}
