package worker

import (
	"context"

	"commerce-core/internal/broker"
	"commerce-core/internal/models"
	"commerce-core/internal/util"

	"go.uber.org/zap"
)

// Notifier is the trigger contract of the external notification dispatcher.
// Errors are logged by the worker and never re-raised into order flow.
type Notifier interface {
	SendOrderConfirmation(ctx context.Context, event *models.OrderConfirmedEvent) error
	SendStatusUpdate(ctx context.Context, event *models.OrderStatusChangedEvent) error
	SendRefundNotification(ctx context.Context, event *models.OrderRefundedEvent) error
}

// NotificationWorker consumes post-commit order events and hands them to the
// dispatcher, decoupling persistence latency from email-provider latency.
type NotificationWorker struct {
	consumer     *broker.Consumer
	eventHandler *broker.EventHandler
	logger       *zap.Logger
}

// NewNotificationWorker wires the event handler to the dispatcher.
func NewNotificationWorker(consumer *broker.Consumer, notifier Notifier) *NotificationWorker {
	logger := util.NamedLogger("notification-worker")
	eventHandler := broker.NewEventHandler()

	eventHandler.OnOrderConfirmed(func(ctx context.Context, event *models.OrderConfirmedEvent) error {
		if err := notifier.SendOrderConfirmation(ctx, event); err != nil {
			logger.Error("Failed to send order confirmation",
				zap.Int64("order_id", event.OrderID),
				zap.Error(err))
		}
		return nil
	})
	eventHandler.OnStatusChanged(func(ctx context.Context, event *models.OrderStatusChangedEvent) error {
		if err := notifier.SendStatusUpdate(ctx, event); err != nil {
			logger.Error("Failed to send status update",
				zap.Int64("order_id", event.OrderID),
				zap.Error(err))
		}
		return nil
	})
	eventHandler.OnOrderRefunded(func(ctx context.Context, event *models.OrderRefundedEvent) error {
		if err := notifier.SendRefundNotification(ctx, event); err != nil {
			logger.Error("Failed to send refund notification",
				zap.Int64("order_id", event.OrderID),
				zap.Error(err))
		}
		return nil
	})

	return &NotificationWorker{
		consumer:     consumer,
		eventHandler: eventHandler,
		logger:       logger,
	}
}

// Start starts the worker
func (w *NotificationWorker) Start(ctx context.Context) error {
	w.logger.Info("Starting notification worker")
	return w.consumer.StartConsuming(ctx, w.eventHandler.HandleMessage)
}

// Stop stops the worker
func (w *NotificationWorker) Stop() error {
	w.logger.Info("Stopping notification worker")
	return w.consumer.Close()
}

// LogNotifier is a stand-in dispatcher that records what would be sent. The
// real email dispatcher lives outside this service.
type LogNotifier struct {
	logger *zap.Logger
}

func NewLogNotifier() *LogNotifier {
	return &LogNotifier{logger: util.NamedLogger("notifier")}
}

func (n *LogNotifier) SendOrderConfirmation(_ context.Context, event *models.OrderConfirmedEvent) error {
	n.logger.Info("Order confirmation notification",
		zap.String("order_number", event.OrderNumber),
		zap.String("email", event.Email),
		zap.Float64("total", event.TotalAmount))
	return nil
}

func (n *LogNotifier) SendStatusUpdate(_ context.Context, event *models.OrderStatusChangedEvent) error {
	n.logger.Info("Status update notification",
		zap.String("order_number", event.OrderNumber),
		zap.String("old", event.OldStatus),
		zap.String("new", event.NewStatus))
	return nil
}

func (n *LogNotifier) SendRefundNotification(_ context.Context, event *models.OrderRefundedEvent) error {
	n.logger.Info("Refund notification",
		zap.String("order_number", event.OrderNumber),
		zap.Float64("amount", event.RefundAmount))
	return nil
}
