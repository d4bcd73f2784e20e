package models

import "time"

// Event types published after commit for the notification dispatcher.
const (
	EventTypeOrderConfirmed     = "ORDER_CONFIRMED"
	EventTypeOrderStatusChanged = "ORDER_STATUS_CHANGED"
	EventTypeOrderRefunded      = "ORDER_REFUNDED"
)

// BaseEvent contains common fields for all events
type BaseEvent struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
}

// OrderConfirmedEvent is published once an order has been committed with its
// items, stock and coupon mutations. Consumers send the confirmation email.
type OrderConfirmedEvent struct {
	BaseEvent
	OrderID       int64           `json:"order_id"`
	OrderNumber   string          `json:"order_number"`
	UserID        int64           `json:"user_id"`
	Email         string          `json:"email"`
	TotalAmount   float64         `json:"total_amount"`
	PaymentMethod string          `json:"payment_method"`
	Items         []OrderItemData `json:"items"`
}

// OrderStatusChangedEvent is published on every admin-driven lifecycle
// transition after the new status is committed.
type OrderStatusChangedEvent struct {
	BaseEvent
	OrderID     int64  `json:"order_id"`
	OrderNumber string `json:"order_number"`
	Email       string `json:"email"`
	OldStatus   string `json:"old_status"`
	NewStatus   string `json:"new_status"`
}

// OrderRefundedEvent is published after a gateway refund succeeds and the
// order has been moved to REFUNDED.
type OrderRefundedEvent struct {
	BaseEvent
	OrderID      int64   `json:"order_id"`
	OrderNumber  string  `json:"order_number"`
	Email        string  `json:"email"`
	RefundAmount float64 `json:"refund_amount"`
	RefundID     string  `json:"refund_id"`
	Reason       string  `json:"reason"`
}

// OrderItemData represents item data in events
type OrderItemData struct {
	ProductID int64   `json:"product_id"`
	VariantID *int64  `json:"variant_id,omitempty"`
	Quantity  int     `json:"quantity"`
	UnitPrice float64 `json:"unit_price"`
}
