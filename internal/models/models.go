package models

import "time"

// Product is the catalog entry consulted at quote time. Wholesale price is
// stored but never auto-selected by the pricing engine.
type Product struct {
	ID             int64    `db:"id" json:"id"`
	Name           string   `db:"name" json:"name"`
	NormalPrice    float64  `db:"normal_price" json:"normal_price"`
	OfferPrice     *float64 `db:"offer_price" json:"offer_price,omitempty"`
	WholesalePrice *float64 `db:"wholesale_price" json:"wholesale_price,omitempty"`
	Status         string   `db:"status" json:"status"`
}

// Product statuses
const (
	ProductStatusActive   = "ACTIVE"
	ProductStatusInactive = "INACTIVE"
)

// ProductVariant carries the sellable stock for a product option.
type ProductVariant struct {
	ID        int64 `db:"id" json:"id"`
	ProductID int64 `db:"product_id" json:"product_id"`
	Stock     int   `db:"stock" json:"stock"`
}

// Coupon is a shared resource: every redemption increments UsedCount, and
// concurrent redemptions race against UsageLimit.
type Coupon struct {
	ID             int64     `db:"id" json:"id"`
	Code           string    `db:"code" json:"code"`
	DiscountType   string    `db:"discount_type" json:"discount_type"`
	DiscountValue  float64   `db:"discount_value" json:"discount_value"`
	MinOrderAmount float64   `db:"min_order_amount" json:"min_order_amount"`
	MaxDiscount    *float64  `db:"max_discount" json:"max_discount,omitempty"`
	ValidFrom      time.Time `db:"valid_from" json:"valid_from"`
	ValidUntil     time.Time `db:"valid_until" json:"valid_until"`
	UsageLimit     *int      `db:"usage_limit" json:"usage_limit,omitempty"`
	UsedCount      int       `db:"used_count" json:"used_count"`
	IsActive       bool      `db:"is_active" json:"is_active"`
}

// Coupon discount types
const (
	DiscountTypePercentage = "PERCENTAGE"
	DiscountTypeFixed      = "FIXED"
)

// Order is the aggregate root. Shipping fields are an immutable snapshot
// taken at creation; monetary fields are the frozen quote, never recomputed
// from live catalog prices.
type Order struct {
	ID          int64  `db:"id" json:"id"`
	OrderNumber string `db:"order_number" json:"order_number"`
	UserID      int64  `db:"user_id" json:"user_id"`

	ShippingName    string `db:"shipping_name" json:"shipping_name"`
	ShippingEmail   string `db:"shipping_email" json:"shipping_email"`
	ShippingPhone   string `db:"shipping_phone" json:"shipping_phone"`
	ShippingAddress string `db:"shipping_address" json:"shipping_address"`
	ShippingCity    string `db:"shipping_city" json:"shipping_city"`
	ShippingState   string `db:"shipping_state" json:"shipping_state"`
	ShippingPincode string `db:"shipping_pincode" json:"shipping_pincode"`

	Subtotal     float64 `db:"subtotal" json:"subtotal"`
	Discount     float64 `db:"discount" json:"discount"`
	ShippingCost float64 `db:"shipping_cost" json:"shipping_cost"`
	TotalAmount  float64 `db:"total_amount" json:"total_amount"`
	CouponID     *int64  `db:"coupon_id" json:"coupon_id,omitempty"`

	Status        string `db:"status" json:"status"`
	PaymentStatus string `db:"payment_status" json:"payment_status"`
	PaymentMethod string `db:"payment_method" json:"payment_method"`

	// Synchronous-gateway correlation
	GatewayOrderID   *string `db:"gateway_order_id" json:"gateway_order_id,omitempty"`
	GatewayPaymentID *string `db:"gateway_payment_id" json:"gateway_payment_id,omitempty"`
	GatewaySignature *string `db:"gateway_signature" json:"-"`

	// Asynchronous-gateway correlation
	MerchantTxID    *string `db:"merchant_tx_id" json:"merchant_tx_id,omitempty"`
	GatewayTxID     *string `db:"gateway_tx_id" json:"gateway_tx_id,omitempty"`
	ResponseCode    *string `db:"response_code" json:"response_code,omitempty"`
	ResponseMessage *string `db:"response_message" json:"response_message,omitempty"`

	Carrier           *string    `db:"carrier" json:"carrier,omitempty"`
	TrackingNumber    *string    `db:"tracking_number" json:"tracking_number,omitempty"`
	TrackingURL       *string    `db:"tracking_url" json:"tracking_url,omitempty"`
	EstimatedDelivery *time.Time `db:"estimated_delivery" json:"estimated_delivery,omitempty"`
	ShippedAt         *time.Time `db:"shipped_at" json:"shipped_at,omitempty"`
	DeliveredAt       *time.Time `db:"delivered_at" json:"delivered_at,omitempty"`

	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`

	Items    []OrderItem       `db:"-" json:"items,omitempty"`
	Images   []CustomImage     `db:"-" json:"images,omitempty"`
	Tracking []TrackingHistory `db:"-" json:"tracking,omitempty"`
}

// OrderItem is an immutable line snapshot; unit price is frozen at creation.
type OrderItem struct {
	ID        int64   `db:"id" json:"id"`
	OrderID   int64   `db:"order_id" json:"order_id"`
	ProductID int64   `db:"product_id" json:"product_id"`
	VariantID *int64  `db:"variant_id" json:"variant_id,omitempty"`
	Quantity  int     `db:"quantity" json:"quantity"`
	UnitPrice float64 `db:"unit_price" json:"unit_price"`
}

// CustomImage is a personalization asset attached at order time, grouped by
// color through an explicit upload contract.
type CustomImage struct {
	ID      int64  `db:"id" json:"id"`
	OrderID int64  `db:"order_id" json:"order_id"`
	Color   string `db:"color" json:"color"`
	URL     string `db:"url" json:"url"`
	Key     string `db:"storage_key" json:"key"`
}

// TrackingHistory is an append-only audit log; entries are never mutated.
type TrackingHistory struct {
	ID          int64     `db:"id" json:"id"`
	OrderID     int64     `db:"order_id" json:"order_id"`
	Status      string    `db:"status" json:"status"`
	Description string    `db:"description" json:"description"`
	Location    string    `db:"location" json:"location"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}

// Order statuses (forward-only; CANCELLED, REFUNDED, DELIVERED are terminal)
const (
	OrderStatusPending    = "PENDING"
	OrderStatusConfirmed  = "CONFIRMED"
	OrderStatusProcessing = "PROCESSING"
	OrderStatusShipped    = "SHIPPED"
	OrderStatusDelivered  = "DELIVERED"
	OrderStatusCancelled  = "CANCELLED"
	OrderStatusRefunded   = "REFUNDED"
)

// Payment statuses
const (
	PaymentStatusPending  = "PENDING"
	PaymentStatusPaid     = "PAID"
	PaymentStatusFailed   = "FAILED"
	PaymentStatusRefunded = "REFUNDED"
)

// Payment methods
const (
	PaymentMethodOnline = "ONLINE"
	PaymentMethodCOD    = "COD"
)

// statusRank orders the forward-only lifecycle. Terminal states rank above
// every forward state so no transition out of them is possible.
var statusRank = map[string]int{
	OrderStatusPending:    1,
	OrderStatusConfirmed:  2,
	OrderStatusProcessing: 3,
	OrderStatusShipped:    4,
	OrderStatusDelivered:  5,
	OrderStatusCancelled:  6,
	OrderStatusRefunded:   6,
}

// IsTerminalStatus reports whether no further transitions are modeled.
func IsTerminalStatus(status string) bool {
	switch status {
	case OrderStatusCancelled, OrderStatusRefunded, OrderStatusDelivered:
		return true
	}
	return false
}

// CanTransition reports whether moving from -> to respects the forward-only
// state machine. CANCELLED is reachable from any non-terminal state;
// REFUNDED eligibility (paymentStatus=PAID) is enforced by the caller.
func CanTransition(from, to string) bool {
	if from == to {
		return false
	}
	if IsTerminalStatus(from) {
		return false
	}
	if to == OrderStatusCancelled || to == OrderStatusRefunded {
		return true
	}
	fr, ok := statusRank[from]
	if !ok {
		return false
	}
	tr, ok := statusRank[to]
	if !ok {
		return false
	}
	return tr > fr
}
