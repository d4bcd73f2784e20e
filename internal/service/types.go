package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"commerce-core/internal/gateway"
	"commerce-core/internal/models"
	"commerce-core/internal/pricing"
	"commerce-core/internal/store"
	"commerce-core/internal/upload"

	"github.com/google/uuid"
)

// Orchestrator-level failures.
var (
	ErrOrderNotFound             = errors.New("order not found")
	ErrPaymentVerificationFailed = errors.New("payment verification failed")
	ErrRefundNotEligible         = errors.New("order not eligible for refund")
	ErrInvalidTransition         = errors.New("invalid status transition")
)

// Pricer is the quote surface the orchestrator re-verifies totals with.
type Pricer interface {
	Quote(ctx context.Context, items []pricing.CartItem, couponCode string) (*pricing.Quote, error)
}

// OrderStore is the persistence surface the orchestrator drives. *store.Store
// implements it; tests substitute fakes.
type OrderStore interface {
	CreateOrderAggregate(ctx context.Context, order *models.Order, commitInventory bool, trackingNote string) error
	AttachMerchantTxID(ctx context.Context, orderID int64, merchantTxID string) error
	GetOrderByID(ctx context.Context, id int64) (*models.Order, error)
	GetOrderByNumber(ctx context.Context, orderNumber string) (*models.Order, error)
	GetOrderByMerchantTxID(ctx context.Context, merchantTxID string) (*models.Order, error)
	LoadOrderRelations(ctx context.Context, order *models.Order) error
	GetOrdersByUserID(ctx context.Context, userID int64) ([]models.Order, error)
	ListOrdersByStatus(ctx context.Context, status string, limit int) ([]models.Order, error)
	OrderStats(ctx context.Context) ([]store.StatusStat, error)
	FinalizeRedirectPayment(ctx context.Context, merchantTxID, gatewayTxID, code, message string) (*models.Order, error)
	RecordPaymentFailure(ctx context.Context, merchantTxID, code, message string) (bool, error)
	RecordCallbackDiagnostics(ctx context.Context, merchantTxID, code, message string) error
	TransitionStatus(ctx context.Context, orderID int64, from, to, note, location string) error
	UpdateTrackingDetails(ctx context.Context, orderID int64, carrier, trackingNumber, trackingURL string, estimatedDelivery *time.Time) error
	RefundOrder(ctx context.Context, orderID int64, refundID, note string) error
	MarkCODCollected(ctx context.Context, orderID int64) error
	ListExpiredPendingIDs(ctx context.Context, cutoff time.Time) ([]int64, error)
	CancelPendingOrder(ctx context.Context, orderID int64, note string) error
}

// CheckoutProcessor is the synchronous-confirmation gateway capability set.
type CheckoutProcessor interface {
	CreateIntent(ctx context.Context, amount float64, currency, receipt string) (*gateway.Intent, error)
	VerifySignature(gatewayOrderID, gatewayPaymentID, signature string) bool
	Refund(ctx context.Context, gatewayPaymentID string, amount float64) (*gateway.RefundResult, error)
}

// RedirectProcessor is the asynchronous-redirect gateway capability set.
type RedirectProcessor interface {
	InitiatePayment(ctx context.Context, merchantTxID string, amount float64, userID int64, redirectURL, callbackURL string) (*gateway.Redirect, error)
	CheckStatus(ctx context.Context, merchantTxID string) (*gateway.StatusResult, error)
	Refund(ctx context.Context, originalTxID string, amount float64, idempotencyKey string) (*gateway.RefundResult, error)
}

// Uploader stages personalization assets before any database write.
type Uploader interface {
	UploadMany(ctx context.Context, groups []upload.ImageGroup, destinationHint string) ([]models.CustomImage, error)
}

// Publisher emits post-commit notification events.
type Publisher interface {
	PublishOrderConfirmed(ctx context.Context, event *models.OrderConfirmedEvent) error
	PublishStatusChanged(ctx context.Context, event *models.OrderStatusChangedEvent) error
	PublishOrderRefunded(ctx context.Context, event *models.OrderRefundedEvent) error
}

// CallbackGuard sheds duplicate callback work and remembers refund
// idempotency keys. Implemented by the redis client; a nil guard is allowed
// because the database transitions stay authoritative.
type CallbackGuard interface {
	ClaimCallback(ctx context.Context, merchantTxID string, ttl time.Duration) (bool, error)
	ReleaseCallback(ctx context.Context, merchantTxID string) error
	StoreRefundKey(ctx context.Context, orderID int64, key string, ttl time.Duration) error
	GetRefundKey(ctx context.Context, orderID int64) (string, error)
}

// ShippingInfo is the shipping snapshot captured at order time. All fields
// are required at the boundary.
type ShippingInfo struct {
	Name    string `json:"name" binding:"required"`
	Email   string `json:"email" binding:"required,email"`
	Phone   string `json:"phone" binding:"required"`
	Address string `json:"address" binding:"required"`
	City    string `json:"city" binding:"required"`
	State   string `json:"state" binding:"required"`
	Pincode string `json:"pincode" binding:"required"`
}

// CheckoutRequest is the shared cart + shipping payload for every
// order-creation path.
type CheckoutRequest struct {
	UserID     int64               `json:"user_id" binding:"required"`
	Shipping   ShippingInfo        `json:"shipping" binding:"required"`
	Items      []pricing.CartItem  `json:"items" binding:"required,min=1,dive"`
	CouponCode string              `json:"coupon_code,omitempty"`
	Images     []upload.ImageGroup `json:"images,omitempty" binding:"omitempty,dive"`
}

// VerifyRequest round-trips the quote with the synchronous gateway's three
// correlation values. The client-visible total is never trusted; totals are
// recomputed server-side.
type VerifyRequest struct {
	CheckoutRequest
	OrderNumber      string `json:"order_number" binding:"required"`
	GatewayOrderID   string `json:"gateway_order_id" binding:"required"`
	GatewayPaymentID string `json:"gateway_payment_id" binding:"required"`
	Signature        string `json:"signature" binding:"required"`
}

// RedirectRequest adds the URLs the asynchronous gateway needs.
type RedirectRequest struct {
	CheckoutRequest
	RedirectURL string `json:"redirect_url" binding:"required"`
	CallbackURL string `json:"callback_url" binding:"required"`
}

// CheckoutIntent is the unsaved pending-order payload returned by
// quote-and-initiate. Nothing has been persisted when this is returned.
type CheckoutIntent struct {
	OrderNumber    string         `json:"order_number"`
	GatewayOrderID string         `json:"gateway_order_id"`
	Currency       string         `json:"currency"`
	Quote          *pricing.Quote `json:"quote"`
}

// RefundRequest drives process-refund. Amount defaults to the full total.
type RefundRequest struct {
	Amount float64 `json:"amount,omitempty"`
	Reason string  `json:"reason" binding:"required"`
}

// TrackingUpdate carries post-shipment tracking details.
type TrackingUpdate struct {
	Carrier           string     `json:"carrier" binding:"required"`
	TrackingNumber    string     `json:"tracking_number" binding:"required"`
	TrackingURL       string     `json:"tracking_url,omitempty"`
	EstimatedDelivery *time.Time `json:"estimated_delivery,omitempty"`
}

// paymentOutcome is what a gateway-specific path contributes to
// finalizeOrder; the stock/coupon/history logic is shared, not duplicated.
type paymentOutcome struct {
	method           string
	status           string
	paymentStatus    string
	gatewayOrderID   *string
	gatewayPaymentID *string
	gatewaySignature *string
	merchantTxID     *string
	trackingNote     string
}

// NewOrderNumber generates the human-facing order number. Generated at quote
// time and never reused, even for abandoned checkouts.
func NewOrderNumber() string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.New().String(), "-", "")[:6])
	return fmt.Sprintf("ORD-%d-%s", time.Now().UnixMilli(), suffix)
}
