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
	"commerce-core/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// OrderService is the order lifecycle orchestrator: it turns a priced cart,
// shipping info and a payment outcome into a persisted Order aggregate,
// mutates inventory and coupon counters transactionally, appends lifecycle
// history and emits notification events after commit.
type OrderService struct {
	store      OrderStore
	pricer     Pricer
	checkout   CheckoutProcessor
	redirect   RedirectProcessor
	uploader   Uploader
	publisher  Publisher
	guard      CallbackGuard
	logger     *zap.Logger
	currency   string
	pendingTTL time.Duration
	lockTTL    time.Duration
	nowFunc    func() time.Time
}

// NewOrderService wires the orchestrator. guard may be nil: the database's
// conditional transitions are the correctness mechanism either way.
func NewOrderService(
	st OrderStore,
	pricer Pricer,
	checkout CheckoutProcessor,
	redirect RedirectProcessor,
	uploader Uploader,
	publisher Publisher,
	guard CallbackGuard,
	currency string,
	pendingTTL time.Duration,
	lockTTL time.Duration,
) *OrderService {
	return &OrderService{
		store:      st,
		pricer:     pricer,
		checkout:   checkout,
		redirect:   redirect,
		uploader:   uploader,
		publisher:  publisher,
		guard:      guard,
		logger:     util.NamedLogger("order-service"),
		currency:   currency,
		pendingTTL: pendingTTL,
		lockTTL:    lockTTL,
		nowFunc:    time.Now,
	}
}

// QuoteTotals prices a cart without side effects.
func (s *OrderService) QuoteTotals(ctx context.Context, items []pricing.CartItem, couponCode string) (*pricing.Quote, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.QuoteTotals")
	defer span.End()
	return s.pricer.Quote(ctx, items, couponCode)
}

// QuoteAndInitiate prices the cart and registers a payment intent with the
// synchronous gateway. Nothing is persisted: abandoned checkouts leave no
// order rows behind.
func (s *OrderService) QuoteAndInitiate(ctx context.Context, req *CheckoutRequest) (*CheckoutIntent, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.QuoteAndInitiate")
	defer span.End()

	quote, err := s.pricer.Quote(ctx, req.Items, req.CouponCode)
	if err != nil {
		util.QuotesFailedTotal.WithLabelValues(quoteFailReason(err)).Inc()
		return nil, err
	}

	orderNumber := NewOrderNumber()

	intent, err := s.checkout.CreateIntent(ctx, quote.TotalAmount, s.currency, orderNumber)
	if err != nil {
		return nil, err
	}

	s.logger.Info("Checkout intent created",
		zap.String("order_number", orderNumber),
		zap.String("gateway_order_id", intent.GatewayOrderID),
		zap.Float64("total", quote.TotalAmount))

	return &CheckoutIntent{
		OrderNumber:    orderNumber,
		GatewayOrderID: intent.GatewayOrderID,
		Currency:       s.currency,
		Quote:          quote,
	}, nil
}

// VerifyAndCreate verifies the synchronous gateway's signature, recomputes
// totals server-side, and atomically creates the CONFIRMED/PAID order with
// its stock and coupon mutations. No order row exists on verification
// failure.
func (s *OrderService) VerifyAndCreate(ctx context.Context, req *VerifyRequest) (*models.Order, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.VerifyAndCreate")
	defer span.End()

	if !s.checkout.VerifySignature(req.GatewayOrderID, req.GatewayPaymentID, req.Signature) {
		s.logger.Warn("Payment signature mismatch",
			zap.String("gateway_order_id", req.GatewayOrderID))
		return nil, ErrPaymentVerificationFailed
	}

	outcome := &paymentOutcome{
		method:           models.PaymentMethodOnline,
		status:           models.OrderStatusConfirmed,
		paymentStatus:    models.PaymentStatusPaid,
		gatewayOrderID:   &req.GatewayOrderID,
		gatewayPaymentID: &req.GatewayPaymentID,
		gatewaySignature: &req.Signature,
		trackingNote:     "Order confirmed, payment verified",
	}
	return s.finalizeOrder(ctx, &req.CheckoutRequest, req.OrderNumber, outcome, true, "checkout")
}

// InitiateRedirect persists a PENDING/PENDING order, stores the
// merchant-transaction id against it, then asks the asynchronous gateway for
// redirect instructions. Stock and coupon mutations are deferred to payment
// confirmation.
func (s *OrderService) InitiateRedirect(ctx context.Context, req *RedirectRequest) (*gateway.Redirect, *models.Order, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.InitiateRedirect")
	defer span.End()

	quote, err := s.pricer.Quote(ctx, req.Items, req.CouponCode)
	if err != nil {
		util.QuotesFailedTotal.WithLabelValues(quoteFailReason(err)).Inc()
		return nil, nil, err
	}

	images, err := s.uploadImages(ctx, req.Images)
	if err != nil {
		return nil, nil, err
	}

	order := buildOrder(&req.CheckoutRequest, NewOrderNumber(), quote, images)
	order.Status = models.OrderStatusPending
	order.PaymentStatus = models.PaymentStatusPending
	order.PaymentMethod = models.PaymentMethodOnline

	if err := s.store.CreateOrderAggregate(ctx, order, false, "Order created, awaiting payment"); err != nil {
		util.OrdersFailedTotal.WithLabelValues("db_error").Inc()
		return nil, nil, fmt.Errorf("failed to create order: %w", err)
	}
	util.OrdersCreatedTotal.WithLabelValues("redirect").Inc()

	merchantTxID := gateway.NewMerchantTxID()
	if err := s.store.AttachMerchantTxID(ctx, order.ID, merchantTxID); err != nil {
		return nil, nil, fmt.Errorf("failed to store merchant tx id: %w", err)
	}
	order.MerchantTxID = &merchantTxID

	redirect, err := s.redirect.InitiatePayment(ctx, merchantTxID, order.TotalAmount, req.UserID, req.RedirectURL, req.CallbackURL)
	if err != nil {
		// The PENDING row stays behind; the sweeper cancels it if the
		// customer never retries.
		return nil, nil, err
	}

	s.logger.Info("Redirect payment initiated",
		zap.String("order_number", order.OrderNumber),
		zap.String("merchant_tx_id", merchantTxID))

	return redirect, order, nil
}

// HandleRedirectOutcome is the single convergence point for webhook
// callbacks and explicit status polls. The callback body is advisory: the
// authoritative state is always re-fetched from the gateway, and the
// PENDING->PAID transition is conditional in the database, so duplicate or
// racing deliveries produce exactly one stock decrement and coupon
// redemption.
func (s *OrderService) HandleRedirectOutcome(ctx context.Context, merchantTxID string) (*models.Order, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.HandleRedirectOutcome")
	defer span.End()

	claimed := true
	if s.guard != nil {
		var err error
		claimed, err = s.guard.ClaimCallback(ctx, merchantTxID, s.lockTTL)
		if err != nil {
			// Redis being down must not stall payment confirmation.
			s.logger.Warn("Callback guard unavailable", zap.Error(err))
			claimed = true
		}
	}
	if !claimed {
		util.DuplicateCallbacksTotal.Inc()
		return s.loadOrderByMerchantTxID(ctx, merchantTxID)
	}

	status, err := s.redirect.CheckStatus(ctx, merchantTxID)
	if err != nil {
		if s.guard != nil {
			_ = s.guard.ReleaseCallback(ctx, merchantTxID)
		}
		return nil, err
	}

	order, err := s.store.GetOrderByMerchantTxID(ctx, merchantTxID)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, fmt.Errorf("merchant tx %s: %w", merchantTxID, ErrOrderNotFound)
	}

	switch status.Code {
	case gateway.StatusSuccess:
		finalized, err := s.store.FinalizeRedirectPayment(ctx, merchantTxID, status.GatewayTxID, status.Code, status.Message)
		if err != nil {
			if errors.Is(err, store.ErrAlreadyFinalized) {
				util.DuplicateCallbacksTotal.Inc()
				util.CallbacksTotal.WithLabelValues("duplicate").Inc()
				return s.loadOrderByMerchantTxID(ctx, merchantTxID)
			}
			if errors.Is(err, store.ErrStockConflict) {
				util.OversellAbortsTotal.Inc()
			}
			return nil, err
		}
		util.CallbacksTotal.WithLabelValues("success").Inc()
		s.publishConfirmed(ctx, finalized)
		return s.loadOrderByMerchantTxID(ctx, merchantTxID)

	case gateway.StatusError, gateway.StatusFailed:
		updated, err := s.store.RecordPaymentFailure(ctx, merchantTxID, status.Code, status.Message)
		if err != nil {
			return nil, err
		}
		if updated {
			util.CallbacksTotal.WithLabelValues("failed").Inc()
			s.logger.Warn("Payment failed",
				zap.String("merchant_tx_id", merchantTxID),
				zap.String("code", status.Code))
		}
		return s.loadOrderByMerchantTxID(ctx, merchantTxID)

	default:
		// Still pending at the gateway: record diagnostics, no transition.
		if err := s.store.RecordCallbackDiagnostics(ctx, merchantTxID, status.Code, status.Message); err != nil {
			return nil, err
		}
		util.CallbacksTotal.WithLabelValues("pending").Inc()
		if s.guard != nil {
			// Allow a later delivery to re-check.
			_ = s.guard.ReleaseCallback(ctx, merchantTxID)
		}
		return s.loadOrderByMerchantTxID(ctx, merchantTxID)
	}
}

// CreateCODOrder persists a cash-on-delivery order as CONFIRMED/PENDING,
// committing stock and coupon at placement time.
func (s *OrderService) CreateCODOrder(ctx context.Context, req *CheckoutRequest) (*models.Order, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.CreateCODOrder")
	defer span.End()

	outcome := &paymentOutcome{
		method:        models.PaymentMethodCOD,
		status:        models.OrderStatusConfirmed,
		paymentStatus: models.PaymentStatusPending,
		trackingNote:  "Order confirmed, cash on delivery",
	}
	return s.finalizeOrder(ctx, req, NewOrderNumber(), outcome, true, "cod")
}

// finalizeOrder is the single shared path turning a priced cart + shipping
// info + payment outcome into a committed aggregate. Gateway-specific code
// only produces the outcome; stock/coupon/history logic lives here once.
func (s *OrderService) finalizeOrder(ctx context.Context, req *CheckoutRequest, orderNumber string, outcome *paymentOutcome, commitInventory bool, path string) (*models.Order, error) {
	quote, err := s.pricer.Quote(ctx, req.Items, req.CouponCode)
	if err != nil {
		util.QuotesFailedTotal.WithLabelValues(quoteFailReason(err)).Inc()
		return nil, err
	}

	images, err := s.uploadImages(ctx, req.Images)
	if err != nil {
		return nil, err
	}

	order := buildOrder(req, orderNumber, quote, images)
	order.Status = outcome.status
	order.PaymentStatus = outcome.paymentStatus
	order.PaymentMethod = outcome.method
	order.GatewayOrderID = outcome.gatewayOrderID
	order.GatewayPaymentID = outcome.gatewayPaymentID
	order.GatewaySignature = outcome.gatewaySignature
	order.MerchantTxID = outcome.merchantTxID

	if err := s.store.CreateOrderAggregate(ctx, order, commitInventory, outcome.trackingNote); err != nil {
		if errors.Is(err, store.ErrStockConflict) {
			util.OversellAbortsTotal.Inc()
			util.OrdersFailedTotal.WithLabelValues("oversell").Inc()
			return nil, fmt.Errorf("%w: stock changed during checkout", pricing.ErrInsufficientStock)
		}
		if errors.Is(err, store.ErrCouponExhausted) {
			util.OrdersFailedTotal.WithLabelValues("coupon_exhausted").Inc()
			return nil, err
		}
		util.OrdersFailedTotal.WithLabelValues("db_error").Inc()
		return nil, fmt.Errorf("failed to create order: %w", err)
	}

	util.OrdersCreatedTotal.WithLabelValues(path).Inc()
	s.logger.Info("Order created",
		zap.String("order_number", order.OrderNumber),
		zap.String("path", path),
		zap.Float64("total", order.TotalAmount))

	s.publishConfirmed(ctx, order)

	if err := s.store.LoadOrderRelations(ctx, order); err != nil {
		return nil, err
	}
	return order, nil
}

// ProcessRefund refunds a paid order through the gateway that captured it,
// restores stock, and moves the order to REFUNDED. Gateway failure aborts the
// whole refund with no state change. Coupon usage is not returned.
func (s *OrderService) ProcessRefund(ctx context.Context, orderID int64, req *RefundRequest) (*gateway.RefundResult, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.ProcessRefund")
	defer span.End()

	order, err := s.store.GetOrderByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, fmt.Errorf("order %d: %w", orderID, ErrOrderNotFound)
	}

	if order.PaymentStatus != models.PaymentStatusPaid {
		return nil, fmt.Errorf("%w: payment status is %s", ErrRefundNotEligible, order.PaymentStatus)
	}
	if order.Status == models.OrderStatusRefunded {
		return nil, fmt.Errorf("%w: already refunded", ErrRefundNotEligible)
	}

	amount := req.Amount
	if amount <= 0 {
		amount = order.TotalAmount
	}
	if amount > order.TotalAmount {
		return nil, fmt.Errorf("%w: refund exceeds order total", ErrRefundNotEligible)
	}

	var result *gateway.RefundResult
	switch {
	case order.GatewayPaymentID != nil && *order.GatewayPaymentID != "":
		result, err = s.checkout.Refund(ctx, *order.GatewayPaymentID, amount)
	case order.GatewayTxID != nil && *order.GatewayTxID != "":
		result, err = s.redirect.Refund(ctx, *order.GatewayTxID, amount, s.refundKey(ctx, order))
	default:
		return nil, fmt.Errorf("%w: no captured transaction on record", ErrRefundNotEligible)
	}
	if err != nil {
		util.RefundsTotal.WithLabelValues("gateway_error").Inc()
		return nil, err
	}

	if err := s.store.RefundOrder(ctx, orderID, result.RefundID, req.Reason); err != nil {
		if errors.Is(err, store.ErrStatusConflict) {
			return nil, fmt.Errorf("%w: refunded concurrently", ErrRefundNotEligible)
		}
		return nil, err
	}
	util.RefundsTotal.WithLabelValues("ok").Inc()

	s.logger.Info("Refund processed",
		zap.String("order_number", order.OrderNumber),
		zap.Float64("amount", amount),
		zap.String("refund_id", result.RefundID))

	event := &models.OrderRefundedEvent{
		BaseEvent:    newBaseEvent(models.EventTypeOrderRefunded),
		OrderID:      order.ID,
		OrderNumber:  order.OrderNumber,
		Email:        order.ShippingEmail,
		RefundAmount: amount,
		RefundID:     result.RefundID,
		Reason:       req.Reason,
	}
	if err := s.publisher.PublishOrderRefunded(ctx, event); err != nil {
		s.logger.Error("Failed to publish OrderRefunded event", zap.Error(err))
	}

	return result, nil
}

// refundKey derives the idempotency key for an order's refund, reusing a
// previously stored key so retries hit the gateway with the same one.
func (s *OrderService) refundKey(ctx context.Context, order *models.Order) string {
	if s.guard != nil {
		if key, err := s.guard.GetRefundKey(ctx, order.ID); err == nil && key != "" {
			return key
		}
		key := "RF" + strings.ReplaceAll(uuid.New().String(), "-", "")[:20]
		if err := s.guard.StoreRefundKey(ctx, order.ID, key, 7*24*time.Hour); err == nil {
			return key
		}
	}
	// Deterministic fallback keeps retries idempotent without redis.
	return "RF-" + order.OrderNumber
}

// UpdateStatus performs an admin-driven forward transition, appends tracking
// history and emits a status-change notification.
func (s *OrderService) UpdateStatus(ctx context.Context, orderID int64, newStatus, note, location string) (*models.Order, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.UpdateStatus")
	defer span.End()

	order, err := s.store.GetOrderByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, fmt.Errorf("order %d: %w", orderID, ErrOrderNotFound)
	}
	if newStatus == models.OrderStatusRefunded {
		return nil, fmt.Errorf("%w: refunds go through the refund operation", ErrInvalidTransition)
	}
	if !models.CanTransition(order.Status, newStatus) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, order.Status, newStatus)
	}

	if note == "" {
		note = fmt.Sprintf("Status changed to %s", newStatus)
	}
	if err := s.store.TransitionStatus(ctx, orderID, order.Status, newStatus, note, location); err != nil {
		if errors.Is(err, store.ErrStatusConflict) {
			return nil, fmt.Errorf("%w: order moved concurrently", ErrInvalidTransition)
		}
		return nil, err
	}

	event := &models.OrderStatusChangedEvent{
		BaseEvent:   newBaseEvent(models.EventTypeOrderStatusChanged),
		OrderID:     order.ID,
		OrderNumber: order.OrderNumber,
		Email:       order.ShippingEmail,
		OldStatus:   order.Status,
		NewStatus:   newStatus,
	}
	if err := s.publisher.PublishStatusChanged(ctx, event); err != nil {
		s.logger.Error("Failed to publish OrderStatusChanged event", zap.Error(err))
	}

	return s.GetOrder(ctx, orderID)
}

// UpdateTracking sets carrier/tracking details on a shipped order.
func (s *OrderService) UpdateTracking(ctx context.Context, orderID int64, upd *TrackingUpdate) error {
	order, err := s.store.GetOrderByID(ctx, orderID)
	if err != nil {
		return err
	}
	if order == nil {
		return fmt.Errorf("order %d: %w", orderID, ErrOrderNotFound)
	}
	return s.store.UpdateTrackingDetails(ctx, orderID, upd.Carrier, upd.TrackingNumber, upd.TrackingURL, upd.EstimatedDelivery)
}

// MarkCODCollected records cash collection for a COD order.
func (s *OrderService) MarkCODCollected(ctx context.Context, orderID int64) error {
	err := s.store.MarkCODCollected(ctx, orderID)
	if errors.Is(err, store.ErrAlreadyFinalized) {
		return fmt.Errorf("%w: not a pending COD payment", ErrRefundNotEligible)
	}
	return err
}

// CancelExpiredPendingOrders sweeps pending orders older than the configured
// window into CANCELLED. Invocation cadence belongs to the caller.
func (s *OrderService) CancelExpiredPendingOrders(ctx context.Context) (int, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.CancelExpiredPendingOrders")
	defer span.End()

	cutoff := s.nowFunc().Add(-s.pendingTTL)
	ids, err := s.store.ListExpiredPendingIDs(ctx, cutoff)
	if err != nil {
		return 0, err
	}

	cancelled := 0
	for _, id := range ids {
		if err := s.store.CancelPendingOrder(ctx, id, "Cancelled: payment not completed in time"); err != nil {
			if errors.Is(err, store.ErrStatusConflict) {
				// A payment confirmation won the race; leave it be.
				continue
			}
			s.logger.Error("Failed to cancel expired order",
				zap.Int64("order_id", id),
				zap.Error(err))
			continue
		}
		cancelled++
		util.PendingOrdersSweptTotal.Inc()
	}

	if cancelled > 0 {
		s.logger.Info("Expired pending orders cancelled", zap.Int("count", cancelled))
	}
	return cancelled, nil
}

// GetOrder retrieves an order with all relations loaded.
func (s *OrderService) GetOrder(ctx context.Context, orderID int64) (*models.Order, error) {
	order, err := s.store.GetOrderByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, fmt.Errorf("order %d: %w", orderID, ErrOrderNotFound)
	}
	if err := s.store.LoadOrderRelations(ctx, order); err != nil {
		return nil, err
	}
	return order, nil
}

// GetOrderByNumber retrieves an order by its order number with relations.
func (s *OrderService) GetOrderByNumber(ctx context.Context, orderNumber string) (*models.Order, error) {
	order, err := s.store.GetOrderByNumber(ctx, orderNumber)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, fmt.Errorf("order %s: %w", orderNumber, ErrOrderNotFound)
	}
	if err := s.store.LoadOrderRelations(ctx, order); err != nil {
		return nil, err
	}
	return order, nil
}

// ListUserOrders retrieves a user's orders, newest first.
func (s *OrderService) ListUserOrders(ctx context.Context, userID int64) ([]models.Order, error) {
	return s.store.GetOrdersByUserID(ctx, userID)
}

// ListOrdersByStatus retrieves orders in a lifecycle state.
func (s *OrderService) ListOrdersByStatus(ctx context.Context, status string, limit int) ([]models.Order, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	return s.store.ListOrdersByStatus(ctx, status, limit)
}

// Stats aggregates order counts and revenue per status.
func (s *OrderService) Stats(ctx context.Context) ([]store.StatusStat, error) {
	return s.store.OrderStats(ctx)
}

// uploadImages stages personalization assets before any database write. An
// order with no custom assets skips the upload service entirely.
func (s *OrderService) uploadImages(ctx context.Context, groups []upload.ImageGroup) ([]models.CustomImage, error) {
	if len(groups) == 0 {
		return nil, nil
	}
	images, err := s.uploader.UploadMany(ctx, groups, "orders")
	if err != nil {
		util.OrdersFailedTotal.WithLabelValues("upload_failed").Inc()
		return nil, err
	}
	return images, nil
}

func (s *OrderService) loadOrderByMerchantTxID(ctx context.Context, merchantTxID string) (*models.Order, error) {
	order, err := s.store.GetOrderByMerchantTxID(ctx, merchantTxID)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, fmt.Errorf("merchant tx %s: %w", merchantTxID, ErrOrderNotFound)
	}
	if err := s.store.LoadOrderRelations(ctx, order); err != nil {
		return nil, err
	}
	return order, nil
}

func (s *OrderService) publishConfirmed(ctx context.Context, order *models.Order) {
	items := make([]models.OrderItemData, 0, len(order.Items))
	for _, item := range order.Items {
		items = append(items, models.OrderItemData{
			ProductID: item.ProductID,
			VariantID: item.VariantID,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
		})
	}

	event := &models.OrderConfirmedEvent{
		BaseEvent:     newBaseEvent(models.EventTypeOrderConfirmed),
		OrderID:       order.ID,
		OrderNumber:   order.OrderNumber,
		UserID:        order.UserID,
		Email:         order.ShippingEmail,
		TotalAmount:   order.TotalAmount,
		PaymentMethod: order.PaymentMethod,
		Items:         items,
	}
	if err := s.publisher.PublishOrderConfirmed(ctx, event); err != nil {
		s.logger.Error("Failed to publish OrderConfirmed event",
			zap.Int64("order_id", order.ID),
			zap.Error(err))
	}
}

func buildOrder(req *CheckoutRequest, orderNumber string, quote *pricing.Quote, images []models.CustomImage) *models.Order {
	order := &models.Order{
		OrderNumber:     orderNumber,
		UserID:          req.UserID,
		ShippingName:    req.Shipping.Name,
		ShippingEmail:   req.Shipping.Email,
		ShippingPhone:   req.Shipping.Phone,
		ShippingAddress: req.Shipping.Address,
		ShippingCity:    req.Shipping.City,
		ShippingState:   req.Shipping.State,
		ShippingPincode: req.Shipping.Pincode,
		Subtotal:        quote.Subtotal,
		Discount:        quote.Discount,
		ShippingCost:    quote.ShippingCost,
		TotalAmount:     quote.TotalAmount,
		Images:          images,
	}
	if quote.Coupon != nil {
		order.CouponID = &quote.Coupon.ID
	}
	order.Items = make([]models.OrderItem, 0, len(quote.Lines))
	for _, line := range quote.Lines {
		order.Items = append(order.Items, models.OrderItem{
			ProductID: line.ProductID,
			VariantID: line.VariantID,
			Quantity:  line.Quantity,
			UnitPrice: line.UnitPrice,
		})
	}
	return order
}

func newBaseEvent(eventType string) models.BaseEvent {
	return models.BaseEvent{
		EventID:   uuid.New().String(),
		EventType: eventType,
		Timestamp: time.Now(),
	}
}

func quoteFailReason(err error) string {
	switch {
	case errors.Is(err, pricing.ErrProductNotFound):
		return "product_not_found"
	case errors.Is(err, pricing.ErrProductUnavailable):
		return "product_unavailable"
	case errors.Is(err, pricing.ErrInsufficientStock):
		return "insufficient_stock"
	default:
		return "error"
	}
}
