package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"commerce-core/internal/models"
)

// CreateOrderAggregate persists an Order together with its items and custom
// images in one transaction. When commitInventory is true (signature-verified
// and COD paths), variant stock is decremented and the coupon redeemed inside
// the same transaction; the asynchronous-initiate path defers both until the
// payment is confirmed.
func (s *Store) CreateOrderAggregate(ctx context.Context, order *models.Order, commitInventory bool, trackingNote string) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	query := `
		INSERT INTO orders (
			order_number, user_id,
			shipping_name, shipping_email, shipping_phone, shipping_address,
			shipping_city, shipping_state, shipping_pincode,
			subtotal, discount, shipping_cost, total_amount, coupon_id,
			status, payment_status, payment_method,
			gateway_order_id, gateway_payment_id, gateway_signature, merchant_tx_id
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14,
			$15, $16, $17, $18, $19, $20, $21
		)
		RETURNING id, created_at, updated_at`

	if err := tx.GetContext(ctx, order, query,
		order.OrderNumber, order.UserID,
		order.ShippingName, order.ShippingEmail, order.ShippingPhone, order.ShippingAddress,
		order.ShippingCity, order.ShippingState, order.ShippingPincode,
		order.Subtotal, order.Discount, order.ShippingCost, order.TotalAmount, order.CouponID,
		order.Status, order.PaymentStatus, order.PaymentMethod,
		order.GatewayOrderID, order.GatewayPaymentID, order.GatewaySignature, order.MerchantTxID,
	); err != nil {
		return fmt.Errorf("insert order: %w", err)
	}

	for i := range order.Items {
		item := &order.Items[i]
		item.OrderID = order.ID
		if err := tx.GetContext(ctx, &item.ID, `
			INSERT INTO order_items (order_id, product_id, variant_id, quantity, unit_price)
			VALUES ($1, $2, $3, $4, $5)
			RETURNING id`,
			item.OrderID, item.ProductID, item.VariantID, item.Quantity, item.UnitPrice,
		); err != nil {
			return fmt.Errorf("insert order item: %w", err)
		}
	}

	for i := range order.Images {
		img := &order.Images[i]
		img.OrderID = order.ID
		if err := tx.GetContext(ctx, &img.ID, `
			INSERT INTO custom_images (order_id, color, url, storage_key)
			VALUES ($1, $2, $3, $4)
			RETURNING id`,
			img.OrderID, img.Color, img.URL, img.Key,
		); err != nil {
			return fmt.Errorf("insert custom image: %w", err)
		}
	}

	if commitInventory {
		for _, item := range order.Items {
			if item.VariantID == nil {
				continue
			}
			if err := decrementStockTx(ctx, tx, *item.VariantID, item.Quantity); err != nil {
				return err
			}
		}
		if order.CouponID != nil {
			if err := redeemCouponTx(ctx, tx, *order.CouponID); err != nil {
				return err
			}
		}
	}

	if err := appendTrackingTx(ctx, tx, order.ID, order.Status, trackingNote, ""); err != nil {
		return err
	}

	return tx.Commit()
}

// AttachMerchantTxID stores the merchant-transaction id returned by the
// asynchronous gateway against a freshly created pending order.
func (s *Store) AttachMerchantTxID(ctx context.Context, orderID int64, merchantTxID string) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE orders SET merchant_tx_id = $1, updated_at = NOW() WHERE id = $2",
		merchantTxID, orderID)
	return err
}

// GetOrderByID retrieves an order row, (nil, nil) if absent.
func (s *Store) GetOrderByID(ctx context.Context, id int64) (*models.Order, error) {
	return s.getOrderWhere(ctx, "id = $1", id)
}

// GetOrderByNumber retrieves an order by its human-facing order number.
func (s *Store) GetOrderByNumber(ctx context.Context, orderNumber string) (*models.Order, error) {
	return s.getOrderWhere(ctx, "order_number = $1", orderNumber)
}

// GetOrderByMerchantTxID correlates an asynchronous-gateway callback.
func (s *Store) GetOrderByMerchantTxID(ctx context.Context, merchantTxID string) (*models.Order, error) {
	return s.getOrderWhere(ctx, "merchant_tx_id = $1", merchantTxID)
}

func (s *Store) getOrderWhere(ctx context.Context, where string, arg interface{}) (*models.Order, error) {
	var order models.Order
	err := s.db.GetContext(ctx, &order, "SELECT * FROM orders WHERE "+where, arg)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// LoadOrderRelations populates items, images and tracking history.
func (s *Store) LoadOrderRelations(ctx context.Context, order *models.Order) error {
	if err := s.db.SelectContext(ctx, &order.Items,
		"SELECT * FROM order_items WHERE order_id = $1 ORDER BY id", order.ID); err != nil {
		return fmt.Errorf("load order items: %w", err)
	}
	if err := s.db.SelectContext(ctx, &order.Images,
		"SELECT * FROM custom_images WHERE order_id = $1 ORDER BY id", order.ID); err != nil {
		return fmt.Errorf("load custom images: %w", err)
	}
	if err := s.db.SelectContext(ctx, &order.Tracking,
		"SELECT * FROM tracking_history WHERE order_id = $1 ORDER BY created_at, id", order.ID); err != nil {
		return fmt.Errorf("load tracking history: %w", err)
	}
	return nil
}

// GetOrdersByUserID retrieves orders for a user, newest first.
func (s *Store) GetOrdersByUserID(ctx context.Context, userID int64) ([]models.Order, error) {
	var orders []models.Order
	err := s.db.SelectContext(ctx, &orders,
		"SELECT * FROM orders WHERE user_id = $1 ORDER BY created_at DESC", userID)
	return orders, err
}

// ListOrdersByStatus retrieves orders in a lifecycle state, newest first.
func (s *Store) ListOrdersByStatus(ctx context.Context, status string, limit int) ([]models.Order, error) {
	var orders []models.Order
	err := s.db.SelectContext(ctx, &orders,
		"SELECT * FROM orders WHERE status = $1 ORDER BY created_at DESC LIMIT $2", status, limit)
	return orders, err
}

// StatusStat is one row of the admin stats aggregation.
type StatusStat struct {
	Status  string  `db:"status" json:"status"`
	Count   int64   `db:"count" json:"count"`
	Revenue float64 `db:"revenue" json:"revenue"`
}

// OrderStats aggregates order counts and revenue per lifecycle state.
func (s *Store) OrderStats(ctx context.Context) ([]StatusStat, error) {
	var stats []StatusStat
	err := s.db.SelectContext(ctx, &stats, `
		SELECT status, COUNT(*) AS count, COALESCE(SUM(total_amount), 0) AS revenue
		FROM orders GROUP BY status ORDER BY status`)
	return stats, err
}

// FinalizeRedirectPayment performs the conditional PENDING->PAID transition
// for an asynchronous-gateway success, running the stock decrement, coupon
// redemption and tracking append in the same transaction. The condition on
// payment_status makes duplicate callbacks harmless: the second caller gets
// ErrAlreadyFinalized and must not repeat side effects.
func (s *Store) FinalizeRedirectPayment(ctx context.Context, merchantTxID, gatewayTxID, code, message string) (*models.Order, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	var orderID int64
	err = tx.GetContext(ctx, &orderID, `
		UPDATE orders
		SET payment_status = $1, status = $2,
		    gateway_tx_id = $3, response_code = $4, response_message = $5,
		    updated_at = NOW()
		WHERE merchant_tx_id = $6 AND payment_status = $7
		RETURNING id`,
		models.PaymentStatusPaid, models.OrderStatusConfirmed,
		gatewayTxID, code, message,
		merchantTxID, models.PaymentStatusPending)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("merchant tx %s: %w", merchantTxID, ErrAlreadyFinalized)
	}
	if err != nil {
		return nil, fmt.Errorf("finalize payment: %w", err)
	}

	var order models.Order
	if err := tx.GetContext(ctx, &order, "SELECT * FROM orders WHERE id = $1", orderID); err != nil {
		return nil, fmt.Errorf("reload order: %w", err)
	}
	if err := tx.SelectContext(ctx, &order.Items,
		"SELECT * FROM order_items WHERE order_id = $1 ORDER BY id", orderID); err != nil {
		return nil, fmt.Errorf("load order items: %w", err)
	}

	for _, item := range order.Items {
		if item.VariantID == nil {
			continue
		}
		if err := decrementStockTx(ctx, tx, *item.VariantID, item.Quantity); err != nil {
			return nil, err
		}
	}
	if order.CouponID != nil {
		if err := redeemCouponTx(ctx, tx, *order.CouponID); err != nil {
			return nil, err
		}
	}

	if err := appendTrackingTx(ctx, tx, orderID, models.OrderStatusConfirmed,
		"Payment confirmed by gateway", ""); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return &order, nil
}

// RecordPaymentFailure marks payment FAILED for a still-pending order.
// The order's lifecycle status is left untouched. Returns false when the
// guard did not match (already finalized or failed).
func (s *Store) RecordPaymentFailure(ctx context.Context, merchantTxID, code, message string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE orders
		SET payment_status = $1, response_code = $2, response_message = $3, updated_at = NOW()
		WHERE merchant_tx_id = $4 AND payment_status = $5`,
		models.PaymentStatusFailed, code, message,
		merchantTxID, models.PaymentStatusPending)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// RecordCallbackDiagnostics persists the gateway's response code/message for
// a still-pending payment without any state transition.
func (s *Store) RecordCallbackDiagnostics(ctx context.Context, merchantTxID, code, message string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE orders
		SET response_code = $1, response_message = $2, updated_at = NOW()
		WHERE merchant_tx_id = $3 AND payment_status = $4`,
		code, message, merchantTxID, models.PaymentStatusPending)
	return err
}

// TransitionStatus moves an order from -> to conditionally, stamping
// shipped_at/delivered_at on first entry and appending tracking history.
// Returns ErrStatusConflict when a concurrent transition won.
func (s *Store) TransitionStatus(ctx context.Context, orderID int64, from, to, note, location string) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		UPDATE orders
		SET status = $1,
		    shipped_at = CASE WHEN $1 = 'SHIPPED' AND shipped_at IS NULL THEN NOW() ELSE shipped_at END,
		    delivered_at = CASE WHEN $1 = 'DELIVERED' AND delivered_at IS NULL THEN NOW() ELSE delivered_at END,
		    updated_at = NOW()
		WHERE id = $2 AND status = $3`,
		to, orderID, from)
	if err != nil {
		return fmt.Errorf("transition status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("order %d %s->%s: %w", orderID, from, to, ErrStatusConflict)
	}

	if err := appendTrackingTx(ctx, tx, orderID, to, note, location); err != nil {
		return err
	}
	return tx.Commit()
}

// UpdateTrackingDetails sets carrier/tracking fields after shipment.
func (s *Store) UpdateTrackingDetails(ctx context.Context, orderID int64, carrier, trackingNumber, trackingURL string, estimatedDelivery *time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE orders
		SET carrier = $1, tracking_number = $2, tracking_url = $3,
		    estimated_delivery = $4, updated_at = NOW()
		WHERE id = $5`,
		carrier, trackingNumber, trackingURL, estimatedDelivery, orderID)
	return err
}

// RefundOrder moves a paid order to REFUNDED, restores variant stock and
// appends tracking, all in one transaction. The paid/not-yet-refunded guard
// is conditional, so a racing second refund fails with ErrStatusConflict.
// Coupon usage is deliberately not returned.
func (s *Store) RefundOrder(ctx context.Context, orderID int64, refundID, note string) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		UPDATE orders
		SET status = $1, payment_status = $1, updated_at = NOW()
		WHERE id = $2 AND payment_status = $3 AND status <> $1`,
		models.OrderStatusRefunded, orderID, models.PaymentStatusPaid)
	if err != nil {
		return fmt.Errorf("mark refunded: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("order %d: %w", orderID, ErrStatusConflict)
	}

	var items []models.OrderItem
	if err := tx.SelectContext(ctx, &items,
		"SELECT * FROM order_items WHERE order_id = $1", orderID); err != nil {
		return fmt.Errorf("load order items: %w", err)
	}
	for _, item := range items {
		if item.VariantID == nil {
			continue
		}
		if err := restoreStockTx(ctx, tx, *item.VariantID, item.Quantity); err != nil {
			return err
		}
	}

	desc := note
	if refundID != "" {
		desc = fmt.Sprintf("%s (refund %s)", note, refundID)
	}
	if err := appendTrackingTx(ctx, tx, orderID, models.OrderStatusRefunded, desc, ""); err != nil {
		return err
	}
	return tx.Commit()
}

// MarkCODCollected flips a COD order's paymentStatus to PAID once cash is
// collected. Lifecycle status is untouched.
func (s *Store) MarkCODCollected(ctx context.Context, orderID int64) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE orders SET payment_status = $1, updated_at = NOW()
		WHERE id = $2 AND payment_method = $3 AND payment_status = $4`,
		models.PaymentStatusPaid, orderID, models.PaymentMethodCOD, models.PaymentStatusPending)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("order %d: %w", orderID, ErrAlreadyFinalized)
	}
	return nil
}

// ListExpiredPendingIDs returns pending orders created before the cutoff.
func (s *Store) ListExpiredPendingIDs(ctx context.Context, cutoff time.Time) ([]int64, error) {
	var ids []int64
	err := s.db.SelectContext(ctx, &ids,
		"SELECT id FROM orders WHERE status = $1 AND created_at < $2 ORDER BY id",
		models.OrderStatusPending, cutoff)
	return ids, err
}

// CancelPendingOrder cancels a stale pending order, marking an unpaid
// payment as FAILED. The PENDING guard keeps the sweep from racing a
// late-arriving payment confirmation.
func (s *Store) CancelPendingOrder(ctx context.Context, orderID int64, note string) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		UPDATE orders
		SET status = $1,
		    payment_status = CASE WHEN payment_status = $2 THEN $3 ELSE payment_status END,
		    updated_at = NOW()
		WHERE id = $4 AND status = $5`,
		models.OrderStatusCancelled,
		models.PaymentStatusPending, models.PaymentStatusFailed,
		orderID, models.OrderStatusPending)
	if err != nil {
		return fmt.Errorf("cancel pending order: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("order %d: %w", orderID, ErrStatusConflict)
	}

	if err := appendTrackingTx(ctx, tx, orderID, models.OrderStatusCancelled, note, ""); err != nil {
		return err
	}
	return tx.Commit()
}
