package pricing

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"commerce-core/internal/models"
	"commerce-core/internal/util"

	"go.uber.org/zap"
)

// Pricing-time catalog failures. Callers classify with errors.Is.
var (
	ErrProductNotFound    = errors.New("product not found")
	ErrProductUnavailable = errors.New("product unavailable")
	ErrInsufficientStock  = errors.New("insufficient stock")
)

// Catalog is the read-only lookup surface the engine prices against.
// Lookups return (nil, nil) when the row is absent.
type Catalog interface {
	GetProduct(ctx context.Context, id int64) (*models.Product, error)
	GetVariant(ctx context.Context, id int64) (*models.ProductVariant, error)
	// GetActiveCouponByCode applies the active/date/usage filters; an
	// inapplicable code comes back as (nil, nil).
	GetActiveCouponByCode(ctx context.Context, code string, now time.Time) (*models.Coupon, error)
}

// CartItem is a validated cart line.
type CartItem struct {
	ProductID int64  `json:"product_id" binding:"required"`
	VariantID *int64 `json:"variant_id,omitempty"`
	Quantity  int    `json:"quantity" binding:"required,min=1"`
}

// QuoteLine freezes the resolved unit price for one cart line.
type QuoteLine struct {
	ProductID int64   `json:"product_id"`
	VariantID *int64  `json:"variant_id,omitempty"`
	Quantity  int     `json:"quantity"`
	UnitPrice float64 `json:"unit_price"`
	LineTotal float64 `json:"line_total"`
}

// Quote is a proposed total, not yet committed.
type Quote struct {
	Lines        []QuoteLine    `json:"lines"`
	Subtotal     float64        `json:"subtotal"`
	Discount     float64        `json:"discount"`
	ShippingCost float64        `json:"shipping_cost"`
	TotalAmount  float64        `json:"total_amount"`
	Coupon       *models.Coupon `json:"coupon,omitempty"`
}

// Engine resolves per-item prices, validates availability and stock, applies
// a coupon and computes totals. It performs no writes, so it is safe to call
// both for the upfront quote and for re-verification at confirmation time.
type Engine struct {
	catalog      Catalog
	shippingCost float64
	logger       *zap.Logger
	nowFunc      func() time.Time
}

// NewEngine creates a pricing engine. shippingCost is the flat shipping
// policy (currently zero, kept explicit so the policy can vary).
func NewEngine(catalog Catalog, shippingCost float64) *Engine {
	return &Engine{
		catalog:      catalog,
		shippingCost: shippingCost,
		logger:       util.GetLogger(),
		nowFunc:      time.Now,
	}
}

// Quote prices a cart. Any line failure fails the whole quote; a coupon that
// does not apply is silently ignored and the quote still succeeds.
func (e *Engine) Quote(ctx context.Context, items []CartItem, couponCode string) (*Quote, error) {
	if len(items) == 0 {
		return nil, fmt.Errorf("%w: empty cart", ErrProductNotFound)
	}

	q := &Quote{Lines: make([]QuoteLine, 0, len(items))}

	for _, item := range items {
		product, err := e.catalog.GetProduct(ctx, item.ProductID)
		if err != nil {
			return nil, fmt.Errorf("lookup product %d: %w", item.ProductID, err)
		}
		if product == nil {
			return nil, fmt.Errorf("%w: product %d", ErrProductNotFound, item.ProductID)
		}
		if product.Status != models.ProductStatusActive {
			return nil, fmt.Errorf("%w: product %d", ErrProductUnavailable, item.ProductID)
		}

		if item.VariantID != nil {
			variant, err := e.catalog.GetVariant(ctx, *item.VariantID)
			if err != nil {
				return nil, fmt.Errorf("lookup variant %d: %w", *item.VariantID, err)
			}
			if variant == nil {
				return nil, fmt.Errorf("%w: variant %d", ErrProductNotFound, *item.VariantID)
			}
			if variant.Stock < item.Quantity {
				return nil, fmt.Errorf("%w: product %d variant %d has %d, requested %d",
					ErrInsufficientStock, item.ProductID, *item.VariantID, variant.Stock, item.Quantity)
			}
		}

		unitPrice := product.NormalPrice
		if product.OfferPrice != nil {
			unitPrice = *product.OfferPrice
		}

		lineTotal := Round2(unitPrice * float64(item.Quantity))
		q.Lines = append(q.Lines, QuoteLine{
			ProductID: item.ProductID,
			VariantID: item.VariantID,
			Quantity:  item.Quantity,
			UnitPrice: unitPrice,
			LineTotal: lineTotal,
		})
		q.Subtotal += lineTotal
	}

	q.Subtotal = Round2(q.Subtotal)

	if couponCode != "" {
		coupon, err := e.catalog.GetActiveCouponByCode(ctx, couponCode, e.nowFunc())
		if err != nil {
			return nil, fmt.Errorf("lookup coupon %q: %w", couponCode, err)
		}
		if coupon != nil && q.Subtotal >= coupon.MinOrderAmount {
			q.Discount = discountFor(coupon, q.Subtotal)
			q.Coupon = coupon
		} else {
			e.logger.Debug("coupon not applied",
				zap.String("code", couponCode),
				zap.Float64("subtotal", q.Subtotal))
		}
	}

	q.ShippingCost = Round2(e.shippingCost)
	q.TotalAmount = Round2(q.Subtotal - q.Discount + q.ShippingCost)

	util.QuotesTotal.Inc()
	return q, nil
}

func discountFor(coupon *models.Coupon, subtotal float64) float64 {
	var discount float64
	switch coupon.DiscountType {
	case models.DiscountTypePercentage:
		discount = subtotal * coupon.DiscountValue / 100
		if coupon.MaxDiscount != nil && discount > *coupon.MaxDiscount {
			discount = *coupon.MaxDiscount
		}
	case models.DiscountTypeFixed:
		discount = coupon.DiscountValue
	}
	if discount > subtotal {
		discount = subtotal
	}
	return Round2(discount)
}

// Round2 rounds a monetary value to 2 decimal places, half away from zero.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}
