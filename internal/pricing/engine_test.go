package pricing

import (
	"context"
	"testing"
	"time"

	"commerce-core/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCatalog struct {
	products map[int64]*models.Product
	variants map[int64]*models.ProductVariant
	coupons  map[string]*models.Coupon
}

func (f *fakeCatalog) GetProduct(_ context.Context, id int64) (*models.Product, error) {
	return f.products[id], nil
}

func (f *fakeCatalog) GetVariant(_ context.Context, id int64) (*models.ProductVariant, error) {
	return f.variants[id], nil
}

func (f *fakeCatalog) GetActiveCouponByCode(_ context.Context, code string, now time.Time) (*models.Coupon, error) {
	c := f.coupons[code]
	if c == nil {
		return nil, nil
	}
	if !c.IsActive || now.Before(c.ValidFrom) || now.After(c.ValidUntil) {
		return nil, nil
	}
	if c.UsageLimit != nil && c.UsedCount >= *c.UsageLimit {
		return nil, nil
	}
	return c, nil
}

func f64(v float64) *float64 { return &v }
func i64(v int64) *int64     { return &v }

func testCatalog() *fakeCatalog {
	return &fakeCatalog{
		products: map[int64]*models.Product{
			1: {ID: 1, Name: "Mug", NormalPrice: 499, OfferPrice: f64(399), Status: models.ProductStatusActive},
			2: {ID: 2, Name: "Shirt", NormalPrice: 999, Status: models.ProductStatusActive},
			3: {ID: 3, Name: "Poster", NormalPrice: 199, Status: models.ProductStatusInactive},
		},
		variants: map[int64]*models.ProductVariant{
			10: {ID: 10, ProductID: 2, Stock: 5},
			11: {ID: 11, ProductID: 2, Stock: 0},
		},
		coupons: map[string]*models.Coupon{
			"SAVE10": {
				ID: 1, Code: "SAVE10",
				DiscountType: models.DiscountTypePercentage, DiscountValue: 10,
				MinOrderAmount: 500, MaxDiscount: f64(150),
				ValidFrom: time.Now().Add(-time.Hour), ValidUntil: time.Now().Add(time.Hour),
				IsActive: true,
			},
			"FLAT50": {
				ID: 2, Code: "FLAT50",
				DiscountType: models.DiscountTypeFixed, DiscountValue: 50,
				MinOrderAmount: 0,
				ValidFrom:      time.Now().Add(-time.Hour), ValidUntil: time.Now().Add(time.Hour),
				IsActive: true,
			},
			"EXPIRED": {
				ID: 3, Code: "EXPIRED",
				DiscountType: models.DiscountTypePercentage, DiscountValue: 20,
				ValidFrom: time.Now().Add(-48 * time.Hour), ValidUntil: time.Now().Add(-24 * time.Hour),
				IsActive:  true,
			},
		},
	}
}

func TestQuoteUsesOfferPriceWhenPresent(t *testing.T) {
	e := NewEngine(testCatalog(), 0)

	q, err := e.Quote(context.Background(), []CartItem{
		{ProductID: 1, Quantity: 2},
		{ProductID: 2, Quantity: 1},
	}, "")
	require.NoError(t, err)

	assert.Equal(t, 399.0, q.Lines[0].UnitPrice)
	assert.Equal(t, 798.0, q.Lines[0].LineTotal)
	assert.Equal(t, 999.0, q.Lines[1].UnitPrice)
	assert.Equal(t, 1797.0, q.Subtotal)
	assert.Equal(t, 1797.0, q.TotalAmount)
}

func TestQuotePercentageCouponCappedAtMaxDiscount(t *testing.T) {
	e := NewEngine(testCatalog(), 0)

	// 10% of 1998 = 199.80, capped at 150.
	q, err := e.Quote(context.Background(), []CartItem{{ProductID: 2, Quantity: 2}}, "SAVE10")
	require.NoError(t, err)

	assert.Equal(t, 150.0, q.Discount)
	assert.Equal(t, 1848.0, q.TotalAmount)
	require.NotNil(t, q.Coupon)
	assert.Equal(t, "SAVE10", q.Coupon.Code)
}

func TestQuoteFixedCoupon(t *testing.T) {
	e := NewEngine(testCatalog(), 0)

	q, err := e.Quote(context.Background(), []CartItem{{ProductID: 1, Quantity: 1}}, "FLAT50")
	require.NoError(t, err)

	assert.Equal(t, 50.0, q.Discount)
	assert.Equal(t, 349.0, q.TotalAmount)
}

func TestQuoteCouponBelowMinimumIgnoredSilently(t *testing.T) {
	e := NewEngine(testCatalog(), 0)

	// Subtotal 399 < SAVE10's minimum of 500: quote succeeds, no discount.
	q, err := e.Quote(context.Background(), []CartItem{{ProductID: 1, Quantity: 1}}, "SAVE10")
	require.NoError(t, err)

	assert.Zero(t, q.Discount)
	assert.Nil(t, q.Coupon)
	assert.Equal(t, 399.0, q.TotalAmount)
}

func TestQuoteExpiredCouponIgnoredSilently(t *testing.T) {
	e := NewEngine(testCatalog(), 0)

	q, err := e.Quote(context.Background(), []CartItem{{ProductID: 2, Quantity: 1}}, "EXPIRED")
	require.NoError(t, err)

	assert.Zero(t, q.Discount)
	assert.Nil(t, q.Coupon)
}

func TestQuoteUnknownCouponIgnoredSilently(t *testing.T) {
	e := NewEngine(testCatalog(), 0)

	q, err := e.Quote(context.Background(), []CartItem{{ProductID: 2, Quantity: 1}}, "NOPE")
	require.NoError(t, err)

	assert.Zero(t, q.Discount)
}

func TestQuoteExhaustedCouponIgnoredSilently(t *testing.T) {
	catalog := testCatalog()
	limit := 3
	catalog.coupons["SAVE10"].UsageLimit = &limit
	catalog.coupons["SAVE10"].UsedCount = 3
	e := NewEngine(catalog, 0)

	q, err := e.Quote(context.Background(), []CartItem{{ProductID: 2, Quantity: 1}}, "SAVE10")
	require.NoError(t, err)

	assert.Zero(t, q.Discount)
}

func TestQuoteDiscountClampedToSubtotal(t *testing.T) {
	catalog := testCatalog()
	catalog.coupons["FLAT50"].DiscountValue = 10000
	e := NewEngine(catalog, 0)

	q, err := e.Quote(context.Background(), []CartItem{{ProductID: 1, Quantity: 1}}, "FLAT50")
	require.NoError(t, err)

	assert.Equal(t, q.Subtotal, q.Discount)
	assert.Zero(t, q.TotalAmount)
}

func TestQuoteUnknownProductFailsWholeQuote(t *testing.T) {
	e := NewEngine(testCatalog(), 0)

	_, err := e.Quote(context.Background(), []CartItem{
		{ProductID: 1, Quantity: 1},
		{ProductID: 999, Quantity: 1},
	}, "")
	assert.ErrorIs(t, err, ErrProductNotFound)
}

func TestQuoteInactiveProductFailsWholeQuote(t *testing.T) {
	e := NewEngine(testCatalog(), 0)

	_, err := e.Quote(context.Background(), []CartItem{{ProductID: 3, Quantity: 1}}, "")
	assert.ErrorIs(t, err, ErrProductUnavailable)
}

func TestQuoteInsufficientVariantStock(t *testing.T) {
	e := NewEngine(testCatalog(), 0)

	_, err := e.Quote(context.Background(), []CartItem{{ProductID: 2, VariantID: i64(10), Quantity: 6}}, "")
	assert.ErrorIs(t, err, ErrInsufficientStock)

	_, err = e.Quote(context.Background(), []CartItem{{ProductID: 2, VariantID: i64(11), Quantity: 1}}, "")
	assert.ErrorIs(t, err, ErrInsufficientStock)
}

func TestQuoteUnknownVariant(t *testing.T) {
	e := NewEngine(testCatalog(), 0)

	_, err := e.Quote(context.Background(), []CartItem{{ProductID: 2, VariantID: i64(999), Quantity: 1}}, "")
	assert.ErrorIs(t, err, ErrProductNotFound)
}

func TestQuoteEmptyCart(t *testing.T) {
	e := NewEngine(testCatalog(), 0)

	_, err := e.Quote(context.Background(), nil, "")
	assert.Error(t, err)
}

func TestQuoteAddsShippingCost(t *testing.T) {
	e := NewEngine(testCatalog(), 49)

	q, err := e.Quote(context.Background(), []CartItem{{ProductID: 1, Quantity: 1}}, "")
	require.NoError(t, err)

	assert.Equal(t, 49.0, q.ShippingCost)
	assert.Equal(t, 448.0, q.TotalAmount)
}

func TestQuoteRoundsToTwoDecimals(t *testing.T) {
	catalog := testCatalog()
	catalog.products[1].OfferPrice = f64(33.33)
	e := NewEngine(catalog, 0)

	q, err := e.Quote(context.Background(), []CartItem{{ProductID: 1, Quantity: 3}}, "")
	require.NoError(t, err)

	assert.Equal(t, 99.99, q.Subtotal)
	assert.Equal(t, 99.99, q.TotalAmount)
}

func TestQuoteIsDeterministic(t *testing.T) {
	e := NewEngine(testCatalog(), 0)
	items := []CartItem{{ProductID: 1, Quantity: 2}, {ProductID: 2, Quantity: 1}}

	q1, err := e.Quote(context.Background(), items, "SAVE10")
	require.NoError(t, err)
	q2, err := e.Quote(context.Background(), items, "SAVE10")
	require.NoError(t, err)

	assert.Equal(t, q1.TotalAmount, q2.TotalAmount)
	assert.Equal(t, q1.Discount, q2.Discount)
}

func TestRound2(t *testing.T) {
	assert.Equal(t, 10.56, Round2(10.556))
	assert.Equal(t, 10.55, Round2(10.554))
	assert.Equal(t, -10.56, Round2(-10.556))
}
