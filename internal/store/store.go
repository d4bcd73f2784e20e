package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"commerce-core/internal/models"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

// Conditional-write conflicts. These surface races the pre-transaction reads
// cannot close: callers treat them as late-breaking business failures.
var (
	// ErrStockConflict: the conditional decrement matched no row, meaning
	// stock fell below the requested quantity between quote and commit.
	ErrStockConflict = errors.New("stock changed, conditional decrement failed")
	// ErrCouponExhausted: used_count reached usage_limit concurrently.
	ErrCouponExhausted = errors.New("coupon usage limit reached")
	// ErrAlreadyFinalized: the PENDING guard on a payment transition failed.
	ErrAlreadyFinalized = errors.New("order payment already finalized")
	// ErrStatusConflict: a concurrent admin moved the order first.
	ErrStatusConflict = errors.New("order status changed concurrently")
)

type Store struct {
	db *sqlx.DB
}

// NewStore creates a new database store
func NewStore(databaseURL string) (*Store, error) {
	db, err := sqlx.Connect("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// GetDB returns the underlying database connection
func (s *Store) GetDB() *sqlx.DB {
	return s.db
}

// GetProduct retrieves a product by ID, (nil, nil) if absent.
func (s *Store) GetProduct(ctx context.Context, id int64) (*models.Product, error) {
	var product models.Product
	err := s.db.GetContext(ctx, &product, "SELECT * FROM products WHERE id = $1", id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &product, nil
}

// GetVariant retrieves a product variant by ID, (nil, nil) if absent.
func (s *Store) GetVariant(ctx context.Context, id int64) (*models.ProductVariant, error) {
	var variant models.ProductVariant
	err := s.db.GetContext(ctx, &variant, "SELECT * FROM product_variants WHERE id = $1", id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &variant, nil
}

// GetActiveCouponByCode retrieves a coupon applying the active, validity
// window and remaining-uses filters. Inapplicable codes return (nil, nil).
func (s *Store) GetActiveCouponByCode(ctx context.Context, code string, now time.Time) (*models.Coupon, error) {
	var coupon models.Coupon
	err := s.db.GetContext(ctx, &coupon, `
		SELECT * FROM coupons
		WHERE code = $1
		  AND is_active
		  AND valid_from <= $2 AND valid_until >= $2
		  AND (usage_limit IS NULL OR used_count < usage_limit)`,
		code, now)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &coupon, nil
}

// decrementStockTx atomically decrements variant stock. Zero rows affected
// means stock < quantity: the enclosing transaction must abort.
func decrementStockTx(ctx context.Context, tx *sqlx.Tx, variantID int64, quantity int) error {
	res, err := tx.ExecContext(ctx,
		"UPDATE product_variants SET stock = stock - $1 WHERE id = $2 AND stock >= $1",
		quantity, variantID)
	if err != nil {
		return fmt.Errorf("decrement stock for variant %d: %w", variantID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("variant %d: %w", variantID, ErrStockConflict)
	}
	return nil
}

// restoreStockTx is the inverse of decrementStockTx, used by refunds.
func restoreStockTx(ctx context.Context, tx *sqlx.Tx, variantID int64, quantity int) error {
	_, err := tx.ExecContext(ctx,
		"UPDATE product_variants SET stock = stock + $1 WHERE id = $2",
		quantity, variantID)
	if err != nil {
		return fmt.Errorf("restore stock for variant %d: %w", variantID, err)
	}
	return nil
}

// redeemCouponTx atomically increments used_count, racing correctly against
// usage_limit.
func redeemCouponTx(ctx context.Context, tx *sqlx.Tx, couponID int64) error {
	res, err := tx.ExecContext(ctx, `
		UPDATE coupons SET used_count = used_count + 1
		WHERE id = $1 AND is_active
		  AND (usage_limit IS NULL OR used_count < usage_limit)`,
		couponID)
	if err != nil {
		return fmt.Errorf("redeem coupon %d: %w", couponID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("coupon %d: %w", couponID, ErrCouponExhausted)
	}
	return nil
}

func appendTrackingTx(ctx context.Context, tx *sqlx.Tx, orderID int64, status, description, location string) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO tracking_history (order_id, status, description, location)
		VALUES ($1, $2, $3, $4)`,
		orderID, status, description, location)
	if err != nil {
		return fmt.Errorf("append tracking history: %w", err)
	}
	return nil
}
