package store

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"order-lifecycle/internal/models"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

//go:embed schema.sql
var schemaSQL string

var (
	// ErrNotFound is returned when a row does not exist
	ErrNotFound = errors.New("store: not found")
	// ErrInsufficientStock is returned when an adjustment would drive stock negative
	ErrInsufficientStock = errors.New("store: insufficient stock")
	// ErrStatusMismatch is returned when a conditional status update matched no row
	ErrStatusMismatch = errors.New("store: order status changed concurrently")
)

type Store struct {
	db *sqlx.DB
}

type querier interface {
	sqlx.ExtContext
	GetContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	SelectContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
}

type txKey struct{}

// NewStore creates a new database store
func NewStore(databaseURL string, maxOpen, maxIdle int) (*Store, error) {
	db, err := sqlx.Connect("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(maxOpen)
	db.SetMaxIdleConns(maxIdle)
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

// Ping checks the database connection
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Migrate applies the embedded schema; every statement is idempotent
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}

// RunInTx runs fn inside a transaction carried by the context. Nested calls
// join the outer transaction.
func (s *Store) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(txKey{}).(*sqlx.Tx); ok {
		return fn(ctx)
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(context.WithValue(ctx, txKey{}, tx)); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (s *Store) conn(ctx context.Context) querier {
	if tx, ok := ctx.Value(txKey{}).(*sqlx.Tx); ok {
		return tx
	}
	return s.db
}

// CreateUser inserts a user
func (s *Store) CreateUser(ctx context.Context, user *models.UserSummary) error {
	_, err := s.conn(ctx).ExecContext(ctx,
		"INSERT INTO users (id, name, email) VALUES ($1, $2, $3)",
		user.ID, user.Name, user.Email)
	return err
}

// CreateProduct inserts a product
func (s *Store) CreateProduct(ctx context.Context, product *models.ProductSummary) error {
	_, err := s.conn(ctx).ExecContext(ctx,
		"INSERT INTO products (id, name, slug) VALUES ($1, $2, $3)",
		product.ID, product.Name, product.Slug)
	return err
}

// UpsertVariant creates a variant or overwrites its attributes and stock
func (s *Store) UpsertVariant(ctx context.Context, v *models.ProductVariant) error {
	if v.StockQuantity < 0 {
		return ErrInsufficientStock
	}
	query := `
		INSERT INTO product_variants (product_id, sku, color, size, stock_quantity)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (product_id, sku) DO UPDATE
		SET color = EXCLUDED.color, size = EXCLUDED.size,
		    stock_quantity = EXCLUDED.stock_quantity, updated_at = NOW()
		RETURNING updated_at`

	return s.conn(ctx).GetContext(ctx, &v.UpdatedAt, query,
		v.ProductID, v.SKU, v.Color, v.Size, v.StockQuantity)
}

// CreateCoupon inserts a coupon
func (s *Store) CreateCoupon(ctx context.Context, c *models.Coupon) error {
	_, err := s.conn(ctx).ExecContext(ctx,
		"INSERT INTO coupons (code, discount_type, discount_value) VALUES ($1, $2, $3)",
		c.Code, c.DiscountType, c.DiscountValue)
	return err
}

// GetVariant retrieves a product variant
func (s *Store) GetVariant(ctx context.Context, productID, sku string) (*models.ProductVariant, error) {
	if !isUUID(productID) {
		return nil, fmt.Errorf("%w: variant %s/%s", ErrNotFound, productID, sku)
	}
	var v models.ProductVariant
	err := s.conn(ctx).GetContext(ctx, &v,
		`SELECT product_id, sku, color, size, stock_quantity, updated_at
		 FROM product_variants WHERE product_id = $1 AND sku = $2`, productID, sku)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: variant %s/%s", ErrNotFound, productID, sku)
	}
	if err != nil {
		return nil, err
	}
	return &v, nil
}

// AdjustStock applies a signed delta to a variant's stock in a single
// conditional statement and returns the new stock.
func (s *Store) AdjustStock(ctx context.Context, productID, sku string, delta int) (int, error) {
	if !isUUID(productID) {
		return 0, fmt.Errorf("%w: variant %s/%s", ErrNotFound, productID, sku)
	}
	var stock int
	err := s.conn(ctx).GetContext(ctx, &stock, `
		UPDATE product_variants
		SET stock_quantity = stock_quantity + $1, updated_at = NOW()
		WHERE product_id = $2 AND sku = $3 AND stock_quantity + $1 >= 0
		RETURNING stock_quantity`,
		delta, productID, sku)
	if err == nil {
		return stock, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("failed to adjust stock: %w", err)
	}

	current, err := s.GetVariant(ctx, productID, sku)
	if err != nil {
		return 0, err
	}
	return 0, fmt.Errorf("%w: %s/%s available=%d, delta=%d",
		ErrInsufficientStock, productID, sku, current.StockQuantity, delta)
}
