// Package product is the catalog side of the storefront. Its stock counts
// are the inventory that checkout validates against; nothing in this
// repository decrements them.
package product

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/irsalhamdi/storefront/database"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
)

var (
	ErrNotFound = errors.New("product not found")

	// ErrDuplicate is returned when a product id or slug is already taken.
	ErrDuplicate = errors.New("product already exists")
)

type Product struct {
	ID           string          `json:"id" db:"product_id"`
	Slug         string          `json:"slug" db:"slug"`
	Name         string          `json:"name" db:"name"`
	Brand        string          `json:"brand" db:"brand"`
	Category     string          `json:"category" db:"category"`
	ImageRef     string          `json:"image" db:"image_ref"`
	Price        decimal.Decimal `json:"price" db:"price"`
	CountInStock int             `json:"countInStock" db:"count_in_stock"`
	CreatedAt    time.Time       `json:"createdAt" db:"created_at"`
	UpdatedAt    time.Time       `json:"updatedAt" db:"updated_at"`
}

type Store struct {
	db *sqlx.DB
}

func NewStore(db *sqlx.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Fetch(ctx context.Context, id string) (Product, error) {
	const q = `
	SELECT
		product_id, slug, name, brand, category, image_ref,
		price, count_in_stock, created_at, updated_at
	FROM products
	WHERE product_id = $1`

	var p Product
	if err := s.db.GetContext(ctx, &p, q, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Product{}, fmt.Errorf("product[%s]: %w", id, ErrNotFound)
		}
		return Product{}, fmt.Errorf("selecting product[%s]: %w", id, err)
	}
	return p, nil
}

// CountInStock reads the live stock of a product straight from the database.
func (s *Store) CountInStock(ctx context.Context, id string) (int, error) {
	const q = `SELECT count_in_stock FROM products WHERE product_id = $1`

	var n int
	if err := s.db.GetContext(ctx, &n, q, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, fmt.Errorf("product[%s]: %w", id, ErrNotFound)
		}
		return 0, fmt.Errorf("selecting stock of product[%s]: %w", id, err)
	}
	return n, nil
}

func (s *Store) CountProducts(ctx context.Context) (int, error) {
	const q = `SELECT COUNT(*) FROM products`

	var n int
	if err := s.db.GetContext(ctx, &n, q); err != nil {
		return 0, fmt.Errorf("counting products: %w", err)
	}
	return n, nil
}

func (s *Store) Create(ctx context.Context, p Product) error {
	const q = `
	INSERT INTO products
		(product_id, slug, name, brand, category, image_ref,
		 price, count_in_stock, created_at, updated_at)
	VALUES
		(:product_id, :slug, :name, :brand, :category, :image_ref,
		 :price, :count_in_stock, :created_at, :updated_at)`

	if _, err := s.db.NamedExecContext(ctx, q, p); err != nil {
		if database.Duplicated(err) {
			return fmt.Errorf("product[%s] slug[%s]: %w", p.ID, p.Slug, ErrDuplicate)
		}
		return fmt.Errorf("inserting product[%s]: %w", p.ID, err)
	}
	return nil
}

func (s *Store) UpdateStock(ctx context.Context, id string, count int) error {
	const q = `
	UPDATE products
	SET count_in_stock = $2, updated_at = $3
	WHERE product_id = $1`

	res, err := s.db.ExecContext(ctx, q, id, count, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("updating stock of product[%s]: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("product[%s]: %w", id, ErrNotFound)
	}
	return nil
}
