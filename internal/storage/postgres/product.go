package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/storefront-backoffice/internal/domain/product"
)

const (
	productColumns = `id, name, price, description, image_url, stock, is_deleted, created_at, updated_at`

	listProductsSQL = `SELECT ` + productColumns + `
		FROM products WHERE NOT is_deleted ORDER BY id`

	getProductByIDSQL = `SELECT ` + productColumns + `
		FROM products WHERE id = $1 AND NOT is_deleted`

	lockProductSQL = `SELECT ` + productColumns + `
		FROM products WHERE id = $1 FOR UPDATE`

	updateProductSQL = `UPDATE products
		SET name = $2, price = $3, description = $4, image_url = $5, stock = $6,
		    is_deleted = $7, updated_at = $8
		WHERE id = $1`
)

var _ product.Repository = (*ProductRepository)(nil)

// ProductRepository implements product.Repository backed by PostgreSQL.
type ProductRepository struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

// NewProductRepository returns a ProductRepository that uses the given pool.
func NewProductRepository(pool *pgxpool.Pool) *ProductRepository {
	return &ProductRepository{pool: pool, now: time.Now}
}

// List returns all products that are not soft-deleted, ordered by ID.
func (r *ProductRepository) List(ctx context.Context) ([]product.Product, error) {
	rows, err := r.pool.Query(ctx, listProductsSQL)
	if err != nil {
		return nil, fmt.Errorf("listing products: %w", err)
	}
	return pgx.CollectRows(rows, scanProduct)
}

// GetByID returns a single live product by its identifier.
func (r *ProductRepository) GetByID(ctx context.Context, id int64) (*product.Product, error) {
	rows, err := r.pool.Query(ctx, getProductByIDSQL, id)
	if err != nil {
		return nil, fmt.Errorf("getting product %d: %w", id, err)
	}

	p, err := pgx.CollectExactlyOneRow(rows, scanProduct)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, product.ErrNotFound
		}
		return nil, fmt.Errorf("getting product %d: %w", id, err)
	}
	return &p, nil
}

// Update locks the product row, merges patch and writes the result back.
// Soft-deleted products can be patched, which is how they are restored.
func (r *ProductRepository) Update(ctx context.Context, id int64, patch product.Patch) (*product.Product, error) {
	var out product.Product
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, lockProductSQL, id)
		if err != nil {
			return err
		}
		p, err := pgx.CollectExactlyOneRow(rows, scanProduct)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return product.ErrNotFound
			}
			return err
		}

		p.Apply(patch, r.now().UTC())
		if _, err := tx.Exec(ctx, updateProductSQL,
			p.ID, p.Name, p.Price, p.Description, p.ImageURL, p.Stock, p.Deleted, p.UpdatedAt,
		); err != nil {
			return err
		}
		out = p
		return nil
	})
	if err != nil {
		if errors.Is(err, product.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("updating product %d: %w", id, err)
	}
	return &out, nil
}

// Seed bulk-loads products with COPY. IDs are assigned by the database.
func (r *ProductRepository) Seed(ctx context.Context, products []product.Product) (int64, error) {
	rows := make([][]any, len(products))
	for i, p := range products {
		rows[i] = []any{p.Name, p.Price, p.Description, p.ImageURL, p.Stock}
	}
	n, err := r.pool.CopyFrom(ctx,
		pgx.Identifier{"products"},
		[]string{"name", "price", "description", "image_url", "stock"},
		pgx.CopyFromRows(rows),
	)
	if err != nil {
		return 0, fmt.Errorf("seeding products: %w", err)
	}
	return n, nil
}

func scanProduct(row pgx.CollectableRow) (product.Product, error) {
	var p product.Product
	err := row.Scan(
		&p.ID, &p.Name, &p.Price, &p.Description, &p.ImageURL,
		&p.Stock, &p.Deleted, &p.CreatedAt, &p.UpdatedAt,
	)
	return p, err
}
