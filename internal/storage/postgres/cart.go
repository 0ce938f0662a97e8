package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/storefront-backoffice/internal/domain/cart"
	"github.com/xenking/storefront-backoffice/internal/domain/product"
)

const (
	foreignKeyViolation = "23503"

	ensureCartSQL = `INSERT INTO carts (user_id) VALUES ($1)
		ON CONFLICT (user_id) DO UPDATE SET user_id = EXCLUDED.user_id
		RETURNING id, user_id, created_at`

	getCartSQL = `SELECT id, user_id, created_at FROM carts WHERE user_id = $1`

	lockCartSQL = `SELECT id, user_id, created_at FROM carts WHERE user_id = $1 FOR UPDATE`

	upsertCartItemSQL = `INSERT INTO cart_items (cart_id, product_id, quantity) VALUES ($1, $2, $3)
		ON CONFLICT (cart_id, product_id)
		DO UPDATE SET quantity = cart_items.quantity + EXCLUDED.quantity
		WHERE cart_items.quantity + EXCLUDED.quantity <= $4`

	lineQuantitySQL = `SELECT quantity FROM cart_items WHERE cart_id = $1 AND product_id = $2`

	setCartItemSQL = `UPDATE cart_items SET quantity = $3 WHERE cart_id = $1 AND product_id = $2`

	deleteCartItemSQL = `DELETE FROM cart_items WHERE cart_id = $1 AND product_id = $2`

	clearCartSQL = `DELETE FROM cart_items WHERE cart_id = $1`

	deleteCartSQL = `DELETE FROM carts WHERE user_id = $1`

	cartLinesSQL = `SELECT ci.product_id, p.name, p.image_url, p.price, p.stock, ci.quantity
		FROM cart_items ci
		JOIN products p ON p.id = ci.product_id
		WHERE ci.cart_id = $1 AND NOT p.is_deleted
		ORDER BY ci.product_id`
)

var _ cart.Repository = (*CartRepository)(nil)

// CartRepository implements cart.Repository backed by PostgreSQL. Every
// mutation runs in its own transaction.
type CartRepository struct {
	pool *pgxpool.Pool
}

// NewCartRepository returns a CartRepository that uses the given pool.
func NewCartRepository(pool *pgxpool.Pool) *CartRepository {
	return &CartRepository{pool: pool}
}

// Ensure returns the user's cart, creating it if absent. Concurrent calls
// converge on the same row through the UNIQUE(user_id) constraint.
func (r *CartRepository) Ensure(ctx context.Context, userID string) (*cart.Cart, error) {
	c, err := queryCart(ctx, r.pool, ensureCartSQL, userID)
	if err != nil {
		return nil, fmt.Errorf("ensuring cart for %q: %w", userID, err)
	}
	return c, nil
}

// AddItem ensures the cart and increments the product's line in one
// statement pair, so concurrent adds never create a second line. An
// increment that would push the line past cart.MaxQuantity leaves it as is.
func (r *CartRepository) AddItem(ctx context.Context, userID string, productID int64, quantity int) error {
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		c, err := queryCart(ctx, tx, ensureCartSQL, userID)
		if err != nil {
			return err
		}
		tag, err := tx.Exec(ctx, upsertCartItemSQL, c.ID, productID, quantity, cart.MaxQuantity)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 1 {
			return nil
		}
		var current int
		if err := tx.QueryRow(ctx, lineQuantitySQL, c.ID, productID).Scan(&current); err != nil {
			return fmt.Errorf("reading line quantity: %w", err)
		}
		return &cart.InvalidQuantityError{ProductID: productID, Quantity: current + quantity}
	})
	if err != nil {
		var (
			pgErr  *pgconn.PgError
			qtyErr *cart.InvalidQuantityError
		)
		if errors.As(err, &qtyErr) {
			return err
		}
		if errors.As(err, &pgErr) && pgErr.Code == foreignKeyViolation {
			return product.ErrNotFound
		}
		return fmt.Errorf("adding product %d to cart: %w", productID, err)
	}
	return nil
}

// SetQuantity overwrites a line quantity. Zero removes the line.
func (r *CartRepository) SetQuantity(ctx context.Context, userID string, productID int64, quantity int) error {
	if quantity == 0 {
		return r.RemoveItem(ctx, userID, productID)
	}
	return r.mutateLine(ctx, userID, setCartItemSQL, productID, quantity)
}

// RemoveItem deletes the product's line.
func (r *CartRepository) RemoveItem(ctx context.Context, userID string, productID int64) error {
	return r.mutateLine(ctx, userID, deleteCartItemSQL, productID)
}

func (r *CartRepository) mutateLine(ctx context.Context, userID, sql string, productID int64, extra ...any) error {
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		c, err := queryCart(ctx, tx, lockCartSQL, userID)
		if err != nil {
			return err
		}
		args := append([]any{c.ID, productID}, extra...)
		tag, err := tx.Exec(ctx, sql, args...)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return cart.ErrItemNotFound
		}
		return nil
	})
	return cartError(err, "updating cart line")
}

// Lines returns the cart and its lines priced from the live catalog.
func (r *CartRepository) Lines(ctx context.Context, userID string) (*cart.Cart, []cart.Line, error) {
	c, err := queryCart(ctx, r.pool, getCartSQL, userID)
	if err != nil {
		return nil, nil, cartError(err, "getting cart")
	}
	lines, err := queryLines(ctx, r.pool, c.ID)
	if err != nil {
		return nil, nil, fmt.Errorf("listing cart lines: %w", err)
	}
	return c, lines, nil
}

// Clear deletes every line and keeps the cart record.
func (r *CartRepository) Clear(ctx context.Context, userID string) error {
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		c, err := queryCart(ctx, tx, lockCartSQL, userID)
		if err != nil {
			return err
		}
		_, err = tx.Exec(ctx, clearCartSQL, c.ID)
		return err
	})
	return cartError(err, "clearing cart")
}

// Delete removes the cart record; lines go with it by cascade.
func (r *CartRepository) Delete(ctx context.Context, userID string) error {
	tag, err := r.pool.Exec(ctx, deleteCartSQL, userID)
	if err != nil {
		return fmt.Errorf("deleting cart: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return cart.ErrNotFound
	}
	return nil
}

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func queryCart(ctx context.Context, q querier, sql, userID string) (*cart.Cart, error) {
	rows, err := q.Query(ctx, sql, userID)
	if err != nil {
		return nil, err
	}
	c, err := pgx.CollectExactlyOneRow(rows, func(row pgx.CollectableRow) (cart.Cart, error) {
		var c cart.Cart
		err := row.Scan(&c.ID, &c.UserID, &c.CreatedAt)
		return c, err
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, cart.ErrNotFound
		}
		return nil, err
	}
	return &c, nil
}

func queryLines(ctx context.Context, q querier, cartID int64) ([]cart.Line, error) {
	rows, err := q.Query(ctx, cartLinesSQL, cartID)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (cart.Line, error) {
		var l cart.Line
		err := row.Scan(&l.ProductID, &l.Name, &l.ImageURL, &l.Price, &l.Stock, &l.Quantity)
		return l, err
	})
}

func cartError(err error, msg string) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, cart.ErrNotFound), errors.Is(err, cart.ErrItemNotFound):
		return err
	default:
		return fmt.Errorf("%s: %w", msg, err)
	}
}
