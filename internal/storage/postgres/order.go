package postgres

import (
	"context"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/storefront-backoffice/internal/domain/cart"
	"github.com/xenking/storefront-backoffice/internal/domain/order"
)

const (
	trackingConstraint = "order_headers_tracking_number_key"

	headerColumns = `id, tracking_number, user_id, address, order_date, shipping_date,
		order_status, payment_method, payment_status, total`

	insertHeaderSQL = `INSERT INTO order_headers
		(tracking_number, user_id, address, order_date, shipping_date,
		 order_status, payment_method, payment_status, total)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id`

	insertDetailSQL = `INSERT INTO order_details (order_id, product_id, quantity, price)
		VALUES ($1, $2, $3, $4)`

	reserveStockSQL = `UPDATE products SET stock = stock - $2, updated_at = now()
		WHERE id = $1 AND stock >= $2`

	stockSQL = `SELECT stock FROM products WHERE id = $1`

	lockOrderSQL = `SELECT ` + headerColumns + `
		FROM order_headers WHERE tracking_number = $1 FOR UPDATE`

	updateOrderSQL = `UPDATE order_headers
		SET shipping_date = $2, address = $3, payment_method = $4,
		    payment_status = $5, order_status = $6
		WHERE id = $1`

	orderDetailsSQL = `SELECT d.product_id, d.quantity, d.price, p.name, p.image_url
		FROM order_details d
		JOIN products p ON p.id = d.product_id
		WHERE d.order_id = $1
		ORDER BY d.id`

	trackingNumbersSQL = `SELECT tracking_number FROM order_headers`
)

var _ order.Repository = (*OrderRepository)(nil)

// OrderRepository implements order.Repository backed by PostgreSQL.
type OrderRepository struct {
	pool *pgxpool.Pool
}

// NewOrderRepository returns an OrderRepository that uses the given pool.
func NewOrderRepository(pool *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{pool: pool}
}

// Checkout converts the user's cart into an order in a single transaction.
// The cart row is locked first, so a concurrent checkout of the same cart
// waits and then finds it empty.
func (r *OrderRepository) Checkout(
	ctx context.Context,
	userID string,
	reserveStock bool,
	build order.BuildFunc,
) (*order.Order, error) {
	var out *order.Order
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		c, err := queryCart(ctx, tx, lockCartSQL, userID)
		if err != nil {
			if errors.Is(err, cart.ErrNotFound) {
				return order.ErrEmptyCart
			}
			return err
		}
		lines, err := queryLines(ctx, tx, c.ID)
		if err != nil {
			return err
		}

		o, err := build(lines)
		if err != nil {
			return err
		}

		if reserveStock {
			// Lines come ordered by product id, which keeps row locks ordered
			// across concurrent checkouts.
			for _, d := range o.Details {
				if err := reserve(ctx, tx, d); err != nil {
					return err
				}
			}
		}

		if err := tx.QueryRow(ctx, insertHeaderSQL,
			o.TrackingNumber, o.UserID, o.Address, o.OrderDate, o.ShippingDate,
			int16(o.Status), int16(o.PaymentMethod), int16(o.PaymentStatus), o.Total,
		).Scan(&o.ID); err != nil {
			if isUniqueViolation(err, trackingConstraint) {
				return order.ErrTrackingNumberTaken
			}
			return fmt.Errorf("inserting order header: %w", err)
		}

		batch := &pgx.Batch{}
		for _, d := range o.Details {
			batch.Queue(insertDetailSQL, o.ID, d.ProductID, d.Quantity, d.Price)
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("inserting order details: %w", err)
		}

		if _, err := tx.Exec(ctx, clearCartSQL, c.ID); err != nil {
			return fmt.Errorf("clearing cart: %w", err)
		}
		out = o
		return nil
	})
	if err != nil {
		return nil, orderError(err, "checkout")
	}
	return out, nil
}

func reserve(ctx context.Context, tx pgx.Tx, d order.Detail) error {
	tag, err := tx.Exec(ctx, reserveStockSQL, d.ProductID, d.Quantity)
	if err != nil {
		return fmt.Errorf("reserving stock for product %d: %w", d.ProductID, err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}
	var available int
	if err := tx.QueryRow(ctx, stockSQL, d.ProductID).Scan(&available); err != nil {
		return fmt.Errorf("reading stock for product %d: %w", d.ProductID, err)
	}
	return &order.InsufficientStockError{
		ProductID: d.ProductID,
		Requested: d.Quantity,
		Available: available,
	}
}

// Find returns one page of order headers and the number of matches. The
// count and page queries run concurrently on separate connections.
func (r *OrderRepository) Find(ctx context.Context, q order.Query) ([]order.Order, int, error) {
	where, args := buildWhere(q)
	pageArgs := append(slices.Clip(args), q.Limit, q.Offset)

	var (
		total int
		items []order.Order
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return r.pool.QueryRow(gctx, `SELECT count(*) FROM order_headers`+where, args...).Scan(&total)
	})
	g.Go(func() error {
		pageSQL := `SELECT ` + headerColumns + ` FROM order_headers` + where +
			orderBy(q.SortBy) + limitOffset(len(args))
		rows, err := r.pool.Query(gctx, pageSQL, pageArgs...)
		if err != nil {
			return err
		}
		items, err = pgx.CollectRows(rows, scanHeader)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, 0, fmt.Errorf("finding orders: %w", err)
	}
	return items, total, nil
}

// FindOne returns the first matching order with its details.
func (r *OrderRepository) FindOne(ctx context.Context, q order.Query) (*order.Order, error) {
	where, args := buildWhere(q)
	sql := `SELECT ` + headerColumns + ` FROM order_headers` + where + orderBy(q.SortBy) + ` LIMIT 1`

	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("finding order: %w", err)
	}
	o, err := pgx.CollectExactlyOneRow(rows, scanHeader)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, order.ErrNotFound
		}
		return nil, fmt.Errorf("finding order: %w", err)
	}

	rows, err = r.pool.Query(ctx, orderDetailsSQL, o.ID)
	if err != nil {
		return nil, fmt.Errorf("loading order details: %w", err)
	}
	o.Details, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (order.Detail, error) {
		var d order.Detail
		err := row.Scan(&d.ProductID, &d.Quantity, &d.Price, &d.Name, &d.ImageURL)
		return d, err
	})
	if err != nil {
		return nil, fmt.Errorf("loading order details: %w", err)
	}
	return &o, nil
}

// Update locks the order row, lets fn mutate it and persists the fields an
// order may change after creation. Totals and details are never written.
func (r *OrderRepository) Update(
	ctx context.Context,
	trackingNumber string,
	fn func(o *order.Order) error,
) (*order.Order, error) {
	var out order.Order
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, lockOrderSQL, trackingNumber)
		if err != nil {
			return err
		}
		o, err := pgx.CollectExactlyOneRow(rows, scanHeader)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return order.ErrNotFound
			}
			return err
		}

		if err := fn(&o); err != nil {
			return err
		}

		if _, err := tx.Exec(ctx, updateOrderSQL,
			o.ID, o.ShippingDate, o.Address,
			int16(o.PaymentMethod), int16(o.PaymentStatus), int16(o.Status),
		); err != nil {
			return err
		}
		out = o
		return nil
	})
	if err != nil {
		return nil, orderError(err, "updating order "+trackingNumber)
	}
	return &out, nil
}

// TrackingNumbers streams every stored tracking number to fn.
func (r *OrderRepository) TrackingNumbers(ctx context.Context, fn func(number string)) error {
	rows, err := r.pool.Query(ctx, trackingNumbersSQL)
	if err != nil {
		return fmt.Errorf("listing tracking numbers: %w", err)
	}
	var number string
	_, err = pgx.ForEachRow(rows, []any{&number}, func() error {
		fn(number)
		return nil
	})
	if err != nil {
		return fmt.Errorf("listing tracking numbers: %w", err)
	}
	return nil
}

func buildWhere(q order.Query) (string, []any) {
	var (
		conds []string
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return "$" + strconv.Itoa(len(args))
	}

	if q.UserID != "" {
		conds = append(conds, "user_id = "+arg(q.UserID))
	}
	if q.TrackingNumber != "" {
		switch q.Match {
		case order.MatchContains:
			conds = append(conds, "tracking_number LIKE "+arg("%"+escapeLike(q.TrackingNumber)+"%")+` ESCAPE '\'`)
		default:
			conds = append(conds, "tracking_number = "+arg(q.TrackingNumber))
		}
	}
	if q.OrderDay != nil {
		start := q.OrderDay.UTC()
		conds = append(conds,
			"order_date >= "+arg(start),
			"order_date < "+arg(start.Add(24*time.Hour)),
		)
	}

	if len(conds) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func orderBy(f order.SortField) string {
	if f == order.SortByOrderStatus {
		return " ORDER BY order_status ASC, id DESC"
	}
	return " ORDER BY order_date DESC, id DESC"
}

func limitOffset(nargs int) string {
	return fmt.Sprintf(" LIMIT $%d OFFSET $%d", nargs+1, nargs+2)
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string { return likeEscaper.Replace(s) }

func scanHeader(row pgx.CollectableRow) (order.Order, error) {
	var o order.Order
	var status, method, paymentStatus int16
	err := row.Scan(
		&o.ID, &o.TrackingNumber, &o.UserID, &o.Address, &o.OrderDate, &o.ShippingDate,
		&status, &method, &paymentStatus, &o.Total,
	)
	o.Status = order.Status(status)
	o.PaymentMethod = order.PaymentMethod(method)
	o.PaymentStatus = order.PaymentStatus(paymentStatus)
	o.OrderDate = o.OrderDate.UTC()
	o.ShippingDate = o.ShippingDate.UTC()
	return o, err
}

func orderError(err error, msg string) error {
	var (
		stockErr  *order.InsufficientStockError
		windowErr *order.CancellationWindowError
		validErr  *order.ValidationError
	)
	switch {
	case errors.Is(err, order.ErrNotFound),
		errors.Is(err, order.ErrEmptyCart),
		errors.Is(err, order.ErrNotCancellable),
		errors.Is(err, order.ErrTrackingNumberTaken),
		errors.As(err, &stockErr),
		errors.As(err, &windowErr),
		errors.As(err, &validErr):
		return err
	}
	return fmt.Errorf("%s: %w", msg, err)
}
