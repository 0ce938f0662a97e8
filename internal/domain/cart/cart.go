// Package cart implements the per-customer shopping cart.
//
// A cart holds product references and quantities only. Prices are resolved
// from the catalog whenever the cart is read, so catalog changes show up in
// carts that have not been checked out yet.
package cart

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

var (
	// ErrNotFound is returned when the user has no cart.
	ErrNotFound = errors.New("cart not found")
	// ErrItemNotFound is returned when the cart has no line for a product.
	ErrItemNotFound = errors.New("product not found in cart")
)

// MaxQuantity caps the quantity a single cart line may hold.
const MaxQuantity = 10_000

// InvalidQuantityError indicates a quantity outside the range an operation accepts.
type InvalidQuantityError struct {
	ProductID int64
	Quantity  int
}

func (e *InvalidQuantityError) Error() string {
	if e.Quantity > MaxQuantity {
		return fmt.Sprintf("quantity %d for product %d exceeds the limit of %d", e.Quantity, e.ProductID, MaxQuantity)
	}
	return fmt.Sprintf("invalid quantity %d for product %d", e.Quantity, e.ProductID)
}

// Cart is the owner record for a user's lines.
type Cart struct {
	ID        int64
	UserID    string
	CreatedAt time.Time
}

// Line is a cart line joined with live catalog data.
type Line struct {
	ProductID int64
	Name      string
	ImageURL  string
	Price     decimal.Decimal
	Stock     int
	Quantity  int
}

// Subtotal returns quantity × current price.
func (l Line) Subtotal() decimal.Decimal {
	return l.Price.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// Total sums the subtotals of lines.
func Total(lines []Line) decimal.Decimal {
	total := decimal.Zero
	for _, l := range lines {
		total = total.Add(l.Subtotal())
	}
	return total
}

// Contents is the priced view of a cart.
type Contents struct {
	CartID int64
	Items  []Line
	Total  decimal.Decimal
}

// Repository persists carts and their lines. Every method is a single
// atomic unit.
type Repository interface {
	// Ensure returns the user's cart, creating it if absent.
	Ensure(ctx context.Context, userID string) (*Cart, error)
	// AddItem ensures the cart and adds quantity to the product's line,
	// creating the line if needed. At most one line per product exists.
	// Returns *InvalidQuantityError when the line would exceed MaxQuantity.
	AddItem(ctx context.Context, userID string, productID int64, quantity int) error
	// SetQuantity overwrites the line quantity; zero deletes the line.
	// Returns ErrNotFound or ErrItemNotFound.
	SetQuantity(ctx context.Context, userID string, productID int64, quantity int) error
	// RemoveItem deletes the line. Returns ErrNotFound or ErrItemNotFound.
	RemoveItem(ctx context.Context, userID string, productID int64) error
	// Lines returns the lines joined with the catalog. Returns ErrNotFound.
	Lines(ctx context.Context, userID string) (*Cart, []Line, error)
	// Clear deletes all lines. Returns ErrNotFound.
	Clear(ctx context.Context, userID string) error
	// Delete deletes the lines and the cart record. Returns ErrNotFound.
	Delete(ctx context.Context, userID string) error
}
