package product

import (
	"context"
	"math"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// ErrNotFound is returned when a requested product does not exist.
var ErrNotFound = errors.New("product not found")

// Product represents a catalog item available for purchase.
type Product struct {
	ID          int64
	Name        string
	Price       decimal.Decimal
	Description string
	ImageURL    string
	Stock       int
	Deleted     bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Patch is a partial update of a product. Nil fields are left untouched.
type Patch struct {
	Name        *string
	Price       *decimal.Decimal
	Description *string
	ImageURL    *string
	Stock       *int
	Deleted     *bool
}

// Catalog column limits.
var (
	// MaxPrice is the largest price the catalog stores.
	MaxPrice = decimal.RequireFromString("9999999999.99")
	// MaxStock is the largest stock level the catalog stores.
	MaxStock = math.MaxInt32
)

// ErrInvalidPatch is returned when a patch would leave the product in an
// invalid state.
var ErrInvalidPatch = errors.New("invalid product update")

// Empty reports whether the patch changes nothing.
func (p Patch) Empty() bool {
	return p.Name == nil && p.Price == nil && p.Description == nil &&
		p.ImageURL == nil && p.Stock == nil && p.Deleted == nil
}

// Validate checks the fields that are set.
func (p Patch) Validate() error {
	if p.Name != nil && *p.Name == "" {
		return errors.Wrap(ErrInvalidPatch, "name must not be empty")
	}
	if p.Price != nil {
		switch {
		case p.Price.IsNegative():
			return errors.Wrap(ErrInvalidPatch, "price must not be negative")
		case !p.Price.Equal(p.Price.Truncate(2)):
			return errors.Wrap(ErrInvalidPatch, "price must have at most 2 decimal places")
		case p.Price.GreaterThan(MaxPrice):
			return errors.Wrap(ErrInvalidPatch, "price must be at most "+MaxPrice.StringFixed(2))
		}
	}
	if p.Stock != nil {
		switch {
		case *p.Stock < 0:
			return errors.Wrap(ErrInvalidPatch, "stock must not be negative")
		case *p.Stock > MaxStock:
			return errors.Wrapf(ErrInvalidPatch, "stock must be at most %d", MaxStock)
		}
	}
	return nil
}

// Apply merges the set fields of patch into p and stamps UpdatedAt.
func (p *Product) Apply(patch Patch, now time.Time) {
	if patch.Name != nil {
		p.Name = *patch.Name
	}
	if patch.Price != nil {
		p.Price = *patch.Price
	}
	if patch.Description != nil {
		p.Description = *patch.Description
	}
	if patch.ImageURL != nil {
		p.ImageURL = *patch.ImageURL
	}
	if patch.Stock != nil {
		p.Stock = *patch.Stock
	}
	if patch.Deleted != nil {
		p.Deleted = *patch.Deleted
	}
	p.UpdatedAt = now
}

// Reader is the read side of the catalog used by the cart and order flows.
type Reader interface {
	GetByID(ctx context.Context, id int64) (*Product, error)
}

// Repository defines catalog operations.
type Repository interface {
	Reader
	List(ctx context.Context) ([]Product, error)
	// Update loads the product, applies patch and persists it atomically.
	Update(ctx context.Context, id int64, patch Patch) (*Product, error)
}
