package cart

import (
	"context"

	"github.com/go-faster/errors"

	"github.com/xenking/storefront-backoffice/internal/domain/auth"
	"github.com/xenking/storefront-backoffice/internal/domain/product"
)

// Service manages carts on behalf of authenticated users.
type Service struct {
	carts    Repository
	products product.Reader
}

// NewService creates a cart Service.
func NewService(carts Repository, products product.Reader) *Service {
	return &Service{
		carts:    carts,
		products: products,
	}
}

// Ensure returns the user's cart, creating an empty one if none exists.
func (s *Service) Ensure(ctx context.Context, userID string) (*Cart, error) {
	if err := auth.RequireUser(userID); err != nil {
		return nil, err
	}
	c, err := s.carts.Ensure(ctx, userID)
	if err != nil {
		return nil, errors.Wrap(err, "ensure cart")
	}
	return c, nil
}

// AddItem adds quantity units of a catalog product to the user's cart.
func (s *Service) AddItem(ctx context.Context, userID string, productID int64, quantity int) error {
	if err := auth.RequireUser(userID); err != nil {
		return err
	}
	if quantity <= 0 || quantity > MaxQuantity {
		return &InvalidQuantityError{ProductID: productID, Quantity: quantity}
	}

	// The line only references the product; existence is checked here so the
	// caller gets a catalog error rather than a constraint violation.
	if _, err := s.products.GetByID(ctx, productID); err != nil {
		if errors.Is(err, product.ErrNotFound) {
			return product.ErrNotFound
		}
		return errors.Wrapf(err, "get product %d", productID)
	}

	if err := s.carts.AddItem(ctx, userID, productID, quantity); err != nil {
		var qtyErr *InvalidQuantityError
		if errors.As(err, &qtyErr) {
			return err
		}
		return errors.Wrap(err, "add cart item")
	}
	return nil
}

// UpdateItemQuantity overwrites the quantity of an existing line. A quantity
// of zero removes the line.
func (s *Service) UpdateItemQuantity(ctx context.Context, userID string, productID int64, quantity int) error {
	if err := auth.RequireUser(userID); err != nil {
		return err
	}
	if quantity < 0 || quantity > MaxQuantity {
		return &InvalidQuantityError{ProductID: productID, Quantity: quantity}
	}
	if err := s.carts.SetQuantity(ctx, userID, productID, quantity); err != nil {
		return wrapNotFound(err, "update cart item")
	}
	return nil
}

// RemoveItem deletes a line. Repeating the call reports ErrItemNotFound,
// which callers treat as "already removed".
func (s *Service) RemoveItem(ctx context.Context, userID string, productID int64) error {
	if err := auth.RequireUser(userID); err != nil {
		return err
	}
	if err := s.carts.RemoveItem(ctx, userID, productID); err != nil {
		return wrapNotFound(err, "remove cart item")
	}
	return nil
}

// ListItems returns the cart lines priced at current catalog prices.
func (s *Service) ListItems(ctx context.Context, userID string) (*Contents, error) {
	if err := auth.RequireUser(userID); err != nil {
		return nil, err
	}
	c, lines, err := s.carts.Lines(ctx, userID)
	if err != nil {
		return nil, wrapNotFound(err, "list cart items")
	}
	return &Contents{
		CartID: c.ID,
		Items:  lines,
		Total:  Total(lines),
	}, nil
}

// Clear removes every line but keeps the cart.
func (s *Service) Clear(ctx context.Context, userID string) error {
	if err := auth.RequireUser(userID); err != nil {
		return err
	}
	if err := s.carts.Clear(ctx, userID); err != nil {
		return wrapNotFound(err, "clear cart")
	}
	return nil
}

// Delete removes the cart and its lines.
func (s *Service) Delete(ctx context.Context, userID string) error {
	if err := auth.RequireUser(userID); err != nil {
		return err
	}
	if err := s.carts.Delete(ctx, userID); err != nil {
		return wrapNotFound(err, "delete cart")
	}
	return nil
}

// wrapNotFound passes the not-found sentinels through unchanged and adds
// context to everything else.
func wrapNotFound(err error, msg string) error {
	if errors.Is(err, ErrNotFound) || errors.Is(err, ErrItemNotFound) {
		return err
	}
	return errors.Wrap(err, msg)
}
