package product

import (
	"context"

	"github.com/go-faster/errors"
)

// Service exposes the catalog to the HTTP layer.
type Service struct {
	repo Repository
}

// NewService creates a catalog Service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// List returns every product that is not soft-deleted.
func (s *Service) List(ctx context.Context) ([]Product, error) {
	ps, err := s.repo.List(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "list products")
	}
	return ps, nil
}

// Get returns a single live product.
func (s *Service) Get(ctx context.Context, id int64) (*Product, error) {
	p, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, errors.Wrapf(err, "get product %d", id)
	}
	return p, nil
}

// Update applies a partial update. Existing orders keep the prices they
// captured at checkout.
func (s *Service) Update(ctx context.Context, id int64, patch Patch) (*Product, error) {
	if patch.Empty() {
		return nil, errors.Wrap(ErrInvalidPatch, "no fields to update")
	}
	if err := patch.Validate(); err != nil {
		return nil, err
	}
	p, err := s.repo.Update(ctx, id, patch)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, errors.Wrapf(err, "update product %d", id)
	}
	return p, nil
}
