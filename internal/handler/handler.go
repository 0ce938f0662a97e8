// Package handler exposes the storefront back office over REST.
package handler

import (
	"context"
	"strings"

	"github.com/xenking/storefront-backoffice/internal/domain/cart"
	"github.com/xenking/storefront-backoffice/internal/domain/order"
	"github.com/xenking/storefront-backoffice/internal/domain/product"
)

// CartService is the cart behaviour the handlers depend on.
type CartService interface {
	Ensure(ctx context.Context, userID string) (*cart.Cart, error)
	AddItem(ctx context.Context, userID string, productID int64, quantity int) error
	UpdateItemQuantity(ctx context.Context, userID string, productID int64, quantity int) error
	RemoveItem(ctx context.Context, userID string, productID int64) error
	ListItems(ctx context.Context, userID string) (*cart.Contents, error)
	Clear(ctx context.Context, userID string) error
	Delete(ctx context.Context, userID string) error
}

// OrderService is the order behaviour the handlers depend on.
type OrderService interface {
	Create(ctx context.Context, userID string, req order.CreateRequest) (*order.Order, error)
	ListMine(ctx context.Context, userID string, req order.ListRequest) (*order.Page, error)
	ListAll(ctx context.Context, req order.AdminListRequest) (*order.Page, error)
	GetMine(ctx context.Context, userID, tracking string) (*order.Order, error)
	Cancel(ctx context.Context, userID, trackingNumber string) (*order.Order, error)
	Edit(ctx context.Context, trackingNumber string, req order.EditRequest) (*order.Order, error)
}

// CatalogService is the catalog behaviour the handlers depend on.
type CatalogService interface {
	List(ctx context.Context) ([]product.Product, error)
	Get(ctx context.Context, id int64) (*product.Product, error)
	Update(ctx context.Context, id int64, patch product.Patch) (*product.Product, error)
}

var (
	_ CartService    = (*cart.Service)(nil)
	_ OrderService   = (*order.Service)(nil)
	_ CatalogService = (*product.Service)(nil)
)

// HandlerConfig holds non-dependency configuration for the Handler.
type HandlerConfig struct {
	// ImageBaseURL is prepended to relative image paths in responses.
	// When empty, image paths are returned as stored.
	ImageBaseURL string
}

// Handler implements the REST endpoints on top of the domain services.
type Handler struct {
	carts        CartService
	orders       OrderService
	catalog      CatalogService
	imageBaseURL string
}

// NewHandler constructs a Handler with the required domain dependencies.
func NewHandler(
	cfg HandlerConfig,
	carts CartService,
	orders OrderService,
	catalog CatalogService,
) *Handler {
	return &Handler{
		carts:        carts,
		orders:       orders,
		catalog:      catalog,
		imageBaseURL: strings.TrimRight(cfg.ImageBaseURL, "/"),
	}
}

func (h *Handler) imageURL(path string) string {
	if h.imageBaseURL == "" || path == "" ||
		strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		return path
	}
	return h.imageBaseURL + "/" + strings.TrimLeft(path, "/")
}
