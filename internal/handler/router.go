package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/xenking/storefront-backoffice/internal/domain/auth"
	"github.com/xenking/storefront-backoffice/pkg/httpmiddleware"
)

// BasePath prefixes every API route.
const BasePath = "/api/v1"

// HealthEndpoints are mounted next to the API.
type HealthEndpoints struct {
	Live  http.HandlerFunc
	Ready http.HandlerFunc
}

// Limits throttle API routes. Reads covers catalog browsing and order
// lookups; Write covers every mutation. Nil entries disable throttling.
// Health endpoints are never throttled.
type Limits struct {
	Read  func(http.Handler) http.Handler
	Write func(http.Handler) http.Handler
}

func (l Limits) read() func(http.Handler) http.Handler { return orPass(l.Read) }
func (l Limits) write() func(http.Handler) http.Handler { return orPass(l.Write) }

func orPass(mw func(http.Handler) http.Handler) func(http.Handler) http.Handler {
	if mw == nil {
		return func(next http.Handler) http.Handler { return next }
	}
	return mw
}

// RateLimitKey charges authenticated requests to the user, so customers
// behind one address do not share an allowance, and anonymous requests to
// the client address.
func RateLimitKey(r *http.Request) string {
	if p, ok := auth.FromContext(r.Context()); ok {
		return "user:" + p.UserID
	}
	return "ip:" + httpmiddleware.ClientIP(r)
}

// NewRouter builds the chi router serving the API and the health endpoints.
// Limits run after authentication so RateLimitKey sees the caller.
func NewRouter(h *Handler, authn *Authenticator, health HealthEndpoints, limits Limits) chi.Router {
	read, write := limits.read(), limits.write()

	r := chi.NewRouter()
	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeFail(w, http.StatusNotFound, "Route not found.")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeFail(w, http.StatusMethodNotAllowed, "Method not allowed.")
	})

	if health.Live != nil {
		r.Get("/livez", health.Live)
	}
	if health.Ready != nil {
		r.Get("/readyz", health.Ready)
	}

	r.Route(BasePath, func(api chi.Router) {
		api.Route("/cart", func(c chi.Router) {
			c.Use(authn.Authenticate, RequireRole(auth.RoleCustomer))
			c.With(read).Get("/items", h.listCartItems)
			c.Group(func(m chi.Router) {
				m.Use(write)
				m.Post("/", h.ensureCart)
				m.Delete("/", h.deleteCart)
				m.Post("/items", h.addCartItem)
				m.Put("/items", h.updateCartItem)
				m.Delete("/items", h.clearCart)
				m.Delete("/items/{productId}", h.removeCartItem)
			})
		})

		api.Route("/orders", func(o chi.Router) {
			o.Use(authn.Authenticate)
			o.Group(func(c chi.Router) {
				c.Use(RequireRole(auth.RoleCustomer))
				c.With(write).Post("/", h.createOrder)
				c.With(read).Get("/mine", h.listMyOrders)
				c.With(read).Get("/mine/{trackingNumber}", h.getMyOrder)
				c.With(write).Post("/{trackingNumber}/cancel", h.cancelOrder)
			})
			o.Group(func(a chi.Router) {
				a.Use(RequireRole(auth.RoleAdmin))
				a.With(read).Get("/admin", h.listAllOrders)
				a.With(write).Put("/{trackingNumber}", h.editOrder)
			})
		})

		api.Route("/products", func(p chi.Router) {
			p.With(read).Get("/", h.listProducts)
			p.With(read).Get("/{id}", h.getProduct)
			p.With(authn.Authenticate, RequireRole(auth.RoleAdmin), write).Patch("/{id}", h.patchProduct)
		})
	})
	return r
}
