package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/jx"

	"github.com/xenking/storefront-backoffice/internal/domain/cart"
)

type cartItemRequest struct {
	ProductID int64 `json:"productId" validate:"required,gt=0"`
	Quantity  *int  `json:"quantity" validate:"required"`
}

func decodeCartItem(w http.ResponseWriter, r *http.Request) (*cartItemRequest, error) {
	var req cartItemRequest
	if err := decodeObject(w, r, func(d *jx.Decoder, key string) error {
		switch key {
		case "productId":
			return readInt64(d, key, &req.ProductID)
		case "quantity":
			return readInt(d, key, &req.Quantity)
		default:
			return d.Skip()
		}
	}); err != nil {
		return nil, err
	}
	if err := validateStruct(&req); err != nil {
		return nil, err
	}
	return &req, nil
}

func (h *Handler) ensureCart(w http.ResponseWriter, r *http.Request) {
	c, err := h.carts.Ensure(r.Context(), userID(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeOK(w, http.StatusOK, "Cart is ready.", func(e *jx.Encoder) {
		e.ObjStart()
		e.FieldStart("cartId")
		e.Int64(c.ID)
		e.ObjEnd()
	})
}

func (h *Handler) addCartItem(w http.ResponseWriter, r *http.Request) {
	req, err := decodeCartItem(w, r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.carts.AddItem(r.Context(), userID(r), req.ProductID, *req.Quantity); err != nil {
		writeError(w, r, err)
		return
	}
	writeOK(w, http.StatusOK, "Item added to cart.", nil)
}

func (h *Handler) updateCartItem(w http.ResponseWriter, r *http.Request) {
	req, err := decodeCartItem(w, r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.carts.UpdateItemQuantity(r.Context(), userID(r), req.ProductID, *req.Quantity); err != nil {
		writeError(w, r, err)
		return
	}
	writeOK(w, http.StatusOK, "Cart item updated.", nil)
}

func (h *Handler) removeCartItem(w http.ResponseWriter, r *http.Request) {
	productID, err := parseID(chi.URLParam(r, "productId"), "productId")
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.carts.RemoveItem(r.Context(), userID(r), productID); err != nil {
		writeError(w, r, err)
		return
	}
	writeOK(w, http.StatusOK, "Item removed from cart.", nil)
}

func (h *Handler) listCartItems(w http.ResponseWriter, r *http.Request) {
	contents, err := h.carts.ListItems(r.Context(), userID(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeOK(w, http.StatusOK, "Cart items retrieved.", func(e *jx.Encoder) {
		h.encodeCart(e, contents)
	})
}

func (h *Handler) clearCart(w http.ResponseWriter, r *http.Request) {
	if err := h.carts.Clear(r.Context(), userID(r)); err != nil {
		writeError(w, r, err)
		return
	}
	writeOK(w, http.StatusOK, "Cart cleared.", nil)
}

func (h *Handler) deleteCart(w http.ResponseWriter, r *http.Request) {
	if err := h.carts.Delete(r.Context(), userID(r)); err != nil {
		writeError(w, r, err)
		return
	}
	writeOK(w, http.StatusOK, "Cart deleted.", nil)
}

func (h *Handler) encodeCart(e *jx.Encoder, c *cart.Contents) {
	e.ObjStart()
	e.FieldStart("cartId")
	e.Int64(c.CartID)
	e.FieldStart("items")
	e.ArrStart()
	for _, l := range c.Items {
		e.ObjStart()
		e.FieldStart("productId")
		e.Int64(l.ProductID)
		e.FieldStart("name")
		e.Str(l.Name)
		e.FieldStart("imageUrl")
		e.Str(h.imageURL(l.ImageURL))
		e.FieldStart("price")
		encodeMoney(e, l.Price)
		e.FieldStart("stock")
		e.Int(l.Stock)
		e.FieldStart("quantity")
		e.Int(l.Quantity)
		e.FieldStart("subtotal")
		encodeMoney(e, l.Subtotal())
		e.ObjEnd()
	}
	e.ArrEnd()
	e.FieldStart("total")
	encodeMoney(e, c.Total)
	e.ObjEnd()
}
