package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/jx"

	"github.com/xenking/storefront-backoffice/internal/domain/product"
)

func (h *Handler) listProducts(w http.ResponseWriter, r *http.Request) {
	items, err := h.catalog.List(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeOK(w, http.StatusOK, "Products retrieved.", func(e *jx.Encoder) {
		e.ArrStart()
		for i := range items {
			h.encodeProduct(e, &items[i])
		}
		e.ArrEnd()
	})
}

func (h *Handler) getProduct(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(chi.URLParam(r, "id"), "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	p, err := h.catalog.Get(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeOK(w, http.StatusOK, "Product retrieved.", func(e *jx.Encoder) {
		h.encodeProduct(e, p)
	})
}

func (h *Handler) patchProduct(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(chi.URLParam(r, "id"), "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	var patch product.Patch
	if err := decodeObject(w, r, func(d *jx.Decoder, key string) error {
		switch key {
		case "name":
			return readString(d, key, &patch.Name)
		case "price":
			return readDecimal(d, key, &patch.Price)
		case "description":
			return readString(d, key, &patch.Description)
		case "imageUrl":
			return readString(d, key, &patch.ImageURL)
		case "stock":
			return readInt(d, key, &patch.Stock)
		case "isDeleted":
			return readBool(d, key, &patch.Deleted)
		default:
			return d.Skip()
		}
	}); err != nil {
		writeError(w, r, err)
		return
	}
	p, err := h.catalog.Update(r.Context(), id, patch)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeOK(w, http.StatusOK, "Product updated.", func(e *jx.Encoder) {
		h.encodeProduct(e, p)
	})
}

func (h *Handler) encodeProduct(e *jx.Encoder, p *product.Product) {
	e.ObjStart()
	e.FieldStart("id")
	e.Int64(p.ID)
	e.FieldStart("name")
	e.Str(p.Name)
	e.FieldStart("description")
	e.Str(p.Description)
	e.FieldStart("price")
	encodeMoney(e, p.Price)
	e.FieldStart("imageUrl")
	e.Str(h.imageURL(p.ImageURL))
	e.FieldStart("stock")
	e.Int(p.Stock)
	e.FieldStart("isDeleted")
	e.Bool(p.Deleted)
	e.FieldStart("updatedAt")
	encodeTime(e, p.UpdatedAt)
	e.ObjEnd()
}
