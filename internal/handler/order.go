package handler

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/jx"

	"github.com/xenking/storefront-backoffice/internal/domain/order"
)

type createOrderRequest struct {
	ShippingDate  string `json:"shippingDate" validate:"required"`
	Address       string `json:"address" validate:"required,max=500"`
	PaymentMethod string `json:"paymentMethod" validate:"required"`
}

type editOrderRequest struct {
	ShippingDate  string `json:"shippingDate" validate:"required"`
	Address       string `json:"address" validate:"required,max=500"`
	PaymentMethod string `json:"paymentMethod" validate:"required"`
	PaymentStatus string `json:"paymentStatus" validate:"required"`
	OrderStatus   string `json:"orderStatus" validate:"required"`
}

func (h *Handler) createOrder(w http.ResponseWriter, r *http.Request) {
	var body createOrderRequest
	if err := decodeObject(w, r, func(d *jx.Decoder, key string) error {
		switch key {
		case "shippingDate":
			return readStr(d, key, &body.ShippingDate)
		case "address":
			return readStr(d, key, &body.Address)
		case "paymentMethod":
			return readStr(d, key, &body.PaymentMethod)
		default:
			return d.Skip()
		}
	}); err != nil {
		writeError(w, r, err)
		return
	}
	req, err := body.toDomain()
	if err != nil {
		writeError(w, r, err)
		return
	}
	o, err := h.orders.Create(r.Context(), userID(r), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeOK(w, http.StatusCreated, "Order created.", func(e *jx.Encoder) {
		h.encodeOrder(e, o, true)
	})
}

func (b *createOrderRequest) toDomain() (order.CreateRequest, error) {
	if err := validateStruct(b); err != nil {
		return order.CreateRequest{}, err
	}
	shipping, err := parseDate("shippingDate", b.ShippingDate)
	if err != nil {
		return order.CreateRequest{}, err
	}
	method, err := order.ParsePaymentMethod(b.PaymentMethod)
	if err != nil {
		return order.CreateRequest{}, err
	}
	return order.CreateRequest{
		ShippingDate:  shipping,
		Address:       b.Address,
		PaymentMethod: method,
	}, nil
}

func (h *Handler) listMyOrders(w http.ResponseWriter, r *http.Request) {
	page, err := pageRequest(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	q := r.URL.Query()
	res, err := h.orders.ListMine(r.Context(), userID(r), order.ListRequest{
		TrackingNumber: strings.TrimSpace(q.Get("trackingNumber")),
		SortBy:         order.ParseSortField(q.Get("sortBy")),
		Page:           page,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeOK(w, http.StatusOK, "Orders retrieved.", func(e *jx.Encoder) {
		h.encodePage(e, res)
	})
}

func (h *Handler) getMyOrder(w http.ResponseWriter, r *http.Request) {
	o, err := h.orders.GetMine(r.Context(), userID(r), chi.URLParam(r, "trackingNumber"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeOK(w, http.StatusOK, "Order retrieved.", func(e *jx.Encoder) {
		h.encodeOrder(e, o, true)
	})
}

func (h *Handler) cancelOrder(w http.ResponseWriter, r *http.Request) {
	o, err := h.orders.Cancel(r.Context(), userID(r), chi.URLParam(r, "trackingNumber"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeOK(w, http.StatusOK, "Order canceled.", func(e *jx.Encoder) {
		h.encodeOrder(e, o, false)
	})
}

func (h *Handler) listAllOrders(w http.ResponseWriter, r *http.Request) {
	page, err := pageRequest(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	q := r.URL.Query()
	req := order.AdminListRequest{
		TrackingNumber: strings.TrimSpace(q.Get("trackingNumber")),
		SortBy:         order.ParseSortField(q.Get("sortBy")),
		Page:           page,
	}
	if v := q.Get("orderDate"); v != "" {
		day, err := parseDate("orderDate", v)
		if err != nil {
			writeError(w, r, err)
			return
		}
		req.OrderDate = &day
	}
	res, err := h.orders.ListAll(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeOK(w, http.StatusOK, "Orders retrieved.", func(e *jx.Encoder) {
		h.encodePage(e, res)
	})
}

func (h *Handler) editOrder(w http.ResponseWriter, r *http.Request) {
	var body editOrderRequest
	if err := decodeObject(w, r, func(d *jx.Decoder, key string) error {
		switch key {
		case "shippingDate":
			return readStr(d, key, &body.ShippingDate)
		case "address":
			return readStr(d, key, &body.Address)
		case "paymentMethod":
			return readStr(d, key, &body.PaymentMethod)
		case "paymentStatus":
			return readStr(d, key, &body.PaymentStatus)
		case "orderStatus":
			return readStr(d, key, &body.OrderStatus)
		default:
			return d.Skip()
		}
	}); err != nil {
		writeError(w, r, err)
		return
	}
	req, err := body.toDomain()
	if err != nil {
		writeError(w, r, err)
		return
	}
	o, err := h.orders.Edit(r.Context(), chi.URLParam(r, "trackingNumber"), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeOK(w, http.StatusOK, "Order updated.", func(e *jx.Encoder) {
		h.encodeOrder(e, o, false)
	})
}

func (b *editOrderRequest) toDomain() (order.EditRequest, error) {
	if err := validateStruct(b); err != nil {
		return order.EditRequest{}, err
	}
	shipping, err := parseDate("shippingDate", b.ShippingDate)
	if err != nil {
		return order.EditRequest{}, err
	}
	method, err := order.ParsePaymentMethod(b.PaymentMethod)
	if err != nil {
		return order.EditRequest{}, err
	}
	payment, err := order.ParsePaymentStatus(b.PaymentStatus)
	if err != nil {
		return order.EditRequest{}, err
	}
	status, err := order.ParseStatus(b.OrderStatus)
	if err != nil {
		return order.EditRequest{}, err
	}
	return order.EditRequest{
		ShippingDate:  shipping,
		Address:       b.Address,
		PaymentMethod: method,
		PaymentStatus: payment,
		Status:        status,
	}, nil
}

func pageRequest(r *http.Request) (order.PageRequest, error) {
	number, err := queryInt(r, "pageNumber", order.DefaultPageNumber)
	if err != nil {
		return order.PageRequest{}, err
	}
	size, err := queryInt(r, "pageSize", order.DefaultPageSize)
	if err != nil {
		return order.PageRequest{}, err
	}
	return order.PageRequest{Number: number, Size: size}, nil
}

func (h *Handler) encodePage(e *jx.Encoder, p *order.Page) {
	e.ObjStart()
	e.FieldStart("items")
	e.ArrStart()
	for i := range p.Items {
		h.encodeOrder(e, &p.Items[i], false)
	}
	e.ArrEnd()
	e.FieldStart("pageNumber")
	e.Int(p.PageNumber)
	e.FieldStart("pageSize")
	e.Int(p.PageSize)
	e.FieldStart("totalItems")
	e.Int(p.TotalItems)
	e.FieldStart("totalPages")
	e.Int(p.TotalPages)
	e.ObjEnd()
}

func (h *Handler) encodeOrder(e *jx.Encoder, o *order.Order, details bool) {
	e.ObjStart()
	e.FieldStart("id")
	e.Int64(o.ID)
	e.FieldStart("trackingNumber")
	e.Str(o.TrackingNumber)
	e.FieldStart("orderDate")
	encodeTime(e, o.OrderDate)
	e.FieldStart("shippingDate")
	e.Str(o.ShippingDate.UTC().Format(time.DateOnly))
	e.FieldStart("address")
	e.Str(o.Address)
	e.FieldStart("orderStatus")
	e.Str(o.Status.String())
	e.FieldStart("paymentMethod")
	e.Str(o.PaymentMethod.String())
	e.FieldStart("paymentStatus")
	e.Str(o.PaymentStatus.String())
	e.FieldStart("total")
	encodeMoney(e, o.Total)
	if details {
		e.FieldStart("items")
		e.ArrStart()
		for _, d := range o.Details {
			e.ObjStart()
			e.FieldStart("productId")
			e.Int64(d.ProductID)
			e.FieldStart("name")
			e.Str(d.Name)
			e.FieldStart("imageUrl")
			e.Str(h.imageURL(d.ImageURL))
			e.FieldStart("quantity")
			e.Int(d.Quantity)
			e.FieldStart("price")
			encodeMoney(e, d.Price)
			e.FieldStart("subtotal")
			encodeMoney(e, d.Subtotal())
			e.ObjEnd()
		}
		e.ArrEnd()
	}
	e.ObjEnd()
}
