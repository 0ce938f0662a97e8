package handler

import (
	"net/http"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/storefront-backoffice/internal/domain/auth"
	"github.com/xenking/storefront-backoffice/internal/domain/cart"
	"github.com/xenking/storefront-backoffice/internal/domain/order"
	"github.com/xenking/storefront-backoffice/internal/domain/product"
)

// requestError marks malformed input detected before any service call.
type requestError struct {
	msg string
}

func (e *requestError) Error() string { return e.msg }

func badRequest(msg string) error { return &requestError{msg: msg} }

// writeError maps err onto the error taxonomy. Unclassified errors are
// logged and reported without detail.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, msg := classify(err)
	if status == http.StatusInternalServerError {
		zctx.From(r.Context()).Error("Request failed", zap.Error(err))
	}
	writeFail(w, status, msg)
}

func classify(err error) (int, string) {
	var (
		reqErr   *requestError
		valErr   *order.ValidationError
		qtyErr   *cart.InvalidQuantityError
		stockErr *order.InsufficientStockError
		winErr   *order.CancellationWindowError
	)
	switch {
	case errors.Is(err, auth.ErrInvalidUser):
		return http.StatusUnauthorized, "Invalid user."
	case errors.Is(err, auth.ErrForbidden):
		return http.StatusForbidden, "Forbidden."
	case errors.Is(err, cart.ErrNotFound):
		return http.StatusNotFound, "Cart not found."
	case errors.Is(err, cart.ErrItemNotFound):
		return http.StatusNotFound, "Product not found in cart."
	case errors.Is(err, product.ErrNotFound):
		return http.StatusNotFound, "Product not found."
	case errors.Is(err, order.ErrNotFound):
		return http.StatusNotFound, "Order not found."
	case errors.Is(err, order.ErrEmptyCart):
		return http.StatusBadRequest, "Cart is empty."
	case errors.As(err, &winErr):
		return http.StatusConflict, sentence(winErr.Error())
	case errors.Is(err, order.ErrCancellationWindowExpired):
		return http.StatusConflict, sentence(err.Error())
	case errors.Is(err, order.ErrNotCancellable):
		return http.StatusConflict, "Order can no longer be canceled."
	case errors.As(err, &stockErr):
		return http.StatusBadRequest, sentence(stockErr.Error())
	case errors.As(err, &qtyErr):
		return http.StatusBadRequest, sentence(qtyErr.Error())
	case errors.As(err, &valErr):
		return http.StatusBadRequest, sentence(valErr.Error())
	case errors.As(err, &reqErr):
		return http.StatusBadRequest, sentence(reqErr.Error())
	case errors.Is(err, product.ErrInvalidPatch):
		// Wrapped as "<reason>: invalid product update".
		msg, _, _ := strings.Cut(err.Error(), ": ")
		return http.StatusBadRequest, sentence(msg)
	default:
		return http.StatusInternalServerError, "Internal server error"
	}
}

// sentence capitalizes msg and terminates it with a period.
func sentence(msg string) string {
	if msg == "" {
		return msg
	}
	r, size := utf8.DecodeRuneInString(msg)
	msg = string(unicode.ToUpper(r)) + msg[size:]
	if !strings.HasSuffix(msg, ".") {
		msg += "."
	}
	return msg
}
