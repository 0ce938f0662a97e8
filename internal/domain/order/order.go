// Package order converts carts into immutable orders and drives their
// status lifecycle.
package order

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/storefront-backoffice/internal/domain/cart"
)

// Status is the fulfilment state of an order. The numeric order is the
// lifecycle order and is what "sort by status" uses.
type Status int16

const (
	StatusPending Status = iota
	StatusProcessing
	StatusShipped
	StatusDelivered
	StatusCancelled
)

var statusNames = []string{"Pending", "Processing", "Shipped", "Delivered", "Cancelled"}

func (s Status) String() string { return enumName(statusNames, s, "Status") }

// Valid reports whether s is a known status.
func (s Status) Valid() bool { return int(s) >= 0 && int(s) < len(statusNames) }

// Cancellable reports whether a customer may still cancel an order in s.
func (s Status) Cancellable() bool {
	return s == StatusPending || s == StatusProcessing
}

// ParseStatus parses a status name (case-insensitive).
func ParseStatus(v string) (Status, error) { return parseEnum[Status](statusNames, v, "orderStatus") }

// PaymentStatus is tracked independently of Status. No settlement happens
// in this service.
type PaymentStatus int16

const (
	PaymentPending PaymentStatus = iota
	PaymentPaid
	PaymentFailed
	PaymentRefunded
)

var paymentStatusNames = []string{"Pending", "Paid", "Failed", "Refunded"}

func (s PaymentStatus) String() string { return enumName(paymentStatusNames, s, "PaymentStatus") }

// Valid reports whether s is a known payment status.
func (s PaymentStatus) Valid() bool { return int(s) >= 0 && int(s) < len(paymentStatusNames) }

// ParsePaymentStatus parses a payment status name (case-insensitive).
func ParsePaymentStatus(v string) (PaymentStatus, error) {
	return parseEnum[PaymentStatus](paymentStatusNames, v, "paymentStatus")
}

// PaymentMethod is the channel the customer chose to pay with.
type PaymentMethod int16

const (
	PaymentCashOnDelivery PaymentMethod = iota
	PaymentBankTransfer
	PaymentCreditCard
	PaymentEWallet
)

var paymentMethodNames = []string{"CashOnDelivery", "BankTransfer", "CreditCard", "EWallet"}

func (m PaymentMethod) String() string { return enumName(paymentMethodNames, m, "PaymentMethod") }

// Valid reports whether m is a supported payment method.
func (m PaymentMethod) Valid() bool { return int(m) >= 0 && int(m) < len(paymentMethodNames) }

// ParsePaymentMethod parses a payment method name (case-insensitive).
func ParsePaymentMethod(v string) (PaymentMethod, error) {
	return parseEnum[PaymentMethod](paymentMethodNames, v, "paymentMethod")
}

func enumName[T ~int16](names []string, v T, kind string) string {
	if int(v) >= 0 && int(v) < len(names) {
		return names[v]
	}
	return fmt.Sprintf("%s(%d)", kind, v)
}

func parseEnum[T ~int16](names []string, v, field string) (T, error) {
	v = strings.TrimSpace(v)
	for i, name := range names {
		if strings.EqualFold(name, v) {
			return T(i), nil
		}
	}
	return 0, &ValidationError{
		Field:  field,
		Reason: fmt.Sprintf("must be one of %s", strings.Join(names, ", ")),
	}
}

// MaxTotal is the largest order total the order store can hold.
var MaxTotal = decimal.RequireFromString("999999999999.99")

var (
	// ErrNotFound is returned when no order matches, including orders that
	// belong to another user.
	ErrNotFound = errors.New("order not found")
	// ErrEmptyCart is returned when checkout finds no cart or no lines.
	ErrEmptyCart = errors.New("cart is empty")
	// ErrCancellationWindowExpired is matched by *CancellationWindowError.
	ErrCancellationWindowExpired = errors.New("cancellation window expired")
	// ErrNotCancellable is returned when the order status no longer allows
	// cancellation.
	ErrNotCancellable = errors.New("order can no longer be canceled")
	// ErrTrackingNumberTaken is returned by the repository when the tracking
	// number collides with an existing order.
	ErrTrackingNumberTaken = errors.New("tracking number already taken")
)

// ValidationError reports malformed input.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s %s", e.Field, e.Reason)
}

// CancellationWindowError is returned when a cancel request arrives after
// the window that follows order creation.
type CancellationWindowError struct {
	Window time.Duration
}

func (e *CancellationWindowError) Error() string {
	return fmt.Sprintf("order can only be canceled within %s of creation", formatWindow(e.Window))
}

func (e *CancellationWindowError) Unwrap() error { return ErrCancellationWindowExpired }

func formatWindow(d time.Duration) string {
	if d%time.Hour == 0 {
		h := int(d / time.Hour)
		if h == 1 {
			return "1 hour"
		}
		return fmt.Sprintf("%d hours", h)
	}
	return d.String()
}

// InsufficientStockError is returned by checkout with stock reservation
// enabled when a product cannot cover the requested quantity.
type InsufficientStockError struct {
	ProductID int64
	Requested int
	Available int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for product %d: requested %d, available %d",
		e.ProductID, e.Requested, e.Available)
}

// Order is the header of a placed order together with its frozen lines.
type Order struct {
	ID             int64
	TrackingNumber string
	UserID         string
	Address        string
	OrderDate      time.Time
	ShippingDate   time.Time
	Status         Status
	PaymentMethod  PaymentMethod
	PaymentStatus  PaymentStatus
	Total          decimal.Decimal
	Details        []Detail
}

// Detail is an order line. Price is the unit price at order creation and
// never follows later catalog changes. Name and ImageURL are display data
// joined from the catalog on read.
type Detail struct {
	ProductID int64
	Quantity  int
	Price     decimal.Decimal
	Name      string
	ImageURL  string
}

// Subtotal returns quantity × captured price.
func (d Detail) Subtotal() decimal.Decimal {
	return d.Price.Mul(decimal.NewFromInt(int64(d.Quantity)))
}

// BuildFunc turns the locked cart lines into the order to persist.
type BuildFunc func(lines []cart.Line) (*Order, error)

// Repository persists orders.
type Repository interface {
	// Checkout locks the user's cart, passes its lines to build and, in the
	// same transaction, stores the returned order with its details and
	// empties the cart. With reserveStock set, product stock is decremented
	// for every detail. Returns ErrTrackingNumberTaken on a tracking number
	// collision; nothing is persisted on any error.
	Checkout(ctx context.Context, userID string, reserveStock bool, build BuildFunc) (*Order, error)
	// Find returns one page of headers matching q and the total match count.
	Find(ctx context.Context, q Query) ([]Order, int, error)
	// FindOne returns the first order matching q with details loaded.
	FindOne(ctx context.Context, q Query) (*Order, error)
	// Update locks the order with the given tracking number, calls fn and
	// persists the status-bearing fields fn may have changed.
	Update(ctx context.Context, trackingNumber string, fn func(o *Order) error) (*Order, error)
	// TrackingNumbers streams every issued tracking number.
	TrackingNumbers(ctx context.Context, fn func(number string)) error
}
