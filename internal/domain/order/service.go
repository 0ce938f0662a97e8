package order

import (
	"context"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"

	"github.com/xenking/storefront-backoffice/internal/domain/auth"
	"github.com/xenking/storefront-backoffice/internal/domain/cart"
)

const (
	// DefaultCancelWindow is how long after creation a customer may cancel.
	DefaultCancelWindow = 6 * time.Hour
	// DefaultTrackingAttempts bounds checkout retries on tracking collisions.
	DefaultTrackingAttempts = 5

	instrumentationName = "github.com/xenking/storefront-backoffice/internal/domain/order"
)

// CreateRequest holds the checkout input.
type CreateRequest struct {
	ShippingDate  time.Time
	Address       string
	PaymentMethod PaymentMethod
}

func (r *CreateRequest) validate() error {
	r.Address = strings.TrimSpace(r.Address)
	if r.Address == "" {
		return &ValidationError{Field: "address", Reason: "is required"}
	}
	if r.ShippingDate.IsZero() {
		return &ValidationError{Field: "shippingDate", Reason: "is required"}
	}
	if !r.PaymentMethod.Valid() {
		return &ValidationError{Field: "paymentMethod", Reason: "is not supported"}
	}
	return nil
}

// Service implements checkout, order queries and the order lifecycle.
type Service struct {
	orders   Repository
	tracking *TrackingGenerator

	now          func() time.Time
	cancelWindow time.Duration
	reserveStock bool
	attempts     int

	tracerProvider trace.TracerProvider
	meterProvider  metric.MeterProvider
	tracer         trace.Tracer
	created        metric.Int64Counter
	cancelled      metric.Int64Counter
}

// Option configures a Service.
type Option func(*Service)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithCancelWindow sets how long after creation an order stays cancellable.
func WithCancelWindow(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.cancelWindow = d
		}
	}
}

// WithStockReservation makes checkout decrement product stock.
func WithStockReservation(enabled bool) Option {
	return func(s *Service) { s.reserveStock = enabled }
}

// WithTrackingAttempts bounds checkout attempts on tracking number collisions.
func WithTrackingAttempts(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.attempts = n
		}
	}
}

// WithTracerProvider sets the tracer provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(s *Service) { s.tracerProvider = tp }
}

// WithMeterProvider sets the meter provider.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(s *Service) { s.meterProvider = mp }
}

// NewService creates an order Service.
func NewService(orders Repository, tracking *TrackingGenerator, opts ...Option) (*Service, error) {
	s := &Service{
		orders:         orders,
		tracking:       tracking,
		now:            time.Now,
		cancelWindow:   DefaultCancelWindow,
		attempts:       DefaultTrackingAttempts,
		tracerProvider: tracenoop.NewTracerProvider(),
		meterProvider:  metricnoop.NewMeterProvider(),
	}
	for _, o := range opts {
		o(s)
	}

	s.tracer = s.tracerProvider.Tracer(instrumentationName)
	meter := s.meterProvider.Meter(instrumentationName)

	var err error
	if s.created, err = meter.Int64Counter("orders.created",
		metric.WithDescription("Orders created from carts"),
	); err != nil {
		return nil, errors.Wrap(err, "orders.created counter")
	}
	if s.cancelled, err = meter.Int64Counter("orders.cancelled",
		metric.WithDescription("Orders cancelled by customers"),
	); err != nil {
		return nil, errors.Wrap(err, "orders.cancelled counter")
	}
	return s, nil
}

// CancelWindow returns the configured cancellation window.
func (s *Service) CancelWindow() time.Duration { return s.cancelWindow }

// Create converts the user's cart into an order. The order, its details and
// the emptied cart become visible together or not at all.
func (s *Service) Create(ctx context.Context, userID string, req CreateRequest) (_ *Order, rerr error) {
	ctx, span := s.tracer.Start(ctx, "order.Create")
	defer func() { endSpan(span, rerr) }()

	if err := auth.RequireUser(userID); err != nil {
		return nil, err
	}
	if err := req.validate(); err != nil {
		return nil, err
	}

	for attempt := 1; ; attempt++ {
		number := s.tracking.Next()
		o, err := s.orders.Checkout(ctx, userID, s.reserveStock, func(lines []cart.Line) (*Order, error) {
			return s.build(userID, number, req, lines)
		})
		if err == nil {
			span.SetAttributes(attribute.String("order.tracking_number", o.TrackingNumber))
			s.created.Add(ctx, 1, metric.WithAttributes(
				attribute.String("payment_method", o.PaymentMethod.String()),
			))
			return o, nil
		}
		if errors.Is(err, ErrTrackingNumberTaken) && attempt < s.attempts {
			zctx.From(ctx).Warn("Tracking number collision, retrying",
				zap.String("tracking_number", number),
				zap.Int("attempt", attempt),
			)
			continue
		}
		return nil, passDomain(err, "checkout")
	}
}

func (s *Service) build(userID, number string, req CreateRequest, lines []cart.Line) (*Order, error) {
	if len(lines) == 0 {
		return nil, ErrEmptyCart
	}

	o := &Order{
		TrackingNumber: number,
		UserID:         userID,
		Address:        req.Address,
		OrderDate:      s.now().UTC().Truncate(time.Microsecond),
		ShippingDate:   req.ShippingDate.UTC(),
		Status:         StatusPending,
		PaymentMethod:  req.PaymentMethod,
		PaymentStatus:  PaymentPending,
		Details:        make([]Detail, 0, len(lines)),
	}
	for _, l := range lines {
		if s.reserveStock && l.Stock < l.Quantity {
			return nil, &InsufficientStockError{
				ProductID: l.ProductID,
				Requested: l.Quantity,
				Available: l.Stock,
			}
		}
		o.Details = append(o.Details, Detail{
			ProductID: l.ProductID,
			Quantity:  l.Quantity,
			Price:     l.Price,
			Name:      l.Name,
			ImageURL:  l.ImageURL,
		})
	}
	o.Total = cart.Total(lines)
	if o.Total.GreaterThan(MaxTotal) {
		return nil, &ValidationError{
			Field:  "total",
			Reason: "must be at most " + MaxTotal.StringFixed(2),
		}
	}
	return o, nil
}

// passDomain returns domain errors unchanged and wraps the rest.
func passDomain(err error, msg string) error {
	var (
		stockErr  *InsufficientStockError
		windowErr *CancellationWindowError
		validErr  *ValidationError
	)
	switch {
	case errors.Is(err, ErrNotFound),
		errors.Is(err, ErrEmptyCart),
		errors.Is(err, ErrNotCancellable),
		errors.Is(err, auth.ErrInvalidUser),
		errors.As(err, &stockErr),
		errors.As(err, &windowErr),
		errors.As(err, &validErr):
		return err
	}
	return errors.Wrap(err, msg)
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
