package order

import (
	"context"
	"strings"
	"time"

	"github.com/go-faster/sdk/zctx"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"github.com/xenking/storefront-backoffice/internal/domain/auth"
)

// EditRequest carries the fields an administrator may overwrite.
type EditRequest struct {
	ShippingDate  time.Time
	Address       string
	PaymentMethod PaymentMethod
	PaymentStatus PaymentStatus
	Status        Status
}

func (r *EditRequest) validate() error {
	r.Address = strings.TrimSpace(r.Address)
	switch {
	case r.Address == "":
		return &ValidationError{Field: "address", Reason: "is required"}
	case r.ShippingDate.IsZero():
		return &ValidationError{Field: "shippingDate", Reason: "is required"}
	case !r.PaymentMethod.Valid():
		return &ValidationError{Field: "paymentMethod", Reason: "is not supported"}
	case !r.PaymentStatus.Valid():
		return &ValidationError{Field: "paymentStatus", Reason: "is not supported"}
	case !r.Status.Valid():
		return &ValidationError{Field: "orderStatus", Reason: "is not supported"}
	}
	return nil
}

// Cancel moves one of the user's orders to Cancelled. Orders owned by
// someone else are reported as not found.
func (s *Service) Cancel(ctx context.Context, userID, trackingNumber string) (_ *Order, rerr error) {
	ctx, span := s.tracer.Start(ctx, "order.Cancel")
	defer func() { endSpan(span, rerr) }()

	if err := auth.RequireUser(userID); err != nil {
		return nil, err
	}
	trackingNumber = normalizeTracking(trackingNumber)
	if trackingNumber == "" {
		return nil, ErrNotFound
	}

	now := s.now()
	o, err := s.orders.Update(ctx, trackingNumber, func(o *Order) error {
		if o.UserID != userID {
			return ErrNotFound
		}
		if !o.Status.Cancellable() {
			return ErrNotCancellable
		}
		if now.Sub(o.OrderDate) > s.cancelWindow {
			return &CancellationWindowError{Window: s.cancelWindow}
		}
		o.Status = StatusCancelled
		return nil
	})
	if err != nil {
		return nil, passDomain(err, "cancel order")
	}

	s.cancelled.Add(ctx, 1, metric.WithAttributes(
		attribute.String("payment_method", o.PaymentMethod.String()),
	))
	return o, nil
}

// Edit overwrites the shipping, payment and status fields of an order.
// Any status transition is accepted; every edit is written to the audit log.
func (s *Service) Edit(ctx context.Context, trackingNumber string, req EditRequest) (_ *Order, rerr error) {
	ctx, span := s.tracer.Start(ctx, "order.Edit")
	defer func() { endSpan(span, rerr) }()

	if err := req.validate(); err != nil {
		return nil, err
	}
	trackingNumber = normalizeTracking(trackingNumber)
	if trackingNumber == "" {
		return nil, ErrNotFound
	}

	var prev Order
	o, err := s.orders.Update(ctx, trackingNumber, func(o *Order) error {
		prev = *o
		o.ShippingDate = req.ShippingDate.UTC()
		o.Address = req.Address
		o.PaymentMethod = req.PaymentMethod
		o.PaymentStatus = req.PaymentStatus
		o.Status = req.Status
		return nil
	})
	if err != nil {
		return nil, passDomain(err, "edit order")
	}

	fields := []zap.Field{
		zap.String("tracking_number", o.TrackingNumber),
		zap.Stringer("status_from", prev.Status),
		zap.Stringer("status_to", o.Status),
		zap.Stringer("payment_status_from", prev.PaymentStatus),
		zap.Stringer("payment_status_to", o.PaymentStatus),
		zap.Stringer("payment_method_from", prev.PaymentMethod),
		zap.Stringer("payment_method_to", o.PaymentMethod),
	}
	if p, ok := auth.FromContext(ctx); ok {
		fields = append(fields, zap.String("editor", p.UserID))
	}
	zctx.From(ctx).Info("Order edited", fields...)
	return o, nil
}
