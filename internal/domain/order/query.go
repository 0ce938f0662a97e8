package order

import (
	"context"
	"strings"
	"time"

	"github.com/xenking/storefront-backoffice/internal/domain/auth"
)

// Paging defaults.
const (
	DefaultPageNumber = 1
	DefaultPageSize   = 10
	MaxPageSize       = 100
)

// Match selects how Query.TrackingNumber is compared.
type Match uint8

const (
	MatchExact Match = iota
	MatchContains
)

// SortField selects the listing order. Ties are broken by newest id.
type SortField uint8

const (
	// SortByOrderDate sorts newest first.
	SortByOrderDate SortField = iota
	// SortByOrderStatus sorts by lifecycle position, Pending first.
	SortByOrderStatus
)

// ParseSortField maps the sortBy parameter. Unknown or empty values fall
// back to SortByOrderDate.
func ParseSortField(v string) SortField {
	if strings.EqualFold(strings.TrimSpace(v), "OrderStatus") {
		return SortByOrderStatus
	}
	return SortByOrderDate
}

func (f SortField) String() string {
	if f == SortByOrderStatus {
		return "OrderStatus"
	}
	return "OrderDate"
}

// Query filters orders for the repository. Zero fields do not filter.
type Query struct {
	UserID         string
	TrackingNumber string
	Match          Match
	// OrderDay matches orders created on the same UTC calendar day.
	OrderDay *time.Time
	SortBy   SortField
	Offset   int
	Limit    int
}

// PageRequest selects a 1-based page.
type PageRequest struct {
	Number int
	Size   int
}

// normalize validates p and clamps oversized pages to MaxPageSize.
func (p PageRequest) normalize() (PageRequest, error) {
	if p.Number < 1 {
		return p, &ValidationError{Field: "pageNumber", Reason: "must be at least 1"}
	}
	if p.Size < 1 {
		return p, &ValidationError{Field: "pageSize", Reason: "must be at least 1"}
	}
	p.Size = min(p.Size, MaxPageSize)
	return p, nil
}

// Page is one page of order headers.
type Page struct {
	Items      []Order
	PageNumber int
	PageSize   int
	TotalItems int
	TotalPages int
}

// ListRequest filters a customer's own orders.
type ListRequest struct {
	TrackingNumber string
	SortBy         SortField
	Page           PageRequest
}

// AdminListRequest filters orders across all customers.
type AdminListRequest struct {
	TrackingNumber string
	OrderDate      *time.Time
	SortBy         SortField
	Page           PageRequest
}

// ListMine pages through the user's orders, optionally narrowed to one
// exact tracking number.
func (s *Service) ListMine(ctx context.Context, userID string, req ListRequest) (_ *Page, rerr error) {
	ctx, span := s.tracer.Start(ctx, "order.ListMine")
	defer func() { endSpan(span, rerr) }()

	if err := auth.RequireUser(userID); err != nil {
		return nil, err
	}
	return s.list(ctx, Query{
		UserID:         userID,
		TrackingNumber: normalizeTracking(req.TrackingNumber),
		Match:          MatchExact,
		SortBy:         req.SortBy,
	}, req.Page)
}

// ListAll pages through every order. The tracking number filter matches
// substrings. The date filter takes the calendar date in the offset the
// caller supplied and matches orders placed on that UTC day.
func (s *Service) ListAll(ctx context.Context, req AdminListRequest) (_ *Page, rerr error) {
	ctx, span := s.tracer.Start(ctx, "order.ListAll")
	defer func() { endSpan(span, rerr) }()

	q := Query{
		TrackingNumber: normalizeTracking(req.TrackingNumber),
		Match:          MatchContains,
		SortBy:         req.SortBy,
	}
	if req.OrderDate != nil {
		day := startOfDay(*req.OrderDate)
		q.OrderDay = &day
	}
	return s.list(ctx, q, req.Page)
}

func (s *Service) list(ctx context.Context, q Query, p PageRequest) (*Page, error) {
	p, err := p.normalize()
	if err != nil {
		return nil, err
	}
	q.Offset = (p.Number - 1) * p.Size
	q.Limit = p.Size

	items, total, err := s.orders.Find(ctx, q)
	if err != nil {
		return nil, passDomain(err, "find orders")
	}
	if items == nil {
		items = []Order{}
	}
	return &Page{
		Items:      items,
		PageNumber: p.Number,
		PageSize:   p.Size,
		TotalItems: total,
		TotalPages: totalPages(total, p.Size),
	}, nil
}

// GetMine returns the newest of the user's orders whose tracking number
// contains the given fragment, with its details.
func (s *Service) GetMine(ctx context.Context, userID, tracking string) (_ *Order, rerr error) {
	ctx, span := s.tracer.Start(ctx, "order.GetMine")
	defer func() { endSpan(span, rerr) }()

	if err := auth.RequireUser(userID); err != nil {
		return nil, err
	}
	tracking = normalizeTracking(tracking)
	if tracking == "" {
		return nil, &ValidationError{Field: "trackingNumber", Reason: "is required"}
	}
	o, err := s.orders.FindOne(ctx, Query{
		UserID:         userID,
		TrackingNumber: tracking,
		Match:          MatchContains,
		SortBy:         SortByOrderDate,
	})
	if err != nil {
		return nil, passDomain(err, "find order")
	}
	return o, nil
}

func totalPages(total, size int) int {
	if total <= 0 {
		return 0
	}
	return (total + size - 1) / size
}

// Tracking numbers are stored upper-case.
func normalizeTracking(v string) string {
	return strings.ToUpper(strings.TrimSpace(v))
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
