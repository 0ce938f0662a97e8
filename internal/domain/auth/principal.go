// Package auth describes the authenticated caller as seen by the domain.
//
// Token issuance and role management live outside this service; the HTTP
// boundary verifies the bearer token and stores a Principal in the request
// context.
package auth

import (
	"context"
	"strings"

	"github.com/go-faster/errors"
)

// Roles recognised by the storefront.
const (
	RoleCustomer = "Customer"
	RoleAdmin    = "Admin"
)

var (
	// ErrInvalidUser is returned when an operation requires an identity but
	// none (or an empty one) was supplied.
	ErrInvalidUser = errors.New("invalid user")
	// ErrForbidden is returned when the caller lacks the role for an operation.
	ErrForbidden = errors.New("forbidden")
)

// Principal is the authenticated caller. UserID is the primary key of the
// user as issued by the identity provider.
type Principal struct {
	UserID string
	Roles  []string
}

// HasRole reports whether the principal carries role (case-insensitive).
func (p *Principal) HasRole(role string) bool {
	if p == nil {
		return false
	}
	for _, r := range p.Roles {
		if strings.EqualFold(r, role) {
			return true
		}
	}
	return false
}

// RequireUser validates that id identifies a user.
func RequireUser(id string) error {
	if strings.TrimSpace(id) == "" {
		return ErrInvalidUser
	}
	return nil
}

type principalKey struct{}

// WithPrincipal returns a copy of ctx carrying p.
func WithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// FromContext returns the principal stored in ctx, if any.
func FromContext(ctx context.Context) (*Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(*Principal)
	if !ok || p == nil {
		return nil, false
	}
	return p, true
}
