package handler

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/xenking/storefront-backoffice/internal/domain/auth"
)

// AuthConfig configures bearer token verification.
type AuthConfig struct {
	// Secret is the HS256 signing key.
	Secret string
	// Issuer and Audience are enforced when non-empty.
	Issuer   string
	Audience string
	// Leeway tolerates clock skew on exp/nbf/iat.
	Leeway time.Duration
}

// Authenticator verifies HS256 bearer tokens and stores the resulting
// auth.Principal in the request context.
type Authenticator struct {
	key    []byte
	parser *jwt.Parser
}

// NewAuthenticator returns an Authenticator for cfg.
func NewAuthenticator(cfg AuthConfig) (*Authenticator, error) {
	if cfg.Secret == "" {
		return nil, errors.New("auth secret is required")
	}
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(cfg.Leeway),
	}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}
	if cfg.Audience != "" {
		opts = append(opts, jwt.WithAudience(cfg.Audience))
	}
	return &Authenticator{
		key:    []byte(cfg.Secret),
		parser: jwt.NewParser(opts...),
	}, nil
}

// Claims are the token claims the service understands.
type Claims struct {
	Roles Roles `json:"roles,omitempty"`
	jwt.RegisteredClaims
}

// Roles accepts either a single role string or an array of roles.
type Roles []string

// UnmarshalJSON implements json.Unmarshaler.
func (r *Roles) UnmarshalJSON(data []byte) error {
	d := jx.DecodeBytes(data)
	switch d.Next() {
	case jx.Null:
		*r = nil
		return nil
	case jx.String:
		v, err := d.Str()
		if err != nil {
			return err
		}
		*r = Roles{v}
		return nil
	case jx.Array:
		var out Roles
		if err := d.Arr(func(d *jx.Decoder) error {
			v, err := d.Str()
			if err != nil {
				return err
			}
			out = append(out, v)
			return nil
		}); err != nil {
			return err
		}
		*r = out
		return nil
	default:
		return errors.Errorf("roles: unexpected %s", d.Next())
	}
}

// Principal verifies raw and returns the identity it carries.
func (a *Authenticator) Principal(raw string) (*auth.Principal, error) {
	var claims Claims
	if _, err := a.parser.ParseWithClaims(raw, &claims, func(*jwt.Token) (any, error) {
		return a.key, nil
	}); err != nil {
		return nil, errors.Wrap(err, "parse token")
	}
	if err := auth.RequireUser(claims.Subject); err != nil {
		return nil, err
	}
	return &auth.Principal{UserID: claims.Subject, Roles: claims.Roles}, nil
}

// Authenticate rejects requests without a valid bearer token.
func (a *Authenticator) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, ok := bearerToken(r)
		if !ok {
			w.Header().Set("WWW-Authenticate", "Bearer")
			writeFail(w, http.StatusUnauthorized, "Unauthorized.")
			return
		}
		p, err := a.Principal(raw)
		switch {
		case errors.Is(err, auth.ErrInvalidUser):
			writeFail(w, http.StatusUnauthorized, "Invalid user.")
			return
		case err != nil:
			zctx.From(r.Context()).Debug("Token rejected", zap.Error(err))
			w.Header().Set("WWW-Authenticate", `Bearer error="invalid_token"`)
			writeFail(w, http.StatusUnauthorized, "Unauthorized.")
			return
		}
		ctx := auth.WithPrincipal(r.Context(), p)
		ctx = zctx.Base(ctx, zctx.From(ctx).With(zap.String("user_id", p.UserID)))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireRole rejects authenticated principals that lack role.
func RequireRole(role string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, ok := auth.FromContext(r.Context())
			if !ok {
				writeFail(w, http.StatusUnauthorized, "Unauthorized.")
				return
			}
			if !p.HasRole(role) {
				writeFail(w, http.StatusForbidden, "Forbidden.")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func bearerToken(r *http.Request) (string, bool) {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

// userID returns the authenticated subject. Authenticate guarantees it is
// present on protected routes.
func userID(r *http.Request) string {
	if p, ok := auth.FromContext(r.Context()); ok {
		return p.UserID
	}
	return ""
}
