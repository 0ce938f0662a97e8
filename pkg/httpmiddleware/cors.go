package httpmiddleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"
)

// CORSConfig configures cross-origin access for browser frontends.
type CORSConfig struct {
	// AllowOrigins lists exact origins or "scheme://*.domain" patterns.
	// Empty or "*" allows any origin.
	AllowOrigins []string
	// AllowCredentials lets browsers send cookies and authorization
	// headers. It disables the "*" wildcard.
	AllowCredentials bool
	// MaxAge is how long browsers may cache a preflight. Zero omits it.
	MaxAge time.Duration
}

const (
	corsMethods = "GET, POST, PUT, PATCH, DELETE"
	corsHeaders = "Authorization, Content-Type, " + RequestIDHeader
	corsExposed = RequestIDHeader + ", Retry-After, X-RateLimit-Budget, X-RateLimit-Limit, X-RateLimit-Remaining, X-RateLimit-Reset"
)

type corsPolicy struct {
	any         bool
	credentials bool
	exact       map[string]struct{}
	suffixes    []originSuffix
	maxAge      string
}

// originSuffix matches "scheme://*.domain" patterns.
type originSuffix struct {
	scheme string // "https://"
	domain string // ".example.com"
}

func newCORSPolicy(cfg CORSConfig) *corsPolicy {
	p := &corsPolicy{
		any:         len(cfg.AllowOrigins) == 0,
		credentials: cfg.AllowCredentials,
		exact:       make(map[string]struct{}),
	}
	for _, o := range cfg.AllowOrigins {
		o = strings.ToLower(strings.TrimRight(strings.TrimSpace(o), "/"))
		scheme, host, ok := strings.Cut(o, "://")
		switch {
		case o == "*":
			p.any = true
		case ok && strings.HasPrefix(host, "*."):
			p.suffixes = append(p.suffixes, originSuffix{scheme: scheme + "://", domain: host[1:]})
		case o != "":
			p.exact[o] = struct{}{}
		}
	}
	if p.credentials {
		// Credentialed responses must name the origin.
		p.any = false
	}
	if cfg.MaxAge > 0 {
		p.maxAge = strconv.Itoa(int(cfg.MaxAge / time.Second))
	}
	return p
}

// allows reports whether origin may call the API and the value to send in
// Access-Control-Allow-Origin.
func (p *corsPolicy) allows(origin string) (string, bool) {
	if p.any {
		return "*", true
	}
	o := strings.ToLower(origin)
	if _, ok := p.exact[o]; ok {
		return origin, true
	}
	for _, s := range p.suffixes {
		if strings.HasPrefix(o, s.scheme) && strings.HasSuffix(o, s.domain) &&
			len(o) > len(s.scheme)+len(s.domain) {
			return origin, true
		}
	}
	return "", false
}

// CORS answers preflights without reaching the router and decorates actual
// requests from allowed origins. Preflights from other origins get 403.
func CORS(cfg CORSConfig) Middleware {
	p := newCORSPolicy(cfg)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			if !p.any {
				h.Add("Vary", "Origin")
			}
			origin := r.Header.Get("Origin")
			if origin == "" {
				next.ServeHTTP(w, r)
				return
			}
			allowOrigin, ok := p.allows(origin)

			if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
				h.Add("Vary", "Access-Control-Request-Method")
				h.Add("Vary", "Access-Control-Request-Headers")
				if !ok {
					writeError(w, http.StatusForbidden, "Origin not allowed.")
					return
				}
				h.Set("Access-Control-Allow-Origin", allowOrigin)
				h.Set("Access-Control-Allow-Methods", corsMethods)
				h.Set("Access-Control-Allow-Headers", corsHeaders)
				if p.credentials {
					h.Set("Access-Control-Allow-Credentials", "true")
				}
				if p.maxAge != "" {
					h.Set("Access-Control-Max-Age", p.maxAge)
				}
				w.WriteHeader(http.StatusNoContent)
				return
			}

			if ok {
				h.Set("Access-Control-Allow-Origin", allowOrigin)
				h.Set("Access-Control-Expose-Headers", corsExposed)
				if p.credentials {
					h.Set("Access-Control-Allow-Credentials", "true")
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}
