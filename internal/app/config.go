package app

import (
	"os"
	"slices"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"
)

// Config holds the complete application configuration, loadable from
// environment variables (STORE_ prefix), flags, or YAML config files.
type Config struct {
	Addr         string `default:"0.0.0.0:8080" usage:"API server listen address"`
	DatabaseURL  string `usage:"PostgreSQL connection URL (STORE_DATABASE_URL or DATABASE_URL)" flag:"database-url"`
	ImageBaseURL string `default:"" usage:"Base URL prepended to relative product image paths" flag:"image-base-url"`
	Auth         AuthConfig
	Checkout     CheckoutConfig
	RateLimit    RateLimitConfig
	CORS         CORSConfig
	Graceful     GracefulConfig
}

// AuthConfig controls bearer token verification.
type AuthConfig struct {
	Secret   string        `usage:"HS256 signing secret (STORE_AUTH_SECRET)" flag:"auth-secret"`
	Issuer   string        `default:"" usage:"Required token issuer, empty to skip"`
	Audience string        `default:"" usage:"Required token audience, empty to skip"`
	Leeway   time.Duration `default:"30s" usage:"Allowed clock skew for exp/nbf"`
}

// CheckoutConfig controls order placement and cancellation.
type CheckoutConfig struct {
	ReserveStock     bool          `default:"false" usage:"Decrement product stock at checkout" flag:"reserve-stock"`
	CancelWindow     time.Duration `default:"6h" usage:"How long after creation a customer may cancel"`
	TrackingAttempts int           `default:"5" usage:"Tracking number collisions tolerated per checkout"`
	// The tracking filter is sized for the expected order count.
	TrackingCapacity uint    `default:"1000000" usage:"Expected number of tracking numbers"`
	TrackingFPRate   float64 `default:"0.001" usage:"Tracking filter false positive rate"`
}

// RateLimitConfig sets per-client allowances. Authenticated clients are
// keyed by user, anonymous ones by address. Zero disables a budget.
type RateLimitConfig struct {
	Window time.Duration `default:"1m"  usage:"Period over which a budget refills"`
	Read   int           `default:"300" usage:"Catalog and order reads per client per window"`
	Write  int           `default:"60"  usage:"Cart, order and catalog writes per client per window"`
}

// CORSConfig controls Cross-Origin Resource Sharing headers.
type CORSConfig struct {
	Origins          []string      `default:"*" usage:"Allowed CORS origins, exact or scheme://*.domain"`
	AllowCredentials bool          `default:"false" usage:"Allow credentials (cookies, auth headers)" flag:"cors-credentials"`
	MaxAge           time.Duration `default:"24h" usage:"How long browsers may cache preflight results"`
}

// GracefulConfig controls startup and shutdown timing.
type GracefulConfig struct {
	StartupTimeout  time.Duration `default:"30s" usage:"How long readiness checks may take to pass at startup" flag:"startup-timeout"`
	ReadinessDelay  time.Duration `default:"3s"  usage:"Delay after readiness=false before shutdown" flag:"readiness-delay"`
	ShutdownTimeout time.Duration `default:"15s" usage:"Maximum shutdown duration" flag:"shutdown-timeout"`
}

// LoadConfig loads configuration from environment variables, YAML config
// files and command-line flags, then applies platform defaults.
func LoadConfig() (*Config, error) {
	return loadConfig(os.Args[1:])
}

func loadConfig(args []string) (*Config, error) {
	var cfg Config
	loader := aconfig.LoaderFor(&cfg, aconfig.Config{
		EnvPrefix: "STORE",
		Args:      args,
		Files:     []string{"config.yaml", "/etc/storefront/config.yaml"},
		FileDecoders: map[string]aconfig.FileDecoder{
			".yaml": aconfigyaml.New(),
		},
	})
	if err := loader.Load(); err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	cfg.applyPlatformDefaults()

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	switch {
	case c.DatabaseURL == "":
		return errors.New("database URL is required: set STORE_DATABASE_URL or DATABASE_URL")
	case c.Auth.Secret == "":
		return errors.New("auth secret is required: set STORE_AUTH_SECRET")
	case c.Checkout.CancelWindow <= 0:
		return errors.Errorf("cancel window must be positive, got %s", c.Checkout.CancelWindow)
	case c.Checkout.TrackingAttempts < 1:
		return errors.Errorf("tracking attempts must be at least 1, got %d", c.Checkout.TrackingAttempts)
	case c.Checkout.TrackingFPRate <= 0 || c.Checkout.TrackingFPRate >= 1:
		return errors.Errorf("tracking false positive rate must be in (0, 1), got %v", c.Checkout.TrackingFPRate)
	case c.RateLimit.Window <= 0:
		return errors.Errorf("rate limit window must be positive, got %s", c.RateLimit.Window)
	case c.RateLimit.Read < 0 || c.RateLimit.Write < 0:
		return errors.New("rate limit budgets must not be negative")
	case c.CORS.AllowCredentials && (len(c.CORS.Origins) == 0 || slices.Contains(c.CORS.Origins, "*")):
		return errors.New("CORS credentials require explicit origins")
	}
	return nil
}

// applyPlatformDefaults maps platform-provided environment variables (Railway,
// Render, etc.) that use standard names like DATABASE_URL and PORT to the
// application's STORE_-prefixed configuration.
func (c *Config) applyPlatformDefaults() {
	if c.DatabaseURL == "" {
		if v := os.Getenv("DATABASE_URL"); v != "" {
			c.DatabaseURL = v
		}
	}
	if port := os.Getenv("PORT"); port != "" && c.Addr == "0.0.0.0:8080" {
		c.Addr = "0.0.0.0:" + port
	}
}
