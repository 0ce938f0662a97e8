package app

import (
	"context"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/storefront-backoffice/internal/domain/cart"
	"github.com/xenking/storefront-backoffice/internal/domain/order"
	"github.com/xenking/storefront-backoffice/internal/domain/product"
	"github.com/xenking/storefront-backoffice/internal/handler"
	"github.com/xenking/storefront-backoffice/internal/storage/postgres"
	"github.com/xenking/storefront-backoffice/pkg/health"
	"github.com/xenking/storefront-backoffice/pkg/httpmiddleware"
)

const serviceName = "storefront-backoffice"

// Run creates all dependencies, starts the HTTP server, and handles graceful
// shutdown. It is the single wiring point for the application.
func Run(ctx context.Context, lg *zap.Logger, m *app.Telemetry, cfg *Config) error {
	lg.Info("Initializing",
		zap.String("addr", cfg.Addr),
		zap.Bool("reserve_stock", cfg.Checkout.ReserveStock),
		zap.Duration("cancel_window", cfg.Checkout.CancelWindow),
	)

	// PostgreSQL pool + migrations.
	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return errors.Wrap(err, "create db pool")
	}
	defer pool.Close()

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	// Health checks. Postgres gates readiness; the pool and goroutine
	// checks only report.
	healthSvc := health.New(10 * time.Second)
	healthSvc.Register(health.Check{
		Name:     "postgres",
		Kind:     health.Readiness,
		Timeout:  5 * time.Second,
		Func:     health.PingCheck(pool),
		Required: true,
	})
	healthSvc.Register(health.Check{
		Name: "pool",
		Kind: health.Readiness,
		Func: health.PoolSaturationCheck(func() (int32, int32) {
			st := pool.Stat()
			return st.AcquiredConns(), st.MaxConns()
		}),
		FailAfter: 6,
	})
	healthSvc.Register(health.Check{
		Name: "goroutines",
		Kind: health.Liveness,
		Func: health.GoroutineCheck(10000),
	})

	// Repositories.
	productRepo := postgres.NewProductRepository(pool)
	cartRepo := postgres.NewCartRepository(pool)
	orderRepo := postgres.NewOrderRepository(pool)

	// Tracking numbers already issued seed the collision filter.
	tracking := order.NewTrackingGenerator(cfg.Checkout.TrackingCapacity, cfg.Checkout.TrackingFPRate)
	loaded, err := tracking.Load(ctx, orderRepo)
	if err != nil {
		return errors.Wrap(err, "load tracking numbers")
	}
	lg.Info("Tracking filter loaded", zap.Int("count", loaded))

	// Domain services.
	catalog := product.NewService(productRepo)
	carts := cart.NewService(cartRepo, productRepo)
	orders, err := order.NewService(orderRepo, tracking,
		order.WithCancelWindow(cfg.Checkout.CancelWindow),
		order.WithStockReservation(cfg.Checkout.ReserveStock),
		order.WithTrackingAttempts(cfg.Checkout.TrackingAttempts),
		order.WithTracerProvider(m.TracerProvider()),
		order.WithMeterProvider(m.MeterProvider()),
	)
	if err != nil {
		return errors.Wrap(err, "create order service")
	}

	// HTTP handlers.
	authn, err := handler.NewAuthenticator(handler.AuthConfig{
		Secret:   cfg.Auth.Secret,
		Issuer:   cfg.Auth.Issuer,
		Audience: cfg.Auth.Audience,
		Leeway:   cfg.Auth.Leeway,
	})
	if err != nil {
		return errors.Wrap(err, "create authenticator")
	}
	h := handler.NewHandler(
		handler.HandlerConfig{ImageBaseURL: cfg.ImageBaseURL},
		carts,
		orders,
		catalog,
	)
	limiter := httpmiddleware.NewRateLimiter(httpmiddleware.RateLimitConfig{
		Window: cfg.RateLimit.Window,
		Key:    handler.RateLimitKey,
	})
	router := handler.NewRouter(h, authn, handler.HealthEndpoints{
		Live:  healthSvc.ServeLive,
		Ready: healthSvc.ServeReady,
	}, handler.Limits{
		Read:  limiter.Limit(httpmiddleware.Budget{Name: "read", Max: cfg.RateLimit.Read}),
		Write: limiter.Limit(httpmiddleware.Budget{Name: "write", Max: cfg.RateLimit.Write}),
	})
	routeFinder := httpmiddleware.MakeRouteFinder(router)

	server := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
		Addr:              cfg.Addr,
		Handler: httpmiddleware.Wrap(router,
			httpmiddleware.RequestID(),
			httpmiddleware.InjectLogger(zctx.From(ctx)),
			httpmiddleware.Recovery(),
			httpmiddleware.Instrument(serviceName, routeFinder, m),
			httpmiddleware.LogRequests(routeFinder),
			httpmiddleware.Labeler(routeFinder),
			httpmiddleware.CORS(httpmiddleware.CORSConfig{
				AllowOrigins:     cfg.CORS.Origins,
				AllowCredentials: cfg.CORS.AllowCredentials,
				MaxAge:           cfg.CORS.MaxAge,
			}),
		),
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return healthSvc.Run(gctx) })
	g.Go(func() error { return limiter.Run(gctx) })
	g.Go(func() error {
		// Readiness reports "starting" until required checks pass.
		startCtx, cancel := context.WithTimeout(gctx, cfg.Graceful.StartupTimeout)
		defer cancel()
		if err := healthSvc.Wait(startCtx, 100*time.Millisecond); err != nil {
			if gctx.Err() != nil {
				return nil
			}
			return errors.Wrap(err, "startup checks")
		}
		healthSvc.Serving()
		lg.Info("Serving")
		return nil
	})
	g.Go(func() error {
		lg.Info("Server listening", zap.String("addr", cfg.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return errors.Wrap(err, "server")
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		healthSvc.Drain()
		lg.Info("Draining", zap.Duration("delay", cfg.Graceful.ReadinessDelay))
		time.Sleep(cfg.Graceful.ReadinessDelay)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Graceful.ShutdownTimeout)
		defer cancel()

		lg.Info("Shutting down server", zap.Duration("timeout", cfg.Graceful.ShutdownTimeout))
		if err := server.Shutdown(shutdownCtx); err != nil {
			return errors.Wrap(err, "shutdown")
		}
		return nil
	})
	return g.Wait()
}
