package main

import (
	"context"
	"fmt"
	"net/http"
	"os"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/brightline-dev/storefront-backend/api/routes"
	"github.com/brightline-dev/storefront-backend/internal/addresses"
	"github.com/brightline-dev/storefront-backend/internal/cart"
	"github.com/brightline-dev/storefront-backend/internal/catalog"
	"github.com/brightline-dev/storefront-backend/internal/checkout"
	"github.com/brightline-dev/storefront-backend/internal/coupons"
	"github.com/brightline-dev/storefront-backend/internal/orders"
	"github.com/brightline-dev/storefront-backend/internal/payments"
	"github.com/brightline-dev/storefront-backend/pkg/config"
	"github.com/brightline-dev/storefront-backend/pkg/db"
	"github.com/brightline-dev/storefront-backend/pkg/logger"
	"github.com/brightline-dev/storefront-backend/pkg/metrics"
	"github.com/brightline-dev/storefront-backend/pkg/migrate"
	"github.com/brightline-dev/storefront-backend/pkg/redis"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	checkoutMetrics := metrics.NewCheckoutMetrics(registry)

	catalogService, err := catalog.NewService(catalog.NewRepository(dbClient.DB()))
	if err != nil {
		logg.Error(context.Background(), "failed to create catalog service", err)
		os.Exit(1)
	}

	couponService, err := coupons.NewService(coupons.NewRepository(dbClient.DB()))
	if err != nil {
		logg.Error(context.Background(), "failed to create coupon service", err)
		os.Exit(1)
	}

	cartRepo := cart.NewRepository(dbClient.DB())
	cartService, err := cart.NewService(cartRepo, catalogService, couponService)
	if err != nil {
		logg.Error(context.Background(), "failed to create cart service", err)
		os.Exit(1)
	}

	addressService, err := addresses.NewService(addresses.NewRepository(dbClient.DB()))
	if err != nil {
		logg.Error(context.Background(), "failed to create address service", err)
		os.Exit(1)
	}

	orderRepo := orders.NewRepository(dbClient.DB())
	orderService, err := orders.NewService(orderRepo)
	if err != nil {
		logg.Error(context.Background(), "failed to create order service", err)
		os.Exit(1)
	}

	authorizer, err := newAuthorizer(cfg, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create payment authorizer", err)
		os.Exit(1)
	}

	checkoutService, err := checkout.NewService(
		dbClient,
		cartRepo,
		cartService,
		couponService,
		addressService,
		orderRepo,
		authorizer,
		redisClient,
		checkoutMetrics,
		logg,
		cfg.Checkout,
	)
	if err != nil {
		logg.Error(context.Background(), "failed to create checkout service", err)
		os.Exit(1)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":  cfg.App.Env,
		"addr": addr,
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(
			cfg,
			logg,
			dbClient,
			redisClient,
			registry,
			cartService,
			couponService,
			checkoutService,
			orderService,
			addressService,
		),
	}

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logg.Error(ctx, "api server stopped unexpectedly", err)
		os.Exit(1)
	}
}

// newAuthorizer picks the real gateway client when one is configured and
// falls back to the stub outside prod.
func newAuthorizer(cfg *config.Config, logg *logger.Logger) (payments.Authorizer, error) {
	if cfg.Payment.BaseURL != "" {
		return payments.NewHTTPAuthorizer(cfg.Payment)
	}
	if cfg.App.IsProd() {
		return nil, fmt.Errorf("STOREFRONT_PAYMENT_BASE_URL is required in prod")
	}
	logg.Warn(context.Background(), "payment gateway not configured, using stub authorizer")
	return &payments.StubAuthorizer{}, nil
}
