package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/brightline-dev/storefront-backend/api/controllers"
	"github.com/brightline-dev/storefront-backend/api/middleware"
	"github.com/brightline-dev/storefront-backend/internal/addresses"
	cartsvc "github.com/brightline-dev/storefront-backend/internal/cart"
	checkoutsvc "github.com/brightline-dev/storefront-backend/internal/checkout"
	"github.com/brightline-dev/storefront-backend/internal/coupons"
	ordersvc "github.com/brightline-dev/storefront-backend/internal/orders"
	"github.com/brightline-dev/storefront-backend/pkg/config"
	"github.com/brightline-dev/storefront-backend/pkg/logger"
	"github.com/brightline-dev/storefront-backend/pkg/redis"
)

func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	dbP controllers.Pinger,
	redisClient *redis.Client,
	gatherer prometheus.Gatherer,
	cartService cartsvc.Service,
	couponService coupons.Service,
	checkoutService checkoutsvc.Service,
	orderService ordersvc.Service,
	addressService addresses.Service,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, dbP, redisClient, logg))
	})

	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	r.Route("/api/public", func(r chi.Router) {
		r.Get("/ping", controllers.Ping())
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))

		r.Route("/cart", func(r chi.Router) {
			r.Get("/", controllers.GetCart(cartService, logg))
			r.Delete("/", controllers.ClearCart(cartService, logg))
			r.Post("/items", controllers.AddCartItem(cartService, logg))
			r.Patch("/items/{variantID}", controllers.UpdateCartItem(cartService, logg))
			r.Delete("/items/{variantID}", controllers.RemoveCartItem(cartService, logg))
			r.Post("/coupon", controllers.AttachCartCoupon(cartService, logg))
			r.Delete("/coupon", controllers.DetachCartCoupon(cartService, logg))
		})

		r.Post("/coupons/validate", controllers.ValidateCoupon(cartService, couponService, logg))

		r.Route("/orders", func(r chi.Router) {
			r.Post("/", controllers.CreateOrder(checkoutService, logg))
			r.Get("/", controllers.ListOrders(orderService, logg))
			r.Get("/{orderID}", controllers.GetOrder(orderService, logg))
		})

		r.Route("/addresses", func(r chi.Router) {
			r.Get("/", controllers.ListAddresses(addressService, logg))
			r.Post("/", controllers.CreateAddress(addressService, logg))
		})
	})

	return r
}
