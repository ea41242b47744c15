package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/storefrontlabs/storefront-backend/api/controllers"
	"github.com/storefrontlabs/storefront-backend/api/middleware"
	auditsvc "github.com/storefrontlabs/storefront-backend/internal/audit"
	authsvc "github.com/storefrontlabs/storefront-backend/internal/auth"
	cartsvc "github.com/storefrontlabs/storefront-backend/internal/cart"
	catalogsvc "github.com/storefrontlabs/storefront-backend/internal/catalog"
	customersvc "github.com/storefrontlabs/storefront-backend/internal/customers"
	ordersvc "github.com/storefrontlabs/storefront-backend/internal/orders"
	"github.com/storefrontlabs/storefront-backend/pkg/config"
	"github.com/storefrontlabs/storefront-backend/pkg/db"
	"github.com/storefrontlabs/storefront-backend/pkg/logger"
	"github.com/storefrontlabs/storefront-backend/pkg/metrics"
	"github.com/storefrontlabs/storefront-backend/pkg/redis"
)

// Services bundles everything the router wires into handlers.
type Services struct {
	Auth      authsvc.Service
	Customers customersvc.Service
	Catalog   catalogsvc.Service
	Cart      cartsvc.Service
	Orders    ordersvc.Service
	Audit     auditsvc.Service
}

func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	dbP db.Pinger,
	redisClient *redis.Client,
	promRegistry *prometheus.Registry,
	svcs Services,
) http.Handler {
	r := chi.NewRouter()

	httpMetrics := metrics.NewHTTPMetrics(promRegistry)

	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg, httpMetrics),
		middleware.CORS(),
	)

	loginPolicy := middleware.NewAuthRateLimitPolicy(
		"login",
		cfg.AuthRateLimit.LoginWindow,
		cfg.AuthRateLimit.LoginIPLimit,
		cfg.AuthRateLimit.LoginEmailLimit,
	)
	registerPolicy := middleware.NewAuthRateLimitPolicy(
		"register",
		cfg.AuthRateLimit.RegisterWindow,
		cfg.AuthRateLimit.RegisterIPLimit,
		cfg.AuthRateLimit.RegisterEmailLimit,
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, dbP, redisClient))
	})

	if promRegistry != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(promRegistry, promhttp.HandlerOpts{}))
	}

	r.Route("/api/v1/auth", func(r chi.Router) {
		r.With(middleware.AuthRateLimit(registerPolicy, redisClient, logg)).Post("/register", controllers.AuthRegister(svcs.Auth, logg))
		r.With(middleware.AuthRateLimit(loginPolicy, redisClient, logg)).Post("/login", controllers.AuthLogin(svcs.Auth, logg))
		r.Post("/confirm-email", controllers.AuthConfirmEmail(svcs.Auth, logg))
		r.With(middleware.AuthRateLimit(loginPolicy, redisClient, logg)).Post("/forgot-password", controllers.AuthForgotPassword(svcs.Auth, logg))
		r.Post("/reset-password", controllers.AuthResetPassword(svcs.Auth, logg))
	})

	// Public catalog reads.
	r.Route("/api/v1/catalog", func(r chi.Router) {
		r.Get("/categories", controllers.CategoryList(svcs.Catalog, logg))
		r.Get("/categories/{categoryId}", controllers.CategoryDetail(svcs.Catalog, logg))
		r.Get("/products", controllers.ProductList(svcs.Catalog, logg))
		r.Get("/products/{productId}", controllers.ProductDetail(svcs.Catalog, logg))
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))

		r.Route("/me", func(r chi.Router) {
			r.Get("/", controllers.CustomerProfile(svcs.Customers, logg))
			r.Patch("/", controllers.CustomerUpdateProfile(svcs.Customers, logg))
			r.Delete("/", controllers.CustomerDeactivate(svcs.Customers, logg))
		})

		r.Route("/cart", func(r chi.Router) {
			r.Get("/", controllers.CartFetch(svcs.Cart, svcs.Customers, logg))
			r.Post("/lines", controllers.CartAddLine(svcs.Cart, svcs.Customers, logg))
			r.Delete("/lines/{lineId}", controllers.CartRemoveLine(svcs.Cart, svcs.Customers, logg))
			r.Post("/checkout", controllers.CartCheckout(svcs.Cart, svcs.Customers, logg))
		})

		r.Route("/orders", func(r chi.Router) {
			r.Get("/", controllers.OrderList(svcs.Orders, svcs.Customers, logg))
			r.Get("/{orderId}", controllers.OrderDetail(svcs.Orders, svcs.Customers, logg))
			r.Post("/{orderId}/lines", controllers.OrderAddLine(svcs.Orders, svcs.Customers, logg))
			r.Delete("/{orderId}/lines/{lineId}", controllers.OrderRemoveLine(svcs.Orders, svcs.Customers, logg))
		})
	})

	r.Route("/api/admin/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Use(middleware.RequireAdmin(logg))

		r.Route("/categories", func(r chi.Router) {
			r.Post("/", controllers.CategoryCreate(svcs.Catalog, logg))
			r.Patch("/{categoryId}", controllers.CategoryUpdate(svcs.Catalog, logg))
			r.Delete("/{categoryId}", controllers.CategoryDelete(svcs.Catalog, logg))
			r.Post("/{categoryId}/activate", controllers.CategoryActivate(svcs.Catalog, logg))
		})
		r.Route("/products", func(r chi.Router) {
			// Same listing handler as the public route; include_inactive is
			// honored here because the admin role is on the context.
			r.Get("/", controllers.ProductList(svcs.Catalog, logg))
			r.Post("/", controllers.ProductCreate(svcs.Catalog, logg))
			r.Patch("/{productId}", controllers.ProductUpdate(svcs.Catalog, logg))
			r.Delete("/{productId}", controllers.ProductDelete(svcs.Catalog, logg))
			r.Post("/{productId}/activate", controllers.ProductActivate(svcs.Catalog, logg))
		})
		r.Route("/orders", func(r chi.Router) {
			r.Post("/{orderId}/status", controllers.AdminOrderUpdateStatus(svcs.Orders, logg))
		})
		r.Get("/audit-logs", controllers.AdminAuditList(svcs.Audit, logg))
	})

	return r
}
