package main

import (
	"context"
	"net/http"
	"os"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/storefrontlabs/storefront-backend/api/routes"
	"github.com/storefrontlabs/storefront-backend/internal/audit"
	"github.com/storefrontlabs/storefront-backend/internal/auth"
	"github.com/storefrontlabs/storefront-backend/internal/cart"
	"github.com/storefrontlabs/storefront-backend/internal/catalog"
	"github.com/storefrontlabs/storefront-backend/internal/customers"
	"github.com/storefrontlabs/storefront-backend/internal/inventory"
	"github.com/storefrontlabs/storefront-backend/internal/orders"
	"github.com/storefrontlabs/storefront-backend/pkg/config"
	"github.com/storefrontlabs/storefront-backend/pkg/db"
	"github.com/storefrontlabs/storefront-backend/pkg/logger"
	"github.com/storefrontlabs/storefront-backend/pkg/mailer"
	"github.com/storefrontlabs/storefront-backend/pkg/migrate"
	"github.com/storefrontlabs/storefront-backend/pkg/redis"
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

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	mailSender := mailer.FromConfig(cfg.SMTP, logg)

	svcs, err := buildServices(dbClient, mailSender, cfg)
	if err != nil {
		logg.Error(context.Background(), "failed to wire services", err)
		os.Exit(1)
	}

	promRegistry := prometheus.NewRegistry()
	promRegistry.MustRegister(collectors.NewGoCollector())

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
		Addr:    addr,
		Handler: routes.NewRouter(cfg, logg, dbClient, redisClient, promRegistry, svcs),
	}

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logg.Error(ctx, "api server stopped unexpectedly", err)
		os.Exit(1)
	}
}

// buildServices wires the domain graph. The orders service doubles as the
// cart's order factory so checkout stays a single transaction.
func buildServices(dbClient *db.Client, mailSender mailer.Sender, cfg *config.Config) (routes.Services, error) {
	conn := dbClient.DB()

	auditRepo := audit.NewRepository(conn)
	recorder, err := audit.NewRecorder(auditRepo)
	if err != nil {
		return routes.Services{}, err
	}
	auditSvc, err := audit.NewService(auditRepo)
	if err != nil {
		return routes.Services{}, err
	}

	adjuster := inventory.NewAdjuster()

	catalogRepo := catalog.NewRepository(conn)
	catalogSvc, err := catalog.NewService(catalogRepo, dbClient, adjuster, recorder)
	if err != nil {
		return routes.Services{}, err
	}

	ordersSvc, err := orders.NewService(orders.NewRepository(conn), catalogRepo, adjuster, dbClient, recorder)
	if err != nil {
		return routes.Services{}, err
	}

	cartSvc, err := cart.NewService(cart.NewRepository(conn), catalogRepo, dbClient, ordersSvc, recorder)
	if err != nil {
		return routes.Services{}, err
	}

	authSvc, err := auth.NewService(auth.NewRepository(conn), dbClient, recorder, mailSender, cfg.JWT, cfg.Password)
	if err != nil {
		return routes.Services{}, err
	}

	customersSvc, err := customers.NewService(customers.NewRepository(conn), dbClient, recorder)
	if err != nil {
		return routes.Services{}, err
	}

	return routes.Services{
		Auth:      authSvc,
		Customers: customersSvc,
		Catalog:   catalogSvc,
		Cart:      cartSvc,
		Orders:    ordersSvc,
		Audit:     auditSvc,
	}, nil
}
