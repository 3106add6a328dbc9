package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	httptransport "github.com/spec-kit/storefront-auth/internal/api/http"
	"github.com/spec-kit/storefront-auth/internal/api/http/handlers"
	"github.com/spec-kit/storefront-auth/internal/auth"
	"github.com/spec-kit/storefront-auth/internal/config"
	"github.com/spec-kit/storefront-auth/internal/events"
	"github.com/spec-kit/storefront-auth/internal/observability"
	"github.com/spec-kit/storefront-auth/internal/persistence"
	"github.com/spec-kit/storefront-auth/internal/ratelimit"
	"github.com/spec-kit/storefront-auth/internal/repository"
	"github.com/spec-kit/storefront-auth/internal/service"
	"github.com/spec-kit/storefront-auth/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logger)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		logger.Fatal("failed to connect postgres", zap.Error(err))
	}
	defer pg.Close()

	if cfg.Postgres.RunMigrations {
		if err := persistence.RunMigrations(ctx, pg.PoolHandle(), logger); err != nil {
			logger.Fatal("failed to run migrations", zap.Error(err))
		}
	}

	redis := persistence.NewRedis(cfg.Redis, logger)
	defer redis.Close()

	pool := pg.PoolHandle()
	userRepo := repository.NewUserRepository(pool)
	productRepo := repository.NewProductRepository(pool)

	metrics := observability.NewMetrics()
	dispatcher := events.NewInMemoryDispatcher()

	codec := auth.NewTokenCodec(cfg.Auth)
	transport := auth.NewCredentialTransport(cfg.Auth.CookieSecure, cfg.Auth.AccessTokenTTL, cfg.Auth.RefreshTokenTTL)
	policy := auth.NewPolicyTable(auth.DefaultGrants())
	guard := auth.NewGuard(codec, transport, auth.GuardConfig{
		ProtectedAPIPrefixes:  cfg.Auth.ProtectedAPIPrefixes,
		AdminPrefixes:         cfg.Auth.AdminPrefixes,
		ProtectedPagePrefixes: cfg.Auth.ProtectedPagePrefixes,
		LoginPath:             cfg.Auth.LoginPath,
	}, logger)

	limiter := ratelimit.NewLoginLimiter(redis.Client, cfg.Auth.LoginRateLimit, cfg.Auth.LoginRateWindow, logger)

	authService := service.NewAuthService(*cfg, service.AuthDependencies{
		Users:      userRepo,
		Codec:      codec,
		Limiter:    limiter,
		Dispatcher: dispatcher,
		Logger:     logger,
	})
	auditService := service.NewAuditService(dispatcher, logger, metrics)
	worker.StartAuditWorker(auditService)

	app := fiber.New()
	httptransport.RegisterMiddlewares(app, logger, metrics, cfg.App.RequestTimeout())

	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health:  handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, pg, redis),
		Auth:    handlers.NewAuthHandler(authService, transport),
		Catalog: handlers.NewCatalogHandler(productRepo),
		Admin:   handlers.NewAdminHandler(userRepo),
		Guard:   guard,
		Policy:  policy,
	})

	go func() {
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	waitForShutdown(logger)

	_ = app.Shutdown()
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
