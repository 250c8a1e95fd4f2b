package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	httptransport "github.com/spec-kit/crm-access/internal/api/http"
	"github.com/spec-kit/crm-access/internal/api/http/handlers"
	"github.com/spec-kit/crm-access/internal/auth"
	"github.com/spec-kit/crm-access/internal/config"
	"github.com/spec-kit/crm-access/internal/events"
	"github.com/spec-kit/crm-access/internal/observability"
	"github.com/spec-kit/crm-access/internal/persistence"
	"github.com/spec-kit/crm-access/internal/repository"
	"github.com/spec-kit/crm-access/internal/service"
	"github.com/spec-kit/crm-access/internal/worker"
	"github.com/spec-kit/crm-access/migrations"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logger)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdownTracing := observability.SetupTracing(ctx, cfg.App, cfg.Tracing, logger)

	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		logger.Fatal("failed to connect postgres", zap.Error(err))
	}
	defer pg.Close()

	if cfg.Postgres.RunMigrations {
		if err := persistence.RunMigrations(ctx, pg.Pool, migrations.FS, logger); err != nil {
			logger.Fatal("failed to run migrations", zap.Error(err))
		}
	}

	redis := persistence.NewRedis(ctx, cfg.Redis, logger)
	defer redis.Close()

	userRepo := repository.NewUserRepository(pg.Pool)
	roleRepo := repository.NewRoleRepository(pg.Pool)
	salesRepRepo := repository.NewSalesRepRepository(pg.Pool)
	clientRepo := repository.NewClientRepository(pg.Pool)

	codec, err := auth.NewTokenCodec(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL())
	if err != nil {
		logger.Fatal("failed to init token codec", zap.Error(err))
	}
	verifier := auth.NewTokenVerifier(codec)

	metrics := observability.NewMetrics()
	dispatcher := events.NewInMemoryDispatcher()
	worker.StartAuditWorker(service.NewAuditService(dispatcher, logger))

	accessService := service.NewAccessService(cfg.Auth, service.AccessDependencies{
		UserRepo:     userRepo,
		RoleRepo:     roleRepo,
		SalesRepRepo: salesRepRepo,
		ClientRepo:   clientRepo,
		Metrics:      metrics,
		Logger:       logger,
	})
	sessionService, err := service.NewSessionService(cfg.Auth, service.SessionDependencies{
		UserRepo:   userRepo,
		RoleRepo:   roleRepo,
		Issuer:     codec,
		Verifier:   verifier,
		Throttle:   redis.LoginThrottle(cfg.Auth),
		Dispatcher: dispatcher,
		Metrics:    metrics,
		Logger:     logger,
	})
	if err != nil {
		logger.Fatal("failed to init session service", zap.Error(err))
	}
	clientService := service.NewClientService(cfg.Auth, clientRepo, salesRepRepo)

	cookie := auth.CookieConfig{
		Name:   cfg.Auth.CookieName,
		Secure: cfg.App.SecureCookies(),
		MaxAge: cfg.Auth.TokenTTL(),
	}
	gate := auth.NewRequestGate(verifier, auth.DefaultGateConfig(cookie, cfg.Auth.SignInPath, cfg.Auth.LandingPath), metrics)

	app := fiber.New(fiber.Config{
		AppName:      cfg.App.Name,
		ErrorHandler: httptransport.ErrorHandler(logger, metrics),
	})
	httptransport.RegisterMiddlewares(app, logger, metrics, cfg.App.RequestTimeout())

	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health: handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, map[string]handlers.Pinger{
			"postgres": pg,
			"redis":    redis,
		}),
		Auth:       handlers.NewAuthHandler(sessionService, verifier, cookie),
		Pages:      handlers.NewPagesHandler(cfg.App.Name),
		Clients:    handlers.NewClientsHandler(clientService),
		Gate:       gate,
		Authorizer: accessService,
		Metrics:    metrics,
		RateLimit:  cfg.RateLimit,
	})

	go func() {
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	waitForShutdown(logger)

	if err := app.ShutdownWithTimeout(shutdownTimeout); err != nil {
		logger.Warn("http shutdown", zap.Error(err))
	}
	sessionService.Wait()

	tracingCtx, tracingCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer tracingCancel()
	if err := shutdownTracing(tracingCtx); err != nil {
		logger.Warn("tracing shutdown", zap.Error(err))
	}
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
