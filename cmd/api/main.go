package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	httptransport "github.com/spec-kit/office-hours/internal/api/http"
	"github.com/spec-kit/office-hours/internal/api/http/handlers"
	"github.com/spec-kit/office-hours/internal/auth"
	"github.com/spec-kit/office-hours/internal/clock"
	"github.com/spec-kit/office-hours/internal/config"
	"github.com/spec-kit/office-hours/internal/events"
	"github.com/spec-kit/office-hours/internal/matching"
	"github.com/spec-kit/office-hours/internal/observability"
	"github.com/spec-kit/office-hours/internal/persistence"
	"github.com/spec-kit/office-hours/internal/ratelimit"
	"github.com/spec-kit/office-hours/internal/repository"
	"github.com/spec-kit/office-hours/internal/service"
	"github.com/spec-kit/office-hours/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logger, cfg.App)
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

	redis := persistence.NewRedis(cfg.Redis, cfg.RateLimit, logger)
	defer redis.Close()

	var (
		ticketRepo  repository.TicketRepository
		historyRepo repository.TicketHistoryRepository
		roster      repository.RosterRepository
	)
	if pool := pg.PoolHandle(); pool != nil {
		if cfg.Postgres.RunMigrations {
			if err := persistence.RunMigrations(ctx, pool, cfg.Postgres.MigrationsDir, logger); err != nil {
				logger.Fatal("failed to run migrations", zap.Error(err))
			}
		}
		ticketRepo = repository.NewTicketRepository(pool)
		historyRepo = repository.NewTicketHistoryRepository(pool)
		roster = repository.NewRosterRepository(pool)
	} else {
		logger.Warn("running on in-memory stores; data is lost on restart")
		ticketRepo = repository.NewMemoryTicketRepository()
		historyRepo = repository.NewMemoryTicketHistoryRepository()
		memRoster := repository.NewMemoryRosterRepository()
		if err := memRoster.Seed(cfg.App.DevRoster); err != nil {
			logger.Fatal("invalid DEV_ROSTER", zap.Error(err))
		}
		roster = memRoster
	}

	policy, err := auth.NewPolicy()
	if err != nil {
		logger.Fatal("failed to build permission policy", zap.Error(err))
	}

	dispatcher := events.NewInMemoryDispatcher()
	worker.StartAuditWorker(service.NewAuditService(dispatcher, historyRepo, logger))

	ticketService := service.NewTicketService(service.TicketDependencies{
		TicketRepo: ticketRepo,
		Roster:     roster,
		Policy:     policy,
		Clock:      clock.Real(),
		Dispatcher: dispatcher,
		Logger:     logger,
	})
	similarService := service.NewSimilarService(ticketService, matching.NewOpenAIRanker(cfg.Oracle, logger))

	tokens := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenTTLMinutes)
	metrics := observability.NewMetrics()

	app := fiber.New(fiber.Config{AppName: cfg.App.Name})
	httptransport.RegisterMiddlewares(app, logger, metrics, cfg.App.RequestTimeout())

	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health:         handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, pg, redis, metrics),
		Tickets:        handlers.NewTicketsHandler(ticketService, similarService),
		AuthMiddleware: auth.NewAuthMiddleware(tokens),
		SimilarLimiter: ratelimit.NewLimiter(redis.Cmdable(), "similar", cfg.RateLimit, logger),
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
