package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ashevelev/order-platform-service/internal/auth"
	"github.com/ashevelev/order-platform-service/internal/config"
	"github.com/ashevelev/order-platform-service/internal/health"
	"github.com/ashevelev/order-platform-service/internal/order"
	"github.com/ashevelev/order-platform-service/internal/profile"
	"github.com/ashevelev/order-platform-service/internal/queue"
	"github.com/ashevelev/order-platform-service/internal/worker"
	"github.com/ashevelev/order-platform-service/pkg/accesslog"
	"github.com/ashevelev/order-platform-service/pkg/logger"
	"github.com/ashevelev/order-platform-service/pkg/ratelimit"
	"github.com/ashevelev/order-platform-service/pkg/unzip"
	trmsql "github.com/avito-tech/go-transaction-manager/drivers/sql/v2"
	trmcontext "github.com/avito-tech/go-transaction-manager/trm/v2/context"
	"github.com/avito-tech/go-transaction-manager/trm/v2/manager"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/nanmu42/gzip"
	sqldblogger "github.com/simukti/sqldb-logger"
)

// Version indicates the current version of the application.
var Version = "1.0.0"

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	// Server run context.
	serverCtx, serverStopCtx := context.WithCancel(context.Background())
	defer serverStopCtx()

	// Load application configurations.
	cfg := config.MustLoad()

	// Create root logger tagged with server version.
	logger := logger.New(cfg).With(serverCtx, "version", Version)

	db, err := sql.Open("pgx", cfg.DSN)
	if err != nil {
		return fmt.Errorf("failed to open the database: %w", err)
	}

	// Log every query to the database.
	db = sqldblogger.OpenDriver(cfg.DSN, db.Driver(), logger)

	// Check connectivity and DSN correctness.
	if err = db.Ping(); err != nil {
		return fmt.Errorf("failed to connect to the database: %w", err)
	}

	// Close connection.
	defer func() {
		if err = db.Close(); err != nil {
			logger.Error(err)
		}
		_ = logger.Sync()
	}()

	// Create default transaction manager for database/sql package.
	trManager := manager.Must(
		trmsql.NewDefaultFactory(db),
		manager.WithCtxManager(trmcontext.DefaultManager),
	)

	// Init repository for auth service.
	authRepo, err := auth.NewRepository(db, trmsql.DefaultCtxGetter, logger)
	if err != nil {
		return fmt.Errorf("failed to init auth repository: %w", err)
	}

	// Init auth service.
	authService, err := auth.NewService(authRepo, logger, cfg)
	if err != nil {
		return fmt.Errorf("failed to init auth service: %w", err)
	}

	// Create the configured admin account on a fresh database.
	if err = authService.Bootstrap(serverCtx); err != nil {
		return fmt.Errorf("failed to bootstrap admin user: %w", err)
	}

	// Init repository and service for user profiles.
	profileRepo, err := profile.NewRepository(db, trmsql.DefaultCtxGetter, logger)
	if err != nil {
		return fmt.Errorf("failed to init profile repository: %w", err)
	}
	profileService, err := profile.NewService(profileRepo, logger, cfg)
	if err != nil {
		return fmt.Errorf("failed to init profile service: %w", err)
	}

	// Shared infrastructure of the order lifecycle: repository, list
	// cache and the job queue producer.
	orderRepo, err := order.NewRepository(db, trmsql.DefaultCtxGetter, logger)
	if err != nil {
		return fmt.Errorf("failed to init order repository: %w", err)
	}
	listCache := order.NewListCache(cfg.Cache, logger)
	producer := queue.NewProducer(cfg, logger)
	defer func() {
		if err = producer.Close(); err != nil {
			logger.Errorf("close queue producer: %s", err)
		}
	}()

	orderService, err := order.NewService(orderRepo, listCache, producer, trManager, logger, cfg)
	if err != nil {
		return fmt.Errorf("failed to init order service: %w", err)
	}

	// The queue consumer runs in-process so worker-driven transitions
	// invalidate the same list cache the API reads from.
	processor, err := worker.NewProcessor(orderRepo, listCache, cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to init order processor: %w", err)
	}
	consumer := queue.NewConsumer(processor, queue.NewReader(cfg), cfg, logger)
	go func() {
		if err := consumer.Run(serverCtx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Errorf("queue consumer stopped: %s", err)
		}
	}()

	// Reconciliation sweep for orders that were committed but never
	// made it to the queue.
	sweeper, err := worker.NewSweeper(orderRepo, producer, cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to init sweeper: %w", err)
	}
	sweeper.Run()
	defer sweeper.Stop()

	// Create root router.
	router := initRootRouter(logger)

	// Probes for orchestration; readiness pings the store.
	health.NewController(db, logger, router)

	// Init and group handlers for auth routes.
	router.Group(func(r chi.Router) {
		r.Use(ratelimit.Middleware(cfg.RateLimit.Interval, cfg.RateLimit.Burst))
		auth.HandlerWithOptions(authService, auth.ChiServerOptions{
			BaseURL:          "/api/auth",
			BaseRouter:       r,
			ErrorHandlerFunc: auth.ErrorHandlerFunc,
		})
	})

	// Init handlers for profile routes.
	profile.NewController(profileService, logger, profile.ChiServerOptions{
		BaseURL:     "/api",
		BaseRouter:  router,
		Middlewares: []profile.MiddlewareFunc{authService.Middleware},
	})

	// Init handlers for order routes.
	order.NewController(orderService, logger, order.ChiServerOptions{
		BaseURL:     "/api",
		BaseRouter:  router,
		Middlewares: []order.MiddlewareFunc{authService.Middleware},
	})

	// Build HTTP server.
	hs := &http.Server{
		Addr:              cfg.HTTPServer.Address,
		ReadHeaderTimeout: cfg.HTTPServer.Timeout,
		IdleTimeout:       cfg.HTTPServer.IdleTimeout,
		Handler:           router,
	}

	// Graceful shutdown.
	go func() {
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, syscall.SIGHUP, syscall.SIGINT,
			syscall.SIGTERM, syscall.SIGQUIT, os.Interrupt)

		signal := <-sig

		logger.With(serverCtx, "signal", signal.String()).
			Infof("Shutting down server with %s timeout",
				cfg.HTTPServer.ShutdownTimeout)

		if err = hs.Shutdown(serverCtx); err != nil {
			logger.Errorf("graceful shutdown failed: %s", err)
		}
		serverStopCtx()
	}()

	// Start the HTTP server with graceful shutdown.
	logger.Infof("Server %v is running at %v", Version, cfg.HTTPServer.Address)
	if err = hs.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("run server failed: %w", err)
	}

	// Wait for server context to be stopped or force exit if timeout exceeded.
	select {
	case <-serverCtx.Done():
	case <-time.After(cfg.HTTPServer.ShutdownTimeout):
		return errors.New("graceful shutdown timed out.. forcing exit")
	}

	return nil
}

func initRootRouter(logger logger.Logger) *chi.Mux {
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(accesslog.Handler(logger))
	router.Use(middleware.Recoverer)
	router.Use(gzip.DefaultHandler().WrapHandler)
	router.Use(unzip.Middleware(logger))

	return router
}
