package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/ashevelev/order-platform-service/internal/config"
	"github.com/ashevelev/order-platform-service/internal/order"
	"github.com/ashevelev/order-platform-service/internal/queue"
	"github.com/ashevelev/order-platform-service/internal/worker"
	"github.com/ashevelev/order-platform-service/pkg/logger"
	trmsql "github.com/avito-tech/go-transaction-manager/drivers/sql/v2"
	_ "github.com/jackc/pgx/v5/stdlib"
	sqldblogger "github.com/simukti/sqldb-logger"
)

// Version indicates the current version of the application.
var Version = "1.0.0"

// Standalone queue consumer for scale-out deployments. It shares the
// topic consumer group with the in-process workers of the API servers;
// cache staleness across processes is bounded by the snapshot TTL.
func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	// Worker run context, canceled on shutdown signals.
	workerCtx, stop := signal.NotifyContext(context.Background(),
		syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT, os.Interrupt)
	defer stop()

	// Load application configurations.
	cfg := config.MustLoad()

	// Create root logger tagged with worker version.
	logger := logger.New(cfg).With(workerCtx, "version", Version, "process", "worker")

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

	// Init repository for the order lifecycle.
	orderRepo, err := order.NewRepository(db, trmsql.DefaultCtxGetter, logger)
	if err != nil {
		return fmt.Errorf("failed to init order repository: %w", err)
	}

	// Local snapshot cache of this process.
	listCache := order.NewListCache(cfg.Cache, logger)

	processor, err := worker.NewProcessor(orderRepo, listCache, cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to init order processor: %w", err)
	}

	consumer := queue.NewConsumer(processor, queue.NewReader(cfg), cfg, logger)

	logger.Infof("Worker %v is consuming from %v", Version, cfg.Kafka.Topic)
	if err = consumer.Run(workerCtx); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("run worker failed: %w", err)
	}

	return nil
}
