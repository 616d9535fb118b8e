package config

import (
	"flag"
	"log"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

type (
	// Config represents an application configuration.
	Config struct {
		// The data source name (DSN) for connecting to the database.
		DSN string `yaml:"dsn" env:"DATABASE_URI"`
		// Subconfigs.
		HTTPServer HTTPServer `yaml:"http_server"`
		JWT        JWT        `yaml:"jwt"`
		Logger     Logger     `yaml:"logger"`
		Cache      Cache      `yaml:"cache"`
		Kafka      Kafka      `yaml:"kafka"`
		Worker     Worker     `yaml:"worker"`
		RateLimit  RateLimit  `yaml:"rate_limit"`
		Admin      Admin      `yaml:"admin"`
		// Cost of the password to hash. Must be greater than 3.
		PasswordHashCost int `yaml:"password_hash_cost" env-default:"14"`
	}
	// Config for HTTP server.
	HTTPServer struct {
		// The server startup address.
		Address string `yaml:"run_address" env:"RUN_ADDRESS" env-default:"127.0.0.1:8080"`
		// Read Header Timeout in seconds.
		Timeout time.Duration `yaml:"timeout" env-default:"5s"`
		// Idle timeout in seconds.
		IdleTimeout time.Duration `yaml:"idle_timeout" env-default:"60s"`
		// Shutdown timeout in seconds.
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT" env-default:"30s"`
	}
	// Config for application's logger.
	Logger struct {
		// Path to store log files.
		Path string `yaml:"path" env:"LOG_PATH"`
		// Application logging level.
		Level string `yaml:"level" env:"LOG_LEVEL"`
		// Log files details.
		MaxSizeMB  int `yaml:"max_size_mb" env-default:"100"`
		MaxBackups int `yaml:"max_backups" env-default:"3"`
		MaxAgeDays int `yaml:"max_age_days" env-default:"28"`
	}
	// Config for JWT.
	JWT struct {
		// JWT signing key.
		SigningKey string `yaml:"signing_key" env:"JWT_SIGNING_KEY"`
		// JWT expiration.
		Expiration time.Duration `yaml:"expiration" env:"JWT_EXPIRATION" env-default:"1h"`
	}
	// Config for the order list cache.
	Cache struct {
		// Maximum number of cached list snapshots.
		Size int `yaml:"size" env:"CACHE_SIZE" env-default:"1024"`
		// Lifetime of a cached snapshot.
		TTL time.Duration `yaml:"ttl" env:"CACHE_TTL" env-default:"30s"`
	}
	// Config for the Kafka job queue.
	Kafka struct {
		// Broker addresses.
		Brokers []string `yaml:"brokers" env:"KAFKA_BROKERS" env-default:"127.0.0.1:9092"`
		// Topic carrying order processing jobs.
		Topic string `yaml:"topic" env:"KAFKA_TOPIC" env-default:"orders.process"`
		// Consumer group of the worker pool.
		Group string `yaml:"group" env:"KAFKA_GROUP" env-default:"order-workers"`
		// Number of concurrent message handlers.
		Workers int `yaml:"workers" env:"KAFKA_WORKERS" env-default:"4"`
	}
	// Config for the background order processing.
	Worker struct {
		// Bounded retry policy applied to queue writes and message handling.
		RetryAttempts int           `yaml:"retry_attempts" env:"WORKER_RETRY_ATTEMPTS" env-default:"3"`
		RetryBase     time.Duration `yaml:"retry_base" env:"WORKER_RETRY_BASE" env-default:"100ms"`
		RetryMax      time.Duration `yaml:"retry_max" env:"WORKER_RETRY_MAX" env-default:"5s"`
		// Duration of the simulated processing step.
		ProcessingDelay time.Duration `yaml:"processing_delay" env:"WORKER_PROCESSING_DELAY" env-default:"3s"`
		// Reconciliation sweep of orders stuck in pending.
		SweepInterval time.Duration `yaml:"sweep_interval" env:"WORKER_SWEEP_INTERVAL" env-default:"1m"`
		SweepAfter    time.Duration `yaml:"sweep_after" env:"WORKER_SWEEP_AFTER" env-default:"5m"`
		SweepLimit    int           `yaml:"sweep_limit" env:"WORKER_SWEEP_LIMIT" env-default:"100"`
	}
	// Config for the administrator account created at startup.
	// Left empty, no account is bootstrapped.
	Admin struct {
		Email    string `yaml:"email" env:"ADMIN_EMAIL"`
		Password string `yaml:"password" env:"ADMIN_PASSWORD"`
		Name     string `yaml:"name" env:"ADMIN_NAME" env-default:"Administrator"`
	}
	// Config for the auth endpoints rate limiter.
	RateLimit struct {
		// Minimum interval between requests once the burst is exhausted.
		Interval time.Duration `yaml:"interval" env:"RATE_LIMIT_INTERVAL" env-default:"100ms"`
		// Number of requests allowed to exceed the rate.
		Burst int `yaml:"burst" env:"RATE_LIMIT_BURST" env-default:"20"`
	}
)

// MustLoad returns an application configuration which is populated
// from the given configuration file, environment variables and flags.
func MustLoad() *Config {
	// Configuration yaml file path.
	configPath := flag.String("config", "./config/local.yml", "path to the config file")

	var cfg Config

	// Read given flags.
	flag.StringVar(&cfg.HTTPServer.Address, "a", "127.0.0.1:8080", "server startup address")
	flag.StringVar(&cfg.DSN, "d", "", "server data source name")
	flag.Parse()

	// Check if file exists.
	if _, err := os.Stat(*configPath); os.IsNotExist(err) {
		log.Fatalf("config file does not exist: %s", *configPath)
	}

	// Load from YAML cfg file.
	file, err := os.Open(*configPath)
	if err != nil {
		log.Fatalf("failed to open config file: %s", *configPath)
	}
	defer file.Close()

	if err = cleanenv.ParseYAML(file, &cfg); err != nil {
		log.Fatalf("failed to parse config file: %s", *configPath)
	}

	// Environment variables override the file.
	if err = cleanenv.ReadEnv(&cfg); err != nil {
		log.Fatalf("failed to read environment variables: %v", err)
	}

	return &cfg
}
