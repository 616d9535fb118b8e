package logger

import (
	"context"
	"os"

	"github.com/ashevelev/order-platform-service/internal/config"
	"github.com/go-chi/chi/v5/middleware"
	sqldblogger "github.com/simukti/sqldb-logger"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Logger is a logger that supports log levels, context tagging and structured
// key-value pairs. It doubles as the database query logger.
type Logger interface {
	// With returns a logger based off the root logger and decorated with
	// the given context and arguments.
	With(ctx context.Context, args ...interface{}) Logger

	Debug(args ...interface{})
	Info(args ...interface{})
	Warn(args ...interface{})
	Error(args ...interface{})

	Debugf(format string, args ...interface{})
	Infof(format string, args ...interface{})
	Warnf(format string, args ...interface{})
	Errorf(format string, args ...interface{})

	// Log implements the sqldblogger.Logger interface
	// so that every database query can be logged.
	Log(ctx context.Context, level sqldblogger.Level, msg string, data map[string]interface{})

	// Sync flushes any buffered log entries.
	Sync() error
}

type logger struct {
	*zap.SugaredLogger
}

// New creates a logger configured by the application config.
// Logs are written to stderr and, when a path is configured,
// to a size-rotated file.
func New(cfg *config.Config) Logger {
	level, err := zapcore.ParseLevel(cfg.Logger.Level)
	if err != nil {
		level = zapcore.InfoLevel
	}

	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	cores := []zapcore.Core{
		zapcore.NewCore(
			zapcore.NewConsoleEncoder(encoderConfig),
			zapcore.Lock(os.Stderr),
			level,
		),
	}

	if cfg.Logger.Path != "" {
		rotated := &lumberjack.Logger{
			Filename:   cfg.Logger.Path,
			MaxSize:    cfg.Logger.MaxSizeMB,
			MaxBackups: cfg.Logger.MaxBackups,
			MaxAge:     cfg.Logger.MaxAgeDays,
		}
		cores = append(cores, zapcore.NewCore(
			zapcore.NewJSONEncoder(encoderConfig),
			zapcore.AddSync(rotated),
			level,
		))
	}

	l := zap.New(zapcore.NewTee(cores...), zap.AddCaller())

	return &logger{l.Sugar()}
}

// NewWithZap creates a new logger using the preconfigured zap logger.
func NewWithZap(l *zap.Logger) Logger {
	return &logger{l.Sugar()}
}

// NewNop returns a logger that discards everything. Intended for tests.
func NewNop() Logger {
	return &logger{zap.NewNop().Sugar()}
}

// With returns a logger decorated with the request id found in ctx (if any)
// followed by the given key-value pairs.
func (l *logger) With(ctx context.Context, args ...interface{}) Logger {
	if ctx != nil {
		if reqID := middleware.GetReqID(ctx); reqID != "" {
			args = append(args, "request_id", reqID)
		}
	}
	if len(args) > 0 {
		return &logger{l.SugaredLogger.With(args...)}
	}
	return l
}

// Log translates sqldblogger levels into zap levels.
func (l *logger) Log(_ context.Context, level sqldblogger.Level, msg string, data map[string]interface{}) {
	args := make([]interface{}, 0, len(data)*2)
	for k, v := range data {
		args = append(args, k, v)
	}

	switch level {
	case sqldblogger.LevelError:
		l.Errorw(msg, args...)
	case sqldblogger.LevelInfo:
		l.Infow(msg, args...)
	case sqldblogger.LevelDebug, sqldblogger.LevelTrace:
		l.Debugw(msg, args...)
	default:
		l.Debugw(msg, args...)
	}
}
