// Package logger provides structured logging for evqlite
package logger

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Logger wraps zerolog with evqlite-specific functionality
type Logger struct {
	zlog zerolog.Logger
}

// Config holds logger configuration
type Config struct {
	Level      string // debug, info, warn, error
	Pretty     bool   // pretty-print for development
	Output     io.Writer
	WithCaller bool
}

// NewLogger creates a new structured logger
func NewLogger(cfg Config) *Logger {
	// Set global log level
	level := zerolog.InfoLevel
	switch cfg.Level {
	case "debug":
		level = zerolog.DebugLevel
	case "info":
		level = zerolog.InfoLevel
	case "warn":
		level = zerolog.WarnLevel
	case "error":
		level = zerolog.ErrorLevel
	}
	zerolog.SetGlobalLevel(level)

	// Configure output
	output := cfg.Output
	if output == nil {
		output = os.Stdout
	}

	// Pretty printing for development
	if cfg.Pretty {
		output = zerolog.ConsoleWriter{
			Out:        output,
			TimeFormat: time.RFC3339,
		}
	}

	// Create logger
	zlog := zerolog.New(output).
		With().
		Timestamp().
		Str("service", "evqlite").
		Logger()

	// Add caller information if requested
	if cfg.WithCaller {
		zlog = zlog.With().Caller().Logger()
	}

	return &Logger{zlog: zlog}
}

// GetZerolog returns the underlying zerolog logger
func (l *Logger) GetZerolog() *zerolog.Logger {
	return &l.zlog
}

// Info logs an info message
func (l *Logger) Info(msg string) *zerolog.Event {
	return l.zlog.Info().Str("msg", msg)
}

// Debug logs a debug message
func (l *Logger) Debug(msg string) *zerolog.Event {
	return l.zlog.Debug().Str("msg", msg)
}

// Warn logs a warning message
func (l *Logger) Warn(msg string) *zerolog.Event {
	return l.zlog.Warn().Str("msg", msg)
}

// Error logs an error message
func (l *Logger) Error(msg string) *zerolog.Event {
	return l.zlog.Error().Str("msg", msg)
}

// Fatal logs a fatal message and exits
func (l *Logger) Fatal(msg string) *zerolog.Event {
	return l.zlog.Fatal().Str("msg", msg)
}

// WithFields returns a logger with additional fields
func (l *Logger) WithFields(fields map[string]interface{}) *Logger {
	ctx := l.zlog.With()
	for k, v := range fields {
		ctx = ctx.Interface(k, v)
	}
	return &Logger{zlog: ctx.Logger()}
}

// ArenaLogger returns a logger scoped to one CST arena.
func (l *Logger) ArenaLogger(tableName string) *Logger {
	return &Logger{
		zlog: l.zlog.With().
			Str("component", "arena").
			Str("table", tableName).
			Logger(),
	}
}

// ClientLogger returns a logger scoped to the async RPC client.
func (l *Logger) ClientLogger(clientID string) *Logger {
	return &Logger{
		zlog: l.zlog.With().
			Str("component", "client").
			Str("client_id", clientID).
			Logger(),
	}
}

// QueryLogger returns a logger scoped to one query operation connection.
func (l *Logger) QueryLogger(connID string) *Logger {
	return &Logger{
		zlog: l.zlog.With().
			Str("component", "query").
			Str("conn_id", connID).
			Logger(),
	}
}

// PoolLogger returns a logger scoped to the connection pool.
func (l *Logger) PoolLogger() *Logger {
	return &Logger{
		zlog: l.zlog.With().
			Str("component", "pool").
			Logger(),
	}
}

// LogCommit logs a completed arena commit with structured fields.
func (l *Logger) LogCommit(transactionID, numRows uint64, duration time.Duration, err error) {
	event := l.zlog.Info().
		Str("component", "arena").
		Uint64("transaction_id", transactionID).
		Uint64("num_rows", numRows).
		Dur("duration_ms", duration)

	if err != nil {
		event = l.zlog.Error().
			Str("component", "arena").
			Uint64("transaction_id", transactionID).
			Err(err)
	}

	event.Msg("commit completed")
}

// LogTaskOutcome logs the outcome of one async RPC task.
func (l *Logger) LogTaskOutcome(taskID string, host string, attempt int, err error) {
	event := l.zlog.Debug().
		Str("component", "client").
		Str("task_id", taskID).
		Str("host", host).
		Int("attempt", attempt)

	if err != nil {
		event = l.zlog.Warn().
			Str("component", "client").
			Str("task_id", taskID).
			Str("host", host).
			Int("attempt", attempt).
			Err(err)
	}

	event.Msg("task attempt completed")
}

// LogServerStart logs server startup
func (l *Logger) LogServerStart(port int, dataDir string) {
	l.zlog.Info().
		Str("event", "server_start").
		Int("port", port).
		Str("data_dir", dataDir).
		Msg("evqlite server starting")
}

// LogServerReady logs when server is ready
func (l *Logger) LogServerReady(port int) {
	l.zlog.Info().
		Str("event", "server_ready").
		Int("port", port).
		Msg("evqlite server ready to accept connections")
}

// LogServerShutdown logs server shutdown
func (l *Logger) LogServerShutdown() {
	l.zlog.Info().
		Str("event", "server_shutdown").
		Msg("evqlite server shutting down")
}

// Global logger instance
var globalLogger *Logger

// InitGlobalLogger initializes the global logger
func InitGlobalLogger(cfg Config) {
	globalLogger = NewLogger(cfg)
	log.Logger = *globalLogger.GetZerolog()
}

// GetGlobalLogger returns the global logger instance
func GetGlobalLogger() *Logger {
	if globalLogger == nil {
		// Initialize with defaults if not set
		InitGlobalLogger(Config{
			Level:  "info",
			Pretty: true,
		})
	}
	return globalLogger
}
