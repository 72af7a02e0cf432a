// Package logging provides centralized logging configuration for the
// Devika client.
package logging

import (
	"io"
	"log/slog"
	"os"
	"sync"

	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	// globalLogger is the application-wide logger
	globalLogger *slog.Logger
	globalMu     sync.RWMutex

	// logWriter holds the log file writer (if any) for cleanup
	logWriter   io.WriteCloser
	logWriterMu sync.Mutex
)

// FileLogConfig holds configuration for file-based logging with rotation.
type FileLogConfig struct {
	// Path is the file path for the log file.
	// Empty string disables file logging.
	Path string

	// MaxSizeMB is the maximum size of the log file in megabytes before rotation.
	// Default: 10MB
	MaxSizeMB int

	// MaxBackups is the maximum number of old log files to retain.
	// Default: 3
	MaxBackups int

	// Compress determines if rotated log files should be compressed.
	Compress bool
}

// Config holds logging configuration.
type Config struct {
	// Level is the minimum log level (debug, info, warn, error)
	Level string
	// FileLog is the optional configuration for file logging with rotation.
	FileLog *FileLogConfig
	// JSON enables JSON output format
	JSON bool
}

// Initialize sets up the global logger with the given configuration.
// If FileLog is specified, logs are written to both console and file,
// with rotation handled by lumberjack.
func Initialize(cfg Config) error {
	level := parseLevel(cfg.Level)

	logWriterMu.Lock()
	defer logWriterMu.Unlock()

	w := io.Writer(os.Stderr)
	if cfg.FileLog != nil && cfg.FileLog.Path != "" {
		maxSize := cfg.FileLog.MaxSizeMB
		if maxSize <= 0 {
			maxSize = 10
		}
		maxBackups := cfg.FileLog.MaxBackups
		if maxBackups < 0 {
			maxBackups = 3
		}

		lj := &lumberjack.Logger{
			Filename:   cfg.FileLog.Path,
			MaxSize:    maxSize,
			MaxBackups: maxBackups,
			MaxAge:     0, // don't delete old files based on age
			Compress:   cfg.FileLog.Compress,
		}
		logWriter = lj
		w = io.MultiWriter(os.Stderr, lj)
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.JSON {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}

	logger := slog.New(handler)

	globalMu.Lock()
	globalLogger = logger
	globalMu.Unlock()

	slog.SetDefault(logger)

	return nil
}

// Get returns the global logger.
// If Initialize hasn't been called, returns slog.Default().
func Get() *slog.Logger {
	globalMu.RLock()
	defer globalMu.RUnlock()

	if globalLogger == nil {
		return slog.Default()
	}
	return globalLogger
}

// Close cleans up logging resources (closes log file if open).
func Close() error {
	logWriterMu.Lock()
	defer logWriterMu.Unlock()

	if logWriter != nil {
		err := logWriter.Close()
		logWriter = nil
		return err
	}
	return nil
}

// parseLevel converts a string level to slog.Level.
func parseLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// WithComponent returns a logger with a component attribute.
func WithComponent(component string) *slog.Logger {
	return Get().With("component", component)
}

// Channel returns a logger for event channel activity.
func Channel() *slog.Logger {
	return WithComponent("channel")
}

// Gateway returns a logger for REST gateway calls.
func Gateway() *slog.Logger {
	return WithComponent("gateway")
}

// Store returns a logger for session store mutations.
func Store() *slog.Logger {
	return WithComponent("store")
}

// Cache returns a logger for snapshot cache activity.
func Cache() *slog.Logger {
	return WithComponent("cache")
}

// Sync returns a logger for reconciler activity.
func Sync() *slog.Logger {
	return WithComponent("sync")
}

// CLI returns a logger for command-line activity.
func CLI() *slog.Logger {
	return WithComponent("cli")
}

// WithProject returns a logger with project context attached.
func WithProject(base *slog.Logger, project string) *slog.Logger {
	if base == nil {
		return nil
	}
	return base.With("project", project)
}
