package logger

import (
	"context"
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

var (
	// Logger is the global logger instance
	Logger zerolog.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()

	mu         sync.RWMutex
	contextKey = struct{}{}
)

// Config represents logging configuration
type Config struct {
	Level      string `json:"level" yaml:"level"`
	Format     string `json:"format" yaml:"format"` // json or console
	Output     string `json:"output" yaml:"output"` // stdout, stderr, or file path
	TimeFormat string `json:"time_format" yaml:"time_format"`
	Caller     bool   `json:"caller" yaml:"caller"`
}

// DefaultConfig returns default logging configuration
func DefaultConfig() Config {
	return Config{
		Level:      "info",
		Format:     "console",
		Output:     "stderr",
		TimeFormat: time.RFC3339,
	}
}

// Init initializes the global logger with the given configuration
func Init(cfg Config) error {
	output, err := openOutput(cfg.Output)
	if err != nil {
		return err
	}
	l, err := New(cfg, output)
	if err != nil {
		return err
	}

	mu.Lock()
	Logger = l
	mu.Unlock()
	return nil
}

// New builds a logger writing to w without touching the global one
func New(cfg Config, w io.Writer) (zerolog.Logger, error) {
	level := zerolog.InfoLevel
	if cfg.Level != "" {
		parsed, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
		if err != nil {
			return zerolog.Nop(), fmt.Errorf("invalid log level: %s", cfg.Level)
		}
		level = parsed
	}

	timeFormat := cfg.TimeFormat
	if timeFormat == "" {
		timeFormat = time.RFC3339
	}

	if cfg.Format == "console" {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: timeFormat}
	}

	logContext := zerolog.New(w).Level(level).With().Timestamp().Str("service", "cloudboard")
	if cfg.Caller {
		logContext = logContext.Caller()
	}
	return logContext.Logger(), nil
}

func openOutput(output string) (io.Writer, error) {
	switch strings.ToLower(output) {
	case "", "stderr":
		return os.Stderr, nil
	case "stdout":
		return os.Stdout, nil
	default:
		file, err := os.OpenFile(output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file: %w", err)
		}
		return file, nil
	}
}

// SetLevel changes the level of the global logger
func SetLevel(levelStr string) error {
	level, err := zerolog.ParseLevel(strings.ToLower(levelStr))
	if err != nil {
		return fmt.Errorf("invalid log level: %s", levelStr)
	}
	mu.Lock()
	Logger = Logger.Level(level)
	mu.Unlock()
	return nil
}

// Get returns the global logger
func Get() zerolog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return Logger
}

// WithContext adds logger to context
func WithContext(ctx context.Context, l zerolog.Logger) context.Context {
	return context.WithValue(ctx, contextKey, l)
}

// FromContext retrieves logger from context
func FromContext(ctx context.Context) zerolog.Logger {
	if l, ok := ctx.Value(contextKey).(zerolog.Logger); ok {
		return l
	}
	return Get()
}

// WithComponent returns a logger for a specific component
func WithComponent(component string) zerolog.Logger {
	return Get().With().Str("component", component).Logger()
}

// WithRequestID returns a logger tagged with a request id
func WithRequestID(l zerolog.Logger, id string) zerolog.Logger {
	return l.With().Str("request_id", id).Logger()
}

var sensitiveKey = regexp.MustCompile(`(?i)(secret|password|token|authorization|cookie)`)

// Redact masks a value when key names a secret. Secrets keep their last
// four characters so operators can tell two of them apart.
func Redact(key, value string) string {
	if !sensitiveKey.MatchString(key) || value == "" {
		return value
	}
	if len(value) <= 4 {
		return "****"
	}
	return "****" + value[len(value)-4:]
}
