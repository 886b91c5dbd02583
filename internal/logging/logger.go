package logging

import (
	"io"
	"log"
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/yourusername/safety-backup-engine/internal/config"
	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	logger    *slog.Logger
	initOnce  sync.Once
	logCloser io.Closer
)

// Init configures the global logger singleton. Backup pipeline code logs
// through the stdlib log package with a "[Component]" prefix; those lines
// are routed into slog with the prefix lifted into a component attribute.
func Init(cfg config.LoggingConfig) (*slog.Logger, error) {
	var initErr error

	initOnce.Do(func() {
		level := parseLevel(cfg.Level)
		output, closer := buildOutput(cfg)
		if closer != nil {
			logCloser = closer
		}

		options := &slog.HandlerOptions{Level: level}
		var handler slog.Handler
		if strings.EqualFold(cfg.Format, "text") {
			handler = slog.NewTextHandler(output, options)
		} else {
			handler = slog.NewJSONHandler(output, options)
		}

		logger = slog.New(handler).With("service", "backup-engine")
		slog.SetDefault(logger)
		log.SetFlags(0)
		log.SetOutput(stdlogBridge{logger: logger})
	})

	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}

	return logger, initErr
}

// L returns the configured logger, or a no-op logger if not initialized.
func L() *slog.Logger {
	if logger == nil {
		return slog.New(slog.NewJSONHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}
	return logger
}

// Close flushes and closes any logger resources.
func Close() error {
	if logCloser != nil {
		return logCloser.Close()
	}
	return nil
}

// stdlogBridge forwards stdlib log output into slog so the orchestrator,
// sinks and retention sweeps share one structured stream.
type stdlogBridge struct {
	logger *slog.Logger
}

func (b stdlogBridge) Write(p []byte) (int, error) {
	msg := strings.TrimSpace(string(p))
	if msg == "" {
		return len(p), nil
	}

	if component, rest, ok := splitComponent(msg); ok {
		b.logger.Info(rest, "component", component)
		return len(p), nil
	}

	b.logger.Info(msg)
	return len(p), nil
}

// splitComponent extracts the "[Component]" prefix convention used across
// the backup packages.
func splitComponent(msg string) (component, rest string, ok bool) {
	if !strings.HasPrefix(msg, "[") {
		return "", "", false
	}
	end := strings.Index(msg, "]")
	if end <= 1 {
		return "", "", false
	}
	component = msg[1:end]
	rest = strings.TrimSpace(msg[end+1:])
	if rest == "" {
		return "", "", false
	}
	return component, rest, true
}

func buildOutput(cfg config.LoggingConfig) (io.Writer, io.Closer) {
	if strings.TrimSpace(cfg.File) == "" {
		return os.Stdout, nil
	}

	fileLogger := &lumberjack.Logger{
		Filename:   cfg.File,
		MaxSize:    cfg.MaxSize,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAge,
		Compress:   true,
	}

	return io.MultiWriter(os.Stdout, fileLogger), fileLogger
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	case "info", "":
		return slog.LevelInfo
	default:
		return slog.LevelInfo
	}
}
