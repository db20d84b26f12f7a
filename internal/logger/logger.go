package logger

import (
	"io"
	"log/slog"
	"os"

	"posts-rag-service/internal/config"
)

var Logger *slog.Logger

// InitLogger initializes structured logging based on configuration
func InitLogger(cfg *config.Config) {
	InitLoggerWithWriter(cfg, os.Stdout)
}

// InitLoggerWithWriter is InitLogger with an explicit destination
func InitLoggerWithWriter(cfg *config.Config, w io.Writer) {
	level := slog.LevelInfo
	if cfg.IsDebug() {
		level = slog.LevelDebug
	}

	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: cfg.IsDebug(), // Only add source in debug mode
	}

	handler := slog.NewJSONHandler(w, opts)
	Logger = slog.New(handler)

	Logger.Debug("Structured logging initialized", "level", level.String())
}

// Helper functions for common log operations
func Info(msg string, args ...any) {
	if Logger != nil {
		Logger.Info(msg, args...)
	}
}

func Error(msg string, args ...any) {
	if Logger != nil {
		Logger.Error(msg, args...)
	}
}

func Debug(msg string, args ...any) {
	if Logger != nil {
		Logger.Debug(msg, args...)
	}
}

func Warn(msg string, args ...any) {
	if Logger != nil {
		Logger.Warn(msg, args...)
	}
}
