package logger

import (
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/sirrobot01/zipfetch/internal/config"
	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	defaultOnce   sync.Once
	defaultLogger zerolog.Logger
)

// Default returns the process-wide logger.
func Default() zerolog.Logger {
	defaultOnce.Do(func() {
		defaultLogger = New("zipfetch")
	})
	return defaultLogger
}

// New creates a component logger writing to the console and, when a config
// path is set, to a rotating log file.
func New(component string) zerolog.Logger {
	cfg := config.Get()

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}

	console := zerolog.ConsoleWriter{
		Out:        os.Stdout,
		TimeFormat: time.RFC3339,
	}
	writers := []io.Writer{console}
	if path := GetLogPath(); path != "" {
		writers = append(writers, &lumberjack.Logger{
			Filename:   path,
			MaxSize:    100, // MB
			MaxBackups: 3,
			MaxAge:     28, // days
			Compress:   true,
		})
	}

	return zerolog.New(zerolog.MultiLevelWriter(writers...)).
		Level(level).
		With().
		Timestamp().
		Str("component", component).
		Logger()
}

// GetLogPath returns the application log file path, or "" when no config
// directory is configured.
func GetLogPath() string {
	cfg := config.Get()
	if cfg.Path == "" {
		return ""
	}
	logDir := filepath.Join(cfg.Path, "logs")
	if err := os.MkdirAll(logDir, 0755); err != nil {
		return ""
	}
	return filepath.Join(logDir, "zipfetch.log")
}
