// Package logging builds the application's zerolog logger with console and
// daily file output.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

const appName = "gaslightradio"

// Config holds logger configuration.
type Config struct {
	Dir     string
	Level   string
	Console bool
	File    bool
	// ConsoleOut defaults to stdout.
	ConsoleOut io.Writer
}

// Logger owns the log file behind a zerolog.Logger.
type Logger struct {
	zlog    zerolog.Logger
	file    *os.File
	logPath string
}

// New creates a logger writing JSON lines to <Dir>/gaslightradio_<date>.log
// and human-readable lines to the console.
func New(cfg Config) (*Logger, error) {
	var writers []io.Writer
	l := &Logger{}

	if cfg.File {
		if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create log directory: %w", err)
		}
		l.logPath = filepath.Join(cfg.Dir, fmt.Sprintf("%s_%s.log", appName, time.Now().Format("2006-01-02")))
		file, err := os.OpenFile(l.logPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file: %w", err)
		}
		l.file = file
		writers = append(writers, file)
	}

	if cfg.Console {
		out := cfg.ConsoleOut
		if out == nil {
			out = os.Stdout
		}
		writers = append(writers, zerolog.ConsoleWriter{Out: out, TimeFormat: "15:04:05"})
	}

	var sink io.Writer = io.Discard
	if len(writers) > 0 {
		sink = zerolog.MultiLevelWriter(writers...)
	}

	l.zlog = zerolog.New(sink).
		Level(ParseLevel(cfg.Level)).
		With().
		Timestamp().
		Str("app", appName).
		Logger()

	l.zlog.Debug().Str("component", "logging").Str("log_file", l.logPath).Msg("logger initialized")
	return l, nil
}

// ParseLevel maps a config level to zerolog. Unknown levels mean info.
func ParseLevel(level string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "trace":
		return zerolog.TraceLevel
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "disabled", "off":
		return zerolog.Disabled
	default:
		return zerolog.InfoLevel
	}
}

// Zerolog returns the root logger.
func (l *Logger) Zerolog() zerolog.Logger {
	return l.zlog
}

// Component returns a logger with the component field set.
func (l *Logger) Component(name string) zerolog.Logger {
	return l.zlog.With().Str("component", name).Logger()
}

// Path is the current log file, empty when file output is off.
func (l *Logger) Path() string {
	return l.logPath
}

// Close closes the log file.
func (l *Logger) Close() error {
	if l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file = nil
	return err
}
