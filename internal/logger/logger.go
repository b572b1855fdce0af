// Package logger provides the global zerolog logger for both forgeyard
// services. Console output is human-readable on stderr; file output, when
// enabled, is JSON rotated by lumberjack.
package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	// Log is the global logger instance.
	Log zerolog.Logger

	// fileWriter is the rotating file output, nil when file logging is off.
	fileWriter *lumberjack.Logger
)

// FileConfig holds rotation settings for file-based logging.
type FileConfig struct {
	MaxSizeMB  int
	MaxAgeDays int
	MaxBackups int
}

func (c FileConfig) maxSizeMB() int {
	if c.MaxSizeMB <= 0 {
		return 50
	}
	return c.MaxSizeMB
}

func (c FileConfig) maxAgeDays() int {
	if c.MaxAgeDays <= 0 {
		return 7
	}
	return c.MaxAgeDays
}

func (c FileConfig) maxBackups() int {
	if c.MaxBackups <= 0 {
		return 3
	}
	return c.MaxBackups
}

// Init initializes console-only logging.
func Init(service string, debug bool) {
	Log = newLogger(consoleWriter(), service, debug)
}

// InitWithFile initializes console plus rotating file logging. An empty
// logsDir behaves like Init.
func InitWithFile(service string, debug bool, logsDir string, cfg FileConfig) error {
	if logsDir == "" {
		Init(service, debug)
		return nil
	}

	if err := os.MkdirAll(logsDir, 0o755); err != nil {
		return fmt.Errorf("creating logs directory: %w", err)
	}

	fileWriter = &lumberjack.Logger{
		Filename:   filepath.Join(logsDir, service+".log"),
		MaxSize:    cfg.maxSizeMB(),
		MaxAge:     cfg.maxAgeDays(),
		MaxBackups: cfg.maxBackups(),
		LocalTime:  true,
	}

	Log = newLogger(io.MultiWriter(consoleWriter(), fileWriter), service, debug)
	return nil
}

// Close closes the file writer if one is open. Call on shutdown.
func Close() error {
	if fileWriter != nil {
		err := fileWriter.Close()
		fileWriter = nil
		return err
	}
	return nil
}

func consoleWriter() io.Writer {
	return zerolog.ConsoleWriter{
		Out:        os.Stderr,
		TimeFormat: time.RFC3339,
	}
}

func newLogger(out io.Writer, service string, debug bool) zerolog.Logger {
	level := zerolog.InfoLevel
	if debug {
		level = zerolog.DebugLevel
	}
	return zerolog.New(out).
		Level(level).
		With().
		Timestamp().
		Str("service", service).
		Logger()
}

// Debug starts a debug-level event on the global logger.
func Debug() *zerolog.Event {
	return Log.Debug()
}

// Info starts an info-level event on the global logger.
func Info() *zerolog.Event {
	return Log.Info()
}

// Warn starts a warn-level event on the global logger.
func Warn() *zerolog.Event {
	return Log.Warn()
}

// Error starts an error-level event on the global logger.
func Error() *zerolog.Event {
	return Log.Error()
}

// Fatal starts a fatal-level event on the global logger. The event exits the
// process when sent.
func Fatal() *zerolog.Event {
	return Log.Fatal()
}
