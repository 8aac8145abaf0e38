// Package logger wraps zerolog with the level, format and output settings of the service.
package logger

import (
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
)

// serviceName is attached to every entry so logs can be told apart when shipped together.
const serviceName = "sistema-donaciones"

// Logger is a thin handle over a zerolog.Logger.
type Logger struct {
	logger zerolog.Logger
}

// New builds a logger.
//
// level accepts the zerolog names (warning is an alias of warn); anything
// unknown falls back to info. format is "json" or "console". output is
// "stdout", "stderr" or a file path opened in append mode; a file that cannot
// be opened falls back to stderr with a warning.
func New(level, format, output string) *Logger {
	lvl := parseLevel(level)
	zerolog.SetGlobalLevel(lvl)

	writer, openErr := openOutput(output)
	if strings.EqualFold(format, "console") {
		writer = zerolog.ConsoleWriter{Out: writer, TimeFormat: "2006-01-02 15:04:05"}
	}

	zl := zerolog.New(writer).
		Level(lvl).
		With().
		Timestamp().
		Str("service", serviceName).
		Logger()

	l := &Logger{logger: zl}
	if openErr != nil {
		l.Warn().Err(openErr).Str("output", output).Msg("Failed to open log file, writing to stderr")
	}
	return l
}

func openOutput(output string) (io.Writer, error) {
	switch strings.ToLower(output) {
	case "", "stdout":
		return os.Stdout, nil
	case "stderr":
		return os.Stderr, nil
	}
	f, err := os.OpenFile(output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o640)
	if err != nil {
		return os.Stderr, err
	}
	return f, nil
}

func parseLevel(level string) zerolog.Level {
	level = strings.ToLower(strings.TrimSpace(level))
	if level == "warning" {
		level = "warn"
	}
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		return zerolog.InfoLevel
	}
	return lvl
}

func (l *Logger) Debug() *zerolog.Event { return l.logger.Debug() }
func (l *Logger) Info() *zerolog.Event  { return l.logger.Info() }
func (l *Logger) Warn() *zerolog.Event  { return l.logger.Warn() }
func (l *Logger) Error() *zerolog.Event { return l.logger.Error() }

// Named returns a child logger tagged with a component name.
func (l *Logger) Named(component string) *Logger {
	return &Logger{logger: l.logger.With().Str("component", component).Logger()}
}

// Level reports the minimum level this logger writes.
func (l *Logger) Level() zerolog.Level {
	return l.logger.GetLevel()
}

// Nop returns a logger that discards everything. Used in tests.
func Nop() *Logger {
	return &Logger{logger: zerolog.Nop()}
}

var global *Logger

// Init replaces the process-wide logger.
func Init(level, format, output string) {
	global = New(level, format, output)
}

// Get returns the process-wide logger, creating a default JSON one on first use.
func Get() *Logger {
	if global == nil {
		global = New("info", "json", "stdout")
	}
	return global
}
