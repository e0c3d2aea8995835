// Package logger provides structured logging using zerolog.
package logger

import (
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"
)

// Config represents logger configuration.
type Config struct {
	Output string // "stdout", "stderr", or a file path
	Level  string // "debug", "info", "warn", "error"
}

// Init initializes the global zerolog logger with the given configuration.
// The returned closer releases the log file, if one was opened.
func Init(cfg Config) (io.Closer, error) {
	level := ParseLevel(cfg.Level)

	var (
		writer  io.Writer
		closer  io.Closer = nopCloser{}
		console = true
	)
	switch strings.ToLower(cfg.Output) {
	case "stdout", "":
		writer = os.Stdout
	case "stderr":
		writer = os.Stderr
	default:
		f, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to open log file %s", cfg.Output)
		}
		writer = f
		closer = f
		console = false
	}

	zerolog.SetGlobalLevel(level)
	zerolog.TimeFieldFormat = time.TimeOnly
	zerolog.TimestampFieldName = "time"
	zerolog.LevelFieldName = "level"
	zerolog.MessageFieldName = "message"
	zerolog.CallerMarshalFunc = shortCaller

	logger := New(writer, level, console)
	zerolog.DefaultContextLogger = &logger
	zlog.Logger = logger

	return closer, nil
}

// New builds a logger writing to w. Console loggers use colored human
// readable output, others JSON. Caller information is added at debug level.
func New(w io.Writer, level zerolog.Level, console bool) zerolog.Logger {
	if console {
		cw := zerolog.ConsoleWriter{
			Out:        w,
			TimeFormat: time.TimeOnly,
		}
		if level == zerolog.DebugLevel {
			cw.PartsOrder = []string{"time", "level", "message", "caller"}
			cw.FormatCaller = func(i interface{}) string {
				return "(" + i.(string) + ")"
			}
		}
		w = cw
	}

	ctx := zerolog.New(w).Level(level).With().Timestamp()
	if level == zerolog.DebugLevel {
		ctx = ctx.Caller()
	}
	return ctx.Logger()
}

// ParseLevel parses the log level string.
func ParseLevel(level string) zerolog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return zerolog.DebugLevel
	case "info", "":
		return zerolog.InfoLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// shortCaller keeps the last directory and file name.
func shortCaller(_ uintptr, file string, line int) string {
	parts := strings.Split(file, string(filepath.Separator))
	if len(parts) > 1 {
		return filepath.Join(parts[len(parts)-2:]...) + ":" + strconv.Itoa(line)
	}
	return filepath.Base(file) + ":" + strconv.Itoa(line)
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
