package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/lmittmann/tint"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Options defines parameters for logger creation.
type Options struct {
	Env          string
	ConsoleLevel string // default: info
	FileLevel    string // default: debug
	File         string // rotated JSON log; empty disables the file sink
	App          string
	Console      io.Writer // default: os.Stdout
}

// sensitiveKeys are attribute keys whose values never reach a sink.
var sensitiveKeys = []string{"token", "secret", "api_key", "dsn", "password", "authorization"}

var closers sync.Map

// New creates a slog.Logger writing colored text to the console and, when
// Options.File is set, rotated JSON to disk.
func New(o Options) *slog.Logger {
	console := o.Console
	if console == nil {
		console = os.Stdout
	}

	timeFormat := time.RFC3339
	if o.Env == "dev" {
		timeFormat = time.Kitchen
	}
	handlers := []slog.Handler{
		NewRedactingHandler(tint.NewHandler(console, &tint.Options{
			Level:      levelFromString(o.ConsoleLevel, slog.LevelInfo),
			TimeFormat: timeFormat,
		}), sensitiveKeys),
	}

	var closer func() error
	if o.File != "" {
		w := &lumberjack.Logger{
			Filename:   o.File,
			MaxSize:    5,
			MaxBackups: 3,
			MaxAge:     28,
			Compress:   true,
		}
		closer = w.Close
		handlers = append(handlers, NewRedactingHandler(
			slog.NewJSONHandler(w, &slog.HandlerOptions{Level: levelFromString(o.FileLevel, slog.LevelDebug)}),
			sensitiveKeys,
		))
	}

	var h slog.Handler = handlers[0]
	if len(handlers) > 1 {
		h = NewMultiHandler(handlers...)
	}

	l := slog.New(h).With(slog.String("app", o.App), slog.String("env", o.Env))
	if closer != nil {
		closers.Store(l, closer)
	}
	return l
}

// Close releases the file sink of a logger returned by New.
func Close(l *slog.Logger) error {
	if c, ok := closers.LoadAndDelete(l); ok {
		return c.(func() error)()
	}
	return nil
}

func levelFromString(s string, def slog.Level) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return def
	}
}
