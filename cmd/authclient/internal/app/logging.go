package app

import (
	"fmt"
	"io"
	"log/slog"
	"strings"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-logger/glog"

	authclient "github.com/goliatone/go-auth-client"
)

// LoggerFactory returns the logger for a named component.
type LoggerFactory func(component string) authclient.Logger

// NewLoggerFactory selects the logging backend from the logging section.
// "pretty" uses the glog console logger; "json" and "text" use slog and
// write to w.
func NewLoggerFactory(cfg authclient.LoggingConfig, w io.Writer) LoggerFactory {
	if strings.EqualFold(cfg.Format, "pretty") {
		base := glog.NewLogger(
			glog.WithLoggerTypePretty(),
			glog.WithLevel(glog.Trace),
			glog.WithName("authclient"),
			glog.WithAddSource(false),
			glog.WithRichErrorHandler(goerrors.ToSlogAttributes),
		)
		level := parseLevel(cfg.Level)
		return func(component string) authclient.Logger {
			return newLevelLogger(base.GetLogger(component), level)
		}
	}

	slogger := NewSlog(cfg, w)
	return func(component string) authclient.Logger {
		return authclient.SlogLogger(slogger, component)
	}
}

// NewSlog builds a slog logger from the logging section.
func NewSlog(cfg authclient.LoggingConfig, w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(cfg.Level)}

	var handler slog.Handler
	if strings.EqualFold(cfg.Format, "json") {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	return slog.New(handler)
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug", "trace":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// messageLogger is the method set shared by glog loggers: a message
// followed by optional attributes.
type messageLogger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// levelLogger formats printf style calls into a single message and drops
// entries below the configured level.
type levelLogger struct {
	logger messageLogger
	level  slog.Level
}

func newLevelLogger(logger messageLogger, level slog.Level) authclient.Logger {
	if logger == nil {
		return authclient.NoopLogger()
	}
	return levelLogger{logger: logger, level: level}
}

func (l levelLogger) Debug(format string, args ...any) {
	if l.level <= slog.LevelDebug {
		l.logger.Debug(fmt.Sprintf(format, args...))
	}
}

func (l levelLogger) Info(format string, args ...any) {
	if l.level <= slog.LevelInfo {
		l.logger.Info(fmt.Sprintf(format, args...))
	}
}

func (l levelLogger) Warn(format string, args ...any) {
	if l.level <= slog.LevelWarn {
		l.logger.Warn(fmt.Sprintf(format, args...))
	}
}

func (l levelLogger) Error(format string, args ...any) {
	l.logger.Error(fmt.Sprintf(format, args...))
}
