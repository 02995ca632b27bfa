// Package telemetry provides the structured logger shared by every package
// in the module. It is a thin field-based facade over zerolog.
package telemetry

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Config holds logger configuration
type Config struct {
	// Level is one of debug, info, warn, error. Defaults to info.
	Level string
	// Format is "json" (default) or "console"
	Format string
	// Output defaults to stderr
	Output io.Writer
}

// Logger is a leveled structured logger
type Logger interface {
	Debug(msg string, fields ...Field)
	Info(msg string, fields ...Field)
	Warn(msg string, fields ...Field)
	Error(msg string, fields ...Field)

	// WithModule returns a logger tagged with the given module name
	WithModule(name string) Logger

	// With returns a logger that adds fields to every entry
	With(fields ...Field) Logger
}

// New creates a zerolog-backed logger
func New(cfg Config) Logger {
	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}
	if cfg.Format == "console" {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.Kitchen}
	}

	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil || cfg.Level == "" {
		level = zerolog.InfoLevel
	}

	zl := zerolog.New(out).Level(level).With().Timestamp().Logger()
	return &zeroLogger{zl: zl}
}

// Nop returns a logger that discards everything
func Nop() Logger {
	return &zeroLogger{zl: zerolog.Nop()}
}

type zeroLogger struct {
	zl zerolog.Logger
}

func (l *zeroLogger) Debug(msg string, fields ...Field) {
	write(l.zl.Debug(), msg, fields)
}

func (l *zeroLogger) Info(msg string, fields ...Field) {
	write(l.zl.Info(), msg, fields)
}

func (l *zeroLogger) Warn(msg string, fields ...Field) {
	write(l.zl.Warn(), msg, fields)
}

func (l *zeroLogger) Error(msg string, fields ...Field) {
	write(l.zl.Error(), msg, fields)
}

func (l *zeroLogger) WithModule(name string) Logger {
	return &zeroLogger{zl: l.zl.With().Str("module", name).Logger()}
}

func (l *zeroLogger) With(fields ...Field) Logger {
	ctx := l.zl.With()
	for _, f := range fields {
		ctx = f.context(ctx)
	}
	return &zeroLogger{zl: ctx.Logger()}
}

func write(e *zerolog.Event, msg string, fields []Field) {
	// nil when the level is disabled
	if e == nil {
		return
	}
	for _, f := range fields {
		f.apply(e)
	}
	e.Msg(msg)
}
