// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package logging provides structured logging with OpenTelemetry trace context.
package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/lmittmann/tint"
	"github.com/samber/oops"
	"go.opentelemetry.io/otel/trace"
)

// traceHandler wraps a slog.Handler to add trace context.
type traceHandler struct {
	handler slog.Handler
	service string
	version string
}

// Handle adds trace context to the log record.
func (h *traceHandler) Handle(ctx context.Context, r slog.Record) error {
	r.AddAttrs(
		slog.String("service", h.service),
		slog.String("version", h.version),
	)

	spanCtx := trace.SpanContextFromContext(ctx)
	if spanCtx.HasTraceID() {
		r.AddAttrs(slog.String("trace_id", spanCtx.TraceID().String()))
	}
	if spanCtx.HasSpanID() {
		r.AddAttrs(slog.String("span_id", spanCtx.SpanID().String()))
	}

	//nolint:wrapcheck // Handler interface requires unwrapped error passthrough
	return h.handler.Handle(ctx, r)
}

// Enabled returns true if the level is enabled.
func (h *traceHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.handler.Enabled(ctx, level)
}

// WithAttrs returns a new handler with the given attributes.
func (h *traceHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &traceHandler{
		handler: h.handler.WithAttrs(attrs),
		service: h.service,
		version: h.version,
	}
}

// WithGroup returns a new handler with the given group.
func (h *traceHandler) WithGroup(name string) slog.Handler {
	return &traceHandler{
		handler: h.handler.WithGroup(name),
		service: h.service,
		version: h.version,
	}
}

// Log output formats.
const (
	FormatJSON    = "json"
	FormatText    = "text"
	FormatConsole = "console"
)

// Options configures Setup.
type Options struct {
	Service string
	Version string
	// Format is FormatJSON, FormatText, or FormatConsole. Empty means JSON.
	Format string
	// Level is a slog level name ("debug", "info", "warn", "error").
	// Empty means info.
	Level string
	// Writer defaults to os.Stderr.
	Writer io.Writer
}

// ParseLevel converts a level name to a slog.Level.
func ParseLevel(name string) (slog.Level, error) {
	if name == "" {
		return slog.LevelInfo, nil
	}
	var level slog.Level
	if err := level.UnmarshalText([]byte(name)); err != nil {
		return 0, oops.Code("CONFIG_INVALID").With("log_level", name).Wrap(err)
	}
	return level, nil
}

// Setup creates a configured slog.Logger that adds service, version, and
// trace context to every record. The console format writes colored,
// human-oriented output for local development.
func Setup(opts Options) (*slog.Logger, error) {
	w := opts.Writer
	if w == nil {
		w = os.Stderr
	}

	level, err := ParseLevel(opts.Level)
	if err != nil {
		return nil, err
	}

	var baseHandler slog.Handler
	switch opts.Format {
	case "", FormatJSON:
		baseHandler = slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level})
	case FormatText:
		baseHandler = slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})
	case FormatConsole:
		baseHandler = tint.NewHandler(w, &tint.Options{
			Level:      level,
			TimeFormat: time.Kitchen,
			NoColor:    !isTerminal(w),
		})
	default:
		return nil, oops.Code("CONFIG_INVALID").
			With("log_format", opts.Format).
			Errorf("unknown log format %q", opts.Format)
	}

	return slog.New(&traceHandler{
		handler: baseHandler,
		service: opts.Service,
		version: opts.Version,
	}), nil
}

// SetDefault configures a logger with Setup and installs it as the
// slog default.
func SetDefault(opts Options) (*slog.Logger, error) {
	logger, err := Setup(opts)
	if err != nil {
		return nil, err
	}
	slog.SetDefault(logger)
	return logger, nil
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return info.Mode()&os.ModeCharDevice != 0
}
