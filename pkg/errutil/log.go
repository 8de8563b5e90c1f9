// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package errutil provides helpers for oops errors: code extraction,
// structured logging, and test assertions.
package errutil

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/samber/oops"
)

// Code returns the error code of an oops error as a string, or "" if err
// carries none.
func Code(err error) string {
	oopsErr, ok := oops.AsOops(err)
	if !ok {
		return ""
	}
	switch code := oopsErr.Code().(type) {
	case nil:
		return ""
	case string:
		return code
	default:
		return fmt.Sprint(code)
	}
}

// LogError logs err at error level, including its oops code and context.
func LogError(logger *slog.Logger, msg string, err error) {
	LogErrorContext(context.Background(), logger, slog.LevelError, msg, err)
}

// LogErrorContext logs err at level with the oops code and context as
// structured attributes.
func LogErrorContext(ctx context.Context, logger *slog.Logger, level slog.Level, msg string, err error) {
	oopsErr, ok := oops.AsOops(err)
	if !ok {
		logger.Log(ctx, level, msg, "error", err)
		return
	}

	attrs := []any{"error", oopsErr.Error()}
	if code := Code(err); code != "" {
		attrs = append(attrs, "code", code)
	}
	if errCtx := oopsErr.Context(); len(errCtx) > 0 {
		attrs = append(attrs, "context", errCtx)
	}
	logger.Log(ctx, level, msg, attrs...)
}
