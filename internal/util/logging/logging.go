// Copyright 2024 Alexandre Mahdhaoui
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package logging provides shared logging utilities for the tagconverge
// binaries. It configures log/slog as the standard library logger and returns
// a logr.Logger backed by zap for the libraries.
package logging

import (
	"io"
	"log/slog"
	"os"

	"github.com/go-logr/logr"
	"github.com/go-logr/zapr"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Options configures the logger behavior.
type Options struct {
	// Development enables development mode logging (more verbose, human-readable).
	Development bool

	// Level sets the minimum slog level. Defaults to slog.LevelInfo.
	Level slog.Level

	// Verbosity enables logr V(n) messages up to n.
	Verbosity int

	// Output receives every log line. Defaults to os.Stderr so that reports
	// written to stdout stay parseable.
	Output io.Writer
}

// DefaultOptions returns the default logging options.
func DefaultOptions() Options {
	return Options{
		Development: false,
		Level:       slog.LevelInfo,
		Output:      os.Stderr,
	}
}

// Setup configures the standard library slog logger and returns a zap-backed
// logr.Logger writing to the same output.
//
// This must be called early in main() before using any logging.
func Setup(opts Options) logr.Logger {
	out := opts.Output
	if out == nil {
		out = os.Stderr
	}

	var handler slog.Handler
	if opts.Development {
		// Use text handler for development (more readable)
		handler = slog.NewTextHandler(out, &slog.HandlerOptions{Level: opts.Level})
	} else {
		// Use JSON handler for production (structured, machine-readable)
		handler = slog.NewJSONHandler(out, &slog.HandlerOptions{Level: opts.Level})
	}
	slog.SetDefault(slog.New(handler))

	var encoder zapcore.Encoder
	if opts.Development {
		encoder = zapcore.NewConsoleEncoder(zap.NewDevelopmentEncoderConfig())
	} else {
		encoder = zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig())
	}

	// logr V(n) maps to zap level -n.
	level := zap.NewAtomicLevelAt(zapcore.Level(-opts.Verbosity))
	core := zapcore.NewCore(encoder, zapcore.AddSync(out), level)

	return zapr.NewLogger(zap.New(core))
}

// SetupDefault sets up logging with default options.
func SetupDefault() logr.Logger {
	return Setup(DefaultOptions())
}

// SetupDevelopment sets up logging in development mode.
// Uses text handler and more verbose output.
func SetupDevelopment() logr.Logger {
	return Setup(Options{
		Development: true,
		Level:       slog.LevelDebug,
		Verbosity:   1,
		Output:      os.Stderr,
	})
}
