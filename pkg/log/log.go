// Copyright 2025 Packetd Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//   http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package log provides a thin structured-logging facade backed by zap.
// Call Setup once at process start; everything else goes through Root or
// the package-level convenience functions.
package log

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Level is the log verbosity level.
type Level = zapcore.Level

// Logger describes the logging API used throughout the codebase. Context is
// passed as alternating key/value pairs, keys must be strings.
type Logger interface {
	New(ctx ...any) Logger
	Debug(msg string, ctx ...any)
	Info(msg string, ctx ...any)
	Error(msg string, ctx ...any)
	Enabled(lvl Level) bool
}

// Config configures the process-wide root logger.
type Config struct {
	// Level is one of "debug", "info" or "error". Empty defaults to info.
	Level string
}

var root Logger = &logger{logger: zap.NewNop()}

// Setup initializes the root logger. It must be called before the first use
// of Root; calling it again replaces the root logger.
func Setup(cfg Config) error {
	lvl := zapcore.InfoLevel
	if cfg.Level != "" {
		if err := lvl.Set(cfg.Level); err != nil {
			return fmt.Errorf("parsing log level: %w", err)
		}
	}
	zcfg := zap.NewProductionConfig()
	zcfg.Level = zap.NewAtomicLevelAt(lvl)
	zcfg.Encoding = "console"
	zcfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	zcfg.DisableStacktrace = true
	l, err := zcfg.Build(zap.AddCallerSkip(1))
	if err != nil {
		return fmt.Errorf("creating logger: %w", err)
	}
	root = &logger{logger: l}
	return nil
}

// Root returns the root logger. It is guaranteed to never return nil.
func Root() Logger {
	return root
}

// New returns a child of the root logger with the given context attached.
func New(ctx ...any) Logger {
	return root.New(ctx...)
}

// Discard sets the root logger to discard all messages. Intended for tests.
func Discard() {
	root = &logger{logger: zap.NewNop()}
}

// Debug logs at debug level on the root logger.
func Debug(msg string, ctx ...any) { root.Debug(msg, ctx...) }

// Info logs at info level on the root logger.
func Info(msg string, ctx ...any) { root.Info(msg, ctx...) }

// Error logs at error level on the root logger.
func Error(msg string, ctx ...any) { root.Error(msg, ctx...) }

// HandlePanic catches panics and logs them. Every goroutine should defer it
// as its first statement.
func HandlePanic() {
	if msg := recover(); msg != nil {
		root.Error("Panic", "msg", msg)
		panic(msg)
	}
}

type logger struct {
	logger *zap.Logger
}

// NewFromZap wraps an existing zap logger. Used by testlog.
func NewFromZap(l *zap.Logger) Logger {
	return &logger{logger: l}
}

func (l *logger) New(ctx ...any) Logger {
	return &logger{logger: l.logger.With(convertCtx(ctx)...)}
}

func (l *logger) Debug(msg string, ctx ...any) {
	l.logger.Debug(msg, convertCtx(ctx)...)
}

func (l *logger) Info(msg string, ctx ...any) {
	l.logger.Info(msg, convertCtx(ctx)...)
}

func (l *logger) Error(msg string, ctx ...any) {
	l.logger.Error(msg, convertCtx(ctx)...)
}

func (l *logger) Enabled(lvl Level) bool {
	return l.logger.Core().Enabled(lvl)
}

func convertCtx(ctx []any) []zap.Field {
	fields := make([]zap.Field, 0, len(ctx)/2)
	for i := 0; i+1 < len(ctx); i += 2 {
		fields = append(fields, zap.Any(ctx[i].(string), ctx[i+1]))
	}
	return fields
}
