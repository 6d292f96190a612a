// Package logger provides verbose logging for the copilot CLI.
// When verbose mode is enabled via the --verbose flag, debug messages
// are printed to stderr to help users follow the case pipeline.
// Records are written through zerolog; FromContext adds trace identifiers
// from the active span.
package logger

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"
)

var (
	mu       sync.Mutex
	verbose  bool
	jsonMode bool
	output   io.Writer = os.Stderr
	base               = newLogger(os.Stderr, false)
)

func newLogger(w io.Writer, asJSON bool) zerolog.Logger {
	if asJSON {
		return zerolog.New(w).With().Timestamp().Logger().Level(zerolog.DebugLevel)
	}
	cw := zerolog.ConsoleWriter{
		Out:        w,
		NoColor:    true,
		PartsOrder: []string{zerolog.LevelFieldName, zerolog.MessageFieldName},
		FormatLevel: func(i any) string {
			return "[" + strings.ToUpper(fmt.Sprint(i)) + "]"
		},
	}
	return zerolog.New(cw).Level(zerolog.DebugLevel)
}

// SetVerbose enables or disables verbose logging.
func SetVerbose(v bool) {
	mu.Lock()
	defer mu.Unlock()
	verbose = v
}

// IsVerbose returns true if verbose mode is enabled.
func IsVerbose() bool {
	mu.Lock()
	defer mu.Unlock()
	return verbose
}

// SetOutput sets the output writer for verbose logs.
// Defaults to os.Stderr. Useful for testing.
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	output = w
	base = newLogger(w, jsonMode)
}

// SetJSON switches between console lines and JSON records.
func SetJSON(v bool) {
	mu.Lock()
	defer mu.Unlock()
	jsonMode = v
	base = newLogger(output, v)
}

// Debug prints a message if verbose mode is enabled.
func Debug(format string, args ...any) {
	emit(zerolog.DebugLevel, false, format, args...)
}

// Info prints an informational message if verbose mode is enabled.
func Info(format string, args ...any) {
	emit(zerolog.InfoLevel, false, format, args...)
}

// Warn prints a warning message if verbose mode is enabled.
func Warn(format string, args ...any) {
	emit(zerolog.WarnLevel, false, format, args...)
}

// Error prints an error message regardless of verbose mode.
func Error(format string, args ...any) {
	emit(zerolog.ErrorLevel, true, format, args...)
}

func emit(level zerolog.Level, always bool, format string, args ...any) {
	mu.Lock()
	defer mu.Unlock()
	if !verbose && !always {
		return
	}
	base.WithLevel(level).Msgf(format, args...)
}

// Section prints a section header if verbose mode is enabled.
func Section(name string) {
	mu.Lock()
	defer mu.Unlock()
	if verbose && !jsonMode {
		fmt.Fprintf(output, "\n=== %s ===\n", name)
	}
}

// FromContext returns a structured logger carrying the trace and span ids
// of the active span. When verbose mode is off only errors are emitted.
func FromContext(ctx context.Context) *zerolog.Logger {
	mu.Lock()
	l := base
	if !verbose {
		l = l.Level(zerolog.ErrorLevel)
	}
	mu.Unlock()

	span := trace.SpanFromContext(ctx)
	if span.SpanContext().IsValid() {
		l = l.With().
			Str("trace_id", span.SpanContext().TraceID().String()).
			Str("span_id", span.SpanContext().SpanID().String()).
			Logger()
	}
	return &l
}
