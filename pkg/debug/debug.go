// Package debug provides category-based debug logging for trianswer.
//
// Two orthogonal controls:
//   - Categories (WHAT to debug): TRIANSWER_DEBUG env or logging.debug in config
//   - Levels (HOW MUCH detail): TRIANSWER_LOG_LEVEL env or logging.level in config
//
// Usage:
//
//	debug.Log("retry", "attempt failed", "style", style, "attempt", n)
//	if debug.Enabled("providers") { /* expensive formatting */ }
//
// Categories: engine, retry, providers, store, http, events, auth, mcp, config, all.
// Levels: ERROR, WARN, INFO, DEBUG, TRACE.
package debug

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"
	"strings"
)

const (
	envCategories = "TRIANSWER_DEBUG"
	envLevel      = "TRIANSWER_LOG_LEVEL"
	envFormat     = "TRIANSWER_LOG_FORMAT"
)

// LevelTrace is below slog.LevelDebug for maximum verbosity.
// At TRACE, full prompts and upstream payloads are logged.
const LevelTrace = slog.LevelDebug - 4

// categories is read-only after Setup.
var categories map[string]bool

func init() {
	categories = parseCategories(os.Getenv(envCategories))
}

// Options configures the process logger. Environment variables override
// each non-empty field.
type Options struct {
	Categories string
	Level      string
	// Format is "text" (default) or "json".
	Format string
	// Writer defaults to os.Stderr.
	Writer io.Writer
}

// Setup installs the default slog logger and the enabled categories.
func Setup(opts Options) {
	categories = parseCategories(firstNonEmpty(os.Getenv(envCategories), opts.Categories))

	level := ParseLevel(firstNonEmpty(os.Getenv(envLevel), opts.Level))
	w := opts.Writer
	if w == nil {
		w = os.Stderr
	}

	handlerOpts := &slog.HandlerOptions{Level: level}
	var h slog.Handler
	switch strings.ToLower(firstNonEmpty(os.Getenv(envFormat), opts.Format)) {
	case "json":
		h = slog.NewJSONHandler(w, handlerOpts)
	default:
		h = slog.NewTextHandler(w, handlerOpts)
	}
	slog.SetDefault(slog.New(h))
}

// Enabled reports whether debug output is active for the given category.
func Enabled(category string) bool {
	return categories["all"] || categories[category]
}

// Log emits a debug message for the given category.
// If the category is not enabled, this is a no-op.
func Log(category string, msg string, args ...any) {
	if !Enabled(category) {
		return
	}
	slog.Debug(msg, append([]any{"debug", category}, args...)...)
}

// Trace emits a trace-level message for the given category.
// Only visible when TRIANSWER_LOG_LEVEL=TRACE.
func Trace(category string, msg string, args ...any) {
	if !Enabled(category) {
		return
	}
	slog.Log(nil, LevelTrace, msg, append([]any{"debug", category}, args...)...)
}

// TraceIsEnabled reports whether TRACE level is active for the given category.
func TraceIsEnabled(category string) bool {
	return Enabled(category) && slog.Default().Enabled(nil, LevelTrace)
}

// Dump writes a labelled block of plain text to stderr, for copy-paste
// friendly payloads. Only emitted at TRACE for an enabled category.
func Dump(category, label, text string) {
	if !TraceIsEnabled(category) {
		return
	}
	fmt.Fprintf(os.Stderr, "--- %s [%s] ---\n%s\n", label, category, text)
}

// ParseLevel converts a level string to a slog.Level.
func ParseLevel(s string) slog.Level {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "TRACE":
		return LevelTrace
	case "DEBUG":
		return slog.LevelDebug
	case "INFO", "":
		return slog.LevelInfo
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Categories returns the enabled categories, sorted.
func Categories() []string {
	result := make([]string, 0, len(categories))
	for k := range categories {
		result = append(result, k)
	}
	sort.Strings(result)
	return result
}

// Truncate returns s cut to maxLen bytes, with "..." appended if cut.
func Truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}

func parseCategories(s string) map[string]bool {
	m := make(map[string]bool)
	for _, cat := range strings.Split(s, ",") {
		cat = strings.TrimSpace(strings.ToLower(cat))
		if cat != "" {
			m[cat] = true
		}
	}
	return m
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
