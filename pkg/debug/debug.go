// Package debug gates verbose logging by category.
//
// CHATRELAY_DEBUG selects categories (upstream, relay, transport, storage,
// auth, mcp, config, or all); CHATRELAY_LOG_LEVEL selects the slog level
// (ERROR, WARN, INFO, DEBUG, TRACE). Both fall back to the config values
// passed to Init.
//
//	debug.Log("upstream", "invoke", "model", modelID, "bytes", len(body))
//	if debug.TraceIsEnabled("relay") { ... dump raw frames ... }
package debug

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
)

// LevelTrace sits below slog.LevelDebug. Raw upstream frames are logged
// at this level.
const LevelTrace = slog.LevelDebug - 4

var levels = map[string]slog.Level{
	"TRACE":   LevelTrace,
	"DEBUG":   slog.LevelDebug,
	"INFO":    slog.LevelInfo,
	"WARN":    slog.LevelWarn,
	"WARNING": slog.LevelWarn,
	"ERROR":   slog.LevelError,
}

// categories is written by Init before any goroutine logs.
var categories = parseCategories(os.Getenv("CHATRELAY_DEBUG"))

// Init sets the enabled categories and installs the default slog handler
// on stderr. format is "text" or "json".
func Init(configCategories, configLevel, format string) {
	categories = parseCategories(envOr("CHATRELAY_DEBUG", configCategories))
	level := ParseLevel(envOr("CHATRELAY_LOG_LEVEL", configLevel))
	slog.SetDefault(slog.New(NewHandler(os.Stderr, level, format)))
}

// NewHandler returns a JSON handler for format "json" and a text handler
// otherwise.
func NewHandler(w io.Writer, level slog.Level, format string) slog.Handler {
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(format, "json") {
		return slog.NewJSONHandler(w, opts)
	}
	return slog.NewTextHandler(w, opts)
}

// Enabled reports whether category is selected.
func Enabled(category string) bool {
	return categories["all"] || categories[category]
}

// Log writes a DEBUG record tagged with category when it is enabled.
func Log(category, msg string, args ...any) {
	emit(category, slog.LevelDebug, msg, args)
}

// Trace writes a TRACE record tagged with category when it is enabled.
func Trace(category, msg string, args ...any) {
	emit(category, LevelTrace, msg, args)
}

// TraceIsEnabled reports whether Trace output for category would be
// written. Callers use it to skip building large payload dumps.
func TraceIsEnabled(category string) bool {
	return Enabled(category) && slog.Default().Enabled(context.Background(), LevelTrace)
}

func emit(category string, level slog.Level, msg string, args []any) {
	if !Enabled(category) {
		return
	}
	slog.Log(context.Background(), level, msg, append([]any{"debug", category}, args...)...)
}

// ParseLevel maps a level name to its slog.Level. Unknown names yield INFO.
func ParseLevel(s string) slog.Level {
	if l, ok := levels[strings.ToUpper(strings.TrimSpace(s))]; ok {
		return l
	}
	return slog.LevelInfo
}

// ValidLevel reports whether s names a known level.
func ValidLevel(s string) bool {
	_, ok := levels[strings.ToUpper(strings.TrimSpace(s))]
	return ok
}

// Truncate cuts s to at most maxLen runes and appends "..." when it did.
func Truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if r := []rune(s); len(r) > maxLen {
		return string(r[:maxLen]) + "..."
	}
	return s
}

func parseCategories(s string) map[string]bool {
	m := make(map[string]bool)
	for cat := range strings.SplitSeq(s, ",") {
		if cat = strings.ToLower(strings.TrimSpace(cat)); cat != "" {
			m[cat] = true
		}
	}
	return m
}

func envOr(name, fallback string) string {
	if v := os.Getenv(name); v != "" {
		return v
	}
	return fallback
}
