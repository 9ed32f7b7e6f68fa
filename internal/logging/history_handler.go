package logging

import (
	"context"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"
)

// LogCallback receives every entry written to the history. main uses it to
// publish entries on the event bus without this package importing events.
type LogCallback func(entry LogEntry)

// entrySeq numbers entries so stream clients can drop duplicates after reconnecting.
var entrySeq atomic.Uint64

// historyHandler records entries into the package history and hands them to
// the callback. Both are read per record so handlers created before
// Initialize see them.
type historyHandler struct {
	handlerBase
}

func newHistoryHandler(level slog.Leveler) *historyHandler {
	return &historyHandler{handlerBase{level: level}}
}

func (h *historyHandler) Enabled(_ context.Context, level slog.Level) bool {
	return h.enabled(level)
}

func (h *historyHandler) Handle(_ context.Context, r slog.Record) error {
	history, callback := std.sinks()
	if history == nil && callback == nil {
		return nil
	}

	entry := LogEntry{
		Seq:        entrySeq.Add(1),
		Timestamp:  r.Time,
		Level:      levelName(r.Level),
		Module:     "app",
		Message:    r.Message,
		Attributes: make(map[string]any),
	}
	h.each(r, func(path []string, a slog.Attr) {
		if len(path) == 0 && a.Key == "module" {
			entry.Module = a.Value.String()
			return
		}
		entry.Attributes[dotted(path, a.Key)] = plainValue(a.Value)
	})

	if history != nil {
		history.Append(entry)
	}
	if callback != nil {
		callback(entry)
	}
	return nil
}

func (h *historyHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &historyHandler{h.withAttrs(attrs)}
}

func (h *historyHandler) WithGroup(name string) slog.Handler {
	return &historyHandler{h.withGroup(name)}
}

func dotted(path []string, key string) string {
	if len(path) == 0 {
		return key
	}
	return strings.Join(path, ".") + "." + key
}

// plainValue converts v into something encoding/json renders readably.
func plainValue(v slog.Value) any {
	switch v.Kind() {
	case slog.KindTime:
		return v.Time().Format(time.RFC3339Nano)
	case slog.KindDuration:
		return v.Duration().String()
	case slog.KindAny:
		if err, ok := v.Any().(error); ok {
			return err.Error()
		}
		return v.Any()
	default:
		return v.Any()
	}
}

// levelName is the lowercase name used in entries and config files.
func levelName(level slog.Level) string {
	switch {
	case level >= slog.LevelError:
		return "error"
	case level >= slog.LevelWarn:
		return "warn"
	case level >= slog.LevelInfo:
		return "info"
	default:
		return "debug"
	}
}
