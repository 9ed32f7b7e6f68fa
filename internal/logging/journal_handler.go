package logging

import (
	"context"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/coreos/go-systemd/v22/journal"
)

// SyslogIdentifier tags every journal entry.
const SyslogIdentifier = "glcapture"

// journalHandler sends records to the systemd journal with attributes as
// structured fields, so `journalctl MODULE=capture` works.
type journalHandler struct {
	handlerBase
}

func newJournalHandler(level slog.Leveler) *journalHandler {
	return &journalHandler{handlerBase{level: level}}
}

func (h *journalHandler) Enabled(_ context.Context, level slog.Level) bool {
	return h.enabled(level)
}

func (h *journalHandler) Handle(_ context.Context, r slog.Record) error {
	fields := map[string]string{"SYSLOG_IDENTIFIER": SyslogIdentifier}
	h.each(r, func(path []string, a slog.Attr) {
		if key := journalField(path, a.Key); key != "" {
			fields[key] = journalValue(a.Value)
		}
	})
	return journal.Send(r.Message, journalPriority(r.Level), fields)
}

func (h *journalHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &journalHandler{h.withAttrs(attrs)}
}

func (h *journalHandler) WithGroup(name string) slog.Handler {
	return &journalHandler{h.withGroup(name)}
}

func journalPriority(level slog.Level) journal.Priority {
	switch {
	case level >= slog.LevelError:
		return journal.PriErr
	case level >= slog.LevelWarn:
		return journal.PriWarning
	case level >= slog.LevelInfo:
		return journal.PriInfo
	default:
		return journal.PriDebug
	}
}

// journalField builds a journald field name: uppercase letters, digits and
// underscores, not starting with an underscore or digit. Names journald
// reserves for itself are prefixed so attributes cannot overwrite them.
func journalField(path []string, key string) string {
	raw := strings.Join(append(append([]string(nil), path...), key), "_")
	var b strings.Builder
	for _, c := range strings.ToUpper(raw) {
		switch {
		case c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
			b.WriteRune(c)
		default:
			b.WriteByte('_')
		}
	}
	name := strings.TrimLeft(b.String(), "_0123456789")
	switch name {
	case "":
		return ""
	case "MESSAGE", "PRIORITY", "SYSLOG_IDENTIFIER":
		return "ATTR_" + name
	}
	return name
}

func journalValue(v slog.Value) string {
	switch v.Kind() {
	case slog.KindFloat64:
		return strconv.FormatFloat(v.Float64(), 'f', -1, 64)
	case slog.KindTime:
		return v.Time().Format(time.RFC3339Nano)
	default:
		return v.String()
	}
}

// IsJournalAvailable reports whether journald is listening.
func IsJournalAvailable() bool {
	return journal.Enabled()
}
