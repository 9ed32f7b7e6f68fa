package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
)

// historySize is how many entries /api/logs replays to a new client.
const historySize = 1000

// Logger is the subset of *slog.Logger that packages depend on, so tests can
// pass any slog-compatible logger.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Config holds the global level, output format and per-module overrides.
type Config struct {
	Level   string            `toml:"level"`
	Format  string            `toml:"format"`
	Modules map[string]string `toml:"modules"`

	// Output replaces stdout for text or JSON records. Tests set it.
	Output io.Writer `toml:"-"`
}

// registry owns the module loggers. Each module keeps one LevelVar for the
// life of the process so loggers handed out early follow later level changes.
type registry struct {
	mu       sync.RWMutex
	config   Config
	global   slog.LevelVar
	levels   map[string]*slog.LevelVar
	loggers  map[string]*slog.Logger
	history  *History
	callback LogCallback
}

var std = newRegistry()

func newRegistry() *registry {
	return &registry{
		levels:  make(map[string]*slog.LevelVar),
		loggers: make(map[string]*slog.Logger),
	}
}

// Initialize sets the output format and levels and starts keeping history.
// Loggers returned earlier are rebuilt with the configured format.
func Initialize(config Config) {
	std.mu.Lock()
	defer std.mu.Unlock()

	std.config = config
	std.history = NewHistory(historySize)
	std.applyLevels()

	for module, level := range std.levels {
		std.loggers[module] = slog.New(std.handler(level)).With("module", module)
	}
	slog.SetDefault(slog.New(std.handler(&std.global)))
}

// UpdateLevels applies new global and per-module levels to every logger.
// The format is fixed by Initialize.
func UpdateLevels(config Config) {
	std.mu.Lock()
	defer std.mu.Unlock()

	std.config.Level = config.Level
	std.config.Modules = config.Modules
	std.applyLevels()
}

// GetBuffer returns the log history, or nil before Initialize.
func GetBuffer() *History {
	std.mu.RLock()
	defer std.mu.RUnlock()
	return std.history
}

// SetLogCallback registers fn to receive every new entry. Pass nil to stop.
func SetLogCallback(fn LogCallback) {
	std.mu.Lock()
	defer std.mu.Unlock()
	std.callback = fn
}

// GetLogger returns the logger for module, creating it on first use. Every
// record carries a module attribute.
func GetLogger(module string) *slog.Logger {
	std.mu.RLock()
	logger, ok := std.loggers[module]
	std.mu.RUnlock()
	if ok {
		return logger
	}

	std.mu.Lock()
	defer std.mu.Unlock()
	if logger, ok := std.loggers[module]; ok {
		return logger
	}

	level := &slog.LevelVar{}
	level.Set(std.moduleLevel(module))
	logger = slog.New(std.handler(level)).With("module", module)
	std.levels[module] = level
	std.loggers[module] = logger
	return logger
}

func (r *registry) sinks() (*History, LogCallback) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.history, r.callback
}

// applyLevels must be called with mu held.
func (r *registry) applyLevels() {
	r.global.Set(r.globalLevel())
	for module, level := range r.levels {
		level.Set(r.moduleLevel(module))
	}
}

func (r *registry) globalLevel() slog.Level {
	if level, ok := ParseLevel(r.config.Level); ok {
		return level
	}
	return slog.LevelInfo
}

func (r *registry) moduleLevel(module string) slog.Level {
	if level, ok := ParseLevel(r.config.Modules[module]); ok {
		return level
	}
	return r.globalLevel()
}

// handler writes to the console, the journal when present, and the history.
// The console is skipped when stdout goes nowhere, as under systemd with
// StandardOutput=null.
func (r *registry) handler(level slog.Leveler) slog.Handler {
	handlers := fanout{}
	if out := r.output(); out != nil {
		opts := &slog.HandlerOptions{Level: level}
		if r.config.Format == "json" {
			handlers = append(handlers, slog.NewJSONHandler(out, opts))
		} else {
			handlers = append(handlers, slog.NewTextHandler(out, opts))
		}
	}
	if r.config.Output == nil && IsJournalAvailable() {
		handlers = append(handlers, newJournalHandler(level))
	}
	handlers = append(handlers, newHistoryHandler(level))

	if len(handlers) == 1 {
		return handlers[0]
	}
	return handlers
}

func (r *registry) output() io.Writer {
	if r.config.Output != nil {
		return r.config.Output
	}
	fi, err := os.Stdout.Stat()
	if err != nil {
		return nil
	}
	mode := fi.Mode()
	if mode&(os.ModeCharDevice|os.ModeNamedPipe|os.ModeSocket) != 0 || mode.IsRegular() {
		return os.Stdout
	}
	return nil
}

// ParseLevel parses debug, info, warn (or warning) and error, ignoring case.
func ParseLevel(s string) (slog.Level, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, true
	case "info":
		return slog.LevelInfo, true
	case "warn", "warning":
		return slog.LevelWarn, true
	case "error":
		return slog.LevelError, true
	}
	return 0, false
}
