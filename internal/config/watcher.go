package config

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce is how long the file must stay quiet before a reload.
const DefaultDebounce = 1500 * time.Millisecond

// Watcher reloads one config file and passes the result to its handlers.
// The parent directory is watched so saves that rename a temp file over the
// original are seen. A save that leaves the bytes unchanged is ignored.
type Watcher[T any] struct {
	path     string
	debounce time.Duration
	loader   func(path string) (T, error)
	onError  func(error)
	logger   *slog.Logger

	mu       sync.Mutex
	handlers map[int]func(T)
	nextID   int
	content  []byte

	fs   *fsnotify.Watcher
	done chan struct{}
	once sync.Once
}

// WatcherOption configures a Watcher.
type WatcherOption[T any] func(*Watcher[T])

// WithDebounce overrides DefaultDebounce.
func WithDebounce[T any](d time.Duration) WatcherOption[T] {
	return func(w *Watcher[T]) {
		w.debounce = d
	}
}

// WithErrorHandler is called when the loader rejects the changed file.
// Handlers are not called in that case.
func WithErrorHandler[T any](handler func(error)) WatcherOption[T] {
	return func(w *Watcher[T]) {
		w.onError = handler
	}
}

// NewConfigWatcher creates a watcher for path. loader runs on every change.
func NewConfigWatcher[T any](
	path string,
	loader func(path string) (T, error),
	logger *slog.Logger,
	opts ...WatcherOption[T],
) *Watcher[T] {
	w := &Watcher[T]{
		path:     filepath.Clean(path),
		debounce: DefaultDebounce,
		loader:   loader,
		logger:   logger,
		handlers: make(map[int]func(T)),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// OnReload registers handler and returns a function that removes it.
func (w *Watcher[T]) OnReload(handler func(T)) func() {
	w.mu.Lock()
	id := w.nextID
	w.nextID++
	w.handlers[id] = handler
	w.mu.Unlock()

	return func() {
		w.mu.Lock()
		delete(w.handlers, id)
		w.mu.Unlock()
	}
}

// Start begins watching. It fails if the file's directory does not exist.
func (w *Watcher[T]) Start() error {
	fs, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := fs.Add(filepath.Dir(w.path)); err != nil {
		fs.Close()
		return err
	}
	w.fs = fs

	w.mu.Lock()
	w.content, _ = os.ReadFile(w.path)
	w.mu.Unlock()

	w.logger.Info("Watching config file", "path", w.path, "debounce", w.debounce)
	go w.loop()
	return nil
}

// Stop ends the watch. Pending reloads are dropped.
func (w *Watcher[T]) Stop() error {
	var err error
	w.once.Do(func() {
		close(w.done)
		if w.fs != nil {
			err = w.fs.Close()
		}
	})
	return err
}

func (w *Watcher[T]) loop() {
	timer := time.NewTimer(w.debounce)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-w.done:
			return

		case ev, ok := <-w.fs.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != w.path || !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
				continue
			}
			w.logger.Debug("Config file touched", "op", ev.Op.String())
			timer.Reset(w.debounce)

		case <-timer.C:
			w.reload()

		case err, ok := <-w.fs.Errors:
			if !ok {
				return
			}
			w.logger.Warn("Config watch error", "error", err)
		}
	}
}

func (w *Watcher[T]) reload() {
	select {
	case <-w.done:
		return
	default:
	}

	data, err := os.ReadFile(w.path)
	if err != nil {
		w.fail(err)
		return
	}
	w.mu.Lock()
	unchanged := bytes.Equal(data, w.content)
	w.mu.Unlock()
	if unchanged {
		w.logger.Debug("Config file unchanged")
		return
	}

	cfg, err := w.loader(w.path)
	if err != nil {
		w.fail(err)
		return
	}

	w.mu.Lock()
	w.content = data
	handlers := make([]func(T), 0, len(w.handlers))
	for id := 0; id < w.nextID; id++ {
		if h, ok := w.handlers[id]; ok {
			handlers = append(handlers, h)
		}
	}
	w.mu.Unlock()

	w.logger.Info("Config file reloaded", "handlers", len(handlers))
	for _, h := range handlers {
		h(cfg)
	}
}

func (w *Watcher[T]) fail(err error) {
	w.logger.Warn("Config reload failed", "error", err)
	if w.onError != nil {
		w.onError(err)
	}
}
