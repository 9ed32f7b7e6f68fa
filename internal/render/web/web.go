// Package web serves a browser preview and remote controls over HTTP.
//
// The HTTP handlers never touch the capture pool or the sensor controller.
// Key posts are queued and drained by Draw on the capture goroutine, and
// preview frames are encoded there only while a request is waiting.
package web

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humago"

	"github.com/smazurov/glcapture/internal/control"
	"github.com/smazurov/glcapture/internal/events"
	"github.com/smazurov/glcapture/internal/logging"
	"github.com/smazurov/glcapture/internal/metrics/exporters"
	"github.com/smazurov/glcapture/internal/render"
)

// ModeName is the program mode served by this renderer.
const ModeName = "CAPTURE_WEB"

// DefaultListen is used when no address is configured.
const DefaultListen = ":8090"

// Mode registers the HTTP preview renderer.
func Mode() render.Mode {
	return render.Mode{
		Name:        ModeName,
		Description: "HTTP preview, event stream and remote focus controls",
		New: func(opts render.Options) (render.Renderer, error) {
			return New(opts), nil
		},
	}
}

// Renderer implements render.Renderer on top of a huma API.
type Renderer struct {
	api        huma.API
	mux        *http.ServeMux
	httpServer *http.Server
	eventBus   *events.Bus
	listen     string
	scale      int
	logger     *slog.Logger

	keys   *render.KeyQueue
	onKeys render.KeyFunc
	snap   snapshot

	mu           sync.Mutex
	state        string
	focus        string
	pattern      int
	width        int
	height       int
	unsubscribes []func()
	closeOnce    sync.Once
}

// New creates the API and subscribes to status events. The listener is
// opened by Setup.
func New(opts render.Options) *Renderer {
	mux := http.NewServeMux()

	config := huma.DefaultConfig("glcapture API", "1.0.0")
	config.Info.Description = "Camera preview and focus controls for a V4L2 capture session"
	config.Servers = []*huma.Server{}

	listen := opts.Listen
	if listen == "" {
		listen = DefaultListen
	}
	scale := opts.Scale
	if scale < 1 {
		scale = 2
	}

	r := &Renderer{
		api:      humago.New(mux, config),
		mux:      mux,
		eventBus: opts.EventBus,
		listen:   listen,
		scale:    scale,
		logger:   logging.GetLogger("web"),
		keys:     render.NewKeyQueue(32),
		state:    events.SessionStarting,
		focus:    control.InitialFocusState.String(),
	}

	r.api.UseMiddleware(HTTPLoggingMiddleware)
	mux.Handle("GET /metrics", exporters.HTTPHandler())
	r.registerRoutes()

	if r.eventBus != nil {
		r.unsubscribes = append(r.unsubscribes,
			r.eventBus.Subscribe(func(e events.SessionStateChangedEvent) {
				r.mu.Lock()
				r.state = e.State
				r.mu.Unlock()
			}),
			r.eventBus.Subscribe(func(e events.FocusChangedEvent) {
				r.mu.Lock()
				r.focus = e.To
				r.mu.Unlock()
			}),
			r.eventBus.Subscribe(func(e events.TestPatternChangedEvent) {
				r.mu.Lock()
				r.pattern = e.Pattern
				r.mu.Unlock()
			}),
		)
	}

	return r
}

// Handler returns the HTTP handler serving the API.
func (r *Renderer) Handler() http.Handler {
	return r.mux
}

// SetKeyHandler registers the callback for posted keys.
func (r *Renderer) SetKeyHandler(fn render.KeyFunc) {
	r.onKeys = fn
}

// Setup opens the listener and starts serving.
func (r *Renderer) Setup(f render.Frame) error {
	r.mu.Lock()
	r.width, r.height = f.Width, f.Height
	r.mu.Unlock()

	ln, err := net.Listen("tcp", r.listen)
	if err != nil {
		return fmt.Errorf("listen %s: %w", r.listen, err)
	}

	r.httpServer = &http.Server{
		Handler:           r.mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		if err := r.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			r.logger.Error("HTTP server failed", "error", err)
		}
	}()

	r.logger.Info("Web preview listening", "addr", ln.Addr().String())
	r.logger.Info("OpenAPI documentation available", "url", "http://"+ln.Addr().String()+"/docs")
	return nil
}

// Draw encodes a preview if one was requested, then handles posted keys.
func (r *Renderer) Draw(f render.Frame) render.Result {
	if r.snap.wanted() {
		if err := r.snap.capture(f, r.scale); err != nil {
			r.logger.Warn("Preview encode failed", "sequence", f.Sequence, "error", err)
		}
	}

	if r.keys.Drain(r.onKeys) {
		return render.Exit
	}
	return render.Continue
}

// Close stops the HTTP server and event subscriptions.
func (r *Renderer) Close() error {
	var err error
	r.closeOnce.Do(func() {
		for _, unsub := range r.unsubscribes {
			unsub()
		}
		if r.httpServer != nil {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			err = r.httpServer.Shutdown(ctx)
		}
	})
	return err
}

func (r *Renderer) status() StatusData {
	r.mu.Lock()
	defer r.mu.Unlock()
	return StatusData{
		Mode:        ModeName,
		State:       r.state,
		FocusState:  r.focus,
		TestPattern: r.pattern,
		Width:       r.width,
		Height:      r.height,
	}
}
