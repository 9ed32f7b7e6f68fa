// Package display shows captured frames full screen in a fyne window.
package display

import (
	"image"
	"log/slog"
	"sync"
	"sync/atomic"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/app"
	"fyne.io/fyne/v2/canvas"

	"github.com/smazurov/glcapture/internal/logging"
	"github.com/smazurov/glcapture/internal/render"
)

// ModeName is the program mode served by this renderer.
const ModeName = "CAPTURE_DISPLAY"

// Mode registers the full-screen renderer.
func Mode() render.Mode {
	return render.Mode{
		Name:        ModeName,
		Description: "full screen camera view with keyboard focus controls",
		New: func(opts render.Options) (render.Renderer, error) {
			return New(opts), nil
		},
	}
}

// Renderer converts NV12 frames on the CPU and shows them in a fyne window.
// fyne must own the main goroutine, so the session runs through Host.
type Renderer struct {
	fyneApp fyne.App
	window  fyne.Window
	raster  *canvas.Raster
	frames  *frameSwap
	scale   int
	logger  *slog.Logger

	keys    *render.KeyQueue
	onKeys  render.KeyFunc
	closed  atomic.Bool
	quitOne sync.Once

	lastErr error
}

// New creates the window. It is shown by Host.
func New(opts render.Options) *Renderer {
	return newRenderer(app.New(), opts)
}

func newRenderer(fyneApp fyne.App, opts render.Options) *Renderer {
	window := fyneApp.NewWindow("glcapture")

	scale := opts.Scale
	if scale < 1 {
		scale = 1
	}

	r := &Renderer{
		fyneApp: fyneApp,
		window:  window,
		scale:   scale,
		logger:  logging.GetLogger("display"),
		keys:    render.NewKeyQueue(16),
		frames:  newFrameSwap(),
	}

	placeholder := image.NewRGBA(image.Rect(0, 0, 16, 9))
	for i := 3; i < len(placeholder.Pix); i += 4 {
		placeholder.Pix[i] = 0xff
	}
	// The generator runs on the UI goroutine.
	r.raster = canvas.NewRaster(func(_, _ int) image.Image {
		if img := r.frames.paint(); img != nil {
			return img
		}
		return placeholder
	})

	window.SetContent(r.raster)
	window.SetPadded(false)
	window.Canvas().SetOnTypedRune(func(ch rune) {
		r.keys.Push(string(ch))
	})
	window.Canvas().SetOnTypedKey(func(ev *fyne.KeyEvent) {
		if ev.Name == fyne.KeyEscape {
			r.keys.Push(render.QuitKey)
		}
	})
	window.SetOnClosed(func() {
		r.closed.Store(true)
	})
	window.Resize(fyne.NewSize(float32(opts.Width/scale), float32(opts.Height/scale)))
	window.SetFullScreen(true)

	return r
}

// SetKeyHandler registers the callback for typed keys.
func (r *Renderer) SetKeyHandler(fn render.KeyFunc) {
	r.onKeys = fn
}

// Setup converts and shows the priming frame.
func (r *Renderer) Setup(f render.Frame) error {
	i, _ := r.frames.acquire()
	img, err := render.NV12ToRGBA(f, r.scale, nil)
	if err != nil {
		return err
	}
	r.frames.publish(i, img)
	r.raster.Refresh()
	r.logger.Info("Display ready", "width", f.Width, "height", f.Height, "scale", r.scale)
	return nil
}

// Draw converts and shows one frame, then handles typed keys.
func (r *Renderer) Draw(f render.Frame) render.Result {
	if r.closed.Load() {
		return render.Exit
	}

	i, dst := r.frames.acquire()
	img, err := render.NV12ToRGBA(f, r.scale, dst)
	if err != nil {
		r.lastErr = err
		return render.Error
	}
	r.frames.publish(i, img)
	r.raster.Refresh()

	if r.keys.Drain(r.onKeys) {
		return render.Exit
	}
	return render.Continue
}

// Err returns the cause of the last Error result.
func (r *Renderer) Err() error {
	return r.lastErr
}

// Host shows the window and runs the session on another goroutine. The
// window closes when the session ends; closing the window stops the session
// at its next Draw.
func (r *Renderer) Host(run func() error) error {
	done := make(chan error, 1)
	go func() {
		err := run()
		r.quit()
		done <- err
	}()
	r.window.ShowAndRun()
	r.closed.Store(true)
	return <-done
}

func (r *Renderer) quit() {
	r.quitOne.Do(func() {
		r.fyneApp.Quit()
	})
}

// Close quits the fyne application if it is still running.
func (r *Renderer) Close() error {
	r.closed.Store(true)
	r.quit()
	return nil
}
