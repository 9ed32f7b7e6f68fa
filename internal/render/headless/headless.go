// Package headless implements a renderer without a display. It logs frame
// statistics and reads key commands from a terminal, one per line.
package headless

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/smazurov/glcapture/internal/logging"
	"github.com/smazurov/glcapture/internal/render"
)

// ModeName is the program mode served by this renderer.
const ModeName = "CAPTURE_STATS"

const reportInterval = 5 * time.Second

// Mode registers the headless renderer.
func Mode() render.Mode {
	return render.Mode{
		Name:        ModeName,
		Description: "no display; log frame statistics and read keys from stdin",
		New: func(opts render.Options) (render.Renderer, error) {
			return New(opts), nil
		},
	}
}

// Renderer counts frames and checks that both planes carry data.
type Renderer struct {
	input  io.Reader
	output io.Writer
	logger *slog.Logger
	now    func() time.Time

	keys   *render.KeyQueue
	onKeys render.KeyFunc

	frames      uint64
	windowStart time.Time
	windowCount uint64
	lastSeq     uint32
	dropped     uint64
}

// New creates a headless renderer. A nil Input disables key reading.
func New(opts render.Options) *Renderer {
	out := opts.Output
	if out == nil {
		out = os.Stdout
	}
	return &Renderer{
		input:  opts.Input,
		output: out,
		logger: logging.GetLogger("render"),
		now:    time.Now,
		keys:   render.NewKeyQueue(16),
	}
}

// SetKeyHandler registers the callback for keys read from input.
func (r *Renderer) SetKeyHandler(fn render.KeyFunc) {
	r.onKeys = fn
}

// Setup validates the priming frame and starts the input reader.
func (r *Renderer) Setup(f render.Frame) error {
	if len(f.Planes) < 2 {
		return fmt.Errorf("expected 2 planes, got %d", len(f.Planes))
	}
	r.windowStart = r.now()
	if r.input != nil {
		go r.readKeys()
	}
	fmt.Fprintf(r.output, "capturing %dx%d, type h<enter> for help, q<enter> to quit\n", f.Width, f.Height)
	return nil
}

// readKeys forwards each input line as a key sequence until EOF.
func (r *Renderer) readKeys() {
	scanner := bufio.NewScanner(r.input)
	for scanner.Scan() {
		keys := strings.TrimSpace(scanner.Text())
		if keys == "" {
			continue
		}
		if !r.keys.Push(keys) {
			r.logger.Warn("Dropping key input, queue full", "keys", keys)
		}
	}
}

// Draw counts the frame, reports sequence gaps and periodic statistics.
func (r *Renderer) Draw(f render.Frame) render.Result {
	if r.frames > 0 && f.Sequence > r.lastSeq+1 {
		gap := uint64(f.Sequence - r.lastSeq - 1)
		r.dropped += gap
		r.logger.Debug("Sequence gap", "from", r.lastSeq, "to", f.Sequence, "dropped", gap)
	}
	r.lastSeq = f.Sequence
	r.frames++
	r.windowCount++

	if now := r.now(); now.Sub(r.windowStart) >= reportInterval {
		fps := float64(r.windowCount) / now.Sub(r.windowStart).Seconds()
		fmt.Fprintf(r.output, "frames=%d fps=%.2f sequence=%d dropped=%d\n", r.frames, fps, f.Sequence, r.dropped)
		r.windowStart = now
		r.windowCount = 0
	}

	if r.keys.Drain(r.onKeys) {
		return render.Exit
	}
	return render.Continue
}

// Frames returns the number of frames drawn.
func (r *Renderer) Frames() uint64 {
	return r.frames
}

// Dropped returns the number of frames missing from the sequence.
func (r *Renderer) Dropped() uint64 {
	return r.dropped
}
