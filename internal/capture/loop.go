//go:build linux

package capture

import (
	"errors"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/smazurov/glcapture/internal/logging"
	"github.com/smazurov/glcapture/internal/metrics"
	"github.com/smazurov/glcapture/internal/render"
	"github.com/smazurov/glcapture/pkg/linuxav/v4l2"
)

// LoopState is the phase of the capture loop.
type LoopState int

const (
	// Priming hands the first buffer to Renderer.Setup.
	Priming LoopState = iota
	// Streaming dequeues, draws and requeues.
	Streaming
	// Stopped is terminal.
	Stopped
)

func (s LoopState) String() string {
	switch s {
	case Priming:
		return "priming"
	case Streaming:
		return "streaming"
	case Stopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// ErrLoopStopped is returned when Run is called on a loop that already ran.
var ErrLoopStopped = errors.New("capture loop already stopped")

// StopFlag asks the loop to stop at the top of its next iteration.
// It is safe to set from signal handlers and other goroutines.
type StopFlag struct {
	requested atomic.Bool
}

// Request sets the flag.
func (f *StopFlag) Request() { f.requested.Store(true) }

// Requested reports whether a stop was requested.
func (f *StopFlag) Requested() bool { return f.requested.Load() }

// Loop dequeues frames, hands them to the renderer and requeues them.
type Loop struct {
	pool     *Pool
	renderer render.Renderer
	format   v4l2.Format
	stop     *StopFlag
	logger   logging.Logger

	limit      uint64
	keys       *render.KeyQueue
	onKeys     render.KeyFunc
	frames     uint64
	state      LoopState
	onState    func(LoopState)
	interrupts uint64
}

// NewLoop creates a loop over a mapped and queued pool.
func NewLoop(pool *Pool, renderer render.Renderer, format v4l2.Format, stop *StopFlag) *Loop {
	return &Loop{
		pool:     pool,
		renderer: renderer,
		format:   format,
		stop:     stop,
		logger:   logging.GetLogger("capture"),
	}
}

// SetFrameLimit stops the loop normally after n drawn frames. 0 means no limit.
func (l *Loop) SetFrameLimit(n int) {
	if n < 0 {
		n = 0
	}
	l.limit = uint64(n)
}

// SetKeySource drains q before every dequeue and passes the keys to fn.
// QuitKey in q stops the loop normally.
func (l *Loop) SetKeySource(q *render.KeyQueue, fn render.KeyFunc) {
	l.keys = q
	l.onKeys = fn
}

// OnStateChange registers fn to run on every state transition.
func (l *Loop) OnStateChange(fn func(LoopState)) { l.onState = fn }

// State returns the current loop state.
func (l *Loop) State() LoopState { return l.state }

// Frames returns the number of frames drawn and requeued.
func (l *Loop) Frames() uint64 { return l.frames }

// Run primes the renderer and streams until a stop request, the frame limit,
// an Exit from the renderer or a fatal error. A nil return is a normal stop.
func (l *Loop) Run() error {
	if l.state == Stopped {
		return ErrLoopStopped
	}
	l.setState(Priming)

	first, err := l.pool.PrimingFrame()
	if err != nil {
		return l.finish(err)
	}
	if err := l.renderer.Setup(l.frame(first)); err != nil {
		e := newError(KindRender, "renderer setup", err)
		e.Index = first.Index
		return l.finish(e)
	}

	l.setState(Streaming)
	for {
		if l.stop.Requested() {
			l.logger.Info("Stop requested", "frames", l.frames)
			return l.finish(nil)
		}
		if l.keys != nil && l.keys.Drain(l.onKeys) {
			l.logger.Info("Quit key received", "frames", l.frames)
			return l.finish(nil)
		}
		if l.limit > 0 && l.frames >= l.limit {
			l.logger.Info("Frame limit reached", "frames", l.frames)
			return l.finish(nil)
		}

		waitStart := time.Now()
		buf, err := l.pool.Dequeue()
		if err != nil {
			if errors.Is(err, syscall.EINTR) {
				l.interrupts++
				continue
			}
			return l.finish(err)
		}
		metrics.RecordDequeue(buf.Meta.Sequence, time.Since(waitStart))

		drawStart := time.Now()
		switch result := l.renderer.Draw(l.frame(buf)); result {
		case render.Continue:
			metrics.RecordDraw(time.Since(drawStart))
			l.frames++
			if err := l.pool.Requeue(buf); err != nil {
				return l.finish(err)
			}
			metrics.RecordRequeue()
		case render.Exit:
			l.logger.Info("Renderer requested exit", "frames", l.frames)
			return l.finish(nil)
		default:
			e := newError(KindRender, "draw", render.DrawError(l.renderer))
			e.Index = buf.Index
			return l.finish(e)
		}
	}
}

func (l *Loop) frame(b *Buffer) render.Frame {
	planes := b.Planes()
	f := render.Frame{
		Index:     b.Index,
		Sequence:  b.Meta.Sequence,
		Timestamp: b.Meta.Timestamp,
		Width:     int(l.format.Width),
		Height:    int(l.format.Height),
		Planes:    make([]render.Plane, len(planes)),
	}
	for i, pl := range planes {
		stride := int(l.format.Width)
		if i < len(l.format.Planes) && l.format.Planes[i].BytesPerLine > 0 {
			stride = int(l.format.Planes[i].BytesPerLine)
		}
		f.Planes[i] = render.Plane{Data: pl.Data, Stride: stride}
	}
	return f
}

func (l *Loop) finish(err error) error {
	if err != nil {
		var ce *Error
		if errors.As(err, &ce) {
			metrics.RecordError(ce.Kind.String())
		}
		attrs := []any{"error", err, "frames", l.frames}
		if errno, ok := Errno(err); ok {
			attrs = append(attrs, "errno", int(errno))
		}
		l.logger.Error("Capture loop failed", attrs...)
	}
	if l.interrupts > 0 {
		l.logger.Debug("Dequeue interrupted by signals", "count", l.interrupts)
	}
	l.setState(Stopped)
	return err
}

func (l *Loop) setState(s LoopState) {
	l.state = s
	if l.onState != nil {
		l.onState(s)
	}
}
