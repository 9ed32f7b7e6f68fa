// Package render defines the contract between the capture loop and the
// renderers that display frames, plus the registry of program modes.
package render

import (
	"errors"
	"time"
)

// Result is the outcome of one Draw call.
type Result int

// Draw results.
const (
	// Continue requeues the buffer and keeps streaming.
	Continue Result = iota
	// Exit stops the session normally. The buffer is not requeued.
	Exit
	// Error stops the session with a render error. The buffer is not requeued.
	Error
)

func (r Result) String() string {
	switch r {
	case Continue:
		return "continue"
	case Exit:
		return "exit"
	case Error:
		return "error"
	default:
		return "unknown"
	}
}

// QuitKey is reserved by every renderer and makes Draw return Exit.
const QuitKey = "q"

// ErrDraw is reported when a renderer returns Error without a cause.
var ErrDraw = errors.New("draw failed")

// Plane is one mapped plane of a capture buffer.
type Plane struct {
	Data   []byte
	Stride int
}

// Frame describes the buffer handed to a renderer. Plane data belongs to the
// capture pool and is only valid until the call returns.
type Frame struct {
	Index     int
	Sequence  uint32
	Timestamp time.Duration
	Width     int
	Height    int
	Planes    []Plane
}

// KeyFunc receives key sequences typed by the user.
type KeyFunc func(keys string)

// Renderer displays captured frames.
type Renderer interface {
	// Setup is called once with the priming buffer before streaming.
	Setup(Frame) error
	// Draw shows one frame and processes pending input.
	Draw(Frame) Result
	// SetKeyHandler registers the callback for key sequences other than QuitKey.
	SetKeyHandler(KeyFunc)
}

// Hoster is implemented by renderers whose toolkit must own the calling
// goroutine. Host runs the capture session in run and returns its error.
type Hoster interface {
	Host(run func() error) error
}

// ErrorReporter is implemented by renderers that can explain a Draw result
// of Error.
type ErrorReporter interface {
	Err() error
}

// DrawError returns the cause of an Error result from r.
func DrawError(r Renderer) error {
	if er, ok := r.(ErrorReporter); ok {
		if err := er.Err(); err != nil {
			return err
		}
	}
	return ErrDraw
}
