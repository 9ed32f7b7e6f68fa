//go:build linux

package capture

import (
	"errors"
	"fmt"
	"syscall"
)

// Kind classifies capture errors.
type Kind int

// Error kinds.
const (
	// KindSetup covers device open, query, format and buffer request failures.
	KindSetup Kind = iota + 1
	// KindMap covers plane mapping and DMA export failures.
	KindMap
	// KindQueue covers buffer submission failures before streaming.
	KindQueue
	// KindStreamIO covers dequeue and requeue failures while streaming.
	KindStreamIO
	// KindRender covers renderer setup and draw failures.
	KindRender
)

// Sentinels matched by errors.Is against an *Error of the same kind.
var (
	ErrSetup    = errors.New("setup error")
	ErrMap      = errors.New("map error")
	ErrQueue    = errors.New("queue error")
	ErrStreamIO = errors.New("stream I/O error")
	ErrRender   = errors.New("render error")
)

func (k Kind) String() string {
	switch k {
	case KindSetup:
		return "setup"
	case KindMap:
		return "map"
	case KindQueue:
		return "queue"
	case KindStreamIO:
		return "stream_io"
	case KindRender:
		return "render"
	default:
		return "unknown"
	}
}

func (k Kind) sentinel() error {
	switch k {
	case KindSetup:
		return ErrSetup
	case KindMap:
		return ErrMap
	case KindQueue:
		return ErrQueue
	case KindStreamIO:
		return ErrStreamIO
	case KindRender:
		return ErrRender
	default:
		return nil
	}
}

// Error is a fatal capture error. Index and Plane are -1 when not relevant.
type Error struct {
	Kind  Kind
	Op    string
	Index int
	Plane int
	Err   error
}

func newError(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Index: -1, Plane: -1, Err: err}
}

func (e *Error) Error() string {
	msg := e.Kind.String() + ": " + e.Op
	if e.Index >= 0 {
		msg += fmt.Sprintf(" buffer %d", e.Index)
	}
	if e.Plane >= 0 {
		msg += fmt.Sprintf(" plane %d", e.Plane)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches the sentinel for the error's kind.
func (e *Error) Is(target error) bool {
	s := e.Kind.sentinel()
	return s != nil && target == s
}

// Errno extracts the device error code from err, if there is one.
func Errno(err error) (syscall.Errno, bool) {
	var errno syscall.Errno
	if errors.As(err, &errno) {
		return errno, true
	}
	return 0, false
}
