//go:build linux

package capture

import (
	"errors"
	"fmt"
	"syscall"
	"testing"
)

func TestErrorMessage(t *testing.T) {
	tests := []struct {
		name string
		err  *Error
		want string
	}{
		{
			name: "no buffer",
			err:  newError(KindSetup, "set format", syscall.EINVAL),
			want: "setup: set format: invalid argument",
		},
		{
			name: "buffer and plane",
			err:  &Error{Kind: KindMap, Op: "mmap", Index: 2, Plane: 1, Err: syscall.ENOMEM},
			want: "map: mmap buffer 2 plane 1: cannot allocate memory",
		},
		{
			name: "buffer only",
			err:  &Error{Kind: KindQueue, Op: "queue buffer", Index: 3, Plane: -1, Err: syscall.EINVAL},
			want: "queue: queue buffer buffer 3: invalid argument",
		},
		{
			name: "no cause",
			err:  &Error{Kind: KindRender, Op: "draw", Index: -1, Plane: -1},
			want: "render: draw",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("Error() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestErrorIsMatchesKindOnly(t *testing.T) {
	sentinels := map[Kind]error{
		KindSetup:    ErrSetup,
		KindMap:      ErrMap,
		KindQueue:    ErrQueue,
		KindStreamIO: ErrStreamIO,
		KindRender:   ErrRender,
	}

	for kind := range sentinels {
		err := fmt.Errorf("session: %w", newError(kind, "op", syscall.ENODEV))
		for other, otherSentinel := range sentinels {
			if got := errors.Is(err, otherSentinel); got != (other == kind) {
				t.Errorf("errors.Is(%s error, %v) = %v", kind, otherSentinel, got)
			}
		}
		if !errors.Is(err, syscall.ENODEV) {
			t.Errorf("%s error lost its errno", kind)
		}
		if errno, ok := Errno(err); !ok || errno != syscall.ENODEV {
			t.Errorf("Errno(%s error) = %v, %v", kind, errno, ok)
		}
	}
}

func TestErrnoAbsent(t *testing.T) {
	if _, ok := Errno(errors.New("plain")); ok {
		t.Error("Errno() found a code in a plain error")
	}
	if Kind(99).String() != "unknown" {
		t.Errorf("Kind(99).String() = %q", Kind(99).String())
	}
}
