//go:build linux

package control

import (
	"errors"
	"fmt"

	"github.com/smazurov/glcapture/pkg/linuxav/v4l2"
)

// ErrControlRequest matches every ControlRequestError via errors.Is.
var ErrControlRequest = errors.New("control request failed")

// ControlRequestError reports a control the device rejected. It is not fatal
// to the capture session.
type ControlRequestError struct {
	Control uint32
	Value   int32
	Err     error
}

func (e *ControlRequestError) Error() string {
	return fmt.Sprintf("control %s=%d: %v", v4l2.ControlName(e.Control), e.Value, e.Err)
}

func (e *ControlRequestError) Unwrap() error { return e.Err }

// Is reports true for ErrControlRequest.
func (e *ControlRequestError) Is(target error) bool {
	return target == ErrControlRequest
}
