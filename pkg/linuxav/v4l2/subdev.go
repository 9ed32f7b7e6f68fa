//go:build linux

package v4l2

import (
	"fmt"
	"unsafe"
)

// Subdevice is an open V4L2 subdevice node used for sensor controls.
type Subdevice struct {
	path string
	fd   int
}

// OpenSubdevice opens a subdevice node.
func OpenSubdevice(path string) (*Subdevice, error) {
	fd, err := open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	return &Subdevice{path: path, fd: fd}, nil
}

// Path returns the subdevice node path.
func (s *Subdevice) Path() string { return s.path }

// SetControl issues VIDIOC_S_CTRL.
func (s *Subdevice) SetControl(id uint32, value int32) error {
	ctrl := v4l2Control{id: id, value: value}
	if err := ioctl(s.fd, vidiocSCtrl, unsafe.Pointer(&ctrl)); err != nil {
		return fmt.Errorf("VIDIOC_S_CTRL %s=%d: %w", ControlName(id), value, err)
	}
	return nil
}

// Close closes the subdevice node. It is safe to call more than once.
func (s *Subdevice) Close() error {
	if s.fd < 0 {
		return nil
	}
	err := close(s.fd)
	s.fd = -1
	return err
}
