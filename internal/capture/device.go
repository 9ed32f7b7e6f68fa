//go:build linux

package capture

import (
	"github.com/smazurov/glcapture/pkg/linuxav/v4l2"
)

// Device is the capture device boundary used by the pool and the session.
// *v4l2.CaptureDevice implements it.
type Device interface {
	SetFormat(f v4l2.Format) (v4l2.Format, error)
	RequestBuffers(count uint32) (uint32, error)
	QueryBuffer(index uint32, numPlanes int) (v4l2.BufferInfo, error)
	MapPlane(p v4l2.PlaneInfo) ([]byte, error)
	UnmapPlane(data []byte) error
	ExportPlane(index, plane uint32) (int, error)
	CloseExport(fd int) error
	Queue(index uint32, numPlanes int) error
	Dequeue(numPlanes int) (v4l2.BufferInfo, error)
	StreamOn() error
	StreamOff() error
	Close() error
}

// ControlDevice accepts sensor control requests. *v4l2.Subdevice implements it.
type ControlDevice interface {
	SetControl(id uint32, value int32) error
	Close() error
}

// Opener opens the device nodes of a session.
type Opener interface {
	OpenCapture(path string) (Device, error)
	OpenControl(path string) (ControlDevice, error)
}

// V4L2Opener opens real V4L2 nodes.
type V4L2Opener struct{}

// OpenCapture opens a multi-planar capture node.
func (V4L2Opener) OpenCapture(path string) (Device, error) {
	dev, err := v4l2.OpenCapture(path)
	if err != nil {
		return nil, err
	}
	return dev, nil
}

// OpenControl opens the sensor subdevice.
func (V4L2Opener) OpenControl(path string) (ControlDevice, error) {
	sd, err := v4l2.OpenSubdevice(path)
	if err != nil {
		return nil, err
	}
	return sd, nil
}
