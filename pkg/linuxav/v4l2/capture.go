//go:build linux

package v4l2

import (
	"errors"
	"fmt"
	"unsafe"

	"golang.org/x/sys/unix"
)

// ErrNotMultiPlanar is returned by OpenCapture for nodes that cannot do
// multi-planar streaming capture.
var ErrNotMultiPlanar = errors.New("device does not support multi-planar streaming capture")

// CaptureDevice is an open VIDEO_CAPTURE_MPLANE node using MMAP buffers.
// It is not safe for concurrent use.
type CaptureDevice struct {
	path string
	fd   int
	card string
	caps uint32
}

// OpenCapture opens path for blocking streaming I/O and checks that it
// supports multi-planar capture and streaming.
func OpenCapture(path string) (*CaptureDevice, error) {
	fd, err := openBlocking(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}

	capability := v4l2Capability{}
	if err := ioctl(fd, vidiocQuerycap, unsafe.Pointer(&capability)); err != nil {
		close(fd)
		return nil, fmt.Errorf("VIDIOC_QUERYCAP %s: %w", path, err)
	}

	caps := capability.effectiveCaps()
	if caps&v4l2CapVideoCaptureMplane == 0 || caps&v4l2CapStreaming == 0 {
		close(fd)
		return nil, fmt.Errorf("%s (caps 0x%08x): %w", path, caps, ErrNotMultiPlanar)
	}

	return &CaptureDevice{
		path: path,
		fd:   fd,
		card: cstr(capability.card[:]),
		caps: caps,
	}, nil
}

// Path returns the device node path.
func (d *CaptureDevice) Path() string { return d.path }

// Card returns the driver's card name.
func (d *CaptureDevice) Card() string { return d.card }

// SetFormat issues VIDIOC_S_FMT and returns the format the driver chose.
func (d *CaptureDevice) SetFormat(f Format) (Format, error) {
	req := v4l2Format{
		typ:   v4l2BufTypeVideoCaptureMplane,
		pixMp: toPixFormatMplane(f),
	}
	if err := ioctl(d.fd, vidiocSFmt, unsafe.Pointer(&req)); err != nil {
		return Format{}, fmt.Errorf("VIDIOC_S_FMT: %w", err)
	}
	return fromPixFormatMplane(&req.pixMp), nil
}

// GetFormat issues VIDIOC_G_FMT.
func (d *CaptureDevice) GetFormat() (Format, error) {
	req := v4l2Format{typ: v4l2BufTypeVideoCaptureMplane}
	if err := ioctl(d.fd, vidiocGFmt, unsafe.Pointer(&req)); err != nil {
		return Format{}, fmt.Errorf("VIDIOC_G_FMT: %w", err)
	}
	return fromPixFormatMplane(&req.pixMp), nil
}

// RequestBuffers asks the driver for count MMAP buffers and returns the
// number it granted. A count of zero frees the allocation.
func (d *CaptureDevice) RequestBuffers(count uint32) (uint32, error) {
	req := v4l2Requestbuffers{
		count:  count,
		typ:    v4l2BufTypeVideoCaptureMplane,
		memory: v4l2MemoryMmap,
	}
	if err := ioctl(d.fd, vidiocReqbufs, unsafe.Pointer(&req)); err != nil {
		return 0, fmt.Errorf("VIDIOC_REQBUFS(%d): %w", count, err)
	}
	return req.count, nil
}

// QueryBuffer issues VIDIOC_QUERYBUF for one buffer.
func (d *CaptureDevice) QueryBuffer(index uint32, numPlanes int) (BufferInfo, error) {
	var planes [MaxPlanes]v4l2Plane
	buf := newBuffer(index, &planes, numPlanes)
	if err := ioctl(d.fd, vidiocQuerybuf, unsafe.Pointer(&buf)); err != nil {
		return BufferInfo{}, fmt.Errorf("VIDIOC_QUERYBUF(%d): %w", index, err)
	}
	return bufferInfo(&buf, planes[:numPlanes]), nil
}

// MapPlane maps one plane of a queried buffer into the process.
func (d *CaptureDevice) MapPlane(p PlaneInfo) ([]byte, error) {
	data, err := unix.Mmap(d.fd, int64(p.MemOffset), int(p.Length), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return nil, fmt.Errorf("mmap offset 0x%x length %d: %w", p.MemOffset, p.Length, err)
	}
	return data, nil
}

// UnmapPlane releases a mapping returned by MapPlane.
func (d *CaptureDevice) UnmapPlane(data []byte) error {
	if err := unix.Munmap(data); err != nil {
		return fmt.Errorf("munmap: %w", err)
	}
	return nil
}

// ExportPlane issues VIDIOC_EXPBUF and returns a DMA-BUF file descriptor
// for the plane. The caller owns the descriptor.
func (d *CaptureDevice) ExportPlane(index, plane uint32) (int, error) {
	req := v4l2Exportbuffer{
		typ:   v4l2BufTypeVideoCaptureMplane,
		index: index,
		plane: plane,
		flags: unix.O_CLOEXEC | unix.O_RDWR,
	}
	if err := ioctl(d.fd, vidiocExpbuf, unsafe.Pointer(&req)); err != nil {
		return -1, fmt.Errorf("VIDIOC_EXPBUF(%d/%d): %w", index, plane, err)
	}
	return int(req.fd), nil
}

// CloseExport closes a descriptor returned by ExportPlane.
func (d *CaptureDevice) CloseExport(fd int) error {
	return close(fd)
}

// Queue hands a buffer to the driver with VIDIOC_QBUF.
func (d *CaptureDevice) Queue(index uint32, numPlanes int) error {
	var planes [MaxPlanes]v4l2Plane
	buf := newBuffer(index, &planes, numPlanes)
	if err := ioctl(d.fd, vidiocQbuf, unsafe.Pointer(&buf)); err != nil {
		return fmt.Errorf("VIDIOC_QBUF(%d): %w", index, err)
	}
	return nil
}

// Dequeue blocks in VIDIOC_DQBUF until the driver returns a filled buffer.
// The raw errno is wrapped so callers can test for EINTR.
func (d *CaptureDevice) Dequeue(numPlanes int) (BufferInfo, error) {
	var planes [MaxPlanes]v4l2Plane
	buf := newBuffer(0, &planes, numPlanes)
	if err := ioctl(d.fd, vidiocDqbuf, unsafe.Pointer(&buf)); err != nil {
		return BufferInfo{}, fmt.Errorf("VIDIOC_DQBUF: %w", err)
	}
	return bufferInfo(&buf, planes[:numPlanes]), nil
}

// StreamOn starts streaming.
func (d *CaptureDevice) StreamOn() error {
	typ := uint32(v4l2BufTypeVideoCaptureMplane)
	if err := ioctl(d.fd, vidiocStreamon, unsafe.Pointer(&typ)); err != nil {
		return fmt.Errorf("VIDIOC_STREAMON: %w", err)
	}
	return nil
}

// StreamOff stops streaming and returns all buffers to the dequeued state.
func (d *CaptureDevice) StreamOff() error {
	typ := uint32(v4l2BufTypeVideoCaptureMplane)
	if err := ioctl(d.fd, vidiocStreamoff, unsafe.Pointer(&typ)); err != nil {
		return fmt.Errorf("VIDIOC_STREAMOFF: %w", err)
	}
	return nil
}

// Close closes the device node. It is safe to call more than once.
func (d *CaptureDevice) Close() error {
	if d.fd < 0 {
		return nil
	}
	err := close(d.fd)
	d.fd = -1
	return err
}

func newBuffer(index uint32, planes *[MaxPlanes]v4l2Plane, numPlanes int) v4l2Buffer {
	return v4l2Buffer{
		index:  index,
		typ:    v4l2BufTypeVideoCaptureMplane,
		memory: v4l2MemoryMmap,
		planes: &planes[0],
		length: uint32(numPlanes),
	}
}

func bufferInfo(buf *v4l2Buffer, planes []v4l2Plane) BufferInfo {
	info := BufferInfo{
		Index:     buf.index,
		Flags:     buf.flags,
		Field:     buf.field,
		Sequence:  buf.sequence,
		Timestamp: buf.timestamp.duration(),
		Planes:    make([]PlaneInfo, len(planes)),
	}
	for i := range planes {
		info.Planes[i] = PlaneInfo{
			BytesUsed:  planes[i].bytesused,
			Length:     planes[i].length,
			MemOffset:  planes[i].memOffset(),
			DataOffset: planes[i].dataOffset,
		}
	}
	return info
}
