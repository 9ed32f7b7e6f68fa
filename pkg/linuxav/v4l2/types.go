//go:build linux

package v4l2

import "time"

// DeviceInfo contains information about a V4L2 device.
type DeviceInfo struct {
	DevicePath  string
	DeviceName  string
	DeviceID    string // Stable identifier (from /dev/v4l/by-id/ or synthetic)
	Caps        uint32
	MultiPlanar bool
	Streaming   bool
}

// SubdeviceInfo names a V4L2 subdevice node.
type SubdeviceInfo struct {
	Path string
	Name string // media entity name, e.g. "imx519 10-001a"
}

// FormatInfo contains information about a supported pixel format.
type FormatInfo struct {
	PixelFormat uint32
	FormatName  string
	Emulated    bool
}

// Resolution represents a supported video resolution.
type Resolution struct {
	Width  uint32
	Height uint32
}

// PlaneFormat describes the layout of one memory plane of a format.
type PlaneFormat struct {
	SizeImage    uint32
	BytesPerLine uint32
}

// Format is a multi-planar pixel format as negotiated with S_FMT.
type Format struct {
	Width       uint32
	Height      uint32
	PixelFormat uint32
	Field       uint32
	NumPlanes   int
	Planes      []PlaneFormat
}

// PlaneInfo is the per-plane part of a queried or dequeued buffer.
type PlaneInfo struct {
	BytesUsed  uint32
	Length     uint32
	MemOffset  uint32 // mmap offset for MMAP memory
	DataOffset uint32
}

// BufferInfo is a snapshot of the kernel's view of one buffer.
type BufferInfo struct {
	Index     uint32
	Flags     uint32
	Field     uint32
	Sequence  uint32
	Timestamp time.Duration
	Planes    []PlaneInfo
}

// Capability flags.
const (
	v4l2CapVideoCapture       = 0x00000001
	v4l2CapVideoCaptureMplane = 0x00001000
	v4l2CapStreaming          = 0x04000000
	v4l2CapDeviceCaps         = 0x80000000
)

// Format flags.
const (
	v4l2FmtFlagEmulated = 0x0002
)

// Pixel formats.
const (
	PixFmtNV12  = 0x3231564E // 'NV12'
	PixFmtNV12M = 0x32314D4E // 'NM12'
	PixFmtYUYV  = 0x56595559 // 'YUYV'
	PixFmtMJPEG = 0x47504A4D // 'MJPG'
)

// Field order.
const (
	FieldAny = 0
)

// Frame size types.
const (
	v4l2FrmsizeTypeDiscrete   = 1
	v4l2FrmsizeTypeContinuous = 2
	v4l2FrmsizeTypeStepwise   = 3
)

// Buffer types.
const (
	v4l2BufTypeVideoCapture       = 1
	v4l2BufTypeVideoCaptureMplane = 9
)

// Memory types.
const (
	v4l2MemoryMmap = 1
)

// MaxPlanes is VIDEO_MAX_PLANES.
const MaxPlanes = 8

// Controls understood by camera sensor subdevices.
const (
	CtrlFocusAuto      = 0x009a090c // V4L2_CID_FOCUS_AUTO
	Ctrl3ALock         = 0x009a091b // V4L2_CID_3A_LOCK
	CtrlAutoFocusStart = 0x009a091c // V4L2_CID_AUTO_FOCUS_START
	CtrlTestPattern    = 0x009f0903 // V4L2_CID_TEST_PATTERN
	LockFocus          = 1 << 2     // V4L2_LOCK_FOCUS
)

// ControlName returns a short name for the controls above.
func ControlName(id uint32) string {
	switch id {
	case CtrlFocusAuto:
		return "focus_auto"
	case Ctrl3ALock:
		return "3a_lock"
	case CtrlAutoFocusStart:
		return "auto_focus_start"
	case CtrlTestPattern:
		return "test_pattern"
	default:
		return "unknown"
	}
}
