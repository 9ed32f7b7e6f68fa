//go:build linux

package v4l2

// Structures whose layout does not depend on the word size.

// IOCTL constants shared by all architectures.
const (
	vidiocQuerycap       = 0x80685600
	vidiocEnumFmt        = 0xc0405602
	vidiocReqbufs        = 0xc0145608
	vidiocExpbuf         = 0xc0405610
	vidiocStreamon       = 0x40045612
	vidiocStreamoff      = 0x40045613
	vidiocSCtrl          = 0xc008561c
	vidiocEnumFramesizes = 0xc02c564a
)

// v4l2Capability has size 104 bytes.
type v4l2Capability struct {
	driver       [16]byte  // offset 0
	card         [32]byte  // offset 16
	busInfo      [32]byte  // offset 48
	version      uint32    // offset 80
	capabilities uint32    // offset 84
	deviceCaps   uint32    // offset 88
	reserved     [3]uint32 // offset 92
}

// effectiveCaps returns the capabilities of this node rather than the
// whole physical device when the driver reports both.
func (c *v4l2Capability) effectiveCaps() uint32 {
	if c.capabilities&v4l2CapDeviceCaps != 0 {
		return c.deviceCaps
	}
	return c.capabilities
}

// v4l2Fmtdesc has size 64 bytes.
type v4l2Fmtdesc struct {
	index       uint32    // offset 0
	typ         uint32    // offset 4
	flags       uint32    // offset 8
	description [32]byte  // offset 12
	pixelformat uint32    // offset 44
	mbusCode    uint32    // offset 48
	reserved    [3]uint32 // offset 52
}

// v4l2FrmsizeDiscrete has size 8 bytes.
type v4l2FrmsizeDiscrete struct {
	width  uint32
	height uint32
}

// v4l2FrmsizeStepwise has size 24 bytes.
type v4l2FrmsizeStepwise struct {
	minWidth   uint32
	maxWidth   uint32
	stepWidth  uint32
	minHeight  uint32
	maxHeight  uint32
	stepHeight uint32
}

// v4l2Frmsizeenum has size 44 bytes.
type v4l2Frmsizeenum struct {
	index       uint32              // offset 0
	pixelFormat uint32              // offset 4
	typ         uint32              // offset 8
	discrete    v4l2FrmsizeDiscrete // offset 12 (union with stepwise)
	_           [16]byte            // padding for stepwise
	reserved    [2]uint32           // offset 36
}

// v4l2PlanePixFormat has size 20 bytes.
type v4l2PlanePixFormat struct {
	sizeimage    uint32    // offset 0
	bytesperline uint32    // offset 4
	reserved     [6]uint16 // offset 8
}

// v4l2PixFormatMplane has size 192 bytes. The kernel declares it packed;
// the natural Go layout happens to match.
type v4l2PixFormatMplane struct {
	width        uint32                        // offset 0
	height       uint32                        // offset 4
	pixelformat  uint32                        // offset 8
	field        uint32                        // offset 12
	colorspace   uint32                        // offset 16
	planeFmt     [MaxPlanes]v4l2PlanePixFormat // offset 20
	numPlanes    uint8                         // offset 180
	flags        uint8                         // offset 181
	ycbcrEnc     uint8                         // offset 182
	quantization uint8                         // offset 183
	xferFunc     uint8                         // offset 184
	reserved     [7]uint8                      // offset 185
}

// v4l2Requestbuffers has size 20 bytes.
type v4l2Requestbuffers struct {
	count        uint32   // offset 0
	typ          uint32   // offset 4
	memory       uint32   // offset 8
	capabilities uint32   // offset 12
	flags        uint8    // offset 16
	reserved     [3]uint8 // offset 17
}

// v4l2Exportbuffer has size 64 bytes.
type v4l2Exportbuffer struct {
	typ      uint32     // offset 0
	index    uint32     // offset 4
	plane    uint32     // offset 8
	flags    uint32     // offset 12
	fd       int32      // offset 16
	reserved [11]uint32 // offset 20
}

// v4l2Control has size 8 bytes.
type v4l2Control struct {
	id    uint32
	value int32
}

// v4l2Timecode has size 16 bytes.
type v4l2Timecode struct {
	typ      uint32
	flags    uint32
	frames   uint8
	seconds  uint8
	minutes  uint8
	hours    uint8
	userbits [4]uint8
}
