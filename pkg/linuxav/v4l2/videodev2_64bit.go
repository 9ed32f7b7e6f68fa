//go:build linux && (amd64 || arm64)

package v4l2

import (
	"time"
	"unsafe"
)

// Compile-time struct size assertions.
// These will cause build failures if struct sizes don't match kernel expectations.
var (
	_ [104]byte = [unsafe.Sizeof(v4l2Capability{})]byte{}
	_ [64]byte  = [unsafe.Sizeof(v4l2Fmtdesc{})]byte{}
	_ [44]byte  = [unsafe.Sizeof(v4l2Frmsizeenum{})]byte{}
	_ [192]byte = [unsafe.Sizeof(v4l2PixFormatMplane{})]byte{}
	_ [208]byte = [unsafe.Sizeof(v4l2Format{})]byte{}
	_ [20]byte  = [unsafe.Sizeof(v4l2Requestbuffers{})]byte{}
	_ [64]byte  = [unsafe.Sizeof(v4l2Exportbuffer{})]byte{}
	_ [8]byte   = [unsafe.Sizeof(v4l2Control{})]byte{}
	_ [64]byte  = [unsafe.Sizeof(v4l2Plane{})]byte{}
	_ [88]byte  = [unsafe.Sizeof(v4l2Buffer{})]byte{}
)

// IOCTL constants for 64-bit architectures.
const (
	vidiocGFmt     = 0xc0d05604
	vidiocSFmt     = 0xc0d05605
	vidiocQuerybuf = 0xc0585609
	vidiocQbuf     = 0xc058560f
	vidiocDqbuf    = 0xc0585611
)

// v4l2Format has size 208 bytes. The union is pointer aligned.
type v4l2Format struct {
	typ   uint32              // offset 0
	_     [4]byte             // padding
	pixMp v4l2PixFormatMplane // offset 8 (union fmt)
	_     [8]byte             // rest of the 200 byte union
}

// v4l2Timeval has size 16 bytes.
type v4l2Timeval struct {
	sec  int64
	usec int64
}

func (t v4l2Timeval) duration() time.Duration {
	return time.Duration(t.sec)*time.Second + time.Duration(t.usec)*time.Microsecond
}

// v4l2Plane has size 64 bytes.
type v4l2Plane struct {
	bytesused  uint32     // offset 0
	length     uint32     // offset 4
	m          uint64     // offset 8 (union mem_offset/userptr/fd)
	dataOffset uint32     // offset 16
	reserved   [11]uint32 // offset 20
}

func (p *v4l2Plane) memOffset() uint32 {
	return uint32(p.m)
}

// v4l2Buffer has size 88 bytes.
type v4l2Buffer struct {
	index     uint32       // offset 0
	typ       uint32       // offset 4
	bytesused uint32       // offset 8
	flags     uint32       // offset 12
	field     uint32       // offset 16
	_         [4]byte      // padding
	timestamp v4l2Timeval  // offset 24
	timecode  v4l2Timecode // offset 40
	sequence  uint32       // offset 56
	memory    uint32       // offset 60
	planes    *v4l2Plane   // offset 64 (union m)
	length    uint32       // offset 72
	reserved2 uint32       // offset 76
	requestFd int32        // offset 80
	_         [4]byte      // padding to 88
}
