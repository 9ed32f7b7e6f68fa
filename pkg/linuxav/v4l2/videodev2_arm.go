//go:build linux && arm && !arm64

package v4l2

import (
	"time"
	"unsafe"
)

// Compile-time struct size assertions for 32-bit ARM.
// These will cause build failures if struct sizes don't match kernel expectations.
var (
	_ [104]byte = [unsafe.Sizeof(v4l2Capability{})]byte{}
	_ [64]byte  = [unsafe.Sizeof(v4l2Fmtdesc{})]byte{}
	_ [44]byte  = [unsafe.Sizeof(v4l2Frmsizeenum{})]byte{}
	_ [192]byte = [unsafe.Sizeof(v4l2PixFormatMplane{})]byte{}
	_ [204]byte = [unsafe.Sizeof(v4l2Format{})]byte{} // Smaller on 32-bit, union is word aligned
	_ [20]byte  = [unsafe.Sizeof(v4l2Requestbuffers{})]byte{}
	_ [64]byte  = [unsafe.Sizeof(v4l2Exportbuffer{})]byte{}
	_ [8]byte   = [unsafe.Sizeof(v4l2Control{})]byte{}
	_ [60]byte  = [unsafe.Sizeof(v4l2Plane{})]byte{}
	_ [68]byte  = [unsafe.Sizeof(v4l2Buffer{})]byte{}
)

// IOCTL constants for 32-bit ARM.
// The size field differs from 64-bit wherever a struct holds a pointer or timeval.
const (
	vidiocGFmt     = 0xc0cc5604
	vidiocSFmt     = 0xc0cc5605
	vidiocQuerybuf = 0xc0445609
	vidiocQbuf     = 0xc044560f
	vidiocDqbuf    = 0xc0445611
)

// v4l2Format - size 204 bytes
type v4l2Format struct {
	typ   uint32
	pixMp v4l2PixFormatMplane
	_     [8]byte
}

// v4l2Timeval - size 8 bytes
type v4l2Timeval struct {
	sec  int32
	usec int32
}

func (t v4l2Timeval) duration() time.Duration {
	return time.Duration(t.sec)*time.Second + time.Duration(t.usec)*time.Microsecond
}

// v4l2Plane - size 60 bytes
type v4l2Plane struct {
	bytesused  uint32
	length     uint32
	m          uint32
	dataOffset uint32
	reserved   [11]uint32
}

func (p *v4l2Plane) memOffset() uint32 {
	return p.m
}

// v4l2Buffer - size 68 bytes
type v4l2Buffer struct {
	index     uint32
	typ       uint32
	bytesused uint32
	flags     uint32
	field     uint32
	timestamp v4l2Timeval
	timecode  v4l2Timecode
	sequence  uint32
	memory    uint32
	planes    *v4l2Plane
	length    uint32
	reserved2 uint32
	requestFd int32
}
