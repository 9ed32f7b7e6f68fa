//go:build linux

package v4l2

import (
	"errors"
	"fmt"
	"syscall"
	"unsafe"
)

// GetFormats returns all supported pixel formats for a device. Multi-planar
// nodes are enumerated with the MPLANE buffer type.
func GetFormats(devicePath string) ([]FormatInfo, error) {
	capability, err := queryCapability(devicePath)
	if err != nil {
		return nil, fmt.Errorf("failed to query device: %w", err)
	}

	bufType := uint32(v4l2BufTypeVideoCapture)
	if capability.effectiveCaps()&v4l2CapVideoCaptureMplane != 0 {
		bufType = v4l2BufTypeVideoCaptureMplane
	}

	fd, err := open(devicePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open device: %w", err)
	}
	defer close(fd)

	var formats []FormatInfo

	for i := uint32(0); ; i++ {
		fmtdesc := v4l2Fmtdesc{
			index: i,
			typ:   bufType,
		}

		if ioctlErr := ioctl(fd, vidiocEnumFmt, unsafe.Pointer(&fmtdesc)); ioctlErr != nil {
			if errors.Is(ioctlErr, syscall.EINVAL) {
				break // End of enumeration
			}
			return nil, fmt.Errorf("failed to enumerate format %d: %w", i, ioctlErr)
		}

		formats = append(formats, FormatInfo{
			PixelFormat: fmtdesc.pixelformat,
			FormatName:  cstr(fmtdesc.description[:]),
			Emulated:    fmtdesc.flags&v4l2FmtFlagEmulated != 0,
		})
	}

	return formats, nil
}

// GetResolutions returns all supported resolutions for a device and pixel format.
func GetResolutions(devicePath string, pixelFormat uint32) ([]Resolution, error) {
	fd, err := open(devicePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open device: %w", err)
	}
	defer close(fd)

	var resolutions []Resolution

	for i := uint32(0); ; i++ {
		frmsize := v4l2Frmsizeenum{
			index:       i,
			pixelFormat: pixelFormat,
		}

		if ioctlErr := ioctl(fd, vidiocEnumFramesizes, unsafe.Pointer(&frmsize)); ioctlErr != nil {
			if errors.Is(ioctlErr, syscall.EINVAL) {
				break // End of enumeration
			}
			// ENOTTY means device doesn't support frame size enumeration
			if errors.Is(ioctlErr, syscall.ENOTTY) {
				return []Resolution{}, nil
			}
			return nil, fmt.Errorf("failed to enumerate frame size %d: %w", i, ioctlErr)
		}

		switch frmsize.typ {
		case v4l2FrmsizeTypeDiscrete:
			resolutions = append(resolutions, Resolution{
				Width:  frmsize.discrete.width,
				Height: frmsize.discrete.height,
			})
		case v4l2FrmsizeTypeContinuous, v4l2FrmsizeTypeStepwise:
			// Stepwise overlays discrete in memory
			stepwise := (*v4l2FrmsizeStepwise)(unsafe.Pointer(&frmsize.discrete))
			return append(resolutions, stepwiseResolutions(stepwise)...), nil
		}
	}

	return resolutions, nil
}

// stepwiseResolutions returns common resolutions within a stepwise range.
func stepwiseResolutions(stepwise *v4l2FrmsizeStepwise) []Resolution {
	commonResolutions := [][2]uint32{
		{640, 480},   // VGA
		{1280, 720},  // HD
		{1920, 1080}, // Full HD
		{2592, 1944}, // 5MP sensor
		{3840, 2160}, // 4K UHD
	}

	var resolutions []Resolution
	for _, res := range commonResolutions {
		w, h := res[0], res[1]
		if w >= stepwise.minWidth && w <= stepwise.maxWidth &&
			h >= stepwise.minHeight && h <= stepwise.maxHeight {
			resolutions = append(resolutions, Resolution{Width: w, Height: h})
		}
	}

	return resolutions
}

// FormatFourCC converts a 4-byte pixel format to a human-readable string.
func FormatFourCC(format uint32) string {
	b := make([]byte, 4)
	b[0] = byte(format & 0xFF)
	b[1] = byte((format >> 8) & 0xFF)
	b[2] = byte((format >> 16) & 0xFF)
	b[3] = byte((format >> 24) & 0xFF)
	return string(b)
}

// toPixFormatMplane fills the kernel structure from a Format.
func toPixFormatMplane(f Format) v4l2PixFormatMplane {
	pix := v4l2PixFormatMplane{
		width:       f.Width,
		height:      f.Height,
		pixelformat: f.PixelFormat,
		field:       f.Field,
		numPlanes:   uint8(f.NumPlanes),
	}
	for i, p := range f.Planes {
		if i >= MaxPlanes {
			break
		}
		pix.planeFmt[i].sizeimage = p.SizeImage
		pix.planeFmt[i].bytesperline = p.BytesPerLine
	}
	return pix
}

// fromPixFormatMplane converts what the driver reported back into a Format.
func fromPixFormatMplane(pix *v4l2PixFormatMplane) Format {
	n := int(pix.numPlanes)
	if n > MaxPlanes {
		n = MaxPlanes
	}
	f := Format{
		Width:       pix.width,
		Height:      pix.height,
		PixelFormat: pix.pixelformat,
		Field:       pix.field,
		NumPlanes:   n,
		Planes:      make([]PlaneFormat, n),
	}
	for i := 0; i < n; i++ {
		f.Planes[i] = PlaneFormat{
			SizeImage:    pix.planeFmt[i].sizeimage,
			BytesPerLine: pix.planeFmt[i].bytesperline,
		}
	}
	return f
}
