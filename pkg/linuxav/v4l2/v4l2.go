//go:build linux

// Package v4l2 provides pure Go bindings to the Video4Linux2 (V4L2) API
// for device enumeration, multi-planar streaming capture, and subdevice
// controls.
//
// This package does not use cgo, enabling simple cross-compilation for
// different Linux architectures (amd64, arm64, arm).
//
// # Device Enumeration
//
// Use FindDevices to discover all V4L2 video capture devices:
//
//	devices, err := v4l2.FindDevices()
//	for _, dev := range devices {
//	    fmt.Printf("%s: %s (mplane=%v)\n", dev.DevicePath, dev.DeviceName, dev.MultiPlanar)
//	}
//
// # Streaming Capture
//
// OpenCapture opens a node that supports VIDEO_CAPTURE_MPLANE and STREAMING.
// The caller negotiates a format, requests MMAP buffers, maps each plane and
// then cycles buffers with Queue and Dequeue:
//
//	dev, _ := v4l2.OpenCapture("/dev/video0")
//	got, _ := dev.SetFormat(v4l2.Format{Width: 1920, Height: 1080, PixelFormat: v4l2.PixFmtNV12M, NumPlanes: 2})
//	n, _ := dev.RequestBuffers(4)
//	for i := uint32(0); i < n; i++ {
//	    info, _ := dev.QueryBuffer(i, got.NumPlanes)
//	    for _, p := range info.Planes {
//	        data, _ := dev.MapPlane(p)
//	        _ = data
//	    }
//	    _ = dev.Queue(i, got.NumPlanes)
//	}
//	_ = dev.StreamOn()
//
// # Subdevice Controls
//
// Sensor subdevices accept VIDIOC_S_CTRL for focus and test pattern:
//
//	sd, _ := v4l2.OpenSubdevice("/dev/v4l-subdev0")
//	_ = sd.SetControl(v4l2.CtrlFocusAuto, 1)
package v4l2
