// Package capture streams NV12M frames from a V4L2 multi-planar capture
// device into a renderer.
//
// A Session opens the device, maps a pool of kernel buffers, starts
// streaming and runs a Loop that dequeues each filled buffer, hands it to
// the renderer and requeues it. Teardown runs on every exit path.
package capture
