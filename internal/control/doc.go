// Package control drives the camera sensor controls exposed by a V4L2
// subdevice: the focus-mode state machine and the test-pattern counter.
//
// State changes are committed before the control request is issued. A failed
// request is reported as a ControlRequestError but the new state is kept, so
// callers should read State as "requested" rather than "confirmed".
package control
