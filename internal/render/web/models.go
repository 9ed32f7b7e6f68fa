package web

import (
	"github.com/smazurov/glcapture/internal/events"
	"github.com/smazurov/glcapture/internal/version"
)

// StatusData is the body of GET /api/status.
type StatusData struct {
	Mode             string  `json:"mode" example:"CAPTURE_WEB" doc:"Program mode"`
	State            string  `json:"state" example:"streaming" doc:"Capture session state"`
	FramesDequeued   uint64  `json:"frames_dequeued" example:"1800" doc:"Buffers dequeued from the driver"`
	FramesRendered   uint64  `json:"frames_rendered" example:"1800" doc:"Frames handed to this renderer"`
	FPS              float64 `json:"fps" example:"29.97" doc:"Frame rate over the last second"`
	LastSequence     uint32  `json:"last_sequence" example:"1799" doc:"Driver sequence of the last frame"`
	BuffersRequested int     `json:"buffers_requested" example:"4" doc:"Buffers requested from the driver"`
	BuffersGranted   int     `json:"buffers_granted" example:"4" doc:"Buffers granted by the driver"`
	FocusState       string  `json:"focus_state" example:"auto_focus_enabled" doc:"Last requested focus mode"`
	TestPattern      int     `json:"test_pattern" example:"0" doc:"Sensor test pattern, 0 is live"`
	Width            int     `json:"width" example:"1920" doc:"Frame width"`
	Height           int     `json:"height" example:"1080" doc:"Frame height"`
}

// StatusResponse wraps StatusData.
type StatusResponse struct {
	Body StatusData
}

// KeysInput is the body of POST /api/keys.
type KeysInput struct {
	Body struct {
		Keys string `json:"keys" minLength:"1" maxLength:"10" example:"a" doc:"Key sequence as typed on a keyboard; q stops the session"`
	}
}

// KeysResponse acknowledges queued keys.
type KeysResponse struct {
	Body struct {
		Queued bool `json:"queued" doc:"Keys were queued for the capture loop"`
	}
}

// FrameInput selects cached or fresh preview frames.
type FrameInput struct {
	Cached bool `query:"cached" doc:"Return the last encoded frame instead of waiting for a new one"`
}

// FrameResponse is a JPEG preview frame.
type FrameResponse struct {
	ContentType  string `header:"Content-Type"`
	CacheControl string `header:"Cache-Control"`
	Sequence     string `header:"X-Frame-Sequence"`
	Body         []byte
}

// VersionResponse wraps the build metadata.
type VersionResponse struct {
	Body version.Info
}

// sseEventTypes maps SSE event names to payloads for /api/events.
var sseEventTypes = map[string]any{
	"session-state":  events.SessionStateChangedEvent{},
	"buffer-pool":    events.BufferPoolEvent{},
	"frame-stats":    events.FrameStatsEvent{},
	"focus-changed":  events.FocusChangedEvent{},
	"test-pattern":   events.TestPatternChangedEvent{},
	"device-removed": events.DeviceRemovedEvent{},
}
