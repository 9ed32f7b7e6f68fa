package events

// Event type constants for kelindar/event.
const (
	TypeSessionStateChanged uint32 = iota + 1
	TypeBufferPool
	TypeFrameStats
	TypeFocusChanged
	TypeTestPatternChanged
	TypeDeviceRemoved
	TypeLogEntry
)

// Event interface required by kelindar/event.
type Event interface {
	Type() uint32
}

// Session states carried by SessionStateChangedEvent.
const (
	SessionStarting  = "starting"
	SessionPriming   = "priming"
	SessionStreaming = "streaming"
	SessionStopped   = "stopped"
	SessionFailed    = "failed"
)

// SessionStateChangedEvent is published on every capture session transition.
// Used for LED control and other reactive subsystems.
type SessionStateChangedEvent struct {
	SessionID  string `json:"session_id" example:"5f1c9a52-1d3e-4a4b-9d55-0a8f2b7c1e10" doc:"Capture session identifier"`
	DevicePath string `json:"device_path" example:"/dev/video0" doc:"Capture device node"`
	State      string `json:"state" example:"streaming" enum:"starting,priming,streaming,stopped,failed" doc:"Session state"`
	Error      string `json:"error,omitempty" example:"VIDIOC_DQBUF: no such device" doc:"Fatal error, if any"`
	Timestamp  string `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for SessionStateChangedEvent.
func (e SessionStateChangedEvent) Type() uint32 { return TypeSessionStateChanged }

// GetSessionID implements the SessionStateEvent interface for LED manager.
func (e SessionStateChangedEvent) GetSessionID() string {
	return e.SessionID
}

// GetState implements the SessionStateEvent interface for LED manager.
func (e SessionStateChangedEvent) GetState() string {
	return e.State
}

// BufferPoolEvent describes an allocation or release of the capture buffer pool.
type BufferPoolEvent struct {
	Action    string `json:"action" example:"allocated" enum:"allocated,released" doc:"Pool action"`
	Requested int    `json:"requested" example:"4" doc:"Buffers requested from the driver"`
	Granted   int    `json:"granted" example:"4" doc:"Buffers granted by the driver"`
	Planes    int    `json:"planes" example:"2" doc:"Planes per buffer"`
	DMAExport bool   `json:"dma_export" example:"false" doc:"Whether planes were exported as DMA-BUF"`
	Timestamp string `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for BufferPoolEvent.
func (e BufferPoolEvent) Type() uint32 { return TypeBufferPool }

// FrameStatsEvent carries periodic capture loop statistics.
type FrameStatsEvent struct {
	SessionID string  `json:"session_id"`
	Frames    uint64  `json:"frames" example:"1800" doc:"Frames rendered since streaming started"`
	FPS       float64 `json:"fps" example:"29.97" doc:"Frames per second over the last interval"`
	Sequence  uint32  `json:"sequence" example:"1799" doc:"Driver sequence number of the last frame"`
	Timestamp string  `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for FrameStatsEvent.
func (e FrameStatsEvent) Type() uint32 { return TypeFrameStats }

// FocusChangedEvent is published after a focus command was applied.
type FocusChangedEvent struct {
	From      string `json:"from" example:"idle" doc:"Focus state before the command"`
	To        string `json:"to" example:"auto_focus_enabled" doc:"Focus state after the command"`
	Command   string `json:"command" example:"auto" doc:"Command that caused the transition"`
	Error     string `json:"error,omitempty" doc:"Control request failure; the new state is kept"`
	Timestamp string `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for FocusChangedEvent.
func (e FocusChangedEvent) Type() uint32 { return TypeFocusChanged }

// TestPatternChangedEvent is published when the sensor test pattern changes.
type TestPatternChangedEvent struct {
	Pattern   int    `json:"pattern" example:"2" minimum:"0" maximum:"3" doc:"Test pattern index, 0 is live view"`
	Error     string `json:"error,omitempty" doc:"Control request failure"`
	Timestamp string `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for TestPatternChangedEvent.
func (e TestPatternChangedEvent) Type() uint32 { return TypeTestPatternChanged }

// DeviceRemovedEvent is published when the capture node disappears.
type DeviceRemovedEvent struct {
	DevicePath string `json:"device_path" example:"/dev/video0" doc:"Removed device node"`
	DevPath    string `json:"devpath" example:"/devices/platform/soc/fe801000.csi/video4linux/video0" doc:"Kernel device path"`
	Timestamp  string `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for DeviceRemovedEvent.
func (e DeviceRemovedEvent) Type() uint32 { return TypeDeviceRemoved }

// LogEntryEvent represents a log entry for SSE streaming.
type LogEntryEvent struct {
	Seq        uint64         `json:"seq" example:"42" doc:"Monotonic sequence number for deduplication"`
	Timestamp  string         `json:"timestamp" example:"2025-01-09T10:30:00.123Z" doc:"Log timestamp"`
	Level      string         `json:"level" example:"info" doc:"Log level"`
	Module     string         `json:"module" example:"capture" doc:"Source module"`
	Message    string         `json:"message" doc:"Log message"`
	Attributes map[string]any `json:"attributes,omitempty" doc:"Structured log attributes"`
}

// Type returns the event type identifier for LogEntryEvent.
func (e LogEntryEvent) Type() uint32 { return TypeLogEntry }
