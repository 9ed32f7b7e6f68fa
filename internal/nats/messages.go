package nats

import (
	"encoding/json"
	"fmt"
)

// Subject prefixes for NATS topics. Everything lives under SubjectsRoot.
const (
	SubjectsRoot          = "glcapture"
	SubjectSessionsPrefix = SubjectsRoot + ".sessions"
	SubjectControlPrefix  = SubjectsRoot + ".control"
)

// SubjectSessionState returns the subject for session state changes.
func SubjectSessionState(sessionID string) string {
	return fmt.Sprintf("%s.%s.state", SubjectSessionsPrefix, sessionID)
}

// SubjectSessionStats returns the subject for periodic frame statistics.
func SubjectSessionStats(sessionID string) string {
	return fmt.Sprintf("%s.%s.stats", SubjectSessionsPrefix, sessionID)
}

// SubjectSessionControls returns the subject for applied sensor controls.
func SubjectSessionControls(sessionID string) string {
	return fmt.Sprintf("%s.%s.controls", SubjectSessionsPrefix, sessionID)
}

// SubjectControlKeys returns the subject a session listens on for key commands.
func SubjectControlKeys(sessionID string) string {
	return fmt.Sprintf("%s.%s.keys", SubjectControlPrefix, sessionID)
}

// StateMessage represents a session state change sent over NATS.
type StateMessage struct {
	SessionID  string `json:"session_id"`
	DevicePath string `json:"device_path"`
	Timestamp  string `json:"timestamp"`
	State      string `json:"state"` // starting, priming, streaming, stopped, failed
	Error      string `json:"error,omitempty"`
}

// Marshal serializes the message to JSON.
func (m StateMessage) Marshal() ([]byte, error) {
	return json.Marshal(m)
}

// StatsMessage carries capture loop statistics.
type StatsMessage struct {
	SessionID string  `json:"session_id"`
	Timestamp string  `json:"timestamp"`
	Frames    uint64  `json:"frames"`
	FPS       float64 `json:"fps"`
	Sequence  uint32  `json:"sequence"`
}

// Marshal serializes the message to JSON.
func (m StatsMessage) Marshal() ([]byte, error) {
	return json.Marshal(m)
}

// ControlsMessage reports a focus or test pattern change.
type ControlsMessage struct {
	SessionID string `json:"session_id"`
	Timestamp string `json:"timestamp"`
	Control   string `json:"control"` // focus, test_pattern
	Value     string `json:"value"`
	Error     string `json:"error,omitempty"`
}

// Marshal serializes the message to JSON.
func (m ControlsMessage) Marshal() ([]byte, error) {
	return json.Marshal(m)
}

// KeysMessage is a remote key command, handled like keys typed at the renderer.
type KeysMessage struct {
	Keys      string `json:"keys"`
	Timestamp string `json:"timestamp"`
	Source    string `json:"source,omitempty"`
}

// Marshal serializes the message to JSON.
func (m KeysMessage) Marshal() ([]byte, error) {
	return json.Marshal(m)
}

// UnmarshalState deserializes a StateMessage from JSON.
func UnmarshalState(data []byte) (StateMessage, error) {
	var m StateMessage
	err := json.Unmarshal(data, &m)
	return m, err
}

// UnmarshalStats deserializes a StatsMessage from JSON.
func UnmarshalStats(data []byte) (StatsMessage, error) {
	var m StatsMessage
	err := json.Unmarshal(data, &m)
	return m, err
}

// UnmarshalControls deserializes a ControlsMessage from JSON.
func UnmarshalControls(data []byte) (ControlsMessage, error) {
	var m ControlsMessage
	err := json.Unmarshal(data, &m)
	return m, err
}

// UnmarshalKeys deserializes a KeysMessage from JSON.
func UnmarshalKeys(data []byte) (KeysMessage, error) {
	var m KeysMessage
	err := json.Unmarshal(data, &m)
	return m, err
}
