//go:build linux

package hotplug

import (
	"context"
	"errors"
	"testing"
)

func TestParseUEvent(t *testing.T) {
	tests := []struct {
		name     string
		input    []byte
		expected *Event
	}{
		{name: "empty input", input: []byte{}, expected: nil},
		{name: "nil input", input: nil, expected: nil},
		{name: "no @ separator", input: []byte("invalid"), expected: nil},
		{name: "missing action", input: []byte("@/devices/foo"), expected: nil},
		{
			name:  "video add",
			input: []byte("add@/devices/platform/csi/video4linux/video0\x00ACTION=add\x00SUBSYSTEM=video4linux\x00DEVNAME=video0\x00DEVPATH=/devices/platform/csi/video4linux/video0\x00"),
			expected: &Event{
				Action:    "add",
				KObj:      "/devices/platform/csi/video4linux/video0",
				Subsystem: "video4linux",
				DevName:   "video0",
				DevPath:   "/devices/platform/csi/video4linux/video0",
			},
		},
		{
			name:  "subdevice remove",
			input: []byte("remove@/devices/platform/i2c/v4l-subdev2\x00SUBSYSTEM=video4linux\x00DEVNAME=v4l-subdev2\x00"),
			expected: &Event{
				Action:    "remove",
				KObj:      "/devices/platform/i2c/v4l-subdev2",
				Subsystem: "video4linux",
				DevName:   "v4l-subdev2",
			},
		},
		{
			name:  "trailing nulls and empty value",
			input: []byte("change@/devices/foo\x00SUBSYSTEM=video4linux\x00KEY=\x00\x00\x00"),
			expected: &Event{
				Action:    "change",
				KObj:      "/devices/foo",
				Subsystem: "video4linux",
			},
		},
		{
			name:  "libudev header",
			input: append([]byte("libudev\x00\xfe\xed\x00"), []byte("remove@/devices/v\x00SUBSYSTEM=video4linux\x00DEVNAME=video1\x00")...),
			expected: &Event{
				Action:    "remove",
				KObj:      "/devices/v",
				Subsystem: "video4linux",
				DevName:   "video1",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := ParseUEvent(tt.input)

			if tt.expected == nil {
				if result != nil {
					t.Errorf("expected nil, got %+v", result)
				}
				return
			}
			if result == nil {
				t.Fatalf("expected %+v, got nil", tt.expected)
			}

			if result.Action != tt.expected.Action {
				t.Errorf("Action: expected %q, got %q", tt.expected.Action, result.Action)
			}
			if result.KObj != tt.expected.KObj {
				t.Errorf("KObj: expected %q, got %q", tt.expected.KObj, result.KObj)
			}
			if result.Subsystem != tt.expected.Subsystem {
				t.Errorf("Subsystem: expected %q, got %q", tt.expected.Subsystem, result.Subsystem)
			}
			if result.DevName != tt.expected.DevName {
				t.Errorf("DevName: expected %q, got %q", tt.expected.DevName, result.DevName)
			}
			if result.DevPath != tt.expected.DevPath {
				t.Errorf("DevPath: expected %q, got %q", tt.expected.DevPath, result.DevPath)
			}
		})
	}
}

func TestParseUEventKeepsEnv(t *testing.T) {
	ev := ParseUEvent([]byte("add@/x\x00MAJOR=81\x00MINOR=0\x00=bad\x00novalue\x00"))
	if ev == nil {
		t.Fatal("expected event")
	}
	if ev.Env["MAJOR"] != "81" || ev.Env["MINOR"] != "0" {
		t.Errorf("Env = %v", ev.Env)
	}
	if len(ev.Env) != 2 {
		t.Errorf("malformed pairs were kept: %v", ev.Env)
	}
}

func TestIsRemovalOf(t *testing.T) {
	tests := []struct {
		name string
		ev   Event
		node string
		want bool
	}{
		{name: "matching remove", ev: Event{Action: ActionRemove, DevName: "video0"}, node: "/dev/video0", want: true},
		{name: "other node", ev: Event{Action: ActionRemove, DevName: "video1"}, node: "/dev/video0", want: false},
		{name: "add is not removal", ev: Event{Action: ActionAdd, DevName: "video0"}, node: "/dev/video0", want: false},
		{name: "no devname", ev: Event{Action: ActionRemove}, node: "", want: false},
		{name: "absolute devname", ev: Event{Action: ActionRemove, DevName: "/dev/video0"}, node: "/dev/video0", want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsRemovalOf(tt.ev, tt.node); got != tt.want {
				t.Errorf("IsRemovalOf() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestMonitorRunCancellation(t *testing.T) {
	m, err := NewMonitor(SubsystemVideo4Linux)
	if err != nil {
		t.Skipf("netlink not available: %v", err)
	}
	defer func() { _ = m.Close() }()

	// Already-cancelled context: Run returns immediately.
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	events := make(chan Event, 10)
	if err := m.Run(ctx, events); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
	if _, open := <-events; open {
		t.Error("events channel not closed")
	}
}

func TestWatchRemovalMissingNode(t *testing.T) {
	err := WatchRemoval(context.Background(), "/dev/does-not-exist-video99", func(Event) {
		t.Error("onRemove called for missing node")
	})
	if err == nil {
		t.Error("expected error for missing node")
	}
}
