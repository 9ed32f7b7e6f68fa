//go:build linux

// Package hotplug watches kernel uevents over netlink without cgo.
//
// It is used to notice a capture node disappearing while a session streams,
// so the session can stop and release its buffers instead of blocking on a
// device that no longer exists.
package hotplug

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/sys/unix"
)

// Action constants for device events.
const (
	ActionAdd    = "add"
	ActionRemove = "remove"
	ActionChange = "change"
)

// SubsystemVideo4Linux is the uevent subsystem of V4L2 device nodes.
const SubsystemVideo4Linux = "video4linux"

// Event represents a kernel device event.
type Event struct {
	Action    string            // "add", "remove", "change", ...
	KObj      string            // kernel object path from the header
	Subsystem string            // SUBSYSTEM, e.g. "video4linux"
	DevName   string            // DEVNAME relative to /dev, e.g. "video0"
	DevPath   string            // DEVPATH, the sysfs path without /sys
	Env       map[string]string // all KEY=VALUE pairs
}

// Node returns the /dev path of the event's device node, or "" if the event
// carries no DEVNAME.
func (e Event) Node() string {
	if e.DevName == "" {
		return ""
	}
	if strings.HasPrefix(e.DevName, "/") {
		return e.DevName
	}
	return "/dev/" + e.DevName
}

// netlinkKobjectUEvent is the netlink protocol for kernel object events.
const netlinkKobjectUEvent = 15

// pollInterval bounds how long Run waits before checking its context.
const pollInterval = time.Second

// Monitor listens for kernel device events of one subsystem.
type Monitor struct {
	fd        int
	subsystem string
}

// NewMonitor opens a netlink socket bound to the kernel broadcast group.
// An empty subsystem passes every event.
func NewMonitor(subsystem string) (*Monitor, error) {
	fd, err := unix.Socket(unix.AF_NETLINK, unix.SOCK_DGRAM|unix.SOCK_CLOEXEC, netlinkKobjectUEvent)
	if err != nil {
		return nil, err
	}

	addr := &unix.SockaddrNetlink{Family: unix.AF_NETLINK, Groups: 1}
	if err := unix.Bind(fd, addr); err != nil {
		_ = unix.Close(fd)
		return nil, err
	}

	tv := unix.NsecToTimeval(pollInterval.Nanoseconds())
	if err := unix.SetsockoptTimeval(fd, unix.SOL_SOCKET, unix.SO_RCVTIMEO, &tv); err != nil {
		_ = unix.Close(fd)
		return nil, err
	}

	return &Monitor{fd: fd, subsystem: subsystem}, nil
}

// Close releases the socket.
func (m *Monitor) Close() error {
	return unix.Close(m.fd)
}

// Run sends matching events to the channel until ctx is cancelled or the
// socket fails. The channel is closed when Run returns.
func (m *Monitor) Run(ctx context.Context, events chan<- Event) error {
	defer close(events)

	buf := make([]byte, 8192)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		n, _, err := unix.Recvfrom(m.fd, buf, 0)
		if err != nil {
			if errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EINTR) {
				continue
			}
			return err
		}

		event := ParseUEvent(buf[:n])
		if event == nil || (m.subsystem != "" && event.Subsystem != m.subsystem) {
			continue
		}

		select {
		case events <- *event:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// WatchRemoval blocks until the device node at path is removed, then calls
// onRemove once and returns nil. Symlinks such as /dev/v4l/by-id entries are
// resolved first. It returns ctx.Err() when cancelled.
func WatchRemoval(ctx context.Context, path string, onRemove func(Event)) error {
	node, err := filepath.EvalSymlinks(path)
	if err != nil {
		return err
	}

	m, err := NewMonitor(SubsystemVideo4Linux)
	if err != nil {
		return err
	}
	defer m.Close()

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	events := make(chan Event, 8)
	runErr := make(chan error, 1)
	go func() { runErr <- m.Run(runCtx, events) }()

	for ev := range events {
		if IsRemovalOf(ev, node) {
			onRemove(ev)
			cancel()
			<-runErr
			return nil
		}
	}
	return <-runErr
}

// IsRemovalOf reports whether ev removes the device node at node.
func IsRemovalOf(ev Event, node string) bool {
	return ev.Action == ActionRemove && ev.Node() != "" && ev.Node() == node
}

// ParseUEvent parses a kernel uevent message of the form
// "ACTION@KOBJ\0KEY=VALUE\0...". Messages relayed by udev start with a
// "libudev" binary header, which is skipped.
func ParseUEvent(data []byte) *Event {
	if bytes.HasPrefix(data, []byte("libudev")) {
		data = skipUdevHeader(data)
	}

	parts := bytes.Split(data, []byte{0})
	if len(parts) == 0 {
		return nil
	}

	action, kobj, ok := strings.Cut(string(parts[0]), "@")
	if !ok || action == "" {
		return nil
	}

	event := &Event{
		Action: action,
		KObj:   kobj,
		Env:    make(map[string]string),
	}

	for _, part := range parts[1:] {
		key, value, ok := strings.Cut(string(part), "=")
		if !ok || key == "" {
			continue
		}
		event.Env[key] = value

		switch key {
		case "SUBSYSTEM":
			event.Subsystem = value
		case "DEVNAME":
			event.DevName = value
		case "DEVPATH":
			event.DevPath = value
		}
	}

	return event
}

// skipUdevHeader returns the uevent that follows a libudev header: the
// first NUL-terminated chunk that looks like "action@path".
func skipUdevHeader(data []byte) []byte {
	for i := 0; i < len(data)-1; i++ {
		if data[i] != 0 {
			continue
		}
		rest := data[i+1:]
		chunk := rest
		if end := bytes.IndexByte(rest, 0); end >= 0 {
			chunk = rest[:end]
		}
		if idx := bytes.IndexByte(chunk, '@'); idx > 0 && idx < 20 {
			return rest
		}
	}
	return nil
}
