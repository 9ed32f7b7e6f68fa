package systemd

import (
	"context"
	"fmt"

	"github.com/coreos/go-systemd/v22/dbus"
)

// Manager controls systemd units over D-Bus.
type Manager struct {
	conn *dbus.Conn
}

// NewManager connects to the user manager, or to the system manager when
// system is true.
func NewManager(ctx context.Context, system bool) (*Manager, error) {
	connect := dbus.NewUserConnectionContext
	if system {
		connect = dbus.NewSystemConnectionContext
	}
	conn, err := connect(ctx)
	if err != nil {
		return nil, fmt.Errorf("connect to systemd: %w", err)
	}
	return &Manager{conn: conn}, nil
}

// ActiveState retrieves the ActiveState property of a unit.
func (m *Manager) ActiveState(ctx context.Context, unit string) (string, error) {
	prop, err := m.conn.GetUnitPropertyContext(ctx, unit, "ActiveState")
	if err != nil {
		return "", err
	}
	state, ok := prop.Value.Value().(string)
	if !ok {
		return "", fmt.Errorf("%s: unexpected ActiveState %s", unit, prop.Value.String())
	}
	return state, nil
}

// Restart restarts a unit in replace mode and waits for the job to finish.
func (m *Manager) Restart(ctx context.Context, unit string) error {
	done := make(chan string, 1)
	if _, err := m.conn.RestartUnitContext(ctx, unit, "replace", done); err != nil {
		return fmt.Errorf("restart %s: %w", unit, err)
	}
	select {
	case result := <-done:
		return jobError(unit, result)
	case <-ctx.Done():
		return ctx.Err()
	}
}

// jobError maps a systemd job result to an error.
func jobError(unit, result string) error {
	if result == "done" {
		return nil
	}
	return fmt.Errorf("restart %s: job %s", unit, result)
}

// Close closes the D-Bus connection.
func (m *Manager) Close() {
	if m.conn != nil {
		m.conn.Close()
	}
}
