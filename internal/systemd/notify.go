// Package systemd reports service state through sd_notify and restarts
// units over D-Bus. Outside a systemd unit with NOTIFY_SOCKET every
// Notifier call is a no-op.
package systemd

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	"github.com/smazurov/glcapture/internal/logging"
)

// Notifier sends sd_notify messages.
type Notifier struct {
	logger *slog.Logger
	notify func(state string) (bool, error)
	// watchdog returns the WatchdogSec interval, or 0 when disabled.
	watchdog func() (time.Duration, error)
}

// NewNotifier creates a notifier for the current process.
func NewNotifier() *Notifier {
	return &Notifier{
		logger: logging.GetLogger("systemd"),
		notify: func(state string) (bool, error) {
			return daemon.SdNotify(false, state)
		},
		watchdog: func() (time.Duration, error) {
			return daemon.SdWatchdogEnabled(false)
		},
	}
}

// Ready reports that the service finished starting.
func (n *Notifier) Ready() {
	n.send(daemon.SdNotifyReady)
}

// Stopping reports that the service is shutting down.
func (n *Notifier) Stopping() {
	n.send(daemon.SdNotifyStopping)
}

// Status sets the free-form status line shown by systemctl status.
func (n *Notifier) Status(format string, args ...any) {
	n.send("STATUS=" + fmt.Sprintf(format, args...))
}

func (n *Notifier) send(state string) {
	sent, err := n.notify(state)
	if err != nil {
		n.logger.Warn("sd_notify failed", "state", state, "error", err)
		return
	}
	if sent {
		n.logger.Debug("sd_notify sent", "state", state)
	}
}

// StartWatchdog pings the systemd watchdog at half the configured interval
// while progress keeps increasing. A capture that stalls in the driver stops
// the pings and lets systemd restart the unit. It returns immediately when
// the unit has no watchdog.
func (n *Notifier) StartWatchdog(ctx context.Context, progress func() uint64) {
	interval, err := n.watchdog()
	if err != nil {
		n.logger.Warn("Invalid watchdog configuration", "error", err)
		return
	}
	if interval <= 0 {
		return
	}

	n.logger.Info("Watchdog enabled", "interval", interval)
	go func() {
		ticker := time.NewTicker(interval / 2)
		defer ticker.Stop()

		last := progress()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				current := progress()
				if current == last {
					n.logger.Warn("No capture progress, withholding watchdog ping", "frames", current)
					continue
				}
				last = current
				n.send(daemon.SdNotifyWatchdog)
			}
		}
	}()
}
