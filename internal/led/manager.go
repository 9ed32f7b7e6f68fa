package led

import (
	"log/slog"
	"sync"

	"github.com/smazurov/glcapture/internal/events"
)

// Manager subscribes to capture session events and drives the status LED.
type Manager struct {
	controller  Controller
	eventBus    *events.Bus
	unsubscribe func()
	stopOnce    sync.Once
	logger      *slog.Logger

	mu    sync.Mutex
	state string
}

// NewManager creates a new LED manager that reacts to session state changes.
func NewManager(controller Controller, eventBus *events.Bus, logger *slog.Logger) *Manager {
	return &Manager{
		controller: controller,
		eventBus:   eventBus,
		logger:     logger,
	}
}

// Start begins listening for session state change events.
func (m *Manager) Start() {
	m.unsubscribe = m.eventBus.Subscribe(func(e events.SessionStateChangedEvent) {
		m.handleEvent(e)
	})
	m.logger.Info("LED manager started")
}

// Stop unsubscribes from events. It is safe to call more than once.
func (m *Manager) Stop() {
	m.stopOnce.Do(func() {
		if m.unsubscribe != nil {
			m.unsubscribe()
		}
		m.logger.Info("LED manager stopped")
	})
}

func (m *Manager) handleEvent(event events.SessionStateChangedEvent) {
	m.logger.Debug("Session state changed",
		"session_id", event.GetSessionID(),
		"state", event.GetState())
	m.Apply(event.GetState())
}

// Apply shows state on the LED directly. Event delivery is asynchronous, so
// callers use it to settle the final state before the process exits.
func (m *Manager) Apply(state string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if state == m.state {
		return
	}
	m.state = state

	enabled, pattern := patternFor(state)
	if err := m.controller.Set(StatusLED, enabled, pattern); err != nil {
		m.logger.Warn("Failed to set status LED", "state", state, "pattern", pattern, "error", err)
	}
}

// patternFor maps a session state to the status LED output.
func patternFor(state string) (bool, string) {
	switch state {
	case events.SessionStreaming:
		return true, "solid"
	case events.SessionFailed:
		return true, "blink"
	case events.SessionStopped:
		return false, ""
	default:
		// starting, priming
		return true, "heartbeat"
	}
}

// GetController returns the underlying LED controller.
func (m *Manager) GetController() Controller {
	return m.controller
}
