package nats

import (
	"log/slog"
	"strconv"
	"sync"

	"github.com/smazurov/glcapture/internal/events"
)

// EventSubscriber is the event bus side of the relay. *events.Bus implements it.
type EventSubscriber interface {
	Subscribe(handler any) func()
}

// Sink receives session messages. *SessionClient implements it.
type Sink interface {
	PublishState(m StateMessage)
	PublishStats(m StatsMessage)
	PublishControls(m ControlsMessage)
}

// Relay forwards capture session events from the event bus to NATS.
type Relay struct {
	bus       EventSubscriber
	sink      Sink
	sessionID string
	logger    *slog.Logger

	mu     sync.Mutex
	unsubs []func()
}

// NewRelay creates a relay for the session with the given ID.
func NewRelay(bus EventSubscriber, sink Sink, sessionID string, logger *slog.Logger) *Relay {
	if logger == nil {
		logger = slog.Default()
	}
	return &Relay{
		bus:       bus,
		sink:      sink,
		sessionID: sessionID,
		logger:    logger.With("component", "nats-relay"),
	}
}

// Start subscribes to session events.
func (r *Relay) Start() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.unsubs != nil {
		return
	}
	r.unsubs = []func(){
		r.bus.Subscribe(r.handleState),
		r.bus.Subscribe(r.handleStats),
		r.bus.Subscribe(r.handleFocus),
		r.bus.Subscribe(r.handlePattern),
	}
	r.logger.Debug("NATS relay started")
}

// Stop unsubscribes from the event bus.
func (r *Relay) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, unsub := range r.unsubs {
		unsub()
	}
	r.unsubs = nil
}

// ours filters events from other sessions. An empty ID matches.
func (r *Relay) ours(sessionID string) bool {
	return sessionID == "" || sessionID == r.sessionID
}

func (r *Relay) handleState(e events.SessionStateChangedEvent) {
	if !r.ours(e.SessionID) {
		return
	}
	r.sink.PublishState(StateMessage{
		SessionID:  r.sessionID,
		DevicePath: e.DevicePath,
		Timestamp:  e.Timestamp,
		State:      e.State,
		Error:      e.Error,
	})
}

func (r *Relay) handleStats(e events.FrameStatsEvent) {
	if !r.ours(e.SessionID) {
		return
	}
	r.sink.PublishStats(StatsMessage{
		SessionID: r.sessionID,
		Timestamp: e.Timestamp,
		Frames:    e.Frames,
		FPS:       e.FPS,
		Sequence:  e.Sequence,
	})
}

func (r *Relay) handleFocus(e events.FocusChangedEvent) {
	r.sink.PublishControls(ControlsMessage{
		SessionID: r.sessionID,
		Timestamp: e.Timestamp,
		Control:   "focus",
		Value:     e.To,
		Error:     e.Error,
	})
}

func (r *Relay) handlePattern(e events.TestPatternChangedEvent) {
	r.sink.PublishControls(ControlsMessage{
		SessionID: r.sessionID,
		Timestamp: e.Timestamp,
		Control:   "test_pattern",
		Value:     strconv.Itoa(e.Pattern),
		Error:     e.Error,
	})
}
