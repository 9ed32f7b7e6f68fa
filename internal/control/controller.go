//go:build linux

package control

import (
	"log/slog"
	"sync"

	"github.com/smazurov/glcapture/internal/events"
	"github.com/smazurov/glcapture/internal/logging"
	"github.com/smazurov/glcapture/internal/metrics"
	"github.com/smazurov/glcapture/pkg/linuxav/v4l2"
)

// Device accepts discrete control requests. *v4l2.Subdevice implements it.
type Device interface {
	SetControl(id uint32, value int32) error
}

// EventPublisher interface for publishing events.
type EventPublisher interface {
	Publish(ev events.Event)
}

// Controller owns the focus state and the test pattern of one sensor.
type Controller struct {
	device   Device
	eventBus EventPublisher
	logger   *slog.Logger

	// order is held across a state change and its request so concurrent
	// callers reach the device in the order they committed.
	order sync.Mutex

	mu      sync.Mutex
	focus   FocusState
	pattern int
}

// NewController creates a controller in InitialFocusState with the live image
// selected. No control request is issued.
func NewController(device Device, eventBus EventPublisher) *Controller {
	c := &Controller{
		device:   device,
		eventBus: eventBus,
		logger:   logging.GetLogger("control"),
		focus:    InitialFocusState,
		pattern:  PatternLive,
	}
	metrics.SetFocusState(c.focus.String(), FocusStates())
	metrics.SetTestPattern(c.pattern)
	return c
}

// State returns the committed focus state.
func (c *Controller) State() FocusState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.focus
}

// Pattern returns the committed test pattern.
func (c *Controller) Pattern() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pattern
}

// Focus applies cmd to the state machine. The new state is committed before
// the request is sent and kept if the request fails.
func (c *Controller) Focus(cmd FocusCommand) error {
	c.order.Lock()
	defer c.order.Unlock()

	c.mu.Lock()
	from := c.focus
	t, send := NextFocus(from, cmd)
	c.focus = t.Next
	c.mu.Unlock()

	if !send {
		if t.Next != from {
			c.logger.Warn("Unknown focus state, reset to idle", "state", int(from))
			metrics.SetFocusState(t.Next.String(), FocusStates())
		} else {
			c.logger.Debug("No focus transition", "state", from.String(), "command", cmd.String())
		}
		return nil
	}

	metrics.SetFocusState(t.Next.String(), FocusStates())
	err := c.request(t.Control, t.Value)

	ev := events.FocusChangedEvent{
		From:      from.String(),
		To:        t.Next.String(),
		Command:   cmd.String(),
		Timestamp: events.Now(),
	}
	if err != nil {
		ev.Error = err.Error()
	}
	c.eventBus.Publish(ev)

	c.logger.Info("Focus mode changed", "from", from.String(), "to", t.Next.String(), "command", cmd.String())
	return err
}

// CyclePattern advances the test pattern 1->2->3->1, starting at 1 from live.
func (c *Controller) CyclePattern() error {
	c.order.Lock()
	defer c.order.Unlock()

	c.mu.Lock()
	c.pattern = nextPattern(c.pattern)
	p := c.pattern
	c.mu.Unlock()
	return c.applyPattern(p)
}

// LivePattern selects the live sensor image.
func (c *Controller) LivePattern() error {
	c.order.Lock()
	defer c.order.Unlock()

	c.mu.Lock()
	c.pattern = PatternLive
	c.mu.Unlock()
	return c.applyPattern(PatternLive)
}

func (c *Controller) applyPattern(p int) error {
	metrics.SetTestPattern(p)
	err := c.request(v4l2.CtrlTestPattern, int32(p))

	ev := events.TestPatternChangedEvent{Pattern: p, Timestamp: events.Now()}
	if err != nil {
		ev.Error = err.Error()
	}
	c.eventBus.Publish(ev)

	c.logger.Info("Test pattern changed", "pattern", p)
	return err
}

// request sends exactly one control request and wraps a failure.
func (c *Controller) request(id uint32, value int32) error {
	err := c.device.SetControl(id, value)
	metrics.RecordControlRequest(v4l2.ControlName(id), err)
	if err != nil {
		reqErr := &ControlRequestError{Control: id, Value: value, Err: err}
		c.logger.Warn("Control request failed", "control", v4l2.ControlName(id), "value", value, "error", err)
		return reqErr
	}
	return nil
}
