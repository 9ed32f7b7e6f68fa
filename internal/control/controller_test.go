//go:build linux

package control

import (
	"bytes"
	"errors"
	"strings"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/smazurov/glcapture/internal/events"
	"github.com/smazurov/glcapture/pkg/linuxav/v4l2"
)

type ctrlCall struct {
	id    uint32
	value int32
}

// fakeDevice records control requests and fails them when err is set.
type fakeDevice struct {
	calls []ctrlCall
	err   error
}

func (f *fakeDevice) SetControl(id uint32, value int32) error {
	f.calls = append(f.calls, ctrlCall{id, value})
	return f.err
}

// recordingPublisher keeps published events in order.
type recordingPublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (r *recordingPublisher) Publish(ev events.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func newTestController() (*Controller, *fakeDevice, *recordingPublisher) {
	dev := &fakeDevice{}
	pub := &recordingPublisher{}
	return NewController(dev, pub), dev, pub
}

func TestNewController_NoRequest(t *testing.T) {
	c, dev, _ := newTestController()
	if c.State() != AutoFocusEnabled {
		t.Errorf("initial state = %s, want auto_focus_enabled", c.State())
	}
	if c.Pattern() != PatternLive {
		t.Errorf("initial pattern = %d, want 0", c.Pattern())
	}
	if len(dev.calls) != 0 {
		t.Errorf("constructor sent %d requests, want 0", len(dev.calls))
	}
}

func TestController_Focus(t *testing.T) {
	c, dev, pub := newTestController()

	// auto_focus_enabled -> idle
	if err := c.Focus(RequestAuto); err != nil {
		t.Fatalf("Focus(auto) error = %v", err)
	}
	if c.State() != Idle {
		t.Errorf("state = %s, want idle", c.State())
	}

	// idle + pause is undefined
	if err := c.Focus(RequestPause); err != nil {
		t.Fatalf("Focus(pause) error = %v", err)
	}
	if c.State() != Idle {
		t.Errorf("state = %s, want idle after undefined transition", c.State())
	}

	if err := c.Focus(RequestSingle); err != nil {
		t.Fatalf("Focus(single) error = %v", err)
	}

	want := []ctrlCall{
		{v4l2.CtrlFocusAuto, 0},
		{v4l2.CtrlAutoFocusStart, 1},
	}
	if len(dev.calls) != len(want) {
		t.Fatalf("requests = %+v, want %+v", dev.calls, want)
	}
	for i := range want {
		if dev.calls[i] != want[i] {
			t.Errorf("request %d = %+v, want %+v", i, dev.calls[i], want[i])
		}
	}

	if len(pub.events) != 2 {
		t.Fatalf("published %d events, want 2", len(pub.events))
	}
	ev, ok := pub.events[1].(events.FocusChangedEvent)
	if !ok {
		t.Fatalf("event type = %T, want FocusChangedEvent", pub.events[1])
	}
	if ev.From != "idle" || ev.To != "single_focus_start" || ev.Command != "single" {
		t.Errorf("event = %+v", ev)
	}
}

func TestController_FocusUnknownStateResets(t *testing.T) {
	c, dev, _ := newTestController()
	c.focus = FocusState(7)

	if err := c.Focus(RequestSingle); err != nil {
		t.Fatalf("Focus() error = %v", err)
	}
	if c.State() != Idle {
		t.Errorf("state = %s, want idle", c.State())
	}
	if len(dev.calls) != 0 {
		t.Errorf("sent %d requests, want 0", len(dev.calls))
	}
}

func TestController_FocusFailureKeepsState(t *testing.T) {
	c, dev, pub := newTestController()
	dev.err = syscall.EINVAL

	err := c.Focus(RequestPause)
	if err == nil {
		t.Fatal("expected error from rejected control")
	}
	if !errors.Is(err, ErrControlRequest) {
		t.Errorf("errors.Is(err, ErrControlRequest) = false for %v", err)
	}
	if !errors.Is(err, syscall.EINVAL) {
		t.Errorf("device errno lost: %v", err)
	}
	var reqErr *ControlRequestError
	if !errors.As(err, &reqErr) {
		t.Fatalf("errors.As failed for %T", err)
	}
	if reqErr.Control != v4l2.Ctrl3ALock || reqErr.Value != v4l2.LockFocus {
		t.Errorf("ControlRequestError = %+v", reqErr)
	}
	if !strings.Contains(err.Error(), "3a_lock") {
		t.Errorf("error text %q does not name the control", err.Error())
	}

	// Committed before the request, not rolled back.
	if c.State() != FocusPause {
		t.Errorf("state = %s, want focus_pause", c.State())
	}

	ev := pub.events[len(pub.events)-1].(events.FocusChangedEvent)
	if ev.Error == "" {
		t.Error("FocusChangedEvent.Error is empty for failed request")
	}
}

func TestController_Patterns(t *testing.T) {
	c, dev, _ := newTestController()

	for _, want := range []int{1, 2, 3, 1} {
		if err := c.CyclePattern(); err != nil {
			t.Fatalf("CyclePattern() error = %v", err)
		}
		if c.Pattern() != want {
			t.Errorf("pattern = %d, want %d", c.Pattern(), want)
		}
	}

	if err := c.LivePattern(); err != nil {
		t.Fatalf("LivePattern() error = %v", err)
	}
	if c.Pattern() != PatternLive {
		t.Errorf("pattern = %d, want 0", c.Pattern())
	}

	wantValues := []int32{1, 2, 3, 1, 0}
	if len(dev.calls) != len(wantValues) {
		t.Fatalf("requests = %+v", dev.calls)
	}
	for i, v := range wantValues {
		if dev.calls[i].id != v4l2.CtrlTestPattern || dev.calls[i].value != v {
			t.Errorf("request %d = %+v, want test_pattern=%d", i, dev.calls[i], v)
		}
	}

	// Cycling after live starts again at 1.
	if err := c.CyclePattern(); err != nil {
		t.Fatal(err)
	}
	if c.Pattern() != 1 {
		t.Errorf("pattern = %d, want 1", c.Pattern())
	}
}

func TestController_PatternFailureKeepsValue(t *testing.T) {
	c, dev, _ := newTestController()
	dev.err = syscall.EIO

	if err := c.CyclePattern(); !errors.Is(err, ErrControlRequest) {
		t.Fatalf("CyclePattern() error = %v, want ControlRequestError", err)
	}
	if c.Pattern() != 1 {
		t.Errorf("pattern = %d, want 1", c.Pattern())
	}
}

func TestController_HandleKeys(t *testing.T) {
	tests := []struct {
		keys      string
		wantCalls []ctrlCall
		wantHelp  bool
	}{
		{keys: "a", wantCalls: []ctrlCall{{v4l2.CtrlFocusAuto, 0}}},
		{keys: "f", wantCalls: []ctrlCall{{v4l2.CtrlAutoFocusStart, 1}}},
		{keys: "p", wantCalls: []ctrlCall{{v4l2.Ctrl3ALock, v4l2.LockFocus}}},
		{keys: "t", wantCalls: []ctrlCall{{v4l2.CtrlTestPattern, 1}}},
		{keys: "l", wantCalls: []ctrlCall{{v4l2.CtrlTestPattern, 0}}},
		{keys: "h", wantHelp: true},
		{keys: "x"},
		{keys: "af"},
		{keys: ""},
	}

	for _, tt := range tests {
		t.Run("key "+tt.keys, func(t *testing.T) {
			c, dev, _ := newTestController()
			var help bytes.Buffer

			c.HandleKeys(tt.keys, &help)

			if len(dev.calls) != len(tt.wantCalls) {
				t.Fatalf("requests = %+v, want %+v", dev.calls, tt.wantCalls)
			}
			for i := range tt.wantCalls {
				if dev.calls[i] != tt.wantCalls[i] {
					t.Errorf("request %d = %+v, want %+v", i, dev.calls[i], tt.wantCalls[i])
				}
			}
			if got := help.Len() > 0; got != tt.wantHelp {
				t.Errorf("help written = %v, want %v", got, tt.wantHelp)
			}
		})
	}
}

func TestController_HandleKeysSwallowsErrors(t *testing.T) {
	c, dev, _ := newTestController()
	dev.err = syscall.EBUSY

	c.HandleKeys("f", nil)
	if c.State() != SingleFocusStart {
		t.Errorf("state = %s, want single_focus_start", c.State())
	}
}

// gatedDevice blocks the first SetControl until release is closed.
type gatedDevice struct {
	mu      sync.Mutex
	calls   []ctrlCall
	entered chan struct{}
	release chan struct{}
}

func newGatedDevice() *gatedDevice {
	return &gatedDevice{entered: make(chan struct{}), release: make(chan struct{})}
}

func (g *gatedDevice) SetControl(id uint32, value int32) error {
	g.mu.Lock()
	first := len(g.calls) == 0
	g.calls = append(g.calls, ctrlCall{id, value})
	g.mu.Unlock()
	if first {
		close(g.entered)
		<-g.release
	}
	return nil
}

func (g *gatedDevice) last() ctrlCall {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls[len(g.calls)-1]
}

func TestController_ConcurrentFocusKeepsDeviceInStep(t *testing.T) {
	dev := newGatedDevice()
	c := NewController(dev, &recordingPublisher{})

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		_ = c.Focus(RequestAuto) // auto_focus_enabled -> idle, sends 0
	}()
	<-dev.entered

	if got := c.State(); got != Idle {
		t.Errorf("state while request in flight = %s, want idle", got)
	}

	go func() {
		defer wg.Done()
		_ = c.Focus(RequestAuto) // idle -> auto_focus_enabled, sends 1
	}()
	time.Sleep(20 * time.Millisecond)
	close(dev.release)
	wg.Wait()

	want := ctrlCall{v4l2.CtrlFocusAuto, 1}
	if c.State() != AutoFocusEnabled || dev.last() != want {
		t.Errorf("state = %s, last request = %+v; want auto_focus_enabled and %+v",
			c.State(), dev.last(), want)
	}
}

func TestController_ConcurrentPatternsKeepDeviceInStep(t *testing.T) {
	dev := newGatedDevice()
	close(dev.release)
	c := NewController(dev, &recordingPublisher{})

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 25; j++ {
				if (i+j)%5 == 0 {
					_ = c.LivePattern()
				} else {
					_ = c.CyclePattern()
				}
			}
		}(i)
	}
	wg.Wait()

	last := dev.last()
	if last.id != v4l2.CtrlTestPattern || int(last.value) != c.Pattern() {
		t.Errorf("last request = %+v, committed pattern = %d", last, c.Pattern())
	}
}
