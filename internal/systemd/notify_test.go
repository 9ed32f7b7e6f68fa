package systemd

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type recorder struct {
	mu     sync.Mutex
	states []string
	err    error
}

func (r *recorder) notify(state string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states = append(r.states, state)
	return r.err == nil, r.err
}

func (r *recorder) count(state string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, s := range r.states {
		if s == state {
			n++
		}
	}
	return n
}

func newTestNotifier(rec *recorder, interval time.Duration) *Notifier {
	return &Notifier{
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		notify:   rec.notify,
		watchdog: func() (time.Duration, error) { return interval, nil },
	}
}

func TestNotifierStates(t *testing.T) {
	rec := &recorder{}
	n := newTestNotifier(rec, 0)

	n.Ready()
	n.Status("streaming %.1f fps", 29.97)
	n.Stopping()

	want := []string{"READY=1", "STATUS=streaming 30.0 fps", "STOPPING=1"}
	if len(rec.states) != len(want) {
		t.Fatalf("states = %v, want %v", rec.states, want)
	}
	for i := range want {
		if rec.states[i] != want[i] {
			t.Errorf("state %d = %q, want %q", i, rec.states[i], want[i])
		}
	}
}

func TestNotifierErrorIsNotFatal(t *testing.T) {
	rec := &recorder{err: errors.New("socket gone")}
	n := newTestNotifier(rec, 0)
	n.Ready()
	if rec.count("READY=1") != 1 {
		t.Error("expected one attempt")
	}
}

func TestWatchdogPingsOnlyOnProgress(t *testing.T) {
	rec := &recorder{}
	n := newTestNotifier(rec, 20*time.Millisecond)

	var frames atomic.Uint64
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	n.StartWatchdog(ctx, frames.Load)

	// Stalled: no pings.
	time.Sleep(50 * time.Millisecond)
	if got := rec.count("WATCHDOG=1"); got != 0 {
		t.Fatalf("pings while stalled = %d, want 0", got)
	}

	// Progressing: pings resume.
	deadline := time.Now().Add(time.Second)
	for rec.count("WATCHDOG=1") == 0 && time.Now().Before(deadline) {
		frames.Add(1)
		time.Sleep(5 * time.Millisecond)
	}
	if rec.count("WATCHDOG=1") == 0 {
		t.Error("no watchdog ping while making progress")
	}
}

func TestWatchdogDisabled(t *testing.T) {
	rec := &recorder{}
	n := newTestNotifier(rec, 0)
	n.StartWatchdog(context.Background(), func() uint64 { return 0 })
	time.Sleep(10 * time.Millisecond)
	if len(rec.states) != 0 {
		t.Errorf("unexpected notifications: %v", rec.states)
	}
}
