package metrics

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCaptureStatsCache(t *testing.T) {
	ResetCaptureStats()

	SetBuffers(4, 3)
	RecordDequeue(7, 5*time.Millisecond)
	RecordDraw(2 * time.Millisecond)
	RecordRequeue()
	RecordDequeue(8, 5*time.Millisecond)
	SetFPS(29.5)

	s := GetCaptureStats()
	if s.FramesDequeued != 2 {
		t.Errorf("FramesDequeued = %d, want 2", s.FramesDequeued)
	}
	if s.FramesRendered != 1 {
		t.Errorf("FramesRendered = %d, want 1", s.FramesRendered)
	}
	if s.FramesRequeued != 1 {
		t.Errorf("FramesRequeued = %d, want 1", s.FramesRequeued)
	}
	if s.LastSequence != 8 {
		t.Errorf("LastSequence = %d, want 8", s.LastSequence)
	}
	if s.BuffersRequested != 4 || s.BuffersGranted != 3 {
		t.Errorf("buffers = %d/%d, want 4/3", s.BuffersRequested, s.BuffersGranted)
	}
	if s.FPS != 29.5 {
		t.Errorf("FPS = %v, want 29.5", s.FPS)
	}

	if got := testutil.ToFloat64(buffersGranted); got != 3 {
		t.Errorf("buffers_granted gauge = %v, want 3", got)
	}

	ResetCaptureStats()
	if s := GetCaptureStats(); s.FramesDequeued != 0 || s.FPS != 0 {
		t.Errorf("expected empty stats after reset, got %+v", s)
	}
}

func TestSetSessionStateOneHot(t *testing.T) {
	SetSessionState("streaming")

	for _, state := range sessionStates {
		want := 0.0
		if state == "streaming" {
			want = 1
		}
		if got := testutil.ToFloat64(sessionState.WithLabelValues(state)); got != want {
			t.Errorf("state %q = %v, want %v", state, got, want)
		}
	}

	if got := GetCaptureStats().State; got != "streaming" {
		t.Errorf("cached state = %q, want streaming", got)
	}
}

func TestRecordError(t *testing.T) {
	before := testutil.ToFloat64(streamErrors.WithLabelValues("stream_io"))
	RecordError("stream_io")
	after := testutil.ToFloat64(streamErrors.WithLabelValues("stream_io"))
	if after-before != 1 {
		t.Errorf("errors_total delta = %v, want 1", after-before)
	}
}

func TestRecordControlRequest(t *testing.T) {
	okBefore := testutil.ToFloat64(controlRequests.WithLabelValues("focus_auto", "ok"))
	errBefore := testutil.ToFloat64(controlRequests.WithLabelValues("focus_auto", "error"))

	RecordControlRequest("focus_auto", nil)
	RecordControlRequest("focus_auto", errors.New("EINVAL"))

	if d := testutil.ToFloat64(controlRequests.WithLabelValues("focus_auto", "ok")) - okBefore; d != 1 {
		t.Errorf("ok delta = %v, want 1", d)
	}
	if d := testutil.ToFloat64(controlRequests.WithLabelValues("focus_auto", "error")) - errBefore; d != 1 {
		t.Errorf("error delta = %v, want 1", d)
	}
}

func TestConcurrentCaptureAccess(t *testing.T) {
	ResetCaptureStats()
	var wg sync.WaitGroup

	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range 100 {
				RecordDequeue(uint32(i), time.Millisecond)
				_ = GetCaptureStats()
			}
		}()
	}

	wg.Wait()

	if got := GetCaptureStats().FramesDequeued; got != 1000 {
		t.Errorf("FramesDequeued = %d, want 1000", got)
	}
}
