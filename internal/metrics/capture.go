// Package metrics provides Prometheus metrics for the capture loop and sensor controls.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "glcapture"

// Session states exported as a one-hot gauge.
var sessionStates = []string{"starting", "priming", "streaming", "stopped", "failed"}

var (
	framesDequeued = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "capture",
		Name:      "frames_dequeued_total",
		Help:      "Buffers dequeued from the capture device",
	})

	framesRendered = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "capture",
		Name:      "frames_rendered_total",
		Help:      "Frames the renderer accepted",
	})

	framesRequeued = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "capture",
		Name:      "frames_requeued_total",
		Help:      "Buffers returned to the capture device",
	})

	streamErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "capture",
		Name:      "errors_total",
		Help:      "Capture errors by kind",
	}, []string{"kind"})

	dequeueWait = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "capture",
		Name:      "dequeue_wait_seconds",
		Help:      "Time blocked in VIDIOC_DQBUF",
		Buckets:   prometheus.ExponentialBuckets(0.001, 2, 10),
	})

	drawDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "render",
		Name:      "draw_seconds",
		Help:      "Time spent in the renderer per frame",
		Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 10),
	})

	buffersRequested = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "capture",
		Name:      "buffers_requested",
		Help:      "Buffers requested from the driver",
	})

	buffersGranted = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "capture",
		Name:      "buffers_granted",
		Help:      "Buffers granted by the driver",
	})

	captureFPS = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "capture",
		Name:      "fps",
		Help:      "Rendered frames per second over the last interval",
	})

	sessionState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "session",
		Name:      "state",
		Help:      "Current capture session state (1 for the active state)",
	}, []string{"state"})

	// Local cache for status and stats exporter access.
	captureCache   CaptureStats
	captureCacheMu sync.RWMutex
)

// CaptureStats holds current capture values.
type CaptureStats struct {
	FramesDequeued   uint64
	FramesRendered   uint64
	FramesRequeued   uint64
	LastSequence     uint32
	FPS              float64
	BuffersRequested int
	BuffersGranted   int
	State            string
}

// RecordDequeue counts a dequeued buffer and how long the dequeue blocked.
func RecordDequeue(sequence uint32, wait time.Duration) {
	framesDequeued.Inc()
	dequeueWait.Observe(wait.Seconds())
	updateCapture(func(s *CaptureStats) {
		s.FramesDequeued++
		s.LastSequence = sequence
	})
}

// RecordDraw counts a frame the renderer drew and how long it took.
func RecordDraw(d time.Duration) {
	framesRendered.Inc()
	drawDuration.Observe(d.Seconds())
	updateCapture(func(s *CaptureStats) { s.FramesRendered++ })
}

// RecordRequeue counts a buffer handed back to the driver.
func RecordRequeue() {
	framesRequeued.Inc()
	updateCapture(func(s *CaptureStats) { s.FramesRequeued++ })
}

// RecordError counts a capture error of the given kind.
func RecordError(kind string) {
	streamErrors.WithLabelValues(kind).Inc()
}

// SetBuffers records the requested and granted pool size.
func SetBuffers(requested, granted int) {
	buffersRequested.Set(float64(requested))
	buffersGranted.Set(float64(granted))
	updateCapture(func(s *CaptureStats) {
		s.BuffersRequested = requested
		s.BuffersGranted = granted
	})
}

// SetFPS sets the current rendered frame rate.
func SetFPS(fps float64) {
	captureFPS.Set(fps)
	updateCapture(func(s *CaptureStats) { s.FPS = fps })
}

// SetSessionState marks state as the active session state.
func SetSessionState(state string) {
	for _, s := range sessionStates {
		v := 0.0
		if s == state {
			v = 1
		}
		sessionState.WithLabelValues(s).Set(v)
	}
	updateCapture(func(s *CaptureStats) { s.State = state })
}

// GetCaptureStats returns a copy of the current capture values.
func GetCaptureStats() CaptureStats {
	captureCacheMu.RLock()
	defer captureCacheMu.RUnlock()
	return captureCache
}

// ResetCaptureStats clears the cache at the start of a session.
// Prometheus counters keep counting.
func ResetCaptureStats() {
	captureCacheMu.Lock()
	captureCache = CaptureStats{}
	captureCacheMu.Unlock()
	captureFPS.Set(0)
}

func updateCapture(update func(*CaptureStats)) {
	captureCacheMu.Lock()
	defer captureCacheMu.Unlock()
	update(&captureCache)
}
