package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	controlRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "control",
		Name:      "requests_total",
		Help:      "Sensor control requests by control and result",
	}, []string{"control", "result"})

	focusState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "control",
		Name:      "focus_state",
		Help:      "Current focus state (1 for the active state)",
	}, []string{"state"})

	testPattern = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "control",
		Name:      "test_pattern",
		Help:      "Current sensor test pattern, 0 is live view",
	})
)

// RecordControlRequest counts one control request.
func RecordControlRequest(control string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	controlRequests.WithLabelValues(control, result).Inc()
}

// SetFocusState marks state as active among all known states.
func SetFocusState(state string, all []string) {
	for _, s := range all {
		v := 0.0
		if s == state {
			v = 1
		}
		focusState.WithLabelValues(s).Set(v)
	}
}

// SetTestPattern sets the current test pattern.
func SetTestPattern(pattern int) {
	testPattern.Set(float64(pattern))
}
