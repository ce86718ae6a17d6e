package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	stateGauge = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "ont_watchdog_state",
		Help: "Current network health classification (1=active, 0=inactive)",
	}, []string{"state"})

	Ticks = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ont_watchdog_ticks_total",
		Help: "Total number of evaluation ticks by classified state",
	}, []string{"state"})

	Consecutive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "ont_watchdog_consecutive_ticks",
		Help: "Number of consecutive ticks the current state has held, minus one",
	})

	Resets = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ont_watchdog_resets_total",
		Help: "Total number of completed relay reset pulses",
	})

	ActuatorErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ont_watchdog_actuator_errors_total",
		Help: "Total number of relay engage/release failures",
	})

	probes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ont_watchdog_probes_total",
		Help: "Total number of probes by target and result",
	}, []string{"target", "result"})

	allStates = []string{"unknown", "up", "remote_down", "local_down"}
)

// SetState sets the active state gauge. The given state is set to 1,
// all others to 0.
func SetState(state string) {
	for _, s := range allStates {
		if s == state {
			stateGauge.WithLabelValues(s).Set(1)
		} else {
			stateGauge.WithLabelValues(s).Set(0)
		}
	}
}

// ObserveProbe counts one probe outcome for target.
func ObserveProbe(target string, ok bool) {
	result := "failure"
	if ok {
		result = "success"
	}
	probes.WithLabelValues(target, result).Inc()
}
