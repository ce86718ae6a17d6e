package monitor

import (
	"encoding/json"
	"time"
)

// ProbeTally counts probe outcomes for one target.
type ProbeTally struct {
	Success int `json:"success"`
	Failure int `json:"failure"`
}

// Snapshot is a point-in-time copy of the controller's diagnostics. It
// shares no memory with the controller.
type Snapshot struct {
	State       State                 `json:"state"`
	Consecutive int                   `json:"consecutive"`
	Ticks       int                   `json:"ticks"`
	StateCounts map[State]int         `json:"stateCounts"`
	LastUp      *time.Time            `json:"lastUp,omitempty"`
	Reboots     []time.Time           `json:"reboots"`
	Uptime      time.Duration         `json:"-"`
	Probes      map[string]ProbeTally `json:"probes"`
}

// RebootCount is the number of completed reset pulses.
func (s Snapshot) RebootCount() int {
	return len(s.Reboots)
}

func (s Snapshot) MarshalJSON() ([]byte, error) {
	type plain Snapshot
	return json.Marshal(struct {
		plain
		RebootCount int    `json:"rebootCount"`
		Uptime      string `json:"uptime"`
	}{
		plain:       plain(s),
		RebootCount: s.RebootCount(),
		Uptime:      s.Uptime.String(),
	})
}

// Snapshot returns the current diagnostics. It is safe to call from any
// goroutine and never waits on a probe or a reset pulse.
func (c *Controller) Snapshot(now time.Time) Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	counts := make(map[State]int, len(c.stateCounts))
	for k, v := range c.stateCounts {
		counts[k] = v
	}
	probes := make(map[string]ProbeTally, len(c.probes))
	for k, v := range c.probes {
		probes[k] = v
	}

	s := Snapshot{
		State:       c.current,
		Consecutive: c.consecutive,
		Ticks:       c.ticks,
		StateCounts: counts,
		Reboots:     append([]time.Time(nil), c.reboots...),
		Uptime:      now.Sub(c.started),
		Probes:      probes,
	}
	if !c.lastUp.IsZero() {
		lastUp := c.lastUp
		s.LastUp = &lastUp
	}
	return s
}

// LogSnapshot writes the current diagnostics to the log.
func (c *Controller) LogSnapshot(now time.Time) {
	s := c.Snapshot(now)

	lastUp := "never"
	if s.LastUp != nil {
		lastUp = s.LastUp.Format(time.RFC3339)
	}
	counts := make(map[string]int, len(s.StateCounts))
	for k, v := range s.StateCounts {
		counts[k.String()] = v
	}

	c.log.Infow("status",
		"loop", s.Ticks,
		"state", s.State.String(),
		"consecutive", s.Consecutive,
		"stateCounts", counts,
		"lastConnection", lastUp,
		"reboots", s.Reboots,
		"rebootCount", s.RebootCount(),
		"runtime", s.Uptime.String(),
		"connections", s.Probes,
	)
}
