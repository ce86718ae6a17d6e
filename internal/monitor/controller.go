package monitor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"k8s.io/utils/clock"

	"ont-watchdog/internal/gpio"
	"ont-watchdog/internal/metrics"
	"ont-watchdog/internal/pinger"
)

// ErrActuator wraps relay failures returned from Tick and Run. The relay
// is in an unknown state when it is returned.
var ErrActuator = errors.New("actuator failure")

// Config holds the reboot policy and loop timing.
type Config struct {
	// FailureThreshold is exclusive: a reset needs more than this many
	// repeated non-up classifications after the first one.
	FailureThreshold     int
	PowerDuration        time.Duration
	MinReconnectInterval time.Duration

	SleepInterval time.Duration
	// LogFrequency logs a status snapshot every N ticks; 0 disables it.
	LogFrequency  int
	RemoteTargets []string
	LocalTargets  []string
}

// Controller classifies network health on every tick and power-cycles the
// upstream device when it has been down for too long.
type Controller struct {
	pinger  pinger.Pinger
	relay   gpio.Actuator
	config  Config
	clock   clock.Clock
	log     *zap.SugaredLogger
	started time.Time

	// previous is only touched by Tick.
	previous State

	// mu guards everything below. It is never held across a probe or a
	// reset pulse.
	mu            sync.Mutex
	current       State
	consecutive   int
	ticks         int
	lastUp        time.Time
	lastReconnect time.Time
	reboots       []time.Time
	rebooted      bool
	stateCounts   map[State]int
	probes        map[string]ProbeTally
}

// Option customizes a Controller.
type Option func(*Controller)

// WithClock replaces the wall clock, mainly for tests.
func WithClock(c clock.Clock) Option {
	return func(ctl *Controller) { ctl.clock = c }
}

// WithLogger sets the logger. The default discards everything.
func WithLogger(l *zap.SugaredLogger) Option {
	return func(ctl *Controller) { ctl.log = l }
}

// New creates a Controller in the Unknown state.
func New(p pinger.Pinger, relay gpio.Actuator, cfg Config, opts ...Option) *Controller {
	c := &Controller{
		pinger:      p,
		relay:       relay,
		config:      cfg,
		clock:       clock.RealClock{},
		log:         zap.NewNop().Sugar(),
		stateCounts: make(map[State]int),
		probes:      make(map[string]ProbeTally),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.log = c.log.With("component", "monitor")
	c.started = c.clock.Now()
	return c
}

// Run ticks every SleepInterval until ctx is cancelled or the relay fails.
// A cancelled context is a clean shutdown and returns nil.
func (c *Controller) Run(ctx context.Context) error {
	c.log.Infow("starting watchdog loop",
		"remote", c.config.RemoteTargets, "local", c.config.LocalTargets)

	for {
		if ctx.Err() != nil {
			c.log.Info("shutting down watchdog loop")
			return nil
		}

		now := c.clock.Now()
		if _, err := c.Tick(ctx, now, c.config.RemoteTargets, c.config.LocalTargets); err != nil {
			if errors.Is(err, ErrActuator) {
				return err
			}
			continue
		}

		if f := c.config.LogFrequency; f > 0 && c.tickCount()%f == 0 {
			c.LogSnapshot(now)
		}

		c.log.Debugw("sleeping", "interval", c.config.SleepInterval)
		select {
		case <-ctx.Done():
		case <-c.clock.After(c.config.SleepInterval):
		}
	}
}

// Tick runs one probe/classify/decide cycle at time now. Probes stop at
// the first responding target; local targets are only probed when every
// remote target failed. A reset pulse blocks Tick for PowerDuration.
//
// If ctx is cancelled while probing, the results are discarded and ctx's
// error is returned, so shutdown never looks like an outage.
func (c *Controller) Tick(ctx context.Context, now time.Time, remote, local []string) (State, error) {
	state := c.classify(ctx, remote, local)
	if err := ctx.Err(); err != nil {
		return Unknown, err
	}

	c.mu.Lock()
	if state == c.previous {
		c.consecutive++
	} else {
		c.consecutive = 0
	}
	from := c.current
	c.current = state
	c.ticks++
	c.stateCounts[state]++
	restored := false
	if state == Up {
		c.lastUp = now
		restored = c.rebooted
		c.rebooted = false
	}
	consecutive := c.consecutive
	due := state != Up && c.resetDueLocked(now)
	c.mu.Unlock()

	c.previous = state
	c.record(from, state, consecutive)

	if restored {
		c.log.Info("connection restored")
	}
	if !due {
		return state, nil
	}
	return state, c.pulse(now)
}

func (c *Controller) classify(ctx context.Context, remote, local []string) State {
	if pinger.Any(ctx, c.pinger, remote, c.observeProbe) {
		return Up
	}
	if len(local) == 0 {
		return RemoteDown
	}
	if pinger.Any(ctx, c.pinger, local, c.observeProbe) {
		return RemoteDown
	}
	return LocalDown
}

func (c *Controller) resetDueLocked(now time.Time) bool {
	if c.consecutive <= c.config.FailureThreshold {
		return false
	}
	return c.lastReconnect.IsZero() || now.Sub(c.lastReconnect) >= c.config.MinReconnectInterval
}

// pulse cuts power for PowerDuration. The wait is deliberately not
// cancellable: the device must never be left without power.
func (c *Controller) pulse(now time.Time) error {
	c.log.Infow("power cycling upstream device", "duration", c.config.PowerDuration)

	if err := c.relay.Engage(); err != nil {
		metrics.ActuatorErrors.Inc()
		if rerr := c.relay.Release(); rerr != nil {
			c.log.Errorw("release after failed engage", "error", rerr)
		}
		return fmt.Errorf("%w: engage: %w", ErrActuator, err)
	}

	c.clock.Sleep(c.config.PowerDuration)

	if err := c.relay.Release(); err != nil {
		metrics.ActuatorErrors.Inc()
		return fmt.Errorf("%w: release: %w", ErrActuator, err)
	}

	c.mu.Lock()
	c.lastReconnect = now
	c.reboots = append(c.reboots, now)
	c.rebooted = true
	c.mu.Unlock()

	metrics.Resets.Inc()
	c.log.Infow("power restored to upstream device")
	return nil
}

func (c *Controller) observeProbe(target string, ok bool) {
	c.mu.Lock()
	t := c.probes[target]
	if ok {
		t.Success++
	} else {
		t.Failure++
	}
	c.probes[target] = t
	c.mu.Unlock()

	metrics.ObserveProbe(target, ok)
	if ok {
		c.log.Debugw("probe ok", "target", target)
	} else {
		c.log.Warnw("probe failed", "target", target)
	}
}

func (c *Controller) record(from, to State, consecutive int) {
	if from != to {
		c.log.Infow("state changed", "from", from.String(), "to", to.String())
	}
	switch to {
	case RemoteDown:
		c.log.Warnw("all remote connections down", "consecutive", consecutive)
	case LocalDown:
		c.log.Warnw("remote and local connections down", "consecutive", consecutive)
	default:
		c.log.Debugw("tick", "state", to.String(), "consecutive", consecutive)
	}

	metrics.SetState(to.String())
	metrics.Ticks.WithLabelValues(to.String()).Inc()
	metrics.Consecutive.Set(float64(consecutive))
}

func (c *Controller) tickCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ticks
}
