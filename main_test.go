package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	"k8s.io/utils/clock"

	"ont-watchdog/internal/gpio"
	"ont-watchdog/internal/monitor"
	"ont-watchdog/internal/pinger"
)

type countingRelay struct {
	mu        sync.Mutex
	engageErr error
	engages   int
	cleanups  int
}

func (r *countingRelay) Engage() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.engages++
	return r.engageErr
}

func (r *countingRelay) Release() error { return nil }

func (r *countingRelay) Cleanup() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cleanups++
}

func (r *countingRelay) cleanupCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cleanups
}

type funcPinger func(ctx context.Context, target string) bool

func (f funcPinger) Ping(ctx context.Context, target string) bool { return f(ctx, target) }

func testDeps(relay *countingRelay, p pinger.Pinger) (deps, *int) {
	built := 0
	return deps{
		newActuator: func(gpio.Config, *zap.SugaredLogger) (gpio.Actuator, error) {
			built++
			return relay, nil
		},
		newPinger: func(time.Duration, bool) pinger.Pinger { return p },
		clock:     clock.RealClock{},
		diagnostics: func(chan<- os.Signal) func() {
			return func() {}
		},
	}, &built
}

func fastTestConfig() Config {
	cfg := DefaultConfig()
	cfg.SleepInterval = time.Millisecond
	cfg.PowerDuration = time.Millisecond
	cfg.AllowableFailures = 0
	cfg.LocalServerList = nil
	return cfg
}

func TestRunCleansUpOnShutdown(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var calls atomic.Int32
	relay := &countingRelay{}
	d, _ := testDeps(relay, funcPinger(func(context.Context, string) bool {
		if calls.Add(1) == 5 {
			cancel()
		}
		return true
	}))

	require.NoError(t, run(ctx, fastTestConfig(), zap.NewNop().Sugar(), d))
	assert.Equal(t, 1, relay.cleanupCount())
	assert.Equal(t, 0, relay.engages)
}

func TestRunCleansUpOnActuatorFailure(t *testing.T) {
	relay := &countingRelay{engageErr: errors.New("gpio busy")}
	d, _ := testDeps(relay, funcPinger(func(context.Context, string) bool { return false }))

	err := run(context.Background(), fastTestConfig(), zap.NewNop().Sugar(), d)
	require.ErrorIs(t, err, monitor.ErrActuator)
	assert.Equal(t, 1, relay.cleanupCount())
}

func TestRunActuatorInitFailure(t *testing.T) {
	d, _ := testDeps(nil, nil)
	d.newActuator = func(gpio.Config, *zap.SugaredLogger) (gpio.Actuator, error) {
		return nil, errors.New("no such pin")
	}

	err := run(context.Background(), fastTestConfig(), zap.NewNop().Sugar(), d)
	assert.ErrorContains(t, err, "gpio init")
}

func TestRunDumpsSnapshotOnSignal(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	relay := &countingRelay{}
	d, _ := testDeps(relay, funcPinger(func(context.Context, string) bool { return true }))
	var sigs chan<- os.Signal
	registered := make(chan struct{})
	d.diagnostics = func(ch chan<- os.Signal) func() {
		sigs = ch
		close(registered)
		return func() {}
	}

	cfg := fastTestConfig()
	cfg.LogFrequency = 0

	done := make(chan error)
	go func() { done <- run(ctx, cfg, zap.New(core).Sugar(), d) }()

	<-registered
	sigs <- os.Interrupt
	require.Eventually(t, func() bool {
		return logs.FilterMessage("status").Len() > 0
	}, 2*time.Second, time.Millisecond)

	cancel()
	require.NoError(t, <-done)
	assert.Equal(t, 1, relay.cleanupCount())
}

func TestCommandRejectsBadConfigBeforeRelay(t *testing.T) {
	relay := &countingRelay{}
	d, built := testDeps(relay, funcPinger(func(context.Context, string) bool { return true }))

	cmd := newRootCommand(d)
	cmd.SetArgs([]string{"--pin-mode", "WIRING"})
	err := cmd.Execute()

	var ce *configError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, 0, *built)
	assert.Equal(t, 0, relay.cleanupCount())
}

func TestCommandRunsUntilCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var calls atomic.Int32
	relay := &countingRelay{}
	d, built := testDeps(relay, funcPinger(func(_ context.Context, target string) bool {
		assert.Equal(t, "tcp://127.0.0.1:9", target)
		if calls.Add(1) == 3 {
			cancel()
		}
		return true
	}))

	cmd := newRootCommand(d)
	cmd.SetArgs([]string{
		"--server-list", "tcp://127.0.0.1:9",
		"--local-server-list=",
		"--sleep-interval", "1ms",
		"--verbosity", "40",
	})
	require.NoError(t, cmd.ExecuteContext(ctx))
	assert.Equal(t, 1, *built)
	assert.Equal(t, 1, relay.cleanupCount())
}

func TestCommandVersion(t *testing.T) {
	d, built := testDeps(&countingRelay{}, nil)
	cmd := newRootCommand(d)
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"-V"})

	require.NoError(t, cmd.Execute())
	assert.Contains(t, out.String(), "ont-watchdog")
	assert.Equal(t, 0, *built)
}

func TestStatusEndpoint(t *testing.T) {
	ctl := monitor.New(funcPinger(func(context.Context, string) bool { return true }), &countingRelay{}, fastTestConfig().Monitor())
	_, err := ctl.Tick(context.Background(), time.Now(), []string{"4.2.2.1"}, nil)
	require.NoError(t, err)

	srv := httptest.NewServer(statusMux(ctl, clock.RealClock{}))
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL + "/status")
	require.NoError(t, err)
	defer resp.Body.Close()

	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "up", body["state"])
	assert.Equal(t, float64(1), body["ticks"])

	metrics, err := srv.Client().Get(srv.URL + "/metrics")
	require.NoError(t, err)
	metrics.Body.Close()
	assert.Equal(t, 200, metrics.StatusCode)
}

func TestVerbosityLevel(t *testing.T) {
	assert.Equal(t, zapcore.DebugLevel, verbosityLevel(10))
	assert.Equal(t, zapcore.InfoLevel, verbosityLevel(20))
	assert.Equal(t, zapcore.WarnLevel, verbosityLevel(30))
	assert.Equal(t, zapcore.ErrorLevel, verbosityLevel(40))
	assert.Equal(t, zapcore.ErrorLevel, verbosityLevel(50))
}
