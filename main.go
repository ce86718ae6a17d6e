package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
	"k8s.io/utils/clock"

	"ont-watchdog/internal/gpio"
	"ont-watchdog/internal/monitor"
	"ont-watchdog/internal/pinger"
	"ont-watchdog/internal/version"
)

// deps are the collaborators run wires together; tests replace them.
type deps struct {
	newActuator func(gpio.Config, *zap.SugaredLogger) (gpio.Actuator, error)
	newPinger   func(timeout time.Duration, privileged bool) pinger.Pinger
	clock       clock.Clock
	diagnostics func(chan<- os.Signal) (stop func())
}

func defaultDeps() deps {
	return deps{
		newActuator: gpio.New,
		newPinger: func(timeout time.Duration, privileged bool) pinger.Pinger {
			return pinger.New(timeout, privileged)
		},
		clock: clock.RealClock{},
		diagnostics: func(ch chan<- os.Signal) func() {
			signal.Notify(ch, syscall.SIGUSR1)
			return func() { signal.Stop(ch) }
		},
	}
}

func main() {
	cmd := newRootCommand(defaultDeps())
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "ont-watchdog: %v\n", err)
		var ce *configError
		if errors.As(err, &ce) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}

func newRootCommand(d deps) *cobra.Command {
	var (
		configPath  string
		showVersion bool
		flagCfg     = DefaultConfig()
	)

	cmd := &cobra.Command{
		Use:           "ont-watchdog",
		Short:         "Power-cycle the upstream network device when the connection stays down",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if showVersion {
				fmt.Fprintln(cmd.OutOrStdout(), version.GetBuildInfo())
				return nil
			}

			cfg, err := LoadConfig(configPath, cmd.Flags())
			if err != nil {
				return &configError{err: err}
			}

			logger, err := newLogger(cfg.Verbosity, cfg.LogFormat)
			if err != nil {
				return err
			}
			defer logger.Sync()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			return run(ctx, cfg, logger.Sugar(), d)
		},
	}

	cmd.Flags().StringVar(&configPath, "config", os.Getenv("WATCHDOG_CONFIG"), "path to a YAML config file")
	cmd.Flags().BoolVarP(&showVersion, "version", "V", false, "print version and exit")
	bindFlags(cmd.Flags(), &flagCfg)
	return cmd
}

func bindFlags(fs *pflag.FlagSet, c *Config) {
	fs.IntVarP(&c.Verbosity, "verbosity", "v", c.Verbosity, "the logging verbosity (10 debug, 20 info, 30 warning, 40 error)")
	fs.StringVar(&c.LogFormat, "log-format", c.LogFormat, "log encoding: json or console")
	fs.IntVar(&c.LogFrequency, "log-frequency", c.LogFrequency, "how often to log connection stats in loops, 0 for never")
	fs.IntVarP(&c.RelayPin, "relay-pin", "p", c.RelayPin, "the relay's gpio pin (see --pin-mode)")
	fs.StringVarP(&c.PinMode, "pin-mode", "m", c.PinMode, "pin numbering: BCM (logical) or BOARD (physical)")
	fs.StringVar(&c.GPIODriver, "gpio-driver", c.GPIODriver, "relay driver: periph, pinctrl or modbus")
	fs.BoolVar(&c.ActiveLow, "active-low", c.ActiveLow, "relay cuts power when the line is driven low")
	fs.StringVar(&c.ModbusAddr, "modbus-addr", c.ModbusAddr, "host:port of a Modbus TCP relay board")
	fs.Uint8Var(&c.ModbusUnitID, "modbus-unit-id", c.ModbusUnitID, "Modbus unit id of the relay board")
	fs.Uint16Var(&c.ModbusCoil, "modbus-coil", c.ModbusCoil, "Modbus coil address of the relay")
	fs.IntVar(&c.AllowableFailures, "allowable-consecutive-failures", c.AllowableFailures, "number of failures to allow before rebooting relay")
	fs.DurationVarP(&c.SleepInterval, "sleep-interval", "s", c.SleepInterval, "time to sleep between checks")
	fs.DurationVar(&c.PowerDuration, "power-duration", c.PowerDuration, "time to keep the relay off for")
	fs.DurationVar(&c.MinRebootInterval, "min-reboot-interval", c.MinRebootInterval, "minimum time between two reboots")
	fs.DurationVar(&c.ProbeTimeout, "probe-timeout", c.ProbeTimeout, "per-target probe timeout")
	fs.BoolVar(&c.Privileged, "privileged", c.Privileged, "use raw ICMP sockets (needs CAP_NET_RAW)")
	fs.StringSliceVar(&c.ServerList, "server-list", c.ServerList, "servers to ping to verify remote connections")
	fs.StringSliceVar(&c.LocalServerList, "local-server-list", c.LocalServerList, "servers to ping to verify local connections, empty disables")
	fs.StringVar(&c.MetricsAddr, "metrics-addr", c.MetricsAddr, "address for /metrics and /status, empty disables")
}

// overlayFlags copies every flag the user set onto cfg.
func overlayFlags(set *pflag.FlagSet, cfg *Config) error {
	target := pflag.NewFlagSet("overlay", pflag.ContinueOnError)
	bindFlags(target, cfg)

	var err error
	set.Visit(func(f *pflag.Flag) {
		dst := target.Lookup(f.Name)
		if err != nil || dst == nil {
			return
		}
		if sv, ok := f.Value.(pflag.SliceValue); ok {
			err = dst.Value.(pflag.SliceValue).Replace(sv.GetSlice())
			return
		}
		err = dst.Value.Set(f.Value.String())
	})
	return err
}

// run owns the relay for the lifetime of the loop. Cleanup runs exactly
// once on every path after the relay was acquired.
func run(ctx context.Context, cfg Config, log *zap.SugaredLogger, d deps) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	log.Infow("starting ont-watchdog",
		"version", version.Version,
		"servers", cfg.ServerList,
		"localServers", cfg.LocalServerList,
		"relayPin", cfg.RelayPin,
		"pinMode", cfg.PinMode,
		"gpioDriver", cfg.GPIODriver,
		"allowableFailures", cfg.AllowableFailures,
		"sleepInterval", cfg.SleepInterval,
		"powerDuration", cfg.PowerDuration,
		"minRebootInterval", cfg.MinRebootInterval,
		"metricsAddr", cfg.MetricsAddr,
	)

	gcfg, err := cfg.GPIO()
	if err != nil {
		return &configError{err: err}
	}
	relay, err := d.newActuator(gcfg, log)
	if err != nil {
		return fmt.Errorf("gpio init: %w", err)
	}
	defer relay.Cleanup()

	ctl := monitor.New(
		d.newPinger(cfg.ProbeTimeout, cfg.Privileged),
		relay,
		cfg.Monitor(),
		monitor.WithLogger(log),
		monitor.WithClock(d.clock),
	)

	sigs := make(chan os.Signal, 1)
	stopDiag := d.diagnostics(sigs)
	defer stopDiag()
	go dumpOnSignal(ctx, sigs, ctl, d.clock)

	if cfg.MetricsAddr != "" {
		srv := startStatusServer(cfg.MetricsAddr, ctl, d.clock, log)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				log.Warnw("status server shutdown", "error", err)
			}
		}()
	}

	if err := ctl.Run(ctx); err != nil {
		log.Errorw("watchdog stopped", "error", err)
		return err
	}
	log.Info("watchdog stopped")
	return nil
}

func dumpOnSignal(ctx context.Context, sigs <-chan os.Signal, ctl *monitor.Controller, clk clock.PassiveClock) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-sigs:
			ctl.LogSnapshot(clk.Now())
		}
	}
}
