package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"

	"ont-watchdog/internal/gpio"
	"ont-watchdog/internal/monitor"
	"ont-watchdog/internal/pinger"
)

type Config struct {
	Verbosity    int    `yaml:"verbosity"`
	LogFormat    string `yaml:"log_format"`
	LogFrequency int    `yaml:"log_frequency"`

	RelayPin     int    `yaml:"relay_pin"`
	PinMode      string `yaml:"pin_mode"`
	GPIODriver   string `yaml:"gpio_driver"`
	ActiveLow    bool   `yaml:"active_low"`
	ModbusAddr   string `yaml:"modbus_addr"`
	ModbusUnitID uint8  `yaml:"modbus_unit_id"`
	ModbusCoil   uint16 `yaml:"modbus_coil"`

	AllowableFailures int           `yaml:"allowable_consecutive_failures"`
	SleepInterval     time.Duration `yaml:"sleep_interval"`
	PowerDuration     time.Duration `yaml:"power_duration"`
	MinRebootInterval time.Duration `yaml:"min_reboot_interval"`
	ProbeTimeout      time.Duration `yaml:"probe_timeout"`
	Privileged        bool          `yaml:"privileged"`

	ServerList      []string `yaml:"server_list"`
	LocalServerList []string `yaml:"local_server_list"`

	MetricsAddr string `yaml:"metrics_addr"`
}

// configError marks problems found before the watchdog touches the relay.
type configError struct {
	err error
}

func (e *configError) Error() string { return "config error: " + e.err.Error() }
func (e *configError) Unwrap() error { return e.err }

func DefaultConfig() Config {
	return Config{
		Verbosity:         20,
		LogFormat:         "json",
		LogFrequency:      100,
		RelayPin:          4,
		PinMode:           "BCM",
		GPIODriver:        gpio.DriverPeriph,
		ActiveLow:         true,
		ModbusUnitID:      1,
		AllowableFailures: 2,
		SleepInterval:     45 * time.Second,
		PowerDuration:     60 * time.Second,
		MinRebootInterval: 240 * time.Second,
		ProbeTimeout:      3 * time.Second,
		Privileged:        true,
		ServerList:        []string{"www.google.com", "4.2.2.1"},
		LocalServerList:   []string{"10.20.0.1", "10.20.0.50"},
	}
}

// LoadConfig resolves the effective configuration: defaults, then the
// optional YAML file, then WATCHDOG_* environment variables, then any
// flags set on the command line.
func LoadConfig(path string, flags *pflag.FlagSet) (Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		if err := loadConfigFile(path, &cfg); err != nil {
			return cfg, err
		}
	}
	if err := applyEnv(&cfg); err != nil {
		return cfg, err
	}
	if flags != nil {
		if err := overlayFlags(flags, &cfg); err != nil {
			return cfg, err
		}
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func loadConfigFile(path string, cfg *Config) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open config: %w", err)
	}
	defer f.Close()

	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	// An empty file keeps the defaults.
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}

func applyEnv(cfg *Config) error {
	var err error

	if cfg.Verbosity, err = envInt("WATCHDOG_VERBOSITY", cfg.Verbosity); err != nil {
		return err
	}
	if v := os.Getenv("WATCHDOG_LOG_FORMAT"); v != "" {
		cfg.LogFormat = v
	}
	if cfg.LogFrequency, err = envInt("WATCHDOG_LOG_FREQUENCY", cfg.LogFrequency); err != nil {
		return err
	}
	if cfg.RelayPin, err = envInt("WATCHDOG_RELAY_PIN", cfg.RelayPin); err != nil {
		return err
	}
	if v := os.Getenv("WATCHDOG_PIN_MODE"); v != "" {
		cfg.PinMode = v
	}
	if v := os.Getenv("WATCHDOG_GPIO_DRIVER"); v != "" {
		cfg.GPIODriver = v
	}
	if cfg.ActiveLow, err = envBool("WATCHDOG_ACTIVE_LOW", cfg.ActiveLow); err != nil {
		return err
	}
	if v := os.Getenv("WATCHDOG_MODBUS_ADDR"); v != "" {
		cfg.ModbusAddr = v
	}
	if v := os.Getenv("WATCHDOG_MODBUS_UNIT_ID"); v != "" {
		n, err := strconv.ParseUint(v, 10, 8)
		if err != nil {
			return fmt.Errorf("invalid WATCHDOG_MODBUS_UNIT_ID: %w", err)
		}
		cfg.ModbusUnitID = uint8(n)
	}
	if v := os.Getenv("WATCHDOG_MODBUS_COIL"); v != "" {
		n, err := strconv.ParseUint(v, 10, 16)
		if err != nil {
			return fmt.Errorf("invalid WATCHDOG_MODBUS_COIL: %w", err)
		}
		cfg.ModbusCoil = uint16(n)
	}
	if cfg.AllowableFailures, err = envInt("WATCHDOG_ALLOWABLE_FAILURES", cfg.AllowableFailures); err != nil {
		return err
	}
	if cfg.SleepInterval, err = envDuration("WATCHDOG_SLEEP_INTERVAL", cfg.SleepInterval); err != nil {
		return err
	}
	if cfg.PowerDuration, err = envDuration("WATCHDOG_POWER_DURATION", cfg.PowerDuration); err != nil {
		return err
	}
	if cfg.MinRebootInterval, err = envDuration("WATCHDOG_MIN_REBOOT_INTERVAL", cfg.MinRebootInterval); err != nil {
		return err
	}
	if cfg.ProbeTimeout, err = envDuration("WATCHDOG_PROBE_TIMEOUT", cfg.ProbeTimeout); err != nil {
		return err
	}
	if cfg.Privileged, err = envBool("WATCHDOG_PRIVILEGED", cfg.Privileged); err != nil {
		return err
	}

	if v, ok := os.LookupEnv("WATCHDOG_SERVER_LIST"); ok {
		cfg.ServerList = splitList(v)
		if len(cfg.ServerList) == 0 {
			return fmt.Errorf("WATCHDOG_SERVER_LIST is set but contains no valid targets")
		}
	}
	// An empty local list is allowed and disables local checks.
	if v, ok := os.LookupEnv("WATCHDOG_LOCAL_SERVER_LIST"); ok {
		cfg.LocalServerList = splitList(v)
	}

	if v := os.Getenv("WATCHDOG_METRICS_ADDR"); v != "" {
		cfg.MetricsAddr = v
	}
	return nil
}

// Validate rejects configurations the watchdog cannot run with.
func (c Config) Validate() error {
	if c.Verbosity < 0 || c.Verbosity > 50 {
		return fmt.Errorf("verbosity %d out of range 0-50", c.Verbosity)
	}
	if c.LogFormat != "json" && c.LogFormat != "console" {
		return fmt.Errorf("log format must be json or console, got %q", c.LogFormat)
	}
	if c.LogFrequency < 0 {
		return fmt.Errorf("log frequency must not be negative")
	}
	if _, err := c.GPIO(); err != nil {
		return err
	}
	if c.AllowableFailures < 0 {
		return fmt.Errorf("allowable consecutive failures must not be negative")
	}
	if c.SleepInterval <= 0 {
		return fmt.Errorf("sleep interval must be positive")
	}
	if c.PowerDuration <= 0 {
		return fmt.Errorf("power duration must be positive")
	}
	if c.MinRebootInterval < 0 {
		return fmt.Errorf("min reboot interval must not be negative")
	}
	if c.ProbeTimeout <= 0 {
		return fmt.Errorf("probe timeout must be positive")
	}
	if len(c.ServerList) == 0 {
		return fmt.Errorf("at least one remote server is required")
	}
	for _, t := range c.ServerList {
		if err := pinger.ValidateTarget(t); err != nil {
			return fmt.Errorf("server %q: %w", t, err)
		}
	}
	for _, t := range c.LocalServerList {
		if err := pinger.ValidateTarget(t); err != nil {
			return fmt.Errorf("local server %q: %w", t, err)
		}
	}
	return nil
}

// GPIO returns the relay driver configuration.
func (c Config) GPIO() (gpio.Config, error) {
	mode, err := gpio.ParsePinMode(c.PinMode)
	if err != nil {
		return gpio.Config{}, err
	}
	if _, err := mode.BCM(c.RelayPin); err != nil && c.GPIODriver != gpio.DriverModbus {
		return gpio.Config{}, err
	}
	switch c.GPIODriver {
	case gpio.DriverPeriph, gpio.DriverPinctrl:
	case gpio.DriverModbus:
		if c.ModbusAddr == "" {
			return gpio.Config{}, fmt.Errorf("gpio driver modbus requires modbus address")
		}
	default:
		return gpio.Config{}, fmt.Errorf("unknown gpio driver %q", c.GPIODriver)
	}
	return gpio.Config{
		Driver:        c.GPIODriver,
		Pin:           c.RelayPin,
		Mode:          mode,
		ActiveLow:     c.ActiveLow,
		ModbusAddr:    c.ModbusAddr,
		ModbusUnitID:  c.ModbusUnitID,
		ModbusCoil:    c.ModbusCoil,
		ModbusTimeout: c.ProbeTimeout,
	}, nil
}

// Monitor returns the controller configuration.
func (c Config) Monitor() monitor.Config {
	return monitor.Config{
		FailureThreshold:     c.AllowableFailures,
		PowerDuration:        c.PowerDuration,
		MinReconnectInterval: c.MinRebootInterval,
		SleepInterval:        c.SleepInterval,
		LogFrequency:         c.LogFrequency,
		RemoteTargets:        c.ServerList,
		LocalTargets:         c.LocalServerList,
	}
}

func splitList(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func envInt(key string, defaultVal int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

func envBool(key string, defaultVal bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("invalid %s: %w", key, err)
	}
	return b, nil
}

func envDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}
