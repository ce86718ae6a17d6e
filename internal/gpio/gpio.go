package gpio

import (
	"fmt"
	"time"

	"go.uber.org/zap"
)

// Actuator drives the reset relay.
type Actuator interface {
	Engage() error  // Cut power
	Release() error // Restore power
	// Cleanup restores the idle level. It is safe to call more than once
	// and never fails; errors are logged.
	Cleanup()
}

// Driver names accepted by New.
const (
	DriverPeriph  = "periph"
	DriverPinctrl = "pinctrl"
	DriverModbus  = "modbus"
)

// Config selects and parameterizes a relay driver.
type Config struct {
	Driver string
	Pin    int
	Mode   PinMode
	// ActiveLow relays reset the device when the line is driven low and
	// idle high.
	ActiveLow bool

	ModbusAddr    string
	ModbusUnitID  uint8
	ModbusCoil    uint16
	ModbusTimeout time.Duration
}

// New builds the configured driver and puts the relay in its idle state.
func New(cfg Config, log *zap.SugaredLogger) (Actuator, error) {
	log = log.With("component", "gpio", "driver", cfg.Driver)

	switch cfg.Driver {
	case DriverPeriph, "":
		name, err := cfg.Mode.LineName(cfg.Pin)
		if err != nil {
			return nil, err
		}
		return NewPeriphRelay(name, cfg.ActiveLow, log)
	case DriverPinctrl:
		line, err := cfg.Mode.BCM(cfg.Pin)
		if err != nil {
			return nil, err
		}
		return NewPinctrlRelay(line, cfg.ActiveLow, log)
	case DriverModbus:
		return DialModbusRelay(cfg.ModbusAddr, cfg.ModbusUnitID, cfg.ModbusCoil, cfg.ModbusTimeout, cfg.ActiveLow, log)
	default:
		return nil, fmt.Errorf("unknown gpio driver %q", cfg.Driver)
	}
}

// levels returns the (engaged, idle) logical levels for a relay polarity.
func levels(activeLow bool) (engaged, idle bool) {
	if activeLow {
		return false, true
	}
	return true, false
}
