package gpio

import (
	"fmt"
	"sync"

	"go.uber.org/zap"
	"periph.io/x/periph/conn/gpio"
	"periph.io/x/periph/conn/gpio/gpioreg"
	"periph.io/x/periph/host"
)

// outPin is the subset of gpio.PinIO the relay needs.
type outPin interface {
	Name() string
	Out(l gpio.Level) error
}

// PeriphRelay drives a relay through periph.io's host drivers.
type PeriphRelay struct {
	pin       outPin
	activeLow bool
	log       *zap.SugaredLogger
	cleanup   sync.Once
}

// NewPeriphRelay initializes the host drivers, looks up the named line and
// drives it to the idle level.
func NewPeriphRelay(name string, activeLow bool, log *zap.SugaredLogger) (*PeriphRelay, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("periph host init: %w", err)
	}
	p := gpioreg.ByName(name)
	if p == nil {
		return nil, fmt.Errorf("gpio line %s not found", name)
	}
	return newPeriphRelay(p, activeLow, log)
}

func newPeriphRelay(p outPin, activeLow bool, log *zap.SugaredLogger) (*PeriphRelay, error) {
	r := &PeriphRelay{pin: p, activeLow: activeLow, log: log}
	if err := r.Release(); err != nil {
		return nil, fmt.Errorf("gpio set idle: %w", err)
	}
	log.Infow("relay initialized", "pin", p.Name(), "activeLow", activeLow)
	return r, nil
}

func (r *PeriphRelay) Engage() error {
	engaged, _ := levels(r.activeLow)
	if err := r.pin.Out(gpio.Level(engaged)); err != nil {
		return fmt.Errorf("%s engage: %w", r.pin.Name(), err)
	}
	return nil
}

func (r *PeriphRelay) Release() error {
	_, idle := levels(r.activeLow)
	if err := r.pin.Out(gpio.Level(idle)); err != nil {
		return fmt.Errorf("%s release: %w", r.pin.Name(), err)
	}
	return nil
}

func (r *PeriphRelay) Cleanup() {
	r.cleanup.Do(func() {
		if err := r.Release(); err != nil {
			r.log.Errorw("failed to restore relay idle level", "pin", r.pin.Name(), "error", err)
		}
	})
}
