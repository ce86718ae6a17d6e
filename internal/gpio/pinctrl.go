package gpio

import (
	"fmt"
	"os/exec"
	"strconv"
	"sync"

	"go.uber.org/zap"
)

// PinctrlRelay drives a relay using the pinctrl command (Pi 5 / RP1 compatible).
type PinctrlRelay struct {
	pin       int
	activeLow bool
	log       *zap.SugaredLogger
	run       func(pin int, state string) error
	cleanup   sync.Once
}

// NewPinctrlRelay configures the line as an output at its idle level.
func NewPinctrlRelay(pin int, activeLow bool, log *zap.SugaredLogger) (*PinctrlRelay, error) {
	r := &PinctrlRelay{pin: pin, activeLow: activeLow, log: log, run: pinctrl}

	if err := r.Release(); err != nil {
		return nil, fmt.Errorf("gpio set idle: %w", err)
	}

	log.Infow("relay initialized", "pin", pin, "activeLow", activeLow)
	return r, nil
}

func (r *PinctrlRelay) Engage() error {
	engaged, _ := levels(r.activeLow)
	return r.set(engaged)
}

func (r *PinctrlRelay) Release() error {
	_, idle := levels(r.activeLow)
	return r.set(idle)
}

func (r *PinctrlRelay) Cleanup() {
	r.cleanup.Do(func() {
		if err := r.Release(); err != nil {
			r.log.Errorw("failed to restore relay idle level", "pin", r.pin, "error", err)
		}
	})
}

func (r *PinctrlRelay) set(high bool) error {
	if high {
		return r.run(r.pin, "dh")
	}
	return r.run(r.pin, "dl")
}

func pinctrl(pin int, state string) error {
	// "op" makes sure the line is an output before driving it.
	out, err := exec.Command("pinctrl", "set", strconv.Itoa(pin), "op", state).CombinedOutput()
	if err != nil {
		return fmt.Errorf("pinctrl set %d op %s: %w: %s", pin, state, err, out)
	}
	return nil
}
