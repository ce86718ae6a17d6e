package gpio

import (
	"fmt"
	"sync"
	"time"

	"github.com/goburrow/modbus"
	"go.uber.org/zap"
)

const (
	coilOn  uint16 = 0xFF00
	coilOff uint16 = 0x0000
)

type coilWriter interface {
	WriteSingleCoil(address, value uint16) ([]byte, error)
}

// ModbusRelay drives one coil of a Modbus TCP relay board.
type ModbusRelay struct {
	client    coilWriter
	coil      uint16
	activeLow bool
	log       *zap.SugaredLogger
	close     func() error
	cleanup   sync.Once
}

// DialModbusRelay connects to addr and drives coil to its idle level.
func DialModbusRelay(addr string, unitID uint8, coil uint16, timeout time.Duration, activeLow bool, log *zap.SugaredLogger) (*ModbusRelay, error) {
	if addr == "" {
		return nil, fmt.Errorf("modbus driver requires an address")
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	handler := modbus.NewTCPClientHandler(addr)
	handler.Timeout = timeout
	handler.SlaveId = unitID

	if err := handler.Connect(); err != nil {
		return nil, fmt.Errorf("modbus connect %s: %w", addr, err)
	}

	r, err := newModbusRelay(modbus.NewClient(handler), coil, activeLow, log)
	if err != nil {
		handler.Close()
		return nil, err
	}
	r.close = handler.Close
	return r, nil
}

func newModbusRelay(client coilWriter, coil uint16, activeLow bool, log *zap.SugaredLogger) (*ModbusRelay, error) {
	r := &ModbusRelay{client: client, coil: coil, activeLow: activeLow, log: log}
	if err := r.Release(); err != nil {
		return nil, fmt.Errorf("modbus set idle: %w", err)
	}
	log.Infow("relay initialized", "coil", coil, "activeLow", activeLow)
	return r, nil
}

func (r *ModbusRelay) Engage() error {
	engaged, _ := levels(r.activeLow)
	return r.write(engaged)
}

func (r *ModbusRelay) Release() error {
	_, idle := levels(r.activeLow)
	return r.write(idle)
}

func (r *ModbusRelay) Cleanup() {
	r.cleanup.Do(func() {
		if err := r.Release(); err != nil {
			r.log.Errorw("failed to restore relay idle level", "coil", r.coil, "error", err)
		}
		if r.close != nil {
			if err := r.close(); err != nil {
				r.log.Warnw("modbus close failed", "error", err)
			}
		}
	})
}

func (r *ModbusRelay) write(on bool) error {
	value := coilOff
	if on {
		value = coilOn
	}
	if _, err := r.client.WriteSingleCoil(r.coil, value); err != nil {
		return fmt.Errorf("write coil %d: %w", r.coil, err)
	}
	return nil
}
