package gpio

import (
	"fmt"
	"strconv"
	"strings"
)

// PinMode selects how a configured pin number is interpreted.
type PinMode int

const (
	// Logical numbers are BCM GPIO line numbers.
	Logical PinMode = iota
	// Physical numbers are positions on the 40-pin header.
	Physical
)

func (m PinMode) String() string {
	switch m {
	case Logical:
		return "BCM"
	case Physical:
		return "BOARD"
	default:
		return "unknown"
	}
}

// ParsePinMode accepts BCM/logical and BOARD/physical, case-insensitively.
func ParsePinMode(s string) (PinMode, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "BCM", "LOGICAL":
		return Logical, nil
	case "BOARD", "PHYSICAL":
		return Physical, nil
	default:
		return 0, fmt.Errorf("invalid pin mode %q (want BCM or BOARD)", s)
	}
}

// boardToBCM maps Raspberry Pi header positions to BCM lines. Power and
// ground positions are absent.
var boardToBCM = map[int]int{
	3: 2, 5: 3, 7: 4, 8: 14, 10: 15, 11: 17, 12: 18, 13: 27,
	15: 22, 16: 23, 18: 24, 19: 10, 21: 9, 22: 25, 23: 11, 24: 8,
	26: 7, 27: 0, 28: 1, 29: 5, 31: 6, 32: 12, 33: 13, 35: 19,
	36: 16, 37: 26, 38: 20, 40: 21,
}

// BCM resolves pin to a BCM line number.
func (m PinMode) BCM(pin int) (int, error) {
	switch m {
	case Logical:
		if pin < 0 || pin > 27 {
			return 0, fmt.Errorf("BCM pin %d out of range 0-27", pin)
		}
		return pin, nil
	case Physical:
		line, ok := boardToBCM[pin]
		if !ok {
			return 0, fmt.Errorf("BOARD pin %d is not a GPIO pin", pin)
		}
		return line, nil
	default:
		return 0, fmt.Errorf("unknown pin mode %d", int(m))
	}
}

// LineName returns the gpioreg name for pin, e.g. "GPIO4".
func (m PinMode) LineName(pin int) (string, error) {
	line, err := m.BCM(pin)
	if err != nil {
		return "", err
	}
	return "GPIO" + strconv.Itoa(line), nil
}
