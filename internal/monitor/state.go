package monitor

import "fmt"

// State is the network health classification produced by a tick.
type State int

const (
	// Unknown is the state before the first tick.
	Unknown State = iota
	// Up means at least one remote target answered.
	Up
	// RemoteDown means no remote target answered but the local network did,
	// or no local targets are configured.
	RemoteDown
	// LocalDown means neither remote nor local targets answered.
	LocalDown
)

func (s State) String() string {
	switch s {
	case Unknown:
		return "unknown"
	case Up:
		return "up"
	case RemoteDown:
		return "remote_down"
	case LocalDown:
		return "local_down"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// MarshalText lets State key JSON maps.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}
