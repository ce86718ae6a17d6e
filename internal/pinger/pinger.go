package pinger

import (
	"context"
	"errors"
	"net"
	"strings"
	"time"

	probing "github.com/prometheus-community/pro-bing"
)

// tcpScheme marks a target that is probed with a TCP connect instead of
// an ICMP echo, e.g. "tcp://192.168.1.1:80".
const tcpScheme = "tcp://"

var errEmptyTarget = errors.New("empty target")

// Pinger tests reachability of a single target.
type Pinger interface {
	Ping(ctx context.Context, target string) bool
}

// Any probes targets in order and stops at the first one that responds.
// An empty list is never reachable. observe, if non-nil, is called once for
// every target actually probed.
func Any(ctx context.Context, p Pinger, targets []string, observe func(target string, ok bool)) bool {
	for _, target := range targets {
		ok := p.Ping(ctx, target)
		if observe != nil {
			observe(target, ok)
		}
		if ok {
			return true
		}
	}
	return false
}

// ICMPPinger sends a single ICMP echo using pro-bing.
type ICMPPinger struct {
	Timeout    time.Duration
	Privileged bool
}

// NewICMPPinger creates an ICMP pinger with the given per-target timeout.
func NewICMPPinger(timeout time.Duration, privileged bool) *ICMPPinger {
	return &ICMPPinger{
		Timeout:    timeout,
		Privileged: privileged,
	}
}

func (p *ICMPPinger) Ping(ctx context.Context, target string) bool {
	pinger, err := probing.NewPinger(target)
	if err != nil {
		return false
	}
	pinger.Count = 1
	pinger.Timeout = p.Timeout
	pinger.SetPrivileged(p.Privileged)

	if err := pinger.RunWithContext(ctx); err != nil {
		return false
	}
	return pinger.Statistics().PacketsRecv > 0
}

// TCPPinger treats a completed TCP handshake as reachable.
type TCPPinger struct {
	Timeout time.Duration
}

func (p *TCPPinger) Ping(ctx context.Context, target string) bool {
	d := net.Dialer{Timeout: p.Timeout}
	conn, err := d.DialContext(ctx, "tcp", strings.TrimPrefix(target, tcpScheme))
	if err != nil {
		return false
	}
	conn.Close()
	return true
}

// Router dispatches "tcp://host:port" targets to TCP and everything else
// to ICMP.
type Router struct {
	ICMP Pinger
	TCP  Pinger
}

// New returns the default Router used by the daemon.
func New(timeout time.Duration, privileged bool) *Router {
	return &Router{
		ICMP: NewICMPPinger(timeout, privileged),
		TCP:  &TCPPinger{Timeout: timeout},
	}
}

func (r *Router) Ping(ctx context.Context, target string) bool {
	if IsTCP(target) {
		return r.TCP.Ping(ctx, target)
	}
	return r.ICMP.Ping(ctx, target)
}

// IsTCP reports whether target uses the tcp:// form.
func IsTCP(target string) bool {
	return strings.HasPrefix(target, tcpScheme)
}

// ValidateTarget checks that a target is usable. ICMP targets are resolved
// lazily at probe time, so only the tcp:// form is checked here.
func ValidateTarget(target string) error {
	if strings.TrimSpace(target) == "" {
		return errEmptyTarget
	}
	if !IsTCP(target) {
		return nil
	}
	_, _, err := net.SplitHostPort(strings.TrimPrefix(target, tcpScheme))
	return err
}
