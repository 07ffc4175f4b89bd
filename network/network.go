package network

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/jonboulle/clockwork"
	logger "github.com/sirupsen/logrus"
)

var ErrNotAssociated = errors.New("no address on interface")

const pollEvery = 500 * time.Millisecond

// Network is the boolean associate/fail primitive the station relies on.
type Network interface {
	Associate(ctx context.Context) (net.IP, error)
}

type addrsFunc func(name string) ([]net.Addr, error)

// Interface waits for a named link (wlan0 on the station) to get an IPv4
// address. The association itself is owned by wpa_supplicant/dhcpcd.
type Interface struct {
	name    string
	timeout time.Duration
	clock   clockwork.Clock
	addrs   addrsFunc
}

func NewInterface(name string, timeout time.Duration, clock clockwork.Clock) *Interface {
	return &Interface{
		name:    name,
		timeout: timeout,
		clock:   clock,
		addrs:   interfaceAddrs,
	}
}

func interfaceAddrs(name string) ([]net.Addr, error) {
	iface, err := net.InterfaceByName(name)
	if err != nil {
		return nil, err
	}
	if iface.Flags&net.FlagUp == 0 {
		return nil, nil
	}
	return iface.Addrs()
}

func (i *Interface) Associate(ctx context.Context) (net.IP, error) {
	deadline := i.clock.After(i.timeout)
	for {
		ip, err := i.lookup()
		if err != nil {
			logger.Debugf("Interface [%v] not ready [%v]", i.name, err)
		}
		if ip != nil {
			return ip, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-deadline:
			return nil, fmt.Errorf("%v after %v: %w", i.name, i.timeout, ErrNotAssociated)
		case <-i.clock.After(pollEvery):
		}
	}
}

func (i *Interface) lookup() (net.IP, error) {
	addrs, err := i.addrs(i.name)
	if err != nil {
		return nil, err
	}
	for _, a := range addrs {
		var ip net.IP
		switch v := a.(type) {
		case *net.IPNet:
			ip = v.IP
		case *net.IPAddr:
			ip = v.IP
		}
		if ip == nil || ip.IsLoopback() || ip.IsLinkLocalUnicast() {
			continue
		}
		if ip4 := ip.To4(); ip4 != nil {
			return ip4, nil
		}
	}
	return nil, nil
}

// Sim is a network that either always or never associates.
type Sim struct {
	IP       net.IP
	Fail     bool
	Attempts int
}

func NewSim() *Sim {
	return &Sim{IP: net.IPv4(192, 168, 1, 50).To4()}
}

func (s *Sim) Associate(ctx context.Context) (net.IP, error) {
	s.Attempts++
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.Fail {
		return nil, ErrNotAssociated
	}
	return s.IP, nil
}
