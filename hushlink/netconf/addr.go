// Package netconf selects and remembers the endpoint's network settings and
// the server it talks to.
package netconf

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/TheusHen/hushlink/hushlink/fault"
)

const (
	PortMin     = 1024
	PortMax     = 65535
	DefaultPort = 8087
)

var (
	ErrInvalidIP   = errors.New("netconf: invalid IPv4 address")
	ErrInvalidMAC  = errors.New("netconf: invalid MAC address")
	ErrInvalidPort = errors.New("netconf: port out of range")
	ErrConflict    = errors.New("netconf: conflicting network settings")
	ErrUnknownMode = errors.New("netconf: unknown mode")
)

// IPv4 is a dotted-quad address.
type IPv4 [4]byte

// MAC is a hardware address.
type MAC [6]byte

// ParseIPv4 accepts exactly four decimal octets in 0-255 separated by dots.
// Signs, spaces, empty octets and more than three digits are rejected.
func ParseIPv4(s string) (IPv4, error) {
	var ip IPv4
	parts := strings.Split(s, ".")
	if len(parts) != 4 {
		return ip, fault.E(fault.KindInput, "netconf.ParseIPv4", fmt.Errorf("%w: %q", ErrInvalidIP, s))
	}
	for i, p := range parts {
		if len(p) == 0 || len(p) > 3 || !allDigits(p) {
			return ip, fault.E(fault.KindInput, "netconf.ParseIPv4", fmt.Errorf("%w: %q", ErrInvalidIP, s))
		}
		n, _ := strconv.Atoi(p)
		if n > 255 {
			return ip, fault.E(fault.KindInput, "netconf.ParseIPv4", fmt.Errorf("%w: %q", ErrInvalidIP, s))
		}
		ip[i] = byte(n)
	}
	return ip, nil
}

func (ip IPv4) String() string {
	return fmt.Sprintf("%d.%d.%d.%d", ip[0], ip[1], ip[2], ip[3])
}

// IsZero reports whether ip is 0.0.0.0.
func (ip IPv4) IsZero() bool { return ip == IPv4{} }

// ParseMAC accepts six two-digit hex groups separated by colons.
func ParseMAC(s string) (MAC, error) {
	var mac MAC
	parts := strings.Split(s, ":")
	if len(parts) != 6 {
		return mac, fault.E(fault.KindInput, "netconf.ParseMAC", fmt.Errorf("%w: %q", ErrInvalidMAC, s))
	}
	for i, p := range parts {
		if len(p) != 2 {
			return mac, fault.E(fault.KindInput, "netconf.ParseMAC", fmt.Errorf("%w: %q", ErrInvalidMAC, s))
		}
		n, err := strconv.ParseUint(p, 16, 8)
		if err != nil {
			return mac, fault.E(fault.KindInput, "netconf.ParseMAC", fmt.Errorf("%w: %q", ErrInvalidMAC, s))
		}
		mac[i] = byte(n)
	}
	return mac, nil
}

func (m MAC) String() string {
	return fmt.Sprintf("%02x:%02x:%02x:%02x:%02x:%02x", m[0], m[1], m[2], m[3], m[4], m[5])
}

// ParsePort accepts a decimal port in PortMin..PortMax.
func ParsePort(s string) (int, error) {
	if len(s) == 0 || len(s) > 5 || !allDigits(s) {
		return 0, fault.E(fault.KindInput, "netconf.ParsePort", fmt.Errorf("%w: %q", ErrInvalidPort, s))
	}
	n, _ := strconv.Atoi(s)
	if err := checkPort(n); err != nil {
		return 0, err
	}
	return n, nil
}

func checkPort(n int) error {
	if n < PortMin || n > PortMax {
		return fault.E(fault.KindInput, "netconf.checkPort", fmt.Errorf("%w: %d", ErrInvalidPort, n))
	}
	return nil
}

func allDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

// NetInfo is the local network configuration.
type NetInfo struct {
	MAC     MAC
	IP      IPv4
	Subnet  IPv4
	Gateway IPv4
	DNS     IPv4
	DHCP    bool
}

// DefaultNetInfo is used when nothing else is available.
func DefaultNetInfo() NetInfo {
	return NetInfo{
		MAC:     MAC{0x00, 0x08, 0xdc, 0x12, 0x34, 0x56},
		IP:      IPv4{192, 168, 11, 2},
		Subnet:  IPv4{255, 255, 255, 0},
		Gateway: IPv4{192, 168, 11, 1},
		DNS:     IPv4{192, 168, 11, 1},
	}
}

// ServerAddr is the peer to dial, or the address to listen on.
type ServerAddr struct {
	IP   IPv4
	Port int
}

// DefaultServer is 192.168.137.1:8087.
func DefaultServer() ServerAddr {
	return ServerAddr{IP: IPv4{192, 168, 137, 1}, Port: DefaultPort}
}

// ParseServerAddr parses "a.b.c.d:port".
func ParseServerAddr(s string) (ServerAddr, error) {
	host, port, ok := strings.Cut(s, ":")
	if !ok {
		return ServerAddr{}, fault.E(fault.KindInput, "netconf.ParseServerAddr", fmt.Errorf("%w: %q", ErrInvalidPort, s))
	}
	ip, err := ParseIPv4(host)
	if err != nil {
		return ServerAddr{}, err
	}
	p, err := ParsePort(port)
	if err != nil {
		return ServerAddr{}, err
	}
	return ServerAddr{IP: ip, Port: p}, nil
}

func (s ServerAddr) Validate() error { return checkPort(s.Port) }

func (s ServerAddr) String() string {
	return s.IP.String() + ":" + strconv.Itoa(s.Port)
}

// Mode selects where the network configuration comes from.
type Mode int

const (
	ModeDefault Mode = iota
	ModeLast
	ModeAuto
	ModeManual
	// ModeAsk defers the choice to the local user.
	ModeAsk
)

// ParseMode maps a configuration value to a Mode. "dhcp" is accepted for
// ModeAuto.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(s) {
	case "", "default":
		return ModeDefault, nil
	case "last":
		return ModeLast, nil
	case "auto", "dhcp":
		return ModeAuto, nil
	case "manual":
		return ModeManual, nil
	case "ask":
		return ModeAsk, nil
	default:
		return ModeDefault, fault.E(fault.KindInput, "netconf.ParseMode", fmt.Errorf("%w: %q", ErrUnknownMode, s))
	}
}

func (m Mode) String() string {
	switch m {
	case ModeLast:
		return "last"
	case ModeAuto:
		return "auto"
	case ModeManual:
		return "manual"
	case ModeAsk:
		return "ask"
	default:
		return "default"
	}
}
