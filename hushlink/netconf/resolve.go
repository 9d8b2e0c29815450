package netconf

import (
	"context"
	"errors"
	"net"
	"time"

	"github.com/TheusHen/hushlink/hushlink/fault"
	"github.com/TheusHen/hushlink/hushlink/logging"
	"github.com/TheusHen/hushlink/hushlink/storage"
	"github.com/sirupsen/logrus"
)

var (
	ErrNoLease  = errors.New("netconf: no address lease")
	ErrNoPrompt = errors.New("netconf: mode needs a prompt")
)

// DefaultLeaseRetries is how many times a failed lease is retried.
const DefaultLeaseRetries = 5

// Leaser obtains an automatic network configuration.
type Leaser interface {
	Lease(ctx context.Context) (NetInfo, error)
}

// Prompter asks the local user. console.Prompter implements it.
type Prompter interface {
	Ask(question string, max int) (string, error)
	Say(format string, args ...interface{})
}

// answerMax bounds one menu answer or address.
const answerMax = 30

// Resolver turns a mode into concrete settings and remembers the outcome.
type Resolver struct {
	Book       Book
	Prompt     Prompter
	Lease      Leaser
	Retries    int
	RetryDelay time.Duration
	Log        *logrus.Entry
}

// Network resolves the local network settings for mode. manual, when not
// nil, supplies ModeManual values without prompting; passing it with
// ModeAuto is a conflict. Every mode except ModeLast stores its result.
func (r *Resolver) Network(ctx context.Context, mode Mode, manual *NetInfo) (NetInfo, error) {
	log := logging.For(r.Log, "netconf", "Resolver.Network")
	if mode == ModeAuto && manual != nil {
		return NetInfo{}, fault.E(fault.KindInput, "netconf.Network", ErrConflict)
	}
	if mode == ModeAsk {
		var err error
		if mode, err = r.askNetworkMode(); err != nil {
			return NetInfo{}, err
		}
	}
	log = log.WithField("mode", mode)

	var ni NetInfo
	var err error
	switch mode {
	case ModeLast:
		ni, err = r.Book.LoadNet()
		if errors.Is(err, storage.ErrUnset) {
			log.Warn("no stored network settings, using defaults")
			return DefaultNetInfo(), nil
		}
		if err != nil {
			return NetInfo{}, err
		}
		log.Info("using last network settings")
		return ni, nil
	case ModeAuto:
		ni, err = r.lease(ctx, log)
	case ModeManual:
		if manual != nil {
			ni = *manual
		} else {
			ni, err = r.askNetInfo()
		}
	default:
		ni = DefaultNetInfo()
	}
	if err != nil {
		return NetInfo{}, err
	}
	if err := r.Book.SaveNet(ni); err != nil {
		return NetInfo{}, err
	}
	log.WithField("ip", ni.IP).Info("network settings stored")
	return ni, nil
}

func (r *Resolver) lease(ctx context.Context, log *logrus.Entry) (NetInfo, error) {
	if r.Lease == nil {
		return NetInfo{}, fault.E(fault.KindConnection, "netconf.lease", ErrNoLease)
	}
	retries := r.Retries
	if retries <= 0 {
		retries = DefaultLeaseRetries
	}
	delay := r.RetryDelay
	if delay <= 0 {
		delay = time.Second
	}
	var lastErr error
	for attempt := 0; attempt <= retries; attempt++ {
		ni, err := r.Lease.Lease(ctx)
		if err == nil {
			ni.DHCP = true
			return ni, nil
		}
		lastErr = err
		log.WithError(err).WithField("attempt", attempt+1).Warn("lease failed")
		select {
		case <-ctx.Done():
			return NetInfo{}, fault.E(fault.KindConnection, "netconf.lease", ctx.Err())
		case <-time.After(delay):
		}
	}
	return NetInfo{}, fault.E(fault.KindConnection, "netconf.lease", errors.Join(ErrNoLease, lastErr))
}

func (r *Resolver) askNetworkMode() (Mode, error) {
	if r.Prompt == nil {
		return ModeDefault, fault.E(fault.KindInput, "netconf.askNetworkMode", ErrNoPrompt)
	}
	r.Prompt.Say("Select the network configuration type:\n1. Last used\n2. Auto\n3. Manual")
	answer, err := r.Prompt.Ask("Enter your choice (1-3): ", answerMax)
	if err != nil {
		return ModeDefault, err
	}
	switch answer {
	case "1":
		return ModeLast, nil
	case "2":
		return ModeAuto, nil
	case "3":
		return ModeManual, nil
	default:
		r.Prompt.Say("Invalid choice, using default network settings.")
		return ModeDefault, nil
	}
}

func (r *Resolver) askNetInfo() (NetInfo, error) {
	if r.Prompt == nil {
		return NetInfo{}, fault.E(fault.KindInput, "netconf.askNetInfo", ErrNoPrompt)
	}
	var ni NetInfo
	s, err := r.Prompt.Ask("Enter your MAC: ", answerMax)
	if err != nil {
		return ni, err
	}
	if ni.MAC, err = ParseMAC(s); err != nil {
		return ni, err
	}
	for _, f := range []struct {
		question string
		dst      *IPv4
	}{
		{"Enter your IP: ", &ni.IP},
		{"Enter subnet mask: ", &ni.Subnet},
		{"Enter default gateway IP: ", &ni.Gateway},
		{"Enter DNS IP: ", &ni.DNS},
	} {
		s, err := r.Prompt.Ask(f.question, answerMax)
		if err != nil {
			return ni, err
		}
		if *f.dst, err = ParseIPv4(s); err != nil {
			return ni, err
		}
	}
	return ni, nil
}

// ServerMode selects where the server address comes from.
type ServerMode int

const (
	ServerDefault ServerMode = iota
	ServerLast
	ServerManual
	ServerAsk
)

// ParseServerMode maps a configuration value to a ServerMode.
func ParseServerMode(s string) (ServerMode, error) {
	switch s {
	case "", "default":
		return ServerDefault, nil
	case "last":
		return ServerLast, nil
	case "manual":
		return ServerManual, nil
	case "ask":
		return ServerAsk, nil
	default:
		return ServerDefault, fault.E(fault.KindInput, "netconf.ParseServerMode", ErrUnknownMode)
	}
}

// Server resolves the server address the same way Network resolves the
// local settings.
func (r *Resolver) Server(mode ServerMode, manual *ServerAddr) (ServerAddr, error) {
	log := logging.For(r.Log, "netconf", "Resolver.Server")
	if mode == ServerAsk {
		if r.Prompt == nil {
			return ServerAddr{}, fault.E(fault.KindInput, "netconf.Server", ErrNoPrompt)
		}
		r.Prompt.Say("Select the server/port configuration type:\n1. Last used\n2. Manual")
		answer, err := r.Prompt.Ask("Enter your choice (1-2): ", answerMax)
		if err != nil {
			return ServerAddr{}, err
		}
		switch answer {
		case "1":
			mode = ServerLast
		case "2":
			mode = ServerManual
		default:
			r.Prompt.Say("Invalid choice, using the default server.")
			mode = ServerDefault
		}
	}

	var sa ServerAddr
	switch mode {
	case ServerLast:
		sa, err := r.Book.LoadServer()
		if errors.Is(err, storage.ErrUnset) {
			log.Warn("no stored server, using default")
			return DefaultServer(), nil
		}
		return sa, err
	case ServerManual:
		if manual != nil {
			sa = *manual
			if err := sa.Validate(); err != nil {
				return ServerAddr{}, err
			}
		} else {
			var err error
			if sa, err = r.askServer(); err != nil {
				return ServerAddr{}, err
			}
		}
	default:
		sa = DefaultServer()
	}
	if err := r.Book.SaveServer(sa); err != nil {
		return ServerAddr{}, err
	}
	log.WithField("server", sa).Info("server address stored")
	return sa, nil
}

func (r *Resolver) askServer() (ServerAddr, error) {
	if r.Prompt == nil {
		return ServerAddr{}, fault.E(fault.KindInput, "netconf.askServer", ErrNoPrompt)
	}
	s, err := r.Prompt.Ask("Enter IP of server: ", answerMax)
	if err != nil {
		return ServerAddr{}, err
	}
	ip, err := ParseIPv4(s)
	if err != nil {
		return ServerAddr{}, err
	}
	s, err = r.Prompt.Ask("Enter number of port: ", answerMax)
	if err != nil {
		return ServerAddr{}, err
	}
	port, err := ParsePort(s)
	if err != nil {
		return ServerAddr{}, err
	}
	return ServerAddr{IP: ip, Port: port}, nil
}

// InterfaceLeaser reads the address the operating system assigned to an
// interface. An empty Name picks the first interface that is up, not a
// loopback, and has an IPv4 address.
type InterfaceLeaser struct {
	Name string
}

func (l InterfaceLeaser) Lease(ctx context.Context) (NetInfo, error) {
	if err := ctx.Err(); err != nil {
		return NetInfo{}, err
	}
	ifaces, err := net.Interfaces()
	if err != nil {
		return NetInfo{}, err
	}
	for _, ifc := range ifaces {
		if l.Name != "" && ifc.Name != l.Name {
			continue
		}
		if l.Name == "" && (ifc.Flags&net.FlagUp == 0 || ifc.Flags&net.FlagLoopback != 0) {
			continue
		}
		addrs, err := ifc.Addrs()
		if err != nil {
			continue
		}
		for _, a := range addrs {
			ipn, ok := a.(*net.IPNet)
			if !ok {
				continue
			}
			v4 := ipn.IP.To4()
			if v4 == nil || len(ipn.Mask) != net.IPv4len {
				continue
			}
			var ni NetInfo
			copy(ni.IP[:], v4)
			copy(ni.Subnet[:], ipn.Mask)
			copy(ni.MAC[:], ifc.HardwareAddr)
			return ni, nil
		}
	}
	return NetInfo{}, ErrNoLease
}
