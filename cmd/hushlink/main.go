// Command hushlink runs the secure chat endpoint in the client or server role.
package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/TheusHen/hushlink/hushlink"
	"github.com/TheusHen/hushlink/hushlink/channel"
	"github.com/TheusHen/hushlink/hushlink/config"
	"github.com/TheusHen/hushlink/hushlink/console"
	"github.com/TheusHen/hushlink/hushlink/custody"
	"github.com/TheusHen/hushlink/hushlink/drbg"
	"github.com/TheusHen/hushlink/hushlink/fault"
	"github.com/TheusHen/hushlink/hushlink/logging"
	"github.com/TheusHen/hushlink/hushlink/netconf"
	"github.com/TheusHen/hushlink/hushlink/scratch"
	"github.com/TheusHen/hushlink/hushlink/session"
	"github.com/TheusHen/hushlink/hushlink/storage"
	"github.com/TheusHen/hushlink/hushlink/transport"
	"github.com/TheusHen/hushlink/hushlink/transport/quic"
	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"
)

// Exit codes understood by the process supervisor.
const (
	exitOK      = 0
	exitFatal   = 1
	exitRestart = 3
)

func main() {
	os.Exit(run())
}

func run() int {
	fs := pflag.NewFlagSet("hushlink", pflag.ContinueOnError)
	config.RegisterFlags(fs)
	if err := fs.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return exitOK
		}
		return exitFatal
	}

	cfg, err := config.Load("", fs)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return exitFatal
	}

	logger := logging.New(logging.Options{Debug: cfg.Debug, JSON: cfg.JSONLog})
	log := logrus.NewEntry(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err = runEndpoint(ctx, cfg, log)
	switch {
	case err == nil:
		return exitOK
	case errors.Is(err, session.ErrRestartRequired):
		log.Info("restarting")
		return exitRestart
	case errors.Is(err, context.Canceled):
		return exitOK
	case fault.KindOf(err).Restartable():
		log.WithError(err).Warn("endpoint stopped")
		return exitRestart
	default:
		log.WithError(err).WithField("kind", fault.KindOf(err)).Error("endpoint stopped")
		return exitFatal
	}
}

func runEndpoint(ctx context.Context, cfg *config.Config, log *logrus.Entry) error {
	rng, err := drbg.SeedFrom(drbg.SystemSource{}, cfg.Crypto.SeedSize)
	if err != nil {
		return err
	}
	defer rng.Wipe()

	store, err := storage.OpenFile(cfg.Storage.Path, storage.DefaultImageSize, log)
	if err != nil {
		return err
	}
	alloc, err := scratch.New(scratch.Strategy(cfg.Storage.Allocation))
	if err != nil {
		return fault.E(fault.KindInput, "main.runEndpoint", err)
	}

	prompt := console.New(os.Stdin, os.Stdout, cfg.Custody)
	vault := &custody.Vault{
		Store:  store,
		Params: cfg.Custody,
		Alloc:  alloc,
		PIN:    prompt,
		Log:    log,
	}

	resolver := &netconf.Resolver{
		Book:       netconf.Book{Store: store},
		Prompt:     prompt,
		Lease:      netconf.InterfaceLeaser{Name: cfg.Network.Interface},
		Retries:    cfg.Network.DHCPRetries,
		RetryDelay: cfg.Network.RetryDelay,
		Log:        log,
	}
	netMode, _ := netconf.ParseMode(cfg.Network.Mode)
	ni, err := resolver.Network(ctx, netMode, nil)
	if err != nil {
		return err
	}
	log.WithFields(logrus.Fields{"ip": ni.IP, "mac": ni.MAC, "dhcp": ni.DHCP}).Info("network configured")

	peer := hushlink.NewPeer(rng, vault, channel.Options{
		LineMax:    cfg.Chat.LineMax,
		BufferMax:  cfg.Chat.BufferMax,
		StopPhrase: cfg.Chat.StopPhrase,
		Level:      cfg.CompressionLevel(),
		Log:        log,
	})
	peer.MaxAttempts = cfg.Crypto.ElligatorAttempts

	driver := &session.Driver{
		Peer:      peer,
		LiveCount: cfg.LiveCount,
		Lines:     prompt,
		Out:       os.Stdout,
		Log:       log,
	}

	switch cfg.Role {
	case config.RoleServer:
		driver.Role = session.Server
		ln, err := listen(cfg)
		if err != nil {
			return err
		}
		peer.Serve(ln)
		defer peer.Close()
	default:
		driver.Role = session.Client
		srvMode, _ := netconf.ParseServerMode(cfg.Server.Mode)
		var manual *netconf.ServerAddr
		if srvMode == netconf.ServerManual {
			sa, err := netconf.ParseServerAddr(cfg.Server.Address)
			if err != nil {
				return err
			}
			manual = &sa
		}
		sa, err := resolver.Server(srvMode, manual)
		if err != nil {
			return err
		}
		driver.Address = sa.String()
		peer.Dialer = dialer(cfg, ni, log)
	}

	return driver.Run(ctx)
}

func listen(cfg *config.Config) (transport.Listener, error) {
	if cfg.Transport == config.TransportQUIC {
		ln, err := quic.Listen(cfg.Server.Listen)
		if err != nil {
			return nil, err
		}
		return ln, nil
	}
	ln, err := transport.ListenTCP(cfg.Server.Listen)
	if err != nil {
		return nil, err
	}
	return ln, nil
}

func dialer(cfg *config.Config, ni netconf.NetInfo, log *logrus.Entry) transport.Dialer {
	if cfg.Transport == config.TransportQUIC {
		return quic.Dialer{}
	}
	d := transport.TCPDialer{Timeout: cfg.Server.ConnectTimeout, Log: log}
	if cfg.Network.BindLocal {
		d.LocalIP = net.IP(ni.IP[:])
	}
	return d
}
