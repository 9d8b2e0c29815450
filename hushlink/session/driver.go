// Package session is the outermost loop of the endpoint. It runs a bounded
// number of chat sessions and is the only place that decides what a failure
// means: report it, start over, or stop.
package session

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/TheusHen/hushlink/hushlink"
	"github.com/TheusHen/hushlink/hushlink/channel"
	"github.com/TheusHen/hushlink/hushlink/fault"
	"github.com/TheusHen/hushlink/hushlink/logging"
	"github.com/sirupsen/logrus"
)

var (
	// ErrRestartRequired is returned once LiveCount sessions have run. The
	// process supervisor is expected to start the endpoint afresh.
	ErrRestartRequired = errors.New("session: live count reached, restart required")
	ErrNoLines         = errors.New("session: no line source")
)

// Role is the part a driver plays on every session.
type Role int

const (
	Client Role = iota
	Server
)

func (r Role) String() string {
	if r == Server {
		return "server"
	}
	return "client"
}

// Driver runs sessions one after another.
type Driver struct {
	Peer      *hushlink.Peer
	Role      Role
	Address   string
	LiveCount int
	Lines     channel.LineSource
	Out       io.Writer
	Log       *logrus.Entry
}

// Run runs up to LiveCount sessions. A session that ends with the stop phrase
// or with a restartable fault is followed by the next one; any other fault is
// returned at once. When the count is used up Run returns ErrRestartRequired.
func (d *Driver) Run(ctx context.Context) error {
	log := logging.For(d.Log, "session", "Driver.Run").WithField("role", d.Role)
	if d.Lines == nil {
		return fault.E(fault.KindInput, "session.Run", ErrNoLines)
	}
	count := d.LiveCount
	if count <= 0 {
		count = 1
	}

	for n := 1; n <= count; n++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		slog := log.WithField("session", n)
		err := d.RunOnce(ctx)
		switch {
		case err == nil:
			slog.Info("session finished")
		case ctx.Err() != nil:
			return ctx.Err()
		case fault.KindOf(err).Restartable():
			slog.WithError(err).WithField("kind", fault.KindOf(err)).Warn("session failed, starting over")
			d.say("Session ended: %v", err)
		default:
			slog.WithError(err).WithField("kind", fault.KindOf(err)).Error("fatal session fault")
			d.say("Fatal: %v", err)
			return err
		}
	}
	log.WithField("live_count", count).Info("live count reached")
	return ErrRestartRequired
}

// RunOnce connects, authenticates and chats once.
func (d *Driver) RunOnce(ctx context.Context) error {
	var s *hushlink.Session
	var err error
	if d.Role == Server {
		d.say("Waiting for a peer on %s ...", d.Peer.ListenAddr())
		s, err = d.Peer.Accept(ctx)
	} else {
		d.say("Connecting to %s ...", d.Address)
		s, err = d.Peer.Dial(ctx, d.Address)
	}
	if err != nil {
		return err
	}
	defer s.Close()

	d.say("Secure session established. Type %q to leave.", d.Peer.Options.StopPhrase)
	return s.Chat(ctx, d.Lines, d.out())
}

func (d *Driver) out() io.Writer {
	if d.Out == nil {
		return io.Discard
	}
	return d.Out
}

func (d *Driver) say(format string, args ...interface{}) {
	fmt.Fprintf(d.out(), format+"\n", args...)
}
