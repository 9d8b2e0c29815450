package hushlink

import (
	"context"
	"errors"
	"io"

	"github.com/TheusHen/hushlink/hushlink/channel"
	"github.com/TheusHen/hushlink/hushlink/fault"
	"github.com/TheusHen/hushlink/hushlink/handshake"
	"github.com/TheusHen/hushlink/hushlink/logging"
	"github.com/TheusHen/hushlink/hushlink/transport"
	"github.com/sirupsen/logrus"
)

var ErrNotListening = errors.New("hushlink: peer is not listening")

// Peer is a high-level helper that combines transport, handshake and channel.
type Peer struct {
	Rand        io.Reader
	Keys        handshake.KeySource
	MaxAttempts int
	Options     channel.Options
	Dialer      transport.Dialer
	Log         *logrus.Entry

	listener transport.Listener
}

// NewPeer returns a peer that dials over TCP until another Dialer is set.
func NewPeer(rand io.Reader, keys handshake.KeySource, opts channel.Options) *Peer {
	return &Peer{
		Rand:    rand,
		Keys:    keys,
		Options: opts,
		Dialer:  transport.TCPDialer{Log: opts.Log},
		Log:     opts.Log,
	}
}

// Listen accepts TCP connections on addr.
func (p *Peer) Listen(addr string) error {
	ln, err := transport.ListenTCP(addr)
	if err != nil {
		return err
	}
	p.listener = ln
	return nil
}

// Serve accepts on an existing listener instead.
func (p *Peer) Serve(ln transport.Listener) { p.listener = ln }

func (p *Peer) Close() error {
	if p.listener == nil {
		return nil
	}
	return p.listener.Close()
}

func (p *Peer) ListenAddr() string {
	if p.listener == nil {
		return ""
	}
	return p.listener.Addr()
}

// Accept waits for a peer and runs the responder side.
func (p *Peer) Accept(ctx context.Context) (*Session, error) {
	if p.listener == nil {
		return nil, fault.E(fault.KindConnection, "hushlink.Accept", ErrNotListening)
	}
	conn, err := p.listener.Accept(ctx)
	if err != nil {
		return nil, err
	}
	return p.Establish(ctx, conn, channel.Responder)
}

// Dial connects to addr and runs the initiator side.
func (p *Peer) Dial(ctx context.Context, addr string) (*Session, error) {
	conn, err := p.Dialer.Dial(ctx, addr)
	if err != nil {
		return nil, err
	}
	return p.Establish(ctx, conn, channel.Initiator)
}

// Establish runs the handshake for role on conn and opens the channel. conn
// is closed if anything fails.
func (p *Peer) Establish(ctx context.Context, conn transport.Conn, role channel.Role) (*Session, error) {
	log := logging.For(p.Log, "hushlink", "Peer.Establish").WithField("role", role)
	cfg := handshake.Config{
		Rand:        p.Rand,
		Keys:        p.Keys,
		MaxAttempts: p.MaxAttempts,
		Log:         p.Log,
	}

	var keys *handshake.Keys
	var err error
	if role == channel.Initiator {
		keys, err = handshake.Initiate(ctx, conn, cfg)
	} else {
		keys, err = handshake.Respond(ctx, conn, cfg)
	}
	if err != nil {
		_ = conn.Close()
		log.WithField("kind", fault.KindOf(err)).Warn("handshake failed")
		return nil, err
	}

	ch, err := channel.Open(conn, keys, role, p.Rand, p.Options)
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	log.Info("secure session established")
	return &Session{Channel: ch, conn: conn}, nil
}

// Session is an established channel and the stream it runs on.
type Session struct {
	*channel.Channel
	conn transport.Conn
}

// Close wipes the channel state and closes the stream.
func (s *Session) Close() error {
	s.Channel.Close()
	return s.conn.Close()
}
