// Package quic carries a chat session over a single bidirectional QUIC stream.
package quic

import (
	"context"
	"crypto/rand"
	"time"

	"github.com/TheusHen/hushlink/hushlink/fault"
	"github.com/TheusHen/hushlink/hushlink/transport"
	q "github.com/quic-go/quic-go"
)

const closeNormal q.ApplicationErrorCode = 0

// Conn is one QUIC connection with its single stream.
type Conn struct {
	conn   q.Connection
	stream q.Stream
}

func (c *Conn) Read(b []byte) (int, error)  { return c.stream.Read(b) }
func (c *Conn) Write(b []byte) (int, error) { return c.stream.Write(b) }

func (c *Conn) SetDeadline(t time.Time) error { return c.stream.SetDeadline(t) }

// Close closes the stream, then the connection.
func (c *Conn) Close() error {
	_ = c.stream.Close()
	return c.conn.CloseWithError(closeNormal, "bye")
}

var (
	_ transport.Conn     = (*Conn)(nil)
	_ transport.Listener = (*Listener)(nil)
	_ transport.Dialer   = Dialer{}
)

type Listener struct {
	inner *q.Listener
}

func Listen(addr string) (*Listener, error) {
	tlsConf, err := listenerTLS(rand.Reader)
	if err != nil {
		return nil, fault.E(fault.KindConnection, "quic.Listen", err)
	}
	ln, err := q.ListenAddr(addr, tlsConf, &q.Config{})
	if err != nil {
		return nil, fault.E(fault.KindConnection, "quic.Listen", err)
	}
	return &Listener{inner: ln}, nil
}

// Accept waits for a connection and its first stream. The dialer opens the
// stream and writes first, so the stream becomes visible once the handshake
// bytes arrive.
func (l *Listener) Accept(ctx context.Context) (transport.Conn, error) {
	conn, err := l.inner.Accept(ctx)
	if err != nil {
		return nil, fault.E(fault.KindConnection, "quic.Accept", err)
	}
	stream, err := conn.AcceptStream(ctx)
	if err != nil {
		_ = conn.CloseWithError(closeNormal, "no stream")
		return nil, fault.E(fault.KindConnection, "quic.Accept", err)
	}
	return &Conn{conn: conn, stream: stream}, nil
}

func (l *Listener) Addr() string {
	if l.inner == nil {
		return ""
	}
	return l.inner.Addr().String()
}

func (l *Listener) Close() error { return l.inner.Close() }

// Dialer opens QUIC connections.
type Dialer struct{}

func (Dialer) Dial(ctx context.Context, addr string) (transport.Conn, error) {
	conn, err := q.DialAddr(ctx, addr, dialerTLS(), &q.Config{})
	if err != nil {
		return nil, fault.E(fault.KindConnection, "quic.Dial", err)
	}
	stream, err := conn.OpenStreamSync(ctx)
	if err != nil {
		_ = conn.CloseWithError(closeNormal, "no stream")
		return nil, fault.E(fault.KindConnection, "quic.Dial", err)
	}
	return &Conn{conn: conn, stream: stream}, nil
}
