// Package transport provides the byte streams a session runs over: TCP, an
// in-memory pipe for tests and loopback demos, and QUIC in transport/quic.
package transport

import (
	"context"
	"errors"
	"io"
	"net"
	"time"

	"github.com/TheusHen/hushlink/hushlink/fault"
	"github.com/TheusHen/hushlink/hushlink/logging"
	"github.com/sirupsen/logrus"
)

var (
	ErrListenerClosed = errors.New("transport: listener closed")
)

// Conn is a reliable, ordered byte stream.
type Conn interface {
	io.ReadWriteCloser
	SetDeadline(t time.Time) error
}

// Dialer opens streams to a peer.
type Dialer interface {
	Dial(ctx context.Context, addr string) (Conn, error)
}

// Listener accepts streams from peers.
type Listener interface {
	Accept(ctx context.Context) (Conn, error)
	Addr() string
	Close() error
}

// TCPDialer connects over TCP. A refused or timed out attempt is retried until
// Timeout has elapsed since the first attempt. A non-nil LocalIP pins the
// source address.
type TCPDialer struct {
	Timeout    time.Duration
	RetryDelay time.Duration
	LocalIP    net.IP
	Log        *logrus.Entry
}

func (d TCPDialer) Dial(ctx context.Context, addr string) (Conn, error) {
	log := logging.For(d.Log, "transport", "TCPDialer.Dial").WithField("addr", addr)
	timeout := d.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	delay := d.RetryDelay
	if delay <= 0 {
		delay = 500 * time.Millisecond
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var nd net.Dialer
	if d.LocalIP != nil {
		nd.LocalAddr = &net.TCPAddr{IP: d.LocalIP}
	}
	for attempt := 1; ; attempt++ {
		c, err := nd.DialContext(ctx, "tcp", addr)
		if err == nil {
			log.WithField("attempt", attempt).Debug("connected")
			return c, nil
		}
		log.WithError(err).WithField("attempt", attempt).Debug("connect failed")
		select {
		case <-ctx.Done():
			return nil, fault.E(fault.KindConnection, "transport.Dial", err)
		case <-time.After(delay):
		}
	}
}

// TCPListener accepts TCP connections.
type TCPListener struct {
	ln *net.TCPListener
}

// ListenTCP listens on addr, for example "0.0.0.0:8087".
func ListenTCP(addr string) (*TCPListener, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fault.E(fault.KindConnection, "transport.ListenTCP", err)
	}
	return &TCPListener{ln: ln.(*net.TCPListener)}, nil
}

func (l *TCPListener) Accept(ctx context.Context) (Conn, error) {
	if dl, ok := ctx.Deadline(); ok {
		_ = l.ln.SetDeadline(dl)
	}
	// The watcher may expire the listener to interrupt AcceptTCP. The deadline
	// is cleared only after the watcher has exited.
	stop := make(chan struct{})
	exited := make(chan struct{})
	go func() {
		defer close(exited)
		select {
		case <-ctx.Done():
			_ = l.ln.SetDeadline(time.Unix(1, 0))
		case <-stop:
		}
	}()
	defer func() {
		close(stop)
		<-exited
		_ = l.ln.SetDeadline(time.Time{})
	}()

	c, err := l.ln.AcceptTCP()
	if err != nil {
		if errors.Is(err, net.ErrClosed) {
			return nil, fault.E(fault.KindConnection, "transport.Accept", ErrListenerClosed)
		}
		if ctx.Err() != nil {
			return nil, fault.E(fault.KindConnection, "transport.Accept", ctx.Err())
		}
		return nil, fault.E(fault.KindConnection, "transport.Accept", err)
	}
	return c, nil
}

func (l *TCPListener) Addr() string { return l.ln.Addr().String() }

func (l *TCPListener) Close() error { return l.ln.Close() }
