package transport

import (
	"bytes"
	"context"
	"io"
	"os"
	"sync"
	"time"
)

// Pipe returns two connected in-memory streams. Unlike net.Pipe, writes are
// buffered, so a peer can send a whole handshake message before the other side
// reads it, the way a socket behaves.
func Pipe() (Conn, Conn) {
	ab := newPipeBuffer()
	ba := newPipeBuffer()
	return &pipeConn{r: ba, w: ab}, &pipeConn{r: ab, w: ba}
}

type pipeBuffer struct {
	mu       sync.Mutex
	cond     *sync.Cond
	buf      bytes.Buffer
	wClosed  bool
	rClosed  bool
	deadline time.Time
}

func newPipeBuffer() *pipeBuffer {
	p := &pipeBuffer{}
	p.cond = sync.NewCond(&p.mu)
	return p
}

type pipeConn struct {
	r, w *pipeBuffer
	once sync.Once
}

func (c *pipeConn) Read(b []byte) (int, error) {
	r := c.r
	r.mu.Lock()
	defer r.mu.Unlock()
	for r.buf.Len() == 0 && !r.wClosed && !r.rClosed {
		if !r.deadline.IsZero() && !time.Now().Before(r.deadline) {
			return 0, os.ErrDeadlineExceeded
		}
		r.cond.Wait()
	}
	if r.rClosed {
		return 0, io.ErrClosedPipe
	}
	if r.buf.Len() == 0 {
		return 0, io.EOF
	}
	return r.buf.Read(b)
}

func (c *pipeConn) Write(b []byte) (int, error) {
	w := c.w
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.wClosed || w.rClosed {
		return 0, io.ErrClosedPipe
	}
	n, _ := w.buf.Write(b)
	w.cond.Broadcast()
	return n, nil
}

// Close ends both directions. The peer drains what was already written and
// then reads io.EOF.
func (c *pipeConn) Close() error {
	c.once.Do(func() {
		for _, p := range []*pipeBuffer{c.r, c.w} {
			p.mu.Lock()
			if p == c.r {
				p.rClosed = true
			} else {
				p.wClosed = true
			}
			p.cond.Broadcast()
			p.mu.Unlock()
		}
	})
	return nil
}

// SetDeadline bounds blocking reads. Writes never block.
func (c *pipeConn) SetDeadline(t time.Time) error {
	r := c.r
	r.mu.Lock()
	r.deadline = t
	r.mu.Unlock()
	r.cond.Broadcast()
	if !t.IsZero() {
		time.AfterFunc(time.Until(t), func() {
			r.mu.Lock()
			r.cond.Broadcast()
			r.mu.Unlock()
		})
	}
	return nil
}

// PipeListener hands out in-memory connections to callers of its Dial method.
type PipeListener struct {
	conns  chan Conn
	closed chan struct{}
	once   sync.Once
}

func NewPipeListener() *PipeListener {
	return &PipeListener{conns: make(chan Conn), closed: make(chan struct{})}
}

// Dial connects to the listener. It implements Dialer; addr is ignored.
func (l *PipeListener) Dial(ctx context.Context, _ string) (Conn, error) {
	client, server := Pipe()
	select {
	case l.conns <- server:
		return client, nil
	case <-l.closed:
		return nil, ErrListenerClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (l *PipeListener) Accept(ctx context.Context) (Conn, error) {
	select {
	case c := <-l.conns:
		return c, nil
	case <-l.closed:
		return nil, ErrListenerClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (l *PipeListener) Addr() string { return "pipe" }

func (l *PipeListener) Close() error {
	l.once.Do(func() { close(l.closed) })
	return nil
}
