package hushlink

import (
	"bytes"
	"context"
	"crypto/rand"
	"testing"
	"time"

	"github.com/TheusHen/hushlink/hushlink/channel"
	"github.com/TheusHen/hushlink/hushlink/fault"
	"github.com/TheusHen/hushlink/hushlink/transport"
)

type staticKey []byte

func (k staticKey) LongTermKey() ([]byte, error) { return bytes.Clone(k), nil }

func TestPeerDialAccept(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	key := staticKey(bytes.Repeat([]byte{9}, 32))
	server := NewPeer(rand.Reader, key, channel.DefaultOptions())
	if err := server.Listen("127.0.0.1:0"); err != nil {
		t.Fatalf("Listen: %v", err)
	}
	defer server.Close()

	addr := server.ListenAddr()
	if addr == "" {
		t.Fatalf("expected listener addr")
	}

	type result struct {
		s   *Session
		err error
	}
	accepted := make(chan result, 1)
	go func() {
		s, err := server.Accept(ctx)
		accepted <- result{s, err}
	}()

	client := NewPeer(rand.Reader, key, channel.DefaultOptions())
	cs, err := client.Dial(ctx, addr)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer cs.Close()

	r := <-accepted
	if r.err != nil {
		t.Fatalf("Accept: %v", r.err)
	}
	defer r.s.Close()

	if err := cs.Send([]byte("ping\n")); err != nil {
		t.Fatalf("Send: %v", err)
	}
	got, err := r.s.Receive()
	if err != nil {
		t.Fatalf("Receive: %v", err)
	}
	if string(got) != "ping" {
		t.Fatalf("got %q", got)
	}
	if r.s.Role() != channel.Responder || cs.Role() != channel.Initiator {
		t.Fatalf("unexpected roles")
	}
}

func TestPeerWrongKey(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	ln := transport.NewPipeListener()
	server := NewPeer(rand.Reader, staticKey(bytes.Repeat([]byte{1}, 32)), channel.DefaultOptions())
	server.Serve(ln)

	errCh := make(chan error, 1)
	go func() {
		_, err := server.Accept(ctx)
		errCh <- err
	}()

	client := NewPeer(rand.Reader, staticKey(bytes.Repeat([]byte{2}, 32)), channel.DefaultOptions())
	client.Dialer = ln
	_, err := client.Dial(ctx, ln.Addr())
	if !fault.Is(err, fault.KindProtocol) {
		t.Fatalf("client: want protocol fault, got %v", err)
	}
	if err := <-errCh; !fault.Is(err, fault.KindProtocol) {
		t.Fatalf("server: want protocol fault, got %v", err)
	}
}

func TestPeerNotListening(t *testing.T) {
	p := NewPeer(rand.Reader, staticKey(make([]byte, 32)), channel.DefaultOptions())
	if _, err := p.Accept(context.Background()); err == nil {
		t.Fatalf("expected ErrNotListening")
	}
}
