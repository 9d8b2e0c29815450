package quic

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/TheusHen/hushlink/hushlink/fault"
	"github.com/TheusHen/hushlink/hushlink/transport"
	"github.com/stretchr/testify/require"
)

func TestLoopback(t *testing.T) {
	ln, err := Listen("127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	accepted := make(chan transport.Conn, 1)
	errs := make(chan error, 1)
	go func() {
		c, err := ln.Accept(ctx)
		if err != nil {
			errs <- err
			return
		}
		accepted <- c
	}()

	client, err := Dialer{}.Dial(ctx, ln.Addr())
	require.NoError(t, err)
	defer client.Close()

	// The stream only reaches the listener once it carries data.
	_, err = client.Write([]byte("ping"))
	require.NoError(t, err)

	var server transport.Conn
	select {
	case server = <-accepted:
	case err := <-errs:
		t.Fatalf("accept: %v", err)
	case <-ctx.Done():
		t.Fatal("accept timed out")
	}
	defer server.Close()

	buf := make([]byte, 4)
	_, err = io.ReadFull(server, buf)
	require.NoError(t, err)
	require.Equal(t, "ping", string(buf))

	_, err = server.Write([]byte("pong"))
	require.NoError(t, err)
	_, err = io.ReadFull(client, buf)
	require.NoError(t, err)
	require.Equal(t, "pong", string(buf))
}

func TestDialNobody(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()
	_, err := Dialer{}.Dial(ctx, "127.0.0.1:1")
	require.Error(t, err)
	require.Equal(t, fault.KindConnection, fault.KindOf(err))
}
