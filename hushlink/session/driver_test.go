package session

import (
	"bytes"
	"context"
	"crypto/rand"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/TheusHen/hushlink/hushlink"
	"github.com/TheusHen/hushlink/hushlink/channel"
	"github.com/TheusHen/hushlink/hushlink/console"
	"github.com/TheusHen/hushlink/hushlink/custody"
	"github.com/TheusHen/hushlink/hushlink/fault"
	"github.com/TheusHen/hushlink/hushlink/transport"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticKey []byte

func (k staticKey) LongTermKey() ([]byte, error) { return bytes.Clone(k), nil }

func lines(input string, out *bytes.Buffer) channel.LineSource {
	return console.New(strings.NewReader(input), out, custody.DefaultParams())
}

type result struct {
	out *bytes.Buffer
	err error
}

func runPair(t *testing.T, clientKey, serverKey staticKey, clientInput, serverInput string, liveCount int) (result, result) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	ln := transport.NewPipeListener()
	defer ln.Close()

	serverPeer := hushlink.NewPeer(rand.Reader, serverKey, channel.DefaultOptions())
	serverPeer.Serve(ln)
	clientPeer := hushlink.NewPeer(rand.Reader, clientKey, channel.DefaultOptions())
	clientPeer.Dialer = ln

	var serverOut, clientOut bytes.Buffer
	server := &Driver{Peer: serverPeer, Role: Server, LiveCount: liveCount, Lines: lines(serverInput, &serverOut), Out: &serverOut}
	client := &Driver{Peer: clientPeer, Role: Client, Address: ln.Addr(), LiveCount: liveCount, Lines: lines(clientInput, &clientOut), Out: &clientOut}

	done := make(chan error, 1)
	go func() { done <- server.Run(ctx) }()
	clientErr := client.Run(ctx)
	serverErr := <-done
	return result{&clientOut, clientErr}, result{&serverOut, serverErr}
}

func TestDriverRunsLiveCountSessions(t *testing.T) {
	key := staticKey(bytes.Repeat([]byte{4}, 32))
	c, s := runPair(t, key, key, "hi\nexit\n", "exit\n", 2)

	assert.ErrorIs(t, c.err, ErrRestartRequired)
	assert.ErrorIs(t, s.err, ErrRestartRequired)
	assert.Contains(t, s.out.String(), "From peer: hi\n")
	assert.Contains(t, c.out.String(), "From peer: exit\n")
	assert.Equal(t, 2, strings.Count(c.out.String(), "Secure session established"))
	assert.Equal(t, 2, strings.Count(s.out.String(), "Secure session established"))
}

func TestDriverStopsOnProtocolFault(t *testing.T) {
	c, s := runPair(t,
		staticKey(bytes.Repeat([]byte{1}, 32)),
		staticKey(bytes.Repeat([]byte{2}, 32)),
		"hi\n", "exit\n", 6)

	require.Error(t, c.err)
	require.Error(t, s.err)
	assert.True(t, fault.Is(c.err, fault.KindProtocol))
	assert.True(t, fault.Is(s.err, fault.KindProtocol))
	assert.Contains(t, c.out.String(), "Fatal:")
	assert.NotContains(t, c.out.String(), "Secure session established")
}

// mistypedPIN fails the way the vault does when the PIN is malformed.
type mistypedPIN struct{}

func (mistypedPIN) LongTermKey() ([]byte, error) {
	return nil, fault.E(fault.KindInput, "test.LongTermKey", custody.ErrPINFormat)
}

func TestDriverStopsOnInputFault(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	ln := transport.NewPipeListener()
	defer ln.Close()
	serverPeer := hushlink.NewPeer(rand.Reader, staticKey(bytes.Repeat([]byte{3}, 32)), channel.DefaultOptions())
	serverPeer.Serve(ln)
	clientPeer := hushlink.NewPeer(rand.Reader, mistypedPIN{}, channel.DefaultOptions())
	clientPeer.Dialer = ln

	var serverOut, clientOut bytes.Buffer
	server := &Driver{Peer: serverPeer, Role: Server, LiveCount: 3, Lines: lines("exit\n", &serverOut), Out: &serverOut}
	client := &Driver{Peer: clientPeer, Role: Client, Address: ln.Addr(), LiveCount: 3, Lines: lines("hi\n", &clientOut), Out: &clientOut}

	done := make(chan error, 1)
	go func() { done <- server.Run(ctx) }()
	err := client.Run(ctx)
	require.NoError(t, ln.Close())
	<-done

	require.Error(t, err)
	assert.True(t, fault.Is(err, fault.KindInput))
	assert.ErrorIs(t, err, custody.ErrPINFormat)
	assert.Equal(t, 1, strings.Count(clientOut.String(), "Connecting to"))
	assert.Contains(t, clientOut.String(), "Fatal:")
}

type refusingDialer struct{ calls int }

func (d *refusingDialer) Dial(context.Context, string) (transport.Conn, error) {
	d.calls++
	return nil, fault.E(fault.KindConnection, "test.Dial", errors.New("connection refused"))
}

func TestDriverRetriesConnectionFaults(t *testing.T) {
	peer := hushlink.NewPeer(rand.Reader, staticKey(make([]byte, 32)), channel.DefaultOptions())
	dialer := &refusingDialer{}
	peer.Dialer = dialer

	var out bytes.Buffer
	d := &Driver{Peer: peer, Role: Client, Address: "192.168.137.1:8087", LiveCount: 3, Lines: lines("", &out), Out: &out}
	err := d.Run(context.Background())
	assert.ErrorIs(t, err, ErrRestartRequired)
	assert.Equal(t, 3, dialer.calls)
	assert.Equal(t, 3, strings.Count(out.String(), "Session ended"))
}

func TestDriverCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	peer := hushlink.NewPeer(rand.Reader, staticKey(make([]byte, 32)), channel.DefaultOptions())
	d := &Driver{Peer: peer, Role: Client, LiveCount: 3, Lines: lines("", &bytes.Buffer{})}
	assert.ErrorIs(t, d.Run(ctx), context.Canceled)
}

func TestDriverNeedsLines(t *testing.T) {
	d := &Driver{Peer: hushlink.NewPeer(rand.Reader, staticKey(make([]byte, 32)), channel.DefaultOptions())}
	assert.ErrorIs(t, d.Run(context.Background()), ErrNoLines)
}
