// Package channel is the encrypted message loop that follows a handshake.
//
// Each direction has its own ratchet context, keyed with one of the handshake
// keys and a 24-byte nonce sent in the clear (padded). Lines are compressed,
// sealed and framed as
//
//	[pad(tag) 17][length 4, big endian][ciphertext]
//
// Any authentication failure ends the session without delivering the message.
package channel

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/TheusHen/hushlink/hushlink/compress"
	"github.com/TheusHen/hushlink/hushlink/crypto"
	"github.com/TheusHen/hushlink/hushlink/crypto/ratchet"
	"github.com/TheusHen/hushlink/hushlink/fault"
	"github.com/TheusHen/hushlink/hushlink/handshake"
	"github.com/TheusHen/hushlink/hushlink/logging"
	"github.com/TheusHen/hushlink/hushlink/protocol"
	"github.com/sirupsen/logrus"
)

var (
	ErrMessageAltered = errors.New("channel: message altered or out of sync")
	ErrLineTooLong    = errors.New("channel: line exceeds bound")
	ErrNoKeys         = errors.New("channel: no session keys")
	ErrClosed         = errors.New("channel: closed")
)

// Swapped in tests to observe the buffers a message passes through.
var (
	pack   = compress.Compress
	unpack = compress.Decompress
)

// Role says which side of the handshake this peer played.
type Role int

const (
	Initiator Role = iota
	Responder
)

func (r Role) String() string {
	if r == Initiator {
		return "initiator"
	}
	return "responder"
}

// Options bound the message loop.
type Options struct {
	LineMax    int
	BufferMax  int
	StopPhrase string
	Level      compress.Level
	Log        *logrus.Entry
}

// DefaultOptions: 400-byte lines, 500-byte buffers, "exit" ends the chat.
func DefaultOptions() Options {
	return Options{
		LineMax:    400,
		BufferMax:  500,
		StopPhrase: "exit",
		Level:      compress.Default,
	}
}

// Channel is an established message loop over a byte stream.
type Channel struct {
	rw   io.ReadWriter
	rand io.Reader
	role Role
	opts Options
	log  *logrus.Entry

	send *ratchet.Context
	recv *ratchet.Context
}

// Open exchanges nonces and installs the session keys. The initiator sends
// its nonce first. keys are wiped whether or not Open succeeds.
func Open(rw io.ReadWriter, keys *handshake.Keys, role Role, rand io.Reader, opts Options) (*Channel, error) {
	if keys == nil {
		return nil, fault.E(fault.KindProtocol, "channel.Open", ErrNoKeys)
	}
	defer keys.Wipe()

	log := logging.For(opts.Log, "channel", "Open").WithField("role", role)

	var own [ratchet.NonceSize]byte
	if _, err := io.ReadFull(rand, own[:]); err != nil {
		return nil, fault.E(fault.KindRandomness, "channel.Open", err)
	}

	var peer []byte
	var err error
	if role == Initiator {
		if err = protocol.WritePadded(rw, rand, own[:]); err == nil {
			peer, err = protocol.ReadPadded(rw, ratchet.NonceSize)
		}
	} else {
		if peer, err = protocol.ReadPadded(rw, ratchet.NonceSize); err == nil {
			err = protocol.WritePadded(rw, rand, own[:])
		}
	}
	if err != nil {
		return nil, err
	}

	send, err := ratchet.New(keys.Writing[:], own[:])
	if err != nil {
		return nil, fault.E(fault.KindProtocol, "channel.Open", err)
	}
	recv, err := ratchet.New(keys.Reading[:], peer)
	if err != nil {
		send.Wipe()
		return nil, fault.E(fault.KindProtocol, "channel.Open", err)
	}

	log.Debug("channel open")
	return &Channel{
		rw:   rw,
		rand: rand,
		role: role,
		opts: opts,
		log:  logging.For(opts.Log, "channel", "Channel"),
		send: send,
		recv: recv,
	}, nil
}

// Role returns the side this peer played in the handshake.
func (c *Channel) Role() Role { return c.role }

// IsStop reports whether text starts with the stop phrase.
func (c *Channel) IsStop(text []byte) bool {
	return c.opts.StopPhrase != "" && bytes.HasPrefix(text, []byte(c.opts.StopPhrase))
}

// Send compresses, seals and writes one line.
func (c *Channel) Send(line []byte) error {
	if c.send == nil {
		return fault.E(fault.KindProtocol, "channel.Send", ErrClosed)
	}
	if len(line) > c.opts.LineMax {
		return fault.E(fault.KindInput, "channel.Send",
			fmt.Errorf("%w: %d > %d", ErrLineTooLong, len(line), c.opts.LineMax))
	}
	packed, err := pack(line, c.opts.Level, c.opts.BufferMax)
	if err != nil {
		return err
	}
	defer crypto.Wipe(packed)
	ct, tag, err := c.send.Seal(packed)
	if err != nil {
		return fault.E(fault.KindProtocol, "channel.Send", err)
	}
	defer crypto.Wipe(tag[:])

	if err := protocol.WriteFrame(c.rw, c.rand, protocol.Frame{Tag: tag, Body: ct}, c.opts.BufferMax); err != nil {
		return err
	}
	c.log.WithField("size", len(ct)).Debug("sent")
	return nil
}

// Receive reads, opens and decompresses one line. The text is cut at its first
// newline, which is dropped.
func (c *Channel) Receive() ([]byte, error) {
	if c.recv == nil {
		return nil, fault.E(fault.KindProtocol, "channel.Receive", ErrClosed)
	}
	f, err := protocol.ReadFrame(c.rw, c.opts.BufferMax)
	if err != nil {
		return nil, err
	}
	packed, err := c.recv.Open(f.Body, f.Tag)
	if err != nil {
		return nil, &fault.Error{Kind: fault.KindProtocol, Op: "channel.Receive", Err: errors.Join(ErrMessageAltered, err)}
	}
	defer crypto.Wipe(packed)

	text, err := unpack(packed, c.opts.BufferMax)
	if err != nil {
		return nil, err
	}
	if i := bytes.IndexByte(text, '\n'); i >= 0 {
		crypto.Wipe(text[i:])
		text = text[:i]
	}
	c.log.WithField("size", len(f.Body)).Debug("received")
	return text, nil
}

// Close wipes both ratchet contexts. The stream is left to its owner.
func (c *Channel) Close() {
	if c.send != nil {
		c.send.Wipe()
		c.send = nil
	}
	if c.recv != nil {
		c.recv.Wipe()
		c.recv = nil
	}
}
