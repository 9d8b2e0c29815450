// Package handshake runs the two-pass hidden key exchange that opens a chat
// session.
//
// Both peers hold the same long-term key. Public keys travel as padded
// Elligator 2 representatives, so the exchange looks like random bytes. Two
// independent exchanges yield a writing key and a reading key, and each peer
// proves possession of the long-term key with a keyed tag over one of them:
//
//	initiator                          responder
//	pad(hidden_i)        ---------->
//	                     <----------   pad(hidden_r1)
//	                     <----------   pad(tag over k1)
//	                     <----------   pad(hidden_r2)
//	pad(tag over k2)     ---------->
//
// k1 is the initiator's writing key and the responder's reading key; k2 is the
// reverse. The responder proves itself first, and the initiator only answers
// once the responder's tag checked out.
package handshake

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/TheusHen/hushlink/hushlink/crypto"
	"github.com/TheusHen/hushlink/hushlink/fault"
	"github.com/TheusHen/hushlink/hushlink/logging"
	"github.com/TheusHen/hushlink/hushlink/protocol"
	"github.com/sirupsen/logrus"
)

var (
	ErrAuthFailed      = errors.New("handshake: peer failed authentication")
	ErrPeerAbandoned   = errors.New("handshake: peer left before authenticating")
	ErrNoKeySource     = errors.New("handshake: no long-term key source")
	ErrNoRandomness    = errors.New("handshake: no randomness source")
	ErrInvalidPeerKey  = errors.New("handshake: invalid peer public key")
	ErrLongTermKeySize = errors.New("handshake: long-term key has wrong size")
)

// KeySource yields the long-term key. It is asked once per handshake, at the
// moment the key is needed, and the caller wipes the result.
type KeySource interface {
	LongTermKey() ([]byte, error)
}

// Config carries what a handshake needs besides the stream.
type Config struct {
	Rand        io.Reader
	Keys        KeySource
	MaxAttempts int
	Log         *logrus.Entry
}

// Keys are the two directional session keys.
type Keys struct {
	Writing [crypto.KeySize]byte
	Reading [crypto.KeySize]byte
}

// Wipe erases both keys.
func (k *Keys) Wipe() {
	if k == nil {
		return
	}
	crypto.Wipe(k.Writing[:])
	crypto.Wipe(k.Reading[:])
}

type state struct {
	ctx context.Context
	rw  io.ReadWriter
	cfg Config
	log *logrus.Entry
}

func newState(ctx context.Context, rw io.ReadWriter, cfg Config, function string) (*state, error) {
	if cfg.Rand == nil {
		return nil, fault.E(fault.KindRandomness, "handshake."+function, ErrNoRandomness)
	}
	if cfg.Keys == nil {
		return nil, fault.E(fault.KindInput, "handshake."+function, ErrNoKeySource)
	}
	return &state{
		ctx: ctx,
		rw:  rw,
		cfg: cfg,
		log: logging.For(cfg.Log, "handshake", function),
	}, nil
}

type deadliner interface {
	SetDeadline(t time.Time) error
}

// bindDeadline applies the context deadline to the stream, if it has one. The
// returned func clears it.
func (s *state) bindDeadline() func() {
	d, ok := s.rw.(deadliner)
	if !ok {
		return func() {}
	}
	dl, ok := s.ctx.Deadline()
	if !ok {
		return func() {}
	}
	_ = d.SetDeadline(dl)
	return func() { _ = d.SetDeadline(time.Time{}) }
}

func (s *state) step(name string) error {
	if err := s.ctx.Err(); err != nil {
		return fault.E(fault.KindConnection, "handshake."+name, err)
	}
	s.log.WithField("step", name).Debug("handshake step")
	return nil
}

func (s *state) generate() (crypto.HiddenKeyPair, error) {
	kp, err := crypto.GenerateHidden(s.cfg.Rand, s.cfg.MaxAttempts)
	if err != nil {
		return kp, fault.E(fault.KindRandomness, "handshake.generate", err)
	}
	return kp, nil
}

func (s *state) sendHidden(kp *crypto.HiddenKeyPair) error {
	return protocol.WritePadded(s.rw, s.cfg.Rand, kp.Hidden[:])
}

// recvPublic reads a padded representative and maps it back to a public key.
func (s *state) recvPublic() ([32]byte, error) {
	var pub [32]byte
	b, err := protocol.ReadPadded(s.rw, 32)
	if err != nil {
		return pub, err
	}
	var hidden [32]byte
	copy(hidden[:], b)
	return crypto.ElligatorMap(hidden), nil
}

// derive runs X25519 and hashes the result with both public keys. The raw
// shared secret never outlives this call.
func derive(secret, peer, responderPub, initiatorPub [32]byte) ([crypto.KeySize]byte, error) {
	shared, err := crypto.ECDH(secret, peer)
	if err != nil {
		return [crypto.KeySize]byte{}, fault.E(fault.KindProtocol, "handshake.derive", ErrInvalidPeerKey)
	}
	defer crypto.Wipe(shared)
	return crypto.DeriveKey(shared, responderPub, initiatorPub), nil
}

func (s *state) longTermKey() ([]byte, error) {
	ltk, err := s.cfg.Keys.LongTermKey()
	if err != nil {
		return nil, fault.E(fault.KindInput, "handshake.longTermKey", err)
	}
	if len(ltk) != crypto.KeySize {
		crypto.Wipe(ltk)
		return nil, fault.E(fault.KindStorage, "handshake.longTermKey", ErrLongTermKeySize)
	}
	return ltk, nil
}

func (s *state) sendTag(ltk []byte, key [crypto.KeySize]byte) error {
	tag, err := crypto.AuthTag(ltk, key)
	if err != nil {
		return fault.E(fault.KindProtocol, "handshake.sendTag", err)
	}
	defer crypto.Wipe(tag[:])
	return protocol.WritePadded(s.rw, s.cfg.Rand, tag[:])
}

// verifyTag receives the peer's tag and compares it in constant time with our
// own tag over key.
func (s *state) verifyTag(ltk []byte, key [crypto.KeySize]byte) error {
	want, err := crypto.AuthTag(ltk, key)
	if err != nil {
		return fault.E(fault.KindProtocol, "handshake.verifyTag", err)
	}
	defer crypto.Wipe(want[:])

	got, err := protocol.ReadPadded(s.rw, crypto.TagSize)
	if err != nil {
		return err
	}
	if !crypto.Equal(got, want[:]) {
		return fault.E(fault.KindProtocol, "handshake.verifyTag", ErrAuthFailed)
	}
	return nil
}
