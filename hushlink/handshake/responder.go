package handshake

import (
	"context"
	"errors"
	"io"
	"net"
	"syscall"

	"github.com/TheusHen/hushlink/hushlink/crypto"
	"github.com/TheusHen/hushlink/hushlink/fault"
)

// Respond runs the handshake as the accepting peer. It uses two ephemeral key
// pairs against the initiator's single one.
func Respond(ctx context.Context, rw io.ReadWriter, cfg Config) (keys *Keys, err error) {
	s, err := newState(ctx, rw, cfg, "Respond")
	if err != nil {
		return nil, err
	}
	defer s.bindDeadline()()

	keys = &Keys{}
	defer func() {
		if err != nil {
			keys.Wipe()
			keys = nil
			s.log.WithError(err).Debug("handshake aborted")
		}
	}()

	if err = s.step("generate"); err != nil {
		return
	}
	first, err := s.generate()
	if err != nil {
		return
	}
	defer first.Wipe()

	if err = s.step("exchange-first"); err != nil {
		return
	}
	peer, err := s.recvPublic()
	if err != nil {
		return
	}
	if err = s.sendHidden(&first); err != nil {
		return
	}
	if keys.Reading, err = derive(first.Secret, peer, first.Public, peer); err != nil {
		return
	}
	first.Wipe()

	if err = s.step("authenticate"); err != nil {
		return
	}
	ltk, err := s.longTermKey()
	if err != nil {
		return
	}
	defer crypto.Wipe(ltk)
	if err = s.sendTag(ltk, keys.Reading); err != nil {
		return
	}

	if err = s.step("exchange-second"); err != nil {
		return
	}
	second, err := s.generate()
	if err != nil {
		return
	}
	defer second.Wipe()
	if err = s.sendHidden(&second); err != nil {
		err = abandoned(err)
		return
	}
	if keys.Writing, err = derive(second.Secret, peer, second.Public, peer); err != nil {
		return
	}
	second.Wipe()

	if err = s.step("verify-peer"); err != nil {
		return
	}
	if err = s.verifyTag(ltk, keys.Writing); err != nil {
		err = abandoned(err)
		return
	}
	crypto.Wipe(ltk)

	s.log.Debug("handshake complete")
	return keys, nil
}

// abandoned reclassifies a transport failure after our tag was sent. An
// initiator that rejected the tag hangs up instead of answering, which counts
// as a failed authentication.
func abandoned(err error) error {
	switch {
	case errors.Is(err, io.EOF),
		errors.Is(err, io.ErrUnexpectedEOF),
		errors.Is(err, io.ErrClosedPipe),
		errors.Is(err, net.ErrClosed),
		errors.Is(err, syscall.EPIPE),
		errors.Is(err, syscall.ECONNRESET):
		return &fault.Error{Kind: fault.KindProtocol, Op: "handshake.Respond", Err: errors.Join(ErrPeerAbandoned, err)}
	default:
		return err
	}
}
