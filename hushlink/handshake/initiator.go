package handshake

import (
	"context"
	"io"

	"github.com/TheusHen/hushlink/hushlink/crypto"
)

// Initiate runs the handshake as the connecting peer. On success the caller
// owns the returned keys and must install and wipe them.
func Initiate(ctx context.Context, rw io.ReadWriter, cfg Config) (keys *Keys, err error) {
	s, err := newState(ctx, rw, cfg, "Initiate")
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
	kp, err := s.generate()
	if err != nil {
		return
	}
	defer kp.Wipe()

	if err = s.step("exchange-first"); err != nil {
		return
	}
	if err = s.sendHidden(&kp); err != nil {
		return
	}
	first, err := s.recvPublic()
	if err != nil {
		return
	}
	if keys.Writing, err = derive(kp.Secret, first, first, kp.Public); err != nil {
		return
	}

	if err = s.step("verify-peer"); err != nil {
		return
	}
	ltk, err := s.longTermKey()
	if err != nil {
		return
	}
	defer crypto.Wipe(ltk)
	if err = s.verifyTag(ltk, keys.Writing); err != nil {
		return
	}

	if err = s.step("exchange-second"); err != nil {
		return
	}
	second, err := s.recvPublic()
	if err != nil {
		return
	}
	if keys.Reading, err = derive(kp.Secret, second, second, kp.Public); err != nil {
		return
	}
	kp.Wipe()

	if err = s.step("authenticate"); err != nil {
		return
	}
	if err = s.sendTag(ltk, keys.Reading); err != nil {
		return
	}
	crypto.Wipe(ltk)

	s.log.Debug("handshake complete")
	return keys, nil
}
