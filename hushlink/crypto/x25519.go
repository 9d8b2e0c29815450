package crypto

import (
	"errors"
	"io"
	"sync"

	"filippo.io/edwards25519"
	"golang.org/x/crypto/curve25519"
)

// HiddenKeyPair is an ephemeral X25519 key pair whose public key admits an
// Elligator 2 representative.
type HiddenKeyPair struct {
	Secret [32]byte
	Public [32]byte
	Hidden [32]byte
}

var (
	ErrInvalidPublicKey = errors.New("crypto: invalid X25519 public key")
	ErrNoRepresentative = errors.New("crypto: no representable key pair found")
)

// DefaultMaxAttempts bounds key pair generation. Each attempt succeeds with
// probability one half, so exhaustion means the randomness source is broken.
const DefaultMaxAttempts = 128

// GenerateHidden draws a tweak byte and a secret scalar from rand until the
// resulting public key can be hidden, at most maxAttempts times.
func GenerateHidden(rand io.Reader, maxAttempts int) (HiddenKeyPair, error) {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	var kp HiddenKeyPair
	var draw [33]byte
	defer Wipe(draw[:])

	for i := 0; i < maxAttempts; i++ {
		if _, err := io.ReadFull(rand, draw[:]); err != nil {
			kp.Wipe()
			return HiddenKeyPair{}, err
		}
		copy(kp.Secret[:], draw[1:])
		kp.Public = dirtyPublicKey(&kp.Secret)
		if hidden, ok := ElligatorReverse(kp.Public, draw[0]); ok {
			kp.Hidden = hidden
			return kp, nil
		}
	}
	kp.Wipe()
	return HiddenKeyPair{}, ErrNoRepresentative
}

// Wipe erases the secret scalar.
func (kp *HiddenKeyPair) Wipe() {
	Wipe(kp.Secret[:])
}

// ECDH computes the raw X25519 shared secret. Low-order peer points are rejected.
func ECDH(secret, peerPublic [32]byte) ([]byte, error) {
	var zero [32]byte
	if peerPublic == zero {
		return nil, ErrInvalidPublicKey
	}
	shared, err := curve25519.X25519(secret[:], peerPublic[:])
	if err != nil {
		return nil, ErrInvalidPublicKey
	}
	return shared, nil
}

// dirtyPublicKey returns the X25519 public key of secret with a low-order
// component selected by the three bits clamping discards. Shared secrets are
// unchanged, but hidden public keys then cover the whole curve instead of the
// prime-order subgroup, which would be detectable.
func dirtyPublicKey(secret *[32]byte) [32]byte {
	s, err := edwards25519.NewScalar().SetBytesWithClamping(secret[:])
	if err != nil {
		panic("crypto: clamping a 32-byte scalar failed")
	}
	p := new(edwards25519.Point).ScalarBaseMult(s)
	p.Add(p, lowOrderPoints()[secret[0]&7])

	var out [32]byte
	copy(out[:], p.BytesMontgomery())
	return out
}

var lowOrderPoints = sync.OnceValue(func() [8]*edwards25519.Point {
	t := torsionGenerator()
	var table [8]*edwards25519.Point
	table[0] = edwards25519.NewIdentityPoint()
	for i := 1; i < len(table); i++ {
		table[i] = new(edwards25519.Point).Add(table[i-1], t)
	}
	return table
})

// torsionGenerator finds a point of order 8 by stripping the prime-order
// component from decoded points: T = P - inv(8)*(8P).
func torsionGenerator() *edwards25519.Point {
	var eight [32]byte
	eight[0] = 8
	inv8, err := edwards25519.NewScalar().SetCanonicalBytes(eight[:])
	if err != nil {
		panic("crypto: scalar 8 is not canonical")
	}
	inv8.Invert(inv8)

	identity := edwards25519.NewIdentityPoint()
	var enc [32]byte
	for y := 2; y < 1<<16; y++ {
		enc[0], enc[1] = byte(y), byte(y>>8)
		p, err := new(edwards25519.Point).SetBytes(enc[:])
		if err != nil {
			continue
		}
		prime := new(edwards25519.Point).MultByCofactor(p)
		prime.ScalarMult(inv8, prime)
		t := new(edwards25519.Point).Subtract(p, prime)

		t4 := new(edwards25519.Point).Add(t, t)
		t4.Add(t4, t4)
		if t4.Equal(identity) == 0 {
			return t
		}
	}
	panic("crypto: no point of order 8 found")
}
