// Package drbg implements XDRBG-256, a fast-key-erasure deterministic random
// bit generator over SHAKE256.
//
// The generator replaces its secret state before any output derived from the
// old state is released, so a later compromise of the state does not reveal
// earlier output.
package drbg

import (
	"errors"
	"sync"

	"github.com/TheusHen/hushlink/hushlink/crypto"
	"github.com/TheusHen/hushlink/hushlink/fault"
	"golang.org/x/crypto/sha3"
)

const (
	// StateSize is the size of the secret value V.
	StateSize = 64
	// MaxChunk is the largest output produced from a single sponge instance.
	MaxChunk = 2 * 136
	// DefaultSeedSize is the amount of entropy drawn at start-up.
	DefaultSeedSize = 64
	// MaxSeedSize is the safe bound on entropy per seed call.
	MaxSeedSize = 110
)

const (
	domainSeed     byte = 0 * 85
	domainReseed   byte = 1 * 85
	domainGenerate byte = 2 * 85
)

var (
	ErrNilState  = errors.New("drbg: nil generator state")
	ErrNotSeeded = errors.New("drbg: generator used before seeding")
	ErrSeedSize  = errors.New("drbg: invalid seed size")
)

// DRBG is an XDRBG-256 instance. It is safe for sequential use from several
// goroutines, although the endpoint only ever drives it from one.
type DRBG struct {
	mu     sync.Mutex
	v      [StateSize]byte
	seeded bool
}

// New returns an unseeded generator.
func New() *DRBG { return &DRBG{} }

// Seed initializes the generator, or reseeds it if it was already seeded.
// The entropy buffer is wiped before Seed returns.
func (d *DRBG) Seed(entropy []byte) error {
	defer crypto.Wipe(entropy)
	if d == nil {
		return fault.E(fault.KindRandomness, "drbg.Seed", ErrNilState)
	}
	if len(entropy) == 0 || len(entropy) > MaxSeedSize {
		return fault.E(fault.KindRandomness, "drbg.Seed", ErrSeedSize)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	h := sha3.NewShake256()
	defer h.Reset()

	domain := domainSeed
	if d.seeded {
		_, _ = h.Write(d.v[:])
		domain = domainReseed
	}
	_, _ = h.Write(entropy)
	_, _ = h.Write([]byte{domain})
	_, _ = h.Read(d.v[:])
	d.seeded = true
	return nil
}

// Generate fills out with pseudorandom bytes.
func (d *DRBG) Generate(out []byte) error {
	if d == nil {
		return fault.E(fault.KindRandomness, "drbg.Generate", ErrNilState)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.seeded {
		return fault.E(fault.KindRandomness, "drbg.Generate", ErrNotSeeded)
	}
	for len(out) > 0 {
		n := min(len(out), MaxChunk)
		d.chunk(out[:n])
		out = out[n:]
	}
	return nil
}

// chunk replaces V and only then squeezes the caller's bytes from the same
// sponge.
func (d *DRBG) chunk(out []byte) {
	h := sha3.NewShake256()
	defer h.Reset()

	_, _ = h.Write(d.v[:])
	_, _ = h.Write([]byte{domainGenerate})
	_, _ = h.Read(d.v[:])
	_, _ = h.Read(out)
}

// Read implements io.Reader so the generator can be threaded into any
// consumer of randomness.
func (d *DRBG) Read(p []byte) (int, error) {
	if err := d.Generate(p); err != nil {
		return 0, err
	}
	return len(p), nil
}

// Seeded reports whether Seed has been called.
func (d *DRBG) Seeded() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.seeded
}

// Wipe erases the state. The generator must be seeded again before use.
func (d *DRBG) Wipe() {
	d.mu.Lock()
	defer d.mu.Unlock()
	crypto.Wipe(d.v[:])
	d.seeded = false
}
