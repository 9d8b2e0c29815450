package drbg

import (
	"crypto/rand"
	"io"

	"github.com/TheusHen/hushlink/hushlink/crypto"
	"github.com/TheusHen/hushlink/hushlink/fault"
)

// Source fills a buffer with entropy.
type Source interface {
	Fill(b []byte) error
}

// SystemSource draws entropy from the operating system.
type SystemSource struct{}

func (SystemSource) Fill(b []byte) error {
	if len(b) > MaxSeedSize {
		return ErrSeedSize
	}
	_, err := io.ReadFull(rand.Reader, b)
	return err
}

// ReaderSource adapts an io.Reader, such as a hardware RNG device, into a Source.
type ReaderSource struct {
	R io.Reader
}

func (s ReaderSource) Fill(b []byte) error {
	if len(b) > MaxSeedSize {
		return ErrSeedSize
	}
	_, err := io.ReadFull(s.R, b)
	return err
}

// SeedFrom draws n bytes from src and returns a generator seeded with them.
func SeedFrom(src Source, n int) (*DRBG, error) {
	if n <= 0 || n > MaxSeedSize {
		return nil, fault.E(fault.KindRandomness, "drbg.SeedFrom", ErrSeedSize)
	}
	entropy := make([]byte, n)
	defer crypto.Wipe(entropy)

	if err := src.Fill(entropy); err != nil {
		return nil, fault.E(fault.KindRandomness, "drbg.SeedFrom", err)
	}
	d := New()
	if err := d.Seed(entropy); err != nil {
		return nil, err
	}
	return d, nil
}
