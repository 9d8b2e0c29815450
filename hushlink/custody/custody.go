// Package custody protects the long-term authentication key at rest. The key
// is stored XOR-masked with an Argon2i hash of a short numeric PIN and a
// per-device salt.
package custody

import (
	"errors"

	"github.com/TheusHen/hushlink/hushlink/crypto"
	"github.com/TheusHen/hushlink/hushlink/fault"
	"github.com/TheusHen/hushlink/hushlink/scratch"
	"golang.org/x/crypto/argon2"
)

var (
	ErrPINFormat = errors.New("custody: PIN must be decimal digits")
	ErrPINLength = errors.New("custody: wrong PIN length")
	ErrKeySize   = errors.New("custody: wrapped key has wrong size")
	ErrSaltSize  = errors.New("custody: salt has wrong size")
)

// Params are the PIN and password-hash settings.
type Params struct {
	MemoryKiB     uint32 `mapstructure:"memory_kib"`
	Iterations    uint32 `mapstructure:"iterations"`
	Lanes         uint8  `mapstructure:"lanes"`
	PINLength     int    `mapstructure:"pin_length"`
	PINBufferSize int    `mapstructure:"pin_buffer_size"`
	SaltSize      int    `mapstructure:"salt_size"`
}

// DefaultParams: 10 KiB of memory, 200 passes, one lane, 6-digit PINs.
func DefaultParams() Params {
	return Params{
		MemoryKiB:     10,
		Iterations:    200,
		Lanes:         1,
		PINLength:     6,
		PINBufferSize: 24,
		SaltSize:      16,
	}
}

// ValidatePIN checks raw console input: exactly PINLength decimal digits
// followed by a newline. The digit check runs first so a typo is reported as a
// format error rather than a length error.
func ValidatePIN(raw []byte, p Params) error {
	for i := 0; i < p.PINLength; i++ {
		if i >= len(raw) || raw[i] < '0' || raw[i] > '9' {
			return fault.E(fault.KindInput, "custody.ValidatePIN", ErrPINFormat)
		}
	}
	if len(raw) != p.PINLength+1 || raw[p.PINLength] != '\n' || len(raw) > p.PINBufferSize {
		return fault.E(fault.KindInput, "custody.ValidatePIN", ErrPINLength)
	}
	return nil
}

// HashPIN runs Argon2i over the PIN digits and salt.
func HashPIN(pin, salt []byte, p Params) []byte {
	return argon2.Key(pin, salt, p.Iterations, p.MemoryKiB, p.Lanes, crypto.KeySize)
}

// Transform validates rawPIN and XORs key with the PIN hash. Wrapping and
// unwrapping are the same operation. rawPIN and salt are wiped before
// Transform returns, on every path.
func Transform(key, rawPIN, salt []byte, p Params, alloc scratch.Allocator) ([]byte, error) {
	defer crypto.Wipe(rawPIN)
	defer crypto.Wipe(salt)

	if err := ValidatePIN(rawPIN, p); err != nil {
		return nil, err
	}
	if len(key) != crypto.KeySize {
		return nil, fault.E(fault.KindStorage, "custody.Transform", ErrKeySize)
	}
	if len(salt) != p.SaltSize {
		return nil, fault.E(fault.KindStorage, "custody.Transform", ErrSaltSize)
	}
	if alloc == nil {
		alloc = scratch.HeapAllocator{}
	}

	out := make([]byte, crypto.KeySize)
	err := scratch.With(alloc, p.PINLength+crypto.KeySize, func(work []byte) error {
		pin := work[:p.PINLength]
		hash := work[p.PINLength:]
		copy(pin, rawPIN[:p.PINLength])

		h := HashPIN(pin, salt, p)
		copy(hash, h)
		crypto.Wipe(h)

		for i := range out {
			out[i] = key[i] ^ hash[i]
		}
		return nil
	})
	if err != nil {
		crypto.Wipe(out)
		return nil, fault.E(fault.KindSize, "custody.Transform", err)
	}
	return out, nil
}
