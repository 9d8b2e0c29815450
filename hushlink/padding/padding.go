// Package padding hides the type of fixed-size values on the wire by rounding
// their length up with a bitmask rule and filling the gap with random bytes.
package padding

import (
	"errors"
	"fmt"
	"io"
	"math/bits"

	"github.com/TheusHen/hushlink/hushlink/fault"
)

var (
	ErrUnsupportedSize = errors.New("padding: unsupported size")
	ErrShortInput      = errors.New("padding: input shorter than original size")
)

// PaddedSize returns the padded length of a value of n bytes. Only the tag,
// nonce and key sizes (16, 24 and 32) are supported.
//
//	E = floor(log2 n), S = floor(log2 E) + 1, mask = 2^(E-S) - 1
func PaddedSize(n int) (int, error) {
	switch n {
	case 16, 24, 32:
	default:
		return 0, fault.E(fault.KindSize, "padding.PaddedSize",
			fmt.Errorf("%w: %d", ErrUnsupportedSize, n))
	}
	e := bits.Len(uint(n)) - 1
	s := bits.Len(uint(e))
	mask := 1<<(e-s) - 1
	return n + mask, nil
}

// Pad copies src into a buffer of its padded size and fills the rest from rand.
func Pad(rand io.Reader, src []byte) ([]byte, error) {
	size, err := PaddedSize(len(src))
	if err != nil {
		return nil, err
	}
	out := make([]byte, size)
	copy(out, src)
	if _, err := io.ReadFull(rand, out[len(src):]); err != nil {
		return nil, fault.E(fault.KindRandomness, "padding.Pad", err)
	}
	return out, nil
}

// Unpad returns a copy of the first n bytes of padded. The filler is ignored.
func Unpad(padded []byte, n int) ([]byte, error) {
	if len(padded) < n {
		return nil, fault.E(fault.KindSize, "padding.Unpad", ErrShortInput)
	}
	out := make([]byte, n)
	copy(out, padded[:n])
	return out, nil
}
