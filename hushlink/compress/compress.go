// Package compress shrinks chat lines before they are sealed. Both directions
// are bounded so an oversized result is reported instead of truncated.
package compress

import (
	"errors"
	"fmt"
	"sync"

	"github.com/TheusHen/hushlink/hushlink/crypto"
	"github.com/TheusHen/hushlink/hushlink/fault"
	"github.com/pierrec/lz4/v4"
)

var (
	ErrCompressionFailed   = errors.New("compress: compression failed")
	ErrDecompressionFailed = errors.New("compress: decompression failed")
	ErrOverflow            = errors.New("compress: output exceeds buffer")
	ErrUnknownLevel        = errors.New("compress: unknown level")
)

// Level controls the speed/ratio tradeoff.
type Level int

const (
	Fast Level = iota
	Default
	Best
)

// ParseLevel maps a configuration value to a Level.
func ParseLevel(s string) (Level, error) {
	switch s {
	case "fast":
		return Fast, nil
	case "default", "":
		return Default, nil
	case "best":
		return Best, nil
	default:
		return Default, fmt.Errorf("%w: %q", ErrUnknownLevel, s)
	}
}

func (l Level) String() string {
	switch l {
	case Fast:
		return "fast"
	case Best:
		return "best"
	default:
		return "default"
	}
}

// Every compressed line starts with one format byte. Lines LZ4 cannot shrink
// are stored as they are.
const (
	formatStored byte = 0
	formatBlock  byte = 1
)

// maxRatio bounds how far one byte of an LZ4 block can expand.
const maxRatio = 255

// Compressors only remember match offsets, never input bytes, so they are
// pooled. Plaintext lives solely in buffers allocated here and wiped here.
var fastPool = sync.Pool{
	New: func() interface{} { return new(lz4.Compressor) },
}

var hcPool = sync.Pool{
	New: func() interface{} { return new(lz4.CompressorHC) },
}

// newBuffer allocates every work and output buffer.
var newBuffer = func(n int) []byte { return make([]byte, n) }

func compressBlock(level Level, src, dst []byte) (int, error) {
	if level == Fast {
		c := fastPool.Get().(*lz4.Compressor)
		defer fastPool.Put(c)
		return c.CompressBlock(src, dst)
	}
	c := hcPool.Get().(*lz4.CompressorHC)
	defer hcPool.Put(c)
	c.Level = lz4.Level4
	if level == Best {
		c.Level = lz4.Level9
	}
	return c.CompressBlock(src, dst)
}

// Compress compresses data with LZ4. A result longer than maxOut is a size
// fault. The caller owns the result and wipes it.
func Compress(data []byte, level Level, maxOut int) ([]byte, error) {
	dst := newBuffer(1 + lz4.CompressBlockBound(len(data)))
	n, err := compressBlock(level, data, dst[1:])
	if err != nil {
		crypto.Wipe(dst)
		return nil, fault.E(fault.KindSize, "compress.Compress", ErrCompressionFailed)
	}
	if n == 0 || n >= len(data) {
		dst[0] = formatStored
		n = copy(dst[1:], data)
	} else {
		dst[0] = formatBlock
	}
	crypto.Wipe(dst[1+n:])

	if 1+n > maxOut {
		crypto.Wipe(dst)
		return nil, fault.E(fault.KindSize, "compress.Compress",
			fmt.Errorf("%w: %d > %d", ErrOverflow, 1+n, maxOut))
	}
	return dst[:1+n], nil
}

// Decompress expands data produced by Compress. At most maxOut bytes are
// produced; more is a size fault. The caller owns the result and wipes it.
func Decompress(data []byte, maxOut int) ([]byte, error) {
	if len(data) == 0 {
		return nil, fault.E(fault.KindProtocol, "compress.Decompress", ErrDecompressionFailed)
	}
	body := data[1:]
	switch data[0] {
	case formatStored:
		if len(body) > maxOut {
			return nil, overflow(maxOut)
		}
		out := newBuffer(len(body))
		copy(out, body)
		return out, nil

	case formatBlock:
		work := newBuffer(maxRatio*len(body) + 64)
		defer crypto.Wipe(work)
		n, err := lz4.UncompressBlock(body, work)
		if err != nil {
			return nil, fault.E(fault.KindProtocol, "compress.Decompress", ErrDecompressionFailed)
		}
		if n > maxOut {
			return nil, overflow(maxOut)
		}
		out := newBuffer(n)
		copy(out, work[:n])
		return out, nil

	default:
		return nil, fault.E(fault.KindProtocol, "compress.Decompress", ErrDecompressionFailed)
	}
}

func overflow(maxOut int) error {
	return fault.E(fault.KindSize, "compress.Decompress",
		fmt.Errorf("%w: more than %d bytes", ErrOverflow, maxOut))
}
