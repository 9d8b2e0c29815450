package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/TheusHen/hushlink/hushlink/fault"
	"github.com/TheusHen/hushlink/hushlink/padding"
)

// TagSize is the size of the AEAD tag carried by each frame.
const TagSize = 16

var (
	ErrFrameTooLarge = errors.New("protocol: frame body too large")
	ErrShortWrite    = errors.New("protocol: short write")
)

// Frame is the unit of the message loop.
//
//	pad(16-byte tag)    17 bytes
//	body length         4 bytes, big endian
//	body                N bytes of ciphertext
type Frame struct {
	Tag  [TagSize]byte
	Body []byte
}

// WritePadded pads v to its size class and writes it.
func WritePadded(w io.Writer, rand io.Reader, v []byte) error {
	padded, err := padding.Pad(rand, v)
	if err != nil {
		return err
	}
	return writeAll(w, "protocol.WritePadded", padded)
}

// ReadPadded reads a padded value whose original size is n and returns the
// unpadded value.
func ReadPadded(r io.Reader, n int) ([]byte, error) {
	size, err := padding.PaddedSize(n)
	if err != nil {
		return nil, err
	}
	buf := make([]byte, size)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, fault.E(fault.KindIO, "protocol.ReadPadded", err)
	}
	return padding.Unpad(buf, n)
}

// WriteFrame writes f in a single call so the frame is never interleaved with
// other writes on the stream.
func WriteFrame(w io.Writer, rand io.Reader, f Frame, maxBody int) error {
	if len(f.Body) > maxBody {
		return fault.E(fault.KindSize, "protocol.WriteFrame",
			fmt.Errorf("%w: %d > %d", ErrFrameTooLarge, len(f.Body), maxBody))
	}
	tag, err := padding.Pad(rand, f.Tag[:])
	if err != nil {
		return err
	}
	out := make([]byte, 0, len(tag)+4+len(f.Body))
	out = append(out, tag...)
	out = binary.BigEndian.AppendUint32(out, uint32(len(f.Body)))
	out = append(out, f.Body...)
	return writeAll(w, "protocol.WriteFrame", out)
}

// ReadFrame reads one frame. A length field above maxBody is rejected before
// any body bytes are read.
func ReadFrame(r io.Reader, maxBody int) (Frame, error) {
	var f Frame
	tag, err := ReadPadded(r, TagSize)
	if err != nil {
		return f, err
	}
	copy(f.Tag[:], tag)

	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return f, fault.E(fault.KindIO, "protocol.ReadFrame", err)
	}
	n := binary.BigEndian.Uint32(lenBuf[:])
	if uint64(n) > uint64(maxBody) {
		return f, fault.E(fault.KindSize, "protocol.ReadFrame",
			fmt.Errorf("%w: %d > %d", ErrFrameTooLarge, n, maxBody))
	}
	f.Body = make([]byte, n)
	if _, err := io.ReadFull(r, f.Body); err != nil {
		return f, fault.E(fault.KindIO, "protocol.ReadFrame", err)
	}
	return f, nil
}

func writeAll(w io.Writer, op string, b []byte) error {
	n, err := w.Write(b)
	if err != nil {
		return fault.E(fault.KindIO, op, err)
	}
	if n != len(b) {
		return fault.E(fault.KindIO, op, ErrShortWrite)
	}
	return nil
}
