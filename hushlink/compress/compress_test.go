package compress

import (
	"bytes"
	"crypto/rand"
	"testing"

	"github.com/TheusHen/hushlink/hushlink/fault"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoundTrip(t *testing.T) {
	for _, level := range []Level{Fast, Default, Best} {
		t.Run(level.String(), func(t *testing.T) {
			for _, msg := range [][]byte{
				[]byte("hello\n"),
				bytes.Repeat([]byte("abc"), 130),
			} {
				c, err := Compress(msg, level, 500)
				require.NoError(t, err)
				d, err := Decompress(c, 400)
				require.NoError(t, err)
				assert.Equal(t, len(msg), len(d))
				assert.True(t, bytes.Equal(msg, d))
			}
		})
	}
}

func TestRepetitiveShrinks(t *testing.T) {
	msg := bytes.Repeat([]byte("a"), 400)
	c, err := Compress(msg, Default, 500)
	require.NoError(t, err)
	assert.Less(t, len(c), len(msg))
}

func TestCompressOverflow(t *testing.T) {
	msg := make([]byte, 400)
	_, _ = rand.Read(msg)
	_, err := Compress(msg, Default, 100)
	require.ErrorIs(t, err, ErrOverflow)
	assert.True(t, fault.Is(err, fault.KindSize))
}

func TestDecompressOverflow(t *testing.T) {
	c, err := Compress(bytes.Repeat([]byte("z"), 1000), Default, 500)
	require.NoError(t, err)
	_, err = Decompress(c, 400)
	require.ErrorIs(t, err, ErrOverflow)
	assert.True(t, fault.Is(err, fault.KindSize))
}

func TestDecompressGarbage(t *testing.T) {
	_, err := Decompress([]byte("definitely not lz4"), 400)
	require.ErrorIs(t, err, ErrDecompressionFailed)
}

func TestIncompressibleStored(t *testing.T) {
	msg := make([]byte, 400)
	_, _ = rand.Read(msg)
	c, err := Compress(msg, Best, 500)
	require.NoError(t, err)
	assert.Equal(t, formatStored, c[0])
	assert.Len(t, c, 401)
}

func TestDecompressCorruptBlock(t *testing.T) {
	for _, data := range [][]byte{
		nil,
		{formatBlock, 0xff, 0xff},
		{formatBlock, 0x40, 'a'},
	} {
		_, err := Decompress(data, 400)
		require.ErrorIs(t, err, ErrDecompressionFailed)
		assert.True(t, fault.Is(err, fault.KindProtocol))
	}
}

// trackBuffers records every buffer the package allocates until the test ends.
func trackBuffers(t *testing.T) *[][]byte {
	var bufs [][]byte
	orig := newBuffer
	newBuffer = func(n int) []byte {
		b := make([]byte, n)
		bufs = append(bufs, b)
		return b
	}
	t.Cleanup(func() { newBuffer = orig })
	return &bufs
}

func allZero(b []byte) bool {
	for _, v := range b {
		if v != 0 {
			return false
		}
	}
	return true
}

func TestDecompressWipesWorkBuffer(t *testing.T) {
	secret := []byte("meet-me-at-the-old-bridge-at-9 meet-me-at-the-old-bridge-at-9\n")
	c, err := Compress(secret, Default, 500)
	require.NoError(t, err)
	require.Equal(t, formatBlock, c[0])

	bufs := trackBuffers(t)
	out, err := Decompress(c, 400)
	require.NoError(t, err)
	require.Equal(t, secret, out)

	// The work buffer and the result are the only allocations.
	require.Len(t, *bufs, 2)
	assert.True(t, allZero((*bufs)[0]), "work buffer still holds plaintext")
}

func TestRejectedOutputIsWiped(t *testing.T) {
	bufs := trackBuffers(t)
	msg := make([]byte, 400)
	_, _ = rand.Read(msg)
	_, err := Compress(msg, Fast, 100)
	require.ErrorIs(t, err, ErrOverflow)
	require.Len(t, *bufs, 1)
	assert.True(t, allZero((*bufs)[0]))

	*bufs = nil
	c, err := Compress(bytes.Repeat([]byte("z"), 1000), Default, 500)
	require.NoError(t, err)
	*bufs = nil
	_, err = Decompress(c, 400)
	require.ErrorIs(t, err, ErrOverflow)
	require.Len(t, *bufs, 1)
	assert.True(t, allZero((*bufs)[0]))
}

func TestParseLevel(t *testing.T) {
	for in, want := range map[string]Level{"fast": Fast, "": Default, "default": Default, "best": Best} {
		got, err := ParseLevel(in)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	_, err := ParseLevel("ultra")
	assert.ErrorIs(t, err, ErrUnknownLevel)
}

func BenchmarkCompressLine(b *testing.B) {
	line := []byte("the quick brown fox jumps over the lazy dog, again and again\n")
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		_, _ = Compress(line, Fast, 500)
	}
}
