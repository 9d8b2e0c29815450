package padding

import (
	"bytes"
	"crypto/rand"
	"testing"

	"github.com/TheusHen/hushlink/hushlink/fault"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPaddedSizeValues(t *testing.T) {
	cases := []struct {
		in, want int
	}{
		{16, 17},
		{24, 25},
		{32, 35},
	}
	for _, tc := range cases {
		got, err := PaddedSize(tc.in)
		require.NoError(t, err)
		assert.Equal(t, tc.want, got, "PaddedSize(%d)", tc.in)
	}
}

func TestPaddedSizeUnsupported(t *testing.T) {
	for _, n := range []int{0, 1, 15, 17, 31, 33, 64, -16} {
		_, err := PaddedSize(n)
		assert.ErrorIs(t, err, ErrUnsupportedSize, "n=%d", n)
		assert.True(t, fault.Is(err, fault.KindSize), "n=%d", n)
	}
}

func TestRoundTrip(t *testing.T) {
	for _, n := range []int{16, 24, 32} {
		x := make([]byte, n)
		_, _ = rand.Read(x)

		padded, err := Pad(rand.Reader, x)
		require.NoError(t, err)
		want, _ := PaddedSize(n)
		assert.Len(t, padded, want)

		got, err := Unpad(padded, n)
		require.NoError(t, err)
		assert.Equal(t, x, got)
	}
}

func TestPadUsesFiller(t *testing.T) {
	x := make([]byte, 32)
	filler := bytes.NewReader([]byte{0xa1, 0xa2, 0xa3})
	padded, err := Pad(filler, x)
	require.NoError(t, err)
	assert.Equal(t, []byte{0xa1, 0xa2, 0xa3}, padded[32:])
}

func TestPadFillerFailure(t *testing.T) {
	_, err := Pad(bytes.NewReader(nil), make([]byte, 16))
	assert.True(t, fault.Is(err, fault.KindRandomness))
}

func TestPadRejectsUnsupported(t *testing.T) {
	_, err := Pad(rand.Reader, make([]byte, 20))
	assert.ErrorIs(t, err, ErrUnsupportedSize)
}

func TestUnpadShort(t *testing.T) {
	_, err := Unpad(make([]byte, 10), 16)
	assert.ErrorIs(t, err, ErrShortInput)
}
