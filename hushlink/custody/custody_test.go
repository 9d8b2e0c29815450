package custody

import (
	"bytes"
	"crypto/rand"
	"os"
	"testing"

	"github.com/TheusHen/hushlink/hushlink/fault"
	"github.com/TheusHen/hushlink/hushlink/scratch"
	"github.com/TheusHen/hushlink/hushlink/storage"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidatePIN(t *testing.T) {
	p := DefaultParams()
	cases := []struct {
		name string
		in   string
		want error
	}{
		{"valid", "123456\n", nil},
		{"letters", "12a456\n", ErrPINFormat},
		{"short", "1234\n", ErrPINFormat},
		{"empty", "", ErrPINFormat},
		{"too long", "1234567\n", ErrPINLength},
		{"no newline", "123456", ErrPINLength},
		{"trailing junk", "123456x\n", ErrPINLength},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidatePIN([]byte(tc.in), p)
			if tc.want == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tc.want)
			assert.True(t, fault.Is(err, fault.KindInput))
		})
	}
}

func TestTransformIsInvolution(t *testing.T) {
	p := DefaultParams()
	key := bytes.Repeat([]byte{0x42}, 32)
	salt := bytes.Repeat([]byte{0x24}, 16)

	wrapped, err := Transform(key, []byte("123456\n"), bytes.Clone(salt), p, nil)
	require.NoError(t, err)
	assert.NotEqual(t, key, wrapped)

	unwrapped, err := Transform(wrapped, []byte("123456\n"), bytes.Clone(salt), p, nil)
	require.NoError(t, err)
	assert.Equal(t, key, unwrapped)

	wrong, err := Transform(wrapped, []byte("654321\n"), bytes.Clone(salt), p, nil)
	require.NoError(t, err)
	assert.NotEqual(t, key, wrong)
}

type countingAllocator struct {
	acquired int
	inner    scratch.Allocator
}

func (c *countingAllocator) Acquire(n int) (*scratch.Buffer, error) {
	c.acquired++
	return c.inner.Acquire(n)
}

func TestTransformRejectsBeforeWork(t *testing.T) {
	alloc := &countingAllocator{inner: scratch.HeapAllocator{}}
	pin := []byte("12x456\n")
	salt := bytes.Repeat([]byte{1}, 16)

	_, err := Transform(make([]byte, 32), pin, salt, DefaultParams(), alloc)
	assert.ErrorIs(t, err, ErrPINFormat)
	assert.Zero(t, alloc.acquired)
	assert.Equal(t, make([]byte, len(pin)), pin)
	assert.Equal(t, make([]byte, 16), salt)
}

func TestTransformWipesAndReleases(t *testing.T) {
	for _, s := range []scratch.Strategy{scratch.Heap, scratch.Static, scratch.Locked} {
		t.Run(string(s), func(t *testing.T) {
			alloc, err := scratch.New(s)
			require.NoError(t, err)
			pin := []byte("000000\n")
			salt := bytes.Repeat([]byte{2}, 16)

			_, err = Transform(make([]byte, 32), pin, salt, DefaultParams(), alloc)
			require.NoError(t, err)
			assert.Equal(t, make([]byte, len(pin)), pin)
			assert.Equal(t, make([]byte, 16), salt)

			// The area was released, so it can be acquired again.
			buf, err := alloc.Acquire(8)
			require.NoError(t, err)
			buf.Release()
		})
	}
}

func TestTransformSizes(t *testing.T) {
	_, err := Transform(make([]byte, 31), []byte("123456\n"), make([]byte, 16), DefaultParams(), nil)
	assert.ErrorIs(t, err, ErrKeySize)
	_, err = Transform(make([]byte, 32), []byte("123456\n"), make([]byte, 8), DefaultParams(), nil)
	assert.ErrorIs(t, err, ErrSaltSize)
}

func pinOnce(pin string) PINFunc {
	return func() ([]byte, error) { return []byte(pin), nil }
}

func TestVaultProvisionAndUnwrap(t *testing.T) {
	store := storage.NewMemory(storage.DefaultImageSize)
	key := bytes.Repeat([]byte{0x7e}, 32)

	v := &Vault{Store: store, Params: DefaultParams(), PIN: pinOnce("123456\n")}
	require.NoError(t, v.Provision(rand.Reader, bytes.Clone(key), []byte("123456\n")))

	raw, err := store.ReadRange(0, 32)
	require.NoError(t, err)
	assert.NotEqual(t, key, raw, "key must not be stored in the clear")

	got, err := v.LongTermKey()
	require.NoError(t, err)
	assert.Equal(t, key, got)

	v.PIN = pinOnce("999999\n")
	got, err = v.LongTermKey()
	require.NoError(t, err)
	assert.NotEqual(t, key, got)

	v.PIN = pinOnce("99999\n")
	_, err = v.LongTermKey()
	assert.ErrorIs(t, err, ErrPINFormat)
}

func TestVaultChangePIN(t *testing.T) {
	store := storage.NewMemory(storage.DefaultImageSize)
	key := bytes.Repeat([]byte{0x3c}, 32)

	v := &Vault{Store: store, Params: DefaultParams(), PIN: pinOnce("111111\n")}
	require.NoError(t, v.Provision(rand.Reader, bytes.Clone(key), []byte("111111\n")))
	require.NoError(t, v.ChangePIN(rand.Reader, []byte("222222\n")))

	v.PIN = pinOnce("222222\n")
	got, err := v.LongTermKey()
	require.NoError(t, err)
	assert.Equal(t, key, got)
}

func TestVaultUnprovisioned(t *testing.T) {
	v := &Vault{Store: storage.NewMemory(storage.DefaultImageSize), Params: DefaultParams(), PIN: pinOnce("123456\n")}
	_, err := v.LongTermKey()
	assert.ErrorIs(t, err, storage.ErrUnset)
	assert.True(t, fault.Is(err, fault.KindStorage))
}

func TestVaultNilLogIsSilent(t *testing.T) {
	var buf bytes.Buffer
	logrus.SetOutput(&buf)
	t.Cleanup(func() { logrus.SetOutput(os.Stderr) })

	v := &Vault{Store: storage.NewMemory(storage.DefaultImageSize), Params: DefaultParams(), PIN: pinOnce("12345\n")}
	require.NoError(t, v.Provision(rand.Reader, make([]byte, 32), []byte("123456\n")))
	_, err := v.LongTermKey()
	require.ErrorIs(t, err, ErrPINFormat)
	assert.Empty(t, buf.String())
}
