package ratchet

import (
	"bytes"
	"testing"
)

func pair(t *testing.T) (*Context, *Context) {
	t.Helper()
	key := bytes.Repeat([]byte{0x11}, KeySize)
	nonce := bytes.Repeat([]byte{0x22}, NonceSize)
	send, err := New(key, nonce)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	recv, err := New(key, nonce)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return send, recv
}

func TestContextRoundTrip(t *testing.T) {
	send, recv := pair(t)

	messages := [][]byte{
		[]byte("hello\n"),
		[]byte("second line\n"),
		{},
		bytes.Repeat([]byte("x"), 400),
	}
	for i, msg := range messages {
		ct, tag, err := send.Seal(msg)
		if err != nil {
			t.Fatalf("Seal(%d): %v", i, err)
		}
		if len(ct) != len(msg) {
			t.Fatalf("ciphertext length %d, want %d", len(ct), len(msg))
		}
		pt, err := recv.Open(ct, tag)
		if err != nil {
			t.Fatalf("Open(%d): %v", i, err)
		}
		if !bytes.Equal(pt, msg) {
			t.Fatalf("message %d mismatch", i)
		}
	}
	if send.Generation() != uint64(len(messages)) || recv.Generation() != uint64(len(messages)) {
		t.Fatalf("generations did not advance")
	}
}

func TestContextRekeys(t *testing.T) {
	send, _ := pair(t)
	msg := []byte("same plaintext")
	ct1, tag1, _ := send.Seal(msg)
	ct2, tag2, _ := send.Seal(msg)
	if bytes.Equal(ct1, ct2) || tag1 == tag2 {
		t.Fatalf("identical plaintexts must not produce identical frames")
	}
}

func TestContextTamper(t *testing.T) {
	msg := []byte("attack at dawn\n")

	for i := 0; i < len(msg)+TagSize; i++ {
		send, recv := pair(t)
		ct, tag, err := send.Seal(msg)
		if err != nil {
			t.Fatalf("Seal: %v", err)
		}
		if i < len(ct) {
			ct[i] ^= 0x01
		} else {
			tag[i-len(ct)] ^= 0x01
		}
		if _, err := recv.Open(ct, tag); err != ErrDecryptionFailed {
			t.Fatalf("byte %d: expected ErrDecryptionFailed, got %v", i, err)
		}
		if recv.Generation() != 0 {
			t.Fatalf("failed open must not advance the context")
		}
	}
}

func TestContextOutOfOrderFails(t *testing.T) {
	send, recv := pair(t)
	_, _, _ = send.Seal([]byte("one"))
	ct, tag, _ := send.Seal([]byte("two"))
	if _, err := recv.Open(ct, tag); err != ErrDecryptionFailed {
		t.Fatalf("skipped message must not decrypt")
	}
}

func TestNewValidates(t *testing.T) {
	if _, err := New(make([]byte, 16), make([]byte, NonceSize)); err != ErrKeySize {
		t.Fatalf("expected ErrKeySize, got %v", err)
	}
	if _, err := New(make([]byte, KeySize), make([]byte, 12)); err != ErrNonceSize {
		t.Fatalf("expected ErrNonceSize, got %v", err)
	}
}

func TestWipe(t *testing.T) {
	send, _ := pair(t)
	send.Wipe()
	if send.chainKey != [KeySize]byte{} || send.nonce != [NonceSize]byte{} {
		t.Fatalf("Wipe left key material behind")
	}
}

func BenchmarkSeal(b *testing.B) {
	c, _ := New(make([]byte, KeySize), make([]byte, NonceSize))
	msg := make([]byte, 400)
	b.SetBytes(int64(len(msg)))
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _, _ = c.Seal(msg)
	}
}
