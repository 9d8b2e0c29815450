package ratchet

import (
	"encoding/binary"
	"errors"
	"sync"

	"github.com/TheusHen/hushlink/hushlink/crypto"
	"golang.org/x/crypto/blake2b"
	"golang.org/x/crypto/chacha20poly1305"
)

const (
	KeySize   = chacha20poly1305.KeySize
	NonceSize = chacha20poly1305.NonceSizeX
	TagSize   = chacha20poly1305.Overhead
)

var (
	ErrRatchetExhausted = errors.New("ratchet: maximum generation reached")
	ErrDecryptionFailed = errors.New("ratchet: message authentication failed")
	ErrKeySize          = errors.New("ratchet: key must be 32 bytes")
	ErrNonceSize        = errors.New("ratchet: nonce must be 24 bytes")
)

// MaxGeneration is the number of messages one context may protect.
const MaxGeneration = 1<<64 - 1

// Context is one direction of the message loop. Every message is sealed under
// a fresh key derived from the chain key, and the chain key is replaced as soon
// as the message key is taken from it.
type Context struct {
	mu         sync.Mutex
	chainKey   [KeySize]byte
	nonce      [NonceSize]byte
	generation uint64
}

// New installs key and nonce into a context. The context keeps its own copy;
// the caller must wipe key right after.
func New(key, nonce []byte) (*Context, error) {
	if len(key) != KeySize {
		return nil, ErrKeySize
	}
	if len(nonce) != NonceSize {
		return nil, ErrNonceSize
	}
	c := &Context{}
	copy(c.chainKey[:], key)
	copy(c.nonce[:], nonce)
	return c, nil
}

// deriveKeys derives (nextChainKey, messageKey) from the chain key, bound to
// the message nonce.
func (c *Context) deriveKeys(msgNonce []byte) ([KeySize]byte, [KeySize]byte) {
	var next, msg [KeySize]byte

	h, _ := blake2b.New256(c.chainKey[:])
	h.Write([]byte{0x01})
	h.Write(msgNonce)
	h.Sum(msg[:0])

	h.Reset()
	h.Write([]byte{0x02})
	h.Write(msgNonce)
	h.Sum(next[:0])

	return next, msg
}

// messageNonce mixes the generation into the low 8 bytes of the session nonce.
func (c *Context) messageNonce() [NonceSize]byte {
	n := c.nonce
	var ctr [8]byte
	binary.BigEndian.PutUint64(ctr[:], c.generation)
	for i := range ctr {
		n[NonceSize-8+i] ^= ctr[i]
	}
	return n
}

// Seal encrypts plaintext and advances the context. The ciphertext has the
// same length as plaintext; the tag is returned separately.
func (c *Context) Seal(plaintext []byte) ([]byte, [TagSize]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var tag [TagSize]byte
	if c.generation == MaxGeneration {
		return nil, tag, ErrRatchetExhausted
	}

	nonce := c.messageNonce()
	next, msgKey := c.deriveKeys(nonce[:])
	defer crypto.Wipe(msgKey[:])

	aead, err := chacha20poly1305.NewX(msgKey[:])
	if err != nil {
		return nil, tag, err
	}
	sealed := aead.Seal(nil, nonce[:], plaintext, nil)
	n := len(sealed) - TagSize
	copy(tag[:], sealed[n:])

	c.chainKey = next
	crypto.Wipe(next[:])
	c.generation++
	return sealed[:n:n], tag, nil
}

// Open verifies and decrypts one message. On failure the context is left
// unchanged and no plaintext is returned.
func (c *Context) Open(ciphertext []byte, tag [TagSize]byte) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.generation == MaxGeneration {
		return nil, ErrRatchetExhausted
	}

	nonce := c.messageNonce()
	next, msgKey := c.deriveKeys(nonce[:])
	defer crypto.Wipe(msgKey[:])
	defer crypto.Wipe(next[:])

	aead, err := chacha20poly1305.NewX(msgKey[:])
	if err != nil {
		return nil, err
	}
	sealed := make([]byte, 0, len(ciphertext)+TagSize)
	sealed = append(sealed, ciphertext...)
	sealed = append(sealed, tag[:]...)

	pt, err := aead.Open(nil, nonce[:], sealed, nil)
	if err != nil {
		return nil, ErrDecryptionFailed
	}
	c.chainKey = next
	c.generation++
	return pt, nil
}

// Generation returns the number of messages processed so far.
func (c *Context) Generation() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.generation
}

// Wipe erases the chain key and nonce.
func (c *Context) Wipe() {
	c.mu.Lock()
	defer c.mu.Unlock()
	crypto.Wipe(c.chainKey[:])
	crypto.Wipe(c.nonce[:])
}
