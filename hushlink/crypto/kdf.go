package crypto

import (
	"golang.org/x/crypto/blake2b"
)

const (
	// KeySize is the size of derived session keys and the long-term key.
	KeySize = 32
	// TagSize is the size of authentication tags.
	TagSize = 16
)

// DeriveKey hashes an X25519 shared secret together with both public keys.
// The responder's key comes first, so both ends of one exchange derive the
// same key whatever their role.
func DeriveKey(shared []byte, responderPub, initiatorPub [32]byte) [KeySize]byte {
	h, _ := blake2b.New256(nil)
	h.Write(shared)
	h.Write(responderPub[:])
	h.Write(initiatorPub[:])

	var key [KeySize]byte
	h.Sum(key[:0])
	return key
}

// AuthTag computes a keyed BLAKE2b tag over a derived key, using the
// long-term key as the MAC key.
func AuthTag(longTermKey []byte, derived [KeySize]byte) ([TagSize]byte, error) {
	var tag [TagSize]byte
	h, err := blake2b.New(TagSize, longTermKey)
	if err != nil {
		return tag, err
	}
	h.Write(derived[:])
	h.Sum(tag[:0])
	return tag, nil
}
