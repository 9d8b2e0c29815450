// Package crypto holds the primitives the handshake and channel depend on.
//
//   - X25519 key agreement with Elligator 2 hidden public keys
//   - BLAKE2b key derivation and keyed authentication tags
//   - constant-time comparison and buffer wiping
//
// The incremental AEAD used by the message loop lives in crypto/ratchet.
package crypto
