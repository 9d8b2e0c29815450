// Package ratchet provides the per-direction AEAD context of the message loop.
//
// Each message advances a symmetric chain: a message key and the next chain key
// are derived from the current chain key, and the old chain key is discarded.
// Messages are sealed with XChaCha20-Poly1305 under the message key.
//
// A session holds two contexts, one per direction, installed from the two
// independently derived handshake keys.
package ratchet
