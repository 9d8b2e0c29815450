// Package hushlink is a point-to-point secure chat endpoint.
//
// Two peers that share a PIN-protected long-term key run a hidden key
// exchange whose public keys are indistinguishable from random bytes, then
// talk over a ratcheting XChaCha20-Poly1305 channel. Any authentication
// failure ends the session. The subpackages can be used on their own; Peer
// wires transport, handshake and channel together.
package hushlink
