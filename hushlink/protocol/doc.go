// Package protocol encodes the values exchanged on the byte stream: padded
// fixed-size values during the handshake, and tagged frames in the message
// loop.
package protocol
