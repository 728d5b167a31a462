// Package protocol owns the TCPROS wire contract and its error taxonomy.
//
// Ownership boundary:
// - header: length-prefixed key=value handshake block
// - msg: per-type message codec contract and little-endian primitives
// - handshake: subscriber/publisher negotiation
// - session: connection config and lifecycle state
package protocol
