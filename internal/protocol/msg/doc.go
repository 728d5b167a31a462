// Package msg defines the per-type message codec contract: a type's
// identity (name, md5sum, definition) and its little-endian binary layout.
//
// Streaming frames carry no outer length prefix; a codec's Decode consumes
// exactly the bytes of one instance from the live stream.
package msg
