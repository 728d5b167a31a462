package msg

import (
	"bytes"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"io"
	"strings"
)

// Spec is the identity of a message type.
type Spec struct {
	Name       string
	MD5Sum     string
	Definition string
}

// Compatible reports whether a peer advertising name/md5sum can exchange
// this type. Both must match exactly.
func (s Spec) Compatible(name, md5sum string) bool {
	return s.Name == name && s.MD5Sum == md5sum
}

// ComputeMD5 hashes canonical definition text (constants then fields, one
// per line, comments removed) the way type checksums are derived.
func ComputeMD5(canonical string) string {
	sum := md5.Sum([]byte(strings.TrimSpace(canonical)))
	return hex.EncodeToString(sum[:])
}

// Codec is the per-type capability the transport needs.
type Codec[T any] interface {
	Spec() Spec
	Encode(e *Encoder, v T) error
	Decode(d *Decoder) (T, error)
}

// Message is implemented by pointer-to-struct message types.
type Message interface {
	Spec() Spec
	MarshalROS(e *Encoder) error
	UnmarshalROS(d *Decoder) error
}

type typeCodec[T any, PT interface {
	*T
	Message
}] struct {
	spec Spec
}

// For adapts a Message implementation into a Codec.
func For[T any, PT interface {
	*T
	Message
}]() Codec[T] {
	var zero T
	return typeCodec[T, PT]{spec: PT(&zero).Spec()}
}

func (c typeCodec[T, PT]) Spec() Spec {
	return c.spec
}

func (c typeCodec[T, PT]) Encode(e *Encoder, v T) error {
	return PT(&v).MarshalROS(e)
}

func (c typeCodec[T, PT]) Decode(d *Decoder) (T, error) {
	var v T
	if err := PT(&v).UnmarshalROS(d); err != nil {
		var zero T
		return zero, err
	}
	return v, nil
}

// Marshal serializes one value into a fresh buffer.
func Marshal[T any](c Codec[T], v T) ([]byte, error) {
	e := NewEncoder()
	if err := c.Encode(e, v); err != nil {
		return nil, err
	}
	return e.Bytes(), nil
}

// Unmarshal decodes exactly one value from b; leftover bytes are an error.
func Unmarshal[T any](c Codec[T], b []byte) (T, error) {
	r := bytes.NewReader(b)
	d := NewDecoder(r, DefaultLimits())
	v, err := c.Decode(d)
	if err != nil {
		var zero T
		if errors.Is(err, io.EOF) {
			return zero, decodeErrorf("empty payload for %s", c.Spec().Name)
		}
		return zero, err
	}
	if r.Len() != 0 {
		var zero T
		return zero, decodeErrorf("%d trailing bytes after %s", r.Len(), c.Spec().Name)
	}
	return v, nil
}
