package protocol

import (
	"errors"
	"fmt"
)

var (
	ErrTransport = errors.New("protocol: transport failure")
	ErrFormat    = errors.New("protocol: malformed header")
	ErrMismatch  = errors.New("protocol: message type mismatch")
	ErrDecode    = errors.New("protocol: payload decode failed")
)

// MismatchError reports a handshake field that disagrees with the expected
// message type.
type MismatchError struct {
	Field string
	Want  string
	Got   string
}

func (e MismatchError) Error() string {
	return fmt.Sprintf("protocol: %s mismatch: want %q got %q", e.Field, e.Want, e.Got)
}

func (e MismatchError) Unwrap() error {
	return ErrMismatch
}

// RemoteError carries the error field a peer sent instead of a valid reply.
type RemoteError struct {
	Message string
}

func (e RemoteError) Error() string {
	return fmt.Sprintf("protocol: peer rejected handshake: %s", e.Message)
}

func (e RemoteError) Unwrap() error {
	return ErrMismatch
}

// Transport wraps an I/O failure so it matches ErrTransport and still exposes
// the underlying cause to errors.Is/As.
func Transport(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrTransport) {
		return err
	}
	return fmt.Errorf("%w: %s: %w", ErrTransport, op, err)
}

// Formatf builds an ErrFormat with detail.
func Formatf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrFormat, fmt.Sprintf(format, args...))
}

// Decode wraps a streaming payload failure so it matches ErrDecode.
func Decode(typeName string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrDecode) {
		return err
	}
	return fmt.Errorf("%w: %s: %w", ErrDecode, typeName, err)
}
