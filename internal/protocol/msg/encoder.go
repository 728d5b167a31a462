package msg

import (
	"encoding/binary"
	"fmt"
	"math"
	"time"
)

// Encoder appends little-endian primitives to an in-memory buffer.
type Encoder struct {
	buf []byte
}

func NewEncoder() *Encoder {
	return &Encoder{buf: make([]byte, 0, 64)}
}

func (e *Encoder) Bytes() []byte {
	return e.buf
}

func (e *Encoder) Len() int {
	return len(e.buf)
}

func (e *Encoder) Reset() {
	e.buf = e.buf[:0]
}

func (e *Encoder) Uint8(v uint8) {
	e.buf = append(e.buf, v)
}

func (e *Encoder) Uint16(v uint16) {
	e.buf = binary.LittleEndian.AppendUint16(e.buf, v)
}

func (e *Encoder) Uint32(v uint32) {
	e.buf = binary.LittleEndian.AppendUint32(e.buf, v)
}

func (e *Encoder) Uint64(v uint64) {
	e.buf = binary.LittleEndian.AppendUint64(e.buf, v)
}

func (e *Encoder) Int8(v int8) {
	e.Uint8(uint8(v))
}

func (e *Encoder) Int16(v int16) {
	e.Uint16(uint16(v))
}

func (e *Encoder) Int32(v int32) {
	e.Uint32(uint32(v))
}

func (e *Encoder) Int64(v int64) {
	e.Uint64(uint64(v))
}

func (e *Encoder) Float32(v float32) {
	e.Uint32(math.Float32bits(v))
}

func (e *Encoder) Float64(v float64) {
	e.Uint64(math.Float64bits(v))
}

func (e *Encoder) Bool(v bool) {
	if v {
		e.Uint8(1)
		return
	}
	e.Uint8(0)
}

// Len32 writes a u32 element count for a variable-length sequence.
func (e *Encoder) Len32(n int) error {
	if n < 0 || uint64(n) > math.MaxUint32 {
		return ErrSequenceTooLong
	}
	e.Uint32(uint32(n))
	return nil
}

func (e *Encoder) String(v string) error {
	if err := e.Len32(len(v)); err != nil {
		return err
	}
	e.buf = append(e.buf, v...)
	return nil
}

func (e *Encoder) Bytes32(v []byte) error {
	if err := e.Len32(len(v)); err != nil {
		return err
	}
	e.buf = append(e.buf, v...)
	return nil
}

// Raw appends bytes without a count, for statically sized arrays.
func (e *Encoder) Raw(v []byte) {
	e.buf = append(e.buf, v...)
}

// Time writes sec/nsec since the Unix epoch as two u32 values. The zero
// time is written as 0/0.
func (e *Encoder) Time(t time.Time) error {
	if t.IsZero() {
		e.Uint32(0)
		e.Uint32(0)
		return nil
	}
	sec := t.Unix()
	if sec < 0 || sec > math.MaxUint32 {
		return fmt.Errorf("%w: %s", ErrTimeRange, t.UTC().Format(time.RFC3339))
	}
	e.Uint32(uint32(sec))
	e.Uint32(uint32(t.Nanosecond()))
	return nil
}

// Duration writes a signed sec/nsec pair with nsec in [0, 1e9).
func (e *Encoder) Duration(d time.Duration) error {
	sec := int64(d / time.Second)
	nsec := int64(d % time.Second)
	if nsec < 0 {
		sec--
		nsec += int64(time.Second)
	}
	if sec < math.MinInt32 || sec > math.MaxInt32 {
		return fmt.Errorf("%w: %s", ErrTimeRange, d)
	}
	e.Int32(int32(sec))
	e.Int32(int32(nsec))
	return nil
}

// EncodeSlice writes a u32 count then each element.
func EncodeSlice[T any](e *Encoder, vs []T, fn func(*Encoder, T) error) error {
	if err := e.Len32(len(vs)); err != nil {
		return err
	}
	return EncodeArray(e, vs, fn)
}

// EncodeArray writes elements with no count, for fixed-size arrays.
func EncodeArray[T any](e *Encoder, vs []T, fn func(*Encoder, T) error) error {
	for _, v := range vs {
		if err := fn(e, v); err != nil {
			return err
		}
	}
	return nil
}

// EncodeFixed is EncodeArray for a declared length n.
func EncodeFixed[T any](e *Encoder, vs []T, n int, fn func(*Encoder, T) error) error {
	if len(vs) != n {
		return fmt.Errorf("%w: have %d, want %d", ErrFixedLength, len(vs), n)
	}
	return EncodeArray(e, vs, fn)
}
