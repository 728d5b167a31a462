package msg

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"time"

	"github.com/danmuck/tcpros/internal/protocol"
)

var (
	ErrSequenceTooLong = errors.New("msg: sequence too long")
	ErrInvalidBool     = errors.New("msg: invalid bool byte")
	ErrFixedLength     = errors.New("msg: fixed array length mismatch")
	ErrTimeRange       = errors.New("msg: time out of wire range")
)

// Limits constrains decode allocations driven by wire counts.
type Limits struct {
	MaxSequenceLen uint32
}

func DefaultLimits() Limits {
	return Limits{
		MaxSequenceLen: 64 << 20,
	}
}

// Decoder reads little-endian primitives directly from a stream.
//
// A clean io.EOF is returned only when the stream ends before the first
// byte of a message; any later shortfall is a decode failure.
type Decoder struct {
	r      io.Reader
	limits Limits
	n      int64
	scr    [8]byte
}

func NewDecoder(r io.Reader, limits Limits) *Decoder {
	if limits.MaxSequenceLen == 0 {
		limits = DefaultLimits()
	}
	return &Decoder{r: r, limits: limits}
}

// Begin marks the start of a new message.
func (d *Decoder) Begin() {
	d.n = 0
}

// Consumed is the number of bytes read since Begin.
func (d *Decoder) Consumed() int64 {
	return d.n
}

func (d *Decoder) read(p []byte) error {
	if len(p) == 0 {
		return nil
	}
	n, err := io.ReadFull(d.r, p)
	d.n += int64(n)
	if err == nil {
		return nil
	}
	if errors.Is(err, io.EOF) && d.n == 0 {
		return io.EOF
	}
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return protocol.Decode("payload", fmt.Errorf("truncated after %d bytes: %w", d.n, io.ErrUnexpectedEOF))
	}
	return protocol.Transport("read payload", err)
}

func decodeErrorf(format string, args ...any) error {
	return protocol.Decode("payload", fmt.Errorf(format, args...))
}

func (d *Decoder) Uint8() (uint8, error) {
	if err := d.read(d.scr[:1]); err != nil {
		return 0, err
	}
	return d.scr[0], nil
}

func (d *Decoder) Uint16() (uint16, error) {
	if err := d.read(d.scr[:2]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(d.scr[:2]), nil
}

func (d *Decoder) Uint32() (uint32, error) {
	if err := d.read(d.scr[:4]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(d.scr[:4]), nil
}

func (d *Decoder) Uint64() (uint64, error) {
	if err := d.read(d.scr[:8]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(d.scr[:8]), nil
}

func (d *Decoder) Int8() (int8, error) {
	v, err := d.Uint8()
	return int8(v), err
}

func (d *Decoder) Int16() (int16, error) {
	v, err := d.Uint16()
	return int16(v), err
}

func (d *Decoder) Int32() (int32, error) {
	v, err := d.Uint32()
	return int32(v), err
}

func (d *Decoder) Int64() (int64, error) {
	v, err := d.Uint64()
	return int64(v), err
}

func (d *Decoder) Float32() (float32, error) {
	v, err := d.Uint32()
	return math.Float32frombits(v), err
}

func (d *Decoder) Float64() (float64, error) {
	v, err := d.Uint64()
	return math.Float64frombits(v), err
}

func (d *Decoder) Bool() (bool, error) {
	v, err := d.Uint8()
	if err != nil {
		return false, err
	}
	switch v {
	case 0:
		return false, nil
	case 1:
		return true, nil
	default:
		return false, protocol.Decode("payload", fmt.Errorf("%w: %d", ErrInvalidBool, v))
	}
}

// Len32 reads a u32 element count and checks it against the limits.
func (d *Decoder) Len32() (int, error) {
	n, err := d.Uint32()
	if err != nil {
		return 0, err
	}
	if n > d.limits.MaxSequenceLen {
		return 0, protocol.Decode("payload", fmt.Errorf("%w: %d > %d", ErrSequenceTooLong, n, d.limits.MaxSequenceLen))
	}
	return int(n), nil
}

func (d *Decoder) Bytes32() ([]byte, error) {
	n, err := d.Len32()
	if err != nil {
		return nil, err
	}
	return d.Raw(n)
}

func (d *Decoder) String() (string, error) {
	b, err := d.Bytes32()
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Raw reads exactly n bytes.
func (d *Decoder) Raw(n int) ([]byte, error) {
	buf := make([]byte, n)
	if err := d.read(buf); err != nil {
		return nil, err
	}
	return buf, nil
}

// Time reads sec/nsec; 0/0 decodes to the zero time.
func (d *Decoder) Time() (time.Time, error) {
	sec, err := d.Uint32()
	if err != nil {
		return time.Time{}, err
	}
	nsec, err := d.Uint32()
	if err != nil {
		return time.Time{}, err
	}
	if sec == 0 && nsec == 0 {
		return time.Time{}, nil
	}
	return time.Unix(int64(sec), int64(nsec)).UTC(), nil
}

func (d *Decoder) Duration() (time.Duration, error) {
	sec, err := d.Int32()
	if err != nil {
		return 0, err
	}
	nsec, err := d.Int32()
	if err != nil {
		return 0, err
	}
	return time.Duration(sec)*time.Second + time.Duration(nsec), nil
}

// DecodeSlice reads a u32 count then that many elements.
func DecodeSlice[T any](d *Decoder, fn func(*Decoder) (T, error)) ([]T, error) {
	n, err := d.Len32()
	if err != nil {
		return nil, err
	}
	return DecodeArray(d, n, fn)
}

// DecodeArray reads exactly n elements with no count prefix.
func DecodeArray[T any](d *Decoder, n int, fn func(*Decoder) (T, error)) ([]T, error) {
	out := make([]T, 0, min(n, 1024))
	for i := 0; i < n; i++ {
		v, err := fn(d)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}
