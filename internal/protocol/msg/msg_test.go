package msg

import (
	"bytes"
	"errors"
	"io"
	"math"
	"testing"
	"time"

	"github.com/danmuck/tcpros/internal/protocol"
	"github.com/stretchr/testify/require"
)

func TestComputeMD5MatchesKnownChecksum(t *testing.T) {
	require.Equal(t, "992ce8a1687cec8c8bd883ec73ca41d1", ComputeMD5("string data"))
	require.Equal(t, ComputeMD5("string data"), ComputeMD5("  string data\n"))
}

func TestSpecCompatible(t *testing.T) {
	s := Spec{Name: "std_msgs/String", MD5Sum: "abc"}
	require.True(t, s.Compatible("std_msgs/String", "abc"))
	require.False(t, s.Compatible("std_msgs/String", "abd"))
	require.False(t, s.Compatible("std_msgs/Strin", "abc"))
}

func TestEncoderLittleEndianLayout(t *testing.T) {
	e := NewEncoder()
	e.Uint8(0x01)
	e.Uint16(0x0203)
	e.Uint32(0x04050607)
	e.Int64(-2)
	e.Bool(true)
	require.NoError(t, e.String("hi"))
	want := []byte{
		0x01,
		0x03, 0x02,
		0x07, 0x06, 0x05, 0x04,
		0xfe, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff,
		0x01,
		0x02, 0x00, 0x00, 0x00, 'h', 'i',
	}
	require.Equal(t, want, e.Bytes())
}

func TestPrimitiveRoundTrip(t *testing.T) {
	stamp := time.Unix(1700000000, 123456789).UTC()
	e := NewEncoder()
	e.Int8(-8)
	e.Int16(-16)
	e.Int32(-32)
	e.Uint64(math.MaxUint64)
	e.Float32(1.5)
	e.Float64(-2.25)
	require.NoError(t, e.Time(stamp))
	require.NoError(t, e.Duration(-1500*time.Millisecond))
	require.NoError(t, e.Bytes32([]byte{9, 8, 7}))
	e.Raw([]byte{1, 2})

	d := NewDecoder(bytes.NewReader(e.Bytes()), DefaultLimits())
	i8, err := d.Int8()
	require.NoError(t, err)
	require.Equal(t, int8(-8), i8)
	i16, err := d.Int16()
	require.NoError(t, err)
	require.Equal(t, int16(-16), i16)
	i32, err := d.Int32()
	require.NoError(t, err)
	require.Equal(t, int32(-32), i32)
	u64, err := d.Uint64()
	require.NoError(t, err)
	require.Equal(t, uint64(math.MaxUint64), u64)
	f32, err := d.Float32()
	require.NoError(t, err)
	require.Equal(t, float32(1.5), f32)
	f64, err := d.Float64()
	require.NoError(t, err)
	require.Equal(t, -2.25, f64)
	ts, err := d.Time()
	require.NoError(t, err)
	require.True(t, ts.Equal(stamp))
	dur, err := d.Duration()
	require.NoError(t, err)
	require.Equal(t, -1500*time.Millisecond, dur)
	b, err := d.Bytes32()
	require.NoError(t, err)
	require.Equal(t, []byte{9, 8, 7}, b)
	raw, err := d.Raw(2)
	require.NoError(t, err)
	require.Equal(t, []byte{1, 2}, raw)
	require.Equal(t, int64(len(e.Bytes())), d.Consumed())
}

func TestTimeWireEdges(t *testing.T) {
	e := NewEncoder()
	require.NoError(t, e.Time(time.Time{}))
	require.Equal(t, make([]byte, 8), e.Bytes())
	ts, err := NewDecoder(bytes.NewReader(e.Bytes()), DefaultLimits()).Time()
	require.NoError(t, err)
	require.True(t, ts.IsZero())

	require.ErrorIs(t, NewEncoder().Time(time.Unix(-1, 0)), ErrTimeRange)
	require.ErrorIs(t, NewEncoder().Time(time.Unix(math.MaxUint32+1, 0)), ErrTimeRange)
	require.NoError(t, NewEncoder().Time(time.Unix(math.MaxUint32, 0)))
}

func TestDurationNormalizesNanoseconds(t *testing.T) {
	e := NewEncoder()
	require.NoError(t, e.Duration(-1500*time.Millisecond))
	d := NewDecoder(bytes.NewReader(e.Bytes()), DefaultLimits())
	sec, err := d.Int32()
	require.NoError(t, err)
	nsec, err := d.Int32()
	require.NoError(t, err)
	require.Equal(t, int32(-2), sec)
	require.Equal(t, int32(500_000_000), nsec)

	require.ErrorIs(t, NewEncoder().Duration(time.Duration(math.MaxInt32+1)*time.Second), ErrTimeRange)
}

func TestSlicesAndFixedArrays(t *testing.T) {
	e := NewEncoder()
	u32 := func(e *Encoder, v uint32) error { e.Uint32(v); return nil }
	require.NoError(t, EncodeSlice(e, []uint32{1, 2, 3}, u32))
	require.NoError(t, EncodeArray(e, []uint32{4, 5}, u32))
	require.Equal(t, 4+3*4+2*4, e.Len())

	d := NewDecoder(bytes.NewReader(e.Bytes()), DefaultLimits())
	vs, err := DecodeSlice(d, (*Decoder).Uint32)
	require.NoError(t, err)
	require.Equal(t, []uint32{1, 2, 3}, vs)
	fixed, err := DecodeArray(d, 2, (*Decoder).Uint32)
	require.NoError(t, err)
	require.Equal(t, []uint32{4, 5}, fixed)

	err = EncodeFixed(NewEncoder(), []uint32{1}, 3, u32)
	require.ErrorIs(t, err, ErrFixedLength)
}

func TestDecoderCleanEOFBeforeMessage(t *testing.T) {
	d := NewDecoder(bytes.NewReader(nil), DefaultLimits())
	d.Begin()
	_, err := d.Uint32()
	require.ErrorIs(t, err, io.EOF)
	require.False(t, errors.Is(err, protocol.ErrDecode))
}

func TestDecoderTruncatedMidMessage(t *testing.T) {
	d := NewDecoder(bytes.NewReader([]byte{5, 0, 0, 0, 'a', 'b'}), DefaultLimits())
	d.Begin()
	_, err := d.String()
	require.ErrorIs(t, err, protocol.ErrDecode)
	require.ErrorIs(t, err, io.ErrUnexpectedEOF)
}

func TestDecoderSequenceLimit(t *testing.T) {
	d := NewDecoder(bytes.NewReader([]byte{0xff, 0xff, 0xff, 0x7f}), Limits{MaxSequenceLen: 16})
	_, err := d.Bytes32()
	require.ErrorIs(t, err, ErrSequenceTooLong)
	require.ErrorIs(t, err, protocol.ErrDecode)
}

func TestDecoderInvalidBool(t *testing.T) {
	d := NewDecoder(bytes.NewReader([]byte{2}), DefaultLimits())
	_, err := d.Bool()
	require.ErrorIs(t, err, ErrInvalidBool)
	require.ErrorIs(t, err, protocol.ErrDecode)
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) {
	return 0, errors.New("connection reset by peer")
}

func TestDecoderReadFailureIsTransport(t *testing.T) {
	d := NewDecoder(failingReader{}, DefaultLimits())
	_, err := d.Uint8()
	require.ErrorIs(t, err, protocol.ErrTransport)
}

type pair struct {
	A uint16
	B string
}

func (*pair) Spec() Spec {
	return Spec{Name: "test_msgs/Pair", MD5Sum: ComputeMD5("uint16 a\nstring b"), Definition: "uint16 a\nstring b\n"}
}

func (p *pair) MarshalROS(e *Encoder) error {
	e.Uint16(p.A)
	return e.String(p.B)
}

func (p *pair) UnmarshalROS(d *Decoder) (err error) {
	if p.A, err = d.Uint16(); err != nil {
		return err
	}
	p.B, err = d.String()
	return err
}

func TestForCodecMarshalUnmarshal(t *testing.T) {
	c := For[pair]()
	require.Equal(t, "test_msgs/Pair", c.Spec().Name)
	b, err := Marshal(c, pair{A: 7, B: "seven"})
	require.NoError(t, err)
	got, err := Unmarshal(c, b)
	require.NoError(t, err)
	require.Equal(t, pair{A: 7, B: "seven"}, got)

	_, err = Unmarshal(c, append(b, 0))
	require.ErrorIs(t, err, protocol.ErrDecode)
	_, err = Unmarshal(c, nil)
	require.ErrorIs(t, err, protocol.ErrDecode)
}
