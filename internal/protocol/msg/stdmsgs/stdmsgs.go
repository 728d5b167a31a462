// Package stdmsgs provides codecs for common standard message types.
package stdmsgs

import (
	"time"

	"github.com/danmuck/tcpros/internal/protocol/msg"
)

var (
	StringCodec            = msg.For[String]()
	BoolCodec              = msg.For[Bool]()
	Int32Codec             = msg.For[Int32]()
	UInt64Codec            = msg.For[UInt64]()
	Float64Codec           = msg.For[Float64]()
	TimeCodec              = msg.For[Time]()
	HeaderCodec            = msg.For[Header]()
	PointCodec             = msg.For[Point]()
	PointStampedCodec      = msg.For[PointStamped]()
	Float64MultiArrayCodec = msg.For[Float64MultiArray]()
)

type String struct {
	Data string
}

func (*String) Spec() msg.Spec {
	return msg.Spec{
		Name:       "std_msgs/String",
		MD5Sum:     "992ce8a1687cec8c8bd883ec73ca41d1",
		Definition: "string data\n",
	}
}

func (m *String) MarshalROS(e *msg.Encoder) error {
	return e.String(m.Data)
}

func (m *String) UnmarshalROS(d *msg.Decoder) (err error) {
	m.Data, err = d.String()
	return err
}

type Bool struct {
	Data bool
}

func (*Bool) Spec() msg.Spec {
	return msg.Spec{
		Name:       "std_msgs/Bool",
		MD5Sum:     "8b94c1b53db61fb6aed406028ad6332a",
		Definition: "bool data\n",
	}
}

func (m *Bool) MarshalROS(e *msg.Encoder) error {
	e.Bool(m.Data)
	return nil
}

func (m *Bool) UnmarshalROS(d *msg.Decoder) (err error) {
	m.Data, err = d.Bool()
	return err
}

type Int32 struct {
	Data int32
}

func (*Int32) Spec() msg.Spec {
	return msg.Spec{
		Name:       "std_msgs/Int32",
		MD5Sum:     "da5909fbe378aeaf85e547e830cc1bb7",
		Definition: "int32 data\n",
	}
}

func (m *Int32) MarshalROS(e *msg.Encoder) error {
	e.Int32(m.Data)
	return nil
}

func (m *Int32) UnmarshalROS(d *msg.Decoder) (err error) {
	m.Data, err = d.Int32()
	return err
}

type UInt64 struct {
	Data uint64
}

func (*UInt64) Spec() msg.Spec {
	return msg.Spec{
		Name:       "std_msgs/UInt64",
		MD5Sum:     "1b2a79973e8bf53d7b53acb71299cb57",
		Definition: "uint64 data\n",
	}
}

func (m *UInt64) MarshalROS(e *msg.Encoder) error {
	e.Uint64(m.Data)
	return nil
}

func (m *UInt64) UnmarshalROS(d *msg.Decoder) (err error) {
	m.Data, err = d.Uint64()
	return err
}

type Float64 struct {
	Data float64
}

func (*Float64) Spec() msg.Spec {
	return msg.Spec{
		Name:       "std_msgs/Float64",
		MD5Sum:     "fdb28210bfa9d7c91146260178d9a584",
		Definition: "float64 data\n",
	}
}

func (m *Float64) MarshalROS(e *msg.Encoder) error {
	e.Float64(m.Data)
	return nil
}

func (m *Float64) UnmarshalROS(d *msg.Decoder) (err error) {
	m.Data, err = d.Float64()
	return err
}

type Time struct {
	Data time.Time
}

func (*Time) Spec() msg.Spec {
	return msg.Spec{
		Name:       "std_msgs/Time",
		MD5Sum:     "cd7166c74c552c311fbcc2fe5a7bc289",
		Definition: "time data\n",
	}
}

func (m *Time) MarshalROS(e *msg.Encoder) error {
	return e.Time(m.Data)
}

func (m *Time) UnmarshalROS(d *msg.Decoder) (err error) {
	m.Data, err = d.Time()
	return err
}
