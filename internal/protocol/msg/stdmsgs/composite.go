package stdmsgs

import (
	"time"

	"github.com/danmuck/tcpros/internal/protocol/msg"
)

const headerDefinition = `# Standard metadata for higher-level stamped data types.
uint32 seq
time stamp
string frame_id
`

const pointDefinition = `# This contains the position of a point in free space
float64 x
float64 y
float64 z
`

const separatorLine = "================================================================================\n"

// Header is std_msgs/Header.
type Header struct {
	Seq     uint32
	Stamp   time.Time
	FrameID string
}

func (*Header) Spec() msg.Spec {
	return msg.Spec{
		Name:       "std_msgs/Header",
		MD5Sum:     "2176decaecbce78abc3b96ef049fabed",
		Definition: headerDefinition,
	}
}

func (m *Header) MarshalROS(e *msg.Encoder) error {
	e.Uint32(m.Seq)
	if err := e.Time(m.Stamp); err != nil {
		return err
	}
	return e.String(m.FrameID)
}

func (m *Header) UnmarshalROS(d *msg.Decoder) (err error) {
	if m.Seq, err = d.Uint32(); err != nil {
		return err
	}
	if m.Stamp, err = d.Time(); err != nil {
		return err
	}
	m.FrameID, err = d.String()
	return err
}

// Point is geometry_msgs/Point.
type Point struct {
	X, Y, Z float64
}

func (*Point) Spec() msg.Spec {
	return msg.Spec{
		Name:       "geometry_msgs/Point",
		MD5Sum:     "4a842b65f413084dc2b10fb484ea7f17",
		Definition: pointDefinition,
	}
}

func (m *Point) MarshalROS(e *msg.Encoder) error {
	e.Float64(m.X)
	e.Float64(m.Y)
	e.Float64(m.Z)
	return nil
}

func (m *Point) UnmarshalROS(d *msg.Decoder) (err error) {
	if m.X, err = d.Float64(); err != nil {
		return err
	}
	if m.Y, err = d.Float64(); err != nil {
		return err
	}
	m.Z, err = d.Float64()
	return err
}

// PointStamped is geometry_msgs/PointStamped.
type PointStamped struct {
	Header Header
	Point  Point
}

func (*PointStamped) Spec() msg.Spec {
	return msg.Spec{
		Name:   "geometry_msgs/PointStamped",
		MD5Sum: "c63aecb41bfdfd6b7e1fac37c7cbe7bf",
		Definition: "# This represents a Point with reference coordinate frame and timestamp\n" +
			"Header header\nPoint point\n\n" +
			separatorLine + "MSG: std_msgs/Header\n" + headerDefinition + "\n" +
			separatorLine + "MSG: geometry_msgs/Point\n" + pointDefinition,
	}
}

func (m *PointStamped) MarshalROS(e *msg.Encoder) error {
	if err := m.Header.MarshalROS(e); err != nil {
		return err
	}
	return m.Point.MarshalROS(e)
}

func (m *PointStamped) UnmarshalROS(d *msg.Decoder) error {
	if err := m.Header.UnmarshalROS(d); err != nil {
		return err
	}
	return m.Point.UnmarshalROS(d)
}

// MultiArrayDimension is std_msgs/MultiArrayDimension.
type MultiArrayDimension struct {
	Label  string
	Size   uint32
	Stride uint32
}

// Float64MultiArray is std_msgs/Float64MultiArray.
type Float64MultiArray struct {
	Dims       []MultiArrayDimension
	DataOffset uint32
	Data       []float64
}

func (*Float64MultiArray) Spec() msg.Spec {
	return msg.Spec{
		Name:   "std_msgs/Float64MultiArray",
		MD5Sum: "4b7d974086d4060e7db4613a7e6c3ba4",
		Definition: "MultiArrayLayout  layout\nfloat64[]         data\n\n" +
			separatorLine + "MSG: std_msgs/MultiArrayLayout\n" +
			"MultiArrayDimension[] dim\nuint32 data_offset\n\n" +
			separatorLine + "MSG: std_msgs/MultiArrayDimension\n" +
			"string label\nuint32 size\nuint32 stride\n",
	}
}

func (m *Float64MultiArray) MarshalROS(e *msg.Encoder) error {
	err := msg.EncodeSlice(e, m.Dims, func(e *msg.Encoder, dim MultiArrayDimension) error {
		if err := e.String(dim.Label); err != nil {
			return err
		}
		e.Uint32(dim.Size)
		e.Uint32(dim.Stride)
		return nil
	})
	if err != nil {
		return err
	}
	e.Uint32(m.DataOffset)
	return msg.EncodeSlice(e, m.Data, func(e *msg.Encoder, v float64) error {
		e.Float64(v)
		return nil
	})
}

func (m *Float64MultiArray) UnmarshalROS(d *msg.Decoder) (err error) {
	m.Dims, err = msg.DecodeSlice(d, func(d *msg.Decoder) (MultiArrayDimension, error) {
		var dim MultiArrayDimension
		var err error
		if dim.Label, err = d.String(); err != nil {
			return dim, err
		}
		if dim.Size, err = d.Uint32(); err != nil {
			return dim, err
		}
		dim.Stride, err = d.Uint32()
		return dim, err
	})
	if err != nil {
		return err
	}
	if m.DataOffset, err = d.Uint32(); err != nil {
		return err
	}
	m.Data, err = msg.DecodeSlice(d, (*msg.Decoder).Float64)
	return err
}
