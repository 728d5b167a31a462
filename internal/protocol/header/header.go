package header

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/danmuck/tcpros/internal/protocol"
)

// PrefixLen is the size of every u32 length prefix in a header frame.
const PrefixLen = 4

const separator = '='

var (
	ErrHeaderTooLarge = errors.New("header: declared length exceeds limit")
	ErrInvalidKey     = errors.New("header: invalid key")
	ErrInvalidValue   = errors.New("header: invalid value")
)

// Field is one key=value entry.
type Field struct {
	Key   string
	Value string
}

// Header is an ordered set of uniquely keyed fields. Encoding preserves
// insertion order.
type Header struct {
	fields []Field
}

// Limits constrains header read memory use.
type Limits struct {
	MaxHeaderBytes uint32
}

func DefaultLimits() Limits {
	return Limits{
		MaxHeaderBytes: 1 << 20,
	}
}

// New builds a header from fields; a repeated key replaces the earlier value.
func New(fields ...Field) Header {
	var h Header
	for _, f := range fields {
		h.Set(f.Key, f.Value)
	}
	return h
}

// Set inserts key or replaces its value in place.
func (h *Header) Set(key, value string) {
	for i := range h.fields {
		if h.fields[i].Key == key {
			h.fields[i].Value = value
			return
		}
	}
	h.fields = append(h.fields, Field{Key: key, Value: value})
}

func (h Header) Get(key string) (string, bool) {
	for _, f := range h.fields {
		if f.Key == key {
			return f.Value, true
		}
	}
	return "", false
}

func (h Header) Len() int {
	return len(h.fields)
}

// Fields returns a copy of the entries in encode order.
func (h Header) Fields() []Field {
	out := make([]Field, len(h.fields))
	copy(out, h.fields)
	return out
}

// Map returns the entries keyed by name.
func (h Header) Map() map[string]string {
	out := make(map[string]string, len(h.fields))
	for _, f := range h.fields {
		out[f.Key] = f.Value
	}
	return out
}

// Equal reports whether both headers hold the same keys and values,
// ignoring order.
func (h Header) Equal(other Header) bool {
	if h.Len() != other.Len() {
		return false
	}
	for _, f := range h.fields {
		v, ok := other.Get(f.Key)
		if !ok || v != f.Value {
			return false
		}
	}
	return true
}

// Validate checks the key and value rules Encode relies on but does not enforce.
func (h Header) Validate() error {
	for _, f := range h.fields {
		if f.Key == "" || strings.ContainsRune(f.Key, separator) || strings.ContainsRune(f.Key, 0) {
			return fmt.Errorf("%w: %q", ErrInvalidKey, f.Key)
		}
		if strings.ContainsRune(f.Value, 0) {
			return fmt.Errorf("%w: key %q contains NUL", ErrInvalidValue, f.Key)
		}
	}
	return nil
}

func (h Header) String() string {
	parts := make([]string, 0, len(h.fields))
	for _, f := range h.fields {
		parts = append(parts, f.Key+"="+f.Value)
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

// Encode renders the header frame including its outer length prefix.
func Encode(h Header) []byte {
	total := 0
	for _, f := range h.fields {
		total += PrefixLen + len(f.Key) + 1 + len(f.Value)
	}
	buf := make([]byte, PrefixLen, PrefixLen+total)
	binary.LittleEndian.PutUint32(buf[0:PrefixLen], uint32(total))
	var entryLen [PrefixLen]byte
	for _, f := range h.fields {
		binary.LittleEndian.PutUint32(entryLen[:], uint32(len(f.Key)+1+len(f.Value)))
		buf = append(buf, entryLen[:]...)
		buf = append(buf, f.Key...)
		buf = append(buf, separator)
		buf = append(buf, f.Value...)
	}
	return buf
}

// Decode parses a complete header frame. buf must include the outer length
// prefix and exactly the number of bytes it declares.
func Decode(buf []byte) (Header, error) {
	if len(buf) < PrefixLen {
		return Header{}, protocol.Formatf("short length prefix: %d bytes", len(buf))
	}
	declared := binary.LittleEndian.Uint32(buf[0:PrefixLen])
	payload := buf[PrefixLen:]
	if uint64(declared) != uint64(len(payload)) {
		return Header{}, protocol.Formatf("declared length %d, have %d bytes", declared, len(payload))
	}

	var h Header
	for offset := 0; offset < len(payload); {
		if len(payload)-offset < PrefixLen {
			return Header{}, protocol.Formatf("short entry prefix at offset %d", offset)
		}
		l := binary.LittleEndian.Uint32(payload[offset : offset+PrefixLen])
		offset += PrefixLen
		if uint64(l) > uint64(len(payload)-offset) {
			return Header{}, protocol.Formatf("entry length %d at offset %d runs past frame", l, offset-PrefixLen)
		}
		entry := payload[offset : offset+int(l)]
		offset += int(l)
		sep := bytes.IndexByte(entry, separator)
		if sep < 0 {
			return Header{}, protocol.Formatf("entry at offset %d has no separator", offset-int(l)-PrefixLen)
		}
		h.Set(string(entry[:sep]), string(entry[sep+1:]))
	}
	return h, nil
}

// ReadHeader reads one header frame from r: the 4-byte prefix, then exactly
// the declared payload. Short reads are transport failures.
func ReadHeader(r io.Reader, limits Limits) (Header, error) {
	var prefix [PrefixLen]byte
	if _, err := io.ReadFull(r, prefix[:]); err != nil {
		return Header{}, protocol.Transport("read header length", err)
	}
	declared := binary.LittleEndian.Uint32(prefix[:])
	if limits.MaxHeaderBytes > 0 && declared > limits.MaxHeaderBytes {
		return Header{}, fmt.Errorf("%w: %w: %d > %d", protocol.ErrFormat, ErrHeaderTooLarge, declared, limits.MaxHeaderBytes)
	}
	buf := make([]byte, PrefixLen+int(declared))
	copy(buf, prefix[:])
	if _, err := io.ReadFull(r, buf[PrefixLen:]); err != nil {
		return Header{}, protocol.Transport("read header payload", err)
	}
	return Decode(buf)
}

// WriteHeader writes the encoded frame in a single call.
func WriteHeader(w io.Writer, h Header) error {
	if _, err := w.Write(Encode(h)); err != nil {
		return protocol.Transport("write header", err)
	}
	return nil
}
