// Package handshake drives the header exchange that precedes streaming.
//
// The subscriber writes a request and validates the reply; the publisher
// reads the request, validates it, and answers. Both sides accept a peer
// only when type name and md5sum match exactly.
package handshake

import (
	"io"

	"github.com/danmuck/tcpros/internal/protocol"
	"github.com/danmuck/tcpros/internal/protocol/header"
	"github.com/danmuck/tcpros/internal/protocol/msg"
)

// Header field names.
const (
	FieldCallerID   = "callerid"
	FieldTopic      = "topic"
	FieldType       = "type"
	FieldMD5Sum     = "md5sum"
	FieldDefinition = "message_definition"
	FieldError      = "error"
	FieldLatching   = "latching"
	FieldTCPNoDelay = "tcp_nodelay"
)

// Request is the subscriber -> publisher header.
type Request struct {
	CallerID   string
	Topic      string
	Spec       msg.Spec
	TCPNoDelay bool
}

func (r Request) Header() header.Header {
	h := header.New(
		header.Field{Key: FieldCallerID, Value: r.CallerID},
		header.Field{Key: FieldTopic, Value: r.Topic},
		header.Field{Key: FieldType, Value: r.Spec.Name},
		header.Field{Key: FieldMD5Sum, Value: r.Spec.MD5Sum},
		header.Field{Key: FieldDefinition, Value: r.Spec.Definition},
	)
	if r.TCPNoDelay {
		h.Set(FieldTCPNoDelay, "1")
	}
	return h
}

// Reply is the publisher -> subscriber header.
type Reply struct {
	CallerID string
	Spec     msg.Spec
	Latching bool
}

func (r Reply) Header() header.Header {
	latching := "0"
	if r.Latching {
		latching = "1"
	}
	return header.New(
		header.Field{Key: FieldCallerID, Value: r.CallerID},
		header.Field{Key: FieldType, Value: r.Spec.Name},
		header.Field{Key: FieldMD5Sum, Value: r.Spec.MD5Sum},
		header.Field{Key: FieldDefinition, Value: r.Spec.Definition},
		header.Field{Key: FieldLatching, Value: latching},
	)
}

// Validate checks a peer header against the expected type. A peer error
// field takes precedence over field comparison.
func Validate(h header.Header, spec msg.Spec) error {
	if reason, ok := h.Get(FieldError); ok {
		return protocol.RemoteError{Message: reason}
	}
	if got, _ := h.Get(FieldMD5Sum); got != spec.MD5Sum {
		return protocol.MismatchError{Field: FieldMD5Sum, Want: spec.MD5Sum, Got: got}
	}
	if got, _ := h.Get(FieldType); got != spec.Name {
		return protocol.MismatchError{Field: FieldType, Want: spec.Name, Got: got}
	}
	return nil
}

// Initiate runs the subscriber side over rw and returns the validated reply.
func Initiate(rw io.ReadWriter, req Request, limits header.Limits) (header.Header, error) {
	if err := header.WriteHeader(rw, req.Header()); err != nil {
		return header.Header{}, err
	}
	reply, err := header.ReadHeader(rw, limits)
	if err != nil {
		return header.Header{}, err
	}
	if err := Validate(reply, req.Spec); err != nil {
		return header.Header{}, err
	}
	return reply, nil
}

// Accept runs the publisher side over rw and returns the validated request.
// On mismatch an error header is sent before returning; the caller closes
// the connection.
func Accept(rw io.ReadWriter, reply Reply, limits header.Limits) (header.Header, error) {
	req, err := header.ReadHeader(rw, limits)
	if err != nil {
		return header.Header{}, err
	}
	if err := Respond(rw, req, reply); err != nil {
		return header.Header{}, err
	}
	return req, nil
}

// Respond finishes the publisher side for a request that was already read,
// for callers that route connections by the requested topic.
func Respond(w io.Writer, req header.Header, reply Reply) error {
	if err := Validate(req, reply.Spec); err != nil {
		_ = Reject(w, reply.CallerID, err.Error())
		return err
	}
	return header.WriteHeader(w, reply.Header())
}

// Reject sends an error header.
func Reject(w io.Writer, callerID, reason string) error {
	return header.WriteHeader(w, header.New(
		header.Field{Key: FieldCallerID, Value: callerID},
		header.Field{Key: FieldError, Value: reason},
	))
}
