// Package subscriber owns the subscriber side of one publisher connection:
// dial, handshake, and a background decode loop feeding a bounded queue.
package subscriber

import (
	"bufio"
	"context"
	"errors"
	"io"
	"iter"
	"net"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/danmuck/tcpros/internal/observability"
	"github.com/danmuck/tcpros/internal/protocol"
	"github.com/danmuck/tcpros/internal/protocol/handshake"
	"github.com/danmuck/tcpros/internal/protocol/header"
	"github.com/danmuck/tcpros/internal/protocol/msg"
	"github.com/danmuck/tcpros/internal/protocol/session"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var (
	ErrCallerIDRequired = errors.New("subscriber: caller id required")
	ErrTopicRequired    = errors.New("subscriber: topic required")
	ErrClosed           = errors.New("subscriber: closed")
)

type Options struct {
	CallerID string
	Topic    string
	Session  session.Config
}

func (o Options) validate() (Options, error) {
	if strings.TrimSpace(o.CallerID) == "" {
		return o, ErrCallerIDRequired
	}
	if strings.TrimSpace(o.Topic) == "" {
		return o, ErrTopicRequired
	}
	o.Session = o.Session.WithDefaults()
	if err := o.Session.Validate(); err != nil {
		return o, err
	}
	return o, nil
}

// Subscriber is the consumer handle for one connection. Dropping the last
// reference without calling Close still stops the decode loop once the
// handle is collected.
type Subscriber[T any] struct {
	*stream[T]
}

// stream is the state shared with the decode goroutine. It must never hold
// a reference back to the Subscriber handle.
type stream[T any] struct {
	codec  msg.Codec[T]
	opts   Options
	conn   net.Conn
	life   *session.Lifecycle
	reply  header.Header
	logger zerolog.Logger

	queue     chan T
	gone      chan struct{}
	goneOnce  sync.Once
	done      chan struct{}
	err       error
	dropped   atomic.Uint64
	delivered atomic.Uint64
}

// Dial connects to a publisher at addr and completes the handshake.
// Handshake failures are returned directly and never retried.
func Dial[T any](ctx context.Context, addr string, codec msg.Codec[T], opts Options) (*Subscriber[T], error) {
	opts, err := opts.validate()
	if err != nil {
		return nil, err
	}
	start := time.Now()
	life := session.NewLifecycle(session.RoleSubscriber, opts.Topic, addr)
	dialer := net.Dialer{Timeout: opts.Session.ConnectTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		life.Close()
		err = protocol.Transport("dial "+addr, err)
		observability.RecordHandshake(string(session.RoleSubscriber), err, time.Since(start))
		log.Warn().Str("topic", opts.Topic).Str("peer", addr).Err(err).Msg("subscriber dial failed")
		return nil, err
	}
	return attach(ctx, conn, codec, opts, life, start)
}

// Attach runs the handshake over an already connected socket and starts the
// decode loop. conn is closed on failure.
func Attach[T any](ctx context.Context, conn net.Conn, codec msg.Codec[T], opts Options) (*Subscriber[T], error) {
	opts, err := opts.validate()
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	life := session.NewLifecycle(session.RoleSubscriber, opts.Topic, conn.RemoteAddr().String())
	return attach(ctx, conn, codec, opts, life, time.Now())
}

func attach[T any](ctx context.Context, conn net.Conn, codec msg.Codec[T], opts Options, life *session.Lifecycle, start time.Time) (*Subscriber[T], error) {
	logger := log.With().
		Str("topic", opts.Topic).
		Str("peer", life.Peer).
		Str("conn_id", life.ID).
		Str("type", codec.Spec().Name).
		Logger()
	_ = life.Transition(session.StateNegotiating)

	reply, err := negotiate(ctx, conn, codec.Spec(), opts)
	observability.RecordHandshake(string(session.RoleSubscriber), err, time.Since(start))
	if err != nil {
		life.Close()
		_ = conn.Close()
		logger.Warn().Err(err).Msg("subscriber handshake failed")
		return nil, err
	}
	if opts.Session.TCPNoDelay {
		if tcp, ok := conn.(*net.TCPConn); ok {
			_ = tcp.SetNoDelay(true)
		}
	}
	_ = life.Transition(session.StateStreaming)
	callerID, _ := reply.Get(handshake.FieldCallerID)
	logger.Info().Str("publisher", callerID).Msg("subscriber streaming")

	st := &stream[T]{
		codec:  codec,
		opts:   opts,
		conn:   conn,
		life:   life,
		reply:  reply,
		logger: logger,
		queue:  make(chan T, opts.Session.QueueSize),
		gone:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	go st.run()

	sub := &Subscriber[T]{stream: st}
	runtime.AddCleanup(sub, func(st *stream[T]) { st.shutdown() }, st)
	return sub, nil
}

func negotiate(ctx context.Context, conn net.Conn, spec msg.Spec, opts Options) (header.Header, error) {
	deadline := time.Now().Add(opts.Session.HandshakeTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	_ = conn.SetDeadline(deadline)
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	reply, err := handshake.Initiate(conn, handshake.Request{
		CallerID:   opts.CallerID,
		Topic:      opts.Topic,
		Spec:       spec,
		TCPNoDelay: opts.Session.TCPNoDelay,
	}, opts.Session.Header)
	if err != nil {
		if ctx.Err() != nil {
			return header.Header{}, protocol.Transport("handshake", ctx.Err())
		}
		return header.Header{}, err
	}
	// A cancel racing the last handshake byte may already be closing conn.
	if !stop() {
		return header.Header{}, protocol.Transport("handshake", ctx.Err())
	}
	if err := conn.SetDeadline(time.Time{}); err != nil {
		return header.Header{}, protocol.Transport("clear deadline", err)
	}
	return reply, nil
}

func (s *stream[T]) run() {
	var err error
	defer func() {
		s.err = err
		s.life.Close()
		_ = s.conn.Close()
		close(s.queue)
		close(s.done)
		observability.RecordStreamEnd(s.opts.Topic, err)
		if err != nil {
			s.logger.Warn().Err(err).Uint64("delivered", s.delivered.Load()).Msg("subscriber stream failed")
			return
		}
		s.logger.Info().Uint64("delivered", s.delivered.Load()).Msg("subscriber stream ended")
	}()

	dec := msg.NewDecoder(bufio.NewReader(s.conn), s.opts.Session.Payload)
	for {
		if s.opts.Session.ReadTimeout > 0 {
			_ = s.conn.SetReadDeadline(time.Now().Add(s.opts.Session.ReadTimeout))
		}
		dec.Begin()
		v, decodeErr := s.codec.Decode(dec)
		if decodeErr != nil {
			err = s.classify(decodeErr)
			return
		}
		observability.RecordReceived(s.opts.Topic)
		if !s.handoff(v) {
			return
		}
		s.delivered.Add(1)
	}
}

func (s *stream[T]) classify(err error) error {
	if s.consumerGone() {
		return nil
	}
	if errors.Is(err, io.EOF) {
		return nil
	}
	if errors.Is(err, protocol.ErrDecode) || errors.Is(err, protocol.ErrTransport) {
		return err
	}
	return protocol.Decode(s.codec.Spec().Name, err)
}

// handoff reports false once the consumer is gone.
func (s *stream[T]) handoff(v T) bool {
	if s.consumerGone() {
		return false
	}
	if s.opts.Session.QueuePolicy != session.QueueDropOldest {
		select {
		case s.queue <- v:
			return true
		case <-s.gone:
			return false
		}
	}
	for {
		select {
		case s.queue <- v:
			return true
		case <-s.gone:
			return false
		default:
		}
		select {
		case <-s.queue:
			s.dropped.Add(1)
			observability.RecordQueueDrop(s.opts.Topic)
		default:
		}
	}
}

func (s *stream[T]) consumerGone() bool {
	select {
	case <-s.gone:
		return true
	default:
		return false
	}
}

func (s *stream[T]) shutdown() {
	s.goneOnce.Do(func() {
		close(s.gone)
		_ = s.conn.Close()
	})
}

// Recv blocks until a value arrives, the stream ends, or ctx is done. At
// the end of the stream it returns io.EOF for an orderly close and the
// terminal error otherwise.
func (s *Subscriber[T]) Recv(ctx context.Context) (T, error) {
	var zero T
	if s.consumerGone() {
		return zero, ErrClosed
	}
	select {
	case v, ok := <-s.queue:
		if ok {
			return v, nil
		}
		<-s.done
		if s.err != nil {
			return zero, s.err
		}
		return zero, io.EOF
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

// All yields values until the stream ends. Check Err afterwards for the
// reason. Stopping early does not close the subscriber.
func (s *Subscriber[T]) All() iter.Seq[T] {
	return func(yield func(T) bool) {
		for {
			v, err := s.Recv(context.Background())
			if err != nil {
				return
			}
			if !yield(v) {
				return
			}
		}
	}
}

// Close drops the consumer side and waits for the decode loop to exit.
func (s *Subscriber[T]) Close() error {
	s.shutdown()
	<-s.done
	return nil
}

// Done is closed when the decode loop has exited.
func (s *stream[T]) Done() <-chan struct{} {
	return s.done
}

// Err returns the terminal error once Done is closed; nil means the stream
// ended in order or was closed by the consumer.
func (s *stream[T]) Err() error {
	select {
	case <-s.done:
		return s.err
	default:
		return nil
	}
}

func (s *stream[T]) Dropped() uint64 {
	return s.dropped.Load()
}

func (s *stream[T]) Info() session.Info {
	return s.life.Snapshot()
}

// Reply is the publisher's handshake header.
func (s *stream[T]) Reply() header.Header {
	return s.reply
}

func (s *stream[T]) Spec() msg.Spec {
	return s.codec.Spec()
}
