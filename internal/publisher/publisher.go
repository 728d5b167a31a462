// Package publisher fans serialized messages for one topic out to every
// subscriber connection that completed the handshake.
package publisher

import (
	"context"
	"errors"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/danmuck/tcpros/internal/observability"
	"github.com/danmuck/tcpros/internal/protocol"
	"github.com/danmuck/tcpros/internal/protocol/handshake"
	"github.com/danmuck/tcpros/internal/protocol/header"
	"github.com/danmuck/tcpros/internal/protocol/msg"
	"github.com/danmuck/tcpros/internal/protocol/session"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.uber.org/multierr"
)

var (
	ErrTopicRequired    = errors.New("publisher: topic required")
	ErrCallerIDRequired = errors.New("publisher: caller id required")
	ErrClosed           = errors.New("publisher: stream closed")
)

type Options struct {
	Session session.Config
	// Latching replays the last published message to every new peer.
	Latching bool
}

type Stream[T any] struct {
	topic    string
	callerID string
	codec    msg.Codec[T]
	opts     Options
	logger   zerolog.Logger

	mu      sync.Mutex
	peers   peerSet
	latched []byte
	closed  bool
}

func New[T any](topic, callerID string, codec msg.Codec[T], opts Options) (*Stream[T], error) {
	topic = strings.TrimSpace(topic)
	callerID = strings.TrimSpace(callerID)
	if topic == "" {
		return nil, ErrTopicRequired
	}
	if callerID == "" {
		return nil, ErrCallerIDRequired
	}
	opts.Session = opts.Session.WithDefaults()
	if err := opts.Session.Validate(); err != nil {
		return nil, err
	}
	return &Stream[T]{
		topic:    topic,
		callerID: callerID,
		codec:    codec,
		opts:     opts,
		logger: log.With().
			Str("topic", topic).
			Str("caller_id", callerID).
			Str("type", codec.Spec().Name).
			Logger(),
		peers: make(peerSet),
	}, nil
}

func (s *Stream[T]) Topic() string {
	return s.topic
}

func (s *Stream[T]) Spec() msg.Spec {
	return s.codec.Spec()
}

func (s *Stream[T]) Latching() bool {
	return s.opts.Latching
}

// AddPeer dials addr and runs the publisher side of the handshake on the
// outbound socket. A failure leaves every other peer untouched.
func (s *Stream[T]) AddPeer(ctx context.Context, addr string) error {
	start := time.Now()
	life := session.NewLifecycle(session.RolePublisher, s.topic, addr)
	dialer := net.Dialer{Timeout: s.opts.Session.ConnectTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		life.Close()
		err = protocol.Transport("dial "+addr, err)
		observability.RecordHandshake(string(session.RolePublisher), err, time.Since(start))
		s.logger.Warn().Str("peer", addr).Err(err).Msg("publisher dial failed")
		return err
	}
	return s.attach(ctx, conn, addr, life, start, nil)
}

// Accept handshakes an inbound connection and adds it keyed by its remote
// address. conn is closed on failure.
func (s *Stream[T]) Accept(ctx context.Context, conn net.Conn) error {
	addr := conn.RemoteAddr().String()
	life := session.NewLifecycle(session.RolePublisher, s.topic, addr)
	return s.attach(ctx, conn, addr, life, time.Now(), nil)
}

// AcceptRequest is Accept for a connection whose request header was already
// read by a router.
func (s *Stream[T]) AcceptRequest(ctx context.Context, conn net.Conn, req header.Header) error {
	addr := conn.RemoteAddr().String()
	life := session.NewLifecycle(session.RolePublisher, s.topic, addr)
	return s.attach(ctx, conn, addr, life, time.Now(), &req)
}

// Serve accepts subscribers from ln until ctx is done or ln fails. Each
// connection is handshaken on its own goroutine.
func (s *Stream[T]) Serve(ctx context.Context, ln net.Listener) error {
	stop := context.AfterFunc(ctx, func() { _ = ln.Close() })
	defer stop()
	s.logger.Info().Str("addr", ln.Addr().String()).Msg("publisher accepting subscribers")
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return protocol.Transport("accept", err)
		}
		go func() {
			_ = s.Accept(ctx, conn)
		}()
	}
}

func (s *Stream[T]) attach(ctx context.Context, conn net.Conn, addr string, life *session.Lifecycle, start time.Time, pre *header.Header) error {
	logger := s.logger.With().Str("peer", addr).Str("conn_id", life.ID).Logger()
	_ = life.Transition(session.StateNegotiating)

	req, err := s.negotiate(ctx, conn, pre)
	observability.RecordHandshake(string(session.RolePublisher), err, time.Since(start))
	if err != nil {
		life.Close()
		_ = conn.Close()
		logger.Warn().Err(err).Msg("publisher handshake failed")
		return err
	}
	nodelay, _ := req.Get(handshake.FieldTCPNoDelay)
	if nodelay == "1" || s.opts.Session.TCPNoDelay {
		if tcp, ok := conn.(*net.TCPConn); ok {
			_ = tcp.SetNoDelay(true)
		}
	}
	callerID, _ := req.Get(handshake.FieldCallerID)
	p := &peer{
		addr:        addr,
		callerID:    callerID,
		conn:        conn,
		life:        life,
		connectedAt: time.Now(),
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		_ = p.close()
		return ErrClosed
	}
	if len(s.latched) > 0 {
		if err := s.write(p, s.latched); err != nil {
			_ = p.close()
			logger.Warn().Err(err).Msg("latched replay failed")
			return err
		}
	}
	if old, ok := s.peers[addr]; ok {
		_ = old.close()
		logger.Debug().Str("old_conn_id", old.life.ID).Msg("replaced existing peer")
	}
	_ = life.Transition(session.StateStreaming)
	s.peers[addr] = p
	observability.SetLivePeers(s.topic, len(s.peers))
	logger.Info().Str("subscriber", callerID).Int("peers", len(s.peers)).Msg("peer added")
	return nil
}

func (s *Stream[T]) negotiate(ctx context.Context, conn net.Conn, pre *header.Header) (header.Header, error) {
	deadline := time.Now().Add(s.opts.Session.HandshakeTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	_ = conn.SetDeadline(deadline)
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	reply := handshake.Reply{
		CallerID: s.callerID,
		Spec:     s.codec.Spec(),
		Latching: s.opts.Latching,
	}
	var req header.Header
	var err error
	if pre != nil {
		req = *pre
		err = handshake.Respond(conn, req, reply)
	} else {
		req, err = handshake.Accept(conn, reply, s.opts.Session.Header)
	}
	if err != nil {
		if ctx.Err() != nil {
			return header.Header{}, protocol.Transport("handshake", ctx.Err())
		}
		return header.Header{}, err
	}
	if topic, _ := req.Get(handshake.FieldTopic); topic != s.topic {
		s.logger.Debug().Str("requested", topic).Msg("subscriber requested a different topic name")
	}
	// A cancel racing the last handshake byte may already be closing conn.
	if !stop() {
		return header.Header{}, protocol.Transport("handshake", ctx.Err())
	}
	if err := conn.SetDeadline(time.Time{}); err != nil {
		return header.Header{}, protocol.Transport("clear deadline", err)
	}
	return req, nil
}

// write sends one frame; callers hold mu.
func (s *Stream[T]) write(p *peer, b []byte) error {
	if s.opts.Session.WriteTimeout > 0 {
		_ = p.conn.SetWriteDeadline(time.Now().Add(s.opts.Session.WriteTimeout))
	}
	if _, err := p.conn.Write(b); err != nil {
		return protocol.Transport("write "+p.addr, err)
	}
	p.sent++
	return nil
}

// Publish serializes v once and writes it to every live peer. Peers whose
// write fails are closed and evicted. It returns the number of deliveries.
func (s *Stream[T]) Publish(v T) (int, error) {
	start := time.Now()
	b, err := msg.Marshal(s.codec, v)
	if err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, ErrClosed
	}
	if s.opts.Latching {
		s.latched = b
	}
	delivered, evicted := 0, 0
	for addr, p := range s.peers {
		if err := s.write(p, b); err != nil {
			delete(s.peers, addr)
			_ = p.close()
			evicted++
			s.logger.Warn().Str("peer", addr).Str("conn_id", p.life.ID).Err(err).Msg("peer evicted")
			continue
		}
		delivered++
	}
	observability.RecordPublish(s.topic, delivered, evicted, time.Since(start))
	if evicted > 0 {
		observability.SetLivePeers(s.topic, len(s.peers))
	}
	return delivered, nil
}

// RemovePeer closes and drops addr. It reports whether addr was live.
func (s *Stream[T]) RemovePeer(addr string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.peers[addr]
	if !ok {
		return false
	}
	delete(s.peers, addr)
	_ = p.close()
	observability.SetLivePeers(s.topic, len(s.peers))
	s.logger.Info().Str("peer", addr).Msg("peer removed")
	return true
}

// Peers returns the sorted live addresses.
func (s *Stream[T]) Peers() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.peers.addrs()
}

func (s *Stream[T]) PeerInfos() []PeerInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.peers.infos()
}

// Close drops every peer. Later calls to Publish and AddPeer fail with
// ErrClosed.
func (s *Stream[T]) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	var err error
	for addr, p := range s.peers {
		err = multierr.Append(err, p.close())
		delete(s.peers, addr)
	}
	observability.SetLivePeers(s.topic, 0)
	s.logger.Info().Msg("publisher closed")
	return err
}
