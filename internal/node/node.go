// Package node ties publications and subscriptions of one process to a
// shared listener and a directory.
package node

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sort"
	"sync"
	"time"

	"github.com/danmuck/tcpros/internal/config"
	"github.com/danmuck/tcpros/internal/directory"
	"github.com/danmuck/tcpros/internal/protocol/handshake"
	"github.com/danmuck/tcpros/internal/protocol/header"
	"github.com/danmuck/tcpros/internal/protocol/msg"
	"github.com/danmuck/tcpros/internal/protocol/session"
	"github.com/danmuck/tcpros/internal/publisher"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.uber.org/multierr"
)

var (
	ErrNotStarted     = errors.New("node: not started")
	ErrClosed         = errors.New("node: closed")
	ErrTopicInUse     = errors.New("node: topic already advertised")
	ErrDirectoryUnset = errors.New("node: directory required")
)

// publication is the type-erased view of a publisher.Stream.
type publication interface {
	Topic() string
	Spec() msg.Spec
	Latching() bool
	AcceptRequest(ctx context.Context, conn net.Conn, req header.Header) error
	PeerInfos() []publisher.PeerInfo
	Close() error
}

// subscription is the type-erased view of a Subscription.
type subscription interface {
	Topic() string
	Spec() msg.Spec
	Connections() []session.Info
	Close() error
}

type TopicInfo struct {
	Topic    string               `json:"topic"`
	Type     string               `json:"type"`
	MD5Sum   string               `json:"md5sum"`
	Latching bool                 `json:"latching"`
	Peers    []publisher.PeerInfo `json:"peers"`
}

type SubscriptionInfo struct {
	Topic       string         `json:"topic"`
	Type        string         `json:"type"`
	Connections []session.Info `json:"connections"`
}

type Node struct {
	CallerID string
	Host     string
	Session  session.Config
	Started  time.Time

	cfg    config.NodeConfig
	dir    directory.Directory
	logger zerolog.Logger

	mu     sync.Mutex
	ln     net.Listener
	addr   string
	pubs   map[string]publication
	subs   map[subscription]struct{}
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	closed bool
}

func New(cfg config.NodeConfig, dir directory.Directory) (*Node, error) {
	if err := config.ValidateNodeConfig(cfg); err != nil {
		return nil, err
	}
	if dir == nil {
		return nil, ErrDirectoryUnset
	}
	sess, err := cfg.Session.ToSession()
	if err != nil {
		return nil, err
	}
	host := ResolveHost(cfg)
	return &Node{
		CallerID: cfg.CallerID,
		Host:     host,
		Session:  sess,
		cfg:      cfg,
		dir:      dir,
		logger:   log.With().Str("caller_id", cfg.CallerID).Logger(),
		pubs:     make(map[string]publication),
		subs:     make(map[subscription]struct{}),
	}, nil
}

// Start binds the listen address and begins routing inbound subscribers.
func (n *Node) Start(ctx context.Context) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed {
		return ErrClosed
	}
	if n.ln != nil {
		return nil
	}
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", n.cfg.ListenAddr)
	if err != nil {
		return fmt.Errorf("node listen %s: %w", n.cfg.ListenAddr, err)
	}
	n.ln = ln
	n.addr = advertiseAddr(ln.Addr(), n.Host)
	n.ctx, n.cancel = context.WithCancel(context.Background())
	n.Started = time.Now()
	n.wg.Add(1)
	go n.acceptLoop()
	n.logger.Info().Str("listen", ln.Addr().String()).Str("advertise", n.addr).Msg("node started")
	return nil
}

// Addr is the advertised host:port, empty before Start.
func (n *Node) Addr() string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.addr
}

func (n *Node) acceptLoop() {
	defer n.wg.Done()
	for {
		conn, err := n.ln.Accept()
		if err != nil {
			if n.ctx.Err() == nil {
				n.logger.Error().Err(err).Msg("node accept failed")
			}
			return
		}
		n.wg.Add(1)
		go func() {
			defer n.wg.Done()
			n.route(conn)
		}()
	}
}

// route reads the request header and hands the connection to the
// publication for the requested topic.
func (n *Node) route(conn net.Conn) {
	_ = conn.SetDeadline(time.Now().Add(n.Session.HandshakeTimeout))
	stop := context.AfterFunc(n.ctx, func() { _ = conn.Close() })
	req, err := header.ReadHeader(conn, n.Session.Header)
	stop()
	if err != nil {
		n.logger.Warn().Str("peer", conn.RemoteAddr().String()).Err(err).Msg("inbound request unreadable")
		_ = conn.Close()
		return
	}
	topic, _ := req.Get(handshake.FieldTopic)
	n.mu.Lock()
	pub, ok := n.pubs[topic]
	n.mu.Unlock()
	if !ok {
		_ = handshake.Reject(conn, n.CallerID, "no publication for topic "+topic)
		_ = conn.Close()
		n.logger.Warn().Str("topic", topic).Str("peer", conn.RemoteAddr().String()).Msg("inbound request for unknown topic")
		return
	}
	_ = pub.AcceptRequest(n.ctx, conn, req)
}

// Advertise creates a publication for topic on n and registers n's address
// with the directory.
func Advertise[T any](ctx context.Context, n *Node, topic string, codec msg.Codec[T], latching bool) (*publisher.Stream[T], error) {
	stream, err := publisher.New(topic, n.CallerID, codec, publisher.Options{Session: n.Session, Latching: latching})
	if err != nil {
		return nil, err
	}
	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		return nil, ErrClosed
	}
	if n.ln == nil {
		n.mu.Unlock()
		return nil, ErrNotStarted
	}
	if _, ok := n.pubs[stream.Topic()]; ok {
		n.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrTopicInUse, stream.Topic())
	}
	n.pubs[stream.Topic()] = stream
	addr := n.addr
	n.mu.Unlock()

	if err := n.dir.Advertise(ctx, stream.Topic(), codec.Spec().Name, addr); err != nil {
		n.mu.Lock()
		delete(n.pubs, stream.Topic())
		n.mu.Unlock()
		_ = stream.Close()
		return nil, err
	}
	n.logger.Info().Str("topic", stream.Topic()).Str("type", codec.Spec().Name).Str("addr", addr).Msg("topic advertised")
	return stream, nil
}

func (n *Node) track(s subscription) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed {
		return false
	}
	n.subs[s] = struct{}{}
	return true
}

func (n *Node) untrack(s subscription) {
	n.mu.Lock()
	defer n.mu.Unlock()
	delete(n.subs, s)
}

func (n *Node) Topics() []TopicInfo {
	n.mu.Lock()
	pubs := make([]publication, 0, len(n.pubs))
	for _, p := range n.pubs {
		pubs = append(pubs, p)
	}
	n.mu.Unlock()

	out := make([]TopicInfo, 0, len(pubs))
	for _, p := range pubs {
		out = append(out, TopicInfo{
			Topic:    p.Topic(),
			Type:     p.Spec().Name,
			MD5Sum:   p.Spec().MD5Sum,
			Latching: p.Latching(),
			Peers:    p.PeerInfos(),
		})
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Topic < out[j].Topic
	})
	return out
}

func (n *Node) Subscriptions() []SubscriptionInfo {
	n.mu.Lock()
	subs := make([]subscription, 0, len(n.subs))
	for s := range n.subs {
		subs = append(subs, s)
	}
	n.mu.Unlock()

	out := make([]SubscriptionInfo, 0, len(subs))
	for _, s := range subs {
		out = append(out, SubscriptionInfo{
			Topic:       s.Topic(),
			Type:        s.Spec().Name,
			Connections: s.Connections(),
		})
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Topic < out[j].Topic
	})
	return out
}

// Ready reports whether the listener is bound.
func (n *Node) Ready() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.ln != nil && !n.closed
}

// Close stops the listener and closes every publication and subscription.
func (n *Node) Close() error {
	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		return nil
	}
	n.closed = true
	var err error
	if n.ln != nil {
		n.cancel()
		err = multierr.Append(err, n.ln.Close())
	}
	pubs := n.pubs
	subs := n.subs
	n.pubs = make(map[string]publication)
	n.subs = make(map[subscription]struct{})
	n.mu.Unlock()

	for _, p := range pubs {
		err = multierr.Append(err, p.Close())
	}
	for s := range subs {
		err = multierr.Append(err, s.Close())
	}
	n.wg.Wait()
	n.logger.Info().Msg("node closed")
	return err
}
