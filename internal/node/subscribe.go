package node

import (
	"context"
	"errors"
	"slices"
	"sync"

	"github.com/danmuck/tcpros/internal/directory"
	"github.com/danmuck/tcpros/internal/protocol"
	"github.com/danmuck/tcpros/internal/protocol/msg"
	"github.com/danmuck/tcpros/internal/protocol/session"
	"github.com/danmuck/tcpros/internal/subscriber"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// dialLimit bounds concurrent publisher dials per directory update.
const dialLimit = 8

// Subscription merges the values of every publisher the directory reports
// for one topic. Connections follow directory updates.
type Subscription[T any] struct {
	node   *Node
	topic  string
	codec  msg.Codec[T]
	opts   subscriber.Options
	logger zerolog.Logger

	out    chan T
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu    sync.Mutex
	conns map[string]*subscriber.Subscriber[T]
}

// Subscribe connects to every publisher of topic. A publisher that rejects
// the type fails the whole call; unreachable publishers are logged and
// retried on the next directory update.
func Subscribe[T any](ctx context.Context, n *Node, topic string, codec msg.Codec[T]) (*Subscription[T], error) {
	s := &Subscription[T]{
		node:  n,
		topic: topic,
		codec: codec,
		opts: subscriber.Options{
			CallerID: n.CallerID,
			Topic:    topic,
			Session:  n.Session,
		},
		logger: n.logger.With().Str("topic", topic).Str("type", codec.Spec().Name).Logger(),
		out:    make(chan T, n.Session.QueueSize),
		conns:  make(map[string]*subscriber.Subscriber[T]),
	}
	s.ctx, s.cancel = context.WithCancel(context.Background())

	addrs, err := n.dir.Lookup(ctx, topic, codec.Spec().Name)
	if err != nil {
		s.cancel()
		return nil, err
	}
	if err := s.connect(ctx, addrs); err != nil {
		_ = s.Close()
		return nil, err
	}
	updates, err := n.dir.Watch(s.ctx, topic)
	if err != nil {
		_ = s.Close()
		return nil, err
	}
	s.wg.Add(1)
	if !n.track(s) {
		s.wg.Done()
		_ = s.Close()
		return nil, ErrClosed
	}
	go s.follow(updates)
	s.logger.Info().Strs("publishers", addrs).Msg("subscribed")
	return s, nil
}

// connect dials the addresses not yet connected.
func (s *Subscription[T]) connect(ctx context.Context, addrs []string) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(dialLimit)
	for _, addr := range addrs {
		s.mu.Lock()
		_, live := s.conns[addr]
		s.mu.Unlock()
		if live {
			continue
		}
		g.Go(func() error {
			sub, err := subscriber.Dial(gctx, addr, s.codec, s.opts)
			if err != nil {
				if errors.Is(err, protocol.ErrMismatch) {
					return err
				}
				s.logger.Warn().Str("peer", addr).Err(err).Msg("publisher unreachable")
				return nil
			}
			s.mu.Lock()
			s.conns[addr] = sub
			s.mu.Unlock()
			s.wg.Add(1)
			go s.forward(addr, sub)
			return nil
		})
	}
	return g.Wait()
}

// forward copies one connection's values into the merged queue.
func (s *Subscription[T]) forward(addr string, sub *subscriber.Subscriber[T]) {
	defer s.wg.Done()
	stop := context.AfterFunc(s.ctx, func() { _ = sub.Close() })
	defer stop()
	for v := range sub.All() {
		select {
		case s.out <- v:
		case <-s.ctx.Done():
			return
		}
	}
	if err := sub.Err(); err != nil {
		s.logger.Warn().Str("peer", addr).Err(err).Msg("publisher stream failed")
	}
	s.mu.Lock()
	if s.conns[addr] == sub {
		delete(s.conns, addr)
	}
	s.mu.Unlock()
}

func (s *Subscription[T]) follow(updates <-chan directory.Update) {
	defer s.wg.Done()
	for u := range updates {
		s.mu.Lock()
		var stale []*subscriber.Subscriber[T]
		for addr, sub := range s.conns {
			if !slices.Contains(u.Addrs, addr) {
				stale = append(stale, sub)
				delete(s.conns, addr)
			}
		}
		s.mu.Unlock()
		for _, sub := range stale {
			_ = sub.Close()
		}
		if err := s.connect(s.ctx, u.Addrs); err != nil {
			s.logger.Warn().Err(err).Msg("publisher rejected subscription")
		}
	}
}

// Recv returns the next value from any publisher.
func (s *Subscription[T]) Recv(ctx context.Context) (T, error) {
	var zero T
	select {
	case v := <-s.out:
		return v, nil
	case <-s.ctx.Done():
		return zero, subscriber.ErrClosed
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

func (s *Subscription[T]) Topic() string {
	return s.topic
}

func (s *Subscription[T]) Spec() msg.Spec {
	return s.codec.Spec()
}

// Publishers returns the sorted addresses currently connected.
func (s *Subscription[T]) Publishers() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.conns))
	for addr := range s.conns {
		out = append(out, addr)
	}
	slices.Sort(out)
	return out
}

func (s *Subscription[T]) Connections() []session.Info {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]session.Info, 0, len(s.conns))
	for _, sub := range s.conns {
		out = append(out, sub.Info())
	}
	slices.SortFunc(out, func(a, b session.Info) int {
		if a.Peer < b.Peer {
			return -1
		}
		if a.Peer > b.Peer {
			return 1
		}
		return 0
	})
	return out
}

func (s *Subscription[T]) Close() error {
	s.cancel()
	s.mu.Lock()
	conns := s.conns
	s.conns = make(map[string]*subscriber.Subscriber[T])
	s.mu.Unlock()
	for _, sub := range conns {
		_ = sub.Close()
	}
	s.wg.Wait()
	s.node.untrack(s)
	return nil
}
