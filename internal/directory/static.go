package directory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"
)

type entry struct {
	typeName string
	addrs    map[string]struct{}
}

func (e *entry) sorted() []string {
	out := make([]string, 0, len(e.addrs))
	for addr := range e.addrs {
		out = append(out, addr)
	}
	sort.Strings(out)
	return out
}

type watcher struct {
	topic string
	ch    chan Update
}

var _ Directory = (*Static)(nil)

type Static struct {
	mu       sync.Mutex
	topics   map[string]*entry
	watchers map[*watcher]struct{}
	closed   bool
}

func NewStatic() *Static {
	return &Static{
		topics:   make(map[string]*entry),
		watchers: make(map[*watcher]struct{}),
	}
}

// Lookup returns the sorted publisher addresses for topic. An empty
// typeName matches any type.
func (s *Static) Lookup(_ context.Context, topic, typeName string) ([]string, error) {
	topic = strings.TrimSpace(topic)
	if topic == "" {
		return nil, ErrTopicRequired
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.topics[topic]
	if !ok {
		return nil, nil
	}
	if err := checkType(topic, e.typeName, typeName); err != nil {
		return nil, err
	}
	return e.sorted(), nil
}

func (s *Static) Advertise(_ context.Context, topic, typeName, addr string) error {
	topic = strings.TrimSpace(topic)
	addr = strings.TrimSpace(addr)
	if topic == "" {
		return ErrTopicRequired
	}
	if addr == "" {
		return ErrAddrRequired
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	e, ok := s.topics[topic]
	if !ok {
		e = &entry{typeName: typeName, addrs: make(map[string]struct{})}
		s.topics[topic] = e
	}
	if err := checkType(topic, e.typeName, typeName); err != nil {
		return err
	}
	if e.typeName == "" {
		e.typeName = typeName
	}
	if _, dup := e.addrs[addr]; dup {
		return nil
	}
	e.addrs[addr] = struct{}{}
	log.Debug().Str("topic", topic).Str("addr", addr).Msg("publisher advertised")
	s.notify(topic, e)
	return nil
}

// Withdraw removes addr from topic. Unknown addresses are ignored.
func (s *Static) Withdraw(_ context.Context, topic, addr string) error {
	topic = strings.TrimSpace(topic)
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.topics[topic]
	if !ok {
		return nil
	}
	if _, ok := e.addrs[addr]; !ok {
		return nil
	}
	delete(e.addrs, addr)
	log.Debug().Str("topic", topic).Str("addr", addr).Msg("publisher withdrawn")
	s.notify(topic, e)
	return nil
}

func (s *Static) Watch(ctx context.Context, topic string) (<-chan Update, error) {
	topic = strings.TrimSpace(topic)
	if topic == "" {
		return nil, ErrTopicRequired
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}
	w := &watcher{topic: topic, ch: make(chan Update, 1)}
	s.watchers[w] = struct{}{}
	current := Update{Topic: topic}
	if e, ok := s.topics[topic]; ok {
		current.Type = e.typeName
		current.Addrs = e.sorted()
	}
	w.ch <- current

	context.AfterFunc(ctx, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if _, ok := s.watchers[w]; ok {
			delete(s.watchers, w)
			close(w.ch)
		}
	})
	return w.ch, nil
}

// Close ends every watch.
func (s *Static) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	for w := range s.watchers {
		delete(s.watchers, w)
		close(w.ch)
	}
	return nil
}

// notify replaces any pending update with the latest set; callers hold mu.
func (s *Static) notify(topic string, e *entry) {
	u := Update{Topic: topic, Type: e.typeName, Addrs: e.sorted()}
	for w := range s.watchers {
		if w.topic != topic {
			continue
		}
		select {
		case <-w.ch:
		default:
		}
		w.ch <- u
	}
}

func checkType(topic, have, want string) error {
	if have == "" || want == "" || have == want {
		return nil
	}
	return fmt.Errorf("%w: %s is %s, not %s", ErrTypeConflict, topic, have, want)
}
