package directory

import (
	"context"
	"fmt"
	"strings"

	"github.com/BurntSushi/toml"
)

type fileTopic struct {
	Name       string   `toml:"name"`
	Type       string   `toml:"type"`
	Publishers []string `toml:"publishers"`
}

type fileConfig struct {
	Topics []fileTopic `toml:"topic"`
}

// LoadFile seeds a Static directory from a TOML file of [[topic]] tables.
func LoadFile(path string) (*Static, error) {
	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return nil, fmt.Errorf("load directory file: %w", err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("load directory file: unknown key %q", undecoded[0].String())
	}

	dir := NewStatic()
	if !meta.IsDefined("topic") {
		return dir, nil
	}
	for i, t := range raw.Topics {
		name := strings.TrimSpace(t.Name)
		if name == "" {
			return nil, fmt.Errorf("topic[%d]: %w", i, ErrTopicRequired)
		}
		dir.declare(name, strings.TrimSpace(t.Type))
		for _, addr := range t.Publishers {
			if err := dir.Advertise(context.Background(), name, strings.TrimSpace(t.Type), addr); err != nil {
				return nil, fmt.Errorf("topic[%d] %s: %w", i, name, err)
			}
		}
	}
	return dir, nil
}

// declare registers a topic with no publishers yet.
func (s *Static) declare(topic, typeName string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.topics[topic]; !ok {
		s.topics[topic] = &entry{typeName: typeName, addrs: make(map[string]struct{})}
	}
}
