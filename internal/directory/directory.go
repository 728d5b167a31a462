// Package directory is the narrow contract through which nodes learn which
// addresses publish a topic. Static is an in-memory implementation that can
// be seeded from a TOML file.
package directory

import (
	"context"
	"errors"
)

var (
	ErrTopicRequired = errors.New("directory: topic required")
	ErrAddrRequired  = errors.New("directory: addr required")
	ErrTypeConflict  = errors.New("directory: type conflict")
	ErrClosed        = errors.New("directory: closed")
)

// Update carries the full current publisher set for a topic.
type Update struct {
	Topic string
	Type  string
	Addrs []string
}

type Directory interface {
	Lookup(ctx context.Context, topic, typeName string) ([]string, error)
	// Watch delivers the current set immediately and then every change
	// until ctx is done. Slow readers only see the latest set.
	Watch(ctx context.Context, topic string) (<-chan Update, error)
	Advertise(ctx context.Context, topic, typeName, addr string) error
}
