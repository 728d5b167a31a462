package session

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/danmuck/tcpros/internal/protocol/header"
	"github.com/danmuck/tcpros/internal/protocol/msg"
)

// QueuePolicy decides what a subscriber's decode loop does when the
// hand-off queue is full.
type QueuePolicy string

const (
	// QueueBlock stalls the decode loop until the consumer pulls or closes.
	QueueBlock QueuePolicy = "block"
	// QueueDropOldest discards the oldest queued value to make room.
	QueueDropOldest QueuePolicy = "drop-oldest"
)

var (
	ErrInvalidQueuePolicy = errors.New("session: invalid queue policy")
	ErrInvalidQueueSize   = errors.New("session: invalid queue size")
)

// Config defines transport/session defaults.
type Config struct {
	ConnectTimeout   time.Duration
	HandshakeTimeout time.Duration
	WriteTimeout     time.Duration
	// ReadTimeout bounds the wait for each streamed message. Zero waits
	// forever; topics may legitimately idle.
	ReadTimeout time.Duration
	QueueSize   int
	QueuePolicy QueuePolicy
	TCPNoDelay  bool
	Header      header.Limits
	Payload     msg.Limits
}

func DefaultConfig() Config {
	return Config{
		ConnectTimeout:   5 * time.Second,
		HandshakeTimeout: 5 * time.Second,
		WriteTimeout:     5 * time.Second,
		ReadTimeout:      0,
		QueueSize:        256,
		QueuePolicy:      QueueBlock,
		TCPNoDelay:       false,
		Header:           header.DefaultLimits(),
		Payload:          msg.DefaultLimits(),
	}
}

// WithDefaults fills zero-valued fields from DefaultConfig.
func (c Config) WithDefaults() Config {
	d := DefaultConfig()
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = d.ConnectTimeout
	}
	if c.HandshakeTimeout <= 0 {
		c.HandshakeTimeout = d.HandshakeTimeout
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = d.WriteTimeout
	}
	if c.ReadTimeout < 0 {
		c.ReadTimeout = 0
	}
	if c.QueueSize == 0 {
		c.QueueSize = d.QueueSize
	}
	c.QueuePolicy = NormalizeQueuePolicy(c.QueuePolicy)
	if c.Header.MaxHeaderBytes == 0 {
		c.Header = d.Header
	}
	if c.Payload.MaxSequenceLen == 0 {
		c.Payload = d.Payload
	}
	return c
}

func NormalizeQueuePolicy(p QueuePolicy) QueuePolicy {
	if strings.TrimSpace(string(p)) == "" {
		return QueueBlock
	}
	return QueuePolicy(strings.ToLower(strings.TrimSpace(string(p))))
}

func (c Config) Validate() error {
	switch NormalizeQueuePolicy(c.QueuePolicy) {
	case QueueBlock, QueueDropOldest:
	default:
		return fmt.Errorf("%w: %q", ErrInvalidQueuePolicy, c.QueuePolicy)
	}
	if c.QueueSize < 1 {
		return fmt.Errorf("%w: %d", ErrInvalidQueueSize, c.QueueSize)
	}
	return nil
}
