package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/danmuck/tcpros/internal/protocol/header"
	"github.com/danmuck/tcpros/internal/protocol/msg"
	"github.com/danmuck/tcpros/internal/protocol/session"
	"github.com/pelletier/go-toml/v2"
)

// NodeConfig is the on-disk configuration of one node process.
type NodeConfig struct {
	CallerID      string        `toml:"caller_id"`
	Host          string        `toml:"host"`
	ListenAddr    string        `toml:"listen_addr"`
	AdminAddr     string        `toml:"admin_addr"`
	CorsOrigins   []string      `toml:"cors_origins"`
	DirectoryFile string        `toml:"directory_file"`
	Session       SessionConfig `toml:"session"`
}

// SessionConfig mirrors session.Config with string durations.
type SessionConfig struct {
	ConnectTimeout   string `toml:"connect_timeout"`
	HandshakeTimeout string `toml:"handshake_timeout"`
	WriteTimeout     string `toml:"write_timeout"`
	ReadTimeout      string `toml:"read_timeout"`
	QueueSize        int    `toml:"queue_size"`
	QueuePolicy      string `toml:"queue_policy"`
	TCPNoDelay       bool   `toml:"tcp_nodelay"`
	MaxHeaderBytes   uint32 `toml:"max_header_bytes"`
	MaxSequenceLen   uint32 `toml:"max_sequence_len"`
}

func DefaultNodeConfig() NodeConfig {
	return NodeConfig{
		ListenAddr: ":0",
		AdminAddr:  "",
	}
}

func LoadNodeConfig(path string) (NodeConfig, error) {
	cfg := DefaultNodeConfig()
	if err := loadToml(path, &cfg); err != nil {
		return NodeConfig{}, err
	}
	cfg.CallerID = strings.TrimSpace(cfg.CallerID)
	if cfg.CallerID != "" && !strings.HasPrefix(cfg.CallerID, "/") {
		cfg.CallerID = "/" + cfg.CallerID
	}
	if strings.TrimSpace(cfg.ListenAddr) == "" {
		cfg.ListenAddr = ":0"
	}
	if err := ValidateNodeConfig(cfg); err != nil {
		return NodeConfig{}, err
	}
	return cfg, nil
}

func loadToml(path string, out any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config load failed (%s): %w", path, err)
	}
	if err := toml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("config parse failed (%s): %w", path, err)
	}
	return nil
}

func ValidateNodeConfig(cfg NodeConfig) error {
	if strings.TrimSpace(cfg.CallerID) == "" {
		return fmt.Errorf("node config missing caller_id")
	}
	if strings.TrimSpace(cfg.ListenAddr) == "" {
		return fmt.Errorf("node config missing listen_addr")
	}
	if _, err := cfg.Session.ToSession(); err != nil {
		return fmt.Errorf("session invalid: %w", err)
	}
	return nil
}

// ToSession converts to session.Config; unset fields take defaults.
func (c SessionConfig) ToSession() (session.Config, error) {
	out := session.Config{
		QueueSize:   c.QueueSize,
		QueuePolicy: session.QueuePolicy(c.QueuePolicy),
		TCPNoDelay:  c.TCPNoDelay,
		Header:      header.Limits{MaxHeaderBytes: c.MaxHeaderBytes},
		Payload:     msg.Limits{MaxSequenceLen: c.MaxSequenceLen},
	}
	durations := []struct {
		name string
		raw  string
		dst  *time.Duration
	}{
		{"connect_timeout", c.ConnectTimeout, &out.ConnectTimeout},
		{"handshake_timeout", c.HandshakeTimeout, &out.HandshakeTimeout},
		{"write_timeout", c.WriteTimeout, &out.WriteTimeout},
		{"read_timeout", c.ReadTimeout, &out.ReadTimeout},
	}
	for _, d := range durations {
		raw := strings.TrimSpace(d.raw)
		if raw == "" {
			continue
		}
		v, err := time.ParseDuration(raw)
		if err != nil {
			return session.Config{}, fmt.Errorf("parse %s: %w", d.name, err)
		}
		if v < 0 {
			return session.Config{}, fmt.Errorf("%s must not be negative", d.name)
		}
		*d.dst = v
	}
	out = out.WithDefaults()
	if err := out.Validate(); err != nil {
		return session.Config{}, err
	}
	return out, nil
}
