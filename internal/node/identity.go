package node

import (
	"net"
	"os"
	"strings"

	"github.com/danmuck/tcpros/internal/config"
)

// ResolveHost returns the host other nodes should dial: the configured host,
// else the machine hostname, else localhost.
func ResolveHost(cfg config.NodeConfig) string {
	if host := strings.TrimSpace(cfg.Host); host != "" {
		return host
	}
	if host, err := os.Hostname(); err == nil && strings.TrimSpace(host) != "" {
		return host
	}
	return "localhost"
}

// advertiseAddr replaces an unspecified listen host with host.
func advertiseAddr(listen net.Addr, host string) string {
	h, port, err := net.SplitHostPort(listen.String())
	if err != nil {
		return listen.String()
	}
	if ip := net.ParseIP(h); h == "" || (ip != nil && ip.IsUnspecified()) {
		h = host
	}
	return net.JoinHostPort(h, port)
}
